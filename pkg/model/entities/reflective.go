package entities

import (
	"slices"

	"github.com/diwise/context-model/pkg/model/errors"
	"github.com/diwise/context-model/pkg/model/types"
	"github.com/diwise/context-model/pkg/model/types/notifications"
)

// dynamicFeature looks up the named feature in the current class and returns
// it together with its class index and its position in the settings array
func (e *EntityImpl) dynamicFeature(name string) (types.Feature, int, int, error) {
	c := e.Class()
	if c == nil {
		return nil, -1, -1, errors.NewUnknownFeatureError("<none>", name)
	}

	f, idx := c.Feature(name)
	if f == nil {
		return nil, -1, -1, errors.NewUnknownFeatureError(c.Name(), name)
	}

	static := e.staticFeatureCount()
	if idx < static {
		return nil, -1, -1, errors.NewUnsupportedError("feature " + name + " is not held in the dynamic settings")
	}

	return f, idx, idx - static, nil
}

func (e *EntityImpl) Get(name string) (any, error) {
	_, _, pos, err := e.dynamicFeature(name)
	if err != nil {
		return nil, err
	}
	return e.DynamicGet(pos)
}

func (e *EntityImpl) Set(name string, value any) error {
	return e.set(types.Set, name, value)
}

func (e *EntityImpl) Unset(name string) error {
	return e.set(types.Unset, name, nil)
}

func (e *EntityImpl) IsSet(name string) bool {
	v, err := e.Get(name)
	if err != nil || v == nil {
		return false
	}

	switch typed := v.(type) {
	case []any:
		return len(typed) > 0
	case []types.Entity:
		return len(typed) > 0
	case []string:
		return len(typed) > 0
	}

	return true
}

func (e *EntityImpl) set(kind types.EventKind, name string, value any) error {
	f, idx, pos, err := e.dynamicFeature(name)
	if err != nil {
		return err
	}

	old, err := e.DynamicGet(pos)
	if err != nil {
		return err
	}

	if f.IsContainment() {
		if err = e.adopt(idx, value); err != nil {
			return err
		}
		e.release(old, value)
	}

	// the settings may have been touched while adopting, so look them up again
	if err = e.DynamicSet(pos, value); err != nil {
		return err
	}

	if e.hasObservers() {
		e.Notify(notifications.New(kind, e, f, old, value, notifications.NoPosition))
	}

	return nil
}

// CanContain fails if child is this entity or one of its owners
func (e *EntityImpl) CanContain(child types.Entity) error {
	for ancestor := types.Entity(e); ancestor != nil; ancestor = ancestor.Owner() {
		if ancestor == child {
			return errors.NewBadRequestError("an entity can not contain itself or any of its owners")
		}
	}
	return nil
}

// adopt makes this entity the owner of every entity in value, taking them
// away from their previous owners and their resource
func (e *EntityImpl) adopt(featureID int, value any) error {
	children := entitiesIn(value)

	for _, child := range children {
		if err := e.CanContain(child); err != nil {
			return err
		}
	}

	for _, child := range children {
		impl, ok := child.(*EntityImpl)
		if !ok {
			continue
		}

		if prev, ok := impl.Owner().(*EntityImpl); ok {
			if prev == e && impl.OwnerFeatureID() == featureID {
				continue
			}
			prev.removeChild(impl)
		}

		if err := impl.SetOwner(e, featureID); err != nil {
			return err
		}

		impl.SetResource(nil)
	}

	return nil
}

// release clears the owner of entities in old that are no longer part of value
func (e *EntityImpl) release(old, value any) {
	kept := entitiesIn(value)

	for _, child := range entitiesIn(old) {
		if slices.Contains(kept, child) {
			continue
		}

		if impl, ok := child.(*EntityImpl); ok && impl.Owner() == types.Entity(e) {
			impl.SetOwner(nil, 0)
		}
	}
}

// removeChild drops child from the containment feature that currently holds it
func (e *EntityImpl) removeChild(child *EntityImpl) {
	fl := e.featureList()
	fid := child.OwnerFeatureID()
	if fl == nil || fid < 0 || fid >= fl.Len() {
		return
	}

	pos := fid - e.staticFeatureCount()
	settings := e.basicSettings()
	if pos < 0 || pos >= len(settings) {
		return
	}

	f := fl.At(fid)
	old := settings[pos]

	switch typed := old.(type) {
	case types.Entity:
		if typed != types.Entity(child) {
			return
		}
		settings[pos] = nil
	case []types.Entity:
		idx := slices.Index(typed, types.Entity(child))
		if idx < 0 {
			return
		}
		settings[pos] = slices.Delete(slices.Clone(typed), idx, idx+1)
		if e.hasObservers() {
			e.Notify(notifications.New(types.Remove, e, f, child, nil, idx))
		}
		return
	case []any:
		idx := slices.Index(typed, any(child))
		if idx < 0 {
			return
		}
		settings[pos] = slices.Delete(slices.Clone(typed), idx, idx+1)
		if e.hasObservers() {
			e.Notify(notifications.New(types.Remove, e, f, child, nil, idx))
		}
		return
	default:
		return
	}

	if e.hasObservers() {
		e.Notify(notifications.New(types.Unset, e, f, old, nil, notifications.NoPosition))
	}
}

func entitiesIn(value any) []types.Entity {
	switch typed := value.(type) {
	case nil:
		return nil
	case types.Entity:
		return []types.Entity{typed}
	case []types.Entity:
		return typed
	case []any:
		result := make([]types.Entity, 0, len(typed))
		for _, v := range typed {
			if entity, ok := v.(types.Entity); ok {
				result = append(result, entity)
			}
		}
		return result
	}

	return nil
}
