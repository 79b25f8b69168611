package entities

import (
	"fmt"

	"github.com/diwise/context-model/pkg/model/errors"
	"github.com/diwise/context-model/pkg/model/types"
)

func (e *EntityImpl) staticFeatureCount() int {
	if e.layout == nil {
		return 0
	}
	return e.layout.staticFeatureCount
}

// dynamicFeatureCount is the number of features held in the settings array
// for the given class
func (e *EntityImpl) dynamicFeatureCount(c types.Class) int {
	if c == nil {
		return 0
	}
	return max(c.FeatureCount()-e.staticFeatureCount(), 0)
}

func (e *EntityImpl) storedSettings() []any {
	if e.dedicated(settingsField) {
		return e.layout.settings
	}
	return fieldAs[[]any](e, settingsField)
}

func (e *EntityImpl) storeSettings(settings []any) {
	if len(settings) == 0 {
		settings = nil
	}

	if e.dedicated(settingsField) {
		e.layout.settings = settings
	} else if settings == nil {
		e.setField(settingsField, nil)
	} else {
		e.setField(settingsField, settings)
	}
}

// basicSettings returns the current settings array, if any, reconciling it
// first when the class of a permissive entity has changed its features
func (e *EntityImpl) basicSettings() []any {
	settings := e.storedSettings()

	if e.flags&permissiveLayout != 0 {
		settings = e.reconcile(settings)
	}

	return settings
}

// reconcile remaps settings from the feature list they were allocated for to
// the current feature list of the class. Values follow their feature, values
// of removed features are dropped and new features start out as nil.
func (e *EntityImpl) reconcile(settings []any) []any {
	l := e.layout
	if l.features == nil {
		return settings
	}

	current := e.featureList()
	if current == l.features {
		return settings
	}

	static := l.staticFeatureCount

	var reconciled []any
	if size := listLen(current) - static; size > 0 {
		reconciled = make([]any, size)

		for i := range settings {
			if i+static >= l.features.Len() {
				break
			}

			idx := indexOf(current, l.features.At(i+static))
			if idx >= static {
				reconciled[idx-static] = settings[i]
			}
		}
	}

	e.storeSettings(reconciled)
	l.features = current

	return reconciled
}

func (e *EntityImpl) featureList() types.FeatureList {
	c := e.Class()
	if c == nil {
		return nil
	}
	return c.Features()
}

func listLen(fl types.FeatureList) int {
	if fl == nil {
		return 0
	}
	return fl.Len()
}

func indexOf(fl types.FeatureList, f types.Feature) int {
	if fl == nil {
		return -1
	}
	return fl.IndexOf(f)
}

// dynamicSettings returns the settings array, allocating it on first use
func (e *EntityImpl) dynamicSettings() ([]any, error) {
	if e.flags&fixedLayout != 0 {
		return nil, errors.NewUnsupportedError("entity has a fixed layout without dynamic settings")
	}

	settings := e.basicSettings()
	if settings != nil {
		return settings, nil
	}

	if e.flags&permissiveLayout != 0 {
		if e.layout.features != nil {
			// sized for the current features, which have none beyond the static ones
			return nil, nil
		}
		e.layout.features = e.featureList()
	}

	if size := e.dynamicFeatureCount(e.Class()); size > 0 {
		settings = make([]any, size)
		e.storeSettings(settings)
	}

	return settings, nil
}

// Settings makes sure the settings array is allocated if the class of the
// entity has any dynamic features
func (e *EntityImpl) Settings() error {
	_, err := e.dynamicSettings()
	return err
}

// HasSettings reports whether a settings array is allocated. It never
// reconciles or allocates anything.
func (e *EntityImpl) HasSettings() bool {
	if e.flags&fixedLayout != 0 || e.storedSettings() == nil {
		return false
	}

	if e.flags&permissiveLayout != 0 && e.layout.features != nil {
		// a pending reconciliation keeps the array only if features remain
		if current := e.featureList(); current != e.layout.features {
			return listLen(current) > e.layout.staticFeatureCount
		}
	}

	return true
}

func (e *EntityImpl) HoldsDynamicSettings() bool {
	return e.flags&fixedLayout == 0
}

func (e *EntityImpl) settingAt(position int) ([]any, error) {
	settings, err := e.dynamicSettings()
	if err != nil {
		return nil, err
	}

	if position < 0 || position >= len(settings) {
		return nil, fmt.Errorf("dynamic feature access failed: %w", errors.NewOutOfRangeError(position, len(settings)))
	}

	return settings, nil
}

func (e *EntityImpl) DynamicGet(position int) (any, error) {
	settings, err := e.settingAt(position)
	if err != nil {
		return nil, err
	}
	return settings[position], nil
}

func (e *EntityImpl) DynamicSet(position int, value any) error {
	settings, err := e.settingAt(position)
	if err != nil {
		return err
	}
	settings[position] = value
	return nil
}

func (e *EntityImpl) DynamicUnset(position int) error {
	return e.DynamicSet(position, nil)
}
