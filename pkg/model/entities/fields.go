package entities

import (
	"fmt"
	"math/bits"

	"github.com/diwise/context-model/pkg/model/errors"
	"github.com/diwise/context-model/pkg/model/types"
)

// Layout of the flag word. Bit 0 suppresses notifications, bits 1 to 7 mark
// which optional fields are present, bits 8 to 15 select layout capabilities
// and the upper 16 bits hold the owner feature id.
const (
	noDeliver uint32 = 1 << iota

	ownerField
	observersField
	listenersField
	classField
	settingsField
	proxyField
	resourceField

	permissiveLayout
	fixedLayout
)

const (
	fieldMask      uint32 = ownerField | observersField | listenersField | classField | settingsField | proxyField | resourceField
	ownerIDShift          = 16
	lowerFlagsMask uint32 = 0x0000FFFF
)

var fieldNames = map[uint32]string{
	ownerField:     "owner",
	observersField: "observers",
	listenersField: "listeners",
	classField:     "class",
	settingsField:  "settings",
	proxyField:     "proxy",
	resourceField:  "resource",
}

// slots holds the values of all present fields, ordered by field bit
type slots []any

func (e *EntityImpl) hasField(field uint32) bool {
	return e.flags&field != 0
}

func (e *EntityImpl) fieldCount() int {
	return bits.OnesCount32(e.flags & fieldMask)
}

// fieldIndex is the number of present fields ordered before field. For a
// present field this is its position in the slots, for an absent one it is
// the position it would be inserted at.
func (e *EntityImpl) fieldIndex(field uint32) int {
	return bits.OnesCount32(e.flags & fieldMask & (field - 1))
}

func (e *EntityImpl) slots() slots {
	s, ok := e.storage.(slots)
	if !ok || len(s) != e.fieldCount() {
		panic(errors.NewInconsistentStateError(
			fmt.Sprintf("flags report %d fields but storage holds %T", e.fieldCount(), e.storage),
		))
	}
	return s
}

func (e *EntityImpl) getField(field uint32) any {
	if !e.hasField(field) {
		return nil
	}

	if e.fieldCount() == 1 {
		return e.storage
	}

	return e.slots()[e.fieldIndex(field)]
}

// setField stores value for field. A nil value removes the field.
func (e *EntityImpl) setField(field uint32, value any) {
	if e.hasField(field) {
		if value == nil {
			e.removeField(field)
			return
		}

		if e.fieldCount() == 1 {
			e.storage = value
		} else {
			e.slots()[e.fieldIndex(field)] = value
		}
	} else if value != nil {
		e.addField(field, value)
	}
}

func (e *EntityImpl) addField(field uint32, value any) {
	count := e.fieldCount()

	switch count {
	case 0:
		if e.storage != nil {
			panic(errors.NewInconsistentStateError(
				fmt.Sprintf("no fields present but storage holds %T", e.storage),
			))
		}
		e.storage = value
	case 1:
		s := make(slots, 2)
		if e.fieldIndex(field) == 0 {
			s[0], s[1] = value, e.storage
		} else {
			s[0], s[1] = e.storage, value
		}
		e.storage = s
	default:
		old := e.slots()
		idx := e.fieldIndex(field)

		s := make(slots, count+1)
		copy(s, old[:idx])
		s[idx] = value
		copy(s[idx+1:], old[idx:])

		e.storage = s
	}

	e.flags |= field
}

func (e *EntityImpl) removeField(field uint32) {
	count := e.fieldCount()

	switch count {
	case 1:
		e.storage = nil
	case 2:
		old := e.slots()
		e.storage = old[1-e.fieldIndex(field)]
	default:
		old := e.slots()
		idx := e.fieldIndex(field)

		s := make(slots, count-1)
		copy(s, old[:idx])
		copy(s[idx:], old[idx+1:])

		e.storage = s
	}

	e.flags &^= field
}

// fieldAs returns the value of field as a T, or the zero T if absent
func fieldAs[T any](e *EntityImpl, field uint32) T {
	var zero T

	v := e.getField(field)
	if v == nil {
		return zero
	}

	t, ok := v.(T)
	if !ok {
		panic(errors.NewInconsistentStateError(
			fmt.Sprintf("%s field holds a value of type %T", fieldNames[field], v),
		))
	}

	return t
}

// layout holds the fields an entity keeps outside of the compact storage.
// Minimal entities have no layout at all.
type layout struct {
	fields uint32

	owner    types.Entity
	class    types.Class
	settings []any

	staticFeatureCount int
	// identity of the class features the settings were last sized for
	features types.FeatureList
}

func (e *EntityImpl) ensureLayout() *layout {
	if e.layout == nil {
		e.layout = &layout{}
	}
	return e.layout
}

func (e *EntityImpl) dedicated(field uint32) bool {
	return e.layout != nil && e.layout.fields&field != 0
}

// dedicate moves field out of the compact storage and into its own slot
func (e *EntityImpl) dedicate(field uint32) {
	l := e.ensureLayout()
	if l.fields&field != 0 {
		return
	}

	current := e.getField(field)
	e.setField(field, nil)

	l.fields |= field

	switch field {
	case ownerField:
		l.owner, _ = current.(types.Entity)
	case classField:
		l.class, _ = current.(types.Class)
	case settingsField:
		l.settings, _ = current.([]any)
	}
}
