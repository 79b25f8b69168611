package entities

import (
	"github.com/diwise/context-model/pkg/model/types"
)

// Contents returns the entities held by the containment features of this
// entity. The result is computed on every call.
func (e *EntityImpl) Contents() []types.Entity {
	return e.references(true)
}

// CrossReferences returns the entities held by the non containment reference
// features of this entity. The result is computed on every call.
func (e *EntityImpl) CrossReferences() []types.Entity {
	return e.references(false)
}

func (e *EntityImpl) references(containment bool) []types.Entity {
	result := []types.Entity{}

	if e.flags&fixedLayout != 0 {
		return result
	}

	fl := e.featureList()
	settings := e.basicSettings()
	static := e.staticFeatureCount()

	for pos := range settings {
		if pos+static >= listLen(fl) {
			break
		}

		f := fl.At(pos + static)
		if !f.IsReference() || f.IsContainment() != containment {
			continue
		}

		result = append(result, entitiesIn(settings[pos])...)
	}

	return result
}
