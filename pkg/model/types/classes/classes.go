package classes

import (
	"fmt"
	"slices"

	"github.com/diwise/context-model/pkg/model/errors"
	"github.com/diwise/context-model/pkg/model/types"
)

type featureList struct {
	features []types.Feature
}

func (fl *featureList) Len() int {
	return len(fl.features)
}

func (fl *featureList) At(index int) types.Feature {
	return fl.features[index]
}

func (fl *featureList) IndexOf(f types.Feature) int {
	for idx := range fl.features {
		if fl.features[idx] == f {
			return idx
		}
	}
	return -1
}

// ClassImpl is a runtime type descriptor. Every change to its features
// installs a new feature list, so holders of the previous list can tell
// that the class has changed by comparing identities.
type ClassImpl struct {
	name     string
	features *featureList
}

type ClassDecoratorFunc func(c *ClassImpl)

func New(name string, decorators ...ClassDecoratorFunc) *ClassImpl {
	c := &ClassImpl{
		name:     name,
		features: &featureList{},
	}

	for _, decorator := range decorators {
		decorator(c)
	}

	return c
}

// F appends a feature while constructing the class
func F(f types.Feature) ClassDecoratorFunc {
	return func(c *ClassImpl) {
		c.features.features = append(c.features.features, f)
	}
}

func (c *ClassImpl) Name() string {
	return c.name
}

func (c *ClassImpl) FeatureCount() int {
	return c.features.Len()
}

func (c *ClassImpl) Features() types.FeatureList {
	return c.features
}

// Feature returns the named feature and its index, or nil and -1
func (c *ClassImpl) Feature(name string) (types.Feature, int) {
	for idx, f := range c.features.features {
		if f.Name() == name {
			return f, idx
		}
	}
	return nil, -1
}

func (c *ClassImpl) AddFeature(f types.Feature) error {
	if existing, _ := c.Feature(f.Name()); existing != nil {
		return errors.NewAlreadyExistsError(fmt.Sprintf("class %s already has a feature named %s", c.name, f.Name()))
	}

	c.replace(append(slices.Clone(c.features.features), f))
	return nil
}

func (c *ClassImpl) RemoveFeature(name string) error {
	_, idx := c.Feature(name)
	if idx < 0 {
		return errors.NewUnknownFeatureError(c.name, name)
	}

	c.replace(slices.Delete(slices.Clone(c.features.features), idx, idx+1))
	return nil
}

// MoveFeature moves the named feature to a new index in the feature list
func (c *ClassImpl) MoveFeature(name string, index int) error {
	f, idx := c.Feature(name)
	if idx < 0 {
		return errors.NewUnknownFeatureError(c.name, name)
	}

	if index < 0 || index >= c.features.Len() {
		return errors.NewOutOfRangeError(index, c.features.Len())
	}

	if index == idx {
		return nil
	}

	features := slices.Delete(slices.Clone(c.features.features), idx, idx+1)
	c.replace(slices.Insert(features, index, f))
	return nil
}

func (c *ClassImpl) replace(features []types.Feature) {
	c.features = &featureList{features: features}
}
