package features

// FeatureImpl is a base type for all kinds of features. Features are compared
// by identity, so always pass them around as pointers.
type FeatureImpl struct {
	name        string
	reference   bool
	containment bool
	many        bool
}

func (f *FeatureImpl) Name() string {
	return f.name
}

func (f *FeatureImpl) IsReference() bool {
	return f.reference
}

func (f *FeatureImpl) IsContainment() bool {
	return f.containment
}

func (f *FeatureImpl) IsMany() bool {
	return f.many
}

type FeatureDecoratorFunc func(f *FeatureImpl)

// Many marks the feature as holding a list of values
func Many() FeatureDecoratorFunc {
	return func(f *FeatureImpl) {
		f.many = true
	}
}

// NewAttribute creates a feature holding plain values
func NewAttribute(name string, decorators ...FeatureDecoratorFunc) *FeatureImpl {
	f := &FeatureImpl{name: name}

	for _, decorator := range decorators {
		decorator(f)
	}

	return f
}

// NewReference creates a non-containment feature referring to other entities
func NewReference(name string, decorators ...FeatureDecoratorFunc) *FeatureImpl {
	f := &FeatureImpl{name: name, reference: true}

	for _, decorator := range decorators {
		decorator(f)
	}

	return f
}

// NewContainment creates a reference feature whose values are owned by the holder
func NewContainment(name string, decorators ...FeatureDecoratorFunc) *FeatureImpl {
	f := NewReference(name, decorators...)
	f.containment = true
	return f
}
