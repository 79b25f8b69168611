package entities

import (
	"math"
	"net/url"

	"github.com/diwise/context-model/pkg/model/errors"
	"github.com/diwise/context-model/pkg/model/types"
)

// NoOwnerFeature is returned by OwnerFeatureID for entities without an owner
const NoOwnerFeature int = math.MinInt16

// EntityImpl is a compact, reflective model instance. Optional attributes
// cost memory only while they are present. An EntityImpl is not safe for
// concurrent use, callers must serialize all mutations.
type EntityImpl struct {
	flags   uint32
	storage any

	static types.Class
	layout *layout
}

type EntityDecoratorFunc func(e *EntityImpl)

// New creates an entity of the given static class. Unless decorated
// otherwise all optional attributes share a single storage cell.
func New(class types.Class, decorators ...EntityDecoratorFunc) *EntityImpl {
	e := &EntityImpl{
		static: class,
	}

	for _, decorator := range decorators {
		decorator(e)
	}

	return e
}

// Reset discards every attribute of the entity and lays it out again for
// the given class, as New would. References to the entity stay valid.
func (e *EntityImpl) Reset(class types.Class, decorators ...EntityDecoratorFunc) {
	*e = EntityImpl{
		static: class,
	}

	for _, decorator := range decorators {
		decorator(e)
	}
}

// WithOwnerField keeps the owner in a dedicated field instead of the shared storage
func WithOwnerField() EntityDecoratorFunc {
	return func(e *EntityImpl) {
		e.dedicate(ownerField)
	}
}

// WithDynamicFields keeps the class and the settings in dedicated fields
func WithDynamicFields() EntityDecoratorFunc {
	return func(e *EntityImpl) {
		e.dedicate(classField)
		e.dedicate(settingsField)
	}
}

// Permissive makes the entity follow changes to the features of its class,
// remapping its settings whenever the class installs a new feature list
func Permissive() EntityDecoratorFunc {
	return func(e *EntityImpl) {
		e.ensureLayout()
		e.flags |= permissiveLayout
	}
}

// Fixed disables dynamic settings and dynamic classes
func Fixed() EntityDecoratorFunc {
	return func(e *EntityImpl) {
		e.flags |= fixedLayout
	}
}

// StaticFeatures reserves the first n features of the class for values that
// are not kept in the settings array
func StaticFeatures(n int) EntityDecoratorFunc {
	return func(e *EntityImpl) {
		e.ensureLayout().staticFeatureCount = max(n, 0)
	}
}

func DynamicClass(c types.Class) EntityDecoratorFunc {
	return func(e *EntityImpl) {
		e.SetClass(c)
	}
}

func Proxy(uri *url.URL) EntityDecoratorFunc {
	return func(e *EntityImpl) {
		e.SetProxyURI(uri)
	}
}

func InResource(r types.Resource) EntityDecoratorFunc {
	return func(e *EntityImpl) {
		e.SetResource(r)
	}
}

func NoDeliver() EntityDecoratorFunc {
	return func(e *EntityImpl) {
		e.SetDeliver(false)
	}
}

func (e *EntityImpl) Deliver() bool {
	return e.flags&noDeliver == 0
}

func (e *EntityImpl) SetDeliver(deliver bool) {
	if deliver {
		e.flags &^= noDeliver
	} else {
		e.flags |= noDeliver
	}
}

func (e *EntityImpl) Owner() types.Entity {
	if e.dedicated(ownerField) {
		return e.layout.owner
	}
	return fieldAs[types.Entity](e, ownerField)
}

// OwnerFeatureID identifies the feature of the owner that holds this entity
func (e *EntityImpl) OwnerFeatureID() int {
	if e.Owner() == nil {
		return NoOwnerFeature
	}
	return int(int32(e.flags) >> ownerIDShift)
}

// SetOwner links the entity to its owner together with the id of the
// owning feature. A nil owner removes the link.
func (e *EntityImpl) SetOwner(owner types.Entity, featureID int) error {
	if owner == nil {
		featureID = 0
	} else if featureID <= math.MinInt16 || featureID > math.MaxInt16 {
		return errors.NewOutOfRangeError(featureID, math.MaxInt16+1)
	}

	e.flags = uint32(int32(featureID))<<ownerIDShift | e.flags&lowerFlagsMask

	if e.dedicated(ownerField) {
		e.layout.owner = owner
	} else if owner == nil {
		e.setField(ownerField, nil)
	} else {
		e.setField(ownerField, owner)
	}

	return nil
}

// Root follows the owner links up to the topmost entity
func (e *EntityImpl) Root() types.Entity {
	var root types.Entity = e
	for owner := root.Owner(); owner != nil; owner = owner.Owner() {
		root = owner
	}
	return root
}

// Class returns the class assigned at runtime, falling back to the static class
func (e *EntityImpl) Class() types.Class {
	if c := e.dynamicClass(); c != nil {
		return c
	}
	return e.static
}

func (e *EntityImpl) dynamicClass() types.Class {
	if e.dedicated(classField) {
		return e.layout.class
	}
	return fieldAs[types.Class](e, classField)
}

func (e *EntityImpl) SetClass(c types.Class) error {
	if e.flags&fixedLayout != 0 {
		return errors.NewUnsupportedError("entity has a fixed layout without a dynamic class")
	}

	if e.dedicated(classField) {
		e.layout.class = c
	} else if c == nil {
		e.setField(classField, nil)
	} else {
		e.setField(classField, c)
	}

	return nil
}

func (e *EntityImpl) HoldsDynamicClass() bool {
	return e.flags&fixedLayout == 0
}

func (e *EntityImpl) ProxyURI() *url.URL {
	return fieldAs[*url.URL](e, proxyField)
}

func (e *EntityImpl) IsProxy() bool {
	return e.hasField(proxyField)
}

func (e *EntityImpl) SetProxyURI(uri *url.URL) {
	if uri == nil {
		e.setField(proxyField, nil)
	} else {
		e.setField(proxyField, uri)
	}
}

// DirectResource is the resource holding this entity as one of its roots
func (e *EntityImpl) DirectResource() types.Resource {
	return fieldAs[types.Resource](e, resourceField)
}

func (e *EntityImpl) SetResource(r types.Resource) {
	if r == nil {
		e.setField(resourceField, nil)
	} else {
		e.setField(resourceField, r)
	}
}

// Resource returns the resource of this entity or of its closest owner that has one
func (e *EntityImpl) Resource() types.Resource {
	if r := e.DirectResource(); r != nil {
		return r
	}

	if owner := e.Owner(); owner != nil {
		return owner.Resource()
	}

	return nil
}
