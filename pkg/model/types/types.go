package types

import "net/url"

// Feature is a named, positioned slot defined by a class
type Feature interface {
	Name() string
	IsReference() bool
	IsContainment() bool
	IsMany() bool
}

// FeatureList is an immutable, ordered list of features. Two lists are the same
// list only if they are the same value, implementations are expected to be
// pointer types so that identity can be compared with ==.
type FeatureList interface {
	Len() int
	At(index int) Feature
	IndexOf(f Feature) int
}

type Class interface {
	Name() string
	FeatureCount() int
	Features() FeatureList
	Feature(name string) (Feature, int)
}

type Resource interface {
	URI() string
}

type EventKind int

const (
	Set EventKind = iota
	Unset
	Add
	Remove
	Move
	RemovingObserver
)

func (k EventKind) String() string {
	switch k {
	case Set:
		return "Set"
	case Unset:
		return "Unset"
	case Add:
		return "Add"
	case Remove:
		return "Remove"
	case Move:
		return "Move"
	case RemovingObserver:
		return "RemovingObserver"
	}
	return "Unknown"
}

type Notification interface {
	Kind() EventKind
	Notifier() Notifier
	Feature() Feature
	OldValue() any
	NewValue() any
	Position() int
}

// Notifier is anything observers can be attached to
type Notifier interface {
	Deliver() bool
	Notify(n Notification)
}

type Observer interface {
	NotifyChanged(n Notification)
	Target() Notifier
	SetTarget(target Notifier)
	IsObserverForType(criterion any) bool
}

// InternalObserver is implemented by observers that want to be told which
// notifier they are being detached from
type InternalObserver interface {
	Observer
	UnsetTarget(target Notifier)
}

// ObserverListener is told about every observer added to or removed from a notifier
type ObserverListener interface {
	Added(n Notifier, o Observer)
	Removed(n Notifier, o Observer)
}

type Entity interface {
	Notifier

	Class() Class
	Owner() Entity
	OwnerFeatureID() int
	Resource() Resource
	ProxyURI() *url.URL
	IsProxy() bool

	Get(name string) (any, error)
	Set(name string, value any) error
	Unset(name string) error
	IsSet(name string) bool

	Contents() []Entity
	CrossReferences() []Entity
}

// DynamicValueHolder is implemented by entities that keep feature values in
// a positional settings array
type DynamicValueHolder interface {
	HoldsDynamicSettings() bool
	DynamicGet(position int) (any, error)
	DynamicSet(position int, value any) error
	DynamicUnset(position int) error
}

// DynamicClassHolder is implemented by entities whose class can be assigned at runtime
type DynamicClassHolder interface {
	HoldsDynamicClass() bool
	SetClass(c Class) error
}
