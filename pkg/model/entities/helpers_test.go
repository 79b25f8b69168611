package entities

import (
	"github.com/diwise/context-model/pkg/model/types"
	"github.com/diwise/context-model/pkg/model/types/classes"
	"github.com/diwise/context-model/pkg/model/types/features"
)

var _ types.Entity = &EntityImpl{}
var _ types.DynamicValueHolder = &EntityImpl{}
var _ types.DynamicClassHolder = &EntityImpl{}

type testObserver struct {
	target   types.Notifier
	handles  string
	received []types.Notification
}

func (o *testObserver) NotifyChanged(n types.Notification) {
	o.received = append(o.received, n)
}

func (o *testObserver) Target() types.Notifier {
	return o.target
}

func (o *testObserver) SetTarget(target types.Notifier) {
	o.target = target
}

func (o *testObserver) IsObserverForType(criterion any) bool {
	return criterion == o.handles
}

type internalObserver struct {
	testObserver
	unsetFrom []types.Notifier
}

func (o *internalObserver) UnsetTarget(target types.Notifier) {
	o.unsetFrom = append(o.unsetFrom, target)
	if o.target == target {
		o.target = nil
	}
}

type testListener struct {
	name      string
	events    *[]string
	onRemoved func(n types.Notifier, o types.Observer)
}

func (l *testListener) Added(n types.Notifier, o types.Observer) {
	*l.events = append(*l.events, l.name+":added")
}

func (l *testListener) Removed(n types.Notifier, o types.Observer) {
	*l.events = append(*l.events, l.name+":removed")
	if l.onRemoved != nil {
		l.onRemoved(n, o)
	}
}

type testResource struct {
	uri string
}

func (r *testResource) URI() string {
	return r.uri
}

func newLibraryClass() *classes.ClassImpl {
	return classes.New("Library",
		classes.F(features.NewAttribute("name")),
		classes.F(features.NewContainment("books", features.Many())),
		classes.F(features.NewReference("featured")),
		classes.F(features.NewContainment("address")),
	)
}

func newBookClass() *classes.ClassImpl {
	return classes.New("Book",
		classes.F(features.NewAttribute("title")),
		classes.F(features.NewAttribute("pages")),
		classes.F(features.NewAttribute("isbn")),
	)
}
