package entities

import (
	"iter"
	"slices"

	"github.com/diwise/context-model/pkg/model/errors"
	"github.com/diwise/context-model/pkg/model/types"
	"github.com/diwise/context-model/pkg/model/types/notifications"
)

// ObserverList is a live view of the observers attached to an entity. The
// underlying arrays are replaced on every change, never modified in place,
// so callbacks always iterate over a stable snapshot.
type ObserverList struct {
	e *EntityImpl
}

func (e *EntityImpl) Observers() *ObserverList {
	return &ObserverList{e: e}
}

func (e *EntityImpl) observerArray() []types.Observer {
	return fieldAs[[]types.Observer](e, observersField)
}

func (e *EntityImpl) setObserverArray(observers []types.Observer) {
	if len(observers) == 0 {
		e.setField(observersField, nil)
	} else {
		e.setField(observersField, observers)
	}
}

func (e *EntityImpl) listenerArray() []types.ObserverListener {
	return fieldAs[[]types.ObserverListener](e, listenersField)
}

func (e *EntityImpl) setListenerArray(listeners []types.ObserverListener) {
	if len(listeners) == 0 {
		e.setField(listenersField, nil)
	} else {
		e.setField(listenersField, listeners)
	}
}

func (ol *ObserverList) Len() int {
	return len(ol.e.observerArray())
}

func (ol *ObserverList) At(index int) types.Observer {
	return ol.e.observerArray()[index]
}

func (ol *ObserverList) All() iter.Seq2[int, types.Observer] {
	return slices.All(ol.e.observerArray())
}

func (ol *ObserverList) IndexOf(o types.Observer) int {
	return slices.Index(ol.e.observerArray(), o)
}

func (ol *ObserverList) Contains(o types.Observer) bool {
	return ol.IndexOf(o) >= 0
}

// Add attaches o to the entity and tells every listener about it
func (ol *ObserverList) Add(o types.Observer) {
	observers := ol.e.observerArray()
	ol.e.setObserverArray(append(slices.Clip(observers), o))
	ol.e.didAddObserver(o)
}

// Remove detaches the first occurrence of o. Adding o back to the same entity
// from within a listener callback while it is being removed is not supported.
func (ol *ObserverList) Remove(o types.Observer) bool {
	idx := ol.IndexOf(o)
	if idx < 0 {
		return false
	}

	ol.removeAt(idx)
	return true
}

func (ol *ObserverList) RemoveAt(index int) (types.Observer, error) {
	if index < 0 || index >= ol.Len() {
		return nil, errors.NewOutOfRangeError(index, ol.Len())
	}

	return ol.removeAt(index), nil
}

func (ol *ObserverList) removeAt(index int) types.Observer {
	observers := ol.e.observerArray()
	removed := observers[index]

	ol.e.setObserverArray(slices.Delete(slices.Clone(observers), index, index+1))
	ol.e.didRemoveObserver(index, removed)

	return removed
}

// Clear detaches all observers, last one first
func (ol *ObserverList) Clear() {
	for n := ol.Len(); n > 0; n = ol.Len() {
		ol.removeAt(n - 1)
	}
}

// ObserverForType returns the first observer that claims to handle criterion
func (ol *ObserverList) ObserverForType(criterion any) types.Observer {
	for _, o := range ol.e.observerArray() {
		if o.IsObserverForType(criterion) {
			return o
		}
	}
	return nil
}

func (ol *ObserverList) AddListener(l types.ObserverListener) {
	listeners := ol.e.listenerArray()
	ol.e.setListenerArray(append(slices.Clip(listeners), l))
}

func (ol *ObserverList) RemoveListener(l types.ObserverListener) {
	listeners := ol.e.listenerArray()

	idx := slices.Index(listeners, l)
	if idx < 0 {
		return
	}

	ol.e.setListenerArray(slices.Delete(slices.Clone(listeners), idx, idx+1))
}

func (e *EntityImpl) didAddObserver(o types.Observer) {
	o.SetTarget(e)

	for _, l := range e.listenerArray() {
		l.Added(e, o)
	}
}

func (e *EntityImpl) didRemoveObserver(index int, o types.Observer) {
	for _, l := range e.listenerArray() {
		l.Removed(e, o)
	}

	if e.Deliver() {
		o.NotifyChanged(notifications.New(types.RemovingObserver, e, nil, o, nil, index))
	}

	if internal, ok := o.(types.InternalObserver); ok {
		internal.UnsetTarget(e)
	} else if o.Target() == types.Notifier(e) {
		o.SetTarget(nil)
	}
}

// Notify dispatches n to every attached observer, unless delivery is turned off
func (e *EntityImpl) Notify(n types.Notification) {
	if !e.Deliver() {
		return
	}

	for _, o := range e.observerArray() {
		o.NotifyChanged(n)
	}
}

// hasObservers tells if there is anyone to notify
func (e *EntityImpl) hasObservers() bool {
	return e.Deliver() && e.hasField(observersField)
}
