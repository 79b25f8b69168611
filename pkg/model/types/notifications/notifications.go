package notifications

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/diwise/context-model/pkg/model/types"
	"github.com/google/uuid"
)

// NotificationImpl describes a single change of a notifier. The entity only
// constructs and dispatches these, interpretation is left to the observer.
type NotificationImpl struct {
	id         string
	kind       types.EventKind
	notifier   types.Notifier
	feature    types.Feature
	oldValue   any
	newValue   any
	position   int
	notifiedAt time.Time
}

// NoPosition is used for notifications about single valued features
const NoPosition int = -1

func New(kind types.EventKind, notifier types.Notifier, feature types.Feature, oldValue, newValue any, position int) *NotificationImpl {
	return &NotificationImpl{
		id:         fmt.Sprintf("urn:diwise:Notification:%s", uuid.New().String()),
		kind:       kind,
		notifier:   notifier,
		feature:    feature,
		oldValue:   oldValue,
		newValue:   newValue,
		position:   position,
		notifiedAt: time.Now().UTC(),
	}
}

func (n *NotificationImpl) ID() string {
	return n.id
}

func (n *NotificationImpl) Kind() types.EventKind {
	return n.kind
}

func (n *NotificationImpl) Notifier() types.Notifier {
	return n.notifier
}

// Feature is nil for notifications that are not about a feature value
func (n *NotificationImpl) Feature() types.Feature {
	return n.feature
}

func (n *NotificationImpl) OldValue() any {
	return n.oldValue
}

func (n *NotificationImpl) NewValue() any {
	return n.newValue
}

func (n *NotificationImpl) Position() int {
	return n.position
}

func (n *NotificationImpl) NotifiedAt() time.Time {
	return n.notifiedAt
}

// Payload is the wire representation of a notification. The notifier itself is
// described by the caller since entities carry no identity of their own.
type Payload struct {
	Id         string `json:"id"`
	Type       string `json:"type"`
	Kind       string `json:"kind"`
	EntityId   string `json:"entityId,omitempty"`
	EntityType string `json:"entityType,omitempty"`
	Feature    string `json:"feature,omitempty"`
	Position   int    `json:"position"`
	Value      any    `json:"value,omitempty"`
	NotifiedAt string `json:"notifiedAt"`
}

func NewPayload(n types.Notification, entityID, entityType string) Payload {
	p := Payload{
		Type:       "Notification",
		Kind:       n.Kind().String(),
		EntityId:   entityID,
		EntityType: entityType,
		Position:   n.Position(),
		Value:      describeValue(n.NewValue()),
	}

	if f := n.Feature(); f != nil {
		p.Feature = f.Name()
	}

	if impl, ok := n.(*NotificationImpl); ok {
		p.Id = impl.ID()
		p.NotifiedAt = impl.NotifiedAt().Format(time.RFC3339Nano)
	} else {
		p.Id = fmt.Sprintf("urn:diwise:Notification:%s", uuid.New().String())
		p.NotifiedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}

	return p
}

func (p Payload) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(p, "", " ")
}

func describeValue(v any) any {
	switch v.(type) {
	case nil, string, bool, int, int64, float64, []string:
		return v
	default:
		return fmt.Sprintf("%T", v)
	}
}
