package subscriptions

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/diwise/context-model/pkg/model/types"
	"github.com/diwise/context-model/pkg/model/types/notifications"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
)

// Notifier forwards changes of observed entities to a remote endpoint
type Notifier interface {
	Start() error
	Stop() error

	ObserverFor(ctx context.Context, entityID string) types.Observer
}

var tracer = otel.Tracer("context-model/notifier")

type action func()

type notifier struct {
	mu       sync.Mutex
	started  bool
	endpoint string

	queue chan action
}

func NewNotifier(ctx context.Context, endpoint string) (Notifier, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("a notification endpoint is required")
	}

	return &notifier{
		endpoint: endpoint,
		queue:    make(chan action, 32),
	}, nil
}

func (n *notifier) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.started {
		return fmt.Errorf("already started")
	}

	n.started = true

	go n.run()

	return nil
}

func (n *notifier) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.started {
		n.started = false

		// Create a result channel so that we can wait for completion
		resultChan := make(chan bool)

		n.queue <- func() {
			// close the queue to signal the consumers that we are going out of business
			close(n.queue)
			resultChan <- true
		}

		// blocking read until our action has been processed
		<-resultChan
	}
	return nil
}

func (n *notifier) ObserverFor(ctx context.Context, entityID string) types.Observer {
	return &entityObserver{
		ctx:      ctx,
		entityID: entityID,
		notifier: n,
	}
}

func (n *notifier) enqueue(ctx context.Context, payload notifications.Payload) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.started {
		return
	}

	var err error

	logger := logging.GetFromContext(ctx)

	ctx, span := tracer.Start(
		tracing.ExtractHeaders(context.Background(), tracing.InjectHeaders(ctx)),
		"post",
	)

	n.queue <- func() {
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

		err = postNotification(ctx, payload, n.endpoint)
		if err != nil {
			logger.Error("failed to post notification", "entity_id", payload.EntityId, "err", err.Error())
		}
	}
}

func postNotification(ctx context.Context, payload notifications.Payload, endpoint string) error {
	body, err := payload.MarshalIndent()
	if err != nil {
		return fmt.Errorf("marshalling error (%w)", err)
	}

	httpClient := http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("unable to create new request (%w)", err)
	}

	req.Header.Add("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request (%w)", err)
	}

	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("notification endpoint responded with status code %d", resp.StatusCode)
	}

	return nil
}

func (n *notifier) run() {
	// repeat until the queue is closed
	for action := range n.queue {
		if action == nil {
			return
		}

		action()
	}
}

// ObserverType is the criterion that identifies observers created by a notifier
const ObserverType string = "notifier"

type entityObserver struct {
	ctx      context.Context
	entityID string
	target   types.Notifier
	notifier *notifier
}

func (o *entityObserver) NotifyChanged(n types.Notification) {
	if n.Kind() == types.RemovingObserver {
		return
	}

	entityType := ""
	if e, ok := n.Notifier().(types.Entity); ok && e.Class() != nil {
		entityType = e.Class().Name()
	}

	o.notifier.enqueue(o.ctx, notifications.NewPayload(n, o.entityID, entityType))
}

func (o *entityObserver) Target() types.Notifier {
	return o.target
}

func (o *entityObserver) SetTarget(target types.Notifier) {
	o.target = target
}

func (o *entityObserver) IsObserverForType(criterion any) bool {
	return criterion == ObserverType
}
