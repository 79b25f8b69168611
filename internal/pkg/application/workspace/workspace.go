package workspace

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"sync"

	"github.com/diwise/context-model/pkg/model/entities"
	"github.com/diwise/context-model/pkg/model/errors"
	"github.com/diwise/context-model/pkg/model/types"
	"github.com/diwise/context-model/pkg/model/types/classes"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("context-model/workspace")

// Workspace is the resource that owns all root entities of a model
type Workspace interface {
	types.Resource

	Classes(ctx context.Context) []types.Class

	CreateEntity(ctx context.Context, className, entityID string) (types.Entity, error)
	RetrieveEntity(ctx context.Context, entityID string) (types.Entity, error)
	UpdateEntityAttributes(ctx context.Context, entityID string, attributes map[string]any) error
	DeleteEntity(ctx context.Context, entityID string) error

	AddFeature(ctx context.Context, className string, fc FeatureConfig) error
	RemoveFeature(ctx context.Context, className, featureName string) error

	Describe(ctx context.Context, entityID string) (map[string]any, error)
	Contents(ctx context.Context, entityID string) ([]string, error)
	CrossReferences(ctx context.Context, entityID string) ([]string, error)
}

// ObserverFactory creates the observer that is attached to every new entity
type ObserverFactory interface {
	ObserverFor(ctx context.Context, entityID string) types.Observer
}

// SnapshotStore persists a description of an entity after every change
type SnapshotStore interface {
	Save(ctx context.Context, entityID, entityType string, body []byte) error
}

type registeredClass struct {
	class      *classes.ClassImpl
	decorators []entities.EntityDecoratorFunc
}

type workspaceImpl struct {
	mu  sync.Mutex
	uri string

	classes  map[string]registeredClass
	entities map[string]*entities.EntityImpl
	ids      map[*entities.EntityImpl]string

	observers ObserverFactory
	snapshots SnapshotStore
}

type WorkspaceDecoratorFunc func(ws *workspaceImpl)

func WithObservers(factory ObserverFactory) WorkspaceDecoratorFunc {
	return func(ws *workspaceImpl) {
		ws.observers = factory
	}
}

func WithSnapshots(store SnapshotStore) WorkspaceDecoratorFunc {
	return func(ws *workspaceImpl) {
		ws.snapshots = store
	}
}

func New(ctx context.Context, cfg Config, decorators ...WorkspaceDecoratorFunc) (Workspace, error) {
	ws := &workspaceImpl{
		uri:      cfg.URI,
		classes:  map[string]registeredClass{},
		entities: map[string]*entities.EntityImpl{},
		ids:      map[*entities.EntityImpl]string{},
	}

	if ws.uri == "" {
		ws.uri = DefaultURI
	}

	for _, cc := range cfg.Classes {
		if _, ok := ws.classes[cc.Name]; ok {
			return nil, errors.NewAlreadyExistsError(fmt.Sprintf("class %s is defined more than once", cc.Name))
		}

		c, err := cc.Class()
		if err != nil {
			return nil, err
		}

		layout, err := cc.Decorators()
		if err != nil {
			return nil, err
		}

		ws.classes[cc.Name] = registeredClass{class: c, decorators: layout}
	}

	for _, decorator := range decorators {
		decorator(ws)
	}

	logging.GetFromContext(ctx).Info("workspace created", "uri", ws.uri, "classes", len(ws.classes))

	return ws, nil
}

func (ws *workspaceImpl) URI() string {
	return ws.uri
}

func (ws *workspaceImpl) Classes(ctx context.Context) []types.Class {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	result := make([]types.Class, 0, len(ws.classes))
	for _, rc := range ws.classes {
		result = append(result, rc.class)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Name() < result[j].Name() })

	return result
}

func (ws *workspaceImpl) CreateEntity(ctx context.Context, className, entityID string) (types.Entity, error) {
	var err error

	ctx, span := tracer.Start(ctx, "create-entity", trace.WithAttributes(
		attribute.String(TraceAttributeEntityID, entityID),
		attribute.String(TraceAttributeClass, className),
	))
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	ws.mu.Lock()
	defer ws.mu.Unlock()

	rc, ok := ws.classes[className]
	if !ok {
		err = errors.NewNotFoundError(fmt.Sprintf("no class named %s", className))
		return nil, err
	}

	if entityID == "" {
		err = errors.NewBadRequestError("entity id must not be empty")
		return nil, err
	}

	e, exists := ws.entities[entityID]
	if exists && !e.IsProxy() {
		err = errors.NewAlreadyExistsError(fmt.Sprintf("entity %s already exists", entityID))
		return nil, err
	}

	if exists {
		// a proxy left by an earlier reference or deletion becomes the real
		// entity, keeping nothing but its identity
		e.Reset(rc.class, rc.decorators...)
	} else {
		e = entities.New(rc.class, rc.decorators...)
		ws.register(entityID, e)
	}

	e.SetResource(ws)

	if ws.observers != nil {
		e.Observers().Add(ws.observers.ObserverFor(ctx, entityID))
	}

	logging.GetFromContext(ctx).Debug("entity created", "entity_id", entityID, "class", className)

	err = ws.snapshot(ctx, entityID, e)

	return e, err
}

func (ws *workspaceImpl) register(entityID string, e *entities.EntityImpl) {
	ws.entities[entityID] = e
	ws.ids[e] = entityID
}

func (ws *workspaceImpl) RetrieveEntity(ctx context.Context, entityID string) (types.Entity, error) {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	return ws.entity(entityID)
}

func (ws *workspaceImpl) entity(entityID string) (*entities.EntityImpl, error) {
	e, ok := ws.entities[entityID]
	if !ok || e.IsProxy() {
		return nil, errors.NewNotFoundError(fmt.Sprintf("no entity with id %s", entityID))
	}
	return e, nil
}

func (ws *workspaceImpl) UpdateEntityAttributes(ctx context.Context, entityID string, attributes map[string]any) error {
	var err error

	ctx, span := tracer.Start(ctx, "update-entity-attributes", trace.WithAttributes(
		attribute.String(TraceAttributeEntityID, entityID),
	))
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	ws.mu.Lock()
	defer ws.mu.Unlock()

	e, err := ws.entity(entityID)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(attributes))
	for name := range attributes {
		names = append(names, name)
	}
	sort.Strings(names)

	type update struct {
		name  string
		value any
	}

	updates := make([]update, 0, len(names))
	proxies := map[string]*entities.EntityImpl{}

	// every value is resolved before the entity is touched
	for _, name := range names {
		f, _ := e.Class().Feature(name)
		if f == nil {
			err = errors.NewUnknownFeatureError(e.Class().Name(), name)
			return err
		}

		var value any
		value, err = ws.valueFor(e, f, attributes[name], proxies)
		if err != nil {
			return err
		}

		updates = append(updates, update{name: name, value: value})
	}

	for id, proxy := range proxies {
		ws.register(id, proxy)
	}

	contained := e.Contents()

	for _, u := range updates {
		if u.value == nil {
			err = e.Unset(u.name)
		} else {
			err = e.Set(u.name, u.value)
		}

		if err != nil {
			return fmt.Errorf("failed to update %s of %s: %w", u.name, entityID, err)
		}
	}

	// released children become roots of the workspace again
	for _, child := range contained {
		if impl, ok := child.(*entities.EntityImpl); ok && impl.Owner() == nil {
			impl.SetResource(ws)
		}
	}

	err = ws.snapshot(ctx, entityID, e)
	return err
}

// valueFor converts a decoded JSON value into what the feature holds.
// References are given as entity ids.
func (ws *workspaceImpl) valueFor(owner *entities.EntityImpl, f types.Feature, value any, proxies map[string]*entities.EntityImpl) (any, error) {
	if value == nil || !f.IsReference() {
		return value, nil
	}

	ids := []string{}

	switch typed := value.(type) {
	case string:
		ids = append(ids, typed)
	case []any:
		for _, v := range typed {
			id, ok := v.(string)
			if !ok {
				return nil, errors.NewBadRequestError(fmt.Sprintf("%s must refer to entities by id", f.Name()))
			}
			ids = append(ids, id)
		}
	default:
		return nil, errors.NewBadRequestError(fmt.Sprintf("%s must refer to entities by id", f.Name()))
	}

	targets := make([]types.Entity, 0, len(ids))
	for _, id := range ids {
		target, err := ws.referenceTo(owner, f, id, proxies)
		if err != nil {
			return nil, err
		}
		targets = append(targets, target)
	}

	if f.IsMany() {
		return targets, nil
	}

	if len(targets) != 1 {
		return nil, errors.NewBadRequestError(fmt.Sprintf("%s refers to a single entity", f.Name()))
	}

	return targets[0], nil
}

// referenceTo returns the entity with the given id. Cross references to
// unknown entities are represented by proxies that are resolved once the
// entity is created. New proxies are collected in proxies and left to the
// caller to register.
func (ws *workspaceImpl) referenceTo(owner *entities.EntityImpl, f types.Feature, entityID string, proxies map[string]*entities.EntityImpl) (types.Entity, error) {
	e, ok := ws.entities[entityID]

	if f.IsContainment() {
		if !ok || e.IsProxy() {
			return nil, errors.NewNotFoundError(fmt.Sprintf("no entity with id %s to contain", entityID))
		}

		if err := owner.CanContain(e); err != nil {
			return nil, err
		}

		return e, nil
	}

	if !ok {
		if e, ok = proxies[entityID]; !ok {
			e = entities.New(nil, entities.Proxy(ws.proxyURI(entityID)))
			proxies[entityID] = e
		}
	}

	return e, nil
}

func (ws *workspaceImpl) proxyURI(entityID string) *url.URL {
	u, err := url.Parse(ws.uri)
	if err != nil {
		u = &url.URL{Opaque: ws.uri}
	}
	u.Fragment = entityID
	return u
}

// resolve returns the entity a proxy stands in for, or the entity itself
func (ws *workspaceImpl) resolve(e types.Entity) types.Entity {
	if !e.IsProxy() {
		return e
	}

	uri := e.ProxyURI()
	base := *uri
	base.Fragment = ""

	if base.String() != ws.uri {
		return e
	}

	if target, ok := ws.entities[uri.Fragment]; ok && !target.IsProxy() {
		return target
	}

	return e
}

func (ws *workspaceImpl) DeleteEntity(ctx context.Context, entityID string) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	e, err := ws.entity(entityID)
	if err != nil {
		return err
	}

	if e.Owner() != nil {
		return errors.NewBadRequestError(fmt.Sprintf("entity %s is contained by another entity", entityID))
	}

	ws.deleteTree(ctx, entityID, e)

	return nil
}

// deleteTree turns the entity and everything it contains into proxies. Entities
// referring to them will see a proxy from now on.
func (ws *workspaceImpl) deleteTree(ctx context.Context, entityID string, e *entities.EntityImpl) {
	for _, child := range e.Contents() {
		if impl, ok := child.(*entities.EntityImpl); ok {
			impl.SetOwner(nil, 0)
			ws.deleteTree(ctx, ws.ids[impl], impl)
		}
	}

	e.Observers().Clear()
	e.Reset(nil, entities.Proxy(ws.proxyURI(entityID)))

	logging.GetFromContext(ctx).Debug("entity deleted", "entity_id", entityID)
}

func (ws *workspaceImpl) AddFeature(ctx context.Context, className string, fc FeatureConfig) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	rc, ok := ws.classes[className]
	if !ok {
		return errors.NewNotFoundError(fmt.Sprintf("no class named %s", className))
	}

	f, err := fc.Feature()
	if err != nil {
		return errors.NewBadRequestError(err.Error())
	}

	err = rc.class.AddFeature(f)
	if err != nil {
		return err
	}

	logging.GetFromContext(ctx).Info("feature added", "class", className, "feature", fc.Name)

	return nil
}

func (ws *workspaceImpl) RemoveFeature(ctx context.Context, className, featureName string) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	rc, ok := ws.classes[className]
	if !ok {
		return errors.NewNotFoundError(fmt.Sprintf("no class named %s", className))
	}

	err := rc.class.RemoveFeature(featureName)
	if err != nil {
		return err
	}

	logging.GetFromContext(ctx).Info("feature removed", "class", className, "feature", featureName)

	return nil
}

func (ws *workspaceImpl) Describe(ctx context.Context, entityID string) (map[string]any, error) {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	e, err := ws.entity(entityID)
	if err != nil {
		return nil, err
	}

	return ws.describe(entityID, e), nil
}

func (ws *workspaceImpl) describe(entityID string, e *entities.EntityImpl) map[string]any {
	contents := map[string]any{
		"id":   entityID,
		"type": e.Class().Name(),
	}

	if owner := e.Owner(); owner != nil {
		contents["owner"] = ws.idOf(owner)
	}

	fl := e.Class().Features()
	for i := range fl.Len() {
		f := fl.At(i)

		v, err := e.Get(f.Name())
		if err != nil || v == nil {
			continue
		}

		if f.IsReference() {
			v = ws.idsIn(v)
		}

		contents[f.Name()] = v
	}

	return contents
}

func (ws *workspaceImpl) idOf(e types.Entity) string {
	e = ws.resolve(e)

	if e.IsProxy() {
		return e.ProxyURI().String()
	}

	if impl, ok := e.(*entities.EntityImpl); ok {
		return ws.ids[impl]
	}

	return ""
}

func (ws *workspaceImpl) idsIn(value any) any {
	switch typed := value.(type) {
	case types.Entity:
		return ws.idOf(typed)
	case []types.Entity:
		ids := make([]string, 0, len(typed))
		for _, e := range typed {
			ids = append(ids, ws.idOf(e))
		}
		return ids
	}
	return value
}

func (ws *workspaceImpl) Contents(ctx context.Context, entityID string) ([]string, error) {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	e, err := ws.entity(entityID)
	if err != nil {
		return nil, err
	}

	return ws.idsIn(e.Contents()).([]string), nil
}

func (ws *workspaceImpl) CrossReferences(ctx context.Context, entityID string) ([]string, error) {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	e, err := ws.entity(entityID)
	if err != nil {
		return nil, err
	}

	return ws.idsIn(e.CrossReferences()).([]string), nil
}

func (ws *workspaceImpl) snapshot(ctx context.Context, entityID string, e *entities.EntityImpl) error {
	if ws.snapshots == nil {
		return nil
	}

	body, err := json.Marshal(ws.describe(entityID, e))
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot of %s: %w", entityID, err)
	}

	err = ws.snapshots.Save(ctx, entityID, e.Class().Name(), body)
	if err != nil {
		logging.GetFromContext(ctx).Error("failed to save snapshot", "entity_id", entityID, "err", err.Error())
		return fmt.Errorf("failed to save snapshot of %s: %w", entityID, err)
	}

	return nil
}

const (
	TraceAttributeEntityID string = "entity-id"
	TraceAttributeClass    string = "entity-class"
)
