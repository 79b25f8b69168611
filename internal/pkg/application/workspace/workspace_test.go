package workspace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	modelerrors "github.com/diwise/context-model/pkg/model/errors"
	"github.com/diwise/context-model/pkg/model/types"
	"github.com/matryer/is"
)

func TestNewWithEmptyConfig(t *testing.T) {
	is := is.New(t)

	ws, err := New(context.Background(), Config{})
	is.NoErr(err)
	is.Equal(ws.URI(), DefaultURI)
}

func TestThatDuplicateClassesAreRejected(t *testing.T) {
	is := is.New(t)

	_, err := New(context.Background(), Config{Classes: []ClassConfig{{Name: "Book"}, {Name: "Book"}}})
	is.True(errors.Is(err, modelerrors.ErrAlreadyExists))
}

func TestClassesAreSortedByName(t *testing.T) {
	is, ctx, ws := setupWorkspaceTest(t)

	classes := ws.Classes(ctx)
	is.Equal(len(classes), 2)
	is.Equal(classes[0].Name(), "Book")
	is.Equal(classes[1].Name(), "Library")
}

func TestCreateAndRetrieveEntity(t *testing.T) {
	is, ctx, ws := setupWorkspaceTest(t)

	created, err := ws.CreateEntity(ctx, "Book", "book-1")
	is.NoErr(err)

	retrieved, err := ws.RetrieveEntity(ctx, "book-1")
	is.NoErr(err)
	is.True(created == retrieved)
	is.Equal(retrieved.Resource().URI(), "urn:diwise:workspace:test")
}

func TestThatCreateEntityWithUnknownClassFails(t *testing.T) {
	is, ctx, ws := setupWorkspaceTest(t)

	_, err := ws.CreateEntity(ctx, "Unknown", "book-1")
	is.True(errors.Is(err, modelerrors.ErrNotFound))
}

func TestThatCreateEntityTwiceFails(t *testing.T) {
	is, ctx, ws := setupWorkspaceTest(t)

	_, err := ws.CreateEntity(ctx, "Book", "book-1")
	is.NoErr(err)

	_, err = ws.CreateEntity(ctx, "Book", "book-1")
	is.True(errors.Is(err, modelerrors.ErrAlreadyExists))
}

func TestUpdateAttributes(t *testing.T) {
	is, ctx, ws := setupWorkspaceTest(t)
	ws.CreateEntity(ctx, "Book", "book-1")

	err := ws.UpdateEntityAttributes(ctx, "book-1", map[string]any{"title": "Dune", "pages": float64(412)})
	is.NoErr(err)

	desc, err := ws.Describe(ctx, "book-1")
	is.NoErr(err)
	is.Equal(desc["type"], "Book")
	is.Equal(desc["title"], "Dune")
	is.Equal(desc["pages"], float64(412))

	err = ws.UpdateEntityAttributes(ctx, "book-1", map[string]any{"title": nil})
	is.NoErr(err)

	desc, _ = ws.Describe(ctx, "book-1")
	_, ok := desc["title"]
	is.True(!ok) // unset attributes should not be described
}

func TestThatUpdateOfUnknownFeatureFails(t *testing.T) {
	is, ctx, ws := setupWorkspaceTest(t)
	ws.CreateEntity(ctx, "Book", "book-1")

	err := ws.UpdateEntityAttributes(ctx, "book-1", map[string]any{"color": "red"})
	is.True(errors.Is(err, modelerrors.ErrUnknownFeature))
}

func TestContainmentByID(t *testing.T) {
	is, ctx, ws := setupWorkspaceTest(t)
	ws.CreateEntity(ctx, "Library", "library-1")
	ws.CreateEntity(ctx, "Book", "book-1")
	ws.CreateEntity(ctx, "Book", "book-2")

	err := ws.UpdateEntityAttributes(ctx, "library-1", map[string]any{"books": []any{"book-1", "book-2"}})
	is.NoErr(err)

	contents, err := ws.Contents(ctx, "library-1")
	is.NoErr(err)
	is.Equal(contents, []string{"book-1", "book-2"})

	book, _ := ws.RetrieveEntity(ctx, "book-2")
	is.Equal(book.Resource().URI(), "urn:diwise:workspace:test") // resource comes from the owner

	desc, _ := ws.Describe(ctx, "book-1")
	is.Equal(desc["owner"], "library-1")

	err = ws.DeleteEntity(ctx, "book-1")
	is.True(errors.Is(err, modelerrors.ErrBadRequest)) // contained entities can not be deleted
}

func TestThatContainmentOfUnknownEntityFails(t *testing.T) {
	is, ctx, ws := setupWorkspaceTest(t)
	ws.CreateEntity(ctx, "Library", "library-1")

	err := ws.UpdateEntityAttributes(ctx, "library-1", map[string]any{"books": []any{"book-1"}})
	is.True(errors.Is(err, modelerrors.ErrNotFound))
}

func TestCrossReferenceToUnknownEntityIsAProxy(t *testing.T) {
	is, ctx, ws := setupWorkspaceTest(t)
	ws.CreateEntity(ctx, "Library", "library-1")

	err := ws.UpdateEntityAttributes(ctx, "library-1", map[string]any{"featured": "book-9"})
	is.NoErr(err)

	desc, _ := ws.Describe(ctx, "library-1")
	is.Equal(desc["featured"], "urn:diwise:workspace:test#book-9")

	_, err = ws.RetrieveEntity(ctx, "book-9")
	is.True(errors.Is(err, modelerrors.ErrNotFound)) // proxies are not entities of their own

	_, err = ws.CreateEntity(ctx, "Book", "book-9")
	is.NoErr(err)

	desc, _ = ws.Describe(ctx, "library-1")
	is.Equal(desc["featured"], "book-9") // the proxy should be resolved

	crossrefs, _ := ws.CrossReferences(ctx, "library-1")
	is.Equal(crossrefs, []string{"book-9"})
}

func TestDeletedEntitiesBecomeProxies(t *testing.T) {
	is, ctx, ws := setupWorkspaceTest(t)
	ws.CreateEntity(ctx, "Library", "library-1")
	ws.CreateEntity(ctx, "Book", "book-1")
	ws.UpdateEntityAttributes(ctx, "library-1", map[string]any{"featured": "book-1"})

	is.NoErr(ws.DeleteEntity(ctx, "book-1"))

	_, err := ws.RetrieveEntity(ctx, "book-1")
	is.True(errors.Is(err, modelerrors.ErrNotFound))

	desc, _ := ws.Describe(ctx, "library-1")
	is.Equal(desc["featured"], "urn:diwise:workspace:test#book-1")
}

func TestFeaturesCanBeAddedToPermissiveClasses(t *testing.T) {
	is, ctx, ws := setupWorkspaceTest(t)
	ws.CreateEntity(ctx, "Library", "library-1")
	ws.UpdateEntityAttributes(ctx, "library-1", map[string]any{"name": "Stadsbiblioteket"})

	err := ws.AddFeature(ctx, "Library", FeatureConfig{Name: "city"})
	is.NoErr(err)

	err = ws.UpdateEntityAttributes(ctx, "library-1", map[string]any{"city": "Sundsvall"})
	is.NoErr(err)

	is.NoErr(ws.RemoveFeature(ctx, "Library", "name"))

	desc, _ := ws.Describe(ctx, "library-1")
	is.Equal(desc["city"], "Sundsvall")
	_, ok := desc["name"]
	is.True(!ok)

	err = ws.AddFeature(ctx, "Library", FeatureConfig{Name: "city"})
	is.True(errors.Is(err, modelerrors.ErrAlreadyExists))
}

func TestRemovingAFeatureFromAMinimalClass(t *testing.T) {
	is, ctx, ws := setupWorkspaceTest(t)
	ws.CreateEntity(ctx, "Book", "book-1")
	ws.UpdateEntityAttributes(ctx, "book-1", map[string]any{"title": "Dune", "pages": float64(412)})

	is.NoErr(ws.RemoveFeature(ctx, "Book", "title"))

	desc, err := ws.Describe(ctx, "book-1")
	is.NoErr(err)
	is.Equal(desc["pages"], float64(412)) // values should follow their features
	_, ok := desc["title"]
	is.True(!ok)
	_, ok = desc["authors"]
	is.True(!ok)

	is.NoErr(ws.AddFeature(ctx, "Book", FeatureConfig{Name: "isbn"}))
	is.NoErr(ws.UpdateEntityAttributes(ctx, "book-1", map[string]any{"isbn": "978-0441172719"}))

	desc, _ = ws.Describe(ctx, "book-1")
	is.Equal(desc["pages"], float64(412))
	is.Equal(desc["isbn"], "978-0441172719")
}

func TestProxiesAreRevivedWithTheLayoutOfTheirClass(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	ws, err := New(ctx, Config{Classes: []ClassConfig{
		{Name: "Shelf", Layout: "fixed"},
		{Name: "Library", Features: []FeatureConfig{{Name: "shelf", Kind: "reference"}}},
	}})
	is.NoErr(err)

	ws.CreateEntity(ctx, "Library", "library-1")
	is.NoErr(ws.UpdateEntityAttributes(ctx, "library-1", map[string]any{"shelf": "shelf-1"}))

	shelf, err := ws.CreateEntity(ctx, "Shelf", "shelf-1")
	is.NoErr(err)
	is.True(!shelf.IsProxy())
	is.True(!shelf.(types.DynamicValueHolder).HoldsDynamicSettings()) // fixed layouts have no settings

	desc, _ := ws.Describe(ctx, "library-1")
	is.Equal(desc["shelf"], "shelf-1")
}

func TestRecreatedEntitiesKeepNothingFromBefore(t *testing.T) {
	is, ctx, ws := setupWorkspaceTest(t)
	ws.CreateEntity(ctx, "Book", "x")
	ws.UpdateEntityAttributes(ctx, "x", map[string]any{"title": "Dune"})

	is.NoErr(ws.DeleteEntity(ctx, "x"))

	_, err := ws.CreateEntity(ctx, "Library", "x")
	is.NoErr(err)

	desc, err := ws.Describe(ctx, "x")
	is.NoErr(err)
	is.Equal(desc["type"], "Library")
	_, ok := desc["name"]
	is.True(!ok) // the title of the deleted book should be gone
}

func TestContainmentCyclesAreRejected(t *testing.T) {
	is, ctx, ws := setupWorkspaceTest(t)
	ws.CreateEntity(ctx, "Library", "library-1")
	ws.CreateEntity(ctx, "Library", "library-2")

	err := ws.UpdateEntityAttributes(ctx, "library-1", map[string]any{"books": []any{"library-1"}})
	is.True(errors.Is(err, modelerrors.ErrBadRequest))

	is.NoErr(ws.UpdateEntityAttributes(ctx, "library-1", map[string]any{"books": []any{"library-2"}}))

	err = ws.UpdateEntityAttributes(ctx, "library-2", map[string]any{"books": []any{"library-1"}})
	is.True(errors.Is(err, modelerrors.ErrBadRequest))

	contents, _ := ws.Contents(ctx, "library-2")
	is.Equal(len(contents), 0)

	library, _ := ws.RetrieveEntity(ctx, "library-1")
	is.Equal(library.Owner(), nil)
	is.Equal(library.Resource().URI(), "urn:diwise:workspace:test")
}

func TestFailedUpdatesLeaveEverythingUntouched(t *testing.T) {
	is, ctx, ws := setupWorkspaceTest(t)
	ws.CreateEntity(ctx, "Library", "library-1")
	ws.CreateEntity(ctx, "Book", "book-1")

	err := ws.UpdateEntityAttributes(ctx, "library-1", map[string]any{"books": []any{"book-1", "missing"}})
	is.True(errors.Is(err, modelerrors.ErrNotFound))

	book, _ := ws.RetrieveEntity(ctx, "book-1")
	is.Equal(book.Owner(), nil)
	is.Equal(book.Resource().URI(), "urn:diwise:workspace:test") // book-1 should still be a root

	err = ws.UpdateEntityAttributes(ctx, "library-1", map[string]any{"books": []any{"book-1"}, "featured": float64(42)})
	is.True(errors.Is(err, modelerrors.ErrBadRequest))

	is.Equal(book.Owner(), nil)
	contents, _ := ws.Contents(ctx, "library-1")
	is.Equal(len(contents), 0) // books is applied only if every attribute is valid
}

func TestReleasedChildrenBecomeRootsAgain(t *testing.T) {
	is, ctx, ws := setupWorkspaceTest(t)
	ws.CreateEntity(ctx, "Library", "library-1")
	ws.CreateEntity(ctx, "Book", "book-1")

	is.NoErr(ws.UpdateEntityAttributes(ctx, "library-1", map[string]any{"books": []any{"book-1"}}))
	is.NoErr(ws.UpdateEntityAttributes(ctx, "library-1", map[string]any{"books": []any{}}))

	book, _ := ws.RetrieveEntity(ctx, "book-1")
	is.Equal(book.Owner(), nil)
	is.Equal(book.Resource().URI(), "urn:diwise:workspace:test")
	is.NoErr(ws.DeleteEntity(ctx, "book-1"))
}

func TestDeletingAnEntityDeletesItsContents(t *testing.T) {
	is, ctx, ws := setupWorkspaceTest(t)
	ws.CreateEntity(ctx, "Library", "library-1")
	ws.CreateEntity(ctx, "Book", "book-1")
	ws.UpdateEntityAttributes(ctx, "library-1", map[string]any{"books": []any{"book-1"}})

	is.NoErr(ws.DeleteEntity(ctx, "library-1"))

	_, err := ws.RetrieveEntity(ctx, "book-1")
	is.True(errors.Is(err, modelerrors.ErrNotFound))

	_, err = ws.CreateEntity(ctx, "Book", "book-1")
	is.NoErr(err)
}

func TestSnapshotsAreSaved(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	store := &snapshotRecorder{}

	ws, err := New(ctx, testConfig(is), WithSnapshots(store))
	is.NoErr(err)

	ws.CreateEntity(ctx, "Book", "book-1")
	ws.UpdateEntityAttributes(ctx, "book-1", map[string]any{"title": "Dune"})

	is.Equal(len(store.saved), 2)
	is.Equal(store.types[1], "Book")

	desc := map[string]any{}
	is.NoErr(json.Unmarshal(store.saved[1], &desc))
	is.Equal(desc["title"], "Dune")
}

func TestObserversAreAttachedToNewEntities(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	factory := &observerFactory{}

	ws, err := New(ctx, testConfig(is), WithObservers(factory))
	is.NoErr(err)

	ws.CreateEntity(ctx, "Book", "book-1")
	ws.UpdateEntityAttributes(ctx, "book-1", map[string]any{"title": "Dune"})

	is.Equal(len(factory.created), 1)
	o := factory.created[0]
	is.Equal(len(o.received), 1)
	is.Equal(o.received[0].Kind(), types.Set)
}

type snapshotRecorder struct {
	saved [][]byte
	types []string
}

func (s *snapshotRecorder) Save(ctx context.Context, entityID, entityType string, body []byte) error {
	s.saved = append(s.saved, body)
	s.types = append(s.types, entityType)
	return nil
}

type recordingObserver struct {
	target   types.Notifier
	received []types.Notification
}

func (o *recordingObserver) NotifyChanged(n types.Notification) { o.received = append(o.received, n) }
func (o *recordingObserver) Target() types.Notifier             { return o.target }
func (o *recordingObserver) SetTarget(target types.Notifier)    { o.target = target }
func (o *recordingObserver) IsObserverForType(any) bool         { return false }

type observerFactory struct {
	created []*recordingObserver
}

func (f *observerFactory) ObserverFor(ctx context.Context, entityID string) types.Observer {
	o := &recordingObserver{}
	f.created = append(f.created, o)
	return o
}

func testConfig(is *is.I) Config {
	cfg, err := LoadConfiguration(bytes.NewBufferString(configFile))
	is.NoErr(err)
	return *cfg
}

func setupWorkspaceTest(t *testing.T) (*is.I, context.Context, Workspace) {
	is := is.New(t)
	ctx := context.Background()

	ws, err := New(ctx, testConfig(is))
	is.NoErr(err)

	return is, ctx, ws
}
