package subscriptions

import (
	"context"
	"net/http"
	"testing"

	"github.com/diwise/context-model/pkg/model/entities"
	"github.com/diwise/context-model/pkg/model/types/classes"
	"github.com/diwise/context-model/pkg/model/types/features"
	testutils "github.com/diwise/service-chassis/pkg/test/http"
	"github.com/diwise/service-chassis/pkg/test/http/expects"
	"github.com/diwise/service-chassis/pkg/test/http/response"
	"github.com/matryer/is"
)

var Expects = testutils.Expects
var Returns = testutils.Returns

var method = expects.RequestMethod
var bodyContaining = expects.RequestBodyContaining

func TestSingleNotificationOnSet(t *testing.T) {
	is := is.New(t)
	const entityID string = "urn:diwise:Lifebuoy:mybuoy"

	s := testutils.NewMockServiceThat(
		Expects(
			is,
			method(http.MethodPost),
			bodyContaining(entityID, `"feature": "status"`),
		),
		Returns(
			response.Code(http.StatusOK),
		),
	)
	defer s.Close()

	ctx := context.Background()
	n, err := NewNotifier(ctx, s.URL())
	is.NoErr(err)

	is.NoErr(n.Start())

	e := newLifebuoy()
	e.Observers().Add(n.ObserverFor(ctx, entityID))

	is.NoErr(e.Set("status", "off"))

	n.Stop()

	is.Equal(s.RequestCount(), 1)
}

func TestRemovingTheObserverIsNotPosted(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(is, method(http.MethodPost)),
		Returns(response.Code(http.StatusOK)),
	)
	defer s.Close()

	ctx := context.Background()
	n, _ := NewNotifier(ctx, s.URL())
	n.Start()

	e := newLifebuoy()
	o := n.ObserverFor(ctx, "urn:diwise:Lifebuoy:mybuoy")
	e.Observers().Add(o)
	e.Observers().Remove(o)

	n.Stop()

	is.Equal(s.RequestCount(), 0)
	is.Equal(o.Target(), nil)
}

func TestNothingIsPostedBeforeStart(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(is, method(http.MethodPost)),
		Returns(response.Code(http.StatusOK)),
	)
	defer s.Close()

	ctx := context.Background()
	n, _ := NewNotifier(ctx, s.URL())

	e := newLifebuoy()
	e.Observers().Add(n.ObserverFor(ctx, "urn:diwise:Lifebuoy:mybuoy"))
	is.NoErr(e.Set("status", "on"))

	is.NoErr(n.Stop())
	is.Equal(s.RequestCount(), 0)
}

func TestNotifierRequiresAnEndpoint(t *testing.T) {
	is := is.New(t)

	_, err := NewNotifier(context.Background(), "")
	is.True(err != nil)
}

func TestObserverIsFoundByType(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	n, _ := NewNotifier(ctx, "http://localhost")
	e := newLifebuoy()
	o := n.ObserverFor(ctx, "urn:diwise:Lifebuoy:mybuoy")
	e.Observers().Add(o)

	is.True(e.Observers().ObserverForType(ObserverType) == o)
}

func newLifebuoy() *entities.EntityImpl {
	return entities.New(classes.New("Lifebuoy", classes.F(features.NewAttribute("status"))))
}

func TestStartingTwiceFails(t *testing.T) {
	is := is.New(t)

	n, _ := NewNotifier(context.Background(), "http://localhost")
	is.NoErr(n.Start())
	is.True(n.Start() != nil)
	is.NoErr(n.Stop())
}
