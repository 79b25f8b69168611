package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/matryer/is"
)

func TestPreflightRequestsAreAnswered(t *testing.T) {
	is := is.New(t)

	r := New("context-model")
	r.Patch("/api/v1/entities/{entityId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/entities/book-1", nil)
	req.Header.Add("Origin", "http://example.com")
	req.Header.Add("Access-Control-Request-Method", http.MethodPatch)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	is.True(w.Header().Get("Access-Control-Allow-Origin") != "") // cors should answer the preflight
}

func TestRoutesAreServed(t *testing.T) {
	is := is.New(t)

	r := New("context-model")
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	is.Equal(w.Code, http.StatusOK)
}
