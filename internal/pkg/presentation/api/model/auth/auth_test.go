package auth

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/matryer/is"
)

func TestAccessIsGrantedByPolicy(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	a, err := NewAuthenticator(ctx, bytes.NewBufferString(policies))
	is.NoErr(err)

	r := httptest.NewRequest(http.MethodGet, "/api/v1/entities/book-1", nil)
	is.NoErr(a.CheckAccess(ctx, r, []string{"Book"}))
}

func TestAccessIsDeniedByPolicy(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	a, err := NewAuthenticator(ctx, bytes.NewBufferString(policies))
	is.NoErr(err)

	r := httptest.NewRequest(http.MethodDelete, "/api/v1/entities/book-1", nil)
	is.True(a.CheckAccess(ctx, r, []string{"Book"}) != nil) // deletes should require a token
}

func TestBrokenPoliciesAreRejected(t *testing.T) {
	is := is.New(t)

	_, err := NewAuthenticator(context.Background(), bytes.NewBufferString("package model.authz\n\nallow = {"))
	is.True(err != nil)
}

const policies string = `
package model.authz

default allow := false

allow = response {
    input.method != "DELETE"
    response := {}
}

allow = response {
    input.token != ""
    response := {}
}
`
