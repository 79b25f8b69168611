package model

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/diwise/context-model/internal/pkg/application/workspace"
	"github.com/diwise/context-model/internal/pkg/presentation/api/model/auth"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("context-model/api")

func RegisterHandlers(ctx context.Context, r chi.Router, policies io.Reader, ws workspace.Workspace) error {

	authenticator, err := auth.NewAuthenticator(ctx, policies)
	if err != nil {
		return fmt.Errorf("failed to create api authenticator: %w", err)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(
			Logger(logging.GetFromContext(ctx)),
			RequiredContentTypes([]string{"application/json"}),
		)

		r.Route("/classes", func(r chi.Router) {
			r.Get("/", NewRetrieveClassesHandler(ws, authenticator))
			r.Post("/{className}/features", NewAddFeatureHandler(ws, authenticator))
			r.Delete("/{className}/features/{featureName}", NewRemoveFeatureHandler(ws, authenticator))
		})

		r.Route("/entities", func(r chi.Router) {
			r.Post("/", NewCreateEntityHandler(ws, authenticator))

			r.Route("/{entityId}", func(r chi.Router) {
				r.Get("/", NewRetrieveEntityHandler(ws, authenticator))
				r.Patch("/", NewUpdateEntityAttributesHandler(ws, authenticator))
				r.Delete("/", NewDeleteEntityHandler(ws, authenticator))

				r.Get("/contents", NewRetrieveContentsHandler(ws, authenticator))
				r.Get("/crossrefs", NewRetrieveCrossReferencesHandler(ws, authenticator))
			})
		})
	})

	return nil
}

func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			_, ctx, _ = o11y.AddTraceIDToLoggerAndStoreInContext(
				trace.SpanFromContext(ctx),
				logger,
				ctx)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func RequiredContentTypes(validTypes []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			contentType := r.Header.Get("Content-Type")
			isValidContentType := true

			if len(contentType) > 0 {
				isValidContentType = false

				for _, t := range validTypes {
					if strings.HasPrefix(contentType, t) {
						isValidContentType = true
						break
					}
				}
			}

			if isValidContentType {
				next.ServeHTTP(w, r)
			} else {
				http.Error(w, "unsupported media type", http.StatusUnsupportedMediaType)
			}
		})
	}
}

const (
	TraceAttributeEntityID string = "entity-id"
	TraceAttributeClass    string = "entity-class"
)
