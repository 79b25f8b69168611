package model

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/diwise/context-model/internal/pkg/application/workspace"
	"github.com/diwise/context-model/internal/pkg/presentation/api/model/auth"
	"github.com/diwise/context-model/internal/pkg/presentation/api/model/problems"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// NewCreateEntityHandler handles POST requests with an entity id, a class name
// and any initial feature values
func NewCreateEntityHandler(ws workspace.Workspace, authenticator auth.Enticator) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "create-entity")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

		log := logging.GetFromContext(ctx)

		body := map[string]any{}
		err = json.NewDecoder(r.Body).Decode(&body)
		if err != nil {
			problems.NewInvalidRequest(fmt.Sprintf("unable to decode request payload: %s", err.Error())).WriteResponse(w)
			return
		}

		entityID, _ := body["id"].(string)
		entityType, _ := body["type"].(string)

		if entityID == "" || entityType == "" {
			problems.NewBadRequestData("both id and type are required").WriteResponse(w)
			return
		}

		span.SetAttributes(
			attribute.String(TraceAttributeEntityID, entityID),
			attribute.String(TraceAttributeClass, entityType),
		)

		err = authenticator.CheckAccess(ctx, r, []string{entityType})
		if err != nil {
			log.Warn("access not granted", "err", err.Error())
			problems.NewUnauthorizedRequest("not authorized to create entities of this type").WriteResponse(w)
			return
		}

		delete(body, "id")
		delete(body, "type")

		_, err = ws.CreateEntity(ctx, entityType, entityID)
		if err != nil {
			log.Error("failed to create entity", "entity_id", entityID, "err", err.Error())
			problems.ReportError(w, err)
			return
		}

		if len(body) > 0 {
			err = ws.UpdateEntityAttributes(ctx, entityID, body)
			if err != nil {
				log.Error("failed to set initial values", "entity_id", entityID, "err", err.Error())
				ws.DeleteEntity(ctx, entityID)
				problems.ReportError(w, err)
				return
			}
		}

		w.Header().Add("Location", "/api/v1/entities/"+url.PathEscape(entityID))
		w.WriteHeader(http.StatusCreated)
	})
}

// NewRetrieveEntityHandler handles GET requests for a single entity
func NewRetrieveEntityHandler(ws workspace.Workspace, authenticator auth.Enticator) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error

		entityID, _ := url.PathUnescape(chi.URLParam(r, "entityId"))

		ctx, span := tracer.Start(r.Context(), "retrieve-entity",
			trace.WithAttributes(attribute.String(TraceAttributeEntityID, entityID)),
		)
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

		description, err := ws.Describe(ctx, entityID)
		if err != nil {
			problems.ReportError(w, err)
			return
		}

		entityType, _ := description["type"].(string)

		err = authenticator.CheckAccess(ctx, r, []string{entityType})
		if err != nil {
			logging.GetFromContext(ctx).Warn("access not granted", "err", err.Error())
			messageToSendToNonAuthenticatedClients := "not found"
			problems.NewNotFound(messageToSendToNonAuthenticatedClients).WriteResponse(w)
			return
		}

		writeJSON(w, http.StatusOK, description)
	})
}

// NewUpdateEntityAttributesHandler handles PATCH requests that set or, with a
// null value, unset features of an entity
func NewUpdateEntityAttributesHandler(ws workspace.Workspace, authenticator auth.Enticator) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error

		entityID, _ := url.PathUnescape(chi.URLParam(r, "entityId"))

		ctx, span := tracer.Start(r.Context(), "update-entity-attributes",
			trace.WithAttributes(attribute.String(TraceAttributeEntityID, entityID)),
		)
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

		attributes := map[string]any{}
		err = json.NewDecoder(r.Body).Decode(&attributes)
		if err != nil {
			problems.NewInvalidRequest(fmt.Sprintf("unable to decode request payload: %s", err.Error())).WriteResponse(w)
			return
		}

		e, err := ws.RetrieveEntity(ctx, entityID)
		if err != nil {
			problems.ReportError(w, err)
			return
		}

		err = authenticator.CheckAccess(ctx, r, []string{e.Class().Name()})
		if err != nil {
			logging.GetFromContext(ctx).Warn("access not granted", "err", err.Error())
			problems.NewUnauthorizedRequest("not authorized to update this entity").WriteResponse(w)
			return
		}

		err = ws.UpdateEntityAttributes(ctx, entityID, attributes)
		if err != nil {
			logging.GetFromContext(ctx).Error("failed to update entity", "entity_id", entityID, "err", err.Error())
			problems.ReportError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	})
}

// NewDeleteEntityHandler handles DELETE requests for root entities
func NewDeleteEntityHandler(ws workspace.Workspace, authenticator auth.Enticator) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error

		entityID, _ := url.PathUnescape(chi.URLParam(r, "entityId"))

		ctx, span := tracer.Start(r.Context(), "delete-entity",
			trace.WithAttributes(attribute.String(TraceAttributeEntityID, entityID)),
		)
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

		e, err := ws.RetrieveEntity(ctx, entityID)
		if err != nil {
			problems.ReportError(w, err)
			return
		}

		err = authenticator.CheckAccess(ctx, r, []string{e.Class().Name()})
		if err != nil {
			logging.GetFromContext(ctx).Warn("access not granted", "err", err.Error())
			problems.NewUnauthorizedRequest("not authorized to delete this entity").WriteResponse(w)
			return
		}

		err = ws.DeleteEntity(ctx, entityID)
		if err != nil {
			problems.ReportError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	})
}

func NewRetrieveContentsHandler(ws workspace.Workspace, authenticator auth.Enticator) http.HandlerFunc {
	return newEntityListHandler("retrieve-contents", ws, authenticator, ws.Contents)
}

func NewRetrieveCrossReferencesHandler(ws workspace.Workspace, authenticator auth.Enticator) http.HandlerFunc {
	return newEntityListHandler("retrieve-crossrefs", ws, authenticator, ws.CrossReferences)
}

type entityListFunc func(ctx context.Context, entityID string) ([]string, error)

func newEntityListHandler(operation string, ws workspace.Workspace, authenticator auth.Enticator, list entityListFunc) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error

		entityID, _ := url.PathUnescape(chi.URLParam(r, "entityId"))

		ctx, span := tracer.Start(r.Context(), operation,
			trace.WithAttributes(attribute.String(TraceAttributeEntityID, entityID)),
		)
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

		e, err := ws.RetrieveEntity(ctx, entityID)
		if err != nil {
			problems.ReportError(w, err)
			return
		}

		err = authenticator.CheckAccess(ctx, r, []string{e.Class().Name()})
		if err != nil {
			problems.NewNotFound("not found").WriteResponse(w)
			return
		}

		ids, err := list(ctx, entityID)
		if err != nil {
			problems.ReportError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, ids)
	})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	b, err := json.Marshal(body)
	if err != nil {
		problems.NewInternalError(err.Error()).WriteResponse(w)
		return
	}

	w.Header().Add("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(b)
}
