package model

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/diwise/context-model/internal/pkg/application/workspace"
	"github.com/diwise/context-model/internal/pkg/presentation/api/model/auth"
	"github.com/diwise/context-model/internal/pkg/presentation/api/model/problems"
	"github.com/diwise/context-model/pkg/model/types"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type classDescription struct {
	Name     string                    `json:"name"`
	Features []workspace.FeatureConfig `json:"features"`
}

func describeClass(c types.Class) classDescription {
	desc := classDescription{
		Name:     c.Name(),
		Features: []workspace.FeatureConfig{},
	}

	fl := c.Features()
	for i := range fl.Len() {
		f := fl.At(i)

		kind := "attribute"
		if f.IsContainment() {
			kind = "containment"
		} else if f.IsReference() {
			kind = "reference"
		}

		desc.Features = append(desc.Features, workspace.FeatureConfig{Name: f.Name(), Kind: kind, Many: f.IsMany()})
	}

	return desc
}

// NewRetrieveClassesHandler handles GET requests for the classes known to the workspace
func NewRetrieveClassesHandler(ws workspace.Workspace, authenticator auth.Enticator) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "retrieve-classes")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

		err = authenticator.CheckAccess(ctx, r, []string{})
		if err != nil {
			logging.GetFromContext(ctx).Warn("access not granted", "err", err.Error())
			problems.NewNotFound("not found").WriteResponse(w)
			return
		}

		classes := []classDescription{}
		for _, c := range ws.Classes(ctx) {
			classes = append(classes, describeClass(c))
		}

		writeJSON(w, http.StatusOK, classes)
	})
}

// NewAddFeatureHandler handles POST requests that add a feature to a class
func NewAddFeatureHandler(ws workspace.Workspace, authenticator auth.Enticator) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error

		className := chi.URLParam(r, "className")

		ctx, span := tracer.Start(r.Context(), "add-feature",
			trace.WithAttributes(attribute.String(TraceAttributeClass, className)),
		)
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

		fc := workspace.FeatureConfig{}
		err = json.NewDecoder(r.Body).Decode(&fc)
		if err != nil {
			problems.NewInvalidRequest(fmt.Sprintf("unable to decode request payload: %s", err.Error())).WriteResponse(w)
			return
		}

		err = authenticator.CheckAccess(ctx, r, []string{className})
		if err != nil {
			logging.GetFromContext(ctx).Warn("access not granted", "err", err.Error())
			problems.NewUnauthorizedRequest("not authorized to change this class").WriteResponse(w)
			return
		}

		err = ws.AddFeature(ctx, className, fc)
		if err != nil {
			problems.ReportError(w, err)
			return
		}

		w.WriteHeader(http.StatusCreated)
	})
}

// NewRemoveFeatureHandler handles DELETE requests for a feature of a class
func NewRemoveFeatureHandler(ws workspace.Workspace, authenticator auth.Enticator) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error

		className := chi.URLParam(r, "className")
		featureName := chi.URLParam(r, "featureName")

		ctx, span := tracer.Start(r.Context(), "remove-feature",
			trace.WithAttributes(attribute.String(TraceAttributeClass, className)),
		)
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

		err = authenticator.CheckAccess(ctx, r, []string{className})
		if err != nil {
			logging.GetFromContext(ctx).Warn("access not granted", "err", err.Error())
			problems.NewUnauthorizedRequest("not authorized to change this class").WriteResponse(w)
			return
		}

		err = ws.RemoveFeature(ctx, className, featureName)
		if err != nil {
			problems.ReportError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	})
}
