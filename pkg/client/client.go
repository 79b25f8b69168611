package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	modelerrors "github.com/diwise/context-model/pkg/model/errors"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ContextModelClient talks to the entity api of a context-model service
type ContextModelClient interface {
	CreateEntity(ctx context.Context, entityType, entityID string, attributes map[string]any) (string, error)
	RetrieveEntity(ctx context.Context, entityID string) (map[string]any, error)
	UpdateEntityAttributes(ctx context.Context, entityID string, attributes map[string]any) error
	DeleteEntity(ctx context.Context, entityID string) error

	Contents(ctx context.Context, entityID string) ([]string, error)
	CrossReferences(ctx context.Context, entityID string) ([]string, error)
}

func Debug(enabled string) func(*cmClient) {
	return func(c *cmClient) {
		c.debug = (enabled == "true")
	}
}

// Token sets the bearer token sent with every request
func Token(token string) func(*cmClient) {
	return func(c *cmClient) {
		c.token = token
	}
}

func NewContextModelClient(baseURL string, options ...func(*cmClient)) ContextModelClient {
	c := &cmClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		debug:   false,
	}

	for _, option := range options {
		option(c)
	}

	return c
}

const (
	TraceAttributeEntityID string = "entity-id"
)

var tracer = otel.Tracer("context-model-client")

type cmClient struct {
	baseURL string
	token   string
	debug   bool
}

func (c cmClient) entityURL(entityID string) string {
	return c.baseURL + "/api/v1/entities/" + url.PathEscape(entityID)
}

func (c cmClient) CreateEntity(ctx context.Context, entityType, entityID string, attributes map[string]any) (string, error) {
	var err error

	ctx, span := tracer.Start(ctx, "create-entity",
		trace.WithAttributes(attribute.String(TraceAttributeEntityID, entityID)),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	entity := map[string]any{}
	for k, v := range attributes {
		entity[k] = v
	}
	entity["id"] = entityID
	entity["type"] = entityType

	b, err := json.Marshal(entity)
	if err != nil {
		return "", err
	}

	resp, respBody, err := c.call(ctx, http.MethodPost, c.baseURL+"/api/v1/entities", bytes.NewBuffer(b))
	if err != nil {
		return "", err
	}

	if resp.StatusCode >= http.StatusBadRequest {
		err = errorFromProblemReport(resp.StatusCode, respBody)
		return "", err
	}

	if resp.StatusCode != http.StatusCreated {
		err = fmt.Errorf("unexpected response code %d", resp.StatusCode)
		return "", err
	}

	location := resp.Header.Get("Location")
	if location == "" {
		logging.GetFromContext(ctx).Warn("service failed to provide a location header with created response")
		location = "/api/v1/entities/" + url.PathEscape(entityID)
	}

	return location, nil
}

func (c cmClient) RetrieveEntity(ctx context.Context, entityID string) (map[string]any, error) {
	var err error

	ctx, span := tracer.Start(ctx, "retrieve-entity",
		trace.WithAttributes(attribute.String(TraceAttributeEntityID, entityID)),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	entity := map[string]any{}
	err = c.get(ctx, c.entityURL(entityID), &entity)
	if err != nil {
		return nil, err
	}

	return entity, nil
}

func (c cmClient) UpdateEntityAttributes(ctx context.Context, entityID string, attributes map[string]any) error {
	var err error

	ctx, span := tracer.Start(ctx, "update-entity-attributes",
		trace.WithAttributes(attribute.String(TraceAttributeEntityID, entityID)),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	b, err := json.Marshal(attributes)
	if err != nil {
		return err
	}

	err = c.expectNoContent(ctx, http.MethodPatch, c.entityURL(entityID), bytes.NewBuffer(b))
	return err
}

func (c cmClient) DeleteEntity(ctx context.Context, entityID string) error {
	var err error

	ctx, span := tracer.Start(ctx, "delete-entity",
		trace.WithAttributes(attribute.String(TraceAttributeEntityID, entityID)),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	err = c.expectNoContent(ctx, http.MethodDelete, c.entityURL(entityID), nil)
	return err
}

func (c cmClient) Contents(ctx context.Context, entityID string) ([]string, error) {
	ids := []string{}
	err := c.get(ctx, c.entityURL(entityID)+"/contents", &ids)
	return ids, err
}

func (c cmClient) CrossReferences(ctx context.Context, entityID string) ([]string, error) {
	ids := []string{}
	err := c.get(ctx, c.entityURL(entityID)+"/crossrefs", &ids)
	return ids, err
}

func (c cmClient) get(ctx context.Context, endpoint string, result any) error {
	resp, respBody, err := c.call(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode >= http.StatusBadRequest {
			return errorFromProblemReport(resp.StatusCode, respBody)
		}
		return fmt.Errorf("unexpected response code %d", resp.StatusCode)
	}

	return json.Unmarshal(respBody, result)
}

func (c cmClient) expectNoContent(ctx context.Context, method, endpoint string, body io.Reader) error {
	resp, respBody, err := c.call(ctx, method, endpoint, body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusNoContent {
		if resp.StatusCode >= http.StatusBadRequest {
			return errorFromProblemReport(resp.StatusCode, respBody)
		}
		return fmt.Errorf("unexpected response code %d", resp.StatusCode)
	}

	return nil
}

func (c cmClient) call(ctx context.Context, method, endpoint string, body io.Reader) (*http.Response, []byte, error) {
	httpClient := http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Add("Content-Type", "application/json")
	}

	if c.token != "" {
		req.Header.Add("Authorization", "Bearer "+c.token)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to send request: %w", err)
	}

	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if c.debug && resp.StatusCode >= http.StatusBadRequest && resp.StatusCode != http.StatusNotFound {
		reqbytes, _ := httputil.DumpRequest(req, false)
		respbytes, _ := httputil.DumpResponse(resp, false)

		logging.GetFromContext(ctx).Error("request failed", "request", string(reqbytes), "response", string(respbytes))
	}

	return resp, respBody, nil
}

// errorFromProblemReport maps a problem report back to the matching model error
func errorFromProblemReport(code int, body []byte) error {
	report := &struct {
		Type   string `json:"type"`
		Title  string `json:"title"`
		Detail string `json:"detail"`
	}{}

	err := json.Unmarshal(body, report)
	if err != nil {
		return fmt.Errorf("failed to process problem report (status code %d): %s", code, err.Error())
	}

	switch {
	case code == http.StatusNotFound:
		return modelerrors.NewNotFoundError(report.Detail)
	case code == http.StatusConflict:
		return modelerrors.NewAlreadyExistsError(report.Detail)
	case code == http.StatusUnprocessableEntity:
		return modelerrors.NewUnsupportedError(report.Detail)
	case code == http.StatusBadRequest:
		return modelerrors.NewBadRequestError(report.Detail)
	}

	return fmt.Errorf("[code: %d] problem report of type \"%s\" with detail \"%s\" received", code, report.Type, report.Detail)
}
