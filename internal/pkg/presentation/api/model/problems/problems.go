package problems

import (
	"encoding/json"
	"errors"
	"net/http"

	modelerrors "github.com/diwise/context-model/pkg/model/errors"
)

// ProblemDetails stores details about a certain problem according to RFC7807
// See https://tools.ietf.org/html/rfc7807
type ProblemDetails interface {
	ContentType() string
	Type() string
	Title() string
	Detail() string
	ResponseCode() int
	MarshalJSON() ([]byte, error)
	WriteResponse(w http.ResponseWriter)
}

// ProblemDetailsImpl is an implementation of the ProblemDetails interface
type ProblemDetailsImpl struct {
	typ    string
	title  string
	detail string
	code   int
}

const (
	// ProblemReportContentType as required by https://tools.ietf.org/html/rfc7807
	ProblemReportContentType string = "application/problem+json"

	typePrefix string = "https://diwise.io/context-model/errors/"
)

func newProblem(name, title, detail string, code int) *ProblemDetailsImpl {
	return &ProblemDetailsImpl{
		typ:    typePrefix + name,
		title:  title,
		detail: detail,
		code:   code,
	}
}

func NewAlreadyExists(detail string) *ProblemDetailsImpl {
	return newProblem("AlreadyExists", "Already Exists", detail, http.StatusConflict)
}

func NewBadRequestData(detail string) *ProblemDetailsImpl {
	return newProblem("BadRequestData", "Bad Request Data", detail, http.StatusBadRequest)
}

func NewInvalidRequest(detail string) *ProblemDetailsImpl {
	return newProblem("InvalidRequest", "Invalid Request", detail, http.StatusBadRequest)
}

func NewInternalError(detail string) *ProblemDetailsImpl {
	return newProblem("InternalError", "Internal Error", detail, http.StatusInternalServerError)
}

func NewNotFound(detail string) *ProblemDetailsImpl {
	return newProblem("ResourceNotFound", "Not Found", detail, http.StatusNotFound)
}

func NewUnauthorizedRequest(detail string) *ProblemDetailsImpl {
	return newProblem("UnauthorizedRequest", "Unauthorized Request", detail, http.StatusUnauthorized)
}

// NewOperationNotSupported reports a request that the entity layout can not serve
func NewOperationNotSupported(detail string) *ProblemDetailsImpl {
	return newProblem("OperationNotSupported", "Operation Not Supported", detail, http.StatusUnprocessableEntity)
}

// FromError maps errors from the model and the workspace to a problem
func FromError(err error) ProblemDetails {
	detail := err.Error()

	switch {
	case errors.Is(err, modelerrors.ErrAlreadyExists):
		return NewAlreadyExists(detail)
	case errors.Is(err, modelerrors.ErrNotFound):
		return NewNotFound(detail)
	case errors.Is(err, modelerrors.ErrUnknownFeature),
		errors.Is(err, modelerrors.ErrBadRequest):
		return NewBadRequestData(detail)
	case errors.Is(err, modelerrors.ErrOutOfRange),
		errors.Is(err, modelerrors.ErrUnsupported):
		return NewOperationNotSupported(detail)
	}

	return NewInternalError(detail)
}

// ReportError writes the problem matching err to the response
func ReportError(w http.ResponseWriter, err error) {
	FromError(err).WriteResponse(w)
}

func (p *ProblemDetailsImpl) Type() string {
	return p.typ
}

func (p *ProblemDetailsImpl) Title() string {
	return p.title
}

func (p *ProblemDetailsImpl) Detail() string {
	return p.detail
}

// ContentType returns the ContentType to be used when returning this problem
func (p *ProblemDetailsImpl) ContentType() string {
	return ProblemReportContentType
}

// MarshalJSON is called when a ProblemDetailsImpl instance should be serialized to JSON
func (p *ProblemDetailsImpl) MarshalJSON() ([]byte, error) {
	j, err := json.Marshal(struct {
		Type   string `json:"type"`
		Title  string `json:"title"`
		Detail string `json:"detail"`
	}{
		Type:   p.typ,
		Title:  p.title,
		Detail: p.detail,
	})
	if err != nil {
		return nil, err
	}
	return j, nil
}

// ResponseCode returns the HTTP response code to be used when returning a specific problem
func (p *ProblemDetailsImpl) ResponseCode() int {

	if p.code != 0 {
		return p.code
	}

	return http.StatusBadRequest
}

// WriteResponse writes the contents of this instance to a http.ResponseWriter
func (p *ProblemDetailsImpl) WriteResponse(w http.ResponseWriter) {
	w.Header().Add("Content-Type", p.ContentType())
	w.Header().Add("Content-Language", "en")
	w.WriteHeader(p.ResponseCode())

	pdbytes, err := json.MarshalIndent(p, "", "  ")
	if err == nil {
		w.Write(pdbytes)
	}
}
