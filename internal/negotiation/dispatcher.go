package negotiation

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/restkit/restkit/internal/domain"
)

// Result is the tagged outcome of a handler invocation. Handlers construct
// it explicitly instead of the dispatcher inferring intent from runtime
// types.
type Result struct {
	raw     bool
	data    any
	status  int
	headers http.Header
}

// Body wraps data to be serialized with status 200.
func Body(data any) Result {
	return Result{data: data, status: http.StatusOK}
}

// BodyWithStatus wraps data to be serialized with an explicit status code.
func BodyWithStatus(data any, status int) Result {
	return Result{data: data, status: status}
}

// BodyWithStatusAndHeaders wraps data with an explicit status code and extra
// response headers.
func BodyWithStatusAndHeaders(data any, status int, headers http.Header) Result {
	return Result{data: data, status: status, headers: headers}
}

// Raw marks the response as already written by the handler; the dispatcher
// passes it through untouched.
func Raw() Result {
	return Result{raw: true}
}

// HandlerFunc is a negotiated handler. It returns either a Result to be
// serialized or an error; *domain.NotModified and *domain.Error errors map
// to 304 and envelope responses respectively.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) (Result, error)

// Dispatcher wraps handler invocations with serializer selection and
// conditional-request short-circuiting.
type Dispatcher struct {
	table    *Table
	queryArg string
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher over a serializer table. queryArg names
// the query argument carrying a media-type alias; empty disables the
// mechanism.
func NewDispatcher(table *Table, queryArg string, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{table: table, queryArg: queryArg, logger: logger}
}

// Handle adapts a negotiated handler to http.HandlerFunc.
func (d *Dispatcher) Handle(h HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := h(w, r)
		if err != nil {
			d.writeError(w, r, err)
			return
		}

		if result.raw {
			return
		}

		var aliasValue string
		if d.queryArg != "" {
			aliasValue = r.URL.Query().Get(d.queryArg)
		}

		serializer, _ := d.table.Match(r.Method, r.Header.Get("Accept"), aliasValue)
		if serializer == nil {
			domain.ErrNotAcceptable().Write(w)
			return
		}

		status := result.status
		if status == 0 {
			status = http.StatusOK
		}
		if err := serializer(w, result.data, status, result.headers); err != nil {
			d.logger.Error("serializer failed",
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (d *Dispatcher) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var notModified *domain.NotModified
	if errors.As(err, &notModified) {
		writeNotModified(w, notModified)
		return
	}

	var apiErr *domain.Error
	if errors.As(err, &apiErr) {
		apiErr.Write(w)
		return
	}

	d.logger.Error("handler failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	domain.ErrServer("Internal server error.").Write(w)
}

// writeNotModified emits a 304 with the signal's validators and no body.
func writeNotModified(w http.ResponseWriter, nm *domain.NotModified) {
	if nm.ETag != "" {
		w.Header().Set("ETag", formatETag(nm.ETag, nm.Weak))
	}
	if !nm.LastModified.IsZero() {
		w.Header().Set("Last-Modified", nm.LastModified.UTC().Format(http.TimeFormat))
	}
	w.WriteHeader(http.StatusNotModified)
}

func formatETag(etag string, weak bool) string {
	if weak {
		return `W/"` + etag + `"`
	}
	return `"` + etag + `"`
}
