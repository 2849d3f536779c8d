// Package records is the demo resource: versioned documents served through
// content negotiation with conditional-request support.
package records

import (
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/restkit/restkit/internal/domain"
	"github.com/restkit/restkit/internal/negotiation"
	"github.com/restkit/restkit/internal/storage"
)

// recordList wraps a listing so the XML serializer has a root element.
type recordList struct {
	XMLName xml.Name          `xml:"records" json:"-"`
	Records []*storage.Record `xml:"record" json:"records"`
}

// Handler serves the records resource.
type Handler struct {
	store      storage.RecordStore
	dispatcher *negotiation.Dispatcher
	logger     *slog.Logger
}

// NewHandler builds the resource handler with its serializer table
// (JSON default, XML alternative, query aliases "json" and "xml").
func NewHandler(store storage.RecordStore, queryArg string, logger *slog.Logger) (*Handler, error) {
	table, err := negotiation.NewTable(
		negotiation.WithSerializer("application/json", serializeJSON),
		negotiation.WithSerializer("application/xml", serializeXML),
		negotiation.WithDefaultMediaType("application/json"),
		negotiation.WithAlias("json", "application/json"),
		negotiation.WithAlias("xml", "application/xml"),
	)
	if err != nil {
		return nil, fmt.Errorf("build serializer table: %w", err)
	}

	return &Handler{
		store:      store,
		dispatcher: negotiation.NewDispatcher(table, queryArg, logger),
		logger:     logger,
	}, nil
}

// List handles GET /records.
func (h *Handler) List() http.HandlerFunc {
	return h.dispatcher.Handle(func(w http.ResponseWriter, r *http.Request) (negotiation.Result, error) {
		recs, err := h.store.ListRecords(r.Context())
		if err != nil {
			return negotiation.Result{}, fmt.Errorf("list records: %w", err)
		}
		return negotiation.Body(&recordList{Records: recs}), nil
	})
}

// Get handles GET /records/{id} with ETag and If-Modified-Since evaluation.
func (h *Handler) Get(idParam func(*http.Request) string) http.HandlerFunc {
	return h.dispatcher.Handle(func(w http.ResponseWriter, r *http.Request) (negotiation.Result, error) {
		rec, err := h.load(r, idParam(r))
		if err != nil {
			return negotiation.Result{}, err
		}

		etag := etagFor(rec)
		if err := negotiation.CheckEtag(r, etag, false); err != nil {
			return negotiation.Result{}, err
		}
		if err := negotiation.CheckIfModifiedSince(r, rec.UpdatedAt, etag); err != nil {
			return negotiation.Result{}, err
		}

		return negotiation.BodyWithStatusAndHeaders(rec, http.StatusOK, validatorHeaders(rec)), nil
	})
}

// Create handles POST /records.
func (h *Handler) Create() http.HandlerFunc {
	return h.dispatcher.Handle(func(w http.ResponseWriter, r *http.Request) (negotiation.Result, error) {
		var in storage.Record
		if err := decodeJSON(r, &in); err != nil {
			return negotiation.Result{}, err
		}
		if in.Title == "" {
			return negotiation.Result{}, domain.ErrValidation(domain.FieldError{
				Field:   "title",
				Message: "title must not be empty",
			})
		}

		rec := &storage.Record{ID: uuid.New().String(), Title: in.Title, Body: in.Body}
		if err := h.store.CreateRecord(r.Context(), rec); err != nil {
			return negotiation.Result{}, fmt.Errorf("create record: %w", err)
		}

		return negotiation.BodyWithStatusAndHeaders(rec, http.StatusCreated, validatorHeaders(rec)), nil
	})
}

// Update handles PUT /records/{id}. The If-Match condition is checked
// against the record's ETag before any modification; a stale condition
// yields 412.
func (h *Handler) Update(idParam func(*http.Request) string) http.HandlerFunc {
	return h.dispatcher.Handle(func(w http.ResponseWriter, r *http.Request) (negotiation.Result, error) {
		rec, err := h.load(r, idParam(r))
		if err != nil {
			return negotiation.Result{}, err
		}

		if err := negotiation.CheckEtag(r, etagFor(rec), false); err != nil {
			return negotiation.Result{}, err
		}

		var in storage.Record
		if err := decodeJSON(r, &in); err != nil {
			return negotiation.Result{}, err
		}

		updated := &storage.Record{ID: rec.ID, Title: in.Title, Body: in.Body}
		if err := h.store.UpdateRecord(r.Context(), updated, rec.Version); err != nil {
			if errors.Is(err, storage.ErrVersionConflict) {
				return negotiation.Result{}, domain.ErrPreconditionFailed()
			}
			return negotiation.Result{}, fmt.Errorf("update record: %w", err)
		}

		return negotiation.BodyWithStatusAndHeaders(updated, http.StatusOK, validatorHeaders(updated)), nil
	})
}

func (h *Handler) load(r *http.Request, id string) (*storage.Record, error) {
	rec, err := h.store.GetRecord(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, domain.ErrNotFound(fmt.Sprintf("record %s does not exist", id))
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

// etagFor derives the entity tag from the stored version.
func etagFor(rec *storage.Record) string {
	return fmt.Sprintf("%s-v%d", rec.ID, rec.Version)
}

func validatorHeaders(rec *storage.Record) http.Header {
	h := http.Header{}
	h.Set("ETag", `"`+etagFor(rec)+`"`)
	h.Set("Last-Modified", rec.UpdatedAt.UTC().Format(http.TimeFormat))
	return h
}

func decodeJSON(r *http.Request, dst any) error {
	ct := r.Header.Get("Content-Type")
	if ct != "" && !strings.HasPrefix(ct, "application/json") {
		return domain.ErrInvalidContentType("application/json")
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domain.ErrValidation(domain.FieldError{
			Field:   "body",
			Message: "request body is not valid JSON",
		})
	}
	return nil
}

func serializeJSON(w http.ResponseWriter, data any, status int, headers http.Header) error {
	applyHeaders(w, headers)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

func serializeXML(w http.ResponseWriter, data any, status int, headers http.Header) error {
	applyHeaders(w, headers)
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(xml.Header)); err != nil {
		return err
	}
	return xml.NewEncoder(w).Encode(data)
}

func applyHeaders(w http.ResponseWriter, headers http.Header) {
	for key, values := range headers {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
}
