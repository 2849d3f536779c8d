package records

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/restkit/restkit/internal/storage"
	"github.com/restkit/restkit/internal/storage/sqlite"
)

func newTestHandler(t *testing.T) (*Handler, storage.RecordStore) {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "records.db"))
	if err != nil {
		t.Fatalf("sqlite.New: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h, err := NewHandler(store, "format", logger)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	return h, store
}

func seedRecord(t *testing.T, store storage.RecordStore, id string) *storage.Record {
	t.Helper()
	rec := &storage.Record{ID: id, Title: "Seeded", Body: "content"}
	if err := store.CreateRecord(context.Background(), rec); err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}
	return rec
}

func fixedID(id string) func(*http.Request) string {
	return func(*http.Request) string { return id }
}

func TestGet_ReturnsValidators(t *testing.T) {
	h, store := newTestHandler(t)
	rec := seedRecord(t, store, "r1")

	rr := httptest.NewRecorder()
	h.Get(fixedID("r1"))(rr, httptest.NewRequest("GET", "/records/r1", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if etag := rr.Header().Get("ETag"); etag != `"r1-v1"` {
		t.Errorf("ETag = %q, want \"r1-v1\"", etag)
	}
	if lm := rr.Header().Get("Last-Modified"); lm != rec.UpdatedAt.UTC().Format(http.TimeFormat) {
		t.Errorf("Last-Modified = %q", lm)
	}

	var got storage.Record
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Title != "Seeded" {
		t.Errorf("title = %q", got.Title)
	}
}

func TestGet_ConditionalRequests(t *testing.T) {
	h, store := newTestHandler(t)
	rec := seedRecord(t, store, "r1")

	tests := []struct {
		name       string
		header     string
		value      string
		wantStatus int
	}{
		{"if-none-match current etag", "If-None-Match", `"r1-v1"`, http.StatusNotModified},
		{"if-none-match stale etag", "If-None-Match", `"r1-v0"`, http.StatusOK},
		{"if-match mismatching etag", "If-Match", `"other"`, http.StatusPreconditionFailed},
		{"if-modified-since unchanged", "If-Modified-Since", rec.UpdatedAt.UTC().Format(http.TimeFormat), http.StatusNotModified},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/records/r1", nil)
			r.Header.Set(tt.header, tt.value)

			rr := httptest.NewRecorder()
			h.Get(fixedID("r1"))(rr, r)

			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusNotModified {
				if rr.Body.Len() != 0 {
					t.Errorf("304 body = %q, want empty", rr.Body.String())
				}
				if rr.Header().Get("ETag") == "" {
					t.Error("304 should carry the ETag")
				}
			}
		})
	}
}

func TestGet_NotFound(t *testing.T) {
	h, _ := newTestHandler(t)

	rr := httptest.NewRecorder()
	h.Get(fixedID("ghost"))(rr, httptest.NewRequest("GET", "/records/ghost", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestGet_XMLAlias(t *testing.T) {
	h, store := newTestHandler(t)
	seedRecord(t, store, "r1")

	// Accept header says JSON, but the format alias wins.
	r := httptest.NewRequest("GET", "/records/r1?format=xml", nil)
	r.Header.Set("Accept", "application/json")

	rr := httptest.NewRecorder()
	h.Get(fixedID("r1"))(rr, r)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/xml" {
		t.Errorf("Content-Type = %q, want application/xml", ct)
	}
	if !strings.Contains(rr.Body.String(), "<title>Seeded</title>") {
		t.Errorf("XML body = %q", rr.Body.String())
	}
}

func TestGet_NotAcceptable(t *testing.T) {
	h, store := newTestHandler(t)
	seedRecord(t, store, "r1")

	r := httptest.NewRequest("GET", "/records/r1", nil)
	r.Header.Set("Accept", "text/plain")

	rr := httptest.NewRecorder()
	h.Get(fixedID("r1"))(rr, r)

	if rr.Code != http.StatusNotAcceptable {
		t.Fatalf("status = %d, want 406", rr.Code)
	}
}

func TestCreate(t *testing.T) {
	h, _ := newTestHandler(t)

	body := strings.NewReader(`{"title":"New","body":"text"}`)
	r := httptest.NewRequest("POST", "/records", body)
	r.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	h.Create()(rr, r)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rr.Code)
	}
	var created storage.Record
	if err := json.NewDecoder(rr.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ID == "" || created.Version != 1 {
		t.Errorf("created = %+v", created)
	}
	if rr.Header().Get("ETag") == "" {
		t.Error("created response should carry an ETag")
	}
}

func TestCreate_Validation(t *testing.T) {
	h, _ := newTestHandler(t)

	tests := []struct {
		name        string
		contentType string
		body        string
		wantStatus  int
	}{
		{"empty title", "application/json", `{"body":"x"}`, http.StatusBadRequest},
		{"invalid json", "application/json", `{`, http.StatusBadRequest},
		{"wrong content type", "text/plain", `{"title":"x"}`, http.StatusUnsupportedMediaType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/records", strings.NewReader(tt.body))
			r.Header.Set("Content-Type", tt.contentType)

			rr := httptest.NewRecorder()
			h.Create()(rr, r)

			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
		})
	}
}

func TestUpdate_IfMatchFlow(t *testing.T) {
	h, store := newTestHandler(t)
	seedRecord(t, store, "r1")

	update := func(ifMatch string) *httptest.ResponseRecorder {
		r := httptest.NewRequest("PUT", "/records/r1", strings.NewReader(`{"title":"Updated","body":"new"}`))
		r.Header.Set("Content-Type", "application/json")
		if ifMatch != "" {
			r.Header.Set("If-Match", ifMatch)
		}
		rr := httptest.NewRecorder()
		h.Update(fixedID("r1"))(rr, r)
		return rr
	}

	// Matching If-Match updates and bumps the version.
	rr := update(`"r1-v1"`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if etag := rr.Header().Get("ETag"); etag != `"r1-v2"` {
		t.Errorf("ETag = %q, want \"r1-v2\"", etag)
	}

	// Replaying the same stale condition now fails the precondition.
	rr = update(`"r1-v1"`)
	if rr.Code != http.StatusPreconditionFailed {
		t.Fatalf("status = %d, want 412", rr.Code)
	}

	// If-None-Match with the current etag on a mutating method is 412 too.
	r := httptest.NewRequest("PUT", "/records/r1", strings.NewReader(`{"title":"X"}`))
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("If-None-Match", `"r1-v2"`)
	rr = httptest.NewRecorder()
	h.Update(fixedID("r1"))(rr, r)
	if rr.Code != http.StatusPreconditionFailed {
		t.Fatalf("status = %d, want 412", rr.Code)
	}
}

func TestList(t *testing.T) {
	h, store := newTestHandler(t)
	seedRecord(t, store, "a")
	seedRecord(t, store, "b")

	rr := httptest.NewRecorder()
	h.List()(rr, httptest.NewRequest("GET", "/records", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var body struct {
		Records []storage.Record `json:"records"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Records) != 2 {
		t.Errorf("records = %d, want 2", len(body.Records))
	}
}
