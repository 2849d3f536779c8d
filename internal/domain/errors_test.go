package domain

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestError_Write(t *testing.T) {
	rec := httptest.NewRecorder()
	ErrCSRF("BAD_TOKEN").Write(rec)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != float64(400) {
		t.Errorf("status field = %v, want 400", body["status"])
	}
	if body["message"] != "BAD_TOKEN" {
		t.Errorf("message field = %v, want BAD_TOKEN", body["message"])
	}
	if _, ok := body["errors"]; ok {
		t.Error("errors field should be omitted when empty")
	}
	if _, ok := body["error_id"]; ok {
		t.Error("error_id should be omitted below 500")
	}
}

func TestError_FieldErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	ErrValidation(FieldError{Field: "title", Message: "must not be empty", Code: "required"}).Write(rec)

	var body struct {
		Status  int          `json:"status"`
		Message string       `json:"message"`
		Errors  []FieldError `json:"errors"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Errors) != 1 {
		t.Fatalf("errors length = %d, want 1", len(body.Errors))
	}
	if body.Errors[0].Field != "title" || body.Errors[0].Code != "required" {
		t.Errorf("field error = %+v", body.Errors[0])
	}
}

func TestError_ServerErrorGetsErrorID(t *testing.T) {
	rec := httptest.NewRecorder()
	ErrServer("something broke").Write(rec)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var body struct {
		ErrorID string `json:"error_id"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.ErrorID == "" {
		t.Error("5xx envelope should be assigned an error_id")
	}
}

func TestStatusConstructors(t *testing.T) {
	tests := []struct {
		name   string
		err    *Error
		status int
	}{
		{"csrf", ErrCSRF("NO_REFERER"), http.StatusBadRequest},
		{"not acceptable", ErrNotAcceptable(), http.StatusNotAcceptable},
		{"precondition failed", ErrPreconditionFailed(), http.StatusPreconditionFailed},
		{"invalid content type", ErrInvalidContentType("application/json"), http.StatusUnsupportedMediaType},
		{"not found", ErrNotFound("missing"), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Status != tt.status {
				t.Errorf("status = %d, want %d", tt.err.Status, tt.status)
			}
		})
	}
}

func TestConfigurationError(t *testing.T) {
	err := NewConfigurationError("missing %s", "secret")
	if err.Error() != "configuration error: missing secret" {
		t.Errorf("Error() = %q", err.Error())
	}
}
