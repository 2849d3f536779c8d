package negotiation

import (
	"errors"
	"net/http"
	"testing"

	"github.com/restkit/restkit/internal/domain"
)

// noopSerializer returns a distinct Serializer; selection is asserted via
// the media type Match reports.
func noopSerializer() Serializer {
	return func(w http.ResponseWriter, data any, status int, headers http.Header) error {
		return nil
	}
}

func jsonXMLTable(t *testing.T) *Table {
	t.Helper()
	table, err := NewTable(
		WithSerializer("application/json", noopSerializer()),
		WithSerializer("application/xml", noopSerializer()),
		WithDefaultMediaType("application/json"),
		WithAlias("json", "application/json"),
		WithAlias("marc21", "application/marcxml+xml"),
	)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	return table
}

func TestMatch_AcceptHeader(t *testing.T) {
	table := jsonXMLTable(t)

	tests := []struct {
		name      string
		accept    string
		wantMedia string
		wantNone  bool
	}{
		{
			name:      "exact match",
			accept:    "application/json",
			wantMedia: "application/json",
		},
		{
			name:      "higher quality wins",
			accept:    "application/json;q=0.4,application/xml;q=0.6",
			wantMedia: "application/xml",
		},
		{
			name:      "absent header selects default",
			accept:    "",
			wantMedia: "application/json",
		},
		{
			name:      "equal quality keeps first seen",
			accept:    "application/xml;q=0.5,application/json;q=0.5",
			wantMedia: "application/xml",
		},
		{
			name:     "no match and no wildcard",
			accept:   "text/plain",
			wantNone: true,
		},
		{
			name:      "wildcard falls back to default",
			accept:    "text/plain,*/*;q=0.5",
			wantMedia: "application/json",
		},
		{
			name:     "quality zero is never selected",
			accept:   "application/json;q=0",
			wantNone: true,
		},
		{
			name:      "quality zero skipped in favor of lower offer",
			accept:    "application/json;q=0,application/xml;q=0.1",
			wantMedia: "application/xml",
		},
		{
			name:      "malformed quality treated as 1",
			accept:    "application/xml;q=banana,application/json;q=0.9",
			wantMedia: "application/xml",
		},
		{
			name:      "media type is case-insensitive",
			accept:    "Application/JSON",
			wantMedia: "application/json",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, media := table.Match("GET", tt.accept, "")
			if tt.wantNone {
				if s != nil {
					t.Fatalf("Match(%q) selected %q, want none", tt.accept, media)
				}
				return
			}
			if s == nil {
				t.Fatalf("Match(%q) selected nothing, want %q", tt.accept, tt.wantMedia)
			}
			if media != tt.wantMedia {
				t.Errorf("Match(%q) = %q, want %q", tt.accept, media, tt.wantMedia)
			}
		})
	}
}

func TestMatch_QueryAlias(t *testing.T) {
	table, err := NewTable(
		WithSerializer("application/json", noopSerializer()),
		WithSerializer("application/marcxml+xml", noopSerializer()),
		WithDefaultMediaType("application/json"),
		WithAlias("json", "application/json"),
		WithAlias("marc21", "application/marcxml+xml"),
	)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}

	// A known alias wins outright; the Accept header is ignored.
	s, media := table.Match("GET", "application/json", "marc21")
	if s == nil || media != "application/marcxml+xml" {
		t.Errorf("alias marc21 selected %q, want application/marcxml+xml", media)
	}

	// An unknown alias value falls through to Accept matching.
	s, media = table.Match("GET", "application/json", "unknown")
	if s == nil || media != "application/json" {
		t.Errorf("unknown alias selected %q, want application/json via Accept", media)
	}
}

func TestResolve_MethodPartitions(t *testing.T) {
	table, err := NewTable(
		WithSerializer("application/json", noopSerializer()),
		WithDefaultMediaType("application/json"),
		WithMethodSerializer("GET", "application/json", noopSerializer()),
		WithMethodSerializer("GET", "text/csv", noopSerializer()),
		WithMethodDefault("GET", "text/csv"),
	)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}

	// GET resolves its own partition and default.
	serializers, def := table.Resolve("GET")
	if len(serializers) != 2 || def != "text/csv" {
		t.Errorf("Resolve(GET) = %d entries, default %q; want 2, text/csv", len(serializers), def)
	}

	// HEAD borrows GET's partition.
	serializers, def = table.Resolve("HEAD")
	if len(serializers) != 2 || def != "text/csv" {
		t.Errorf("Resolve(HEAD) = %d entries, default %q; want GET's partition", len(serializers), def)
	}

	// Other methods use the shared fallback.
	serializers, def = table.Resolve("POST")
	if len(serializers) != 1 || def != "application/json" {
		t.Errorf("Resolve(POST) = %d entries, default %q; want shared fallback", len(serializers), def)
	}
}

func TestNewTable_AmbiguousDefault(t *testing.T) {
	tests := []struct {
		name string
		opts []TableOption
	}{
		{
			name: "shared partition without default",
			opts: []TableOption{
				WithSerializer("application/json", noopSerializer()),
				WithSerializer("application/xml", noopSerializer()),
			},
		},
		{
			name: "method partition without resolvable default",
			opts: []TableOption{
				WithSerializer("application/json", noopSerializer()),
				WithDefaultMediaType("application/json"),
				WithMethodSerializer("GET", "text/csv", noopSerializer()),
				WithMethodSerializer("GET", "text/plain", noopSerializer()),
			},
		},
		{
			name: "method default without serializer",
			opts: []TableOption{
				WithSerializer("application/json", noopSerializer()),
				WithMethodSerializer("GET", "text/csv", noopSerializer()),
				WithMethodDefault("GET", "application/pdf"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTable(tt.opts...)
			var cfgErr *domain.ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Errorf("NewTable = %v, want ConfigurationError", err)
			}
		})
	}
}

func TestParseAccept(t *testing.T) {
	entries := ParseAccept("text/html, application/json;q=0.8;charset=utf-8, */*;q=0.1")
	if len(entries) != 3 {
		t.Fatalf("len = %d, want 3", len(entries))
	}

	if entries[0].MediaType() != "text/html" || entries[0].Quality != 1 {
		t.Errorf("entry 0 = %s q=%v, want text/html q=1", entries[0].MediaType(), entries[0].Quality)
	}
	if entries[1].MediaType() != "application/json" || entries[1].Quality != 0.8 {
		t.Errorf("entry 1 = %s q=%v, want application/json q=0.8", entries[1].MediaType(), entries[1].Quality)
	}
	if entries[1].Params["charset"] != "utf-8" {
		t.Errorf("entry 1 charset = %q, want utf-8", entries[1].Params["charset"])
	}
	if entries[2].Type != "*" || entries[2].Subtype != "*" {
		t.Errorf("entry 2 = %s, want */*", entries[2].MediaType())
	}
}
