package negotiation

import (
	"net/http"
	"strings"

	"github.com/restkit/restkit/internal/domain"
)

// Serializer turns a handler result into the response body for one media
// type. It must set Content-Type and write both the status code and body.
type Serializer func(w http.ResponseWriter, data any, status int, headers http.Header) error

// Table maps media types to serializers for one resource, optionally
// partitioned per HTTP method, with a default media type per partition and a
// query-argument alias table. Construct it once per resource; it is
// immutable and safe for concurrent use afterwards.
type Table struct {
	shared         map[string]Serializer
	methods        map[string]map[string]Serializer
	defaultMedia   string
	methodDefaults map[string]string
	aliases        map[string]string
}

// TableOption configures a Table under construction.
type TableOption func(*Table)

// WithSerializer registers a serializer in the shared fallback partition.
func WithSerializer(mediaType string, s Serializer) TableOption {
	return func(t *Table) {
		t.shared[normalizeMedia(mediaType)] = s
	}
}

// WithMethodSerializer registers a serializer for one HTTP method.
func WithMethodSerializer(method, mediaType string, s Serializer) TableOption {
	return func(t *Table) {
		method = strings.ToUpper(method)
		if t.methods[method] == nil {
			t.methods[method] = make(map[string]Serializer)
		}
		t.methods[method][normalizeMedia(mediaType)] = s
	}
}

// WithDefaultMediaType sets the global default media type.
func WithDefaultMediaType(mediaType string) TableOption {
	return func(t *Table) {
		t.defaultMedia = normalizeMedia(mediaType)
	}
}

// WithMethodDefault sets the default media type for one method partition.
func WithMethodDefault(method, mediaType string) TableOption {
	return func(t *Table) {
		t.methodDefaults[strings.ToUpper(method)] = normalizeMedia(mediaType)
	}
}

// WithAlias maps a query-argument value to a media type.
func WithAlias(alias, mediaType string) TableOption {
	return func(t *Table) {
		t.aliases[alias] = normalizeMedia(mediaType)
	}
}

// NewTable builds a serializer table. Construction fails with a
// ConfigurationError when a partition holds more than one serializer and no
// default media type is resolvable for it.
func NewTable(opts ...TableOption) (*Table, error) {
	t := &Table{
		shared:         make(map[string]Serializer),
		methods:        make(map[string]map[string]Serializer),
		methodDefaults: make(map[string]string),
		aliases:        make(map[string]string),
	}
	for _, opt := range opts {
		opt(t)
	}

	if _, err := t.partitionDefault(t.shared, ""); err != nil {
		return nil, err
	}
	for method, partition := range t.methods {
		if _, err := t.partitionDefault(partition, method); err != nil {
			return nil, err
		}
	}

	return t, nil
}

// partitionDefault resolves the default media type for a partition: the
// explicit per-method default, the single entry, or the global default.
func (t *Table) partitionDefault(partition map[string]Serializer, method string) (string, error) {
	if method != "" {
		if def, ok := t.methodDefaults[method]; ok {
			if _, ok := partition[def]; !ok {
				return "", domain.NewConfigurationError(
					"default media type %q for method %s has no serializer", def, method)
			}
			return def, nil
		}
	}

	if len(partition) == 1 {
		for media := range partition {
			return media, nil
		}
	}

	if t.defaultMedia != "" {
		if _, ok := partition[t.defaultMedia]; ok || len(partition) == 0 {
			return t.defaultMedia, nil
		}
		return "", domain.NewConfigurationError(
			"default media type %q has no serializer in partition %q", t.defaultMedia, method)
	}

	if len(partition) > 1 {
		return "", domain.NewConfigurationError(
			"serializer partition %q has %d entries and no resolvable default media type",
			method, len(partition))
	}

	return "", nil
}

// Resolve returns the serializer partition and default media type for an
// HTTP method. HEAD reuses GET's partition unless HEAD has its own; methods
// without a partition use the shared fallback.
func (t *Table) Resolve(method string) (map[string]Serializer, string) {
	method = strings.ToUpper(method)

	partition, ok := t.methods[method]
	if !ok && method == http.MethodHead {
		partition, ok = t.methods[http.MethodGet]
		if ok {
			method = http.MethodGet
		}
	}
	if !ok {
		def, _ := t.partitionDefault(t.shared, "")
		return t.shared, def
	}

	def, _ := t.partitionDefault(partition, method)
	return partition, def
}

// Match picks the serializer for a request. The query alias, when present
// and known, wins outright and the Accept header is ignored; an unknown
// alias value falls through to Accept matching. A nil return means no media
// type is acceptable and the caller must respond 406.
func (t *Table) Match(method, acceptHeader, aliasValue string) (Serializer, string) {
	serializers, defaultMedia := t.Resolve(method)

	if aliasValue != "" {
		if media, ok := t.aliases[aliasValue]; ok {
			if s, ok := serializers[media]; ok {
				return s, media
			}
		}
	}

	return match(serializers, defaultMedia, acceptHeader)
}

// match is the Accept-header selection over one resolved partition.
func match(serializers map[string]Serializer, defaultMedia, acceptHeader string) (Serializer, string) {
	if strings.TrimSpace(acceptHeader) == "" {
		if s, ok := serializers[defaultMedia]; ok {
			return s, defaultMedia
		}
		return nil, ""
	}

	var (
		best        Serializer
		bestMedia   string
		bestQuality float64
		wildcard    bool
	)

	for _, entry := range ParseAccept(acceptHeader) {
		// q=0 means explicitly not acceptable.
		if entry.Quality == 0 {
			continue
		}
		if entry.Type == "*" && entry.Subtype == "*" {
			wildcard = true
			continue
		}
		s, ok := serializers[entry.MediaType()]
		if !ok {
			continue
		}
		// Strict > keeps the first-seen entry on quality ties.
		if entry.Quality > bestQuality {
			best, bestMedia, bestQuality = s, entry.MediaType(), entry.Quality
		}
	}

	if best != nil {
		return best, bestMedia
	}
	if wildcard {
		if s, ok := serializers[defaultMedia]; ok {
			return s, defaultMedia
		}
	}
	return nil, ""
}

func normalizeMedia(mediaType string) string {
	return strings.ToLower(strings.TrimSpace(mediaType))
}
