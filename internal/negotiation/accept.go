// Package negotiation selects response representations by Accept-header
// quality matching or an explicit query-string alias, and wraps handler
// dispatch with conditional-request (ETag / If-Modified-Since) evaluation.
package negotiation

import (
	"strconv"
	"strings"
)

// AcceptEntry is one client-offered media type parsed from an Accept header.
type AcceptEntry struct {
	// Type and Subtype are lowercased; Subtype may be "*".
	Type    string
	Subtype string

	// Params are the media-type parameters, excluding q.
	Params map[string]string

	// Quality is the q-value in [0, 1]. Missing or malformed q parses as 1.
	Quality float64
}

// MediaType returns the normalized "type/subtype" form.
func (e AcceptEntry) MediaType() string {
	return e.Type + "/" + e.Subtype
}

// ParseAccept parses an Accept header into its offered entries. Entry order
// is preserved; matching scans all entries, so ordering only matters for
// equal-quality tie-breaks.
func ParseAccept(header string) []AcceptEntry {
	var entries []AcceptEntry

	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		segments := strings.Split(part, ";")
		mediaType := strings.ToLower(strings.TrimSpace(segments[0]))
		typ, subtype, ok := strings.Cut(mediaType, "/")
		if !ok || typ == "" || subtype == "" {
			continue
		}

		entry := AcceptEntry{Type: typ, Subtype: subtype, Quality: 1}
		for _, seg := range segments[1:] {
			key, value, ok := strings.Cut(strings.TrimSpace(seg), "=")
			if !ok {
				continue
			}
			key = strings.ToLower(strings.TrimSpace(key))
			value = strings.TrimSpace(value)
			if key == "q" {
				q, err := strconv.ParseFloat(value, 64)
				if err != nil {
					continue
				}
				entry.Quality = min(max(q, 0), 1)
				continue
			}
			if entry.Params == nil {
				entry.Params = make(map[string]string)
			}
			entry.Params[key] = value
		}

		entries = append(entries, entry)
	}

	return entries
}
