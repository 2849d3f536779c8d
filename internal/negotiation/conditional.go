package negotiation

import (
	"net/http"
	"strings"
	"time"

	"github.com/restkit/restkit/internal/domain"
)

// etagSet is a parsed If-Match or If-None-Match header.
type etagSet struct {
	tags []headerTag
	star bool
}

type headerTag struct {
	value string
	weak  bool
}

func (s etagSet) present() bool {
	return s.star || len(s.tags) > 0
}

// contains reports whether etag satisfies the set. Weak comparison matches
// by payload only; strong comparison requires the strength to match too.
func (s etagSet) contains(etag string, weak bool) bool {
	for _, tag := range s.tags {
		if tag.value != etag {
			continue
		}
		if weak || !tag.weak {
			return true
		}
	}
	return false
}

// parseETagHeader parses a comma-separated list of entity tags, each
// optionally weak (W/"...") and optionally quoted, or the * wildcard.
func parseETagHeader(header string) etagSet {
	var set etagSet
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if part == "*" {
			set.star = true
			continue
		}
		tag := headerTag{}
		if strings.HasPrefix(part, "W/") || strings.HasPrefix(part, "w/") {
			tag.weak = true
			part = part[2:]
		}
		tag.value = strings.Trim(part, `"`)
		set.tags = append(set.tags, tag)
	}
	return set
}

// CheckEtag validates etag (unquoted) against the request's If-Match and
// If-None-Match conditions. Call it from a handler before producing a
// result; the returned error is either a *domain.Error (412) or the
// *domain.NotModified signal, both understood by the dispatcher.
//
// For PUT and PATCH pass the ETag of the resource before modification. Weak
// comparison ignores the strong/weak distinction and matches by payload.
func CheckEtag(r *http.Request, etag string, weak bool) error {
	ifMatch := parseETagHeader(r.Header.Get("If-Match"))
	if ifMatch.present() {
		if !ifMatch.star && !ifMatch.contains(etag, weak) {
			return domain.ErrPreconditionFailed()
		}
	}

	ifNoneMatch := parseETagHeader(r.Header.Get("If-None-Match"))
	if ifNoneMatch.present() {
		if ifNoneMatch.star || ifNoneMatch.contains(etag, weak) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead {
				return &domain.NotModified{ETag: etag, Weak: weak}
			}
			return domain.ErrPreconditionFailed()
		}
	}

	return nil
}

// CheckIfModifiedSince compares lastModified (normalized to second
// precision, UTC) against the request's If-Modified-Since header and returns
// the NotModified signal when the resource is unchanged. etag, when
// non-empty, is carried on the 304.
func CheckIfModifiedSince(r *http.Request, lastModified time.Time, etag string) error {
	header := r.Header.Get("If-Modified-Since")
	if header == "" {
		return nil
	}

	since, err := http.ParseTime(header)
	if err != nil {
		return nil
	}

	lastModified = lastModified.UTC().Truncate(time.Second)
	if !lastModified.After(since.UTC().Truncate(time.Second)) {
		return &domain.NotModified{ETag: etag, LastModified: lastModified}
	}

	return nil
}
