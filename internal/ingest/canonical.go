package ingest

import (
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// trackingParams are query parameters that never change the linked content
var trackingParams = map[string]bool{
	"fbclid":  true,
	"gclid":   true,
	"ref":     true,
	"ref_src": true,
}

// CanonicalURL normalizes a link so the same article shared with different
// tracking decorations maps to one identity. Unparseable input is returned trimmed.
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""

	if u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
		u.RawPath = ""
	}

	query := u.Query()
	for key := range query {
		if strings.HasPrefix(strings.ToLower(key), "utm_") || trackingParams[strings.ToLower(key)] {
			query.Del(key)
		}
	}
	// Encode sorts by key
	u.RawQuery = query.Encode()

	return u.String()
}

// SourceIDForURL derives a stable 32 character id from the canonical form of raw.
func SourceIDForURL(raw string) string {
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte(CanonicalURL(raw)))
	return strings.ReplaceAll(id.String(), "-", "")
}
