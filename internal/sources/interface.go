package sources

import (
	"context"
	"errors"
	"time"

	"github.com/brandradar/brandradar/internal/models"
)

// Fetch errors. Callers use errors.Is; concrete errors wrap these.
var (
	// ErrNotConfigured is returned when a fetcher is missing its credentials
	ErrNotConfigured = errors.New("source not configured")
	// ErrUpstreamUnavailable covers non-200 responses, transport failures and timeouts
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrRateLimited is returned alongside any items fetched before the upstream throttled us
	ErrRateLimited = errors.New("rate limited by upstream")
)

// DefaultLimit is used when a request does not set Limit
const DefaultLimit = 50

// FetchRequest describes one retrieval from a source
type FetchRequest struct {
	Keywords []string
	Since    time.Time
	Limit    int
}

func (r FetchRequest) limit() int {
	if r.Limit <= 0 {
		return DefaultLimit
	}
	return r.Limit
}

// Fetcher defines the contract for all mention sources. Fetchers only
// retrieve raw items; matching, scoring and persistence happen elsewhere.
type Fetcher interface {
	Name() string
	Kind() models.SourceKind
	IsEnabled() bool
	Fetch(ctx context.Context, req FetchRequest) ([]models.RawItem, error)
}
