// Package fetch drives pagination and bounded-concurrency detail fetching
// for one catalog source, turning upstream endpoints into a rate-limited
// stream of candidates.
package fetch

import (
	"context"
	"encoding/json"

	ingestdomain "github.com/basketlabs/shelfscout/internal/ingest/domain"
)

// Meta identifies a source adapter.
type Meta struct {
	Code string
	Name string
}

// Listing is one item as it appears on a search page.
type Listing struct {
	ProductID string
	Title     string
	Payload   json.RawMessage
}

// Page is one search response. Offset echoes the requested offset; HasMore
// tells the orchestrator whether to keep paginating.
type Page struct {
	Offset   int
	Total    int
	HasMore  bool
	Listings []Listing
}

// Detail is the per-item payload fetched after a listing.
type Detail struct {
	Payload json.RawMessage
}

// Source is the adapter contract. SearchPage is called sequentially with
// increasing offsets for the configured search term; FetchDetail may be
// called concurrently from many workers. ToCandidate merges listing and
// detail payloads; detail is nil when detail fetching is disabled.
type Source interface {
	Meta() Meta
	SearchPage(ctx context.Context, term string, offset, limit int) (Page, error)
	FetchDetail(ctx context.Context, listing Listing) (Detail, error)
	ToCandidate(listing Listing, detail *Detail) (ingestdomain.Candidate, error)
}

// IdentityRotator is implemented by adapters that can switch to a fresh
// client identity after being rate limited or blocked.
type IdentityRotator interface {
	Rotate()
}

// EmitFunc receives each merged candidate. Returning an error marks the
// item failed without affecting the rest of the run.
type EmitFunc func(ctx context.Context, c ingestdomain.Candidate) error
