package domain

import (
	"encoding/json"
	"time"
)

// Candidate is the normalized-but-unsanitized representation of one product,
// as produced by a source adapter from merged listing and detail payloads.
// Price fields stay raw text until normalization.
type Candidate struct {
	SourceCode string
	ProductID  string

	Name        string
	Brand       string
	Description string
	ImageURL    string
	ProductURL  string
	UnitSize    string

	Price              string
	OriginalPrice      string
	DiscountPercentage *float64

	PromoText  string
	PromoStart *time.Time
	PromoEnd   *time.Time

	Keywords     []string
	CategoryPath []string

	StoreCategoryCode        string
	StoreCategoryName        string
	StoreCategoryDescription string
	StoreCategoryLogoURL     string

	Raw       json.RawMessage
	FetchedAt time.Time
}

// RunSummary is the terminal result of one ingestion run. Counters only;
// item-level failures never abort a run.
type RunSummary struct {
	Source   string    `json:"source"`
	RunID    string    `json:"run_id"`
	Pages    int       `json:"pages"`
	Queued   int       `json:"queued"`
	Fetched  int       `json:"fetched"`
	Upserted int       `json:"upserted"`
	Failed   int       `json:"failed"`
	Skipped  int       `json:"skipped"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
}
