// Package catalogfake is an offline catalog source for development runs and
// pipeline tests. It serves a fixed item set through the same pagination and
// detail contract a live retailer adapter implements, with hooks to inject
// upstream failures.
package catalogfake

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	ingestdomain "github.com/basketlabs/shelfscout/internal/ingest/domain"
	"github.com/basketlabs/shelfscout/internal/ingest/fetch"
)

// Item is one fake catalog entry.
type Item struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Brand        string     `json:"brand,omitempty"`
	Description  string     `json:"description,omitempty"`
	UnitSize     string     `json:"unit_size,omitempty"`
	Price        string     `json:"price"`
	WasPrice     string     `json:"was_price,omitempty"`
	PromoText    string     `json:"promo_text,omitempty"`
	PromoStart   *time.Time `json:"promo_start,omitempty"`
	PromoEnd     *time.Time `json:"promo_end,omitempty"`
	Category     string     `json:"category,omitempty"`
	CategoryCode string     `json:"category_code,omitempty"`
	Keywords     []string   `json:"keywords,omitempty"`
	ImageURL     string     `json:"image_url,omitempty"`
	ProductURL   string     `json:"product_url,omitempty"`
}

// FailFunc decides whether a request fails; attempt starts at 1 and counts
// per item (or per page offset).
type FailFunc func(id string, attempt int) error

type Option func(*Adapter)

// WithDetailFailure injects errors into detail fetches.
func WithDetailFailure(fn FailFunc) Option {
	return func(a *Adapter) { a.detailFail = fn }
}

// WithPageFailure injects errors into page fetches.
func WithPageFailure(fn FailFunc) Option {
	return func(a *Adapter) { a.pageFail = fn }
}

type Adapter struct {
	meta  fetch.Meta
	items []Item

	detailFail FailFunc
	pageFail   FailFunc

	mu        sync.Mutex
	attempts  map[string]int
	rotations int
	lastTerm  string
}

func New(code, name string, items []Item, opts ...Option) *Adapter {
	a := &Adapter{
		meta:     fetch.Meta{Code: code, Name: name},
		items:    items,
		attempts: make(map[string]int),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Meta() fetch.Meta { return a.meta }

func (a *Adapter) SearchPage(ctx context.Context, term string, offset, limit int) (fetch.Page, error) {
	if err := ctx.Err(); err != nil {
		return fetch.Page{}, err
	}
	a.mu.Lock()
	a.lastTerm = term
	a.mu.Unlock()
	if a.pageFail != nil {
		attempt := a.bumpAttempt(fmt.Sprintf("page:%d", offset))
		if err := a.pageFail(fmt.Sprintf("page:%d", offset), attempt); err != nil {
			return fetch.Page{}, err
		}
	}

	if offset < 0 || offset >= len(a.items) {
		return fetch.Page{Offset: offset, Total: len(a.items)}, nil
	}
	end := offset + limit
	if end > len(a.items) {
		end = len(a.items)
	}

	listings := make([]fetch.Listing, 0, end-offset)
	for _, item := range a.items[offset:end] {
		payload, _ := json.Marshal(map[string]string{
			"id":    item.ID,
			"title": item.Title,
			"price": item.Price,
		})
		listings = append(listings, fetch.Listing{
			ProductID: item.ID,
			Title:     item.Title,
			Payload:   payload,
		})
	}
	return fetch.Page{
		Offset:   offset,
		Total:    len(a.items),
		HasMore:  end < len(a.items),
		Listings: listings,
	}, nil
}

func (a *Adapter) FetchDetail(ctx context.Context, listing fetch.Listing) (fetch.Detail, error) {
	if err := ctx.Err(); err != nil {
		return fetch.Detail{}, err
	}
	attempt := a.bumpAttempt(listing.ProductID)
	if a.detailFail != nil {
		if err := a.detailFail(listing.ProductID, attempt); err != nil {
			return fetch.Detail{}, err
		}
	}

	item, ok := a.find(listing.ProductID)
	if !ok {
		return fetch.Detail{}, &fetch.StatusError{Code: 404}
	}
	payload, err := json.Marshal(item)
	if err != nil {
		return fetch.Detail{}, err
	}
	return fetch.Detail{Payload: payload}, nil
}

func (a *Adapter) ToCandidate(listing fetch.Listing, detail *fetch.Detail) (ingestdomain.Candidate, error) {
	var item Item
	payload := listing.Payload
	if detail != nil {
		payload = detail.Payload
	}
	if err := json.Unmarshal(payload, &item); err != nil {
		return ingestdomain.Candidate{}, err
	}
	if item.ID == "" {
		item.ID = listing.ProductID
	}

	return ingestdomain.Candidate{
		SourceCode:        a.meta.Code,
		ProductID:         item.ID,
		Name:              item.Title,
		Brand:             item.Brand,
		Description:       item.Description,
		ImageURL:          item.ImageURL,
		ProductURL:        item.ProductURL,
		UnitSize:          item.UnitSize,
		Price:             item.Price,
		OriginalPrice:     item.WasPrice,
		PromoText:         item.PromoText,
		PromoStart:        item.PromoStart,
		PromoEnd:          item.PromoEnd,
		Keywords:          item.Keywords,
		StoreCategoryCode: item.CategoryCode,
		StoreCategoryName: item.Category,
		Raw:               payload,
		FetchedAt:         time.Now().UTC(),
	}, nil
}

// Rotate satisfies fetch.IdentityRotator; the fake just counts calls.
func (a *Adapter) Rotate() {
	a.mu.Lock()
	a.rotations++
	a.mu.Unlock()
}

// Rotations reports how often the identity was rotated.
func (a *Adapter) Rotations() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rotations
}

// LastTerm reports the search term of the most recent page request.
func (a *Adapter) LastTerm() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastTerm
}

// Attempts reports how many times an item's detail was requested.
func (a *Adapter) Attempts(id string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.attempts[id]
}

func (a *Adapter) bumpAttempt(key string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.attempts[key]++
	return a.attempts[key]
}

func (a *Adapter) find(id string) (Item, bool) {
	for _, item := range a.items {
		if item.ID == id {
			return item, true
		}
	}
	return Item{}, false
}
