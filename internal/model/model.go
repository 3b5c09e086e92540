// Package model defines the domain types used across the application.
package model

import "time"

// TrackedQuery is a search term the tracker watches on every source.
type TrackedQuery struct {
	ID     int64
	Text   string
	Active bool
}

// ListingKey identifies one Listing: the same item on the same source found
// for the same tracked query.
type ListingKey struct {
	Source       string
	SourceItemID string
	QueryID      int64
}

// Listing is one item found on one source for one tracked query.
type Listing struct {
	ID            int64
	Source        string
	SourceItemID  string
	QueryID       int64
	Name          string
	Href          string
	ImageHref     *string
	Brand         *string
	CreatedAt     time.Time
	LastUpdated   time.Time
	LastConfirmed *time.Time
}

// Key returns the identity triple of the listing.
func (l *Listing) Key() ListingKey {
	return ListingKey{Source: l.Source, SourceItemID: l.SourceItemID, QueryID: l.QueryID}
}

// PriceObservation is a price seen for a listing at a point in time.
type PriceObservation struct {
	ID        int64
	ListingID int64
	Price     float64
	Timestamp time.Time
}

// StockObservation is the availability of a listing at a point in time.
type StockObservation struct {
	ID        int64
	ListingID int64
	InStock   bool
	Timestamp time.Time
}

// Observation is a single item as reported by a source adapter.
type Observation struct {
	SourceItemID string   `json:"id"`
	Name         string   `json:"name"`
	Href         string   `json:"href"`
	ImageHref    *string  `json:"img_href"`
	Brand        *string  `json:"brand"`
	Price        *float64 `json:"price"`
	InStock      bool     `json:"in_stock"`
}

// FetchResult is the normalized batch an adapter returns for one search term.
type FetchResult struct {
	Observations []Observation `json:"products"`
	FetchedAt    time.Time     `json:"timestamp"`
}
