// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"time"

	"price_tracker/internal/model"
)

// Storage is the interface for all persistence operations.
//
// Implementations serialize every call: concurrent callers observe each
// operation as atomic, and no caller may reach the underlying connection
// directly. Read methods that fail return an empty slice along with an error
// wrapping ErrDataAccess.
type Storage interface {
	InitializeSchema(ctx context.Context) error

	AddTrackedQuery(ctx context.Context, text string) (int64, error)
	ListTrackedQueries(ctx context.Context) ([]model.TrackedQuery, error)
	ListActiveTrackedQueries(ctx context.Context) ([]model.TrackedQuery, error)
	SetTrackedQueryActive(ctx context.Context, id int64, active bool) error

	FindListingID(ctx context.Context, key model.ListingKey) (int64, bool, error)
	InsertListing(ctx context.Context, l *model.Listing) error
	EnsureListing(ctx context.Context, l *model.Listing) (bool, error)
	TouchLastConfirmed(ctx context.Context, listingID int64, at time.Time) error
	GetListing(ctx context.Context, id int64) (*model.Listing, error)
	ListListings(ctx context.Context) ([]model.Listing, error)

	InsertPriceObservation(ctx context.Context, listingID int64, price float64, at time.Time) error
	InsertStockObservation(ctx context.Context, listingID int64, inStock bool, at time.Time) error
	ListPriceHistory(ctx context.Context, listingID int64) ([]model.PriceObservation, error)
	ListStockHistory(ctx context.Context, listingID int64) ([]model.StockObservation, error)

	Close() error
}
