// Package catalog holds the bookable service listings providers publish.
package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrListingNotFound = errors.New("service listing not found")
	ErrInvalidListing  = errors.New("invalid service listing")
	ErrForbidden       = errors.New("not allowed to manage this listing")
)

type Listing struct {
	ID              uuid.UUID `json:"id"`
	ProviderID      uuid.UUID `json:"provider_id"`
	Name            string    `json:"name"`
	Category        string    `json:"category"`
	Description     string    `json:"description,omitempty"`
	BasePrice       float64   `json:"base_price"`
	Currency        string    `json:"currency"`
	DurationMinutes int       `json:"duration_minutes"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type ListFilter struct {
	ProviderID *uuid.UUID
	Category   string
	ActiveOnly bool
	Limit      int
	Offset     int
}

type Repository interface {
	Create(ctx context.Context, l *Listing) error
	Get(ctx context.Context, id uuid.UUID) (*Listing, error)
	List(ctx context.Context, f ListFilter) ([]Listing, error)
	Update(ctx context.Context, l *Listing) error
}
