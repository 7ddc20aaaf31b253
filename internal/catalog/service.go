package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/abhishinde10/healthnexus/internal/auth"
)

type CreateRequest struct {
	ProviderID      uuid.UUID
	Name            string
	Category        string
	Description     string
	BasePrice       float64
	Currency        string
	DurationMinutes int
}

// UpdateRequest carries only the fields to change.
type UpdateRequest struct {
	Name            *string
	Category        *string
	Description     *string
	BasePrice       *float64
	DurationMinutes *int
	Active          *bool
}

type Service struct {
	repo Repository
	log  zerolog.Logger
	now  func() time.Time
}

func NewService(repo Repository, log zerolog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log.With().Str("component", "catalog").Logger(),
		now:  time.Now,
	}
}

// Create publishes a listing. Providers publish for themselves; admins must
// name the provider.
func (s *Service) Create(ctx context.Context, actor auth.Caller, req CreateRequest) (*Listing, error) {
	switch {
	case actor.IsProvider():
		if req.ProviderID != uuid.Nil && req.ProviderID != actor.ID {
			return nil, ErrForbidden
		}
		req.ProviderID = actor.ID
	case actor.Role == auth.RoleAdmin:
		if req.ProviderID == uuid.Nil {
			return nil, fmt.Errorf("%w: provider_id is required", ErrInvalidListing)
		}
	default:
		return nil, ErrForbidden
	}

	now := s.now()
	l := &Listing{
		ID:              uuid.New(),
		ProviderID:      req.ProviderID,
		Name:            strings.TrimSpace(req.Name),
		Category:        strings.ToLower(strings.TrimSpace(req.Category)),
		Description:     req.Description,
		BasePrice:       req.BasePrice,
		Currency:        req.Currency,
		DurationMinutes: req.DurationMinutes,
		Active:          true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if l.Currency == "" {
		l.Currency = "USD"
	}
	if l.DurationMinutes == 0 {
		l.DurationMinutes = 30
	}
	if err := validate(l); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, l); err != nil {
		return nil, fmt.Errorf("create listing: %w", err)
	}

	s.log.Info().Str("listing_id", l.ID.String()).Str("provider_id", l.ProviderID.String()).Msg("listing created")
	return l, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Listing, error) {
	l, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get listing: %w", err)
	}
	return l, nil
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]Listing, error) {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	f.Category = strings.ToLower(strings.TrimSpace(f.Category))

	listings, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	return listings, nil
}

func (s *Service) Update(ctx context.Context, actor auth.Caller, id uuid.UUID, req UpdateRequest) (*Listing, error) {
	l, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load listing: %w", err)
	}
	if actor.Role != auth.RoleAdmin && !(actor.IsProvider() && actor.ID == l.ProviderID) {
		return nil, ErrForbidden
	}

	if req.Name != nil {
		l.Name = strings.TrimSpace(*req.Name)
	}
	if req.Category != nil {
		l.Category = strings.ToLower(strings.TrimSpace(*req.Category))
	}
	if req.Description != nil {
		l.Description = *req.Description
	}
	if req.BasePrice != nil {
		l.BasePrice = *req.BasePrice
	}
	if req.DurationMinutes != nil {
		l.DurationMinutes = *req.DurationMinutes
	}
	if req.Active != nil {
		l.Active = *req.Active
	}
	if err := validate(l); err != nil {
		return nil, err
	}
	l.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, l); err != nil {
		return nil, fmt.Errorf("update listing: %w", err)
	}
	return l, nil
}

func validate(l *Listing) error {
	switch {
	case l.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidListing)
	case l.Category == "":
		return fmt.Errorf("%w: category is required", ErrInvalidListing)
	case l.BasePrice < 0:
		return fmt.Errorf("%w: base price is negative", ErrInvalidListing)
	case l.DurationMinutes < 15 || l.DurationMinutes > 480:
		return fmt.Errorf("%w: duration must be between 15 and 480 minutes", ErrInvalidListing)
	}
	return nil
}
