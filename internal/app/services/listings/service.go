// Package listings manages surplus food listings and their expiry.
package listings

import (
	"context"
	"strings"
	"time"

	"github.com/nutrilink/platform/internal/app/domain/listing"
	"github.com/nutrilink/platform/internal/app/domain/user"
	"github.com/nutrilink/platform/internal/app/storage"
	apperrors "github.com/nutrilink/platform/internal/errors"
	"github.com/nutrilink/platform/pkg/logger"
)

// Service manages listings.
type Service struct {
	store storage.ListingStore
	log   *logger.Logger
}

// New constructs a listings service.
func New(store storage.ListingStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("listings")
	}
	return &Service{store: store, log: log}
}

// CreateInput carries the fields accepted when posting a listing.
type CreateInput struct {
	Title       string
	Description string
	Category    string
	FoodType    string
	Servings    int
	Address     string
	Latitude    float64
	Longitude   float64
	ExpiryAt    time.Time
}

// Create posts a new listing for the provider. The full quantity starts
// available.
func (s *Service) Create(ctx context.Context, providerID string, in CreateInput) (listing.Listing, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Category = strings.ToLower(strings.TrimSpace(in.Category))
	in.FoodType = strings.TrimSpace(in.FoodType)

	if in.Title == "" {
		return listing.Listing{}, apperrors.InvalidInput("title is required")
	}
	if in.Category == "" {
		return listing.Listing{}, apperrors.InvalidInput("category is required")
	}
	if in.Servings <= 0 {
		return listing.Listing{}, apperrors.InvalidInput("servings must be positive")
	}
	if in.ExpiryAt.IsZero() || !in.ExpiryAt.After(time.Now()) {
		return listing.Listing{}, apperrors.InvalidInput("expiryAt must lie in the future")
	}

	created, err := s.store.CreateListing(ctx, listing.Listing{
		ProviderID:    providerID,
		Title:         in.Title,
		Description:   strings.TrimSpace(in.Description),
		Category:      in.Category,
		FoodType:      in.FoodType,
		ServingsTotal: in.Servings,
		ServingsLeft:  in.Servings,
		Status:        listing.StatusAvailable,
		Address:       strings.TrimSpace(in.Address),
		Latitude:      in.Latitude,
		Longitude:     in.Longitude,
		ExpiryAt:      in.ExpiryAt.UTC(),
	})
	if err != nil {
		return listing.Listing{}, err
	}

	s.log.WithField("listing_id", created.ID).
		WithField("provider_id", providerID).
		WithField("servings", created.ServingsTotal).
		Info("listing created")
	return created, nil
}

// UpdateInput carries optional listing changes. Nil fields are untouched.
type UpdateInput struct {
	Title       *string
	Description *string
	Category    *string
	FoodType    *string
	Address     *string
	Status      *string
	ExpiryAt    *time.Time
}

// Update modifies a listing. Only the owning provider or an admin may edit.
func (s *Service) Update(ctx context.Context, actorID string, actorRole user.Role, id string, in UpdateInput) (listing.Listing, error) {
	l, err := s.store.GetListing(ctx, id)
	if err != nil {
		return listing.Listing{}, err
	}
	if actorRole != user.RoleAdmin && l.ProviderID != actorID {
		return listing.Listing{}, apperrors.Forbidden("not the listing owner")
	}

	if in.Title != nil {
		if trimmed := strings.TrimSpace(*in.Title); trimmed != "" {
			l.Title = trimmed
		}
	}
	if in.Description != nil {
		l.Description = strings.TrimSpace(*in.Description)
	}
	if in.Category != nil {
		if trimmed := strings.ToLower(strings.TrimSpace(*in.Category)); trimmed != "" {
			l.Category = trimmed
		}
	}
	if in.FoodType != nil {
		l.FoodType = strings.TrimSpace(*in.FoodType)
	}
	if in.Address != nil {
		l.Address = strings.TrimSpace(*in.Address)
	}
	if in.Status != nil {
		if !listing.ValidStatus(*in.Status) {
			return listing.Listing{}, apperrors.InvalidInput("unknown listing status")
		}
		l.Status = listing.Status(*in.Status)
	}
	if in.ExpiryAt != nil {
		l.ExpiryAt = in.ExpiryAt.UTC()
	}

	updated, err := s.store.UpdateListing(ctx, l)
	if err != nil {
		return listing.Listing{}, err
	}
	s.log.WithField("listing_id", updated.ID).Info("listing updated")
	return updated, nil
}

// Get returns a single listing.
func (s *Service) Get(ctx context.Context, id string) (listing.Listing, error) {
	return s.store.GetListing(ctx, id)
}

// List returns listings matching the filter.
func (s *Service) List(ctx context.Context, filter storage.ListingFilter) ([]listing.Listing, error) {
	return s.store.ListListings(ctx, filter)
}

// Mine returns all listings owned by the provider, regardless of status.
func (s *Service) Mine(ctx context.Context, providerID string) ([]listing.Listing, error) {
	return s.store.ListProviderListings(ctx, providerID)
}
