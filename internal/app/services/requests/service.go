// Package requests implements the request lifecycle and its inventory
// accounting against listings.
package requests

import (
	"context"
	"strings"

	"github.com/nutrilink/platform/internal/app/domain/request"
	"github.com/nutrilink/platform/internal/app/domain/user"
	"github.com/nutrilink/platform/internal/app/metrics"
	"github.com/nutrilink/platform/internal/app/storage"
	apperrors "github.com/nutrilink/platform/internal/errors"
	"github.com/nutrilink/platform/pkg/logger"
)

// Service manages food requests.
type Service struct {
	store         storage.RequestStore
	listings      storage.ListingStore
	log           *logger.Logger
	initialStatus request.Status
}

// New constructs a requests service. initialStatus is the status new requests
// start in; with StatusApproved no provider approval step is needed before a
// delivery can be claimed.
func New(store storage.RequestStore, listings storage.ListingStore, initialStatus request.Status, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("requests")
	}
	if initialStatus == "" {
		initialStatus = request.StatusPending
	}
	return &Service{
		store:         store,
		listings:      listings,
		log:           log,
		initialStatus: initialStatus,
	}
}

// CreateInput carries the fields accepted when requesting servings.
type CreateInput struct {
	ListingID string
	Servings  int
	Notes     string
}

// Create reserves servings against a listing and records the request. The
// reservation and the insert happen atomically; a losing race over the last
// servings fails cleanly with no inventory change.
func (s *Service) Create(ctx context.Context, beneficiaryID string, in CreateInput) (request.Request, error) {
	if strings.TrimSpace(in.ListingID) == "" {
		return request.Request{}, apperrors.InvalidInput("listingId is required")
	}
	if in.Servings <= 0 {
		return request.Request{}, apperrors.InvalidInput("servings must be positive")
	}

	created, err := s.store.ReserveRequest(ctx, request.Request{
		ListingID:         in.ListingID,
		BeneficiaryID:     beneficiaryID,
		RequestedServings: in.Servings,
		Status:            s.initialStatus,
		Notes:             strings.TrimSpace(in.Notes),
	})
	if err != nil {
		return request.Request{}, err
	}

	metrics.RecordRequestCreated(created.RequestedServings)
	s.log.WithField("request_id", created.ID).
		WithField("listing_id", created.ListingID).
		WithField("servings", created.RequestedServings).
		Info("request created")
	return created, nil
}

// UpdateStatus drives a request through its lifecycle. The transition table
// rejects anything not explicitly allowed, including moves out of the
// terminal states. Beneficiaries may only cancel their own requests;
// providers act on requests against their own listings; admins act on any.
func (s *Service) UpdateStatus(ctx context.Context, actorID string, actorRole user.Role, id string, raw string) (request.Request, error) {
	if !request.ValidStatus(raw) {
		return request.Request{}, apperrors.InvalidInput("unknown request status")
	}
	target := request.Status(raw)

	req, err := s.store.GetRequest(ctx, id)
	if err != nil {
		return request.Request{}, err
	}

	if err := s.authorize(ctx, actorID, actorRole, req, target); err != nil {
		return request.Request{}, err
	}

	if !request.CanTransition(req.Status, target) {
		return request.Request{}, apperrors.InvalidState("cannot move request from " + string(req.Status) + " to " + string(target))
	}

	updated, err := s.store.TransitionRequest(ctx, id, target)
	if err != nil {
		return request.Request{}, err
	}

	released := 0
	if target == request.StatusCancelled {
		released = updated.RequestedServings
	}
	metrics.RecordRequestTransition(string(target), released)
	s.log.WithField("request_id", updated.ID).
		WithField("status", string(target)).
		Info("request status updated")
	return updated, nil
}

func (s *Service) authorize(ctx context.Context, actorID string, actorRole user.Role, req request.Request, target request.Status) error {
	if !request.RoleMaySet(actorRole, target) {
		return apperrors.Forbidden("role may not set this status")
	}

	switch actorRole {
	case user.RoleAdmin, user.RoleDelivery:
		return nil
	case user.RoleBeneficiary:
		if req.BeneficiaryID != actorID {
			return apperrors.Forbidden("not the request owner")
		}
		return nil
	case user.RoleProvider:
		l, err := s.listings.GetListing(ctx, req.ListingID)
		if err != nil {
			return err
		}
		if l.ProviderID != actorID {
			return apperrors.Forbidden("not the listing owner")
		}
		return nil
	default:
		return apperrors.Forbidden("role may not manage requests")
	}
}

// Get returns a single request.
func (s *Service) Get(ctx context.Context, id string) (request.Request, error) {
	return s.store.GetRequest(ctx, id)
}

// ListFor returns the requests visible to the actor: beneficiaries see their
// own, providers see requests against their listings, delivery agents see
// requests they are fulfilling, admins see everything.
func (s *Service) ListFor(ctx context.Context, actorID string, actorRole user.Role) ([]request.Request, error) {
	var filter storage.RequestFilter
	switch actorRole {
	case user.RoleBeneficiary:
		filter.BeneficiaryID = actorID
	case user.RoleProvider:
		filter.ProviderID = actorID
	case user.RoleDelivery:
		filter.DeliveryAgentID = actorID
	case user.RoleAdmin:
	default:
		return nil, apperrors.Forbidden("role may not list requests")
	}
	return s.store.ListRequests(ctx, filter)
}
