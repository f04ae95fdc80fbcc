// Package deliveries implements delivery claiming and fulfilment, including
// the cascades back into the request lifecycle.
package deliveries

import (
	"context"
	"time"

	"github.com/nutrilink/platform/internal/app/domain/delivery"
	"github.com/nutrilink/platform/internal/app/domain/request"
	"github.com/nutrilink/platform/internal/app/domain/user"
	"github.com/nutrilink/platform/internal/app/metrics"
	"github.com/nutrilink/platform/internal/app/storage"
	apperrors "github.com/nutrilink/platform/internal/errors"
	"github.com/nutrilink/platform/pkg/logger"
)

// maxOpenTasks caps how many unclaimed requests a task poll returns.
const maxOpenTasks = 30

// Service manages deliveries.
type Service struct {
	store    storage.DeliveryStore
	requests storage.RequestStore
	listings storage.ListingStore
	users    storage.UserStore
	log      *logger.Logger
}

// New constructs a deliveries service.
func New(store storage.DeliveryStore, requests storage.RequestStore, listings storage.ListingStore, users storage.UserStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("deliveries")
	}
	return &Service{
		store:    store,
		requests: requests,
		listings: listings,
		users:    users,
		log:      log,
	}
}

// OpenTasks returns approved requests waiting for a delivery agent, oldest
// first, capped at thirty.
func (s *Service) OpenTasks(ctx context.Context) ([]request.Request, error) {
	return s.requests.ListOpenDeliveryTasks(ctx, maxOpenTasks)
}

// AcceptInput carries the route endpoints supplied when claiming a request.
type AcceptInput struct {
	PickupAddress  string
	DropoffAddress string
}

// Accept claims an approved request for the agent. Exactly one agent wins a
// concurrent claim; the loser gets a conflict. Addresses left empty in the
// input are snapshotted from the listing and the beneficiary at claim time.
func (s *Service) Accept(ctx context.Context, agentID, requestID string, in AcceptInput) (delivery.Delivery, error) {
	req, err := s.requests.GetRequest(ctx, requestID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return delivery.Delivery{}, apperrors.InvalidState("request is not available for delivery")
		}
		return delivery.Delivery{}, err
	}

	pickup, dropoff := in.PickupAddress, in.DropoffAddress
	if pickup == "" {
		if l, err := s.listings.GetListing(ctx, req.ListingID); err == nil {
			pickup = l.Address
		}
	}
	if dropoff == "" {
		if b, err := s.users.GetUser(ctx, req.BeneficiaryID); err == nil {
			dropoff = b.Address
		}
	}

	created, err := s.store.AcceptDelivery(ctx, delivery.Delivery{
		RequestID:       requestID,
		DeliveryAgentID: agentID,
		PickupAddress:   pickup,
		DropoffAddress:  dropoff,
	})
	if err != nil {
		return delivery.Delivery{}, err
	}

	metrics.RecordDeliveryTransition(string(delivery.StatusAssigned))
	s.log.WithField("delivery_id", created.ID).
		WithField("request_id", requestID).
		WithField("agent_id", agentID).
		Info("delivery accepted")
	return created, nil
}

// UpdateInput carries a delivery status change.
type UpdateInput struct {
	Status   string
	ProofURL string
}

// UpdateStatus advances a delivery. Agents may only touch their own
// deliveries; a delivery owned by someone else is indistinguishable from a
// missing one. Completion and cancellation cascade into the request: a
// delivered delivery completes it, a cancelled delivery re-opens it for
// another agent without touching the reservation.
func (s *Service) UpdateStatus(ctx context.Context, actorID string, actorRole user.Role, id string, in UpdateInput) (delivery.Delivery, error) {
	if !delivery.ValidStatus(in.Status) {
		return delivery.Delivery{}, apperrors.InvalidInput("unknown delivery status")
	}
	target := delivery.Status(in.Status)

	d, err := s.store.GetDelivery(ctx, id)
	if err != nil {
		return delivery.Delivery{}, err
	}
	if actorRole != user.RoleAdmin && d.DeliveryAgentID != actorID {
		return delivery.Delivery{}, apperrors.NotFound("delivery not found")
	}

	if !delivery.CanTransition(d.Status, target) {
		return delivery.Delivery{}, apperrors.InvalidState("cannot move delivery from " + string(d.Status) + " to " + string(target))
	}

	now := time.Now().UTC()
	d.Status = target
	switch target {
	case delivery.StatusPickedUp:
		d.PickupAt = now
	case delivery.StatusDelivered:
		d.DeliveredAt = now
	}
	if in.ProofURL != "" {
		d.ProofURL = in.ProofURL
	}

	updated, err := s.store.UpdateDelivery(ctx, d)
	if err != nil {
		return delivery.Delivery{}, err
	}
	metrics.RecordDeliveryTransition(string(target))

	switch target {
	case delivery.StatusDelivered:
		req, err := s.requests.TransitionRequest(ctx, updated.RequestID, request.StatusCompleted)
		if err != nil {
			s.log.WithError(err).WithField("request_id", updated.RequestID).Warn("complete request after delivery")
		} else {
			metrics.RecordRequestTransition(string(request.StatusCompleted), 0)
			metrics.RecordMealsDelivered(req.RequestedServings)
		}
	case delivery.StatusCancelled:
		// Re-open the request so another agent can claim it. The
		// reservation stays in place.
		if _, err := s.requests.TransitionRequest(ctx, updated.RequestID, request.StatusApproved); err != nil {
			s.log.WithError(err).WithField("request_id", updated.RequestID).Warn("re-open request after cancelled delivery")
		} else {
			metrics.RecordRequestTransition(string(request.StatusApproved), 0)
		}
	}

	s.log.WithField("delivery_id", updated.ID).
		WithField("status", string(target)).
		Info("delivery status updated")
	return updated, nil
}

// Get returns a delivery visible to the actor. Agents only see their own.
func (s *Service) Get(ctx context.Context, actorID string, actorRole user.Role, id string) (delivery.Delivery, error) {
	d, err := s.store.GetDelivery(ctx, id)
	if err != nil {
		return delivery.Delivery{}, err
	}
	if actorRole != user.RoleAdmin && d.DeliveryAgentID != actorID {
		return delivery.Delivery{}, apperrors.NotFound("delivery not found")
	}
	return d, nil
}

// Mine returns the agent's deliveries, newest first.
func (s *Service) Mine(ctx context.Context, agentID string) ([]delivery.Delivery, error) {
	return s.store.ListAgentDeliveries(ctx, agentID)
}
