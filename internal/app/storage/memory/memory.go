// Package memory provides an in-memory implementation of the storage
// interfaces. It is safe for concurrent use and is primarily intended for
// tests and local development. Every multi-entity mutation happens under a
// single lock hold, which gives the same all-or-nothing visibility the
// PostgreSQL store gets from transactions.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nutrilink/platform/internal/app/domain/delivery"
	"github.com/nutrilink/platform/internal/app/domain/listing"
	"github.com/nutrilink/platform/internal/app/domain/request"
	"github.com/nutrilink/platform/internal/app/domain/user"
	"github.com/nutrilink/platform/internal/app/storage"
	apperrors "github.com/nutrilink/platform/internal/errors"
)

// Store is an in-memory implementation of the storage interfaces.
type Store struct {
	mu sync.RWMutex

	users        map[string]user.User
	usersByEmail map[string]string
	userOrder    []string

	listings     map[string]listing.Listing
	listingOrder []string

	requests     map[string]request.Request
	requestOrder []string

	deliveries          map[string]delivery.Delivery
	deliveryOrder       []string
	deliveriesByRequest map[string]string // live (non-cancelled) delivery per request
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.ListingStore = (*Store)(nil)
var _ storage.RequestStore = (*Store)(nil)
var _ storage.DeliveryStore = (*Store)(nil)
var _ storage.AnalyticsStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		users:               make(map[string]user.User),
		usersByEmail:        make(map[string]string),
		listings:            make(map[string]listing.Listing),
		requests:            make(map[string]request.Request),
		deliveries:          make(map[string]delivery.Delivery),
		deliveriesByRequest: make(map[string]string),
	}
}

// --- UserStore ---------------------------------------------------------------

func (s *Store) CreateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(strings.TrimSpace(u.Email))
	if _, exists := s.usersByEmail[email]; exists {
		return user.User{}, apperrors.Conflict("email already registered")
	}

	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	u.Email = email
	u.CreatedAt = now
	u.UpdatedAt = now

	s.users[u.ID] = u
	s.usersByEmail[email] = u.ID
	s.userOrder = append(s.userOrder, u.ID)
	return u, nil
}

func (s *Store) UpdateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[u.ID]
	if !ok {
		return user.User{}, apperrors.NotFound("user not found")
	}

	u.Email = existing.Email
	u.PasswordHash = existing.PasswordHash
	u.CreatedAt = existing.CreatedAt
	u.UpdatedAt = time.Now().UTC()

	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return user.User{}, apperrors.NotFound("user not found")
	}
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usersByEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return user.User{}, apperrors.NotFound("user not found")
	}
	return s.users[id], nil
}

func (s *Store) ListUsers(_ context.Context, filter storage.UserFilter) ([]user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []user.User
	// Newest first, matching the SQL store's ORDER BY created_at DESC.
	for i := len(s.userOrder) - 1; i >= 0; i-- {
		u := s.users[s.userOrder[i]]
		if !filter.IncludePending && u.Status != user.StatusApproved {
			continue
		}
		if filter.ActiveOnly && !u.IsActive {
			continue
		}
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		if filter.Search != "" && !matchesUser(u, filter.Search) {
			continue
		}
		result = append(result, u)
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result, nil
}

func matchesUser(u user.User, search string) bool {
	needle := strings.ToLower(search)
	return strings.Contains(strings.ToLower(u.FullName), needle) ||
		strings.Contains(strings.ToLower(u.Email), needle) ||
		strings.Contains(strings.ToLower(u.Address), needle)
}

// --- ListingStore ------------------------------------------------------------

func (s *Store) CreateListing(_ context.Context, l listing.Listing) (listing.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	l.CreatedAt = now
	l.UpdatedAt = now
	if l.Status == "" {
		l.Status = listing.StatusAvailable
	}

	s.listings[l.ID] = l
	s.listingOrder = append(s.listingOrder, l.ID)
	return l, nil
}

func (s *Store) UpdateListing(_ context.Context, l listing.Listing) (listing.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.listings[l.ID]
	if !ok {
		return listing.Listing{}, apperrors.NotFound("listing not found")
	}

	l.ProviderID = existing.ProviderID
	l.CreatedAt = existing.CreatedAt
	l.UpdatedAt = time.Now().UTC()

	s.listings[l.ID] = l
	return l, nil
}

func (s *Store) GetListing(_ context.Context, id string) (listing.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.listings[id]
	if !ok {
		return listing.Listing{}, apperrors.NotFound("listing not found")
	}
	return l, nil
}

func (s *Store) ListListings(_ context.Context, filter storage.ListingFilter) ([]listing.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []listing.Listing
	for i := len(s.listingOrder) - 1; i >= 0; i-- {
		l := s.listings[s.listingOrder[i]]
		if filter.Status != "" && l.Status != filter.Status {
			continue
		}
		if filter.Category != "" && l.Category != strings.ToLower(filter.Category) {
			continue
		}
		if filter.Search != "" && !matchesListing(l, filter.Search) {
			continue
		}
		result = append(result, l)
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result, nil
}

func matchesListing(l listing.Listing, search string) bool {
	needle := strings.ToLower(search)
	return strings.Contains(strings.ToLower(l.Title), needle) ||
		strings.Contains(strings.ToLower(l.Description), needle)
}

func (s *Store) ListProviderListings(_ context.Context, providerID string) ([]listing.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []listing.Listing
	for i := len(s.listingOrder) - 1; i >= 0; i-- {
		if l := s.listings[s.listingOrder[i]]; l.ProviderID == providerID {
			result = append(result, l)
		}
	}
	return result, nil
}

func (s *Store) ExpireListings(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired int64
	for id, l := range s.listings {
		if (l.Status == listing.StatusAvailable || l.Status == listing.StatusReserved) && l.ExpiryAt.Before(now) {
			l.Status = listing.StatusExpired
			l.UpdatedAt = now.UTC()
			s.listings[id] = l
			expired++
		}
	}
	return expired, nil
}

// --- RequestStore ------------------------------------------------------------

func (s *Store) ReserveRequest(_ context.Context, req request.Request) (request.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.listings[req.ListingID]
	if !ok {
		return request.Request{}, apperrors.NotFound("listing not found")
	}
	if l.Status != listing.StatusAvailable {
		return request.Request{}, apperrors.InvalidState("listing unavailable")
	}
	if l.ServingsLeft < req.RequestedServings {
		return request.Request{}, apperrors.InvalidState("insufficient servings")
	}

	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now

	l.ServingsLeft -= req.RequestedServings
	l.UpdatedAt = now
	s.listings[l.ID] = l

	s.requests[req.ID] = req
	s.requestOrder = append(s.requestOrder, req.ID)
	return req, nil
}

func (s *Store) TransitionRequest(_ context.Context, id string, status request.Status) (request.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[id]
	if !ok {
		return request.Request{}, apperrors.NotFound("request not found")
	}

	previous := req.Status
	now := time.Now().UTC()
	req.Status = status
	req.UpdatedAt = now

	l, hasListing := s.listings[req.ListingID]

	// Release the reservation exactly once per request lifetime.
	if status == request.StatusCancelled && previous != request.StatusCancelled && hasListing {
		l.ServingsLeft += req.RequestedServings
		if l.ServingsLeft > l.ServingsTotal {
			l.ServingsLeft = l.ServingsTotal
		}
		l.UpdatedAt = now
		s.listings[l.ID] = l
	}

	if status == request.StatusCompleted && hasListing && l.ServingsLeft == 0 {
		l.Status = listing.StatusCompleted
		l.UpdatedAt = now
		s.listings[l.ID] = l
	}

	s.requests[id] = req
	return req, nil
}

func (s *Store) GetRequest(_ context.Context, id string) (request.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.requests[id]
	if !ok {
		return request.Request{}, apperrors.NotFound("request not found")
	}
	return req, nil
}

func (s *Store) ListRequests(_ context.Context, filter storage.RequestFilter) ([]request.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []request.Request
	for i := len(s.requestOrder) - 1; i >= 0; i-- {
		req := s.requests[s.requestOrder[i]]
		if filter.BeneficiaryID != "" && req.BeneficiaryID != filter.BeneficiaryID {
			continue
		}
		if filter.ProviderID != "" {
			l, ok := s.listings[req.ListingID]
			if !ok || l.ProviderID != filter.ProviderID {
				continue
			}
		}
		if filter.DeliveryAgentID != "" {
			// Cancelled deliveries count: the agent keeps visibility into
			// requests they have handled at any point.
			handled := false
			for _, deliveryID := range s.deliveryOrder {
				d := s.deliveries[deliveryID]
				if d.RequestID == req.ID && d.DeliveryAgentID == filter.DeliveryAgentID {
					handled = true
					break
				}
			}
			if !handled {
				continue
			}
		}
		result = append(result, req)
	}
	return result, nil
}

func (s *Store) ListOpenDeliveryTasks(_ context.Context, limit int) ([]request.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []request.Request
	for _, id := range s.requestOrder { // oldest first
		req := s.requests[id]
		if req.Status != request.StatusApproved {
			continue
		}
		if _, claimed := s.deliveriesByRequest[req.ID]; claimed {
			continue
		}
		result = append(result, req)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

// --- DeliveryStore -----------------------------------------------------------

func (s *Store) AcceptDelivery(_ context.Context, d delivery.Delivery) (delivery.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A live delivery wins over the status check so a losing claim reads as
	// a conflict, not an unavailable request.
	if _, claimed := s.deliveriesByRequest[d.RequestID]; claimed {
		return delivery.Delivery{}, apperrors.Conflict("delivery already assigned")
	}
	req, ok := s.requests[d.RequestID]
	if !ok || req.Status != request.StatusApproved {
		return delivery.Delivery{}, apperrors.InvalidState("request is not available for delivery")
	}

	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	d.Status = delivery.StatusAssigned
	d.CreatedAt = now
	d.UpdatedAt = now

	req.Status = request.StatusInProgress
	req.UpdatedAt = now
	s.requests[req.ID] = req

	s.deliveries[d.ID] = d
	s.deliveryOrder = append(s.deliveryOrder, d.ID)
	s.deliveriesByRequest[d.RequestID] = d.ID
	return d, nil
}

func (s *Store) UpdateDelivery(_ context.Context, d delivery.Delivery) (delivery.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.deliveries[d.ID]
	if !ok {
		return delivery.Delivery{}, apperrors.NotFound("delivery not found")
	}

	d.RequestID = existing.RequestID
	d.DeliveryAgentID = existing.DeliveryAgentID
	d.CreatedAt = existing.CreatedAt
	d.UpdatedAt = time.Now().UTC()

	// A cancelled delivery stops blocking re-acceptance of the request.
	if d.Status == delivery.StatusCancelled && existing.Status != delivery.StatusCancelled {
		delete(s.deliveriesByRequest, d.RequestID)
	}

	s.deliveries[d.ID] = d
	return d, nil
}

func (s *Store) GetDelivery(_ context.Context, id string) (delivery.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.deliveries[id]
	if !ok {
		return delivery.Delivery{}, apperrors.NotFound("delivery not found")
	}
	return d, nil
}

func (s *Store) GetDeliveryByRequest(_ context.Context, requestID string) (delivery.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.deliveriesByRequest[requestID]
	if !ok {
		return delivery.Delivery{}, apperrors.NotFound("delivery not found")
	}
	return s.deliveries[id], nil
}

func (s *Store) ListAgentDeliveries(_ context.Context, agentID string) ([]delivery.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []delivery.Delivery
	for i := len(s.deliveryOrder) - 1; i >= 0; i-- {
		if d := s.deliveries[s.deliveryOrder[i]]; d.DeliveryAgentID == agentID {
			result = append(result, d)
		}
	}
	return result, nil
}

// --- AnalyticsStore ----------------------------------------------------------

func (s *Store) Summary(_ context.Context) (storage.AnalyticsSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := storage.AnalyticsSummary{
		TotalUsers:    len(s.users),
		TotalListings: len(s.listings),
	}
	for _, req := range s.requests {
		if req.Status == request.StatusCompleted {
			summary.CompletedRequests++
			summary.MealsDelivered += req.RequestedServings
		}
	}
	for _, l := range s.listings {
		summary.MealsAvailable += l.ServingsLeft
	}
	for _, d := range s.deliveries {
		if d.Status == delivery.StatusAssigned || d.Status == delivery.StatusPickedUp {
			summary.ActiveDeliveries++
		}
	}
	return summary, nil
}
