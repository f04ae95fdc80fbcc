package storage

import (
	"context"
	"time"

	"github.com/nutrilink/platform/internal/app/domain/delivery"
	"github.com/nutrilink/platform/internal/app/domain/listing"
	"github.com/nutrilink/platform/internal/app/domain/request"
	"github.com/nutrilink/platform/internal/app/domain/user"
)

// UserFilter narrows ListUsers results.
type UserFilter struct {
	Role           user.Role
	IncludePending bool
	ActiveOnly     bool
	Search         string
	Limit          int
}

// ListingFilter narrows ListListings results.
type ListingFilter struct {
	Status   listing.Status
	Category string
	Search   string
	Limit    int
}

// RequestFilter scopes ListRequests to what the acting role may see.
type RequestFilter struct {
	BeneficiaryID   string // requests created by this beneficiary
	ProviderID      string // requests against this provider's listings
	DeliveryAgentID string // requests fulfilled by this agent
}

// AnalyticsSummary aggregates platform-wide activity for admins.
type AnalyticsSummary struct {
	TotalUsers        int `json:"totalUsers"`
	TotalListings     int `json:"totalListings"`
	CompletedRequests int `json:"completedRequests"`
	ActiveDeliveries  int `json:"activeDeliveries"`
	MealsDelivered    int `json:"mealsDelivered"`
	MealsAvailable    int `json:"mealsAvailable"`
}

// UserStore persists user records. Email is unique; a duplicate insert fails
// with a Conflict error.
type UserStore interface {
	CreateUser(ctx context.Context, u user.User) (user.User, error)
	UpdateUser(ctx context.Context, u user.User) (user.User, error)
	GetUser(ctx context.Context, id string) (user.User, error)
	GetUserByEmail(ctx context.Context, email string) (user.User, error)
	ListUsers(ctx context.Context, filter UserFilter) ([]user.User, error)
}

// ListingStore persists listings.
type ListingStore interface {
	CreateListing(ctx context.Context, l listing.Listing) (listing.Listing, error)
	UpdateListing(ctx context.Context, l listing.Listing) (listing.Listing, error)
	GetListing(ctx context.Context, id string) (listing.Listing, error)
	ListListings(ctx context.Context, filter ListingFilter) ([]listing.Listing, error)
	ListProviderListings(ctx context.Context, providerID string) ([]listing.Listing, error)

	// ExpireListings marks available and reserved listings whose expiry
	// timestamp lies before now as expired, returning how many changed.
	ExpireListings(ctx context.Context, now time.Time) (int64, error)
}

// RequestStore persists requests together with their inventory accounting.
//
// ReserveRequest and TransitionRequest are the only two mutation paths for
// Listing.ServingsLeft; each executes as a single all-or-nothing unit so no
// concurrent reader observes a partial update.
type RequestStore interface {
	// ReserveRequest atomically verifies the listing is available with
	// sufficient servings, decrements ServingsLeft by RequestedServings and
	// creates the request. On failure nothing is mutated and the error is
	// InvalidState ("listing unavailable" or "insufficient servings") or
	// NotFound for an unknown listing.
	ReserveRequest(ctx context.Context, req request.Request) (request.Request, error)

	// TransitionRequest atomically sets the request status and applies the
	// paired side effects: a transition to cancelled releases the request's
	// servings back to the listing exactly once (skipped when the request is
	// already cancelled); a transition to completed completes the listing
	// when its ServingsLeft has reached zero. Authority and transition-table
	// checks are the caller's responsibility.
	TransitionRequest(ctx context.Context, id string, status request.Status) (request.Request, error)

	GetRequest(ctx context.Context, id string) (request.Request, error)
	ListRequests(ctx context.Context, filter RequestFilter) ([]request.Request, error)

	// ListOpenDeliveryTasks returns approved requests with no live delivery,
	// oldest first, capped at limit.
	ListOpenDeliveryTasks(ctx context.Context, limit int) ([]request.Request, error)
}

// DeliveryStore persists deliveries. The request reference is unique among
// non-cancelled deliveries; the store rejects the second concurrent claim
// with a Conflict error.
type DeliveryStore interface {
	// AcceptDelivery atomically verifies the request status is exactly
	// approved and has no live delivery, creates the delivery as assigned,
	// and moves the request to in_progress. A losing concurrent claim
	// surfaces Conflict ("delivery already assigned").
	AcceptDelivery(ctx context.Context, d delivery.Delivery) (delivery.Delivery, error)

	UpdateDelivery(ctx context.Context, d delivery.Delivery) (delivery.Delivery, error)
	GetDelivery(ctx context.Context, id string) (delivery.Delivery, error)
	GetDeliveryByRequest(ctx context.Context, requestID string) (delivery.Delivery, error)
	ListAgentDeliveries(ctx context.Context, agentID string) ([]delivery.Delivery, error)
}

// AnalyticsStore aggregates counters for the admin dashboard.
type AnalyticsStore interface {
	Summary(ctx context.Context) (AnalyticsSummary, error)
}
