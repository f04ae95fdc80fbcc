package requests

import (
	"context"
	"testing"
	"time"

	"github.com/nutrilink/platform/internal/app/domain/delivery"
	"github.com/nutrilink/platform/internal/app/domain/listing"
	"github.com/nutrilink/platform/internal/app/domain/request"
	"github.com/nutrilink/platform/internal/app/domain/user"
	"github.com/nutrilink/platform/internal/app/storage/memory"
	apperrors "github.com/nutrilink/platform/internal/errors"
)

func newFixture(t *testing.T, servings int, initial request.Status) (*Service, *memory.Store, listing.Listing) {
	t.Helper()
	store := memory.New()
	l, err := store.CreateListing(context.Background(), listing.Listing{
		ProviderID:    "provider-1",
		Title:         "Soup",
		Category:      "cooked-meals",
		FoodType:      "vegetarian",
		ServingsTotal: servings,
		ServingsLeft:  servings,
		Status:        listing.StatusAvailable,
		ExpiryAt:      time.Now().Add(24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("create listing: %v", err)
	}
	return New(store, store, initial, nil), store, l
}

func TestCreateReservesServings(t *testing.T) {
	svc, store, l := newFixture(t, 10, request.StatusPending)
	ctx := context.Background()

	req, err := svc.Create(ctx, "ben-1", CreateInput{ListingID: l.ID, Servings: 10})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if req.Status != request.StatusPending {
		t.Fatalf("expected pending, got %s", req.Status)
	}

	got, err := store.GetListing(ctx, l.ID)
	if err != nil {
		t.Fatalf("get listing: %v", err)
	}
	if got.ServingsLeft != 0 {
		t.Fatalf("expected 0 servings left, got %d", got.ServingsLeft)
	}
	if got.Status != listing.StatusAvailable {
		t.Fatalf("reservation must not change listing status, got %s", got.Status)
	}
}

func TestCreateHonoursConfiguredInitialStatus(t *testing.T) {
	svc, _, l := newFixture(t, 10, request.StatusApproved)

	req, err := svc.Create(context.Background(), "ben-1", CreateInput{ListingID: l.ID, Servings: 2})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if req.Status != request.StatusApproved {
		t.Fatalf("expected approved, got %s", req.Status)
	}
}

func TestCreateRejectsInsufficientServings(t *testing.T) {
	svc, store, l := newFixture(t, 5, request.StatusPending)
	ctx := context.Background()

	_, err := svc.Create(ctx, "ben-1", CreateInput{ListingID: l.ID, Servings: 6})
	if !apperrors.IsInvalidState(err) {
		t.Fatalf("expected invalid state, got %v", err)
	}

	got, _ := store.GetListing(ctx, l.ID)
	if got.ServingsLeft != 5 {
		t.Fatalf("failed create must not touch inventory, got %d", got.ServingsLeft)
	}
}

func TestCreateValidatesInput(t *testing.T) {
	svc, _, l := newFixture(t, 5, request.StatusPending)

	if _, err := svc.Create(context.Background(), "ben-1", CreateInput{ListingID: l.ID, Servings: 0}); err == nil {
		t.Fatal("expected error for zero servings")
	}
	if _, err := svc.Create(context.Background(), "ben-1", CreateInput{Servings: 1}); err == nil {
		t.Fatal("expected error for missing listing id")
	}
}

func TestBeneficiaryMayOnlyCancelOwnRequest(t *testing.T) {
	svc, _, l := newFixture(t, 10, request.StatusPending)
	ctx := context.Background()

	req, err := svc.Create(ctx, "ben-1", CreateInput{ListingID: l.ID, Servings: 3})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}

	if _, err := svc.UpdateStatus(ctx, "ben-1", user.RoleBeneficiary, req.ID, "approved"); !apperrors.IsForbidden(err) {
		t.Fatalf("beneficiary approving must be forbidden, got %v", err)
	}
	if _, err := svc.UpdateStatus(ctx, "ben-2", user.RoleBeneficiary, req.ID, "cancelled"); !apperrors.IsForbidden(err) {
		t.Fatalf("cancelling another's request must be forbidden, got %v", err)
	}
	if _, err := svc.UpdateStatus(ctx, "ben-1", user.RoleBeneficiary, req.ID, "cancelled"); err != nil {
		t.Fatalf("owner cancel: %v", err)
	}
}

func TestProviderMustOwnListing(t *testing.T) {
	svc, _, l := newFixture(t, 10, request.StatusPending)
	ctx := context.Background()

	req, err := svc.Create(ctx, "ben-1", CreateInput{ListingID: l.ID, Servings: 3})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}

	if _, err := svc.UpdateStatus(ctx, "provider-2", user.RoleProvider, req.ID, "approved"); !apperrors.IsForbidden(err) {
		t.Fatalf("foreign provider must be forbidden, got %v", err)
	}

	updated, err := svc.UpdateStatus(ctx, "provider-1", user.RoleProvider, req.ID, "approved")
	if err != nil {
		t.Fatalf("owner approve: %v", err)
	}
	if updated.Status != request.StatusApproved {
		t.Fatalf("expected approved, got %s", updated.Status)
	}
}

func TestDeliveryAgentMayDriveTransitions(t *testing.T) {
	svc, _, l := newFixture(t, 10, request.StatusApproved)
	ctx := context.Background()

	req, err := svc.Create(ctx, "ben-1", CreateInput{ListingID: l.ID, Servings: 3})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}

	updated, err := svc.UpdateStatus(ctx, "agent-1", user.RoleDelivery, req.ID, "in_progress")
	if err != nil {
		t.Fatalf("agent transition: %v", err)
	}
	if updated.Status != request.StatusInProgress {
		t.Fatalf("expected in_progress, got %s", updated.Status)
	}

	// The transition table still binds agents.
	if _, err := svc.UpdateStatus(ctx, "agent-1", user.RoleDelivery, req.ID, "pending"); !apperrors.IsInvalidState(err) {
		t.Fatalf("in_progress -> pending must be rejected, got %v", err)
	}
	if _, err := svc.UpdateStatus(ctx, "agent-1", user.RoleDelivery, req.ID, "completed"); err != nil {
		t.Fatalf("agent completing: %v", err)
	}
}

func TestCancelReleasesServingsExactlyOnce(t *testing.T) {
	svc, store, l := newFixture(t, 10, request.StatusPending)
	ctx := context.Background()

	req, err := svc.Create(ctx, "ben-1", CreateInput{ListingID: l.ID, Servings: 4})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}

	if _, err := svc.UpdateStatus(ctx, "ben-1", user.RoleBeneficiary, req.ID, "cancelled"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	got, _ := store.GetListing(ctx, l.ID)
	if got.ServingsLeft != 10 {
		t.Fatalf("expected full release, got %d", got.ServingsLeft)
	}

	// Terminal state: a second cancel is rejected and releases nothing.
	if _, err := svc.UpdateStatus(ctx, "ben-1", user.RoleBeneficiary, req.ID, "cancelled"); !apperrors.IsInvalidState(err) {
		t.Fatalf("expected invalid state, got %v", err)
	}
	got, _ = store.GetListing(ctx, l.ID)
	if got.ServingsLeft != 10 {
		t.Fatalf("double cancel must not over-release, got %d", got.ServingsLeft)
	}
}

func TestUpdateStatusRejectsIllegalTransitions(t *testing.T) {
	svc, _, l := newFixture(t, 10, request.StatusPending)
	ctx := context.Background()

	req, err := svc.Create(ctx, "ben-1", CreateInput{ListingID: l.ID, Servings: 2})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}

	if _, err := svc.UpdateStatus(ctx, "admin-1", user.RoleAdmin, req.ID, "completed"); !apperrors.IsInvalidState(err) {
		t.Fatalf("pending -> completed must be rejected, got %v", err)
	}
	if _, err := svc.UpdateStatus(ctx, "admin-1", user.RoleAdmin, req.ID, "bogus"); err == nil {
		t.Fatal("unknown status must be rejected")
	}
	if _, err := svc.UpdateStatus(ctx, "admin-1", user.RoleAdmin, "missing", "approved"); !apperrors.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListForScopesByRole(t *testing.T) {
	svc, _, l := newFixture(t, 10, request.StatusPending)
	ctx := context.Background()

	if _, err := svc.Create(ctx, "ben-1", CreateInput{ListingID: l.ID, Servings: 1}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Create(ctx, "ben-2", CreateInput{ListingID: l.ID, Servings: 1}); err != nil {
		t.Fatalf("create: %v", err)
	}

	mine, err := svc.ListFor(ctx, "ben-1", user.RoleBeneficiary)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(mine) != 1 || mine[0].BeneficiaryID != "ben-1" {
		t.Fatalf("beneficiary scope wrong: %#v", mine)
	}

	provider, err := svc.ListFor(ctx, "provider-1", user.RoleProvider)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(provider) != 2 {
		t.Fatalf("provider should see both requests, got %d", len(provider))
	}

	all, err := svc.ListFor(ctx, "admin-1", user.RoleAdmin)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("admin should see everything, got %d", len(all))
	}
}

func TestAgentKeepsVisibilityAfterCancelledDelivery(t *testing.T) {
	svc, store, l := newFixture(t, 10, request.StatusApproved)
	ctx := context.Background()

	req, err := svc.Create(ctx, "ben-1", CreateInput{ListingID: l.ID, Servings: 2})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	d, err := store.AcceptDelivery(ctx, delivery.Delivery{RequestID: req.ID, DeliveryAgentID: "agent-1"})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}

	mine, err := svc.ListFor(ctx, "agent-1", user.RoleDelivery)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(mine) != 1 {
		t.Fatalf("agent should see the claimed request, got %d", len(mine))
	}

	d.Status = delivery.StatusCancelled
	if _, err := store.UpdateDelivery(ctx, d); err != nil {
		t.Fatalf("cancel delivery: %v", err)
	}

	mine, err = svc.ListFor(ctx, "agent-1", user.RoleDelivery)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(mine) != 1 {
		t.Fatalf("a cancelled delivery must not hide the request, got %d", len(mine))
	}

	other, err := svc.ListFor(ctx, "agent-2", user.RoleDelivery)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("unrelated agents see nothing, got %d", len(other))
	}
}
