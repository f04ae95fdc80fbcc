package listings

import (
	"context"
	"testing"
	"time"

	"github.com/nutrilink/platform/internal/app/domain/listing"
	"github.com/nutrilink/platform/internal/app/domain/user"
	"github.com/nutrilink/platform/internal/app/storage"
	"github.com/nutrilink/platform/internal/app/storage/memory"
	apperrors "github.com/nutrilink/platform/internal/errors"
)

func validInput() CreateInput {
	return CreateInput{
		Title:    "Bread baskets",
		Category: "Bakery",
		FoodType: "vegetarian",
		Servings: 12,
		Address:  "12 Market Street",
		ExpiryAt: time.Now().Add(12 * time.Hour),
	}
}

func TestCreateListing(t *testing.T) {
	svc := New(memory.New(), nil)

	l, err := svc.Create(context.Background(), "provider-1", validInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if l.Status != listing.StatusAvailable {
		t.Fatalf("expected available, got %s", l.Status)
	}
	if l.ServingsLeft != l.ServingsTotal || l.ServingsLeft != 12 {
		t.Fatalf("full quantity must start available: %d/%d", l.ServingsLeft, l.ServingsTotal)
	}
	if l.Category != "bakery" {
		t.Fatalf("category must be normalized, got %q", l.Category)
	}
}

func TestCreateValidation(t *testing.T) {
	svc := New(memory.New(), nil)
	ctx := context.Background()

	in := validInput()
	in.Title = "  "
	if _, err := svc.Create(ctx, "p", in); err == nil {
		t.Fatal("blank title must be rejected")
	}

	in = validInput()
	in.Servings = 0
	if _, err := svc.Create(ctx, "p", in); err == nil {
		t.Fatal("zero servings must be rejected")
	}

	in = validInput()
	in.ExpiryAt = time.Now().Add(-time.Hour)
	if _, err := svc.Create(ctx, "p", in); err == nil {
		t.Fatal("past expiry must be rejected")
	}
}

func TestUpdateOwnership(t *testing.T) {
	svc := New(memory.New(), nil)
	ctx := context.Background()

	l, err := svc.Create(ctx, "provider-1", validInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	title := "Updated title"
	if _, err := svc.Update(ctx, "provider-2", user.RoleProvider, l.ID, UpdateInput{Title: &title}); !apperrors.IsForbidden(err) {
		t.Fatalf("foreign provider must be forbidden, got %v", err)
	}

	updated, err := svc.Update(ctx, "provider-1", user.RoleProvider, l.ID, UpdateInput{Title: &title})
	if err != nil {
		t.Fatalf("owner update: %v", err)
	}
	if updated.Title != title {
		t.Fatalf("title not applied: %q", updated.Title)
	}

	if _, err := svc.Update(ctx, "admin-1", user.RoleAdmin, l.ID, UpdateInput{Title: &title}); err != nil {
		t.Fatalf("admin update: %v", err)
	}

	bad := "nonsense"
	if _, err := svc.Update(ctx, "provider-1", user.RoleProvider, l.ID, UpdateInput{Status: &bad}); err == nil {
		t.Fatal("unknown status must be rejected")
	}
}

func TestListAndMine(t *testing.T) {
	store := memory.New()
	svc := New(store, nil)
	ctx := context.Background()

	if _, err := svc.Create(ctx, "provider-1", validInput()); err != nil {
		t.Fatalf("create: %v", err)
	}
	in := validInput()
	in.Category = "produce"
	if _, err := svc.Create(ctx, "provider-2", in); err != nil {
		t.Fatalf("create: %v", err)
	}

	all, err := svc.List(ctx, storage.ListingFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 listings, got %d", len(all))
	}

	bakery, err := svc.List(ctx, storage.ListingFilter{Category: "bakery"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(bakery) != 1 {
		t.Fatalf("expected 1 bakery listing, got %d", len(bakery))
	}

	mine, err := svc.Mine(ctx, "provider-2")
	if err != nil {
		t.Fatalf("mine: %v", err)
	}
	if len(mine) != 1 || mine[0].ProviderID != "provider-2" {
		t.Fatalf("mine scope wrong: %#v", mine)
	}
}

func TestSweeperExpiresListings(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	_, err := store.CreateListing(ctx, listing.Listing{
		ProviderID:    "provider-1",
		Title:         "Stale",
		Category:      "bakery",
		FoodType:      "vegetarian",
		ServingsTotal: 3,
		ServingsLeft:  3,
		Status:        listing.StatusAvailable,
		ExpiryAt:      time.Now().Add(-time.Minute),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	sweeper := NewSweeper(store, "", nil)
	sweeper.sweep(ctx)

	listings, err := store.ListListings(ctx, storage.ListingFilter{Status: listing.StatusExpired})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listings) != 1 {
		t.Fatalf("expected 1 expired listing, got %d", len(listings))
	}
}

func TestSweeperLifecycle(t *testing.T) {
	sweeper := NewSweeper(memory.New(), "* * * * *", nil)
	ctx := context.Background()

	if err := sweeper.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := sweeper.Start(ctx); err != nil {
		t.Fatalf("second start must be a no-op: %v", err)
	}
	if err := sweeper.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := sweeper.Stop(ctx); err != nil {
		t.Fatalf("second stop must be a no-op: %v", err)
	}
}
