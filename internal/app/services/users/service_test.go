package users

import (
	"context"
	"testing"
	"time"

	"github.com/nutrilink/platform/internal/app/auth"
	"github.com/nutrilink/platform/internal/app/domain/user"
	"github.com/nutrilink/platform/internal/app/storage/memory"
	apperrors "github.com/nutrilink/platform/internal/errors"
)

const testAdminCode = "let-me-in"

func newService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	tokens := auth.NewManager(auth.Config{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		BcryptCost:    4, // fastest cost for tests
	})
	return New(store, tokens, testAdminCode, nil), store
}

func registerInput(role string) RegisterInput {
	return RegisterInput{
		FullName: "Test Person",
		Email:    role + "@example.org",
		Password: "Password123!",
		Role:     role,
	}
}

func TestRegisterBeneficiaryIsApproved(t *testing.T) {
	svc, _ := newService(t)

	u, pair, err := svc.Register(context.Background(), registerInput("beneficiary"))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if u.Status != user.StatusApproved {
		t.Fatalf("beneficiary must be approved, got %s", u.Status)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("approved account must get tokens")
	}
}

func TestRegisterProviderIsPending(t *testing.T) {
	svc, _ := newService(t)

	u, pair, err := svc.Register(context.Background(), registerInput("provider"))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if u.Status != user.StatusPending {
		t.Fatalf("provider must wait for approval, got %s", u.Status)
	}
	if pair.AccessToken != "" {
		t.Fatal("pending account must not get tokens")
	}
}

func TestRegisterNormalizesDeliveryAgentAlias(t *testing.T) {
	svc, _ := newService(t)

	u, _, err := svc.Register(context.Background(), registerInput("deliveryAgent"))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if u.Role != user.RoleDelivery {
		t.Fatalf("expected canonical delivery role, got %s", u.Role)
	}
}

func TestRegisterAdminRequiresCode(t *testing.T) {
	svc, _ := newService(t)

	in := registerInput("admin")
	if _, _, err := svc.Register(context.Background(), in); err == nil {
		t.Fatal("missing code must be rejected")
	}

	in.AdminAccessCode = testAdminCode
	u, _, err := svc.Register(context.Background(), in)
	if err != nil {
		t.Fatalf("register admin: %v", err)
	}
	if u.Status != user.StatusApproved {
		t.Fatalf("admin must be approved, got %s", u.Status)
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	svc, _ := newService(t)

	if _, _, err := svc.Register(context.Background(), registerInput("beneficiary")); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, _, err := svc.Register(context.Background(), registerInput("beneficiary")); !apperrors.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestLogin(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, registerInput("beneficiary")); err != nil {
		t.Fatalf("register: %v", err)
	}

	u, pair, err := svc.Login(ctx, "beneficiary@example.org", "Password123!")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if u.Email != "beneficiary@example.org" || pair.AccessToken == "" {
		t.Fatalf("unexpected login result: %#v", u)
	}

	if _, _, err := svc.Login(ctx, "beneficiary@example.org", "wrong"); err == nil {
		t.Fatal("wrong password must fail")
	}
	if _, _, err := svc.Login(ctx, "nobody@example.org", "Password123!"); err == nil {
		t.Fatal("unknown email must fail")
	}
}

func TestLoginBlockedForPendingAccount(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, registerInput("provider")); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, _, err := svc.Login(ctx, "provider@example.org", "Password123!"); !apperrors.IsForbidden(err) {
		t.Fatalf("pending login must be forbidden, got %v", err)
	}
}

func TestRefreshRotatesTokens(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, pair, err := svc.Register(ctx, registerInput("beneficiary"))
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	u, fresh, err := svc.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if u.Email != "beneficiary@example.org" || fresh.AccessToken == "" {
		t.Fatalf("unexpected refresh result")
	}

	if _, _, err := svc.Refresh(ctx, pair.AccessToken); err == nil {
		t.Fatal("access token must not pass as refresh token")
	}
	if _, _, err := svc.Refresh(ctx, "garbage"); err == nil {
		t.Fatal("garbage token must fail")
	}
}

func TestUpdateAuthority(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	target, _, err := svc.Register(ctx, registerInput("provider"))
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	name := "New Name"
	if _, err := svc.Update(ctx, "someone-else", user.RoleBeneficiary, target.ID, UpdateInput{FullName: &name}); !apperrors.IsForbidden(err) {
		t.Fatalf("editing another account must be forbidden, got %v", err)
	}

	approved := string(user.StatusApproved)
	if _, err := svc.Update(ctx, target.ID, user.RoleProvider, target.ID, UpdateInput{Status: &approved}); !apperrors.IsForbidden(err) {
		t.Fatalf("self-approval must be forbidden, got %v", err)
	}

	updated, err := svc.Update(ctx, "admin-1", user.RoleAdmin, target.ID, UpdateInput{Status: &approved})
	if err != nil {
		t.Fatalf("admin update: %v", err)
	}
	if updated.Status != user.StatusApproved {
		t.Fatalf("expected approved, got %s", updated.Status)
	}

	if _, err := svc.Update(ctx, target.ID, user.RoleProvider, target.ID, UpdateInput{FullName: &name}); err != nil {
		t.Fatalf("own profile edit: %v", err)
	}
}
