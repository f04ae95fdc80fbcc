// Package users implements registration, authentication and account
// administration.
package users

import (
	"context"
	"strings"

	"github.com/nutrilink/platform/internal/app/auth"
	"github.com/nutrilink/platform/internal/app/domain/user"
	"github.com/nutrilink/platform/internal/app/storage"
	apperrors "github.com/nutrilink/platform/internal/errors"
	"github.com/nutrilink/platform/pkg/logger"
)

// Service manages user accounts and credentials.
type Service struct {
	store     storage.UserStore
	tokens    *auth.Manager
	log       *logger.Logger
	adminCode string
}

// New constructs a users service. adminCode gates admin self-registration; an
// empty code disables it entirely.
func New(store storage.UserStore, tokens *auth.Manager, adminCode string, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("users")
	}
	return &Service{
		store:     store,
		tokens:    tokens,
		log:       log,
		adminCode: adminCode,
	}
}

// RegisterInput carries the fields accepted at sign-up.
type RegisterInput struct {
	FullName        string
	Email           string
	Password        string
	Role            string
	PhoneNumber     string
	Address         string
	Latitude        float64
	Longitude       float64
	AdminAccessCode string
}

// Register creates an account. Beneficiaries are approved immediately;
// providers and delivery agents wait for admin approval. Admin registration
// requires the configured access code. Tokens are issued only for accounts
// that can already sign in.
func (s *Service) Register(ctx context.Context, in RegisterInput) (user.User, auth.TokenPair, error) {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = strings.TrimSpace(in.Email)

	if in.FullName == "" {
		return user.User{}, auth.TokenPair{}, apperrors.InvalidInput("fullName is required")
	}
	if in.Email == "" || !strings.Contains(in.Email, "@") {
		return user.User{}, auth.TokenPair{}, apperrors.InvalidInput("a valid email is required")
	}
	if len(in.Password) < 8 {
		return user.User{}, auth.TokenPair{}, apperrors.InvalidInput("password must be at least 8 characters")
	}

	role, ok := user.NormalizeRole(in.Role)
	if !ok {
		return user.User{}, auth.TokenPair{}, apperrors.InvalidInput("unknown role")
	}

	status := user.StatusPending
	switch role {
	case user.RoleBeneficiary:
		status = user.StatusApproved
	case user.RoleAdmin:
		if s.adminCode == "" || in.AdminAccessCode != s.adminCode {
			return user.User{}, auth.TokenPair{}, apperrors.Unauthorized("invalid admin access code")
		}
		status = user.StatusApproved
	}

	hash, err := s.tokens.HashPassword(in.Password)
	if err != nil {
		return user.User{}, auth.TokenPair{}, err
	}

	created, err := s.store.CreateUser(ctx, user.User{
		FullName:     in.FullName,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         role,
		Status:       status,
		PhoneNumber:  strings.TrimSpace(in.PhoneNumber),
		Address:      strings.TrimSpace(in.Address),
		Latitude:     in.Latitude,
		Longitude:    in.Longitude,
		IsActive:     true,
	})
	if err != nil {
		return user.User{}, auth.TokenPair{}, err
	}

	s.log.WithField("user_id", created.ID).
		WithField("role", string(created.Role)).
		WithField("status", string(created.Status)).
		Info("user registered")

	var pair auth.TokenPair
	if created.Status == user.StatusApproved {
		pair, err = s.tokens.IssuePair(created)
		if err != nil {
			return user.User{}, auth.TokenPair{}, err
		}
	}
	return created, pair, nil
}

// Login verifies credentials and issues a token pair. Unknown emails and
// wrong passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (user.User, auth.TokenPair, error) {
	u, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return user.User{}, auth.TokenPair{}, apperrors.Unauthorized("invalid credentials")
	}
	if !s.tokens.CheckPassword(u.PasswordHash, password) {
		return user.User{}, auth.TokenPair{}, apperrors.Unauthorized("invalid credentials")
	}
	if err := signInAllowed(u); err != nil {
		return user.User{}, auth.TokenPair{}, err
	}

	pair, err := s.tokens.IssuePair(u)
	if err != nil {
		return user.User{}, auth.TokenPair{}, err
	}
	s.log.WithField("user_id", u.ID).Info("user logged in")
	return u, pair, nil
}

// Refresh exchanges a valid refresh token for a fresh pair.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (user.User, auth.TokenPair, error) {
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return user.User{}, auth.TokenPair{}, err
	}

	u, err := s.store.GetUser(ctx, claims.UserID)
	if err != nil {
		return user.User{}, auth.TokenPair{}, apperrors.InvalidToken("unknown account")
	}
	if err := signInAllowed(u); err != nil {
		return user.User{}, auth.TokenPair{}, err
	}

	pair, err := s.tokens.IssuePair(u)
	if err != nil {
		return user.User{}, auth.TokenPair{}, err
	}
	return u, pair, nil
}

func signInAllowed(u user.User) error {
	if !u.IsActive {
		return apperrors.Forbidden("account deactivated")
	}
	switch u.Status {
	case user.StatusApproved:
		return nil
	case user.StatusPending:
		return apperrors.Forbidden("account pending approval")
	default:
		return apperrors.Forbidden("account suspended")
	}
}

// Get returns a single user.
func (s *Service) Get(ctx context.Context, id string) (user.User, error) {
	return s.store.GetUser(ctx, id)
}

// List returns users matching the filter. Admin only; the handler enforces
// the role.
func (s *Service) List(ctx context.Context, filter storage.UserFilter) ([]user.User, error) {
	return s.store.ListUsers(ctx, filter)
}

// UpdateInput carries optional account changes. Nil fields are untouched.
type UpdateInput struct {
	FullName     *string
	PhoneNumber  *string
	Address      *string
	Latitude     *float64
	Longitude    *float64
	ProfileImage *string
	Status       *string
	IsActive     *bool
}

// Update modifies a user. Anyone may edit their own profile fields; only
// admins may change another account or touch status and activation.
func (s *Service) Update(ctx context.Context, actorID string, actorRole user.Role, id string, in UpdateInput) (user.User, error) {
	if actorRole != user.RoleAdmin && actorID != id {
		return user.User{}, apperrors.Forbidden("cannot modify another account")
	}
	if actorRole != user.RoleAdmin && (in.Status != nil || in.IsActive != nil) {
		return user.User{}, apperrors.Forbidden("only admins may change account status")
	}

	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return user.User{}, err
	}

	if in.FullName != nil {
		if trimmed := strings.TrimSpace(*in.FullName); trimmed != "" {
			u.FullName = trimmed
		}
	}
	if in.PhoneNumber != nil {
		u.PhoneNumber = strings.TrimSpace(*in.PhoneNumber)
	}
	if in.Address != nil {
		u.Address = strings.TrimSpace(*in.Address)
	}
	if in.Latitude != nil {
		u.Latitude = *in.Latitude
	}
	if in.Longitude != nil {
		u.Longitude = *in.Longitude
	}
	if in.ProfileImage != nil {
		u.ProfileImage = *in.ProfileImage
	}
	if in.Status != nil {
		if !user.ValidStatus(*in.Status) {
			return user.User{}, apperrors.InvalidInput("unknown account status")
		}
		u.Status = user.Status(*in.Status)
	}
	if in.IsActive != nil {
		u.IsActive = *in.IsActive
	}

	updated, err := s.store.UpdateUser(ctx, u)
	if err != nil {
		return user.User{}, err
	}
	s.log.WithField("user_id", updated.ID).Info("user updated")
	return updated, nil
}
