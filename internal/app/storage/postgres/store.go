package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/nutrilink/platform/internal/app/domain/delivery"
	"github.com/nutrilink/platform/internal/app/domain/listing"
	"github.com/nutrilink/platform/internal/app/domain/request"
	"github.com/nutrilink/platform/internal/app/domain/user"
	"github.com/nutrilink/platform/internal/app/storage"
	apperrors "github.com/nutrilink/platform/internal/errors"
)

// Store implements the storage interfaces backed by PostgreSQL. The
// reservation, transition and claim paths run inside transactions so the
// inventory ledger and the lifecycle state always move together.
type Store struct {
	db *sql.DB
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.ListingStore = (*Store)(nil)
var _ storage.RequestStore = (*Store)(nil)
var _ storage.DeliveryStore = (*Store)(nil)
var _ storage.AnalyticsStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// --- UserStore ---------------------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.CreatedAt = now
	u.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO nl_users (id, full_name, email, password_hash, role, status, phone_number, address, latitude, longitude, profile_image, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, u.ID, u.FullName, u.Email, u.PasswordHash, u.Role, u.Status, u.PhoneNumber, u.Address, u.Latitude, u.Longitude, u.ProfileImage, u.IsActive, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return user.User{}, apperrors.Conflict("email already registered")
		}
		return user.User{}, err
	}
	return u, nil
}

func (s *Store) UpdateUser(ctx context.Context, u user.User) (user.User, error) {
	existing, err := s.GetUser(ctx, u.ID)
	if err != nil {
		return user.User{}, err
	}

	u.Email = existing.Email
	u.PasswordHash = existing.PasswordHash
	u.CreatedAt = existing.CreatedAt
	u.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE nl_users
		SET full_name = $2, role = $3, status = $4, phone_number = $5, address = $6, latitude = $7, longitude = $8, profile_image = $9, is_active = $10, updated_at = $11
		WHERE id = $1
	`, u.ID, u.FullName, u.Role, u.Status, u.PhoneNumber, u.Address, u.Latitude, u.Longitude, u.ProfileImage, u.IsActive, u.UpdatedAt)
	if err != nil {
		return user.User{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return user.User{}, apperrors.NotFound("user not found")
	}
	return u, nil
}

const userColumns = `id, full_name, email, password_hash, role, status, phone_number, address, latitude, longitude, profile_image, is_active, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (user.User, error) {
	var u user.User
	err := row.Scan(&u.ID, &u.FullName, &u.Email, &u.PasswordHash, &u.Role, &u.Status, &u.PhoneNumber, &u.Address, &u.Latitude, &u.Longitude, &u.ProfileImage, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (s *Store) GetUser(ctx context.Context, id string) (user.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM nl_users
		WHERE id = $1
	`, id)

	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return user.User{}, apperrors.NotFound("user not found")
	}
	if err != nil {
		return user.User{}, err
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM nl_users
		WHERE email = $1
	`, strings.ToLower(strings.TrimSpace(email)))

	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return user.User{}, apperrors.NotFound("user not found")
	}
	if err != nil {
		return user.User{}, err
	}
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context, filter storage.UserFilter) ([]user.User, error) {
	conditions := []string{"1 = 1"}
	args := []any{}

	if !filter.IncludePending {
		args = append(args, user.StatusApproved)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.ActiveOnly {
		conditions = append(conditions, "is_active")
	}
	if filter.Role != "" {
		args = append(args, filter.Role)
		conditions = append(conditions, fmt.Sprintf("role = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		idx := len(args)
		conditions = append(conditions, fmt.Sprintf("(LOWER(full_name) LIKE $%d OR LOWER(email) LIKE $%d OR LOWER(address) LIKE $%d)", idx, idx, idx))
	}

	query := `SELECT ` + userColumns + ` FROM nl_users WHERE ` + strings.Join(conditions, " AND ") + ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []user.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	return result, rows.Err()
}

// --- ListingStore ------------------------------------------------------------

const listingColumns = `id, provider_id, title, description, category, food_type, servings_total, servings_left, status, address, latitude, longitude, expiry_at, created_at, updated_at`

func scanListing(row interface{ Scan(...any) error }) (listing.Listing, error) {
	var l listing.Listing
	err := row.Scan(&l.ID, &l.ProviderID, &l.Title, &l.Description, &l.Category, &l.FoodType, &l.ServingsTotal, &l.ServingsLeft, &l.Status, &l.Address, &l.Latitude, &l.Longitude, &l.ExpiryAt, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return listing.Listing{}, err
	}
	l.ExpiryAt = l.ExpiryAt.UTC()
	return l, nil
}

func (s *Store) CreateListing(ctx context.Context, l listing.Listing) (listing.Listing, error) {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	l.CreatedAt = now
	l.UpdatedAt = now
	if l.Status == "" {
		l.Status = listing.StatusAvailable
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO nl_listings (id, provider_id, title, description, category, food_type, servings_total, servings_left, status, address, latitude, longitude, expiry_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, l.ID, l.ProviderID, l.Title, l.Description, l.Category, l.FoodType, l.ServingsTotal, l.ServingsLeft, l.Status, l.Address, l.Latitude, l.Longitude, l.ExpiryAt, l.CreatedAt, l.UpdatedAt)
	if err != nil {
		return listing.Listing{}, err
	}
	return l, nil
}

func (s *Store) UpdateListing(ctx context.Context, l listing.Listing) (listing.Listing, error) {
	existing, err := s.GetListing(ctx, l.ID)
	if err != nil {
		return listing.Listing{}, err
	}

	l.ProviderID = existing.ProviderID
	l.CreatedAt = existing.CreatedAt
	l.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE nl_listings
		SET title = $2, description = $3, category = $4, food_type = $5, servings_total = $6, servings_left = $7, status = $8, address = $9, latitude = $10, longitude = $11, expiry_at = $12, updated_at = $13
		WHERE id = $1
	`, l.ID, l.Title, l.Description, l.Category, l.FoodType, l.ServingsTotal, l.ServingsLeft, l.Status, l.Address, l.Latitude, l.Longitude, l.ExpiryAt, l.UpdatedAt)
	if err != nil {
		return listing.Listing{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return listing.Listing{}, apperrors.NotFound("listing not found")
	}
	return l, nil
}

func (s *Store) GetListing(ctx context.Context, id string) (listing.Listing, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+listingColumns+`
		FROM nl_listings
		WHERE id = $1
	`, id)

	l, err := scanListing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return listing.Listing{}, apperrors.NotFound("listing not found")
	}
	if err != nil {
		return listing.Listing{}, err
	}
	return l, nil
}

func (s *Store) ListListings(ctx context.Context, filter storage.ListingFilter) ([]listing.Listing, error) {
	conditions := []string{"1 = 1"}
	args := []any{}

	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Category != "" {
		args = append(args, strings.ToLower(filter.Category))
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		idx := len(args)
		conditions = append(conditions, fmt.Sprintf("(LOWER(title) LIKE $%d OR LOWER(description) LIKE $%d)", idx, idx))
	}

	query := `SELECT ` + listingColumns + ` FROM nl_listings WHERE ` + strings.Join(conditions, " AND ") + ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []listing.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, l)
	}
	return result, rows.Err()
}

func (s *Store) ListProviderListings(ctx context.Context, providerID string) ([]listing.Listing, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+listingColumns+`
		FROM nl_listings
		WHERE provider_id = $1
		ORDER BY created_at DESC
	`, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []listing.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, l)
	}
	return result, rows.Err()
}

func (s *Store) ExpireListings(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE nl_listings
		SET status = 'expired', updated_at = $1
		WHERE status IN ('available', 'reserved') AND expiry_at < $1
	`, now.UTC())
	if err != nil {
		return 0, err
	}
	rows, _ := result.RowsAffected()
	return rows, nil
}

// --- RequestStore ------------------------------------------------------------

const requestColumns = `id, listing_id, beneficiary_id, requested_servings, status, notes, created_at, updated_at`

func scanRequest(row interface{ Scan(...any) error }) (request.Request, error) {
	var req request.Request
	err := row.Scan(&req.ID, &req.ListingID, &req.BeneficiaryID, &req.RequestedServings, &req.Status, &req.Notes, &req.CreatedAt, &req.UpdatedAt)
	return req, err
}

func (s *Store) ReserveRequest(ctx context.Context, req request.Request) (request.Request, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return request.Request{}, err
	}
	defer tx.Rollback()

	var (
		status       listing.Status
		servingsLeft int
	)
	err = tx.QueryRowContext(ctx, `
		SELECT status, servings_left
		FROM nl_listings
		WHERE id = $1
		FOR UPDATE
	`, req.ListingID).Scan(&status, &servingsLeft)
	if errors.Is(err, sql.ErrNoRows) {
		return request.Request{}, apperrors.NotFound("listing not found")
	}
	if err != nil {
		return request.Request{}, err
	}
	if status != listing.StatusAvailable {
		return request.Request{}, apperrors.InvalidState("listing unavailable")
	}
	if servingsLeft < req.RequestedServings {
		return request.Request{}, apperrors.InvalidState("insufficient servings")
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE nl_listings
		SET servings_left = servings_left - $2, updated_at = $3
		WHERE id = $1
	`, req.ListingID, req.RequestedServings, now)
	if err != nil {
		return request.Request{}, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO nl_requests (id, listing_id, beneficiary_id, requested_servings, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, req.ID, req.ListingID, req.BeneficiaryID, req.RequestedServings, req.Status, req.Notes, req.CreatedAt, req.UpdatedAt)
	if err != nil {
		return request.Request{}, err
	}

	if err := tx.Commit(); err != nil {
		return request.Request{}, err
	}
	return req, nil
}

func (s *Store) TransitionRequest(ctx context.Context, id string, status request.Status) (request.Request, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return request.Request{}, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT `+requestColumns+`
		FROM nl_requests
		WHERE id = $1
		FOR UPDATE
	`, id)
	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return request.Request{}, apperrors.NotFound("request not found")
	}
	if err != nil {
		return request.Request{}, err
	}

	previous := req.Status
	req.Status = status
	req.UpdatedAt = now

	_, err = tx.ExecContext(ctx, `
		UPDATE nl_requests
		SET status = $2, updated_at = $3
		WHERE id = $1
	`, id, status, now)
	if err != nil {
		return request.Request{}, err
	}

	// Release the reservation exactly once per request lifetime, never
	// overshooting the listing's original quantity.
	if status == request.StatusCancelled && previous != request.StatusCancelled {
		_, err = tx.ExecContext(ctx, `
			UPDATE nl_listings
			SET servings_left = LEAST(servings_left + $2, servings_total), updated_at = $3
			WHERE id = $1
		`, req.ListingID, req.RequestedServings, now)
		if err != nil {
			return request.Request{}, err
		}
	}

	if status == request.StatusCompleted {
		_, err = tx.ExecContext(ctx, `
			UPDATE nl_listings
			SET status = 'completed', updated_at = $2
			WHERE id = $1 AND servings_left = 0
		`, req.ListingID, now)
		if err != nil {
			return request.Request{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return request.Request{}, err
	}
	return req, nil
}

func (s *Store) GetRequest(ctx context.Context, id string) (request.Request, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+requestColumns+`
		FROM nl_requests
		WHERE id = $1
	`, id)

	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return request.Request{}, apperrors.NotFound("request not found")
	}
	if err != nil {
		return request.Request{}, err
	}
	return req, nil
}

func (s *Store) ListRequests(ctx context.Context, filter storage.RequestFilter) ([]request.Request, error) {
	conditions := []string{"1 = 1"}
	args := []any{}

	if filter.BeneficiaryID != "" {
		args = append(args, filter.BeneficiaryID)
		conditions = append(conditions, fmt.Sprintf("r.beneficiary_id = $%d", len(args)))
	}
	if filter.ProviderID != "" {
		args = append(args, filter.ProviderID)
		conditions = append(conditions, fmt.Sprintf("r.listing_id IN (SELECT id FROM nl_listings WHERE provider_id = $%d)", len(args)))
	}
	if filter.DeliveryAgentID != "" {
		args = append(args, filter.DeliveryAgentID)
		// Cancelled deliveries count: the agent keeps visibility into
		// requests they have handled at any point.
		conditions = append(conditions, fmt.Sprintf("r.id IN (SELECT request_id FROM nl_deliveries WHERE delivery_agent_id = $%d)", len(args)))
	}

	query := `
		SELECT r.id, r.listing_id, r.beneficiary_id, r.requested_servings, r.status, r.notes, r.created_at, r.updated_at
		FROM nl_requests r
		WHERE ` + strings.Join(conditions, " AND ") + `
		ORDER BY r.created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []request.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, req)
	}
	return result, rows.Err()
}

func (s *Store) ListOpenDeliveryTasks(ctx context.Context, limit int) ([]request.Request, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.listing_id, r.beneficiary_id, r.requested_servings, r.status, r.notes, r.created_at, r.updated_at
		FROM nl_requests r
		WHERE r.status = 'approved'
		  AND NOT EXISTS (
			SELECT 1 FROM nl_deliveries d
			WHERE d.request_id = r.id AND d.status <> 'cancelled'
		  )
		ORDER BY r.created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []request.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, req)
	}
	return result, rows.Err()
}

// --- DeliveryStore -----------------------------------------------------------

const deliveryColumns = `id, request_id, delivery_agent_id, status, pickup_address, dropoff_address, proof_url, pickup_at, delivered_at, created_at, updated_at`

func scanDelivery(row interface{ Scan(...any) error }) (delivery.Delivery, error) {
	var (
		d           delivery.Delivery
		pickupAt    sql.NullTime
		deliveredAt sql.NullTime
	)
	err := row.Scan(&d.ID, &d.RequestID, &d.DeliveryAgentID, &d.Status, &d.PickupAddress, &d.DropoffAddress, &d.ProofURL, &pickupAt, &deliveredAt, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return delivery.Delivery{}, err
	}
	if pickupAt.Valid {
		d.PickupAt = pickupAt.Time.UTC()
	}
	if deliveredAt.Valid {
		d.DeliveredAt = deliveredAt.Time.UTC()
	}
	return d, nil
}

func (s *Store) AcceptDelivery(ctx context.Context, d delivery.Delivery) (delivery.Delivery, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	d.Status = delivery.StatusAssigned
	d.CreatedAt = now
	d.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return delivery.Delivery{}, err
	}
	defer tx.Rollback()

	// Only an approved request may be claimed. The conditional update both
	// checks and advances the request, so concurrent claimers race on a
	// single row write instead of a read-then-write gap.
	result, err := tx.ExecContext(ctx, `
		UPDATE nl_requests
		SET status = 'in_progress', updated_at = $2
		WHERE id = $1 AND status = 'approved'
	`, d.RequestID, now)
	if err != nil {
		return delivery.Delivery{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		// Distinguish a claimed request from an unavailable one. The race
		// loser blocks on the row lock above, so by the time it gets here
		// the winner's delivery is visible.
		var claimed bool
		if err := tx.QueryRowContext(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM nl_deliveries WHERE request_id = $1 AND status <> 'cancelled'
			)
		`, d.RequestID).Scan(&claimed); err != nil {
			return delivery.Delivery{}, err
		}
		if claimed {
			return delivery.Delivery{}, apperrors.Conflict("delivery already assigned")
		}
		return delivery.Delivery{}, apperrors.InvalidState("request is not available for delivery")
	}

	// The partial unique index on request_id among non-cancelled deliveries
	// rejects the second claim.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO nl_deliveries (id, request_id, delivery_agent_id, status, pickup_address, dropoff_address, proof_url, pickup_at, delivered_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, d.ID, d.RequestID, d.DeliveryAgentID, d.Status, d.PickupAddress, d.DropoffAddress, d.ProofURL, toNullTime(d.PickupAt), toNullTime(d.DeliveredAt), d.CreatedAt, d.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return delivery.Delivery{}, apperrors.Conflict("delivery already assigned")
		}
		return delivery.Delivery{}, err
	}

	if err := tx.Commit(); err != nil {
		return delivery.Delivery{}, err
	}
	return d, nil
}

func (s *Store) UpdateDelivery(ctx context.Context, d delivery.Delivery) (delivery.Delivery, error) {
	existing, err := s.GetDelivery(ctx, d.ID)
	if err != nil {
		return delivery.Delivery{}, err
	}

	d.RequestID = existing.RequestID
	d.DeliveryAgentID = existing.DeliveryAgentID
	d.CreatedAt = existing.CreatedAt
	d.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE nl_deliveries
		SET status = $2, pickup_address = $3, dropoff_address = $4, proof_url = $5, pickup_at = $6, delivered_at = $7, updated_at = $8
		WHERE id = $1
	`, d.ID, d.Status, d.PickupAddress, d.DropoffAddress, d.ProofURL, toNullTime(d.PickupAt), toNullTime(d.DeliveredAt), d.UpdatedAt)
	if err != nil {
		return delivery.Delivery{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return delivery.Delivery{}, apperrors.NotFound("delivery not found")
	}
	return d, nil
}

func (s *Store) GetDelivery(ctx context.Context, id string) (delivery.Delivery, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+deliveryColumns+`
		FROM nl_deliveries
		WHERE id = $1
	`, id)

	d, err := scanDelivery(row)
	if errors.Is(err, sql.ErrNoRows) {
		return delivery.Delivery{}, apperrors.NotFound("delivery not found")
	}
	if err != nil {
		return delivery.Delivery{}, err
	}
	return d, nil
}

func (s *Store) GetDeliveryByRequest(ctx context.Context, requestID string) (delivery.Delivery, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+deliveryColumns+`
		FROM nl_deliveries
		WHERE request_id = $1 AND status <> 'cancelled'
	`, requestID)

	d, err := scanDelivery(row)
	if errors.Is(err, sql.ErrNoRows) {
		return delivery.Delivery{}, apperrors.NotFound("delivery not found")
	}
	if err != nil {
		return delivery.Delivery{}, err
	}
	return d, nil
}

func (s *Store) ListAgentDeliveries(ctx context.Context, agentID string) ([]delivery.Delivery, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+deliveryColumns+`
		FROM nl_deliveries
		WHERE delivery_agent_id = $1
		ORDER BY created_at DESC
	`, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []delivery.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

// --- AnalyticsStore ----------------------------------------------------------

func (s *Store) Summary(ctx context.Context) (storage.AnalyticsSummary, error) {
	var summary storage.AnalyticsSummary
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM nl_users),
			(SELECT COUNT(*) FROM nl_listings),
			(SELECT COUNT(*) FROM nl_requests WHERE status = 'completed'),
			(SELECT COUNT(*) FROM nl_deliveries WHERE status IN ('assigned', 'picked_up')),
			(SELECT COALESCE(SUM(requested_servings), 0) FROM nl_requests WHERE status = 'completed'),
			(SELECT COALESCE(SUM(servings_left), 0) FROM nl_listings)
	`).Scan(&summary.TotalUsers, &summary.TotalListings, &summary.CompletedRequests, &summary.ActiveDeliveries, &summary.MealsDelivered, &summary.MealsAvailable)
	if err != nil {
		return storage.AnalyticsSummary{}, err
	}
	return summary, nil
}

func toNullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
