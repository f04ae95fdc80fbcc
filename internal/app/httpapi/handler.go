// Package httpapi exposes the REST API over the application services.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	app "github.com/nutrilink/platform/internal/app"
	"github.com/nutrilink/platform/internal/app/domain/listing"
	"github.com/nutrilink/platform/internal/app/domain/user"
	"github.com/nutrilink/platform/internal/app/services/deliveries"
	"github.com/nutrilink/platform/internal/app/services/listings"
	"github.com/nutrilink/platform/internal/app/services/requests"
	"github.com/nutrilink/platform/internal/app/services/users"
	"github.com/nutrilink/platform/internal/app/storage"
	apperrors "github.com/nutrilink/platform/internal/errors"
	"github.com/nutrilink/platform/internal/middleware"
)

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app   *app.Application
	audit *auditLog
}

// Options tunes optional handler behaviour.
type Options struct {
	AuditMax      int
	AuditFilePath string
}

// NewHandler returns the API handler. Routes under /auth plus the health and
// metrics endpoints are public; everything else requires a bearer token.
func NewHandler(application *app.Application, authn *middleware.Authenticator, opts Options) http.Handler {
	var sink auditSink
	if opts.AuditFilePath != "" {
		if fileSink, err := newFileAuditSink(opts.AuditFilePath); err == nil && fileSink != nil {
			sink = fileSink
		}
	}
	h := &handler{
		app:   application,
		audit: newAuditLog(opts.AuditMax, sink),
	}

	protected := http.NewServeMux()
	protected.HandleFunc("/auth/me", h.me)
	protected.HandleFunc("/listings", h.listings)
	protected.HandleFunc("/listings/", h.listingResource)
	protected.HandleFunc("/requests", h.requests)
	protected.HandleFunc("/requests/", h.requestResource)
	protected.HandleFunc("/deliveries", h.deliveries)
	protected.HandleFunc("/deliveries/", h.deliveryResource)
	protected.HandleFunc("/users", h.users)
	protected.HandleFunc("/users/", h.userResource)
	protected.HandleFunc("/admin/analytics/summary", h.analyticsSummary)
	protected.HandleFunc("/admin/audit", h.auditEntries)

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/register", h.register)
	mux.HandleFunc("/auth/login", h.login)
	mux.HandleFunc("/auth/refresh", h.refresh)
	mux.HandleFunc("/healthz", h.healthz)
	mux.Handle("/", authn.Require(h.withAudit(protected)))
	return mux
}

// --- auth --------------------------------------------------------------------

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var payload struct {
		FullName        string  `json:"fullName"`
		Email           string  `json:"email"`
		Password        string  `json:"password"`
		Role            string  `json:"role"`
		PhoneNumber     string  `json:"phoneNumber"`
		Address         string  `json:"address"`
		Latitude        float64 `json:"latitude"`
		Longitude       float64 `json:"longitude"`
		AdminAccessCode string  `json:"adminAccessCode"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, apperrors.InvalidInput("invalid JSON payload"))
		return
	}

	created, pair, err := h.app.Users.Register(r.Context(), users.RegisterInput{
		FullName:        payload.FullName,
		Email:           payload.Email,
		Password:        payload.Password,
		Role:            payload.Role,
		PhoneNumber:     payload.PhoneNumber,
		Address:         payload.Address,
		Latitude:        payload.Latitude,
		Longitude:       payload.Longitude,
		AdminAccessCode: payload.AdminAccessCode,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	body := map[string]any{"user": userView(created)}
	if pair.AccessToken != "" {
		body["accessToken"] = pair.AccessToken
		body["refreshToken"] = pair.RefreshToken
	}
	writeJSON(w, http.StatusCreated, body)
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, apperrors.InvalidInput("invalid JSON payload"))
		return
	}

	u, pair, err := h.app.Users.Login(r.Context(), payload.Email, payload.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":         userView(u),
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	})
}

func (h *handler) refresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var payload struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, apperrors.InvalidInput("invalid JSON payload"))
		return
	}

	u, pair, err := h.app.Users.Refresh(r.Context(), payload.RefreshToken)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":         userView(u),
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	})
}

func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		writeError(w, apperrors.Unauthorized("missing principal"))
		return
	}
	u, err := h.app.Users.Get(r.Context(), p.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, userView(u))
}

// --- listings ----------------------------------------------------------------

func (h *handler) listings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		p, ok := requireRole(w, r, user.RoleProvider)
		if !ok {
			return
		}
		var payload struct {
			Title       string    `json:"title"`
			Description string    `json:"description"`
			Category    string    `json:"category"`
			FoodType    string    `json:"foodType"`
			Servings    int       `json:"servings"`
			Address     string    `json:"address"`
			Latitude    float64   `json:"latitude"`
			Longitude   float64   `json:"longitude"`
			ExpiryAt    time.Time `json:"expiryAt"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, apperrors.InvalidInput("invalid JSON payload"))
			return
		}
		created, err := h.app.Listings.Create(r.Context(), p.UserID, listings.CreateInput{
			Title:       payload.Title,
			Description: payload.Description,
			Category:    payload.Category,
			FoodType:    payload.FoodType,
			Servings:    payload.Servings,
			Address:     payload.Address,
			Latitude:    payload.Latitude,
			Longitude:   payload.Longitude,
			ExpiryAt:    payload.ExpiryAt,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)

	case http.MethodGet:
		query := r.URL.Query()
		filter := storage.ListingFilter{
			Category: query.Get("category"),
			Search:   query.Get("search"),
		}
		if status := query.Get("status"); status != "" {
			filter.Status = listing.Status(status)
		}
		if limit := query.Get("limit"); limit != "" {
			if n, err := strconv.Atoi(limit); err == nil && n > 0 {
				filter.Limit = n
			}
		}
		result, err := h.app.Listings.List(r.Context(), filter)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) listingResource(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/listings"), "/")
	if trimmed == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if trimmed == "mine" {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		p, ok := requireRole(w, r, user.RoleProvider)
		if !ok {
			return
		}
		result, err := h.app.Listings.Mine(r.Context(), p.UserID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	listingID := trimmed
	switch r.Method {
	case http.MethodGet:
		l, err := h.app.Listings.Get(r.Context(), listingID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, l)

	case http.MethodPatch, http.MethodPut:
		p, ok := middleware.PrincipalFrom(r.Context())
		if !ok {
			writeError(w, apperrors.Unauthorized("missing principal"))
			return
		}
		var payload struct {
			Title       *string    `json:"title"`
			Description *string    `json:"description"`
			Category    *string    `json:"category"`
			FoodType    *string    `json:"foodType"`
			Address     *string    `json:"address"`
			Status      *string    `json:"status"`
			ExpiryAt    *time.Time `json:"expiryAt"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, apperrors.InvalidInput("invalid JSON payload"))
			return
		}
		updated, err := h.app.Listings.Update(r.Context(), p.UserID, p.Role, listingID, listings.UpdateInput{
			Title:       payload.Title,
			Description: payload.Description,
			Category:    payload.Category,
			FoodType:    payload.FoodType,
			Address:     payload.Address,
			Status:      payload.Status,
			ExpiryAt:    payload.ExpiryAt,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// --- requests ----------------------------------------------------------------

func (h *handler) requests(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		p, ok := requireRole(w, r, user.RoleBeneficiary)
		if !ok {
			return
		}
		var payload struct {
			ListingID string `json:"listingId"`
			Servings  int    `json:"servings"`
			Notes     string `json:"notes"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, apperrors.InvalidInput("invalid JSON payload"))
			return
		}
		created, err := h.app.Requests.Create(r.Context(), p.UserID, requests.CreateInput{
			ListingID: payload.ListingID,
			Servings:  payload.Servings,
			Notes:     payload.Notes,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)

	case http.MethodGet:
		p, ok := middleware.PrincipalFrom(r.Context())
		if !ok {
			writeError(w, apperrors.Unauthorized("missing principal"))
			return
		}
		result, err := h.app.Requests.ListFor(r.Context(), p.UserID, p.Role)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) requestResource(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/requests"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	requestID := parts[0]

	if len(parts) == 2 && parts[1] == "status" {
		if r.Method != http.MethodPatch && r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		p, ok := middleware.PrincipalFrom(r.Context())
		if !ok {
			writeError(w, apperrors.Unauthorized("missing principal"))
			return
		}
		var payload struct {
			Status string `json:"status"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, apperrors.InvalidInput("invalid JSON payload"))
			return
		}
		updated, err := h.app.Requests.UpdateStatus(r.Context(), p.UserID, p.Role, requestID, payload.Status)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
		return
	}

	if len(parts) == 1 && r.Method == http.MethodGet {
		req, err := h.app.Requests.Get(r.Context(), requestID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, req)
		return
	}

	w.WriteHeader(http.StatusNotFound)
}

// --- deliveries --------------------------------------------------------------

func (h *handler) deliveries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p, ok := requireRole(w, r, user.RoleDelivery)
	if !ok {
		return
	}
	result, err := h.app.Deliveries.Mine(r.Context(), p.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) deliveryResource(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/deliveries"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if parts[0] == "tasks" {
		if len(parts) != 2 || parts[1] != "available" || r.Method != http.MethodGet {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if _, ok := requireRole(w, r, user.RoleDelivery); !ok {
			return
		}
		tasks, err := h.app.Deliveries.OpenTasks(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, tasks)
		return
	}

	if len(parts) == 2 && parts[1] == "accept" {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		p, ok := requireRole(w, r, user.RoleDelivery)
		if !ok {
			return
		}
		// The body is optional; omitted addresses fall back to the listing
		// and beneficiary snapshots.
		var payload struct {
			PickupAddress  string `json:"pickupAddress"`
			DropoffAddress string `json:"dropoffAddress"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, apperrors.InvalidInput("invalid JSON payload"))
			return
		}
		created, err := h.app.Deliveries.Accept(r.Context(), p.UserID, parts[0], deliveries.AcceptInput{
			PickupAddress:  payload.PickupAddress,
			DropoffAddress: payload.DropoffAddress,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
		return
	}

	if len(parts) == 2 && parts[1] == "status" {
		if r.Method != http.MethodPatch && r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		p, ok := requireRole(w, r, user.RoleDelivery, user.RoleAdmin)
		if !ok {
			return
		}
		var payload struct {
			Status   string `json:"status"`
			ProofURL string `json:"proofUrl"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, apperrors.InvalidInput("invalid JSON payload"))
			return
		}
		updated, err := h.app.Deliveries.UpdateStatus(r.Context(), p.UserID, p.Role, parts[0], deliveries.UpdateInput{
			Status:   payload.Status,
			ProofURL: payload.ProofURL,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
		return
	}

	if len(parts) == 1 && r.Method == http.MethodGet {
		p, ok := requireRole(w, r, user.RoleDelivery, user.RoleAdmin)
		if !ok {
			return
		}
		d, err := h.app.Deliveries.Get(r.Context(), p.UserID, p.Role, parts[0])
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
		return
	}

	w.WriteHeader(http.StatusNotFound)
}

// --- users -------------------------------------------------------------------

func (h *handler) users(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := requireRole(w, r, user.RoleAdmin); !ok {
		return
	}

	query := r.URL.Query()
	filter := storage.UserFilter{
		IncludePending: query.Get("includePending") == "true",
		ActiveOnly:     query.Get("activeOnly") == "true",
		Search:         query.Get("search"),
	}
	if role := query.Get("role"); role != "" {
		normalized, ok := user.NormalizeRole(role)
		if !ok {
			writeError(w, apperrors.InvalidInput("unknown role"))
			return
		}
		filter.Role = normalized
	}
	if limit := query.Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil && n > 0 {
			filter.Limit = n
		}
	}

	result, err := h.app.Users.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]map[string]any, 0, len(result))
	for _, u := range result {
		views = append(views, userView(u))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *handler) userResource(w http.ResponseWriter, r *http.Request) {
	userID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/users"), "/")
	if userID == "" || strings.Contains(userID, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	p, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		writeError(w, apperrors.Unauthorized("missing principal"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		if p.Role != user.RoleAdmin && p.UserID != userID {
			writeError(w, apperrors.Forbidden("cannot view another account"))
			return
		}
		u, err := h.app.Users.Get(r.Context(), userID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, userView(u))

	case http.MethodPatch, http.MethodPut:
		var payload struct {
			FullName     *string  `json:"fullName"`
			PhoneNumber  *string  `json:"phoneNumber"`
			Address      *string  `json:"address"`
			Latitude     *float64 `json:"latitude"`
			Longitude    *float64 `json:"longitude"`
			ProfileImage *string  `json:"profileImage"`
			Status       *string  `json:"status"`
			IsActive     *bool    `json:"isActive"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, apperrors.InvalidInput("invalid JSON payload"))
			return
		}
		updated, err := h.app.Users.Update(r.Context(), p.UserID, p.Role, userID, users.UpdateInput{
			FullName:     payload.FullName,
			PhoneNumber:  payload.PhoneNumber,
			Address:      payload.Address,
			Latitude:     payload.Latitude,
			Longitude:    payload.Longitude,
			ProfileImage: payload.ProfileImage,
			Status:       payload.Status,
			IsActive:     payload.IsActive,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, userView(updated))

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// --- admin -------------------------------------------------------------------

func (h *handler) analyticsSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := requireRole(w, r, user.RoleAdmin); !ok {
		return
	}
	summary, err := h.app.Admin.Summary(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *handler) auditEntries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := requireRole(w, r, user.RoleAdmin); !ok {
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	writeJSON(w, http.StatusOK, h.audit.listLimit(limit))
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- helpers -----------------------------------------------------------------

// userView renders a user for API responses with the external role alias.
func userView(u user.User) map[string]any {
	raw, _ := json.Marshal(u)
	view := map[string]any{}
	_ = json.Unmarshal(raw, &view)
	view["role"] = user.PublicRole(u.Role)
	return view
}

func requireRole(w http.ResponseWriter, r *http.Request, roles ...user.Role) (middleware.Principal, bool) {
	p, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		writeError(w, apperrors.Unauthorized("missing principal"))
		return middleware.Principal{}, false
	}
	for _, role := range roles {
		if p.Role == role {
			return p, true
		}
	}
	writeError(w, apperrors.Forbidden("insufficient role"))
	return middleware.Principal{}, false
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	svcErr := apperrors.GetServiceError(err)
	if svcErr == nil {
		svcErr = apperrors.Internal("internal error", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(svcErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": svcErr.Message,
		"code":  svcErr.Code,
	})
}
