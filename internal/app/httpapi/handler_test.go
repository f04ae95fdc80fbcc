package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	app "github.com/nutrilink/platform/internal/app"
	"github.com/nutrilink/platform/internal/app/auth"
	"github.com/nutrilink/platform/internal/app/domain/request"
	"github.com/nutrilink/platform/internal/app/storage"
	"github.com/nutrilink/platform/internal/middleware"
)

const adminCode = "test-admin-code"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	tokens := auth.NewManager(auth.Config{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		BcryptCost:    4,
	})
	application, err := app.New(app.Stores{}, tokens, app.Options{
		AdminAccessCode:      adminCode,
		InitialRequestStatus: request.StatusPending,
	}, nil)
	if err != nil {
		t.Fatalf("build application: %v", err)
	}

	handler := NewHandler(application, middleware.NewAuthenticator(tokens, nil), Options{})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

// call performs a JSON request and decodes the response into out when out is
// non-nil. token may be empty for public routes.
func call(t *testing.T, srv *httptest.Server, method, path, token string, body, out any) int {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s response: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

type authResult struct {
	User         map[string]any `json:"user"`
	AccessToken  string         `json:"accessToken"`
	RefreshToken string         `json:"refreshToken"`
}

func register(t *testing.T, srv *httptest.Server, role, email string, extra map[string]any) authResult {
	t.Helper()
	payload := map[string]any{
		"fullName": "Test " + role,
		"email":    email,
		"password": "Password123!",
		"role":     role,
	}
	for k, v := range extra {
		payload[k] = v
	}
	var result authResult
	if status := call(t, srv, http.MethodPost, "/auth/register", "", payload, &result); status != http.StatusCreated {
		t.Fatalf("register %s: status %d", role, status)
	}
	return result
}

func login(t *testing.T, srv *httptest.Server, email string) authResult {
	t.Helper()
	var result authResult
	status := call(t, srv, http.MethodPost, "/auth/login", "", map[string]any{
		"email":    email,
		"password": "Password123!",
	}, &result)
	if status != http.StatusOK {
		t.Fatalf("login %s: status %d", email, status)
	}
	return result
}

// approve flips a pending account to approved using the admin token.
func approve(t *testing.T, srv *httptest.Server, adminToken, userID string) {
	t.Helper()
	status := call(t, srv, http.MethodPatch, "/users/"+userID, adminToken, map[string]any{
		"status": "approved",
	}, nil)
	if status != http.StatusOK {
		t.Fatalf("approve user %s: status %d", userID, status)
	}
}

func TestFullMarketplaceLifecycle(t *testing.T) {
	srv := newTestServer(t)

	admin := register(t, srv, "admin", "admin@example.org", map[string]any{"adminAccessCode": adminCode})
	if admin.AccessToken == "" {
		t.Fatal("admin must receive tokens at registration")
	}

	provider := register(t, srv, "provider", "provider@example.org", nil)
	if provider.AccessToken != "" {
		t.Fatal("pending provider must not receive tokens")
	}
	approve(t, srv, admin.AccessToken, provider.User["id"].(string))
	provider = login(t, srv, "provider@example.org")

	beneficiary := register(t, srv, "beneficiary", "shelter@example.org", map[string]any{
		"address": "48 Riverside Avenue",
	})
	if beneficiary.AccessToken == "" {
		t.Fatal("beneficiary must receive tokens at registration")
	}

	agent := register(t, srv, "deliveryAgent", "agent@example.org", nil)
	approve(t, srv, admin.AccessToken, agent.User["id"].(string))
	agent = login(t, srv, "agent@example.org")

	// Provider posts 40 servings of surplus food.
	var posted map[string]any
	status := call(t, srv, http.MethodPost, "/listings", provider.AccessToken, map[string]any{
		"title":    "Surplus vegetable curry",
		"category": "cooked-meals",
		"foodType": "vegetarian",
		"servings": 40,
		"address":  "12 Market Street",
		"expiryAt": time.Now().Add(24 * time.Hour).Format(time.RFC3339),
	}, &posted)
	if status != http.StatusCreated {
		t.Fatalf("create listing: status %d", status)
	}
	listingID := posted["id"].(string)

	// Beneficiary reserves 10 of them.
	var req map[string]any
	status = call(t, srv, http.MethodPost, "/requests", beneficiary.AccessToken, map[string]any{
		"listingId": listingID,
		"servings":  10,
	}, &req)
	if status != http.StatusCreated {
		t.Fatalf("create request: status %d", status)
	}
	requestID := req["id"].(string)
	if req["status"] != "pending" {
		t.Fatalf("new request must be pending, got %v", req["status"])
	}

	var afterReserve map[string]any
	call(t, srv, http.MethodGet, "/listings/"+listingID, beneficiary.AccessToken, nil, &afterReserve)
	if got := afterReserve["servingsLeft"].(float64); got != 30 {
		t.Fatalf("reservation must decrement inventory, got %v left", got)
	}

	// Provider approves the request.
	status = call(t, srv, http.MethodPatch, "/requests/"+requestID+"/status", provider.AccessToken, map[string]any{
		"status": "approved",
	}, nil)
	if status != http.StatusOK {
		t.Fatalf("approve request: status %d", status)
	}

	// The agent finds the task and claims it.
	var tasks []map[string]any
	call(t, srv, http.MethodGet, "/deliveries/tasks/available", agent.AccessToken, nil, &tasks)
	if len(tasks) != 1 || tasks[0]["id"] != requestID {
		t.Fatalf("expected the approved request in tasks, got %v", tasks)
	}

	var d map[string]any
	status = call(t, srv, http.MethodPost, "/deliveries/"+requestID+"/accept", agent.AccessToken, nil, &d)
	if status != http.StatusCreated {
		t.Fatalf("accept delivery: status %d", status)
	}
	deliveryID := d["id"].(string)
	if d["pickupAddress"] != "12 Market Street" || d["dropoffAddress"] != "48 Riverside Avenue" {
		t.Fatalf("delivery must snapshot addresses, got %v", d)
	}

	for _, next := range []string{"picked_up", "delivered"} {
		status = call(t, srv, http.MethodPatch, "/deliveries/"+deliveryID+"/status", agent.AccessToken, map[string]any{
			"status": next,
		}, nil)
		if status != http.StatusOK {
			t.Fatalf("delivery -> %s: status %d", next, status)
		}
	}

	// Delivered cascades: request completed, inventory untouched at 30.
	var done map[string]any
	call(t, srv, http.MethodGet, "/requests/"+requestID, beneficiary.AccessToken, nil, &done)
	if done["status"] != "completed" {
		t.Fatalf("delivered must complete the request, got %v", done["status"])
	}
	var after map[string]any
	call(t, srv, http.MethodGet, "/listings/"+listingID, beneficiary.AccessToken, nil, &after)
	if after["status"] != "available" || after["servingsLeft"].(float64) != 30 {
		t.Fatalf("listing must stay open with 30 left, got %v", after)
	}

	// The admin dashboard reflects the completed flow.
	var summary storage.AnalyticsSummary
	status = call(t, srv, http.MethodGet, "/admin/analytics/summary", admin.AccessToken, nil, &summary)
	if status != http.StatusOK {
		t.Fatalf("analytics summary: status %d", status)
	}
	if summary.MealsDelivered != 10 || summary.CompletedRequests != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.MealsAvailable != 30 || summary.TotalUsers != 4 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	// The audit trail recorded the authenticated traffic.
	var entries []map[string]any
	status = call(t, srv, http.MethodGet, "/admin/audit", admin.AccessToken, nil, &entries)
	if status != http.StatusOK {
		t.Fatalf("audit: status %d", status)
	}
	if len(entries) == 0 {
		t.Fatal("audit log must not be empty after the walk")
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	srv := newTestServer(t)

	if status := call(t, srv, http.MethodGet, "/listings", "", nil, nil); status != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", status)
	}
	if status := call(t, srv, http.MethodGet, "/listings", "not-a-token", nil, nil); status != http.StatusUnauthorized {
		t.Fatalf("expected 401 with a bad token, got %d", status)
	}

	var health map[string]string
	if status := call(t, srv, http.MethodGet, "/healthz", "", nil, &health); status != http.StatusOK {
		t.Fatalf("healthz must be public, got %d", status)
	}
	if health["status"] != "ok" {
		t.Fatalf("unexpected health body: %v", health)
	}
}

func TestRoleEnforcement(t *testing.T) {
	srv := newTestServer(t)

	beneficiary := register(t, srv, "beneficiary", "ben@example.org", nil)

	// A beneficiary may not post listings.
	status := call(t, srv, http.MethodPost, "/listings", beneficiary.AccessToken, map[string]any{
		"title":    "Nope",
		"category": "bakery",
		"servings": 5,
		"expiryAt": time.Now().Add(time.Hour).Format(time.RFC3339),
	}, nil)
	if status != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", status)
	}

	// Nor browse the user directory.
	if status := call(t, srv, http.MethodGet, "/users", beneficiary.AccessToken, nil, nil); status != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", status)
	}

	// Nor read another account.
	other := register(t, srv, "beneficiary", "other@example.org", nil)
	otherID := other.User["id"].(string)
	if status := call(t, srv, http.MethodGet, "/users/"+otherID, beneficiary.AccessToken, nil, nil); status != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", status)
	}

	// Reading one's own account is fine.
	ownID := beneficiary.User["id"].(string)
	if status := call(t, srv, http.MethodGet, "/users/"+ownID, beneficiary.AccessToken, nil, nil); status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
}

func TestRefreshFlow(t *testing.T) {
	srv := newTestServer(t)

	ben := register(t, srv, "beneficiary", "ben@example.org", nil)

	var refreshed authResult
	status := call(t, srv, http.MethodPost, "/auth/refresh", "", map[string]any{
		"refreshToken": ben.RefreshToken,
	}, &refreshed)
	if status != http.StatusOK {
		t.Fatalf("refresh: status %d", status)
	}
	if refreshed.AccessToken == "" {
		t.Fatal("refresh must issue a new access token")
	}

	var me map[string]any
	if status := call(t, srv, http.MethodGet, "/auth/me", refreshed.AccessToken, nil, &me); status != http.StatusOK {
		t.Fatalf("me with refreshed token: status %d", status)
	}
	if me["email"] != "ben@example.org" {
		t.Fatalf("unexpected profile: %v", me)
	}
}

func TestRegisterExposesPublicRoleAlias(t *testing.T) {
	srv := newTestServer(t)

	agent := register(t, srv, "deliveryAgent", "agent@example.org", nil)
	if agent.User["role"] != "deliveryAgent" {
		t.Fatalf("API must render the external role alias, got %v", agent.User["role"])
	}
}
