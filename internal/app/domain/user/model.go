package user

import "time"

// Role identifies what a principal may do on the platform.
type Role string

const (
	RoleProvider    Role = "provider"
	RoleBeneficiary Role = "beneficiary"
	RoleDelivery    Role = "delivery"
	RoleAdmin       Role = "admin"
)

// Status tracks account approval.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusSuspended Status = "suspended"
)

// User represents a registered principal: a food provider, a beneficiary
// organisation, a delivery agent or a platform admin.
type User struct {
	ID           string  `json:"id"`
	FullName     string  `json:"fullName"`
	Email        string  `json:"email"`
	PasswordHash string  `json:"-"`
	Role         Role    `json:"role"`
	Status       Status  `json:"status"`
	PhoneNumber  string  `json:"phoneNumber"`
	Address      string  `json:"address,omitempty"`
	Latitude     float64 `json:"latitude,omitempty"`
	Longitude    float64 `json:"longitude,omitempty"`
	ProfileImage string  `json:"profileImage,omitempty"`
	IsActive     bool    `json:"isActive"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NormalizeRole maps external role aliases onto the canonical set. Mobile
// clients historically sent "deliveryAgent" for delivery agents.
func NormalizeRole(raw string) (Role, bool) {
	switch raw {
	case "deliveryAgent", "delivery_agent":
		return RoleDelivery, true
	case string(RoleProvider), string(RoleBeneficiary), string(RoleDelivery), string(RoleAdmin):
		return Role(raw), true
	default:
		return "", false
	}
}

// PublicRole maps a canonical role back to the external alias.
func PublicRole(role Role) string {
	if role == RoleDelivery {
		return "deliveryAgent"
	}
	return string(role)
}

// ValidStatus reports whether raw names a known account status.
func ValidStatus(raw string) bool {
	switch Status(raw) {
	case StatusPending, StatusApproved, StatusSuspended:
		return true
	}
	return false
}
