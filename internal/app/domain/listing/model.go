package listing

import "time"

// Status tracks listing availability.
type Status string

const (
	StatusAvailable Status = "available"
	StatusReserved  Status = "reserved"
	StatusCompleted Status = "completed"
	StatusExpired   Status = "expired"
)

// Listing is a provider's offer of a fixed quantity of surplus food,
// depletable over time. ServingsTotal is fixed at creation; ServingsLeft is
// mutated only through the reserve/release accounting paths, which maintain
// 0 <= ServingsLeft <= ServingsTotal. Listings are never deleted.
type Listing struct {
	ID            string  `json:"id"`
	ProviderID    string  `json:"providerId"`
	Title         string  `json:"title"`
	Description   string  `json:"description,omitempty"`
	Category      string  `json:"category"`
	FoodType      string  `json:"foodType"`
	ServingsTotal int     `json:"servingsTotal"`
	ServingsLeft  int     `json:"servingsLeft"`
	Status        Status  `json:"status"`
	Address       string  `json:"address"`
	Latitude      float64 `json:"latitude,omitempty"`
	Longitude     float64 `json:"longitude,omitempty"`

	ExpiryAt  time.Time `json:"expiryAt"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ValidStatus reports whether raw names a known listing status.
func ValidStatus(raw string) bool {
	switch Status(raw) {
	case StatusAvailable, StatusReserved, StatusCompleted, StatusExpired:
		return true
	}
	return false
}
