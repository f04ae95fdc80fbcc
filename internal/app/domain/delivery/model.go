package delivery

import "time"

// Status tracks a delivery assignment through fulfilment.
type Status string

const (
	StatusAssigned  Status = "assigned"
	StatusPickedUp  Status = "picked_up"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// Delivery is the fulfilment assignment of an approved request to a delivery
// agent. At most one non-cancelled delivery may reference a given request;
// the first successful claim wins.
type Delivery struct {
	ID              string `json:"id"`
	RequestID       string `json:"requestId"`
	DeliveryAgentID string `json:"deliveryAgentId"`
	Status          Status `json:"status"`
	PickupAddress   string `json:"pickupAddress"`
	DropoffAddress  string `json:"dropoffAddress"`
	ProofURL        string `json:"proofUrl,omitempty"`

	PickupAt    time.Time `json:"pickupAt,omitempty"`
	DeliveredAt time.Time `json:"deliveredAt,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

var transitions = map[Status][]Status{
	StatusAssigned:  {StatusPickedUp, StatusCancelled},
	StatusPickedUp:  {StatusDelivered, StatusCancelled},
	StatusDelivered: {},
	StatusCancelled: {},
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidStatus reports whether raw names a known delivery status.
func ValidStatus(raw string) bool {
	switch Status(raw) {
	case StatusAssigned, StatusPickedUp, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}
