package request

import (
	"time"

	"github.com/nutrilink/platform/internal/app/domain/user"
)

// Status tracks a request through its lifecycle.
type Status string

const (
	StatusPending    Status = "pending"
	StatusApproved   Status = "approved"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Request is a beneficiary's claim on a portion of a listing's remaining
// servings. RequestedServings is immutable after creation; the matching
// inventory decrement happens atomically with creation and is reversed
// exactly once if the request is cancelled.
type Request struct {
	ID                string `json:"id"`
	ListingID         string `json:"listingId"`
	BeneficiaryID     string `json:"beneficiaryId"`
	RequestedServings int    `json:"requestedServings"`
	Status            Status `json:"status"`
	Notes             string `json:"notes,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// transitions is the single source of truth for legal status changes.
// Anything absent is rejected, including no-op transitions out of the
// terminal states.
var transitions = map[Status][]Status{
	StatusPending:    {StatusApproved, StatusCancelled},
	StatusApproved:   {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
	StatusCompleted:  {},
	StatusCancelled:  {},
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

// RoleMaySet reports whether a role is ever allowed to drive a request to the
// given status. Beneficiaries may only cancel; providers, delivery agents and
// admins may set any status the transition table allows.
func RoleMaySet(role user.Role, to Status) bool {
	if role == user.RoleBeneficiary {
		return to == StatusCancelled
	}
	return true
}

// ValidStatus reports whether raw names a known request status.
func ValidStatus(raw string) bool {
	switch Status(raw) {
	case StatusPending, StatusApproved, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}
