package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status represents the lifecycle state of a client subscription.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusCancelled Status = "cancelled"
)

// validTransitions defines the allowed state machine transitions.
// Cancelled is terminal: a client only becomes billable again through a
// brand-new onboarding, which is a new lifecycle rather than a resurrection.
var validTransitions = map[Status][]Status{
	StatusPending:   {StatusActive, StatusCancelled},
	StatusActive:    {StatusSuspended, StatusCancelled},
	StatusSuspended: {StatusActive, StatusCancelled},
}

// CanTransitionTo reports whether a transition from the current status to next is valid.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsKnown reports whether s is one of the four lifecycle statuses.
func (s Status) IsKnown() bool {
	switch s {
	case StatusPending, StatusActive, StatusSuspended, StatusCancelled:
		return true
	}
	return false
}

// Address represents a postal address collected during onboarding.
type Address struct {
	Line1    string `json:"line1" bson:"line1"`
	Line2    string `json:"line2,omitempty" bson:"line2,omitempty"`
	City     string `json:"city" bson:"city"`
	Postcode string `json:"postcode" bson:"postcode"`
	Country  string `json:"country" bson:"country"`
}

// EmergencyContact holds the contact details collected during onboarding.
type EmergencyContact struct {
	Name         string `json:"name" bson:"name"`
	Phone        string `json:"phone" bson:"phone"`
	Relationship string `json:"relationship,omitempty" bson:"relationship,omitempty"`
}

// Client is the durable record of a billed client. Status, CancelAtPeriodEnd
// and SubscriptionEndsAt are written exclusively through the lifecycle
// service; all other fields may be updated by administrative edits.
type Client struct {
	Email                 string           `json:"email"`
	Name                  string           `json:"name"`
	Telephone             string           `json:"telephone,omitempty"`
	Price                 decimal.Decimal  `json:"price"`
	BillingDay            int              `json:"billing_day"`
	Prorate               bool             `json:"prorate"`
	Status                Status           `json:"status"`
	GatewayCustomerID     string           `json:"gateway_customer_id,omitempty"`
	GatewaySubscriptionID string           `json:"gateway_subscription_id,omitempty"`
	CancelAtPeriodEnd     bool             `json:"cancel_at_period_end"`
	SubscriptionEndsAt    *time.Time       `json:"subscription_ends_at,omitempty"`
	Address               Address          `json:"address"`
	EmergencyContact      EmergencyContact `json:"emergency_contact"`
	InviteSentAt          *time.Time       `json:"invite_sent_at,omitempty"`
	ImportedAt            *time.Time       `json:"imported_at,omitempty"`
	CreatedAt             time.Time        `json:"created_at"`
	UpdatedAt             time.Time        `json:"updated_at"`
}

// StatusUpdate carries the fields a single lifecycle transition is allowed to
// touch. Nil pointer fields are left unchanged by the store.
type StatusUpdate struct {
	Status             Status
	SubscriptionID     *string
	CancelAtPeriodEnd  *bool
	SubscriptionEndsAt *time.Time
}
