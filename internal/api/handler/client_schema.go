package handler

import (
	"time"

	"github.com/simonpricept/client-billing/internal/core/domain"
)

// --- Request / Response types ---

type inviteClientRequest struct {
	Name       string `json:"name"        validate:"required"`
	Email      string `json:"email"       validate:"required,email"`
	Telephone  string `json:"telephone"`
	Price      string `json:"price"       validate:"required,money"`
	BillingDay int    `json:"billing_day" validate:"required,min=1,max=28"`
	Prorate    bool   `json:"prorate"`
	// TokenTTLDays overrides the default invitation validity when non-zero.
	TokenTTLDays int `json:"token_ttl_days" validate:"omitempty,min=1,max=30"`
}

type inviteClientResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type cancelClientRequest struct {
	AtPeriodEnd bool `json:"at_period_end"`
}

type cancelClientResponse struct {
	Status            string     `json:"status"`
	CancelAtPeriodEnd bool       `json:"cancel_at_period_end"`
	EndsAt            *time.Time `json:"ends_at,omitempty"`
}

type portalSessionResponse struct {
	URL string `json:"url"`
}

type syncStatusResponse struct {
	Previous string `json:"previous"`
	Current  string `json:"current"`
	Changed  bool   `json:"changed"`
}

// Response-only view of a client, owned by the transport layer so the JSON
// contract is not coupled to internal domain changes.
type clientResponse struct {
	Email                 string     `json:"email"`
	Name                  string     `json:"name"`
	Telephone             string     `json:"telephone,omitempty"`
	Price                 string     `json:"price"`
	BillingDay            int        `json:"billing_day"`
	Prorate               bool       `json:"prorate"`
	Status                string     `json:"status"`
	GatewayCustomerID     string     `json:"gateway_customer_id,omitempty"`
	GatewaySubscriptionID string     `json:"gateway_subscription_id,omitempty"`
	CancelAtPeriodEnd     bool       `json:"cancel_at_period_end"`
	SubscriptionEndsAt    *time.Time `json:"subscription_ends_at,omitempty"`
	InviteSentAt          *time.Time `json:"invite_sent_at,omitempty"`
	ImportedAt            *time.Time `json:"imported_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

type listClientsResponse struct {
	Clients []clientResponse `json:"clients"`
	Count   int              `json:"count"`
}

func toClientResponse(c *domain.Client) clientResponse {
	return clientResponse{
		Email:                 c.Email,
		Name:                  c.Name,
		Telephone:             c.Telephone,
		Price:                 c.Price.StringFixed(2),
		BillingDay:            c.BillingDay,
		Prorate:               c.Prorate,
		Status:                string(c.Status),
		GatewayCustomerID:     c.GatewayCustomerID,
		GatewaySubscriptionID: c.GatewaySubscriptionID,
		CancelAtPeriodEnd:     c.CancelAtPeriodEnd,
		SubscriptionEndsAt:    c.SubscriptionEndsAt,
		InviteSentAt:          c.InviteSentAt,
		ImportedAt:            c.ImportedAt,
		CreatedAt:             c.CreatedAt,
		UpdatedAt:             c.UpdatedAt,
	}
}
