package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/simonpricept/client-billing/internal/core/domain"
)

// InviteClientInput carries the terms an admin sets when inviting a client.
type InviteClientInput struct {
	Name       string
	Email      string
	Telephone  string
	Price      decimal.Decimal
	BillingDay int
	Prorate    bool
	// TokenTTL overrides the default invitation validity when non-zero.
	TokenTTL time.Duration
}

// InviteResult is returned after an invitation or resend.
type InviteResult struct {
	Token     string
	ExpiresAt time.Time
}

// CancelResult reports the effect of a cancellation request.
type CancelResult struct {
	Status            domain.Status
	CancelAtPeriodEnd bool
	EndsAt            *time.Time
}

// ClientService covers the administrative client operations: inviting,
// resending invitations, cancelling, and read access.
type ClientService interface {
	// Invite creates a pending client record with the agreed terms, issues
	// an invitation token, and emails the onboarding link.
	Invite(ctx context.Context, input InviteClientInput) (*InviteResult, error)
	// Resend re-issues an invitation from the stored terms; the caller never
	// re-supplies pricing, so terms cannot drift on resend.
	Resend(ctx context.Context, email string) (*InviteResult, error)
	// Cancel ends the client's subscription, immediately or at period end.
	// Deferred cancellation keeps the client active with CancelAtPeriodEnd
	// set; reconciliation flips the status once the period actually ends.
	Cancel(ctx context.Context, email string, atPeriodEnd bool) (*CancelResult, error)
	PortalSession(ctx context.Context, email string) (url string, err error)
	Get(ctx context.Context, email string) (*domain.Client, error)
	List(ctx context.Context, filter ListClientsFilter) ([]*domain.Client, error)
	Stats(ctx context.Context) (map[domain.Status]int64, error)
}
