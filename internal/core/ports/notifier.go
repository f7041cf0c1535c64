package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// InvitationTerms is rendered into the invitation email so the client sees
// the agreed pricing before following the link.
type InvitationTerms struct {
	Name       string
	Price      decimal.Decimal
	BillingDay int
	Prorate    bool
	ExpiresAt  time.Time
}

// ConfirmationDetails is rendered into the post-onboarding confirmation.
type ConfirmationDetails struct {
	Name            string
	FirstCharge     decimal.Decimal
	MonthlyPrice    decimal.Decimal
	NextBillingDate time.Time
}

// Notifier sends transactional email. Every call is independently retryable
// and callers treat failures as log-and-continue: a client who has been
// billed correctly must never lose their account to a mail outage.
type Notifier interface {
	SendInvitation(ctx context.Context, email, token string, terms InvitationTerms) error
	SendConfirmation(ctx context.Context, email string, details ConfirmationDetails) error
	SendPasswordSetup(ctx context.Context, email string) error
	SendCardRequest(ctx context.Context, email string) error
}
