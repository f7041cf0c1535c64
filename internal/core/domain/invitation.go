package domain

import "github.com/shopspring/decimal"

// Token purposes. A token issued for one purpose is never accepted for another.
const (
	PurposeOnboarding    = "client_onboarding"
	PurposePasswordSetup = "password_setup"
)

// InvitationPayload is the prefilled onboarding data carried inside a signed
// invitation token. It is stateless: validity is determined entirely by the
// signature and expiry, so a token can be re-issued at any time.
type InvitationPayload struct {
	Email      string
	Name       string
	Telephone  string
	Price      decimal.Decimal
	BillingDay int
	Prorate    bool
}
