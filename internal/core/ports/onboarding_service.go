package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/simonpricept/client-billing/internal/core/domain"
)

// TokenPreview is the prefill data returned to the onboarding form after a
// successful token validation. Terms come from the stored client record,
// which is authoritative over the token payload.
type TokenPreview struct {
	Email      string
	Name       string
	Telephone  string
	Price      decimal.Decimal
	BillingDay int
	Prorate    bool
}

// PersonalDetails is the client-supplied data collected on the onboarding form.
type PersonalDetails struct {
	FirstName        string
	LastName         string
	Telephone        string
	DateOfBirth      string
	Address          domain.Address
	EmergencyContact domain.EmergencyContact
}

// CompleteOnboardingInput carries everything needed to finish an onboarding.
type CompleteOnboardingInput struct {
	Token           string
	PaymentMethodID string
	Details         PersonalDetails
}

// OnboardingResult reports the outcome of a completed onboarding.
type OnboardingResult struct {
	Status          domain.Status
	SubscriptionID  string
	FirstCharge     decimal.Decimal
	MonthlyPrice    decimal.Decimal
	NextBillingDate time.Time
	// RequiresAction is true when the gateway reported the subscription as
	// incomplete, e.g. the card needs additional authentication. The client
	// stays pending; this is a valid terminal state, not a failure.
	RequiresAction bool
}

// OnboardingService drives a prospective client from a valid invitation
// token to an active subscription.
type OnboardingService interface {
	ValidateToken(ctx context.Context, token string) (*TokenPreview, error)
	CreateSetupIntent(ctx context.Context) (clientSecret string, err error)
	CompleteOnboarding(ctx context.Context, input CompleteOnboardingInput) (*OnboardingResult, error)
}
