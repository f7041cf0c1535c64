package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/simonpricept/client-billing/internal/core/domain"
)

// CustomerDetails is the data sent to the gateway when creating a customer.
type CustomerDetails struct {
	Email     string
	Name      string
	Telephone string
	Address   domain.Address
}

// SubscriptionTerms describes the recurring subscription to create.
type SubscriptionTerms struct {
	Price      decimal.Decimal
	Currency   string
	BillingDay int
	// NextBillingDate anchors the first renewal; the partial period before it
	// is prorated by the gateway when Prorate is true.
	NextBillingDate time.Time
	Prorate         bool
	// FirstCharge is the locally computed prorated amount. It is advisory:
	// the gateway derives its own proration from the anchor, and the
	// orchestrator reports this value to the client.
	FirstCharge decimal.Decimal
}

// GatewaySubscription is the gateway's view of a recurring subscription.
// Status carries the gateway's own vocabulary; translation to the local
// enum happens in exactly one place, the reconciliation engine.
type GatewaySubscription struct {
	ID                string
	Status            string
	Price             decimal.Decimal
	CurrentPeriodEnd  time.Time
	CancelAtPeriodEnd bool
}

// CustomerSnapshot is the gateway's view of a customer, used by bulk import.
type CustomerSnapshot struct {
	ID                string
	Email             string
	Name              string
	Telephone         string
	Address           domain.Address
	Subscription      *GatewaySubscription // most recent, nil when none
	HasPaymentMethod  bool
	Deleted           bool
}

// PaymentGateway is the abstract billing system of record. Implementations
// must bound every call with an explicit timeout and translate transport
// failures into domain.ErrGatewayUnavailable (retryable) or
// *domain.GatewayRejectedError (terminal).
type PaymentGateway interface {
	CreateCustomer(ctx context.Context, details CustomerDetails) (customerID string, err error)
	// CreateSetupIntent returns a client secret used by the browser to
	// collect a payment instrument. customerID may be empty: the intent is
	// created unattached and the customer is bound at completion.
	CreateSetupIntent(ctx context.Context, customerID string) (clientSecret string, err error)
	// AttachPaymentMethod attaches the collected instrument to the customer
	// and makes it the default for invoices.
	AttachPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error
	CreateSubscription(ctx context.Context, customerID string, terms SubscriptionTerms) (*GatewaySubscription, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*GatewaySubscription, error)
	// FindActiveSubscription returns the customer's live subscription, or
	// nil when none exists. Used to resume after an unknown-outcome timeout
	// without creating a duplicate.
	FindActiveSubscription(ctx context.Context, customerID string) (*GatewaySubscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string, atPeriodEnd bool) (endsAt time.Time, err error)
	GetCustomer(ctx context.Context, customerID string) (*CustomerSnapshot, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (url string, err error)
}
