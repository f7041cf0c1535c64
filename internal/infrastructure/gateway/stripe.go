package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"

	"github.com/simonpricept/client-billing/internal/core/domain"
	"github.com/simonpricept/client-billing/internal/core/ports"
	"github.com/simonpricept/client-billing/internal/infrastructure/config"
)

// StripeGateway implements ports.PaymentGateway against the Stripe API.
// Every call is bounded by the configured timeout; Stripe's own error
// vocabulary is translated at this boundary and never leaks upward.
type StripeGateway struct {
	api *client.API
	cfg config.GatewayConfig
	log zerolog.Logger
}

// NewStripeGateway builds a gateway from the configured secret key.
func NewStripeGateway(cfg config.GatewayConfig, log zerolog.Logger) *StripeGateway {
	api := &client.API{}
	api.Init(cfg.SecretKey, nil)
	return &StripeGateway{api: api, cfg: cfg, log: log}
}

func (g *StripeGateway) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := g.cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

// translate folds a Stripe error into the domain vocabulary: 5xx and
// transport failures become the retryable ErrGatewayUnavailable, everything
// else a terminal GatewayRejectedError.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var serr *stripe.Error
	if errors.As(err, &serr) {
		if serr.HTTPStatusCode >= 500 {
			return fmt.Errorf("%w: %s", domain.ErrGatewayUnavailable, serr.Msg)
		}
		return &domain.GatewayRejectedError{Code: string(serr.Code), Message: serr.Msg}
	}
	return fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
}

func (g *StripeGateway) CreateCustomer(ctx context.Context, details ports.CustomerDetails) (string, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	params := &stripe.CustomerParams{
		Params: stripe.Params{Context: ctx},
		Email:  stripe.String(details.Email),
		Name:   stripe.String(details.Name),
	}
	if details.Telephone != "" {
		params.Phone = stripe.String(details.Telephone)
	}
	if details.Address.Line1 != "" {
		params.Address = &stripe.AddressParams{
			Line1:      stripe.String(details.Address.Line1),
			Line2:      stripe.String(details.Address.Line2),
			City:       stripe.String(details.Address.City),
			PostalCode: stripe.String(details.Address.Postcode),
			Country:    stripe.String(details.Address.Country),
		}
	}

	cust, err := g.api.Customers.New(params)
	if err != nil {
		return "", translate(err)
	}
	return cust.ID, nil
}

func (g *StripeGateway) CreateSetupIntent(ctx context.Context, customerID string) (string, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	params := &stripe.SetupIntentParams{
		Params:             stripe.Params{Context: ctx},
		Usage:              stripe.String("off_session"),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
	}
	if customerID != "" {
		params.Customer = stripe.String(customerID)
	}

	intent, err := g.api.SetupIntents.New(params)
	if err != nil {
		return "", translate(err)
	}
	return intent.ClientSecret, nil
}

func (g *StripeGateway) AttachPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	_, err := g.api.PaymentMethods.Attach(paymentMethodID, &stripe.PaymentMethodAttachParams{
		Params:   stripe.Params{Context: ctx},
		Customer: stripe.String(customerID),
	})
	if err != nil {
		return translate(err)
	}

	// Make it the default so invoices charge without further input.
	_, err = g.api.Customers.Update(customerID, &stripe.CustomerParams{
		Params: stripe.Params{Context: ctx},
		InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(paymentMethodID),
		},
	})
	return translate(err)
}

func (g *StripeGateway) CreateSubscription(ctx context.Context, customerID string, terms ports.SubscriptionTerms) (*ports.GatewaySubscription, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	priceID, err := g.ensurePrice(ctx, terms.Price, terms.Currency)
	if err != nil {
		return nil, err
	}

	params := &stripe.SubscriptionParams{
		Params:   stripe.Params{Context: ctx},
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(priceID)},
		},
		PaymentBehavior: stripe.String("allow_incomplete"),
		PaymentSettings: &stripe.SubscriptionPaymentSettingsParams{
			SaveDefaultPaymentMethod: stripe.String("on_subscription"),
		},
	}
	if !terms.NextBillingDate.IsZero() {
		params.BillingCycleAnchor = stripe.Int64(terms.NextBillingDate.Unix())
	}
	if terms.Prorate {
		params.ProrationBehavior = stripe.String("create_prorations")
	} else {
		params.ProrationBehavior = stripe.String("none")
	}

	sub, err := g.api.Subscriptions.New(params)
	if err != nil {
		return nil, translate(err)
	}
	return toGatewaySubscription(sub), nil
}

func (g *StripeGateway) GetSubscription(ctx context.Context, subscriptionID string) (*ports.GatewaySubscription, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	sub, err := g.api.Subscriptions.Get(subscriptionID, &stripe.SubscriptionParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, translate(err)
	}
	return toGatewaySubscription(sub), nil
}

func (g *StripeGateway) FindActiveSubscription(ctx context.Context, customerID string) (*ports.GatewaySubscription, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	iter := g.api.Subscriptions.List(&stripe.SubscriptionListParams{
		ListParams: stripe.ListParams{Context: ctx},
		Customer:   stripe.String(customerID),
		Status:     stripe.String("all"),
	})
	for iter.Next() {
		sub := iter.Subscription()
		switch sub.Status {
		case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusIncompleteExpired:
			continue
		}
		return toGatewaySubscription(sub), nil
	}
	if err := iter.Err(); err != nil {
		return nil, translate(err)
	}
	return nil, nil
}

func (g *StripeGateway) CancelSubscription(ctx context.Context, subscriptionID string, atPeriodEnd bool) (time.Time, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	if atPeriodEnd {
		sub, err := g.api.Subscriptions.Update(subscriptionID, &stripe.SubscriptionParams{
			Params:            stripe.Params{Context: ctx},
			CancelAtPeriodEnd: stripe.Bool(true),
		})
		if err != nil {
			return time.Time{}, translate(err)
		}
		return time.Unix(sub.CurrentPeriodEnd, 0).UTC(), nil
	}

	sub, err := g.api.Subscriptions.Cancel(subscriptionID, &stripe.SubscriptionCancelParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return time.Time{}, translate(err)
	}
	if sub.EndedAt > 0 {
		return time.Unix(sub.EndedAt, 0).UTC(), nil
	}
	return time.Now().UTC(), nil
}

func (g *StripeGateway) GetCustomer(ctx context.Context, customerID string) (*ports.CustomerSnapshot, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	cust, err := g.api.Customers.Get(customerID, &stripe.CustomerParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, translate(err)
	}

	snap := &ports.CustomerSnapshot{
		ID:      cust.ID,
		Email:   cust.Email,
		Name:    cust.Name,
		Deleted: cust.Deleted,
	}
	if cust.Deleted {
		return snap, nil
	}
	snap.Telephone = cust.Phone
	if cust.Address != nil {
		snap.Address = domain.Address{
			Line1:    cust.Address.Line1,
			Line2:    cust.Address.Line2,
			City:     cust.Address.City,
			Postcode: cust.Address.PostalCode,
			Country:  cust.Address.Country,
		}
	}

	sub, err := g.FindActiveSubscription(ctx, customerID)
	if err != nil {
		return nil, err
	}
	snap.Subscription = sub

	hasPM, err := g.hasPaymentMethod(ctx, cust)
	if err != nil {
		return nil, err
	}
	snap.HasPaymentMethod = hasPM

	return snap, nil
}

func (g *StripeGateway) hasPaymentMethod(ctx context.Context, cust *stripe.Customer) (bool, error) {
	if cust.InvoiceSettings != nil && cust.InvoiceSettings.DefaultPaymentMethod != nil {
		return true, nil
	}
	iter := g.api.PaymentMethods.List(&stripe.PaymentMethodListParams{
		ListParams: stripe.ListParams{Context: ctx},
		Customer:   stripe.String(cust.ID),
		Type:       stripe.String("card"),
	})
	for iter.Next() {
		return true, nil
	}
	if err := iter.Err(); err != nil {
		return false, translate(err)
	}
	return false, nil
}

func (g *StripeGateway) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	session, err := g.api.BillingPortalSessions.New(&stripe.BillingPortalSessionParams{
		Params:    stripe.Params{Context: ctx},
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	})
	if err != nil {
		return "", translate(err)
	}
	return session.URL, nil
}

// ensurePrice looks up a recurring monthly price for the given amount,
// creating it (and the catalogue product on first use) when absent. Prices
// are keyed by amount so clients on the same rate share one price object.
func (g *StripeGateway) ensurePrice(ctx context.Context, amount decimal.Decimal, currency string) (string, error) {
	minor := amount.Shift(2).Round(0).IntPart()
	lookupKey := fmt.Sprintf("%s_%s_%d", g.cfg.PriceLookupKey, currency, minor)

	iter := g.api.Prices.List(&stripe.PriceListParams{
		ListParams: stripe.ListParams{Context: ctx},
		LookupKeys: stripe.StringSlice([]string{lookupKey}),
	})
	for iter.Next() {
		return iter.Price().ID, nil
	}
	if err := iter.Err(); err != nil {
		return "", translate(err)
	}

	productID, err := g.ensureProduct(ctx)
	if err != nil {
		return "", err
	}

	price, err := g.api.Prices.New(&stripe.PriceParams{
		Params:     stripe.Params{Context: ctx},
		Product:    stripe.String(productID),
		UnitAmount: stripe.Int64(minor),
		Currency:   stripe.String(currency),
		LookupKey:  stripe.String(lookupKey),
		Recurring: &stripe.PriceRecurringParams{
			Interval: stripe.String("month"),
		},
	})
	if err != nil {
		return "", translate(err)
	}
	g.log.Info().Str("price_id", price.ID).Str("lookup_key", lookupKey).Msg("created gateway price")
	return price.ID, nil
}

func (g *StripeGateway) ensureProduct(ctx context.Context) (string, error) {
	iter := g.api.Products.List(&stripe.ProductListParams{
		ListParams: stripe.ListParams{Context: ctx},
		Active:     stripe.Bool(true),
	})
	for iter.Next() {
		if p := iter.Product(); p.Name == g.cfg.ProductName {
			return p.ID, nil
		}
	}
	if err := iter.Err(); err != nil {
		return "", translate(err)
	}

	product, err := g.api.Products.New(&stripe.ProductParams{
		Params: stripe.Params{Context: ctx},
		Name:   stripe.String(g.cfg.ProductName),
	})
	if err != nil {
		return "", translate(err)
	}
	g.log.Info().Str("product_id", product.ID).Msg("created gateway product")
	return product.ID, nil
}

func toGatewaySubscription(sub *stripe.Subscription) *ports.GatewaySubscription {
	out := &ports.GatewaySubscription{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if sub.CurrentPeriodEnd > 0 {
		out.CurrentPeriodEnd = time.Unix(sub.CurrentPeriodEnd, 0).UTC()
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		out.Price = decimal.New(sub.Items.Data[0].Price.UnitAmount, -2)
	}
	return out
}
