package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/simonpricept/client-billing/internal/api/metrics"
	"github.com/simonpricept/client-billing/internal/core/billing"
	"github.com/simonpricept/client-billing/internal/core/domain"
	"github.com/simonpricept/client-billing/internal/core/ports"
	"github.com/simonpricept/client-billing/internal/core/token"
)

type onboardingService struct {
	store     ports.ClientStore
	gateway   ports.PaymentGateway
	notifier  ports.Notifier
	tokens    *token.Service
	lifecycle *Lifecycle
	log       zerolog.Logger
	now       func() time.Time
}

// NewOnboardingService returns the orchestrator that drives a prospective
// client from a valid invitation token to an active subscription.
func NewOnboardingService(
	store ports.ClientStore,
	gateway ports.PaymentGateway,
	notifier ports.Notifier,
	tokens *token.Service,
	lifecycle *Lifecycle,
	log zerolog.Logger,
) ports.OnboardingService {
	return &onboardingService{
		store:     store,
		gateway:   gateway,
		notifier:  notifier,
		tokens:    tokens,
		lifecycle: lifecycle,
		log:       log,
		now:       time.Now,
	}
}

// ValidateToken verifies the invitation and returns the prefill data for the
// onboarding form. Read-only: the same unconsumed token validates any number
// of times. Terms come from the stored client record, which is authoritative
// over the token payload.
func (s *onboardingService) ValidateToken(ctx context.Context, raw string) (*ports.TokenPreview, error) {
	payload, err := s.tokens.Validate(raw)
	if err != nil {
		metrics.TokenValidationsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	client, err := s.store.FindByEmail(ctx, payload.Email)
	if err != nil {
		return nil, err
	}
	if client.Status != domain.StatusPending {
		metrics.TokenValidationsTotal.WithLabelValues("consumed").Inc()
		return nil, domain.ErrTokenAlreadyConsumed
	}

	metrics.TokenValidationsTotal.WithLabelValues("ok").Inc()
	return &ports.TokenPreview{
		Email:      client.Email,
		Name:       client.Name,
		Telephone:  client.Telephone,
		Price:      client.Price,
		BillingDay: client.BillingDay,
		Prorate:    client.Prorate,
	}, nil
}

// CreateSetupIntent asks the gateway for a client secret used by the browser
// to collect a payment instrument. Stateless and repeatable: abandoning the
// form and starting over just creates another intent.
func (s *onboardingService) CreateSetupIntent(ctx context.Context) (string, error) {
	return s.gateway.CreateSetupIntent(ctx, "")
}

// CompleteOnboarding finishes an onboarding attempt:
// token → customer → payment method → subscription → client record → email.
//
// The gateway customer id is persisted as soon as the customer exists, so a
// failure later in the chain never orphans a gateway customer. The final
// status write is conditional on the client still being pending; of two
// concurrent completions exactly one wins and the loser cleans up the
// subscription it created.
func (s *onboardingService) CompleteOnboarding(ctx context.Context, input ports.CompleteOnboardingInput) (*ports.OnboardingResult, error) {
	// Re-validate: the token may have expired between display and submission.
	payload, err := s.tokens.Validate(input.Token)
	if err != nil {
		return nil, err
	}

	client, err := s.store.FindByEmail(ctx, payload.Email)
	if err != nil {
		return nil, err
	}
	if client.Status != domain.StatusPending {
		metrics.OnboardingsTotal.WithLabelValues("duplicate").Inc()
		return nil, domain.ErrDuplicateOnboarding
	}

	customerID, err := s.ensureCustomer(ctx, client)
	if err != nil {
		metrics.OnboardingsTotal.WithLabelValues("gateway_error").Inc()
		return nil, err
	}

	if err := s.gateway.AttachPaymentMethod(ctx, customerID, input.PaymentMethodID); err != nil {
		metrics.OnboardingsTotal.WithLabelValues("gateway_error").Inc()
		return nil, fmt.Errorf("attach payment method: %w", err)
	}

	charge := billing.FirstCharge(client.Price, s.now().UTC(), client.BillingDay, client.Prorate)

	sub, createdHere, err := s.ensureSubscription(ctx, customerID, client, charge)
	if err != nil {
		metrics.OnboardingsTotal.WithLabelValues("gateway_error").Inc()
		return nil, err
	}

	result := &ports.OnboardingResult{
		SubscriptionID:  sub.ID,
		FirstCharge:     charge.FirstCharge,
		MonthlyPrice:    client.Price,
		NextBillingDate: charge.NextBillingDate,
	}

	switch sub.Status {
	case "active", "trialing":
		won, err := s.lifecycle.Activate(ctx, client.Email, sub.ID)
		if err != nil {
			return nil, err
		}
		if !won {
			// A concurrent completion beat us to it. Undo the subscription
			// we created so the client is not billed twice; a reused
			// subscription belongs to the winner and is left alone.
			if createdHere {
				if _, cancelErr := s.gateway.CancelSubscription(ctx, sub.ID, false); cancelErr != nil {
					s.log.Error().Err(cancelErr).
						Str("email", client.Email).
						Str("subscription_id", sub.ID).
						Msg("failed to cancel duplicate subscription")
				}
			}
			metrics.OnboardingsTotal.WithLabelValues("duplicate").Inc()
			return nil, domain.ErrDuplicateOnboarding
		}
		result.Status = domain.StatusActive
	default:
		// e.g. "incomplete": the card needs additional authentication.
		// A valid terminal state for this attempt — the client stays
		// pending and follow-up happens out of band.
		if _, err := s.lifecycle.RecordPendingSubscription(ctx, client.Email, sub.ID); err != nil {
			return nil, err
		}
		result.Status = domain.StatusPending
		result.RequiresAction = true
		s.log.Info().
			Str("email", client.Email).
			Str("gateway_status", sub.Status).
			Msg("subscription incomplete, client remains pending")
	}

	s.applyPersonalDetails(ctx, client, input.Details)

	// Billing is done; a mail outage must not undo it.
	if err := s.notifier.SendConfirmation(ctx, client.Email, ports.ConfirmationDetails{
		Name:            client.Name,
		FirstCharge:     charge.FirstCharge,
		MonthlyPrice:    client.Price,
		NextBillingDate: charge.NextBillingDate,
	}); err != nil {
		s.log.Warn().Err(err).Str("email", client.Email).Msg("confirmation email failed")
	}

	metrics.OnboardingsTotal.WithLabelValues("completed").Inc()
	s.log.Info().
		Str("email", client.Email).
		Str("subscription_id", sub.ID).
		Str("status", string(result.Status)).
		Str("first_charge", charge.FirstCharge.StringFixed(2)).
		Msg("onboarding completed")

	return result, nil
}

// ensureCustomer returns the client's gateway customer id, creating the
// customer when none exists yet. The id is persisted before anything else
// happens so that a retry (or reconciliation) can find it.
func (s *onboardingService) ensureCustomer(ctx context.Context, client *domain.Client) (string, error) {
	if client.GatewayCustomerID != "" {
		return client.GatewayCustomerID, nil
	}

	customerID, err := s.gateway.CreateCustomer(ctx, ports.CustomerDetails{
		Email:     client.Email,
		Name:      client.Name,
		Telephone: client.Telephone,
		Address:   client.Address,
	})
	if err != nil {
		return "", fmt.Errorf("create customer: %w", err)
	}

	if err := s.store.SetCustomerID(ctx, client.Email, customerID); err != nil {
		return "", fmt.Errorf("record customer id: %w", err)
	}
	client.GatewayCustomerID = customerID
	return customerID, nil
}

// ensureSubscription creates the subscription, unless the customer already
// has a live one — which happens when a previous attempt timed out with an
// unknown outcome and the caller retried. Reusing it avoids double billing.
func (s *onboardingService) ensureSubscription(ctx context.Context, customerID string, client *domain.Client, charge billing.Charge) (sub *ports.GatewaySubscription, createdHere bool, err error) {
	existing, err := s.gateway.FindActiveSubscription(ctx, customerID)
	if err != nil {
		return nil, false, fmt.Errorf("check existing subscription: %w", err)
	}
	if existing != nil {
		s.log.Info().
			Str("email", client.Email).
			Str("subscription_id", existing.ID).
			Msg("reusing existing gateway subscription")
		return existing, false, nil
	}

	created, err := s.gateway.CreateSubscription(ctx, customerID, ports.SubscriptionTerms{
		Price:           client.Price,
		BillingDay:      client.BillingDay,
		NextBillingDate: charge.NextBillingDate,
		Prorate:         client.Prorate,
		FirstCharge:     charge.FirstCharge,
	})
	if err != nil {
		return nil, false, fmt.Errorf("create subscription: %w", err)
	}
	return created, true, nil
}

// applyPersonalDetails merges the form data into the client record.
// Non-status fields only; failures are logged, the onboarding already
// succeeded.
func (s *onboardingService) applyPersonalDetails(ctx context.Context, client *domain.Client, d ports.PersonalDetails) {
	if d.FirstName != "" || d.LastName != "" {
		name := d.FirstName
		if d.LastName != "" {
			if name != "" {
				name += " "
			}
			name += d.LastName
		}
		client.Name = name
	}
	if d.Telephone != "" {
		client.Telephone = d.Telephone
	}
	if d.Address.Line1 != "" {
		client.Address = d.Address
	}
	if d.EmergencyContact.Name != "" {
		client.EmergencyContact = d.EmergencyContact
	}

	if err := s.store.Update(ctx, client); err != nil {
		s.log.Warn().Err(err).Str("email", client.Email).Msg("failed to save personal details")
	}
}
