package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/simonpricept/client-billing/internal/api/metrics"
	"github.com/simonpricept/client-billing/internal/core/domain"
	"github.com/simonpricept/client-billing/internal/core/ports"
	"github.com/simonpricept/client-billing/internal/core/token"
)

type clientService struct {
	store     ports.ClientStore
	gateway   ports.PaymentGateway
	notifier  ports.Notifier
	tokens    *token.Service
	lifecycle *Lifecycle
	portalURL string
	log       zerolog.Logger
	now       func() time.Time
}

// NewClientService returns the administrative client service: invitations,
// cancellations, portal sessions and read access. portalURL is where the
// gateway's billing portal returns the client to.
func NewClientService(
	store ports.ClientStore,
	gateway ports.PaymentGateway,
	notifier ports.Notifier,
	tokens *token.Service,
	lifecycle *Lifecycle,
	portalURL string,
	log zerolog.Logger,
) ports.ClientService {
	return &clientService{
		store:     store,
		gateway:   gateway,
		notifier:  notifier,
		tokens:    tokens,
		lifecycle: lifecycle,
		portalURL: portalURL,
		log:       log,
		now:       time.Now,
	}
}

// Invite records the agreed terms as a pending client and emails the
// onboarding link. Inviting an email that already belongs to a live client
// fails; re-inviting a still-pending client refreshes the stored terms and
// issues a new token, and re-inviting a cancelled client starts a fresh
// lifecycle.
func (s *clientService) Invite(ctx context.Context, input ports.InviteClientInput) (*ports.InviteResult, error) {
	existing, err := s.store.FindByEmail(ctx, input.Email)
	if err != nil && !errors.Is(err, domain.ErrClientNotFound) {
		return nil, fmt.Errorf("invite: %w", err)
	}

	now := s.now()
	switch {
	case existing == nil:
		client := &domain.Client{
			Email:        input.Email,
			Name:         input.Name,
			Telephone:    input.Telephone,
			Price:        input.Price,
			BillingDay:   input.BillingDay,
			Prorate:      input.Prorate,
			Status:       domain.StatusPending,
			InviteSentAt: &now,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.store.Insert(ctx, client); err != nil {
			return nil, fmt.Errorf("invite: %w", err)
		}
	case existing.Status == domain.StatusPending:
		existing.Name = input.Name
		existing.Telephone = input.Telephone
		existing.Price = input.Price
		existing.BillingDay = input.BillingDay
		existing.Prorate = input.Prorate
		existing.InviteSentAt = &now
		existing.UpdatedAt = now
		if err := s.store.Update(ctx, existing); err != nil {
			return nil, fmt.Errorf("invite: %w", err)
		}
	case existing.Status == domain.StatusCancelled:
		// New lifecycle. The record goes back to pending with the new terms;
		// the previous gateway customer is reused at onboarding if present.
		existing.Name = input.Name
		existing.Telephone = input.Telephone
		existing.Price = input.Price
		existing.BillingDay = input.BillingDay
		existing.Prorate = input.Prorate
		existing.InviteSentAt = &now
		existing.UpdatedAt = now
		if err := s.store.Update(ctx, existing); err != nil {
			return nil, fmt.Errorf("invite: %w", err)
		}
		empty := ""
		off := false
		if _, err := s.store.UpdateStatusIf(ctx, input.Email, nil, domain.StatusUpdate{
			Status:            domain.StatusPending,
			SubscriptionID:    &empty,
			CancelAtPeriodEnd: &off,
		}); err != nil {
			return nil, fmt.Errorf("invite: %w", err)
		}
	default:
		return nil, domain.ErrClientActive
	}

	result, err := s.issueAndSend(ctx, input.Email, domain.InvitationPayload{
		Email:      input.Email,
		Name:       input.Name,
		Telephone:  input.Telephone,
		Price:      input.Price,
		BillingDay: input.BillingDay,
		Prorate:    input.Prorate,
	}, input.TokenTTL)
	if err != nil {
		return nil, err
	}

	metrics.InvitationsSentTotal.WithLabelValues("invite").Inc()
	s.log.Info().Str("email", input.Email).Msg("client invited")
	return result, nil
}

// Resend re-issues an invitation from the terms on record. Pricing is never
// re-supplied on resend, so the terms the client eventually accepts are the
// ones the original invite agreed.
func (s *clientService) Resend(ctx context.Context, email string) (*ports.InviteResult, error) {
	client, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("resend: %w", err)
	}
	if client.Status != domain.StatusPending {
		return nil, domain.ErrClientActive
	}

	result, err := s.issueAndSend(ctx, email, domain.InvitationPayload{
		Email:      client.Email,
		Name:       client.Name,
		Telephone:  client.Telephone,
		Price:      client.Price,
		BillingDay: client.BillingDay,
		Prorate:    client.Prorate,
	}, 0)
	if err != nil {
		return nil, err
	}

	now := s.now()
	client.InviteSentAt = &now
	client.UpdatedAt = now
	if err := s.store.Update(ctx, client); err != nil {
		s.log.Warn().Err(err).Str("email", email).Msg("failed to record resend time")
	}

	metrics.InvitationsSentTotal.WithLabelValues("resend").Inc()
	s.log.Info().Str("email", email).Msg("invitation resent")
	return result, nil
}

func (s *clientService) issueAndSend(ctx context.Context, email string, payload domain.InvitationPayload, ttl time.Duration) (*ports.InviteResult, error) {
	tok, expiresAt, err := s.tokens.Issue(payload, ttl)
	if err != nil {
		return nil, fmt.Errorf("issue invitation: %w", err)
	}

	err = s.notifier.SendInvitation(ctx, email, tok, ports.InvitationTerms{
		Name:       payload.Name,
		Price:      payload.Price,
		BillingDay: payload.BillingDay,
		Prorate:    payload.Prorate,
		ExpiresAt:  expiresAt,
	})
	if err != nil {
		// The token is still valid; surface the failure so the admin retries.
		return nil, fmt.Errorf("send invitation: %w", err)
	}

	return &ports.InviteResult{Token: tok, ExpiresAt: expiresAt}, nil
}

// Cancel ends the subscription at the gateway first, then records the local
// transition. A pending client with no subscription is cancelled locally
// without a gateway call.
func (s *clientService) Cancel(ctx context.Context, email string, atPeriodEnd bool) (*ports.CancelResult, error) {
	client, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("cancel: %w", err)
	}
	if client.Status == domain.StatusCancelled {
		return &ports.CancelResult{
			Status:            domain.StatusCancelled,
			CancelAtPeriodEnd: client.CancelAtPeriodEnd,
			EndsAt:            client.SubscriptionEndsAt,
		}, nil
	}

	if client.GatewaySubscriptionID == "" {
		// A client that never reached the gateway has nothing to cancel;
		// cancelling the record would leave it without a customer id, which
		// every non-pending record must carry.
		if client.GatewayCustomerID == "" {
			return nil, domain.ErrNoGatewayCustomer
		}
		if _, err := s.lifecycle.CancelNow(ctx, email, nil); err != nil {
			return nil, err
		}
		return &ports.CancelResult{Status: domain.StatusCancelled}, nil
	}

	endsAt, err := s.gateway.CancelSubscription(ctx, client.GatewaySubscriptionID, atPeriodEnd)
	if err != nil {
		return nil, fmt.Errorf("cancel at gateway: %w", err)
	}

	if atPeriodEnd && client.Status == domain.StatusActive {
		if _, err := s.lifecycle.ScheduleCancellation(ctx, email, endsAt); err != nil {
			return nil, err
		}
		return &ports.CancelResult{
			Status:            domain.StatusActive,
			CancelAtPeriodEnd: true,
			EndsAt:            &endsAt,
		}, nil
	}

	var ends *time.Time
	if !endsAt.IsZero() {
		ends = &endsAt
	}
	if _, err := s.lifecycle.CancelNow(ctx, email, ends); err != nil {
		return nil, err
	}
	return &ports.CancelResult{Status: domain.StatusCancelled, EndsAt: ends}, nil
}

// PortalSession creates a gateway billing portal session for the client.
func (s *clientService) PortalSession(ctx context.Context, email string) (string, error) {
	client, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("portal session: %w", err)
	}
	if client.GatewayCustomerID == "" {
		return "", domain.ErrNoGatewayCustomer
	}
	url, err := s.gateway.CreatePortalSession(ctx, client.GatewayCustomerID, s.portalURL)
	if err != nil {
		return "", fmt.Errorf("portal session: %w", err)
	}
	return url, nil
}

func (s *clientService) Get(ctx context.Context, email string) (*domain.Client, error) {
	return s.store.FindByEmail(ctx, email)
}

func (s *clientService) List(ctx context.Context, filter ports.ListClientsFilter) ([]*domain.Client, error) {
	return s.store.List(ctx, filter)
}

func (s *clientService) Stats(ctx context.Context) (map[domain.Status]int64, error) {
	return s.store.CountByStatus(ctx)
}
