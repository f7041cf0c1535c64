package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/simonpricept/client-billing/internal/api/metrics"
	"github.com/simonpricept/client-billing/internal/core/domain"
	"github.com/simonpricept/client-billing/internal/core/ports"
)

// DedupChecker abstracts the webhook idempotency store (Redis). Gateway
// delivery is at-least-once, so the same event id can arrive more than once.
type DedupChecker interface {
	IsDuplicate(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

// mapGatewayStatus is the single place gateway status vocabulary is
// translated into the local enum. Anything not listed is unknown and is
// passed through unchanged by the caller, with a warning, so a new gateway
// status cannot silently corrupt local state.
func mapGatewayStatus(s string) (domain.Status, bool) {
	switch s {
	case "active", "trialing":
		return domain.StatusActive, true
	case "past_due", "unpaid", "paused":
		return domain.StatusSuspended, true
	case "canceled", "cancelled":
		return domain.StatusCancelled, true
	case "incomplete":
		return domain.StatusPending, true
	default:
		return "", false
	}
}

type reconcileService struct {
	store     ports.ClientStore
	gateway   ports.PaymentGateway
	dedup     DedupChecker
	lifecycle *Lifecycle
	log       zerolog.Logger
}

// NewReconcileService returns the engine that folds authoritative gateway
// state into local client records.
func NewReconcileService(
	store ports.ClientStore,
	gateway ports.PaymentGateway,
	dedup DedupChecker,
	lifecycle *Lifecycle,
	log zerolog.Logger,
) ports.ReconcileService {
	return &reconcileService{
		store:     store,
		gateway:   gateway,
		dedup:     dedup,
		lifecycle: lifecycle,
		log:       log,
	}
}

// SyncStatus fetches the client's subscription from the gateway and applies
// the mapped status through the lifecycle service. Idempotent: with no
// intervening gateway change the second call reports Changed=false.
func (s *reconcileService) SyncStatus(ctx context.Context, email string) (*ports.SyncResult, error) {
	client, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	unchanged := &ports.SyncResult{Previous: client.Status, Current: client.Status, Changed: false}

	if client.GatewayCustomerID == "" {
		// Nothing to reconcile against yet.
		s.log.Debug().Str("email", email).Msg("sync skipped, no gateway customer")
		return unchanged, nil
	}

	sub, err := s.lookupSubscription(ctx, client)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		// No subscription yet. An onboarding may be in flight; writing
		// pending here could regress it, so this is deliberately a no-op.
		metrics.ReconciliationsTotal.WithLabelValues("no_subscription").Inc()
		return unchanged, nil
	}

	mapped, known := mapGatewayStatus(sub.Status)
	if !known {
		s.log.Warn().
			Str("email", email).
			Str("gateway_status", sub.Status).
			Msg("unknown gateway status, local state left unchanged")
		metrics.ReconciliationsTotal.WithLabelValues("unknown_status").Inc()
		return unchanged, nil
	}

	if mapped == domain.StatusPending && client.Status != domain.StatusPending {
		// "incomplete" describes a subscription still being set up. Seeing
		// it for a live client means the read raced an activation; demoting
		// the record over a stale snapshot would be worse than waiting for
		// the next sync.
		s.log.Debug().
			Str("email", email).
			Str("gateway_status", sub.Status).
			Msg("incomplete subscription ignored for non-pending client")
		metrics.ReconciliationsTotal.WithLabelValues("unchanged").Inc()
		return unchanged, nil
	}

	changed, err := s.lifecycle.ApplyGatewayStatus(ctx, client, mapped, statusUpdateFrom(sub))
	if err != nil {
		return nil, err
	}

	current := client.Status
	if changed {
		current = mapped
		metrics.ReconciliationsTotal.WithLabelValues("changed").Inc()
	} else {
		metrics.ReconciliationsTotal.WithLabelValues("unchanged").Inc()
	}
	return &ports.SyncResult{Previous: client.Status, Current: current, Changed: changed}, nil
}

// ProcessEvent folds a single pushed gateway event into local state.
// Duplicates are skipped via the dedup store; events for customers we do not
// know yet (e.g. mid-onboarding) are logged and dropped, and a later sync
// picks the state up.
func (s *reconcileService) ProcessEvent(ctx context.Context, ev ports.GatewayEventInput) error {
	isDup, err := s.dedup.IsDuplicate(ctx, ev.EventID)
	if err != nil {
		s.log.Warn().Err(err).Str("event_id", ev.EventID).Msg("dedup check failed, processing anyway")
	} else if isDup {
		s.log.Debug().Str("event_id", ev.EventID).Msg("duplicate gateway event skipped")
		metrics.WebhookEventsTotal.WithLabelValues(ev.Type, "duplicate").Inc()
		return nil
	}

	client, err := s.store.FindByCustomerID(ctx, ev.CustomerID)
	if err != nil {
		if errors.Is(err, domain.ErrClientNotFound) {
			s.log.Info().
				Str("event_id", ev.EventID).
				Str("customer_id", ev.CustomerID).
				Msg("gateway event for unknown customer dropped")
			metrics.WebhookEventsTotal.WithLabelValues(ev.Type, "unknown_customer").Inc()
			return nil
		}
		return fmt.Errorf("process event: %w", err)
	}

	// Mark before writing so a crash-and-redeliver does not double-apply.
	if markErr := s.dedup.Mark(ctx, ev.EventID); markErr != nil {
		s.log.Warn().Err(markErr).Str("event_id", ev.EventID).Msg("failed to set dedup key")
	}

	status := ev.SubscriptionStatus
	if ev.Type == "customer.subscription.deleted" {
		status = "canceled"
	}

	mapped, known := mapGatewayStatus(status)
	if !known {
		s.log.Warn().
			Str("event_id", ev.EventID).
			Str("gateway_status", status).
			Msg("unknown gateway status in event, ignored")
		metrics.WebhookEventsTotal.WithLabelValues(ev.Type, "unknown_status").Inc()
		return nil
	}

	if mapped == domain.StatusPending && client.Status != domain.StatusPending {
		// Stale or out-of-order "incomplete" for a live client; never a
		// demotion.
		s.log.Debug().
			Str("event_id", ev.EventID).
			Str("email", client.Email).
			Msg("incomplete status event ignored for non-pending client")
		metrics.WebhookEventsTotal.WithLabelValues(ev.Type, "stale").Inc()
		return nil
	}

	update := domain.StatusUpdate{CancelAtPeriodEnd: &ev.CancelAtPeriodEnd}
	if ev.SubscriptionID != "" && ev.SubscriptionID != client.GatewaySubscriptionID {
		subID := ev.SubscriptionID
		update.SubscriptionID = &subID
	}
	if !ev.CurrentPeriodEnd.IsZero() && (ev.CancelAtPeriodEnd || mapped == domain.StatusCancelled) {
		end := ev.CurrentPeriodEnd
		update.SubscriptionEndsAt = &end
	}

	if _, err := s.lifecycle.ApplyGatewayStatus(ctx, client, mapped, update); err != nil {
		metrics.WebhookEventsTotal.WithLabelValues(ev.Type, "error").Inc()
		return fmt.Errorf("process event: %w", err)
	}

	metrics.WebhookEventsTotal.WithLabelValues(ev.Type, "processed").Inc()
	s.log.Info().
		Str("event_id", ev.EventID).
		Str("email", client.Email).
		Str("status", string(mapped)).
		Msg("gateway event processed")
	return nil
}

// lookupSubscription prefers the recorded subscription id and falls back to
// searching the customer's live subscriptions.
func (s *reconcileService) lookupSubscription(ctx context.Context, client *domain.Client) (*ports.GatewaySubscription, error) {
	if client.GatewaySubscriptionID != "" {
		sub, err := s.gateway.GetSubscription(ctx, client.GatewaySubscriptionID)
		if err != nil {
			var rejected *domain.GatewayRejectedError
			if errors.As(err, &rejected) {
				// The recorded id no longer resolves; fall back to search.
				s.log.Warn().
					Str("email", client.Email).
					Str("subscription_id", client.GatewaySubscriptionID).
					Msg("recorded subscription not found at gateway")
				return s.gateway.FindActiveSubscription(ctx, client.GatewayCustomerID)
			}
			return nil, err
		}
		return sub, nil
	}
	return s.gateway.FindActiveSubscription(ctx, client.GatewayCustomerID)
}

// statusUpdateFrom derives the companion-field update for a reconciled
// subscription.
func statusUpdateFrom(sub *ports.GatewaySubscription) domain.StatusUpdate {
	capE := sub.CancelAtPeriodEnd
	update := domain.StatusUpdate{CancelAtPeriodEnd: &capE}
	subID := sub.ID
	update.SubscriptionID = &subID
	if !sub.CurrentPeriodEnd.IsZero() && sub.CancelAtPeriodEnd {
		end := sub.CurrentPeriodEnd
		update.SubscriptionEndsAt = &end
	}
	return update
}
