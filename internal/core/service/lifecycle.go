package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/simonpricept/client-billing/internal/core/domain"
	"github.com/simonpricept/client-billing/internal/core/ports"
)

// Lifecycle is the single component allowed to write a client's status,
// CancelAtPeriodEnd, and SubscriptionEndsAt. Onboarding, reconciliation and
// admin actions all route their transitions through here; HTTP handlers
// never touch status directly.
//
// Every write is a conditional store update predicated on the current
// status, so concurrent writers race safely: the loser's predicate fails and
// the method reports applied=false.
type Lifecycle struct {
	store ports.ClientStore
	log   zerolog.Logger
}

func NewLifecycle(store ports.ClientStore, log zerolog.Logger) *Lifecycle {
	return &Lifecycle{store: store, log: log}
}

// Activate transitions a pending client to active, recording the gateway
// subscription. Returns false when the client was no longer pending, which
// is how the loser of a double-onboarding race finds out.
func (l *Lifecycle) Activate(ctx context.Context, email, subscriptionID string) (bool, error) {
	off := false
	applied, err := l.store.UpdateStatusIf(ctx, email,
		[]domain.Status{domain.StatusPending},
		domain.StatusUpdate{
			Status:            domain.StatusActive,
			SubscriptionID:    &subscriptionID,
			CancelAtPeriodEnd: &off,
		})
	if err != nil {
		return false, fmt.Errorf("activate %s: %w", email, err)
	}
	if applied {
		l.log.Info().Str("email", email).Str("subscription_id", subscriptionID).Msg("client activated")
	}
	return applied, nil
}

// RecordPendingSubscription stores the subscription id for an onboarding
// that ended incomplete (card requires authentication). The client stays
// pending; reconciliation activates it once the gateway reports active.
func (l *Lifecycle) RecordPendingSubscription(ctx context.Context, email, subscriptionID string) (bool, error) {
	applied, err := l.store.UpdateStatusIf(ctx, email,
		[]domain.Status{domain.StatusPending},
		domain.StatusUpdate{
			Status:         domain.StatusPending,
			SubscriptionID: &subscriptionID,
		})
	if err != nil {
		return false, fmt.Errorf("record pending subscription %s: %w", email, err)
	}
	return applied, nil
}

// Suspend moves an active client to suspended (admin action or gateway
// past_due/paused).
func (l *Lifecycle) Suspend(ctx context.Context, email string) (bool, error) {
	applied, err := l.store.UpdateStatusIf(ctx, email,
		[]domain.Status{domain.StatusActive},
		domain.StatusUpdate{Status: domain.StatusSuspended})
	if err != nil {
		return false, fmt.Errorf("suspend %s: %w", email, err)
	}
	if applied {
		l.log.Info().Str("email", email).Msg("client suspended")
	}
	return applied, nil
}

// Resume moves a suspended client back to active.
func (l *Lifecycle) Resume(ctx context.Context, email string) (bool, error) {
	applied, err := l.store.UpdateStatusIf(ctx, email,
		[]domain.Status{domain.StatusSuspended},
		domain.StatusUpdate{Status: domain.StatusActive})
	if err != nil {
		return false, fmt.Errorf("resume %s: %w", email, err)
	}
	if applied {
		l.log.Info().Str("email", email).Msg("client resumed")
	}
	return applied, nil
}

// CancelNow marks the client cancelled from any live state.
func (l *Lifecycle) CancelNow(ctx context.Context, email string, endsAt *time.Time) (bool, error) {
	applied, err := l.store.UpdateStatusIf(ctx, email,
		[]domain.Status{domain.StatusPending, domain.StatusActive, domain.StatusSuspended},
		domain.StatusUpdate{
			Status:             domain.StatusCancelled,
			SubscriptionEndsAt: endsAt,
		})
	if err != nil {
		return false, fmt.Errorf("cancel %s: %w", email, err)
	}
	if applied {
		l.log.Info().Str("email", email).Msg("client cancelled")
	}
	return applied, nil
}

// ScheduleCancellation records a deferred cancellation: the client stays
// active with CancelAtPeriodEnd set, and a later reconciliation after the
// period end flips the status to cancelled.
func (l *Lifecycle) ScheduleCancellation(ctx context.Context, email string, endsAt time.Time) (bool, error) {
	on := true
	applied, err := l.store.UpdateStatusIf(ctx, email,
		[]domain.Status{domain.StatusActive},
		domain.StatusUpdate{
			Status:             domain.StatusActive,
			CancelAtPeriodEnd:  &on,
			SubscriptionEndsAt: &endsAt,
		})
	if err != nil {
		return false, fmt.Errorf("schedule cancellation %s: %w", email, err)
	}
	if applied {
		l.log.Info().Str("email", email).Time("ends_at", endsAt).Msg("cancellation scheduled")
	}
	return applied, nil
}

// ApplyGatewayStatus folds a gateway-observed status into the local record
// during reconciliation. The gateway is the source of truth: a transition
// the local table does not allow is logged as a conflict and applied anyway.
// The one exception is cancelled, which is terminal — a cancelled client is
// only revived by a brand-new onboarding, never by reconciliation.
func (l *Lifecycle) ApplyGatewayStatus(ctx context.Context, client *domain.Client, next domain.Status, update domain.StatusUpdate) (bool, error) {
	current := client.Status

	if current == domain.StatusCancelled && next != domain.StatusCancelled {
		l.log.Warn().
			Str("email", client.Email).
			Str("gateway_status", string(next)).
			Msg("reconciliation ignored: cancelled is terminal")
		return false, nil
	}

	if next == current {
		// Companion fields (cancel_at_period_end, ends_at) may still have
		// drifted; sync them without reporting a status change.
		if update.CancelAtPeriodEnd != nil || update.SubscriptionEndsAt != nil || update.SubscriptionID != nil {
			update.Status = current
			if _, err := l.store.UpdateStatusIf(ctx, client.Email, []domain.Status{current}, update); err != nil {
				return false, fmt.Errorf("sync flags %s: %w", client.Email, err)
			}
		}
		return false, nil
	}

	if !current.CanTransitionTo(next) {
		// Not covered by the transition table: reconciliation conflict.
		// Defaults to the gateway value.
		l.log.Warn().
			Str("email", client.Email).
			Str("local_status", string(current)).
			Str("gateway_status", string(next)).
			Msg("reconciliation conflict, gateway wins")
	}

	update.Status = next
	applied, err := l.store.UpdateStatusIf(ctx, client.Email, []domain.Status{current}, update)
	if err != nil {
		return false, fmt.Errorf("apply gateway status %s: %w", client.Email, err)
	}
	if applied {
		l.log.Info().
			Str("email", client.Email).
			Str("from", string(current)).
			Str("to", string(next)).
			Msg("status reconciled from gateway")
	}
	return applied, nil
}
