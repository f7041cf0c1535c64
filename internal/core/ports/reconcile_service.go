package ports

import (
	"context"
	"time"

	"github.com/simonpricept/client-billing/internal/core/domain"
)

// SyncResult reports a single reconciliation pass over one client.
type SyncResult struct {
	Previous domain.Status
	Current  domain.Status
	Changed  bool
}

// GatewayEventInput is a subscription lifecycle event pushed by the gateway.
// Delivery is at-least-once and possibly out of order; EventID deduplicates
// and the dispatcher serialises events per customer.
type GatewayEventInput struct {
	EventID            string
	Type               string
	CustomerID         string
	SubscriptionID     string
	SubscriptionStatus string
	CancelAtPeriodEnd  bool
	CurrentPeriodEnd   time.Time
	OccurredAt         time.Time
}

// ReconcileService pulls authoritative subscription state from the gateway
// and folds it into the local record. The gateway always wins on conflict;
// local edits to non-status fields are preserved.
type ReconcileService interface {
	// SyncStatus is idempotent: a second call with no intervening gateway
	// change reports Changed=false.
	SyncStatus(ctx context.Context, email string) (*SyncResult, error)
	ProcessEvent(ctx context.Context, event GatewayEventInput) error
}
