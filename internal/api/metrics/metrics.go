// Package metrics defines and registers all custom Prometheus metrics for the
// client billing API. It is the single source of truth for metric names,
// labels, and help strings.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "billing"

// ── Onboarding metrics ────────────────────────────────────────────────────────

// OnboardingsTotal counts completed onboarding attempts.
// Label:
//   - outcome: "completed", "duplicate", or "gateway_error"
var OnboardingsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "onboardings_total",
		Help:      "Total number of onboarding completions, by outcome.",
	},
	[]string{"outcome"},
)

// TokenValidationsTotal counts invitation token validations.
// Label:
//   - result: "ok", "rejected", or "consumed"
var TokenValidationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_validations_total",
		Help:      "Total number of invitation token validations, by result.",
	},
	[]string{"result"},
)

// InvitationsSentTotal counts invitation emails sent.
// Label:
//   - kind: "invite" or "resend"
var InvitationsSentTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "invitations_sent_total",
		Help:      "Total number of invitation emails sent.",
	},
	[]string{"kind"},
)

// ── Reconciliation metrics ────────────────────────────────────────────────────

// ReconciliationsTotal counts on-demand status syncs against the gateway.
// Label:
//   - result: "changed", "unchanged", "no_subscription", or "unknown_status"
var ReconciliationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconciliations_total",
		Help:      "Total number of gateway status syncs, by result.",
	},
	[]string{"result"},
)

// WebhookEventsTotal counts pushed gateway events by type and disposition.
// Labels:
//   - type: the gateway event type (e.g. "customer.subscription.updated")
//   - result: "processed", "duplicate", "unknown_customer", "unknown_status",
//     "stale", or "error"
var WebhookEventsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_events_total",
		Help:      "Total number of gateway webhook events received, by type and result.",
	},
	[]string{"type", "result"},
)

// WebhookQueueDepth tracks the current number of events waiting in each
// dispatcher worker channel.
// Label:
//   - worker_id: numeric worker index (e.g. "0", "1", …)
var WebhookQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "webhook_queue_depth",
		Help:      "Current number of events pending in each dispatcher worker channel.",
	},
	[]string{"worker_id"},
)

// ── Import metrics ────────────────────────────────────────────────────────────

// ImportItemsTotal counts bulk import items by disposition.
// Label:
//   - result: "created", "updated", or "error"
var ImportItemsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "import_items_total",
		Help:      "Total number of bulk import items committed, by result.",
	},
	[]string{"result"},
)
