package ports

import (
	"context"

	"github.com/simonpricept/client-billing/internal/core/domain"
)

// ImportDraft is one fetch result in a bulk import batch: either a mapped
// client ready for review, or a per-id error. A bad id never aborts the batch.
type ImportDraft struct {
	CustomerID       string
	Client           *domain.Client
	HasPaymentMethod bool
	Error            string
}

// ImportBatch is the ephemeral review set produced for one admin submission.
// It is never persisted; the caller commits the drafts it accepts.
type ImportBatch struct {
	Drafts []ImportDraft
}

// ImportItemError records a single failed record during commit.
type ImportItemError struct {
	Email string
	Error string
}

// CommitResult summarises a batched upsert.
type CommitResult struct {
	Created int
	Updated int
	Errors  []ImportItemError
}

// ImportService maps existing gateway customers onto local client records.
// This is the only path that creates clients without the token flow; it
// still enforces the same invariants.
type ImportService interface {
	FetchForReview(ctx context.Context, customerIDs []string) (*ImportBatch, error)
	Commit(ctx context.Context, drafts []ImportDraft) (*CommitResult, error)
}
