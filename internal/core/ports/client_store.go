package ports

import (
	"context"

	"github.com/simonpricept/client-billing/internal/core/domain"
)

// ListClientsFilter carries the query parameters for listing clients.
type ListClientsFilter struct {
	Status string // optional: filter by lifecycle status
	Search string // optional: partial match on email or name
}

// ClientStore defines persistence operations for clients. Status and its
// companion fields are only ever written through UpdateStatusIf so that the
// lifecycle service remains the single write surface for them.
type ClientStore interface {
	FindByEmail(ctx context.Context, email string) (*domain.Client, error)
	FindByCustomerID(ctx context.Context, customerID string) (*domain.Client, error)
	// Insert creates a new client record; domain.ErrClientExists on a
	// duplicate email.
	Insert(ctx context.Context, c *domain.Client) error
	// Update persists non-status fields of an existing client.
	Update(ctx context.Context, c *domain.Client) error
	// SetCustomerID records the gateway customer id as soon as it is known,
	// so a failed onboarding never orphans a gateway customer.
	SetCustomerID(ctx context.Context, email, customerID string) error
	// UpdateStatusIf applies update only when the client's current status is
	// one of expected; an empty expected slice applies unconditionally.
	// Returns false without error when the predicate did not match, which is
	// how a concurrent loser fails cleanly.
	UpdateStatusIf(ctx context.Context, email string, expected []domain.Status, update domain.StatusUpdate) (bool, error)
	List(ctx context.Context, filter ListClientsFilter) ([]*domain.Client, error)
	CountByStatus(ctx context.Context) (map[domain.Status]int64, error)
}
