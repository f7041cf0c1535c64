package ports

import (
	"context"

	"github.com/simonpricept/client-billing/internal/core/domain"
)

// UserRepository defines the interface for staff user persistence.
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
}
