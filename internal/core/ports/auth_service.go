package ports

import (
	"context"

	"github.com/simonpricept/client-billing/internal/core/domain"
)

type AuthService interface {
	Register(ctx context.Context, email, password, name, role string) (*domain.User, error)
	Login(ctx context.Context, email, password string) (string, *domain.User, error)
}
