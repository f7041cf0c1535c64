package domain

import (
	"errors"
	"fmt"
)

var (
	ErrClientNotFound      = errors.New("client not found")
	ErrClientExists        = errors.New("client already exists")
	ErrClientActive        = errors.New("client already has an active subscription")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrDuplicateOnboarding = errors.New("onboarding already completed for this client")

	// Token errors are logged with their real cause but rendered to callers
	// as a single generic message so a forger cannot tell a bad signature
	// from an expired token.
	ErrTokenExpired         = errors.New("invitation token expired")
	ErrTokenInvalid         = errors.New("invitation token invalid")
	ErrTokenAlreadyConsumed = errors.New("invitation token already consumed")

	// ErrGatewayUnavailable marks timeouts and 5xx responses from the payment
	// gateway. Callers may retry with backoff; the services never loop internally.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// ErrNoGatewayCustomer rejects operations that need a gateway customer
	// (cancellation, portal sessions) for a client that never reached the
	// gateway.
	ErrNoGatewayCustomer = errors.New("client has no gateway customer")

	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// GatewayRejectedError is a terminal 4xx rejection from the gateway, e.g. a
// declined card. It is user-facing and must not be retried.
type GatewayRejectedError struct {
	Code    string
	Message string
}

func (e *GatewayRejectedError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("payment gateway rejected request: %s", e.Message)
	}
	return fmt.Sprintf("payment gateway rejected request (%s): %s", e.Code, e.Message)
}
