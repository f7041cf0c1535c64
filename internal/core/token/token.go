// Package token issues and validates the signed, expiring invitation tokens
// that carry a prospective client's prefilled onboarding terms.
//
// Tokens are stateless: nothing is stored server-side beyond the signing
// secret, so a lost token is simply re-issued. One-time consumption is
// enforced on the Client record by the onboarding orchestrator, not here.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/simonpricept/client-billing/internal/core/domain"
)

const (
	// DefaultTTL is the invitation validity applied when the caller does not
	// override it.
	DefaultTTL = 7 * 24 * time.Hour
	// MaxTTL caps admin-supplied overrides.
	MaxTTL = 30 * 24 * time.Hour
)

// invitationClaims is the wire shape of an invitation token.
type invitationClaims struct {
	Name       string `json:"name"`
	Telephone  string `json:"telephone,omitempty"`
	Price      string `json:"price"`
	BillingDay int    `json:"billing_day"`
	Prorate    bool   `json:"prorate"`
	Purpose    string `json:"purpose"`
	jwt.RegisteredClaims
}

// Service signs and verifies invitation and password-setup tokens.
type Service struct {
	secret []byte
	log    zerolog.Logger
	now    func() time.Time
}

func NewService(secret string, log zerolog.Logger) *Service {
	return &Service{secret: []byte(secret), log: log, now: time.Now}
}

// Issue signs payload with an expiry of ttl from now. A non-positive ttl
// falls back to DefaultTTL; anything above MaxTTL is clamped.
func (s *Service) Issue(payload domain.InvitationPayload, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if ttl > MaxTTL {
		ttl = MaxTTL
	}

	now := s.now().UTC()
	expiresAt := now.Add(ttl)

	claims := invitationClaims{
		Name:       payload.Name,
		Telephone:  payload.Telephone,
		Price:      payload.Price.StringFixed(2),
		BillingDay: payload.BillingDay,
		Prorate:    payload.Prorate,
		Purpose:    domain.PurposeOnboarding,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   payload.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Validate verifies the signature first, then the expiry, and returns the
// embedded payload. The returned errors distinguish expiry from tampering so
// callers can log the difference, but the HTTP layer renders both as the same
// generic message to avoid giving forgers an oracle.
func (s *Service) Validate(raw string) (domain.InvitationPayload, error) {
	claims := &invitationClaims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now() }))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			s.log.Info().Str("reason", "expired").Msg("invitation token rejected")
			return domain.InvitationPayload{}, domain.ErrTokenExpired
		}
		s.log.Warn().Err(err).Str("reason", "invalid").Msg("invitation token rejected")
		return domain.InvitationPayload{}, domain.ErrTokenInvalid
	}
	if !parsed.Valid || claims.Purpose != domain.PurposeOnboarding {
		s.log.Warn().Str("reason", "wrong_purpose").Msg("invitation token rejected")
		return domain.InvitationPayload{}, domain.ErrTokenInvalid
	}

	price, err := decimal.NewFromString(claims.Price)
	if err != nil {
		s.log.Warn().Err(err).Str("reason", "bad_price").Msg("invitation token rejected")
		return domain.InvitationPayload{}, domain.ErrTokenInvalid
	}

	return domain.InvitationPayload{
		Email:      claims.Subject,
		Name:       claims.Name,
		Telephone:  claims.Telephone,
		Price:      price,
		BillingDay: claims.BillingDay,
		Prorate:    claims.Prorate,
	}, nil
}

// IssuePasswordSetup signs a short-lived token used in password-setup email
// links for imported clients.
func (s *Service) IssuePasswordSetup(email string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := s.now().UTC()
	claims := jwt.MapClaims{
		"sub":     email,
		"purpose": domain.PurposePasswordSetup,
		"iat":     now.Unix(),
		"exp":     now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}
