package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/simonpricept/client-billing/internal/core/domain"
	"github.com/simonpricept/client-billing/internal/core/ports"
)

type stubOnboardingService struct {
	validateFn func(ctx context.Context, token string) (*ports.TokenPreview, error)
	intentFn   func(ctx context.Context) (string, error)
	completeFn func(ctx context.Context, input ports.CompleteOnboardingInput) (*ports.OnboardingResult, error)
}

func (s *stubOnboardingService) ValidateToken(ctx context.Context, token string) (*ports.TokenPreview, error) {
	return s.validateFn(ctx, token)
}

func (s *stubOnboardingService) CreateSetupIntent(ctx context.Context) (string, error) {
	return s.intentFn(ctx)
}

func (s *stubOnboardingService) CompleteOnboarding(ctx context.Context, input ports.CompleteOnboardingInput) (*ports.OnboardingResult, error) {
	return s.completeFn(ctx, input)
}

func newEcho() *echo.Echo {
	e := echo.New()
	e.Validator = NewValidator()
	return e
}

func TestOnboardingHandler_ValidateToken_Success(t *testing.T) {
	e := newEcho()
	stub := &stubOnboardingService{
		validateFn: func(ctx context.Context, token string) (*ports.TokenPreview, error) {
			if token != "tok_abc" {
				t.Fatalf("unexpected token: %s", token)
			}
			return &ports.TokenPreview{
				Email:      "jamie@example.com",
				Name:       "Jamie Doe",
				Price:      decimal.New(12500, -2),
				BillingDay: 1,
				Prorate:    true,
			}, nil
		},
	}
	h := NewOnboardingHandler(stub)

	req := httptest.NewRequest(http.MethodPost, "/v1/onboarding/validate", strings.NewReader(`{"token":"tok_abc"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ValidateToken(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp["email"] != "jamie@example.com" {
		t.Errorf("email = %v", resp["email"])
	}
	if resp["price"] != "125.00" {
		t.Errorf("price = %v, want fixed two-decimal string", resp["price"])
	}
}

func TestOnboardingHandler_ValidateToken_MissingToken(t *testing.T) {
	e := newEcho()
	h := NewOnboardingHandler(&stubOnboardingService{})

	req := httptest.NewRequest(http.MethodPost, "/v1/onboarding/validate", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.ValidateToken(c)
	if err == nil {
		t.Fatal("expected a validation error")
	}
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %v", err)
	}
}

func TestOnboardingHandler_Complete_Success(t *testing.T) {
	e := newEcho()
	next := time.Date(2026, time.October, 1, 0, 0, 0, 0, time.UTC)
	stub := &stubOnboardingService{
		completeFn: func(ctx context.Context, input ports.CompleteOnboardingInput) (*ports.OnboardingResult, error) {
			if input.PaymentMethodID != "pm_123" {
				t.Fatalf("unexpected payment method: %s", input.PaymentMethodID)
			}
			if input.Details.Address.City != "Leeds" {
				t.Fatalf("address not mapped: %+v", input.Details.Address)
			}
			return &ports.OnboardingResult{
				Status:          domain.StatusActive,
				SubscriptionID:  "sub_1",
				FirstCharge:     decimal.New(417, -2),
				MonthlyPrice:    decimal.New(12500, -2),
				NextBillingDate: next,
			}, nil
		},
	}
	h := NewOnboardingHandler(stub)

	body := `{
		"token":"tok_abc",
		"payment_method_id":"pm_123",
		"details":{
			"first_name":"Jamie","last_name":"Doe",
			"address":{"line1":"1 High St","city":"Leeds","postcode":"LS1 1AA","country":"GB"}
		}
	}`
	req := httptest.NewRequest(http.MethodPost, "/v1/onboarding/complete", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Complete(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp["status"] != "active" || resp["first_charge"] != "4.17" {
		t.Errorf("unexpected payload: %+v", resp)
	}
	if resp["requires_action"] != false {
		t.Errorf("requires_action = %v", resp["requires_action"])
	}
}

func TestOnboardingHandler_Complete_ServiceErrorPropagates(t *testing.T) {
	e := newEcho()
	stub := &stubOnboardingService{
		completeFn: func(ctx context.Context, input ports.CompleteOnboardingInput) (*ports.OnboardingResult, error) {
			return nil, domain.ErrDuplicateOnboarding
		},
	}
	h := NewOnboardingHandler(stub)

	body := `{
		"token":"tok_abc",
		"payment_method_id":"pm_123",
		"details":{
			"first_name":"Jamie","last_name":"Doe",
			"address":{"line1":"1 High St","city":"Leeds","postcode":"LS1 1AA","country":"GB"}
		}
	}`
	req := httptest.NewRequest(http.MethodPost, "/v1/onboarding/complete", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	// Domain errors are left to the central error handler.
	if err := h.Complete(c); err != domain.ErrDuplicateOnboarding {
		t.Fatalf("expected ErrDuplicateOnboarding to propagate, got %v", err)
	}
}

func TestOnboardingHandler_SetupIntent(t *testing.T) {
	e := newEcho()
	stub := &stubOnboardingService{
		intentFn: func(ctx context.Context) (string, error) {
			return "seti_secret", nil
		},
	}
	h := NewOnboardingHandler(stub)

	req := httptest.NewRequest(http.MethodPost, "/v1/onboarding/setup-intent", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.CreateSetupIntent(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "seti_secret") {
		t.Errorf("client secret missing: %s", rec.Body.String())
	}
}
