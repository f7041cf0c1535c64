package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/simonpricept/client-billing/internal/core/domain"
	"github.com/simonpricept/client-billing/internal/core/ports"
)

// OnboardingHandler serves the public onboarding flow. These routes are
// unauthenticated: the signed invitation token is the credential.
type OnboardingHandler struct {
	service ports.OnboardingService
}

func NewOnboardingHandler(service ports.OnboardingService) *OnboardingHandler {
	return &OnboardingHandler{service: service}
}

// ValidateToken handles POST /v1/onboarding/validate — verifies the
// invitation and returns the prefill data for the form.
//
// @Summary      Validate an invitation token
// @Tags         onboarding
// @Accept       json
// @Produce      json
// @Param        body  body      validateTokenRequest  true  "Invitation token"
// @Success      200   {object}  tokenPreviewResponse
// @Failure      400   {object}  errorResponse
// @Failure      410   {object}  errorResponse
// @Router       /v1/onboarding/validate [post]
func (h *OnboardingHandler) ValidateToken(c echo.Context) error {
	var req validateTokenRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	preview, err := h.service.ValidateToken(c.Request().Context(), req.Token)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, tokenPreviewResponse{
		Email:      preview.Email,
		Name:       preview.Name,
		Telephone:  preview.Telephone,
		Price:      preview.Price.StringFixed(2),
		BillingDay: preview.BillingDay,
		Prorate:    preview.Prorate,
	})
}

// CreateSetupIntent handles POST /v1/onboarding/setup-intent — returns the
// client secret the browser needs to collect a payment instrument.
//
// @Summary      Create a payment setup intent
// @Tags         onboarding
// @Produce      json
// @Success      200  {object}  setupIntentResponse
// @Failure      502  {object}  errorResponse
// @Router       /v1/onboarding/setup-intent [post]
func (h *OnboardingHandler) CreateSetupIntent(c echo.Context) error {
	secret, err := h.service.CreateSetupIntent(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, setupIntentResponse{ClientSecret: secret})
}

// Complete handles POST /v1/onboarding/complete — finishes the onboarding:
// payment method, subscription, activation, confirmation email.
//
// @Summary      Complete an onboarding
// @Tags         onboarding
// @Accept       json
// @Produce      json
// @Param        body  body      completeOnboardingRequest  true  "Completion payload"
// @Success      201   {object}  completeOnboardingResponse
// @Failure      400   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Router       /v1/onboarding/complete [post]
func (h *OnboardingHandler) Complete(c echo.Context) error {
	var req completeOnboardingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	result, err := h.service.CompleteOnboarding(c.Request().Context(), toCompleteInput(req))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, completeOnboardingResponse{
		Status:          string(result.Status),
		SubscriptionID:  result.SubscriptionID,
		FirstCharge:     result.FirstCharge.StringFixed(2),
		MonthlyPrice:    result.MonthlyPrice.StringFixed(2),
		NextBillingDate: result.NextBillingDate,
		RequiresAction:  result.RequiresAction,
	})
}

// toCompleteInput maps the HTTP request to the service DTO.
func toCompleteInput(r completeOnboardingRequest) ports.CompleteOnboardingInput {
	in := ports.CompleteOnboardingInput{
		Token:           r.Token,
		PaymentMethodID: r.PaymentMethodID,
		Details: ports.PersonalDetails{
			FirstName:   r.Details.FirstName,
			LastName:    r.Details.LastName,
			Telephone:   r.Details.Telephone,
			DateOfBirth: r.Details.DateOfBirth,
			Address: domain.Address{
				Line1:    r.Details.Address.Line1,
				Line2:    r.Details.Address.Line2,
				City:     r.Details.Address.City,
				Postcode: r.Details.Address.Postcode,
				Country:  r.Details.Address.Country,
			},
		},
	}
	if ec := r.Details.EmergencyContact; ec != nil {
		in.Details.EmergencyContact = domain.EmergencyContact{
			Name:         ec.Name,
			Phone:        ec.Phone,
			Relationship: ec.Relationship,
		}
	}
	return in
}
