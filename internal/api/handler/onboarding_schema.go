package handler

import "time"

// errorResponse is the standard error envelope returned on all 4xx/5xx responses.
type errorResponse struct {
	Error string `json:"error"`
}

type acceptedResponse struct {
	Message string `json:"message"`
}

// --- Request / Response types ---

type validateTokenRequest struct {
	Token string `json:"token" validate:"required"`
}

type tokenPreviewResponse struct {
	Email      string `json:"email"`
	Name       string `json:"name"`
	Telephone  string `json:"telephone,omitempty"`
	Price      string `json:"price"`
	BillingDay int    `json:"billing_day"`
	Prorate    bool   `json:"prorate"`
}

type setupIntentResponse struct {
	ClientSecret string `json:"client_secret"`
}

type addressPayload struct {
	Line1    string `json:"line1"    validate:"required"`
	Line2    string `json:"line2"`
	City     string `json:"city"     validate:"required"`
	Postcode string `json:"postcode" validate:"required"`
	Country  string `json:"country"  validate:"required,len=2"`
}

type emergencyContactPayload struct {
	Name         string `json:"name"  validate:"required"`
	Phone        string `json:"phone" validate:"required"`
	Relationship string `json:"relationship"`
}

type personalDetailsRequest struct {
	FirstName        string                   `json:"first_name" validate:"required"`
	LastName         string                   `json:"last_name"  validate:"required"`
	Telephone        string                   `json:"telephone"`
	DateOfBirth      string                   `json:"date_of_birth"`
	Address          addressPayload           `json:"address"           validate:"required"`
	EmergencyContact *emergencyContactPayload `json:"emergency_contact"`
}

type completeOnboardingRequest struct {
	Token           string                 `json:"token"             validate:"required"`
	PaymentMethodID string                 `json:"payment_method_id" validate:"required"`
	Details         personalDetailsRequest `json:"details"           validate:"required"`
}

type completeOnboardingResponse struct {
	Status          string    `json:"status"`
	SubscriptionID  string    `json:"subscription_id"`
	FirstCharge     string    `json:"first_charge"`
	MonthlyPrice    string    `json:"monthly_price"`
	NextBillingDate time.Time `json:"next_billing_date"`
	RequiresAction  bool      `json:"requires_action"`
}
