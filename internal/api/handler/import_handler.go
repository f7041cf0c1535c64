package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/simonpricept/client-billing/internal/core/domain"
	"github.com/simonpricept/client-billing/internal/core/ports"
)

// ImportHandler serves the two-phase bulk import: fetch drafts for review,
// then commit the accepted ones.
type ImportHandler struct {
	service ports.ImportService
}

func NewImportHandler(service ports.ImportService) *ImportHandler {
	return &ImportHandler{service: service}
}

type reviewImportRequest struct {
	CustomerIDs []string `json:"customer_ids" validate:"required,min=1,max=200,dive,required"`
}

type importDraftPayload struct {
	CustomerID       string     `json:"customer_id"`
	Email            string     `json:"email,omitempty"`
	Name             string     `json:"name,omitempty"`
	Telephone        string     `json:"telephone,omitempty"`
	Price            string     `json:"price,omitempty"`
	BillingDay       int        `json:"billing_day,omitempty"`
	Status           string     `json:"status,omitempty"`
	SubscriptionID   string     `json:"subscription_id,omitempty"`
	CancelAtPeriodEnd bool      `json:"cancel_at_period_end,omitempty"`
	EndsAt           *time.Time `json:"ends_at,omitempty"`
	HasPaymentMethod bool       `json:"has_payment_method"`
	Error            string     `json:"error,omitempty"`
}

type reviewImportResponse struct {
	Drafts []importDraftPayload `json:"drafts"`
}

type commitImportRequest struct {
	Drafts []importDraftPayload `json:"drafts" validate:"required,min=1"`
}

type importErrorPayload struct {
	Email string `json:"email"`
	Error string `json:"error"`
}

type commitImportResponse struct {
	Created int                  `json:"created"`
	Updated int                  `json:"updated"`
	Errors  []importErrorPayload `json:"errors,omitempty"`
}

// Review handles POST /v1/admin/imports/review — resolves gateway customer
// ids into draft client records. Bad ids come back flagged, not as failures.
//
// @Summary      Fetch gateway customers for import review
// @Tags         imports
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      reviewImportRequest  true  "Gateway customer ids"
// @Success      200   {object}  reviewImportResponse
// @Failure      422   {object}  errorResponse
// @Router       /v1/admin/imports/review [post]
func (h *ImportHandler) Review(c echo.Context) error {
	var req reviewImportRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	batch, err := h.service.FetchForReview(c.Request().Context(), req.CustomerIDs)
	if err != nil {
		return err
	}

	out := make([]importDraftPayload, 0, len(batch.Drafts))
	for _, d := range batch.Drafts {
		out = append(out, toDraftPayload(d))
	}
	return c.JSON(http.StatusOK, reviewImportResponse{Drafts: out})
}

// Commit handles POST /v1/admin/imports/commit — persists the accepted
// drafts and reports per-record outcomes.
//
// @Summary      Commit reviewed import drafts
// @Tags         imports
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      commitImportRequest  true  "Accepted drafts"
// @Success      200   {object}  commitImportResponse
// @Failure      422   {object}  errorResponse
// @Router       /v1/admin/imports/commit [post]
func (h *ImportHandler) Commit(c echo.Context) error {
	var req commitImportRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	drafts := make([]ports.ImportDraft, 0, len(req.Drafts))
	for _, p := range req.Drafts {
		draft, err := fromDraftPayload(p)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
		}
		drafts = append(drafts, draft)
	}

	result, err := h.service.Commit(c.Request().Context(), drafts)
	if err != nil {
		return err
	}

	resp := commitImportResponse{Created: result.Created, Updated: result.Updated}
	for _, e := range result.Errors {
		resp.Errors = append(resp.Errors, importErrorPayload{Email: e.Email, Error: e.Error})
	}
	return c.JSON(http.StatusOK, resp)
}

func toDraftPayload(d ports.ImportDraft) importDraftPayload {
	p := importDraftPayload{
		CustomerID:       d.CustomerID,
		HasPaymentMethod: d.HasPaymentMethod,
		Error:            d.Error,
	}
	if d.Client != nil {
		p.Email = d.Client.Email
		p.Name = d.Client.Name
		p.Telephone = d.Client.Telephone
		p.Price = d.Client.Price.StringFixed(2)
		p.BillingDay = d.Client.BillingDay
		p.Status = string(d.Client.Status)
		p.SubscriptionID = d.Client.GatewaySubscriptionID
		p.CancelAtPeriodEnd = d.Client.CancelAtPeriodEnd
		p.EndsAt = d.Client.SubscriptionEndsAt
	}
	return p
}

func fromDraftPayload(p importDraftPayload) (ports.ImportDraft, error) {
	draft := ports.ImportDraft{
		CustomerID:       p.CustomerID,
		HasPaymentMethod: p.HasPaymentMethod,
		Error:            p.Error,
	}
	if p.Error != "" {
		return draft, nil
	}

	price := decimal.Zero
	if p.Price != "" {
		var err error
		price, err = decimal.NewFromString(p.Price)
		if err != nil {
			return draft, echo.NewHTTPError(http.StatusUnprocessableEntity, "invalid price for "+p.Email)
		}
	}

	status := domain.Status(p.Status)
	if p.Status == "" {
		status = domain.StatusPending
	}
	if !status.IsKnown() {
		return draft, echo.NewHTTPError(http.StatusUnprocessableEntity, "unknown status for "+p.Email)
	}

	draft.Client = &domain.Client{
		Email:                 p.Email,
		Name:                  p.Name,
		Telephone:             p.Telephone,
		Price:                 price,
		BillingDay:            p.BillingDay,
		Status:                status,
		GatewayCustomerID:     p.CustomerID,
		GatewaySubscriptionID: p.SubscriptionID,
		CancelAtPeriodEnd:     p.CancelAtPeriodEnd,
		SubscriptionEndsAt:    p.EndsAt,
	}
	return draft, nil
}
