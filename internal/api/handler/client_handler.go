package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/simonpricept/client-billing/internal/core/ports"
)

// ClientHandler serves the authenticated admin API for managing clients.
type ClientHandler struct {
	clients   ports.ClientService
	reconcile ports.ReconcileService
}

func NewClientHandler(clients ports.ClientService, reconcile ports.ReconcileService) *ClientHandler {
	return &ClientHandler{clients: clients, reconcile: reconcile}
}

// Invite handles POST /v1/admin/clients/invite.
//
// @Summary      Invite a new client
// @Tags         clients
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      inviteClientRequest  true  "Client terms"
// @Success      201   {object}  inviteClientResponse
// @Failure      409   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Router       /v1/admin/clients/invite [post]
func (h *ClientHandler) Invite(c echo.Context) error {
	var req inviteClientRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "price must be a decimal string")
	}

	result, err := h.clients.Invite(c.Request().Context(), ports.InviteClientInput{
		Name:       req.Name,
		Email:      req.Email,
		Telephone:  req.Telephone,
		Price:      price,
		BillingDay: req.BillingDay,
		Prorate:    req.Prorate,
		TokenTTL:   time.Duration(req.TokenTTLDays) * 24 * time.Hour,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, inviteClientResponse{Token: result.Token, ExpiresAt: result.ExpiresAt})
}

// Resend handles POST /v1/admin/clients/:email/resend.
//
// @Summary      Resend an invitation using the stored terms
// @Tags         clients
// @Produce      json
// @Security     BearerAuth
// @Param        email  path      string  true  "Client email"
// @Success      200    {object}  inviteClientResponse
// @Failure      404    {object}  errorResponse
// @Failure      409    {object}  errorResponse
// @Router       /v1/admin/clients/{email}/resend [post]
func (h *ClientHandler) Resend(c echo.Context) error {
	result, err := h.clients.Resend(c.Request().Context(), c.Param("email"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, inviteClientResponse{Token: result.Token, ExpiresAt: result.ExpiresAt})
}

// Cancel handles POST /v1/admin/clients/:email/cancel.
//
// @Summary      Cancel a client's subscription
// @Tags         clients
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        email  path      string               true  "Client email"
// @Param        body   body      cancelClientRequest  true  "Cancellation mode"
// @Success      200    {object}  cancelClientResponse
// @Failure      404    {object}  errorResponse
// @Router       /v1/admin/clients/{email}/cancel [post]
func (h *ClientHandler) Cancel(c echo.Context) error {
	var req cancelClientRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}

	result, err := h.clients.Cancel(c.Request().Context(), c.Param("email"), req.AtPeriodEnd)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, cancelClientResponse{
		Status:            string(result.Status),
		CancelAtPeriodEnd: result.CancelAtPeriodEnd,
		EndsAt:            result.EndsAt,
	})
}

// Portal handles POST /v1/admin/clients/:email/portal — creates a billing
// portal session at the gateway.
//
// @Summary      Create a billing portal session
// @Tags         clients
// @Produce      json
// @Security     BearerAuth
// @Param        email  path      string  true  "Client email"
// @Success      200    {object}  portalSessionResponse
// @Failure      404    {object}  errorResponse
// @Router       /v1/admin/clients/{email}/portal [post]
func (h *ClientHandler) Portal(c echo.Context) error {
	url, err := h.clients.PortalSession(c.Request().Context(), c.Param("email"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, portalSessionResponse{URL: url})
}

// Sync handles POST /v1/admin/clients/:email/sync — pulls the authoritative
// subscription state from the gateway and folds it into the local record.
//
// @Summary      Reconcile a client's status with the gateway
// @Tags         clients
// @Produce      json
// @Security     BearerAuth
// @Param        email  path      string  true  "Client email"
// @Success      200    {object}  syncStatusResponse
// @Failure      404    {object}  errorResponse
// @Failure      502    {object}  errorResponse
// @Router       /v1/admin/clients/{email}/sync [post]
func (h *ClientHandler) Sync(c echo.Context) error {
	result, err := h.reconcile.SyncStatus(c.Request().Context(), c.Param("email"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, syncStatusResponse{
		Previous: string(result.Previous),
		Current:  string(result.Current),
		Changed:  result.Changed,
	})
}

// Get handles GET /v1/admin/clients/:email.
//
// @Summary      Get a client
// @Tags         clients
// @Produce      json
// @Security     BearerAuth
// @Param        email  path      string  true  "Client email"
// @Success      200    {object}  clientResponse
// @Failure      404    {object}  errorResponse
// @Router       /v1/admin/clients/{email} [get]
func (h *ClientHandler) Get(c echo.Context) error {
	client, err := h.clients.Get(c.Request().Context(), c.Param("email"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toClientResponse(client))
}

// List handles GET /v1/admin/clients?status=&search=.
//
// @Summary      List clients
// @Tags         clients
// @Produce      json
// @Security     BearerAuth
// @Param        status  query     string  false  "Filter by status"
// @Param        search  query     string  false  "Partial match on email or name"
// @Success      200     {object}  listClientsResponse
// @Router       /v1/admin/clients [get]
func (h *ClientHandler) List(c echo.Context) error {
	clients, err := h.clients.List(c.Request().Context(), ports.ListClientsFilter{
		Status: c.QueryParam("status"),
		Search: c.QueryParam("search"),
	})
	if err != nil {
		return err
	}

	out := make([]clientResponse, 0, len(clients))
	for _, client := range clients {
		out = append(out, toClientResponse(client))
	}
	return c.JSON(http.StatusOK, listClientsResponse{Clients: out, Count: len(out)})
}

// Stats handles GET /v1/admin/clients/stats.
//
// @Summary      Client counts by status
// @Tags         clients
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  map[string]int64
// @Router       /v1/admin/clients/stats [get]
func (h *ClientHandler) Stats(c echo.Context) error {
	stats, err := h.clients.Stats(c.Request().Context())
	if err != nil {
		return err
	}

	out := make(map[string]int64, len(stats))
	for status, n := range stats {
		out[string(status)] = n
	}
	return c.JSON(http.StatusOK, out)
}
