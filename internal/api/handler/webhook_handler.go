package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/simonpricept/client-billing/internal/core/ports"
)

// EventDispatcher is the interface the webhook handler uses to enqueue
// gateway events for ordered background processing.
type EventDispatcher interface {
	Enqueue(event ports.GatewayEventInput)
}

// WebhookHandler ingests pushed gateway events. Ingestion only acknowledges
// receipt; processing happens asynchronously so the gateway never times out
// waiting on a database write.
type WebhookHandler struct {
	dispatcher EventDispatcher
}

func NewWebhookHandler(dispatcher EventDispatcher) *WebhookHandler {
	return &WebhookHandler{dispatcher: dispatcher}
}

type gatewayEventRequest struct {
	ID   string `json:"id"   validate:"required"`
	Type string `json:"type" validate:"required"`
	Data struct {
		Object struct {
			ID                string `json:"id"`
			Customer          string `json:"customer"`
			Status            string `json:"status"`
			CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
			CurrentPeriodEnd  int64  `json:"current_period_end"`
		} `json:"object"`
	} `json:"data"`
	Created int64 `json:"created"`
}

// Receive handles POST /v1/webhooks/gateway — enqueues the event, returns 202.
//
// @Summary      Ingest a gateway webhook event
// @Tags         webhooks
// @Accept       json
// @Produce      json
// @Param        body  body      gatewayEventRequest  true  "Gateway event"
// @Success      202   {object}  acceptedResponse
// @Failure      400   {object}  errorResponse
// @Router       /v1/webhooks/gateway [post]
func (h *WebhookHandler) Receive(c echo.Context) error {
	var req gatewayEventRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	h.dispatcher.Enqueue(toGatewayEvent(req))
	return c.JSON(http.StatusAccepted, acceptedResponse{Message: "event accepted"})
}

func toGatewayEvent(r gatewayEventRequest) ports.GatewayEventInput {
	in := ports.GatewayEventInput{
		EventID:            r.ID,
		Type:               r.Type,
		CustomerID:         r.Data.Object.Customer,
		SubscriptionID:     r.Data.Object.ID,
		SubscriptionStatus: r.Data.Object.Status,
		CancelAtPeriodEnd:  r.Data.Object.CancelAtPeriodEnd,
	}
	if r.Data.Object.CurrentPeriodEnd > 0 {
		in.CurrentPeriodEnd = time.Unix(r.Data.Object.CurrentPeriodEnd, 0).UTC()
	}
	if r.Created > 0 {
		in.OccurredAt = time.Unix(r.Created, 0).UTC()
	}
	return in
}
