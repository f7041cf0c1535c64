package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/simonpricept/client-billing/internal/api/metrics"
	"github.com/simonpricept/client-billing/internal/core/domain"
	"github.com/simonpricept/client-billing/internal/core/ports"
)

type importService struct {
	store    ports.ClientStore
	gateway  ports.PaymentGateway
	notifier ports.Notifier
	log      zerolog.Logger
	now      func() time.Time
}

// NewImportService returns the bulk import engine for adopting existing
// gateway customers as local clients.
func NewImportService(
	store ports.ClientStore,
	gateway ports.PaymentGateway,
	notifier ports.Notifier,
	log zerolog.Logger,
) ports.ImportService {
	return &importService{
		store:    store,
		gateway:  gateway,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

// FetchForReview resolves each gateway customer id into a draft client
// record. Per-id failures are recorded on the draft and never abort the
// batch, so one bad id cannot sink a fifty-customer import.
func (s *importService) FetchForReview(ctx context.Context, customerIDs []string) (*ports.ImportBatch, error) {
	batch := &ports.ImportBatch{Drafts: make([]ports.ImportDraft, 0, len(customerIDs))}

	for _, id := range customerIDs {
		draft := s.fetchDraft(ctx, id)
		if draft.Error != "" {
			s.log.Warn().
				Str("customer_id", id).
				Str("reason", draft.Error).
				Msg("import fetch skipped customer")
		}
		batch.Drafts = append(batch.Drafts, draft)
	}
	return batch, nil
}

func (s *importService) fetchDraft(ctx context.Context, customerID string) ports.ImportDraft {
	draft := ports.ImportDraft{CustomerID: customerID}

	snap, err := s.gateway.GetCustomer(ctx, customerID)
	if err != nil {
		draft.Error = importFetchError(err)
		return draft
	}
	if snap.Deleted {
		draft.Error = "customer is deleted at the gateway"
		return draft
	}
	if snap.Email == "" {
		draft.Error = "customer has no email address"
		return draft
	}

	if existing, err := s.store.FindByEmail(ctx, snap.Email); err == nil && existing != nil {
		draft.Error = fmt.Sprintf("already imported as %s", snap.Email)
		return draft
	} else if err != nil && !errors.Is(err, domain.ErrClientNotFound) {
		draft.Error = "lookup failed: " + err.Error()
		return draft
	}

	now := s.now()
	client := &domain.Client{
		Email:             snap.Email,
		Name:              snap.Name,
		Telephone:         snap.Telephone,
		Address:           snap.Address,
		GatewayCustomerID: snap.ID,
		Status:            domain.StatusPending,
		ImportedAt:        &now,
	}

	if sub := snap.Subscription; sub != nil {
		client.GatewaySubscriptionID = sub.ID
		client.Price = sub.Price
		client.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
		if !sub.CurrentPeriodEnd.IsZero() {
			// Renewal day doubles as the billing day; clamp so every month
			// has the date.
			day := sub.CurrentPeriodEnd.Day()
			if day > 28 {
				day = 28
			}
			client.BillingDay = day
			if sub.CancelAtPeriodEnd {
				end := sub.CurrentPeriodEnd
				client.SubscriptionEndsAt = &end
			}
		}

		if mapped, known := mapGatewayStatus(sub.Status); known {
			switch mapped {
			case domain.StatusActive:
				if snap.HasPaymentMethod {
					client.Status = domain.StatusActive
				}
			case domain.StatusSuspended:
				client.Status = domain.StatusSuspended
			case domain.StatusCancelled:
				client.Status = domain.StatusCancelled
			}
		}
	}

	draft.Client = client
	draft.HasPaymentMethod = snap.HasPaymentMethod
	return draft
}

// Commit persists the accepted drafts. Each record is upserted
// independently; a failure is recorded against that record's email and the
// rest of the batch proceeds. Every imported client gets a password setup
// email, plus a card request when the gateway holds no payment method.
func (s *importService) Commit(ctx context.Context, drafts []ports.ImportDraft) (*ports.CommitResult, error) {
	result := &ports.CommitResult{}

	for _, draft := range drafts {
		if draft.Error != "" || draft.Client == nil {
			result.Errors = append(result.Errors, ports.ImportItemError{
				Email: draftEmail(draft),
				Error: draft.Error,
			})
			metrics.ImportItemsTotal.WithLabelValues("error").Inc()
			continue
		}

		created, err := s.commitOne(ctx, draft)
		if err != nil {
			s.log.Error().Err(err).
				Str("email", draft.Client.Email).
				Msg("import commit failed for record")
			result.Errors = append(result.Errors, ports.ImportItemError{
				Email: draft.Client.Email,
				Error: err.Error(),
			})
			metrics.ImportItemsTotal.WithLabelValues("error").Inc()
			continue
		}
		if created {
			result.Created++
			metrics.ImportItemsTotal.WithLabelValues("created").Inc()
		} else {
			result.Updated++
			metrics.ImportItemsTotal.WithLabelValues("updated").Inc()
		}

		s.notifyImported(ctx, draft)
	}

	s.log.Info().
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("errors", len(result.Errors)).
		Msg("import batch committed")
	return result, nil
}

func (s *importService) commitOne(ctx context.Context, draft ports.ImportDraft) (created bool, err error) {
	client := draft.Client

	// A client with any billing history must be traceable to its gateway
	// customer.
	if client.Status != domain.StatusPending && client.GatewayCustomerID == "" {
		return false, fmt.Errorf("status %s requires a gateway customer id", client.Status)
	}

	now := s.now()
	client.UpdatedAt = now

	err = s.store.Insert(ctx, client)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, domain.ErrClientExists) {
		return false, err
	}

	// Same email imported again between review and commit: refresh the
	// existing record instead of failing.
	if err := s.store.Update(ctx, client); err != nil {
		return false, err
	}
	if _, err := s.store.UpdateStatusIf(ctx, client.Email, nil, domain.StatusUpdate{
		Status:             client.Status,
		SubscriptionID:     &client.GatewaySubscriptionID,
		CancelAtPeriodEnd:  &client.CancelAtPeriodEnd,
		SubscriptionEndsAt: client.SubscriptionEndsAt,
	}); err != nil {
		return false, err
	}
	return false, nil
}

func (s *importService) notifyImported(ctx context.Context, draft ports.ImportDraft) {
	email := draft.Client.Email
	if err := s.notifier.SendPasswordSetup(ctx, email); err != nil {
		s.log.Warn().Err(err).Str("email", email).Msg("password setup email failed")
	}
	if !draft.HasPaymentMethod && draft.Client.Status != domain.StatusCancelled {
		if err := s.notifier.SendCardRequest(ctx, email); err != nil {
			s.log.Warn().Err(err).Str("email", email).Msg("card request email failed")
		}
	}
}

func importFetchError(err error) string {
	var rejected *domain.GatewayRejectedError
	switch {
	case errors.As(err, &rejected):
		return "gateway: " + rejected.Message
	case errors.Is(err, domain.ErrGatewayUnavailable):
		return "gateway unavailable, retry later"
	default:
		return err.Error()
	}
}

func draftEmail(d ports.ImportDraft) string {
	if d.Client != nil {
		return d.Client.Email
	}
	return d.CustomerID
}
