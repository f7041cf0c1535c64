package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/simonpricept/client-billing/internal/core/domain"
	"github.com/simonpricept/client-billing/internal/core/ports"
)

func newImportFixture(clients ...*domain.Client) (ports.ImportService, *stubClientStore, *stubGateway, *stubNotifier) {
	store := newStubClientStore(clients...)
	gateway := newStubGateway()
	notifier := &stubNotifier{}
	svc := NewImportService(store, gateway, notifier, zerolog.Nop())
	return svc, store, gateway, notifier
}

func stageCustomer(g *stubGateway, snap *ports.CustomerSnapshot) {
	g.customers[snap.ID] = snap
	if snap.Subscription != nil {
		g.subscriptions[snap.Subscription.ID] = snap.Subscription
	}
}

func TestFetchForReview_MapsActiveCustomer(t *testing.T) {
	svc, _, gateway, _ := newImportFixture()
	periodEnd := time.Date(2026, time.September, 15, 0, 0, 0, 0, time.UTC)
	stageCustomer(gateway, &ports.CustomerSnapshot{
		ID:        "cus_1",
		Email:     "jamie@example.com",
		Name:      "Jamie Doe",
		Telephone: "07700900000",
		Subscription: &ports.GatewaySubscription{
			ID:               "sub_1",
			Status:           "active",
			Price:            decimal.New(12500, -2),
			CurrentPeriodEnd: periodEnd,
		},
		HasPaymentMethod: true,
	})

	batch, err := svc.FetchForReview(context.Background(), []string{"cus_1"})
	if err != nil {
		t.Fatalf("FetchForReview returned error: %v", err)
	}
	if len(batch.Drafts) != 1 {
		t.Fatalf("drafts = %d, want 1", len(batch.Drafts))
	}

	draft := batch.Drafts[0]
	if draft.Error != "" {
		t.Fatalf("unexpected draft error: %s", draft.Error)
	}
	c := draft.Client
	if c.Email != "jamie@example.com" || c.GatewayCustomerID != "cus_1" || c.GatewaySubscriptionID != "sub_1" {
		t.Errorf("identity fields wrong: %+v", c)
	}
	if c.Status != domain.StatusActive {
		t.Errorf("status = %s, want active", c.Status)
	}
	if !c.Price.Equal(decimal.New(12500, -2)) {
		t.Errorf("price = %s, want 125.00", c.Price)
	}
	if c.BillingDay != 15 {
		t.Errorf("billing day = %d, want renewal day 15", c.BillingDay)
	}
}

func TestFetchForReview_BillingDayClamped(t *testing.T) {
	svc, _, gateway, _ := newImportFixture()
	stageCustomer(gateway, &ports.CustomerSnapshot{
		ID:    "cus_1",
		Email: "jamie@example.com",
		Subscription: &ports.GatewaySubscription{
			ID:               "sub_1",
			Status:           "active",
			CurrentPeriodEnd: time.Date(2026, time.August, 31, 0, 0, 0, 0, time.UTC),
		},
		HasPaymentMethod: true,
	})

	batch, err := svc.FetchForReview(context.Background(), []string{"cus_1"})
	if err != nil {
		t.Fatalf("FetchForReview returned error: %v", err)
	}
	if got := batch.Drafts[0].Client.BillingDay; got != 28 {
		t.Errorf("billing day = %d, want clamped to 28", got)
	}
}

func TestFetchForReview_ActiveWithoutCardStaysPending(t *testing.T) {
	svc, _, gateway, _ := newImportFixture()
	stageCustomer(gateway, &ports.CustomerSnapshot{
		ID:    "cus_1",
		Email: "jamie@example.com",
		Subscription: &ports.GatewaySubscription{ID: "sub_1", Status: "active"},
	})

	batch, _ := svc.FetchForReview(context.Background(), []string{"cus_1"})
	if got := batch.Drafts[0].Client.Status; got != domain.StatusPending {
		t.Errorf("status = %s, want pending without a payment method", got)
	}
}

func TestFetchForReview_ErrorIsolation(t *testing.T) {
	svc, _, gateway, _ := newImportFixture()
	stageCustomer(gateway, &ports.CustomerSnapshot{ID: "cus_ok", Email: "ok@example.com"})
	stageCustomer(gateway, &ports.CustomerSnapshot{ID: "cus_gone", Email: "gone@example.com", Deleted: true})

	batch, err := svc.FetchForReview(context.Background(), []string{"cus_ok", "cus_missing", "cus_gone"})
	if err != nil {
		t.Fatalf("a bad id must not abort the batch: %v", err)
	}
	if len(batch.Drafts) != 3 {
		t.Fatalf("drafts = %d, want 3", len(batch.Drafts))
	}
	if batch.Drafts[0].Error != "" {
		t.Errorf("good customer flagged: %s", batch.Drafts[0].Error)
	}
	if batch.Drafts[1].Error == "" {
		t.Error("missing customer not flagged")
	}
	if batch.Drafts[2].Error == "" {
		t.Error("deleted customer not flagged")
	}
}

func TestFetchForReview_AlreadyImported(t *testing.T) {
	existing := pendingClient("jamie@example.com")
	svc, _, gateway, _ := newImportFixture(existing)
	stageCustomer(gateway, &ports.CustomerSnapshot{ID: "cus_1", Email: "jamie@example.com"})

	batch, _ := svc.FetchForReview(context.Background(), []string{"cus_1"})
	if batch.Drafts[0].Error == "" {
		t.Error("already-imported customer not flagged")
	}
}

func TestCommit_CreatesAndNotifies(t *testing.T) {
	svc, store, _, notifier := newImportFixture()
	now := time.Now()

	drafts := []ports.ImportDraft{
		{
			CustomerID: "cus_1",
			Client: &domain.Client{
				Email:             "carded@example.com",
				Status:            domain.StatusActive,
				GatewayCustomerID: "cus_1",
				ImportedAt:        &now,
			},
			HasPaymentMethod: true,
		},
		{
			CustomerID: "cus_2",
			Client: &domain.Client{
				Email:             "cardless@example.com",
				Status:            domain.StatusPending,
				GatewayCustomerID: "cus_2",
				ImportedAt:        &now,
			},
		},
	}

	result, err := svc.Commit(context.Background(), drafts)
	if err != nil {
		t.Fatalf("Commit returned error: %v", err)
	}
	if result.Created != 2 || result.Updated != 0 || len(result.Errors) != 0 {
		t.Fatalf("result = %+v, want 2 created", result)
	}

	if store.get("carded@example.com") == nil || store.get("cardless@example.com") == nil {
		t.Fatal("clients not persisted")
	}
	if len(notifier.passwordSetup) != 2 {
		t.Errorf("password setup emails = %d, want 2", len(notifier.passwordSetup))
	}
	if len(notifier.cardRequests) != 1 || notifier.cardRequests[0] != "cardless@example.com" {
		t.Errorf("card requests = %v, want only the cardless client", notifier.cardRequests)
	}
}

func TestCommit_ErrorDraftsSkipped(t *testing.T) {
	svc, store, _, _ := newImportFixture()

	drafts := []ports.ImportDraft{
		{CustomerID: "cus_bad", Error: "customer is deleted at the gateway"},
		{
			CustomerID: "cus_1",
			Client:     &domain.Client{Email: "ok@example.com", Status: domain.StatusPending, GatewayCustomerID: "cus_1"},
		},
	}

	result, err := svc.Commit(context.Background(), drafts)
	if err != nil {
		t.Fatalf("Commit returned error: %v", err)
	}
	if result.Created != 1 {
		t.Errorf("created = %d, want 1", result.Created)
	}
	if len(result.Errors) != 1 || result.Errors[0].Email != "cus_bad" {
		t.Errorf("errors = %+v, want the bad draft recorded", result.Errors)
	}
	if store.get("ok@example.com") == nil {
		t.Error("good draft not committed")
	}
}

func TestCommit_NonPendingNeedsCustomerID(t *testing.T) {
	svc, store, _, _ := newImportFixture()

	drafts := []ports.ImportDraft{
		{Client: &domain.Client{Email: "broken@example.com", Status: domain.StatusActive}},
	}

	result, err := svc.Commit(context.Background(), drafts)
	if err != nil {
		t.Fatalf("Commit returned error: %v", err)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("errors = %+v, want invariant violation recorded", result.Errors)
	}
	if store.get("broken@example.com") != nil {
		t.Error("active client without customer id was persisted")
	}
}

func TestCommit_ExistingClientUpdated(t *testing.T) {
	existing := pendingClient("jamie@example.com")
	svc, store, _, _ := newImportFixture(existing)

	drafts := []ports.ImportDraft{
		{
			CustomerID: "cus_1",
			Client: &domain.Client{
				Email:                 "jamie@example.com",
				Status:                domain.StatusActive,
				GatewayCustomerID:     "cus_1",
				GatewaySubscriptionID: "sub_1",
			},
			HasPaymentMethod: true,
		},
	}

	result, err := svc.Commit(context.Background(), drafts)
	if err != nil {
		t.Fatalf("Commit returned error: %v", err)
	}
	if result.Updated != 1 || result.Created != 0 {
		t.Fatalf("result = %+v, want 1 updated", result)
	}

	stored := store.get("jamie@example.com")
	if stored.Status != domain.StatusActive {
		t.Errorf("status = %s, want active after refresh", stored.Status)
	}
	if stored.GatewaySubscriptionID != "sub_1" {
		t.Error("subscription id not refreshed")
	}
}
