package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/simonpricept/client-billing/internal/core/domain"
	"github.com/simonpricept/client-billing/internal/core/ports"
)

// ── ClientStore stub ──────────────────────────────────────────────────────────

type stubClientStore struct {
	mu      sync.Mutex
	clients map[string]*domain.Client

	insertErr error
	updateErr error

	// beforeStatusWrite runs inside UpdateStatusIf before the predicate is
	// evaluated, which lets tests interleave a concurrent writer.
	beforeStatusWrite func()
}

func newStubClientStore(clients ...*domain.Client) *stubClientStore {
	s := &stubClientStore{clients: make(map[string]*domain.Client)}
	for _, c := range clients {
		s.clients[c.Email] = cloneClient(c)
	}
	return s
}

func cloneClient(c *domain.Client) *domain.Client {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

func (s *stubClientStore) get(email string) *domain.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneClient(s.clients[email])
}

func (s *stubClientStore) FindByEmail(_ context.Context, email string) (*domain.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.clients[email]; ok {
		return cloneClient(c), nil
	}
	return nil, domain.ErrClientNotFound
}

func (s *stubClientStore) FindByCustomerID(_ context.Context, customerID string) (*domain.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clients {
		if c.GatewayCustomerID == customerID {
			return cloneClient(c), nil
		}
	}
	return nil, domain.ErrClientNotFound
}

func (s *stubClientStore) Insert(_ context.Context, c *domain.Client) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c.Email]; ok {
		return domain.ErrClientExists
	}
	s.clients[c.Email] = cloneClient(c)
	return nil
}

func (s *stubClientStore) Update(_ context.Context, c *domain.Client) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.clients[c.Email]
	if !ok {
		return domain.ErrClientNotFound
	}
	// Status fields only move through UpdateStatusIf.
	clone := cloneClient(c)
	clone.Status = existing.Status
	clone.GatewaySubscriptionID = existing.GatewaySubscriptionID
	clone.CancelAtPeriodEnd = existing.CancelAtPeriodEnd
	clone.SubscriptionEndsAt = existing.SubscriptionEndsAt
	s.clients[c.Email] = clone
	return nil
}

func (s *stubClientStore) SetCustomerID(_ context.Context, email, customerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[email]
	if !ok {
		return domain.ErrClientNotFound
	}
	c.GatewayCustomerID = customerID
	return nil
}

func (s *stubClientStore) UpdateStatusIf(_ context.Context, email string, expected []domain.Status, update domain.StatusUpdate) (bool, error) {
	if s.beforeStatusWrite != nil {
		fn := s.beforeStatusWrite
		s.beforeStatusWrite = nil
		fn()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[email]
	if !ok {
		return false, domain.ErrClientNotFound
	}
	if len(expected) > 0 {
		matched := false
		for _, exp := range expected {
			if c.Status == exp {
				matched = true
				break
			}
		}
		if !matched {
			return false, nil
		}
	}
	c.Status = update.Status
	if update.SubscriptionID != nil {
		c.GatewaySubscriptionID = *update.SubscriptionID
	}
	if update.CancelAtPeriodEnd != nil {
		c.CancelAtPeriodEnd = *update.CancelAtPeriodEnd
	}
	if update.SubscriptionEndsAt != nil {
		c.SubscriptionEndsAt = update.SubscriptionEndsAt
	}
	return true, nil
}

func (s *stubClientStore) List(_ context.Context, filter ports.ListClientsFilter) ([]*domain.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Client
	for _, c := range s.clients {
		if filter.Status != "" && string(c.Status) != filter.Status {
			continue
		}
		if filter.Search != "" && !strings.Contains(c.Email, filter.Search) && !strings.Contains(c.Name, filter.Search) {
			continue
		}
		out = append(out, cloneClient(c))
	}
	return out, nil
}

func (s *stubClientStore) CountByStatus(_ context.Context) (map[domain.Status]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[domain.Status]int64)
	for _, c := range s.clients {
		counts[c.Status]++
	}
	return counts, nil
}

// ── PaymentGateway stub ───────────────────────────────────────────────────────

type stubGateway struct {
	mu sync.Mutex

	customers     map[string]*ports.CustomerSnapshot
	subscriptions map[string]*ports.GatewaySubscription
	nextCustomer  int
	nextSub       int

	// subscriptionStatus is the status assigned to newly created
	// subscriptions; defaults to "active".
	subscriptionStatus string

	createCustomerErr     error
	attachErr             error
	createSubscriptionErr error
	findActiveErr         error
	getCustomerErr        map[string]error

	cancelled   []string
	portalURL   string
	attachCalls int
}

func newStubGateway() *stubGateway {
	return &stubGateway{
		customers:          make(map[string]*ports.CustomerSnapshot),
		subscriptions:      make(map[string]*ports.GatewaySubscription),
		subscriptionStatus: "active",
	}
}

func (g *stubGateway) CreateCustomer(_ context.Context, details ports.CustomerDetails) (string, error) {
	if g.createCustomerErr != nil {
		return "", g.createCustomerErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextCustomer++
	id := fmt.Sprintf("cus_%d", g.nextCustomer)
	g.customers[id] = &ports.CustomerSnapshot{ID: id, Email: details.Email, Name: details.Name}
	return id, nil
}

func (g *stubGateway) CreateSetupIntent(_ context.Context, _ string) (string, error) {
	return "seti_secret_123", nil
}

func (g *stubGateway) AttachPaymentMethod(_ context.Context, _, _ string) error {
	g.mu.Lock()
	g.attachCalls++
	g.mu.Unlock()
	return g.attachErr
}

func (g *stubGateway) CreateSubscription(_ context.Context, customerID string, terms ports.SubscriptionTerms) (*ports.GatewaySubscription, error) {
	if g.createSubscriptionErr != nil {
		return nil, g.createSubscriptionErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextSub++
	sub := &ports.GatewaySubscription{
		ID:               fmt.Sprintf("sub_%d", g.nextSub),
		Status:           g.subscriptionStatus,
		Price:            terms.Price,
		CurrentPeriodEnd: terms.NextBillingDate,
	}
	g.subscriptions[sub.ID] = sub
	if c, ok := g.customers[customerID]; ok {
		c.Subscription = sub
	}
	return sub, nil
}

func (g *stubGateway) GetSubscription(_ context.Context, subscriptionID string) (*ports.GatewaySubscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if sub, ok := g.subscriptions[subscriptionID]; ok {
		clone := *sub
		return &clone, nil
	}
	return nil, &domain.GatewayRejectedError{Code: "resource_missing", Message: "no such subscription"}
}

func (g *stubGateway) FindActiveSubscription(_ context.Context, customerID string) (*ports.GatewaySubscription, error) {
	if g.findActiveErr != nil {
		return nil, g.findActiveErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.customers[customerID]
	if !ok || c.Subscription == nil {
		return nil, nil
	}
	switch c.Subscription.Status {
	case "active", "trialing", "past_due", "unpaid", "incomplete":
		clone := *c.Subscription
		return &clone, nil
	}
	return nil, nil
}

func (g *stubGateway) CancelSubscription(_ context.Context, subscriptionID string, atPeriodEnd bool) (time.Time, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelled = append(g.cancelled, subscriptionID)
	sub, ok := g.subscriptions[subscriptionID]
	if !ok {
		return time.Time{}, &domain.GatewayRejectedError{Code: "resource_missing", Message: "no such subscription"}
	}
	if atPeriodEnd {
		sub.CancelAtPeriodEnd = true
		return sub.CurrentPeriodEnd, nil
	}
	sub.Status = "canceled"
	return time.Now(), nil
}

func (g *stubGateway) GetCustomer(_ context.Context, customerID string) (*ports.CustomerSnapshot, error) {
	if err, ok := g.getCustomerErr[customerID]; ok {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.customers[customerID]; ok {
		clone := *c
		return &clone, nil
	}
	return nil, &domain.GatewayRejectedError{Code: "resource_missing", Message: "no such customer"}
}

func (g *stubGateway) CreatePortalSession(_ context.Context, customerID, returnURL string) (string, error) {
	g.portalURL = returnURL
	return "https://billing.example.com/session/" + customerID, nil
}

// ── Notifier stub ─────────────────────────────────────────────────────────────

type stubNotifier struct {
	mu sync.Mutex

	invitations   []ports.InvitationTerms
	confirmations []ports.ConfirmationDetails
	passwordSetup []string
	cardRequests  []string

	invitationErr   error
	confirmationErr error
}

func (n *stubNotifier) SendInvitation(_ context.Context, _, _ string, terms ports.InvitationTerms) error {
	if n.invitationErr != nil {
		return n.invitationErr
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.invitations = append(n.invitations, terms)
	return nil
}

func (n *stubNotifier) SendConfirmation(_ context.Context, _ string, details ports.ConfirmationDetails) error {
	if n.confirmationErr != nil {
		return n.confirmationErr
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirmations = append(n.confirmations, details)
	return nil
}

func (n *stubNotifier) SendPasswordSetup(_ context.Context, email string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.passwordSetup = append(n.passwordSetup, email)
	return nil
}

func (n *stubNotifier) SendCardRequest(_ context.Context, email string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cardRequests = append(n.cardRequests, email)
	return nil
}

// ── Dedup stub ────────────────────────────────────────────────────────────────

type stubDedup struct {
	mu     sync.Mutex
	seen   map[string]bool
	isErr  error
	markEr error
}

func newStubDedup() *stubDedup {
	return &stubDedup{seen: make(map[string]bool)}
}

func (d *stubDedup) IsDuplicate(_ context.Context, eventID string) (bool, error) {
	if d.isErr != nil {
		return false, d.isErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seen[eventID], nil
}

func (d *stubDedup) Mark(_ context.Context, eventID string) error {
	if d.markEr != nil {
		return d.markEr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[eventID] = true
	return nil
}

// ── helpers ───────────────────────────────────────────────────────────────────

func pendingClient(email string) *domain.Client {
	return &domain.Client{
		Email:      email,
		Name:       "Jamie Doe",
		Price:      decimal.New(12500, -2),
		BillingDay: 1,
		Prorate:    true,
		Status:     domain.StatusPending,
	}
}
