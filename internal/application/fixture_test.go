package application_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/b2aeddine/collabmarket-56-sub000/internal/adapters/memory"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/adapters/processor"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/application"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/domain"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/ports"
)

const (
	merchantID       = "7b0c8a0e-5a55-4d1c-9a51-1f3c3c2b0001"
	influencerID     = "9d4e1f2a-67b8-4c9d-8e0f-1a2b3c4d0002"
	outsiderID       = "0f0f0f0f-1111-4222-8333-444444440003"
	adminID          = "aaaaaaaa-bbbb-4ccc-8ddd-eeeeeeee0004"
	offerID          = "offer-story-200"
	connectedAccount = "acct_sbx_influencer"
	webhookSecret    = "whsec_test_secret"
)

var (
	merchant   = application.Actor{SubjectID: merchantID, Role: domain.RoleMerchant, RequestID: "req-merchant"}
	influencer = application.Actor{SubjectID: influencerID, Role: domain.RoleInfluencer, RequestID: "req-influencer"}
	outsider   = application.Actor{SubjectID: outsiderID, Role: domain.RoleMerchant, RequestID: "req-outsider"}
	admin      = application.Actor{SubjectID: adminID, Role: domain.RoleAdmin, RequestID: "req-admin"}
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	service *application.Service
	repos   *memory.Repositories
	sandbox *processor.Sandbox
	clock   *testClock
	events  int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repos := memory.NewRepositories()
	repos.Profiles.PutMerchant(ports.Merchant{ID: merchantID, Email: "merchant@example.com"})
	repos.Profiles.PutInfluencer(ports.InfluencerAccount{ID: influencerID, ConnectedAccountID: connectedAccount})
	repos.Profiles.PutOffer(ports.Offer{
		ID:           offerID,
		InfluencerID: influencerID,
		Title:        "Instagram story",
		Price:        decimal.NewFromInt(200),
		Currency:     "eur",
		Active:       true,
	})

	sandbox := processor.NewSandbox()
	sandbox.PutAccount(ports.ConnectedAccount{
		ID:                 connectedAccount,
		PayoutsEnabled:     true,
		ChargesEnabled:     true,
		HasExternalAccount: true,
	})

	clock := &testClock{now: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
	service := application.NewService(application.Dependencies{
		Config: application.Config{
			CommissionRate: decimal.RequireFromString("0.10"),
			SweepBatchSize: 2,
		},
		Orders:        repos.Orders,
		Revenues:      repos.Revenues,
		Transfers:     repos.Transfers,
		PaymentLogs:   repos.PaymentLogs,
		Contestations: repos.Contestations,
		Ledger:        repos.Ledger,
		Outbox:        repos.Outbox,
		Profiles:      repos.Profiles,
		Processor:     sandbox,
		Webhooks:      processor.NewWebhookVerifier(webhookSecret),
		Locker:        memory.NewLocker(),
		Clock:         clock.Now,
	})
	return &fixture{service: service, repos: repos, sandbox: sandbox, clock: clock}
}

func sign(payload []byte) string {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    webhookSecret,
		Timestamp: time.Now(),
	})
	return signed.Header
}

// deliverEvent builds a processor event for the session and feeds it to the
// service with a valid signature.
func (f *fixture) deliverEvent(t *testing.T, eventType, sessionID string) (application.WebhookAck, string) {
	t.Helper()
	f.events++
	eventID := fmt.Sprintf("evt_test_%04d", f.events)
	payload, err := f.sandbox.CheckoutEvent(eventID, eventType, sessionID, f.clock.Now())
	if err != nil {
		t.Fatalf("build %s event: %v", eventType, err)
	}
	ack, err := f.service.HandleWebhook(context.Background(), payload, sign(payload))
	if err != nil {
		t.Fatalf("handle %s webhook: %v", eventType, err)
	}
	return ack, eventID
}

// authorizedOrder runs checkout and the completion webhook.
func (f *fixture) authorizedOrder(t *testing.T) domain.Order {
	t.Helper()
	ctx := context.Background()
	checkout, err := f.service.Authorize(ctx, merchant, application.AuthorizeInput{OfferID: offerID})
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if _, err := f.sandbox.CompleteCheckout(checkout.SessionID); err != nil {
		t.Fatalf("complete checkout: %v", err)
	}
	f.deliverEvent(t, domain.EventCheckoutSessionCompleted, checkout.SessionID)
	order, err := f.repos.Orders.GetByID(ctx, checkout.OrderID)
	if err != nil {
		t.Fatalf("load order: %v", err)
	}
	if order.Status != domain.StatusPaymentAuthorized {
		t.Fatalf("expected payment_authorized, got %s", order.Status)
	}
	return order
}

func (f *fixture) acceptedOrder(t *testing.T) domain.Order {
	t.Helper()
	order := f.authorizedOrder(t)
	accepted, err := f.service.PerformAction(context.Background(), influencer, application.ActionInput{OrderID: order.ID, Action: "accept"})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	return accepted
}

func (f *fixture) deliveredOrder(t *testing.T) domain.Order {
	t.Helper()
	order := f.acceptedOrder(t)
	delivered, err := f.service.PerformAction(context.Background(), influencer, application.ActionInput{OrderID: order.ID, Action: "deliver"})
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	return delivered
}

func (f *fixture) revenueStatus(t *testing.T, orderID string) domain.RevenueStatus {
	t.Helper()
	revenue, err := f.repos.Revenues.GetByOrderID(context.Background(), orderID)
	if err != nil {
		t.Fatalf("load revenue for %s: %v", orderID, err)
	}
	return revenue.Status
}

func hasEvent(types []string, want string) bool {
	for _, got := range types {
		if got == want {
			return true
		}
	}
	return false
}
