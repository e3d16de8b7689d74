package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/b2aeddine/collabmarket-56-sub000/internal/domain"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/ports"
)

// Sandbox is an in-process stand-in for the processor. It keeps intents in
// memory, honours idempotency keys and can be told to fail a given
// operation. Local runs without Stripe credentials and the test suites use it.
type Sandbox struct {
	mu        sync.Mutex
	seq       int
	customers map[string]string
	sessions  map[string]SandboxSession
	intents   map[string]ports.PaymentIntent
	accounts  map[string]ports.ConnectedAccount
	payouts   []ports.ProcessorPayout
	keys      map[string]any
	failures  map[string]error
	calls     map[string]int
}

type SandboxSession struct {
	ID       string
	IntentID string
	Expired  bool
	Params   ports.CheckoutSessionParams
}

const maxIdempotencyKeyLen = 255

// Operation names accepted by FailNext and Calls.
const (
	OpCreateCustomer = "create_customer"
	OpCreateCheckout = "create_checkout_session"
	OpExpireCheckout = "expire_checkout_session"
	OpGetIntent      = "get_payment_intent"
	OpCaptureIntent  = "capture_payment_intent"
	OpCancelIntent   = "cancel_payment_intent"
	OpGetAccount     = "get_connected_account"
	OpCreatePayout   = "create_payout"
)

func NewSandbox() *Sandbox {
	return &Sandbox{
		customers: map[string]string{},
		sessions:  map[string]SandboxSession{},
		intents:   map[string]ports.PaymentIntent{},
		accounts:  map[string]ports.ConnectedAccount{},
		keys:      map[string]any{},
		failures:  map[string]error{},
		calls:     map[string]int{},
	}
}

// PutAccount registers a connected account.
func (s *Sandbox) PutAccount(account ports.ConnectedAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account.ID] = account
}

// FailNext makes the next call of op return err. A nil err is replaced by a
// generic processor failure.
func (s *Sandbox) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		err = fmt.Errorf("%w: sandbox %s unavailable", domain.ErrProcessor, op)
	}
	s.failures[op] = err
}

func (s *Sandbox) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *Sandbox) Session(id string) (SandboxSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	return session, ok
}

func (s *Sandbox) Intent(id string) (ports.PaymentIntent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	intent, ok := s.intents[id]
	return intent, ok
}

// SetIntentStatus overwrites an intent's status, e.g. to simulate a hold
// that expired or a capture done out of band.
func (s *Sandbox) SetIntentStatus(id, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	intent, ok := s.intents[id]
	if !ok {
		return
	}
	switch status {
	case ports.IntentSucceeded:
		intent.AmountReceivedMinor = intent.AmountMinor
		intent.AmountCapturableMinor = 0
		if intent.TransferRef == "" {
			intent.TransferRef = s.nextIDLocked("tr")
		}
	case ports.IntentCanceled:
		intent.AmountCapturableMinor = 0
	}
	intent.Status = status
	s.intents[id] = intent
}

func (s *Sandbox) Payouts() []ports.ProcessorPayout {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ports.ProcessorPayout(nil), s.payouts...)
}

// CompleteCheckout simulates the buyer paying: it creates a held intent for
// the session and returns its id.
func (s *Sandbox) CompleteCheckout(sessionID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return "", domain.ErrProcessorRecordAbsent
	}
	if session.IntentID != "" {
		return session.IntentID, nil
	}
	if session.Expired {
		return "", fmt.Errorf("%w: checkout session %s is expired", domain.ErrProcessor, sessionID)
	}
	intentID := s.nextIDLocked("pi")
	s.intents[intentID] = ports.PaymentIntent{
		ID:                    intentID,
		Status:                ports.IntentRequiresCapture,
		AmountMinor:           session.Params.AmountMinor,
		AmountCapturableMinor: session.Params.AmountMinor,
		Currency:              session.Params.Currency,
		Metadata:              copyMeta(session.Params.Metadata),
	}
	session.IntentID = intentID
	s.sessions[sessionID] = session
	return intentID, nil
}

// CheckoutEvent renders a webhook event for a session in the processor's
// wire format.
func (s *Sandbox) CheckoutEvent(eventID, eventType, sessionID string, created time.Time) ([]byte, error) {
	s.mu.Lock()
	session, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if !ok {
		return nil, domain.ErrProcessorRecordAbsent
	}
	object := map[string]any{
		"id":             session.ID,
		"object":         "checkout.session",
		"payment_status": "unpaid",
		"status":         "open",
		"amount_total":   session.Params.AmountMinor,
		"currency":       session.Params.Currency,
		"metadata":       session.Params.Metadata,
	}
	if session.IntentID != "" {
		object["payment_intent"] = session.IntentID
		object["status"] = "complete"
	}
	if eventType == "checkout.session.expired" || session.Expired {
		object["status"] = "expired"
	}
	return json.Marshal(map[string]any{
		"id":          eventID,
		"object":      "event",
		"api_version": "2023-10-16",
		"type":        eventType,
		"created":     created.Unix(),
		"livemode":    false,
		"data":        map[string]any{"object": object},
	})
}

func (s *Sandbox) CreateCustomer(_ context.Context, in ports.CreateCustomerParams) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enterLocked(OpCreateCustomer); err != nil {
		return "", err
	}
	if err := checkIdempotencyKey(in.IdempotencyKey); err != nil {
		return "", err
	}
	if prior, ok := s.keys[in.IdempotencyKey].(string); ok && in.IdempotencyKey != "" {
		return prior, nil
	}
	id := s.nextIDLocked("cus")
	s.customers[id] = in.MerchantID
	s.remember(in.IdempotencyKey, id)
	return id, nil
}

func (s *Sandbox) CreateCheckoutSession(_ context.Context, in ports.CheckoutSessionParams) (ports.CheckoutSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enterLocked(OpCreateCheckout); err != nil {
		return ports.CheckoutSession{}, err
	}
	if err := checkIdempotencyKey(in.IdempotencyKey); err != nil {
		return ports.CheckoutSession{}, err
	}
	if prior, ok := s.keys[in.IdempotencyKey].(ports.CheckoutSession); ok && in.IdempotencyKey != "" {
		return prior, nil
	}
	if in.DestinationAccount != "" {
		if _, ok := s.accounts[in.DestinationAccount]; !ok {
			return ports.CheckoutSession{}, domain.ErrProcessorRecordAbsent
		}
	}
	id := s.nextIDLocked("cs")
	params := in
	params.Metadata = copyMeta(in.Metadata)
	s.sessions[id] = SandboxSession{ID: id, Params: params}
	out := ports.CheckoutSession{
		ID:        id,
		URL:       "https://checkout.sandbox.invalid/pay/" + id,
		ExpiresAt: in.ExpiresAt,
	}
	s.remember(in.IdempotencyKey, out)
	return out, nil
}

func (s *Sandbox) ExpireCheckoutSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enterLocked(OpExpireCheckout); err != nil {
		return err
	}
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.ErrProcessorRecordAbsent
	}
	if session.IntentID != "" {
		return fmt.Errorf("%w: checkout session %s is complete", domain.ErrProcessor, sessionID)
	}
	session.Expired = true
	s.sessions[sessionID] = session
	return nil
}

func (s *Sandbox) GetPaymentIntent(_ context.Context, intentID string) (ports.PaymentIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enterLocked(OpGetIntent); err != nil {
		return ports.PaymentIntent{}, err
	}
	intent, ok := s.intents[intentID]
	if !ok {
		return ports.PaymentIntent{}, domain.ErrProcessorRecordAbsent
	}
	return intent, nil
}

func (s *Sandbox) CapturePaymentIntent(_ context.Context, intentID, idempotencyKey string) (ports.PaymentIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enterLocked(OpCaptureIntent); err != nil {
		return ports.PaymentIntent{}, err
	}
	if err := checkIdempotencyKey(idempotencyKey); err != nil {
		return ports.PaymentIntent{}, err
	}
	if prior, ok := s.keys[idempotencyKey].(ports.PaymentIntent); ok && idempotencyKey != "" {
		return prior, nil
	}
	intent, ok := s.intents[intentID]
	if !ok {
		return ports.PaymentIntent{}, domain.ErrProcessorRecordAbsent
	}
	if intent.Status != ports.IntentRequiresCapture {
		return ports.PaymentIntent{}, fmt.Errorf("%w: payment intent is %s", domain.ErrProcessor, intent.Status)
	}
	intent.Status = ports.IntentSucceeded
	intent.AmountReceivedMinor = intent.AmountCapturableMinor
	intent.AmountCapturableMinor = 0
	intent.TransferRef = s.nextIDLocked("tr")
	s.intents[intentID] = intent
	s.remember(idempotencyKey, intent)
	return intent, nil
}

func (s *Sandbox) CancelPaymentIntent(_ context.Context, intentID, _ string, idempotencyKey string) (ports.PaymentIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enterLocked(OpCancelIntent); err != nil {
		return ports.PaymentIntent{}, err
	}
	if err := checkIdempotencyKey(idempotencyKey); err != nil {
		return ports.PaymentIntent{}, err
	}
	if prior, ok := s.keys[idempotencyKey].(ports.PaymentIntent); ok && idempotencyKey != "" {
		return prior, nil
	}
	intent, ok := s.intents[intentID]
	if !ok {
		return ports.PaymentIntent{}, domain.ErrProcessorRecordAbsent
	}
	if intent.Status == ports.IntentSucceeded || intent.Status == ports.IntentCanceled {
		return ports.PaymentIntent{}, fmt.Errorf("%w: payment intent is %s", domain.ErrProcessor, intent.Status)
	}
	intent.Status = ports.IntentCanceled
	intent.AmountCapturableMinor = 0
	s.intents[intentID] = intent
	s.remember(idempotencyKey, intent)
	return intent, nil
}

func (s *Sandbox) GetConnectedAccount(_ context.Context, accountID string) (ports.ConnectedAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enterLocked(OpGetAccount); err != nil {
		return ports.ConnectedAccount{}, err
	}
	account, ok := s.accounts[accountID]
	if !ok {
		return ports.ConnectedAccount{}, domain.ErrProcessorRecordAbsent
	}
	return account, nil
}

func (s *Sandbox) CreatePayout(_ context.Context, in ports.PayoutParams) (ports.ProcessorPayout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enterLocked(OpCreatePayout); err != nil {
		return ports.ProcessorPayout{}, err
	}
	if err := checkIdempotencyKey(in.IdempotencyKey); err != nil {
		return ports.ProcessorPayout{}, err
	}
	if prior, ok := s.keys[in.IdempotencyKey].(ports.ProcessorPayout); ok && in.IdempotencyKey != "" {
		return prior, nil
	}
	account, ok := s.accounts[in.ConnectedAccountID]
	if !ok {
		return ports.ProcessorPayout{}, domain.ErrProcessorRecordAbsent
	}
	if !account.CanReceivePayouts() {
		return ports.ProcessorPayout{}, fmt.Errorf("%w: payouts disabled on %s", domain.ErrProcessor, account.ID)
	}
	payout := ports.ProcessorPayout{
		ID:          s.nextIDLocked("po"),
		Status:      "pending",
		ArrivalDate: time.Now().UTC().Add(48 * time.Hour),
	}
	s.payouts = append(s.payouts, payout)
	s.remember(in.IdempotencyKey, payout)
	return payout, nil
}

func (s *Sandbox) enterLocked(op string) error {
	s.calls[op]++
	if err, ok := s.failures[op]; ok {
		delete(s.failures, op)
		return err
	}
	return nil
}

// checkIdempotencyKey applies the processor's key length limit.
func checkIdempotencyKey(key string) error {
	if len(key) > maxIdempotencyKeyLen {
		return fmt.Errorf("%w: idempotency key longer than %d characters", domain.ErrProcessor, maxIdempotencyKeyLen)
	}
	return nil
}

func (s *Sandbox) remember(key string, value any) {
	if key != "" {
		s.keys[key] = value
	}
}

func (s *Sandbox) nextIDLocked(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s_sbx_%06d", prefix, s.seq)
}

func copyMeta(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
