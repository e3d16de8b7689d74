package processor

import (
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/b2aeddine/collabmarket-56-sub000/internal/domain"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/ports"
)

// WebhookVerifier checks the Stripe-Signature header against the endpoint
// secret, including the timestamp tolerance.
type WebhookVerifier struct {
	secret string
}

func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{secret: secret}
}

func (v *WebhookVerifier) Verify(payload []byte, signatureHeader string) (ports.ProcessorEvent, error) {
	if v.secret == "" {
		return ports.ProcessorEvent{}, fmt.Errorf("%w: webhook secret not configured", domain.ErrSignatureInvalid)
	}
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return ports.ProcessorEvent{}, fmt.Errorf("%w: %v", domain.ErrSignatureInvalid, err)
	}
	out := ports.ProcessorEvent{
		ID:      event.ID,
		Type:    string(event.Type),
		Created: time.Unix(event.Created, 0).UTC(),
	}
	if event.Data != nil {
		out.Object = event.Data.Raw
	}
	return out, nil
}
