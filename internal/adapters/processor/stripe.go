package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/b2aeddine/collabmarket-56-sub000/internal/domain"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/ports"
)

type StripeConfig struct {
	SecretKey string
	// APIURL overrides the Stripe endpoint, e.g. for stripe-mock.
	APIURL  string
	Timeout time.Duration
}

// StripeProcessor implements ports.PaymentProcessor on the Stripe API.
type StripeProcessor struct {
	api    *client.API
	logger *slog.Logger
}

func NewStripeProcessor(cfg StripeConfig, logger *slog.Logger) (*StripeProcessor, error) {
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("stripe secret key is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	backendConfig := &stripe.BackendConfig{
		HTTPClient:    &http.Client{Timeout: cfg.Timeout},
		LeveledLogger: &stripe.LeveledLogger{Level: stripe.LevelError},
	}
	if cfg.APIURL != "" {
		backendConfig.URL = stripe.String(cfg.APIURL)
	}
	api := &client.API{}
	api.Init(cfg.SecretKey, &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendConfig),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendConfig),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendConfig),
	})
	return &StripeProcessor{api: api, logger: logger}, nil
}

func (p *StripeProcessor) CreateCustomer(ctx context.Context, in ports.CreateCustomerParams) (string, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	if in.Email != "" {
		params.Email = stripe.String(in.Email)
	}
	params.AddMetadata("merchant_id", in.MerchantID)
	if in.IdempotencyKey != "" {
		params.SetIdempotencyKey(in.IdempotencyKey)
	}
	customer, err := p.api.Customers.New(params)
	if err != nil {
		return "", p.translate("create_customer", err)
	}
	return customer.ID, nil
}

// CreateCheckoutSession opens a hosted payment page whose intent is
// authorized only. The platform fee and destination are fixed here so the
// eventual capture splits the funds without a separate transfer.
func (p *StripeProcessor) CreateCheckoutSession(ctx context.Context, in ports.CheckoutSessionParams) (ports.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(in.SuccessURL),
		CancelURL:  stripe.String(in.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(in.Currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(in.Title),
					},
					UnitAmount: stripe.Int64(in.AmountMinor),
				},
				Quantity: stripe.Int64(1),
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			CaptureMethod:        stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
			ApplicationFeeAmount: stripe.Int64(in.PlatformFeeMinor),
			TransferData: &stripe.CheckoutSessionPaymentIntentDataTransferDataParams{
				Destination: stripe.String(in.DestinationAccount),
			},
			Metadata: in.Metadata,
		},
	}
	params.Context = ctx
	if in.CustomerID != "" {
		params.Customer = stripe.String(in.CustomerID)
	}
	if !in.ExpiresAt.IsZero() {
		params.ExpiresAt = stripe.Int64(in.ExpiresAt.Unix())
	}
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}
	if in.IdempotencyKey != "" {
		params.SetIdempotencyKey(in.IdempotencyKey)
	}
	session, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return ports.CheckoutSession{}, p.translate("create_checkout_session", err)
	}
	out := ports.CheckoutSession{ID: session.ID, URL: session.URL}
	if session.ExpiresAt > 0 {
		out.ExpiresAt = time.Unix(session.ExpiresAt, 0).UTC()
	}
	return out, nil
}

func (p *StripeProcessor) ExpireCheckoutSession(ctx context.Context, sessionID string) error {
	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx
	if _, err := p.api.CheckoutSessions.Expire(sessionID, params); err != nil {
		return p.translate("expire_checkout_session", err)
	}
	return nil
}

func (p *StripeProcessor) GetPaymentIntent(ctx context.Context, intentID string) (ports.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	params.AddExpand("latest_charge")
	intent, err := p.api.PaymentIntents.Get(intentID, params)
	if err != nil {
		return ports.PaymentIntent{}, p.translate("get_payment_intent", err)
	}
	return toPaymentIntent(intent), nil
}

func (p *StripeProcessor) CapturePaymentIntent(ctx context.Context, intentID, idempotencyKey string) (ports.PaymentIntent, error) {
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	params.AddExpand("latest_charge")
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}
	intent, err := p.api.PaymentIntents.Capture(intentID, params)
	if err != nil {
		return ports.PaymentIntent{}, p.translate("capture_payment_intent", err)
	}
	return toPaymentIntent(intent), nil
}

func (p *StripeProcessor) CancelPaymentIntent(ctx context.Context, intentID, reason, idempotencyKey string) (ports.PaymentIntent, error) {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	if reason != "" {
		params.CancellationReason = stripe.String(reason)
	}
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}
	intent, err := p.api.PaymentIntents.Cancel(intentID, params)
	if err != nil {
		return ports.PaymentIntent{}, p.translate("cancel_payment_intent", err)
	}
	return toPaymentIntent(intent), nil
}

func (p *StripeProcessor) GetConnectedAccount(ctx context.Context, accountID string) (ports.ConnectedAccount, error) {
	params := &stripe.AccountParams{}
	params.Context = ctx
	account, err := p.api.Accounts.GetByID(accountID, params)
	if err != nil {
		return ports.ConnectedAccount{}, p.translate("get_connected_account", err)
	}
	hasExternal := account.ExternalAccounts != nil && len(account.ExternalAccounts.Data) > 0
	return ports.ConnectedAccount{
		ID:                 account.ID,
		PayoutsEnabled:     account.PayoutsEnabled,
		ChargesEnabled:     account.ChargesEnabled,
		HasExternalAccount: hasExternal,
	}, nil
}

func (p *StripeProcessor) CreatePayout(ctx context.Context, in ports.PayoutParams) (ports.ProcessorPayout, error) {
	params := &stripe.PayoutParams{
		Amount:   stripe.Int64(in.AmountMinor),
		Currency: stripe.String(in.Currency),
	}
	params.Context = ctx
	params.SetStripeAccount(in.ConnectedAccountID)
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}
	if in.IdempotencyKey != "" {
		params.SetIdempotencyKey(in.IdempotencyKey)
	}
	payout, err := p.api.Payouts.New(params)
	if err != nil {
		return ports.ProcessorPayout{}, p.translate("create_payout", err)
	}
	out := ports.ProcessorPayout{ID: payout.ID, Status: string(payout.Status)}
	if payout.ArrivalDate > 0 {
		out.ArrivalDate = time.Unix(payout.ArrivalDate, 0).UTC()
	}
	return out, nil
}

func toPaymentIntent(intent *stripe.PaymentIntent) ports.PaymentIntent {
	out := ports.PaymentIntent{
		ID:                    intent.ID,
		Status:                string(intent.Status),
		AmountMinor:           intent.Amount,
		AmountCapturableMinor: intent.AmountCapturable,
		AmountReceivedMinor:   intent.AmountReceived,
		Currency:              string(intent.Currency),
		Metadata:              intent.Metadata,
	}
	if charge := intent.LatestCharge; charge != nil && charge.Transfer != nil {
		out.TransferRef = charge.Transfer.ID
	}
	return out
}

// translate maps Stripe failures onto domain errors. The raw message is
// logged here and never returned to callers verbatim.
func (p *StripeProcessor) translate(operation string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		p.logger.Warn("stripe request failed",
			"module", "processor.stripe",
			"layer", "adapter",
			"operation", operation,
			"outcome", "failure",
			"http_status", stripeErr.HTTPStatusCode,
			"stripe_code", string(stripeErr.Code),
			"stripe_request_id", stripeErr.RequestID,
			"error", stripeErr.Msg,
		)
		if stripeErr.HTTPStatusCode == http.StatusNotFound || stripeErr.Code == stripe.ErrorCodeResourceMissing {
			return domain.ErrProcessorRecordAbsent
		}
		return fmt.Errorf("%w: %s failed with %s", domain.ErrProcessor, operation, stripeErr.Code)
	}
	p.logger.Warn("stripe request failed",
		"module", "processor.stripe",
		"layer", "adapter",
		"operation", operation,
		"outcome", "failure",
		"error", err,
	)
	return fmt.Errorf("%w: %s: %v", domain.ErrProcessor, operation, err)
}
