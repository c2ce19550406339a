package payment

import (
	"context"
	"net/http"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/refund"

	"github.com/uwcs/warwickgg/internal/service"
)

// DefaultBaseURL is the processor's public API root.
const DefaultBaseURL = stripe.APIURL

// Client talks to the processor's checkout and refund endpoints.  Each
// request carries an idempotency key derived from the operation, so a
// retried refund or checkout for the same ticket is applied at most once.
type Client struct {
	Currency   string
	SuccessURL string
	CancelURL  string

	sessions session.Client
	refunds  refund.Client
}

// NewClient returns a Client with a bounded HTTP timeout.  The backend
// retries transient failures with the same idempotency key.
func NewClient(baseURL, secretKey, successURL, cancelURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(strings.TrimRight(baseURL, "/")),
		HTTPClient:        &http.Client{Timeout: 15 * time.Second},
		MaxNetworkRetries: stripe.Int64(2),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
	})
	return &Client{
		Currency:   "gbp",
		SuccessURL: successURL,
		CancelURL:  cancelURL,
		sessions:   session.Client{B: backend, Key: secretKey},
		refunds:    refund.Client{B: backend, Key: secretKey},
	}
}

// RefundKey is the idempotency key sent with a refund of chargeID.
func RefundKey(chargeID string) string { return "refund-" + chargeID }

// CreateCheckout opens a hosted checkout session for a single ticket.
// The signed reference is attached as the client reference so that the
// completion webhook can be tied back to the ticket.
func (c *Client) CreateCheckout(ctx context.Context, req service.CheckoutRequest) (service.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(req.Reference),
		SuccessURL:        stripe.String(c.SuccessURL),
		CancelURL:         stripe.String(c.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(c.Currency),
				UnitAmount: stripe.Int64(req.AmountPence),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(req.Description),
				},
			},
		}},
	}
	if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}
	params.AddMetadata("reference", req.Reference)
	params.Context = ctx
	key := req.IdempotencyKey
	if key == "" {
		key = "checkout-" + req.Reference
	}
	params.SetIdempotencyKey(key)

	s, err := c.sessions.New(params)
	if err != nil {
		return service.CheckoutSession{}, err
	}
	return service.CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

// Refund refunds the whole of a charge.  chargeID may name either a
// payment intent or a charge.
func (c *Client) Refund(ctx context.Context, chargeID string) error {
	params := &stripe.RefundParams{}
	if strings.HasPrefix(chargeID, "pi_") {
		params.PaymentIntent = stripe.String(chargeID)
	} else {
		params.Charge = stripe.String(chargeID)
	}
	params.Context = ctx
	params.SetIdempotencyKey(RefundKey(chargeID))
	_, err := c.refunds.New(params)
	return err
}
