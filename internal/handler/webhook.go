package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/uwcs/warwickgg/internal/metrics"
	"github.com/uwcs/warwickgg/internal/model"
	"github.com/uwcs/warwickgg/internal/payment"
	"github.com/uwcs/warwickgg/internal/service"
)

const maxWebhookBody = 64 << 10

// PaymentEvents reconciles payment processor notifications.
type PaymentEvents interface {
	OnPaymentCompleted(ctx context.Context, reference, chargeID string, paid bool) (*model.EventSignup, error)
	OnChargeSucceeded(ctx context.Context, chargeID string) error
	OnChargeRefunded(ctx context.Context, chargeID string) error
}

// WebhookHandler receives signed payment processor callbacks.  A 2xx
// tells the processor to stop redelivering, so only outcomes that a retry
// cannot change are acknowledged.
type WebhookHandler struct {
	Payments  PaymentEvents
	Secret    string
	Tolerance time.Duration
	Cache     CacheInvalidator // optional
	Log       *slog.Logger
}

func NewWebhookHandler(p PaymentEvents, secret string, tolerance time.Duration, cache CacheInvalidator, log *slog.Logger) *WebhookHandler {
	if tolerance <= 0 {
		tolerance = payment.DefaultTolerance
	}
	if log == nil {
		log = slog.Default()
	}
	return &WebhookHandler{Payments: p, Secret: secret, Tolerance: tolerance, Cache: cache, Log: log}
}

// Payment handles POST /v1/webhooks/payment.
func (h *WebhookHandler) Payment(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody+1))
	if err != nil || len(body) > maxWebhookBody {
		metrics.WebhookEvents.WithLabelValues("unknown", "bad_request").Inc()
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unreadable body"})
	}
	ev, err := payment.ConstructEvent(body, c.Request().Header.Get(payment.SignatureHeader), h.Secret, h.Tolerance)
	switch {
	case errors.Is(err, payment.ErrBadSignature):
		h.Log.Warn("webhook signature rejected", slog.Any("error", err))
		metrics.WebhookEvents.WithLabelValues("unknown", "bad_signature").Inc()
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid signature"})
	case errors.Is(err, payment.ErrUnsupportedEvent):
		metrics.WebhookEvents.WithLabelValues("unsupported", "ignored").Inc()
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unsupported event type"})
	case err != nil:
		metrics.WebhookEvents.WithLabelValues("unknown", "bad_request").Inc()
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "malformed event"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), writeTimeout)
	defer cancel()

	switch ev.Type {
	case payment.CheckoutCompleted:
		_, err = h.Payments.OnPaymentCompleted(ctx, ev.Reference, ev.ChargeID, ev.Paid)
	case payment.ChargeSucceeded:
		err = h.Payments.OnChargeSucceeded(ctx, ev.ChargeID)
	case payment.ChargeRefunded:
		err = h.Payments.OnChargeRefunded(ctx, ev.ChargeID)
	}

	status, outcome := webhookOutcome(err)
	metrics.WebhookEvents.WithLabelValues(string(ev.Type), outcome).Inc()
	log := h.Log.With(slog.String("event_id", ev.ID), slog.String("type", string(ev.Type)), slog.String("outcome", outcome))
	if status >= http.StatusInternalServerError {
		log.Error("webhook processing failed", slog.Any("error", err))
		return c.JSON(status, echo.Map{"error": "processing failed"})
	}
	log.Info("webhook processed")
	if h.Cache != nil && outcome == "processed" {
		if err := h.Cache.Invalidate(ctx); err != nil {
			h.Log.Warn("cache invalidate failed", slog.Any("error", err))
		}
	}
	if status != http.StatusOK {
		return c.JSON(status, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, echo.Map{"received": true})
}

// webhookOutcome decides whether the processor should redeliver.
// Eligibility failures have already been refunded and a refunded ticket
// stays refunded, so both are acknowledged.
func webhookOutcome(err error) (int, string) {
	if err == nil {
		return http.StatusOK, "processed"
	}
	if errors.Is(err, service.ErrTicketRefunded) {
		return http.StatusOK, "already_refunded"
	}
	switch service.KindOf(err) {
	case service.KindEligibility:
		return http.StatusOK, "refused"
	case service.KindValidation:
		return http.StatusBadRequest, "invalid"
	case service.KindReconciliation:
		return http.StatusInternalServerError, "unreconciled"
	}
	return http.StatusInternalServerError, "error"
}
