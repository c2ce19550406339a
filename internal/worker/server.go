package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/uwcs/warwickgg/internal/service"
)

// RefundRetrier re-attempts a refund.  *service.SignupService satisfies it.
type RefundRetrier interface {
	RetryRefund(ctx context.Context, ticketID uint64) error
}

// Handlers processes worker tasks.
type Handlers struct {
	Refunds RefundRetrier
	Log     *slog.Logger
}

// HandleRefundRetry retries a refund.  A ticket that no longer exists is
// not retried; any other failure is returned so asynq retries later.
func (h *Handlers) HandleRefundRetry(ctx context.Context, t *asynq.Task) error {
	var p RefundRetryPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("refund retry payload: %v: %w", err, asynq.SkipRetry)
	}
	err := h.Refunds.RetryRefund(ctx, p.TicketID)
	if err == nil {
		h.Log.Info("refund retry succeeded", slog.Uint64("ticket_id", p.TicketID))
		return nil
	}
	if errors.Is(err, service.ErrNotFound) {
		h.Log.Error("refund retry for missing ticket", slog.Uint64("ticket_id", p.TicketID))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	h.Log.Warn("refund retry failed", slog.Uint64("ticket_id", p.TicketID), slog.Any("error", err))
	return err
}

// Mux routes task types to handlers.
func (h *Handlers) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeRefundRetry, h.HandleRefundRetry)
	return mux
}

// Run starts the asynq server and blocks until ctx is cancelled.
func Run(ctx context.Context, redisOpt asynq.RedisClientOpt, concurrency int, h *Handlers) error {
	if h.Log == nil {
		h.Log = slog.Default()
	}
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueCritical: 6,
			queueDefault:  3,
		},
		Logger: newLogger(h.Log),
	})
	if err := srv.Start(h.Mux()); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	h.Log.Info("worker started", slog.Int("concurrency", concurrency))
	<-ctx.Done()
	srv.Shutdown()
	return nil
}

// slogAdapter lets asynq log through slog.
type slogAdapter struct{ l *slog.Logger }

func newLogger(l *slog.Logger) asynq.Logger { return slogAdapter{l: l.With(slog.String("component", "asynq"))} }

func (a slogAdapter) Debug(args ...any) { a.l.Debug(fmt.Sprint(args...)) }
func (a slogAdapter) Info(args ...any)  { a.l.Info(fmt.Sprint(args...)) }
func (a slogAdapter) Warn(args ...any)  { a.l.Warn(fmt.Sprint(args...)) }
func (a slogAdapter) Error(args ...any) { a.l.Error(fmt.Sprint(args...)) }
func (a slogAdapter) Fatal(args ...any) { a.l.Error(fmt.Sprint(args...)) }
