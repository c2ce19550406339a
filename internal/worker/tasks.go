// Package worker runs background jobs on asynq: refund retries that could
// not be completed inline.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TypeRefundRetry = "refund:retry"

	queueCritical = "critical"
	queueDefault  = "default"
)

// RefundRetryPayload identifies the ticket whose refund failed.
type RefundRetryPayload struct {
	TicketID uint64 `json:"ticket_id"`
}

// NewRefundRetryTask builds the task enqueued after a failed refund.
func NewRefundRetryTask(ticketID uint64) (*asynq.Task, error) {
	payload, err := json.Marshal(RefundRetryPayload{TicketID: ticketID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeRefundRetry, payload), nil
}

// enqueuer is the part of *asynq.Client the scheduler uses.
type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// RefundScheduler enqueues refund retries.  The first attempt waits a
// minute; asynq backs off exponentially after that.  A ticket holds at
// most one retry per uniqueFor window, so an exhausted retry left in the
// archive does not block a later one.
type RefundScheduler struct {
	client    enqueuer
	delay     time.Duration
	maxRetry  int
	uniqueFor time.Duration
	log       *slog.Logger
}

func NewRefundScheduler(client *asynq.Client, log *slog.Logger) *RefundScheduler {
	if log == nil {
		log = slog.Default()
	}
	return &RefundScheduler{client: client, delay: time.Minute, maxRetry: 12, uniqueFor: 24 * time.Hour, log: log}
}

// ScheduleRefundRetry enqueues a retry for ticketID.  A duplicate inside
// the uniqueness window is logged and not treated as an error.
func (s *RefundScheduler) ScheduleRefundRetry(ctx context.Context, ticketID uint64) error {
	task, err := NewRefundRetryTask(ticketID)
	if err != nil {
		return err
	}
	_, err = s.client.EnqueueContext(ctx, task,
		asynq.Queue(queueCritical),
		asynq.ProcessIn(s.delay),
		asynq.MaxRetry(s.maxRetry),
		asynq.Unique(s.uniqueFor),
	)
	if errors.Is(err, asynq.ErrDuplicateTask) || errors.Is(err, asynq.ErrTaskIDConflict) {
		s.logger().Warn("refund retry already queued", slog.Uint64("ticket_id", ticketID), slog.Any("error", err))
		return nil
	}
	return err
}

func (s *RefundScheduler) logger() *slog.Logger {
	if s.log == nil {
		return slog.Default()
	}
	return s.log
}
