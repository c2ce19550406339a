package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/uwcs/warwickgg/internal/config"
	"github.com/uwcs/warwickgg/internal/database"
	"github.com/uwcs/warwickgg/internal/membership"
	"github.com/uwcs/warwickgg/internal/payment"
	"github.com/uwcs/warwickgg/internal/queue"
	"github.com/uwcs/warwickgg/internal/repository"
	"github.com/uwcs/warwickgg/internal/service"
	"github.com/uwcs/warwickgg/internal/worker"
)

func workerCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run refund retries and the domain event audit log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := g.setup()
			if err != nil {
				return err
			}
			return runWorker(cmd.Context(), cfg, log)
		},
	}
}

func runWorker(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(dbOptions(cfg))
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer db.Close()

	redisOpt := config.LoadRedisConfig().AsynqOpt()
	tasks := asynq.NewClient(redisOpt)
	defer tasks.Close()

	signups := service.NewSignupService(service.SignupDeps{
		Store:           repository.NewStore(db),
		Membership:      membership.NewClient(cfg.MembershipAPIBase, cfg.MembershipKeys),
		Gateway:         payment.NewClient(cfg.PaymentAPIBase, cfg.PaymentSecretKey, cfg.CheckoutSuccessURL, cfg.CheckoutCancelURL),
		References:      payment.NewReferenceCodec(cfg.ReferenceSecret),
		Refunds:         worker.NewRefundScheduler(tasks, log),
		Log:             log.With(slog.String("component", "signups")),
		ExternalTimeout: cfg.ExternalTimeout,
	})

	grp, ctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		return worker.Run(ctx, redisOpt, cfg.WorkerConcurrency, &worker.Handlers{
			Refunds: signups,
			Log:     log.With(slog.String("component", "worker")),
		})
	})
	if cfg.RabbitURL != "" {
		audit := &queue.AuditConsumer{URL: cfg.RabbitURL, Dir: cfg.AuditLogDir, Log: log.With(slog.String("component", "audit"))}
		grp.Go(func() error { return audit.Run(ctx) })
	} else {
		log.Info("RABBITMQ_URL unset; audit consumer disabled")
	}
	return grp.Wait()
}
