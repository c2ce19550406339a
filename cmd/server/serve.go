package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	echoMw "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"

	"github.com/uwcs/warwickgg/internal/config"
	"github.com/uwcs/warwickgg/internal/database"
	"github.com/uwcs/warwickgg/internal/handler"
	"github.com/uwcs/warwickgg/internal/membership"
	"github.com/uwcs/warwickgg/internal/middleware"
	"github.com/uwcs/warwickgg/internal/payment"
	"github.com/uwcs/warwickgg/internal/queue"
	"github.com/uwcs/warwickgg/internal/repository"
	"github.com/uwcs/warwickgg/internal/router"
	"github.com/uwcs/warwickgg/internal/service"
	"github.com/uwcs/warwickgg/internal/worker"
)

func serveCmd(g *globals) *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := g.setup()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, log, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before serving")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, log *slog.Logger, migrate bool) error {
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
	if migrate {
		if err := database.Migrate(ctx, db, log); err != nil {
			return err
		}
	}

	redisCfg := config.LoadRedisConfig()
	rdb := config.NewRedisClient(redisCfg)
	if rdb == nil {
		log.Warn("redis unavailable; rate limiting and response cache disabled", slog.String("addr", redisCfg.Addr))
	} else {
		defer rdb.Close()
	}

	var events *queue.Publisher
	if cfg.RabbitURL != "" {
		events, err = queue.NewPublisher(cfg.RabbitURL, log)
		if err != nil {
			log.Warn("rabbitmq unavailable; domain events dropped", slog.Any("error", err))
			events = nil
		} else {
			defer events.Close()
		}
	}

	tasks := asynq.NewClient(redisCfg.AsynqOpt())
	defer tasks.Close()

	store := repository.NewStore(db)
	tokens := repository.NewTokenRepo(db)
	authority := service.ProfileAuthority{Store: store}

	signups := service.NewSignupService(service.SignupDeps{
		Store:           store,
		Membership:      membership.NewClient(cfg.MembershipAPIBase, cfg.MembershipKeys),
		Gateway:         payment.NewClient(cfg.PaymentAPIBase, cfg.PaymentSecretKey, cfg.CheckoutSuccessURL, cfg.CheckoutCancelURL),
		References:      payment.NewReferenceCodec(cfg.ReferenceSecret),
		Refunds:         worker.NewRefundScheduler(tasks, log),
		Events:          events,
		Log:             log.With(slog.String("component", "signups")),
		ExternalTimeout: cfg.ExternalTimeout,
	})
	seating := service.NewSeatingService(service.SeatingDeps{
		Store:     store,
		Authority: authority,
		Events:    events,
		Log:       log.With(slog.String("component", "seating")),
	})
	signups.SetSeatReleaser(seating)
	catalog := service.NewCatalogService(store, nil)

	cache := middleware.NewResponseCache(config.LoadCacheConfig(), rdb, log)
	rl := config.LoadRateLimitConfig()
	limit := middleware.NewTokenBucket(rl, rdb, log, "", 0)
	writeLimit := middleware.NewTokenBucket(rl, rdb, log, "signup", rl.SignupCapacity)

	eventH := handler.NewEventHandler(catalog, signups, cache, log)
	tournamentH := handler.NewTournamentHandler(eventH)
	seatingH := handler.NewSeatingHandler(seating)

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = middleware.ErrorHandler(log)
	e.Use(echoMw.Recover())
	e.Use(echoMw.RequestID())
	e.Use(middleware.RequestLogger(log))

	router.RegisterRoutes(e, handler.NewHealthHandler(db))
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, store, tokens), cfg.JWTSecret, limit)
	router.RegisterPublic(e, eventH, tournamentH, seatingH, cache)
	router.RegisterMember(e, eventH, tournamentH, seatingH, cfg.JWTSecret, writeLimit)
	router.RegisterExec(e, seatingH, cfg.JWTSecret, authority, log)
	router.RegisterWebhooks(e, handler.NewWebhookHandler(signups, cfg.PaymentWebhookSecret, cfg.WebhookTolerance, cache, log))

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		log.Info("listening", slog.String("addr", addr))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info("shutting down")
	return e.Shutdown(shutdownCtx)
}
