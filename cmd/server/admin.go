package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/uwcs/warwickgg/internal/catalog"
	"github.com/uwcs/warwickgg/internal/config"
	"github.com/uwcs/warwickgg/internal/database"
	"github.com/uwcs/warwickgg/internal/middleware"
	"github.com/uwcs/warwickgg/internal/repository"
)

func migrateCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := g.setup()
			if err != nil {
				return err
			}
			db, err := database.Open(dbOptions(cfg))
			if err != nil {
				return fmt.Errorf("db connect: %w", err)
			}
			defer db.Close()
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()
			return database.Migrate(ctx, db, log)
		},
	}
}

func seedCmd(g *globals) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Upsert rooms, events and tournaments from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := g.setup()
			if err != nil {
				return err
			}
			if file == "" {
				file = cfg.SeedFile
			}
			f, err := catalog.LoadFile(file)
			if err != nil {
				return err
			}
			db, err := database.Open(dbOptions(cfg))
			if err != nil {
				return fmt.Errorf("db connect: %w", err)
			}
			defer db.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			if err := catalog.Seed(ctx, repository.NewStore(db), f, log); err != nil {
				return err
			}

			rdb := config.NewRedisClient(config.LoadRedisConfig())
			if rdb == nil {
				return nil
			}
			defer rdb.Close()
			if err := middleware.NewResponseCache(config.LoadCacheConfig(), rdb, log).Invalidate(ctx); err != nil {
				log.Warn("cache invalidate failed", slog.Any("error", err))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "seed file (defaults to SEED_FILE)")
	return cmd
}

func promoteCmd(g *globals) *cobra.Command {
	var revoke bool
	cmd := &cobra.Command{
		Use:   "promote <user-id>",
		Short: "Grant or revoke exec membership",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user id %q", args[0])
			}
			cfg, log, err := g.setup()
			if err != nil {
				return err
			}
			db, err := database.Open(dbOptions(cfg))
			if err != nil {
				return fmt.Errorf("db connect: %w", err)
			}
			defer db.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			if err := repository.NewStore(db).SetExec(ctx, id, !revoke); err != nil {
				return err
			}
			log.Info("exec updated", slog.Uint64("user_id", id), slog.Bool("exec", !revoke))
			return nil
		},
	}
	cmd.Flags().BoolVar(&revoke, "revoke", false, "remove exec instead of granting it")
	return cmd
}
