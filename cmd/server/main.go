// Command server runs the warwick.gg backend: the HTTP API, the
// background worker and the admin tasks that share its configuration.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/uwcs/warwickgg/internal/config"
	"github.com/uwcs/warwickgg/internal/database"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type globals struct {
	envFile  string
	logLevel string
}

func rootCmd() *cobra.Command {
	g := &globals{}
	cmd := &cobra.Command{
		Use:           "warwickgg",
		Short:         "warwick.gg event signups, tickets and seating",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&g.envFile, "env-file", ".env", "dotenv file read before the environment")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		serveCmd(g),
		workerCmd(g),
		migrateCmd(g),
		seedCmd(g),
		promoteCmd(g),
	)
	return cmd
}

// setup loads configuration and installs the JSON logger.
func (g *globals) setup() (config.Config, *slog.Logger, error) {
	level := slog.LevelInfo
	switch strings.ToLower(g.logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	if err := config.LoadDotenv(g.envFile); err != nil {
		return config.Config{}, nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, log.With(slog.String("env", cfg.Env)), nil
}

func dbOptions(cfg config.Config) database.Options {
	return database.Options{
		User: cfg.DBUser,
		Pass: cfg.DBPass,
		Host: cfg.DBHost,
		Port: cfg.DBPort,
		Name: cfg.DBName,
	}
}
