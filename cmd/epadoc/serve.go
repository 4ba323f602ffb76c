package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gofhir/epadoc/builder"
	"github.com/gofhir/epadoc/engine"
	"github.com/gofhir/epadoc/internal/config"
	"github.com/gofhir/epadoc/internal/server"
	"github.com/gofhir/epadoc/pkg/logger"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			envFile, _ := cmd.Flags().GetString("env-file")
			return runServer(envFile)
		},
	}
}

func runServer(envFile string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	l := cfg.Logger()
	logger.SetDefault(l)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := engine.New(ctx, cfg.EngineOptions(l)...)
	if err != nil {
		return err
	}

	srv := server.New(server.Config{
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	}, eng, builder.New(), l)

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Start(cfg.Addr())
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	if err := srv.Shutdown(context.Background(), 10*time.Second); err != nil {
		l.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	l.Info().Msg("server stopped")
	return nil
}
