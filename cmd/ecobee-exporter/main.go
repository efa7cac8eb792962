package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/ecobee-exporter/internal/auth"
	"codeberg.org/mutker/ecobee-exporter/internal/collector"
	"codeberg.org/mutker/ecobee-exporter/internal/config"
	"codeberg.org/mutker/ecobee-exporter/internal/credentials"
	"codeberg.org/mutker/ecobee-exporter/internal/ecobee"
	"codeberg.org/mutker/ecobee-exporter/internal/errors"
	"codeberg.org/mutker/ecobee-exporter/internal/logger"
	"codeberg.org/mutker/ecobee-exporter/internal/pid"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/pflag"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		fmt.Printf("Usage: ecobee-exporter [flags] [serve|authorize]\n\n%s", config.Usage())
		os.Exit(0)
	}
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	level, err := logger.ParseLevel(cfg.EffectiveLogLevel())
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(level, logger.IsService())
	logger.Debug().
		Str("command", string(cfg.Command)).
		Str("address", cfg.Address()).
		Str("store", cfg.StorePath).
		Str("api_key", logger.Redact(cfg.APIKey)).
		Msg("Config loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	if err := run(ctx, cfg); err != nil {
		var appErr errors.Error
		if errors.As(err, &appErr) {
			logger.ErrorWithCode(appErr).Msg("Exiting with error")
		} else {
			logger.Error().Err(err).Msg("Exiting with error")
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	lockPath := pid.PathFor(cfg.StorePath)
	if err := pid.Write(lockPath); err != nil {
		return err
	}
	defer func() {
		if err := pid.Remove(lockPath); err != nil {
			logger.Error().Err(err).Msg("failed to remove PID file")
		}
	}()

	store, err := credentials.NewStore(cfg.Credentials(), logger.Default())
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close credential store")
		}
	}()

	clock := clockwork.NewRealClock()

	client, err := ecobee.NewHTTPClient(cfg.Ecobee(), clock)
	if err != nil {
		return err
	}

	lifecycle, err := auth.NewLifecycle(cfg.Auth(), client, store, clock, logger.Default())
	if err != nil {
		return err
	}

	switch cfg.Command {
	case config.CommandAuthorize:
		return authorize(ctx, lifecycle)
	default:
		return serve(ctx, cfg, collector.New(client, lifecycle, clock, logger.Default()))
	}
}

// authorize provisions credentials out of band so that scrapes never block
// on pin approval.
func authorize(ctx context.Context, lifecycle *auth.Lifecycle) error {
	bundle := lifecycle.Load(ctx)
	if err := lifecycle.Authorize(ctx, bundle); err != nil {
		return err
	}

	logger.Info().
		Str("device", lifecycle.Device()).
		Time("refresh_expires", *bundle.RefreshTokenExpiresAt).
		Msg("Authorization complete")

	return nil
}

func serve(ctx context.Context, cfg *config.Config, c *collector.Collector) error {
	srv := &http.Server{
		Addr:              cfg.Address(),
		Handler:           newHandler(cfg.MetricsPath, c),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("address", cfg.Address()).
			Str("path", cfg.MetricsPath).
			Msg("Serving metrics")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return errors.New().Wrap(errors.ErrInitFailed, err).WithMessage("HTTP server failed")
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.New().Wrap(errors.ErrShutdownFailed, err)
	}
	logger.Info().Msg("Exiting...")

	return nil
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}
