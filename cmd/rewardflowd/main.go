package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arrowpuzzle/rewardflow/internal/adprovider"
	"github.com/arrowpuzzle/rewardflow/internal/api"
	"github.com/arrowpuzzle/rewardflow/internal/config"
	"github.com/arrowpuzzle/rewardflow/internal/intentstore"
	"github.com/arrowpuzzle/rewardflow/internal/ledger"
	xlog "github.com/arrowpuzzle/rewardflow/internal/log"
	"github.com/arrowpuzzle/rewardflow/internal/reconcile"
	"github.com/arrowpuzzle/rewardflow/internal/rewarded"
)

var (
	version   = "v0.3.0"
	commit    = "none"
	buildDate = "unknown"
)

// maskURL removes user info from a URL string for safe logging.
func maskURL(rawURL string) string {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return "invalid-url-redacted"
	}
	parsedURL.User = nil
	return parsedURL.String()
}

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	devMode := flag.Bool("dev", false, "use a scripted ad provider instead of the SDK bridge")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	cfg := config.FromEnv()

	xlog.Configure(xlog.Config{
		Level:   cfg.LogLevel,
		Service: "rewardflow",
		Version: version,
	})
	logger := xlog.WithComponent("daemon")

	if err := cfg.Validate(); err != nil {
		logger.Fatal().
			Err(err).
			Str(xlog.FieldEvent, "config.invalid").
			Msg("invalid configuration")
	}
	if cfg.ProviderBaseURL == "" && !*devMode {
		logger.Fatal().
			Str(xlog.FieldEvent, "config.invalid").
			Msg("REWARDFLOW_PROVIDER_URL is required unless running with -dev")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ledgerClient := ledger.New(cfg.LedgerBaseURL, cfg.APIToken)

	var provider adprovider.Provider
	if *devMode {
		provider = adprovider.NewScriptedProvider()
		logger.Warn().Str(xlog.FieldEvent, "provider.scripted").Msg("dev mode: every ad completes instantly")
	} else {
		provider = adprovider.NewHTTPBridge(cfg.ProviderBaseURL, cfg.ProviderTimeout)
	}

	store := intentstore.New(cfg.ToastTTL)

	flow := rewarded.NewFlow(ledgerClient, provider, store, cfg.AdUnits(),
		rewarded.WithPollInterval(cfg.PollInterval),
		rewarded.WithPollTimeout(cfg.PollTimeout),
	)

	reconciler := reconcile.New(ledgerClient, store,
		reconcile.AuthStateFunc(func() bool { return cfg.APIToken != "" }),
		reconcile.WithInterval(cfg.ReconcileInterval),
		reconcile.WithSessionExpiredHook(func() {
			logger.Warn().Str(xlog.FieldEvent, "session.expired").Msg("ledger session expired, clearing intent state")
			store.Reset()
		}),
	)
	go reconciler.Run(ctx)

	server := api.NewServer(flow, store, reconciler)
	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().
			Str(xlog.FieldEvent, "daemon.listening").
			Str("listen", cfg.Listen).
			Str(xlog.FieldBaseURL, maskURL(cfg.LedgerBaseURL)).
			Msg("rewardflow sidecar started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Str(xlog.FieldEvent, "daemon.serve_failed").Msg("http server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Str(xlog.FieldEvent, "daemon.shutdown").Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Str(xlog.FieldEvent, "daemon.shutdown_failed").Msg("graceful shutdown failed")
	}
}
