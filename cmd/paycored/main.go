package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	core "github.com/DomeLiquid/paycore"
	"github.com/DomeLiquid/paycore/activation"
	"github.com/DomeLiquid/paycore/api"
	"github.com/DomeLiquid/paycore/audit"
	"github.com/DomeLiquid/paycore/config"
	"github.com/DomeLiquid/paycore/guard"
	"github.com/DomeLiquid/paycore/ledger/evm"
	"github.com/DomeLiquid/paycore/ledger/tronscan"
	"github.com/DomeLiquid/paycore/metrics"
	"github.com/DomeLiquid/paycore/notify"
	"github.com/DomeLiquid/paycore/outcome"
	"github.com/DomeLiquid/paycore/reconcile"
	"github.com/DomeLiquid/paycore/store"
	"github.com/DomeLiquid/paycore/verify"
	"github.com/facebookgo/clock"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "config.yaml", "path to paycored config")
	flag.Parse()

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "paycored").Logger()
	if err := run(cfgPath, &logger); err != nil {
		logger.Fatal().Err(err).Msg("paycored stopped")
	}
}

func run(cfgPath string, logger *zerolog.Logger) error {
	manager, err := config.Load(cfgPath, logger)
	if err != nil {
		return errors.Wrap(err, "load config")
	}
	cfg := manager.Config()

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		return errors.Wrap(err, "log level")
	}
	*logger = logger.Level(level)
	manager.Watch()

	db, err := store.Open(cfg.Database.DSN)
	if err != nil {
		return errors.Wrap(err, "open store")
	}
	defer func() { _ = db.Close() }()

	ledger, closeLedger, err := buildLedger(cfg.Chain, logger)
	if err != nil {
		return err
	}
	defer closeLedger()

	notifier, err := buildNotifier(cfg.Mixin, logger)
	if err != nil {
		return err
	}

	clk := clock.New()
	recorder := metrics.NewPrometheusRecorder()

	sinks := []audit.Sink{}
	fileSink := audit.NewFileSink(cfg.Audit.LogPath)
	defer func() { _ = fileSink.Close() }()
	sinks = append(sinks, fileSink)
	if cfg.Audit.WebhookURL != "" {
		sinks = append(sinks, audit.NewWebhookSink(cfg.Audit.WebhookURL, 10*time.Second))
	}
	dispatcher := audit.NewDispatcher(cfg.Audit.QueueSize, recorder, logger, sinks...)

	var activator core.Activator = activation.NewNoop(logger)
	if cfg.Activation.Endpoint != "" {
		activator = activation.New(activation.Config{
			Endpoint: cfg.Activation.Endpoint,
			ApiKey:   cfg.Activation.ApiKey,
			Timeout:  time.Duration(cfg.Activation.TimeoutSeconds) * time.Second,
		})
	}

	orchestrator := verify.New(verify.Config{
		Ledger:   ledger,
		Guard:    guard.New(db, db, manager, clk),
		Attempts: db,
		Audit:    dispatcher,
		Settings: manager,
		Metrics:  recorder,
		Clock:    clk,
		Log:      logger,
	})
	applier := outcome.New(outcome.Config{
		Requests:  db,
		Activator: activator,
		Notifier:  notifier,
		Metrics:   recorder,
		Clock:     clk,
		Log:       logger,
	})
	scheduler := reconcile.New(reconcile.Config{
		Requests: db,
		Verifier: orchestrator,
		Applier:  applier,
		Settings: manager,
		Metrics:  recorder,
		Clock:    clk,
		Log:      logger,
	})
	server := api.New(api.Config{
		Requests: db,
		Attempts: db,
		Verifier: orchestrator,
		Applier:  applier,
		Health:   db,
		Settings: manager,
		Wallet:   cfg.Chain.Wallet,
		SubmitLimit: api.RateLimit{
			PerSecond: cfg.Server.SubmitRatePerSec,
			Burst:     cfg.Server.SubmitBurst,
		},
		Clock: clk,
		Log:   logger,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      server.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: time.Minute,
		IdleTimeout:  time.Minute,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		_ = scheduler.Run(ctx)
	}()

	errs := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Server.Addr).Str("chain", cfg.Chain.Kind).Msg("paycored listening")
		errs <- httpServer.ListenAndServe()
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case err := <-errs:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
		stop()
	}

	// in-flight attempts finish recording before the store closes
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutMs)*time.Millisecond)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		_ = httpServer.Close()
		logger.Error().Err(err).Msg("http shutdown")
	}
	select {
	case <-schedulerDone:
	case <-shutdownCtx.Done():
		logger.Warn().Msg("scheduler did not stop before shutdown deadline")
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		logger.Warn().Err(err).Int64("dropped", dispatcher.Dropped()).Msg("audit queue not drained")
	}
	logger.Info().Msg("paycored stopped")
	return serveErr
}

func buildLedger(cfg config.Chain, log core.Log) (core.LedgerClient, func(), error) {
	switch cfg.Kind {
	case config.ChainEVM:
		backend, err := evm.Dial(cfg.EVM.RPCURL)
		if err != nil {
			return nil, nil, errors.Wrap(err, "dial evm rpc")
		}
		client, err := evm.New(backend, evm.Config{
			Token:     cfg.EVM.Token,
			Decimals:  cfg.EVM.Decimals,
			BlockTime: time.Duration(cfg.EVM.BlockTimeSeconds) * time.Second,
		})
		if err != nil {
			backend.Close()
			return nil, nil, err
		}
		return client, backend.Close, nil
	default:
		client := tronscan.New(tronscan.Config{
			Endpoint: cfg.TronScan.Endpoint,
			ApiKey:   cfg.TronScan.ApiKey,
			Contract: cfg.TronScan.Contract,
			Decimals: cfg.TronScan.Decimals,
			Timeout:  time.Duration(cfg.TronScan.TimeoutSeconds) * time.Second,
		}, log)
		return client, func() {}, nil
	}
}

func buildNotifier(cfg config.Mixin, log core.Log) (core.Notifier, error) {
	if cfg.KeystorePath == "" {
		return notify.NewLogNotifier(log), nil
	}
	keystore, err := notify.LoadKeystore(cfg.KeystorePath)
	if err != nil {
		return nil, err
	}
	return notify.NewMixinNotifierFromKeystore(keystore)
}
