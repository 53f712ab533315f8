package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platformforge/transfer-coordinator/infrastructure/config"
	"github.com/platformforge/transfer-coordinator/infrastructure/logging"
	"github.com/platformforge/transfer-coordinator/infrastructure/metrics"
	"github.com/platformforge/transfer-coordinator/infrastructure/persistence"
	"github.com/platformforge/transfer-coordinator/internal/coordinator"
	"github.com/platformforge/transfer-coordinator/internal/exportstore"
	"github.com/platformforge/transfer-coordinator/internal/orchestrator"
	"github.com/platformforge/transfer-coordinator/internal/platformtree"
	"github.com/platformforge/transfer-coordinator/internal/subscription"
	"github.com/platformforge/transfer-coordinator/internal/transport"
	"github.com/platformforge/transfer-coordinator/internal/txlog"
)

func main() {
	log := logrus.WithField("app", "transfer-coordinator")

	cfg, err := config.LoadCoordinatorConfig()
	if err != nil {
		log.WithError(err).Fatal("load config")
	}

	logger := logging.New("transfer-coordinator", cfg.LogLevel, cfg.LogFormat)
	m := metrics.Init("transfer-coordinator")

	backend, err := persistence.NewGzipFileBackend(cfg.DataDir, logger)
	if err != nil {
		log.WithError(err).Fatal("create persistence backend")
	}

	exports := exportstore.New(cfg.ExportStoreMaxSize, backend, logger)
	if err := exports.Load(context.Background()); err != nil {
		log.WithError(err).Warn("failed to load persisted export store, starting empty")
	}

	archive := txlog.NewArchive(backend)
	if err := archive.Load(context.Background()); err != nil {
		log.WithError(err).Warn("failed to load persisted transaction log, starting empty")
	}

	hub := transport.NewHub(transport.Config{CallTimeout: cfg.InstanceRPCTimeout, RetryConfig: transport.DefaultConfig().RetryConfig}, logger)
	client := transport.NewClient(hub)
	subHub := transport.NewSubscriberHub(logger)

	tree := platformtree.New(coordinator.NewTreeLister(client), platformtree.DefaultConfig(), logger)

	subs := subscription.New(tree, subHub, subscription.Config{TreeBroadcastWindow: cfg.TreeBroadcastRateLimit}, logger, m)

	txLog := txlog.New(subs, logger)

	orch := orchestrator.New(tree, exports, txLog, archive, subs, client, m, logger, orchestrator.Config{
		ValidationTimeout: cfg.ValidationTimeout,
		TickFactor:        cfg.TickToMillisecondFactor,
		MaxActiveTransfers: cfg.ActiveTransferMaxSize,
	})

	var serviceSecret []byte
	if cfg.ServiceTokenSecret != "" {
		serviceSecret = []byte(cfg.ServiceTokenSecret)
	} else {
		log.Warn("SERVICE_TOKEN_SECRET is unset; control-plane auth is disabled")
	}

	coord := coordinator.New(coordinator.Deps{
		Tree:                     tree,
		Exports:                  exports,
		TxLog:                    txLog,
		Archive:                  archive,
		Subs:                     subs,
		Orch:                     orch,
		Hub:                      hub,
		SubHub:                   subHub,
		Metrics:                  m,
		Logger:                   logger,
		ServiceSecret:            serviceSecret,
		MaintenanceSweepInterval: cfg.MaintenanceSweepInterval,
		ValidationTimeoutMs:      cfg.ValidationTimeout.Milliseconds(),
	})
	coord.Start()

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: coord.Router(),
	}

	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("starting transfer coordinator")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("http server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	coord.Stop(ctx)
	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}
