// Package coordinator wires the orchestrator, transaction logger, export
// store, platform tree, and subscription fabric behind the control-plane
// HTTP/WebSocket surface (spec §6).
package coordinator

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"github.com/platformforge/transfer-coordinator/infrastructure/logging"
	"github.com/platformforge/transfer-coordinator/infrastructure/metrics"
	"github.com/platformforge/transfer-coordinator/infrastructure/middleware"
	"github.com/platformforge/transfer-coordinator/infrastructure/serviceauth"
	"github.com/platformforge/transfer-coordinator/internal/exportstore"
	"github.com/platformforge/transfer-coordinator/internal/orchestrator"
	"github.com/platformforge/transfer-coordinator/internal/platformtree"
	"github.com/platformforge/transfer-coordinator/internal/subscription"
	"github.com/platformforge/transfer-coordinator/internal/transport"
	"github.com/platformforge/transfer-coordinator/internal/txlog"
)

// Coordinator is the process-level composition root: it owns the
// control-plane router and the periodic maintenance sweep, delegating all
// saga logic to the Orchestrator.
type Coordinator struct {
	tree    *platformtree.Tree
	exports *exportstore.Store
	txLog   *txlog.Logger
	archive *txlog.Archive
	subs    *subscription.Manager
	orch    *orchestrator.Orchestrator
	hub     *transport.Hub
	subHub  *transport.SubscriberHub

	metrics *metrics.Metrics
	logger  *logging.Logger

	serviceSecret []byte

	router *mux.Router
	cron   *cron.Cron

	startedAt           time.Time
	validationTimeoutMs int64
}

// Deps bundles every collaborator the coordinator wires into HTTP routes.
type Deps struct {
	Tree    *platformtree.Tree
	Exports *exportstore.Store
	TxLog   *txlog.Logger
	Archive *txlog.Archive
	Subs    *subscription.Manager
	Orch    *orchestrator.Orchestrator
	Hub     *transport.Hub
	SubHub  *transport.SubscriberHub

	Metrics       *metrics.Metrics
	Logger        *logging.Logger
	ServiceSecret []byte

	// MaintenanceSweepInterval controls the cron schedule for the stuck-
	// transfer / persisted-store-size sweep. Zero disables the sweep.
	MaintenanceSweepInterval time.Duration

	// ValidationTimeoutMs must match the orchestrator's configured
	// validation timeout, so the sweep flags transfers that outlived it.
	ValidationTimeoutMs int64
}

// New builds the control-plane router and arms (but does not start) the
// maintenance cron.
func New(deps Deps) *Coordinator {
	c := &Coordinator{
		tree:          deps.Tree,
		exports:       deps.Exports,
		txLog:         deps.TxLog,
		archive:       deps.Archive,
		subs:          deps.Subs,
		orch:          deps.Orch,
		hub:           deps.Hub,
		subHub:        deps.SubHub,
		metrics:       deps.Metrics,
		logger:        deps.Logger,
		serviceSecret:       deps.ServiceSecret,
		startedAt:           time.Now(),
		validationTimeoutMs: deps.ValidationTimeoutMs,
	}

	c.router = c.buildRouter()

	if deps.MaintenanceSweepInterval > 0 {
		c.cron = cron.New()
		spec := "@every " + deps.MaintenanceSweepInterval.String()
		if _, err := c.cron.AddFunc(spec, c.runMaintenanceSweep); err != nil && c.logger != nil {
			c.logger.WithError(err).Error("failed to schedule maintenance sweep")
		}
	}

	return c
}

// Router returns the control-plane HTTP router.
func (c *Coordinator) Router() *mux.Router {
	return c.router
}

// Start begins the maintenance cron, if configured. Safe to call once.
func (c *Coordinator) Start() {
	if c.cron != nil {
		c.cron.Start()
	}
}

// Stop drains the maintenance cron. Blocks until any in-flight run
// completes.
func (c *Coordinator) Stop(ctx context.Context) {
	if c.cron != nil {
		stopCtx := c.cron.Stop()
		select {
		case <-stopCtx.Done():
		case <-ctx.Done():
		}
	}
}

func (c *Coordinator) buildRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Logging(c.logger))
	r.Use(middleware.Metrics("transfer-coordinator", c.metrics))

	r.HandleFunc("/healthz", c.handleHealthz).Methods(http.MethodGet)
	if metrics.Enabled() {
		r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}

	r.HandleFunc("/transfers/start", c.handleStartPlatformTransfer).Methods(http.MethodPost)
	r.HandleFunc("/transfers/transfer", c.handleTransferPlatform).Methods(http.MethodPost)
	r.HandleFunc("/transfers/{transferId}/validation", c.handleTransferValidation).Methods(http.MethodPost)
	r.HandleFunc("/transfers", c.handleListTransactionLogs).Methods(http.MethodGet)
	r.HandleFunc("/transfers/{transferId}", c.handleGetTransactionLog).Methods(http.MethodGet)

	r.HandleFunc("/exports", c.handleListExports).Methods(http.MethodGet)
	r.HandleFunc("/exports", c.handlePlatformExportEvent).Methods(http.MethodPost)
	r.HandleFunc("/exports/{exportId}", c.handleGetStoredExport).Methods(http.MethodGet)
	r.HandleFunc("/exports/import", c.handleImportUploadedExport).Methods(http.MethodPost)

	r.HandleFunc("/tree", c.handleGetPlatformTree).Methods(http.MethodGet)

	r.HandleFunc("/ws/instances/{instanceId}", c.handleInstanceSocket)
	r.HandleFunc("/ws/subscribe", c.handleSubscriberSocket)
	r.HandleFunc("/subscriptions", c.handleSetSubscription).Methods(http.MethodPost)

	return r
}

func (c *Coordinator) authorize(r *http.Request) bool {
	if len(c.serviceSecret) == 0 {
		return true
	}
	token := r.Header.Get(serviceauth.ServiceTokenHeader)
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return false
	}
	_, err := serviceauth.VerifyToken(token, c.serviceSecret)
	return err == nil
}
