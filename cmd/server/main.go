// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/api"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/audit"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/auth"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/authz"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/config"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/control"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/engine"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/fanout"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/ingress"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/logging"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/supervisor"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/supervisor/services"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(cfg.ToLoggingConfig())

	logging.Info().
		Str("version", version).
		Str("environment", cfg.Server.Environment).
		Str("storage", cfg.Storage.Backend).
		Str("auth_mode", cfg.Security.AuthMode).
		Bool("eventbus", cfg.EventBus.Enabled).
		Msg("Starting Invigilator")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		logging.Fatal().Err(err).Msg("Server stopped with error")
	}
	logging.Info().Msg("Application stopped gracefully")
}

// run wires every component, serves until ctx is canceled and then
// releases resources in reverse order.
//
//nolint:gocyclo // sequential wiring
func run(ctx context.Context, cfg *config.Config) error {
	stores, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	tree, err := supervisor.NewTree(logging.NewSlogLogger(), cfg.ToTreeConfig())
	if err != nil {
		return err
	}

	auditLog := audit.NewLogger(stores.audit, cfg.ToAuditConfig())
	defer func() {
		if err := auditLog.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing audit log")
		}
	}()

	enforcer, err := authz.NewEnforcer(ctx, cfg.ToEnforcerConfig())
	if err != nil {
		return err
	}
	defer enforcer.Close()

	hub := fanout.NewHub(cfg.ToFanoutConfig())
	policies := cfg.ToPolicyBook()

	// The gateway needs the engine and the engine's archive hook needs the
	// gateway.
	var gw *ingress.Gateway
	eng := engine.New(cfg.ToEngineConfig(), stores.sessions, policies, tree.Sessions(),
		engine.WithPublisher(hub),
		engine.WithDecisionLogger(auditLog),
		engine.WithArchiveHook(func(sessionID string) { gw.Forget(sessionID) }),
	)
	gw = ingress.NewGateway(cfg.ToIngressConfig(), eng)
	ctl := control.New(eng, enforcer, auditLog)

	authMiddleware, err := newAuthMiddleware(cfg)
	if err != nil {
		return err
	}

	handlerCfg := api.DefaultHandlerConfig()
	handlerCfg.AllowedOrigins = cfg.Security.CORSOrigins
	handlerCfg.Version = version
	handler := api.NewHandler(handlerCfg, eng, ctl, gw, hub, auditLog)
	handler.AddReadinessCheck("store", stores.Ping)

	chiCfg := api.DefaultChiMiddlewareConfig()
	chiCfg.CORSAllowedOrigins = cfg.Security.CORSOrigins
	chiCfg.RateLimitRequests = cfg.Security.RateLimitReqs
	chiCfg.RateLimitWindow = cfg.Security.RateLimitWindow
	chiCfg.RateLimitDisabled = cfg.Security.RateLimitDisabled
	if cfg.Security.RateLimitDisabled {
		logging.Warn().Msg("Rate limiting is DISABLED (DISABLE_RATE_LIMIT=true)")
	}
	if cfg.ShouldWarnAboutCORS() {
		logging.Warn().Msg("CORS allows any origin (CORS_ORIGINS=*); set explicit origins before production")
	}

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           api.NewRouter(handler, authMiddleware, chiCfg).SetupChi(),
		ReadHeaderTimeout: cfg.Server.Timeout,
		ReadTimeout:       cfg.Server.Timeout,
		IdleTimeout:       2 * cfg.Server.Timeout,
	}

	// Data layer
	if stores.gc != nil {
		tree.AddDataService(services.NewPeriodicService("store-gc", cfg.Storage.GCInterval, stores.gc))
	}
	if cfg.Audit.Enabled && cfg.Audit.RetentionDays > 0 {
		tree.AddDataService(services.NewRunnerService("audit-cleanup", services.RunFunc(auditLog.RunCleanup)))
	}

	// Session layer: the engine recovers persisted sessions, then ticks.
	// Workers join the same layer as sessions are scheduled.
	tree.AddSessionService(services.NewEngineService(eng))
	tree.AddSessionService(services.NewPeriodicService("ingress-dedup-sweep", cfg.Ingress.DedupTTL/2, func(context.Context) error {
		if n := gw.Sweep(); n > 0 {
			logging.Debug().Int("expired", n).Msg("Dedup entries swept")
		}
		return nil
	}))

	// Messaging layer
	tree.AddMessagingService(services.NewHubService(hub))
	if cfg.EventBus.Enabled {
		bus, err := initEventBus(ctx, cfg, tree, hub, gw)
		if err != nil {
			return err
		}
		defer func() {
			if err := bus.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing event bus")
			}
		}()
	}

	// API layer
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Supervisor.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	if path := config.ConfigFile(); path != "" {
		watchExamPolicies(path, policies)
	}

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	var runErr error
	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			runErr = err
		}
	}
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}
	return runErr
}

func newAuthMiddleware(cfg *config.Config) (*auth.Middleware, error) {
	mode := auth.AuthMode(cfg.Security.AuthMode)
	mwCfg := auth.MiddlewareConfig{AuthMode: mode}
	switch mode {
	case auth.AuthModeJWT:
		manager, err := auth.NewJWTManager(cfg.Security.JWTSecret, cfg.Security.TokenTimeout)
		if err != nil {
			return nil, err
		}
		mwCfg.JWTManager = manager
		logging.Info().Msg("JWT authentication enabled")
	case auth.AuthModeHeader:
		logging.Warn().Msg("Header authentication trusts X-Actor-* headers; use only behind an authenticating proxy")
	}
	return auth.NewMiddleware(mwCfg)
}
