package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/phoenixops/incident-engine/internal/capability"
	"github.com/phoenixops/incident-engine/internal/classifier"
	"github.com/phoenixops/incident-engine/internal/config"
	"github.com/phoenixops/incident-engine/internal/event"
	"github.com/phoenixops/incident-engine/internal/metrics"
	"github.com/phoenixops/incident-engine/internal/model"
	"github.com/phoenixops/incident-engine/internal/monitor"
	"github.com/phoenixops/incident-engine/internal/orchestrator"
	"github.com/phoenixops/incident-engine/internal/planner"
	"github.com/phoenixops/incident-engine/internal/resolver"
	"github.com/phoenixops/incident-engine/internal/storage"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load("./config", ".")
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Connect to NATS with retry
	opts := []nats.Option{
		nats.Name(cfg.App.Name),
		nats.MaxReconnects(cfg.NATS.MaxReconnects),
		nats.ReconnectWait(cfg.NATS.ReconnectWait),
		nats.Timeout(cfg.NATS.ConnectTimeout),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			logger.Error("NATS connection error", zap.Error(err))
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	var nc *nats.Conn
	maxRetries := 5
	for i := 0; i < maxRetries; i++ {
		nc, err = nats.Connect(cfg.NATS.URL, opts...)
		if err == nil {
			break
		}
		logger.Warn("Failed to connect to NATS, retrying...",
			zap.Int("attempt", i+1),
			zap.Error(err))
		time.Sleep(time.Second * time.Duration(i+1))
	}
	if err != nil {
		logger.Fatal("Failed to connect to NATS after retries", zap.Error(err))
	}
	defer nc.Close()

	js, err := nc.JetStream()
	if err != nil {
		logger.Fatal("Failed to create JetStream context", zap.Error(err))
	}

	bus, err := event.NewBus(js, logger)
	if err != nil {
		logger.Fatal("Failed to create event bus", zap.Error(err))
	}

	store, err := storage.NewSQLiteIncidentStore(logger, cfg.Storage.Path)
	if err != nil {
		logger.Fatal("Failed to create incident store", zap.Error(err))
	}
	defer store.Close()

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Fatal("Failed to register metrics", zap.Error(err))
	}

	// Severity classification runs on the rule fallback until an inference
	// endpoint is injected by the host deployment.
	severity := classifier.NewSeverityClassifier(nil, cfg.Classifier.InferenceTimeout, logger)

	orch := orchestrator.New(severity, store, bus, orchestrator.Config{
		ResponseTimeout:              cfg.Orchestra.ResponseTimeout,
		MaxRetries:                   cfg.Orchestra.MaxRetries,
		DiagnosisConfidenceThreshold: cfg.Orchestra.ConfidenceThreshold,
	}, logger)
	defer orch.Stop()

	// Capability registry: simulated handlers everywhere, Docker runtime for
	// service restarts when enabled.
	registry := capability.NewRegistry()
	capability.RegisterSimulated(registry, logger)
	if cfg.Resolution.UseDockerRuntime {
		runtime, err := capability.NewDockerRuntime(logger)
		if err != nil {
			logger.Fatal("Failed to create Docker runtime", zap.Error(err))
		}
		defer runtime.Close()
		registry.Register(model.ActionRestartService, runtime)
		registry.Register(model.ActionClearCache, runtime)
	}

	plans := planner.NewPlanner(planner.Config{
		ServiceName:   cfg.Resolution.ServiceName,
		ResourceGroup: cfg.Resolution.ResourceGroup,
		DatabaseName:  cfg.Resolution.DatabaseName,
	}, nil, logger)

	executor := resolver.NewExecutor(registry, resolver.ExecutorConfig{
		ExecutionTimeout: cfg.Resolution.ExecutionTimeout,
		RollbackEnabled:  cfg.Resolution.RollbackEnabled,
		Limits: resolver.SafetyLimits{
			MaxScaleInstances: cfg.Resolution.MaxScaleInstances,
			CooldownPeriod:    cfg.Resolution.CooldownPeriod,
		},
	}, logger)

	resolution := resolver.NewService(plans, executor, bus, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Wire bus subscriptions to their consumers.
	subscriptions := map[event.Type]func(*event.Envelope){
		event.TypeDiagnosticResult: func(env *event.Envelope) {
			if err := orch.HandleAgentResponse(ctx, env); err != nil {
				logger.Error("Failed to handle diagnostic result", zap.Error(err))
			}
		},
		event.TypeResolutionResult: func(env *event.Envelope) {
			if err := orch.HandleAgentResponse(ctx, env); err != nil {
				logger.Error("Failed to handle resolution result", zap.Error(err))
			}
		},
		event.TypeResolutionRequest: func(env *event.Envelope) {
			if err := resolution.HandleResolutionRequest(ctx, env); err != nil {
				logger.Error("Failed to handle resolution request", zap.Error(err))
			}
		},
		event.TypeApprovalResponse: func(env *event.Envelope) {
			if err := resolution.HandleApprovalResponse(ctx, env); err != nil {
				logger.Error("Failed to handle approval response", zap.Error(err))
			}
		},
	}
	for eventType, handler := range subscriptions {
		if err := bus.Subscribe(ctx, eventType, handler); err != nil {
			logger.Fatal("Failed to subscribe",
				zap.String("event_type", string(eventType)),
				zap.Error(err))
		}
	}

	// Raw alert intake, with host metric enrichment when configured.
	var enricher monitor.Enricher
	if cfg.Monitor.EnrichAlerts {
		enricher = monitor.NewHostMetrics(logger)
	}
	intake := monitor.NewAlertIntake(orch, enricher, logger)
	alertSub, err := nc.Subscribe(monitor.AlertSubject, func(msg *nats.Msg) {
		if _, err := intake.HandleRaw(ctx, msg.Data); err != nil {
			logger.Error("Failed to ingest alert", zap.Error(err))
		}
	})
	if err != nil {
		logger.Fatal("Failed to subscribe to alerts", zap.Error(err))
	}
	defer alertSub.Unsubscribe()

	reporter := monitor.NewStatusReporter(store, bus, cfg.Monitor.ReportSchedule, logger)
	if err := reporter.Start(ctx); err != nil {
		logger.Fatal("Failed to start status reporter", zap.Error(err))
	}
	defer reporter.Stop()

	// Prometheus endpoint
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(cfg.Metrics.Address, mux); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics endpoint failed", zap.Error(err))
		}
	}()

	logger.Info("Incident engine started",
		zap.String("nats_url", nc.ConnectedUrl()),
		zap.String("storage_path", cfg.Storage.Path),
		zap.String("metrics_address", cfg.Metrics.Address))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	cancel()

	if err := nc.Drain(); err != nil {
		logger.Warn("NATS drain failed", zap.Error(err))
	}

	logger.Info("Server shutting down gracefully")
}
