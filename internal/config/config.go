package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all settings the engine consumes. It is loaded once in main
// and handed to components as plain values; nothing reads viper afterwards.
type Config struct {
	App        AppConfig
	NATS       NATSConfig
	Storage    StorageConfig
	Metrics    MetricsConfig
	Classifier ClassifierConfig
	Orchestra  OrchestratorConfig
	Resolution ResolutionConfig
	Monitor    MonitorConfig
}

// AppConfig identifies the process.
type AppConfig struct {
	Name string
}

// NATSConfig controls the event bus connection.
type NATSConfig struct {
	URL            string
	MaxReconnects  int
	ReconnectWait  time.Duration
	ConnectTimeout time.Duration
}

// StorageConfig controls incident persistence.
type StorageConfig struct {
	Path string
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Address string
}

// ClassifierConfig controls severity classification.
type ClassifierConfig struct {
	InferenceTimeout time.Duration
}

// OrchestratorConfig controls the incident state machine.
type OrchestratorConfig struct {
	ResponseTimeout     time.Duration
	MaxRetries          int
	ConfidenceThreshold float64
}

// ResolutionConfig controls planning and execution.
type ResolutionConfig struct {
	ExecutionTimeout  time.Duration
	RollbackEnabled   bool
	MaxScaleInstances int
	CooldownPeriod    time.Duration
	ServiceName       string
	ResourceGroup     string
	DatabaseName      string
	UseDockerRuntime  bool
}

// MonitorConfig controls status reporting and alert enrichment.
type MonitorConfig struct {
	ReportSchedule string
	EnrichAlerts   bool
}

// Load reads the YAML config file from the given paths, applying defaults
// for anything unset. A missing file is not an error; defaults apply.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
		},
		NATS: NATSConfig{
			URL:            v.GetString("nats.url"),
			MaxReconnects:  v.GetInt("nats.max_reconnects"),
			ReconnectWait:  v.GetDuration("nats.reconnect_wait"),
			ConnectTimeout: v.GetDuration("nats.connect_timeout"),
		},
		Storage: StorageConfig{
			Path: v.GetString("storage.path"),
		},
		Metrics: MetricsConfig{
			Address: v.GetString("metrics.address"),
		},
		Classifier: ClassifierConfig{
			InferenceTimeout: v.GetDuration("classifier.inference_timeout"),
		},
		Orchestra: OrchestratorConfig{
			ResponseTimeout:     v.GetDuration("orchestrator.response_timeout"),
			MaxRetries:          v.GetInt("orchestrator.max_retries"),
			ConfidenceThreshold: v.GetFloat64("orchestrator.confidence_threshold"),
		},
		Resolution: ResolutionConfig{
			ExecutionTimeout:  v.GetDuration("resolution.execution_timeout"),
			RollbackEnabled:   v.GetBool("resolution.rollback_enabled"),
			MaxScaleInstances: v.GetInt("resolution.max_scale_instances"),
			CooldownPeriod:    v.GetDuration("resolution.cooldown_period"),
			ServiceName:       v.GetString("resolution.service_name"),
			ResourceGroup:     v.GetString("resolution.resource_group"),
			DatabaseName:      v.GetString("resolution.database_name"),
			UseDockerRuntime:  v.GetBool("resolution.use_docker_runtime"),
		},
		Monitor: MonitorConfig{
			ReportSchedule: v.GetString("monitor.report_schedule"),
			EnrichAlerts:   v.GetBool("monitor.enrich_alerts"),
		},
	}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "incident-engine")

	v.SetDefault("nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", 2*time.Second)
	v.SetDefault("nats.connect_timeout", 5*time.Second)

	v.SetDefault("storage.path", "incidents.db")
	v.SetDefault("metrics.address", ":9090")

	v.SetDefault("classifier.inference_timeout", 10*time.Second)

	v.SetDefault("orchestrator.response_timeout", 5*time.Minute)
	v.SetDefault("orchestrator.max_retries", 3)
	v.SetDefault("orchestrator.confidence_threshold", 0.8)

	v.SetDefault("resolution.execution_timeout", 2*time.Minute)
	v.SetDefault("resolution.rollback_enabled", true)
	v.SetDefault("resolution.max_scale_instances", 20)
	v.SetDefault("resolution.cooldown_period", 5*time.Minute)
	v.SetDefault("resolution.service_name", "app-service")
	v.SetDefault("resolution.resource_group", "production")
	v.SetDefault("resolution.database_name", "appdb")
	v.SetDefault("resolution.use_docker_runtime", false)

	v.SetDefault("monitor.report_schedule", "@every 30s")
	v.SetDefault("monitor.enrich_alerts", true)
}
