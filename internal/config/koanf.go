// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/escalation"
)

// DefaultConfigPaths lists the paths searched for a config file, in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/invigilator/config.yaml",
	"/etc/invigilator/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	policy := escalation.DefaultPolicy()
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8087,
			Timeout:     30 * time.Second,
			Environment: "development",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Ingress: IngressConfig{
			ClockSkewTolerance: 30 * time.Second,
			LatenessWindow:     5 * time.Second,
			QueueSize:          256,
			DedupCapacity:      10000,
			DedupTTL:           10 * time.Minute,
			RatePerSession:     50,
			Burst:              100,
		},
		Aggregation: AggregationConfig{
			CorrelationGap:             10 * time.Second,
			MinConfidence:              0.3,
			MediumConfidence:           0.6,
			HighConfidence:             0.9,
			MultiChannelHighConfidence: 0.75,
			MediumSignalCount:          3,
			HighSignalCount:            8,
		},
		Escalation: EscalationConfig{
			PolicyVersion:     policy.Version,
			MediumBurstCount:  policy.MediumBurstCount,
			MediumBurstWindow: policy.MediumBurstWindow,
			DigestInterval:    policy.DigestInterval,
			Exams:             map[string]escalation.Policy{},
		},
		Session: SessionConfig{
			TerminationTTL: 60 * time.Second,
			Retention:      24 * time.Hour,
			TickInterval:   time.Second,
			CommandTimeout: 5 * time.Second,
			MailboxSize:    256,
		},
		Fanout: FanoutConfig{
			SubscriberBuffer: 256,
			StallTimeout:     30 * time.Second,
			LogRetention:     100000,
			SweepInterval:    time.Second,
			InboxSize:        1024,
		},
		Storage: StorageConfig{
			Backend:    "badger",
			Path:       "/data/invigilator",
			GCInterval: 5 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:         true,
			BufferSize:      1000,
			RetentionDays:   90,
			CleanupInterval: 24 * time.Hour,
			MemoryCapacity:  10000,
		},
		Security: SecurityConfig{
			AuthMode:        "jwt",
			TokenTimeout:    8 * time.Hour,
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
			Casbin: CasbinConfig{
				ReloadInterval: 30 * time.Second,
				CacheTTL:       5 * time.Minute,
			},
		},
		EventBus: EventBusConfig{
			Enabled:        false,
			Backend:        "nats",
			NATSURL:        "nats://127.0.0.1:4222",
			EmbeddedServer: true,
			ServerHost:     "127.0.0.1",
			ServerPort:     4222,
			StoreDir:       "/data/invigilator/jetstream",
			StreamName:     "INVIGILATOR",
			StreamMaxAge:   7 * 24 * time.Hour,
			DedupWindow:    2 * time.Minute,
			DurableName:    "invigilator-signals",
			QueueGroup:     "invigilator",
			EventsTopic:    "invigilator.events",
			SignalsTopic:   "invigilator.signals",
			ForwardBatch:   256,

			BreakerMaxRequests:      1,
			BreakerInterval:         time.Minute,
			BreakerTimeout:          30 * time.Second,
			BreakerFailureThreshold: 5,

			RouterCloseTimeout:         10 * time.Second,
			RouterRetryMaxRetries:      5,
			RouterRetryInitialInterval: 100 * time.Millisecond,
			RouterRetryMaxInterval:     5 * time.Second,
			RouterRetryMultiplier:      2,
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5,
			FailureDecay:     30,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  10 * time.Second,
		},
	}
}

// LoadWithKoanf loads configuration in three layers, each overriding the
// previous one: defaults, the optional YAML file, environment variables.
// The result is validated.
func LoadWithKoanf() (*Config, error) {
	return loadFrom(findConfigFile())
}

// LoadFile loads configuration from an explicit YAML file plus the
// environment. Used when reloading a watched file.
func LoadFile(path string) (*Config, error) {
	return loadFrom(path)
}

func loadFrom(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// HTTP_PORT -> server.port, INGRESS_LATENESS_WINDOW -> ingress.lateness_window
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns the first existing config file, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// ConfigFile returns the path LoadWithKoanf reads, or "" when running on
// defaults and environment only.
func ConfigFile() string {
	return findConfigFile()
}

// sliceConfigPaths are parsed from comma-separated env values.
var sliceConfigPaths = []string{
	"security.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to config paths.
// Unmapped variables are ignored.
var envMappings = map[string]string{
	// Server
	"http_host":    "server.host",
	"http_port":    "server.port",
	"http_timeout": "server.timeout",
	"environment":  "server.environment",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	// Ingress
	"ingress_clock_skew_tolerance": "ingress.clock_skew_tolerance",
	"ingress_lateness_window":      "ingress.lateness_window",
	"ingress_queue_size":           "ingress.queue_size",
	"ingress_dedup_capacity":       "ingress.dedup_capacity",
	"ingress_dedup_ttl":            "ingress.dedup_ttl",
	"ingress_rate_per_session":     "ingress.rate_per_session",
	"ingress_burst":                "ingress.burst",

	// Aggregation
	"aggregation_correlation_gap":               "aggregation.correlation_gap",
	"aggregation_min_confidence":                "aggregation.min_confidence",
	"aggregation_medium_confidence":             "aggregation.medium_confidence",
	"aggregation_high_confidence":               "aggregation.high_confidence",
	"aggregation_multi_channel_high_confidence": "aggregation.multi_channel_high_confidence",
	"aggregation_medium_signal_count":           "aggregation.medium_signal_count",
	"aggregation_high_signal_count":             "aggregation.high_signal_count",

	// Escalation defaults; per-exam overrides come from the config file
	"escalation_policy_version":      "escalation.policy_version",
	"escalation_medium_burst_count":  "escalation.medium_burst_count",
	"escalation_medium_burst_window": "escalation.medium_burst_window",
	"escalation_digest_interval":     "escalation.digest_interval",

	// Session
	"session_termination_ttl": "session.termination_ttl",
	"session_retention":       "session.retention",
	"session_tick_interval":   "session.tick_interval",
	"session_command_timeout": "session.command_timeout",
	"session_mailbox_size":    "session.mailbox_size",

	// Fan-out
	"fanout_subscriber_buffer": "fanout.subscriber_buffer",
	"fanout_stall_timeout":     "fanout.stall_timeout",
	"fanout_log_retention":     "fanout.log_retention",
	"fanout_sweep_interval":    "fanout.sweep_interval",
	"fanout_inbox_size":        "fanout.inbox_size",

	// Storage
	"storage_backend":     "storage.backend",
	"storage_path":        "storage.path",
	"storage_in_memory":   "storage.in_memory",
	"storage_gc_interval": "storage.gc_interval",

	// Audit
	"audit_enabled":          "audit.enabled",
	"audit_buffer_size":      "audit.buffer_size",
	"audit_retention_days":   "audit.retention_days",
	"audit_cleanup_interval": "audit.cleanup_interval",
	"audit_log_to_stdout":    "audit.log_to_stdout",
	"audit_memory_capacity":  "audit.memory_capacity",

	// Security
	"auth_mode":              "security.auth_mode",
	"jwt_secret":             "security.jwt_secret",
	"token_timeout":          "security.token_timeout",
	"rate_limit_requests":    "security.rate_limit_reqs",
	"rate_limit_window":      "security.rate_limit_window",
	"disable_rate_limit":     "security.rate_limit_disabled",
	"cors_origins":           "security.cors_origins",
	"casbin_model_path":      "security.casbin.model_path",
	"casbin_policy_path":     "security.casbin.policy_path",
	"casbin_reload_interval": "security.casbin.reload_interval",
	"casbin_cache_ttl":       "security.casbin.cache_ttl",

	// Event bus
	"eventbus_enabled":              "eventbus.enabled",
	"eventbus_backend":              "eventbus.backend",
	"nats_url":                      "eventbus.nats_url",
	"nats_embedded":                 "eventbus.embedded_server",
	"nats_server_host":              "eventbus.server_host",
	"nats_server_port":              "eventbus.server_port",
	"nats_store_dir":                "eventbus.store_dir",
	"nats_stream_name":              "eventbus.stream_name",
	"nats_stream_max_age":           "eventbus.stream_max_age",
	"nats_dedup_window":             "eventbus.dedup_window",
	"nats_durable_name":             "eventbus.durable_name",
	"nats_queue_group":              "eventbus.queue_group",
	"eventbus_events_topic":         "eventbus.events_topic",
	"eventbus_signals_topic":        "eventbus.signals_topic",
	"eventbus_forward_batch":        "eventbus.forward_batch",
	"eventbus_breaker_timeout":      "eventbus.breaker_timeout",
	"eventbus_breaker_failures":     "eventbus.breaker_failure_threshold",
	"eventbus_router_close_timeout": "eventbus.router_close_timeout",
	"eventbus_router_retry_count":   "eventbus.router_retry_max_retries",

	// Supervisor
	"supervisor_failure_threshold": "supervisor.failure_threshold",
	"supervisor_failure_decay":     "supervisor.failure_decay",
	"supervisor_failure_backoff":   "supervisor.failure_backoff",
	"supervisor_shutdown_timeout":  "supervisor.shutdown_timeout",
}

// envTransformFunc maps an environment variable name to its config path,
// or "" to skip it.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

// WatchConfigFile calls callback whenever the file at path changes. The
// caller reloads with LoadFile and guards its own state.
func WatchConfigFile(path string, callback func()) error {
	provider := file.Provider(path)
	return provider.Watch(func(event interface{}, err error) {
		if err != nil {
			return
		}
		callback()
	})
}
