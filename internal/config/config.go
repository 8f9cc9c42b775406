// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package config

import (
	"fmt"
	"os"
	"time"

	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/audit"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/authz"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/engine"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/escalation"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/eventbus"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/fanout"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/incident"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/ingress"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/logging"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/supervisor"
)

// Config holds all application configuration.
//
// Loading order (see Load):
//  1. struct defaults
//  2. optional YAML file (CONFIG_PATH, config.yaml, /etc/invigilator/config.yaml)
//  3. environment variables
//
// The To* methods translate sections into the option structs of the
// packages they configure.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`
	Ingress     IngressConfig     `koanf:"ingress"`
	Aggregation AggregationConfig `koanf:"aggregation"`
	Escalation  EscalationConfig  `koanf:"escalation"`
	Session     SessionConfig     `koanf:"session"`
	Fanout      FanoutConfig      `koanf:"fanout"`
	Storage     StorageConfig     `koanf:"storage"`
	Audit       AuditConfig       `koanf:"audit"`
	Security    SecurityConfig    `koanf:"security"`
	EventBus    EventBusConfig    `koanf:"eventbus"`
	Supervisor  SupervisorConfig  `koanf:"supervisor"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string        `koanf:"host"`
	Port        int           `koanf:"port"`
	Timeout     time.Duration `koanf:"timeout"`
	Environment string        `koanf:"environment"` // development, staging or production
}

// Addr returns host:port for http.Server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// IngressConfig holds signal gateway settings.
type IngressConfig struct {
	ClockSkewTolerance time.Duration `koanf:"clock_skew_tolerance"`
	LatenessWindow     time.Duration `koanf:"lateness_window"`
	QueueSize          int           `koanf:"queue_size"`
	DedupCapacity      int           `koanf:"dedup_capacity"`
	DedupTTL           time.Duration `koanf:"dedup_ttl"`
	RatePerSession     float64       `koanf:"rate_per_session"`
	Burst              int           `koanf:"burst"`
}

// AggregationConfig holds incident correlation and scoring thresholds.
type AggregationConfig struct {
	CorrelationGap             time.Duration `koanf:"correlation_gap"`
	MinConfidence              float64       `koanf:"min_confidence"`
	MediumConfidence           float64       `koanf:"medium_confidence"`
	HighConfidence             float64       `koanf:"high_confidence"`
	MultiChannelHighConfidence float64       `koanf:"multi_channel_high_confidence"`
	MediumSignalCount          int           `koanf:"medium_signal_count"`
	HighSignalCount            int           `koanf:"high_signal_count"`
}

// EscalationConfig is the default policy table plus per-exam overrides.
// Zero fields of an override inherit the default.
type EscalationConfig struct {
	PolicyVersion     string                       `koanf:"policy_version"`
	MediumBurstCount  int                          `koanf:"medium_burst_count"`
	MediumBurstWindow time.Duration                `koanf:"medium_burst_window"`
	DigestInterval    time.Duration                `koanf:"digest_interval"`
	Exams             map[string]escalation.Policy `koanf:"exams"`
}

// SessionConfig holds session runtime settings.
type SessionConfig struct {
	TerminationTTL time.Duration `koanf:"termination_ttl"`
	Retention      time.Duration `koanf:"retention"`
	TickInterval   time.Duration `koanf:"tick_interval"`
	CommandTimeout time.Duration `koanf:"command_timeout"`
	MailboxSize    int           `koanf:"mailbox_size"`
}

// FanoutConfig holds subscription hub settings.
type FanoutConfig struct {
	SubscriberBuffer int           `koanf:"subscriber_buffer"`
	StallTimeout     time.Duration `koanf:"stall_timeout"`
	LogRetention     int           `koanf:"log_retention"`
	SweepInterval    time.Duration `koanf:"sweep_interval"`
	InboxSize        int           `koanf:"inbox_size"`
}

// StorageConfig selects the durable store.
type StorageConfig struct {
	Backend    string        `koanf:"backend"` // badger or memory
	Path       string        `koanf:"path"`
	InMemory   bool          `koanf:"in_memory"`
	GCInterval time.Duration `koanf:"gc_interval"`
}

// AuditConfig holds audit log settings.
type AuditConfig struct {
	Enabled         bool          `koanf:"enabled"`
	BufferSize      int           `koanf:"buffer_size"`
	RetentionDays   int           `koanf:"retention_days"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
	LogToStdout     bool          `koanf:"log_to_stdout"`
	MemoryCapacity  int           `koanf:"memory_capacity"`
}

// SecurityConfig holds authentication, authorization and HTTP limits.
type SecurityConfig struct {
	AuthMode          string        `koanf:"auth_mode"` // jwt or header
	JWTSecret         string        `koanf:"jwt_secret"`
	TokenTimeout      time.Duration `koanf:"token_timeout"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	Casbin            CasbinConfig  `koanf:"casbin"`
}

// CasbinConfig holds authorization policy settings. Empty paths use the
// embedded model and policy.
type CasbinConfig struct {
	ModelPath      string        `koanf:"model_path"`
	PolicyPath     string        `koanf:"policy_path"`
	ReloadInterval time.Duration `koanf:"reload_interval"`
	CacheTTL       time.Duration `koanf:"cache_ttl"`
}

// EventBusConfig holds external transport settings.
type EventBusConfig struct {
	Enabled        bool          `koanf:"enabled"`
	Backend        string        `koanf:"backend"` // gochannel or nats
	NATSURL        string        `koanf:"nats_url"`
	EmbeddedServer bool          `koanf:"embedded_server"`
	ServerHost     string        `koanf:"server_host"`
	ServerPort     int           `koanf:"server_port"`
	StoreDir       string        `koanf:"store_dir"`
	StreamName     string        `koanf:"stream_name"`
	StreamMaxAge   time.Duration `koanf:"stream_max_age"`
	DedupWindow    time.Duration `koanf:"dedup_window"`
	DurableName    string        `koanf:"durable_name"`
	QueueGroup     string        `koanf:"queue_group"`
	EventsTopic    string        `koanf:"events_topic"`
	SignalsTopic   string        `koanf:"signals_topic"`
	ForwardBatch   int           `koanf:"forward_batch"`

	BreakerMaxRequests      uint32        `koanf:"breaker_max_requests"`
	BreakerInterval         time.Duration `koanf:"breaker_interval"`
	BreakerTimeout          time.Duration `koanf:"breaker_timeout"`
	BreakerFailureThreshold uint32        `koanf:"breaker_failure_threshold"`

	RouterCloseTimeout         time.Duration `koanf:"router_close_timeout"`
	RouterRetryMaxRetries      int           `koanf:"router_retry_max_retries"`
	RouterRetryInitialInterval time.Duration `koanf:"router_retry_initial_interval"`
	RouterRetryMaxInterval     time.Duration `koanf:"router_retry_max_interval"`
	RouterRetryMultiplier      float64       `koanf:"router_retry_multiplier"`
}

// SupervisorConfig holds suture tree settings.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold"`
	FailureDecay     float64       `koanf:"failure_decay"`
	FailureBackoff   time.Duration `koanf:"failure_backoff"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout"`
}

// ToLoggingConfig returns the logger configuration, writing to stderr.
func (c *Config) ToLoggingConfig() logging.Config {
	return logging.Config{
		Level:     c.Logging.Level,
		Format:    c.Logging.Format,
		Caller:    c.Logging.Caller,
		Timestamp: true,
		Output:    os.Stderr,
	}
}

// ToIngressConfig returns the gateway configuration.
func (c *Config) ToIngressConfig() ingress.Config {
	return ingress.Config{
		ClockSkewTolerance: c.Ingress.ClockSkewTolerance,
		LatenessWindow:     c.Ingress.LatenessWindow,
		QueueSize:          c.Ingress.QueueSize,
		DedupCapacity:      c.Ingress.DedupCapacity,
		DedupTTL:           c.Ingress.DedupTTL,
		RatePerSession:     c.Ingress.RatePerSession,
		Burst:              c.Ingress.Burst,
	}
}

// ToEngineConfig returns the session engine configuration. The lateness
// window and buffer size are shared with ingress.
func (c *Config) ToEngineConfig() engine.Config {
	return engine.Config{
		LatenessWindow: c.Ingress.LatenessWindow,
		BufferSize:     c.Ingress.QueueSize,
		MailboxSize:    c.Session.MailboxSize,
		TerminationTTL: c.Session.TerminationTTL,
		Retention:      c.Session.Retention,
		TickInterval:   c.Session.TickInterval,
		CommandTimeout: c.Session.CommandTimeout,
		Aggregation: incident.Config{
			CorrelationGap:             c.Aggregation.CorrelationGap,
			MinConfidence:              c.Aggregation.MinConfidence,
			MediumConfidence:           c.Aggregation.MediumConfidence,
			HighConfidence:             c.Aggregation.HighConfidence,
			MultiChannelHighConfidence: c.Aggregation.MultiChannelHighConfidence,
			MediumSignalCount:          c.Aggregation.MediumSignalCount,
			HighSignalCount:            c.Aggregation.HighSignalCount,
		},
	}
}

// DefaultPolicy returns the default escalation policy table.
func (c *Config) DefaultPolicy() escalation.Policy {
	return escalation.Policy{
		Version:           c.Escalation.PolicyVersion,
		MediumBurstCount:  c.Escalation.MediumBurstCount,
		MediumBurstWindow: c.Escalation.MediumBurstWindow,
		DigestInterval:    c.Escalation.DigestInterval,
	}
}

// ToPolicyBook returns the policy book with every exam override.
func (c *Config) ToPolicyBook() *escalation.Book {
	return escalation.NewBook(c.DefaultPolicy(), c.Escalation.Exams)
}

// ToFanoutConfig returns the hub configuration.
func (c *Config) ToFanoutConfig() fanout.Config {
	return fanout.Config{
		SubscriberBuffer: c.Fanout.SubscriberBuffer,
		StallTimeout:     c.Fanout.StallTimeout,
		LogRetention:     c.Fanout.LogRetention,
		SweepInterval:    c.Fanout.SweepInterval,
		InboxSize:        c.Fanout.InboxSize,
	}
}

// ToAuditConfig returns the audit logger configuration.
func (c *Config) ToAuditConfig() *audit.Config {
	return &audit.Config{
		Enabled:         c.Audit.Enabled,
		LogLevel:        audit.SeverityDebug,
		RetentionDays:   c.Audit.RetentionDays,
		CleanupInterval: c.Audit.CleanupInterval,
		BufferSize:      c.Audit.BufferSize,
		LogToStdout:     c.Audit.LogToStdout,
	}
}

// ToEnforcerConfig returns the casbin enforcer configuration.
func (c *Config) ToEnforcerConfig() *authz.EnforcerConfig {
	return &authz.EnforcerConfig{
		ModelPath:      c.Security.Casbin.ModelPath,
		PolicyPath:     c.Security.Casbin.PolicyPath,
		ReloadInterval: c.Security.Casbin.ReloadInterval,
		CacheTTL:       c.Security.Casbin.CacheTTL,
	}
}

// ToEventBusConfig returns the event bus configuration.
func (c *Config) ToEventBusConfig() eventbus.Config {
	b := c.EventBus
	return eventbus.Config{
		Backend:        b.Backend,
		NATSURL:        b.NATSURL,
		EmbeddedServer: b.EmbeddedServer,
		ServerHost:     b.ServerHost,
		ServerPort:     b.ServerPort,
		StoreDir:       b.StoreDir,
		StreamName:     b.StreamName,
		StreamMaxAge:   b.StreamMaxAge,
		DedupWindow:    b.DedupWindow,
		DurableName:    b.DurableName,
		QueueGroup:     b.QueueGroup,
		EventsTopic:    b.EventsTopic,
		SignalsTopic:   b.SignalsTopic,
		ForwardBatch:   b.ForwardBatch,
		CircuitBreaker: eventbus.CircuitBreakerConfig{
			Name:             "eventbus-publish",
			MaxRequests:      b.BreakerMaxRequests,
			Interval:         b.BreakerInterval,
			Timeout:          b.BreakerTimeout,
			FailureThreshold: b.BreakerFailureThreshold,
		},
		Router: eventbus.RouterConfig{
			CloseTimeout:         b.RouterCloseTimeout,
			RetryMaxRetries:      b.RouterRetryMaxRetries,
			RetryInitialInterval: b.RouterRetryInitialInterval,
			RetryMaxInterval:     b.RouterRetryMaxInterval,
			RetryMultiplier:      b.RouterRetryMultiplier,
		},
	}
}

// ToTreeConfig returns the supervisor tree configuration.
func (c *Config) ToTreeConfig() supervisor.TreeConfig {
	return supervisor.TreeConfig{
		FailureThreshold: c.Supervisor.FailureThreshold,
		FailureDecay:     c.Supervisor.FailureDecay,
		FailureBackoff:   c.Supervisor.FailureBackoff,
		ShutdownTimeout:  c.Supervisor.ShutdownTimeout,
	}
}
