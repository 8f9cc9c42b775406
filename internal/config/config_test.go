// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package config

import (
	"strings"
	"testing"
	"time"

	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/engine"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/escalation"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/fanout"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/ingress"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/supervisor"
)

const testSecret = "k3v9QnW2pX7rT5yZ8aB4cD6eF1gH0jL2mN"

// validConfig returns defaults that pass Validate.
func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Security.JWTSecret = testSecret
	return cfg
}

func TestDefaultConfigIsValidWithSecret(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := defaultConfig().Validate(); err == nil || !strings.Contains(err.Error(), "JWT_SECRET") {
		t.Errorf("defaults without a secret: err = %v, want JWT_SECRET error", err)
	}
}

func TestConvertersMatchPackageDefaults(t *testing.T) {
	cfg := validConfig()

	if got, want := cfg.ToIngressConfig(), ingress.DefaultConfig(); got != want {
		t.Errorf("ingress = %+v, want %+v", got, want)
	}
	if got, want := cfg.ToEngineConfig(), engine.DefaultConfig(); got != want {
		t.Errorf("engine = %+v, want %+v", got, want)
	}
	if got, want := cfg.ToFanoutConfig(), fanout.DefaultConfig(); got != want {
		t.Errorf("fanout = %+v, want %+v", got, want)
	}
	if got, want := cfg.DefaultPolicy(), escalation.DefaultPolicy(); got != want {
		t.Errorf("policy = %+v, want %+v", got, want)
	}
	if got, want := cfg.ToTreeConfig(), supervisor.DefaultTreeConfig(); got != want {
		t.Errorf("tree = %+v, want %+v", got, want)
	}
}

func TestToEventBusConfig(t *testing.T) {
	cfg := validConfig()
	cfg.EventBus.BreakerFailureThreshold = 9
	cfg.EventBus.RouterRetryMaxRetries = 2

	bus := cfg.ToEventBusConfig()
	if bus.Backend != "nats" || bus.StreamName != "INVIGILATOR" {
		t.Errorf("bus = %+v", bus)
	}
	if bus.CircuitBreaker.FailureThreshold != 9 || bus.CircuitBreaker.Name == "" {
		t.Errorf("breaker = %+v", bus.CircuitBreaker)
	}
	if bus.Router.RetryMaxRetries != 2 {
		t.Errorf("router = %+v", bus.Router)
	}
}

func TestToPolicyBookAppliesOverrides(t *testing.T) {
	cfg := validConfig()
	cfg.Escalation.Exams = map[string]escalation.Policy{
		"final-chem-101": {Version: "strict", MediumBurstCount: 2},
	}
	book := cfg.ToPolicyBook()

	strict := book.For("final-chem-101")
	if strict.Version != "strict" || strict.MediumBurstCount != 2 {
		t.Errorf("override = %+v", strict)
	}
	if strict.MediumBurstWindow != cfg.Escalation.MediumBurstWindow {
		t.Errorf("zero window was not inherited: %v", strict.MediumBurstWindow)
	}
	if got := book.For("other"); got != cfg.DefaultPolicy() {
		t.Errorf("fallback = %+v", got)
	}
}

func TestToAuditAndEnforcerConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Audit.RetentionDays = 7
	cfg.Security.Casbin.PolicyPath = "/etc/invigilator/policy.csv"

	if a := cfg.ToAuditConfig(); !a.Enabled || a.RetentionDays != 7 || a.BufferSize != 1000 {
		t.Errorf("audit = %+v", a)
	}
	if e := cfg.ToEnforcerConfig(); e.PolicyPath != "/etc/invigilator/policy.csv" || e.CacheTTL != 5*time.Minute {
		t.Errorf("enforcer = %+v", e)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"port zero", func(c *Config) { c.Server.Port = 0 }, "HTTP_PORT"},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }, "HTTP_PORT"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "LOG_LEVEL"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "LOG_FORMAT"},
		{"negative skew", func(c *Config) { c.Ingress.ClockSkewTolerance = -time.Second }, "CLOCK_SKEW"},
		{"dedup shorter than lateness", func(c *Config) { c.Ingress.DedupTTL = time.Second }, "INGRESS_DEDUP_TTL"},
		{"zero queue", func(c *Config) { c.Ingress.QueueSize = 0 }, "INGRESS_QUEUE_SIZE"},
		{"confidence above one", func(c *Config) { c.Aggregation.HighConfidence = 1.5 }, "AGGREGATION_HIGH_CONFIDENCE"},
		{"confidences out of order", func(c *Config) { c.Aggregation.MinConfidence = 0.7 }, "min <= medium <= high"},
		{"multi channel above high", func(c *Config) { c.Aggregation.MultiChannelHighConfidence = 0.95 }, "MULTI_CHANNEL"},
		{"signal counts out of order", func(c *Config) { c.Aggregation.HighSignalCount = 2 }, "signal counts"},
		{"empty policy version", func(c *Config) { c.Escalation.PolicyVersion = "" }, "policy_version"},
		{"zero burst count", func(c *Config) { c.Escalation.MediumBurstCount = 0 }, "medium_burst_count"},
		{"negative exam override", func(c *Config) {
			c.Escalation.Exams = map[string]escalation.Policy{"x": {MediumBurstWindow: -time.Minute}}
		}, `exam "x"`},
		{"zero termination ttl", func(c *Config) { c.Session.TerminationTTL = 0 }, "SESSION_TERMINATION_TTL"},
		{"tick longer than ttl", func(c *Config) { c.Session.TickInterval = 2 * time.Minute }, "SESSION_TICK_INTERVAL"},
		{"retention below buffer", func(c *Config) { c.Fanout.LogRetention = 10 }, "FANOUT_LOG_RETENTION"},
		{"unknown storage", func(c *Config) { c.Storage.Backend = "postgres" }, "STORAGE_BACKEND"},
		{"badger without path", func(c *Config) { c.Storage.Path = "" }, "STORAGE_PATH"},
		{"audit buffer", func(c *Config) { c.Audit.BufferSize = 0 }, "AUDIT_BUFFER_SIZE"},
		{"unknown auth mode", func(c *Config) { c.Security.AuthMode = "none" }, "AUTH_MODE"},
		{"short secret", func(c *Config) { c.Security.JWTSecret = "short" }, "at least 32"},
		{"placeholder secret", func(c *Config) { c.Security.JWTSecret = "CHANGEME-CHANGEME-CHANGEME-CHANGEME" }, "placeholder"},
		{"header auth in production", func(c *Config) {
			c.Server.Environment = "production"
			c.Security.AuthMode = "header"
		}, "AUTH_MODE=header"},
		{"wildcard cors in production", func(c *Config) { c.Server.Environment = "production" }, "CORS_ORIGINS"},
		{"rate limit window", func(c *Config) { c.Security.RateLimitWindow = time.Millisecond }, "RATE_LIMIT_WINDOW"},
		{"rate limit requests", func(c *Config) { c.Security.RateLimitReqs = 0 }, "RATE_LIMIT_REQUESTS"},
		{"unknown bus backend", func(c *Config) {
			c.EventBus.Enabled = true
			c.EventBus.Backend = "kafka"
		}, "EVENTBUS_BACKEND"},
		{"external nats without url", func(c *Config) {
			c.EventBus.Enabled = true
			c.EventBus.EmbeddedServer = false
			c.EventBus.NATSURL = ""
		}, "NATS_URL"},
		{"same topics", func(c *Config) {
			c.EventBus.Enabled = true
			c.EventBus.SignalsTopic = c.EventBus.EventsTopic
		}, "different topics"},
		{"supervisor backoff", func(c *Config) { c.Supervisor.FailureBackoff = 0 }, "SUPERVISOR_FAILURE_BACKOFF"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateAcceptsAlternatives(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"header auth in development", func(c *Config) {
			c.Security.AuthMode = "header"
			c.Security.JWTSecret = ""
		}},
		{"memory storage without path", func(c *Config) {
			c.Storage.Backend = "memory"
			c.Storage.Path = ""
		}},
		{"production with explicit origins", func(c *Config) {
			c.Server.Environment = "production"
			c.Security.CORSOrigins = []string{"https://proctor.example.edu"}
		}},
		{"rate limit disabled ignores bounds", func(c *Config) {
			c.Security.RateLimitDisabled = true
			c.Security.RateLimitReqs = 0
		}},
		{"disabled bus skips checks", func(c *Config) { c.EventBus.Backend = "kafka" }},
		{"gochannel bus", func(c *Config) {
			c.EventBus.Enabled = true
			c.EventBus.Backend = "gochannel"
		}},
		{"disabled audit skips checks", func(c *Config) {
			c.Audit.Enabled = false
			c.Audit.BufferSize = 0
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err != nil {
				t.Errorf("Validate() = %v", err)
			}
		})
	}
}

func TestEnvironmentHelpers(t *testing.T) {
	tests := []struct {
		env        string
		production bool
		dev        bool
	}{
		{"", false, true},
		{"development", false, true},
		{"DEV", false, true},
		{"staging", false, false},
		{"production", true, false},
		{"Prod", true, false},
	}
	for _, tt := range tests {
		cfg := &Config{Server: ServerConfig{Environment: tt.env}}
		if cfg.IsProduction() != tt.production || cfg.IsDevelopment() != tt.dev {
			t.Errorf("%q: IsProduction=%v IsDevelopment=%v", tt.env, cfg.IsProduction(), cfg.IsDevelopment())
		}
	}
}

func TestShouldWarnAboutCORS(t *testing.T) {
	cfg := validConfig()
	if !cfg.ShouldWarnAboutCORS() {
		t.Error("wildcard default should warn")
	}
	cfg.Security.CORSOrigins = []string{"https://proctor.example.edu"}
	if cfg.ShouldWarnAboutCORS() {
		t.Error("explicit origins should not warn")
	}
}

func TestServerAddr(t *testing.T) {
	if got := (ServerConfig{Host: "127.0.0.1", Port: 9000}).Addr(); got != "127.0.0.1:9000" {
		t.Errorf("Addr() = %q", got)
	}
}
