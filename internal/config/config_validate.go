// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/escalation"
)

// Validate checks that the configuration is complete and consistent.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateServer,
		c.validateLogging,
		c.validateIngress,
		c.validateAggregation,
		c.validateEscalation,
		c.validateSession,
		c.validateFanout,
		c.validateStorage,
		c.validateAudit,
		c.validateSecurity,
		c.validateEventBus,
		c.validateSupervisor,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive")
	}
	return nil
}

// IsProduction reports whether ENVIRONMENT is production.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Server.Environment)
	return env == "production" || env == "prod"
}

// IsDevelopment reports whether ENVIRONMENT is development or unset.
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(c.Server.Environment)
	return env == "" || env == "development" || env == "dev"
}

var validLogLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"json":    true,
	"console": true,
}

func (c *Config) validateLogging() error {
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error")
	}
	if c.Logging.Format != "" && !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}
	return nil
}

func (c *Config) validateIngress() error {
	in := c.Ingress
	if in.ClockSkewTolerance < 0 {
		return fmt.Errorf("INGRESS_CLOCK_SKEW_TOLERANCE must not be negative")
	}
	if in.LatenessWindow < 0 {
		return fmt.Errorf("INGRESS_LATENESS_WINDOW must not be negative")
	}
	if in.QueueSize < 1 {
		return fmt.Errorf("INGRESS_QUEUE_SIZE must be at least 1")
	}
	if in.DedupCapacity < 1 {
		return fmt.Errorf("INGRESS_DEDUP_CAPACITY must be at least 1")
	}
	if in.DedupTTL < in.LatenessWindow {
		// A duplicate arriving inside the lateness window must still be recognized.
		return fmt.Errorf("INGRESS_DEDUP_TTL (%v) must not be shorter than INGRESS_LATENESS_WINDOW (%v)",
			in.DedupTTL, in.LatenessWindow)
	}
	if in.RatePerSession <= 0 || in.Burst < 1 {
		return fmt.Errorf("INGRESS_RATE_PER_SESSION and INGRESS_BURST must be positive")
	}
	return nil
}

func (c *Config) validateAggregation() error {
	a := c.Aggregation
	if a.CorrelationGap <= 0 {
		return fmt.Errorf("AGGREGATION_CORRELATION_GAP must be positive")
	}
	for name, v := range map[string]float64{
		"AGGREGATION_MIN_CONFIDENCE":                a.MinConfidence,
		"AGGREGATION_MEDIUM_CONFIDENCE":             a.MediumConfidence,
		"AGGREGATION_HIGH_CONFIDENCE":               a.HighConfidence,
		"AGGREGATION_MULTI_CHANNEL_HIGH_CONFIDENCE": a.MultiChannelHighConfidence,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be within [0, 1], got %v", name, v)
		}
	}
	if a.MinConfidence > a.MediumConfidence || a.MediumConfidence > a.HighConfidence {
		return fmt.Errorf("aggregation confidences must satisfy min <= medium <= high")
	}
	if a.MultiChannelHighConfidence > a.HighConfidence {
		return fmt.Errorf("AGGREGATION_MULTI_CHANNEL_HIGH_CONFIDENCE must not exceed AGGREGATION_HIGH_CONFIDENCE")
	}
	if a.MediumSignalCount < 1 || a.HighSignalCount < a.MediumSignalCount {
		return fmt.Errorf("aggregation signal counts must satisfy 1 <= medium <= high")
	}
	return nil
}

func (c *Config) validateEscalation() error {
	if err := validatePolicy("default", c.DefaultPolicy()); err != nil {
		return err
	}
	exams := make([]string, 0, len(c.Escalation.Exams))
	for exam := range c.Escalation.Exams {
		exams = append(exams, exam)
	}
	sort.Strings(exams)
	for _, exam := range exams {
		p := c.Escalation.Exams[exam]
		if p.MediumBurstCount < 0 || p.MediumBurstWindow < 0 || p.DigestInterval < 0 {
			return fmt.Errorf("escalation policy for exam %q has negative values", exam)
		}
	}
	return nil
}

func validatePolicy(name string, p escalation.Policy) error {
	if p.Version == "" {
		return fmt.Errorf("escalation policy %s: policy_version is required", name)
	}
	if p.MediumBurstCount < 1 {
		return fmt.Errorf("escalation policy %s: medium_burst_count must be at least 1", name)
	}
	if p.MediumBurstWindow <= 0 || p.DigestInterval <= 0 {
		return fmt.Errorf("escalation policy %s: medium_burst_window and digest_interval must be positive", name)
	}
	return nil
}

func (c *Config) validateSession() error {
	s := c.Session
	if s.TerminationTTL <= 0 {
		return fmt.Errorf("SESSION_TERMINATION_TTL must be positive")
	}
	if s.Retention <= 0 {
		return fmt.Errorf("SESSION_RETENTION must be positive")
	}
	if s.TickInterval <= 0 || s.TickInterval > s.TerminationTTL {
		return fmt.Errorf("SESSION_TICK_INTERVAL must be positive and not longer than SESSION_TERMINATION_TTL")
	}
	if s.CommandTimeout <= 0 {
		return fmt.Errorf("SESSION_COMMAND_TIMEOUT must be positive")
	}
	if s.MailboxSize < 1 {
		return fmt.Errorf("SESSION_MAILBOX_SIZE must be at least 1")
	}
	return nil
}

func (c *Config) validateFanout() error {
	f := c.Fanout
	if f.SubscriberBuffer < 1 || f.InboxSize < 1 {
		return fmt.Errorf("FANOUT_SUBSCRIBER_BUFFER and FANOUT_INBOX_SIZE must be at least 1")
	}
	if f.LogRetention < f.SubscriberBuffer {
		return fmt.Errorf("FANOUT_LOG_RETENTION must be at least FANOUT_SUBSCRIBER_BUFFER")
	}
	if f.StallTimeout <= 0 || f.SweepInterval <= 0 {
		return fmt.Errorf("FANOUT_STALL_TIMEOUT and FANOUT_SWEEP_INTERVAL must be positive")
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case "memory":
		return nil
	case "badger":
		if c.Storage.Path == "" && !c.Storage.InMemory {
			return fmt.Errorf("STORAGE_PATH is required when STORAGE_BACKEND=badger")
		}
		return nil
	default:
		return fmt.Errorf("STORAGE_BACKEND must be one of: badger, memory")
	}
}

func (c *Config) validateAudit() error {
	if !c.Audit.Enabled {
		return nil
	}
	if c.Audit.BufferSize < 1 {
		return fmt.Errorf("AUDIT_BUFFER_SIZE must be at least 1")
	}
	if c.Audit.RetentionDays < 0 {
		return fmt.Errorf("AUDIT_RETENTION_DAYS must not be negative")
	}
	return nil
}

var validAuthModes = map[string]bool{
	"jwt":    true,
	"header": true,
}

// Rate limit bounds.
const (
	minRateLimitRequests = 1
	maxRateLimitRequests = 100000
	minRateLimitWindow   = time.Second
	maxRateLimitWindow   = time.Hour
)

func (c *Config) validateSecurity() error {
	if !validAuthModes[c.Security.AuthMode] {
		return fmt.Errorf("AUTH_MODE must be one of: jwt, header")
	}
	if c.Security.AuthMode == "header" && c.IsProduction() {
		return fmt.Errorf("AUTH_MODE=header trusts client-supplied identity and is not allowed when ENVIRONMENT=production")
	}
	if c.Security.AuthMode == "jwt" {
		if err := c.validateJWTSecret(); err != nil {
			return err
		}
	}
	if c.hasWildcardCORS() && c.IsProduction() {
		return fmt.Errorf("CORS_ORIGINS=* (wildcard) is not allowed in production; set explicit origins")
	}
	return c.validateRateLimits()
}

func (c *Config) validateJWTSecret() error {
	if c.Security.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when AUTH_MODE is jwt")
	}
	if len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters for security")
	}
	if containsPlaceholder(c.Security.JWTSecret) {
		return fmt.Errorf("JWT_SECRET contains a placeholder value - generate a secure secret with: openssl rand -base64 32")
	}
	return nil
}

func (c *Config) hasWildcardCORS() bool {
	for _, origin := range c.Security.CORSOrigins {
		if origin == "*" {
			return true
		}
	}
	return false
}

// ShouldWarnAboutCORS reports a wildcard CORS setting outside production,
// which startup logs as a warning.
func (c *Config) ShouldWarnAboutCORS() bool {
	return c.hasWildcardCORS()
}

func (c *Config) validateRateLimits() error {
	if c.Security.RateLimitDisabled {
		return nil
	}
	if c.Security.RateLimitReqs < minRateLimitRequests || c.Security.RateLimitReqs > maxRateLimitRequests {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be between %d and %d", minRateLimitRequests, maxRateLimitRequests)
	}
	if c.Security.RateLimitWindow < minRateLimitWindow || c.Security.RateLimitWindow > maxRateLimitWindow {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be between %v and %v", minRateLimitWindow, maxRateLimitWindow)
	}
	return nil
}

func (c *Config) validateEventBus() error {
	b := c.EventBus
	if !b.Enabled {
		return nil
	}
	switch b.Backend {
	case "gochannel":
	case "nats":
		if !b.EmbeddedServer && b.NATSURL == "" {
			return fmt.Errorf("NATS_URL is required when NATS_EMBEDDED=false")
		}
		if b.EmbeddedServer && (b.ServerPort < 1 || b.ServerPort > 65535) {
			return fmt.Errorf("NATS_SERVER_PORT must be between 1 and 65535")
		}
		if b.StreamName == "" || b.DurableName == "" {
			return fmt.Errorf("NATS_STREAM_NAME and NATS_DURABLE_NAME are required")
		}
	default:
		return fmt.Errorf("EVENTBUS_BACKEND must be one of: gochannel, nats")
	}
	if b.EventsTopic == "" || b.SignalsTopic == "" {
		return fmt.Errorf("EVENTBUS_EVENTS_TOPIC and EVENTBUS_SIGNALS_TOPIC are required")
	}
	if b.EventsTopic == b.SignalsTopic {
		return fmt.Errorf("events and signals must use different topics")
	}
	if b.ForwardBatch < 1 {
		return fmt.Errorf("EVENTBUS_FORWARD_BATCH must be at least 1")
	}
	return nil
}

func (c *Config) validateSupervisor() error {
	s := c.Supervisor
	if s.FailureThreshold <= 0 || s.FailureDecay <= 0 {
		return fmt.Errorf("SUPERVISOR_FAILURE_THRESHOLD and SUPERVISOR_FAILURE_DECAY must be positive")
	}
	if s.FailureBackoff <= 0 || s.ShutdownTimeout <= 0 {
		return fmt.Errorf("SUPERVISOR_FAILURE_BACKOFF and SUPERVISOR_SHUTDOWN_TIMEOUT must be positive")
	}
	return nil
}

// placeholderPatterns mark values someone forgot to replace.
var placeholderPatterns = []string{
	"REPLACE",
	"CHANGEME",
	"CHANGE_ME",
	"YOUR_SECRET",
	"PLACEHOLDER",
	"EXAMPLE",
}

func containsPlaceholder(value string) bool {
	upper := strings.ToUpper(value)
	for _, pattern := range placeholderPatterns {
		if strings.Contains(upper, pattern) {
			return true
		}
	}
	return false
}
