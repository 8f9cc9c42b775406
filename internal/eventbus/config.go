// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package eventbus

import "time"

// Backends.
const (
	BackendGoChannel = "gochannel"
	BackendNATS      = "nats"
)

// Config holds event bus settings.
type Config struct {
	Backend string

	// NATSURL is used when EmbeddedServer is false.
	NATSURL        string
	EmbeddedServer bool
	ServerHost     string
	ServerPort     int
	StoreDir       string
	StreamName     string
	StreamMaxAge   time.Duration
	DedupWindow    time.Duration
	DurableName    string
	QueueGroup     string

	EventsTopic  string
	SignalsTopic string

	// ForwardBatch is the page size the forwarder reads from the hub.
	ForwardBatch int

	CircuitBreaker CircuitBreakerConfig
	Router         RouterConfig
}

// CircuitBreakerConfig configures the publish circuit breaker.
type CircuitBreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// RouterConfig configures the signal consumer router.
type RouterConfig struct {
	CloseTimeout         time.Duration
	RetryMaxRetries      int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	RetryMultiplier      float64
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Backend:        BackendGoChannel,
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
		CircuitBreaker: CircuitBreakerConfig{
			Name:             "eventbus-publish",
			MaxRequests:      1,
			Interval:         time.Minute,
			Timeout:          30 * time.Second,
			FailureThreshold: 5,
		},
		Router: RouterConfig{
			CloseTimeout:         10 * time.Second,
			RetryMaxRetries:      5,
			RetryInitialInterval: 100 * time.Millisecond,
			RetryMaxInterval:     5 * time.Second,
			RetryMultiplier:      2.0,
		},
	}
}

// PoisonTopic is where signals that exhausted their retries are parked.
func (c Config) PoisonTopic() string {
	return c.SignalsTopic + ".poison"
}
