// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package main

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/config"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/escalation"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/fanout"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/ingress"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/logging"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/models"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/supervisor"
)

func init() {
	logging.Init(logging.Config{Output: io.Discard})
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadFile("")
	if err != nil {
		t.Skipf("environment overrides make defaults invalid: %v", err)
	}
	return cfg
}

func TestOpenStores(t *testing.T) {
	t.Setenv("JWT_SECRET", "k3v9QnW2pX7rT5yZ8aB4cD6eF1gH0jL2mN")

	t.Run("memory", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Storage.Backend = "memory"
		s, err := openStores(cfg)
		if err != nil {
			t.Fatalf("openStores: %v", err)
		}
		defer s.Close()
		if s.gc != nil || s.badger != nil {
			t.Error("memory backend should not schedule GC")
		}
		if err := s.Ping(context.Background()); err != nil {
			t.Errorf("Ping: %v", err)
		}
	})

	t.Run("badger", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Storage.Path = t.TempDir()
		s, err := openStores(cfg)
		if err != nil {
			t.Fatalf("openStores: %v", err)
		}
		if s.gc == nil || s.audit == nil {
			t.Fatal("badger backend should share the database with audit and run GC")
		}
		if err := s.gc(context.Background()); err != nil {
			t.Errorf("gc: %v", err)
		}
		if err := s.Ping(context.Background()); err != nil {
			t.Errorf("Ping: %v", err)
		}
		s.Close()
		if err := s.Ping(context.Background()); err == nil {
			t.Error("Ping after Close should fail")
		}
	})

	t.Run("unknown", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Storage.Backend = "postgres"
		if _, err := openStores(cfg); err == nil {
			t.Error("unknown backend should fail")
		}
	})
}

func TestNewAuthMiddleware(t *testing.T) {
	t.Setenv("JWT_SECRET", "k3v9QnW2pX7rT5yZ8aB4cD6eF1gH0jL2mN")
	cfg := testConfig(t)

	if _, err := newAuthMiddleware(cfg); err != nil {
		t.Errorf("jwt: %v", err)
	}
	cfg.Security.AuthMode = "header"
	if _, err := newAuthMiddleware(cfg); err != nil {
		t.Errorf("header: %v", err)
	}
	cfg.Security.AuthMode = "jwt"
	cfg.Security.JWTSecret = "short"
	if _, err := newAuthMiddleware(cfg); err == nil {
		t.Error("short secret should be rejected")
	}
}

func TestApplyExamPolicies(t *testing.T) {
	book := escalation.NewBook(escalation.DefaultPolicy(), nil)
	cfg := &config.Config{}
	cfg.Escalation.Exams = map[string]escalation.Policy{
		"final-chem-101": {Version: "strict", MediumBurstCount: 2},
		"midterm-bio":    {DigestInterval: 5 * time.Minute},
	}

	if n := applyExamPolicies(book, cfg); n != 2 {
		t.Errorf("applied %d, want 2", n)
	}
	if p := book.For("final-chem-101"); p.Version != "strict" || p.MediumBurstCount != 2 {
		t.Errorf("final-chem-101 = %+v", p)
	}
	if p := book.For("midterm-bio"); p.DigestInterval != 5*time.Minute || p.Version != escalation.DefaultPolicy().Version {
		t.Errorf("midterm-bio = %+v", p)
	}
}

type acceptingSubmitter struct{}

func (acceptingSubmitter) Submit(context.Context, ingress.SubmitRequest) (models.Receipt, error) {
	return models.Receipt{Status: models.ReceiptAccepted}, nil
}

func TestInitEventBusGoChannel(t *testing.T) {
	t.Setenv("JWT_SECRET", "k3v9QnW2pX7rT5yZ8aB4cD6eF1gH0jL2mN")
	cfg := testConfig(t)
	cfg.EventBus.Enabled = true
	cfg.EventBus.Backend = "gochannel"

	tree, err := supervisor.NewTree(logging.NewSlogLogger(), cfg.ToTreeConfig())
	if err != nil {
		t.Fatal(err)
	}
	bus, err := initEventBus(context.Background(), cfg, tree, fanout.NewHub(cfg.ToFanoutConfig()), acceptingSubmitter{})
	if err != nil {
		t.Fatalf("initEventBus: %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}

	cfg.EventBus.Backend = "kafka"
	if _, err := initEventBus(context.Background(), cfg, tree, fanout.NewHub(cfg.ToFanoutConfig()), acceptingSubmitter{}); err == nil {
		t.Error("unknown backend should fail")
	}
}
