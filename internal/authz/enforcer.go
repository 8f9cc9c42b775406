// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package authz

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"

	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/logging"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/metrics"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/models"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// Objects named in the policy.
const (
	ObjectSession      = "session"
	ObjectIncident     = "incident"
	ObjectSignal       = "signal"
	ObjectSubscription = "subscription"
	ObjectStats        = "stats"
	ObjectAudit        = "audit"
)

// Actions that are not Session Control command types.
const (
	ActionSchedule = "schedule"
	ActionRead     = "read"
	ActionUpdate   = "update"
	ActionSubmit   = "submit"
	ActionCreate   = "create"
)

// ErrNoAdapter is returned by LoadPolicy when the embedded policy is in use.
var ErrNoAdapter = errors.New("no policy adapter configured; using embedded policy")

// EnforcerConfig holds configuration for the Casbin enforcer.
type EnforcerConfig struct {
	// ModelPath overrides the embedded model when the file exists.
	ModelPath string

	// PolicyPath overrides the embedded policy when the file exists.
	PolicyPath string

	// ReloadInterval is how often a file policy is reloaded. Zero disables it.
	ReloadInterval time.Duration

	// CacheTTL is how long decisions are cached. Zero disables the cache.
	CacheTTL time.Duration
}

// DefaultEnforcerConfig returns default configuration.
func DefaultEnforcerConfig() *EnforcerConfig {
	return &EnforcerConfig{
		ReloadInterval: 30 * time.Second,
		CacheTTL:       5 * time.Minute,
	}
}

// Enforcer decides which role may perform which action on which object.
type Enforcer struct {
	config   *EnforcerConfig
	enforcer *casbin.SyncedEnforcer
	cache    *decisionCache
	fromFile bool
}

// NewEnforcer creates an enforcer from the configured or embedded model and policy.
func NewEnforcer(_ context.Context, config *EnforcerConfig) (*Enforcer, error) {
	if config == nil {
		config = DefaultEnforcerConfig()
	}

	var (
		m   model.Model
		err error
	)
	if config.ModelPath != "" && fileExists(config.ModelPath) {
		m, err = model.NewModelFromFile(config.ModelPath)
	} else {
		m, err = model.NewModelFromString(embeddedModel)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load casbin model: %w", err)
	}

	var enforcer *casbin.SyncedEnforcer
	fromFile := config.PolicyPath != "" && fileExists(config.PolicyPath)
	if fromFile {
		enforcer, err = casbin.NewSyncedEnforcer(m, fileadapter.NewAdapter(config.PolicyPath))
	} else {
		enforcer, err = casbin.NewSyncedEnforcer(m)
		if err == nil {
			err = loadPolicyText(enforcer, embeddedPolicy)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}

	if fromFile && config.ReloadInterval > 0 {
		enforcer.StartAutoLoadPolicy(config.ReloadInterval)
	}

	e := &Enforcer{
		config:   config,
		enforcer: enforcer,
		fromFile: fromFile,
	}
	if config.CacheTTL > 0 {
		e.cache = newDecisionCache(config.CacheTTL, time.Now)
	}

	logging.Info().
		Bool("policy_file", fromFile).
		Dur("cache_ttl", config.CacheTTL).
		Msg("Authorization enforcer ready")
	return e, nil
}

// loadPolicyText adds the p and g lines of a CSV policy.
func loadPolicyText(enforcer *casbin.SyncedEnforcer, policy string) error {
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		switch parts[0] {
		case "p":
			if len(parts) != 4 {
				return fmt.Errorf("malformed policy line %q", line)
			}
			if _, err := enforcer.AddPolicy(parts[1], parts[2], parts[3]); err != nil {
				return fmt.Errorf("failed to add policy %v: %w", parts[1:], err)
			}
		case "g":
			if len(parts) != 3 {
				return fmt.Errorf("malformed grouping line %q", line)
			}
			if _, err := enforcer.AddGroupingPolicy(parts[1], parts[2]); err != nil {
				return fmt.Errorf("failed to add grouping policy %v: %w", parts[1:], err)
			}
		}
	}
	return nil
}

// Enforce reports whether role may perform action on object.
func (e *Enforcer) Enforce(role, object, action string) (bool, error) {
	if e.cache != nil {
		if allowed, ok := e.cache.get(role, object, action); ok {
			metrics.AuthzCacheHits.Inc()
			return allowed, nil
		}
	}

	allowed, err := e.enforcer.Enforce(role, object, action)
	if err != nil {
		return false, fmt.Errorf("enforcement failed: %w", err)
	}
	if e.cache != nil {
		e.cache.set(role, object, action, allowed)
	}
	return allowed, nil
}

// Authorize returns models.ErrNotAuthorized unless actor's role may perform
// action on object. An actor without a valid role is always denied.
func (e *Enforcer) Authorize(actor models.Actor, object, action string) error {
	if actor.ID == "" || (actor.Role != models.RoleSystem && !models.IsValidRole(string(actor.Role))) {
		metrics.RecordAuthz(object, false)
		return models.Errorf(models.ErrNotAuthorized, "unknown caller role %q", actor.Role)
	}

	allowed, err := e.Enforce(string(actor.Role), object, action)
	if err != nil {
		logging.Error().Err(err).Str("object", object).Str("action", action).Msg("Authorization error")
		metrics.RecordAuthz(object, false)
		return models.Errorf(models.ErrNotAuthorized, "authorization unavailable")
	}
	metrics.RecordAuthz(object, allowed)
	if !allowed {
		logging.Debug().
			Str("actor_id", actor.ID).
			Str("role", string(actor.Role)).
			Str("object", object).
			Str("action", action).
			Msg("Authorization denied")
		return models.Errorf(models.ErrNotAuthorized, "%s may not %s %s", actor.Role, action, object)
	}
	return nil
}

// AuthorizeCommand authorizes a Session Control command by its type.
func (e *Enforcer) AuthorizeCommand(actor models.Actor, cmd models.CommandType) error {
	return e.Authorize(actor, ObjectSession, string(cmd))
}

// AddPolicy grants role action on object at runtime.
func (e *Enforcer) AddPolicy(role, object, action string) (bool, error) {
	added, err := e.enforcer.AddPolicy(role, object, action)
	if err != nil {
		return false, fmt.Errorf("failed to add policy: %w", err)
	}
	if e.cache != nil {
		e.cache.clear()
	}
	return added, nil
}

// RemovePolicy revokes a grant.
func (e *Enforcer) RemovePolicy(role, object, action string) (bool, error) {
	removed, err := e.enforcer.RemovePolicy(role, object, action)
	if err != nil {
		return false, fmt.Errorf("failed to remove policy: %w", err)
	}
	if e.cache != nil {
		e.cache.clear()
	}
	return removed, nil
}

// LoadPolicy reloads the policy file. Returns ErrNoAdapter when the
// embedded policy is in use.
func (e *Enforcer) LoadPolicy() error {
	if !e.fromFile {
		return ErrNoAdapter
	}
	if err := e.enforcer.LoadPolicy(); err != nil {
		return err
	}
	if e.cache != nil {
		e.cache.clear()
	}
	return nil
}

// Close stops policy reloading.
func (e *Enforcer) Close() {
	e.enforcer.StopAutoLoadPolicy()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
