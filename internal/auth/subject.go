// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/models"
)

// AuthMode selects how callers are identified.
type AuthMode string

const (
	// AuthModeJWT verifies HS256 tokens issued by the identity service.
	AuthModeJWT AuthMode = "jwt"

	// AuthModeHeader trusts X-Actor-ID and X-Actor-Role set by a gateway
	// that has already authenticated the caller.
	AuthModeHeader AuthMode = "header"
)

// ParseAuthMode converts a string to AuthMode.
func ParseAuthMode(s string) (AuthMode, error) {
	switch s {
	case "jwt", "":
		return AuthModeJWT, nil
	case "header":
		return AuthModeHeader, nil
	default:
		return "", errors.New("invalid auth mode: " + s)
	}
}

// String returns the string representation of AuthMode.
func (m AuthMode) String() string {
	return string(m)
}

// Standard authentication errors
var (
	// ErrNoCredentials indicates no credentials were provided.
	ErrNoCredentials = errors.New("no credentials provided")

	// ErrInvalidCredentials indicates credentials were invalid.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrExpiredCredentials indicates credentials have expired.
	ErrExpiredCredentials = errors.New("credentials expired")

	// ErrUnknownRole indicates the credentials carry a role this service does not accept.
	ErrUnknownRole = errors.New("unknown role")
)

// Authenticator identifies the caller of a request.
type Authenticator interface {
	// Authenticate extracts and validates credentials from the request.
	Authenticate(ctx context.Context, r *http.Request) (models.Actor, error)

	// Name returns the authenticator's name for logging.
	Name() string
}

type contextKey string

const actorContextKey contextKey = "invigilator_actor"

// ContextWithActor returns ctx carrying the authenticated actor.
func ContextWithActor(ctx context.Context, actor models.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey, actor)
}

// ActorFromContext returns the authenticated actor, if any.
func ActorFromContext(ctx context.Context) (models.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey).(models.Actor)
	return actor, ok
}

func actorFor(id, role string) (models.Actor, error) {
	if id == "" {
		return models.Actor{}, ErrInvalidCredentials
	}
	if !models.IsValidRole(role) {
		return models.Actor{}, ErrUnknownRole
	}
	return models.Actor{ID: id, Role: models.Role(role)}, nil
}
