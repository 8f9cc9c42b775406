// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package auth

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/logging"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/metrics"
)

// MiddlewareConfig holds configuration for Middleware.
type MiddlewareConfig struct {
	// AuthMode specifies the authentication mode.
	AuthMode AuthMode

	// JWTManager is required in jwt mode.
	JWTManager *JWTManager
}

// Middleware authenticates every request and stores the actor in its context.
type Middleware struct {
	authenticator Authenticator
}

// NewMiddleware creates authentication middleware for the configured mode.
func NewMiddleware(cfg MiddlewareConfig) (*Middleware, error) {
	switch cfg.AuthMode {
	case AuthModeJWT:
		if cfg.JWTManager == nil {
			return nil, errors.New("JWT manager required for jwt auth mode")
		}
		return &Middleware{authenticator: NewJWTAuthenticator(cfg.JWTManager)}, nil
	case AuthModeHeader:
		return &Middleware{authenticator: HeaderAuthenticator{}}, nil
	default:
		return nil, errors.New("unsupported auth mode: " + string(cfg.AuthMode))
	}
}

// Authenticate rejects unauthenticated requests with 401.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, err := m.authenticator.Authenticate(r.Context(), r)
		if err != nil {
			reason := failureReason(err)
			metrics.AuthFailures.WithLabelValues(m.authenticator.Name(), reason).Inc()
			logging.Ctx(r.Context()).Debug().
				Str("mode", m.authenticator.Name()).
				Str("reason", reason).
				Str("path", r.URL.Path).
				Msg("Authentication failed")
			writeUnauthorized(w, err)
			return
		}

		ctx := ContextWithActor(r.Context(), actor)
		ctx = logging.ContextWithActorID(ctx, actor.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrNoCredentials):
		return "no_credentials"
	case errors.Is(err, ErrExpiredCredentials):
		return "expired"
	case errors.Is(err, ErrUnknownRole):
		return "unknown_role"
	default:
		return "invalid"
	}
}

type errorBody struct {
	Success bool `json:"success"`
	Error   struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeUnauthorized(w http.ResponseWriter, err error) {
	body := errorBody{}
	body.Error.Code = "UNAUTHENTICATED"
	body.Error.Message = err.Error()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="invigilator"`)
	w.WriteHeader(http.StatusUnauthorized)
	//nolint:errcheck // client may have gone away
	json.NewEncoder(w).Encode(body)
}
