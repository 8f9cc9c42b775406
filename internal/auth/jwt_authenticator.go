// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/models"
)

// TokenQueryParam carries the token for websocket upgrades, where browsers
// cannot set an Authorization header.
const TokenQueryParam = "access_token"

// JWTAuthenticator identifies callers by bearer token.
type JWTAuthenticator struct {
	manager *JWTManager
}

// NewJWTAuthenticator creates a new JWT authenticator.
func NewJWTAuthenticator(manager *JWTManager) *JWTAuthenticator {
	return &JWTAuthenticator{manager: manager}
}

// Authenticate extracts and validates the JWT from the request.
func (a *JWTAuthenticator) Authenticate(_ context.Context, r *http.Request) (models.Actor, error) {
	tokenStr := extractToken(r)
	if tokenStr == "" {
		return models.Actor{}, ErrNoCredentials
	}

	claims, err := a.manager.ValidateToken(tokenStr)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return models.Actor{}, ErrExpiredCredentials
		}
		return models.Actor{}, ErrInvalidCredentials
	}
	return actorFor(claims.Subject, claims.Role)
}

// Name returns the authenticator name.
func (a *JWTAuthenticator) Name() string {
	return string(AuthModeJWT)
}

func extractToken(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return r.URL.Query().Get(TokenQueryParam)
}

// HeaderAuthenticator trusts identity headers set by an authenticating gateway.
type HeaderAuthenticator struct{}

// Identity headers read in header mode.
const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
)

// Authenticate reads the actor from the gateway headers.
func (HeaderAuthenticator) Authenticate(_ context.Context, r *http.Request) (models.Actor, error) {
	id := r.Header.Get(HeaderActorID)
	if id == "" {
		return models.Actor{}, ErrNoCredentials
	}
	return actorFor(id, r.Header.Get(HeaderActorRole))
}

// Name returns the authenticator name.
func (HeaderAuthenticator) Name() string {
	return string(AuthModeHeader)
}
