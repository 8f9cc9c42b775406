// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

// Package auth identifies API callers.
//
// Login is handled by an external identity service. This package only turns
// a request into a models.Actor (id and role):
//
//   - jwt: an HS256 token in the Authorization header (or the access_token
//     query parameter for websocket upgrades), subject = actor id, claim
//     "role" = admin, proctor, student or detector.
//   - header: X-Actor-ID and X-Actor-Role, for deployments behind a gateway
//     that already authenticated the caller.
//
// Whether the role may perform an action is decided by internal/authz.
//
//	mgr, err := auth.NewJWTManager(cfg.Security.JWTSecret, time.Hour)
//	mw, err := auth.NewMiddleware(auth.MiddlewareConfig{AuthMode: auth.AuthModeJWT, JWTManager: mgr})
//	r.Use(mw.Authenticate)
//
//	actor, ok := auth.ActorFromContext(r.Context())
package auth
