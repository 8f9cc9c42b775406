// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

// Package authz decides which caller role may perform which action using Casbin.
//
// Roles come from the identity service (see internal/auth). The policy grants
// coarse permissions per role; finer checks that depend on session state,
// such as whether a proctor is assigned to a session or a student owns it,
// are made by the session worker.
//
//	Request -> auth (who) -> authz (may this role) -> control -> session worker (may this actor, here)
//
// # RBAC Model
//
//	[request_definition]
//	r = sub, obj, act
//
//	[policy_definition]
//	p = sub, obj, act
//
//	[role_definition]
//	g = _, _
//
//	[policy_effect]
//	e = some(where (p.eft == allow))
//
//	[matchers]
//	m = g(r.sub, p.sub) && (p.obj == "*" || r.obj == p.obj) && (p.act == "*" || r.act == p.act)
//
// Objects are session, incident, signal, subscription, stats and audit.
// Session Control commands use the command type as the action on session.
//
// # Usage
//
//	enf, err := authz.NewEnforcer(ctx, authz.DefaultEnforcerConfig())
//	if err != nil {
//	    return err
//	}
//	defer enf.Close()
//
//	if err := enf.AuthorizeCommand(actor, models.CommandPause); err != nil {
//	    return models.Rejected(err)
//	}
//
// Model and policy are embedded; ModelPath and PolicyPath override them, and
// a policy file is reloaded every ReloadInterval.
package authz
