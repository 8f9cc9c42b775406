// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package main

import (
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/config"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/escalation"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/logging"
)

// watchExamPolicies reloads per-exam escalation overrides when the config
// file changes. Other settings need a restart.
func watchExamPolicies(path string, book *escalation.Book) {
	err := config.WatchConfigFile(path, func() {
		cfg, err := config.LoadFile(path)
		if err != nil {
			logging.Warn().Err(err).Str("path", path).Msg("Config reload rejected; keeping current policies")
			return
		}
		n := applyExamPolicies(book, cfg)
		logging.Info().Int("exams", n).Str("path", path).Msg("Exam escalation policies reloaded")
	})
	if err != nil {
		logging.Warn().Err(err).Str("path", path).Msg("Config file watch unavailable")
	}
}

// applyExamPolicies installs every exam override from cfg. Decisions
// already made keep the policy version they were made under.
func applyExamPolicies(book *escalation.Book, cfg *config.Config) int {
	for exam, p := range cfg.Escalation.Exams {
		book.Set(exam, p)
	}
	return len(cfg.Escalation.Exams)
}
