// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package audit

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/logging"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/models"
)

// Config holds configuration for the audit logger.
type Config struct {
	// Enabled controls whether audit logging is active.
	Enabled bool `json:"enabled"`

	// LogLevel filters events by minimum severity.
	LogLevel Severity `json:"log_level"`

	// RetentionDays is how long to keep audit events.
	RetentionDays int `json:"retention_days"`

	// CleanupInterval is how often to run retention cleanup.
	CleanupInterval time.Duration `json:"cleanup_interval"`

	// BufferSize is the size of the async write buffer.
	BufferSize int `json:"buffer_size"`

	// LogToStdout also writes events through the application logger.
	LogToStdout bool `json:"log_to_stdout"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Enabled:         true,
		LogLevel:        SeverityDebug,
		RetentionDays:   90,
		CleanupInterval: 24 * time.Hour,
		BufferSize:      1000,
	}
}

// Logger is the asynchronous audit writer.
type Logger struct {
	config    *Config
	store     Store
	eventChan chan *Event
	mu        sync.RWMutex
	stopChan  chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewLogger creates an audit logger and starts its writer goroutine.
func NewLogger(store Store, config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig().BufferSize
	}

	l := &Logger{
		config:    config,
		store:     store,
		eventChan: make(chan *Event, config.BufferSize),
		stopChan:  make(chan struct{}),
	}

	l.wg.Add(1)
	go l.asyncWriter()

	return l
}

func (l *Logger) asyncWriter() {
	defer l.wg.Done()

	for {
		select {
		case <-l.stopChan:
			// Drain remaining events
			for {
				select {
				case event := <-l.eventChan:
					l.writeEvent(event)
				default:
					return
				}
			}
		case event := <-l.eventChan:
			l.writeEvent(event)
		}
	}
}

func (l *Logger) writeEvent(event *Event) {
	l.mu.RLock()
	toStdout := l.config.LogToStdout
	l.mu.RUnlock()

	if toStdout {
		if data, err := json.Marshal(event); err == nil {
			logging.Info().RawJSON("event", data).Msg("audit event")
		}
	}

	if l.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := l.store.Save(ctx, event); err != nil {
			logging.Error().Err(err).Str("event_id", event.ID).Msg("failed to save audit event")
		}
	}
}

// Log records an audit event. It never blocks; a full buffer drops the
// event with a warning.
func (l *Logger) Log(event *Event) {
	l.mu.RLock()
	enabled := l.config.Enabled
	level := l.config.LogLevel
	l.mu.RUnlock()

	if !enabled || severityOrder[event.Severity] < severityOrder[level] {
		return
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case l.eventChan <- event:
	default:
		logging.Warn().Str("event_id", event.ID).Str("type", string(event.Type)).Msg("audit buffer full, dropping event")
	}
}

// Close drains pending events and stops the writer.
func (l *Logger) Close() error {
	l.stopOnce.Do(func() { close(l.stopChan) })
	l.wg.Wait()
	return nil
}

// RunCleanup deletes events past retention every CleanupInterval until ctx
// is canceled. Designed to run as a suture service.
func (l *Logger) RunCleanup(ctx context.Context) error {
	l.mu.RLock()
	interval := l.config.CleanupInterval
	retention := l.config.RetentionDays
	l.mu.RUnlock()
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if l.store == nil || retention <= 0 {
				continue
			}
			count, err := l.store.Delete(ctx, time.Now().AddDate(0, 0, -retention))
			if err != nil {
				logging.Error().Err(err).Msg("audit cleanup error")
			} else if count > 0 {
				logging.Info().Int64("count", count).Msg("cleaned up old audit events")
			}
		}
	}
}

// Query retrieves events matching the filter.
func (l *Logger) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	return l.store.Query(ctx, filter)
}

// Count returns the number of events matching the filter.
func (l *Logger) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	return l.store.Count(ctx, filter)
}

// SetEnabled enables or disables audit logging.
func (l *Logger) SetEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Enabled = enabled
}

// LogDecision records one escalation decision, including decisions whose
// action is none.
func (l *Logger) LogDecision(ctx context.Context, d models.EscalationDecision) {
	sev := SeverityInfo
	switch d.Action {
	case models.ActionNone:
		sev = SeverityDebug
	case models.ActionRecommendTerminate:
		sev = SeverityCritical
	case models.ActionNotify:
		sev = SeverityWarning
	}
	outcome := OutcomeSuccess
	if !d.Applied {
		outcome = OutcomeFailure
	}
	l.Log(&Event{
		ID:          d.ID,
		Timestamp:   d.DecidedAt,
		Type:        EventTypeDecision,
		Severity:    sev,
		Outcome:     outcome,
		Actor:       Actor{ID: models.SystemActor.ID, Role: string(models.RoleSystem)},
		Target:      &Target{Type: "incident", ID: d.IncidentID, SessionID: d.SessionID},
		Action:      string(d.Action),
		Reason:      d.Reason,
		Description: "escalation " + string(d.Action) + " for " + string(d.Severity) + " incident",
		Metadata: mustJSON(map[string]interface{}{
			"exam_id":        d.ExamID,
			"severity":       d.Severity,
			"delivery":       d.Delivery,
			"policy_version": d.PolicyVersion,
		}),
		CorrelationID: logging.CorrelationIDFromContext(ctx),
	})
}

// LogCommand records a Session Control command and its result.
func (l *Logger) LogCommand(ctx context.Context, cmd models.Command, res models.CommandResult, src Source) {
	sev, outcome := SeverityInfo, OutcomeSuccess
	if !res.Accepted() {
		sev, outcome = SeverityWarning, OutcomeFailure
	}
	if cmd.Type == models.CommandConfirmTermination && res.Accepted() {
		sev = SeverityCritical
	}
	meta := map[string]string{}
	if cmd.Message != "" {
		meta["message"] = cmd.Message
	}
	if res.Session != nil {
		meta["state"] = string(res.Session.State)
	}
	l.Log(&Event{
		Type:          EventTypeCommand,
		Severity:      sev,
		Outcome:       outcome,
		Actor:         actorOf(cmd.Actor),
		Target:        &Target{Type: "session", ID: cmd.SessionID, SessionID: cmd.SessionID},
		Source:        src,
		Action:        string(cmd.Type),
		Reason:        res.Reason,
		Description:   string(cmd.Type) + " " + string(res.Status),
		Metadata:      mustJSON(meta),
		CorrelationID: logging.CorrelationIDFromContext(ctx),
		RequestID:     logging.RequestIDFromContext(ctx),
	})
}

// LogSchedule records a session admission.
func (l *Logger) LogSchedule(ctx context.Context, req models.ScheduleRequest, actor models.Actor, err error, src Source) {
	e := &Event{
		Type:        EventTypeSessionScheduled,
		Severity:    SeverityInfo,
		Outcome:     OutcomeSuccess,
		Actor:       actorOf(actor),
		Target:      &Target{Type: "session", ID: req.SessionID, SessionID: req.SessionID},
		Source:      src,
		Action:      "schedule",
		Description: "session scheduled for exam " + req.ExamID,
		Metadata: mustJSON(map[string]interface{}{
			"exam_id":     req.ExamID,
			"student_id":  req.StudentID,
			"proctor_ids": req.ProctorIDs,
		}),
		CorrelationID: logging.CorrelationIDFromContext(ctx),
		RequestID:     logging.RequestIDFromContext(ctx),
	}
	if err != nil {
		e.Severity, e.Outcome = SeverityWarning, OutcomeFailure
		e.Reason = models.ReasonOf(err)
		e.Description = "session admission rejected"
	}
	l.Log(e)
}

// LogIncidentUpdate records a human incident status change.
func (l *Logger) LogIncidentUpdate(ctx context.Context, upd models.IncidentUpdate, res models.CommandResult, src Source) {
	sev, outcome := SeverityInfo, OutcomeSuccess
	if !res.Accepted() {
		sev, outcome = SeverityWarning, OutcomeFailure
	}
	meta := map[string]string{}
	if upd.Note != "" {
		meta["note"] = upd.Note
	}
	l.Log(&Event{
		Type:          EventTypeIncidentStatus,
		Severity:      sev,
		Outcome:       outcome,
		Actor:         actorOf(upd.Actor),
		Target:        &Target{Type: "incident", ID: upd.IncidentID, SessionID: upd.SessionID},
		Source:        src,
		Action:        string(upd.Status),
		Reason:        res.Reason,
		Description:   "incident moved to " + string(upd.Status),
		Metadata:      mustJSON(meta),
		CorrelationID: logging.CorrelationIDFromContext(ctx),
		RequestID:     logging.RequestIDFromContext(ctx),
	})
}

// LogAuthzDenied records an authorization denial.
func (l *Logger) LogAuthzDenied(ctx context.Context, actor models.Actor, src Source, resource, action string) {
	l.Log(&Event{
		Type:        EventTypeAuthzDenied,
		Severity:    SeverityWarning,
		Outcome:     OutcomeFailure,
		Actor:       actorOf(actor),
		Source:      src,
		Action:      action,
		Reason:      models.ErrNotAuthorized.Reason,
		Description: "authorization denied for " + action + " on " + resource,
		Metadata: mustJSON(map[string]string{
			"resource":         resource,
			"requested_action": action,
		}),
		CorrelationID: logging.CorrelationIDFromContext(ctx),
		RequestID:     logging.RequestIDFromContext(ctx),
	})
}

func actorOf(a models.Actor) Actor {
	return Actor{ID: a.ID, Role: string(a.Role)}
}

// mustJSON converts a value to JSON, returning an empty object on error.
func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("{}")
	}
	return data
}

// SourceFromRequest creates a Source from an HTTP request.
func SourceFromRequest(r *http.Request) Source {
	ip := r.RemoteAddr
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ip = xff
	} else if xri := r.Header.Get("X-Real-IP"); xri != "" {
		ip = xri
	}
	return Source{IPAddress: ip, UserAgent: r.UserAgent()}
}
