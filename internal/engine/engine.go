// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

// Package engine runs one supervised worker per exam session.
//
// A worker is the single writer for its session: signal admission, reorder
// buffer release, incident aggregation, escalation and Session Control
// commands for one session all execute on its goroutine in arrival order.
// Different sessions run in parallel and never share a lock.
//
// Workers are suture services. A panic while handling a request is reported
// to the caller as worker_fault and the supervisor restarts that worker from
// the store; other sessions are unaffected.
//
// Time-driven work (elapsed time, lateness release, settling, digest flush,
// retention) runs on an explicit tick delivered by RunWithContext, or by
// Tick in tests.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/escalation"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/incident"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/logging"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/models"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/session"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/store"
)

// Config holds engine settings.
type Config struct {
	LatenessWindow time.Duration
	BufferSize     int
	MailboxSize    int
	TerminationTTL time.Duration
	Retention      time.Duration
	TickInterval   time.Duration
	CommandTimeout time.Duration
	Aggregation    incident.Config
}

// DefaultConfig returns the stock engine settings.
func DefaultConfig() Config {
	return Config{
		LatenessWindow: 5 * time.Second,
		BufferSize:     256,
		MailboxSize:    256,
		TerminationTTL: 60 * time.Second,
		Retention:      24 * time.Hour,
		TickInterval:   time.Second,
		CommandTimeout: 5 * time.Second,
		Aggregation:    incident.DefaultConfig(),
	}
}

// Publisher receives the ordered events of each session. Publish may block
// to apply backpressure.
type Publisher interface {
	Publish(ctx context.Context, events ...models.Event) error
}

// DecisionLogger records escalation decisions for audit.
type DecisionLogger interface {
	LogDecision(ctx context.Context, d models.EscalationDecision)
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithPublisher sets the event sink, normally the fan-out hub.
func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.pub = p }
}

// WithDecisionLogger sets the audit sink for escalation decisions.
func WithDecisionLogger(l DecisionLogger) Option {
	return func(e *Engine) { e.audit = l }
}

// WithArchiveHook registers fn to run when a session is archived.
func WithArchiveHook(fn func(sessionID string)) Option {
	return func(e *Engine) { e.onArchive = fn }
}

// Engine owns the session workers.
type Engine struct {
	cfg      Config
	store    store.Store
	policies *escalation.Book
	sup      *suture.Supervisor
	pub      Publisher
	audit    DecisionLogger
	now      func() time.Time

	onArchive func(sessionID string)

	// beforeAggregate runs on the worker goroutine ahead of each aggregated
	// signal. Tests use it to inject faults.
	beforeAggregate func(sig models.Signal)

	mu      sync.RWMutex
	workers map[string]*worker
	// reserved holds IDs being scheduled. Store I/O and publishing for a
	// new session run outside mu.
	reserved map[string]struct{}
}

// New creates an engine whose workers run under sup.
func New(cfg Config, st store.Store, policies *escalation.Book, sup *suture.Supervisor, opts ...Option) *Engine {
	if cfg.MailboxSize <= 0 {
		cfg.MailboxSize = 256
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 5 * time.Second
	}
	if policies == nil {
		policies = escalation.NewBook(escalation.DefaultPolicy(), nil)
	}
	e := &Engine{
		cfg:      cfg,
		store:    st,
		policies: policies,
		sup:      sup,
		now:      time.Now,
		workers:  make(map[string]*worker),
		reserved: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Recover starts a worker for every live session in the store and returns
// how many were started.
func (e *Engine) Recover(ctx context.Context) (int, error) {
	recs, err := e.store.ListSessions(ctx)
	if err != nil {
		return 0, fmt.Errorf("recover sessions: %w", err)
	}

	n := 0
	for _, rec := range recs {
		if e.spawn(rec.Session) {
			n++
		}
	}
	return n, nil
}

// RunWithContext recovers durable sessions and delivers ticks until ctx is
// canceled. Designed to run as a suture service.
func (e *Engine) RunWithContext(ctx context.Context) error {
	n, err := e.Recover(ctx)
	if err != nil {
		return err
	}
	logging.Info().Int("sessions", n).Dur("tick_interval", e.cfg.TickInterval).Msg("session engine started")

	interval := e.cfg.TickInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Int("sessions", e.count()).Msg("session engine stopped")
			return ctx.Err()
		case <-ticker.C:
			e.broadcastTick()
		}
	}
}

// broadcastTick offers a tick to every worker. A worker whose mailbox is
// full skips this tick; the next one catches up.
func (e *Engine) broadcastTick() {
	for _, w := range e.snapshotWorkers() {
		req := request{run: func(ctx context.Context, w *worker) { w.advance(ctx, w.eng.now()) }}
		select {
		case w.mailbox <- req:
		default:
		}
	}
}

// Tick synchronously runs the time-driven pipeline on every worker.
func (e *Engine) Tick(ctx context.Context) error {
	var errs []error
	for _, w := range e.snapshotWorkers() {
		_, err := call(ctx, e, w, true, func(ctx context.Context, w *worker) (struct{}, error) {
			w.advance(ctx, w.eng.now())
			return struct{}{}, nil
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Schedule admits a new session in the scheduled state.
func (e *Engine) Schedule(ctx context.Context, req models.ScheduleRequest, actor models.Actor) (models.ExamSession, error) {
	if req.SessionID == "" || req.StudentID == "" || req.ExamID == "" {
		return models.ExamSession{}, models.Errorf(models.ErrMalformedRequest, "session_id, student_id and exam_id are required")
	}
	if req.ScheduledDuration <= 0 {
		return models.ExamSession{}, models.Errorf(models.ErrMalformedRequest, "scheduled_duration must be positive")
	}
	if strings.ContainsRune(req.SessionID, 0) {
		return models.ExamSession{}, models.Errorf(models.ErrMalformedRequest, "session_id must not contain NUL")
	}

	if !e.reserve(req.SessionID) {
		return models.ExamSession{}, models.Errorf(models.ErrDuplicateSession, "session %s already exists", req.SessionID)
	}
	defer e.release(req.SessionID)

	if _, err := e.store.LoadArchived(ctx, req.SessionID); err == nil {
		return models.ExamSession{}, models.Errorf(models.ErrDuplicateSession, "session %s was archived", req.SessionID)
	}

	sess, entry := session.New(req, actor, e.now())
	if err := e.store.SaveSession(ctx, sess.Record()); err != nil {
		return models.ExamSession{}, fmt.Errorf("save session: %w", err)
	}

	view := sess.View()
	if e.pub != nil {
		if err := e.pub.Publish(ctx, sessionEvent(view, entry, nil)); err != nil {
			logging.Warn().Err(err).Str("session_id", view.ID).Msg("failed to publish session.scheduled")
		}
	}
	e.spawn(view)

	logging.Info().
		Str("session_id", view.ID).
		Str("exam_id", view.ExamID).
		Str("student_id", view.StudentID).
		Strs("proctor_ids", view.ProctorIDs).
		Msg("session scheduled")
	return view, nil
}

// SubmitSignal hands a signal to its session's worker. It never blocks on a
// full mailbox; that is reported as IngressOverload.
func (e *Engine) SubmitSignal(ctx context.Context, sig models.Signal) (models.Receipt, error) {
	w := e.worker(sig.SessionID)
	if w == nil {
		return models.Receipt{}, models.Errorf(models.ErrUnknownSession, "session %s not found", sig.SessionID)
	}
	return call(ctx, e, w, false, func(ctx context.Context, w *worker) (models.Receipt, error) {
		return w.offer(ctx, sig)
	})
}

// Command executes a Session Control command synchronously. It never
// returns an error; failures are rejected results with a reason.
func (e *Engine) Command(ctx context.Context, cmd models.Command) models.CommandResult {
	w := e.worker(cmd.SessionID)
	if w == nil {
		return models.Rejected(models.Errorf(models.ErrInvalidTransition, "session %s not found", cmd.SessionID))
	}
	res, err := call(ctx, e, w, true, func(ctx context.Context, w *worker) (models.CommandResult, error) {
		return w.command(ctx, cmd), nil
	})
	if err != nil {
		return models.Rejected(err)
	}
	return res
}

// UpdateIncident applies a human status change to one incident.
func (e *Engine) UpdateIncident(ctx context.Context, upd models.IncidentUpdate) models.CommandResult {
	w := e.worker(upd.SessionID)
	if w == nil {
		return models.Rejected(models.Errorf(models.ErrUnknownSession, "session %s not found", upd.SessionID))
	}
	res, err := call(ctx, e, w, true, func(ctx context.Context, w *worker) (models.CommandResult, error) {
		return w.setIncidentStatus(ctx, upd), nil
	})
	if err != nil {
		return models.Rejected(err)
	}
	return res
}

// Session returns the current session attributes, falling back to the
// archive for sessions that have been retired.
func (e *Engine) Session(ctx context.Context, sessionID string) (models.ExamSession, error) {
	if w := e.worker(sessionID); w != nil {
		return call(ctx, e, w, true, func(_ context.Context, w *worker) (models.ExamSession, error) {
			return w.sess.View(), nil
		})
	}
	rec, err := e.store.LoadArchived(ctx, sessionID)
	if err != nil {
		return models.ExamSession{}, e.notFound(sessionID, err)
	}
	return rec.Session, nil
}

// Trail returns the session's ordered audit trail.
func (e *Engine) Trail(ctx context.Context, sessionID string) ([]models.AuditEntry, error) {
	if w := e.worker(sessionID); w != nil {
		return call(ctx, e, w, true, func(_ context.Context, w *worker) ([]models.AuditEntry, error) {
			return w.sess.Trail(), nil
		})
	}
	rec, err := e.store.LoadArchived(ctx, sessionID)
	if err != nil {
		return nil, e.notFound(sessionID, err)
	}
	return rec.Trail, nil
}

// Incidents returns the session's incidents in creation order.
func (e *Engine) Incidents(ctx context.Context, sessionID string) ([]models.Incident, error) {
	if w := e.worker(sessionID); w != nil {
		return call(ctx, e, w, true, func(_ context.Context, w *worker) ([]models.Incident, error) {
			return w.agg.Incidents(), nil
		})
	}
	if _, err := e.store.LoadArchived(ctx, sessionID); err != nil {
		return nil, e.notFound(sessionID, err)
	}
	return e.store.ListIncidents(ctx, sessionID)
}

// Decisions returns every escalation decision made for the session.
func (e *Engine) Decisions(ctx context.Context, sessionID string) ([]models.EscalationDecision, error) {
	if w := e.worker(sessionID); w != nil {
		return call(ctx, e, w, true, func(_ context.Context, w *worker) ([]models.EscalationDecision, error) {
			return append([]models.EscalationDecision(nil), w.decisions...), nil
		})
	}
	if _, err := e.store.LoadArchived(ctx, sessionID); err != nil {
		return nil, e.notFound(sessionID, err)
	}
	return e.store.ListDecisions(ctx, sessionID)
}

// Sessions lists live sessions from worker snapshots, ordered by id.
func (e *Engine) Sessions() []models.ExamSession {
	workers := e.snapshotWorkers()
	out := make([]models.ExamSession, 0, len(workers))
	for _, w := range workers {
		out = append(out, w.snap.Load().session)
	}
	return out
}

// Stats aggregates worker snapshots. The result is eventually consistent
// and not linearizable with respect to in-flight work.
func (e *Engine) Stats() models.SessionStats {
	stats := models.SessionStats{
		SessionsByState: make(map[models.SessionState]int),
		OpenIncidents:   make(map[models.Severity]int),
		GeneratedAt:     e.now(),
	}
	for _, w := range e.snapshotWorkers() {
		s := w.snap.Load()
		stats.SessionsByState[s.session.State]++
		for sev, n := range s.openIncidents {
			stats.OpenIncidents[sev] += n
		}
		stats.SignalsAccepted += s.accepted
		stats.SignalsDroppedLate += s.droppedLate
	}
	return stats
}

func (e *Engine) notFound(sessionID string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return models.Errorf(models.ErrUnknownSession, "session %s not found", sessionID)
	}
	return err
}

// reserve claims id for Schedule. It fails if a worker or another
// Schedule call already owns the id.
func (e *Engine) reserve(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.workers[id]; ok {
		return false
	}
	if _, ok := e.reserved[id]; ok {
		return false
	}
	e.reserved[id] = struct{}{}
	return true
}

func (e *Engine) release(id string) {
	e.mu.Lock()
	delete(e.reserved, id)
	e.mu.Unlock()
}

// spawn registers and supervises a worker unless one exists. The
// supervisor is told outside mu.
func (e *Engine) spawn(view models.ExamSession) bool {
	e.mu.Lock()
	if _, ok := e.workers[view.ID]; ok {
		e.mu.Unlock()
		return false
	}
	w := newWorker(e, view.ID, view)
	e.workers[view.ID] = w
	e.mu.Unlock()

	e.sup.Add(w)
	return true
}

// forget drops an archived worker. Runs on that worker's goroutine.
func (e *Engine) forget(sessionID string) {
	e.mu.Lock()
	delete(e.workers, sessionID)
	e.mu.Unlock()
	if e.onArchive != nil {
		e.onArchive(sessionID)
	}
}

func (e *Engine) worker(sessionID string) *worker {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.workers[sessionID]
}

func (e *Engine) count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.workers)
}

// snapshotWorkers returns the workers ordered by session id.
func (e *Engine) snapshotWorkers() []*worker {
	e.mu.RLock()
	out := make([]*worker, 0, len(e.workers))
	for _, w := range e.workers {
		out = append(out, w)
	}
	e.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// call runs fn on w and waits for its result. With block false a full
// mailbox fails fast with IngressOverload; otherwise enqueueing waits for
// ctx. The reply wait is bounded by the command timeout.
func call[T any](ctx context.Context, e *Engine, w *worker, block bool, fn func(ctx context.Context, w *worker) (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	var zero T
	done := make(chan result, 1)
	req := request{
		run: func(ctx context.Context, w *worker) {
			v, err := fn(ctx, w)
			done <- result{v: v, err: err}
		},
		fail: func(err error) {
			select {
			case done <- result{err: err}:
			default:
			}
		},
	}

	if block {
		select {
		case w.mailbox <- req:
		case <-ctx.Done():
			return zero, models.Errorf(models.ErrRequestTimeout, "session %s: %v", w.id, ctx.Err())
		}
	} else {
		select {
		case w.mailbox <- req:
		default:
			return zero, models.Errorf(models.ErrIngressOverload, "session %s mailbox is full", w.id)
		}
	}

	timer := time.NewTimer(e.cfg.CommandTimeout)
	defer timer.Stop()
	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		return zero, models.Errorf(models.ErrRequestTimeout, "session %s: %v", w.id, ctx.Err())
	case <-timer.C:
		return zero, models.Errorf(models.ErrRequestTimeout, "session %s did not answer within %s", w.id, e.cfg.CommandTimeout)
	}
}
