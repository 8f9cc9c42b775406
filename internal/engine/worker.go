// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/thejerf/suture/v4"

	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/escalation"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/incident"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/ingress"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/logging"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/metrics"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/models"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/session"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/store"
)

// request is one unit of work for a worker. fail is called instead of a
// reply when run faults.
type request struct {
	run  func(ctx context.Context, w *worker)
	fail func(err error)
}

// snapshot is the eventually consistent view read by Stats and listings.
type snapshot struct {
	session       models.ExamSession
	openIncidents map[models.Severity]int
	accepted      uint64
	droppedLate   uint64
}

// worker is the single owner of one session. Everything that touches the
// session, its incidents, reorder buffer and escalation state runs on the
// Serve goroutine, one request at a time.
//
// The mailbox outlives restarts. All other state is rebuilt from the store
// whenever Serve starts, so a fault discards whatever was not yet durable.
type worker struct {
	id      string
	eng     *Engine
	mailbox chan request
	snap    atomic.Pointer[snapshot]

	sess        *session.Session
	agg         *incident.Aggregator
	buf         *ingress.Buffer
	tracker     *escalation.Tracker
	digest      *escalation.Digest
	decisions   []models.EscalationDecision
	accepted    uint64
	dropped     uint64
	countedLive bool
	archived    bool
}

var _ suture.Service = (*worker)(nil)

func newWorker(e *Engine, id string, view models.ExamSession) *worker {
	w := &worker{
		id:      id,
		eng:     e,
		mailbox: make(chan request, e.cfg.MailboxSize),
	}
	w.snap.Store(&snapshot{session: view, openIncidents: map[models.Severity]int{}})
	return w
}

func (w *worker) String() string { return "session-worker:" + w.id }

// Serve loads durable state and processes the mailbox until ctx is done or
// the session is archived. A fault returns an error so the supervisor
// restarts the worker from the store.
func (w *worker) Serve(ctx context.Context) error {
	if err := w.load(ctx); err != nil {
		logging.Error().Err(err).Str("session_id", w.id).Msg("session worker failed to load state")
		return err
	}
	defer w.setLive(false)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-w.mailbox:
			if err := w.exec(ctx, req); err != nil {
				return err
			}
			if w.archived {
				w.drain()
				return suture.ErrDoNotRestart
			}
		}
	}
}

// exec runs one request, converting a panic into a worker fault.
func (w *worker) exec(ctx context.Context, req request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = models.Errorf(models.ErrWorkerFault, "session %s: %v", w.id, r)
			metrics.WorkerRestarts.Inc()
			logging.Error().
				Str("session_id", w.id).
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("session worker fault, restarting from durable state")
			if req.fail != nil {
				req.fail(err)
			}
		}
	}()

	req.run(ctx, w)
	w.refreshSnapshot()
	return nil
}

// load rebuilds the worker from the store.
func (w *worker) load(ctx context.Context) error {
	st := w.eng.store
	rec, err := st.LoadSession(ctx, w.id)
	if err != nil {
		return fmt.Errorf("load session %s: %w", w.id, err)
	}
	incidents, err := st.ListIncidents(ctx, w.id)
	if err != nil {
		return err
	}
	signals, err := st.ListSignals(ctx, w.id)
	if err != nil {
		return err
	}
	pending, err := st.ListPending(ctx, w.id)
	if err != nil {
		return err
	}
	decisions, err := st.ListDecisions(ctx, w.id)
	if err != nil {
		return err
	}

	now := w.eng.now()
	cfg := w.eng.cfg
	w.sess = session.Restore(rec)
	w.agg = incident.NewAggregator(w.id, cfg.Aggregation)
	ids := make([]string, len(signals))
	for i := range signals {
		ids[i] = signals[i].ID
	}
	w.agg.Restore(incidents, ids)
	w.buf = ingress.NewBuffer(cfg.LatenessWindow, cfg.BufferSize)
	w.buf.Restore(pending)
	w.tracker = escalation.Rebuild(w.policy().MediumBurstWindow, incidents, rec.Trail)
	w.digest = restoreDigest(w.policy().DigestInterval, rec, decisions, now)
	w.decisions = decisions
	w.accepted = uint64(len(signals) + len(pending))
	w.archived = false
	w.setLive(w.sess.State() == models.SessionActive || w.sess.State() == models.SessionPaused)
	w.refreshSnapshot()

	logging.Debug().
		Str("session_id", w.id).
		Str("state", string(w.sess.State())).
		Int("incidents", len(incidents)).
		Int("pending", len(pending)).
		Msg("session worker started")
	return nil
}

func (w *worker) policy() escalation.Policy {
	return w.eng.policies.For(w.sess.View().ExamID)
}

// offer admits one signal into the reorder buffer.
func (w *worker) offer(ctx context.Context, sig models.Signal) (models.Receipt, error) {
	if w.sess.State() != models.SessionActive {
		return models.Receipt{}, models.Errorf(models.ErrUnknownSession, "session %s is %s", w.id, w.sess.State())
	}
	if w.agg.Seen(sig.ID) {
		return models.Receipt{SignalID: sig.ID, SessionID: w.id, Status: models.ReceiptDuplicate}, nil
	}

	now := w.eng.now()
	receipt, err := w.buf.Offer(sig, now, w.sess.NextSequence)
	if err != nil {
		return receipt, err
	}
	switch receipt.Status {
	case models.ReceiptAccepted:
		w.accepted++
		metrics.IngressQueueDepth.Inc()
		sig.Sequence = receipt.Sequence
		w.persist(ctx, "pending signal", w.eng.store.SavePending(ctx, sig))
		w.saveSession(ctx)
	case models.ReceiptDroppedLate:
		w.dropped++
	}

	w.advance(ctx, now)
	return receipt, nil
}

// advance runs the time-driven pipeline: elapsed-time accounting, buffer
// release, aggregation and escalation, settling, digest flush and retention.
func (w *worker) advance(ctx context.Context, now time.Time) {
	entry, err := w.sess.Tick(now)
	if err != nil {
		logging.Warn().Err(err).Str("session_id", w.id).Msg("session tick failed")
	}
	if entry != nil {
		w.afterTransition(ctx, *entry, nil)
		logging.Info().Str("session_id", w.id).Msg("session submitted on time expiry")
	}

	released := w.buf.Release(now)
	metrics.IngressQueueDepth.Sub(float64(len(released)))
	for _, sig := range released {
		w.aggregate(ctx, sig, now)
	}

	for _, change := range w.agg.Settle(w.buf.Watermark(now), now) {
		w.persist(ctx, "incident", w.eng.store.SaveIncident(ctx, *change.Incident))
		w.publish(ctx, incidentEvent(change, now))
	}

	if w.digest.Due(now) {
		w.flushDigest(ctx, w.digest.Flush(now), now)
	}

	if w.sess.State().IsTerminal() && w.eng.cfg.Retention > 0 && now.Sub(w.sess.TerminalAt()) >= w.eng.cfg.Retention {
		w.archive(ctx, now)
	}
}

func (w *worker) aggregate(ctx context.Context, sig models.Signal, now time.Time) {
	if w.eng.beforeAggregate != nil {
		w.eng.beforeAggregate(sig)
	}

	w.persist(ctx, "signal", w.eng.store.AppendSignal(ctx, sig))
	w.persist(ctx, "pending signal", w.eng.store.DeletePending(ctx, w.id, sig.ID))

	outcome, change := w.agg.Add(sig, now)
	if change == nil {
		logging.Debug().
			Str("session_id", w.id).
			Str("signal_id", sig.ID).
			Str("outcome", string(outcome)).
			Msg("signal not aggregated")
		return
	}

	inc := change.Incident
	w.persist(ctx, "incident", w.eng.store.SaveIncident(ctx, *inc))
	if change.Kind == incident.ChangeCreated {
		metrics.IncidentsCreated.WithLabelValues(string(inc.Category)).Inc()
	}
	if change.SeverityChanged() {
		metrics.IncidentSeverityChanges.WithLabelValues(string(inc.Severity)).Inc()
	}
	w.publish(ctx, incidentEvent(*change, now))

	if change.Kind == incident.ChangeCreated || change.SeverityChanged() {
		w.escalate(ctx, *change, now)
	}
}

// escalate evaluates the policy for one incident change and acts on the
// decision. Every decision is stored and audited, including none.
func (w *worker) escalate(ctx context.Context, change incident.Change, now time.Time) {
	inc := change.Incident
	at := inc.LastSeen
	if n := len(inc.SeverityHistory); n > 0 {
		at = inc.SeverityHistory[n-1].At
	}

	var recent int
	if escalation.CrossedIntoMedium(change.PreviousSeverity, inc.Severity) {
		recent = w.tracker.RecordMedium(at)
	} else {
		recent = w.tracker.Count(at)
	}

	view := w.sess.View()
	p := w.policy()
	d := escalation.Evaluate(p, escalation.Input{
		Incident:            *inc,
		PreviousSeverity:    change.PreviousSeverity,
		Created:             change.Kind == incident.ChangeCreated,
		SessionState:        view.State,
		RecentMedium:        recent,
		RecommendedRecently: w.tracker.RecommendedWithin(at),
		Now:                 now,
	})
	d.ID = uuid.New().String()
	d.ExamID = view.ExamID

	// Re-check against current state immediately before acting.
	d = escalation.Recheck(d, w.sess.State())
	d.Applied = d.Action != models.ActionNone

	queued := false

	switch {
	case d.Action == models.ActionRecommendTerminate:
		entry, err := w.sess.RecommendTermination(d.Reason, now)
		if err != nil {
			d.Action = models.ActionNone
			d.Applied = false
			d.Reason = escalation.ReasonStateChanged
			break
		}
		w.tracker.MarkRecommended(at)
		w.saveSession(ctx)
		w.publish(ctx, sessionEvent(w.sess.View(), entry, nil))
	case d.Delivery == models.DeliveryDigest:
		w.digest.Add(d)
		queued = true
	case d.Action == models.ActionNotify || d.Action == models.ActionFlag:
		w.publish(ctx, decisionEvent(d))
	}

	w.decisions = append(w.decisions, d)
	metrics.EscalationDecisions.WithLabelValues(string(d.Action)).Inc()
	w.persist(ctx, "decision", w.eng.store.SaveDecision(ctx, d))
	if queued {
		w.saveSession(ctx)
	}
	if w.eng.audit != nil {
		w.eng.audit.LogDecision(ctx, d)
	}

	logging.Debug().
		Str("session_id", w.id).
		Str("incident_id", inc.ID).
		Str("action", string(d.Action)).
		Str("reason", d.Reason).
		Str("severity", string(d.Severity)).
		Msg("escalation decision")
}

// command applies a Session Control command.
func (w *worker) command(ctx context.Context, cmd models.Command) models.CommandResult {
	view := w.sess.View()
	if err := session.CheckActor(&view, cmd.Actor); err != nil {
		return models.Rejected(err)
	}

	now := w.eng.now()
	w.advance(ctx, now)
	if w.archived {
		return models.Rejected(models.Errorf(models.ErrInvalidTransition, "session %s is archived", w.id))
	}

	var (
		entry  models.AuditEntry
		handle *models.TerminationHandle
		err    error
	)
	switch cmd.Type {
	case models.CommandActivate:
		entry, err = w.sess.Activate(cmd.Actor, now)
	case models.CommandPause:
		entry, err = w.sess.Pause(cmd.Actor, now)
	case models.CommandResume:
		entry, err = w.sess.Resume(cmd.Actor, now)
	case models.CommandSubmit:
		entry, err = w.sess.Submit(cmd.Actor, cmd.Message, now)
	case models.CommandWarn:
		entry, err = w.sess.Warn(cmd.Actor, cmd.Message, now)
	case models.CommandRequestTermination:
		handle, entry, err = w.sess.RequestTermination(cmd.Actor, w.eng.cfg.TerminationTTL, now)
	case models.CommandConfirmTermination:
		entry, err = w.sess.ConfirmTermination(cmd.Actor, cmd.Handle, now)
	default:
		err = models.Errorf(models.ErrMalformedRequest, "unknown command %q", cmd.Type)
	}
	if err != nil {
		return models.Rejected(err)
	}

	w.afterTransition(ctx, entry, handle)
	view = w.sess.View()
	return models.CommandResult{Status: models.CommandAccepted, Session: &view, Handle: handle}
}

// afterTransition persists and publishes an accepted session mutation.
func (w *worker) afterTransition(ctx context.Context, entry models.AuditEntry, handle *models.TerminationHandle) {
	w.saveSession(ctx)
	if entry.From != "" || entry.To != "" {
		metrics.RecordTransition(string(entry.From), string(entry.To))
	}
	st := w.sess.State()
	w.setLive(st == models.SessionActive || st == models.SessionPaused)
	w.publish(ctx, sessionEvent(w.sess.View(), entry, handle))

	if st.IsTerminal() && w.digest.Len() > 0 {
		now := w.eng.now()
		w.flushDigest(ctx, w.digest.Drain(now), now)
	}
}

// setIncidentStatus applies a human incident status change.
func (w *worker) setIncidentStatus(ctx context.Context, upd models.IncidentUpdate) models.CommandResult {
	view := w.sess.View()
	if err := session.CheckActor(&view, upd.Actor); err != nil {
		return models.Rejected(err)
	}

	now := w.eng.now()
	change, err := w.agg.SetStatus(upd.IncidentID, upd.Status, upd.Actor, upd.Note, now)
	if err != nil {
		return models.Rejected(err)
	}
	w.persist(ctx, "incident", w.eng.store.SaveIncident(ctx, *change.Incident))
	w.publish(ctx, incidentEvent(*change, now))

	logging.Info().
		Str("session_id", w.id).
		Str("incident_id", upd.IncidentID).
		Str("status", string(upd.Status)).
		Str("actor_id", upd.Actor.ID).
		Bool("reopened", change.Reopened).
		Msg("incident status changed")

	return models.CommandResult{Status: models.CommandAccepted, Session: &view, Incident: change.Incident}
}

func (w *worker) flushDigest(ctx context.Context, items []models.EscalationDecision, now time.Time) {
	if len(items) == 0 {
		return
	}
	w.publish(ctx, digestEvent(w.id, items, now))
	w.saveSession(ctx)
}

// restoreDigest requeues the digest decisions recorded on the session
// that were stored but never flushed.
func restoreDigest(interval time.Duration, rec models.SessionRecord, decisions []models.EscalationDecision, now time.Time) *escalation.Digest {
	since := rec.DigestFlushedAt
	if since.IsZero() {
		since = now
	}
	if len(rec.DigestQueue) == 0 {
		return escalation.RestoreDigest(interval, since, nil)
	}
	queued := make(map[string]bool, len(rec.DigestQueue))
	for _, id := range rec.DigestQueue {
		queued[id] = true
	}
	var items []models.EscalationDecision
	for _, d := range decisions {
		if queued[d.ID] {
			items = append(items, d)
		}
	}
	return escalation.RestoreDigest(interval, since, items)
}

// archive moves a terminal session out of the live set once its retention
// has passed. The worker stops after the current request.
func (w *worker) archive(ctx context.Context, now time.Time) {
	w.flushDigest(ctx, w.digest.Drain(now), now)
	if err := w.eng.store.Archive(ctx, w.id); err != nil && !errors.Is(err, store.ErrNotFound) {
		logging.Error().Err(err).Str("session_id", w.id).Msg("failed to archive session")
		return
	}
	w.archived = true
	w.eng.forget(w.id)
	logging.Info().Str("session_id", w.id).Msg("session archived")
}

// drain fails requests queued behind the archiving one.
func (w *worker) drain() {
	for {
		select {
		case req := <-w.mailbox:
			if req.fail != nil {
				req.fail(models.Errorf(models.ErrUnknownSession, "session %s is archived", w.id))
			}
		default:
			return
		}
	}
}

func (w *worker) saveSession(ctx context.Context) {
	rec := w.sess.Record()
	rec.DigestQueue = w.digest.IDs()
	rec.DigestFlushedAt = w.digest.LastFlush()
	w.persist(ctx, "session", w.eng.store.SaveSession(ctx, rec))
}

// persist logs a storage failure. In-memory state stays authoritative for
// the life of this worker.
func (w *worker) persist(_ context.Context, what string, err error) {
	if err != nil {
		logging.Error().Err(err).Str("session_id", w.id).Str("entity", what).Msg("failed to persist session state")
	}
}

func (w *worker) publish(ctx context.Context, events ...models.Event) {
	if w.eng.pub == nil {
		return
	}
	if err := w.eng.pub.Publish(ctx, events...); err != nil {
		logging.Warn().Err(err).Str("session_id", w.id).Msg("failed to publish session events")
	}
}

func (w *worker) setLive(live bool) {
	if live == w.countedLive {
		return
	}
	w.countedLive = live
	if live {
		metrics.ActiveSessions.Inc()
	} else {
		metrics.ActiveSessions.Dec()
	}
}

func (w *worker) refreshSnapshot() {
	w.snap.Store(&snapshot{
		session:       w.sess.View(),
		openIncidents: w.agg.OpenBySeverity(),
		accepted:      w.accepted,
		droppedLate:   w.dropped,
	})
}
