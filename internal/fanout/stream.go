// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package fanout

import (
	"context"
	"time"

	"github.com/gorilla/websocket"

	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	streamBatch    = 64
)

// Client message types.
const (
	MessageTypeAck = "ack"
)

// ClientMessage is sent by the viewer over the stream.
type ClientMessage struct {
	Type   string `json:"type"`
	Cursor uint64 `json:"cursor"`
}

// Stream pushes one subscription's events over a websocket connection.
// Events are resent after reconnect until acknowledged.
type Stream struct {
	hub  *Hub
	conn *websocket.Conn
	id   string
	sent uint64
}

// NewStream attaches conn to subscription id. Delivery starts after the
// subscription's acknowledged cursor.
func NewStream(hub *Hub, conn *websocket.Conn, id string) (*Stream, error) {
	sub, err := hub.Subscription(id)
	if err != nil {
		return nil, err
	}
	return &Stream{hub: hub, conn: conn, id: id, sent: sub.Cursor}, nil
}

// Run serves the connection until the peer goes away, the subscription is
// disconnected or ctx is canceled. The subscription itself survives so the
// viewer can reconnect with its cursor.
func (s *Stream) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		s.readPump()
		cancel()
	}()
	s.writePump(ctx)
}

// readPump applies acknowledgements from the viewer.
func (s *Stream) readPump() {
	s.conn.SetReadLimit(maxMessageSize)
	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg ClientMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logging.Error().Err(err).Str("subscription_id", s.id).Msg("unexpected websocket close error")
			}
			return
		}
		if msg.Type != MessageTypeAck {
			continue
		}
		if err := s.hub.Ack(s.id, msg.Cursor); err != nil {
			logging.Debug().Err(err).Str("subscription_id", s.id).Uint64("cursor", msg.Cursor).Msg("stream ack rejected")
			return
		}
	}
}

func (s *Stream) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close() // best-effort cleanup
	}()

	notify, done, err := s.hub.Notify(s.id)
	if err != nil {
		s.close(websocket.ClosePolicyViolation, err.Error())
		return
	}

	// Anything queued before the stream attached goes out first.
	if !s.flush() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			s.close(websocket.CloseGoingAway, "server shutting down")
			return
		case <-done:
			s.close(websocket.ClosePolicyViolation, "subscription disconnected")
			return
		case <-notify:
			if !s.flush() {
				return
			}
		case <-ticker.C:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline for ping")
				return
			}
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// flush writes every queued event after the last one sent.
func (s *Stream) flush() bool {
	for {
		page, err := s.hub.Peek(s.id, s.sent, streamBatch)
		if err != nil {
			return false
		}
		for _, e := range page.Events {
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline")
				return false
			}
			if err := s.conn.WriteJSON(e); err != nil {
				logging.Debug().Err(err).Str("subscription_id", s.id).Msg("failed to write event")
				return false
			}
			s.sent = e.Offset
		}
		if len(page.Events) < streamBatch {
			return true
		}
	}
}

func (s *Stream) close(code int, text string) {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, text))
}
