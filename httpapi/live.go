package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Skryldev/qrscan/capture"
	"github.com/Skryldev/qrscan/core"
	apperrors "github.com/Skryldev/qrscan/errors"
)

// Event is one message pushed over /v1/live.
type Event struct {
	Type       string                 `json:"type"` // "state", "payload", "validation" or "error"
	Session    string                 `json:"session,omitempty"`
	From       string                 `json:"from,omitempty"`
	To         string                 `json:"to,omitempty"`
	Text       string                 `json:"text,omitempty"`
	Points     []core.Point           `json:"points,omitempty"`
	Validation *core.ValidationResult `json:"validation,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Message    string                 `json:"message,omitempty"`
}

// liveConn serialises writes to one websocket.
type liveConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *liveConn) send(ev Event) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(ev)
}

func (c *liveConn) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

func errorEvent(sessionID string, err error) Event {
	kind := apperrors.KindOf(err)
	return Event{Type: "error", Session: sessionID, Error: string(kind), Message: kind.UserMessage()}
}

// handleLive runs one capture session per connection.  The session starts on
// connect and stops when the client sends {"type":"stop"} or disconnects.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	if s.ctrl == nil {
		s.writeError(w, apperrors.New(apperrors.KindPermissionUnavailable, "http.live", apperrors.ErrNoCaptureAPI), nil)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	lc := &liveConn{conn: conn}
	s.track(1)
	defer s.track(-1)
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var sessionID string
	session, err := s.ctrl.Open(s.newSink(), func(p core.Payload) {
		s.logger.Info("http.live.payload", "session", sessionID)
		_ = lc.send(Event{Type: "payload", Session: sessionID, Text: p.Text, Points: p.Points})
		s.validateLive(ctx, lc, sessionID, p)
	})
	if err != nil {
		_ = lc.send(errorEvent("", err))
		return
	}
	sessionID = session.ID()
	defer session.Stop()

	conn.SetReadLimit(1 << 16)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	session.OnStateChange(func(ch capture.StateChange) {
		_ = lc.send(Event{Type: "state", Session: ch.SessionID, From: ch.From.String(), To: ch.To.String()})
		if ch.Err != nil {
			_ = lc.send(errorEvent(ch.SessionID, ch.Err))
		}
	})

	go func() {
		if err := session.Start(ctx); err != nil {
			s.logger.Debug("http.live.start", "session", session.ID(), "error", err.Error())
		}
	}()

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingEvery)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := lc.ping(); err != nil {
					_ = conn.Close()
					return
				}
			}
		}
	}()

	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		var req struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			continue
		}
		if req.Type == "stop" {
			session.Stop()
		}
	}
}

// validateLive hands a live payload to the scanner's validator, when one is
// attached, and pushes the answer.  The session delivers at most once, so
// this runs at most once per connection.
func (s *Server) validateLive(ctx context.Context, lc *liveConn, sessionID string, p core.Payload) {
	v := s.scanner.Validator()
	if v == nil {
		return
	}
	res, err := v.Validate(ctx, p)
	if err != nil {
		err = apperrors.Wrap(apperrors.KindValidation, "http.live.validate", err)
		s.logger.Warn("http.live.validate", "session", sessionID, "error", err.Error())
		_ = lc.send(errorEvent(sessionID, err))
		return
	}
	_ = lc.send(Event{Type: "validation", Session: sessionID, Text: p.Text, Validation: &res})
}

func (s *Server) track(delta int) {
	s.mu.Lock()
	s.clients += delta
	s.mu.Unlock()
}
