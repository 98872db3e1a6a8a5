package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait is the time allowed to write a message to the bridge.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message.
	pongWait = 30 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff.
	maxReconnectDelay = 60 * time.Second
)

// Run drives the event stream: it dials the bridge WebSocket, replays any
// registrations made before a disconnect, and folds incoming events into
// session state until the context is cancelled. Connection loss triggers a
// reconnect with exponential backoff.
func (s *Session) Run(ctx context.Context) error {
	delay := reconnectDelay

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := s.runOnce(ctx)
		s.connected.Store(false)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.logger.WarnContext(ctx, "event stream lost, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// runOnce dials once and reads events until the connection fails.
func (s *Session) runOnce(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}

	conn, _, err := dialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return fmt.Errorf("bridge: dial %s: %w", s.wsURL, err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	s.mu.Lock()
	s.conn = conn
	conds := append([]string(nil), s.registeredConditions...)
	codes := append([]string(nil), s.subscribedCodes...)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.conn == conn {
			s.conn = nil
		}
		s.mu.Unlock()
	}()

	// Replay registrations so a reconnect restores the streams the watchers
	// believe are active.
	if len(conds) > 0 {
		if err := s.replay(wsCommand{Op: "register_conditions", Conditions: conds}); err != nil {
			return err
		}
	}
	if len(codes) > 0 {
		if err := s.replay(wsCommand{Op: "register_quotes", StockCodes: codes}); err != nil {
			return err
		}
	}

	pingDone := make(chan struct{})
	defer close(pingDone)
	go s.pingLoop(conn, pingPeriod, pingDone)

	s.logger.InfoContext(ctx, "event stream connected", slog.String("url", s.wsURL))

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("bridge: read: %w", err)
		}
		s.handleEvent(ctx, message)
	}
}

func (s *Session) replay(cmd wsCommand) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendCommandLocked(cmd)
}

// pingLoop keeps the connection alive until done is closed. Pings must go
// through WriteControl: the bus worker writes registration commands on the
// same connection, and WriteControl is the only write gorilla allows
// concurrently with them.
func (s *Session) pingLoop(conn *websocket.Conn, period time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// handleEvent parses one bridge event and updates session state.
func (s *Session) handleEvent(ctx context.Context, raw []byte) {
	var ev wsEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		s.logger.WarnContext(ctx, "malformed event", slog.String("error", err.Error()))
		return
	}

	switch ev.Type {
	case "connect":
		s.connected.Store(ev.Connected)
		s.logger.InfoContext(ctx, "session connectivity changed",
			slog.Bool("connected", ev.Connected),
		)

	case "tick":
		ts := time.UnixMilli(ev.Ts)
		if ev.Ts == 0 {
			ts = time.Now()
		}
		if err := s.quotes.SetQuote(ctx, ev.StockCode, ev.Price, ts); err != nil {
			s.logger.WarnContext(ctx, "tick cache write failed",
				slog.String("stock_code", ev.StockCode),
				slog.String("error", err.Error()),
			)
		}

	case "condition":
		s.mu.Lock()
		switch ev.Event {
		case "enter":
			s.matched[ev.StockCode] = struct{}{}
		case "leave":
			delete(s.matched, ev.StockCode)
		}
		s.mu.Unlock()
		s.logger.DebugContext(ctx, "condition event",
			slog.String("stock_code", ev.StockCode),
			slog.String("event", ev.Event),
			slog.String("condition", ev.Condition),
		)

	default:
		s.logger.DebugContext(ctx, "unknown event type", slog.String("type", ev.Type))
	}
}
