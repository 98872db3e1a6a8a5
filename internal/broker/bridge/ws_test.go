package bridge

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Taekhyang/kiwoom-condition-trader/internal/cache/memory"
)

// wsTestServer upgrades incoming connections, pushes the scripted events, and
// records every client command it receives.
type wsTestServer struct {
	server   *httptest.Server
	events   []wsEvent
	received chan wsCommand
}

func newWsTestServer(t *testing.T, events []wsEvent) *wsTestServer {
	t.Helper()
	ts := &wsTestServer{
		events:   events,
		received: make(chan wsCommand, 16),
	}

	upgrader := websocket.Upgrader{}
	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for _, ev := range ts.events {
			data, _ := json.Marshal(ev)
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var cmd wsCommand
			if json.Unmarshal(msg, &cmd) == nil {
				ts.received <- cmd
			}
		}
	}))
	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *wsTestServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ts.server.URL, "http")
}

func TestRunFoldsEventsIntoState(t *testing.T) {
	t.Parallel()

	ts := newWsTestServer(t, []wsEvent{
		{Type: "connect", Connected: true},
		{Type: "tick", StockCode: "005930", Price: 60100, Ts: 1700000000000},
		{Type: "condition", Event: "enter", StockCode: "005930", Condition: "volume_spike"},
	})

	quotes := memory.NewQuoteCache()
	s := New("http://unused", ts.wsURL(), quotes, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	require.Eventually(t, s.IsConnected, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		price, _, err := quotes.GetQuote(context.Background(), "005930")
		return err == nil && price == 60100
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		codes, err := s.GetMatchedConditionStocks(context.Background())
		return err == nil && len(codes) == 1 && codes[0] == "005930"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPingsInterleaveWithCommandWrites(t *testing.T) {
	t.Parallel()

	pings := make(chan struct{}, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.SetPingHandler(func(string) error {
			select {
			case pings <- struct{}{}:
			default:
			}
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	dialer := websocket.Dialer{}
	conn, _, err := dialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	s := New("http://unused", wsURL, memory.NewQuoteCache(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	// Hammer registration writes while the ping ticker fires on the same
	// connection. A non-control ping write here panics inside gorilla.
	done := make(chan struct{})
	defer close(done)
	go s.pingLoop(conn, time.Millisecond, done)
	for i := 0; i < 200; i++ {
		require.NoError(t, s.RegisterLiveQuoteSubscriptions(context.Background(), []string{"005930"}))
	}

	select {
	case <-pings:
	case <-time.After(2 * time.Second):
		t.Fatal("server never received a ping")
	}
}

func TestRunRegistrationAndReplay(t *testing.T) {
	t.Parallel()

	ts := newWsTestServer(t, []wsEvent{{Type: "connect", Connected: true}})

	s := New("http://unused", ts.wsURL(), memory.NewQuoteCache(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	require.Eventually(t, s.IsConnected, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.RegisterConditions(context.Background(), []string{"volume_spike"}))
	require.NoError(t, s.RegisterLiveQuoteSubscriptions(context.Background(), []string{"005930"}))

	var ops []string
	for len(ops) < 2 {
		select {
		case cmd := <-ts.received:
			ops = append(ops, cmd.Op)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for commands, got %v", ops)
		}
	}
	assert.Contains(t, ops, "register_conditions")
	assert.Contains(t, ops, "register_quotes")
}
