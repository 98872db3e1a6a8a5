// Package bridge implements broker.Session against a local Kiwoom OpenAPI
// bridge service. Request-style operations (orders, quotes, order status) go
// over REST. The asynchronous streams the OpenAPI delivers through callbacks
// (connectivity state, real-time ticks, and screening-condition events)
// arrive over a WebSocket and are folded into local state that the live-quote
// and condition queries read.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Taekhyang/kiwoom-condition-trader/internal/domain"
)

// Session talks to the Kiwoom bridge. All request methods are expected to be
// called from a single goroutine (the command bus worker); Run and the
// WebSocket pump it starts are the only other writers of session state.
type Session struct {
	baseURL    string
	wsURL      string
	httpClient *http.Client
	quotes     domain.QuoteCache
	logger     *slog.Logger

	connected atomic.Bool

	mu      sync.Mutex
	conn    *websocket.Conn
	matched map[string]struct{}
	// Registrations are remembered so they can be replayed after a
	// reconnect. Re-registering at the venue is harmless.
	registeredConditions []string
	subscribedCodes      []string
}

// New creates a Session for the bridge at baseURL (REST) and wsURL (events).
// Ticks received over the WebSocket are written into quotes.
func New(baseURL, wsURL string, quotes domain.QuoteCache, logger *slog.Logger) *Session {
	return &Session{
		baseURL: baseURL,
		wsURL:   wsURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		quotes:  quotes,
		logger:  logger.With(slog.String("component", "bridge")),
		matched: make(map[string]struct{}),
	}
}

// IsConnected reports whether the bridge has announced a connected OpenAPI
// session and the event stream is up.
func (s *Session) IsConnected() bool {
	return s.connected.Load()
}

// Buy places a market buy order.
func (s *Session) Buy(ctx context.Context, account, stockCode string, quantity int64) (string, error) {
	return s.placeOrder(ctx, account, stockCode, quantity, "buy")
}

// Sell places a market sell order.
func (s *Session) Sell(ctx context.Context, account, stockCode string, quantity int64) (string, error) {
	return s.placeOrder(ctx, account, stockCode, quantity, "sell")
}

func (s *Session) placeOrder(ctx context.Context, account, stockCode string, quantity int64, side string) (string, error) {
	body, err := s.doRequest(ctx, http.MethodPost, "/v1/orders", orderRequest{
		Account:   account,
		StockCode: stockCode,
		Quantity:  quantity,
		Side:      side,
		PriceType: marketPriceType,
	})
	if err != nil {
		return "", fmt.Errorf("bridge: %s %s: %w", side, stockCode, err)
	}

	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("bridge: decode %s response: %w", side, err)
	}
	// The order number is returned verbatim; the OpenAPI reports a rejected
	// order by answering with a non-numeric error code here, which the
	// watchers detect.
	return resp.OrderNumber, nil
}

// GetCurrentQuote returns the latest traded price for a code.
func (s *Session) GetCurrentQuote(ctx context.Context, stockCode string) (float64, error) {
	body, err := s.doRequest(ctx, http.MethodGet, "/v1/quotes/"+url.PathEscape(stockCode), nil)
	if err != nil {
		return 0, fmt.Errorf("bridge: quote %s: %w", stockCode, err)
	}

	var resp quoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("bridge: decode quote: %w", err)
	}
	if resp.Price <= 0 {
		return 0, domain.ErrUnavailable
	}
	return resp.Price, nil
}

// GetLiveQuote returns the most recent tick for a subscribed code.
func (s *Session) GetLiveQuote(ctx context.Context, stockCode string) (float64, error) {
	price, _, err := s.quotes.GetQuote(ctx, stockCode)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, domain.ErrUnavailable
		}
		return 0, fmt.Errorf("bridge: live quote %s: %w", stockCode, err)
	}
	return price, nil
}

// GetMatchedConditionStocks returns the codes currently matching the
// registered screening conditions, in sorted order.
func (s *Session) GetMatchedConditionStocks(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	codes := make([]string, 0, len(s.matched))
	for code := range s.matched {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes, nil
}

// GetOrderStatus returns the fill state of an order.
func (s *Session) GetOrderStatus(ctx context.Context, orderID string) (domain.OrderStatus, error) {
	body, err := s.doRequest(ctx, http.MethodGet, "/v1/orders/"+url.PathEscape(orderID), nil)
	if err != nil {
		return domain.OrderStatus{}, fmt.Errorf("bridge: order status %s: %w", orderID, err)
	}

	var resp orderStatusResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.OrderStatus{}, fmt.Errorf("bridge: decode order status: %w", err)
	}
	return domain.OrderStatus{
		OrderID:     resp.OrderNumber,
		StockCode:   resp.StockCode,
		OrderedQty:  resp.OrderedQty,
		FilledQty:   resp.FilledQty,
		FilledPrice: resp.FilledPrice,
	}, nil
}

// RegisterConditions subscribes to the named screening conditions.
func (s *Session) RegisterConditions(_ context.Context, conditions []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.registeredConditions = mergeUnique(s.registeredConditions, conditions)
	return s.sendCommandLocked(wsCommand{
		Op:         "register_conditions",
		Conditions: conditions,
	})
}

// RegisterLiveQuoteSubscriptions subscribes the codes to the tick stream.
func (s *Session) RegisterLiveQuoteSubscriptions(_ context.Context, stockCodes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subscribedCodes = mergeUnique(s.subscribedCodes, stockCodes)
	return s.sendCommandLocked(wsCommand{
		Op:         "register_quotes",
		StockCodes: stockCodes,
	})
}

// CancelSellOrder cancels an open sell order.
func (s *Session) CancelSellOrder(ctx context.Context, orderID string) error {
	if _, err := s.doRequest(ctx, http.MethodDelete, "/v1/orders/"+url.PathEscape(orderID), nil); err != nil {
		return fmt.Errorf("bridge: cancel order %s: %w", orderID, err)
	}
	return nil
}

// doRequest builds, sends, and reads an HTTP request against the bridge. A
// 404 maps to domain.ErrUnavailable so quote and status queries can report
// "no data" distinctly from transport failures.
func (s *Session) doRequest(ctx context.Context, method, path string, reqBody any) ([]byte, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, domain.ErrUnavailable
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(respBody, 256))
	}
	return respBody, nil
}

// sendCommandLocked writes a control message on the WebSocket. Caller must
// hold s.mu.
func (s *Session) sendCommandLocked(cmd wsCommand) error {
	if s.conn == nil {
		return domain.ErrNotConnected
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("bridge: marshal %s: %w", cmd.Op, err)
	}

	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("bridge: send %s: %w", cmd.Op, err)
	}
	return nil
}

func mergeUnique(existing, add []string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, v := range existing {
		seen[v] = struct{}{}
	}
	for _, v := range add {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			existing = append(existing, v)
		}
	}
	return existing
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
