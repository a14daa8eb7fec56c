package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dip-trader/internal/contract"
	"dip-trader/internal/events"
	"dip-trader/internal/monitor"
	"dip-trader/internal/order"
	"dip-trader/internal/session"
)

const testSecret = "test-secret"

type fakeSession struct {
	mu        sync.Mutex
	admitted  []string
	rotations int
	orders    []order.Record
}

func (f *fakeSession) Status() session.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return session.Status{SessionID: "s1", Started: true, Batches: 2, Cursor: f.rotations % 2, Capacity: 2}
}

func (f *fakeSession) Watchlist() []session.BatchView {
	return []session.BatchView{{Index: 0, Contracts: []contract.View{{Symbol: "A"}}}}
}
func (f *fakeSession) Contracts() []contract.View { return []contract.View{{Symbol: "A"}} }
func (f *fakeSession) Holdings() []contract.View  { return nil }
func (f *fakeSession) Orders() []order.Record     { return f.orders }

func (f *fakeSession) AdmitSymbol(_ context.Context, symbol string, _ decimal.Decimal) error {
	if contract.NormalizeSymbol(symbol) == "" {
		return session.ErrEmptySymbol
	}
	f.mu.Lock()
	f.admitted = append(f.admitted, symbol)
	f.mu.Unlock()
	return nil
}

func (f *fakeSession) RotateBatch() {
	f.mu.Lock()
	f.rotations++
	f.mu.Unlock()
}

func newTestServer(t *testing.T) (*Server, *fakeSession, *events.Bus) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	sess := &fakeSession{orders: []order.Record{
		{ID: 1, Class: order.ClassBuy, Symbol: "A", Live: true},
		{ID: 2, Class: order.ClassSellLimit, Symbol: "B", Live: false},
	}}
	bus := events.NewBus()
	s := NewServer(sess, bus, monitor.New(), SystemMeta{Venue: "paper", Capacity: 2}, testSecret, zerolog.Nop())
	return s, sess, bus
}

func do(t *testing.T, s *Server, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)
	return w
}

func token(t *testing.T) string {
	t.Helper()
	tok, err := IssueToken("operator", testSecret, time.Hour)
	require.NoError(t, err)
	return tok
}

func TestHealthAndRequestID(t *testing.T) {
	s, _, _ := newTestServer(t)
	w := do(t, s, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestSessionStatus(t *testing.T) {
	s, _, _ := newTestServer(t)
	w := do(t, s, http.MethodGet, "/api/session/status", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Session session.Status `json:"session"`
		Meta    SystemMeta     `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "s1", body.Session.SessionID)
	assert.Equal(t, "paper", body.Meta.Venue)
}

func TestOrdersFilter(t *testing.T) {
	s, _, _ := newTestServer(t)
	tests := []struct {
		query string
		want  int
	}{
		{"", 2},
		{"?class=buy", 1},
		{"?live=true", 1},
		{"?class=sell_limit&live=true", 0},
	}
	for _, tt := range tests {
		w := do(t, s, http.MethodGet, "/api/orders"+tt.query, "", "")
		require.Equal(t, http.StatusOK, w.Code)
		var body struct {
			Count int `json:"count"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, tt.want, body.Count, tt.query)
	}
}

func TestAdmitSymbolRequiresToken(t *testing.T) {
	s, sess, _ := newTestServer(t)
	payload := `{"symbol":"msft","opening_price":"310.5"}`

	w := do(t, s, http.MethodPost, "/api/symbols", payload, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, s, http.MethodPost, "/api/symbols", payload, "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	wrong, err := IssueToken("operator", "other-secret", time.Hour)
	require.NoError(t, err)
	w = do(t, s, http.MethodPost, "/api/symbols", payload, wrong)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, s, http.MethodPost, "/api/symbols", payload, token(t))
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), "MSFT")
	assert.Equal(t, []string{"msft"}, sess.admitted)
}

func TestAdmitSymbolValidation(t *testing.T) {
	s, sess, _ := newTestServer(t)
	tok := token(t)
	tests := []struct {
		name, body string
		code       int
	}{
		{"bad json", `{`, http.StatusBadRequest},
		{"zero price", `{"symbol":"A","opening_price":"0"}`, http.StatusBadRequest},
		{"text price", `{"symbol":"A","opening_price":"abc"}`, http.StatusBadRequest},
		{"blank symbol", `{"symbol":"  ","opening_price":"5"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, http.MethodPost, "/api/symbols", tt.body, tok)
			assert.Equal(t, tt.code, w.Code)
		})
	}
	assert.Empty(t, sess.admitted)
}

func TestRotateWatchlist(t *testing.T) {
	s, sess, _ := newTestServer(t)
	w := do(t, s, http.MethodPost, "/api/watchlist/rotate", "", token(t))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, sess.rotations)
	assert.Contains(t, w.Body.String(), `"cursor":1`)
}

func TestPrometheusEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t)
	s.Monitor.TriggerFired()
	w := do(t, s, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "dip_triggers_fired_total 1")

	w = do(t, s, http.MethodGet, "/api/metrics", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"triggers":1`)
}

func TestWebsocketStreamsEvents(t *testing.T) {
	s, _, bus := newTestServer(t)
	srv := httptest.NewServer(s.Router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	received := make(chan events.Envelope, 1)
	go func() {
		var env events.Envelope
		if err := conn.ReadJSON(&env); err == nil {
			received <- env
		}
	}()

	// the handler subscribes after the upgrade; publish until it is listening
	deadline := time.After(2 * time.Second)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case env := <-received:
			assert.Equal(t, events.EventBatchRotated, env.Event)
			return
		case <-ticker.C:
			bus.Publish(events.EventBatchRotated, events.BatchRotated{Batch: 1, Symbols: []string{"A"}})
		case <-deadline:
			t.Fatal("no event received over websocket")
		}
	}
}
