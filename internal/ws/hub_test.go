package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/evetabi/riskevents/internal/domain"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tokens maps accepted bearer tokens to their subjects.
type tokens map[string]string

func (m tokens) VerifySubject(token string) (string, error) {
	if sub, ok := m[token]; ok {
		return sub, nil
	}
	return "", domain.ErrTokenInvalid
}

var testTokens = tokens{"tok-operator-1": "operator-1"}

func tokenFor(subject string) string { return "tok-" + subject }

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(testTokens, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWs))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

// stoppedHub returns a hub whose Run loop has already returned.
func stoppedHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(testTokens, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(finished)
	}()
	cancel()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	return hub
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.ConnectedCount() == n }, 2*time.Second, 10*time.Millisecond)
}

func tripped(user uuid.UUID) *domain.CircuitBreakerEvent {
	sym := "BTCUSDT"
	return &domain.CircuitBreakerEvent{
		ID:          uuid.New(),
		UserID:      user,
		Symbol:      &sym,
		Level:       domain.LevelL2,
		TriggerType: domain.TriggerLossLimit,
		Threshold:   10,
		ActualValue: 12.5,
		Action:      domain.ActionHaltTrading,
		CreatedAt:   time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
}

func TestServeWs_RejectsMissingToken(t *testing.T) {
	_, srv := startHub(t)

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServeWs_RejectsUnknownToken(t *testing.T) {
	_, srv := startHub(t)

	resp, err := http.Get(srv.URL + "/?token=forged")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHub_JoinAndLeaveReturnAfterShutdown(t *testing.T) {
	hub := stoppedHub(t)
	c := &Client{hub: hub, send: make(chan []byte, 1)}

	returned := make(chan bool, 1)
	go func() {
		ok := hub.join(c)
		hub.leave(c)
		returned <- ok
	}()

	select {
	case ok := <-returned:
		assert.False(t, ok, "join must fail once the hub stopped")
	case <-time.After(2 * time.Second):
		t.Fatal("join/leave blocked on a stopped hub")
	}
	assert.Zero(t, hub.ConnectedCount())
}

func TestServeWs_ClosesConnectionAfterShutdown(t *testing.T) {
	hub := stoppedHub(t)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWs))
	t.Cleanup(srv.Close)

	conn := dial(t, srv, "token="+tokenFor("operator-1"))
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	var ne net.Error
	if errors.As(err, &ne) {
		assert.False(t, ne.Timeout(), "server should drop the connection, not leave it hanging")
	}
}

func TestHub_PushesTripAndResolution(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv, "token="+tokenFor("operator-1"))
	waitForClients(t, hub, 1)

	ev := tripped(uuid.New())
	hub.BreakerTripped(context.Background(), ev)

	var msg BreakerMessage
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, MsgTypeBreakerTripped, msg.Type)
	assert.Equal(t, ev.ID, msg.EventID)
	assert.Equal(t, domain.BreakerStatusOpen, msg.Status)
	assert.Nil(t, msg.ResolvedAt)

	require.NoError(t, ev.Resolve(ev.CreatedAt.Add(time.Minute)))
	hub.BreakerResolved(context.Background(), ev)

	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, MsgTypeBreakerResolved, msg.Type)
	require.NotNil(t, msg.ResolvedAt)
	assert.Equal(t, ev.CreatedAt.Add(time.Minute), *msg.ResolvedAt)
}

func TestHub_UserFilter(t *testing.T) {
	hub, srv := startHub(t)
	watched := uuid.New()
	conn := dial(t, srv, "token="+tokenFor("operator-1")+"&user_id="+watched.String())
	waitForClients(t, hub, 1)

	hub.BreakerTripped(context.Background(), tripped(uuid.New()))
	mine := tripped(watched)
	hub.BreakerTripped(context.Background(), mine)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg BreakerMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, mine.ID, msg.EventID, "events of other users must be filtered out")
}
