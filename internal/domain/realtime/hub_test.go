package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pptmaker/pptmaker-api/internal/middleware"
)

func startHub(t *testing.T, instanceID string) *Hub {
	t.Helper()
	h := newHub(nil, instanceID)
	go h.Run()
	t.Cleanup(h.Shutdown)
	return h
}

func localConn(t *testing.T, h *Hub, userID uuid.UUID) *Connection {
	t.Helper()
	c := &Connection{UserID: userID, Send: make(chan []byte, 4)}
	h.Register(c)
	require.Eventually(t, func() bool { return h.ConnectionCount() > 0 }, time.Second, 10*time.Millisecond)
	return c
}

func readEvent(t *testing.T, ch <-chan []byte) Event {
	t.Helper()
	select {
	case msg := <-ch:
		var e Event
		require.NoError(t, json.Unmarshal(msg, &e))
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestBalanceChangedReachesOnlyOwner(t *testing.T) {
	h := startHub(t, "a")
	owner, other := uuid.New(), uuid.New()
	ownerConn := localConn(t, h, owner)
	otherConn := &Connection{UserID: other, Send: make(chan []byte, 4)}
	h.Register(otherConn)
	require.Eventually(t, func() bool { return h.ConnectionCount() == 2 }, time.Second, 10*time.Millisecond)

	h.BalanceChanged(context.Background(), owner, 30, 20)

	e := readEvent(t, ownerConn.Send)
	assert.Equal(t, EventBalanceChanged, e.Type)
	data := e.Data.(map[string]interface{})
	assert.EqualValues(t, 30, data["balance"])
	assert.EqualValues(t, 20, data["available"])
	assert.Empty(t, otherConn.Send)
}

func TestUnregisterClosesSendChannel(t *testing.T) {
	h := startHub(t, "a")
	c := localConn(t, h, uuid.New())

	h.Unregister(c)
	require.Eventually(t, func() bool { return h.ConnectionCount() == 0 }, time.Second, 10*time.Millisecond)
	_, open := <-c.Send
	assert.False(t, open)
}

func TestEventsFanOutAcrossInstances(t *testing.T) {
	a := startHub(t, "a")
	b := startHub(t, "b")
	a.publishFn = func(_ context.Context, channel string, payload []byte) error {
		assert.Equal(t, userEventsChannel, channel)
		a.handleEnvelope(payload)
		b.handleEnvelope(payload)
		return nil
	}

	userID := uuid.New()
	onA := localConn(t, a, userID)
	onB := localConn(t, b, userID)

	a.BalanceChanged(context.Background(), userID, 5, 5)

	assert.Equal(t, EventBalanceChanged, readEvent(t, onA.Send).Type)
	assert.Equal(t, EventBalanceChanged, readEvent(t, onB.Send).Type)
	assert.Empty(t, onA.Send, "sender instance must not deliver its own event twice")
}

func TestHandleEnvelopeIgnoresGarbage(t *testing.T) {
	h := startHub(t, "a")
	c := localConn(t, h, uuid.New())

	h.handleEnvelope([]byte("not json"))
	h.handleEnvelope([]byte(`{"user_id":"nope","payload":{},"sender_instance_id":"b"}`))
	assert.Empty(t, c.Send)
}

func withUser(userID uuid.UUID) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(middleware.WithUserID(r.Context(), userID)))
		})
	}
}

func TestWebSocketDeliversBalanceEvent(t *testing.T) {
	h := startHub(t, "a")
	userID := uuid.New()

	r := chi.NewRouter()
	r.With(withUser(userID)).Get("/ws", NewHandler(h, nil).WebSocket)
	ts := httptest.NewServer(r)
	defer ts.Close()

	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	require.Eventually(t, func() bool { return h.ConnectionCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	h.BalanceChanged(context.Background(), userID, 12, 7)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var e Event
	require.NoError(t, conn.ReadJSON(&e))
	assert.Equal(t, EventBalanceChanged, e.Type)
}

func TestWebSocketRequiresUser(t *testing.T) {
	h := startHub(t, "a")
	r := chi.NewRouter()
	r.With(withUser(uuid.Nil)).Get("/ws", NewHandler(h, nil).WebSocket)
	ts := httptest.NewServer(r)
	defer ts.Close()

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestOriginCheck(t *testing.T) {
	h := NewHandler(nil, []string{"https://app.example.com"})
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, h.upgrader.CheckOrigin(req))
	req.Header.Set("Origin", "https://app.example.com")
	assert.True(t, h.upgrader.CheckOrigin(req))
}
