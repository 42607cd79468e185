package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convault/convault/internal/vault"
)

func dialEventsWS(t *testing.T, ts *httptest.Server, header http.Header) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/events"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial %s: %v (status %d)", wsURL, err, status)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readWSMessage(t *testing.T, conn *websocket.Conn) wsServerMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg wsServerMessage
	require.NoError(t, conn.ReadJSON(&msg), "read websocket message")
	return msg
}

func TestEventsWSInitialIndexAndEventForwarding(t *testing.T) {
	srv, store := newTestServer(t, Config{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dialEventsWS(t, ts, nil)

	msg := readWSMessage(t, conn)
	require.Equal(t, "index", msg.Type)
	require.NotNil(t, msg.Index)
	assert.Zero(t, msg.Index.Conversations, "store starts empty")

	_, err := store.Save(context.Background(), "c1",
		[]byte(testConversationBody("c1", "Hello", "hi")), "")
	require.NoError(t, err)

	msg = readWSMessage(t, conn)
	require.Equal(t, "event", msg.Type)
	require.NotNil(t, msg.Event)
	assert.Equal(t, vault.EventConversationSaved, msg.Event.Type)
	assert.Equal(t, "c1", msg.Event.ConversationID)
}

func TestEventsWSPingPong(t *testing.T) {
	srv, _ := newTestServer(t, Config{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dialEventsWS(t, ts, nil)
	readWSMessage(t, conn) // index

	require.NoError(t, conn.WriteJSON(wsClientMessage{Type: "ping"}))
	msg := readWSMessage(t, conn)
	assert.Equal(t, "status", msg.Type)
	assert.Equal(t, "pong", msg.Message)
}

func TestEventsWSUnsupportedMessage(t *testing.T) {
	srv, _ := newTestServer(t, Config{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dialEventsWS(t, ts, nil)
	readWSMessage(t, conn) // index

	require.NoError(t, conn.WriteJSON(wsClientMessage{Type: "subscribe"}))
	msg := readWSMessage(t, conn)
	assert.Equal(t, "error", msg.Type)
	assert.Equal(t, "UNSUPPORTED_MESSAGE", msg.Code)
}

func TestEventsWSRequiresAuth(t *testing.T) {
	srv, _ := newTestServer(t, Config{Token: "secret"})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/events"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err, "dial must fail without token")
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	header := http.Header{}
	header.Set("Authorization", "Bearer secret")
	conn := dialEventsWS(t, ts, header)
	msg := readWSMessage(t, conn)
	assert.Equal(t, "index", msg.Type, "authorized dial gets the index message")
}

func TestAllowWSOrigin(t *testing.T) {
	tests := []struct {
		name   string
		origin string
		host   string
		want   bool
	}{
		{"no origin", "", "localhost:8417", true},
		{"same host", "http://localhost:8417", "localhost:8417", true},
		{"same host mixed case", "http://LOCALHOST:8417", "localhost:8417", true},
		{"different host", "http://evil.example", "localhost:8417", false},
		{"different port", "http://localhost:9000", "localhost:8417", false},
		{"malformed origin", "://bad", "localhost:8417", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws/events", nil)
			r.Host = tt.host
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, allowWSOrigin(r),
				"origin=%q host=%q", tt.origin, tt.host)
		})
	}
}
