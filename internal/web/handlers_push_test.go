package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePushGateway struct {
	subs  map[string]pushSubscription
	focus map[string]bool
}

func newFakePushGateway() *fakePushGateway {
	return &fakePushGateway{
		subs:  map[string]pushSubscription{},
		focus: map[string]bool{},
	}
}

func (f *fakePushGateway) Start(context.Context) {}

func (f *fakePushGateway) Enabled() bool { return true }

func (f *fakePushGateway) PublicKey() string { return "test-public-key" }

func (f *fakePushGateway) Subject() string { return "mailto:test@example.com" }

func (f *fakePushGateway) SubscriberCount(context.Context) (int, error) {
	return len(f.subs), nil
}

func (f *fakePushGateway) SaveSubscription(_ context.Context, sub pushSubscription) error {
	f.subs[sub.Endpoint] = sub
	return nil
}

func (f *fakePushGateway) SetSubscriptionFocus(_ context.Context, endpoint string, focused bool) error {
	f.focus[endpoint] = focused
	return nil
}

func (f *fakePushGateway) DropSubscription(_ context.Context, endpoint string) error {
	delete(f.subs, endpoint)
	return nil
}

func postPushJSON(t *testing.T, srv *Server, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	return rr
}

func TestPushConfigEnabled(t *testing.T) {
	srv, _ := newTestServer(t, Config{})
	gateway := newFakePushGateway()
	srv.push = gateway
	require.NoError(t, gateway.SaveSubscription(context.Background(),
		pushSubscription{Endpoint: "https://push.example/sub-1"}))

	req := httptest.NewRequest(http.MethodGet, "/api/push/config", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp pushConfigResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.Enabled)
	assert.Equal(t, "test-public-key", resp.VAPIDPublicKey)
	assert.Equal(t, "mailto:test@example.com", resp.Subject)
	assert.Equal(t, 1, resp.SubscriptionCount)
}

func TestPushSubscribeAndUnsubscribe(t *testing.T) {
	srv, _ := newTestServer(t, Config{})
	gateway := newFakePushGateway()
	srv.push = gateway

	rr := postPushJSON(t, srv, "/api/push/subscribe",
		`{"endpoint":"https://push.example/sub-1","keys":{"p256dh":"key-a","auth":"key-b"}}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Contains(t, gateway.subs, "https://push.example/sub-1")
	assert.Equal(t, "key-a", gateway.subs["https://push.example/sub-1"].Keys.P256DH)

	rr = postPushJSON(t, srv, "/api/push/unsubscribe",
		`{"endpoint":"https://push.example/sub-1"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Empty(t, gateway.subs)
}

func TestPushSubscribeRejectsIncompletePayload(t *testing.T) {
	srv, _ := newTestServer(t, Config{})
	srv.push = newFakePushGateway()

	rr := postPushJSON(t, srv, "/api/push/subscribe",
		`{"endpoint":"https://push.example/sub-1","keys":{"p256dh":"key-a"}}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "keys.auth")
}

func TestPushPresenceRecordsFocus(t *testing.T) {
	srv, _ := newTestServer(t, Config{})
	gateway := newFakePushGateway()
	srv.push = gateway

	rr := postPushJSON(t, srv, "/api/push/presence",
		`{"endpoint":"https://push.example/sub-1","focused":true}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.True(t, gateway.focus["https://push.example/sub-1"])

	rr = postPushJSON(t, srv, "/api/push/presence",
		`{"endpoint":"https://push.example/sub-1","focused":false}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, gateway.focus["https://push.example/sub-1"])
}

func TestPushPresenceRequiresEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, Config{})
	srv.push = newFakePushGateway()

	rr := postPushJSON(t, srv, "/api/push/presence", `{"focused":true}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPushRoutesUnavailableWithoutService(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	for _, path := range []string{"/api/push/subscribe", "/api/push/presence", "/api/push/unsubscribe"} {
		rr := postPushJSON(t, srv, path, `{"endpoint":"https://push.example/sub-1"}`)
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code, path)
	}
}

func TestPushSubscribeUnauthorizedWithToken(t *testing.T) {
	srv, _ := newTestServer(t, Config{Token: "secret-token"})
	srv.push = newFakePushGateway()

	rr := postPushJSON(t, srv, "/api/push/subscribe",
		`{"endpoint":"https://push.example/sub-1","keys":{"p256dh":"key-a","auth":"key-b"}}`)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), "UNAUTHORIZED")
}
