package web

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convault/convault/internal/logging"
	"github.com/convault/convault/internal/vault"
)

type fakePushSender struct {
	mu       sync.Mutex
	payloads [][]byte
	subs     []pushSubscription
	status   map[string]int // endpoint -> status override
}

func (f *fakePushSender) Send(payload []byte, sub pushSubscription) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, payload)
	f.subs = append(f.subs, sub)
	if status, ok := f.status[sub.Endpoint]; ok && status >= 400 {
		return status, http.ErrBodyNotAllowed
	}
	return http.StatusCreated, nil
}

func newTestRegistry(t *testing.T) *pushRegistry {
	t.Helper()
	return &pushRegistry{path: filepath.Join(t.TempDir(), pushSubscribersFileName)}
}

func newTestPushService(registry *pushRegistry, sender webPushSender) *pushService {
	return &pushService{
		profile:  "default",
		registry: registry,
		sender:   sender,
		log:      logging.ForComponent(logging.CompWeb),
	}
}

func testSubscription(endpoint string) pushSubscription {
	return pushSubscription{
		Endpoint: endpoint,
		Keys:     pushSubscriptionKeys{P256DH: "p256dh-key", Auth: "auth-key"},
	}
}

func TestPushRegistryUpsertAssignsIdentity(t *testing.T) {
	registry := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, registry.upsert(ctx, testSubscription("https://push.example/a")))

	subs, err := registry.snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.NotEmpty(t, subs[0].ID)
	assert.False(t, subs[0].CreatedAt.IsZero())
	assert.False(t, subs[0].SeenAt.IsZero())
}

func TestPushRegistryUpsertPreservesIdentityOnRefresh(t *testing.T) {
	registry := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, registry.upsert(ctx, testSubscription("https://push.example/a")))
	require.NoError(t, registry.setFocus(ctx, "https://push.example/a", true))
	before, err := registry.snapshot(ctx)
	require.NoError(t, err)

	refreshed := testSubscription("https://push.example/a")
	refreshed.Keys.Auth = "rotated-auth"
	require.NoError(t, registry.upsert(ctx, refreshed))

	after, err := registry.snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, after, 1, "refresh must not duplicate")
	assert.Equal(t, before[0].ID, after[0].ID)
	assert.True(t, after[0].CreatedAt.Equal(before[0].CreatedAt))
	assert.True(t, after[0].Focused, "focus state survives a refresh")
	assert.Equal(t, "rotated-auth", after[0].Subscription.Keys.Auth)
}

func TestPushRegistryRemove(t *testing.T) {
	registry := newTestRegistry(t)
	ctx := context.Background()

	for _, ep := range []string{"https://push.example/a", "https://push.example/b"} {
		require.NoError(t, registry.upsert(ctx, testSubscription(ep)))
	}
	require.NoError(t, registry.remove(ctx, "https://push.example/a"))
	require.NoError(t, registry.remove(ctx, "https://push.example/unknown"))

	subs, err := registry.snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "https://push.example/b", subs[0].Subscription.Endpoint)

	count, err := registry.count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPushRegistrySetFocusUnknownEndpoint(t *testing.T) {
	registry := newTestRegistry(t)
	ctx := context.Background()

	// Presence may arrive before the subscription does.
	require.NoError(t, registry.setFocus(ctx, "https://push.example/ghost", true))

	count, err := registry.count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestPushSubscriptionValidate(t *testing.T) {
	sub := testSubscription("  https://push.example/a  ")
	assert.NoError(t, sub.validate(), "padded endpoint should validate")

	for _, broken := range []pushSubscription{
		{Keys: pushSubscriptionKeys{P256DH: "p", Auth: "a"}},
		{Endpoint: "https://push.example/a", Keys: pushSubscriptionKeys{Auth: "a"}},
		{Endpoint: "https://push.example/a", Keys: pushSubscriptionKeys{P256DH: "p"}},
	} {
		assert.Error(t, broken.validate(), "%+v", broken)
	}
}

func TestNotifySubscribersSendsPayload(t *testing.T) {
	registry := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, registry.upsert(ctx, testSubscription("https://push.example/a")))

	sender := &fakePushSender{}
	svc := newTestPushService(registry, sender)

	svc.notifySubscribers(ctx, vault.Event{
		Type: vault.EventSyncCompleted,
		Sync: &vault.SyncResult{Synced: 3, Removed: 1},
	})

	require.Len(t, sender.payloads, 1)
	var msg pushMessage
	require.NoError(t, json.Unmarshal(sender.payloads[0], &msg))
	assert.Contains(t, msg.Title, "sync completed")
	assert.Contains(t, msg.Body, "3 conversations")
	assert.False(t, msg.RequireInt, "completed sync should not require interaction")
}

func TestNotifySubscribersSkipsFocusedTabs(t *testing.T) {
	registry := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, registry.upsert(ctx, testSubscription("https://push.example/front")))
	require.NoError(t, registry.upsert(ctx, testSubscription("https://push.example/back")))
	require.NoError(t, registry.setFocus(ctx, "https://push.example/front", true))

	sender := &fakePushSender{}
	svc := newTestPushService(registry, sender)

	svc.notifySubscribers(ctx, vault.Event{Type: vault.EventSyncError, Error: "disk full"})

	require.Len(t, sender.subs, 1, "only the background tab gets pushed")
	assert.Equal(t, "https://push.example/back", sender.subs[0].Endpoint)
}

func TestNotifySubscribersRemovesGoneEndpoints(t *testing.T) {
	registry := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, registry.upsert(ctx, testSubscription("https://push.example/gone")))
	require.NoError(t, registry.upsert(ctx, testSubscription("https://push.example/ok")))

	sender := &fakePushSender{status: map[string]int{
		"https://push.example/gone": http.StatusGone,
	}}
	svc := newTestPushService(registry, sender)

	svc.notifySubscribers(ctx, vault.Event{Type: vault.EventSyncError, Error: "disk full"})

	subs, err := registry.snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "https://push.example/ok", subs[0].Subscription.Endpoint)
}

func TestPushMessageForSyncError(t *testing.T) {
	ev := vault.Event{Type: vault.EventSyncError, Error: "disk full"}
	title := pushTitleForEvent("work", ev)
	assert.Contains(t, title, "sync failed")
	assert.Contains(t, title, "work")
	assert.Contains(t, pushBodyForEvent(ev), "disk full")
}

func TestNewPushServiceRequiresKeyPair(t *testing.T) {
	svc, err := newPushService(Config{}, nil)
	require.NoError(t, err)
	assert.Nil(t, svc, "no keys means push stays off")

	_, err = newPushService(Config{PushVAPIDPublicKey: "pub"}, nil)
	assert.Error(t, err, "half a keypair is a configuration mistake")
}

func TestEndpointForLog(t *testing.T) {
	assert.Equal(t, "push.example", endpointForLog("https://push.example/very/long/token"))

	long := strings.Repeat("x", 80)
	got := endpointForLog(long)
	assert.Len(t, got, 51)
	assert.True(t, strings.HasSuffix(got, "..."))
}
