package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/convault/convault/internal/vault"
)

const pushSubscribersFileName = "web_push_subscribers.json"

// pushSubscription is the wire shape a browser posts from
// PushManager.subscribe(); field names follow the Push API.
type pushSubscription struct {
	Endpoint       string               `json:"endpoint"`
	ExpirationTime any                  `json:"expirationTime,omitempty"`
	Keys           pushSubscriptionKeys `json:"keys"`
}

type pushSubscriptionKeys struct {
	P256DH string `json:"p256dh"`
	Auth   string `json:"auth"`
}

func (s pushSubscription) normalize() pushSubscription {
	s.Endpoint = strings.TrimSpace(s.Endpoint)
	s.Keys.P256DH = strings.TrimSpace(s.Keys.P256DH)
	s.Keys.Auth = strings.TrimSpace(s.Keys.Auth)
	return s
}

func (s pushSubscription) validate() error {
	sub := s.normalize()
	switch {
	case sub.Endpoint == "":
		return fmt.Errorf("endpoint is required")
	case sub.Keys.P256DH == "":
		return fmt.Errorf("keys.p256dh is required")
	case sub.Keys.Auth == "":
		return fmt.Errorf("keys.auth is required")
	}
	return nil
}

// pushSubscriber is one registered browser: the raw subscription plus the
// state the notifier cares about. Focused tracks whether that browser tab is
// currently in the foreground; a focused tab follows sync over the live
// event stream, so the notifier leaves it alone.
type pushSubscriber struct {
	ID           string           `json:"id"`
	Subscription pushSubscription `json:"subscription"`
	Focused      bool             `json:"focused,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
	SeenAt       time.Time        `json:"seenAt"`
}

type pushRegistryFile struct {
	UpdatedAt   time.Time                 `json:"updatedAt"`
	Subscribers map[string]pushSubscriber `json:"subscribers"`
}

// pushRegistry persists subscribers as one JSON document in the profile
// directory, keyed by endpoint.
type pushRegistry struct {
	path string
	mu   sync.Mutex
}

func newPushRegistry(profile string) (*pushRegistry, error) {
	profileDir, err := vault.GetProfileDir(vault.GetEffectiveProfile(profile))
	if err != nil {
		return nil, fmt.Errorf("resolve profile dir: %w", err)
	}
	return &pushRegistry{path: filepath.Join(profileDir, pushSubscribersFileName)}, nil
}

// snapshot returns the current subscribers in no particular order.
func (r *pushRegistry) snapshot(_ context.Context) ([]pushSubscriber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.loadLocked()
	if err != nil {
		return nil, err
	}
	out := make([]pushSubscriber, 0, len(doc.Subscribers))
	for _, sub := range doc.Subscribers {
		out = append(out, sub)
	}
	return out, nil
}

func (r *pushRegistry) count(ctx context.Context) (int, error) {
	subs, err := r.snapshot(ctx)
	if err != nil {
		return 0, err
	}
	return len(subs), nil
}

// upsert registers a subscription. A refreshed endpoint keeps its id,
// creation time, and focus state; only the keys and SeenAt move.
func (r *pushRegistry) upsert(_ context.Context, sub pushSubscription) error {
	sub = sub.normalize()
	if err := sub.validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.loadLocked()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	entry, ok := doc.Subscribers[sub.Endpoint]
	if !ok {
		entry = pushSubscriber{ID: uuid.NewString(), CreatedAt: now}
	}
	entry.Subscription = sub
	entry.SeenAt = now
	doc.Subscribers[sub.Endpoint] = entry

	return r.saveLocked(doc)
}

// setFocus records whether the subscriber's tab is foregrounded. Unknown
// endpoints are a no-op; the browser may report presence before its
// subscription lands.
func (r *pushRegistry) setFocus(_ context.Context, endpoint string, focused bool) error {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.loadLocked()
	if err != nil {
		return err
	}
	entry, ok := doc.Subscribers[endpoint]
	if !ok {
		return nil
	}
	entry.Focused = focused
	entry.SeenAt = time.Now().UTC()
	doc.Subscribers[endpoint] = entry

	return r.saveLocked(doc)
}

// remove drops the subscriber for endpoint. Removing an unknown endpoint is
// fine.
func (r *pushRegistry) remove(_ context.Context, endpoint string) error {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.loadLocked()
	if err != nil {
		return err
	}
	if _, ok := doc.Subscribers[endpoint]; !ok {
		return nil
	}
	delete(doc.Subscribers, endpoint)

	return r.saveLocked(doc)
}

func (r *pushRegistry) loadLocked() (*pushRegistryFile, error) {
	raw, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return &pushRegistryFile{Subscribers: map[string]pushSubscriber{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read push subscribers: %w", err)
	}

	var doc pushRegistryFile
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse push subscribers: %w", err)
	}
	if doc.Subscribers == nil {
		doc.Subscribers = map[string]pushSubscriber{}
	}
	return &doc, nil
}

func (r *pushRegistry) saveLocked(doc *pushRegistryFile) error {
	doc.UpdatedAt = time.Now().UTC()

	if err := os.MkdirAll(filepath.Dir(r.path), 0o700); err != nil {
		return fmt.Errorf("mkdir push subscriber dir: %w", err)
	}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal push subscribers: %w", err)
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write temp push subscribers: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename push subscribers: %w", err)
	}
	return nil
}
