package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/convault/convault/internal/logging"
	"github.com/convault/convault/internal/vault"
)

// pushGateway is the surface the HTTP handlers talk to. It stays nil on
// servers started without VAPID keys.
type pushGateway interface {
	Start(ctx context.Context)
	Enabled() bool
	PublicKey() string
	Subject() string
	SubscriberCount(ctx context.Context) (int, error)
	SaveSubscription(ctx context.Context, sub pushSubscription) error
	SetSubscriptionFocus(ctx context.Context, endpoint string, focused bool) error
	DropSubscription(ctx context.Context, endpoint string) error
}

// pushMessage is the notification payload the service worker unpacks.
type pushMessage struct {
	Title      string `json:"title"`
	Body       string `json:"body"`
	Tag        string `json:"tag,omitempty"`
	Renotify   bool   `json:"renotify,omitempty"`
	Event      string `json:"event,omitempty"`
	Profile    string `json:"profile,omitempty"`
	Timestamp  string `json:"timestamp"`
	RequireInt bool   `json:"requireInteraction,omitempty"`
}

// pushService forwards store sync outcomes to background web push
// subscribers. It watches the store's event channel; sync-error always
// notifies, sync-completed only when configured to. Subscribers whose tab is
// focused are skipped: they already see the outcome over the live stream.
type pushService struct {
	profile         string
	subject         string
	notifyCompleted bool

	store    *vault.Store
	registry *pushRegistry
	sender   webPushSender

	vapidPublic string

	startOnce sync.Once
	log       *slog.Logger
}

// newPushService builds the gateway for cfg, or (nil, nil) when push is not
// configured. Half a keypair is a configuration mistake, not "disabled".
func newPushService(cfg Config, store *vault.Store) (pushGateway, error) {
	public := strings.TrimSpace(cfg.PushVAPIDPublicKey)
	private := strings.TrimSpace(cfg.PushVAPIDPrivateKey)
	if public == "" && private == "" {
		return nil, nil
	}
	if public == "" || private == "" {
		return nil, fmt.Errorf("both push vapid public and private keys are required")
	}

	subject := strings.TrimSpace(cfg.PushVAPIDSubject)
	if subject == "" {
		subject = "mailto:convault@localhost"
	}

	registry, err := newPushRegistry(cfg.Profile)
	if err != nil {
		return nil, err
	}

	return &pushService{
		profile:         vault.GetEffectiveProfile(cfg.Profile),
		subject:         subject,
		notifyCompleted: cfg.NotifyOnSyncCompleted,
		store:           store,
		registry:        registry,
		sender:          &vapidPushSender{subject: subject, publicKey: public, privateKey: private},
		vapidPublic:     public,
		log:             logging.ForComponent(logging.CompWeb),
	}, nil
}

func (p *pushService) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		go p.watch(ctx)
	})
}

func (p *pushService) Enabled() bool { return p != nil }

func (p *pushService) PublicKey() string { return p.vapidPublic }

func (p *pushService) Subject() string { return p.subject }

func (p *pushService) SubscriberCount(ctx context.Context) (int, error) {
	return p.registry.count(ctx)
}

func (p *pushService) SaveSubscription(ctx context.Context, sub pushSubscription) error {
	return p.registry.upsert(ctx, sub)
}

func (p *pushService) SetSubscriptionFocus(ctx context.Context, endpoint string, focused bool) error {
	return p.registry.setFocus(ctx, endpoint, focused)
}

func (p *pushService) DropSubscription(ctx context.Context, endpoint string) error {
	return p.registry.remove(ctx, endpoint)
}

func (p *pushService) watch(ctx context.Context) {
	events, unsubscribe := p.store.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			switch ev.Type {
			case vault.EventSyncError:
				p.notifySubscribers(ctx, ev)
			case vault.EventSyncCompleted:
				if p.notifyCompleted {
					p.notifySubscribers(ctx, ev)
				}
			}
		}
	}
}

func (p *pushService) notifySubscribers(ctx context.Context, ev vault.Event) {
	subs, err := p.registry.snapshot(ctx)
	if err != nil {
		p.log.Error("push_snapshot_failed", slog.String("error", err.Error()))
		return
	}

	targets := subs[:0]
	for _, sub := range subs {
		if !sub.Focused {
			targets = append(targets, sub)
		}
	}
	if len(targets) == 0 {
		return
	}
	p.log.Debug("push_notifying",
		slog.String("event", string(ev.Type)),
		slog.Int("subscribers", len(targets)))

	payload, err := json.Marshal(pushMessage{
		Title:      pushTitleForEvent(p.profile, ev),
		Body:       pushBodyForEvent(ev),
		Tag:        fmt.Sprintf("convault-%s-%s", p.profile, ev.Type),
		Renotify:   true,
		Event:      string(ev.Type),
		Profile:    p.profile,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		RequireInt: ev.Type == vault.EventSyncError,
	})
	if err != nil {
		p.log.Error("push_marshal_failed", slog.String("error", err.Error()))
		return
	}

	for _, sub := range targets {
		status, err := p.sender.Send(payload, sub.Subscription)
		if err == nil {
			p.log.Debug("push_sent",
				slog.String("endpoint", endpointForLog(sub.Subscription.Endpoint)),
				slog.Int("http_status", status),
				slog.String("event", string(ev.Type)))
			continue
		}

		p.log.Error("push_send_failed",
			slog.String("endpoint", sub.Subscription.Endpoint),
			slog.Int("http_status", status),
			slog.String("event", string(ev.Type)),
			slog.String("error", err.Error()))
		if status == http.StatusGone || status == http.StatusNotFound {
			// The push gateway no longer knows this endpoint.
			_ = p.registry.remove(ctx, sub.Subscription.Endpoint)
		}
	}
}

func pushTitleForEvent(profile string, ev vault.Event) string {
	if ev.Type == vault.EventSyncError {
		return fmt.Sprintf("Convault: sync failed (%s)", profile)
	}
	return fmt.Sprintf("Convault: sync completed (%s)", profile)
}

func pushBodyForEvent(ev vault.Event) string {
	if ev.Type == vault.EventSyncError {
		if ev.Error != "" {
			return fmt.Sprintf("Consolidation failed: %s. Dirty conversations will be retried.", ev.Error)
		}
		return "Consolidation failed. Dirty conversations will be retried."
	}
	if ev.Sync != nil {
		return fmt.Sprintf("Merged %d conversations into the combined snapshot (%d removed).",
			ev.Sync.Synced, ev.Sync.Removed)
	}
	return "Consolidation completed."
}

// endpointForLog strips a push endpoint down to its host for log lines; the
// path segment is a bearer capability.
func endpointForLog(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err == nil && u.Host != "" {
		return u.Host
	}
	endpoint = strings.TrimSpace(endpoint)
	if len(endpoint) <= 48 {
		return endpoint
	}
	return endpoint[:48] + "..."
}

type webPushSender interface {
	Send(payload []byte, sub pushSubscription) (int, error)
}

type vapidPushSender struct {
	subject    string
	publicKey  string
	privateKey string
}

func (s *vapidPushSender) Send(payload []byte, sub pushSubscription) (int, error) {
	sub = sub.normalize()
	resp, err := webpush.SendNotification(payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.Keys.P256DH,
			Auth:   sub.Keys.Auth,
		},
	}, &webpush.Options{
		Subscriber:      s.subject,
		VAPIDPublicKey:  s.publicKey,
		VAPIDPrivateKey: s.privateKey,
		TTL:             3600,
	})
	if resp != nil {
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
	}

	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	if err != nil {
		return status, err
	}
	if status >= 400 {
		return status, fmt.Errorf("push gateway status %d", status)
	}
	return status, nil
}
