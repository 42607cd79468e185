package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/convault/convault/internal/logging"
)

// SyncResult reports one consolidation run: bodies folded into the snapshot,
// slots removed for deleted ids, and dirty ids left over (mutations that
// landed while the run was in flight).
type SyncResult struct {
	Synced    int `json:"synced"`
	Removed   int `json:"removed"`
	Remaining int `json:"remaining"`
}

// consolidator owns the debounce timer and the no-overlap rule for
// consolidation. Concurrent run calls share a single flight: a caller
// arriving while a run is active gets that run's outcome instead of starting
// a redundant second pass.
type consolidator struct {
	store    *Store
	debounce time.Duration
	log      *slog.Logger
	flight   singleflight.Group

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

func newConsolidator(s *Store, debounce time.Duration) *consolidator {
	if debounce <= 0 {
		debounce = DefaultSyncDebounce
	}
	return &consolidator{
		store:    s,
		debounce: debounce,
		log:      logging.ForComponent(logging.CompSync),
	}
}

func (c *consolidator) run(ctx context.Context) (SyncResult, error) {
	v, err, _ := c.flight.Do("sync", func() (interface{}, error) {
		return c.store.syncToCopy(ctx)
	})
	if err != nil {
		return SyncResult{}, err
	}
	return v.(SyncResult), nil
}

// schedule (re)starts the debounce timer. Each eligible mutation lands here,
// so consolidation only runs once the store has been quiet for the full
// debounce window.
func (c *consolidator) schedule() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.debounce, c.fire)
	logging.Aggregate(logging.CompSync, "sync_scheduled")
}

// fire runs a timer-driven consolidation. There is no waiting caller, so
// the outcome travels via events; the error is only worth a debug line here.
func (c *consolidator) fire() {
	if _, err := c.run(context.Background()); err != nil {
		c.log.Debug("auto_sync_failed", slog.String("error", err.Error()))
	}
}

func (c *consolidator) stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// syncToCopy merges every dirty body into the combined snapshot file in one
// all-or-nothing write, then clears exactly the ids processed in this run.
// A failure at any point leaves the dirty set untouched so the next attempt
// retries the same work.
func (s *Store) syncToCopy(ctx context.Context) (SyncResult, error) {
	s.mu.Lock()
	if err := s.requireLoadedLocked(); err != nil {
		s.mu.Unlock()
		return SyncResult{}, err
	}
	ids := s.dirty.IDs()
	s.mu.Unlock()

	s.events.emit(Event{Type: EventSyncStarted})

	res, err := s.mergeDirty(ctx, ids)
	if err != nil {
		s.log.Warn("sync_failed",
			slog.Int("dirty", len(ids)),
			slog.String("error", err.Error()))
		s.events.emit(Event{Type: EventSyncError, Error: err.Error()})
		return SyncResult{}, err
	}

	s.log.Info("sync_completed",
		slog.Int("synced", res.Synced),
		slog.Int("removed", res.Removed),
		slog.Int("remaining", res.Remaining))
	s.events.emit(Event{Type: EventSyncCompleted, Sync: &res})
	return res, nil
}

func (s *Store) mergeDirty(ctx context.Context, ids []string) (SyncResult, error) {
	if len(ids) == 0 {
		// Nothing dirty: the snapshot is already current and stays
		// untouched.
		s.mu.Lock()
		remaining := s.dirty.Len()
		s.mu.Unlock()
		return SyncResult{Remaining: remaining}, nil
	}
	if err := ctx.Err(); err != nil {
		return SyncResult{}, err
	}

	snapshot, err := readSnapshot(s.snapshotPath())
	if err != nil {
		return SyncResult{}, err
	}

	slot := make(map[string]int, len(snapshot))
	for i, raw := range snapshot {
		if id := snapshotEntryID(raw); id != "" {
			slot[id] = i
		}
	}

	var synced, removed int
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return SyncResult{}, err
		}

		s.mu.Lock()
		_, exists := s.byID[id]
		s.mu.Unlock()

		var body json.RawMessage
		if exists {
			// Straight from the record file: consolidation must not
			// disturb cache recency.
			body, err = readRecord(s.recordsDir(), id)
			if err != nil {
				return SyncResult{}, err
			}
			if body == nil {
				// Listed but its record is gone. Treat as deleted.
				exists = false
			}
		}

		if exists {
			if i, ok := slot[id]; ok {
				snapshot[i] = body
			} else {
				slot[id] = len(snapshot)
				snapshot = append(snapshot, body)
			}
			synced++
			continue
		}

		if i, ok := slot[id]; ok {
			snapshot[i] = nil
			delete(slot, id)
			removed++
		}
	}

	merged := make([]json.RawMessage, 0, len(snapshot))
	for _, raw := range snapshot {
		if raw != nil {
			merged = append(merged, raw)
		}
	}

	data, err := json.Marshal(merged)
	if err != nil {
		return SyncResult{}, fmt.Errorf("vault: marshal snapshot: %w", err)
	}
	if err := writeFileAtomic(s.snapshotPath(), data, 0o644); err != nil {
		return SyncResult{}, fmt.Errorf("vault: write snapshot: %w", err)
	}

	// Clear only the ids processed in this run; mutations that raced the
	// merge stay dirty for the next one.
	s.mu.Lock()
	for _, id := range ids {
		s.dirty.Remove(id)
		if meta, ok := s.byID[id]; ok {
			meta.Dirty = false
		}
	}
	err = s.persistDirtyLocked()
	if err == nil {
		err = s.persistIndexLocked()
	}
	remaining := s.dirty.Len()
	s.mu.Unlock()
	if err != nil {
		return SyncResult{}, err
	}

	return SyncResult{Synced: synced, Removed: removed, Remaining: remaining}, nil
}

// readSnapshot loads the combined snapshot array. Absence is an empty
// snapshot; a file that exists but does not parse is ErrSnapshotCorrupt, and
// consolidation refuses to guess and overwrite previously merged data.
func readSnapshot(path string) ([]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("vault: read snapshot: %w", err)
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}
	return entries, nil
}

func snapshotEntryID(raw json.RawMessage) string {
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}
	return probe.ID
}
