// Package vault implements the local conversation store: a metadata index
// over per-conversation record files, fronted by a bounded LRU cache, with
// persisted dirty tracking and debounced consolidation into a single
// combined snapshot file.
//
// A Store is an explicitly constructed object owned by its caller; there is
// no package-level default instance. All methods are safe for concurrent use
// by multiple goroutines. Overlapping saves to the same id are not
// serialized by the store; callers that may issue them must serialize
// externally.
package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/convault/convault/internal/logging"
)

// On-disk layout under the store root.
const (
	indexFileName    = "index.json"
	recordsDirName   = "conversations"
	syncDirName      = "sync"
	dirtyFileName    = "dirty.json"
	snapshotFileName = "conversations.json"
)

// DefaultSyncDebounce is the quiet period after the last eligible mutation
// before an automatic consolidation run.
const DefaultSyncDebounce = 10 * time.Second

// Options configures a Store. The zero value is usable: default cache
// capacity, auto-sync off, no index watching.
type Options struct {
	// CacheCapacity bounds the in-memory body cache. Values <= 0 fall back
	// to DefaultCacheCapacity.
	CacheCapacity int

	// AutoSync schedules a debounced consolidation after every save,
	// title update, and delete.
	AutoSync bool

	// SyncDebounce overrides DefaultSyncDebounce when > 0.
	SyncDebounce time.Duration

	// WatchIndex reloads the index when another process rewrites it.
	WatchIndex bool
}

// Store is the local conversation store rooted at one directory.
type Store struct {
	root string
	opts Options
	log  *slog.Logger

	mu     sync.Mutex
	loaded bool
	closed bool
	doc    *IndexDocument
	byID   map[string]*Meta
	cache  *bodyCache
	dirty  *dirtySet

	events  *eventBus
	syncer  *consolidator
	watcher *indexWatcher
}

// New creates a Store rooted at dir. The directory does not need to exist
// yet; LoadIndex initializes empty state on first run.
func New(dir string, opts Options) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("vault: store root is required")
	}
	root, err := expandTilde(dir)
	if err != nil {
		return nil, fmt.Errorf("vault: resolve root: %w", err)
	}

	cache, err := newBodyCache(opts.CacheCapacity)
	if err != nil {
		return nil, fmt.Errorf("vault: create cache: %w", err)
	}

	s := &Store{
		root:   root,
		opts:   opts,
		log:    logging.ForComponent(logging.CompVault),
		cache:  cache,
		dirty:  newDirtySet(),
		events: newEventBus(),
	}
	s.syncer = newConsolidator(s, opts.SyncDebounce)
	return s, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.root
}

func (s *Store) indexPath() string    { return filepath.Join(s.root, indexFileName) }
func (s *Store) recordsDir() string   { return filepath.Join(s.root, recordsDirName) }
func (s *Store) dirtyPath() string    { return filepath.Join(s.root, syncDirName, dirtyFileName) }
func (s *Store) snapshotPath() string { return filepath.Join(s.root, syncDirName, snapshotFileName) }

// LoadIndex reads the persisted index and dirty set into memory. A missing
// index file is first-run initialization, not an error; an existing file
// that cannot be read or parsed is. Must complete before any other
// operation; calling twice reloads from disk.
func (s *Store) LoadIndex(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStoreClosed
	}

	doc := &IndexDocument{Version: indexVersion}
	data, err := os.ReadFile(s.indexPath())
	switch {
	case os.IsNotExist(err):
		// First run: empty index.
	case err != nil:
		s.mu.Unlock()
		return fmt.Errorf("vault: read index: %w", err)
	default:
		if err := json.Unmarshal(data, doc); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("vault: parse index: %w", err)
		}
	}

	dirty, err := loadDirtySet(s.dirtyPath())
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("vault: load dirty set: %w", err)
	}

	byID := make(map[string]*Meta, len(doc.Conversations))
	for _, meta := range doc.Conversations {
		byID[meta.ID] = meta
		meta.Dirty = dirty.Contains(meta.ID)
	}
	if doc.TotalConversations != len(doc.Conversations) {
		s.log.Warn("index_total_mismatch",
			slog.Int("recorded", doc.TotalConversations),
			slog.Int("actual", len(doc.Conversations)))
		doc.TotalConversations = len(doc.Conversations)
	}

	s.doc = doc
	s.byID = byID
	s.dirty = dirty
	s.loaded = true
	s.cache.Purge()
	total := doc.TotalConversations

	if s.opts.WatchIndex && s.watcher == nil {
		watcher, err := newIndexWatcher(s)
		if err != nil {
			s.log.Warn("index_watch_disabled", slog.String("error", err.Error()))
		} else {
			s.watcher = watcher
		}
	}
	s.mu.Unlock()

	s.log.Info("index_loaded", slog.Int("conversations", total), slog.Int("dirty", dirty.Len()))
	s.events.emit(Event{Type: EventIndexLoaded, Conversations: total})
	return nil
}

// List filters, sorts, and paginates the metadata index. Pure in-memory:
// it never touches disk.
func (s *Store) List(opts ListOptions) (ListResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireLoadedLocked(); err != nil {
		return ListResult{}, err
	}
	return listMetas(s.doc.Conversations, opts), nil
}

// GetMeta returns the metadata entry for id.
func (s *Store) GetMeta(id string) (Meta, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireLoadedLocked(); err != nil {
		return Meta{}, false, err
	}
	meta, ok := s.byID[id]
	if !ok {
		return Meta{}, false, nil
	}
	return *meta, true, nil
}

// Load returns the conversation body for id. Cached bodies are returned
// directly (promoted to most-recently-used) unless forceReload is set, in
// which case the record file is re-read and the cache refreshed. A missing
// record yields (nil, false, nil): an expected absence, not an error.
func (s *Store) Load(ctx context.Context, id string, forceReload bool) (json.RawMessage, bool, error) {
	if err := validateConversationID(id); err != nil {
		return nil, false, err
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	if err := s.requireLoadedLocked(); err != nil {
		s.mu.Unlock()
		return nil, false, err
	}
	if !forceReload {
		if body, ok := s.cache.Get(id); ok {
			s.mu.Unlock()
			logging.Aggregate(logging.CompVault, "cache_hit")
			return cloneBody(body), true, nil
		}
	}
	logging.Aggregate(logging.CompVault, "cache_miss")

	body, err := readRecord(s.recordsDir(), id)
	if err != nil {
		s.mu.Unlock()
		return nil, false, err
	}
	if body == nil {
		// The record is gone; a stale cached body must not outlive it.
		s.cache.Remove(id)
		s.mu.Unlock()
		return nil, false, nil
	}
	s.cache.Add(id, body)
	s.mu.Unlock()

	return cloneBody(body), true, nil
}

// Save overwrites the record for id with body (always the whole document,
// never a partial patch), refreshes the cache, upserts the index entry,
// marks the id dirty, and schedules consolidation when auto-sync is on.
//
// The index title comes from titleOverride, else the body's own title, else
// DefaultTitle. create_time is fixed at first creation (from the body, else
// now); update_time follows the body or the current time on every save.
//
// Overlapping saves to the same id race; serialize them externally.
func (s *Store) Save(ctx context.Context, id string, body json.RawMessage, titleOverride string) (Meta, error) {
	if err := validateConversationID(id); err != nil {
		return Meta{}, err
	}
	if !json.Valid(body) {
		return Meta{}, fmt.Errorf("vault: body for %q is not valid JSON", id)
	}
	if err := ctx.Err(); err != nil {
		return Meta{}, err
	}

	stored := cloneBody(body)
	parsed, parseErr := ParseConversation(stored)
	if parseErr != nil {
		// Valid JSON that is not object-shaped: stored verbatim, derives
		// nothing.
		parsed = &Conversation{}
	}

	s.mu.Lock()
	if err := s.requireLoadedLocked(); err != nil {
		s.mu.Unlock()
		return Meta{}, err
	}

	if err := writeRecord(s.recordsDir(), id, stored); err != nil {
		s.mu.Unlock()
		return Meta{}, err
	}
	s.cache.Add(id, stored)

	now := nowEpoch()
	createTime, updateTime := parsed.CreateTime, parsed.UpdateTime
	if updateTime == nil {
		updateTime = &now
	}

	title := strings.TrimSpace(titleOverride)
	if title == "" {
		title = strings.TrimSpace(parsed.Title)
	}
	if title == "" {
		title = DefaultTitle
	}

	meta, existed := s.byID[id]
	if !existed {
		meta = &Meta{ID: id}
		if createTime == nil {
			createTime = &now
		}
		meta.CreateTime = createTime
		s.doc.Conversations = append(s.doc.Conversations, meta)
		s.byID[id] = meta
	} else if meta.CreateTime == nil && createTime != nil {
		meta.CreateTime = createTime
	}
	meta.Title = title
	meta.UpdateTime = updateTime
	meta.MessageCount = parsed.MessageCount()
	meta.Dirty = true

	s.dirty.Add(id)
	if err := s.persistDirtyLocked(); err != nil {
		s.mu.Unlock()
		return Meta{}, err
	}
	if err := s.persistIndexLocked(); err != nil {
		s.mu.Unlock()
		return Meta{}, err
	}
	saved := *meta
	s.mu.Unlock()

	s.scheduleAutoSync()
	s.log.Debug("conversation_saved",
		slog.String("id", id),
		slog.Int("messages", saved.MessageCount),
		slog.Bool("created", !existed))
	s.events.emit(Event{Type: EventConversationSaved, ConversationID: id, Title: saved.Title})
	return saved, nil
}

// UpdateTitle is the metadata-only fast path for renaming: it rewrites the
// index entry without touching the full body on the hot path. The cached and
// on-disk body titles are patched best-effort afterwards; a body patch
// failure is logged, never propagated.
func (s *Store) UpdateTitle(ctx context.Context, id, title string) error {
	if err := validateConversationID(id); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if err := s.requireLoadedLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	meta, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}

	now := nowEpoch()
	meta.Title = title
	meta.UpdateTime = &now
	meta.Dirty = true

	s.dirty.Add(id)
	if err := s.persistDirtyLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if err := s.persistIndexLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.patchBodyTitleLocked(id, title)
	s.mu.Unlock()

	s.scheduleAutoSync()
	s.events.emit(Event{Type: EventTitleUpdated, ConversationID: id, Title: title})
	return nil
}

// patchBodyTitleLocked rewrites the title inside the cached and persisted
// body. Best-effort: failures leave the metadata update intact.
func (s *Store) patchBodyTitleLocked(id, title string) {
	body, ok := s.cache.Get(id)
	if !ok {
		var err error
		body, err = readRecord(s.recordsDir(), id)
		if err != nil || body == nil {
			if err != nil {
				s.log.Warn("title_body_read_failed", slog.String("id", id), slog.String("error", err.Error()))
			}
			return
		}
	}

	patched, err := patchBodyTitle(body, title)
	if err != nil {
		s.log.Warn("title_body_patch_failed", slog.String("id", id), slog.String("error", err.Error()))
		return
	}
	if err := writeRecord(s.recordsDir(), id, patched); err != nil {
		s.log.Warn("title_body_write_failed", slog.String("id", id), slog.String("error", err.Error()))
		return
	}
	s.cache.Add(id, patched)
}

// Delete removes the conversation's metadata, cached body, and record file.
// A missing record is fine (idempotent); a missing id returns false with no
// writes at all. The id stays in the dirty set so the next consolidation
// drops its snapshot slot.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	if err := validateConversationID(id); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	if err := s.requireLoadedLocked(); err != nil {
		s.mu.Unlock()
		return false, err
	}
	if _, ok := s.byID[id]; !ok {
		s.mu.Unlock()
		return false, nil
	}

	delete(s.byID, id)
	conversations := s.doc.Conversations[:0]
	for _, meta := range s.doc.Conversations {
		if meta.ID != id {
			conversations = append(conversations, meta)
		}
	}
	s.doc.Conversations = conversations
	s.cache.Remove(id)

	if err := deleteRecord(s.recordsDir(), id); err != nil {
		s.mu.Unlock()
		return false, err
	}

	s.dirty.Add(id)
	if err := s.persistDirtyLocked(); err != nil {
		s.mu.Unlock()
		return false, err
	}
	if err := s.persistIndexLocked(); err != nil {
		s.mu.Unlock()
		return false, err
	}
	s.mu.Unlock()

	s.scheduleAutoSync()
	s.log.Debug("conversation_deleted", slog.String("id", id))
	s.events.emit(Event{Type: EventConversationDeleted, ConversationID: id})
	return true, nil
}

// Sync runs consolidation now, bypassing the debounce timer. Calls made
// while a run is in flight receive that run's outcome instead of starting a
// second pass.
func (s *Store) Sync(ctx context.Context) (SyncResult, error) {
	return s.syncer.run(ctx)
}

// DirtyCount returns the number of ids awaiting consolidation.
func (s *Store) DirtyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty.Len()
}

// CacheStats returns cumulative cache hit/miss counts.
func (s *Store) CacheStats() (hits, misses int64) {
	return s.cache.Stats()
}

// Subscribe registers a lifecycle-event listener. The returned channel is
// buffered and never blocks the store: events to a full channel are dropped.
// The unsubscribe func closes the channel.
func (s *Store) Subscribe() (<-chan Event, func()) {
	return s.events.subscribe()
}

// Close stops the watcher, the debounce timer, and event delivery, and drops
// the cache. Pending dirty work is NOT flushed: unsynced ids stay in the
// persisted dirty set for the next LoadIndex.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.loaded = false
	watcher := s.watcher
	s.watcher = nil
	s.cache.Purge()
	s.mu.Unlock()

	if watcher != nil {
		watcher.stop()
	}
	s.syncer.stop()
	s.events.close()
	return nil
}

func (s *Store) requireLoadedLocked() error {
	if s.closed {
		return ErrStoreClosed
	}
	if !s.loaded {
		return ErrIndexNotLoaded
	}
	return nil
}

// persistIndexLocked serializes the whole index document with a refreshed
// last_modified. Caller holds s.mu.
func (s *Store) persistIndexLocked() error {
	s.doc.TotalConversations = len(s.doc.Conversations)
	s.doc.LastModified = nowEpoch()
	if s.watcher != nil {
		s.watcher.markSelfWrite()
	}

	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("vault: marshal index: %w", err)
	}
	if err := writeFileAtomic(s.indexPath(), data, 0o644); err != nil {
		return fmt.Errorf("vault: write index: %w", err)
	}
	return nil
}

// persistDirtyLocked writes the dirty-id list. Caller holds s.mu.
func (s *Store) persistDirtyLocked() error {
	if err := s.dirty.persist(s.dirtyPath()); err != nil {
		return fmt.Errorf("vault: write dirty set: %w", err)
	}
	return nil
}

func (s *Store) scheduleAutoSync() {
	if !s.opts.AutoSync {
		return
	}
	s.syncer.schedule()
}

func cloneBody(body json.RawMessage) json.RawMessage {
	if body == nil {
		return nil
	}
	return append(json.RawMessage(nil), body...)
}

// nowEpoch returns the current time as epoch seconds, the unit the export
// format uses throughout.
func nowEpoch() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}
