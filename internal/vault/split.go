package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/convault/convault/internal/logging"
)

// ImportOptions configures SplitExport.
type ImportOptions struct {
	// Workers is the number of concurrent record writers (default 4).
	Workers int

	// RatePerSec caps conversations written per second (0 = unlimited).
	RatePerSec int
}

// ImportResult reports one export split.
type ImportResult struct {
	Total    int `json:"total"`
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`

	Elapsed time.Duration `json:"-"`
}

// SplitExport reads a combined export file (a JSON array of conversation
// objects), writes one record file per conversation, merges their metadata
// into the index, and overlays the imported bodies onto the combined snapshot
// so a fresh import needs no follow-up consolidation.
//
// Entries without a usable id are skipped and counted; a record write failure
// aborts the whole import. Conversations already in the store are overwritten:
// the export is authoritative.
func SplitExport(ctx context.Context, s *Store, path string, opts ImportOptions) (ImportResult, error) {
	start := time.Now()
	log := logging.ForComponent(logging.CompImport).With(
		slog.String("run_id", uuid.NewString()[:8]))

	s.mu.Lock()
	if err := s.requireLoadedLocked(); err != nil {
		s.mu.Unlock()
		return ImportResult{}, err
	}
	s.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return ImportResult{}, fmt.Errorf("vault: read export: %w", err)
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return ImportResult{}, fmt.Errorf("vault: export %s is not a JSON array of conversations: %v",
			filepath.Base(path), err)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}
	var limiter *rate.Limiter
	if opts.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), workers)
	}

	type importedEntry struct {
		meta *Meta
		body json.RawMessage
	}
	results := make([]*importedEntry, len(entries))
	now := nowEpoch()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, raw := range entries {
		g.Go(func() error {
			if limiter != nil {
				if err := limiter.Wait(gctx); err != nil {
					return err
				}
			}

			parsed, err := ParseConversation(raw)
			if err != nil || parsed.ID == "" || validateConversationID(parsed.ID) != nil {
				logging.Aggregate(logging.CompImport, "entry_skipped")
				return nil
			}

			if err := writeRecord(s.recordsDir(), parsed.ID, raw); err != nil {
				return err
			}

			title := strings.TrimSpace(parsed.Title)
			if title == "" {
				title = DefaultTitle
			}
			createTime, updateTime := parsed.CreateTime, parsed.UpdateTime
			if createTime == nil {
				createTime = &now
			}
			if updateTime == nil {
				updateTime = &now
			}

			results[i] = &importedEntry{
				meta: &Meta{
					ID:           parsed.ID,
					Title:        title,
					CreateTime:   createTime,
					UpdateTime:   updateTime,
					MessageCount: parsed.MessageCount(),
				},
				body: raw,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ImportResult{}, fmt.Errorf("vault: split export: %w", err)
	}

	// Overlay onto any existing snapshot so conversations absent from this
	// export keep their previously merged copies. A snapshot that no longer
	// parses is replaced outright; the import is authoritative.
	snapshot, err := readSnapshot(s.snapshotPath())
	if err != nil {
		log.Warn("import_snapshot_reset", slog.String("error", err.Error()))
		snapshot = nil
	}
	slot := make(map[string]int, len(snapshot))
	for i, raw := range snapshot {
		if id := snapshotEntryID(raw); id != "" {
			slot[id] = i
		}
	}

	res := ImportResult{Total: len(entries)}

	s.mu.Lock()
	if err := s.requireLoadedLocked(); err != nil {
		s.mu.Unlock()
		return ImportResult{}, err
	}
	for _, entry := range results {
		if entry == nil {
			res.Skipped++
			continue
		}
		res.Imported++

		id := entry.meta.ID
		if existing, ok := s.byID[id]; ok {
			*existing = *entry.meta
		} else {
			s.doc.Conversations = append(s.doc.Conversations, entry.meta)
			s.byID[id] = entry.meta
		}
		s.cache.Remove(id)
		s.dirty.Remove(id)

		if i, ok := slot[id]; ok {
			snapshot[i] = entry.body
		} else {
			slot[id] = len(snapshot)
			snapshot = append(snapshot, entry.body)
		}
	}

	if snapshot == nil {
		snapshot = []json.RawMessage{}
	}
	merged, err := json.Marshal(snapshot)
	if err != nil {
		s.mu.Unlock()
		return ImportResult{}, fmt.Errorf("vault: marshal snapshot: %w", err)
	}
	if err := writeFileAtomic(s.snapshotPath(), merged, 0o644); err != nil {
		s.mu.Unlock()
		return ImportResult{}, fmt.Errorf("vault: write snapshot: %w", err)
	}
	if err := s.persistDirtyLocked(); err != nil {
		s.mu.Unlock()
		return ImportResult{}, err
	}
	if err := s.persistIndexLocked(); err != nil {
		s.mu.Unlock()
		return ImportResult{}, err
	}
	total := s.doc.TotalConversations
	s.mu.Unlock()

	res.Elapsed = time.Since(start)
	log.Info("export_split",
		slog.Int("total", res.Total),
		slog.Int("imported", res.Imported),
		slog.Int("skipped", res.Skipped),
		slog.Duration("elapsed", res.Elapsed))
	s.events.emit(Event{Type: EventIndexLoaded, Conversations: total})
	return res, nil
}
