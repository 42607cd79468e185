package vault

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// writeExport marshals bodies into a combined export file in a temp dir.
func writeExport(t *testing.T, bodies ...json.RawMessage) string {
	t.Helper()
	entries := make([]json.RawMessage, len(bodies))
	copy(entries, bodies)
	data, err := json.Marshal(entries)
	if err != nil {
		t.Fatalf("marshal export: %v", err)
	}
	path := filepath.Join(t.TempDir(), "conversations.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write export: %v", err)
	}
	return path
}

func TestSplitExportImportsAll(t *testing.T) {
	s := newTestStore(t, Options{})
	path := writeExport(t,
		testBody(t, "exp-1", "First", "hello"),
		testBody(t, "exp-2", "Second", "hi", "hello back"),
	)

	res, err := SplitExport(context.Background(), s, path, ImportOptions{})
	if err != nil {
		t.Fatalf("SplitExport failed: %v", err)
	}
	if res.Total != 2 || res.Imported != 2 || res.Skipped != 0 {
		t.Errorf("result = %+v, want total 2 imported 2 skipped 0", res)
	}

	// Metadata is merged into the index
	meta, ok, err := s.GetMeta("exp-2")
	if err != nil || !ok {
		t.Fatalf("GetMeta(exp-2) = %v, %v, %v", meta, ok, err)
	}
	if meta.Title != "Second" || meta.MessageCount != 2 {
		t.Errorf("meta = %+v, want Second with 2 messages", meta)
	}
	if meta.Dirty {
		t.Error("imported conversation should not be dirty")
	}

	// Record files exist and load
	body, _, err := s.Load(context.Background(), "exp-1", false)
	if err != nil {
		t.Fatalf("Load(exp-1) failed: %v", err)
	}
	if bodyTitle(body) != "First" {
		t.Errorf("loaded body title = %q", bodyTitle(body))
	}

	// Bodies land in the combined snapshot without a separate sync
	snap := readSnapshotFile(t, s)
	if _, ok := snap["exp-1"]; !ok {
		t.Error("exp-1 missing from snapshot after import")
	}
	if _, ok := snap["exp-2"]; !ok {
		t.Error("exp-2 missing from snapshot after import")
	}
}

func TestSplitExportSkipsUnusableEntries(t *testing.T) {
	s := newTestStore(t, Options{})
	path := writeExport(t,
		testBody(t, "good-1", "Keeper", "hello"),
		json.RawMessage(`{"title": "no id at all"}`),
		json.RawMessage(`{"id": "../escape", "title": "bad id"}`),
	)

	res, err := SplitExport(context.Background(), s, path, ImportOptions{})
	if err != nil {
		t.Fatalf("SplitExport failed: %v", err)
	}
	if res.Total != 3 || res.Imported != 1 || res.Skipped != 2 {
		t.Errorf("result = %+v, want total 3 imported 1 skipped 2", res)
	}

	list, err := s.List(ListOptions{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list.Items) != 1 || list.Items[0].ID != "good-1" {
		t.Errorf("index holds %v, want only good-1", list.Items)
	}
}

func TestSplitExportOverwritesExisting(t *testing.T) {
	s := newTestStore(t, Options{})
	if _, err := s.Save(context.Background(), "dup-1", testBody(t, "dup-1", "Local edit", "local"), ""); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	path := writeExport(t, testBody(t, "dup-1", "Export copy", "a", "b", "c"))
	if _, err := SplitExport(context.Background(), s, path, ImportOptions{}); err != nil {
		t.Fatalf("SplitExport failed: %v", err)
	}

	meta, _, err := s.GetMeta("dup-1")
	if err != nil {
		t.Fatalf("GetMeta failed: %v", err)
	}
	if meta.Title != "Export copy" || meta.MessageCount != 3 {
		t.Errorf("meta = %+v, want export copy with 3 messages", meta)
	}
	if meta.Dirty {
		t.Error("import should clear the dirty flag; the export is authoritative")
	}
}

func TestSplitExportDefaultsMissingFields(t *testing.T) {
	s := newTestStore(t, Options{})
	path := writeExport(t, json.RawMessage(`{"id": "bare-1"}`))

	if _, err := SplitExport(context.Background(), s, path, ImportOptions{}); err != nil {
		t.Fatalf("SplitExport failed: %v", err)
	}

	meta, ok, err := s.GetMeta("bare-1")
	if err != nil || !ok {
		t.Fatalf("GetMeta(bare-1) = %v, %v, %v", meta, ok, err)
	}
	if meta.Title != DefaultTitle {
		t.Errorf("Title = %q, want %q", meta.Title, DefaultTitle)
	}
	if meta.CreateTime == nil || meta.UpdateTime == nil {
		t.Error("missing timestamps should be filled with the import time")
	}
}

func TestSplitExportRejectsNonArray(t *testing.T) {
	s := newTestStore(t, Options{})
	path := filepath.Join(t.TempDir(), "conversations.json")
	if err := os.WriteFile(path, []byte(`{"not": "an array"}`), 0o644); err != nil {
		t.Fatalf("write export: %v", err)
	}

	if _, err := SplitExport(context.Background(), s, path, ImportOptions{}); err == nil {
		t.Error("expected error for non-array export")
	}
}

func TestSplitExportMissingFile(t *testing.T) {
	s := newTestStore(t, Options{})
	if _, err := SplitExport(context.Background(), s, filepath.Join(t.TempDir(), "absent.json"), ImportOptions{}); err == nil {
		t.Error("expected error for missing export file")
	}
}

func TestSplitExportWithWorkersAndRate(t *testing.T) {
	s := newTestStore(t, Options{})
	bodies := make([]json.RawMessage, 10)
	for i := range bodies {
		bodies[i] = testBody(t, "bulk-"+string(rune('a'+i)), "Bulk", "text")
	}
	path := writeExport(t, bodies...)

	res, err := SplitExport(context.Background(), s, path, ImportOptions{Workers: 3, RatePerSec: 1000})
	if err != nil {
		t.Fatalf("SplitExport failed: %v", err)
	}
	if res.Imported != 10 {
		t.Errorf("imported %d, want 10", res.Imported)
	}
}
