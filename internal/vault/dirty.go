package vault

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// dirtySet holds the ids modified since the last successful consolidation.
// It is persisted separately from the index so an interrupted merge is
// retried after restart instead of lost. Deleted ids stay in the set until
// consolidation drops their snapshot slot.
//
// Not self-locking: the owning Store serializes access.
type dirtySet struct {
	ids map[string]struct{}
}

func newDirtySet() *dirtySet {
	return &dirtySet{ids: make(map[string]struct{})}
}

// loadDirtySet reads the persisted dirty-id list. A missing file is an
// empty set; an existing file that cannot be parsed is an error.
func loadDirtySet(path string) (*dirtySet, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return newDirtySet(), nil
	}
	if err != nil {
		return nil, err
	}

	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	set := newDirtySet()
	for _, id := range ids {
		if id != "" {
			set.ids[id] = struct{}{}
		}
	}
	return set, nil
}

// persist writes the set as a sorted JSON array.
func (d *dirtySet) persist(path string) error {
	data, err := json.MarshalIndent(d.IDs(), "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data, 0o644)
}

func (d *dirtySet) Add(id string) {
	d.ids[id] = struct{}{}
}

func (d *dirtySet) Remove(id string) {
	delete(d.ids, id)
}

func (d *dirtySet) Contains(id string) bool {
	_, ok := d.ids[id]
	return ok
}

func (d *dirtySet) Len() int {
	return len(d.ids)
}

// IDs returns the member ids sorted for deterministic persistence and
// processing order.
func (d *dirtySet) IDs() []string {
	ids := make([]string, 0, len(d.ids))
	for id := range d.ids {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
