package vault

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sahilm/fuzzy"
)

// ExportFile is a combined export located on disk, ready to split.
type ExportFile struct {
	Name    string    // Display name (date prefix stripped)
	Path    string    // Full path to the export file
	Date    time.Time // Parsed date from the name (if any)
	HasDate bool      // Whether the name carried a date
	Size    int64     // File size in bytes
	ModTime time.Time // Last modification time
}

// DiscoverExports scans the given directories for export files: JSON files
// named after conversations, plus extracted export directories containing a
// conversations.json. Sorted by modification time (most recent first).
func DiscoverExports(dirs []string) ([]ExportFile, error) {
	var exports []ExportFile

	for _, dir := range dirs {
		expanded, err := expandTilde(dir)
		if err != nil {
			continue
		}
		entries, err := os.ReadDir(expanded)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}

		for _, entry := range entries {
			name := entry.Name()

			if entry.IsDir() {
				// Extracted export: a directory holding conversations.json.
				inner := filepath.Join(expanded, name, "conversations.json")
				info, err := os.Stat(inner)
				if err != nil {
					continue
				}
				exp := ExportFile{Path: inner, Size: info.Size(), ModTime: info.ModTime()}
				exp.Name, exp.Date, exp.HasDate = splitDatedName(name)
				exports = append(exports, exp)
				continue
			}

			if !strings.HasSuffix(name, ".json") || !strings.Contains(strings.ToLower(name), "conversations") {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			exp := ExportFile{Path: filepath.Join(expanded, name), Size: info.Size(), ModTime: info.ModTime()}
			exp.Name, exp.Date, exp.HasDate = splitDatedName(strings.TrimSuffix(name, ".json"))
			exports = append(exports, exp)
		}
	}

	sort.Slice(exports, func(i, j int) bool {
		return exports[i].ModTime.After(exports[j].ModTime)
	})
	return exports, nil
}

// splitDatedName extracts a YYYY-MM-DD date from the front or back of a name
// and strips it from the display form.
func splitDatedName(name string) (string, time.Time, bool) {
	// Prefix form: 2024-01-15-something
	if len(name) >= 11 && name[4] == '-' && name[7] == '-' && name[10] == '-' {
		if t, err := time.Parse("2006-01-02", name[:10]); err == nil {
			return name[11:], t, true
		}
	}
	// Suffix form: something-2024-01-15
	if len(name) >= 11 && name[len(name)-11] == '-' {
		if t, err := time.Parse("2006-01-02", name[len(name)-10:]); err == nil {
			return name[:len(name)-11], t, true
		}
	}
	return name, time.Time{}, false
}

// fuzzySource implements fuzzy.Source for export files
type fuzzySource struct {
	exports []ExportFile
}

func (s fuzzySource) String(i int) string {
	return s.exports[i].Name
}

func (s fuzzySource) Len() int {
	return len(s.exports)
}

// RankExports returns exports matching the query, sorted by relevance.
// An empty query returns the input unchanged.
func RankExports(exports []ExportFile, query string) []ExportFile {
	if query == "" {
		return exports
	}

	source := fuzzySource{exports: exports}
	matches := fuzzy.FindFrom(query, source)

	results := make([]ExportFile, 0, len(matches))
	for _, match := range matches {
		results = append(results, exports[match.Index])
	}
	return results
}
