package vault

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

const maxConversationIDLen = 200

// Record filenames derive directly from the conversation id, so the id must
// never be able to name anything outside the records directory.
var conversationIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

func validateConversationID(id string) error {
	if id == "" || len(id) > maxConversationIDLen || !conversationIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

func recordPath(dir, id string) string {
	return filepath.Join(dir, id+".json")
}

// readRecord returns the raw body for id, or (nil, nil) when no record
// exists. An unreadable or non-JSON record is an error: the file is there
// but cannot be served.
func readRecord(dir, id string) (json.RawMessage, error) {
	data, err := os.ReadFile(recordPath(dir, id))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("vault: read record %s: %w", id, err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("vault: record %s is not valid JSON", id)
	}
	return data, nil
}

// writeRecord overwrites the record for id with body as one atomic write.
func writeRecord(dir, id string, body json.RawMessage) error {
	if err := writeFileAtomic(recordPath(dir, id), body, 0o644); err != nil {
		return fmt.Errorf("vault: write record %s: %w", id, err)
	}
	return nil
}

// deleteRecord removes the record for id. Missing records are fine.
func deleteRecord(dir, id string) error {
	err := os.Remove(recordPath(dir, id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("vault: delete record %s: %w", id, err)
	}
	return nil
}
