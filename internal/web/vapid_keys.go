package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/convault/convault/internal/vault"
)

const vapidKeysFileName = "web_push_vapid_keys.json"

// vapidKeyFile is the persisted VAPID keypair for one profile. Rotating the
// keys would invalidate every subscriber, so once generated they are reused
// for the life of the profile.
type vapidKeyFile struct {
	PublicKey  string    `json:"publicKey"`
	PrivateKey string    `json:"privateKey"`
	Subject    string    `json:"subject,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// EnsurePushVAPIDKeys returns the profile's VAPID keypair, generating and
// persisting a fresh one on first use. A changed subject is written back to
// the existing file; the keys themselves never rotate here.
func EnsurePushVAPIDKeys(profile, subject string) (publicKey, privateKey string, generated bool, err error) {
	profileDir, err := vault.GetProfileDir(vault.GetEffectiveProfile(profile))
	if err != nil {
		return "", "", false, fmt.Errorf("resolve profile dir: %w", err)
	}
	path := filepath.Join(profileDir, vapidKeysFileName)
	subject = strings.TrimSpace(subject)

	keys, err := readVAPIDKeys(path)
	switch {
	case err == nil:
		if subject != "" && keys.Subject != subject {
			keys.Subject = subject
			keys.UpdatedAt = time.Now().UTC()
			if err := writeVAPIDKeys(path, keys); err != nil {
				return "", "", false, err
			}
		}
		return keys.PublicKey, keys.PrivateKey, false, nil
	case !errors.Is(err, os.ErrNotExist):
		return "", "", false, err
	}

	private, public, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		return "", "", false, fmt.Errorf("generate vapid keypair: %w", err)
	}

	now := time.Now().UTC()
	keys = vapidKeyFile{
		PublicKey:  strings.TrimSpace(public),
		PrivateKey: strings.TrimSpace(private),
		Subject:    subject,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := writeVAPIDKeys(path, keys); err != nil {
		return "", "", false, err
	}
	return keys.PublicKey, keys.PrivateKey, true, nil
}

func readVAPIDKeys(path string) (vapidKeyFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return vapidKeyFile{}, os.ErrNotExist
		}
		return vapidKeyFile{}, fmt.Errorf("read vapid keys file: %w", err)
	}

	var keys vapidKeyFile
	if err := json.Unmarshal(raw, &keys); err != nil {
		return vapidKeyFile{}, fmt.Errorf("parse vapid keys file: %w", err)
	}
	keys.PublicKey = strings.TrimSpace(keys.PublicKey)
	keys.PrivateKey = strings.TrimSpace(keys.PrivateKey)
	keys.Subject = strings.TrimSpace(keys.Subject)
	if keys.PublicKey == "" || keys.PrivateKey == "" {
		return vapidKeyFile{}, fmt.Errorf("vapid keys file is missing required keys")
	}
	return keys, nil
}

func writeVAPIDKeys(path string, keys vapidKeyFile) error {
	if keys.PublicKey == "" || keys.PrivateKey == "" {
		return fmt.Errorf("vapid keys payload is missing key values")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("mkdir vapid dir: %w", err)
	}
	raw, err := json.MarshalIndent(keys, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal vapid keys: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write temp vapid keys: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename vapid keys file: %w", err)
	}
	return nil
}
