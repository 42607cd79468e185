package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const (
	// DefaultProfile is the profile used when nothing selects one.
	DefaultProfile = "default"

	// ProfilesDirName is the directory containing all profiles.
	ProfilesDirName = "profiles"

	// ConfigFileName is the global config file name.
	ConfigFileName = "config.json"
)

// Config is the small global configuration document at
// ~/.convault/config.json. Per-profile settings live in the TOML user config
// instead; this file only records which profile is the default.
type Config struct {
	DefaultProfile string `json:"default_profile"`
	LastUsed       string `json:"last_used,omitempty"`
	Version        int    `json:"version"`
}

// GetConvaultDir returns the base convault directory (~/.convault).
func GetConvaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".convault"), nil
}

// GetConfigPath returns the path to the global config file.
func GetConfigPath() (string, error) {
	return convaultPath(ConfigFileName)
}

// GetProfilesDir returns the path to the profiles directory.
func GetProfilesDir() (string, error) {
	return convaultPath(ProfilesDirName)
}

func convaultPath(name string) (string, error) {
	dir, err := GetConvaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// GetProfileDir returns the path to a profile's directory. Path separators
// and dot names are rejected rather than resolved.
func GetProfileDir(profile string) (string, error) {
	if profile == "" {
		profile = DefaultProfile
	}
	profile = filepath.Base(profile)
	if profile == "." || profile == ".." {
		return "", fmt.Errorf("invalid profile name: %s", profile)
	}

	profilesDir, err := GetProfilesDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(profilesDir, profile), nil
}

// LoadConfig reads the global configuration. A missing file yields the
// defaults, not an error.
func LoadConfig() (*Config, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Config{DefaultProfile: DefaultProfile, Version: 1}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if config.DefaultProfile == "" {
		config.DefaultProfile = DefaultProfile
	}
	return &config, nil
}

// SaveConfig writes the global configuration atomically.
func SaveConfig(config *Config) error {
	path, err := GetConfigPath()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := writeFileAtomic(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ListProfiles returns all profile names, sorted. A directory counts as a
// profile once it has an index file; stray directories are ignored.
func ListProfiles() ([]string, error) {
	profilesDir, err := GetProfilesDir()
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(profilesDir)
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read profiles directory: %w", err)
	}

	var profiles []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if hasIndexFile(filepath.Join(profilesDir, entry.Name())) {
			profiles = append(profiles, entry.Name())
		}
	}
	sort.Strings(profiles)
	return profiles, nil
}

// ProfileExists checks whether a profile's store has been initialized.
func ProfileExists(profile string) (bool, error) {
	profileDir, err := GetProfileDir(profile)
	if err != nil {
		return false, err
	}
	return hasIndexFile(profileDir), nil
}

func hasIndexFile(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, indexFileName))
	return err == nil
}

// CreateProfile creates a new empty profile with a seeded index so it is
// listable immediately.
func CreateProfile(profile string) error {
	if profile == "" {
		return fmt.Errorf("profile name cannot be empty")
	}

	exists, err := ProfileExists(profile)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("profile '%s' already exists", profile)
	}

	profileDir, err := GetProfileDir(profile)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(profileDir, 0o700); err != nil {
		return fmt.Errorf("failed to create profile directory: %w", err)
	}
	if err := initEmptyIndex(profileDir); err != nil {
		return fmt.Errorf("failed to initialize profile store: %w", err)
	}
	return nil
}

// initEmptyIndex writes a fresh index document to dir.
func initEmptyIndex(dir string) error {
	doc := &IndexDocument{
		Version:       indexVersion,
		LastModified:  nowEpoch(),
		Conversations: []*Meta{},
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(dir, indexFileName), data, 0o644)
}

// DeleteProfile deletes a profile and all its data. The last remaining
// default profile cannot be deleted; a deleted default is reset in the
// global config.
func DeleteProfile(profile string) error {
	exists, err := ProfileExists(profile)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("profile '%s' does not exist", profile)
	}

	if profile == DefaultProfile {
		profiles, err := ListProfiles()
		if err != nil {
			return err
		}
		if len(profiles) <= 1 {
			return fmt.Errorf("cannot delete the only remaining profile")
		}
	}

	profileDir, err := GetProfileDir(profile)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(profileDir); err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}

	config, err := LoadConfig()
	if err != nil {
		return err
	}
	if config.DefaultProfile == profile {
		config.DefaultProfile = DefaultProfile
		if err := SaveConfig(config); err != nil {
			return fmt.Errorf("profile deleted but failed to update config: %w", err)
		}
	}
	return nil
}

// SetDefaultProfile records profile as the default in the global config.
func SetDefaultProfile(profile string) error {
	exists, err := ProfileExists(profile)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("profile '%s' does not exist", profile)
	}

	config, err := LoadConfig()
	if err != nil {
		return err
	}
	config.DefaultProfile = profile
	return SaveConfig(config)
}

// GetEffectiveProfile resolves the profile to use: the explicit -p value,
// then CONVAULT_PROFILE, then the configured default, then "default".
func GetEffectiveProfile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv("CONVAULT_PROFILE"); env != "" {
		return env
	}
	if config, err := LoadConfig(); err == nil && config.DefaultProfile != "" {
		return config.DefaultProfile
	}
	return DefaultProfile
}

// ProfileOptions builds store Options for a profile from user configuration:
// the [storage] and [sync] sections, plus any per-profile overrides.
func ProfileOptions(profile string) Options {
	opts := Options{AutoSync: true}

	cfg, err := LoadUserConfig()
	if err != nil || cfg == nil {
		return opts
	}

	storage := cfg.GetStorageSettings()
	opts.CacheCapacity = storage.CacheCapacity
	opts.WatchIndex = storage.WatchIndex

	syncCfg := cfg.GetSyncSettings()
	opts.AutoSync = syncCfg.GetAuto()
	if syncCfg.DebounceMS > 0 {
		opts.SyncDebounce = time.Duration(syncCfg.DebounceMS) * time.Millisecond
	}

	if override, ok := cfg.Profiles[profile]; ok {
		if override.Storage.CacheCapacity > 0 {
			opts.CacheCapacity = override.Storage.CacheCapacity
		}
	}

	return opts
}

// OpenProfileStore resolves a profile's directory, applies configured
// options, and loads the index. The caller owns the returned store and must
// Close it.
func OpenProfileStore(ctx context.Context, profile string) (*Store, error) {
	dir, err := GetProfileDir(profile)
	if err != nil {
		return nil, err
	}

	s, err := New(dir, ProfileOptions(profile))
	if err != nil {
		return nil, err
	}
	if err := s.LoadIndex(ctx); err != nil {
		return nil, err
	}
	return s, nil
}
