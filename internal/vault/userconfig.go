package vault

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"

	dark "github.com/thiagokokada/dark-mode-go"
)

// UserConfigFileName is the TOML config file for user preferences
const UserConfigFileName = "config.toml"

// DefaultListenAddr is the web server bind address when [web].listen_addr
// is not configured. Loopback only: the token is the sole auth layer.
const DefaultListenAddr = "127.0.0.1:8417"

// UserConfig represents user-facing configuration in TOML format
type UserConfig struct {
	// Theme sets the color scheme: "dark" (default), "light", or "system"
	Theme string `toml:"theme"`

	// Storage tunes the conversation store
	Storage StorageSettings `toml:"storage"`

	// Sync controls automatic consolidation into the combined snapshot
	Sync SyncSettings `toml:"sync"`

	// Logs defines debug log management settings
	Logs LogSettings `toml:"logs"`

	// Web defines the local web server settings
	Web WebSettings `toml:"web"`

	// UI defines TUI display settings
	UI UISettings `toml:"ui"`

	// Import defines export-splitting and discovery settings
	Import ImportSettings `toml:"import"`

	// Profiles defines optional per-profile overrides.
	// Example:
	// [profiles.work.storage]
	// cache_capacity = 256
	Profiles map[string]ProfileSettings `toml:"profiles"`
}

// StorageSettings tunes the conversation store
type StorageSettings struct {
	// CacheCapacity is the number of conversation bodies kept in memory
	// Default: 64
	CacheCapacity int `toml:"cache_capacity"`

	// WatchIndex reloads the index when another process rewrites it
	// Default: false
	WatchIndex bool `toml:"watch_index"`
}

// SyncSettings controls automatic consolidation
type SyncSettings struct {
	// Auto consolidates automatically after saves, renames, and deletes
	// Default: true (pointer to distinguish "not set" from "explicitly false")
	Auto *bool `toml:"auto"`

	// DebounceMS is the quiet period in milliseconds before an automatic run
	// Default: 10000
	DebounceMS int `toml:"debounce_ms"`
}

// GetAuto returns whether auto-sync is enabled, defaulting to true
func (s SyncSettings) GetAuto() bool {
	if s.Auto == nil {
		return true
	}
	return *s.Auto
}

// LogSettings defines debug log management configuration
type LogSettings struct {
	// DebugLevel sets the minimum log level: "debug", "info", "warn", "error"
	// Default: "info"
	DebugLevel string `toml:"debug_level"`

	// DebugFormat sets the log format: "json" (default) or "text"
	DebugFormat string `toml:"debug_format"`

	// DebugMaxMB is the max size in MB for the log file before rotation
	// Default: 10
	DebugMaxMB int `toml:"debug_max_mb"`

	// DebugBackups is the number of rotated log files to keep
	// Default: 5
	DebugBackups int `toml:"debug_backups"`

	// DebugRetentionDays is the number of days to keep rotated logs
	// Default: 10
	DebugRetentionDays int `toml:"debug_retention_days"`

	// DebugCompress enables gzip compression for rotated logs
	// Default: true
	DebugCompress *bool `toml:"debug_compress"`

	// RingBufferMB is the in-memory ring buffer size in MB for crash dumps
	// Default: 10
	RingBufferMB int `toml:"ring_buffer_mb"`

	// PprofEnabled starts a pprof server on localhost:6060 in debug mode
	// Default: false
	PprofEnabled bool `toml:"pprof_enabled"`

	// AggregateIntervalS is the event aggregation flush interval in seconds
	// Default: 30
	AggregateIntervalS int `toml:"aggregate_interval_secs"`
}

// GetDebugCompress returns whether rotated logs are compressed, defaulting to true
func (l LogSettings) GetDebugCompress() bool {
	if l.DebugCompress == nil {
		return true
	}
	return *l.DebugCompress
}

// WebSettings defines the local web server configuration
type WebSettings struct {
	// ListenAddr is the bind address
	// Default: 127.0.0.1:8417
	ListenAddr string `toml:"listen_addr"`

	// ReadOnly rejects mutating API calls
	// Default: false
	ReadOnly bool `toml:"read_only"`

	// Token protects the API; empty disables auth (loopback only!)
	Token string `toml:"token"`

	// PushEnabled serves web push subscription endpoints
	// Default: true (pointer to distinguish "not set" from "explicitly false")
	PushEnabled *bool `toml:"push_enabled"`

	// NotifyOnSyncCompleted pushes a notification after successful
	// consolidation runs, not just failures
	// Default: false
	NotifyOnSyncCompleted bool `toml:"notify_on_sync_completed"`
}

// GetListenAddr returns the bind address, defaulting to DefaultListenAddr
func (w WebSettings) GetListenAddr() string {
	if w.ListenAddr == "" {
		return DefaultListenAddr
	}
	return w.ListenAddr
}

// GetPushEnabled returns whether web push is served, defaulting to true
func (w WebSettings) GetPushEnabled() bool {
	if w.PushEnabled == nil {
		return true
	}
	return *w.PushEnabled
}

// UISettings defines TUI display configuration
type UISettings struct {
	// ShowPreview shows the conversation preview pane
	// Default: true (pointer to distinguish "not set" from "explicitly false")
	ShowPreview *bool `toml:"show_preview"`

	// PreviewMessages is the max transcript entries rendered in the preview
	// Default: 50
	PreviewMessages int `toml:"preview_messages"`
}

// GetShowPreview returns whether the preview pane is shown, defaulting to true
func (u UISettings) GetShowPreview() bool {
	if u.ShowPreview == nil {
		return true
	}
	return *u.ShowPreview
}

// GetPreviewMessages returns the preview entry limit, defaulting to 50
func (u UISettings) GetPreviewMessages() int {
	if u.PreviewMessages <= 0 {
		return 50
	}
	return u.PreviewMessages
}

// ImportSettings defines export splitting and discovery configuration
type ImportSettings struct {
	// Workers is the number of concurrent record writers during import
	// Default: 4
	Workers int `toml:"workers"`

	// RatePerSec caps conversations imported per second (0 = unlimited)
	RatePerSec int `toml:"rate_per_sec"`

	// SearchDirs are directories scanned for export files
	// Default: ~/Downloads
	SearchDirs []string `toml:"search_dirs"`
}

// GetWorkers returns the import worker count, defaulting to 4
func (i ImportSettings) GetWorkers() int {
	if i.Workers <= 0 {
		return 4
	}
	return i.Workers
}

// GetSearchDirs returns the export search directories with the default applied
func (i ImportSettings) GetSearchDirs() []string {
	if len(i.SearchDirs) > 0 {
		return i.SearchDirs
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return []string{filepath.Join(home, "Downloads")}
}

// ProfileSettings defines per-profile configuration overrides.
type ProfileSettings struct {
	// Storage defines store overrides for a specific profile.
	Storage ProfileStorageSettings `toml:"storage"`
}

// ProfileStorageSettings defines profile-specific store overrides.
type ProfileStorageSettings struct {
	// CacheCapacity overrides [storage].cache_capacity for this profile only.
	CacheCapacity int `toml:"cache_capacity"`
}

// Cache for user config (loaded once per process)
var (
	userConfigCache   *UserConfig
	userConfigCacheMu sync.RWMutex
)

// GetUserConfigPath returns the path to the user config file
func GetUserConfigPath() (string, error) {
	dir, err := GetConvaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, UserConfigFileName), nil
}

// LoadUserConfig loads the user configuration from TOML file
// Returns cached config after first load
func LoadUserConfig() (*UserConfig, error) {
	userConfigCacheMu.RLock()
	if userConfigCache != nil {
		defer userConfigCacheMu.RUnlock()
		return userConfigCache, nil
	}
	userConfigCacheMu.RUnlock()

	userConfigCacheMu.Lock()
	defer userConfigCacheMu.Unlock()

	// Double-check after acquiring write lock
	if userConfigCache != nil {
		return userConfigCache, nil
	}

	configPath, err := GetUserConfigPath()
	if err != nil {
		userConfigCache = &defaultUserConfig
		return userConfigCache, nil
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		// Return default config (no file exists yet)
		userConfigCache = &defaultUserConfig
		return userConfigCache, nil
	}

	var config UserConfig
	if _, err := toml.DecodeFile(configPath, &config); err != nil {
		// Return error so caller can display it to user.
		// Still cache default to prevent repeated parse attempts.
		userConfigCache = &defaultUserConfig
		return userConfigCache, fmt.Errorf("config.toml parse error: %w", err)
	}

	if config.Profiles == nil {
		config.Profiles = make(map[string]ProfileSettings)
	}

	userConfigCache = &config
	return userConfigCache, nil
}

var defaultUserConfig UserConfig

// ReloadUserConfig forces a reload of the user config
func ReloadUserConfig() (*UserConfig, error) {
	userConfigCacheMu.Lock()
	userConfigCache = nil
	userConfigCacheMu.Unlock()
	return LoadUserConfig()
}

// SaveUserConfig writes the config to config.toml using the atomic write
// pattern, then clears the cache so the next LoadUserConfig() reads fresh
// values.
func SaveUserConfig(config *UserConfig) error {
	configPath, err := GetUserConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("# Convault Configuration\n")
	buf.WriteString("# Run 'convault config init' to regenerate a commented example\n\n")

	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := writeFileAtomic(configPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	ClearUserConfigCache()
	return nil
}

// ClearUserConfigCache clears the cached user config, allowing tests to reset
// state. This does NOT reload - the next LoadUserConfig() reads from disk.
func ClearUserConfigCache() {
	userConfigCacheMu.Lock()
	userConfigCache = nil
	userConfigCacheMu.Unlock()
}

// GetStorageSettings returns store settings
func (c *UserConfig) GetStorageSettings() StorageSettings {
	return c.Storage
}

// GetSyncSettings returns consolidation settings
func (c *UserConfig) GetSyncSettings() SyncSettings {
	return c.Sync
}

// GetLogSettings returns log settings with defaults applied
func (c *UserConfig) GetLogSettings() LogSettings {
	settings := c.Logs
	if settings.DebugLevel == "" {
		settings.DebugLevel = "info"
	}
	if settings.DebugFormat == "" {
		settings.DebugFormat = "json"
	}
	if settings.DebugMaxMB <= 0 {
		settings.DebugMaxMB = 10
	}
	if settings.DebugBackups <= 0 {
		settings.DebugBackups = 5
	}
	if settings.DebugRetentionDays <= 0 {
		settings.DebugRetentionDays = 10
	}
	if settings.RingBufferMB <= 0 {
		settings.RingBufferMB = 10
	}
	if settings.AggregateIntervalS <= 0 {
		settings.AggregateIntervalS = 30
	}
	return settings
}

// GetWebSettings returns web server settings
func (c *UserConfig) GetWebSettings() WebSettings {
	return c.Web
}

// GetUISettings returns TUI settings
func (c *UserConfig) GetUISettings() UISettings {
	return c.UI
}

// GetImportSettings returns import settings
func (c *UserConfig) GetImportSettings() ImportSettings {
	return c.Import
}

// GetTheme returns the configured theme, defaulting to "dark"
func GetTheme() string {
	config, err := LoadUserConfig()
	if err != nil || config == nil {
		return "dark"
	}
	switch config.Theme {
	case "dark", "light", "system":
		return config.Theme
	default:
		return "dark"
	}
}

// ResolveTheme resolves the configured theme to "dark" or "light".
// If theme is "system", detects the OS dark mode setting.
// Falls back to "dark" on detection failure.
func ResolveTheme() string {
	theme := GetTheme()
	if theme != "system" {
		return theme
	}
	isDark, err := dark.IsDarkMode()
	if err != nil {
		return "dark"
	}
	if isDark {
		return "dark"
	}
	return "light"
}

// exampleUserConfig is written by 'convault config init': every knob present,
// commented out, showing its default.
const exampleUserConfig = `# Convault Configuration
# All values below are defaults; uncomment a line to change it.

# theme = "dark"                  # dark, light, or system

[storage]
# cache_capacity = 64             # conversation bodies kept in memory
# watch_index = false             # reload when another process rewrites the index

[sync]
# auto = true                     # consolidate automatically after changes
# debounce_ms = 10000             # quiet period before an automatic run

[logs]
# debug_level = "info"            # debug, info, warn, error
# debug_format = "json"           # json or text
# debug_max_mb = 10               # rotate after this size
# debug_backups = 5               # rotated files to keep
# debug_retention_days = 10
# debug_compress = true
# ring_buffer_mb = 10             # in-memory buffer for crash dumps
# pprof_enabled = false
# aggregate_interval_secs = 30

[web]
# listen_addr = "127.0.0.1:8417"
# read_only = false
# token = ""                      # set to require Bearer auth
# push_enabled = true
# notify_on_sync_completed = false

[ui]
# show_preview = true
# preview_messages = 50

[import]
# workers = 4                     # concurrent record writers
# rate_per_sec = 0                # 0 = unlimited
# search_dirs = ["~/Downloads"]

# Per-profile overrides:
# [profiles.work.storage]
# cache_capacity = 256
`

// CreateExampleConfig writes a commented example config.toml.
// Refuses to overwrite an existing file.
func CreateExampleConfig() (string, error) {
	configPath, err := GetUserConfigPath()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(configPath); err == nil {
		return configPath, fmt.Errorf("%s already exists", configPath)
	}
	if err := writeFileAtomic(configPath, []byte(exampleUserConfig), 0o600); err != nil {
		return "", fmt.Errorf("failed to write example config: %w", err)
	}
	return configPath, nil
}
