package logging

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Component constants for structured logging.
const (
	CompVault  = "vault"
	CompSync   = "sync"
	CompWatch  = "watch"
	CompWeb    = "web"
	CompHTTP   = "http"
	CompUI     = "ui"
	CompCLI    = "cli"
	CompMemory = "memory"
	CompImport = "import"
)

// logFileName is the rolling log file inside LogDir.
const logFileName = "convault.log"

// Config holds logging configuration. Zero values fall back to the defaults
// noted per field.
type Config struct {
	// LogDir is where the rolling log file lives (typically ~/.convault).
	// Empty with Debug off discards all output.
	LogDir string

	// Level is the minimum level to record: "debug", "info", "warn",
	// "error". Anything else means info.
	Level string

	// Format selects "text" output; anything else emits JSON.
	Format string

	// Rotation knobs for the log file. Defaults: 10 MB per file, 5 kept
	// backups, 10 days retention, compression on.
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool

	// RingBufferSize is the crash-dump ring capacity in bytes (default 10MB).
	RingBufferSize int

	// AggregateIntervalSecs is how often batched event counters flush
	// (default 30).
	AggregateIntervalSecs int

	// PprofEnabled serves pprof on PprofAddr (default localhost:6060).
	PprofEnabled bool
	PprofAddr    string

	// Debug keeps logging active even without a LogDir.
	Debug bool
}

// sinks bundles everything Init wires up, swapped as one unit under stateMu.
type sinks struct {
	logger *slog.Logger
	ring   *RingBuffer
	agg    *Aggregator
	file   *lumberjack.Logger
}

var (
	stateMu sync.RWMutex
	state   sinks
)

func withDefaults(cfg Config) Config {
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 10
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = 5
	}
	if cfg.MaxAgeDays <= 0 {
		cfg.MaxAgeDays = 10
	}
	if cfg.RingBufferSize <= 0 {
		cfg.RingBufferSize = 10 * 1024 * 1024
	}
	if cfg.AggregateIntervalSecs <= 0 {
		cfg.AggregateIntervalSecs = 30
	}
	if cfg.PprofAddr == "" {
		cfg.PprofAddr = "localhost:6060"
	}
	return cfg
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newHandler(w io.Writer, cfg Config) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if cfg.Format == "text" {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

// Init initializes the global logging system.
// When debug is false and no log dir is provided, logs are discarded.
func Init(cfg Config) {
	cfg = withDefaults(cfg)

	stateMu.Lock()
	defer stateMu.Unlock()

	if !cfg.Debug && cfg.LogDir == "" {
		state = sinks{
			logger: slog.New(slog.NewJSONHandler(io.Discard, nil)),
			ring:   NewRingBuffer(1024), // minimal
			agg:    NewAggregator(nil, cfg.AggregateIntervalSecs),
		}
		return
	}

	file := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.LogDir, logFileName),
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	ring := NewRingBuffer(cfg.RingBufferSize)

	// Every record lands in the rotating file and the crash-dump ring.
	logger := slog.New(newHandler(io.MultiWriter(file, ring), cfg))

	agg := NewAggregator(logger, cfg.AggregateIntervalSecs)
	agg.Start()

	state = sinks{logger: logger, ring: ring, agg: agg, file: file}

	if cfg.PprofEnabled {
		startPprof(cfg.PprofAddr)
	}
}

// Logger returns the global logger. Safe to call before Init (returns default).
func Logger() *slog.Logger {
	stateMu.RLock()
	defer stateMu.RUnlock()
	if state.logger == nil {
		return slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return state.logger
}

// ForComponent returns a logger tagged with the component attribute. The
// returned logger resolves the global handler at log time, so package-level
// loggers created before Init pick up the real sinks once Init runs instead
// of permanently capturing the discard handler.
func ForComponent(name string) *slog.Logger {
	return slog.New(&dynamicHandler{comp: name})
}

// dynamicHandler defers to whatever handler is currently installed.
type dynamicHandler struct {
	comp  string
	extra []slog.Attr
	grp   string
}

func (h *dynamicHandler) resolve() slog.Handler {
	target := Logger().Handler().WithAttrs([]slog.Attr{slog.String("component", h.comp)})
	if len(h.extra) > 0 {
		target = target.WithAttrs(h.extra)
	}
	if h.grp != "" {
		target = target.WithGroup(h.grp)
	}
	return target
}

func (h *dynamicHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return Logger().Handler().Enabled(ctx, level)
}

func (h *dynamicHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.resolve().Handle(ctx, r)
}

func (h *dynamicHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := append(append([]slog.Attr{}, h.extra...), attrs...)
	return &dynamicHandler{comp: h.comp, extra: merged, grp: h.grp}
}

func (h *dynamicHandler) WithGroup(name string) slog.Handler {
	return &dynamicHandler{comp: h.comp, extra: h.extra, grp: name}
}

// Aggregate records a high-frequency event (cache hits, watcher wakeups) for
// batched logging instead of one line per occurrence.
func Aggregate(component, key string, fields ...slog.Attr) {
	stateMu.RLock()
	agg := state.agg
	stateMu.RUnlock()
	if agg != nil {
		agg.Record(component, key, fields...)
	}
}

// DumpRingBuffer writes the ring buffer contents to a file.
func DumpRingBuffer(path string) error {
	stateMu.RLock()
	ring := state.ring
	stateMu.RUnlock()
	if ring == nil {
		return nil
	}
	return ring.DumpToFile(path)
}

// Shutdown flushes the aggregator and closes writers.
func Shutdown() {
	stateMu.Lock()
	defer stateMu.Unlock()

	if state.agg != nil {
		state.agg.Stop()
	}
	if state.file != nil {
		state.file.Close()
	}
	state = sinks{}
}
