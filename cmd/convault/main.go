package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	xterm "golang.org/x/term"

	"github.com/convault/convault/internal/logging"
	"github.com/convault/convault/internal/ui"
	"github.com/convault/convault/internal/vault"
)

const Version = "0.3.1"

// init sets up color profile for consistent terminal colors across environments
func init() {
	initColorProfile()
}

// initColorProfile configures lipgloss color profile based on terminal capabilities.
// Prefers TrueColor for best visuals, falls back to ANSI256 for compatibility.
func initColorProfile() {
	// Allow user override via environment variable
	// CONVAULT_COLOR: truecolor, 256, 16, none
	if colorEnv := os.Getenv("CONVAULT_COLOR"); colorEnv != "" {
		switch strings.ToLower(colorEnv) {
		case "truecolor", "true", "24bit":
			lipgloss.SetColorProfile(termenv.TrueColor)
			return
		case "256", "ansi256":
			lipgloss.SetColorProfile(termenv.ANSI256)
			return
		case "16", "ansi", "basic":
			lipgloss.SetColorProfile(termenv.ANSI)
			return
		case "none", "off", "ascii":
			lipgloss.SetColorProfile(termenv.Ascii)
			return
		}
	}

	// Piped output gets no escape sequences
	if !xterm.IsTerminal(int(os.Stdout.Fd())) {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}

	// Explicit TrueColor support
	colorTerm := os.Getenv("COLORTERM")
	if colorTerm == "truecolor" || colorTerm == "24bit" {
		lipgloss.SetColorProfile(termenv.TrueColor)
		return
	}

	// Check TERM for capability hints
	term := os.Getenv("TERM")

	// Known TrueColor-capable terminals
	trueColorTerms := []string{
		"xterm-256color",
		"screen-256color",
		"tmux-256color",
		"xterm-direct",
		"alacritty",
		"kitty",
		"wezterm",
	}
	for _, t := range trueColorTerms {
		if strings.Contains(term, t) || term == t {
			lipgloss.SetColorProfile(termenv.TrueColor)
			return
		}
	}

	// Common terminal emulators set these
	if os.Getenv("WT_SESSION") != "" || // Windows Terminal
		os.Getenv("ITERM_SESSION_ID") != "" || // iTerm2
		os.Getenv("TERMINAL_EMULATOR") != "" || // JetBrains terminals
		os.Getenv("KONSOLE_VERSION") != "" { // Konsole
		lipgloss.SetColorProfile(termenv.TrueColor)
		return
	}

	// Fallback: ANSI256 works in SSH, basic terminals, and older emulators
	lipgloss.SetColorProfile(termenv.ANSI256)
}

func main() {
	// Extract global -p/--profile flag before subcommand dispatch
	profile, args := extractProfileFlag(os.Args[1:])

	// Handle subcommands
	if len(args) > 0 {
		switch args[0] {
		case "version", "--version", "-v":
			fmt.Printf("Convault v%s\n", Version)
			return
		case "help", "--help", "-h":
			printHelp()
			return
		case "list", "ls":
			handleList(profile, args[1:])
			return
		case "show":
			handleShow(profile, args[1:])
			return
		case "save":
			handleSave(profile, args[1:])
			return
		case "title":
			handleTitle(profile, args[1:])
			return
		case "delete", "rm":
			handleDelete(profile, args[1:])
			return
		case "sync":
			handleSync(profile, args[1:])
			return
		case "import":
			handleImport(profile, args[1:])
			return
		case "serve":
			handleServe(profile, args[1:])
			return
		case "memory":
			handleMemory(profile, args[1:])
			return
		case "profile":
			handleProfile(args[1:])
			return
		case "config":
			handleConfig(args[1:])
			return
		}
	}

	runTUI(profile)
}

// runTUI loads the profile store and starts the full-screen browser
func runTUI(profile string) {
	initLogging()
	defer logging.Shutdown()

	effectiveProfile := vault.GetEffectiveProfile(profile)
	store, err := vault.OpenProfileStore(context.Background(), effectiveProfile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	cfg, _ := vault.LoadUserConfig()
	uiSettings := cfg.GetUISettings()

	if err := ui.Run(store, ui.Options{
		Profile:         effectiveProfile,
		ShowPreview:     uiSettings.GetShowPreview(),
		PreviewMessages: uiSettings.GetPreviewMessages(),
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// initLogging sets up structured logging (JSONL format with rotation).
// When CONVAULT_DEBUG is set, logs go to ~/.convault/convault.log; when not
// set, logs are discarded to avoid TUI interference.
func initLogging() {
	debugMode := os.Getenv("CONVAULT_DEBUG") != ""
	baseDir, err := vault.GetConvaultDir()
	if err != nil {
		return
	}

	logCfg := logging.Config{
		Debug:                 debugMode,
		LogDir:                baseDir,
		Level:                 "debug",
		Format:                "json",
		MaxSizeMB:             10,
		MaxBackups:            5,
		MaxAgeDays:            10,
		Compress:              true,
		RingBufferSize:        10 * 1024 * 1024,
		AggregateIntervalSecs: 30,
	}

	// Override defaults from user config if available
	if userCfg, err := vault.LoadUserConfig(); err == nil {
		ls := userCfg.GetLogSettings()
		logCfg.Level = ls.DebugLevel
		logCfg.Format = ls.DebugFormat
		logCfg.MaxSizeMB = ls.DebugMaxMB
		logCfg.MaxBackups = ls.DebugBackups
		logCfg.MaxAgeDays = ls.DebugRetentionDays
		logCfg.Compress = ls.GetDebugCompress()
		logCfg.RingBufferSize = ls.RingBufferMB * 1024 * 1024
		logCfg.PprofEnabled = ls.PprofEnabled
		logCfg.AggregateIntervalSecs = ls.AggregateIntervalS
	}

	logging.Init(logCfg)

	if debugMode {
		logging.ForComponent(logging.CompCLI).Info("started",
			slog.Int("pid", os.Getpid()),
			slog.String("version", Version))
	}

	// SIGUSR1 dumps the ring buffer for post-mortem debugging
	usr1Chan := make(chan os.Signal, 1)
	signal.Notify(usr1Chan, syscall.SIGUSR1)
	go func() {
		for range usr1Chan {
			dumpPath := filepath.Join(baseDir, fmt.Sprintf("crash-dump-%d.jsonl", time.Now().Unix()))
			if err := logging.DumpRingBuffer(dumpPath); err != nil {
				logging.ForComponent(logging.CompCLI).Error("crash_dump_failed",
					slog.String("error", err.Error()))
			} else {
				logging.ForComponent(logging.CompCLI).Info("crash_dump_written",
					slog.String("path", dumpPath))
			}
		}
	}()
}

// extractProfileFlag extracts -p or --profile from args, returning the profile and remaining args
func extractProfileFlag(args []string) (string, []string) {
	var profile string
	var remaining []string

	for i := 0; i < len(args); i++ {
		arg := args[i]

		// Check for -p=value or --profile=value
		if strings.HasPrefix(arg, "-p=") {
			profile = strings.TrimPrefix(arg, "-p=")
			continue
		}
		if strings.HasPrefix(arg, "--profile=") {
			profile = strings.TrimPrefix(arg, "--profile=")
			continue
		}

		// Check for -p value or --profile value
		if arg == "-p" || arg == "--profile" {
			if i+1 < len(args) {
				profile = args[i+1]
				i++ // Skip the value
				continue
			}
		}

		remaining = append(remaining, arg)
	}

	return profile, remaining
}

// openStore loads the store for a profile, exiting on failure
func openStore(profile string) *vault.Store {
	store, err := vault.OpenProfileStore(context.Background(), vault.GetEffectiveProfile(profile))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open store: %v\n", err)
		os.Exit(1)
	}
	return store
}

func handleConfig(args []string) {
	if len(args) == 0 || args[0] != "init" {
		fmt.Println("Usage: convault config init")
		fmt.Println()
		fmt.Println("Write a commented example config.toml with every setting.")
		os.Exit(1)
	}

	path, err := vault.CreateExampleConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%s Wrote example config to %s\n", successSymbol, FormatPath(path))
}

func printHelp() {
	fmt.Printf("Convault v%s\n", Version)
	fmt.Println("Local conversation vault with metadata index and combined snapshot")
	fmt.Println()
	fmt.Println("Usage: convault [-p profile] [command]")
	fmt.Println()
	fmt.Println("Global Options:")
	fmt.Println("  -p, --profile <name>   Use specific profile (default: 'default')")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  (none)           Start the TUI browser")
	fmt.Println("  list, ls         List conversations")
	fmt.Println("  show <id>        Show conversation details and transcript")
	fmt.Println("  save <id>        Save a conversation body from file or stdin")
	fmt.Println("  title <id> <t>   Rename a conversation")
	fmt.Println("  delete, rm <id>  Delete a conversation")
	fmt.Println("  sync             Consolidate into the combined snapshot")
	fmt.Println("  import [path]    Split a combined export into the store")
	fmt.Println("  serve            Start the local web server")
	fmt.Println("  memory           Manage the agent memory database")
	fmt.Println("  profile          Manage profiles")
	fmt.Println("  config init      Write an example config.toml")
	fmt.Println("  version          Show version")
	fmt.Println("  help             Show this help")
	fmt.Println()
	fmt.Println("Memory Commands:")
	fmt.Println("  memory add <key> <value>      Store a semantic fact")
	fmt.Println("  memory list                   List top semantic facts")
	fmt.Println("  memory search <query>         Search episodic memory")
	fmt.Println("  memory episode <title> <det>  Record an episode")
	fmt.Println()
	fmt.Println("Profile Commands:")
	fmt.Println("  profile list                  List profiles")
	fmt.Println("  profile create <name>         Create a profile")
	fmt.Println("  profile delete <name>         Delete a profile")
	fmt.Println("  profile default <name>        Set the default profile")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  convault list -q budget --json")
	fmt.Println("  convault save chat-42 -f body.json")
	fmt.Println("  convault -p work sync")
	fmt.Println("  convault serve --listen 127.0.0.1:9000 --token secret")
}
