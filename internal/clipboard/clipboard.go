package clipboard

import (
	"encoding/base64"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/convault/convault/internal/platform"
)

// CopyResult contains metadata about a successful clipboard copy operation.
type CopyResult struct {
	Method    string // How the content was copied (e.g., "pbcopy", "xclip", "osc52")
	ByteSize  int    // Number of bytes copied
	LineCount int    // Number of lines in the content
}

// Copy copies text to the system clipboard using platform-appropriate methods.
// The fallback chain is: native clipboard tool → OSC 52 escape sequence.
func Copy(text string) (*CopyResult, error) {
	if text == "" {
		return nil, fmt.Errorf("no content to copy")
	}

	lineCount := countLines(text)
	byteSize := len(text)

	// Try native clipboard command first
	method, err := copyNative(text)
	if err == nil {
		return &CopyResult{
			Method:    method,
			ByteSize:  byteSize,
			LineCount: lineCount,
		}, nil
	}

	// Fall back to OSC 52 if the terminal looks capable
	if supportsOSC52() {
		if err := copyOSC52(text); err != nil {
			return nil, fmt.Errorf("OSC 52 clipboard failed: %w", err)
		}
		return &CopyResult{
			Method:    "osc52",
			ByteSize:  byteSize,
			LineCount: lineCount,
		}, nil
	}

	return nil, fmt.Errorf("no clipboard method available (install pbcopy, xclip, xsel, or wl-copy)")
}

// copyNative attempts to copy using a platform-native clipboard command.
// Returns the method name on success.
func copyNative(text string) (string, error) {
	p := platform.Detect()

	switch p {
	case platform.PlatformMacOS:
		return "pbcopy", runClipCmd("pbcopy", nil, text)

	case platform.PlatformWSL1, platform.PlatformWSL2:
		return "clip.exe", runClipCmd("clip.exe", nil, text)

	case platform.PlatformLinux:
		// Wayland takes priority over X11
		if os.Getenv("WAYLAND_DISPLAY") != "" {
			if path, err := exec.LookPath("wl-copy"); err == nil {
				return "wl-copy", runClipCmd(path, nil, text)
			}
		}
		// X11: try xclip first, then xsel
		if path, err := exec.LookPath("xclip"); err == nil {
			return "xclip", runClipCmd(path, []string{"-selection", "clipboard"}, text)
		}
		if path, err := exec.LookPath("xsel"); err == nil {
			return "xsel", runClipCmd(path, []string{"--clipboard", "--input"}, text)
		}
		return "", fmt.Errorf("no clipboard command found on Linux")

	default:
		return "", fmt.Errorf("unsupported platform: %s", p)
	}
}

// runClipCmd executes a clipboard command, piping text to its stdin.
func runClipCmd(name string, args []string, text string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdin = strings.NewReader(text)
	return cmd.Run()
}

// supportsOSC52 guesses whether the terminal accepts OSC 52 from its
// identifying environment variables. Terminals that ignore the sequence do
// so silently, so the guess errs permissive for xterm-compatible TERMs.
func supportsOSC52() bool {
	switch os.Getenv("TERM_PROGRAM") {
	case "iTerm.app", "WezTerm", "ghostty":
		return true
	}
	term := os.Getenv("TERM")
	if strings.HasPrefix(term, "xterm") || strings.HasPrefix(term, "tmux") || strings.HasPrefix(term, "screen") {
		return true
	}
	return os.Getenv("KITTY_WINDOW_ID") != "" || os.Getenv("ALACRITTY_WINDOW_ID") != ""
}

// copyOSC52 copies text using the OSC 52 terminal escape sequence.
// Inside a terminal multiplexer, wraps the sequence in a DCS passthrough.
func copyOSC52(text string) error {
	encoded := base64.StdEncoding.EncodeToString([]byte(text))
	seq := generateOSC52(encoded, os.Getenv("TMUX") != "")

	// Write to /dev/tty to bypass any stdout redirection
	tty, err := os.OpenFile("/dev/tty", os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("cannot open /dev/tty: %w", err)
	}
	defer tty.Close()

	_, err = tty.WriteString(seq)
	return err
}

// generateOSC52 builds the OSC 52 escape sequence.
// If passthrough is true, wraps it in a DCS passthrough for multiplexers.
func generateOSC52(base64Content string, passthrough bool) string {
	osc := "\x1b]52;c;" + base64Content + "\x07"
	if passthrough {
		return "\x1bPtmux;\x1b" + osc + "\x1b\\"
	}
	return osc
}

// countLines counts the number of non-empty lines in text.
// A trailing newline does not add an extra line.
func countLines(text string) int {
	if text == "" {
		return 0
	}
	n := strings.Count(text, "\n")
	// If text doesn't end with newline, the last line still counts
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}
