package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/convault/convault/internal/vault"
)

// normalizeArgs reorders args so flags come before positionals. Go's flag
// package stops parsing at the first non-flag argument, so "show my-id
// --json" would silently ignore --json without this.
func normalizeArgs(fs *flag.FlagSet, args []string) []string {
	var flags, positional []string
	for i := 0; i < len(args); i++ {
		arg := args[i]

		// Everything after "--" is positional, and the marker itself drops.
		if arg == "--" {
			positional = append(positional, args[i+1:]...)
			break
		}

		if !strings.HasPrefix(arg, "-") || arg == "-" {
			positional = append(positional, arg)
			continue
		}

		flags = append(flags, arg)
		if flagTakesValue(fs, arg) && i+1 < len(args) {
			i++
			flags = append(flags, args[i])
		}
	}
	return append(flags, positional...)
}

// flagTakesValue reports whether the next argument belongs to this flag.
// Inline "=value" forms carry their own value; boolean flags never take one.
func flagTakesValue(fs *flag.FlagSet, arg string) bool {
	name := strings.TrimLeft(arg, "-")
	if strings.Contains(name, "=") {
		return false
	}
	f := fs.Lookup(name)
	if f == nil {
		// Unknown flags are assumed to take a value; parsing fails later
		// either way.
		return true
	}
	bf, ok := f.Value.(interface{ IsBoolFlag() bool })
	return !ok || !bf.IsBoolFlag()
}

// CLIOutput routes command results to either human-readable text or JSON.
type CLIOutput struct {
	jsonMode  bool
	quietMode bool
}

func NewCLIOutput(jsonMode, quietMode bool) *CLIOutput {
	return &CLIOutput{jsonMode: jsonMode, quietMode: quietMode}
}

// Success reports a completed operation. Quiet mode suppresses it entirely.
func (c *CLIOutput) Success(message string, data interface{}) {
	if c.quietMode {
		return
	}
	if c.jsonMode {
		c.emitJSON(data)
		return
	}
	fmt.Printf("%s %s\n", successSymbol, message)
}

// Error reports a failure. Errors print even in quiet mode.
func (c *CLIOutput) Error(message string, code string) {
	if c.jsonMode {
		c.emitJSON(map[string]interface{}{
			"success": false,
			"error":   message,
			"code":    code,
		})
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %s\n", message)
}

// Print emits command output in whichever mode is active.
func (c *CLIOutput) Print(humanOutput string, jsonData interface{}) {
	if c.quietMode {
		return
	}
	if c.jsonMode {
		c.emitJSON(jsonData)
		return
	}
	fmt.Print(humanOutput)
}

func (c *CLIOutput) emitJSON(data interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to format JSON: %v\n", err)
		os.Exit(1)
	}
}

// Symbols for human-readable output
const (
	successSymbol = "✓"
	errorSymbol   = "✕"
	bulletSymbol  = "•"
)

// Error codes
const (
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeAmbiguous        = "AMBIGUOUS"
	ErrCodeInvalidOperation = "INVALID_OPERATION"
	ErrCodeStorage          = "STORAGE_ERROR"
)

// minResolvePrefix is the shortest id prefix ResolveConversation will match.
const minResolvePrefix = 4

// ResolveConversation finds a conversation by exact id, id prefix, or exact
// title, in that order. Returns the matched meta, or an error message and
// code when the identifier is missing, ambiguous, or unmatched.
func ResolveConversation(identifier string, metas []vault.Meta) (vault.Meta, string, string) {
	if identifier == "" {
		return vault.Meta{}, "conversation id is required", ErrCodeNotFound
	}

	for _, meta := range metas {
		if meta.ID == identifier {
			return meta, "", ""
		}
	}

	if len(identifier) >= minResolvePrefix {
		matches := filterMetas(metas, func(m vault.Meta) bool {
			return strings.HasPrefix(m.ID, identifier)
		})
		switch len(matches) {
		case 0:
		case 1:
			return matches[0], "", ""
		default:
			msg := fmt.Sprintf("'%s' matches multiple conversations:\n  - %s\nUse the full id.",
				identifier, describeMetas(matches))
			return vault.Meta{}, msg, ErrCodeAmbiguous
		}
	}

	matches := filterMetas(metas, func(m vault.Meta) bool {
		return m.Title == identifier
	})
	if len(matches) == 1 {
		return matches[0], "", ""
	}
	if len(matches) > 1 {
		msg := fmt.Sprintf("title '%s' matches multiple conversations:\n  - %s\nUse the id instead.",
			identifier, describeMetas(matches))
		return vault.Meta{}, msg, ErrCodeAmbiguous
	}

	return vault.Meta{}, fmt.Sprintf("conversation '%s' not found", identifier), ErrCodeNotFound
}

func filterMetas(metas []vault.Meta, keep func(vault.Meta) bool) []vault.Meta {
	var out []vault.Meta
	for _, m := range metas {
		if keep(m) {
			out = append(out, m)
		}
	}
	return out
}

// describeMetas renders an ambiguity candidate list, one per line.
func describeMetas(metas []vault.Meta) string {
	names := make([]string, len(metas))
	for i, m := range metas {
		names[i] = fmt.Sprintf("%s (%s)", m.Title, TruncateID(m.ID))
	}
	return strings.Join(names, "\n  - ")
}

// TruncateID returns a shortened id for display.
func TruncateID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// FormatPath replaces the home directory prefix with ~ for display.
func FormatPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
