package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/convault/convault/internal/vault"
)

// Table column widths for list command output
const (
	tableColTitle     = 40
	tableColIDDisplay = 12
)

func handleList(profile string, args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	query := fs.String("q", "", "Filter by title substring")
	sortBy := fs.String("sort", "", "Sort field: update_time, create_time, title")
	asc := fs.Bool("asc", false, "Sort ascending")
	desc := fs.Bool("desc", false, "Sort descending (default)")
	offset := fs.Int("offset", 0, "Skip this many results")
	limit := fs.Int("limit", 0, "Maximum results (0 = all)")
	jsonOutput := fs.Bool("json", false, "Output as JSON")

	fs.Usage = func() {
		fmt.Println("Usage: convault list [options]")
		fmt.Println()
		fmt.Println("List conversations in the profile store.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  convault list                       # All conversations, newest first")
		fmt.Println("  convault list -q budget --limit 10  # First 10 title matches")
		fmt.Println("  convault -p work list --json        # JSON from the 'work' profile")
	}

	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		os.Exit(1)
	}
	if *asc && *desc {
		fmt.Fprintln(os.Stderr, "Error: --asc and --desc are mutually exclusive")
		os.Exit(1)
	}

	order := vault.OrderDesc
	if *asc {
		order = vault.OrderAsc
	}

	store := openStore(profile)
	defer store.Close()

	result, err := store.List(vault.ListOptions{
		Query:  *query,
		SortBy: vault.SortField(*sortBy),
		Order:  order,
		Offset: *offset,
		Limit:  *limit,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to list conversations: %v\n", err)
		os.Exit(1)
	}

	if *jsonOutput {
		out := NewCLIOutput(true, false)
		out.Print("", map[string]interface{}{
			"profile": vault.GetEffectiveProfile(profile),
			"items":   result.Items,
			"total":   result.Total,
			"dirty":   store.DirtyCount(),
		})
		return
	}

	if len(result.Items) == 0 {
		fmt.Printf("No conversations found in profile '%s'.\n", vault.GetEffectiveProfile(profile))
		return
	}

	fmt.Printf("Profile: %s\n\n", vault.GetEffectiveProfile(profile))
	fmt.Printf("  %-*s  %-*s  %4s  %s\n", tableColIDDisplay, "ID", tableColTitle, "TITLE", "MSGS", "UPDATED")
	for _, meta := range result.Items {
		marker := " "
		if meta.Dirty {
			marker = bulletSymbol
		}
		fmt.Printf("%s %-*s  %-*s  %4d  %s\n",
			marker,
			tableColIDDisplay, TruncateID(meta.ID),
			tableColTitle, truncateTitle(meta.Title, tableColTitle),
			meta.MessageCount,
			formatEpoch(meta.UpdateTime))
	}
	fmt.Printf("\n%d of %d conversations", len(result.Items), result.Total)
	if dirty := store.DirtyCount(); dirty > 0 {
		fmt.Printf(" (%d unsynced)", dirty)
	}
	fmt.Println()
}

func handleShow(profile string, args []string) {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	reload := fs.Bool("reload", false, "Bypass the cache and re-read from disk")

	fs.Usage = func() {
		fmt.Println("Usage: convault show <id> [options]")
		fmt.Println()
		fmt.Println("Show conversation metadata and the linearized transcript.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}

	out := NewCLIOutput(*jsonOutput, false)
	store := openStore(profile)
	defer store.Close()

	meta, errMsg, code := resolveFromStore(store, fs.Arg(0))
	if errMsg != "" {
		out.Error(errMsg, code)
		os.Exit(1)
	}

	body, cached, err := store.Load(context.Background(), meta.ID, *reload)
	if err != nil {
		out.Error(fmt.Sprintf("failed to load conversation: %v", err), ErrCodeStorage)
		os.Exit(1)
	}

	if *jsonOutput {
		out.Print("", map[string]interface{}{
			"meta":   meta,
			"body":   body,
			"cached": cached,
		})
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", meta.Title)
	fmt.Fprintf(&b, "  id:       %s\n", meta.ID)
	fmt.Fprintf(&b, "  messages: %d\n", meta.MessageCount)
	fmt.Fprintf(&b, "  created:  %s\n", formatEpoch(meta.CreateTime))
	fmt.Fprintf(&b, "  updated:  %s\n", formatEpoch(meta.UpdateTime))
	if meta.Dirty {
		fmt.Fprintf(&b, "  state:    unsynced\n")
	}

	conv, err := vault.ParseConversation(body)
	if err == nil && conv != nil {
		for _, entry := range conv.Transcript() {
			fmt.Fprintf(&b, "\n[%s]\n%s\n", entry.Role, entry.Text)
		}
	} else {
		fmt.Fprintf(&b, "\n(no message tree; body stored verbatim)\n")
	}
	out.Print(b.String(), nil)
}

func handleSave(profile string, args []string) {
	fs := flag.NewFlagSet("save", flag.ExitOnError)
	file := fs.String("f", "", "Read the body from this file ('-' or empty = stdin)")
	title := fs.String("t", "", "Title override")
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	quiet := fs.Bool("quiet", false, "Suppress output")

	fs.Usage = func() {
		fmt.Println("Usage: convault save <id> [options]")
		fmt.Println()
		fmt.Println("Save or overwrite a conversation body (JSON) from a file or stdin.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  convault save chat-42 -f body.json")
		fmt.Println("  cat body.json | convault save chat-42 -t \"Budget review\"")
	}

	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}

	out := NewCLIOutput(*jsonOutput, *quiet)

	var body []byte
	var err error
	if *file == "" || *file == "-" {
		body, err = io.ReadAll(os.Stdin)
	} else {
		body, err = os.ReadFile(*file)
	}
	if err != nil {
		out.Error(fmt.Sprintf("failed to read body: %v", err), ErrCodeInvalidOperation)
		os.Exit(1)
	}

	store := openStore(profile)
	defer store.Close()

	meta, err := store.Save(context.Background(), fs.Arg(0), body, *title)
	if err != nil {
		out.Error(fmt.Sprintf("failed to save conversation: %v", err), ErrCodeStorage)
		os.Exit(1)
	}

	out.Success(fmt.Sprintf("Saved '%s' (%d messages)", meta.Title, meta.MessageCount),
		map[string]interface{}{
			"success": true,
			"meta":    meta,
		})
}

func handleTitle(profile string, args []string) {
	fs := flag.NewFlagSet("title", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output as JSON")

	fs.Usage = func() {
		fmt.Println("Usage: convault title <id> <new title>")
		fmt.Println()
		fmt.Println("Rename a conversation. The new title is patched into the body too.")
	}

	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 2 {
		fs.Usage()
		os.Exit(1)
	}

	out := NewCLIOutput(*jsonOutput, false)
	newTitle := strings.TrimSpace(strings.Join(fs.Args()[1:], " "))
	if newTitle == "" {
		out.Error("title cannot be empty", ErrCodeInvalidOperation)
		os.Exit(1)
	}

	store := openStore(profile)
	defer store.Close()

	meta, errMsg, code := resolveFromStore(store, fs.Arg(0))
	if errMsg != "" {
		out.Error(errMsg, code)
		os.Exit(1)
	}

	if err := store.UpdateTitle(context.Background(), meta.ID, newTitle); err != nil {
		out.Error(fmt.Sprintf("failed to rename: %v", err), ErrCodeStorage)
		os.Exit(1)
	}

	out.Success(fmt.Sprintf("Renamed '%s' to '%s'", meta.Title, newTitle),
		map[string]interface{}{
			"success": true,
			"id":      meta.ID,
			"title":   newTitle,
		})
}

func handleDelete(profile string, args []string) {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output as JSON")

	fs.Usage = func() {
		fmt.Println("Usage: convault delete <id|prefix>")
		fmt.Println()
		fmt.Println("Delete a conversation record and drop it from the index.")
	}

	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}

	out := NewCLIOutput(*jsonOutput, false)
	store := openStore(profile)
	defer store.Close()

	meta, errMsg, code := resolveFromStore(store, fs.Arg(0))
	if errMsg != "" {
		out.Error(errMsg, code)
		os.Exit(1)
	}

	deleted, err := store.Delete(context.Background(), meta.ID)
	if err != nil {
		out.Error(fmt.Sprintf("failed to delete: %v", err), ErrCodeStorage)
		os.Exit(1)
	}
	if !deleted {
		out.Error(fmt.Sprintf("conversation '%s' not found", meta.ID), ErrCodeNotFound)
		os.Exit(1)
	}

	out.Success(fmt.Sprintf("Deleted '%s'", meta.Title),
		map[string]interface{}{
			"success": true,
			"id":      meta.ID,
		})
}

func handleSync(profile string, args []string) {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output as JSON")

	fs.Usage = func() {
		fmt.Println("Usage: convault sync")
		fmt.Println()
		fmt.Println("Merge dirty conversations into the combined snapshot now.")
	}

	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		os.Exit(1)
	}

	out := NewCLIOutput(*jsonOutput, false)
	store := openStore(profile)
	defer store.Close()

	result, err := store.Sync(context.Background())
	if err != nil {
		out.Error(fmt.Sprintf("sync failed: %v", err), ErrCodeStorage)
		os.Exit(1)
	}

	out.Success(fmt.Sprintf("Synced %d, removed %d (%d remaining)",
		result.Synced, result.Removed, result.Remaining),
		map[string]interface{}{
			"success": true,
			"sync":    result,
		})
}

// resolveFromStore lists the index and resolves a flexible identifier
func resolveFromStore(store *vault.Store, identifier string) (vault.Meta, string, string) {
	result, err := store.List(vault.ListOptions{})
	if err != nil {
		return vault.Meta{}, fmt.Sprintf("failed to read index: %v", err), ErrCodeStorage
	}
	return ResolveConversation(identifier, result.Items)
}

// truncateTitle shortens a title for table display
func truncateTitle(title string, width int) string {
	if len(title) <= width {
		return title
	}
	if width <= 1 {
		return title[:width]
	}
	return title[:width-1] + "…"
}

// formatEpoch renders an epoch-seconds timestamp, or "-" when unset
func formatEpoch(epoch *float64) string {
	if epoch == nil {
		return "-"
	}
	return time.Unix(int64(*epoch), 0).Format("2006-01-02 15:04")
}
