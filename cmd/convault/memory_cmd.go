package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/convault/convault/internal/logging"
	"github.com/convault/convault/internal/memorydb"
	"github.com/convault/convault/internal/vault"
)

func handleMemory(profile string, args []string) {
	if len(args) == 0 {
		printMemoryHelp()
		os.Exit(1)
	}

	switch args[0] {
	case "add":
		handleMemoryAdd(profile, args[1:])
	case "list":
		handleMemoryList(profile, args[1:])
	case "search":
		handleMemorySearch(profile, args[1:])
	case "episode":
		handleMemoryEpisode(profile, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown memory command '%s'\n\n", args[0])
		printMemoryHelp()
		os.Exit(1)
	}
}

func printMemoryHelp() {
	fmt.Println("Usage: convault memory <command>")
	fmt.Println()
	fmt.Println("Manage the per-profile agent memory database.")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  add <key> <value>        Store or update a semantic fact")
	fmt.Println("  list                     List top semantic facts")
	fmt.Println("  search <query>           Search episodic memory")
	fmt.Println("  episode <title> <detail> Record an episode")
}

// openMemoryDB opens the profile's memory database, exiting on failure
func openMemoryDB(profile string) *memorydb.DB {
	profileDir, err := vault.GetProfileDir(vault.GetEffectiveProfile(profile))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve profile: %v\n", err)
		os.Exit(1)
	}
	dbPath := filepath.Join(profileDir, memorydb.FileName)
	db, err := memorydb.Open(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open memory database: %v\n", err)
		os.Exit(1)
	}
	logging.ForComponent(logging.CompMemory).Debug("memory_db_opened",
		slog.String("path", dbPath))
	return db
}

func handleMemoryAdd(profile string, args []string) {
	fs := flag.NewFlagSet("memory add", flag.ExitOnError)
	confidence := fs.Float64("confidence", 1.0, "Confidence score (0.0-1.0)")
	locked := fs.Bool("lock", false, "Lock the fact against later upserts")
	jsonOutput := fs.Bool("json", false, "Output as JSON")

	fs.Usage = func() {
		fmt.Println("Usage: convault memory add <key> <value> [options]")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 2 {
		fs.Usage()
		os.Exit(1)
	}

	out := NewCLIOutput(*jsonOutput, false)
	key := fs.Arg(0)
	value := strings.Join(fs.Args()[1:], " ")

	db := openMemoryDB(profile)
	defer db.Close()

	if err := db.UpsertSemantic(key, value, *confidence, *locked); err != nil {
		out.Error(fmt.Sprintf("failed to store fact: %v", err), ErrCodeStorage)
		os.Exit(1)
	}

	out.Success(fmt.Sprintf("Stored fact '%s'", key),
		map[string]interface{}{
			"success": true,
			"key":     key,
			"value":   value,
		})
}

func handleMemoryList(profile string, args []string) {
	fs := flag.NewFlagSet("memory list", flag.ExitOnError)
	limit := fs.Int("limit", 20, "Maximum facts to show")
	jsonOutput := fs.Bool("json", false, "Output as JSON")

	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		os.Exit(1)
	}

	out := NewCLIOutput(*jsonOutput, false)
	db := openMemoryDB(profile)
	defer db.Close()

	rows, err := db.SemanticTop(*limit)
	if err != nil {
		out.Error(fmt.Sprintf("failed to list facts: %v", err), ErrCodeStorage)
		os.Exit(1)
	}

	if *jsonOutput {
		out.Print("", rows)
		return
	}
	if len(rows) == 0 {
		fmt.Println("No facts stored.")
		return
	}
	for _, row := range rows {
		marker := " "
		if row.Locked {
			marker = "🔒"
		}
		fmt.Printf("%s %-30s %s  (%.2f)\n", marker, row.Key, row.Value, row.Confidence)
	}
}

func handleMemorySearch(profile string, args []string) {
	fs := flag.NewFlagSet("memory search", flag.ExitOnError)
	limit := fs.Int("limit", 10, "Maximum episodes to show")
	jsonOutput := fs.Bool("json", false, "Output as JSON")

	fs.Usage = func() {
		fmt.Println("Usage: convault memory search <query> [options]")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		os.Exit(1)
	}

	out := NewCLIOutput(*jsonOutput, false)
	db := openMemoryDB(profile)
	defer db.Close()

	var rows []memorydb.EpisodeRow
	var err error
	if fs.NArg() == 0 {
		rows, err = db.RecentEpisodes(*limit)
	} else {
		rows, err = db.SearchEpisodes(strings.Join(fs.Args(), " "), *limit)
	}
	if err != nil {
		out.Error(fmt.Sprintf("search failed: %v", err), ErrCodeStorage)
		os.Exit(1)
	}

	if *jsonOutput {
		out.Print("", rows)
		return
	}
	if len(rows) == 0 {
		fmt.Println("No episodes found.")
		return
	}
	for _, row := range rows {
		ts := time.Unix(row.TS, 0).Format("2006-01-02 15:04")
		fmt.Printf("%s %s [%.1f] %s\n    %s\n", bulletSymbol, ts, row.Importance, row.Title, row.Detail)
	}
}

func handleMemoryEpisode(profile string, args []string) {
	fs := flag.NewFlagSet("memory episode", flag.ExitOnError)
	entities := fs.String("entities", "", "Comma-separated entities involved")
	importance := fs.Float64("importance", 0.5, "Importance weight (0.0-1.0)")
	jsonOutput := fs.Bool("json", false, "Output as JSON")

	fs.Usage = func() {
		fmt.Println("Usage: convault memory episode <title> <detail> [options]")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 2 {
		fs.Usage()
		os.Exit(1)
	}

	out := NewCLIOutput(*jsonOutput, false)
	title := fs.Arg(0)
	detail := strings.Join(fs.Args()[1:], " ")

	db := openMemoryDB(profile)
	defer db.Close()

	if err := db.AddEpisode(title, detail, *entities, *importance, 0); err != nil {
		out.Error(fmt.Sprintf("failed to record episode: %v", err), ErrCodeStorage)
		os.Exit(1)
	}

	out.Success(fmt.Sprintf("Recorded episode '%s'", title),
		map[string]interface{}{
			"success": true,
			"title":   title,
		})
}
