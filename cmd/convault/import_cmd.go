package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/convault/convault/internal/vault"
)

func handleImport(profile string, args []string) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	dir := fs.String("dir", "", "Directory to scan for export files (default: configured search dirs)")
	workers := fs.Int("workers", 0, "Concurrent record writers (default: from config)")
	ratePerSec := fs.Int("rate", 0, "Max conversations per second (0 = unlimited)")
	pick := fs.String("pick", "", "Fuzzy query to pick among discovered exports")
	jsonOutput := fs.Bool("json", false, "Output as JSON")

	fs.Usage = func() {
		fmt.Println("Usage: convault import [path] [options]")
		fmt.Println()
		fmt.Println("Split a combined export (JSON array of conversations) into per-record")
		fmt.Println("files, rebuild the index, and seed the combined snapshot.")
		fmt.Println()
		fmt.Println("Without a path, the configured search directories are scanned and the")
		fmt.Println("most recent export is used.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  convault import ~/Downloads/conversations.json")
		fmt.Println("  convault import                      # newest discovered export")
		fmt.Println("  convault import --pick march         # fuzzy-pick a discovered export")
		fmt.Println("  convault -p work import --workers 8")
	}

	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		os.Exit(1)
	}
	if fs.NArg() > 1 {
		fs.Usage()
		os.Exit(1)
	}

	out := NewCLIOutput(*jsonOutput, false)

	cfg, _ := vault.LoadUserConfig()
	importCfg := cfg.GetImportSettings()

	path := fs.Arg(0)
	if path == "" {
		dirs := importCfg.GetSearchDirs()
		if *dir != "" {
			dirs = []string{*dir}
		}

		exports, err := vault.DiscoverExports(dirs)
		if err != nil {
			out.Error(fmt.Sprintf("failed to scan for exports: %v", err), ErrCodeStorage)
			os.Exit(1)
		}
		if *pick != "" {
			exports = vault.RankExports(exports, *pick)
		}
		if len(exports) == 0 {
			out.Error("no export files found; pass a path explicitly", ErrCodeNotFound)
			os.Exit(1)
		}
		path = exports[0].Path
		if !*jsonOutput {
			fmt.Printf("Using export: %s\n", FormatPath(path))
		}
	}

	opts := vault.ImportOptions{
		Workers:    importCfg.GetWorkers(),
		RatePerSec: importCfg.RatePerSec,
	}
	if *workers > 0 {
		opts.Workers = *workers
	}
	if *ratePerSec > 0 {
		opts.RatePerSec = *ratePerSec
	}

	store := openStore(profile)
	defer store.Close()

	result, err := vault.SplitExport(context.Background(), store, path, opts)
	if err != nil {
		out.Error(fmt.Sprintf("import failed: %v", err), ErrCodeStorage)
		os.Exit(1)
	}

	out.Success(fmt.Sprintf("Imported %d of %d conversations (%d skipped) in %s",
		result.Imported, result.Total, result.Skipped, result.Elapsed.Round(time.Millisecond)),
		map[string]interface{}{
			"success":    true,
			"path":       path,
			"imported":   result.Imported,
			"skipped":    result.Skipped,
			"total":      result.Total,
			"elapsed_ms": result.Elapsed.Milliseconds(),
		})
}
