package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/convault/convault/internal/vault"
)

func handleProfile(args []string) {
	if len(args) == 0 {
		printProfileHelp()
		os.Exit(1)
	}

	switch args[0] {
	case "list", "ls":
		handleProfileList(args[1:])
	case "create":
		handleProfileCreate(args[1:])
	case "delete", "rm":
		handleProfileDelete(args[1:])
	case "default":
		handleProfileDefault(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown profile command '%s'\n\n", args[0])
		printProfileHelp()
		os.Exit(1)
	}
}

func printProfileHelp() {
	fmt.Println("Usage: convault profile <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  list              List profiles")
	fmt.Println("  create <name>     Create a profile with an empty store")
	fmt.Println("  delete <name>     Delete a profile and its store")
	fmt.Println("  default <name>    Set the default profile")
}

func handleProfileList(args []string) {
	fs := flag.NewFlagSet("profile list", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	out := NewCLIOutput(*jsonOutput, false)

	profiles, err := vault.ListProfiles()
	if err != nil {
		out.Error(fmt.Sprintf("failed to list profiles: %v", err), ErrCodeStorage)
		os.Exit(1)
	}

	defaultProfile := vault.GetEffectiveProfile("")

	if *jsonOutput {
		out.Print("", map[string]interface{}{
			"profiles": profiles,
			"default":  defaultProfile,
		})
		return
	}

	if len(profiles) == 0 {
		fmt.Println("No profiles found. The 'default' profile is created on first use.")
		return
	}
	for _, p := range profiles {
		marker := " "
		if p == defaultProfile {
			marker = "*"
		}
		fmt.Printf("%s %s\n", marker, p)
	}
}

func handleProfileCreate(args []string) {
	if len(args) != 1 {
		fmt.Println("Usage: convault profile create <name>")
		os.Exit(1)
	}
	name := args[0]

	if err := vault.CreateProfile(name); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%s Created profile '%s'\n", successSymbol, name)
}

func handleProfileDelete(args []string) {
	fs := flag.NewFlagSet("profile delete", flag.ExitOnError)
	force := fs.Bool("force", false, "Skip the confirmation prompt")
	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		fmt.Println("Usage: convault profile delete <name> [--force]")
		os.Exit(1)
	}
	name := fs.Arg(0)

	if !*force {
		fmt.Printf("Delete profile '%s' and all of its conversations? [y/N]: ", name)
		var response string
		_, _ = fmt.Scanln(&response)
		if response != "y" && response != "Y" && response != "yes" {
			fmt.Println("Aborted.")
			return
		}
	}

	if err := vault.DeleteProfile(name); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%s Deleted profile '%s'\n", successSymbol, name)
}

func handleProfileDefault(args []string) {
	if len(args) != 1 {
		fmt.Println("Usage: convault profile default <name>")
		os.Exit(1)
	}
	name := args[0]

	if err := vault.SetDefaultProfile(name); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%s Default profile is now '%s'\n", successSymbol, name)
}
