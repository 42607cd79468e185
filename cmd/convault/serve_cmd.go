package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/convault/convault/internal/logging"
	"github.com/convault/convault/internal/vault"
	"github.com/convault/convault/internal/web"
)

func handleServe(profile string, args []string) {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	listenAddr := fs.String("listen", "", "Listen address (default: from config, else "+vault.DefaultListenAddr+")")
	readOnly := fs.Bool("read-only", false, "Reject mutating API calls")
	token := fs.String("token", "", "Bearer token for API/WS access (default: from config)")
	pushEnabled := fs.Bool("push", false, "Enable web push notifications (auto-generates VAPID keys per profile)")
	pushVAPIDSubject := fs.String("push-vapid-subject", "mailto:convault@localhost", "VAPID subject used for web push notifications")

	fs.Usage = func() {
		fmt.Println("Usage: convault serve [options]")
		fmt.Println()
		fmt.Println("Start the local web server for this profile's store.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  convault serve")
		fmt.Println("  convault -p work serve --listen 127.0.0.1:9000")
		fmt.Println("  convault serve --read-only")
		fmt.Println("  convault serve --push --token secret")
	}

	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "Error: unexpected arguments: %v\n", fs.Args())
		os.Exit(1)
	}

	initLogging()
	defer logging.Shutdown()

	effectiveProfile := vault.GetEffectiveProfile(profile)
	cfg, cfgErr := vault.LoadUserConfig()
	if cfgErr != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", cfgErr)
	}
	webCfg := cfg.GetWebSettings()

	resolvedListen := *listenAddr
	if resolvedListen == "" {
		resolvedListen = webCfg.GetListenAddr()
	}
	resolvedToken := *token
	if resolvedToken == "" {
		resolvedToken = webCfg.Token
	}
	resolvedReadOnly := *readOnly || webCfg.ReadOnly

	resolvedPushSubject := *pushVAPIDSubject
	resolvedPushPublic := ""
	resolvedPushPrivate := ""
	if *pushEnabled && webCfg.GetPushEnabled() {
		var generated bool
		var err error
		resolvedPushPublic, resolvedPushPrivate, generated, err = web.EnsurePushVAPIDKeys(effectiveProfile, resolvedPushSubject)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to prepare web push keys: %v\n", err)
			os.Exit(1)
		}
		if generated {
			fmt.Println("Push keys: generated new VAPID keypair for profile")
		} else {
			fmt.Println("Push keys: using existing VAPID keypair for profile")
		}
	}

	store := openStore(profile)
	defer store.Close()

	server := web.NewServer(web.Config{
		ListenAddr:            resolvedListen,
		Profile:               effectiveProfile,
		ReadOnly:              resolvedReadOnly,
		Token:                 resolvedToken,
		PushVAPIDPublicKey:    resolvedPushPublic,
		PushVAPIDPrivateKey:   resolvedPushPrivate,
		PushVAPIDSubject:      resolvedPushSubject,
		NotifyOnSyncCompleted: webCfg.NotifyOnSyncCompleted,
	}, store)

	fmt.Printf("Serving profile '%s' on http://%s", effectiveProfile, resolvedListen)
	if resolvedReadOnly {
		fmt.Print(" (read-only)")
	}
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop.")

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: web server: %v\n", err)
			os.Exit(1)
		}
	case <-sigChan:
		fmt.Println("\nShutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: shutdown: %v\n", err)
			os.Exit(1)
		}
	}
}
