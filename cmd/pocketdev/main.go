// Command pocketdev runs the mobile bridge: an authenticated HTTP and
// websocket surface over a local coding agent and its workspace.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odvcencio/pocketdev/pkg/agent"
	"github.com/odvcencio/pocketdev/pkg/auth"
	"github.com/odvcencio/pocketdev/pkg/config"
	"github.com/odvcencio/pocketdev/pkg/events"
	"github.com/odvcencio/pocketdev/pkg/logging"
	"github.com/odvcencio/pocketdev/pkg/model"
	"github.com/odvcencio/pocketdev/pkg/persist"
	"github.com/odvcencio/pocketdev/pkg/ratelimit"
	"github.com/odvcencio/pocketdev/pkg/registry"
	"github.com/odvcencio/pocketdev/pkg/server"
	"github.com/odvcencio/pocketdev/pkg/tools"
	"github.com/odvcencio/pocketdev/pkg/workspace"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "pocketdev: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath    = flag.String("config", defaultConfigPath(), "path to config file")
		workspacePath = flag.String("workspace", "", "workspace root (overrides config)")
		bindAddr      = flag.String("bind", "", "listen address (overrides config)")
		showVersion   = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println("pocketdev", version)
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *workspacePath != "" {
		cfg.Workspace = *workspacePath
	}
	if *bindAddr != "" {
		cfg.Server.BindAddress = *bindAddr
	}

	logger, err := logging.NewLogger(filepath.Join(cfg.DataDir, "logs"))
	if err != nil {
		return err
	}
	defer logger.Close()

	if cfg.Auth.JWTSecret == "" {
		secret, err := auth.GeneratePairingKey()
		if err != nil {
			return err
		}
		cfg.Auth.JWTSecret = secret
		logger.Warn(logging.CategoryAuth, "ephemeral_jwt_secret", "tokens will not survive a restart", nil)
	}
	if cfg.Auth.PairingKey == "" {
		key, err := auth.GeneratePairingKey()
		if err != nil {
			return err
		}
		cfg.Auth.PairingKey = key
		// Printed once so the operator can pair a device against a fresh install.
		fmt.Printf("Pairing key: %s\n", key)
	}

	root, err := workspace.NewRoot(cfg.DefaultWorkspace())
	if err != nil {
		return fmt.Errorf("invalid workspace: %w", err)
	}

	reg := registry.New()
	logs := registry.NewLogBook()
	store := persist.New(root.Startup(), reg, logs, logger)
	if err := store.Load(); err != nil {
		return err
	}

	hub := events.NewHub()
	listener := events.NewListener(reg, hub)
	exec := tools.NewExecutor(root, logger)
	gen := model.NewClient(cfg.Model.BaseURL, cfg.Model.APIKey)
	runner := agent.NewRunner(gen, exec, reg, logs, store, listener, logger,
		cfg.Model.Default, cfg.Model.Temperature)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.PairingKey, logger)
	limiter := ratelimit.New(cfg.RateLimit.RequestsPerMinute)

	srv := server.New(server.Options{
		Runner:   runner,
		Executor: exec,
		Tokens:   tokens,
		Limiter:  limiter,
		Hub:      hub,
		Listener: listener,
		Registry: reg,
		Logs:     logs,
		Store:    store,
		Logger:   logger,
		Version:  version,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return srv.ListenAndServe(ctx, cfg.Server.BindAddress)
	})

	group.Go(func() error {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				limiter.Prune()
			}
		}
	})

	err = group.Wait()

	// Final snapshot so a clean shutdown never loses state.
	if saveErr := store.Save(); saveErr != nil {
		logger.Warn(logging.CategoryStorage, "shutdown_save_failed", saveErr.Error(), nil)
	}
	logger.Info(logging.CategorySession, "shutdown", "", nil)
	return err
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "pocketdev.yaml"
	}
	return filepath.Join(home, ".pocketdev", "config.yaml")
}
