package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/pairwatch/api"
	"github.com/hazyhaar/pairwatch/browser"
	"github.com/hazyhaar/pairwatch/config"
	"github.com/hazyhaar/pairwatch/discovery"
	"github.com/hazyhaar/pairwatch/identlog"
	"github.com/hazyhaar/pairwatch/orchestrator"
	"github.com/hazyhaar/pairwatch/snapshot"
	"github.com/hazyhaar/pairwatch/state"
	"github.com/hazyhaar/pairwatch/store"
)

const version = "0.1.0"

func newDiscoverCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "Append new identifiers from the list page to the identifier log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger := cc.config, cc.logger.Logger
			mgr, err := startBrowser(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer mgr.Close()
			return runDiscover(cmd.Context(), cfg, mgr, logger)
		},
	}
}

func newProcessCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "process",
		Short: "Turn logged identifiers into stored records, in log order",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger := cc.config, cc.logger.Logger
			unlock, err := lockProcessing(cfg)
			if err != nil {
				return err
			}
			defer unlock()

			mgr, err := startBrowser(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer mgr.Close()
			return runProcess(cmd.Context(), cfg, mgr, logger)
		},
	}
}

func newServeCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the last identifier and stored records over HTTP and MCP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cc.config, cc.logger.Logger)
		},
	}
}

func newRunCommand(cc *commandContext) *cobra.Command {
	var noServe bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run discovery, processing and the service in one process",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger := cc.config, cc.logger.Logger
			unlock, err := lockProcessing(cfg)
			if err != nil {
				return err
			}
			defer unlock()

			mgr, err := startBrowser(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer mgr.Close()

			tasks := []func(context.Context) error{
				func(ctx context.Context) error { return runDiscover(ctx, cfg, mgr, logger) },
				func(ctx context.Context) error { return runProcess(ctx, cfg, mgr, logger) },
			}
			if !noServe {
				tasks = append(tasks, func(ctx context.Context) error { return runServe(ctx, cfg, logger) })
			}
			return runAll(cmd.Context(), tasks...)
		},
	}
	cmd.Flags().BoolVar(&noServe, "no-serve", false, "Do not start the HTTP service")
	return cmd
}

func startBrowser(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*browser.Manager, error) {
	mgr := browser.NewManager(browser.Config{
		Remote:           cfg.Browser.Remote,
		Bin:              cfg.Browser.Bin,
		UserDataDir:      cfg.Browser.UserDataDir,
		Headless:         cfg.Browser.Headless,
		Stealth:          cfg.Browser.Stealth,
		ResourceBlocking: cfg.Browser.ResourceBlocking,
		PopupSelector:    cfg.Processing.PopupSelector,
		NavigateTimeout:  cfg.Browser.NavigateTimeout,
		Logger:           logger,
	})
	if err := mgr.Start(ctx); err != nil {
		return nil, err
	}
	return mgr, nil
}

// lockProcessing takes the single-instance lock of the processing loop.
// Two processors sharing a cursor would race on the same entries.
func lockProcessing(cfg *config.Config) (func(), error) {
	path := cfg.Paths.LockPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("pairwatch: create %s: %w", filepath.Dir(path), err)
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("pairwatch: acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("pairwatch: another processing instance holds %s", path)
	}
	return func() { _ = lock.Unlock() }, nil
}

func runDiscover(ctx context.Context, cfg *config.Config, mgr *browser.Manager, logger *slog.Logger) error {
	log, err := identlog.Open(cfg.Paths.IdentifierLog)
	if err != nil {
		return err
	}
	lister := browser.NewLister(mgr, cfg.Discovery.ListURL, cfg.Discovery.PageWait)
	defer lister.Close()

	eng := discovery.New(discovery.Config{
		Selector:    cfg.Discovery.Selector,
		Prefix:      cfg.Discovery.Prefix,
		Interval:    cfg.Discovery.Interval,
		Multiplier:  cfg.Discovery.Multiplier,
		MaxInterval: cfg.Discovery.MaxInterval,
	}, lister, log, logger)
	return eng.Run(ctx)
}

func runProcess(ctx context.Context, cfg *config.Config, mgr *browser.Manager, logger *slog.Logger) error {
	log, err := identlog.Open(cfg.Paths.IdentifierLog)
	if err != nil {
		return err
	}
	st, err := store.New(cfg.Paths.StoreDir)
	if err != nil {
		return err
	}
	db, err := state.Open(cfg.Paths.StateDB)
	if err != nil {
		return err
	}
	defer db.Close()

	opts := []orchestrator.Option{orchestrator.WithLogger(logger)}
	if cfg.Processing.Snapshots {
		opts = append(opts, orchestrator.WithSnapshots(snapshot.NewWriter(cfg.Paths.SnapshotDir)))
	}

	p := cfg.Processing
	orch := orchestrator.New(orchestrator.Config{
		PageURL:        p.PageURL,
		RegionSelector: p.RegionSelector,
		LoadDelay:      p.LoadDelay,
		PopupTimeout:   p.PopupTimeout,
		SettleDelay:    p.SettleDelay,
		SuccessDelay:   p.SuccessDelay,
		IdleDelay:      p.IdleDelay,
		Multiplier:     p.Multiplier,
		MaxBackoff:     p.MaxBackoff,
		MaxAttempts:    p.MaxAttempts,
	}, log, st, db, mgr, opts...)
	return orch.Run(ctx)
}

func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	log, err := identlog.Open(cfg.Paths.IdentifierLog)
	if err != nil {
		return err
	}
	st, err := store.New(cfg.Paths.StoreDir)
	if err != nil {
		return err
	}
	db, err := state.Open(cfg.Paths.StateDB)
	if err != nil {
		return err
	}
	defer db.Close()

	svc := api.New(log, st, db, logger)

	var mcpSrv *mcp.Server
	if cfg.API.MCP {
		mcpSrv = mcp.NewServer(&mcp.Implementation{Name: "pairwatch", Version: version}, nil)
		svc.RegisterMCP(mcpSrv)
	}

	srv := &http.Server{
		Addr:              cfg.API.Addr,
		Handler:           svc.Router(mcpSrv),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("pairwatch: serving", "addr", cfg.API.Addr, "mcp", cfg.API.MCP)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("pairwatch: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("pairwatch: shutdown: %w", err)
	}
	return nil
}

// runAll runs every task until the first one returns, cancels the rest and
// waits for them. It returns the first task's error.
func runAll(ctx context.Context, tasks ...func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg    sync.WaitGroup
		once  sync.Once
		first error
	)
	for _, task := range tasks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := task(ctx)
			once.Do(func() {
				first = err
				cancel()
			})
		}()
	}
	wg.Wait()

	if errors.Is(first, context.Canceled) {
		return nil
	}
	return first
}
