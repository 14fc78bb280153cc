package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dgnsrekt/flow_shell/internal/api"
	"github.com/dgnsrekt/flow_shell/internal/browser"
	"github.com/dgnsrekt/flow_shell/internal/config"
	"github.com/dgnsrekt/flow_shell/internal/controller"
	"github.com/dgnsrekt/flow_shell/internal/engine"
	"github.com/dgnsrekt/flow_shell/internal/events"
	"github.com/dgnsrekt/flow_shell/internal/journal"
	"github.com/dgnsrekt/flow_shell/internal/metrics"
	"github.com/dgnsrekt/flow_shell/internal/netutil"
	"github.com/dgnsrekt/flow_shell/internal/notify"
	"github.com/dgnsrekt/flow_shell/internal/registry"
	"github.com/dgnsrekt/flow_shell/internal/session"
	"github.com/dgnsrekt/flow_shell/internal/snapshot"
	"github.com/dgnsrekt/flow_shell/internal/types"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		if _, writeErr := io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n"); writeErr != nil {
			slog.Debug("logger setup stderr write failed", "error", writeErr)
		}
		os.Exit(1)
	}

	slog.Info("flowshell config loaded",
		"bind_addr", cfg.BindAddr,
		"port_auto_fallback", cfg.PortAutoFallback,
		"port_candidates", cfg.PortCandidates,
		"engine", cfg.Engine,
		"session_backend", cfg.SessionBackend,
		"autosave_interval", cfg.AutoSaveInterval,
		"restore_on_start", cfg.RestoreOnStart,
		"layout_file", cfg.LayoutFile,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)

	if err := run(cfg); err != nil {
		slog.Error("flowshell failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Engine == engine.NameChromedp && cfg.LaunchBrowser {
		launcher := engine.NewLauncher(engine.LaunchConfig{
			BrowserPath: cfg.ChromiumPath,
			CDPAddress:  cfg.CDPAddress,
			CDPPort:     cfg.CDPPort,
			ProfileDir:  cfg.ProfileDir,
			Headless:    cfg.Headless,
		})
		if err := launcher.Launch(ctx); err != nil {
			return err
		}
		defer launcher.Stop()
	}

	// The engine outlives the signal context so shutdown can still capture.
	eng, err := engine.Open(context.Background(), engine.Options{Name: cfg.Engine, CDPURL: cfg.CDPURL(), Headless: cfg.Headless})
	if err != nil {
		return err
	}
	defer func() {
		if err := eng.Close(); err != nil {
			slog.Debug("engine close failed", "error", err)
		}
	}()
	slog.Info("engine ready", "engine", eng.Name())

	broker := events.NewBroker()
	b := browser.New(registry.New(), eng, broker)
	defer b.Close()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	if c, ok := store.(io.Closer); ok {
		defer func() {
			if err := c.Close(); err != nil {
				slog.Debug("session store close failed", "error", err)
			}
		}()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg, func() metrics.Counts { return controller.TopologyCounts(b) })

	sessions := session.NewManager(b, store, session.Options{
		SaveRetries: cfg.SaveRetries,
		RetryDelay:  cfg.SaveRetryDelay,
		Publisher:   broker,
		Recorder:    m,
	})
	svc := controller.NewService(b, sessions)

	bg, cancelBG := context.WithCancel(context.Background())
	defer cancelBG()
	go broker.Consume(bg, m.ObserveEvent)
	var jrnl *journal.Journal
	if cfg.JournalDir != "" {
		jrnl = journal.New(cfg.JournalDir)
		go jrnl.Run(bg, broker)
	}
	if cfg.NotifyURL != "" {
		rc := retryablehttp.NewClient()
		rc.RetryMax = 3
		rc.Logger = slog.Default()
		go notify.Run(bg, broker, rc.StandardClient(), cfg.NotifyURL)
	}

	if err := openInitialTopology(ctx, cfg, b, svc); err != nil {
		return err
	}
	go sessions.RunAutoSave(bg, cfg.AutoSaveInterval)

	ln, err := netutil.Listen(cfg.BindAddr, cfg.PortCandidates, cfg.PortAutoFallback)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler: api.NewServer(svc, api.Options{
			Broker:         broker,
			Metrics:        m,
			Gatherer:       reg,
			RateLimitRPS:   cfg.RateLimitRPS,
			RateLimitBurst: cfg.RateLimitBurst,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		addr := ln.Addr().String()
		slog.Info("flowshell listening", "addr", addr, "docs", "http://"+addr+"/docs")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("flowshell shutdown failed", "error", err)
	}
	cancelBG()

	if cfg.AutoSaveInterval > 0 {
		if _, err := sessions.SaveAs(shutdownCtx, sessions.AutoSaveID(), session.AutoSaveName); err != nil {
			slog.Warn("final auto-save failed", "error", err)
		}
	}
	if jrnl != nil {
		if err := jrnl.Close(); err != nil {
			slog.Debug("journal close failed", "error", err)
		}
	}
	return nil
}

func openStore(cfg *config.Config) (snapshot.Store, error) {
	switch cfg.SessionBackend {
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(cfg.SessionDB), 0o755); err != nil {
			return nil, err
		}
		return snapshot.NewSQLiteStore(cfg.SessionDB)
	default:
		return snapshot.NewFileStore(cfg.SessionDir)
	}
}

// openInitialTopology restores the last session, applies the layout file or
// opens one default window, in that order of preference.
func openInitialTopology(ctx context.Context, cfg *config.Config, b *browser.Browser, svc *controller.Service) error {
	if cfg.RestoreOnStart {
		res, ok, err := svc.RestoreLatest(ctx)
		switch {
		case err != nil && types.HasCode(err, types.CodePartialRestore):
			slog.Warn("last session partially restored", "session_id", res.SessionID, "restored", res.Succeeded(), "windows", len(res.Windows))
			return nil
		case err != nil:
			slog.Warn("last session restore failed", "error", err)
		case ok:
			slog.Info("last session restored", "session_id", res.SessionID, "name", res.Name)
			return nil
		}
	}

	if cfg.LayoutFile != "" {
		if _, err := os.Stat(cfg.LayoutFile); err == nil {
			layout, err := config.LoadLayout(cfg.LayoutFile)
			if err != nil {
				return err
			}
			opened, err := svc.ApplyLayout(ctx, layout)
			if err != nil {
				return err
			}
			slog.Info("layout applied", "file", cfg.LayoutFile, "windows", len(opened))
			return nil
		}
		slog.Warn("layout file not found, opening default window", "file", cfg.LayoutFile)
	}

	w, _, err := b.OpenDefaultWindow(ctx, cfg.StartURL)
	if err != nil {
		return err
	}
	slog.Info("default window opened", "window_id", w.ID(), "url", cfg.StartURL)
	return nil
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
