// Command revault runs the spaced-repetition scheduling service over a
// markdown note vault: it watches the vault, keeps queues and cards in sync
// and serves the review API over HTTP.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/conorfennell/revault/internal/archive"
	"github.com/conorfennell/revault/internal/cards"
	"github.com/conorfennell/revault/internal/domain"
	"github.com/conorfennell/revault/internal/fsrs"
	"github.com/conorfennell/revault/internal/queues"
	"github.com/conorfennell/revault/internal/reconcile"
	"github.com/conorfennell/revault/internal/session"
	"github.com/conorfennell/revault/internal/storage"
	"github.com/conorfennell/revault/internal/vault"
	"github.com/conorfennell/revault/internal/web"
)

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		exitUsage(err)
	}

	log := newLogger(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg, log); err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(cfg Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var dir *vault.Dir
	var err error
	if cfg.GitURL != "" {
		dir, err = vault.SyncGit(cfg.GitURL, cfg.VaultDir, log)
	} else {
		dir, err = vault.NewDir(cfg.VaultDir)
	}
	if err != nil {
		return err
	}

	store, err := storage.Open(storage.NewFileBackend(cfg.DataPath, cfg.MaxBackups), cfg.Debounce, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("closing store", "error", err)
		}
	}()

	var arch *archive.DB
	if cfg.ArchivePath != "" {
		arch, err = archive.Open(cfg.ArchivePath)
		if err != nil {
			// The archive is a statistics mirror; the scheduler works without it.
			log.Warn("review archive unavailable", "path", cfg.ArchivePath, "error", err)
		} else {
			defer arch.Close()
		}
	}

	engine, err := fsrs.New(storedSettings(store).DesiredRetention)
	if err != nil {
		return err
	}

	cardMgr := cards.New(store, engine, arch, log)
	queueMgr := queues.New(store, cardMgr, dir, arch, log)
	sessionMgr := session.New(queueMgr, cardMgr, dir, log)
	reconciler := reconcile.New(store, cardMgr, dir, arch, log)

	watcher, err := vault.NewWatcher(dir, log)
	if err != nil {
		return err
	}
	go watcher.Run(ctx)
	go reconciler.Run(ctx, watcher.Events())

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           web.NewServer(queueMgr, cardMgr, sessionMgr, reconciler, log),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.Listen, "vault", dir.Root())
		serverErr <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "error", err)
	}
	return nil
}

func storedSettings(store *storage.Store) domain.Settings {
	var s domain.Settings
	store.View(func(doc *domain.Document) { s = doc.Settings })
	return s
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
