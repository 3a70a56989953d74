// cmd/web/main.go
//
// Gridkit – HTTP entry point.
//
// Start-up
// --------
//
//  1. Load configuration (.env → conf/global.yaml → GRIDKIT_ env).
//
//  2. Start the rotating logger (tees to console when running in a TTY).
//
//  3. Open the record-store DB and wrap it in store.Store.
//
//  4. Load form definitions from components/*/forms/*.yaml.
//
//  5. Build the dialog router and serve it with hardened timeouts.
//
//  6. On SIGINT/SIGTERM, drain in-flight submissions before exiting.
//
// Large comment blocks are framed by blank “//” lines; inline comments use
// a single “//”.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/yanizio/gridkit/internal/config"
	"github.com/yanizio/gridkit/internal/database"
	"github.com/yanizio/gridkit/internal/form"
	"github.com/yanizio/gridkit/internal/logger"
	"github.com/yanizio/gridkit/internal/server"
	"github.com/yanizio/gridkit/internal/store"
)

// runningInTTY returns true when stdout is a character device.
func runningInTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logOut, err := logger.New(logger.Options{Dir: cfg.Log.Dir, Tee: cfg.Log.Tee || runningInTTY(), Level: cfg.Log.Level})
	if err != nil {
		log.Fatalf("start logger: %v", err)
	}
	defer logOut.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logOut); err != nil {
		logOut.Fatalw("gridkit stopped", "err", err)
	}
}

func run(ctx context.Context, cfg *config.Config, l *zap.SugaredLogger) error {
	//
	// ── 1.  Record store ────────────────────────────────────────────────
	//
	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	db, err := database.Open(openCtx, cfg.Database.DSN, database.Options{
		MaxOpen: cfg.Database.MaxOpen,
		MaxIdle: cfg.Database.MaxIdle,
	})
	cancel()
	if err != nil {
		return err
	}
	defer db.Close()

	st, err := store.New(db, cfg.Database.Table)
	if err != nil {
		return err
	}
	l.Infow("record store online", "table", cfg.Database.Table)

	//
	// ── 2.  Form definitions ────────────────────────────────────────────
	//
	forms := form.NewSet()
	if err := forms.LoadDirs(cfg.FormDirs()); err != nil {
		return err
	}
	if _, ok := forms.Get(cfg.Forms.ID); !ok {
		l.Warnw("dialog form not found, accepting raw input", "form", cfg.Forms.ID)
	}
	l.Infow("forms loaded", "count", forms.Len())

	//
	// ── 3.  Router and server ───────────────────────────────────────────
	//
	srv := server.New(cfg.HTTP.ListenAddr, server.Router(server.Options{
		Forms:      forms,
		FormID:     cfg.Forms.ID,
		Store:      st,
		Logger:     l,
		ForceHTTPS: cfg.HTTP.ForceHTTPS,
	}), server.Timeouts{
		Read:  cfg.HTTP.ReadTimeout,
		Write: cfg.HTTP.WriteTimeout,
		Idle:  cfg.HTTP.IdleTimeout,
	})

	errc := make(chan error, 1)
	go func() {
		l.Infow("listening", "addr", cfg.HTTP.ListenAddr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	l.Infow("shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}
