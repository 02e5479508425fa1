package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/above-avg/YourOwnRAG/internal/apiclient"
	"github.com/above-avg/YourOwnRAG/internal/config"
	"github.com/above-avg/YourOwnRAG/internal/docs"
	"github.com/above-avg/YourOwnRAG/internal/lockfile"
	"github.com/above-avg/YourOwnRAG/internal/session"
	"github.com/above-avg/YourOwnRAG/internal/settings"
	"github.com/above-avg/YourOwnRAG/internal/statestore"
)

const stateDBName = "state.db"

// app is the wired-up client: one transport, one state database, one session.
type app struct {
	cfg      *config.Config
	cfgPath  string
	log      *slog.Logger
	client   *apiclient.Client
	store    *statestore.Store
	lock     *lockfile.Lock
	settings *settings.Store
	session  *session.Manager
	docs     *docs.Orchestrator
	models   *config.ModelCatalog
}

// openApp loads config, takes the instance lock, opens the state database and
// wires every component. Callers must Close.
func openApp(ctx context.Context, cfgPath string) (*app, error) {
	cfgPath = filepath.Clean(cfgPath)
	cfg, err := config.LoadOrInit(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := buildLogger(cfg)
	stateDir := cfg.EffectiveStateDir(cfgPath)

	lock, err := lockfile.Acquire(stateDir)
	if err != nil {
		return nil, err
	}

	store, err := statestore.Open(filepath.Join(stateDir, stateDBName))
	if err != nil {
		_ = lock.Release()
		return nil, fmt.Errorf("open state store: %w", err)
	}

	client, err := apiclient.New(cfg.BackendBaseURL, time.Duration(cfg.EffectiveRequestTimeoutSeconds())*time.Second)
	if err != nil {
		_ = store.Close()
		_ = lock.Release()
		return nil, err
	}

	models, err := config.LoadModelCatalog(filepath.Join(stateDir, "models.yaml"))
	if err != nil {
		_ = store.Close()
		_ = lock.Release()
		return nil, err
	}

	st, err := settings.NewStore(log, store)
	if err != nil {
		_ = store.Close()
		_ = lock.Release()
		return nil, err
	}
	st.Load(ctx)

	mgr, err := session.NewManager(session.Options{
		Logger:      log,
		Client:      client,
		IDs:         store,
		SelectModel: func() string { return st.Current().DefaultModel },
	})
	if err != nil {
		_ = store.Close()
		_ = lock.Release()
		return nil, err
	}
	if err := mgr.Bootstrap(ctx); err != nil {
		_ = store.Close()
		_ = lock.Release()
		return nil, err
	}

	orch, err := docs.NewOrchestrator(docs.Options{
		Logger:        log,
		Client:        client,
		MaxConcurrent: cfg.EffectiveUploadConcurrency(),
	})
	if err != nil {
		_ = store.Close()
		_ = lock.Release()
		return nil, err
	}

	return &app{
		cfg:      cfg,
		cfgPath:  cfgPath,
		log:      log,
		client:   client,
		store:    store,
		lock:     lock,
		settings: st,
		session:  mgr,
		docs:     orch,
		models:   models,
	}, nil
}

func (a *app) Close() {
	if a == nil {
		return
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.lock != nil {
		_ = a.lock.Release()
	}
}

func buildLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.TrimSpace(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.TrimSpace(cfg.LogFormat) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
