package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/fintrackapp/fintrack/internal/auth"
	"github.com/fintrackapp/fintrack/internal/config"
	"github.com/fintrackapp/fintrack/internal/engine"
	"github.com/fintrackapp/fintrack/internal/model"
	"github.com/fintrackapp/fintrack/internal/remote"
	"github.com/fintrackapp/fintrack/internal/store"
)

// app bundles the wired-up components shared by the commands.
type app struct {
	cfg    *config.Config
	creds  *auth.Credentials
	store  *store.Store
	engine *engine.Engine
	gate   *engine.Gate
	logger *log.Logger
}

// newApp loads config, opens the store, and builds the engine. logFile
// enables rotating file logs (daemon mode); pass false for one-shot
// commands.
func newApp(ctx context.Context, useLogFile bool) (*app, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if cfg.APIBaseURL == "" {
		return nil, fmt.Errorf("api_base_url is not configured")
	}

	tok, err := token()
	if err != nil {
		return nil, err
	}

	creds, err := auth.FromToken(tok, deviceID())
	if err != nil {
		return nil, err
	}

	logger := newLogger(cfg, useLogFile)

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := st.InitSchema(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}

	// A different user's cache must not leak into this session.
	if err := st.EnsureOwner(ctx, creds.UserID); err != nil {
		_ = st.Close()
		return nil, err
	}

	client, err := remote.NewClient(&remote.Config{
		BaseURL: cfg.APIBaseURL,
		Token: func(context.Context) (string, error) {
			return creds.Token, nil
		},
		MaxTries: cfg.HTTPMaxTries,
		Logger:   logger,
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	gate := engine.NewGate()
	gate.SetVerified(creds.Verified)
	gate.SetOnline(true)

	eng, err := engine.New(&engine.Config{
		Store:    st,
		Remote:   client,
		Gate:     gate,
		Interval: cfg.SyncInterval,
		Logger:   logger,
		OnPermanentFailure: func(table model.Table, op model.Op, recordID string, err error) {
			logger.Printf("PERMANENT FAILURE: %s %s/%s was not saved remotely: %v",
				op, table, recordID, err)
		},
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &app{
		cfg:    cfg,
		creds:  creds,
		store:  st,
		engine: eng,
		gate:   gate,
		logger: logger,
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Printf("Error closing store: %v", err)
	}
}

// newLogger builds the shared logger. Daemon mode tees to a size-capped
// rotating file when one is configured.
func newLogger(cfg *config.Config, useLogFile bool) *log.Logger {
	var w io.Writer = os.Stderr
	if useLogFile && cfg.LogFile != "" {
		w = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     14, // days
		})
	}
	return log.New(w, "[fintrack] ", log.LstdFlags)
}

// deviceID identifies this device to the realtime channel. Hostname is
// stable and good enough; collisions only cost an extra self-notification.
func deviceID() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "unknown-device"
}
