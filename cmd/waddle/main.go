// Package main is the entry point for the waddle chat core.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/waddle-social/app/internal/buildinfo"
	"github.com/waddle-social/app/internal/config"
	"github.com/waddle-social/app/internal/connection"
	"github.com/waddle-social/app/internal/eventbus"
	"github.com/waddle-social/app/internal/faketransport"
	"github.com/waddle-social/app/internal/mam"
	"github.com/waddle-social/app/internal/message"
	"github.com/waddle-social/app/internal/muc"
	"github.com/waddle-social/app/internal/presence"
	"github.com/waddle-social/app/internal/roster"
	"github.com/waddle-social/app/internal/waddlestore"

	_ "github.com/mattn/go-sqlite3"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if flag.NArg() == 0 {
		printHelp()
		return
	}

	switch flag.Arg(0) {
	case "serve":
		runServe(logger, *configPath)
	case "version":
		fmt.Println(buildinfo.String())
		for k, v := range buildinfo.Info() {
			fmt.Printf("  %-12s %s\n", k+":", v)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", flag.Arg(0))
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Println("waddle - event-driven XMPP chat core")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve    Start the core against an in-process fake transport")
	fmt.Println("  version  Show version")
	fmt.Println()
	fmt.Println("Flags:")
	flag.PrintDefaults()
}

// runServe wires the bus, storage, every manager, and a faketransport
// harness, and blocks until SIGINT/SIGTERM. Without a real TLS/SASL
// stack (out of scope, see spec.md §1), faketransport stands in for the
// server so the managers can be driven end to end.
func runServe(logger *slog.Logger, configPath string) {
	logger.Info("starting waddle", "version", buildinfo.Version, "commit", buildinfo.GitCommit)

	cfgPath, err := config.FindConfig(configPath)
	var cfg *config.Config
	if err != nil {
		logger.Warn("no config file found, using defaults", "error", err)
		cfg = config.Default()
	} else {
		cfg, err = config.Load(cfgPath)
		if err != nil {
			logger.Error("failed to load config", "path", cfgPath, "error", err)
			os.Exit(1)
		}
		logger.Info("config loaded", "path", cfgPath)
	}

	if level, err := config.ParseLogLevel(cfg.LogLevel); err == nil {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level:       level,
			ReplaceAttr: config.ReplaceLogLevelNames,
		}))
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		logger.Error("failed to create data directory", "path", cfg.DataDir, "error", err)
		os.Exit(1)
	}

	dbPath := filepath.Join(cfg.DataDir, "waddle.db")
	store, err := waddlestore.Open(dbPath, logger)
	if err != nil {
		logger.Error("failed to open store", "path", dbPath, "error", err)
		os.Exit(1)
	}
	defer store.Close()
	logger.Info("store opened", "path", dbPath)

	bus := eventbus.New(cfg.Bus.BufferSize)
	defer bus.Close()

	transport := faketransport.New(bus, nil, logger)
	connMgr := connection.New(bus, transport, connection.Config{
		JID:                  cfg.JID,
		MaxReconnectAttempts: cfg.Connection.MaxReconnectAttempts,
	}, logger)

	rosterMgr := roster.New(bus, store, logger)
	presenceMgr := presence.New(bus, logger)
	messageMgr := message.New(bus, store, cfg.JID, logger)
	mucMgr := muc.New(bus, store, cfg.JID, logger)
	mamMgr := mam.New(bus, store, cfg.JID, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, run := range []func(context.Context) error{
		rosterMgr.Run, presenceMgr.Run, messageMgr.Run, mucMgr.Run, mamMgr.Run,
	} {
		go func(run func(context.Context) error) {
			if err := run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("manager stopped unexpectedly", "error", err)
			}
		}(run)
	}

	if err := connMgr.Connect(ctx); err != nil {
		logger.Error("connect failed", "error", err)
		os.Exit(1)
	}
	logger.Info("connected", "jid", cfg.JID)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutdown signal received")
	_ = connMgr.Disconnect(context.Background())
	cancel()
	logger.Info("waddle stopped")
}
