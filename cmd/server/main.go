package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/liamcoop/ruleengine/integrations/eventbus"
	"github.com/liamcoop/ruleengine/integrations/httpcall"
	"github.com/liamcoop/ruleengine/internal/config"
	"github.com/liamcoop/ruleengine/internal/logger"
	"github.com/liamcoop/ruleengine/internal/metrics"
	"github.com/liamcoop/ruleengine/multitenantengine"
	"github.com/liamcoop/ruleengine/rules"
	_ "github.com/lib/pq"
)

func openDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if err := logger.Setup(ctx, cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Shutdown(ctx)

	var db *sql.DB
	if cfg.Database.URL != "" {
		db, err = openDB(cfg.Database)
		if err != nil {
			logger.Fatal("database unavailable", "error", err)
		}
		defer db.Close()
	} else {
		logger.Logger.Warn("DATABASE_URL not set, tenants and rules are kept in memory")
	}

	publisher, err := eventbus.New(ctx, cfg.Events, logger.Logger)
	if err != nil {
		logger.Fatal("failed to connect event bus", "type", cfg.Events.Type, "error", err)
	}
	defer publisher.Close()

	collaborators := rules.Collaborators{
		Services: httpcall.New(cfg.Services, nil, logger.Logger),
		Events:   publisher,
		Logger:   logger.RuleLogger(),
	}

	engineManager := multitenantengine.NewMultiTenantEngineManager(db,
		multitenantengine.WithLogger(logger.Logger),
		multitenantengine.WithEngineOptions(rules.WithCollaborators(collaborators)),
	)
	if err := engineManager.LoadAllTenants(); err != nil {
		logger.Fatal("failed to load tenants", "error", err)
	}

	server := NewServer(db, engineManager, metrics.New(), cfg.Server)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Server.Port, "tenants", len(engineManager.ListTenants()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed to start", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	logger.Info("server stopped")
}
