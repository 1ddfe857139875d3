// Package main is the entry point for the scriptdeck server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scriptdeck/scriptdeck/internal/catalog"
	"github.com/scriptdeck/scriptdeck/internal/config"
	"github.com/scriptdeck/scriptdeck/internal/database"
	"github.com/scriptdeck/scriptdeck/internal/router"
	"github.com/scriptdeck/scriptdeck/internal/services"
	"github.com/scriptdeck/scriptdeck/internal/version"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("scriptdeck %s\n", version.Version)
		fmt.Printf("Build Time: %s\n", version.BuildTime)
		fmt.Printf("Git Commit: %s\n", version.GitCommit)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("Warning: Could not load config from %s: %v", *configPath, err)
		log.Println("Using default configuration...")
		cfg = config.Default()
	}

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}()

	if err := db.Migrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// An unreadable scan root is a configuration error, not something to
	// limp along with.
	cat, err := catalog.New(cfg.Scripts, cfg.Categories)
	if err != nil {
		log.Fatalf("Failed to open scripts directory %s: %v", cfg.Scripts.Root, err)
	}
	if _, err := cat.Refresh(); err != nil {
		log.Fatalf("Initial catalog scan failed: %v", err)
	}

	historyService := services.NewHistoryService(db)
	executorService := services.NewExecutorService(historyService, cfg, cat.Root())
	schedulerService := services.NewSchedulerService(db, executorService, cat, cfg.Scheduler.GetPollInterval())
	authService := services.NewAuthService(db, cfg)

	if err := authService.EnsureAdminUser(); err != nil {
		log.Fatalf("Failed to ensure admin user: %v", err)
	}
	if cfg.Admin.Password == "changeme" {
		log.Println("WARNING: admin password is the default 'changeme'; set admin.password in config.yaml")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go schedulerService.Start(ctx)

	r := router.New(cat, authService, executorService, historyService, schedulerService)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("scriptdeck %s starting on %s", version.Version, addr)
	log.Printf("Scripts: %s (%d cataloged)", cat.Root(), cat.Count())

	if err := serve(ctx, &http.Server{Addr: addr, Handler: r}); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Println("Server stopped")
}

// serve runs the HTTP server until ctx is canceled, then drains in-flight
// requests before returning.
func serve(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
