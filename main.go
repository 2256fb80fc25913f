package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/GGPrompts/PortfolioHub-sub010/internal/audit"
	"github.com/GGPrompts/PortfolioHub-sub010/internal/config"
	"github.com/GGPrompts/PortfolioHub-sub010/internal/gateway"
	"github.com/GGPrompts/PortfolioHub-sub010/internal/logging"
	"github.com/GGPrompts/PortfolioHub-sub010/internal/security"
	"github.com/GGPrompts/PortfolioHub-sub010/internal/session"
	"github.com/GGPrompts/PortfolioHub-sub010/internal/terminal"
)

func main() {
	config.Load()
	logging.Init()

	log.Printf("Config: ListenAddr=%s, MaxSessions=%d, IdleTimeout=%s, ReconnectGrace=%s",
		config.Cfg.ListenAddr, config.Cfg.MaxSessions, config.Cfg.IdleTimeout, config.Cfg.ReconnectGrace)

	validator := buildValidator()

	// Audit is best-effort: a broken audit DB logs a warning and the
	// bridge runs without it.
	var auditLog session.AuditLog
	var recorder *audit.Recorder
	if !config.Cfg.AuditDisabled {
		dbPath := config.Cfg.AuditDBPath
		if dbPath == "" {
			dbPath = filepath.Join(config.Cfg.DataPath, "audit.db")
		}
		db, err := audit.Open(dbPath)
		if err != nil {
			log.Printf("WARNING: audit disabled, open %s: %v", dbPath, err)
		} else {
			recorder = audit.NewRecorder(db, config.Cfg.AuditRetentionDays)
			auditLog = recorder
			log.Printf("Audit log at %s (retention %d days)", dbPath, config.Cfg.AuditRetentionDays)
		}
	}

	allowedRoot := config.Cfg.AllowedRoot
	if allowedRoot == "" {
		allowedRoot = filepath.Join(config.Cfg.DataPath, "workbranches")
	}

	registry := session.NewRegistry(config.Cfg.MaxSessions)
	mgr := session.NewManager(session.Config{
		AllowedRoot:    allowedRoot,
		IdleTimeout:    config.Cfg.IdleTimeout,
		ReconnectGrace: config.Cfg.ReconnectGrace,
	}, registry, validator, terminal.PtyRunner{}, auditLog)
	log.Printf("Session manager initialized (root=%s, max_sessions=%d)", allowedRoot, config.Cfg.MaxSessions)

	srv := gateway.New(mgr, config.Cfg.OutputQueueSize, recorder != nil)

	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	srv.Routes(r)

	// Nightly audit retention prune
	var jobs *cron.Cron
	if recorder != nil {
		jobs = cron.New()
		jobs.AddFunc("@daily", func() {
			n, err := recorder.Prune()
			if err != nil {
				log.Printf("[audit] prune failed: %v", err)
				return
			}
			if n > 0 {
				log.Printf("[audit] pruned %d expired records", n)
			}
		})
		jobs.Start()
	}

	httpSrv := &http.Server{
		Addr:    config.Cfg.ListenAddr,
		Handler: r,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(sigCtx)

	g.Go(func() error {
		log.Printf("Server starting on %s", config.Cfg.ListenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	// Periodic sweep: idle marking and reclaiming detached sessions
	// whose reconnect grace expired.
	g.Go(func() error {
		ticker := time.NewTicker(config.Cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				mgr.Sweep(time.Now())
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down...")

		if jobs != nil {
			jobs.Stop()
		}
		mgr.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Println("Server stopped")
}

func buildValidator() *security.Validator {
	if config.Cfg.SecurityPolicyPath == "" {
		return security.NewValidator()
	}
	policy, err := security.LoadPolicy(config.Cfg.SecurityPolicyPath)
	if err != nil {
		log.Fatalf("Security policy %s: %v", config.Cfg.SecurityPolicyPath, err)
	}
	v, err := security.NewValidatorWithPolicy(policy)
	if err != nil {
		log.Fatalf("Security policy %s: %v", config.Cfg.SecurityPolicyPath, err)
	}
	return v
}
