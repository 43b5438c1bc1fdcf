package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"akademia.org/internal/audit"
	"akademia.org/internal/auth"
	"akademia.org/internal/config"
	"akademia.org/internal/httpapi"
	"akademia.org/internal/obs"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	store := auth.NewPGStore(db)

	issuer, err := auth.NewTokenIssuer(cfg.JWTSecret,
		auth.WithIssuer(cfg.TokenIssuer),
		auth.WithAccessTokenTTL(cfg.AccessTTL),
		auth.WithRefreshTokenTTL(cfg.RefreshTTL),
	)
	if err != nil {
		log.Fatalf("token issuer: %v", err)
	}

	svc, err := auth.NewService(store, issuer,
		auth.WithAlertFunc(func(ctx context.Context, event string, fields map[string]any) {
			obs.ObserveReuseAlert()
			audit.LogSecurityEvent(ctx, event, fields)
		}),
	)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	evaluator, err := auth.NewEvaluator(store)
	if err != nil {
		log.Fatalf("evaluator: %v", err)
	}

	admin, err := auth.NewAdminService(store)
	if err != nil {
		log.Fatalf("admin service: %v", err)
	}

	ctx := context.Background()
	if err := auth.Seed(ctx, store, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		log.Fatalf("seed: %v", err)
	}

	api := httpapi.New(httpapi.Options{
		Auth:          svc,
		Evaluator:     evaluator,
		Admin:         admin,
		Ready:         httpapi.ReadyProbe{DB: db},
		Version:       version,
		CORSOrigins:   cfg.CORSOrigins,
		RateBurst:     cfg.RateBurst,
		RatePerSecond: cfg.RatePerSecond,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Background sweep of long-expired refresh token records.
	pruneCtx, cancelPrune := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(cfg.PruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-pruneCtx.Done():
				return
			case <-ticker.C:
				n, err := svc.PruneExpired(pruneCtx)
				if err != nil {
					log.Printf("prune refresh tokens: %v", err)
					continue
				}
				if n > 0 {
					obs.ObservePrunedTokens(n)
				}
			}
		}
	}()

	log.Printf("Starting akademia-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	cancelPrune()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	_ = db.Close()
	log.Println("Stopped")
}
