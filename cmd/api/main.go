package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"notathome.app/internal/auth"
	"notathome.app/internal/config"
	"notathome.app/internal/export"
	"notathome.app/internal/httpapi"
	"notathome.app/internal/ledger"
	"notathome.app/internal/obs"
	"notathome.app/internal/session"
	"notathome.app/internal/store/memory"
	"notathome.app/internal/store/pg"
	"notathome.app/internal/stream"
	"notathome.app/internal/sweep"
)

var version = "0.3.0"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit())

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Store selection: Postgres when a DSN is configured, in-memory otherwise.
	// Schema is managed by cmd/migrate; missing tables fail loudly on first query.
	var (
		sessionStore session.Store
		ledgerStore  ledger.Store
		pgStore      *pg.Store
	)
	if cfg.PGDSN != "" {
		pgStore, err = pg.Open(cfg.PGDSN)
		if err != nil {
			log.Fatalf("open postgres: %v", err)
		}
		sessionStore = pgStore
		ledgerStore = pgStore
	} else {
		log.Printf("NAH_PG_DSN not set, using in-memory store (data is lost on restart)")
		mem := memory.NewStore()
		sessionStore = mem
		ledgerStore = mem
	}

	sessions, err := session.NewService(sessionStore,
		session.WithTTL(cfg.SessionTTL()),
		session.WithCodeLength(cfg.SessionCodeLength),
	)
	if err != nil {
		log.Fatalf("session service: %v", err)
	}
	entries := ledger.NewService(ledgerStore)

	// The share step: deliver exported documents to the configured webhook,
	// or log them in development when none is configured.
	var sender export.Sender
	if cfg.ShareWebhookURL != "" {
		sender, err = export.NewWebhookSender(cfg.ShareWebhookURL)
		if err != nil {
			log.Fatalf("share webhook: %v", err)
		}
	} else {
		log.Printf("NAH_SHARE_WEBHOOK_URL not set, exports are logged instead of delivered")
		sender = export.SenderFunc(func(ctx context.Context, doc export.Document) error {
			log.Printf("export (no webhook configured):\n%s\n%s", doc.Title, doc.Body)
			return nil
		})
	}
	exporter := export.NewService(sessions, entries, sender)

	secret := cfg.AuthSecret
	if secret == "" {
		// Development only; config.Load rejects a missing secret in production.
		secret = randomSecret()
		log.Printf("NAH_AUTH_SECRET not set, generated an ephemeral dev secret")
	}
	tokens, err := auth.NewTokenManager(secret, cfg.TokenTTL())
	if err != nil {
		log.Fatalf("token manager: %v", err)
	}

	hub := stream.NewHub(stream.WithDropHandler(func(stream.Event) {
		obs.IncStreamDropped()
	}))

	opts := []httpapi.Option{
		httpapi.WithRateLimit(cfg.RateRPS, cfg.RateBurst),
	}

	// Token minting is a development stand-in for the identity provider and
	// must never be reachable in production.
	if cfg.Env != "production" {
		opts = append(opts, httpapi.WithDevTokenMint())
		log.Printf("NAH_ENV=%s, /v1/auth/token is enabled for development", cfg.Env)
	}

	// appCtx ends at shutdown; the bridge pump and the health refresh loop
	// hang off it.
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	// Cross-instance fan-out through Redis when configured.
	if cfg.RedisAddr != "" {
		rdb := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		bridge := stream.NewBridge(hub, rdb)
		go func() {
			if err := bridge.Run(appCtx); err != nil && appCtx.Err() == nil {
				obs.LogLine("error", "stream bridge stopped", map[string]any{"error": err.Error()})
			}
		}()
		opts = append(opts, httpapi.WithPublisher(bridge))
	}

	var rp httpapi.ReadyProbe
	if pgStore != nil {
		rp = httpapi.ReadyProbe{DB: pgStore.DB()}
	}
	api := httpapi.New(rp, version, sessions, entries, exporter, hub, tokens, opts...)

	// In-process sweeper; the standalone cmd/sweeper covers deployments that
	// disable it here.
	var stopSweeper func()
	if iv := cfg.SweepInterval(); iv > 0 {
		stopSweeper = sweep.New(sessionStore,
			sweep.WithInterval(iv),
			sweep.WithLogf(func(format string, args ...any) {
				obs.LogLine("info", fmt.Sprintf(format, args...), nil)
			}),
		).Start()
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      0, // SSE responses stream indefinitely
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		obs.LogLine("info", "http server listening", map[string]any{"addr": srv.Addr, "version": version})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	// Optional gRPC health endpoint for platform checkers.
	var grpcSrv *httpapi.GRPCServer
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			log.Fatalf("grpc listen: %v", err)
		}
		grpcSrv = httpapi.NewGRPCServer(rp)
		go func() {
			obs.LogLine("info", "grpc health listening", map[string]any{"addr": cfg.GRPCAddr})
			if err := grpcSrv.Serve(lis); err != nil {
				log.Printf("grpc serve: %v", err)
			}
		}()
		go func() {
			ticker := time.NewTicker(15 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-appCtx.Done():
					return
				case <-ticker.C:
					refreshCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					grpcSrv.Refresh(refreshCtx)
					cancel()
				}
			}
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	obs.LogLine("info", "shutting down", nil)

	if stopSweeper != nil {
		stopSweeper()
	}
	appCancel()
	if grpcSrv != nil {
		grpcSrv.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)

	if pgStore != nil {
		_ = pgStore.Close()
	}
	obs.LogLine("info", "stopped", nil)
}

func commit() string {
	if c := os.Getenv("NAH_BUILD_COMMIT"); c != "" {
		return c
	}
	return "dev"
}

func randomSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		log.Fatalf("generate dev secret: %v", err)
	}
	return hex.EncodeToString(buf)
}
