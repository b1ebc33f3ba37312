package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"gatehouse.io/internal/auth"
	"gatehouse.io/internal/httpapi"
	"gatehouse.io/internal/idp"
	"gatehouse.io/internal/obs"
	"gatehouse.io/internal/store/pg"
)

var version = "0.3.1"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("GATEHOUSE_COMMIT"))

	dsn := os.Getenv("GATEHOUSE_PG_DSN")
	if dsn == "" {
		log.Fatal("GATEHOUSE_PG_DSN is required")
	}
	store, err := pg.Open(dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	tokens, err := auth.NewTokenService(
		mustEnv("GATEHOUSE_JWT_ACCESS_SECRET"),
		mustEnv("GATEHOUSE_JWT_REFRESH_SECRET"),
		mustEnv("GATEHOUSE_JWT_RECOVERY_SECRET"),
	)
	if err != nil {
		log.Fatalf("token service: %v", err)
	}

	service, err := auth.NewService(store.Users(), store.Roles(), tokens)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}
	catalog, err := auth.NewCatalog(store.Roles(), store.Permissions())
	if err != nil {
		log.Fatalf("catalog: %v", err)
	}
	directory, err := auth.NewDirectory(store.Users(), store.Roles())
	if err != nil {
		log.Fatalf("directory: %v", err)
	}

	opts := []httpapi.Option{
		httpapi.WithVersion(version),
		httpapi.WithFrontendURL(os.Getenv("GATEHOUSE_FRONTEND_URL")),
		httpapi.WithRateLimit(envInt("GATEHOUSE_RATE_BURST", 50), envInt("GATEHOUSE_RATE_PER_SECOND", 25)),
	}

	// Google sign-in is optional: enabled only when the client is configured.
	if clientID := os.Getenv("GATEHOUSE_GOOGLE_CLIENT_ID"); clientID != "" {
		google, err := idp.NewGoogle(context.Background(),
			clientID,
			mustEnv("GATEHOUSE_GOOGLE_CLIENT_SECRET"),
			mustEnv("GATEHOUSE_GOOGLE_REDIRECT_URL"),
		)
		if err != nil {
			log.Fatalf("google idp: %v", err)
		}
		opts = append(opts, httpapi.WithGoogle(google))
	}

	api, err := httpapi.New(httpapi.ReadyProbe{DB: store.DB()}, service, catalog, directory, tokens, opts...)
	if err != nil {
		log.Fatalf("http api: %v", err)
	}

	addr := os.Getenv("GATEHOUSE_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting gatehouse-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("%s is required", key)
	}
	return v
}

func envInt(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Fatalf("%s must be an integer", key)
	}
	return v
}
