package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"posinet/backend/internal/bootstrap"
	"posinet/backend/internal/cache"
	"posinet/backend/internal/config"
	"posinet/backend/internal/httpapi"
	"posinet/backend/internal/service"
)

func main() {
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo, closeRepo, err := bootstrap.OpenRepository(ctx, cfg)
	if err != nil {
		log.Fatalf("refusing to start: %v", err)
	}
	closers := []func() error{closeRepo}

	reports := openReportCache(ctx, cfg, &closers)

	svc := service.New(repo, reports, service.Options{
		ReportTTL:   cfg.ReportCacheTTL(),
		SaleTimeout: cfg.SaleTxTimeout(),
	})
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL(), repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.SaleTxTimeout() + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("POS backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

// openReportCache returns the redis report cache when REDIS_ADDR is set and
// reachable. Reports are always recomputable, so a dead redis only costs speed.
func openReportCache(ctx context.Context, cfg config.Config, closers *[]func() error) cache.ReportCache {
	if cfg.RedisAddr == "" {
		log.Println("cache: noop")
		return cache.NoopReportCache{}
	}

	redisCache := cache.NewRedisReportCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err := redisCache.Ping(ctx); err != nil {
		log.Printf("redis unavailable (%v), using noop cache", err)
		_ = redisCache.Close()
		return cache.NoopReportCache{}
	}
	*closers = append(*closers, redisCache.Close)
	log.Println("cache: redis")
	return redisCache
}

func validateSecurityConfig(cfg config.Config) error {
	return httpapi.ValidateSecret(cfg.AuthSecret)
}
