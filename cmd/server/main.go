package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"character-sync/internal/auth"
	"character-sync/internal/cache"
	"character-sync/internal/characters"
	"character-sync/internal/config"
	"character-sync/internal/database"
	"character-sync/internal/handlers"
	"character-sync/internal/upstream"
	"character-sync/internal/vault"

	"go.uber.org/zap"
)

// @title                      Character Sync API
// @version                    1.0
// @description                Imports and syncs characters from an external character-builder provider.
// @BasePath                   /
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("Starting character sync service")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}
	if cfg.JWKSURL == "" {
		logger.Fatal("JWKS_URL must be set")
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Initialize database
	repo, err := database.NewRepository(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer repo.Close()

	if err := repo.EnsureSchema(ctx); err != nil {
		logger.Fatal("Failed to apply schema", zap.Error(err))
	}

	// Initialize cache
	cacheClient, err := cache.NewCache(cfg.RedisURL, logger)
	if err != nil {
		logger.Fatal("Failed to initialize cache", zap.Error(err))
	}
	defer cacheClient.Close()

	// Credential vault
	key, err := cfg.EncryptionKeyBytes()
	if err != nil {
		logger.Fatal("Invalid encryption key", zap.Error(err))
	}
	credentialVault, err := vault.NewWithDerivation(key, vault.KeyDerivation(cfg.VaultKeyDerivation))
	if err != nil {
		logger.Fatal("Failed to initialize credential vault", zap.Error(err))
	}

	// Provider client and sessions
	provider := upstream.NewClient(upstream.ClientConfig{
		BaseURL:   cfg.UpstreamBaseURL,
		TitleID:   cfg.UpstreamTitleID,
		Timeout:   cfg.UpstreamTimeout,
		RateLimit: cfg.UpstreamRateLimit,
	}, nil, logger)

	sessions := auth.NewManager(provider, credentialVault, logger)
	refresher := auth.NewRefresher(sessions, repo, auth.NewRefreshGroup(), cacheClient, cfg.RefreshLockTTL, logger)

	service := characters.NewService(sessions, refresher, provider, repo, cacheClient, characters.Options{
		ListConcurrency: cfg.ListConcurrency,
		ListingCacheTTL: cfg.ListingCacheTTL,
	}, logger)

	// Bearer token validation against the identity provider's key set
	keys, err := auth.NewRemoteKeySource(ctx, cfg.JWKSURL, cfg.JWKSRefreshEvery)
	if err != nil {
		logger.Fatal("Failed to load JWKS", zap.String("url", cfg.JWKSURL), zap.Error(err))
	}
	tokenValidator := auth.NewTokenValidator(keys, cfg.JWTIssuer, cfg.JWTAudience)

	characterHandler := handlers.NewCharacterHandler(service, repo, logger)
	router := SetupRouter(characterHandler, tokenValidator, cacheClient, cfg, logger)

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.UpstreamTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Server starting", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
