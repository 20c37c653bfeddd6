package main

import (
	"net/http"

	_ "character-sync/docs"
	"character-sync/internal/config"
	"character-sync/internal/handlers"
	"character-sync/internal/middleware"

	"github.com/gorilla/mux"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
)

// SetupRouter configures and returns the HTTP router with all routes and middleware
func SetupRouter(
	characterHandler *handlers.CharacterHandler,
	resolver middleware.SubjectResolver,
	limiter middleware.RateLimiter,
	cfg *config.Config,
	logger *zap.Logger,
) *mux.Router {
	router := mux.NewRouter()

	// Add CORS middleware
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+handlers.SessionHeader)

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	// Add logging middleware
	router.Use(middleware.LoggingMiddleware(logger))

	// @Summary     Health check endpoint
	// @Description Returns OK if the service is running
	// @Tags        health
	// @Produce     text/plain
	// @Success     200  {string}  string  "OK"
	// @Router      /health [get]
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	// Swagger documentation
	router.PathPrefix("/swagger/").Handler(httpSwagger.WrapHandler)

	api := router.PathPrefix("/v1").Subrouter()
	api.Use(middleware.BearerAuth(resolver, logger))

	loginLimit := middleware.RateLimitMiddleware(limiter, logger, cfg.LoginRateLimit, cfg.LoginRateWindow, middleware.LoginIdentifierKey)
	api.Handle("/external/login", loginLimit(http.HandlerFunc(characterHandler.HandleLogin))).Methods("POST", "OPTIONS")
	api.HandleFunc("/external/characters", characterHandler.HandleList).Methods("GET", "OPTIONS")
	api.HandleFunc("/external/characters/{external_id}/import", characterHandler.HandleImport).Methods("POST", "OPTIONS")
	api.HandleFunc("/characters/{id}/sync", characterHandler.HandleSync).Methods("POST", "OPTIONS")
	api.HandleFunc("/share/import", characterHandler.HandleShareImport).Methods("POST", "OPTIONS")

	return router
}
