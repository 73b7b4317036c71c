package server

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"trackvault/cache"
	"trackvault/config"
	"trackvault/core/auth"
	"trackvault/db"
	"trackvault/logger"
	"trackvault/repository"
	"trackvault/storage"
	"trackvault/sweep"

	"github.com/gorilla/mux"
)

// Start initializes dependencies and runs the HTTP server until SIGINT/SIGTERM.
func Start(cfg *config.Config) {
	if cfg.JWTSecret == "" {
		logger.Fatal("JWT_SECRET must be set")
	}

	sqlDB, err := db.Connect(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", logger.ErrorField(err))
	}
	defer sqlDB.Close()

	if err := db.Migrate(cfg); err != nil {
		logger.Fatal("Failed to migrate database schema", logger.ErrorField(err))
	}

	// The cache is best-effort; an unreachable Redis degrades to DB reads.
	redisClient, err := db.ConnectRedis(cfg)
	if err != nil {
		logger.Warn("Redis unavailable, track listing cache disabled", logger.ErrorField(err))
	}

	store, err := newStore(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize storage", logger.ErrorField(err))
	}

	userRepo := repository.NewMySQLUserRepository(sqlDB)
	trackRepo := repository.NewMySQLTrackRepository(sqlDB)
	trackCache := cache.NewTrackCache(redisClient)
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)

	apiHandler := NewAPIHandler(userRepo, trackRepo, trackCache, store, tokens, cfg)

	sweeper := sweep.NewSweeper(store, trackRepo, cfg.SweepGrace)
	sweepCron, err := sweeper.Schedule(cfg.SweepSchedule)
	if err != nil {
		logger.Fatal("Failed to schedule orphan sweep", logger.ErrorField(err))
	}
	if sweepCron != nil {
		defer sweepCron.Stop()
	}

	router := NewRouter(apiHandler, store, cfg)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Server starting", logger.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", logger.ErrorField(err))
		}
	}()

	<-stop
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", logger.ErrorField(err))
	}

	logger.Info("Server stopped")
}

// newStore builds the storage backend selected by configuration.
func newStore(cfg *config.Config) (storage.Store, error) {
	if cfg.StorageBackend == config.StorageMinio {
		return storage.NewMinioStore(cfg)
	}
	return storage.NewLocalStore(cfg.UploadDir)
}

// NewRouter builds the route table.
func NewRouter(apiHandler *APIHandler, store storage.Store, cfg *config.Config) *mux.Router {
	router := mux.NewRouter()

	// CORS middleware
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	router.HandleFunc("/register", apiHandler.RegisterHandler).Methods(http.MethodPost)
	router.HandleFunc("/login", apiHandler.LoginHandler).Methods(http.MethodPost)

	router.HandleFunc("/profile", apiHandler.AuthMiddleware(apiHandler.GetProfileHandler)).Methods(http.MethodGet)
	router.HandleFunc("/profile", apiHandler.AuthMiddleware(apiHandler.UpdateProfileHandler)).Methods(http.MethodPut)

	router.HandleFunc("/tracks", apiHandler.AuthMiddleware(apiHandler.UploadTrackHandler)).Methods(http.MethodPost)
	router.HandleFunc("/tracks", apiHandler.AuthMiddleware(apiHandler.GetTracksHandler)).Methods(http.MethodGet)
	router.HandleFunc("/tracks/{id}", apiHandler.AuthMiddleware(apiHandler.DeleteTrackHandler)).Methods(http.MethodDelete)

	// Stored audio is directly fetchable under the public path.
	publicPrefix := strings.TrimSuffix(cfg.PublicPath, "/") + "/"
	router.PathPrefix(publicPrefix).HandlerFunc(serveStoredFile(store, publicPrefix)).Methods(http.MethodGet)

	return router
}

// serveStoredFile streams a stored object. Object names are flat; anything
// that looks like a path is rejected before it reaches the store.
func serveStoredFile(store storage.Store, prefix string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, prefix)
		if name == "" || strings.HasPrefix(name, ".") || strings.ContainsAny(name, "/\\") {
			writeMessage(w, http.StatusNotFound, "File not found")
			return
		}

		object, err := store.Open(r.Context(), name)
		if err != nil {
			writeMessage(w, http.StatusNotFound, "File not found")
			return
		}
		defer object.Close()

		w.Header().Set("Content-Type", audioContentType(name))
		w.Header().Set("Cache-Control", "public, max-age=31536000")

		if _, err := io.Copy(w, object); err != nil {
			logger.Error("error serving stored file",
				logger.String("object", name), logger.ErrorField(err))
		}
	}
}

// audioContentType maps a stored file's extension to a content type.
func audioContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".flac":
		return "audio/flac"
	case ".aac":
		return "audio/aac"
	case ".m4a", ".mp4":
		return "audio/mp4"
	case ".ogg":
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}
