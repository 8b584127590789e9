package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/clinsim/backend/internal/auth"
	"github.com/clinsim/backend/internal/config"
	"github.com/clinsim/backend/internal/database"
	"github.com/clinsim/backend/internal/generator"
	"github.com/clinsim/backend/internal/history"
	"github.com/clinsim/backend/internal/middleware"
	"github.com/clinsim/backend/internal/platform/logger"
	"github.com/clinsim/backend/internal/scenario"
	"github.com/clinsim/backend/internal/session"
	"github.com/clinsim/backend/internal/simulator"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Initialize database
	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatal("failed to connect to database", "error", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatal("failed to run migrations", "error", err)
	}

	// History store
	var store session.HistoryStore
	switch cfg.History.Backend {
	case "postgres":
		store = history.NewPostgresStore(db, cfg.History.MaxEntries)
	case "redis":
		rdb, err := history.NewRedisClient(cfg.Redis)
		if err != nil {
			log.Fatal("failed to connect to redis", "error", err)
		}
		defer rdb.Close()
		store = history.NewRedisStore(rdb, cfg.History.MaxEntries)
	default:
		store = history.NewMemoryStore(cfg.History.MaxEntries)
	}
	log.Info("history store ready", "backend", cfg.History.Backend, "max_entries", cfg.History.MaxEntries)

	// Generation backend
	llm, model := generator.NewClient(cfg.LLM, log)
	gen := generator.NewGenerator(llm, model, log, generator.Options{
		ShortTimeout: cfg.LLM.ShortTimeout,
		LongTimeout:  cfg.LLM.LongTimeout,
	})

	catalog := scenario.LoadCatalog(cfg.Server.ScenariosFile, log)
	log.Info("scenario catalog loaded", "path", cfg.Server.ScenariosFile, "count", catalog.Len())

	manager := session.NewManager(session.Deps{
		Backend:           gen,
		Scenarios:         catalog,
		History:           store,
		Log:               log,
		MaxConsultations:  cfg.Session.MaxConsultations,
		CoverageThreshold: cfg.Session.CoverageThreshold,
	})

	// Initialize handlers
	secret := []byte(cfg.Auth.JWTSecret)
	authHandler := auth.NewHandler(db, secret, cfg.Auth.TokenTTL, log)
	simHandler := simulator.NewHandler(manager, catalog, log)

	// Setup router
	r := mux.NewRouter()
	r.Use(middleware.RequestLogger(log))
	api := r.PathPrefix("/api/v1").Subrouter()

	// Public routes
	api.HandleFunc("/auth/register", authHandler.Register).Methods("POST")
	api.HandleFunc("/auth/login", authHandler.Login).Methods("POST")

	// Protected routes
	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.Auth(secret))
	protected.HandleFunc("/auth/me", authHandler.GetCurrentUser).Methods("GET")
	simHandler.Register(protected)

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	// Evaluation and generation can take minutes; the write timeout covers
	// the long LLM budget.
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           c.Handler(r),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.LLM.LongTimeout + 30*time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.Server.Port, "model", gen.ModelName())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	log.Info("server stopped")
}
