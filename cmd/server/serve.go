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
	"github.com/spf13/cobra"

	"github.com/quizy/backend/internal/auth"
	"github.com/quizy/backend/internal/config"
	"github.com/quizy/backend/internal/database"
	"github.com/quizy/backend/internal/generator"
	"github.com/quizy/backend/internal/llm"
	"github.com/quizy/backend/internal/logger"
	"github.com/quizy/backend/internal/middleware"
	"github.com/quizy/backend/internal/quizzes"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (default)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func runServe(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		return err
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Error("failed to run migrations", "error", err)
		return err
	}

	provider, err := llm.NewProvider(ctx, cfg.LLM, log)
	if err != nil {
		log.Error("failed to initialize LLM provider", "provider", cfg.LLM.Provider, "error", err)
		return err
	}

	listCache, err := quizzes.NewListCache(cfg.Cache, log)
	if err != nil {
		log.Error("failed to initialize quiz list cache", "backend", cfg.Cache.Backend, "error", err)
		return err
	}
	defer listCache.Close()

	policy := generator.NewPolicy(generator.PolicyConfig{
		Mode:              cfg.Generation.TopicPolicy,
		WrongAnswerWeight: cfg.Generation.WrongAnswerWeight,
		KFactor:           cfg.Generation.AbilityKFactor,
	}, nil)
	gen := generator.NewGenerator(provider, policy, generator.Config{
		OptionCount: cfg.Generation.OptionCount,
		Timeout:     cfg.LLM.Timeout,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	}, log)
	log.Info("generator ready", "provider", cfg.LLM.Provider, "model", gen.ModelName())

	quizService := quizzes.NewService(quizzes.NewStore(db), gen, listCache, quizzes.ServiceConfig{
		PrefetchNext:    cfg.Generation.PrefetchNext,
		PrefetchTimeout: 2 * cfg.LLM.Timeout,
	}, log)

	// Initialize handlers
	secret := []byte(cfg.JWTSecret)
	authHandler := auth.NewHandler(auth.NewStore(db), secret, log)
	quizHandler := quizzes.NewHandler(quizService, log)
	authMiddleware := middleware.NewAuth(secret)

	// Setup router
	r := mux.NewRouter()
	r.Use(middleware.RequestLogger(log))
	api := r.PathPrefix("/api/v1").Subrouter()

	// Public routes
	api.HandleFunc("/auth/register", authHandler.Register).Methods("POST")
	api.HandleFunc("/auth/login", authHandler.Login).Methods("POST")

	// Anonymous or authenticated
	public := api.PathPrefix("").Subrouter()
	public.Use(authMiddleware.Optional)

	// Protected routes
	protected := api.PathPrefix("").Subrouter()
	protected.Use(authMiddleware.Required)
	protected.HandleFunc("/auth/me", authHandler.GetCurrentUser).Methods("GET")

	quizHandler.RegisterRoutes(public, protected)

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           c.Handler(r),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			return err
		}
	case <-ctx.Done():
		log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("graceful shutdown failed", "error", err)
	}
	quizService.Wait()
	return nil
}
