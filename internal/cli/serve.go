package cli

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/orbital-labs/orbital/internal/ai"
	"github.com/orbital-labs/orbital/internal/config"
	"github.com/orbital-labs/orbital/internal/database"
	"github.com/orbital-labs/orbital/internal/handler"
	"github.com/orbital-labs/orbital/internal/jobs"
	"github.com/orbital-labs/orbital/internal/middleware"
	"github.com/orbital-labs/orbital/internal/redis"
	"github.com/orbital-labs/orbital/internal/repository"
	"github.com/orbital-labs/orbital/internal/service"
	"github.com/orbital-labs/orbital/internal/sse"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the authorization and chat server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func runServer() error {
	isProduction := os.Getenv("FLY_APP_NAME") != ""
	if err := cfg.Validate(isProduction); err != nil {
		return err
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	err = db.Ping(pingCtx)
	cancel()
	if err != nil {
		return err
	}
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		return err
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	userRepo := repository.NewUserRepository(db.DB)
	sessionRepo := repository.NewSessionRepository(db.DB)
	convRepo := repository.NewConversationRepository(db.DB)
	messageRepo := repository.NewMessageRepository(db.DB)

	broker := sse.NewBroker(redisClient)
	defer broker.Close()

	authService := service.NewAuthService(userRepo, sessionRepo)
	chatService := service.NewChatService(convRepo, messageRepo)
	deviceAuthService := service.NewDeviceAuthService(
		service.NewRedisGrantStore(redisClient),
		service.NewRedisPollLimiter(redisClient),
		authService,
		cfg.BaseURL,
	)
	engine := ai.NewOpenAIEngine(cfg.OpenAIAPIKey, cfg.OpenAIModel)

	authMiddleware := middleware.NewAuthMiddleware(authService)

	deviceHandler := handler.NewDeviceHandler(deviceAuthService)
	portalHandler := handler.NewPortalHandler(authService, isProduction)
	chatHandler := handler.NewChatHandler(chatService, engine, broker)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Route("/oauth/device", func(r chi.Router) {
		r.Mount("/", deviceHandler.PublicRoutes())
	})

	r.Route("/device", func(r chi.Router) {
		r.Use(authMiddleware.Handler)
		r.Mount("/", deviceHandler.ApprovalRoutes())
	})

	r.Route("/portal", func(r chi.Router) {
		r.Mount("/", portalHandler.Routes())
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(authMiddleware.Handler)
		r.Mount("/chat", chatHandler.Routes())
		r.Mount("/conversations", chatHandler.ConversationRoutes())
	})

	cleanupJob := jobs.NewCleanupJob(sessionRepo, config.CleanupJobInterval)
	cleanupJob.Start()
	defer cleanupJob.Stop()

	server := &http.Server{
		Addr:        cfg.Addr(),
		Handler:     r,
		ReadTimeout: config.ServerReadTimeout,
		// SSE connections stay open indefinitely
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
	return nil
}
