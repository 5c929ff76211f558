package main

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
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	commshub "github.com/clinicware/comms-hub-go"
	"github.com/clinicware/comms-hub-go/internal/config"
	"github.com/clinicware/comms-hub-go/internal/database"
	"github.com/clinicware/comms-hub-go/internal/debug"
	"github.com/clinicware/comms-hub-go/internal/handler"
	"github.com/clinicware/comms-hub-go/internal/middleware"
	"github.com/clinicware/comms-hub-go/internal/provider"
	"github.com/clinicware/comms-hub-go/internal/redis"
	"github.com/clinicware/comms-hub-go/internal/repository"
	"github.com/clinicware/comms-hub-go/internal/service"
	"github.com/clinicware/comms-hub-go/internal/statetoken"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("FLY_APP_NAME") != ""
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	if err := db.Migrate(commshub.Migrations); err != nil {
		log.Fatal().Err(err).Msg("failed to apply migrations")
	}
	log.Info().Msg("migrations applied")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	userRepo := repository.NewClinicUserRepository(db.DB)
	integRepo := repository.NewIntegrationRepository(db.DB)
	convRepo := repository.NewConversationRepository(db.DB)
	msgRepo := repository.NewMessageRepository(db.DB)
	viewRepo := repository.NewConversationViewRepository(db.DB)

	whatsappClient := provider.NewWhatsAppClient(provider.WhatsAppConfig{
		AppID:       cfg.WhatsAppAppID,
		AppSecret:   cfg.WhatsAppAppSecret,
		RedirectURL: cfg.WhatsAppRedirectURL,
		APIBase:     cfg.WhatsAppAPIBase,
		AuthBase:    cfg.WhatsAppAuthBase,
	}, config.ProviderCallTimeout)
	emailConnector := provider.NewEmailConnector(provider.EmailConfig{
		ClientID:     cfg.EmailClientID,
		ClientSecret: cfg.EmailClientSecret,
		RedirectURL:  cfg.EmailRedirectURL,
		AuthURL:      cfg.EmailAuthURL,
		TokenURL:     cfg.EmailTokenURL,
		RevokeURL:    cfg.EmailRevokeURL,
		Scopes:       cfg.EmailScopes,
	}, config.ProviderCallTimeout)

	capture := debug.NewCapture()
	stateSigner := statetoken.NewSigner(cfg.StateSigningSecret, config.StateTokenTTL)

	integrationService := service.NewIntegrationService(
		integRepo, userRepo, stateSigner, cfg.EncryptionKey,
		whatsappClient, emailConnector,
	)
	windowService := service.NewWindowService(convRepo)
	conversationService := service.NewConversationService(convRepo, msgRepo, viewRepo)
	ingestService := service.NewIngestService(capture, db, integRepo, convRepo, msgRepo)
	dispatchService := service.NewDispatchService(
		integrationService, integRepo, convRepo, msgRepo, windowService, whatsappClient,
	)

	authMiddleware := middleware.NewAuthMiddleware(userRepo)
	rateLimitMiddleware := middleware.NewRedisRateLimitMiddleware(redisClient.Client)
	signatureMiddleware := middleware.NewWebhookSignatureMiddleware(cfg.WebhookSignatureSecret)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)

	webhookHandler := handler.NewWebhookHandler(ingestService, cfg.WebhookVerifyToken)
	integrationHandler := handler.NewIntegrationHandler(integrationService)
	messageHandler := handler.NewMessageHandler(dispatchService)
	conversationHandler := handler.NewConversationHandler(conversationService)
	debugHandler := handler.NewDebugHandler(capture)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(bodyLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Route("/webhooks", func(r chi.Router) {
		r.Use(signatureVerifyOnPost(signatureMiddleware))
		r.Mount("/", webhookHandler.Routes())
	})

	r.Route("/v1", func(r chi.Router) {
		// The OAuth callback inside the integrations router is the only
		// unauthenticated /v1 endpoint; identity comes from the state token.
		r.Mount("/integrations", integrationHandler.Routes(authMiddleware.Handler, rateLimitMiddleware.Handler))

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Handler)
			r.Use(rateLimitMiddleware.Handler)

			r.Mount("/messages", messageHandler.Routes())
			r.Mount("/conversations", conversationHandler.Routes())
		})
	})

	r.Route("/debug", func(r chi.Router) {
		r.Use(authMiddleware.Handler)
		r.Use(middleware.RequireAdmin)
		r.Mount("/", debugHandler.Routes())
	})

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

// signatureVerifyOnPost applies body HMAC verification to deliveries only;
// the GET verification handshake has no body to sign.
func signatureVerifyOnPost(m *middleware.WebhookSignatureMiddleware) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		verified := m.Handler(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost {
				verified.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
