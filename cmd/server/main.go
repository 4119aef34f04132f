package main

import (
	"context"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"neurobridge/internal/capabilities"
	"neurobridge/internal/config"
	chatRepo "neurobridge/internal/domain/repositories/chat"
	chatSvc "neurobridge/internal/domain/services/chat"
	"neurobridge/internal/handler"
	"neurobridge/internal/middleware"
	"neurobridge/internal/repository/memory"
	"neurobridge/internal/repository/postgres"
	chatService "neurobridge/internal/service/chat"
	"neurobridge/internal/service/chat/providers/anthropic"
	"neurobridge/internal/service/chat/providers/lorem"
	"neurobridge/internal/service/chat/tools"
)

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	// Load configuration
	cfg := config.Load()

	// Setup structured logging
	logLevel := slog.LevelInfo
	if cfg.Environment == "dev" {
		logLevel = slog.LevelDebug
	}

	var logOut io.Writer = os.Stdout
	if cfg.LogDir != "" {
		logFile, err := config.SetupLogFile(cfg.LogDir, 10)
		if err != nil {
			log.Fatalf("Failed to setup log file: %v", err)
		}
		defer logFile.Close()
		logOut = io.MultiWriter(os.Stdout, logFile)
	}

	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger) // Set as default logger

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"table_prefix", cfg.TablePrefix,
	)

	ctx := context.Background()

	// Stores: Postgres when DATABASE_URL is set, in-memory otherwise so the
	// server runs standalone in development.
	var (
		conversations chatRepo.ConversationStore
		messages      chatRepo.MessageStore
		symbols       chatRepo.SymbolStore
		goals         chatRepo.GoalStore
	)
	if cfg.DatabaseURL != "" {
		pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to create connection pool: %v", err)
		}
		defer pool.Close()

		logger.Info("database connected",
			"max_conns", 25,
			"min_conns", 5,
		)

		repoConfig := &postgres.RepositoryConfig{
			Pool:   pool,
			Tables: postgres.NewTableNames(cfg.TablePrefix),
			Logger: logger,
		}
		conversations = postgres.NewConversationStore(repoConfig)
		messages = postgres.NewMessageStore(repoConfig)
		coaching := postgres.NewCoachingStore(repoConfig)
		symbols = coaching
		goals = coaching
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory stores")

		convStore := memory.NewConversationStore()
		coaching := memory.NewCoachingStore()
		coaching.SeedChild("demo-child")
		conversations = convStore
		messages = memory.NewMessageStore(convStore)
		symbols = coaching
		goals = coaching
	}

	// Coaching tools available to the assistant mid-turn
	toolRegistry := tools.NewRegistry()
	tools.RegisterCoachingTools(toolRegistry, symbols, goals)

	// Initialize capability registry
	capabilityRegistry, err := capabilities.NewRegistry()
	if err != nil {
		log.Fatalf("Failed to initialize capability registry: %v", err)
	}
	logger.Info("capability registry initialized")

	// Assistant backends: Anthropic when a key is configured, lorem always
	// (for local development and smoke tests).
	backends := []chatSvc.AssistantBackend{lorem.NewProvider()}
	if cfg.AnthropicAPIKey != "" {
		anthropicBackend, err := anthropic.NewProvider(cfg.AnthropicAPIKey, logger)
		if err != nil {
			log.Fatalf("Failed to setup anthropic backend: %v", err)
		}
		backends = append(backends, anthropicBackend)
	} else {
		logger.Warn("ANTHROPIC_API_KEY not set, lorem backend only")
	}
	router := chatService.NewBackendRouter(capabilityRegistry, backends...)

	model := cfg.DefaultModel
	if !router.SupportsModel(model) {
		logger.Warn("default model unsupported, falling back to lorem", "model", model)
		model = "lorem-fast"
	}

	sessions := chatService.NewSessionRegistry(
		conversations,
		messages,
		router,
		toolRegistry,
		model,
		logger,
	)

	chatHandler := handler.NewChatHandler(sessions, logger)

	logger.Info("services initialized", "default_model", model)

	// Create HTTP router (Go 1.22+ enhanced patterns)
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Conversation routes
	chatHandler.RegisterRoutes(mux)

	// Build middleware chain
	var httpHandler http.Handler = mux

	httpHandler = middleware.Recovery(logger)(httpHandler)
	httpHandler = middleware.RequestLogging(logger)(httpHandler)

	// CORS - must be outermost to handle OPTIONS pre-flight requests
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization", "Last-Event-ID"},
		AllowCredentials: true,
	})
	httpHandler = corsHandler.Handler(httpHandler)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // Disabled to allow long-lived SSE streams
		IdleTimeout:  60 * time.Second,
	}

	// Start server
	logger.Info("server listening", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to start server: %v", err)
	}
}
