package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"archie-backend/cmd"
	"archie-backend/internal/analytics"
	"archie-backend/internal/api"
	"archie-backend/internal/llm"
	"archie-backend/internal/storage"
	"archie-backend/internal/store"
)

type ServerConfig struct {
	DataDir      string `env:"DATA_DIR" envDefault:"data"`
	APIPort      string `env:"API_PORT" envDefault:"5001"`
	OpenAIAPIKey string `env:"OPENAI_API_KEY,notEmpty,required"`
	PersonaPath  string `env:"PERSONA_PATH"`

	// Optional S3 backend for the persisted collections. Local disk under
	// DataDir is used when no bucket is configured.
	S3Bucket          string `env:"S3_BUCKET"`
	S3EndpointURL     string `env:"S3_ENDPOINT_URL"`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	S3Region          string `env:"AWS_REGION" envDefault:"us-east-1"`

	// Optional queue-backed analytics; defaults to the JSON file logs.
	AnalyticsRabbitMQURL string `env:"ANALYTICS_RABBITMQ_URL"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`
}

func newObjectStore(cfg ServerConfig) (storage.ObjectStore, error) {
	if cfg.S3Bucket != "" {
		return storage.NewS3ObjectStore(storage.S3Config{
			S3EndpointURL:     cfg.S3EndpointURL,
			S3AccessKeyID:     cfg.S3AccessKeyID,
			S3SecretAccessKey: cfg.S3SecretAccessKey,
			S3Region:          cfg.S3Region,
			Bucket:            cfg.S3Bucket,
		})
	}
	return storage.NewLocalObjectStore(cfg.DataDir)
}

func newCollectors(cfg ServerConfig, objects storage.ObjectStore) (web, apiV1 analytics.Collector, err error) {
	if cfg.AnalyticsRabbitMQURL != "" {
		collector, err := analytics.NewRabbitMQCollector(cfg.AnalyticsRabbitMQURL)
		if err != nil {
			return nil, nil, err
		}
		return collector, collector, nil
	}
	return analytics.NewFileCollector(objects, "analytics.json"),
		analytics.NewFileCollector(objects, path.Join("api", "analytics.json")),
		nil
}

func main() {
	log.Println("Starting ArchieAI backend...")

	cmd.LoadEnvFile()

	var cfg ServerConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	objects, err := newObjectStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize object store: %v", err)
	}

	// Store instances are created once here and injected; no package-level
	// shared state.
	users := store.NewUserStore(objects)
	sessions := store.NewSessionStore(objects, users)
	keys := store.NewKeyStore(objects)

	persona, err := llm.LoadPersona(cfg.PersonaPath)
	if err != nil {
		log.Fatalf("Failed to load persona: %v", err)
	}

	producer, err := llm.NewOpenAIProducer(cfg.OpenAIAPIKey, persona)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}

	webCollector, apiCollector, err := newCollectors(cfg, objects)
	if err != nil {
		log.Fatalf("Failed to initialize analytics collector: %v", err)
	}
	defer webCollector.Close()
	defer apiCollector.Close()

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		AllowCredentials: true,
	}))

	api.NewSessionService(users, sessions, producer, webCollector).AddRoutes(r)
	api.NewKeyService(keys, producer, apiCollector).AddRoutes(r)

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: r,
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		slog.Info("shutting down server")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}
	}()

	slog.Info("server listening", "port", cfg.APIPort)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %s: %v", cfg.APIPort, err)
	}

	slog.Info("server stopped")
}
