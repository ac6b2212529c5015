// main.go - The entry point and router setup.

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bosocmputer/document_extract_gemini/configs"
	"github.com/bosocmputer/document_extract_gemini/internal/ai"
	"github.com/bosocmputer/document_extract_gemini/internal/api"
	"github.com/bosocmputer/document_extract_gemini/internal/export"
	"github.com/bosocmputer/document_extract_gemini/internal/processor"
	"github.com/bosocmputer/document_extract_gemini/internal/resolver"
	"github.com/bosocmputer/document_extract_gemini/internal/storage"
	"github.com/bosocmputer/document_extract_gemini/internal/workspace"
	"github.com/gin-gonic/gin"
)

func main() {
	// Step 0: Load configuration from environment variables
	configs.LoadConfig()
	configs.RequireAPIKey()

	if ginMode := os.Getenv("GIN_MODE"); ginMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Step 1: Persistence backend
	stateStore, prompts := openStores()
	defer storage.CloseMongoDB()

	ws, err := workspace.Load(context.Background(), stateStore, workspace.Options{
		AppID:        configs.APP_ID,
		HistoryLimit: configs.HISTORY_LIMIT,
	})
	if err != nil {
		log.Fatalf("Failed to load workspace: %v", err)
	}

	// Step 2: Extraction pipeline
	rules, err := resolver.LoadRules(configs.RESOLVER_RULES_PATH)
	if err != nil {
		log.Fatalf("Failed to load resolver rules: %v", err)
	}
	extractor, err := ai.NewExtractorWithFallback(ai.ProviderConfigFromEnv())
	if err != nil {
		log.Fatalf("Failed to create AI provider: %v", err)
	}
	orchestrator := processor.NewOrchestrator(extractor, resolver.New(rules), processor.PrepareOptions{
		Enhance:      configs.ENABLE_IMAGE_PREPROCESSING,
		MaxDimension: configs.MAX_IMAGE_DIMENSION,
	})

	// Step 3: Router
	router := gin.Default()
	router.Use(api.CORS(configs.ALLOWED_ORIGINS))

	handler := api.NewHandler(ws, orchestrator, extractor, prompts, api.Options{
		CSV: export.LineEnding(configs.CSV_LINE_ENDING),
	})
	handler.RegisterRoutes(router)

	// Step 4: Setup HTTP server with timeouts
	srv := &http.Server{
		Addr:           ":" + configs.PORT,
		Handler:        router,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Minute, // a batch runs inside one request
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		log.Printf("Starting server on :%s (provider: %s, store: %s)", configs.PORT, extractor.GetProviderName(), configs.STORE_BACKEND)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Setup graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

// openStores picks the state and prompt stores for STORE_BACKEND. The state
// store is always fronted by the TTL cache.
func openStores() (storage.StateStore, storage.PromptStore) {
	ttl := time.Duration(configs.STATE_CACHE_TTL) * time.Second

	switch configs.STORE_BACKEND {
	case "mongo":
		if err := storage.InitMongoDB(); err != nil {
			log.Fatalf("Failed to connect to MongoDB: %v", err)
		}
		db := storage.GetMongoDB()
		return storage.NewCachedStateStore(storage.NewMongoStateStore(db), ttl),
			storage.NewMongoPromptStore(db, ai.DefaultPrompt)

	case "file", "":
		if err := os.MkdirAll(configs.DATA_DIR, 0755); err != nil {
			log.Fatalf("Failed to create data directory: %v", err)
		}
		return storage.NewCachedStateStore(storage.NewFileStateStore(configs.DATA_DIR), ttl),
			storage.NewMemoryPromptStore(ai.DefaultPrompt)

	default:
		log.Fatalf("Unsupported STORE_BACKEND %q (supported: file, mongo)", configs.STORE_BACKEND)
		return nil, nil
	}
}
