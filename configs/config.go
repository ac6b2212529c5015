// config.go - Configuration loaded from environment variables

package configs

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

var (
	// AI provider configuration
	OCR_PROVIDER       string // "gemini" or "mistral"
	GEMINI_API_KEY     string
	MODEL_NAME         string
	MISTRAL_API_KEY    string
	MISTRAL_MODEL_NAME string
	AI_TIMEOUT         int // seconds per inference call

	// Gemini pricing (per 1M tokens in USD)
	GEMINI_INPUT_PRICE_PER_MILLION  float64
	GEMINI_OUTPUT_PRICE_PER_MILLION float64
	USD_TO_JPY                      float64

	// Rate limiting for the inference service
	RATE_LIMIT_TOKENS         int
	RATE_LIMIT_REFILL_SECONDS int

	// Server configuration
	PORT            string
	ALLOWED_ORIGINS string

	// State persistence
	STORE_BACKEND   string // "file" or "mongo"
	DATA_DIR        string
	APP_ID          string
	STATE_CACHE_TTL int // seconds

	// MongoDB configuration
	MONGO_URI     string
	MONGO_DB_NAME string

	// Extraction behaviour
	HISTORY_LIMIT       int
	RESOLVER_RULES_PATH string
	CSV_LINE_ENDING     string // "lf" or "crlf"

	// Image preprocessing settings
	ENABLE_IMAGE_PREPROCESSING bool
	MAX_IMAGE_DIMENSION        int
)

// LoadConfig loads configuration from environment variables.
// The API key is checked by the caller that actually needs it (see RequireAPIKey).
func LoadConfig() {
	// Load .env file if exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	OCR_PROVIDER = getEnv("OCR_PROVIDER", "gemini")
	GEMINI_API_KEY = getEnv("GEMINI_API_KEY", "")
	MODEL_NAME = getEnv("MODEL_NAME", "gemini-2.0-flash")
	MISTRAL_API_KEY = getEnv("MISTRAL_API_KEY", "")
	MISTRAL_MODEL_NAME = getEnv("MISTRAL_MODEL_NAME", "pixtral-large-latest")
	AI_TIMEOUT = getEnvInt("AI_TIMEOUT", 90)

	// Gemini 2.0 Flash pricing by default
	GEMINI_INPUT_PRICE_PER_MILLION = getEnvFloat("GEMINI_INPUT_PRICE_PER_MILLION", 0.10)
	GEMINI_OUTPUT_PRICE_PER_MILLION = getEnvFloat("GEMINI_OUTPUT_PRICE_PER_MILLION", 0.40)
	USD_TO_JPY = getEnvFloat("USD_TO_JPY", 150.0)

	RATE_LIMIT_TOKENS = getEnvInt("RATE_LIMIT_TOKENS", 12)
	RATE_LIMIT_REFILL_SECONDS = getEnvInt("RATE_LIMIT_REFILL_SECONDS", 5)

	PORT = getEnv("PORT", "8080")
	ALLOWED_ORIGINS = getEnv("ALLOWED_ORIGINS", "*")

	STORE_BACKEND = getEnv("STORE_BACKEND", "file")
	DATA_DIR = getEnv("DATA_DIR", "data")
	APP_ID = getEnv("APP_ID", "invoice_app_data_v4")
	STATE_CACHE_TTL = getEnvInt("STATE_CACHE_TTL", 300)

	MONGO_URI = getEnv("MONGO_URI", "mongodb://localhost:27017")
	MONGO_DB_NAME = getEnv("MONGO_DB_NAME", "document_extract")

	HISTORY_LIMIT = getEnvInt("HISTORY_LIMIT", 50)
	RESOLVER_RULES_PATH = getEnv("RESOLVER_RULES_PATH", "")
	CSV_LINE_ENDING = getEnv("CSV_LINE_ENDING", "lf")

	ENABLE_IMAGE_PREPROCESSING = getEnvBool("ENABLE_IMAGE_PREPROCESSING", false)
	MAX_IMAGE_DIMENSION = getEnvInt("MAX_IMAGE_DIMENSION", 2000)

	log.Println("✓ Configuration loaded successfully")
}

// RequireAPIKey stops the process when the configured provider has no key.
func RequireAPIKey() {
	switch OCR_PROVIDER {
	case "mistral":
		if MISTRAL_API_KEY == "" {
			log.Fatal("MISTRAL_API_KEY environment variable is required")
		}
	default:
		if GEMINI_API_KEY == "" {
			log.Fatal("GEMINI_API_KEY environment variable is required")
		}
	}
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}
