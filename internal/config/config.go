package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                    string
	FirebaseProjectID       string
	FirebaseCredentialsPath string
	FirebaseCredentialsJSON string // For serverless deploys: raw JSON string
	ListingsCollection      string
	MediaBucket             string // Private bucket holding listing images
	PlaceholderImageURL     string // Served when a media ref cannot be resolved
	SignedURLTTL            time.Duration
	ResolverCleanupInterval time.Duration
	FetchTimeout            time.Duration
	MaxUploadBytes          int     // Ceiling on one processed image
	MaxImageDimension       int     // Longest output edge in pixels
	MinJPEGQuality          int     // Compression search floor
	WatermarkOpacity        float64 // Overlay alpha in [0,1]
	AllowedOrigins          []string
	MerchantAPIKeys         map[string]string // API key -> merchant ID
	RateLimitRPS            float64
	RateLimitBurst          int
}

// Load reads configuration from environment variables and .env file.
// It loads the .env file if present, then populates the Config struct.
// Returns an error if required configuration is missing.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		Port:                    getEnv("PORT", "8080"),
		FirebaseProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),
		FirebaseCredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", "firebase-service-account.json"),
		FirebaseCredentialsJSON: getEnv("FIREBASE_CREDENTIALS_JSON", ""),
		ListingsCollection:      getEnv("LISTINGS_COLLECTION", "listings"),
		MediaBucket:             getEnv("MEDIA_BUCKET", ""),
		PlaceholderImageURL:     getEnv("PLACEHOLDER_IMAGE_URL", "/static/placeholder.png"),
		SignedURLTTL:            getDurationEnv("SIGNED_URL_TTL", 15*time.Minute),
		ResolverCleanupInterval: getDurationEnv("RESOLVER_CLEANUP_INTERVAL", 10*time.Minute),
		FetchTimeout:            getDurationEnv("FETCH_TIMEOUT", 10*time.Second),
		MaxUploadBytes:          getIntEnv("MAX_UPLOAD_BYTES", 1_500_000),
		MaxImageDimension:       getIntEnv("MAX_IMAGE_DIMENSION", 1600),
		MinJPEGQuality:          getIntEnv("MIN_JPEG_QUALITY", 30),
		WatermarkOpacity:        getFloatEnv("WATERMARK_OPACITY", 0.45),
		AllowedOrigins:          getList("ALLOWED_ORIGINS", []string{"*"}),
		MerchantAPIKeys:         getKeyMap("MERCHANT_API_KEYS"),
		RateLimitRPS:            getFloatEnv("RATE_LIMIT_RPS", 10),
		RateLimitBurst:          getIntEnv("RATE_LIMIT_BURST", 20),
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.FirebaseProjectID == "" {
		return fmt.Errorf("FIREBASE_PROJECT_ID is required")
	}
	if c.MediaBucket == "" {
		return fmt.Errorf("MEDIA_BUCKET is required")
	}
	if c.FirebaseCredentialsJSON == "" && c.FirebaseCredentialsPath == "" {
		return fmt.Errorf("either FIREBASE_CREDENTIALS_JSON or FIREBASE_CREDENTIALS_PATH must be set")
	}
	if c.ListingsCollection == "" {
		return fmt.Errorf("LISTINGS_COLLECTION is required")
	}
	if c.SignedURLTTL <= 0 {
		return fmt.Errorf("SIGNED_URL_TTL must be positive")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	if c.MaxImageDimension <= 0 {
		return fmt.Errorf("MAX_IMAGE_DIMENSION must be positive")
	}
	if c.WatermarkOpacity < 0 || c.WatermarkOpacity > 1 {
		return fmt.Errorf("WATERMARK_OPACITY must be in [0,1]")
	}
	return nil
}

// Retrieves an environment variable or returns a default value if not set.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return defaultValue
}

// Retrieves a duration from environment variable or returns a default value.
// It supports both time.Duration format (e.g., "10m", "12h") and integer minutes.
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

// Retrieves a comma-separated list from environment variable or returns a default value.
func getList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

// Retrieves an integer from environment variable or returns a default value.
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// Retrieves a float from environment variable or returns a default value.
func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// Parses "key:merchantID" pairs from a comma-separated environment variable.
// Malformed pairs are skipped with a warning rather than failing startup.
func getKeyMap(key string) map[string]string {
	result := make(map[string]string)
	for _, pair := range getList(key, nil) {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			log.Printf("Skipping malformed %s entry: %q", key, pair)
			continue
		}
		result[parts[0]] = parts[1]
	}
	return result
}
