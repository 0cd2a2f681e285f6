package config

import (
	"errors"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

var (
	AppEnv       string
	IsStaging    bool
	IsProduction bool

	JWTSecret string
	Port      string

	// DBDriver is one of sqlite, mysql, postgres.
	DBDriver    string
	DatabaseURL string
	RedisURL    string

	GeminiAPIKey    string
	GeminiModel     string
	IsGeminiEnabled bool

	// SummaryMode is "inline" (summarize on the request path) or "queue"
	// (enqueue to the asynq worker; needs RedisURL).
	SummaryMode            string
	SummaryCacheTTLSeconds int
	SummaryCacheMaxItems   int

	RetentionDays        int
	SweepIntervalMinutes int

	RateLimitWindowSeconds int
	RateLimitCapacity      int
	DuplicateWindowSeconds int

	CORSOrigins []string
)

var validEnvs = []string{"development", "staging", "production"}

// Load reads settings from the process environment. Outside production a
// .env file in the working directory is loaded first when present.
func Load() error {
	AppEnv = strings.TrimSpace(os.Getenv("APP_ENV"))
	if AppEnv == "" {
		AppEnv = "development"
	}
	if AppEnv != "production" {
		// .env is optional; values already in the environment win.
		_ = godotenv.Load()
	}
	if !slices.Contains(validEnvs, AppEnv) {
		return errors.New("environment variable APP_ENV must be 'development', 'staging' or 'production'")
	}
	IsStaging = AppEnv == "staging"
	IsProduction = AppEnv == "production"

	JWTSecret = os.Getenv("JWT_SECRET_KEY")
	if IsProduction && JWTSecret == "" {
		return errors.New("JWT_SECRET_KEY must be set in production")
	}
	if JWTSecret == "" {
		JWTSecret = "dev-secret"
	}
	Port = stringOr(os.Getenv("PORT"), "5000")

	DBDriver = strings.ToLower(stringOr(os.Getenv("DB_DRIVER"), "sqlite"))
	if !slices.Contains([]string{"sqlite", "mysql", "postgres"}, DBDriver) {
		return errors.New("DB_DRIVER must be one of sqlite, mysql, postgres")
	}
	DatabaseURL = stringOr(os.Getenv("DATABASE_URL"), "app.db")
	RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))

	GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	GeminiModel = stringOr(os.Getenv("GEMINI_MODEL"), "gemini-2.0-flash")
	IsGeminiEnabled = os.Getenv("IS_GEMINI_ENABLED") == "1"

	SummaryMode = strings.ToLower(stringOr(os.Getenv("SUMMARY_MODE"), "inline"))
	if SummaryMode != "inline" && SummaryMode != "queue" {
		SummaryMode = "inline"
	}
	SummaryCacheTTLSeconds = atoiOr(os.Getenv("SUMMARY_CACHE_TTL_SECONDS"), 3600)
	SummaryCacheMaxItems = atoiOr(os.Getenv("SUMMARY_CACHE_MAX_ITEMS"), 500)

	RetentionDays = atoiOr(os.Getenv("RETENTION_DAYS"), 30)
	SweepIntervalMinutes = atoiOr(os.Getenv("SWEEP_INTERVAL_MINUTES"), 60)

	RateLimitWindowSeconds = atoiOr(os.Getenv("RATE_LIMIT_WINDOW_SECONDS"), 10)
	RateLimitCapacity = atoiOr(os.Getenv("RATE_LIMIT_CAPACITY"), 5)
	DuplicateWindowSeconds = atoiOr(os.Getenv("DUPLICATE_WINDOW_SECONDS"), 45)

	CORSOrigins = splitCSV(stringOr(os.Getenv("CORS_ORIGINS"), "http://localhost:3000,http://127.0.0.1:3000"))
	return nil
}

func atoiOr(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil && v >= 0 {
		return v
	}
	return def
}

func stringOr(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return strings.TrimSpace(s)
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
