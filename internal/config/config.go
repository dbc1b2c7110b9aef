package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPPort    string
	DatabaseURL string
	LogLevel    string

	GeminiAPIKey  string
	GroqAPIKey    string
	GroqBaseURL   string
	DefaultModel  string
	FallbackModel string
	VisionModel   string

	EmbedTokenSecret string
	SessionTTL       time.Duration
	FetchTimeout     time.Duration
	SignupCredits    int

	UploadDir   string
	MaxUploadMB int

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	RedisAddr     string
	RedisPassword string

	LoginRatePerMin      int
	PublicChatRatePerMin int
}

// LoadConfig reads an optional dotenv file and then the process environment.
// It reports whether the dotenv file was found.
func LoadConfig(envFile string) (Config, bool) {
	if envFile == "" {
		envFile = ".env"
	}
	loaded := godotenv.Load(envFile) == nil

	cfg := Config{
		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", "chatbot.db"),
		LogLevel:    strings.ToLower(getEnv("LOG_LEVEL", "info")),

		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GroqAPIKey:    getEnv("GROQ_API_KEY", ""),
		GroqBaseURL:   getEnv("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
		DefaultModel:  getEnv("DEFAULT_MODEL", "gemini-2.5-flash"),
		FallbackModel: getEnv("FALLBACK_MODEL", "gemini-2.5-flash"),
		VisionModel:   getEnv("VISION_MODEL", "gemini-2.5-flash"),

		EmbedTokenSecret: getEnv("EMBED_TOKEN_SECRET", ""),
		SessionTTL:       getEnvAsDuration("SESSION_TTL", 7*24*time.Hour),
		FetchTimeout:     getEnvAsDuration("FETCH_TIMEOUT", 10*time.Second),
		SignupCredits:    getEnvAsInt("SIGNUP_CREDITS", 100),

		UploadDir:   getEnv("UPLOAD_DIR", "uploads"),
		MaxUploadMB: getEnvAsInt("MAX_UPLOAD_MB", 20),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", ""),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "knowledge"),
		MinioUseSSL:    getEnvAsBool("MINIO_USE_SSL", false),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		LoginRatePerMin:      getEnvAsInt("LOGIN_RATE_PER_MIN", 20),
		PublicChatRatePerMin: getEnvAsInt("PUBLIC_CHAT_RATE_PER_MIN", 30),
	}
	return cfg, loaded
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return strings.TrimSpace(value)
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil && value > 0 {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
