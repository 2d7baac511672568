package infra

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv         string
	Port           string
	MetricsPort    string
	DatabaseURL    string
	RedisURL       string
	QueueName      string
	KafkaBrokers   []string
	KafkaTopic     string
	StoragePath    string
	StorageBaseURL string

	VertexProjectID       string
	VertexLocation        string
	VertexBaseURL         string
	VertexCredentialsFile string
	VertexCredentialsJSON string
	VertexStorageURI      string
	VEO3Model             string
	VEO2Model             string

	RunwayAPIKey  string
	RunwayBaseURL string
	RunwayModel   string

	ProviderOrder          []string
	ProviderRequestTimeout time.Duration
	ProviderRetries        int
	ProviderRetryBaseDelay time.Duration
	PollInterval           time.Duration
	PollBudget             time.Duration
	TokenRefreshSkew       time.Duration

	SynthFPS        int
	SynthShortSide  int
	SynthFFmpegPath string

	WorkerConcurrency int

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
	CORSOrigins      []string
	MaxUploadBytes   int64
}

// DefaultProviderOrder is the static priority list used when PROVIDER_ORDER is unset.
var DefaultProviderOrder = []string{"vertex-veo3", "vertex-veo2", "runway"}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	// Missing env files are fine.
	_ = godotenv.Load(".env", ".env.local")

	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		Port:           port,
		MetricsPort:    getEnv("METRICS_PORT", "9091"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       getEnv("REDIS_URL", "redis://localhost:6379/0"),
		QueueName:      getEnv("QUEUE_NAME", "dreamframe:generations"),
		KafkaBrokers:   splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:     getEnv("KAFKA_TOPIC", "dreamframe.generation-results"),
		StoragePath:    getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL: getEnv("STORAGE_BASE_URL", fmt.Sprintf("http://localhost:%s/static", port)),

		VertexProjectID:       os.Getenv("VERTEX_PROJECT_ID"),
		VertexLocation:        getEnv("VERTEX_LOCATION", "us-central1"),
		VertexBaseURL:         os.Getenv("VERTEX_BASE_URL"),
		VertexCredentialsFile: os.Getenv("VERTEX_CREDENTIALS_FILE"),
		VertexCredentialsJSON: os.Getenv("VERTEX_CREDENTIALS_JSON"),
		VertexStorageURI:      os.Getenv("VERTEX_STORAGE_URI"),
		VEO3Model:             getEnv("VEO3_MODEL", "veo-3.0-generate-001"),
		VEO2Model:             getEnv("VEO2_MODEL", "veo-2.0-generate-001"),

		RunwayAPIKey:  os.Getenv("RUNWAYML_API_KEY"),
		RunwayBaseURL: getEnv("RUNWAYML_BASE_URL", "https://api.dev.runwayml.com/v1"),
		RunwayModel:   getEnv("RUNWAYML_MODEL", "gen3a_turbo"),

		ProviderOrder:          splitList(os.Getenv("PROVIDER_ORDER")),
		ProviderRequestTimeout: getEnvDuration("PROVIDER_REQUEST_TIMEOUT", 30*time.Second),
		ProviderRetries:        getEnvInt("PROVIDER_RETRIES", 2),
		ProviderRetryBaseDelay: getEnvDuration("PROVIDER_RETRY_BASE_DELAY", time.Second),
		PollInterval:           getEnvDuration("POLL_INTERVAL", 10*time.Second),
		PollBudget:             getEnvDuration("POLL_BUDGET", 5*time.Minute),
		TokenRefreshSkew:       getEnvDuration("TOKEN_REFRESH_SKEW", 5*time.Minute),

		SynthFPS:        getEnvInt("SYNTH_FPS", 24),
		SynthShortSide:  getEnvInt("SYNTH_SHORT_SIDE", 720),
		SynthFFmpegPath: os.Getenv("SYNTH_FFMPEG_PATH"),

		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 4),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		CORSOrigins:      splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
		MaxUploadBytes:   int64(getEnvInt("MAX_UPLOAD_BYTES", 10<<20)),
	}

	if len(cfg.ProviderOrder) == 0 {
		cfg.ProviderOrder = append([]string(nil), DefaultProviderOrder...)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if _, err := url.Parse(cfg.StorageBaseURL); err != nil {
		return nil, fmt.Errorf("STORAGE_BASE_URL is invalid: %w", err)
	}
	if cfg.PollInterval <= 0 || cfg.PollBudget <= 0 {
		return nil, fmt.Errorf("POLL_INTERVAL and POLL_BUDGET must be positive")
	}
	if cfg.ProviderRetries < 0 {
		cfg.ProviderRetries = 0
	}
	if cfg.WorkerConcurrency <= 0 {
		cfg.WorkerConcurrency = 1
	}

	return cfg, nil
}

// HasVertexCredentials reports whether a service account was injected.
func (c *Config) HasVertexCredentials() bool {
	return strings.TrimSpace(c.VertexCredentialsFile) != "" || strings.TrimSpace(c.VertexCredentialsJSON) != ""
}

// VertexCredentials returns the service-account JSON, reading the file when configured.
func (c *Config) VertexCredentials() ([]byte, error) {
	if raw := strings.TrimSpace(c.VertexCredentialsJSON); raw != "" {
		return []byte(raw), nil
	}
	path := strings.TrimSpace(c.VertexCredentialsFile)
	if path == "" {
		return nil, fmt.Errorf("vertex credentials not configured")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vertex credentials: %w", err)
	}
	return data, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
