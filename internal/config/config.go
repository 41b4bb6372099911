// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database connection, retrieval tuning,
// session lifecycle, rate limiting, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-voice-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// EmbeddingConfig selects and tunes the embedding/generation provider.
type EmbeddingConfig struct {
	Provider string        // EMBEDDING_PROVIDER: "ollama" | "openai"
	BaseURL  string        // EMBEDDING_BASE_URL (provider endpoint)
	APIKey   string        // EMBEDDING_API_KEY (openai-compatible providers)
	Model    string        // EMBEDDING_MODEL
	ChatModel string       // CHAT_MODEL (summaries, optional)
	Dim      int           // EMBEDDING_DIM (vector dimension, must match the DB column)
	Timeout  time.Duration // EMBEDDING_TIMEOUT per request
}

// RAGConfig tunes the retrieval pipeline. All values have working defaults;
// they exist as configuration so the ranking behavior can be adjusted
// without a rebuild.
type RAGConfig struct {
	TopK              int     // RAG_TOP_K results returned by Search
	PoolThreshold     float64 // RAG_POOL_THRESHOLD minimum similarity to enter the candidate pool
	ContextThreshold  float64 // RAG_CONTEXT_THRESHOLD acceptance for context building
	SearchThreshold   float64 // RAG_SEARCH_THRESHOLD acceptance for direct search
	KeywordBoost      float64 // RAG_KEYWORD_BOOST added per distinct keyword hit
	BoostCap          float64 // RAG_BOOST_CAP maximum total keyword boost
	MinBaseSimilarity float64 // RAG_MIN_BASE_SIMILARITY base score required before boosting applies
	ChunkSize         int     // RAG_CHUNK_SIZE characters per chunk
	ChunkOverlap      int     // RAG_CHUNK_OVERLAP characters carried between chunks
	ContextBudget     int     // RAG_CONTEXT_BUDGET characters for assembled context
}

// SessionConfig tunes the session registry and idle sweeper.
type SessionConfig struct {
	IdleTimeout    time.Duration // SESSION_IDLE_TIMEOUT before a quiet session is reaped
	SweepInterval  time.Duration // SESSION_SWEEP_INTERVAL between sweeper passes
	TurnRetries    int           // SESSION_TURN_RETRIES persistence attempts per turn
	TurnRetryDelay time.Duration // SESSION_TURN_RETRY_DELAY base backoff between attempts
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool   // pretty console logs in dev
	APIBasePath string // base path for admin API routes

	// Database
	DatabaseURL string // Postgres DSN; empty selects local SQLite
	DBPath      string // SQLite path for local/dev mode
	DataDir     string // directory of knowledge-base documents to index

	// Domain
	Embedding EmbeddingConfig
	RAG       RAGConfig
	Session   SessionConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Database
		DatabaseURL: getenv("DATABASE_URL", ""),
		DBPath:      getenv("DB_PATH", "app.db"),
		DataDir:     getenv("DATA_DIR", "data"),

		// Embedding provider
		Embedding: EmbeddingConfig{
			Provider:  strings.ToLower(getenv("EMBEDDING_PROVIDER", "ollama")),
			BaseURL:   getenv("EMBEDDING_BASE_URL", "http://localhost:11434"),
			APIKey:    getenv("EMBEDDING_API_KEY", ""),
			Model:     getenv("EMBEDDING_MODEL", "nomic-embed-text"),
			ChatModel: getenv("CHAT_MODEL", ""),
			Dim:       getint("EMBEDDING_DIM", 768),
			Timeout:   getdur("EMBEDDING_TIMEOUT", 30*time.Second),
		},

		// Retrieval tuning
		RAG: RAGConfig{
			TopK:              getint("RAG_TOP_K", 3),
			PoolThreshold:     getfloat("RAG_POOL_THRESHOLD", 0.30),
			ContextThreshold:  getfloat("RAG_CONTEXT_THRESHOLD", 0.20),
			SearchThreshold:   getfloat("RAG_SEARCH_THRESHOLD", 0.30),
			KeywordBoost:      getfloat("RAG_KEYWORD_BOOST", 0.25),
			BoostCap:          getfloat("RAG_BOOST_CAP", 0.70),
			MinBaseSimilarity: getfloat("RAG_MIN_BASE_SIMILARITY", 0.05),
			ChunkSize:         getint("RAG_CHUNK_SIZE", 1000),
			ChunkOverlap:      getint("RAG_CHUNK_OVERLAP", 200),
			ContextBudget:     getint("RAG_CONTEXT_BUDGET", 6000),
		},

		// Session lifecycle
		Session: SessionConfig{
			IdleTimeout:    getdur("SESSION_IDLE_TIMEOUT", 30*time.Minute),
			SweepInterval:  getdur("SESSION_SWEEP_INTERVAL", 60*time.Second),
			TurnRetries:    getint("SESSION_TURN_RETRIES", 3),
			TurnRetryDelay: getdur("SESSION_TURN_RETRY_DELAY", 100*time.Millisecond),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-voice-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if cfg.DatabaseURL == "" && strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("either DATABASE_URL or DB_PATH must be set")
	}
	switch cfg.Embedding.Provider {
	case "ollama", "openai":
	default:
		return cfg, errors.New("EMBEDDING_PROVIDER must be one of: ollama, openai")
	}
	if strings.TrimSpace(cfg.Embedding.Model) == "" {
		return cfg, errors.New("EMBEDDING_MODEL must not be empty")
	}
	if cfg.Embedding.Dim <= 0 {
		return cfg, errors.New("EMBEDDING_DIM must be > 0")
	}
	if cfg.Embedding.Timeout <= 0 {
		return cfg, errors.New("EMBEDDING_TIMEOUT must be > 0")
	}
	if cfg.RAG.TopK < 1 {
		return cfg, errors.New("RAG_TOP_K must be >= 1")
	}
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"RAG_POOL_THRESHOLD", cfg.RAG.PoolThreshold},
		{"RAG_CONTEXT_THRESHOLD", cfg.RAG.ContextThreshold},
		{"RAG_SEARCH_THRESHOLD", cfg.RAG.SearchThreshold},
		{"RAG_KEYWORD_BOOST", cfg.RAG.KeywordBoost},
		{"RAG_BOOST_CAP", cfg.RAG.BoostCap},
		{"RAG_MIN_BASE_SIMILARITY", cfg.RAG.MinBaseSimilarity},
	} {
		if f.v < 0 || f.v > 1 {
			return cfg, errors.New(f.name + " must be between 0 and 1")
		}
	}
	if cfg.RAG.ChunkSize <= 0 {
		return cfg, errors.New("RAG_CHUNK_SIZE must be > 0")
	}
	if cfg.RAG.ChunkOverlap < 0 || cfg.RAG.ChunkOverlap >= cfg.RAG.ChunkSize {
		return cfg, errors.New("RAG_CHUNK_OVERLAP must be >= 0 and smaller than RAG_CHUNK_SIZE")
	}
	if cfg.RAG.ContextBudget <= 0 {
		return cfg, errors.New("RAG_CONTEXT_BUDGET must be > 0")
	}
	if cfg.Session.IdleTimeout <= 0 {
		return cfg, errors.New("SESSION_IDLE_TIMEOUT must be > 0")
	}
	if cfg.Session.SweepInterval <= 0 {
		return cfg, errors.New("SESSION_SWEEP_INTERVAL must be > 0")
	}
	if cfg.Session.TurnRetries < 1 {
		return cfg, errors.New("SESSION_TURN_RETRIES must be >= 1")
	}
	if cfg.Session.TurnRetryDelay < 0 {
		return cfg, errors.New("SESSION_TURN_RETRY_DELAY must be >= 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
