package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig
	Detection DetectionConfig
	RAG       RAGConfig
	Geohash   GeohashConfig
	LLM       LLMConfig
	Alert     AlertConfig
	Ingest    IngestConfig
	DB        DatabaseConfig
	Geocoder  GeocoderConfig
	EventBus  EventBusConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	RateLimitRPS   int
	RequestTimeout time.Duration
}

// DetectionConfig covers the fusion neighbourhood and the cut for alerting (spec §6).
type DetectionConfig struct {
	RiskThreshold       float64
	CorrelationRadiusM  float64
	ClusterRadiusM      float64
	MinClusterSize      int
	WindowSeconds       int
	FanOut              int
	DetectTimeout       time.Duration
	ZoneQueryTimeout    time.Duration
	TelemetryFetchPage  time.Duration
}

type RAGConfig struct {
	MaxDistanceKM float64 // nearest()
	RadiusKM      float64 // within_radius()
	HazardDefaults map[string]float64
}

type GeohashConfig struct {
	ZonePrecision      int // 4
	EnrichmentPrecision int // 6
}

type LLMConfig struct {
	ModelID        string
	MaxTokens      int
	Temperature    float64
	TopP           float64
	MaxAttempts    int
	BackoffBaseS   float64
	BackoffCapS    float64
	CallTimeout    time.Duration
	Endpoint       string
	APIKey         string
}

type AlertConfig struct {
	TTLSeconds        int64
	DedupWindowS      int64
	ExpireGraceHours  int
}

type IngestConfig struct {
	EnableEnrichment    bool
	EnableEventPublish  bool
	BatchTimeout        time.Duration
}

type DatabaseConfig struct {
	Path string
}

type GeocoderConfig struct {
	Enabled    bool
	MapboxToken string
	CacheSize  int
}

type EventBusConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
	AlertTopic string
}

type LoggingConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "localhost"),
			Port:           getEnvInt("SERVER_PORT", 8080),
			RateLimitRPS:   getEnvInt("SERVER_RATE_LIMIT_RPS", 10),
			RequestTimeout: getEnvDuration("SERVER_REQUEST_TIMEOUT", 60*time.Second),
		},
		Detection: DetectionConfig{
			RiskThreshold:      getEnvFloat("RISK_THRESHOLD", 0.6),
			CorrelationRadiusM: getEnvFloat("CORRELATION_RADIUS_M", 50),
			ClusterRadiusM:     getEnvFloat("CLUSTER_RADIUS_M", 50),
			MinClusterSize:     getEnvInt("MIN_CLUSTER_SIZE", 3),
			WindowSeconds:      getEnvInt("WINDOW_SECONDS", 24*3600),
			FanOut:             getEnvInt("DETECT_FAN_OUT", 8),
			DetectTimeout:      getEnvDuration("DETECT_TIMEOUT", 5*time.Minute),
			ZoneQueryTimeout:   getEnvDuration("ZONE_QUERY_TIMEOUT", 3*time.Second),
			TelemetryFetchPage: getEnvDuration("TELEMETRY_FETCH_PAGE_TIMEOUT", 5*time.Second),
		},
		RAG: RAGConfig{
			MaxDistanceKM: getEnvFloat("RAG_MAX_DISTANCE_KM", 5.0),
			RadiusKM:      getEnvFloat("RAG_RADIUS_KM", 1.0),
			HazardDefaults: map[string]float64{
				"Colluvium": 35,
				"Residual":  45,
				"Fill":      30,
				"Bedrock":   60,
			},
		},
		Geohash: GeohashConfig{
			ZonePrecision:       getEnvInt("GEOHASH_ZONE_PRECISION", 4),
			EnrichmentPrecision: getEnvInt("GEOHASH_ENRICHMENT_PRECISION", 6),
		},
		LLM: LLMConfig{
			ModelID:      getEnv("LLM_MODEL_ID", "nbro-geotechnical-v1"),
			MaxTokens:    getEnvInt("LLM_MAX_TOKENS", 1024),
			Temperature:  getEnvFloat("LLM_TEMPERATURE", 0.2),
			TopP:         getEnvFloat("LLM_TOP_P", 0.9),
			MaxAttempts:  getEnvInt("LLM_MAX_ATTEMPTS", 6),
			BackoffBaseS: getEnvFloat("LLM_BACKOFF_BASE_S", 0.6),
			BackoffCapS:  getEnvFloat("LLM_BACKOFF_CAP_S", 6.0),
			CallTimeout:  getEnvDuration("LLM_CALL_TIMEOUT", 20*time.Second),
			Endpoint:     getEnv("LLM_ENDPOINT", ""),
			APIKey:       getEnv("LLM_API_KEY", ""),
		},
		Alert: AlertConfig{
			TTLSeconds:       getEnvInt64("ALERT_TTL_SECONDS", 30*24*3600),
			DedupWindowS:     getEnvInt64("ALERT_DEDUP_WINDOW_S", 6*3600),
			ExpireGraceHours: getEnvInt("ALERT_EXPIRE_GRACE_HOURS", 24),
		},
		Ingest: IngestConfig{
			EnableEnrichment:   getEnvBool("ENABLE_ENRICHMENT", true),
			EnableEventPublish: getEnvBool("ENABLE_EVENT_PUBLISH", true),
			BatchTimeout:       getEnvDuration("INGEST_BATCH_TIMEOUT", 60*time.Second),
		},
		DB: DatabaseConfig{
			Path: getEnv("DB_PATH", "./data/openlews.db"),
		},
		Geocoder: GeocoderConfig{
			Enabled:     getEnvBool("GEOCODER_ENABLED", false),
			MapboxToken: getEnv("MAPBOX_TOKEN", ""),
			CacheSize:   getEnvInt("GEOCODER_CACHE_SIZE", 512),
		},
		EventBus: EventBusConfig{
			Enabled:    getEnvBool("EVENT_BUS_ENABLED", false),
			Brokers:    splitCSV(getEnv("KAFKA_BROKERS", "localhost:9092")),
			Topic:      getEnv("KAFKA_TELEMETRY_TOPIC", "openlews.telemetry"),
			AlertTopic: getEnv("KAFKA_ALERT_TOPIC", "openlews.alerts"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Detection.RiskThreshold < 0 || c.Detection.RiskThreshold > 1 {
		return fmt.Errorf("risk_threshold must be in [0,1]: %f", c.Detection.RiskThreshold)
	}
	if c.Detection.MinClusterSize < 1 {
		return fmt.Errorf("min_cluster_size must be >= 1: %d", c.Detection.MinClusterSize)
	}
	if c.Geohash.ZonePrecision < 1 || c.Geohash.EnrichmentPrecision < 1 {
		return fmt.Errorf("geohash precisions must be positive")
	}
	if c.LLM.MaxAttempts < 1 {
		return fmt.Errorf("llm_max_attempts must be >= 1: %d", c.LLM.MaxAttempts)
	}

	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
