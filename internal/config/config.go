package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mr1hm/disaster-sentinel/internal/models"
)

type Config struct {
	Server     ServerConfig
	Worker     WorkerConfig
	Sources    SourcesConfig
	DB         DatabaseConfig
	Logging    LoggingConfig
	Alerting   AlertingConfig
	Classifier ClassifierConfig
	Relay      RelayConfig
	Stream     StreamConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	RateLimit       float64 // requests per second per client, 0 disables
	RateBurst       int
	CORSOrigins     []string
	ShutdownTimeout time.Duration
}

type WorkerConfig struct {
	Count      int
	BufferSize int
}

type SourcesConfig struct {
	SimulationEnabled  bool
	SimulationInterval time.Duration
	SimulationTypes    []string
	USGSEnabled        bool
	USGSURL            string
	USGSPollInterval   time.Duration
}

type DatabaseConfig struct {
	Path string
}

type LoggingConfig struct {
	Level  string
	Format string
}

type AlertingConfig struct {
	AtomicGuards   bool
	RegionMatching bool
}

type ClassifierConfig struct {
	ThresholdsFile string
}

type RelayConfig struct {
	KafkaBrokers        []string
	KafkaTopic          string
	AMQPURL             string
	AMQPExchange        string
	CloudEventsEndpoint string
	Workers             int
	BufferSize          int
	Timeout             time.Duration
}

type StreamConfig struct {
	KeepAlive time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "localhost"),
			Port:            getEnvInt("SERVER_PORT", 9001),
			RateLimit:       getEnvFloat("RATE_LIMIT_RPS", 10),
			RateBurst:       getEnvInt("RATE_LIMIT_BURST", 20),
			CORSOrigins:     getEnvList("CORS_ORIGINS", []string{"*"}),
			ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Worker: WorkerConfig{
			Count:      getEnvInt("WORKER_COUNT", 2),
			BufferSize: getEnvInt("WORKER_BUFFER_SIZE", 20),
		},
		Sources: SourcesConfig{
			SimulationEnabled:  getEnvBool("SIMULATION_ENABLED", false),
			SimulationInterval: getEnvDuration("SIMULATION_INTERVAL", 30*time.Second),
			SimulationTypes:    getEnvList("SIMULATION_TYPES", []string{"EARTHQUAKE", "FLOOD", "FIRE"}),
			USGSEnabled:        getEnvBool("USGS_ENABLED", false),
			USGSURL:            getEnv("USGS_URL", "https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary/all_hour.geojson"),
			USGSPollInterval:   getEnvDuration("USGS_POLL_INTERVAL", 5*time.Minute),
		},
		DB: DatabaseConfig{
			Path: getEnv("DB_PATH", "./data/disaster-sentinel.db"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Alerting: AlertingConfig{
			AtomicGuards:   getEnvBool("ALERT_ATOMIC_GUARDS", true),
			RegionMatching: getEnvBool("ALERT_REGION_MATCHING", false),
		},
		Classifier: ClassifierConfig{
			ThresholdsFile: getEnv("CLASSIFIER_THRESHOLDS_FILE", ""),
		},
		Relay: RelayConfig{
			KafkaBrokers:        getEnvList("RELAY_KAFKA_BROKERS", nil),
			KafkaTopic:          getEnv("RELAY_KAFKA_TOPIC", "disaster-alerts"),
			AMQPURL:             getEnv("RELAY_AMQP_URL", ""),
			AMQPExchange:        getEnv("RELAY_AMQP_EXCHANGE", "disaster-alerts"),
			CloudEventsEndpoint: getEnv("RELAY_CLOUDEVENTS_ENDPOINT", ""),
			Workers:             getEnvInt("RELAY_WORKERS", 2),
			BufferSize:          getEnvInt("RELAY_BUFFER_SIZE", 100),
			Timeout:             getEnvDuration("RELAY_TIMEOUT", 5*time.Second),
		},
		Stream: StreamConfig{
			KeepAlive: getEnvDuration("STREAM_KEEPALIVE", 15*time.Second),
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
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("rate limit cannot be negative: %v", c.Server.RateLimit)
	}

	if c.Worker.Count < 1 {
		return fmt.Errorf("worker count must be at least 1, got %d", c.Worker.Count)
	}
	if c.Worker.BufferSize < 0 {
		return fmt.Errorf("worker buffer size cannot be negative, got %d", c.Worker.BufferSize)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	if c.Sources.SimulationEnabled {
		if c.Sources.SimulationInterval < time.Second {
			return fmt.Errorf("simulation interval must be at least 1 second")
		}
		for _, t := range c.Sources.SimulationTypes {
			if _, ok := models.ParseDisasterType(t); !ok {
				return fmt.Errorf("invalid simulation type: %s", t)
			}
		}
	}
	if c.Sources.USGSEnabled && c.Sources.USGSPollInterval < time.Minute {
		return fmt.Errorf("USGS poll interval must be at least 1 minute")
	}

	if c.Relay.Workers < 1 {
		return fmt.Errorf("relay workers must be at least 1, got %d", c.Relay.Workers)
	}
	if c.Stream.KeepAlive <= 0 {
		return fmt.Errorf("stream keepalive must be positive")
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

// getEnvList splits a comma-separated value, dropping empty entries.
func getEnvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
