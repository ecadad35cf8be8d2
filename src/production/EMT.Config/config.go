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

// ReceiverConfig holds all configuration for the receiver service
type ReceiverConfig struct {
	Server   ServerConfig   `json:"server"`
	Mongo    MongoConfig    `json:"mongo"`
	MQTT     MQTTConfig     `json:"mqtt"`
	Ingest   IngestConfig   `json:"ingest"`
	Registry RegistryConfig `json:"registry"`
	Logging  LoggingConfig  `json:"logging"`
	CORS     CORSConfig     `json:"cors"`
}

// ServerConfig holds the HTTP server configuration
type ServerConfig struct {
	Port         string        `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
}

// MongoConfig holds the MongoDB configuration
type MongoConfig struct {
	URI                string `json:"uri"`
	Database           string `json:"database"`
	ReadingCollection  string `json:"reading_collection"`
	MaxDemandCollection string `json:"max_demand_collection"`
}

// MQTTConfig holds MQTT broker configuration
type MQTTConfig struct {
	BrokerHost  string        `json:"broker_host"`
	BrokerPort  int           `json:"broker_port"`
	BrokerUser  string        `json:"broker_user"`
	BrokerPass  string        `json:"broker_pass"`
	UseTLS      bool          `json:"use_tls"`
	CACertPath  string        `json:"ca_cert_path"`
	ClientID    string        `json:"client_id"`
	KeepAlive   time.Duration `json:"keep_alive"`
	PingTimeout time.Duration `json:"ping_timeout"`
}

// IngestConfig holds the ingestion and liveness policy knobs
type IngestConfig struct {
	// MinGapSeconds is the minimum elapsed device time between two persisted
	// readings for the same chip; closer samples are skipped.
	MinGapSeconds int64 `json:"min_gap_seconds"`

	// TimezoneOffsetMinutes shifts the derived UTC timestamp into the local
	// reporting time, e.g. 330 for UTC+5:30.
	TimezoneOffsetMinutes int `json:"timezone_offset_minutes"`

	// GracePeriod is the maximum silence before a device is reported offline.
	GracePeriod       time.Duration `json:"grace_period"`
	SweepInterval     time.Duration `json:"sweep_interval"`
	HeartbeatInterval time.Duration `json:"heartbeat_interval"`

	// IdentityScheme selects the topic scheme: "chip" or "generator".
	IdentityScheme string `json:"identity_scheme"`

	// EnableAnomalyDetection turns on the severity classifier before broadcast.
	EnableAnomalyDetection bool `json:"enable_anomaly_detection"`
}

// RegistryConfig holds the external device registry configuration
type RegistryConfig struct {
	URL     string        `json:"url"`
	Timeout time.Duration `json:"timeout"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level        string `json:"level"`
	Format       string `json:"format"` // json or text
	Output       string `json:"output"` // stdout or stderr
	EnableCaller bool   `json:"enable_caller"`
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	ExposedHeaders   []string `json:"exposed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	MaxAge           int      `json:"max_age"`
}

// LoadReceiverConfig loads the receiver configuration from the environment,
// with a .env file as an optional source.
func LoadReceiverConfig() (*ReceiverConfig, error) {
	// Missing .env is fine; env vars may be set directly.
	_ = godotenv.Load()

	config := &ReceiverConfig{
		Server: ServerConfig{
			Port:         getEnv("PORT", "3002"),
			ReadTimeout:  getDuration("READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getDuration("WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getDuration("IDLE_TIMEOUT", 120*time.Second),
		},
		Mongo: MongoConfig{
			URI:                 getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database:            getEnv("MONGODB_DATABASE", "energy_meter"),
			ReadingCollection:   getEnv("MONGODB_READING_COLLECTION", "datas"),
			MaxDemandCollection: getEnv("MONGODB_MAXDEMAND_COLLECTION", "maximumdemanddevices"),
		},
		MQTT: MQTTConfig{
			BrokerHost:  getEnv("BROKER_HOST", "localhost"),
			BrokerPort:  getInt("BROKER_PORT", 1883),
			BrokerUser:  getEnv("MQTT_USERNAME", ""),
			BrokerPass:  getEnv("MQTT_PASSWORD", ""),
			UseTLS:      getBool("BROKER_TLS", false),
			CACertPath:  getEnv("BROKER_CA_FILE", ""),
			ClientID:    getEnv("MQTT_CLIENT_ID", "emt-receiver"),
			KeepAlive:   getDuration("MQTT_KEEP_ALIVE", 30*time.Second),
			PingTimeout: getDuration("MQTT_PING_TIMEOUT", 10*time.Second),
		},
		Ingest: IngestConfig{
			MinGapSeconds:          int64(getInt("MIN_GAP_SECONDS", 60)),
			TimezoneOffsetMinutes:  getInt("TIMEZONE_OFFSET_MINUTES", 330),
			GracePeriod:            getDuration("GRACE_PERIOD", 12*time.Second),
			SweepInterval:          getDuration("SWEEP_INTERVAL", 2*time.Second),
			HeartbeatInterval:      getDuration("HEARTBEAT_INTERVAL", 5*time.Second),
			IdentityScheme:         getEnv("IDENTITY_SCHEME", "chip"),
			EnableAnomalyDetection: getBool("ENABLE_ANOMALY_DETECTION", false),
		},
		Registry: RegistryConfig{
			URL:     getEnv("REGISTRY_URL", ""),
			Timeout: getDuration("REGISTRY_TIMEOUT", 10*time.Second),
		},
		Logging: LoggingConfig{
			Level:        getEnv("LOG_LEVEL", "info"),
			Format:       getEnv("LOG_FORMAT", "text"),
			Output:       getEnv("LOG_OUTPUT", "stdout"),
			EnableCaller: getBool("LOG_ENABLE_CALLER", false),
		},
		CORS: CORSConfig{
			AllowedOrigins:   getStringSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods:   getStringSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
			AllowedHeaders:   getStringSlice("CORS_ALLOWED_HEADERS", []string{"Origin", "Content-Type", "Accept"}),
			ExposedHeaders:   getStringSlice("CORS_EXPOSED_HEADERS", []string{"Content-Length"}),
			AllowCredentials: getBool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           getInt("CORS_MAX_AGE", 43200), // 12 hours
		},
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *ReceiverConfig) Validate() error {
	if c.Mongo.URI == "" {
		return fmt.Errorf("MONGODB_URI is required")
	}
	if c.Ingest.MinGapSeconds < 0 {
		return fmt.Errorf("MIN_GAP_SECONDS must not be negative")
	}
	if c.Ingest.IdentityScheme != "chip" && c.Ingest.IdentityScheme != "generator" {
		return fmt.Errorf("IDENTITY_SCHEME must be chip or generator, got %q", c.Ingest.IdentityScheme)
	}
	if c.Ingest.GracePeriod <= 0 {
		return fmt.Errorf("GRACE_PERIOD must be positive")
	}
	return nil
}

// GetMQTTBrokerURL returns the MQTT broker URL
func (c *ReceiverConfig) GetMQTTBrokerURL() string {
	scheme := "tcp"
	if c.MQTT.UseTLS {
		scheme = "tcps"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.MQTT.BrokerHost, c.MQTT.BrokerPort)
}

// Location returns the fixed-offset zone readings are reported in.
func (c *IngestConfig) Location() *time.Location {
	return time.FixedZone("local", c.TimezoneOffsetMinutes*60)
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Fatalf("invalid %s: %v", key, err)
	}
	return intValue
}

func getBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if value == "1" || value == "true" || value == "TRUE" {
		return true
	}
	if value == "0" || value == "false" || value == "FALSE" {
		return false
	}
	log.Fatalf("invalid %s: %q (expected true/false or 1/0)", key, value)
	return defaultValue
}

func getStringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := make([]string, 0)
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	if len(parts) == 0 {
		return defaultValue
	}
	return parts
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		log.Fatalf("invalid %s: %v", key, err)
	}
	return duration
}
