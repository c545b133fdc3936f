// Package config loads the execution core's configuration from the
// environment, following the same getEnv/getEnvAsInt/getEnvAsBool shape the
// rest of this lineage's services use.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Mode selects the disjoint credential set a process uses for its whole
// lifetime; demo and real must never cross within one invocation.
type Mode string

const (
	ModeDemo   Mode = "demo"
	ModeReal   Mode = "real"
	ModeDryRun Mode = "dry-run"
)

type Config struct {
	DataDir     string
	LogLevel    string
	DefaultMode Mode
	AutoTrading bool

	// KRHolidays is the externally supplied KR market holiday set; the US
	// set is computed from NYSE rules and needs no configuration.
	KRHolidays []time.Time

	DefaultUnitAmountKRW float64
	DefaultUnitAmountUSD float64

	KRBrokerBaseURL string
	USBrokerBaseURL string
	KRBrokerAPIKey  string
	KRBrokerSecret  string
	USBrokerAPIKey  string
	USBrokerSecret  string

	Coordinator CoordinatorConfig
	Scheduler   SchedulerConfig
	Ledger      LedgerConfig
	PubSub      PubSubConfig
	Reliability ReliabilityConfig
	Health      HealthConfig
	Notifier    NotifierConfig
}

type CoordinatorConfig struct {
	GlobalConcurrency int
	TimeoutSeconds    int
}

type SchedulerConfig struct {
	PollIntervalSeconds int
}

type LedgerConfig struct {
	SlotLimit              int
	SectorMaxPositions     int
	SectorConcentrationMax float64
	BuyCooldownDays        int
	MinimumHoldDays        int
}

type PubSubConfig struct {
	ProjectID        string
	SubscriptionID   string
	CredentialsPath  string
}

type ReliabilityConfig struct {
	S3Bucket          string
	S3Endpoint        string
	S3Region          string
	S3AccessKeyID     string
	S3SecretAccessKey string
	BackupHour        int
}

type HealthConfig struct {
	Port int
}

type NotifierConfig struct {
	SlackWebhookURL   string
	DiscordWebhookURL string
}

// Timeout returns the coordinator's per-operation deadline as a
// time.Duration, converted at the config boundary.
func (c CoordinatorConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// PollInterval returns the scheduler's poll period as a time.Duration.
func (s SchedulerConfig) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalSeconds) * time.Second
}

// Load reads configuration from environment variables, optionally seeded
// from a local .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir := getEnv("DATA_DIR", "./data")

	cfg := &Config{
		DataDir:     dataDir,
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DefaultMode: Mode(getEnv("DEFAULT_MODE", string(ModeDemo))),
		AutoTrading: getEnvAsBool("AUTO_TRADING", true),
		KRHolidays:  getEnvAsDates("KR_HOLIDAYS"),

		DefaultUnitAmountKRW: getEnvAsFloat("DEFAULT_UNIT_AMOUNT", 1000000),
		DefaultUnitAmountUSD: getEnvAsFloat("DEFAULT_UNIT_AMOUNT_USD", 1000),

		KRBrokerBaseURL: getEnv("KR_BROKER_SERVICE_URL", "http://localhost:9010"),
		USBrokerBaseURL: getEnv("US_BROKER_SERVICE_URL", "http://localhost:9011"),
		KRBrokerAPIKey:  getEnv("KR_BROKER_API_KEY", ""),
		KRBrokerSecret:  getEnv("KR_BROKER_API_SECRET", ""),
		USBrokerAPIKey:  getEnv("US_BROKER_API_KEY", ""),
		USBrokerSecret:  getEnv("US_BROKER_API_SECRET", ""),

		Coordinator: CoordinatorConfig{
			GlobalConcurrency: getEnvAsInt("COORDINATOR_GLOBAL_CONCURRENCY", 3),
			TimeoutSeconds:    getEnvAsInt("COORDINATOR_TIMEOUT_SECONDS", 30),
		},
		Scheduler: SchedulerConfig{
			PollIntervalSeconds: getEnvAsInt("SCHEDULER_POLL_INTERVAL_SECONDS", 60),
		},
		Ledger: LedgerConfig{
			SlotLimit:              getEnvAsInt("LEDGER_SLOT_LIMIT", 10),
			SectorMaxPositions:     getEnvAsInt("LEDGER_SECTOR_MAX_POSITIONS", 2),
			SectorConcentrationMax: getEnvAsFloat("LEDGER_SECTOR_CONCENTRATION_MAX", 0.4),
			BuyCooldownDays:        getEnvAsInt("LEDGER_BUY_COOLDOWN_DAYS", 30),
			MinimumHoldDays:        getEnvAsInt("LEDGER_MINIMUM_HOLD_DAYS", 90),
		},
		PubSub: PubSubConfig{
			ProjectID:       getEnv("PUBSUB_PROJECT_ID", ""),
			SubscriptionID:  getEnv("PUBSUB_SUBSCRIPTION_ID", ""),
			CredentialsPath: getEnv("PUBSUB_CREDENTIALS_PATH", ""),
		},
		Reliability: ReliabilityConfig{
			S3Bucket:          getEnv("RELIABILITY_S3_BUCKET", ""),
			S3Endpoint:        getEnv("RELIABILITY_S3_ENDPOINT", ""),
			S3Region:          getEnv("RELIABILITY_S3_REGION", ""),
			S3AccessKeyID:     getEnv("RELIABILITY_S3_ACCESS_KEY_ID", ""),
			S3SecretAccessKey: getEnv("RELIABILITY_S3_SECRET_ACCESS_KEY", ""),
			BackupHour:        getEnvAsInt("RELIABILITY_BACKUP_HOUR", 2),
		},
		Health: HealthConfig{
			Port: getEnvAsInt("HEALTH_PORT", 8090),
		},
		Notifier: NotifierConfig{
			SlackWebhookURL:   getEnv("NOTIFIER_SLACK_WEBHOOK_URL", ""),
			DiscordWebhookURL: getEnv("NOTIFIER_DISCORD_WEBHOOK_URL", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks invariants that must hold before the process starts
// accepting signals.
func (c *Config) Validate() error {
	switch c.DefaultMode {
	case ModeDemo, ModeReal, ModeDryRun:
	default:
		return fmt.Errorf("invalid DEFAULT_MODE %q: must be demo, real, or dry-run", c.DefaultMode)
	}

	if c.DefaultMode == ModeReal {
		if c.KRBrokerAPIKey == "" || c.USBrokerAPIKey == "" {
			return fmt.Errorf("real mode requires KR_BROKER_API_KEY and US_BROKER_API_KEY")
		}
	}

	if c.PubSub.ProjectID == "" || c.PubSub.SubscriptionID == "" {
		return fmt.Errorf("PUBSUB_PROJECT_ID and PUBSUB_SUBSCRIPTION_ID are required")
	}

	if c.Coordinator.GlobalConcurrency <= 0 {
		return fmt.Errorf("coordinator.global_concurrency must be positive")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// getEnvAsDates parses a comma-separated list of YYYY-MM-DD dates, silently
// skipping entries that fail to parse.
func getEnvAsDates(key string) []time.Time {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var dates []time.Time
	for _, part := range strings.Split(value, ",") {
		d, err := time.Parse("2006-01-02", strings.TrimSpace(part))
		if err != nil {
			continue
		}
		dates = append(dates, d)
	}
	return dates
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
