package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	Port     int
	LogLevel string
	Env      string

	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis config
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	// Cadence config
	UserID         string // owning user of this single-tenant deployment
	TriggerSecret  string // shared secret required on the trigger endpoint
	RunTimeoutSec  int    // wall-clock budget for one cadence run
	LockTTLSec     int    // per-channel run lock lease duration

	// AWS Services
	AWSRegion    string
	SESFromEmail string

	// SQS tick queue (EventBridge schedule target); empty disables the consumer
	SQSTickQueueURL string
	SQSRegion       string

	// SNS events topic; empty disables event publishing
	SNSEventsTopicARN string

	// WhatsApp Cloud API
	WhatsAppAPIURL      string
	WhatsAppAccessToken string
	WhatsAppFromNumber  string
	WhatsAppTimeoutSec  int
}

// Load reads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := &Config{
		Port:     8080,
		LogLevel: "info",
		Env:      "development",

		// Local postgres defaults
		DBHost:     "localhost",
		DBPort:     5432,
		DBUser:     "leadgrid",
		DBPassword: "",
		DBName:     "leadgrid",
		DBSSLMode:  "disable",

		// Redis defaults
		RedisHost:     "localhost",
		RedisPort:     6379,
		RedisPassword: "",
		RedisDB:       0,

		RunTimeoutSec: 300,
		LockTTLSec:    300,

		AWSRegion:    "us-east-1",
		SESFromEmail: "outreach@leadgrid.local",

		WhatsAppAPIURL:     "https://graph.facebook.com/v19.0",
		WhatsAppTimeoutSec: 30,
	}

	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		cfg.Port = p
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if env := os.Getenv("ENV"); env != "" {
		cfg.Env = env
	}

	// Database config
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.DBHost = host
	}

	if port := os.Getenv("DB_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid DB_PORT: %w", err)
		}
		cfg.DBPort = p
	}

	if user := os.Getenv("DB_USER"); user != "" {
		cfg.DBUser = user
	}

	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.DBPassword = password
	}

	if dbname := os.Getenv("DB_NAME"); dbname != "" {
		cfg.DBName = dbname
	}

	if sslmode := os.Getenv("DB_SSLMODE"); sslmode != "" {
		cfg.DBSSLMode = sslmode
	}

	// Redis config
	if host := os.Getenv("REDIS_HOST"); host != "" {
		cfg.RedisHost = host
	}

	if port := os.Getenv("REDIS_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_PORT: %w", err)
		}
		cfg.RedisPort = p
	}

	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.RedisPassword = password
	}

	if db := os.Getenv("REDIS_DB"); db != "" {
		d, err := strconv.Atoi(db)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		cfg.RedisDB = d
	}

	// Cadence config
	cfg.UserID = os.Getenv("CADENCE_USER_ID")
	if cfg.UserID == "" {
		return nil, fmt.Errorf("CADENCE_USER_ID is required")
	}

	cfg.TriggerSecret = os.Getenv("TRIGGER_SECRET")
	if cfg.TriggerSecret == "" {
		return nil, fmt.Errorf("TRIGGER_SECRET is required")
	}

	if timeout := os.Getenv("RUN_TIMEOUT_SEC"); timeout != "" {
		t, err := strconv.Atoi(timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid RUN_TIMEOUT_SEC: %w", err)
		}
		cfg.RunTimeoutSec = t
	}

	if ttl := os.Getenv("LOCK_TTL_SEC"); ttl != "" {
		t, err := strconv.Atoi(ttl)
		if err != nil {
			return nil, fmt.Errorf("invalid LOCK_TTL_SEC: %w", err)
		}
		cfg.LockTTLSec = t
	}

	// AWS config
	if region := os.Getenv("AWS_REGION"); region != "" {
		cfg.AWSRegion = region
	}

	if from := os.Getenv("SES_FROM_EMAIL"); from != "" {
		cfg.SESFromEmail = from
	}

	if region := os.Getenv("SQS_REGION"); region != "" {
		cfg.SQSRegion = region
	} else {
		cfg.SQSRegion = cfg.AWSRegion
	}

	if url := os.Getenv("SQS_TICK_QUEUE_URL"); url != "" {
		cfg.SQSTickQueueURL = url
	}

	if arn := os.Getenv("SNS_EVENTS_TOPIC_ARN"); arn != "" {
		cfg.SNSEventsTopicARN = arn
	}

	// WhatsApp config
	if url := os.Getenv("WHATSAPP_API_URL"); url != "" {
		cfg.WhatsAppAPIURL = url
	}

	if token := os.Getenv("WHATSAPP_ACCESS_TOKEN"); token != "" {
		cfg.WhatsAppAccessToken = token
	}

	if from := os.Getenv("WHATSAPP_FROM_NUMBER"); from != "" {
		cfg.WhatsAppFromNumber = from
	}

	if timeout := os.Getenv("WHATSAPP_TIMEOUT_SEC"); timeout != "" {
		t, err := strconv.Atoi(timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid WHATSAPP_TIMEOUT_SEC: %w", err)
		}
		cfg.WhatsAppTimeoutSec = t
	}

	return cfg, nil
}
