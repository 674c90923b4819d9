package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// PlatformCredentials holds one platform's OAuth app credentials.
type PlatformCredentials struct {
	ClientID     string
	ClientSecret string
}

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

	// OAuth
	// RedirectBase is the externally reachable base URL; each platform's
	// callback is RedirectBase + /v1/connect/{platform}/callback.
	RedirectBase   string
	StateTTL       time.Duration // CSRF state lifetime
	RefreshMargin  time.Duration // refresh tokens expiring within this window
	Platforms      map[string]PlatformCredentials

	// Dispatch
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int           // publish attempts per target, including the first
	RetryBase    time.Duration // first retry delay; doubles per attempt

	// SQS dispatch queue
	SQSRegion   string
	SQSQueueURL string

	// Alerts
	AWSRegion      string
	AlertFromEmail string // SES sender
	AlertToEmail   string // operator inbox for action-required alerts
	AlertTopicARN  string // SNS topic for account/post events
	AlertWebhook   string // optional JSON webhook
	WebhookTimeout int    // seconds
}

// platformNames is the set of platforms credentials are read for.
var platformNames = []string{"facebook", "instagram", "twitter", "linkedin", "tiktok", "youtube"}

// Load reads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := &Config{
		Port:     8080,
		LogLevel: "info",
		Env:      "development",

		// Local postgres defaults
		DBHost:     "localhost",
		DBPort:     5432,
		DBUser:     "syndicate",
		DBPassword: "",
		DBName:     "syndicate",
		DBSSLMode:  "disable",

		// Redis defaults
		RedisHost:     "localhost",
		RedisPort:     6379,
		RedisPassword: "",
		RedisDB:       0,

		RedirectBase:  "http://localhost:8080",
		StateTTL:      10 * time.Minute,
		RefreshMargin: 5 * time.Minute,

		PollInterval: 5 * time.Second,
		BatchSize:    10,
		MaxAttempts:  3,
		RetryBase:    1 * time.Second,

		AWSRegion:      "us-east-1",
		AlertFromEmail: "alerts@syndicate.local",
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

	// OAuth config
	if base := os.Getenv("OAUTH_REDIRECT_BASE"); base != "" {
		cfg.RedirectBase = strings.TrimRight(base, "/")
	}

	if ttl := os.Getenv("OAUTH_STATE_TTL"); ttl != "" {
		d, err := time.ParseDuration(ttl)
		if err != nil {
			return nil, fmt.Errorf("invalid OAUTH_STATE_TTL: %w", err)
		}
		cfg.StateTTL = d
	}

	if margin := os.Getenv("TOKEN_REFRESH_MARGIN"); margin != "" {
		d, err := time.ParseDuration(margin)
		if err != nil {
			return nil, fmt.Errorf("invalid TOKEN_REFRESH_MARGIN: %w", err)
		}
		cfg.RefreshMargin = d
	}

	// Per-platform credentials: FACEBOOK_CLIENT_ID / FACEBOOK_CLIENT_SECRET etc.
	// Platforms without both values stay unregistered.
	cfg.Platforms = make(map[string]PlatformCredentials, len(platformNames))
	for _, name := range platformNames {
		prefix := strings.ToUpper(name)
		id := os.Getenv(prefix + "_CLIENT_ID")
		secret := os.Getenv(prefix + "_CLIENT_SECRET")
		if id != "" && secret != "" {
			cfg.Platforms[name] = PlatformCredentials{ClientID: id, ClientSecret: secret}
		}
	}

	// Dispatch config
	if interval := os.Getenv("POLL_INTERVAL"); interval != "" {
		d, err := time.ParseDuration(interval)
		if err != nil {
			return nil, fmt.Errorf("invalid POLL_INTERVAL: %w", err)
		}
		cfg.PollInterval = d
	}

	if size := os.Getenv("BATCH_SIZE"); size != "" {
		s, err := strconv.Atoi(size)
		if err != nil {
			return nil, fmt.Errorf("invalid BATCH_SIZE: %w", err)
		}
		cfg.BatchSize = s
	}

	if attempts := os.Getenv("MAX_PUBLISH_ATTEMPTS"); attempts != "" {
		a, err := strconv.Atoi(attempts)
		if err != nil {
			return nil, fmt.Errorf("invalid MAX_PUBLISH_ATTEMPTS: %w", err)
		}
		cfg.MaxAttempts = a
	}

	if base := os.Getenv("RETRY_BASE"); base != "" {
		d, err := time.ParseDuration(base)
		if err != nil {
			return nil, fmt.Errorf("invalid RETRY_BASE: %w", err)
		}
		cfg.RetryBase = d
	}

	if region := os.Getenv("AWS_REGION"); region != "" {
		cfg.AWSRegion = region
	}

	// SQS config
	if region := os.Getenv("SQS_REGION"); region != "" {
		cfg.SQSRegion = region
	} else {
		cfg.SQSRegion = cfg.AWSRegion
	}

	if url := os.Getenv("SQS_QUEUE_URL"); url != "" {
		cfg.SQSQueueURL = url
	}

	// Alerts config
	if from := os.Getenv("ALERT_FROM_EMAIL"); from != "" {
		cfg.AlertFromEmail = from
	}

	if to := os.Getenv("ALERT_TO_EMAIL"); to != "" {
		cfg.AlertToEmail = to
	}

	if arn := os.Getenv("ALERT_TOPIC_ARN"); arn != "" {
		cfg.AlertTopicARN = arn
	}

	if url := os.Getenv("ALERT_WEBHOOK_URL"); url != "" {
		cfg.AlertWebhook = url
	}

	if timeout := os.Getenv("WEBHOOK_TIMEOUT"); timeout != "" {
		t, err := strconv.Atoi(timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid WEBHOOK_TIMEOUT: %w", err)
		}
		cfg.WebhookTimeout = t
	} else {
		cfg.WebhookTimeout = 30 // default 30 seconds
	}

	return cfg, nil
}
