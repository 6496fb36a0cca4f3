package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Config holds application configuration
type Config struct {
	Port      string
	Storage   string
	DBConn    string
	LogLevel  string
	JWTSecret string
	JWTTTL    time.Duration

	// EncryptionKey is the PAN vault secret (encryption.secret-key)
	EncryptionKey     string
	MaxTransferAmount decimal.Decimal
	MaxBalance        decimal.Decimal

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SenderEmail  string

	ExpirySweepCron string

	AdminUsername string
	AdminPassword string
	AdminEmail    string
}

// fileConfig mirrors the optional YAML file; env vars override it
type fileConfig struct {
	Port     string `yaml:"port"`
	Storage  string `yaml:"storage"`
	DBConn   string `yaml:"db_conn"`
	LogLevel string `yaml:"log_level"`
	JWT      struct {
		Secret string `yaml:"secret"`
		TTL    string `yaml:"ttl"`
	} `yaml:"jwt"`
	Encryption struct {
		SecretKey string `yaml:"secret-key"`
	} `yaml:"encryption"`
	Validation struct {
		MaxTransferAmount string `yaml:"max-transfer-amount"`
		MaxBalance        string `yaml:"max-balance"`
	} `yaml:"validation"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       string `yaml:"db"`
	} `yaml:"redis"`
	SMTP struct {
		Host        string `yaml:"host"`
		Port        string `yaml:"port"`
		Username    string `yaml:"username"`
		Password    string `yaml:"password"`
		SenderEmail string `yaml:"sender_email"`
	} `yaml:"smtp"`
	ExpirySweepCron string `yaml:"expiry_sweep_cron"`
	Admin           struct {
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		Email    string `yaml:"email"`
	} `yaml:"admin"`
}

// NewConfig loads configuration from an optional YAML file (CONFIG_FILE) and environment variables
func NewConfig() (*Config, error) {
	var fc fileConfig
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg := &Config{
		Port:            getEnv("PORT", or(fc.Port, "8080")),
		Storage:         getEnv("STORAGE", or(fc.Storage, StoragePostgres)),
		DBConn:          getEnv("DB_CONN", or(fc.DBConn, "host=localhost port=5436 user=test password=test dbname=bank sslmode=disable")),
		LogLevel:        getEnv("LOG_LEVEL", or(fc.LogLevel, "INFO")),
		JWTSecret:       getEnv("JWT_SECRET", or(fc.JWT.Secret, "secret")),
		EncryptionKey:   getEnv("ENCRYPTION_KEY", or(fc.Encryption.SecretKey, "a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6")),
		RedisAddr:       getEnv("REDIS_ADDR", fc.Redis.Addr),
		RedisPassword:   getEnv("REDIS_PASSWORD", fc.Redis.Password),
		SMTPHost:        getEnv("SMTP_HOST", fc.SMTP.Host),
		SMTPPort:        getEnv("SMTP_PORT", or(fc.SMTP.Port, "587")),
		SMTPUsername:    getEnv("SMTP_USERNAME", fc.SMTP.Username),
		SMTPPassword:    getEnv("SMTP_PASSWORD", fc.SMTP.Password),
		SenderEmail:     getEnv("SENDER_EMAIL", or(fc.SMTP.SenderEmail, "noreply@bank.local")),
		ExpirySweepCron: getEnv("EXPIRY_SWEEP_CRON", fc.ExpirySweepCron),
		AdminUsername:   getEnv("ADMIN_USERNAME", fc.Admin.Username),
		AdminPassword:   getEnv("ADMIN_PASSWORD", fc.Admin.Password),
		AdminEmail:      getEnv("ADMIN_EMAIL", or(fc.Admin.Email, "admin@bank.local")),
	}

	var err error
	if cfg.JWTTTL, err = time.ParseDuration(getEnv("JWT_TTL", or(fc.JWT.TTL, "24h"))); err != nil {
		return nil, fmt.Errorf("invalid JWT_TTL: %w", err)
	}
	if cfg.MaxTransferAmount, err = decimal.NewFromString(getEnv("MAX_TRANSFER_AMOUNT", or(fc.Validation.MaxTransferAmount, "100000000"))); err != nil {
		return nil, fmt.Errorf("invalid MAX_TRANSFER_AMOUNT: %w", err)
	}
	if cfg.MaxBalance, err = decimal.NewFromString(getEnv("MAX_BALANCE", or(fc.Validation.MaxBalance, "1000000000"))); err != nil {
		return nil, fmt.Errorf("invalid MAX_BALANCE: %w", err)
	}
	if cfg.RedisDB, err = strconv.Atoi(getEnv("REDIS_DB", or(fc.Redis.DB, "0"))); err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	if cfg.Storage != StoragePostgres && cfg.Storage != StorageMemory {
		return nil, fmt.Errorf("STORAGE must be %q or %q, got %q", StoragePostgres, StorageMemory, cfg.Storage)
	}
	if cfg.Storage == StoragePostgres && cfg.DBConn == "" {
		return nil, fmt.Errorf("DB_CONN is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.EncryptionKey == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if !cfg.MaxTransferAmount.IsPositive() || !cfg.MaxBalance.IsPositive() {
		return nil, fmt.Errorf("MAX_TRANSFER_AMOUNT and MAX_BALANCE must be positive")
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func or(val, fallback string) string {
	if val != "" {
		return val
	}
	return fallback
}
