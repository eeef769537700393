package config

import (
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBDriver string // "postgres" or "sqlite3"
	DSN      string

	RedisAddr    string
	KafkaBrokers []string
	JWTSecret    string

	AdminUsername string
	AdminPassword string

	HTTPAddr string

	StorageBackend string // "disk" or "s3"
	UploadDir      string

	AccrualInterval time.Duration
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Warn("failed to load .env file, using default values", "error", err)
	}

	cfg := &Config{
		DBDriver:       os.Getenv("DB_DRIVER"),
		DSN:            os.Getenv("DATABASE_DSN"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		KafkaBrokers:   []string{os.Getenv("KAFKA_BROKER")},
		JWTSecret:      os.Getenv("JWT_SECRET"),
		AdminUsername:  os.Getenv("ADMIN_USERNAME"),
		AdminPassword:  os.Getenv("ADMIN_PASSWORD"),
		HTTPAddr:       os.Getenv("HTTP_ADDR"),
		StorageBackend: os.Getenv("STORAGE_BACKEND"),
		UploadDir:      os.Getenv("UPLOAD_DIR"),
	}

	if cfg.DBDriver == "" {
		cfg.DBDriver = "sqlite3"
	}
	if cfg.DSN == "" {
		if cfg.DBDriver == "sqlite3" {
			cfg.DSN = "database/investa.db"
		} else {
			cfg.DSN = "host=localhost user=postgres password=postgres dbname=investa sslmode=disable"
		}
	}
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = "localhost:6379"
	}
	if len(cfg.KafkaBrokers) == 1 && cfg.KafkaBrokers[0] == "" {
		cfg.KafkaBrokers = []string{"localhost:9092"}
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "supersecret"
	}
	if cfg.AdminUsername == "" {
		cfg.AdminUsername = "admin"
	}
	if cfg.AdminPassword == "" {
		cfg.AdminPassword = "admin123"
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	if cfg.StorageBackend == "" {
		cfg.StorageBackend = "disk"
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = "uploads"
	}

	cfg.AccrualInterval = 24 * time.Hour
	if v := os.Getenv("ACCRUAL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.AccrualInterval = d
		} else {
			slog.Warn("invalid ACCRUAL_INTERVAL, keeping default", "value", v, "error", err)
		}
	}

	slog.Info("config loaded",
		"db_driver", cfg.DBDriver,
		"redis_addr", cfg.RedisAddr,
		"kafka_brokers", cfg.KafkaBrokers,
		"http_addr", cfg.HTTPAddr,
		"storage_backend", cfg.StorageBackend,
		"accrual_interval", cfg.AccrualInterval)
	return cfg
}
