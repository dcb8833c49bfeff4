package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the binaries need from the environment. The
// treasury account and bonus asset type are deployment-level identities, not
// hardcoded literals; the idempotency TTLs are tuning knobs and
// IN_PROGRESS_TTL must comfortably exceed the worst-case transaction latency.
type Config struct {
	DBSource string
	Port     string
	Env      string

	TreasuryAccountID int64
	BonusAssetTypeID  int64

	IdempotencyInProgressTTL time.Duration
	IdempotencyCompletedTTL  time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	dbSource := os.Getenv("DB_SOURCE")
	if dbSource == "" {
		return nil, fmt.Errorf("DB_SOURCE environment variable is required")
	}

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	treasuryID, err := getEnvInt64("TREASURY_ACCOUNT_ID", 1)
	if err != nil {
		return nil, err
	}
	bonusAssetID, err := getEnvInt64("BONUS_ASSET_TYPE_ID", 3)
	if err != nil {
		return nil, err
	}

	inProgressTTL, err := getEnvDuration("IDEMPOTENCY_IN_PROGRESS_TTL", 300*time.Second)
	if err != nil {
		return nil, err
	}
	completedTTL, err := getEnvDuration("IDEMPOTENCY_COMPLETED_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}

	return &Config{
		DBSource:                 dbSource,
		Port:                     port,
		Env:                      env,
		TreasuryAccountID:        treasuryID,
		BonusAssetTypeID:         bonusAssetID,
		IdempotencyInProgressTTL: inProgressTTL,
		IdempotencyCompletedTTL:  completedTTL,
	}, nil
}

func getEnvInt64(key string, fallback int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}
