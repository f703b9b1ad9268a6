package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"matrixhub/internal/models"
)

// Config holds all environment-driven settings for the service.
type Config struct {
	Port           string
	APIToken       string   // empty means open mode: all requests authorized
	JWTSecret      string   // secret for minted access tokens; defaults to APIToken
	RedisAddr      string   // host:port; empty disables the Redis store
	StateDir       string   // directory for the file store; empty disables it
	CORSOrigins    []string // allowed origins, defaults to ["*"]
	RotationPolicy string   // models.RotationPermissive or models.RotationStrict
	ModeMax        int      // inclusive upper bound for mode; 0 means unbounded
	ImageMaxBytes  int64    // upload size limit for PNG blobs
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnvOrDefault("PORT", "8080"),
		APIToken:       os.Getenv("API_TOKEN"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		StateDir:       os.Getenv("STATE_DIR"),
		CORSOrigins:    splitOrigins(os.Getenv("CORS_ORIGINS")),
		RotationPolicy: getEnvOrDefault("ROTATION_POLICY", models.RotationPermissive),
		ModeMax:        getEnvInt("MODE_MAX", 0),
		ImageMaxBytes:  int64(getEnvInt("IMAGE_MAX_BYTES", 200_000)),
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = cfg.APIToken
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	switch cfg.RotationPolicy {
	case models.RotationPermissive, models.RotationStrict:
	default:
		return errors.New("unsupported rotation policy: " + cfg.RotationPolicy +
			". Supported: permissive, strict")
	}
	if cfg.ModeMax < 0 {
		return errors.New("MODE_MAX must not be negative")
	}
	if cfg.ImageMaxBytes <= 0 {
		return errors.New("IMAGE_MAX_BYTES must be positive")
	}
	return nil
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}
