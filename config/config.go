package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config хранит все настройки приложения
type Config struct {
	Port          string
	DSN           string
	AppEnv        string
	LogLevel      string
	LogFile       string
	RedisAddr     string
	RedisPassword string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	// ключ медиатора: hex или мнемоника BIP-39
	MediatorPrivkey  string
	MediatorMnemonic string
	AdminPubkey      string

	LightningBackend string
	TokenTypeTTL     map[string]time.Duration

	SettingsFile string
	Settings     *Settings
}

// IsProd сообщает, запущен ли сервис в боевом режиме.
func (c *Config) IsProd() bool {
	return c.AppEnv == "prod" || c.AppEnv == "production"
}

// Load читает .env (если есть) и возвращает заполненный Config
func Load() (*Config, error) {
	// Попробуем загрузить файл .env, если его нет, просто пропускаем
	_ = godotenv.Load()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		return nil, fmt.Errorf("DB_DSN must be set")
	}

	accessTTL, err := durationEnv("ACCESS_TOKEN_TTL", 15*time.Minute)
	if err != nil {
		return nil, err
	}
	refreshTTL, err := durationEnv("REFRESH_TOKEN_TTL", 7*24*time.Hour)
	if err != nil {
		return nil, err
	}

	useSSL := false
	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		useSSL, err = strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("MINIO_USE_SSL: %w", err)
		}
	}

	settingsFile := os.Getenv("SETTINGS_FILE")
	settings, err := LoadSettings(settingsFile)
	if err != nil {
		return nil, err
	}

	return &Config{
		Port:             port,
		DSN:              dsn,
		AppEnv:           os.Getenv("APP_ENV"),
		LogLevel:         envOr("LOG_LEVEL", "info"),
		LogFile:          os.Getenv("LOG_FILE"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		MinioEndpoint:    os.Getenv("MINIO_ENDPOINT"),
		MinioAccessKey:   os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey:   os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:      envOr("MINIO_BUCKET", "transcripts"),
		MinioUseSSL:      useSSL,
		MediatorPrivkey:  os.Getenv("MEDIATOR_PRIVKEY"),
		MediatorMnemonic: os.Getenv("MEDIATOR_MNEMONIC"),
		AdminPubkey:      os.Getenv("ADMIN_PUBKEY"),
		LightningBackend: envOr("LIGHTNING_BACKEND", "memory"),
		TokenTypeTTL: map[string]time.Duration{
			"access":  accessTTL,
			"refresh": refreshTTL,
		},
		SettingsFile: settingsFile,
		Settings:     settings,
	}, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
