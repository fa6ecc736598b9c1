package collector

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds collector configuration. Values come from an optional YAML
// file (COLLECTOR_CONFIG) overridden by environment variables.
type Config struct {
	ServerPort string `yaml:"server_port"`
	LogPath    string `yaml:"log_path"`

	JWTSecret        string `yaml:"jwt_secret"`
	AgentTokenTTLSec int64  `yaml:"agent_token_ttl_sec"`
	AdminToken       string `yaml:"admin_token"`

	StorageBackend string `yaml:"storage_backend"` // postgres | sqlite | memory
	SQLitePath     string `yaml:"sqlite_path"`
	DBHost         string `yaml:"db_host"`
	DBPort         string `yaml:"db_port"`
	DBUser         string `yaml:"db_user"`
	DBPassword     string `yaml:"db_password"`
	DBName         string `yaml:"db_name"`
	DBSSLMode      string `yaml:"db_ssl_mode"`
	MigrationsPath string `yaml:"migrations_path"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	NATSURL string `yaml:"nats_url"`

	OfflineAfterSec  int `yaml:"offline_after_sec"`
	SweepIntervalSec int `yaml:"sweep_interval_sec"`
	SessionTTLSec    int `yaml:"session_ttl_sec"`
}

// LoadConfig builds configuration from defaults, the optional YAML file
// and environment overrides, in that order.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		ServerPort:       "8080",
		AgentTokenTTLSec: 90 * 24 * 3600,
		StorageBackend:   "sqlite",
		SQLitePath:       "fleetwatch.db",
		DBHost:           "localhost",
		DBPort:           "5432",
		DBUser:           "postgres",
		DBPassword:       "postgres",
		DBName:           "fleetwatch",
		DBSSLMode:        "disable",
		MigrationsPath:   "collector/storage/postgres/migrations",
		OfflineAfterSec:  30,
		SweepIntervalSec: 15,
		SessionTTLSec:    600,
	}

	if path := os.Getenv("COLLECTOR_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(cfg)

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SIGNING_SECRET must be set")
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	setEnvString(&cfg.ServerPort, "SERVER_PORT")
	setEnvString(&cfg.LogPath, "COLLECTOR_LOG_PATH")
	setEnvString(&cfg.JWTSecret, "JWT_SIGNING_SECRET")
	setEnvInt64(&cfg.AgentTokenTTLSec, "AGENT_TOKEN_TTL_SEC")
	setEnvString(&cfg.AdminToken, "ADMIN_TOKEN")
	setEnvString(&cfg.StorageBackend, "STORAGE_BACKEND")
	setEnvString(&cfg.SQLitePath, "SQLITE_PATH")
	setEnvString(&cfg.DBHost, "DB_HOST")
	setEnvString(&cfg.DBPort, "DB_PORT")
	setEnvString(&cfg.DBUser, "DB_USER")
	setEnvString(&cfg.DBPassword, "DB_PASSWORD")
	setEnvString(&cfg.DBName, "DB_NAME")
	setEnvString(&cfg.DBSSLMode, "DB_SSL_MODE")
	setEnvString(&cfg.MigrationsPath, "MIGRATIONS_PATH")
	setEnvString(&cfg.RedisAddr, "REDIS_ADDR")
	setEnvString(&cfg.RedisPassword, "REDIS_PASSWORD")
	setEnvInt(&cfg.RedisDB, "REDIS_DB")
	setEnvString(&cfg.NATSURL, "NATS_URL")
	setEnvInt(&cfg.OfflineAfterSec, "OFFLINE_AFTER_SEC")
	setEnvInt(&cfg.SweepIntervalSec, "SWEEP_INTERVAL_SEC")
	setEnvInt(&cfg.SessionTTLSec, "SESSION_TTL_SEC")
}

func setEnvString(dst *string, key string) {
	if value := os.Getenv(key); value != "" {
		*dst = value
	}
}

func setEnvInt(dst *int, key string) {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.Atoi(value); err == nil {
			*dst = v
		}
	}
}

func setEnvInt64(dst *int64, key string) {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseInt(value, 10, 64); err == nil {
			*dst = v
		}
	}
}
