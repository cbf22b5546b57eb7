package common

import (
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Backup   BackupConfig
	Log      LogConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr       string
	HTTPAddr       string
	AllowedOrigins []string
}

// BackupConfig holds snapshot/backup configuration
type BackupConfig struct {
	Dir            string
	RepoRoot       string
	GitBinary      string
	GitTimeout     time.Duration
	SystemName     string
	LatestWindow   time.Duration
	FullSchedule   string
	LatestSchedule string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var configDefaults = map[string]any{
	"DB_DRIVER":              DriverSQLite,
	"DB_URL":                 "file:cobrancas.db?_pragma=busy_timeout(5000)",
	"DB_MAX_CONNS":           20,
	"DB_MIN_CONNS":           5,
	"DB_MAX_CONN_LIFETIME":   30 * time.Minute,
	"DB_MAX_CONN_IDLE_TIME":  5 * time.Minute,
	"DB_DIAL_TIMEOUT":        3 * time.Second,
	"DB_STATEMENT_TIMEOUT":   time.Duration(0),
	"GRPC_ADDR":              ":8080",
	"HTTP_ADDR":              ":8081",
	"CORS_ALLOWED_ORIGINS":   "*",
	"BACKUP_DIR":             "./backup_data",
	"BACKUP_REPO_ROOT":       ".",
	"GIT_BINARY":             "git",
	"GIT_TIMEOUT":            30 * time.Second,
	"BACKUP_SYSTEM_NAME":     "Sistema de Cobrança Mercado Pago",
	"BACKUP_LATEST_WINDOW":   24 * time.Hour,
	"BACKUP_FULL_SCHEDULE":   "0 3 * * *",
	"BACKUP_LATEST_SCHEDULE": "",
	"LOG_LEVEL":              "info",
}

// LoadConfig loads configuration from an optional .env file and environment variables
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}
	return LoadConfigFrom(viper.New())
}

// LoadConfigFrom reads configuration through v, applying defaults for unset keys.
func LoadConfigFrom(v *viper.Viper) (*Config, error) {
	for key, def := range configDefaults {
		v.SetDefault(key, def)
		// Bind explicitly so AutomaticEnv values are visible to every getter
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}
	v.AutomaticEnv()

	cfg := &Config{
		Database: DatabaseConfig{
			Driver:           strings.ToLower(v.GetString("DB_DRIVER")),
			DSN:              v.GetString("DB_URL"),
			MaxConns:         v.GetInt32("DB_MAX_CONNS"),
			MinConns:         v.GetInt32("DB_MIN_CONNS"),
			MaxConnLifetime:  v.GetDuration("DB_MAX_CONN_LIFETIME"),
			MaxConnIdleTime:  v.GetDuration("DB_MAX_CONN_IDLE_TIME"),
			DialTimeout:      v.GetDuration("DB_DIAL_TIMEOUT"),
			StatementTimeout: v.GetDuration("DB_STATEMENT_TIMEOUT"),
		},
		Server: ServerConfig{
			GRPCAddr:       v.GetString("GRPC_ADDR"),
			HTTPAddr:       v.GetString("HTTP_ADDR"),
			AllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		},
		Backup: BackupConfig{
			Dir:            v.GetString("BACKUP_DIR"),
			RepoRoot:       v.GetString("BACKUP_REPO_ROOT"),
			GitBinary:      v.GetString("GIT_BINARY"),
			GitTimeout:     v.GetDuration("GIT_TIMEOUT"),
			SystemName:     v.GetString("BACKUP_SYSTEM_NAME"),
			LatestWindow:   v.GetDuration("BACKUP_LATEST_WINDOW"),
			FullSchedule:   v.GetString("BACKUP_FULL_SCHEDULE"),
			LatestSchedule: v.GetString("BACKUP_LATEST_SCHEDULE"),
		},
		Log: LogConfig{
			Level: v.GetString("LOG_LEVEL"),
		},
	}
	return cfg, nil
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Database.Driver != DriverPostgres && c.Database.Driver != DriverSQLite {
		return NewAppError(CodeConfig, "DB_DRIVER must be postgres or sqlite", ErrInvalidInput)
	}
	if c.Database.DSN == "" {
		return NewAppError(CodeConfig, "DB_URL is required", ErrInvalidInput)
	}
	if c.Backup.Dir == "" {
		return NewAppError(CodeConfig, "BACKUP_DIR is required", ErrInvalidInput)
	}
	if c.Backup.GitTimeout <= 0 {
		return NewAppError(CodeConfig, "GIT_TIMEOUT must be positive", ErrInvalidInput)
	}
	if c.Backup.LatestWindow <= 0 {
		return NewAppError(CodeConfig, "BACKUP_LATEST_WINDOW must be positive", ErrInvalidInput)
	}
	if c.Server.GRPCAddr == "" && c.Server.HTTPAddr == "" {
		return NewAppError(CodeConfig, "GRPC_ADDR or HTTP_ADDR is required", ErrInvalidInput)
	}
	return nil
}

// SlogLevel parses Log.Level, falling back to info.
func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
