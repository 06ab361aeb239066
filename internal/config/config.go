package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

// Store drivers accepted by STORE_DRIVER.
const (
	StoreXLSX     = "xlsx"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	Port              string        `mapstructure:"PORT"`
	Env               string        `mapstructure:"ENV"`
	ModelPath         string        `mapstructure:"MODEL_PATH"`
	ClassifierURL     string        `mapstructure:"CLASSIFIER_URL"`
	ClassifierTimeout time.Duration `mapstructure:"CLASSIFIER_TIMEOUT"`
	StoreDriver       string        `mapstructure:"STORE_DRIVER"`
	StorePath         string        `mapstructure:"STORE_PATH"`
	SQLitePath        string        `mapstructure:"SQLITE_PATH"`
	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	DBMaxConns        int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32         `mapstructure:"DB_MIN_CONNS"`
	AuthEmail         string        `mapstructure:"AUTH_EMAIL"`
	AuthPassword      string        `mapstructure:"AUTH_PASSWORD"`
	AuthPasswordHash  string        `mapstructure:"AUTH_PASSWORD_HASH"`
	JWTSigningKey     string        `mapstructure:"JWT_SIGNING_KEY"`
	TokenTTL          time.Duration `mapstructure:"TOKEN_TTL"`
	SessionTTL        time.Duration `mapstructure:"SESSION_TTL"`
	CORSOrigins       []string      `mapstructure:"CORS_ORIGINS"`
	MQTTBrokerURL     string        `mapstructure:"MQTT_BROKER_URL"`
	MQTTClientID      string        `mapstructure:"MQTT_CLIENT_ID"`
	MQTTUsername      string        `mapstructure:"MQTT_USERNAME"`
	MQTTPassword      string        `mapstructure:"MQTT_PASSWORD"`
	MQTTTopic         string        `mapstructure:"MQTT_TOPIC"`
	LogFile           string        `mapstructure:"LOG_FILE"`
	LogMaxSizeMB      int           `mapstructure:"LOG_MAX_SIZE_MB"`
	LogMaxBackups     int           `mapstructure:"LOG_MAX_BACKUPS"`
	LogMaxAgeDays     int           `mapstructure:"LOG_MAX_AGE_DAYS"`
}

var keys = []string{
	"PORT", "ENV", "MODEL_PATH", "CLASSIFIER_URL", "CLASSIFIER_TIMEOUT",
	"STORE_DRIVER", "STORE_PATH", "SQLITE_PATH", "DATABASE_URL",
	"DB_MAX_CONNS", "DB_MIN_CONNS",
	"AUTH_EMAIL", "AUTH_PASSWORD", "AUTH_PASSWORD_HASH",
	"JWT_SIGNING_KEY", "TOKEN_TTL", "SESSION_TTL", "CORS_ORIGINS",
	"MQTT_BROKER_URL", "MQTT_CLIENT_ID", "MQTT_USERNAME", "MQTT_PASSWORD", "MQTT_TOPIC",
	"LOG_FILE", "LOG_MAX_SIZE_MB", "LOG_MAX_BACKUPS", "LOG_MAX_AGE_DAYS",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8501")
	v.SetDefault("ENV", "development")
	v.SetDefault("MODEL_PATH", "svm_model_v151.json")
	v.SetDefault("CLASSIFIER_TIMEOUT", "30s")
	v.SetDefault("STORE_DRIVER", StoreXLSX)
	v.SetDefault("STORE_PATH", "abg_results_log.xlsx")
	v.SetDefault("SQLITE_PATH", "abg_results.db")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("AUTH_EMAIL", "nuhansa@example.com")
	v.SetDefault("AUTH_PASSWORD", "1234")
	v.SetDefault("TOKEN_TTL", "0s")
	v.SetDefault("SESSION_TTL", "0s")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("MQTT_CLIENT_ID", "abg-server")
	v.SetDefault("MQTT_TOPIC", "respirasense/abg/results")
	v.SetDefault("LOG_MAX_SIZE_MB", 10)
	v.SetDefault("LOG_MAX_BACKUPS", 5)
	v.SetDefault("LOG_MAX_AGE_DAYS", 30)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))

	if cfg.IsDev() && cfg.AuthPasswordHash == "" {
		log.Println("WARNING: plaintext AUTH_PASSWORD in use (ENV=development).")
		log.Println("WARNING: Set AUTH_PASSWORD_HASH (see `abg-server hash-password`) for production.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// APIEnabled reports whether the bearer-token JSON API should be mounted.
func (c *Config) APIEnabled() bool {
	return c.JWTSigningKey != ""
}

// Validate checks that the configuration is safe to run. Production requires
// a bcrypt-hashed credential; the postgres store requires DATABASE_URL.
func (c *Config) Validate() error {
	if c.AuthEmail == "" {
		return fmt.Errorf("AUTH_EMAIL is required")
	}
	if c.AuthPasswordHash != "" {
		if _, err := bcrypt.Cost([]byte(c.AuthPasswordHash)); err != nil {
			return fmt.Errorf("AUTH_PASSWORD_HASH is not a bcrypt hash: %w", err)
		}
	} else if c.AuthPassword == "" {
		return fmt.Errorf("one of AUTH_PASSWORD or AUTH_PASSWORD_HASH is required")
	}
	if c.IsProduction() && c.AuthPasswordHash == "" {
		return fmt.Errorf("AUTH_PASSWORD_HASH is required in production")
	}

	switch c.StoreDriver {
	case StoreXLSX:
		if c.StorePath == "" {
			return fmt.Errorf("STORE_PATH is required for the %s store", StoreXLSX)
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the %s store", StoreSQLite)
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER is %q", StorePostgres)
		}
	case StoreMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be one of xlsx, sqlite, postgres, memory; got %q", c.StoreDriver)
	}

	if c.ModelPath == "" && c.ClassifierURL == "" {
		return fmt.Errorf("one of MODEL_PATH or CLASSIFIER_URL is required")
	}
	if c.TokenTTL < 0 || c.SessionTTL < 0 {
		return fmt.Errorf("TOKEN_TTL and SESSION_TTL must not be negative")
	}
	if c.MQTTBrokerURL != "" && c.MQTTTopic == "" {
		return fmt.Errorf("MQTT_TOPIC is required when MQTT_BROKER_URL is set")
	}

	return nil
}
