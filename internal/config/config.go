package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"routine-planner/internal/logging"
	"routine-planner/internal/repository"
	"routine-planner/internal/service"
)

// EnvPrefix namespaces environment overrides: database.url is read from PLANNER_DATABASE_URL.
const EnvPrefix = "PLANNER"

// Config keeps runtime settings for the planner.
type Config struct {
	Database  DatabaseConfig
	HTTP      HTTPConfig
	Auth      AuthConfig
	Telegram  TelegramConfig
	Timezone  string
	Location  *time.Location
	Reconcile ReconcileConfig
	Jobs      JobsConfig
	Log       LogConfig
}

type DatabaseConfig struct {
	Driver string
	URL    string
}

type HTTPConfig struct {
	Addr string
}

type AuthConfig struct {
	JWTSecret  string
	CronSecret string
}

// TelegramConfig: the bot is disabled when Token is empty.
type TelegramConfig struct {
	Token string
}

type ReconcileConfig struct {
	HorizonDays int
	StalePolicy service.StalePolicy
}

type JobsConfig struct {
	ReconcileAt string
	SweepAt     string
	DigestAt    string
	Timeout     time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// Options locate optional config sources. Missing files are ignored.
type Options struct {
	ConfigFile string
	EnvFile    string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", repository.DriverSQLite)
	v.SetDefault("database.url", "routine_planner.db")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.cron_secret", "")
	v.SetDefault("telegram.token", "")
	v.SetDefault("timezone", "UTC")
	v.SetDefault("reconcile.horizon_days", service.DefaultHorizonDays)
	v.SetDefault("reconcile.stale_policy", string(service.StaleKeep))
	v.SetDefault("jobs.reconcile_at", "00:05")
	v.SetDefault("jobs.sweep_at", "00:15")
	v.SetDefault("jobs.digest_at", "07:00")
	v.SetDefault("jobs.timeout", 5*time.Minute)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", logging.FormatText)
}

// Load reads defaults, then the optional config file, then the optional .env
// file and the environment, later sources winning.
func Load(opts Options) (Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("stat %s: %w", envFile, err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", opts.ConfigFile, err)
		}
	}

	cfg := Config{
		Database: DatabaseConfig{
			Driver: strings.ToLower(strings.TrimSpace(v.GetString("database.driver"))),
			URL:    strings.TrimSpace(v.GetString("database.url")),
		},
		HTTP: HTTPConfig{Addr: v.GetString("http.addr")},
		Auth: AuthConfig{
			JWTSecret:  v.GetString("auth.jwt_secret"),
			CronSecret: v.GetString("auth.cron_secret"),
		},
		Telegram: TelegramConfig{Token: strings.TrimSpace(v.GetString("telegram.token"))},
		Timezone: v.GetString("timezone"),
		Reconcile: ReconcileConfig{
			HorizonDays: v.GetInt("reconcile.horizon_days"),
			StalePolicy: service.StalePolicy(strings.ToLower(v.GetString("reconcile.stale_policy"))),
		},
		Jobs: JobsConfig{
			ReconcileAt: v.GetString("jobs.reconcile_at"),
			SweepAt:     v.GetString("jobs.sweep_at"),
			DigestAt:    v.GetString("jobs.digest_at"),
			Timeout:     v.GetDuration("jobs.timeout"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case repository.DriverSQLite:
	case repository.DriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for postgres")
		}
	default:
		return fmt.Errorf("database.driver: unsupported driver %q", c.Database.Driver)
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	c.Location = loc

	if c.Reconcile.HorizonDays <= 0 || c.Reconcile.HorizonDays > 366 {
		return fmt.Errorf("reconcile.horizon_days must be within 1..366, got %d", c.Reconcile.HorizonDays)
	}
	if !c.Reconcile.StalePolicy.Valid() {
		return fmt.Errorf("reconcile.stale_policy must be keep or prune, got %q", c.Reconcile.StalePolicy)
	}

	for key, at := range map[string]string{
		"jobs.reconcile_at": c.Jobs.ReconcileAt,
		"jobs.sweep_at":     c.Jobs.SweepAt,
		"jobs.digest_at":    c.Jobs.DigestAt,
	} {
		if at == "" {
			continue
		}
		if err := service.ValidateDailyTime(at); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	if c.Jobs.Timeout < 0 {
		return fmt.Errorf("jobs.timeout cannot be negative")
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch strings.ToLower(c.Log.Format) {
	case logging.FormatText, logging.FormatJSON:
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}
