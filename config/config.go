package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Database  DatabaseConfig
	Redis     RedisConfig
	SMTP      SMTPConfig
	IDX       IDXConfig
	S3        S3Config
	Scheduler SchedulerConfig
	HTTP      HTTPConfig
	Portal    PortalConfig
	DBPath    string
	LogLevel  string
	LogPath   string
}

type DatabaseConfig struct {
	URL string
}

type RedisConfig struct {
	URL     string
	LockTTL time.Duration
}

type SMTPConfig struct {
	Host       string
	Port       int
	User       string
	Password   string
	FromEmail  string
	FromName   string
	AdminEmail string
}

type IDXConfig struct {
	Source       string // postgres, idx or file
	APIKey       string
	BaseURL      string
	ListingsFile string
}

type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
}

type SchedulerConfig struct {
	Cron        string
	ExpiryCron  string
	RefreshCron string
	Timezone    string
	Concurrency int
	CallTimeout time.Duration
}

type HTTPConfig struct {
	Port       string
	CronSecret string
}

// PortalConfig is loaded from the optional YAML portal file
type PortalConfig struct {
	BrandName    string   `yaml:"brand_name"`
	AppURL       string   `yaml:"app_url"`
	PreviewLimit int      `yaml:"preview_limit"`
	Disclaimer   string   `yaml:"disclaimer"`
	Boards       []string `yaml:"boards"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Redis: RedisConfig{
			URL:     os.Getenv("REDIS_URL"),
			LockTTL: getEnvDuration("SEARCH_LOCK_TTL", 10*time.Minute),
		},
		SMTP: SMTPConfig{
			Host:       getEnv("SMTP_HOST", "smtp.gmail.com"),
			Port:       getEnvInt("SMTP_PORT", 587),
			User:       os.Getenv("SMTP_USER"),
			Password:   os.Getenv("SMTP_PASSWORD"),
			FromEmail:  os.Getenv("SMTP_FROM_EMAIL"),
			FromName:   getEnv("SMTP_FROM_NAME", "PREC Real Estate"),
			AdminEmail: os.Getenv("ADMIN_EMAIL"),
		},
		IDX: IDXConfig{
			Source:       getEnv("LISTING_SOURCE", "postgres"),
			APIKey:       os.Getenv("IDX_BROKER_API_KEY"),
			BaseURL:      getEnv("IDX_BROKER_BASE_URL", "https://api.idxbroker.com"),
			ListingsFile: getEnv("LISTINGS_FILE", "listings.json"),
		},
		S3: S3Config{
			Bucket:          os.Getenv("S3_BUCKET"),
			Region:          getEnv("S3_REGION", "us-east-1"),
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
			Prefix:          getEnv("S3_PREFIX", "digests"),
		},
		Scheduler: SchedulerConfig{
			Cron:        getEnv("SCHEDULE_CRON", "* * * * *"),
			ExpiryCron:  getEnv("EXPIRY_CRON", "0 6 * * *"),
			RefreshCron: os.Getenv("REFRESH_CRON"),
			Timezone:    getEnv("PORTAL_TIMEZONE", "Local"),
			Concurrency: getEnvInt("RUN_CONCURRENCY", 1),
			CallTimeout: getEnvDuration("CALL_TIMEOUT", 30*time.Second),
		},
		HTTP: HTTPConfig{
			Port:       getEnv("HTTP_PORT", "8080"),
			CronSecret: os.Getenv("CRON_SECRET"),
		},
		Portal: PortalConfig{
			BrandName:    getEnv("SMTP_FROM_NAME", "PREC Real Estate"),
			AppURL:       os.Getenv("APP_URL"),
			PreviewLimit: 5,
		},
		DBPath:   getEnv("DB_PATH", "portal.db"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogPath:  getEnv("LOG_PATH", "portal.log"),
	}

	if err := cfg.loadPortalFile(getEnv("PORTAL_CONFIG", "config/portal.yaml")); err != nil {
		return nil, err
	}

	if cfg.Scheduler.Concurrency < 1 {
		cfg.Scheduler.Concurrency = 1
	}
	if cfg.Portal.PreviewLimit < 1 {
		cfg.Portal.PreviewLimit = 5
	}

	return cfg, nil
}

// CopyrightNotice is the MLS disclaimer printed under every digest. Without an explicit
// disclaimer it is built from the board names.
func (p PortalConfig) CopyrightNotice() string {
	if p.Disclaimer != "" || len(p.Boards) == 0 {
		return p.Disclaimer
	}
	boards := p.Boards[0]
	if n := len(p.Boards); n > 1 {
		boards = strings.Join(p.Boards[:n-1], ", ") + " and " + p.Boards[n-1]
	}
	return "MLS® property information is provided under copyright© by the " + boards +
		". The information is from sources deemed reliable, but should not be relied upon without independent verification."
}

// Location resolves the portal's wall-clock zone used for schedule matching
func (c *Config) Location() (*time.Location, error) {
	if c.Scheduler.Timezone == "" || c.Scheduler.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Scheduler.Timezone, err)
	}
	return loc, nil
}

// loadPortalFile overlays values from the YAML file. A missing file is not an error.
func (c *Config) loadPortalFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var portal PortalConfig
	if err := yaml.Unmarshal(data, &portal); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	if portal.BrandName != "" {
		c.Portal.BrandName = portal.BrandName
	}
	if portal.AppURL != "" {
		c.Portal.AppURL = portal.AppURL
	}
	if portal.PreviewLimit > 0 {
		c.Portal.PreviewLimit = portal.PreviewLimit
	}
	if portal.Disclaimer != "" {
		c.Portal.Disclaimer = portal.Disclaimer
	}
	if len(portal.Boards) > 0 {
		c.Portal.Boards = portal.Boards
	}

	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
