package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// SMTPProvider is one entry of the email fallback chain
type SMTPProvider struct {
	Name     string `yaml:"name"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// MessagingProvider is one entry of the SMS/Zalo fallback chain
type MessagingProvider struct {
	Name       string `yaml:"name"`
	Kind       string `yaml:"kind"` // "zalo" or "sms"
	URL        string `yaml:"url"`
	APIKey     string `yaml:"api_key"`
	Sender     string `yaml:"sender"`
	TemplateID string `yaml:"template_id"`
}

// Providers is the optional YAML file describing outbound delivery providers
type Providers struct {
	Email     []SMTPProvider `yaml:"email"`
	Messaging struct {
		DryRun    bool                `yaml:"dry_run"`
		Providers []MessagingProvider `yaml:"providers"`
	} `yaml:"messaging"`
}

// Config holds the application configuration
type Config struct {
	DatabaseURL       string
	Port              string
	JWTSecret         string
	OTPSalt           string
	OTPDevMode        bool
	AdminUsername     string
	AdminPasswordHash string
	CookieSecure      bool
	Timezone          string
	ConfigCacheTTL    time.Duration
	SessionTTL        time.Duration
	Providers         Providers
}

// Load reads configuration from environment variables and the optional providers file
func Load() (*Config, error) {
	cfg := &Config{
		Port:           "8080",
		Timezone:       "Asia/Ho_Chi_Minh",
		ConfigCacheTTL: 60 * time.Second,
		SessionTTL:     7 * 24 * time.Hour,
		AdminUsername:  "admin",
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	cfg.DatabaseURL = databaseURL

	if u, err := url.Parse(databaseURL); err == nil {
		host := u.Hostname()
		if host == "" {
			host = "localhost"
		}
		dbName := strings.TrimPrefix(u.Path, "/")
		log.Printf("DB connect: host=%s db=%s user=%s", host, dbName, u.User.Username())
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}

	cfg.OTPSalt = os.Getenv("OTP_SALT")
	if cfg.OTPSalt == "" {
		return nil, fmt.Errorf("OTP_SALT environment variable is required")
	}

	cfg.OTPDevMode = envBool("OTP_DEV_MODE", false)
	cfg.CookieSecure = envBool("COOKIE_SECURE", true)

	if v := os.Getenv("ADMIN_USERNAME"); v != "" {
		cfg.AdminUsername = v
	}
	// Without a hash admin login is disabled rather than open
	cfg.AdminPasswordHash = os.Getenv("ADMIN_PASSWORD_HASH")

	if tz := os.Getenv("TIMEZONE"); tz != "" {
		cfg.Timezone = tz
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", cfg.Timezone, err)
	}

	var err error
	if cfg.ConfigCacheTTL, err = envDuration("CONFIG_CACHE_TTL", cfg.ConfigCacheTTL); err != nil {
		return nil, err
	}
	if cfg.SessionTTL, err = envDuration("SESSION_TTL", cfg.SessionTTL); err != nil {
		return nil, err
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		providers, err := LoadProviders(path)
		if err != nil {
			return nil, err
		}
		cfg.Providers = *providers
	}

	// A single SMTP provider from env is appended after any file-configured ones
	if host := os.Getenv("SMTP_HOST"); host != "" {
		port, _ := strconv.Atoi(os.Getenv("SMTP_PORT"))
		if port == 0 {
			port = 587
		}
		cfg.Providers.Email = append(cfg.Providers.Email, SMTPProvider{
			Name:     "env",
			Host:     host,
			Port:     port,
			Username: os.Getenv("SMTP_USER"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     os.Getenv("SMTP_FROM"),
		})
	}
	if envBool("MESSAGING_DRY_RUN", false) {
		cfg.Providers.Messaging.DryRun = true
	}

	return cfg, nil
}

// LoadProviders parses the YAML providers file at path
func LoadProviders(path string) (*Providers, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open providers file: %w", err)
	}
	defer f.Close()

	var p Providers
	if err := yaml.NewDecoder(f).Decode(&p); err != nil {
		return nil, fmt.Errorf("parse providers file: %w", err)
	}
	for i, e := range p.Email {
		if e.Host == "" {
			return nil, fmt.Errorf("email provider %d: host is required", i)
		}
		if e.Port == 0 {
			p.Email[i].Port = 587
		}
	}
	for i, m := range p.Messaging.Providers {
		if m.Kind != "zalo" && m.Kind != "sms" {
			return nil, fmt.Errorf("messaging provider %d: kind must be zalo or sms, got %q", i, m.Kind)
		}
	}
	return &p, nil
}

func envBool(name string, fallback bool) bool {
	val := os.Getenv(name)
	if val == "" {
		return fallback
	}
	return val == "true" || val == "1" || val == "yes"
}

func envDuration(name string, fallback time.Duration) (time.Duration, error) {
	val := os.Getenv(name)
	if val == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return d, nil
}
