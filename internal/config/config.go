package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type TwilioConfig struct {
	AccountSID string `yaml:"account_sid" env:"TWILIO_ACCOUNT_SID"`
	AuthToken  string `yaml:"auth_token" env:"TWILIO_AUTH_TOKEN"`
	BaseURL    string `yaml:"base_url" env:"TWILIO_BASE_URL"`
}

type SignalWireConfig struct {
	ProjectID string `yaml:"project_id" env:"SIGNALWIRE_PROJECT_ID"`
	Token     string `yaml:"token" env:"SIGNALWIRE_TOKEN"`
	SpaceURL  string `yaml:"space_url" env:"SIGNALWIRE_SPACE_URL"`
}

type AdminBootstrap struct {
	Email    string `yaml:"email" env:"ADMIN_EMAIL"`
	Username string `yaml:"username" env:"ADMIN_USERNAME"`
	Password string `yaml:"password" env:"ADMIN_PASSWORD"`
	Name     string `yaml:"name" env:"ADMIN_NAME"`
}

type Config struct {
	ListenAddr    string `yaml:"listen_addr" env:"LISTEN_ADDR"`
	DBDSN         string `yaml:"db_dsn" env:"DATABASE_URL"`
	RedisAddr     string `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" env:"REDIS_DB"`
	Debug         bool   `yaml:"debug" env:"DEBUG"`

	// PublicBaseURL is where providers reach our webhooks and LaML documents.
	PublicBaseURL string `yaml:"public_base_url" env:"PUBLIC_BASE_URL"`

	SessionCookie      string        `yaml:"session_cookie" env:"SESSION_COOKIE"`
	SessionTTL         time.Duration `yaml:"session_ttl" env:"SESSION_TTL"`
	LoginRatePerMinute int           `yaml:"login_rate_per_minute" env:"LOGIN_RATE_PER_MINUTE"`

	ValidateWebhookSignatures bool `yaml:"validate_webhook_signatures" env:"VALIDATE_WEBHOOK_SIGNATURES"`

	DefaultSMSCredits   int `yaml:"default_sms_credits" env:"DEFAULT_SMS_CREDITS"`
	DefaultVoiceCredits int `yaml:"default_voice_credits" env:"DEFAULT_VOICE_CREDITS"`

	BootstrapAdmin AdminBootstrap   `yaml:"bootstrap_admin"`
	Twilio         TwilioConfig     `yaml:"twilio"`
	SignalWire     SignalWireConfig `yaml:"signalwire"`
}

// Load reads the YAML file at path (optional) and overlays environment
// variables, including those from a local .env file.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		f, err := os.Open(path)
		switch {
		case err == nil:
			defer f.Close()
			dec := yaml.NewDecoder(f)
			if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("decode %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, err
		}
	}

	_ = godotenv.Load()
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.PublicBaseURL == "" {
		c.PublicBaseURL = "http://localhost:8080"
	}
	if c.SessionCookie == "" {
		c.SessionCookie = "sms_session"
	}
	if c.SessionTTL == 0 {
		c.SessionTTL = 24 * time.Hour
	}
	if c.LoginRatePerMinute == 0 {
		c.LoginRatePerMinute = 30
	}
	if c.DefaultSMSCredits == 0 {
		c.DefaultSMSCredits = 100
	}
	if c.DefaultVoiceCredits == 0 {
		c.DefaultVoiceCredits = 10
	}
	if c.Twilio.BaseURL == "" {
		c.Twilio.BaseURL = "https://api.twilio.com"
	}
}

func (c *Config) Validate() error {
	if c.DBDSN == "" {
		return errors.New("db_dsn (DATABASE_URL) is required")
	}
	if c.SessionTTL < 0 {
		return errors.New("session_ttl must be positive")
	}
	return nil
}
