package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

var knownWeakSecrets = []string{
	"change-me", "dev-secret-change-me", "secret", "admin", "password",
}

type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL,required"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	StateSigningSecret     string `env:"STATE_SIGNING_SECRET"`
	EncryptionKey          string `env:"ENCRYPTION_KEY"`
	WebhookVerifyToken     string `env:"WEBHOOK_VERIFY_TOKEN"`
	WebhookSignatureSecret string `env:"WEBHOOK_SIGNATURE_SECRET"`

	// WhatsApp business messaging provider
	WhatsAppAppID       string `env:"WHATSAPP_APP_ID"`
	WhatsAppAppSecret   string `env:"WHATSAPP_APP_SECRET"`
	WhatsAppRedirectURL string `env:"WHATSAPP_REDIRECT_URL"`
	WhatsAppAPIBase     string `env:"WHATSAPP_API_BASE" envDefault:"https://graph.facebook.com/v21.0"`
	WhatsAppAuthBase    string `env:"WHATSAPP_AUTH_BASE" envDefault:"https://www.facebook.com/v21.0/dialog/oauth"`

	// OAuth email provider
	EmailClientID     string `env:"EMAIL_CLIENT_ID"`
	EmailClientSecret string `env:"EMAIL_CLIENT_SECRET"`
	EmailRedirectURL  string `env:"EMAIL_REDIRECT_URL"`
	EmailAuthURL      string `env:"EMAIL_AUTH_URL" envDefault:"https://accounts.google.com/o/oauth2/v2/auth"`
	EmailTokenURL     string `env:"EMAIL_TOKEN_URL" envDefault:"https://oauth2.googleapis.com/token"`
	EmailRevokeURL    string `env:"EMAIL_REVOKE_URL" envDefault:"https://oauth2.googleapis.com/revoke"`
	EmailScopes       string `env:"EMAIL_SCOPES" envDefault:"https://www.googleapis.com/auth/gmail.send"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate(isProduction bool) error {
	if isProduction {
		if err := validateSecret("STATE_SIGNING_SECRET", c.StateSigningSecret); err != nil {
			return err
		}

		if c.WebhookSignatureSecret == "" {
			log.Warn().Msg("WEBHOOK_SIGNATURE_SECRET is empty in production: webhook signature verification disabled")
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
		if c.EncryptionKey == "" {
			log.Warn().Msg("ENCRYPTION_KEY is empty in production: integration credentials will not be encrypted at rest")
		}
	}

	return nil
}

func validateSecret(name, value string) error {
	if len(value) < 32 {
		return fmt.Errorf("%s must be at least 32 characters in production (generate with: openssl rand -base64 32)", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong secret in production", name)
		}
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
