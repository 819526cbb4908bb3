package config

import (
	"time"

	"github.com/tendant/discord-verify/pkg/verification"
)

// VerificationConfig holds the verification policy settings
type VerificationConfig struct {
	MaxAttempts         int      `env:"MAX_ATTEMPTS" env-default:"3"`
	CooldownMinutes     int      `env:"COOLDOWN_MINUTES" env-default:"60"`
	CodeTTLMinutes      int      `env:"CODE_TTL_MINUTES" env-default:"10"`
	RetentionHours      int      `env:"PENDING_RETENTION_HOURS" env-default:"24"`
	AllowedEmailDomains []string `env:"ALLOWED_EMAIL_DOMAINS" env-separator:","`
}

// ToEngineConfig converts the config to a verification.Config
func (v VerificationConfig) ToEngineConfig() verification.Config {
	return verification.Config{
		MaxAttempts:         v.MaxAttempts,
		Cooldown:            time.Duration(v.CooldownMinutes) * time.Minute,
		CodeTTL:             time.Duration(v.CodeTTLMinutes) * time.Minute,
		AllowedEmailDomains: v.AllowedEmailDomains,
		Retention:           time.Duration(v.RetentionHours) * time.Hour,
	}
}

// NewVerificationConfigFromEnv creates a VerificationConfig from environment variables
func NewVerificationConfigFromEnv() VerificationConfig {
	return VerificationConfig{
		MaxAttempts:         GetEnvInt("MAX_ATTEMPTS", 3),
		CooldownMinutes:     GetEnvInt("COOLDOWN_MINUTES", 60),
		CodeTTLMinutes:      GetEnvInt("CODE_TTL_MINUTES", 10),
		RetentionHours:      GetEnvInt("PENDING_RETENTION_HOURS", 24),
		AllowedEmailDomains: GetEnvSlice("ALLOWED_EMAIL_DOMAINS", nil),
	}
}
