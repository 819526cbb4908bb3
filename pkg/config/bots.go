package config

// DiscordConfig holds the Discord bot settings
type DiscordConfig struct {
	Token            string `env:"DISCORD_TOKEN"`
	GuildID          string `env:"DISCORD_GUILD_ID"`
	VerifiedRoleID   string `env:"DISCORD_VERIFIED_ROLE_ID"`
	UnverifiedRoleID string `env:"DISCORD_UNVERIFIED_ROLE_ID"`
	ServerName       string `env:"SERVER_NAME" env-default:"the server"`
}

// IsConfigured returns true if the Discord ingress should start
func (d DiscordConfig) IsConfigured() bool {
	return d.Token != ""
}

// TelegramConfig holds the optional Telegram bot settings
type TelegramConfig struct {
	Token      string `env:"TELEGRAM_TOKEN"`
	ServerName string `env:"SERVER_NAME" env-default:"the server"`
}

// IsConfigured returns true if the Telegram ingress should start
func (t TelegramConfig) IsConfigured() bool {
	return t.Token != ""
}
