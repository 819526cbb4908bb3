package discord

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/tendant/discord-verify/pkg/verification"
)

// Config holds the Discord connection and role settings
type Config struct {
	Token            string
	GuildID          string
	VerifiedRoleID   string
	UnverifiedRoleID string
	ServerName       string
}

// Bot bridges Discord gateway events to the verification engine. It holds
// no verification state of its own.
type Bot struct {
	session *discordgo.Session
	engine  *verification.Service
	config  Config
}

// NewBot creates the Discord bot and registers its gateway handlers. The
// session is not opened until Start is called. The engine may be nil at
// construction so the role-grant callback can be wired into it first; call
// Bind before Start.
func NewBot(config Config, engine *verification.Service) (*Bot, error) {
	session, err := discordgo.New("Bot " + config.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	bot := &Bot{
		session: session,
		engine:  engine,
		config:  config,
	}

	session.AddHandler(bot.onReady)
	session.AddHandler(bot.onGuildMemberAdd)
	session.AddHandler(bot.onMessageCreate)

	return bot, nil
}

// Bind attaches the verification engine.
func (b *Bot) Bind(engine *verification.Service) {
	b.engine = engine
}

// Start opens the gateway connection.
func (b *Bot) Start() error {
	if b.engine == nil {
		return fmt.Errorf("no verification engine bound")
	}
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	return nil
}

// Stop closes the gateway connection.
func (b *Bot) Stop() error {
	return b.session.Close()
}

// GrantVerifiedRole swaps the member's roles after a successful
// verification. Wire it into the engine with verification.WithOnVerified.
func (b *Bot) GrantVerifiedRole(ctx context.Context, user *verification.VerifiedUser) error {
	if b.config.VerifiedRoleID != "" {
		if err := b.session.GuildMemberRoleAdd(b.config.GuildID, user.UserID, b.config.VerifiedRoleID); err != nil {
			return fmt.Errorf("failed to add verified role: %w", err)
		}
	}
	if b.config.UnverifiedRoleID != "" {
		if err := b.session.GuildMemberRoleRemove(b.config.GuildID, user.UserID, b.config.UnverifiedRoleID); err != nil {
			slog.Error("Failed to remove unverified role", "user_id", user.UserID, "err", err)
		}
	}
	return nil
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	slog.Info("Discord bot connected", "username", r.User.Username, "guild_id", b.config.GuildID)
}

func (b *Bot) onGuildMemberAdd(s *discordgo.Session, m *discordgo.GuildMemberAdd) {
	if m.User.Bot {
		return
	}
	if b.config.GuildID != "" && m.GuildID != b.config.GuildID {
		return
	}

	ctx := context.Background()
	if err := b.engine.OnMemberJoined(ctx, m.User.ID, m.User.Username, m.GuildID); err != nil {
		slog.Error("Failed to register member join", "user_id", m.User.ID, "err", err)
		return
	}

	if b.config.UnverifiedRoleID != "" {
		if err := s.GuildMemberRoleAdd(m.GuildID, m.User.ID, b.config.UnverifiedRoleID); err != nil {
			slog.Error("Failed to add unverified role", "user_id", m.User.ID, "err", err)
		}
	}

	b.sendDM(m.User.ID, welcomeEmbed(m.User.Username, b.config.ServerName))
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author.ID == s.State.User.ID || m.Author.Bot {
		return
	}
	// DMs only; guild channel traffic is not part of the flow
	if m.GuildID != "" {
		return
	}

	ctx := context.Background()
	result, err := b.engine.OnUserMessage(ctx, m.Author.ID, m.Author.Username, m.Content)
	if err != nil {
		slog.Error("Failed to process user message", "user_id", m.Author.ID, "err", err)
		return
	}

	embed := renderReply(result, b.config.ServerName)
	if embed == nil {
		return
	}
	if _, err := s.ChannelMessageSendEmbed(m.ChannelID, embed); err != nil {
		slog.Error("Failed to send reply", "user_id", m.Author.ID, "reply", result.ReplyKind, "err", err)
	}
}

func (b *Bot) sendDM(userID string, embed *discordgo.MessageEmbed) {
	channel, err := b.session.UserChannelCreate(userID)
	if err != nil {
		slog.Error("Failed to create DM channel", "user_id", userID, "err", err)
		return
	}
	if _, err := b.session.ChannelMessageSendEmbed(channel.ID, embed); err != nil {
		// DMs disabled is common, not an error worth more than a log line
		slog.Warn("Failed to send DM", "user_id", userID, "err", err)
	}
}
