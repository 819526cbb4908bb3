package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/tendant/discord-verify/pkg/verification"
)

// Config holds the Telegram connection settings
type Config struct {
	Token      string
	ServerName string
}

// Bot bridges Telegram updates to the verification engine. It holds no
// verification state of its own.
type Bot struct {
	api    *tgbotapi.BotAPI
	engine *verification.Service
	config Config
}

func NewBot(config Config, engine *verification.Service) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(config.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &Bot{
		api:    api,
		engine: engine,
		config: config,
	}, nil
}

// Run polls for updates until the context is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	slog.Info("Telegram bot connected", "username", b.api.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.From.IsBot {
		return
	}
	if !msg.Chat.IsPrivate() {
		return
	}

	userID := strconv.FormatInt(msg.From.ID, 10)
	displayName := msg.From.UserName
	if displayName == "" {
		displayName = msg.From.FirstName
	}

	if msg.IsCommand() && msg.Command() == "start" {
		if err := b.engine.OnMemberJoined(ctx, userID, displayName, strconv.FormatInt(msg.Chat.ID, 10)); err != nil {
			slog.Error("Failed to register member join", "user_id", userID, "err", err)
			return
		}
		b.reply(msg.Chat.ID, fmt.Sprintf(
			"Welcome to %s! To get access you need to verify your identity.\n\n"+
				"Send your institutional email address to get started.",
			b.config.ServerName))
		return
	}

	result, err := b.engine.OnUserMessage(ctx, userID, displayName, msg.Text)
	if err != nil {
		slog.Error("Failed to process user message", "user_id", userID, "err", err)
		return
	}

	text := renderReply(result)
	if text == "" {
		return
	}
	b.reply(msg.Chat.ID, text)
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		slog.Error("Failed to send reply", "chat_id", chatID, "err", err)
	}
}

// renderReply maps an engine result to plain reply text. An empty string
// means nothing should be sent.
func renderReply(result verification.Result) string {
	switch result.ReplyKind {
	case verification.ReplyWelcome:
		return "Welcome! Send your institutional email address to get started."
	case verification.ReplyCooldown:
		return fmt.Sprintf("Too many attempts. Please try again in %d minutes.",
			int(result.RetryAfter.Minutes())+1)
	case verification.ReplyInvalidEmail:
		return fmt.Sprintf("That does not look like an accepted institutional email address. You have %d attempts left.",
			result.AttemptsLeft)
	case verification.ReplyEmailTaken:
		return "That email address is already linked to a verified account. Contact a moderator if you believe this is a mistake."
	case verification.ReplyCodeSent:
		return fmt.Sprintf("A verification code has been sent to %s. Send the 6-digit code here within %d minutes.",
			result.Email, int(result.CodeTTL.Minutes()))
	case verification.ReplyCodeExpired:
		return "Your verification code has expired. Send your email address again to receive a new one."
	case verification.ReplyWrongCode:
		return fmt.Sprintf("That code is not correct. You have %d attempts left.", result.AttemptsLeft)
	case verification.ReplyAttemptsExhausted:
		return fmt.Sprintf("You have used all your attempts. Verification is blocked for %d minutes.",
			int(result.RetryAfter.Minutes())+1)
	case verification.ReplyVerified:
		return "Verification successful! You now have full access."
	case verification.ReplyTransientError:
		return "We could not process your message. Please try again in a moment."
	}
	return ""
}
