package discord

import (
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/tendant/discord-verify/pkg/utils"
	"github.com/tendant/discord-verify/pkg/verification"
)

const (
	colorInfo    = 0x5865F2
	colorSuccess = 0x57F287
	colorWarning = 0xFEE75C
	colorError   = 0xED4245
)

func welcomeEmbed(displayName, serverName string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title: "🎓 Welcome to " + serverName + "!",
		Description: fmt.Sprintf(
			"Hi %s! To get access to the server you need to verify your identity with your institutional email address.\n\n"+
				"Reply to this message with your email address to get started.",
			displayName),
		Color: colorInfo,
	}
}

// renderReply maps an engine result to the embed shown to the user. A nil
// return means nothing should be sent.
func renderReply(result verification.Result, serverName string) *discordgo.MessageEmbed {
	switch result.ReplyKind {
	case verification.ReplyNone:
		return nil

	case verification.ReplyWelcome:
		return &discordgo.MessageEmbed{
			Title: "🎓 Welcome to " + serverName + "!",
			Description: "To get access to the server, send your institutional email address " +
				"in this conversation.",
			Color: colorInfo,
		}

	case verification.ReplyCooldown:
		return &discordgo.MessageEmbed{
			Title: "⏳ Too Many Attempts",
			Description: fmt.Sprintf(
				"You have made too many attempts. Please try again in %d minutes.",
				int(result.RetryAfter.Minutes())+1),
			Color: colorWarning,
		}

	case verification.ReplyInvalidEmail:
		return &discordgo.MessageEmbed{
			Title: "❌ Invalid Email",
			Description: fmt.Sprintf(
				"That does not look like an accepted institutional email address. "+
					"You have %d attempts left.",
				result.AttemptsLeft),
			Color: colorError,
		}

	case verification.ReplyEmailTaken:
		return &discordgo.MessageEmbed{
			Title: "❌ Email Already Used",
			Description: fmt.Sprintf(
				"The address %s is already linked to a verified account. "+
					"If you believe this is a mistake, contact a moderator.",
				utils.MaskEmail(result.Email)),
			Color: colorError,
		}

	case verification.ReplyCodeSent:
		return &discordgo.MessageEmbed{
			Title: "✅ Email Registered!",
			Description: fmt.Sprintf(
				"A verification code has been sent to %s.\n\n"+
					"Send the 6-digit code here within %d minutes.",
				result.Email, int(result.CodeTTL.Minutes())),
			Color: colorSuccess,
		}

	case verification.ReplyCodeExpired:
		return &discordgo.MessageEmbed{
			Title: "⌛ Code Expired",
			Description: "Your verification code has expired. " +
				"Send your email address again to receive a new one.",
			Color: colorWarning,
		}

	case verification.ReplyWrongCode:
		return &discordgo.MessageEmbed{
			Title: "❌ Wrong Code",
			Description: fmt.Sprintf(
				"That code is not correct. You have %d attempts left.",
				result.AttemptsLeft),
			Color: colorError,
		}

	case verification.ReplyAttemptsExhausted:
		return &discordgo.MessageEmbed{
			Title: "🚫 Verification Blocked",
			Description: fmt.Sprintf(
				"You have used all your attempts. Verification is blocked for %d minutes.",
				int(result.RetryAfter.Minutes())+1),
			Color: colorError,
		}

	case verification.ReplyVerified:
		return &discordgo.MessageEmbed{
			Title:       "🎉 Verification Successful!",
			Description: "Congratulations! You now have full access to the server.",
			Color:       colorSuccess,
		}

	case verification.ReplyTransientError:
		return &discordgo.MessageEmbed{
			Title:       "⚠️ Something Went Wrong",
			Description: "We could not process your message. Please try again in a moment.",
			Color:       colorWarning,
		}
	}

	return nil
}
