package notice

import (
	"context"
	"fmt"
	"time"

	"github.com/tendant/discord-verify/pkg/notification"
)

// EmailCodeSender delivers verification codes and welcome notices over
// the notification manager. It satisfies verification.CodeSender.
type EmailCodeSender struct {
	manager    *notification.NotificationManager
	serverName string
	codeTTL    time.Duration
}

func NewEmailCodeSender(manager *notification.NotificationManager, serverName string, codeTTL time.Duration) *EmailCodeSender {
	return &EmailCodeSender{
		manager:    manager,
		serverName: serverName,
		codeTTL:    codeTTL,
	}
}

// SendCode emails a verification code to the given address.
func (s *EmailCodeSender) SendCode(ctx context.Context, email, code, displayName string) error {
	return s.manager.Send(notification.VerificationCodeNotice, notification.NotificationData{
		To: email,
		Data: map[string]string{
			"Code":           code,
			"DisplayName":    displayName,
			"ServerName":     s.serverName,
			"ExpiresMinutes": fmt.Sprintf("%d", int(s.codeTTL.Minutes())),
		},
	})
}

// SendWelcome emails post-verification instructions to the given address.
func (s *EmailCodeSender) SendWelcome(ctx context.Context, email, displayName string) error {
	return s.manager.Send(notification.WelcomeNotice, notification.NotificationData{
		To: email,
		Data: map[string]string{
			"DisplayName": displayName,
			"ServerName":  s.serverName,
		},
	})
}
