package notice

import (
	"embed"
	"log/slog"

	"github.com/tendant/discord-verify/pkg/notification"
)

//go:embed templates/*
var templateFiles embed.FS

func loadTemplate(filename string) string {
	content, err := templateFiles.ReadFile("templates/" + filename)
	if err != nil {
		slog.Error("Error reading template file!", "err", err, "filename", filename)
		return ""
	}
	return string(content)
}

// NewNotificationManager creates a notification manager with the email
// notifier and all verification notice templates registered.
func NewNotificationManager(smtpConfig notification.SMTPConfig) (*notification.NotificationManager, error) {
	notificationManager := notification.NewNotificationManager()

	emailNotifier, err := notification.NewEmailNotifier(smtpConfig)
	if err != nil {
		return nil, err
	}

	if err := notificationManager.RegisterNotifier(notification.EmailSystem, emailNotifier); err != nil {
		return nil, err
	}

	err = notificationManager.RegisterNotification(notification.VerificationCodeNotice, notification.EmailSystem, notification.NoticeTemplate{
		Subject: "Your Verification Code",
		Html:    loadTemplate("email/verification_code.html"),
		Text:    loadTemplate("email/verification_code.tmpl"),
	})
	if err != nil {
		slog.Error("failed to register verification code notification", "err", err)
		return nil, err
	}

	err = notificationManager.RegisterNotification(notification.WelcomeNotice, notification.EmailSystem, notification.NoticeTemplate{
		Subject: "Welcome to the Server",
		Html:    loadTemplate("email/welcome.html"),
		Text:    loadTemplate("email/welcome.tmpl"),
	})
	if err != nil {
		slog.Error("failed to register welcome notification", "err", err)
		return nil, err
	}

	return notificationManager, nil
}
