package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/tendant/discord-verify/pkg/notice"
	"github.com/tendant/discord-verify/pkg/notification"
	"github.com/tendant/discord-verify/pkg/verification"
)

func main() {
	// Parse command line flags
	host := flag.String("host", "localhost", "SMTP server host")
	port := flag.Int("port", 25, "SMTP server port")
	username := flag.String("user", "", "SMTP username")
	password := flag.String("pass", "", "SMTP password")
	from := flag.String("from", "", "From email address")
	to := flag.String("to", "", "To email address")
	tls := flag.Bool("tls", false, "Require TLS")
	flag.Parse()

	if *from == "" || *to == "" {
		fmt.Println("Error: from and to email addresses are required")
		os.Exit(1)
	}

	manager, err := notice.NewNotificationManager(notification.SMTPConfig{
		Host:     *host,
		Port:     *port,
		TLS:      *tls,
		Username: *username,
		Password: *password,
		From:     *from,
	})
	if err != nil {
		log.Fatalf("Failed to create notification manager: %v", err)
	}

	code, err := verification.GenerateCode()
	if err != nil {
		log.Fatalf("Failed to generate code: %v", err)
	}

	sender := notice.NewEmailCodeSender(manager, "Email Test", 10*time.Minute)
	if err := sender.SendCode(context.Background(), *to, code, "tester"); err != nil {
		log.Fatalf("Failed to send email: %v", err)
	}

	fmt.Printf("Verification code email sent successfully! (code: %s)\n", code)
}
