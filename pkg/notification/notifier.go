package notification

// NotificationSystem represents a delivery system (e.g. email)
type NotificationSystem string

// NoticeType represents a kind of notice (e.g. "verification_code")
type NoticeType string

const (
	EmailSystem NotificationSystem = "email"

	// VerificationCodeNotice carries a one-time code to a user's inbox
	VerificationCodeNotice NoticeType = "verification_code"
	// WelcomeNotice carries onboarding instructions when the platform DM
	// could not be delivered
	WelcomeNotice NoticeType = "welcome_instructions"
)

// NotificationData is the per-send payload
type NotificationData struct {
	To      string            // Recipient identifier (email address)
	Subject string            // Optional override of the template subject
	Body    string            // Optional raw body when no template applies
	Data    map[string]string // Template data
}

// NoticeTemplate holds the rendered content sources for a notice
type NoticeTemplate struct {
	Subject string
	Text    string
	Html    string
}

// Notifier delivers one notice through one system
type Notifier interface {
	Send(noticeType NoticeType, notification NotificationData, template NoticeTemplate) error
}
