package notification

// SentNotice records a single delivery made through the MockNotifier.
type SentNotice struct {
	NoticeType   NoticeType
	Notification NotificationData
	Template     NoticeTemplate
}

// MockNotifier records sent notices for tests.
type MockNotifier struct {
	Sent    []SentNotice
	SendErr error
}

func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

func (m *MockNotifier) Send(noticeType NoticeType, notification NotificationData, noticeTemplate NoticeTemplate) error {
	if m.SendErr != nil {
		return m.SendErr
	}
	m.Sent = append(m.Sent, SentNotice{
		NoticeType:   noticeType,
		Notification: notification,
		Template:     noticeTemplate,
	})
	return nil
}
