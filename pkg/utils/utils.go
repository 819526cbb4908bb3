package utils

import "strings"

// MaskEmail masks the local part of an email for display and logging.
// "john.doe@example.com" becomes "j***e@example.com". Addresses without
// an @ are returned unchanged.
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return email
	}

	local := email[:at]
	domain := email[at:]

	switch len(local) {
	case 1:
		return email
	case 2:
		return local[:1] + "*" + local[1:] + domain
	default:
		return local[:1] + "***" + local[len(local)-1:] + domain
	}
}
