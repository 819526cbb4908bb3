package api

// OverviewResponse reports aggregate verification counters
type OverviewResponse struct {
	PendingCount   int64  `json:"pending_count"`
	VerifiedTotal  int64  `json:"verified_total"`
	VerifiedRecent int64  `json:"verified_recent"`
	FailedCount    int64  `json:"failed_count"`
	RateLimited    int64  `json:"rate_limited"`
	Suspicious     int64  `json:"suspicious"`
	WindowHours    int    `json:"window_hours"`
	GeneratedAt    string `json:"generated_at"`
}

// ActivityEntry is a single security log record
type ActivityEntry struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Action      string `json:"action"`
	Details     string `json:"details"`
	Success     bool   `json:"success"`
	Timestamp   string `json:"timestamp"`
}

// ActivityResponse lists recent security log records
type ActivityResponse struct {
	Entries []ActivityEntry `json:"entries"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}
