package campaign

import "time"

// Campaign lifecycle states. The CRUD dashboard owns every transition except
// running -> completed, which the processor performs itself.
const (
	StatusDraft     = "draft"
	StatusRunning   = "running"
	StatusPaused    = "paused"
	StatusStopped   = "stopped"
	StatusCompleted = "completed"
)

// Delivery-log states. "sent" is terminal.
const (
	LogPending = "pending"
	LogSent    = "sent"
	LogFailed  = "failed"
)

type Campaign struct {
	ID              int64
	Name            string
	Subject         string
	Body            string
	Status          string
	HourlyLimit     int
	SentEmails      int
	FailedEmails    int
	TotalEmails     int
	LastProcessedID int64
	StartTime       *time.Time
	CompletedTime   *time.Time
}

// Recipient is one eligible target resolved through group membership.
type Recipient struct {
	UserID int64
	Email  string
}

type LogEntry struct {
	ID           int64
	CampaignID   int64
	Email        string
	Status       string
	ErrorMessage *string
	SentTime     *time.Time
}

// HourlyStat accumulates outcomes for one campaign within one wall-clock hour.
type HourlyStat struct {
	CampaignID   int64
	HourBucket   time.Time
	EmailsSent   int
	EmailsFailed int
}
