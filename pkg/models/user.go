package models

// User is the persisted user record, keyed by first name. Each user owns
// exactly one provider thread, created at first login.
type User struct {
	FirstName string   `json:"first_name"`
	ThreadID  string   `json:"thread_id"`
	Settings  Settings `json:"settings"`
	// Created/updated timestamps (ns)
	CreatedTS int64 `json:"created_ts,omitempty"`
	UpdatedTS int64 `json:"updated_ts,omitempty"`
}

// Settings holds the calendar feed URLs consumed read-only by the schedule
// tool. Field names match the wire shape the settings endpoints exchange.
type Settings struct {
	ClassSchedulesURL string `json:"class_schedules"`
	AllAssignmentsURL string `json:"all_assignments"`
}

// Session is an authenticated session resolved from the opaque cookie token.
type Session struct {
	Token     string `json:"token"`
	FirstName string `json:"first_name"`
	ThreadID  string `json:"thread_id"`
	// Expiry timestamp (unix seconds)
	ExpiresTS int64 `json:"expires_ts"`
}
