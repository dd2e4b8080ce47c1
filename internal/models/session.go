package models

import "time"

// SessionSchemaVersion is bumped whenever the persisted session shape changes.
const SessionSchemaVersion = 1

// Session is a time-bounded snapshot of the validated context plus bookkeeping.
type Session struct {
	ID        string             `json:"id"`
	CreatedAt time.Time          `json:"createdAt"`
	UpdatedAt time.Time          `json:"updatedAt"`
	ExpiresAt time.Time          `json:"expiresAt"`
	Version   int                `json:"version"`
	Context   ApplicationContext `json:"context"`
	Metadata  SessionMetadata    `json:"metadata"`
}

type SessionMetadata struct {
	UserAgent       string `json:"userAgent,omitempty"`
	Language        string `json:"language,omitempty"`
	InvalidAttempts int    `json:"invalidAttempts"`
}

// IsExpired checks if session has expired at the given instant
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
