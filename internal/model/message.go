package model

import (
	"time"
)

// MessageHistory is one Ask Alyf message as returned to callers.
type MessageHistory struct {
	MessageID   string    `json:"message_id" db:"message_id"`
	Timestamp   time.Time `json:"timestamp" db:"timestamp"`
	MessageText string    `json:"message_text" db:"message_text"`
	AIGenerated string    `json:"ai_generated" db:"ai_generated"`
}

// Message is the stored form of a history entry.
type Message struct {
	MessageHistory
	ProviderID string `json:"provider_id" db:"provider_id"`
	MemberID   string `json:"member_id" db:"member_id"`
	ThreadID   string `json:"thread_id" db:"thread_id"`
}

// MessageFilter narrows history reads and clears. Empty fields match everything;
// set fields combine with AND.
type MessageFilter struct {
	MemberID string `form:"member_id"`
	ThreadID string `form:"thread_id"`
}

// MessageHistoryCleared is recorded with every clear that removed messages.
type MessageHistoryCleared struct {
	ProviderID string    `json:"provider_id"`
	MemberID   string    `json:"member_id,omitempty"`
	ThreadID   string    `json:"thread_id,omitempty"`
	Deleted    int64     `json:"deleted"`
	ClearedAt  time.Time `json:"cleared_at"`
}
