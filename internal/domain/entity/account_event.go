package entity

import "time"

// Account lifecycle event types published to the message bus.
const (
	EventAccountRegistered = "account.registered"
	EventAccountUpdated    = "account.updated"
	EventAccountDeleted    = "account.deleted"
)

// AccountEvent is the JSON payload put on the events queue.
// It never carries credential material.
type AccountEvent struct {
	Type        string    `json:"type"`
	AccountID   string    `json:"account_id"`
	Username    string    `json:"username"`
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	Changes     []string  `json:"changes,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// NewAccountEvent builds an event from a (sanitized) account.
func NewAccountEvent(typ string, a *Account, changes []string) AccountEvent {
	return AccountEvent{
		Type:        typ,
		AccountID:   a.ID,
		Username:    a.Username,
		Email:       a.Email,
		DisplayName: a.DisplayName,
		Changes:     changes,
		OccurredAt:  time.Now().UTC(),
	}
}
