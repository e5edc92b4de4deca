// Package messaging delivers internal messages between users. Messages are
// stored as nodes below each user's private message store.
package messaging

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Domain errors.
var (
	ErrNoRecipients     = errors.New("message has no recipients")
	ErrUnknownSender    = errors.New("message sender does not exist")
	ErrUnknownRecipient = errors.New("message recipient does not exist")
	ErrInvalidLabel     = errors.New("invalid message label")
)

// Labels of stored message copies.
const (
	LabelInbox  = "inbox"
	LabelSent   = "sent"
	LabelOutbox = "outbox"
)

// Message node property names.
const (
	propFrom    = "message:from"
	propTo      = "message:to"
	propSubject = "message:subject"
	propBody    = "message:body"
	propLabels  = "message:labels"
	propCreated = "message:created"
)

// Message is one internal message.
type Message struct {
	ID        uuid.UUID `json:"id"`
	From      string    `json:"from"`
	To        []string  `json:"to"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Labels    []string  `json:"labels,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// HasLabel reports whether the message copy carries label.
func (m *Message) HasLabel(label string) bool {
	for _, l := range m.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// ValidLabel reports whether label names a message copy.
func ValidLabel(label string) bool {
	switch label {
	case LabelInbox, LabelSent, LabelOutbox:
		return true
	}
	return false
}
