package email

import (
	"errors"
	"net/mail"
	"strings"
)

var ErrNoSender = errors.New("message has no usable sender address")

// MessageRef is one row of a message listing.
type MessageRef struct {
	ID       string
	ThreadID string
}

// MessageSummary holds the envelope fields of an unread message.
type MessageSummary struct {
	ID              string
	ThreadID        string
	From            string
	Subject         string
	MessageIDHeader string
}

func NewMessageSummary(id, threadID, from, subject, messageIDHeader string) *MessageSummary {
	return &MessageSummary{
		ID:              id,
		ThreadID:        threadID,
		From:            from,
		Subject:         subject,
		MessageIDHeader: messageIDHeader,
	}
}

// Sender returns the bare address of the From header.
func (m *MessageSummary) Sender() (string, error) {
	return NormalizeAddress(m.From)
}

// NormalizeAddress strips the display name from an address header value
// and lower-cases the result.
func NormalizeAddress(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", ErrNoSender
	}

	addr, err := mail.ParseAddress(value)
	if err != nil {
		return "", ErrNoSender
	}

	return strings.ToLower(addr.Address), nil
}
