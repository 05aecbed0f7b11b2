// Package domain contains entities without logic, just meta-data.
package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
)

const MaxMessageLen = 2048

var (
	ErrMessageEmpty   = errors.New("message empty after trim")
	ErrMessageTooLong = errors.New("message too long")
)

// ChatMessage is one entry of a loop's text side-channel.
// Immutable once created; the wire form is UTF-8 JSON.
type ChatMessage struct {
	ID          string `json:"id"`
	SenderID    string `json:"senderId"`
	SenderLabel string `json:"senderLabel"`
	Text        string `json:"text"`
	TS          int64  `json:"ts"`
}

// NewChatMessage builds a message with a fresh id and current timestamp.
// The text is trimmed; an empty result is rejected.
func NewChatMessage(senderID, senderLabel, text string) (ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return ChatMessage{}, ErrMessageEmpty
	}
	if len(text) > MaxMessageLen {
		return ChatMessage{}, ErrMessageTooLong
	}
	return ChatMessage{
		ID:          uuid.NewString(),
		SenderID:    senderID,
		SenderLabel: senderLabel,
		Text:        text,
		TS:          time.Now().UnixMilli(),
	}, nil
}

// Encode serializes the message for the data side-channel.
func (m ChatMessage) Encode() ([]byte, error) {
	return sonic.Marshal(m)
}

// DecodeChatMessage parses an inbound side-channel payload.
func DecodeChatMessage(payload []byte) (ChatMessage, error) {
	var m ChatMessage
	if err := sonic.Unmarshal(payload, &m); err != nil {
		return ChatMessage{}, err
	}
	if strings.TrimSpace(m.Text) == "" {
		return ChatMessage{}, ErrMessageEmpty
	}
	return m, nil
}
