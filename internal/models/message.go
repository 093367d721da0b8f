package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a chat transcript.
type Message struct {
	ID        uuid.UUID `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Route     string    `json:"route,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func NewMessage(role Role, content string) Message {
	return Message{
		ID:        uuid.New(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// ResponseMode selects how verbose a synthesized answer should be.
type ResponseMode string

const (
	ModeConcise  ResponseMode = "Concise"
	ModeDetailed ResponseMode = "Detailed"
)

// ParseResponseMode is case-insensitive. Unknown values fall back to Concise.
func ParseResponseMode(s string) ResponseMode {
	if strings.EqualFold(strings.TrimSpace(s), string(ModeDetailed)) {
		return ModeDetailed
	}
	return ModeConcise
}
