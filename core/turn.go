// Package core holds the conversational primitives shared by the
// persistence bridge, the memory facade, and callers: turn roles,
// conversation turns, and channel+sender identities with their
// canonical key derivation.
package core

import (
	"time"
)

// Role identifies who produced a conversation turn.
type Role string

const (
	// RoleUser marks an inbound message from the sender.
	RoleUser Role = "user"

	// RoleAssistant marks a reply produced by the agent.
	RoleAssistant Role = "assistant"
)

// IsValid reports whether the role is one of the defined constants.
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

// Turn is a single message in a conversation history: one inbound
// message or one produced reply. Turns are ordered and append-only
// within a conversation.
type Turn struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// NewUserTurn builds a user turn stamped with the current time.
func NewUserTurn(text string) Turn {
	return Turn{Role: RoleUser, Text: text, Timestamp: time.Now().UTC()}
}

// NewAssistantTurn builds an assistant turn stamped with the current time.
func NewAssistantTurn(text string) Turn {
	return Turn{Role: RoleAssistant, Text: text, Timestamp: time.Now().UTC()}
}
