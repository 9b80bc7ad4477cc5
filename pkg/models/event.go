// Package models defines the core data types shared across the agent
// runtime: sessions, events, messages, tokens, rules, hooks, and auth
// material.
package models

import (
	"time"

	"github.com/google/uuid"
)

// EventType enumerates the kinds of records that can appear in a session's
// event tree.
type EventType string

const (
	EventSessionStart   EventType = "session.start"
	EventSessionFork    EventType = "session.fork"
	EventMessageUser    EventType = "message.user"
	EventMessageAssist  EventType = "message.assistant"
	EventToolCall       EventType = "tool_call"
	EventToolResult     EventType = "tool_result"
	EventMetadataUpdate EventType = "metadata.update"
	EventTurnStart      EventType = "turn.start"
	EventTurnEnd        EventType = "turn.end"
	EventResponseDone   EventType = "response.complete"
	EventContextCleared EventType = "context.cleared"
	EventCompaction     EventType = "compaction"
	EventToolUseBatch   EventType = "tool_use_batch"
	EventTurnFailed     EventType = "turn.failed"
)

// Event is the fundamental append-only record of a session's event tree.
// It is never mutated after creation; it is deleted only as part of whole
// session deletion.
type Event struct {
	ID        string          `json:"id"`
	ParentID  *string         `json:"parentId"`
	SessionID string          `json:"sessionId"`
	WorkspaceID string        `json:"workspaceId"`
	Timestamp time.Time       `json:"timestamp"`
	Type      EventType       `json:"type"`
	Sequence  int64           `json:"sequence"`
	Checksum  string          `json:"checksum,omitempty"`
	Payload   []byte          `json:"payload"`
}

// NewEventID returns a time-ordered event identifier with the evt_ prefix.
func NewEventID() string {
	return "evt_" + uuid.Must(uuid.NewV7()).String()
}

// Session is the top-level conversational container. Exactly one root event
// (session.start or session.fork) exists per session; every other event
// transitively descends from it.
type Session struct {
	ID             string    `json:"id"`
	Model          string    `json:"model"`
	WorkingDir     string    `json:"workingDirectory"`
	Title          string    `json:"title,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	HeadEventID    string    `json:"headEventId"`
	RootEventID    string    `json:"rootEventId"`
	Archived       bool      `json:"archived"`
}

// NewSessionID returns a time-ordered session identifier.
func NewSessionID() string {
	return "sess_" + uuid.Must(uuid.NewV7()).String()
}

// Branch is a root-to-leaf path in a session's event tree; the leaf is the
// branch head.
type Branch struct {
	HeadEventID string   `json:"headEventId"`
	EventIDs    []string `json:"eventIds"`
	IsPrimary   bool     `json:"isPrimary"`
}
