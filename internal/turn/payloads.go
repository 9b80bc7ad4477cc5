package turn

import (
	"time"

	"github.com/driftcode/agentcore/pkg/models"
)

type turnStartPayload struct {
	TurnNumber int `json:"turnNumber"`
}

// responseCompletePayload embeds models.TokenRecord so that hydrating a
// session's history (internal/session.hydrate) can decode this event's
// payload directly as a TokenRecord: embedding flattens TurnNumber,
// Timestamp, Source, and Computed to the top level alongside the
// turn-runner-specific fields below.
type responseCompletePayload struct {
	models.TokenRecord
	StopReason    string `json:"stopReason"`
	HasToolCalls  bool   `json:"hasToolCalls"`
	ToolCallCount int    `json:"toolCallCount"`
}

type turnEndPayload struct {
	TurnNumber     int                `json:"turnNumber"`
	Duration       time.Duration      `json:"duration"`
	Usage          models.TokenSource `json:"usage"`
	ContextMaxSize int                `json:"contextMaxSize"`
}

type toolUseBatchPayload struct {
	Calls []models.ToolCall `json:"calls"`
}

type turnFailedPayload struct {
	Category    string `json:"category"`
	Recoverable bool   `json:"recoverable"`
	Message     string `json:"message"`
}

type compactionPayload struct {
	MessagesBefore int `json:"messagesBefore"`
	MessagesAfter  int `json:"messagesAfter"`
}
