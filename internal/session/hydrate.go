package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/driftcode/agentcore/pkg/models"
)

// hydrate replays sessionID's event history into active's message store and
// token-tracking state, then repairs any dangling tool call left by a
// provider crash mid-turn (spec §10 "Transcript repair").
func (o *Orchestrator) hydrate(ctx context.Context, active *Active) error {
	events, err := o.store.GetEventsBySession(ctx, active.Session.ID, 0, 0)
	if err != nil {
		return fmt.Errorf("hydrate: %w", err)
	}

	var messages []*models.Message
	var records []models.TokenRecord
	for _, evt := range events {
		switch evt.Type {
		case models.EventMessageUser, models.EventMessageAssist:
			var msg models.Message
			if err := json.Unmarshal(evt.Payload, &msg); err != nil {
				return fmt.Errorf("hydrate: decode message event %s: %w", evt.ID, err)
			}
			messages = append(messages, &msg)
		case models.EventResponseDone:
			var rec models.TokenRecord
			if err := json.Unmarshal(evt.Payload, &rec); err == nil {
				records = append(records, rec)
			}
		}
	}

	messages = repairDanglingToolCalls(messages)

	active.Messages.Set(messages)
	if len(records) > 0 {
		active.Tokens.RestoreState(records, nil)
	}
	return nil
}

// repairDanglingToolCalls checks only the final message: a well-formed
// session always appends tool results before its next turn starts, so a
// dangling tool call (a provider crash mid-turn) can only ever be left on
// the last assistant message. It synthesizes an Interrupted tool-result for
// each unanswered call, so the transcript is well-formed for the next turn.
func repairDanglingToolCalls(messages []*models.Message) []*models.Message {
	if len(messages) == 0 {
		return messages
	}
	last := messages[len(messages)-1]
	if last.Role != models.RoleAssistant || len(last.ToolCalls) == 0 {
		return messages
	}

	missing := make([]models.ToolResult, 0, len(last.ToolCalls))
	for _, tc := range last.ToolCalls {
		missing = append(missing, models.ToolResult{
			ToolCallID: tc.ID,
			Content:    "interrupted: no result recorded before session end",
			IsError:    true,
		})
	}
	return append(messages, &models.Message{Role: models.RoleTool, ToolResults: missing})
}
