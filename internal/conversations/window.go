package conversations

import (
	"github.com/farewatch/farewatch/internal/tokens"
	"github.com/farewatch/farewatch/pkg/models"
)

// selectWindow picks the suffix of msgs whose estimated token total,
// plus the system prompt and the batch priming overhead, stays within
// budget. Selection walks from the newest message backwards so an older
// message is never included ahead of a newer one. The newest message is
// always returned even when it alone busts the budget.
func selectWindow(est *tokens.Estimator, msgs []*models.Message, systemPrompt string, budget int) []*models.Message {
	if len(msgs) == 0 {
		return nil
	}

	remaining := budget - est.Count(systemPrompt) - est.CountMessages(nil)

	cut := len(msgs)
	for i := len(msgs) - 1; i >= 0; i-- {
		cost := est.CountMessage(countable(msgs[i]))
		if cost > remaining {
			if cut == len(msgs) {
				// Single-message exception: the newest message is
				// returned even when it alone exceeds the budget.
				cut = i
			}
			break
		}
		remaining -= cost
		cut = i
	}

	// A tool message is only valid after the assistant message carrying
	// its tool_calls entry. When the cut lands inside a tool round the
	// assistant half was dropped, so the round's tool results go too.
	for cut < len(msgs)-1 && msgs[cut].Role == models.RoleTool {
		cut++
	}

	out := make([]*models.Message, 0, len(msgs)-cut)
	for _, msg := range msgs[cut:] {
		out = append(out, msg)
	}
	return out
}

func countable(msg *models.Message) tokens.CountedMessage {
	cm := tokens.CountedMessage{
		Role:    string(msg.Role),
		Content: msg.Content,
		Name:    msg.Name,
	}
	for _, tc := range msg.ToolCalls {
		cm.ToolCalls = append(cm.ToolCalls, tokens.CountedToolCall{
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return cm
}
