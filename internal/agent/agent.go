package agent

import (
	"context"
	"fmt"
	"log"

	"github.com/mreid/taskbot/internal/llm"
	"github.com/mreid/taskbot/internal/tools"
)

// maxToolRounds bounds the tool-calling loop so a model that keeps asking
// for tools cannot spin a turn forever.
const maxToolRounds = 5

// FallbackReply is the assistant message persisted when a turn runs out of
// tool rounds or wall-clock time without a final answer.
const FallbackReply = "I couldn't finish that request within the allowed number of steps. Please try rephrasing."

type Agent struct {
	client           llm.Client
	MaxContextTokens int
}

func New(client llm.Client, maxContextTokens int) *Agent {
	return &Agent{client: client, MaxContextTokens: maxContextTokens}
}

// Run drives one turn: append the user message, loop the model against the
// tool catalog, execute requested tools in order through exec, and stop at
// the first reply with no tool calls. exec is already bound to the
// authenticated user; nothing the model emits can change that.
//
// Tool failures are folded into tool results and the loop continues. Only a
// failure to reach the model at all is returned as an error. Exhausting the
// round bound yields FallbackReply, not an error.
func (a *Agent) Run(ctx context.Context, exec *tools.Executor, history []llm.Message, userMessage string) (string, []tools.Record, error) {
	messages := make([]llm.Message, len(history))
	copy(messages, history)
	messages = append(messages, llm.Message{Role: "user", Content: userMessage})

	// Fixed costs: system prompt + tool definitions.
	fixedTokens := llm.EstimateTokens(llm.SystemPrompt) + llm.EstimateToolsTokens(llm.AgentTools)
	messageBudget := a.MaxContextTokens - fixedTokens
	if messageBudget < 1000 {
		messageBudget = 1000 // floor so the current turn always fits
	}

	var records []tools.Record

	for i := 0; i < maxToolRounds; i++ {
		trimmed := llm.TrimMessages(messages, messageBudget)
		if len(trimmed) < len(messages) {
			log.Printf("context trimmed: %d -> %d messages", len(messages), len(trimmed))
		}
		resp, err := a.client.Chat(ctx, llm.SystemPrompt, trimmed, llm.AgentTools)
		if err != nil {
			return "", records, fmt.Errorf("llm chat: %w", err)
		}

		// No tool calls means the model produced its final answer.
		if len(resp.ToolCalls) == 0 {
			content := resp.Content
			if content == "" {
				content = "I processed your request."
			}
			return content, records, nil
		}

		messages = append(messages, llm.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		// Execute tool calls one at a time, in the order requested; a later
		// call may depend on an earlier result being visible to the model.
		for _, tc := range resp.ToolCalls {
			result, rec := exec.Execute(tc.Name, tc.Params)
			log.Printf("tool %s -> %s", tc.Name, truncate(result, 200))
			records = append(records, rec)
			messages = append(messages, llm.Message{
				Role:       "user",
				Content:    result,
				ToolCallID: tc.ID,
			})
		}
	}

	return FallbackReply, records, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
