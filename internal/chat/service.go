// Package chat drives one conversation turn end to end: persist the incoming
// user message, run the agent loop under a deadline, and persist the tool and
// assistant messages it produces.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mreid/taskbot/internal/agent"
	"github.com/mreid/taskbot/internal/db"
	"github.com/mreid/taskbot/internal/llm"
	"github.com/mreid/taskbot/internal/tools"
)

// MaxHistoryMessages bounds the window loaded into model context. Older
// history is dropped, not summarized.
const MaxHistoryMessages = 20

// titleMaxLen caps the auto-derived conversation title.
const titleMaxLen = 50

type Service struct {
	db          *db.DB
	agent       *agent.Agent
	turnTimeout time.Duration
}

func NewService(database *db.DB, ag *agent.Agent, turnTimeout time.Duration) *Service {
	if turnTimeout <= 0 {
		turnTimeout = 60 * time.Second
	}
	return &Service{db: database, agent: ag, turnTimeout: turnTimeout}
}

// TurnResult is what one completed turn hands back to the endpoint.
type TurnResult struct {
	Response       string
	ConversationID int64
	Messages       []db.Message
}

// SendMessage runs one turn in an existing conversation. The conversation
// must belong to userID; otherwise db.ErrNotFound propagates.
func (s *Service) SendMessage(ctx context.Context, userID string, conversationID int64, content string) (*TurnResult, error) {
	conv, err := s.db.GetConversation(userID, conversationID)
	if err != nil {
		return nil, err
	}
	return s.runTurn(ctx, userID, conv, content)
}

// QuickChat runs one turn in a freshly created conversation titled from the
// message itself.
func (s *Service) QuickChat(ctx context.Context, userID, content string) (*TurnResult, error) {
	if strings.TrimSpace(content) == "" {
		return nil, &db.ValidationError{Field: "content", Reason: "must not be empty"}
	}
	conv, err := s.db.CreateConversation(userID, deriveTitle(content))
	if err != nil {
		return nil, err
	}
	return s.runTurn(ctx, userID, conv, content)
}

func (s *Service) runTurn(ctx context.Context, userID string, conv *db.Conversation, content string) (*TurnResult, error) {
	if strings.TrimSpace(content) == "" {
		return nil, &db.ValidationError{Field: "content", Reason: "must not be empty"}
	}

	// The user message is persisted before the model is ever consulted, so
	// the transcript stays causally ordered even if the turn fails later.
	if _, err := s.db.AppendMessage(conv.ID, db.RoleUser, content, nil); err != nil {
		return nil, err
	}

	if conv.Title == db.DefaultConversationTitle {
		if err := s.db.UpdateConversationTitle(userID, conv.ID, deriveTitle(content)); err != nil {
			return nil, err
		}
	}

	history, err := s.db.RecentMessages(conv.ID, MaxHistoryMessages)
	if err != nil {
		return nil, err
	}
	// The window includes the message just appended; the agent re-appends the
	// current user message itself.
	if n := len(history); n > 0 {
		history = history[:n-1]
	}
	wire := toWireHistory(history)

	exec := tools.NewExecutor(s.db, userID)

	turnCtx, cancel := context.WithTimeout(ctx, s.turnTimeout)
	defer cancel()

	reply, records, err := s.agent.Run(turnCtx, exec, wire, content)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			// Timeout degrades to the same fallback as an exhausted loop.
			reply = agent.FallbackReply
		} else {
			return nil, fmt.Errorf("running agent: %w", err)
		}
	}

	for _, rec := range records {
		extra := map[string]any{
			"tool_name":   rec.Name,
			"tool_args":   rec.Args,
			"tool_result": rec.Result,
			"success":     rec.Success,
		}
		if _, err := s.db.AppendMessage(conv.ID, db.RoleTool, "Tool: "+rec.Name, extra); err != nil {
			return nil, err
		}
	}

	if _, err := s.db.AppendMessage(conv.ID, db.RoleAssistant, reply, nil); err != nil {
		return nil, err
	}

	messages, err := s.db.RecentMessages(conv.ID, MaxHistoryMessages)
	if err != nil {
		return nil, err
	}

	return &TurnResult{
		Response:       reply,
		ConversationID: conv.ID,
		Messages:       messages,
	}, nil
}

// toWireHistory converts persisted history into model context. Tool-role rows
// are kept in the durable transcript and the API, but only user and assistant
// messages are replayed across turns: a tool result only makes sense inside
// the turn that produced it, and providers reject orphaned tool blocks.
func toWireHistory(history []db.Message) []llm.Message {
	var wire []llm.Message
	for _, m := range history {
		if m.Role != db.RoleUser && m.Role != db.RoleAssistant {
			continue
		}
		wire = append(wire, llm.Message{Role: m.Role, Content: m.Content})
	}
	return wire
}

func deriveTitle(content string) string {
	content = strings.TrimSpace(content)
	if len(content) <= titleMaxLen {
		return content
	}
	return content[:titleMaxLen] + "..."
}
