package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mreid/taskbot/internal/agent"
	"github.com/mreid/taskbot/internal/db"
	"github.com/mreid/taskbot/internal/llm"
)

type fakeClient struct {
	script []*llm.Response
	calls  int
	err    error
	// seen captures the histories handed to the model, for context checks.
	seen [][]llm.Message
}

func (f *fakeClient) Chat(ctx context.Context, system string, messages []llm.Message, ts []llm.Tool) (*llm.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.seen = append(f.seen, messages)
	if f.err != nil {
		return nil, f.err
	}
	i := f.calls
	if i >= len(f.script) {
		i = len(f.script) - 1
	}
	f.calls++
	return f.script[i], nil
}

func newTestService(t *testing.T, client llm.Client) (*Service, *db.DB) {
	t.Helper()
	d, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	ag := agent.New(client, 100000)
	return NewService(d, ag, time.Minute), d
}

func TestQuickChatFullTurn(t *testing.T) {
	client := &fakeClient{script: []*llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "t1", Name: "add_task", Params: map[string]any{"title": "buy milk"}}}},
		{Content: "Added \"buy milk\"."},
	}}
	svc, d := newTestService(t, client)

	result, err := svc.QuickChat(context.Background(), "alice", "Add a task to buy milk")
	if err != nil {
		t.Fatalf("QuickChat: %v", err)
	}
	if result.ConversationID == 0 {
		t.Fatal("expected a conversation id")
	}
	if !strings.Contains(result.Response, "buy milk") {
		t.Errorf("unexpected response: %q", result.Response)
	}

	// Transcript order: user, tool, assistant.
	msgs, _ := d.RecentMessages(result.ConversationID, 20)
	wantRoles := []string{db.RoleUser, db.RoleTool, db.RoleAssistant}
	if len(msgs) != len(wantRoles) {
		t.Fatalf("expected %d messages, got %d", len(wantRoles), len(msgs))
	}
	for i, m := range msgs {
		if m.Role != wantRoles[i] {
			t.Errorf("message %d: expected role %q, got %q", i, wantRoles[i], m.Role)
		}
	}
	if msgs[1].ExtraData["tool_name"] != "add_task" {
		t.Errorf("tool message missing metadata: %v", msgs[1].ExtraData)
	}
	if sc, ok := msgs[1].ExtraData["success"].(bool); !ok || !sc {
		t.Errorf("expected success=true in tool metadata, got %v", msgs[1].ExtraData["success"])
	}

	// Task actually landed under the authenticated user.
	tasks, _ := d.ListTasks("alice", nil)
	if len(tasks) != 1 || tasks[0].Title != "buy milk" {
		t.Errorf("task not created: %+v", tasks)
	}

	// Conversation title derived from the first message.
	conv, _ := d.GetConversation("alice", result.ConversationID)
	if conv.Title != "Add a task to buy milk" {
		t.Errorf("unexpected title: %q", conv.Title)
	}
}

func TestQuickChatDerivesLongTitle(t *testing.T) {
	client := &fakeClient{script: []*llm.Response{{Content: "ok"}}}
	svc, d := newTestService(t, client)

	long := strings.Repeat("please add a task ", 10)
	result, err := svc.QuickChat(context.Background(), "alice", long)
	if err != nil {
		t.Fatalf("QuickChat: %v", err)
	}
	conv, _ := d.GetConversation("alice", result.ConversationID)
	if !strings.HasSuffix(conv.Title, "...") || len(conv.Title) != titleMaxLen+3 {
		t.Errorf("unexpected derived title: %q", conv.Title)
	}
}

func TestSendMessageBackfillsDefaultTitle(t *testing.T) {
	client := &fakeClient{script: []*llm.Response{{Content: "hello"}}}
	svc, d := newTestService(t, client)

	conv, _ := d.CreateConversation("alice", "")
	if _, err := svc.SendMessage(context.Background(), "alice", conv.ID, "first message"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	got, _ := d.GetConversation("alice", conv.ID)
	if got.Title != "first message" {
		t.Errorf("expected backfilled title, got %q", got.Title)
	}
}

func TestSendMessageOtherUsersConversation(t *testing.T) {
	client := &fakeClient{script: []*llm.Response{{Content: "hello"}}}
	svc, d := newTestService(t, client)

	conv, _ := d.CreateConversation("bob", "bob's chat")
	_, err := svc.SendMessage(context.Background(), "alice", conv.ID, "hi")
	if !errors.Is(err, db.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if client.calls != 0 {
		t.Error("model was consulted for a conversation the caller does not own")
	}
}

func TestSendMessageEmptyContent(t *testing.T) {
	client := &fakeClient{script: []*llm.Response{{Content: "hello"}}}
	svc, d := newTestService(t, client)

	conv, _ := d.CreateConversation("alice", "")
	var verr *db.ValidationError
	if _, err := svc.SendMessage(context.Background(), "alice", conv.ID, "  "); !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestTurnTimeoutDegradesToFallback(t *testing.T) {
	client := &fakeClient{script: []*llm.Response{{Content: "never seen"}}}
	svc, d := newTestService(t, client)
	svc.turnTimeout = -time.Second // context is already expired when the agent runs

	result, err := svc.QuickChat(context.Background(), "alice", "hello")
	if err != nil {
		t.Fatalf("timeout must degrade, not fail: %v", err)
	}
	if result.Response != agent.FallbackReply {
		t.Errorf("expected fallback reply, got %q", result.Response)
	}

	// The user message and the fallback assistant message are both durable.
	msgs, _ := d.RecentMessages(result.ConversationID, 20)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[len(msgs)-1].Role != db.RoleAssistant {
		t.Error("turn must end with an assistant message")
	}
}

func TestModelFailureIsTurnError(t *testing.T) {
	client := &fakeClient{err: errors.New("upstream down")}
	svc, d := newTestService(t, client)

	conv, _ := d.CreateConversation("alice", "")
	_, err := svc.SendMessage(context.Background(), "alice", conv.ID, "hi")
	if err == nil {
		t.Fatal("expected turn-level error")
	}

	// The user message was persisted before the failure.
	msgs, _ := d.RecentMessages(conv.ID, 20)
	if len(msgs) != 1 || msgs[0].Role != db.RoleUser {
		t.Errorf("expected only the user message, got %+v", msgs)
	}
}

func TestHistoryFedAcrossTurns(t *testing.T) {
	client := &fakeClient{script: []*llm.Response{{Content: "reply"}}}
	svc, d := newTestService(t, client)

	conv, _ := d.CreateConversation("alice", "")
	svc.SendMessage(context.Background(), "alice", conv.ID, "turn one")
	svc.SendMessage(context.Background(), "alice", conv.ID, "turn two")

	// Second turn's context must contain the first exchange before the new
	// user message.
	second := client.seen[len(client.seen)-1]
	if len(second) != 3 {
		t.Fatalf("expected 3 context messages, got %d", len(second))
	}
	if second[0].Content != "turn one" || second[1].Content != "reply" || second[2].Content != "turn two" {
		t.Errorf("unexpected context: %+v", second)
	}
}

func TestToolMessagesNotReplayedAcrossTurns(t *testing.T) {
	client := &fakeClient{script: []*llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "t1", Name: "list_tasks", Params: map[string]any{}}}},
		{Content: "no tasks"},
	}}
	svc, d := newTestService(t, client)

	conv, _ := d.CreateConversation("alice", "")
	svc.SendMessage(context.Background(), "alice", conv.ID, "turn one")

	client.script = []*llm.Response{{Content: "second reply"}}
	client.calls = 0
	svc.SendMessage(context.Background(), "alice", conv.ID, "turn two")

	// Durable transcript keeps the tool row...
	msgs, _ := d.RecentMessages(conv.ID, 20)
	var toolRows int
	for _, m := range msgs {
		if m.Role == db.RoleTool {
			toolRows++
		}
	}
	if toolRows != 1 {
		t.Fatalf("expected 1 tool row in transcript, got %d", toolRows)
	}

	// ...but the second turn's model context replays only user/assistant.
	second := client.seen[len(client.seen)-1]
	for _, m := range second {
		if strings.HasPrefix(m.Content, "Tool: ") {
			t.Errorf("tool row leaked into cross-turn context: %+v", m)
		}
	}
}
