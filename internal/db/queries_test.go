package db

import (
	"errors"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

// --- Tasks ---

func TestCreateAndListTasks(t *testing.T) {
	d := openTestDB(t)

	task, err := d.CreateTask("alice", "buy milk", "from the store")
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if task.Title != "buy milk" {
		t.Errorf("expected title %q, got %q", "buy milk", task.Title)
	}
	if task.Completed {
		t.Error("new task should not be completed")
	}

	tasks, err := d.ListTasks("alice", nil)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	if tasks[0].ID != task.ID {
		t.Errorf("expected ID %d, got %d", task.ID, tasks[0].ID)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	d := openTestDB(t)

	var verr *ValidationError

	if _, err := d.CreateTask("alice", "", ""); !errors.As(err, &verr) {
		t.Errorf("empty title: expected ValidationError, got %v", err)
	}
	if _, err := d.CreateTask("alice", "   ", ""); !errors.As(err, &verr) {
		t.Errorf("blank title: expected ValidationError, got %v", err)
	}

	long := make([]byte, 201)
	for i := range long {
		long[i] = 'x'
	}
	if _, err := d.CreateTask("alice", string(long), ""); !errors.As(err, &verr) {
		t.Errorf("long title: expected ValidationError, got %v", err)
	}

	longDesc := make([]byte, 1001)
	for i := range longDesc {
		longDesc[i] = 'x'
	}
	if _, err := d.CreateTask("alice", "ok", string(longDesc)); !errors.As(err, &verr) {
		t.Errorf("long description: expected ValidationError, got %v", err)
	}
}

func TestListTasksNeverCrossesUsers(t *testing.T) {
	d := openTestDB(t)

	d.CreateTask("alice", "alice task", "")
	d.CreateTask("bob", "bob task", "")

	tasks, err := d.ListTasks("alice", nil)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	if tasks[0].Title != "alice task" {
		t.Errorf("got another user's task: %q", tasks[0].Title)
	}
}

func TestListTasksEmptyIsNotAnError(t *testing.T) {
	d := openTestDB(t)

	tasks, err := d.ListTasks("nobody", nil)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("expected 0 tasks, got %d", len(tasks))
	}
}

func TestListTasksCompletedFilter(t *testing.T) {
	d := openTestDB(t)

	a, _ := d.CreateTask("alice", "done one", "")
	d.CreateTask("alice", "pending one", "")
	d.SetTaskCompleted("alice", a.ID, true)

	f := false
	pending, err := d.ListTasks("alice", &f)
	if err != nil {
		t.Fatalf("ListTasks(pending): %v", err)
	}
	if len(pending) != 1 || pending[0].Title != "pending one" {
		t.Errorf("unexpected pending set: %+v", pending)
	}

	tr := true
	completed, err := d.ListTasks("alice", &tr)
	if err != nil {
		t.Fatalf("ListTasks(completed): %v", err)
	}
	if len(completed) != 1 || completed[0].Title != "done one" {
		t.Errorf("unexpected completed set: %+v", completed)
	}
}

func TestListTasksIdempotent(t *testing.T) {
	d := openTestDB(t)

	d.CreateTask("alice", "one", "")
	d.CreateTask("alice", "two", "")

	first, err := d.ListTasks("alice", nil)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	second, err := d.ListTasks("alice", nil)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("row %d differs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestCrossUserAccessLooksLikeNotFound(t *testing.T) {
	d := openTestDB(t)

	task, _ := d.CreateTask("alice", "private", "")

	if _, err := d.GetTask("bob", task.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetTask: expected ErrNotFound, got %v", err)
	}
	if _, err := d.UpdateTask("bob", task.ID, map[string]any{"title": "stolen"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateTask: expected ErrNotFound, got %v", err)
	}
	if _, err := d.SetTaskCompleted("bob", task.ID, true); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetTaskCompleted: expected ErrNotFound, got %v", err)
	}
	if err := d.DeleteTask("bob", task.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteTask: expected ErrNotFound, got %v", err)
	}

	// Owner still sees the task untouched.
	got, err := d.GetTask("alice", task.ID)
	if err != nil {
		t.Fatalf("GetTask(owner): %v", err)
	}
	if got.Title != "private" || got.Completed {
		t.Errorf("task was modified: %+v", got)
	}
}

func TestUpdateTask(t *testing.T) {
	d := openTestDB(t)

	task, _ := d.CreateTask("alice", "original", "desc")

	got, err := d.UpdateTask("alice", task.ID, map[string]any{"title": "renamed"})
	if err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	if got.Title != "renamed" {
		t.Errorf("expected title %q, got %q", "renamed", got.Title)
	}
	// Description should be unchanged
	if got.Description != "desc" {
		t.Errorf("description changed unexpectedly: got %q", got.Description)
	}
}

func TestToggleTaskCompleted(t *testing.T) {
	d := openTestDB(t)

	task, _ := d.CreateTask("alice", "flip me", "")

	got, err := d.ToggleTaskCompleted("alice", task.ID)
	if err != nil {
		t.Fatalf("ToggleTaskCompleted: %v", err)
	}
	if !got.Completed {
		t.Error("expected completed after first toggle")
	}

	got, err = d.ToggleTaskCompleted("alice", task.ID)
	if err != nil {
		t.Fatalf("ToggleTaskCompleted: %v", err)
	}
	if got.Completed {
		t.Error("expected pending after second toggle")
	}
}

func TestDeleteTaskTwice(t *testing.T) {
	d := openTestDB(t)

	task, _ := d.CreateTask("alice", "ephemeral", "")

	if err := d.DeleteTask("alice", task.ID); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := d.DeleteTask("alice", task.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: expected ErrNotFound, got %v", err)
	}
}

// --- Conversations ---

func TestCreateAndGetConversation(t *testing.T) {
	d := openTestDB(t)

	conv, err := d.CreateConversation("alice", "")
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if conv.Title != DefaultConversationTitle {
		t.Errorf("expected default title, got %q", conv.Title)
	}
	if conv.MessageCount != 0 {
		t.Errorf("expected 0 messages, got %d", conv.MessageCount)
	}

	got, err := d.GetConversation("alice", conv.ID)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if got.ID != conv.ID {
		t.Errorf("expected ID %d, got %d", conv.ID, got.ID)
	}
}

func TestConversationOwnership(t *testing.T) {
	d := openTestDB(t)

	conv, _ := d.CreateConversation("alice", "secret chat")

	if _, err := d.GetConversation("bob", conv.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetConversation: expected ErrNotFound, got %v", err)
	}
	if err := d.DeleteConversation("bob", conv.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteConversation: expected ErrNotFound, got %v", err)
	}
}

func TestAppendAndReloadMessagesInOrder(t *testing.T) {
	d := openTestDB(t)

	conv, _ := d.CreateConversation("alice", "")

	d.AppendMessage(conv.ID, RoleUser, "add a task", nil)
	d.AppendMessage(conv.ID, RoleTool, "Tool: add_task", map[string]any{"tool_name": "add_task", "success": true})
	d.AppendMessage(conv.ID, RoleAssistant, "Done, added it.", nil)

	msgs, err := d.RecentMessages(conv.ID, 20)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}

	wantRoles := []string{RoleUser, RoleTool, RoleAssistant}
	wantContent := []string{"add a task", "Tool: add_task", "Done, added it."}
	for i, m := range msgs {
		if m.Role != wantRoles[i] {
			t.Errorf("message %d: expected role %q, got %q", i, wantRoles[i], m.Role)
		}
		if m.Content != wantContent[i] {
			t.Errorf("message %d: expected content %q, got %q", i, wantContent[i], m.Content)
		}
	}
	if msgs[len(msgs)-1].Role != RoleAssistant {
		t.Error("completed turn must end with an assistant message")
	}

	// Metadata round-trips.
	if msgs[1].ExtraData["tool_name"] != "add_task" {
		t.Errorf("expected tool_name in extra data, got %v", msgs[1].ExtraData)
	}
}

func TestRecentMessagesWindow(t *testing.T) {
	d := openTestDB(t)

	conv, _ := d.CreateConversation("alice", "")
	for i := 0; i < 30; i++ {
		d.AppendMessage(conv.ID, RoleUser, string(rune('a'+i%26)), nil)
	}

	msgs, err := d.RecentMessages(conv.ID, 20)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(msgs) != 20 {
		t.Fatalf("expected 20 messages, got %d", len(msgs))
	}
	// The window must hold the newest messages, still in insertion order.
	for i := 1; i < len(msgs); i++ {
		if msgs[i].ID <= msgs[i-1].ID {
			t.Fatalf("messages out of order: %d before %d", msgs[i-1].ID, msgs[i].ID)
		}
	}
}

func TestDeleteConversationCascades(t *testing.T) {
	d := openTestDB(t)

	conv, _ := d.CreateConversation("alice", "")
	d.AppendMessage(conv.ID, RoleUser, "hello", nil)
	d.AppendMessage(conv.ID, RoleAssistant, "hi", nil)

	if err := d.DeleteConversation("alice", conv.ID); err != nil {
		t.Fatalf("DeleteConversation: %v", err)
	}

	msgs, err := d.RecentMessages(conv.ID, 20)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected messages to cascade away, got %d", len(msgs))
	}
}

func TestListConversations(t *testing.T) {
	d := openTestDB(t)

	c1, _ := d.CreateConversation("alice", "first")
	c2, _ := d.CreateConversation("alice", "second")
	d.CreateConversation("bob", "not alice's")
	d.AppendMessage(c1.ID, RoleUser, "hey", nil)

	convs, err := d.ListConversations("alice", 20, 0)
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(convs) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(convs))
	}
	// Newest first.
	if convs[0].ID != c2.ID {
		t.Errorf("expected newest conversation first, got %d", convs[0].ID)
	}
	for _, c := range convs {
		if c.ID == c1.ID && c.MessageCount != 1 {
			t.Errorf("expected message count 1, got %d", c.MessageCount)
		}
	}
}

func TestUpdateConversationTitleTruncates(t *testing.T) {
	d := openTestDB(t)

	conv, _ := d.CreateConversation("alice", "")
	long := make([]byte, 300)
	for i := range long {
		long[i] = 't'
	}
	if err := d.UpdateConversationTitle("alice", conv.ID, string(long)); err != nil {
		t.Fatalf("UpdateConversationTitle: %v", err)
	}

	got, _ := d.GetConversation("alice", conv.ID)
	if len(got.Title) != 255 {
		t.Errorf("expected title truncated to 255, got %d", len(got.Title))
	}
}
