// Package tools is the only sanctioned path from the agent to task data.
// Every executor is bound to one authenticated user at construction; tool
// arguments coming from the model can never widen that scope.
package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mreid/taskbot/internal/db"
)

type Executor struct {
	db     *db.DB
	userID string
}

// NewExecutor binds an executor to the authenticated caller. The userID must
// come from the auth context, never from model output.
func NewExecutor(database *db.DB, userID string) *Executor {
	return &Executor{db: database, userID: userID}
}

// Record captures one tool invocation for the conversation transcript.
type Record struct {
	Name    string         `json:"tool_name"`
	Args    map[string]any `json:"tool_args"`
	Result  any            `json:"tool_result"`
	Success bool           `json:"success"`
}

// Execute runs one named tool and returns the JSON result fed back to the
// model plus a structured record for persistence. Tool-level failures
// (validation, not-found) come back as error results, not Go errors; the
// model is expected to explain them to the user.
func (e *Executor) Execute(name string, params map[string]any) (string, Record) {
	// The model does not get to pick whose tasks it operates on. Drop any
	// smuggled identifier before dispatch.
	delete(params, "user_id")

	var result any
	var err error

	switch name {
	case "add_task":
		title, _ := getString(params, "title")
		description, _ := getString(params, "description")
		var task *db.Task
		task, err = e.db.CreateTask(e.userID, title, description)
		if err == nil {
			result = taskResult(task)
		}

	case "list_tasks":
		status, _ := getString(params, "status")
		var completed *bool
		switch status {
		case "pending":
			f := false
			completed = &f
		case "completed":
			t := true
			completed = &t
		}
		var tasks []db.Task
		tasks, err = e.db.ListTasks(e.userID, completed)
		if err == nil {
			items := make([]map[string]any, 0, len(tasks))
			for i := range tasks {
				items = append(items, taskResult(&tasks[i]))
			}
			if status == "" {
				status = "all"
			}
			result = map[string]any{"tasks": items, "total": len(items), "filter": status}
		}

	case "update_task":
		id, ok := getInt(params, "task_id")
		if !ok {
			err = fmt.Errorf("task_id is required")
			break
		}
		fields := make(map[string]any)
		for _, k := range []string{"title", "description"} {
			if v, ok := params[k]; ok {
				fields[k] = v
			}
		}
		var task *db.Task
		task, err = e.db.UpdateTask(e.userID, id, fields)
		if err == nil {
			result = taskResult(task)
		}

	case "complete_task":
		id, ok := getInt(params, "task_id")
		if !ok {
			err = fmt.Errorf("task_id is required")
			break
		}
		var task *db.Task
		task, err = e.db.SetTaskCompleted(e.userID, id, true)
		if err == nil {
			result = map[string]any{
				"id":        task.ID,
				"title":     task.Title,
				"completed": task.Completed,
				"message":   fmt.Sprintf("Task %q marked as completed", task.Title),
			}
		}

	case "delete_task":
		id, ok := getInt(params, "task_id")
		if !ok {
			err = fmt.Errorf("task_id is required")
			break
		}
		var task *db.Task
		task, err = e.db.GetTask(e.userID, id)
		if err == nil {
			if err = e.db.DeleteTask(e.userID, id); err == nil {
				result = map[string]any{
					"id":      id,
					"title":   task.Title,
					"message": fmt.Sprintf("Task %q has been deleted", task.Title),
				}
			}
		}

	case "delete_task_by_name":
		name, _ := getString(params, "task_name")
		var task *db.Task
		task, err = e.findTaskByName(name, false)
		if err == nil {
			if err = e.db.DeleteTask(e.userID, task.ID); err == nil {
				result = map[string]any{
					"id":      task.ID,
					"title":   task.Title,
					"message": fmt.Sprintf("Task %q has been deleted", task.Title),
				}
			}
		}

	case "complete_task_by_name":
		name, _ := getString(params, "task_name")
		var task *db.Task
		task, err = e.findTaskByName(name, true)
		if err == nil {
			if task, err = e.db.SetTaskCompleted(e.userID, task.ID, true); err == nil {
				result = map[string]any{
					"id":        task.ID,
					"title":     task.Title,
					"completed": true,
					"message":   fmt.Sprintf("Task %q marked as completed", task.Title),
				}
			}
		}

	default:
		result = map[string]any{"error": "unknown tool: " + name}
		rec := Record{Name: name, Args: params, Result: result, Success: false}
		return marshalResult(result), rec
	}

	success := err == nil
	if err != nil {
		result = map[string]any{"error": toolErrorMessage(name, params, err)}
	}
	rec := Record{Name: name, Args: params, Result: result, Success: success}
	return marshalResult(result), rec
}

// findTaskByName resolves a task by case-insensitive partial title match.
// Zero matches is an error; more than one is an error listing the candidates
// so the model can ask the user to disambiguate.
func (e *Executor) findTaskByName(name string, pendingOnly bool) (*db.Task, error) {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return nil, fmt.Errorf("task_name is required")
	}
	var completed *bool
	if pendingOnly {
		f := false
		completed = &f
	}
	tasks, err := e.db.ListTasks(e.userID, completed)
	if err != nil {
		return nil, err
	}
	var matches []db.Task
	for _, t := range tasks {
		if strings.Contains(strings.ToLower(t.Title), needle) {
			matches = append(matches, t)
		}
	}
	switch len(matches) {
	case 0:
		if pendingOnly {
			return nil, fmt.Errorf("no pending task found matching %q", name)
		}
		return nil, fmt.Errorf("no task found matching %q", name)
	case 1:
		return &matches[0], nil
	default:
		var list []string
		for _, t := range matches {
			list = append(list, fmt.Sprintf("%q (ID: %d)", t.Title, t.ID))
		}
		return nil, fmt.Errorf("multiple tasks match %q: %s. Specify which one by exact name or ID", name, strings.Join(list, ", "))
	}
}

// toolErrorMessage maps store errors to a stable, non-leaking message.
func toolErrorMessage(name string, params map[string]any, err error) string {
	if errors.Is(err, db.ErrNotFound) {
		if id, ok := getInt(params, "task_id"); ok {
			return fmt.Sprintf("Task %d not found", id)
		}
		return "Task not found"
	}
	return err.Error()
}

func taskResult(t *db.Task) map[string]any {
	return map[string]any{
		"id":          t.ID,
		"title":       t.Title,
		"description": t.Description,
		"completed":   t.Completed,
	}
}

func marshalResult(result any) string {
	b, _ := json.Marshal(result) // results are simple maps/slices; marshal cannot fail
	return string(b)
}

// Param extraction helpers. LLMs send numbers as float64 in JSON.
func getInt(params map[string]any, key string) (int64, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		// Some models stringify numeric arguments.
		var i int64
		_, err := fmt.Sscanf(n, "%d", &i)
		return i, err == nil
	}
	return 0, false
}

func getString(params map[string]any, key string) (string, bool) {
	v, ok := params[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
