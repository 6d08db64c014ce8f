package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const (
	maxTitleLen       = 200
	maxDescriptionLen = 1000
)

type Task struct {
	ID          int64  `json:"id"`
	UserID      string `json:"user_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// ValidateTaskTitle checks the title bounds shared by the REST and tool paths.
func ValidateTaskTitle(title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if len(title) > maxTitleLen {
		return &ValidationError{Field: "title", Reason: fmt.Sprintf("must be at most %d characters", maxTitleLen)}
	}
	return nil
}

// ValidateTaskDescription checks the description length bound.
func ValidateTaskDescription(description string) error {
	if len(description) > maxDescriptionLen {
		return &ValidationError{Field: "description", Reason: fmt.Sprintf("must be at most %d characters", maxDescriptionLen)}
	}
	return nil
}

// CreateTask inserts a task owned by userID and returns the stored row.
func (d *DB) CreateTask(userID, title, description string) (*Task, error) {
	if err := ValidateTaskTitle(title); err != nil {
		return nil, err
	}
	if err := ValidateTaskDescription(description); err != nil {
		return nil, err
	}
	res, err := d.conn.Exec(
		"INSERT INTO tasks (user_id, title, description) VALUES (?, ?, ?)",
		userID, strings.TrimSpace(title), strings.TrimSpace(description),
	)
	if err != nil {
		return nil, fmt.Errorf("creating task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("creating task: %w", err)
	}
	return d.GetTask(userID, id)
}

// GetTask returns the task with id owned by userID, or ErrNotFound.
func (d *DB) GetTask(userID string, id int64) (*Task, error) {
	var t Task
	err := d.conn.QueryRow(
		"SELECT id, user_id, title, description, completed, created_at, updated_at FROM tasks WHERE id = ? AND user_id = ?",
		id, userID,
	).Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &t.Completed, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting task: %w", err)
	}
	return &t, nil
}

// ListTasks returns userID's tasks, newest first, optionally filtered by
// completion. An empty slice is a valid result, never an error.
func (d *DB) ListTasks(userID string, completed *bool) ([]Task, error) {
	query := "SELECT id, user_id, title, description, completed, created_at, updated_at FROM tasks WHERE user_id = ?"
	args := []any{userID}
	if completed != nil {
		query += " AND completed = ?"
		args = append(args, *completed)
	}
	query += " ORDER BY created_at DESC, id DESC"
	return d.scanTasks(query, args...)
}

// UpdateTask updates the given fields on a task owned by userID.
func (d *DB) UpdateTask(userID string, id int64, fields map[string]any) (*Task, error) {
	if title, ok := fields["title"].(string); ok {
		if err := ValidateTaskTitle(title); err != nil {
			return nil, err
		}
		fields["title"] = strings.TrimSpace(title)
	}
	if desc, ok := fields["description"].(string); ok {
		if err := ValidateTaskDescription(desc); err != nil {
			return nil, err
		}
		fields["description"] = strings.TrimSpace(desc)
	}
	if err := d.updateOwnedRow("tasks", userID, id, fields); err != nil {
		return nil, err
	}
	return d.GetTask(userID, id)
}

// SetTaskCompleted marks a task complete or pending.
func (d *DB) SetTaskCompleted(userID string, id int64, completed bool) (*Task, error) {
	res, err := d.conn.Exec(
		"UPDATE tasks SET completed = ?, updated_at = datetime('now') WHERE id = ? AND user_id = ?",
		completed, id, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("completing task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return d.GetTask(userID, id)
}

// ToggleTaskCompleted flips a task's completion state.
func (d *DB) ToggleTaskCompleted(userID string, id int64) (*Task, error) {
	res, err := d.conn.Exec(
		"UPDATE tasks SET completed = NOT completed, updated_at = datetime('now') WHERE id = ? AND user_id = ?",
		id, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("toggling task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return d.GetTask(userID, id)
}

// DeleteTask removes a task owned by userID. Deleting an already-deleted
// task returns ErrNotFound; delete is not idempotent.
func (d *DB) DeleteTask(userID string, id int64) error {
	res, err := d.conn.Exec("DELETE FROM tasks WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return fmt.Errorf("deleting task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (d *DB) scanTasks(query string, args ...any) ([]Task, error) {
	rows, err := d.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}
	defer rows.Close()
	var tasks []Task
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &t.Completed, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
