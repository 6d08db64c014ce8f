package db

import (
	"fmt"
	"strings"
)

var allowedColumns = map[string]map[string]bool{
	"tasks":         {"title": true, "description": true, "completed": true},
	"conversations": {"title": true},
}

// updateOwnedRow updates a row's fields, scoped to the owning user. Zero rows
// affected means the row is missing or belongs to someone else; both report
// ErrNotFound.
func (d *DB) updateOwnedRow(table, userID string, id int64, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	allowed, ok := allowedColumns[table]
	if !ok {
		return fmt.Errorf("unknown table: %s", table)
	}
	var setClauses []string
	var args []any
	for col, val := range fields {
		if !allowed[col] {
			return fmt.Errorf("disallowed column %q for table %s", col, table)
		}
		setClauses = append(setClauses, col+" = ?")
		args = append(args, val)
	}
	if table == "tasks" {
		setClauses = append(setClauses, "updated_at = datetime('now')")
	}
	args = append(args, id, userID)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ? AND user_id = ?", table, strings.Join(setClauses, ", "))
	res, err := d.conn.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("updating %s %d: %w", table, id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
