package llm

// AgentTools is the catalog advertised to the model. The schemas deliberately
// never include a user identifier: ownership is bound server-side and the
// model cannot address another user's tasks no matter what it emits.
var AgentTools = []Tool{
	{
		Name:        "add_task",
		Description: "Add a new task for the user.",
		Parameters: objReq(map[string]any{
			"title":       prop("string", "The task title (required, max 200 characters)"),
			"description": prop("string", "Optional task description"),
		}, "title"),
	},
	{
		Name:        "list_tasks",
		Description: "List the user's tasks with an optional status filter.",
		Parameters: obj(map[string]any{
			"status": prop("string", "Filter by status: 'pending', 'completed', or 'all'"),
		}),
	},
	{
		Name:        "update_task",
		Description: "Update a task's title and/or description by ID.",
		Parameters: objReq(map[string]any{
			"task_id":     prop("integer", "ID of the task to update"),
			"title":       prop("string", "New task title"),
			"description": prop("string", "New task description"),
		}, "task_id"),
	},
	{
		Name:        "complete_task",
		Description: "Mark a task as completed by ID.",
		Parameters: objReq(map[string]any{
			"task_id": prop("integer", "ID of the task to complete"),
		}, "task_id"),
	},
	{
		Name:        "delete_task",
		Description: "Delete a task by ID.",
		Parameters: objReq(map[string]any{
			"task_id": prop("integer", "ID of the task to delete"),
		}, "task_id"),
	},
	{
		Name:        "delete_task_by_name",
		Description: "Delete a task by its name/title. Use this when the user refers to a task by name instead of ID. Partial matches are supported.",
		Parameters: objReq(map[string]any{
			"task_name": prop("string", "Name/title of the task to delete"),
		}, "task_name"),
	},
	{
		Name:        "complete_task_by_name",
		Description: "Mark a task as completed by its name/title. Use this when the user refers to a task by name instead of ID. Partial matches are supported.",
		Parameters: objReq(map[string]any{
			"task_name": prop("string", "Name/title of the task to complete"),
		}, "task_name"),
	},
}

// Helper functions for building JSON Schema objects.

func prop(typ, desc string) map[string]any {
	return map[string]any{"type": typ, "description": desc}
}

func obj(properties map[string]any) map[string]any {
	if properties == nil {
		properties = map[string]any{}
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
	}
}

func objReq(properties map[string]any, required ...string) map[string]any {
	s := obj(properties)
	s["required"] = required
	return s
}
