package tools

// Tool names exposed to the agent.
const (
	ScheduleBlock   = "scheduleBlock"
	UpdateBlock     = "updateBlock"
	DeleteBlock     = "deleteBlock"
	CompleteBlock   = "completeBlock"
	UncompleteBlock = "uncompleteBlock"
	UseArchitect    = "useArchitect"
	CreatePlan      = "createPlan"
	SwitchPlan      = "switchPlan"
	ListPlans       = "listPlans"
	DeletePlan      = "deletePlan"
	ClearPlan       = "clearPlan"
	GetLocalTime    = "getLocalTime"

	ScheduleTask        = "scheduleTask"
	GetScheduledTasks   = "getScheduledTasks"
	CancelScheduledTask = "cancelScheduledTask"
)

// Definition describes a tool to the agent. InputSchema is a JSON Schema
// object.
type Definition struct {
	Name                 string         `json:"name"`
	Description          string         `json:"description"`
	InputSchema          map[string]any `json:"inputSchema"`
	RequiresConfirmation bool           `json:"requiresConfirmation"`
}

func object(props map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func str(description string) map[string]any {
	s := map[string]any{"type": "string"}
	if description != "" {
		s["description"] = description
	}
	return s
}

func enum(values ...string) map[string]any {
	return map[string]any{"type": "string", "enum": values}
}

func number(description string) map[string]any {
	return map[string]any{"type": "number", "description": description}
}

func stringArray() map[string]any {
	return map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
}

var definitions = []Definition{
	{
		Name:        ScheduleBlock,
		Description: "Schedule a task block on the execution timeline",
		InputSchema: object(map[string]any{
			"title":       str("The title of the task"),
			"description": str("Description of the task"),
			"priority":    enum("high", "medium", "low"),
			"tags":        stringArray(),
			"startTime":   str("ISO 8601 start time (e.g., 2024-01-27T20:00:00)"),
			"endTime":     str("ISO 8601 end time"),
		}, "title", "startTime", "endTime"),
	},
	{
		Name:        UpdateBlock,
		Description: "Update an existing block on the timeline",
		InputSchema: object(map[string]any{
			"id": str("The ID of the block to update"),
			"updates": object(map[string]any{
				"title":       str(""),
				"description": str(""),
				"priority":    enum("high", "medium", "low"),
				"startTime":   str(""),
				"endTime":     str(""),
				"status":      enum("pending", "completed", "cancelled"),
				"tags":        stringArray(),
			}),
		}, "id", "updates"),
	},
	{
		Name:        DeleteBlock,
		Description: "Delete a block from the timeline",
		InputSchema: object(map[string]any{"id": str("The ID of the block to delete")}, "id"),
	},
	{
		Name:        CompleteBlock,
		Description: "Mark a block on the timeline as completed",
		InputSchema: object(map[string]any{"id": str("The ID of the block to complete")}, "id"),
	},
	{
		Name:        UncompleteBlock,
		Description: "Mark a completed block as pending again",
		InputSchema: object(map[string]any{"id": str("The ID of the block to reopen")}, "id"),
	},
	{
		Name:        UseArchitect,
		Description: "Trigger 'The Architect' workflow. Use this for ANY high-level goal, vague request, or project that needs to be broken down into steps (e.g., 'Learn German', 'Build a house', 'Plan a wedding').",
		InputSchema: object(map[string]any{"goal": str("The high-level goal to decompose")}, "goal"),
	},
	{
		Name:        CreatePlan,
		Description: "Create a new plan and make it the active plan",
		InputSchema: object(map[string]any{"title": str("The title of the plan")}, "title"),
	},
	{
		Name:        SwitchPlan,
		Description: "Switch the active plan",
		InputSchema: object(map[string]any{"id": str("The ID of the plan to activate")}, "id"),
	},
	{
		Name:        ListPlans,
		Description: "List all plans with their block counts",
		InputSchema: object(map[string]any{}),
	},
	{
		Name:        DeletePlan,
		Description: "Delete a plan. The last remaining plan cannot be deleted",
		InputSchema: object(map[string]any{"id": str("The ID of the plan to delete")}, "id"),
	},
	{
		Name:                 ClearPlan,
		Description:          "Remove every block from the active plan",
		InputSchema:          object(map[string]any{}),
		RequiresConfirmation: true,
	},
	{
		Name:        GetLocalTime,
		Description: "get the local time for a specified location",
		InputSchema: object(map[string]any{"location": str("IANA time zone, e.g. Europe/Berlin")}),
	},
	{
		Name:        ScheduleTask,
		Description: "A tool to schedule a task to be executed at a later time",
		InputSchema: object(map[string]any{
			"when": object(map[string]any{
				"type":           enum("scheduled", "delayed", "cron", "no-schedule"),
				"date":           str("ISO 8601 time to run a scheduled task"),
				"delayInSeconds": number("Seconds to wait before running a delayed task"),
				"cron":           str("Cron expression for a recurring task, e.g. 0 9 * * 1-5"),
			}, "type"),
			"description": str("What to do when the task runs"),
		}, "when", "description"),
	},
	{
		Name:        GetScheduledTasks,
		Description: "List all tasks that have been scheduled",
		InputSchema: object(map[string]any{}),
	},
	{
		Name:        CancelScheduledTask,
		Description: "Cancel a scheduled task using its ID",
		InputSchema: object(map[string]any{"taskId": str("The ID of the task to cancel")}, "taskId"),
	},
}

// Catalog returns the definitions of every tool in a stable order.
func Catalog() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	return out
}

// Lookup returns the definition of the named tool.
func Lookup(name string) (Definition, bool) {
	for _, d := range definitions {
		if d.Name == name {
			return d, true
		}
	}
	return Definition{}, false
}
