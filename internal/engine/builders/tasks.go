package builders

import (
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/engine"
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/errmodel"
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/registry"
)

// Tasks translates the tasks.task.* and task.* tools.
func Tasks() engine.Builder {
	taskID := registry.Param("taskId", registry.Number, "Task ID")
	return newFamily("tasks",
		listCase(tool("bitrix_task_list", "List tasks with optional filter and sorting.",
			listParams("RESPONSIBLE_ID, STATUS, GROUP_ID")...,
		), "tasks.task.list"),
		toolCase{
			def:   tool("bitrix_task_get", "Get a task by ID.", taskID),
			build: byTaskID("tasks.task.get", "taskId"),
		},
		toolCase{
			def: tool("bitrix_task_add",
				"Create a task. TITLE and RESPONSIBLE_ID are required, from arguments or fields.",
				registry.OptionalParam("title", registry.String, "Task title"),
				registry.OptionalParam("responsibleId", registry.Number, "Responsible user ID"),
				registry.OptionalParam("description", registry.String, "Description"),
				registry.OptionalParam("deadline", registry.String, "Deadline, ISO 8601"),
				registry.OptionalParam("priority", registry.Number, "Priority (0 low, 1 normal, 2 high)"),
				registry.OptionalParam("groupId", registry.Number, "Workgroup or project ID"),
				registry.OptionalParam("fields", registry.Object, "Raw task fields; explicit arguments win"),
			),
			build: buildTaskAdd,
		},
		toolCase{
			def: tool("bitrix_task_update", "Update a task.",
				taskID,
				fieldsParam("Task fields to update (TITLE, DEADLINE, PRIORITY, ...)"),
			),
			build: buildTaskUpdate,
		},
		toolCase{
			def:   tool("bitrix_task_close", "Complete a task.", taskID),
			build: byTaskID("tasks.task.complete", "taskId"),
		},
		toolCase{
			def:   tool("bitrix_task_comment_list", "List task comments.", taskID),
			build: byTaskID("task.commentitem.getlist", "TASKID"),
		},
		toolCase{
			def: tool("bitrix_task_comment_add", "Add a comment to a task.",
				taskID,
				registry.Param("comment", registry.String, "Comment text"),
			),
			build: buildTaskCommentAdd,
		},
		toolCase{
			def:   tool("bitrix_task_checklist_list", "List the checklist of a task.", taskID),
			build: byTaskID("task.checklistitem.getlist", "TASKID"),
		},
	)
}

// byTaskID renders {<key>: taskId}. The legacy task.* methods want TASKID.
func byTaskID(method, key string) func(map[string]any) (engine.Request, error) {
	return func(args map[string]any) (engine.Request, error) {
		id, err := parseID(args, "taskId")
		if err != nil {
			return engine.Request{}, err
		}
		return request(method, map[string]any{key: id}), nil
	}
}

type taskAddArgs struct {
	Title         string
	ResponsibleID float64
	Description   string
	Deadline      string
	Priority      float64
	HasPriority   bool
	GroupID       float64
	Fields        map[string]any
}

func parseTaskAdd(args map[string]any) (taskAddArgs, error) {
	var a taskAddArgs
	var err error
	if a.Title, _, err = engine.EnsureString(args["title"], msgString("title")); err != nil {
		return a, err
	}
	if args["responsibleId"] != nil {
		if a.ResponsibleID, err = parseID(args, "responsibleId"); err != nil {
			return a, err
		}
	}
	if a.Description, _, err = optionalString(args, "description"); err != nil {
		return a, err
	}
	if a.Deadline, _, err = optionalString(args, "deadline"); err != nil {
		return a, err
	}
	if a.Priority, a.HasPriority, err = optionalNumber(args, "priority"); err != nil {
		return a, err
	}
	if args["groupId"] != nil {
		if a.GroupID, err = parseID(args, "groupId"); err != nil {
			return a, err
		}
	}
	if a.Fields, err = optionalObject(args, "fields"); err != nil {
		return a, err
	}
	return a, nil
}

func (a taskAddArgs) fields() map[string]any {
	explicit := map[string]any{}
	if a.Title != "" {
		explicit["TITLE"] = a.Title
	}
	if a.ResponsibleID != 0 {
		explicit["RESPONSIBLE_ID"] = a.ResponsibleID
	}
	if a.Description != "" {
		explicit["DESCRIPTION"] = a.Description
	}
	if a.Deadline != "" {
		explicit["DEADLINE"] = a.Deadline
	}
	if a.HasPriority {
		explicit["PRIORITY"] = a.Priority
	}
	if a.GroupID != 0 {
		explicit["GROUP_ID"] = a.GroupID
	}
	return mergeFields(a.Fields, explicit)
}

func buildTaskAdd(args map[string]any) (engine.Request, error) {
	a, err := parseTaskAdd(args)
	if err != nil {
		return engine.Request{}, err
	}
	fields := a.fields()
	if !present(fields, "TITLE") {
		return engine.Request{}, errmodel.Validation(`Parameter "title" or fields.TITLE is required`)
	}
	if !present(fields, "RESPONSIBLE_ID") {
		return engine.Request{}, errmodel.Validation(`Parameter "responsibleId" or fields.RESPONSIBLE_ID is required`)
	}
	return request("tasks.task.add", map[string]any{"fields": fields}), nil
}

func buildTaskUpdate(args map[string]any) (engine.Request, error) {
	a, err := parseUpdateArgs(args, "taskId")
	if err != nil {
		return engine.Request{}, err
	}
	return request("tasks.task.update", map[string]any{"taskId": a.ID, "fields": a.Fields}), nil
}

func buildTaskCommentAdd(args map[string]any) (engine.Request, error) {
	id, err := parseID(args, "taskId")
	if err != nil {
		return engine.Request{}, err
	}
	comment, err := engine.RequireString(args["comment"], msgString("comment"))
	if err != nil {
		return engine.Request{}, err
	}
	return request("task.commentitem.add", map[string]any{
		"TASKID": id,
		"FIELDS": map[string]any{"POST_MESSAGE": comment},
	}), nil
}
