package builders

import (
	"fmt"

	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/engine"
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/errmodel"
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/registry"
)

// MaxBatchCommands is the upstream limit on commands per batch call.
const MaxBatchCommands = 50

// Misc translates timeline, batch, telephony, messaging, disk and
// diagnostic tools.
func Misc() engine.Builder {
	entityType := registry.Param("entityType", registry.String, "CRM entity type").
		WithEnum("deal", "contact", "company", "lead")
	entityID := registry.Param("entityId", registry.Number, "CRM entity ID")
	return newFamily("misc",
		toolCase{
			def: tool("bitrix_timeline_comment_add", "Add a comment to the timeline of a CRM entity.",
				entityType,
				entityID,
				registry.Param("comment", registry.String, "Comment text"),
				registry.OptionalParam("authorId", registry.Number, "Author user ID"),
			),
			build: buildTimelineCommentAdd,
		},
		toolCase{
			def:   tool("bitrix_timeline_comment_list", "List timeline comments of a CRM entity.", entityType, entityID, limitParam(50)),
			build: buildTimelineCommentList,
		},
		toolCase{
			def: tool("bitrix_batch", fmt.Sprintf("Run up to %d REST commands in one call.", MaxBatchCommands),
				registry.Param("cmd", registry.Object, `Commands keyed by name, e.g. {"d": "crm.deal.get?id=1"}`),
				registry.OptionalParam("halt", registry.Boolean, "Stop on the first error (default false)"),
			),
			build: buildBatch,
		},
		toolCase{
			def: tool("bitrix_telephony_call_list", "List telephony call records.",
				registry.OptionalParam("filter", registry.Object, "Filter, e.g. CALL_TYPE, CALL_START_DATE"),
				registry.OptionalParam("sort", registry.String, "Sort field"),
				registry.OptionalParam("order", registry.String, "Sort direction").WithEnum("ASC", "DESC"),
				registry.OptionalParam("start", registry.Number, "Pagination offset (default 0)"),
			),
			build: buildCallList,
		},
		toolCase{
			def: tool("bitrix_telephony_call_statistics", "Telephony call records within a date range.",
				registry.Param("dateFrom", registry.String, "Start date, ISO 8601"),
				registry.Param("dateTo", registry.String, "End date, ISO 8601"),
			),
			build: buildCallStatistics,
		},
		toolCase{
			def: tool("bitrix_im_message_add", "Send a chat message.",
				registry.Param("dialogId", registry.String, "Dialog ID: a user ID or chatNNN"),
				registry.Param("message", registry.String, "Message text"),
			),
			build: buildMessageAdd,
		},
		toolCase{
			def: tool("bitrix_crm_status_list", "List CRM reference statuses.",
				registry.OptionalParam("entityId", registry.String, "Reference type, e.g. STATUS, SOURCE, DEAL_STAGE"),
			),
			build: buildStatusList,
		},
		static(tool("bitrix_webhook_status", "Check the webhook application."), "app.info"),
		getCase(tool("bitrix_file_get", "Get a Drive file by ID.", idParam("File")), "disk.file.get"),
		toolCase{
			def: tool("bitrix_file_upload", "Upload a file into a Drive folder.",
				registry.Param("folderId", registry.Number, "Target folder ID"),
				registry.Param("fileName", registry.String, "File name"),
				registry.Param("fileContent", registry.String, "File content, base64"),
			),
			build: buildFileUpload,
		},
		static(tool("bitrix_scope", "List the scopes granted to the webhook."), "scope"),
		static(tool("bitrix_crm_settings_mode", "Get the CRM mode (classic or simple)."), "crm.settings.mode.get"),
		toolCase{
			def:   tool("bitrix_crm_summary", "One-row probes of deals, leads, contacts and companies in a single batch."),
			build: buildCRMSummary,
		},
	)
}

type timelineArgs struct {
	EntityType string
	EntityID   float64
}

func parseTimeline(args map[string]any) (timelineArgs, error) {
	t, err := engine.EnsureEntityType(args["entityType"])
	if err != nil {
		return timelineArgs{}, err
	}
	id, err := parseID(args, "entityId")
	if err != nil {
		return timelineArgs{}, err
	}
	return timelineArgs{EntityType: t, EntityID: id}, nil
}

func buildTimelineCommentAdd(args map[string]any) (engine.Request, error) {
	t, err := parseTimeline(args)
	if err != nil {
		return engine.Request{}, err
	}
	comment, err := engine.RequireString(args["comment"], msgString("comment"))
	if err != nil {
		return engine.Request{}, err
	}
	fields := map[string]any{
		"ENTITY_ID":   t.EntityID,
		"ENTITY_TYPE": t.EntityType,
		"COMMENT":     comment,
	}
	if args["authorId"] != nil {
		author, err := parseID(args, "authorId")
		if err != nil {
			return engine.Request{}, err
		}
		fields["AUTHOR_ID"] = author
	}
	return request("crm.timeline.comment.add", map[string]any{"fields": fields}), nil
}

func buildTimelineCommentList(args map[string]any) (engine.Request, error) {
	t, err := parseTimeline(args)
	if err != nil {
		return engine.Request{}, err
	}
	a := searchArgs{
		Filter: map[string]any{"ENTITY_ID": t.EntityID, "ENTITY_TYPE": t.EntityType},
		Limit:  engine.OptionalPositiveNumber(args["limit"], 50),
	}
	return request("crm.timeline.comment.list", a.payload()), nil
}

type batchArgs struct {
	Cmd  map[string]any
	Halt bool
}

func parseBatch(args map[string]any) (batchArgs, error) {
	cmd, ok, err := engine.EnsureObject(args["cmd"], msgObject("cmd"))
	if err != nil {
		return batchArgs{}, err
	}
	if !ok || len(cmd) == 0 {
		return batchArgs{}, errmodel.Validation(`Parameter "cmd" must contain at least one command`)
	}
	if len(cmd) > MaxBatchCommands {
		return batchArgs{}, errmodel.Validationf(`Parameter "cmd" must contain at most %d commands`, MaxBatchCommands)
	}
	for k, v := range cmd {
		if _, err := engine.RequireString(v, fmt.Sprintf("Command %q must be a non-empty string", k)); err != nil {
			return batchArgs{}, err
		}
	}
	halt, _, err := engine.EnsureBoolean(args["halt"], `Parameter "halt" must be a boolean`)
	if err != nil {
		return batchArgs{}, err
	}
	return batchArgs{Cmd: cmd, Halt: halt}, nil
}

func buildBatch(args map[string]any) (engine.Request, error) {
	a, err := parseBatch(args)
	if err != nil {
		return engine.Request{}, err
	}
	halt := 0
	if a.Halt {
		halt = 1
	}
	return request("batch", map[string]any{"cmd": a.Cmd, "halt": halt}), nil
}

func buildCallList(args map[string]any) (engine.Request, error) {
	filter, err := optionalObject(args, "filter")
	if err != nil {
		return engine.Request{}, err
	}
	if filter == nil {
		filter = map[string]any{}
	}
	sort, hasSort, err := optionalString(args, "sort")
	if err != nil {
		return engine.Request{}, err
	}
	order, hasOrder, err := optionalString(args, "order")
	if err != nil {
		return engine.Request{}, err
	}
	start, _, err := parseStart(args)
	if err != nil {
		return engine.Request{}, err
	}
	payload := map[string]any{"FILTER": filter, "START": start}
	if hasSort {
		payload["SORT"] = sort
	}
	if hasOrder {
		payload["ORDER"] = order
	}
	return request("voximplant.statistic.get", payload), nil
}

func buildCallStatistics(args map[string]any) (engine.Request, error) {
	r, err := parseDateRange(args)
	if err != nil {
		return engine.Request{}, err
	}
	return request("voximplant.statistic.get", map[string]any{
		"FILTER": map[string]any{
			">=CALL_START_DATE": r.From,
			"<=CALL_START_DATE": r.To,
		},
	}), nil
}

func buildMessageAdd(args map[string]any) (engine.Request, error) {
	dialog, err := engine.RequireString(args["dialogId"], msgString("dialogId"))
	if err != nil {
		return engine.Request{}, err
	}
	msg, err := engine.RequireString(args["message"], msgString("message"))
	if err != nil {
		return engine.Request{}, err
	}
	return request("im.message.add", map[string]any{"DIALOG_ID": dialog, "MESSAGE": msg}), nil
}

func buildStatusList(args map[string]any) (engine.Request, error) {
	entity, ok, err := optionalString(args, "entityId")
	if err != nil {
		return engine.Request{}, err
	}
	if !ok {
		return request("crm.status.list", nil), nil
	}
	return request("crm.status.list", map[string]any{
		"filter": map[string]any{"ENTITY_ID": entity},
	}), nil
}

func buildFileUpload(args map[string]any) (engine.Request, error) {
	folder, err := parseID(args, "folderId")
	if err != nil {
		return engine.Request{}, err
	}
	name, err := engine.RequireString(args["fileName"], msgString("fileName"))
	if err != nil {
		return engine.Request{}, err
	}
	content, err := engine.RequireString(args["fileContent"], msgString("fileContent"))
	if err != nil {
		return engine.Request{}, err
	}
	return request("disk.folder.uploadfile", map[string]any{
		"id":          folder,
		"data":        map[string]any{"NAME": name},
		"fileContent": []any{name, content},
	}), nil
}

func buildCRMSummary(map[string]any) (engine.Request, error) {
	return request("batch", map[string]any{
		"halt": 0,
		"cmd": map[string]any{
			"deals":     "crm.deal.list?start=0&limit=1",
			"leads":     "crm.lead.list?start=0&limit=1",
			"contacts":  "crm.contact.list?start=0&limit=1",
			"companies": "crm.company.list?start=0&limit=1",
		},
	}), nil
}
