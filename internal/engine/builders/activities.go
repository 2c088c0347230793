package builders

import (
	"strings"

	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/engine"
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/errmodel"
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/registry"
)

// CRM owner type IDs.
var ownerTypeIDs = map[string]int{
	"lead":    1,
	"deal":    2,
	"contact": 3,
	"company": 4,
}

// Activities translates the crm.activity.* tools.
func Activities() engine.Builder {
	return newFamily("activities",
		listCase(tool("bitrix_activity_list",
			"List CRM activities (calls, meetings, emails, CRM tasks).",
			listParams("OWNER_TYPE_ID, OWNER_ID, TYPE_ID")...,
		), "crm.activity.list"),
		getCase(tool("bitrix_activity_get", "Get an activity by ID.", idParam("Activity")), "crm.activity.get"),
		toolCase{
			def: tool("bitrix_activity_add",
				"Create an activity. OWNER_TYPE_ID, OWNER_ID and TYPE_ID are required, from arguments or fields.",
				registry.OptionalParam("ownerType", registry.String, "Owner entity type").WithEnum("lead", "deal", "contact", "company"),
				registry.OptionalParam("ownerId", registry.Number, "Owner entity ID"),
				registry.OptionalParam("typeId", registry.Number, "Activity type (1 meeting, 2 call, 4 email, ...)"),
				registry.OptionalParam("subject", registry.String, "Subject"),
				registry.OptionalParam("description", registry.String, "Description"),
				registry.OptionalParam("responsibleId", registry.Number, "Responsible user ID"),
				registry.OptionalParam("startTime", registry.String, "Start time, ISO 8601"),
				registry.OptionalParam("endTime", registry.String, "End time, ISO 8601"),
				registry.OptionalParam("fields", registry.Object, "Raw activity fields; explicit arguments win"),
			),
			build: buildActivityAdd,
		},
		updateCase(tool("bitrix_activity_update", "Update an activity by ID.",
			idParam("Activity"),
			fieldsParam("Activity fields to update"),
		), "crm.activity.update"),
		getCase(tool("bitrix_activity_delete", "Delete an activity by ID.", idParam("Activity")), "crm.activity.delete"),
		static(tool("bitrix_activity_fields", "Describe activity fields."), "crm.activity.fields"),
		toolCase{
			def:   tool("bitrix_activity_complete", "Mark an activity as completed.", idParam("Activity")),
			build: buildActivityComplete,
		},
	)
}

type activityAddArgs struct {
	OwnerTypeID   int
	OwnerID       float64
	TypeID        float64
	Subject       string
	Description   string
	ResponsibleID float64
	StartTime     string
	EndTime       string
	Fields        map[string]any
}

func parseActivityAdd(args map[string]any) (activityAddArgs, error) {
	var a activityAddArgs
	var err error

	ownerType, ok, err := optionalString(args, "ownerType")
	if err != nil {
		return a, err
	}
	if ok {
		id, known := ownerTypeIDs[strings.ToLower(ownerType)]
		if !known {
			return a, errmodel.Validation(`Parameter "ownerType" must be one of: lead, deal, contact, company`)
		}
		a.OwnerTypeID = id
	}
	for _, p := range []struct {
		key string
		dst *float64
	}{
		{"ownerId", &a.OwnerID},
		{"typeId", &a.TypeID},
		{"responsibleId", &a.ResponsibleID},
	} {
		if args[p.key] == nil {
			continue
		}
		if *p.dst, err = parseID(args, p.key); err != nil {
			return a, err
		}
	}
	for _, p := range []struct {
		key string
		dst *string
	}{
		{"subject", &a.Subject},
		{"description", &a.Description},
		{"startTime", &a.StartTime},
		{"endTime", &a.EndTime},
	} {
		if *p.dst, _, err = optionalString(args, p.key); err != nil {
			return a, err
		}
	}
	if a.Fields, err = optionalObject(args, "fields"); err != nil {
		return a, err
	}
	return a, nil
}

func (a activityAddArgs) fields() map[string]any {
	explicit := map[string]any{}
	if a.OwnerTypeID != 0 {
		explicit["OWNER_TYPE_ID"] = a.OwnerTypeID
	}
	if a.OwnerID != 0 {
		explicit["OWNER_ID"] = a.OwnerID
	}
	if a.TypeID != 0 {
		explicit["TYPE_ID"] = a.TypeID
	}
	if a.Subject != "" {
		explicit["SUBJECT"] = a.Subject
	}
	if a.Description != "" {
		explicit["DESCRIPTION"] = a.Description
	}
	if a.ResponsibleID != 0 {
		explicit["RESPONSIBLE_ID"] = a.ResponsibleID
	}
	if a.StartTime != "" {
		explicit["START_TIME"] = a.StartTime
	}
	if a.EndTime != "" {
		explicit["END_TIME"] = a.EndTime
	}
	return mergeFields(a.Fields, explicit)
}

func buildActivityAdd(args map[string]any) (engine.Request, error) {
	a, err := parseActivityAdd(args)
	if err != nil {
		return engine.Request{}, err
	}
	fields := a.fields()
	for _, k := range []string{"OWNER_TYPE_ID", "OWNER_ID", "TYPE_ID"} {
		if !present(fields, k) {
			return engine.Request{}, errmodel.Validation("OWNER_TYPE_ID, OWNER_ID and TYPE_ID are required (ownerType, ownerId, typeId)")
		}
	}
	return request("crm.activity.add", map[string]any{"fields": fields}), nil
}

func buildActivityComplete(args map[string]any) (engine.Request, error) {
	id, err := parseID(args, "id")
	if err != nil {
		return engine.Request{}, err
	}
	return request("crm.activity.update", map[string]any{
		"id":     id,
		"fields": map[string]any{"COMPLETED": "Y"},
	}), nil
}
