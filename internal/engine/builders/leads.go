package builders

import (
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/engine"
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/errmodel"
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/registry"
)

// Leads translates the crm.lead.* tools.
func Leads() engine.Builder {
	return newFamily("leads",
		listCase(tool("bitrix_lead_list",
			"List leads with optional filter, field selection and sorting.",
			listParams("STATUS_ID, SOURCE_ID, ASSIGNED_BY_ID")...,
		), "crm.lead.list"),
		getCase(tool("bitrix_lead_get", "Get a lead by ID.", idParam("Lead")), "crm.lead.get"),
		titledAddCase(tool("bitrix_lead_add",
			"Create a lead. A title is required, either as \"title\" or fields.TITLE.",
			registry.OptionalParam("title", registry.String, "Lead title; overrides fields.TITLE"),
			registry.OptionalParam("fields", registry.Object, "Lead fields (NAME, PHONE, SOURCE_ID, ...)"),
		), "crm.lead.add"),
		updateCase(tool("bitrix_lead_update", "Update a lead by ID.",
			idParam("Lead"),
			fieldsParam("Lead fields to update"),
		), "crm.lead.update"),
		getCase(tool("bitrix_lead_delete", "Delete a lead by ID.", idParam("Lead")), "crm.lead.delete"),
		static(tool("bitrix_lead_fields", "Describe lead fields."), "crm.lead.fields"),
		toolCase{
			def: tool("bitrix_lead_convert", "Convert a lead into a deal, contact and/or company.",
				idParam("Lead"),
				registry.OptionalParam("createDeal", registry.Boolean, "Create a deal (default false)"),
				registry.OptionalParam("createContact", registry.Boolean, "Create a contact (default false)"),
				registry.OptionalParam("createCompany", registry.Boolean, "Create a company (default false)"),
			),
			build: buildLeadConvert,
		},
		static(tool("bitrix_lead_userfield_list", "List lead user fields."), "crm.lead.userfield.list"),
		searchCase(tool("bitrix_lead_search", "Search leads by filter.",
			registry.OptionalParam("filter", registry.Object, "Filter"),
			limitParam(50),
		), "crm.lead.list"),
		toolCase{
			def:   tool("bitrix_lead_status_list", "List lead statuses."),
			build: buildLeadStatusList,
		},
		latestCase(tool("bitrix_lead_latest", "List the newest leads.", limitParam(10)), "crm.lead.list"),
		toolCase{
			def: tool("bitrix_lead_date_range", "List leads created within a date range.",
				registry.Param("dateFrom", registry.String, "Start date, ISO 8601 (YYYY-MM-DD)"),
				registry.Param("dateTo", registry.String, "End date, ISO 8601 (YYYY-MM-DD)"),
				limitParam(50),
			),
			build: buildLeadDateRange,
		},
	)
}

type convertArgs struct {
	ID                                       float64
	CreateDeal, CreateContact, CreateCompany bool
}

func parseConvertArgs(args map[string]any) (convertArgs, error) {
	var a convertArgs
	var err error
	if a.ID, err = parseID(args, "id"); err != nil {
		return a, err
	}
	flags := []struct {
		key string
		dst *bool
	}{
		{"createDeal", &a.CreateDeal},
		{"createContact", &a.CreateContact},
		{"createCompany", &a.CreateCompany},
	}
	for _, f := range flags {
		v, _, err := engine.EnsureBoolean(args[f.key], "Parameter \""+f.key+"\" must be a boolean")
		if err != nil {
			return a, err
		}
		*f.dst = v
	}
	return a, nil
}

func yn(b bool) string {
	if b {
		return "Y"
	}
	return "N"
}

func buildLeadConvert(args map[string]any) (engine.Request, error) {
	a, err := parseConvertArgs(args)
	if err != nil {
		return engine.Request{}, err
	}
	return request("crm.lead.convert", map[string]any{
		"id": a.ID,
		"params": map[string]any{
			"CREATE_DEAL":    yn(a.CreateDeal),
			"CREATE_CONTACT": yn(a.CreateContact),
			"CREATE_COMPANY": yn(a.CreateCompany),
		},
	}), nil
}

func buildLeadStatusList(map[string]any) (engine.Request, error) {
	return request("crm.status.list", map[string]any{
		"filter": map[string]any{"ENTITY_ID": "STATUS"},
	}), nil
}

type dateRangeArgs struct {
	From, To string
}

func parseDateRange(args map[string]any) (dateRangeArgs, error) {
	from, hasFrom, err := optionalISODate(args, "dateFrom")
	if err != nil {
		return dateRangeArgs{}, err
	}
	to, hasTo, err := optionalISODate(args, "dateTo")
	if err != nil {
		return dateRangeArgs{}, err
	}
	if !hasFrom || !hasTo {
		return dateRangeArgs{}, errmodel.Validation(`Both "dateFrom" and "dateTo" are required`)
	}
	return dateRangeArgs{From: from, To: to}, nil
}

func buildLeadDateRange(args map[string]any) (engine.Request, error) {
	r, err := parseDateRange(args)
	if err != nil {
		return engine.Request{}, err
	}
	return request("crm.lead.list", map[string]any{
		"filter": map[string]any{
			">=DATE_CREATE": r.From,
			"<=DATE_CREATE": r.To,
		},
		"order": map[string]any{"DATE_CREATE": "DESC"},
		"start": 0,
		"limit": engine.OptionalPositiveNumber(args["limit"], 50),
	}), nil
}
