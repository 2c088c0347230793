package builders

import (
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/engine"
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/registry"
)

// Companies translates the crm.company.* tools.
func Companies() engine.Builder {
	return newFamily("companies",
		listCase(tool("bitrix_company_list",
			"List companies with optional filter, field selection and sorting.",
			listParams("ASSIGNED_BY_ID, COMPANY_TYPE")...,
		), "crm.company.list"),
		getCase(tool("bitrix_company_get", "Get a company by ID.", idParam("Company")), "crm.company.get"),
		titledAddCase(tool("bitrix_company_add",
			"Create a company. A title is required, either as \"title\" or fields.TITLE.",
			registry.OptionalParam("title", registry.String, "Company name; overrides fields.TITLE"),
			registry.OptionalParam("fields", registry.Object, "Company fields (COMPANY_TYPE, INDUSTRY, PHONE, ...)"),
		), "crm.company.add"),
		updateCase(tool("bitrix_company_update", "Update a company by ID.",
			idParam("Company"),
			fieldsParam("Company fields to update"),
		), "crm.company.update"),
		getCase(tool("bitrix_company_delete", "Delete a company by ID.", idParam("Company")), "crm.company.delete"),
		static(tool("bitrix_company_fields", "Describe company fields."), "crm.company.fields"),
		toolCase{
			def: tool("bitrix_company_search", "Search companies by partial name.",
				registry.Param("query", registry.String, "Part of the company name"),
				limitParam(50),
			),
			build: buildCompanySearch,
		},
		latestCase(tool("bitrix_company_latest", "List the newest companies.", limitParam(10)), "crm.company.list"),
	)
}

func buildCompanySearch(args map[string]any) (engine.Request, error) {
	query, err := engine.RequireString(args["query"], msgString("query"))
	if err != nil {
		return engine.Request{}, err
	}
	a := searchArgs{
		Filter: map[string]any{"%TITLE": query},
		Limit:  engine.OptionalPositiveNumber(args["limit"], 50),
	}
	return request("crm.company.list", a.payload()), nil
}
