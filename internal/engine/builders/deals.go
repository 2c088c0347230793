package builders

import (
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/engine"
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/errmodel"
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/registry"
)

// Deals translates the crm.deal.* tools.
func Deals() engine.Builder {
	return newFamily("deals",
		listCase(tool("bitrix_deal_list",
			"List deals with optional filter, field selection and sorting.",
			listParams("STAGE_ID, ASSIGNED_BY_ID, >=OPPORTUNITY")...,
		), "crm.deal.list"),
		getCase(tool("bitrix_deal_get", "Get a deal by ID.", idParam("Deal")), "crm.deal.get"),
		titledAddCase(tool("bitrix_deal_add",
			"Create a deal. A title is required, either as \"title\" or fields.TITLE.",
			registry.OptionalParam("title", registry.String, "Deal title; overrides fields.TITLE"),
			registry.OptionalParam("fields", registry.Object, "Deal fields (OPPORTUNITY, STAGE_ID, CONTACT_ID, ...)"),
		), "crm.deal.add"),
		updateCase(tool("bitrix_deal_update", "Update a deal by ID.",
			idParam("Deal"),
			fieldsParam("Deal fields to update"),
		), "crm.deal.update"),
		getCase(tool("bitrix_deal_delete", "Delete a deal by ID.", idParam("Deal")), "crm.deal.delete"),
		static(tool("bitrix_deal_fields", "Describe deal fields."), "crm.deal.fields"),
		static(tool("bitrix_deal_category_list", "List deal pipelines (categories)."), "crm.dealcategory.list"),
		toolCase{
			def: tool("bitrix_deal_stage_list", "List the stages of a deal pipeline.",
				registry.OptionalParam("categoryId", registry.Number, "Pipeline ID (0 is the default pipeline)"),
			),
			build: buildDealStageList,
		},
		static(tool("bitrix_deal_userfield_list", "List deal user fields."), "crm.deal.userfield.list"),
		toolCase{
			def: tool("bitrix_deal_userfield_add", "Create a deal user field.",
				fieldsParam("User field definition (FIELD_NAME and USER_TYPE_ID are required)"),
			),
			build: buildDealUserfieldAdd,
		},
		searchCase(tool("bitrix_deal_search", "Search deals by filter.",
			registry.OptionalParam("filter", registry.Object, "Filter"),
			limitParam(50),
		), "crm.deal.list"),
		toolCase{
			def: tool("bitrix_deal_filter_by_pipeline", "List deals of one pipeline.",
				registry.Param("categoryId", registry.Number, "Pipeline ID"),
				limitParam(50),
			),
			build: buildDealFilterByPipeline,
		},
		toolCase{
			def: tool("bitrix_deal_filter_by_budget", "List deals whose amount is within a range.",
				registry.OptionalParam("minBudget", registry.Number, "Minimum OPPORTUNITY"),
				registry.OptionalParam("maxBudget", registry.Number, "Maximum OPPORTUNITY"),
				limitParam(50),
			),
			build: buildDealFilterByBudget,
		},
		toolCase{
			def: tool("bitrix_deal_filter_by_stage", "List deals in one stage.",
				registry.Param("stageId", registry.String, "Stage ID, e.g. NEW or C1:WON"),
				limitParam(50),
			),
			build: buildDealFilterByStage,
		},
		latestCase(tool("bitrix_deal_latest", "List the newest deals.", limitParam(10)), "crm.deal.list"),
	)
}

func buildDealStageList(args map[string]any) (engine.Request, error) {
	categoryID, ok, err := optionalNumber(args, "categoryId")
	if err != nil {
		return engine.Request{}, err
	}
	if !ok || categoryID < 0 {
		categoryID = 0
	}
	return request("crm.dealcategory.stage.list", map[string]any{"id": categoryID}), nil
}

func buildDealUserfieldAdd(args map[string]any) (engine.Request, error) {
	fields, err := requireFields(args)
	if err != nil {
		return engine.Request{}, err
	}
	if !present(fields, "FIELD_NAME") || !present(fields, "USER_TYPE_ID") {
		return engine.Request{}, errmodel.Validation("fields.FIELD_NAME and fields.USER_TYPE_ID are required")
	}
	return request("crm.deal.userfield.add", map[string]any{"fields": fields}), nil
}

func buildDealFilterByPipeline(args map[string]any) (engine.Request, error) {
	categoryID, err := parseID(args, "categoryId")
	if err != nil {
		return engine.Request{}, err
	}
	a := searchArgs{
		Filter: map[string]any{"CATEGORY_ID": categoryID},
		Limit:  engine.OptionalPositiveNumber(args["limit"], 50),
	}
	return request("crm.deal.list", a.payload()), nil
}

type budgetArgs struct {
	Min, Max       float64
	HasMin, HasMax bool
}

func parseBudgetArgs(args map[string]any) (budgetArgs, error) {
	var a budgetArgs
	var err error
	if a.Min, a.HasMin, err = optionalNumber(args, "minBudget"); err != nil {
		return a, err
	}
	if a.Max, a.HasMax, err = optionalNumber(args, "maxBudget"); err != nil {
		return a, err
	}
	if !a.HasMin && !a.HasMax {
		return a, errmodel.Validation(`At least one of "minBudget" or "maxBudget" must be provided`)
	}
	return a, nil
}

func buildDealFilterByBudget(args map[string]any) (engine.Request, error) {
	b, err := parseBudgetArgs(args)
	if err != nil {
		return engine.Request{}, err
	}
	filter := map[string]any{}
	if b.HasMin {
		filter[">=OPPORTUNITY"] = b.Min
	}
	if b.HasMax {
		filter["<=OPPORTUNITY"] = b.Max
	}
	a := searchArgs{Filter: filter, Limit: engine.OptionalPositiveNumber(args["limit"], 50)}
	return request("crm.deal.list", a.payload()), nil
}

func buildDealFilterByStage(args map[string]any) (engine.Request, error) {
	stageID, err := engine.RequireString(args["stageId"], msgString("stageId"))
	if err != nil {
		return engine.Request{}, err
	}
	a := searchArgs{
		Filter: map[string]any{"STAGE_ID": stageID},
		Limit:  engine.OptionalPositiveNumber(args["limit"], 50),
	}
	return request("crm.deal.list", a.payload()), nil
}
