package builders

import (
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/engine"
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/errmodel"
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/registry"
)

// Items translates the universal crm.item.* tools used by smart processes.
func Items() engine.Builder {
	entityType := registry.Param("entityTypeId", registry.Number, "Smart process entity type ID")
	return newFamily("items",
		toolCase{
			def: tool("bitrix_item_list", "List items of a smart process.",
				append([]registry.ParameterSpec{entityType}, listParams("stageId, assignedById")...)...,
			),
			build: buildItemList,
		},
		toolCase{
			def:   tool("bitrix_item_get", "Get a smart process item.", entityType, idParam("Item")),
			build: itemByID("crm.item.get"),
		},
		toolCase{
			def: tool("bitrix_item_add", "Create a smart process item.",
				entityType,
				fieldsParam("Item fields"),
			),
			build: buildItemAdd,
		},
		toolCase{
			def: tool("bitrix_item_update", "Update a smart process item.",
				entityType,
				idParam("Item"),
				fieldsParam("Item fields to update"),
			),
			build: buildItemUpdate,
		},
		toolCase{
			def:   tool("bitrix_item_delete", "Delete a smart process item.", entityType, idParam("Item")),
			build: itemByID("crm.item.delete"),
		},
		toolCase{
			def:   tool("bitrix_item_fields", "Describe the fields of a smart process.", entityType),
			build: buildItemFields,
		},
		static(tool("bitrix_item_type_list", "List smart process types."), "crm.type.list"),
		getCase(tool("bitrix_item_type_get", "Get a smart process type by ID.", idParam("Type")), "crm.type.get"),
	)
}

func parseEntityTypeID(args map[string]any) (float64, error) {
	return parseID(args, "entityTypeId")
}

func buildItemList(args map[string]any) (engine.Request, error) {
	entityTypeID, err := parseEntityTypeID(args)
	if err != nil {
		return engine.Request{}, err
	}
	a, err := parseListArgs(args)
	if err != nil {
		return engine.Request{}, err
	}
	payload := a.payload()
	payload["entityTypeId"] = entityTypeID
	return request("crm.item.list", payload), nil
}

func itemByID(method string) func(map[string]any) (engine.Request, error) {
	return func(args map[string]any) (engine.Request, error) {
		entityTypeID, err := parseEntityTypeID(args)
		if err != nil {
			return engine.Request{}, err
		}
		id, err := parseID(args, "id")
		if err != nil {
			return engine.Request{}, err
		}
		return request(method, map[string]any{"entityTypeId": entityTypeID, "id": id}), nil
	}
}

func buildItemAdd(args map[string]any) (engine.Request, error) {
	entityTypeID, err := parseEntityTypeID(args)
	if err != nil {
		return engine.Request{}, err
	}
	fields, ok, err := engine.EnsureObject(args["fields"], msgObject("fields"))
	if err != nil {
		return engine.Request{}, err
	}
	if !ok {
		return engine.Request{}, errmodel.Validation(`Parameter "fields" is required`)
	}
	return request("crm.item.add", map[string]any{"entityTypeId": entityTypeID, "fields": fields}), nil
}

func buildItemUpdate(args map[string]any) (engine.Request, error) {
	entityTypeID, err := parseEntityTypeID(args)
	if err != nil {
		return engine.Request{}, err
	}
	a, err := parseUpdateArgs(args, "id")
	if err != nil {
		return engine.Request{}, err
	}
	return request("crm.item.update", map[string]any{
		"entityTypeId": entityTypeID,
		"id":           a.ID,
		"fields":       a.Fields,
	}), nil
}

func buildItemFields(args map[string]any) (engine.Request, error) {
	entityTypeID, err := parseEntityTypeID(args)
	if err != nil {
		return engine.Request{}, err
	}
	return request("crm.item.fields", map[string]any{"entityTypeId": entityTypeID}), nil
}
