package builders

import (
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/engine"
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/registry"
)

// Users translates the user.* tools and the per-user activity feed.
func Users() engine.Builder {
	return newFamily("users",
		toolCase{
			def: tool("bitrix_user_list", "List portal users.",
				registry.OptionalParam("filter", registry.Object, "Filter, e.g. ACTIVE, UF_DEPARTMENT"),
				registry.OptionalParam("start", registry.Number, "Pagination offset (default 0)"),
			),
			build: buildUserList,
		},
		toolCase{
			def:   tool("bitrix_user_get", "Get a user by ID.", idParam("User")),
			build: buildUserGet,
		},
		toolCase{
			def: tool("bitrix_user_search", "Search users by free text.",
				registry.OptionalParam("searchString", registry.String, "Text matched against name, email and position"),
				registry.OptionalParam("filter", registry.Object, "Filter"),
				registry.OptionalParam("start", registry.Number, "Pagination offset (default 0)"),
			),
			build: buildUserSearch,
		},
		static(tool("bitrix_user_current", "Get the user that owns the webhook."), "user.current"),
		toolCase{
			def: tool("bitrix_user_activity", "List CRM activities a user is responsible for.",
				registry.Param("userId", registry.Number, "User ID"),
				registry.OptionalParam("dateFrom", registry.String, "Start date, ISO 8601"),
				registry.OptionalParam("dateTo", registry.String, "End date, ISO 8601"),
				limitParam(50),
			),
			build: buildUserActivity,
		},
	)
}

type userListArgs struct {
	Filter map[string]any
	Start  float64
}

func parseUserList(args map[string]any) (userListArgs, error) {
	filter, err := optionalObject(args, "filter")
	if err != nil {
		return userListArgs{}, err
	}
	if filter == nil {
		filter = map[string]any{}
	}
	start, _, err := parseStart(args)
	if err != nil {
		return userListArgs{}, err
	}
	return userListArgs{Filter: filter, Start: start}, nil
}

func (a userListArgs) payload() map[string]any {
	return map[string]any{"filter": a.Filter, "start": a.Start}
}

func buildUserList(args map[string]any) (engine.Request, error) {
	a, err := parseUserList(args)
	if err != nil {
		return engine.Request{}, err
	}
	return request("user.get", a.payload()), nil
}

func buildUserGet(args map[string]any) (engine.Request, error) {
	id, err := parseID(args, "id")
	if err != nil {
		return engine.Request{}, err
	}
	return request("user.get", map[string]any{"ID": id}), nil
}

func buildUserSearch(args map[string]any) (engine.Request, error) {
	find, ok, err := optionalString(args, "searchString")
	if err != nil {
		return engine.Request{}, err
	}
	a, err := parseUserList(args)
	if err != nil {
		return engine.Request{}, err
	}
	payload := a.payload()
	if ok {
		payload["FIND"] = find
	}
	return request("user.search", payload), nil
}

func buildUserActivity(args map[string]any) (engine.Request, error) {
	userID, err := parseID(args, "userId")
	if err != nil {
		return engine.Request{}, err
	}
	from, hasFrom, err := optionalISODate(args, "dateFrom")
	if err != nil {
		return engine.Request{}, err
	}
	to, hasTo, err := optionalISODate(args, "dateTo")
	if err != nil {
		return engine.Request{}, err
	}
	filter := map[string]any{"RESPONSIBLE_ID": userID}
	if hasFrom {
		filter[">=START_TIME"] = from
	}
	if hasTo {
		filter["<=START_TIME"] = to
	}
	a := searchArgs{Filter: filter, Limit: engine.OptionalPositiveNumber(args["limit"], 50)}
	return request("crm.activity.list", a.payload()), nil
}
