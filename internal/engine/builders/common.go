// Package builders holds one request builder per Bitrix24 entity family.
//
// Every tool case narrows the untyped argument bag into a small typed struct
// first (parse*), then renders the REST payload from that struct. Parsing is
// fail-fast: the first invalid argument is reported.
package builders

import (
	"fmt"

	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/engine"
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/errmodel"
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/registry"
)

// toolCase pairs one catalogue entry with its translation.
type toolCase struct {
	def   registry.ToolDefinition
	build func(args map[string]any) (engine.Request, error)
}

// family is a Builder backed by a fixed table of tool cases.
type family struct {
	name  string
	cases []toolCase
	index map[string]int
}

func newFamily(name string, cases ...toolCase) *family {
	f := &family{name: name, cases: cases, index: make(map[string]int, len(cases))}
	for i, c := range cases {
		f.index[c.def.Name] = i
	}
	return f
}

func (f *family) Name() string { return f.name }

func (f *family) Tools() []registry.ToolDefinition {
	defs := make([]registry.ToolDefinition, len(f.cases))
	for i, c := range f.cases {
		defs[i] = c.def
	}
	return defs
}

func (f *family) TryBuild(tool string, args map[string]any) (engine.Request, bool, error) {
	i, ok := f.index[tool]
	if !ok {
		return engine.Request{}, false, nil
	}
	req, err := f.cases[i].build(args)
	if err != nil {
		return engine.Request{}, true, err
	}
	return req, true, nil
}

func tool(name, description string, params ...registry.ParameterSpec) registry.ToolDefinition {
	return registry.ToolDefinition{Name: name, Description: description, Parameters: params}
}

func request(method string, payload map[string]any) engine.Request {
	if payload == nil {
		payload = map[string]any{}
	}
	return engine.Request{Method: method, Payload: payload}
}

// static returns a case for a tool that takes no arguments.
func static(def registry.ToolDefinition, method string) toolCase {
	return toolCase{def: def, build: func(map[string]any) (engine.Request, error) {
		return request(method, map[string]any{}), nil
	}}
}

// --- messages ---

func msgPositive(name string) string {
	return fmt.Sprintf("Parameter %q must be a positive number", name)
}

func msgString(name string) string {
	return fmt.Sprintf("Parameter %q must be a non-empty string", name)
}

func msgOptionalString(name string) string {
	return fmt.Sprintf("Parameter %q must be a non-empty string when provided", name)
}

func msgObject(name string) string {
	return fmt.Sprintf("Parameter %q must be an object", name)
}

func msgOptionalObject(name string) string {
	return fmt.Sprintf("Parameter %q must be an object when provided", name)
}

const msgFieldsNonEmpty = `Parameter "fields" must include at least one field`

// --- shared argument shapes ---

func parseID(args map[string]any, key string) (float64, error) {
	return engine.EnsurePositiveNumber(args[key], msgPositive(key))
}

func optionalString(args map[string]any, key string) (string, bool, error) {
	return engine.EnsureString(args[key], msgOptionalString(key))
}

func optionalObject(args map[string]any, key string) (map[string]any, error) {
	m, _, err := engine.EnsureObject(args[key], msgOptionalObject(key))
	return m, err
}

func optionalNumber(args map[string]any, key string) (float64, bool, error) {
	return engine.EnsureNumber(args[key], fmt.Sprintf("Parameter %q must be a number when provided", key))
}

func optionalISODate(args map[string]any, key string) (string, bool, error) {
	return engine.EnsureISODate(args[key], fmt.Sprintf("Parameter %q must be a valid ISO date string", key))
}

// listArgs is the shape of the generic *.list tools.
type listArgs struct {
	Filter map[string]any
	Select []any
	Order  map[string]any
	Start  float64
}

func parseListArgs(args map[string]any) (listArgs, error) {
	var a listArgs
	var err error
	if a.Filter, err = optionalObject(args, "filter"); err != nil {
		return a, err
	}
	sel, ok, err := engine.EnsureArray(args["select"], `Parameter "select" must be an array when provided`)
	if err != nil {
		return a, err
	}
	if ok {
		a.Select = sel
	}
	if a.Order, err = optionalObject(args, "order"); err != nil {
		return a, err
	}
	start, ok, err := parseStart(args)
	if err != nil {
		return a, err
	}
	if ok {
		a.Start = start
	}
	return a, nil
}

func parseStart(args map[string]any) (float64, bool, error) {
	const msg = `Parameter "start" must be a non-negative number`
	start, ok, err := engine.EnsureNumber(args["start"], msg)
	if err != nil {
		return 0, false, err
	}
	if ok && start < 0 {
		return 0, false, errmodel.Validation(msg)
	}
	return start, ok, nil
}

// payload renders {filter, select, order, start} with defaults
// {}, ["*"], {}, 0.
func (a listArgs) payload() map[string]any {
	filter := a.Filter
	if filter == nil {
		filter = map[string]any{}
	}
	sel := a.Select
	if sel == nil {
		sel = []any{"*"}
	}
	order := a.Order
	if order == nil {
		order = map[string]any{}
	}
	return map[string]any{"filter": filter, "select": sel, "order": order, "start": a.Start}
}

// updateArgs is {id, fields} with a non-empty fields object.
type updateArgs struct {
	ID     float64
	Fields map[string]any
}

func parseUpdateArgs(args map[string]any, idKey string) (updateArgs, error) {
	id, err := parseID(args, idKey)
	if err != nil {
		return updateArgs{}, err
	}
	fields, err := requireFields(args)
	if err != nil {
		return updateArgs{}, err
	}
	return updateArgs{ID: id, Fields: fields}, nil
}

// requireFields requires a non-empty "fields" object.
func requireFields(args map[string]any) (map[string]any, error) {
	fields, ok, err := engine.EnsureObject(args["fields"], msgObject("fields"))
	if err != nil {
		return nil, err
	}
	if !ok || len(fields) == 0 {
		return nil, errmodel.Validation(msgFieldsNonEmpty)
	}
	return fields, nil
}

// searchArgs is the {filter, limit} shape of the search and filter tools.
type searchArgs struct {
	Filter map[string]any
	Limit  float64
}

func (a searchArgs) payload() map[string]any {
	filter := a.Filter
	if filter == nil {
		filter = map[string]any{}
	}
	return map[string]any{"filter": filter, "start": 0, "limit": a.Limit}
}

func parseSearchArgs(args map[string]any) (searchArgs, error) {
	filter, err := optionalObject(args, "filter")
	if err != nil {
		return searchArgs{}, err
	}
	return searchArgs{Filter: filter, Limit: engine.OptionalPositiveNumber(args["limit"], 50)}, nil
}

// latestPayload lists the newest records first.
func latestPayload(args map[string]any) map[string]any {
	return map[string]any{
		"filter": map[string]any{},
		"order":  map[string]any{"DATE_CREATE": "DESC"},
		"start":  0,
		"limit":  engine.OptionalPositiveNumber(args["limit"], 10),
	}
}

// mergeFields copies base and then overlays the explicit values, so
// tool-specific arguments win over same-named keys in a generic bag.
func mergeFields(base map[string]any, explicit map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(explicit))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range explicit {
		out[k] = v
	}
	return out
}

// present reports whether a merged fields map carries a usable value for key.
func present(fields map[string]any, key string) bool {
	v, ok := fields[key]
	if !ok || v == nil {
		return false
	}
	switch x := v.(type) {
	case string:
		return x != ""
	case bool:
		return x
	case float64:
		return x != 0
	case int:
		return x != 0
	}
	return true
}

// --- standard CRUD cases shared by crm.<entity>.* families ---

func listCase(def registry.ToolDefinition, method string) toolCase {
	return toolCase{def: def, build: func(args map[string]any) (engine.Request, error) {
		a, err := parseListArgs(args)
		if err != nil {
			return engine.Request{}, err
		}
		return request(method, a.payload()), nil
	}}
}

func getCase(def registry.ToolDefinition, method string) toolCase {
	return toolCase{def: def, build: func(args map[string]any) (engine.Request, error) {
		id, err := parseID(args, "id")
		if err != nil {
			return engine.Request{}, err
		}
		return request(method, map[string]any{"id": id}), nil
	}}
}

func updateCase(def registry.ToolDefinition, method string) toolCase {
	return toolCase{def: def, build: func(args map[string]any) (engine.Request, error) {
		a, err := parseUpdateArgs(args, "id")
		if err != nil {
			return engine.Request{}, err
		}
		return request(method, map[string]any{"id": a.ID, "fields": a.Fields}), nil
	}}
}

func searchCase(def registry.ToolDefinition, method string) toolCase {
	return toolCase{def: def, build: func(args map[string]any) (engine.Request, error) {
		a, err := parseSearchArgs(args)
		if err != nil {
			return engine.Request{}, err
		}
		return request(method, a.payload()), nil
	}}
}

func latestCase(def registry.ToolDefinition, method string) toolCase {
	return toolCase{def: def, build: func(args map[string]any) (engine.Request, error) {
		return request(method, latestPayload(args)), nil
	}}
}

// titledAddCase handles {title?, fields?} → {fields: {...fields, TITLE}}.
func titledAddCase(def registry.ToolDefinition, method string) toolCase {
	return toolCase{def: def, build: func(args map[string]any) (engine.Request, error) {
		a, err := parseTitledAdd(args)
		if err != nil {
			return engine.Request{}, err
		}
		return request(method, map[string]any{"fields": a.fields()}), nil
	}}
}

type titledAddArgs struct {
	Title  string
	Fields map[string]any
}

func parseTitledAdd(args map[string]any) (titledAddArgs, error) {
	title, hasTitle, err := engine.EnsureString(args["title"], msgString("title"))
	if err != nil {
		return titledAddArgs{}, err
	}
	fields, err := optionalObject(args, "fields")
	if err != nil {
		return titledAddArgs{}, err
	}
	if !hasTitle {
		t, ok, err := engine.EnsureString(fields["TITLE"], `Field "TITLE" must be a non-empty string`)
		if err != nil {
			return titledAddArgs{}, err
		}
		if !ok {
			return titledAddArgs{}, errmodel.Validation(`Parameter "title" or fields.TITLE is required`)
		}
		title = t
	}
	return titledAddArgs{Title: title, Fields: fields}, nil
}

func (a titledAddArgs) fields() map[string]any {
	return mergeFields(a.Fields, map[string]any{"TITLE": a.Title})
}

func listParams(filterHint string) []registry.ParameterSpec {
	return []registry.ParameterSpec{
		registry.OptionalParam("filter", registry.Object, "Filter, e.g. "+filterHint),
		registry.OptionalParam("select", registry.Array, "Fields to select (default [\"*\"])"),
		registry.OptionalParam("order", registry.Object, `Sort order, e.g. {"DATE_CREATE": "DESC"}`),
		registry.OptionalParam("start", registry.Number, "Pagination offset (default 0)"),
	}
}

func idParam(entity string) registry.ParameterSpec {
	return registry.Param("id", registry.Number, entity+" ID")
}

func fieldsParam(description string) registry.ParameterSpec {
	return registry.Param("fields", registry.Object, description)
}

func limitParam(def int) registry.ParameterSpec {
	return registry.OptionalParam("limit", registry.Number, fmt.Sprintf("Result limit (default %d)", def))
}
