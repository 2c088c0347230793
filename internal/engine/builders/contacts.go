package builders

import (
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/engine"
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/errmodel"
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/registry"
)

// Contacts translates the crm.contact.* tools.
func Contacts() engine.Builder {
	return newFamily("contacts",
		listCase(tool("bitrix_contact_list",
			"List contacts with optional filter, field selection and sorting.",
			listParams("ASSIGNED_BY_ID, COMPANY_ID")...,
		), "crm.contact.list"),
		getCase(tool("bitrix_contact_get", "Get a contact by ID.", idParam("Contact")), "crm.contact.get"),
		toolCase{
			def: tool("bitrix_contact_add",
				"Create a contact. A first name is required, either as \"firstName\" or fields.NAME.",
				registry.OptionalParam("firstName", registry.String, "First name; overrides fields.NAME"),
				registry.OptionalParam("lastName", registry.String, "Last name"),
				registry.OptionalParam("phone", registry.String, "Work phone"),
				registry.OptionalParam("email", registry.String, "Work email"),
				registry.OptionalParam("fields", registry.Object, "Additional contact fields"),
			),
			build: buildContactAdd,
		},
		updateCase(tool("bitrix_contact_update", "Update a contact by ID.",
			idParam("Contact"),
			fieldsParam("Contact fields to update"),
		), "crm.contact.update"),
		getCase(tool("bitrix_contact_delete", "Delete a contact by ID.", idParam("Contact")), "crm.contact.delete"),
		static(tool("bitrix_contact_fields", "Describe contact fields."), "crm.contact.fields"),
		toolCase{
			def: tool("bitrix_contact_find", "Find contacts by exact phone and/or email. At least one is required.",
				registry.OptionalParam("phone", registry.String, "Phone number"),
				registry.OptionalParam("email", registry.String, "Email address"),
			),
			build: buildContactFind,
		},
		toolCase{
			def: tool("bitrix_contact_search", "Search contacts by name, phone or email. At least one criterion is required.",
				registry.OptionalParam("query", registry.String, "Partial name match"),
				registry.OptionalParam("name", registry.String, "Partial name match; overrides query"),
				registry.OptionalParam("phone", registry.String, "Phone number"),
				registry.OptionalParam("email", registry.String, "Email address"),
				limitParam(50),
			),
			build: buildContactSearch,
		},
		toolCase{
			def: tool("bitrix_contact_search_by_phone", "Find contacts by phone through duplicate search.",
				registry.Param("phone", registry.String, "Phone number"),
			),
			build: buildContactSearchByPhone,
		},
	)
}

type contactAddArgs struct {
	FirstName, LastName, Phone, Email string
	Fields                            map[string]any
}

func parseContactAdd(args map[string]any) (contactAddArgs, error) {
	var a contactAddArgs
	var err error
	if a.FirstName, _, err = engine.EnsureString(args["firstName"], msgString("firstName")); err != nil {
		return a, err
	}
	if a.LastName, _, err = optionalString(args, "lastName"); err != nil {
		return a, err
	}
	if a.Phone, _, err = optionalString(args, "phone"); err != nil {
		return a, err
	}
	if a.Email, _, err = optionalString(args, "email"); err != nil {
		return a, err
	}
	if a.Fields, err = optionalObject(args, "fields"); err != nil {
		return a, err
	}
	if a.FirstName == "" && !present(a.Fields, "NAME") {
		return a, errmodel.Validation(`Parameter "firstName" or fields.NAME is required`)
	}
	return a, nil
}

func workContact(value string) []any {
	return []any{map[string]any{"VALUE": value, "VALUE_TYPE": "WORK"}}
}

func buildContactAdd(args map[string]any) (engine.Request, error) {
	a, err := parseContactAdd(args)
	if err != nil {
		return engine.Request{}, err
	}
	explicit := map[string]any{}
	if a.FirstName != "" {
		explicit["NAME"] = a.FirstName
	}
	if a.LastName != "" {
		explicit["LAST_NAME"] = a.LastName
	}
	if a.Phone != "" {
		explicit["PHONE"] = workContact(a.Phone)
	}
	if a.Email != "" {
		explicit["EMAIL"] = workContact(a.Email)
	}
	return request("crm.contact.add", map[string]any{"fields": mergeFields(a.Fields, explicit)}), nil
}

type contactFindArgs struct {
	Phone, Email string
}

func parseContactFind(args map[string]any) (contactFindArgs, error) {
	var a contactFindArgs
	var err error
	if a.Phone, _, err = optionalString(args, "phone"); err != nil {
		return a, err
	}
	if a.Email, _, err = optionalString(args, "email"); err != nil {
		return a, err
	}
	if a.Phone == "" && a.Email == "" {
		return a, errmodel.Validation(`Either "phone" or "email" must be provided`)
	}
	return a, nil
}

func buildContactFind(args map[string]any) (engine.Request, error) {
	a, err := parseContactFind(args)
	if err != nil {
		return engine.Request{}, err
	}
	filter := map[string]any{}
	if a.Phone != "" {
		filter["PHONE"] = a.Phone
	}
	if a.Email != "" {
		filter["EMAIL"] = a.Email
	}
	return request("crm.contact.list", map[string]any{
		"filter": filter,
		"select": []any{"ID", "NAME", "LAST_NAME", "PHONE", "EMAIL"},
	}), nil
}

type contactSearchArgs struct {
	Name, Phone, Email string
	Limit              float64
}

func parseContactSearch(args map[string]any) (contactSearchArgs, error) {
	var a contactSearchArgs
	query, _, err := optionalString(args, "query")
	if err != nil {
		return a, err
	}
	name, _, err := optionalString(args, "name")
	if err != nil {
		return a, err
	}
	if a.Phone, _, err = optionalString(args, "phone"); err != nil {
		return a, err
	}
	if a.Email, _, err = optionalString(args, "email"); err != nil {
		return a, err
	}
	a.Name = query
	if name != "" {
		a.Name = name
	}
	if a.Name == "" && a.Phone == "" && a.Email == "" {
		return a, errmodel.Validation("At least one search parameter (query, name, phone, or email) must be provided")
	}
	a.Limit = engine.OptionalPositiveNumber(args["limit"], 50)
	return a, nil
}

func buildContactSearch(args map[string]any) (engine.Request, error) {
	a, err := parseContactSearch(args)
	if err != nil {
		return engine.Request{}, err
	}
	filter := map[string]any{}
	if a.Name != "" {
		filter["%NAME"] = a.Name
	}
	if a.Phone != "" {
		filter["PHONE"] = a.Phone
	}
	if a.Email != "" {
		filter["EMAIL"] = a.Email
	}
	return request("crm.contact.list", searchArgs{Filter: filter, Limit: a.Limit}.payload()), nil
}

func buildContactSearchByPhone(args map[string]any) (engine.Request, error) {
	phone, err := engine.RequireString(args["phone"], msgString("phone"))
	if err != nil {
		return engine.Request{}, err
	}
	return request("crm.duplicate.findbycomm", map[string]any{
		"type":        "PHONE",
		"values":      []any{phone},
		"entity_type": "CONTACT",
	}), nil
}
