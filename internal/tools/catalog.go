package tools

import (
	"context"
	"fmt"

	"affinityops/internal/affinity"
	"affinityops/internal/resolve"
)

// Deps holds the clients the catalog's tools operate on. Either client
// may be nil; tools needing an unconfigured surface report a capability
// gap instead of failing mid-request.
type Deps struct {
	V1       *affinity.V1Client
	V2       *affinity.V2Client
	Resolver *resolve.Resolver
}

// Catalog is the full set of CRM tools advertised to the model.
type Catalog struct {
	registry *Registry
	deps     Deps
}

// NewCatalog builds the catalog. Registration panics only on programmer
// error (duplicate or malformed tool definitions).
func NewCatalog(deps Deps) *Catalog {
	c := &Catalog{registry: NewRegistry(), deps: deps}
	for _, tool := range c.buildTools() {
		c.registry.MustRegister(tool)
	}
	return c
}

// Registry exposes the underlying registry.
func (c *Catalog) Registry() *Registry { return c.registry }

func (c *Catalog) needV1() error {
	if !c.deps.V1.Configured() {
		return ErrV1NotConfigured
	}
	return nil
}

func (c *Catalog) needV2() error {
	if !c.deps.V2.Configured() {
		return ErrV2NotConfigured
	}
	return nil
}

func (c *Catalog) buildTools() []*Tool {
	return []*Tool{
		{
			Name:        "find_lists",
			Description: "Find Affinity lists by name. Omit the name to see every list. Returns list ids and names.",
			Schema: ToolSchema{
				Properties: map[string]Property{
					"name": {Type: "string", Description: "Case-insensitive substring of the list name."},
				},
			},
			Execute: c.findLists,
		},
		{
			Name:        "find_company",
			Description: "Search the company directory by name or domain substring. Returns matches and, when the search was cut short, a next_url to continue from.",
			Schema: ToolSchema{
				Properties: map[string]Property{
					"name":     {Type: "string", Description: "Case-insensitive substring of the company name."},
					"domain":   {Type: "string", Description: "Case-insensitive substring of any company domain."},
					"next_url": {Type: "string", Description: "Continuation cursor from a previous search."},
				},
			},
			Execute: c.findCompany,
		},
		{
			Name:        "add_company",
			Description: "Create a new company (organization) in the CRM.",
			Schema: ToolSchema{
				Required: []string{"name"},
				Properties: map[string]Property{
					"name":   {Type: "string", Description: "Company name."},
					"domain": {Type: "string", Description: "Primary web domain, e.g. acme.com."},
				},
			},
			Execute: c.addCompany,
		},
		{
			Name:        "add_note_to_company",
			Description: "Attach a plain-text note to a company.",
			Schema: ToolSchema{
				Required: []string{"company_id", "content"},
				Properties: map[string]Property{
					"company_id": {Type: "integer", Description: "Id of the company."},
					"content":    {Type: "string", Description: "Note text."},
				},
			},
			Execute: c.addNoteToCompany,
		},
		{
			Name:        "read_notes_for_company",
			Description: "Read the notes attached to a company.",
			Schema: ToolSchema{
				Required: []string{"company_id"},
				Properties: map[string]Property{
					"company_id": {Type: "integer", Description: "Id of the company."},
					"limit":      {Type: "integer", Description: "Maximum number of notes to return."},
				},
			},
			Execute: c.readNotesForCompany,
		},
		{
			Name:        "add_company_to_list",
			Description: "Add a company to a list. Safe to repeat: if the company is already on the list the existing entry is returned.",
			Schema: ToolSchema{
				Required: []string{"list_id", "company_id"},
				Properties: map[string]Property{
					"list_id":    {Type: "integer", Description: "Id of the list."},
					"company_id": {Type: "integer", Description: "Id of the company."},
				},
			},
			Execute: c.addCompanyToList,
		},
		{
			Name:        "change_field_in_list",
			Description: "Set a field value for a company's row on a list. The field may be given by name or numeric id, and dropdown values by their label; both are resolved before writing. The company must already be on the list.",
			Schema: ToolSchema{
				Required: []string{"list_id", "company_id", "field", "value"},
				Properties: map[string]Property{
					"list_id":    {Type: "integer", Description: "Id of the list."},
					"company_id": {Type: "integer", Description: "Id of the company."},
					"field":      {Type: "string", Description: "Field name or numeric id."},
					"value":      {Description: "New value. Dropdown labels, comma-separated labels for multi-selects, numbers and booleans are coerced to the field's type."},
				},
			},
			Execute: c.changeFieldInList,
		},
		{
			Name:        "update_list_field",
			Description: "Set one field of one list entry directly, when the entry id and field id are already known.",
			Schema: ToolSchema{
				Required: []string{"list_id", "list_entry_id", "field_id", "value"},
				Properties: map[string]Property{
					"list_id":       {Type: "integer", Description: "Id of the list."},
					"list_entry_id": {Type: "integer", Description: "Id of the entry on the list."},
					"field_id":      {Type: "string", Description: "Field id, e.g. field-123 or a saved-view field id."},
					"value":         {Description: "New value, already in the field's native shape."},
				},
			},
			Execute: c.updateListField,
		},
		{
			Name:        "batch_update_list_fields",
			Description: "Apply several field updates to one list entry in a single call.",
			Schema: ToolSchema{
				Required: []string{"list_id", "list_entry_id", "operations"},
				Properties: map[string]Property{
					"list_id":       {Type: "integer", Description: "Id of the list."},
					"list_entry_id": {Type: "integer", Description: "Id of the entry on the list."},
					"operations":    {Type: "array", Description: "Update operations, each an object in the API's batch shape.", Items: &PropertyItems{Type: "object"}},
				},
			},
			Execute: c.batchUpdateListFields,
		},
		{
			Name:        "auth_whoami",
			Description: "Show the authenticated user and workspace for the configured credentials.",
			Schema:      ToolSchema{},
			Execute:     c.authWhoami,
		},
	}
}

func (c *Catalog) findLists(ctx context.Context, args map[string]any) (any, error) {
	if err := c.needV2(); err != nil {
		return nil, err
	}
	name, err := optionalStringArg("find_lists", args, "name")
	if err != nil {
		return nil, err
	}
	lists, err := c.deps.Resolver.FindListsByName(ctx, name)
	if err != nil {
		return nil, err
	}
	return map[string]any{"lists": lists}, nil
}

func (c *Catalog) findCompany(ctx context.Context, args map[string]any) (any, error) {
	if err := c.needV2(); err != nil {
		return nil, err
	}
	name, err := optionalStringArg("find_company", args, "name")
	if err != nil {
		return nil, err
	}
	domain, err := optionalStringArg("find_company", args, "domain")
	if err != nil {
		return nil, err
	}
	nextURL, err := optionalStringArg("find_company", args, "next_url")
	if err != nil {
		return nil, err
	}
	companies, cursor, err := c.deps.Resolver.FindCompanies(ctx, name, domain, nextURL)
	if err != nil {
		return nil, err
	}
	result := map[string]any{"companies": companies}
	if cursor != "" {
		result["next_url"] = cursor
	}
	return result, nil
}

func (c *Catalog) addCompany(ctx context.Context, args map[string]any) (any, error) {
	if err := c.needV1(); err != nil {
		return nil, err
	}
	name, err := stringArg("add_company", args, "name")
	if err != nil {
		return nil, err
	}
	domain, err := optionalStringArg("add_company", args, "domain")
	if err != nil {
		return nil, err
	}
	org, err := c.deps.V1.CreateOrganization(ctx, name, domain, nil)
	if err != nil {
		return nil, err
	}
	return org, nil
}

func (c *Catalog) addNoteToCompany(ctx context.Context, args map[string]any) (any, error) {
	if err := c.needV1(); err != nil {
		return nil, err
	}
	companyID, err := int64Arg("add_note_to_company", args, "company_id")
	if err != nil {
		return nil, err
	}
	content, err := stringArg("add_note_to_company", args, "content")
	if err != nil {
		return nil, err
	}
	note, err := c.deps.V1.CreateNote(ctx, affinity.NoteRequest{
		Content:         content,
		OrganizationIDs: []int64{companyID},
	})
	if err != nil {
		return nil, err
	}
	return note, nil
}

func (c *Catalog) readNotesForCompany(ctx context.Context, args map[string]any) (any, error) {
	if err := c.needV2(); err != nil {
		return nil, err
	}
	companyID, err := int64Arg("read_notes_for_company", args, "company_id")
	if err != nil {
		return nil, err
	}
	limit := int64(0)
	if _, ok := args["limit"]; ok {
		if limit, err = int64Arg("read_notes_for_company", args, "limit"); err != nil {
			return nil, err
		}
	}
	return c.deps.V2.CompanyNotes(ctx, companyID, int(limit))
}

func (c *Catalog) addCompanyToList(ctx context.Context, args map[string]any) (any, error) {
	if err := c.needV1(); err != nil {
		return nil, err
	}
	listID, err := int64Arg("add_company_to_list", args, "list_id")
	if err != nil {
		return nil, err
	}
	companyID, err := int64Arg("add_company_to_list", args, "company_id")
	if err != nil {
		return nil, err
	}
	entry, created, err := c.deps.Resolver.AddCompanyToList(ctx, listID, companyID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"entry": entry, "created": created}, nil
}

func (c *Catalog) changeFieldInList(ctx context.Context, args map[string]any) (any, error) {
	if err := c.needV1(); err != nil {
		return nil, err
	}
	listID, err := int64Arg("change_field_in_list", args, "list_id")
	if err != nil {
		return nil, err
	}
	companyID, err := int64Arg("change_field_in_list", args, "company_id")
	if err != nil {
		return nil, err
	}
	field, err := stringArg("change_field_in_list", args, "field")
	if err != nil {
		return nil, err
	}
	value, ok := args["value"]
	if !ok {
		return nil, fmt.Errorf("%w: value", ErrMissingRequiredArg)
	}
	fv, updated, err := c.deps.Resolver.ChangeFieldValue(ctx, listID, companyID, field, value)
	if err != nil {
		return nil, err
	}
	return map[string]any{"field_value": fv, "updated": updated}, nil
}

func (c *Catalog) updateListField(ctx context.Context, args map[string]any) (any, error) {
	if err := c.needV2(); err != nil {
		return nil, err
	}
	listID, err := int64Arg("update_list_field", args, "list_id")
	if err != nil {
		return nil, err
	}
	entryID, err := int64Arg("update_list_field", args, "list_entry_id")
	if err != nil {
		return nil, err
	}
	fieldID, err := stringArg("update_list_field", args, "field_id")
	if err != nil {
		return nil, err
	}
	value, ok := args["value"]
	if !ok {
		return nil, fmt.Errorf("%w: value", ErrMissingRequiredArg)
	}
	return c.deps.V2.UpdateListField(ctx, listID, entryID, fieldID, value)
}

func (c *Catalog) batchUpdateListFields(ctx context.Context, args map[string]any) (any, error) {
	if err := c.needV2(); err != nil {
		return nil, err
	}
	listID, err := int64Arg("batch_update_list_fields", args, "list_id")
	if err != nil {
		return nil, err
	}
	entryID, err := int64Arg("batch_update_list_fields", args, "list_entry_id")
	if err != nil {
		return nil, err
	}
	raw, ok := args["operations"].([]any)
	if !ok {
		return nil, fmt.Errorf("%w: batch_update_list_fields.operations must be an array of objects", ErrInvalidArgType)
	}
	operations := make([]affinity.FieldOperation, 0, len(raw))
	for _, item := range raw {
		op, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: batch_update_list_fields.operations must be an array of objects", ErrInvalidArgType)
		}
		operations = append(operations, affinity.FieldOperation(op))
	}
	return c.deps.V2.BatchUpdateListFields(ctx, listID, entryID, operations)
}

func (c *Catalog) authWhoami(ctx context.Context, args map[string]any) (any, error) {
	if err := c.needV2(); err != nil {
		return nil, err
	}
	return c.deps.V2.WhoAmI(ctx)
}
