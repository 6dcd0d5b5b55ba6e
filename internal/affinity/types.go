// Package affinity implements clients for the two Affinity API surfaces:
// the legacy v1 surface (basic auth, create operations, field values) and
// the current v2 surface (bearer auth, reads and list-field updates).
//
// Both clients share the same request contract: JSON in, JSON out, with
// exponential-backoff retries. Identifiers are always assigned by the remote
// system; these clients only look them up or pass them through.
package affinity

// FieldType describes the value type of a list field.
type FieldType string

const (
	FieldTypeText          FieldType = "text"
	FieldTypeNumber        FieldType = "number"
	FieldTypeBoolean       FieldType = "boolean"
	FieldTypeDate          FieldType = "datetime"
	FieldTypeDropdown      FieldType = "dropdown"
	FieldTypeMultiDropdown FieldType = "multi-dropdown"
)

// DropdownOption is one selectable value of a dropdown-typed field.
type DropdownOption struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

// Field is the metadata for one column of a list. Field identity is
// list-scoped: the same display name may map to different ids on
// different lists.
type Field struct {
	ID              int64            `json:"id"`
	Name            string           `json:"name"`
	ValueType       FieldType        `json:"value_type"`
	AllowsMultiple  bool             `json:"allows_multiple"`
	DropdownOptions []DropdownOption `json:"dropdown_options,omitempty"`
}

// List is a named, typed collection of entries.
type List struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Type any    `json:"type,omitempty"`
}

// ListEntry binds one entity to one list.
type ListEntry struct {
	ID       int64 `json:"id"`
	ListID   int64 `json:"list_id"`
	EntityID int64 `json:"entity_id"`
}

// FieldValue is the typed value of one field for one list entry or entity.
type FieldValue struct {
	ID          int64 `json:"id"`
	FieldID     int64 `json:"field_id"`
	EntityID    int64 `json:"entity_id,omitempty"`
	ListEntryID int64 `json:"list_entry_id,omitempty"`
	Value       any   `json:"value"`
}

// Organization is a company record on the v1 surface.
type Organization struct {
	ID      int64    `json:"id"`
	Name    string   `json:"name"`
	Domain  string   `json:"domain,omitempty"`
	Domains []string `json:"domains,omitempty"`
}

// Note is free-text or rich-text content attached to one or more entities.
type Note struct {
	ID              int64   `json:"id"`
	Content         string  `json:"content"`
	Type            int     `json:"type,omitempty"`
	OrganizationIDs []int64 `json:"organization_ids,omitempty"`
	PersonIDs       []int64 `json:"person_ids,omitempty"`
	OpportunityIDs  []int64 `json:"opportunity_ids,omitempty"`
	CreatorID       int64   `json:"creator_id,omitempty"`
	CreatedAt       string  `json:"created_at,omitempty"`
}

// Company is a company record on the v2 surface.
type Company struct {
	ID      int64    `json:"id"`
	Name    string   `json:"name"`
	Domain  string   `json:"domain,omitempty"`
	Domains []string `json:"domains,omitempty"`
}

// V2Pagination carries the opaque continuation marker of a v2 page.
type V2Pagination struct {
	NextURL string `json:"nextUrl,omitempty"`
	PrevURL string `json:"prevUrl,omitempty"`
}

// ListPage is one page of v2 lists.
type ListPage struct {
	Data       []List       `json:"data"`
	Pagination V2Pagination `json:"pagination"`
}

// CompanyPage is one page of v2 companies.
type CompanyPage struct {
	Data       []Company    `json:"data"`
	Pagination V2Pagination `json:"pagination"`
}

// FieldOperation is one entry of a v2 batch field update.
type FieldOperation map[string]any
