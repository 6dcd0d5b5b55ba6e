// Package resolve turns the names humans use (list names, company names,
// field labels) into the numeric identifiers the Affinity API requires.
// All lookups are read-then-act: nothing here invents an id, and every
// paginating scan carries a hard page ceiling so a huge workspace cannot
// stall a conversation.
package resolve

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"affinityops/internal/affinity"
	"affinityops/internal/coerce"
	"affinityops/internal/logging"
)

const (
	// DefaultMaxListPages bounds the list-name scan over the v2 lists surface.
	DefaultMaxListPages = 25
	// DefaultMaxCompanyPages bounds one company search pass. Continuation
	// beyond the ceiling is the caller's choice via the returned cursor.
	DefaultMaxCompanyPages = 10

	v2PageLimit = 100
)

// NotFoundError means a name or id did not resolve to any entity. Kind
// names what was being looked up ("list", "company", "field", "list entry").
type NotFoundError struct {
	Kind  string
	Query string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Query)
}

// Config bounds the paginating scans of a Resolver.
type Config struct {
	MaxListPages    int
	MaxCompanyPages int
}

// DefaultConfig returns the standard scan ceilings.
func DefaultConfig() Config {
	return Config{
		MaxListPages:    DefaultMaxListPages,
		MaxCompanyPages: DefaultMaxCompanyPages,
	}
}

// Resolver resolves names to ids against both API surfaces. Reads go to
// v2 where the surface exists; entry and field-value writes go to v1.
type Resolver struct {
	v1  *affinity.V1Client
	v2  *affinity.V2Client
	cfg Config
}

// NewResolver builds a Resolver with the default scan ceilings. Either
// client may be nil when that surface is not configured; methods needing
// it will fail with the surface's missing-credential error.
func NewResolver(v1 *affinity.V1Client, v2 *affinity.V2Client) *Resolver {
	return NewResolverWithConfig(v1, v2, DefaultConfig())
}

// NewResolverWithConfig builds a Resolver with explicit scan ceilings.
func NewResolverWithConfig(v1 *affinity.V1Client, v2 *affinity.V2Client, cfg Config) *Resolver {
	if cfg.MaxListPages <= 0 {
		cfg.MaxListPages = DefaultMaxListPages
	}
	if cfg.MaxCompanyPages <= 0 {
		cfg.MaxCompanyPages = DefaultMaxCompanyPages
	}
	return &Resolver{v1: v1, v2: v2, cfg: cfg}
}

// FindListsByName returns every list whose name contains name,
// case-insensitively. An empty name returns all lists. The scan follows
// v2 pagination up to the page ceiling.
func (r *Resolver) FindListsByName(ctx context.Context, name string) ([]affinity.List, error) {
	needle := strings.ToLower(strings.TrimSpace(name))

	var matches []affinity.List
	nextURL := ""
	for page := 0; page < r.cfg.MaxListPages; page++ {
		resp, err := r.v2.Lists(ctx, v2PageLimit, nextURL)
		if err != nil {
			return nil, err
		}
		for _, list := range resp.Data {
			if needle == "" || strings.Contains(strings.ToLower(list.Name), needle) {
				matches = append(matches, list)
			}
		}
		nextURL = resp.Pagination.NextURL
		if nextURL == "" {
			break
		}
	}

	if len(matches) == 0 {
		return nil, &NotFoundError{Kind: "list", Query: name}
	}
	logging.ResolveDebug("list search %q matched %d lists", name, len(matches))
	return matches, nil
}

// FindCompanies searches the v2 companies directory for companies whose
// name or domain contains the given fragments, case-insensitively. At
// least one of name or domain must be non-empty. The scan starts at
// nextURL (empty for the first page) and stops after the page ceiling,
// returning a continuation cursor when more pages remain.
func (r *Resolver) FindCompanies(ctx context.Context, name, domain, nextURL string) ([]affinity.Company, string, error) {
	nameNeedle := strings.ToLower(strings.TrimSpace(name))
	domainNeedle := strings.ToLower(strings.TrimSpace(domain))
	if nameNeedle == "" && domainNeedle == "" {
		return nil, "", fmt.Errorf("company search needs a name or a domain")
	}

	var matches []affinity.Company
	cursor := nextURL
	for page := 0; page < r.cfg.MaxCompanyPages; page++ {
		resp, err := r.v2.Companies(ctx, v2PageLimit, cursor)
		if err != nil {
			return nil, "", err
		}
		for _, company := range resp.Data {
			if companyMatches(company, nameNeedle, domainNeedle) {
				matches = append(matches, company)
			}
		}
		cursor = resp.Pagination.NextURL
		if cursor == "" {
			break
		}
	}

	logging.ResolveDebug("company search name=%q domain=%q matched %d (more=%v)",
		name, domain, len(matches), cursor != "")
	return matches, cursor, nil
}

func companyMatches(c affinity.Company, nameNeedle, domainNeedle string) bool {
	if nameNeedle != "" && strings.Contains(strings.ToLower(c.Name), nameNeedle) {
		return true
	}
	if domainNeedle == "" {
		return false
	}
	if strings.Contains(strings.ToLower(c.Domain), domainNeedle) {
		return true
	}
	for _, d := range c.Domains {
		if strings.Contains(strings.ToLower(d), domainNeedle) {
			return true
		}
	}
	return false
}

// ListEntryID returns the id of the entry binding organizationID to
// listID, or ok=false when the organization is not on the list.
func (r *Resolver) ListEntryID(ctx context.Context, listID, organizationID int64) (int64, bool, error) {
	entries, err := r.v1.GetListEntries(ctx, listID)
	if err != nil {
		return 0, false, err
	}
	for _, entry := range entries {
		if entry.EntityID == organizationID {
			return entry.ID, true, nil
		}
	}
	return 0, false, nil
}

// AddCompanyToList adds the organization to the list. The operation is
// idempotent: if an entry already exists it is returned unchanged and
// created is false, and no duplicate is written.
func (r *Resolver) AddCompanyToList(ctx context.Context, listID, organizationID int64) (entry *affinity.ListEntry, created bool, err error) {
	entries, err := r.v1.GetListEntries(ctx, listID)
	if err != nil {
		return nil, false, err
	}
	for i := range entries {
		if entries[i].EntityID == organizationID {
			logging.Resolve("organization %d already on list %d (entry %d)", organizationID, listID, entries[i].ID)
			return &entries[i], false, nil
		}
	}

	entry, err = r.v1.CreateListEntry(ctx, listID, organizationID)
	if err != nil {
		return nil, false, err
	}
	logging.Resolve("added organization %d to list %d (entry %d)", organizationID, listID, entry.ID)
	return entry, true, nil
}

// FieldByNameOrID resolves a field reference against the fields of one
// list. An all-digits reference is an id and must belong to the list;
// anything else matches by exact name first, then by substring.
func (r *Resolver) FieldByNameOrID(ctx context.Context, listID int64, nameOrID string) (*affinity.Field, error) {
	fields, err := r.v1.GetFields(ctx, listID, true)
	if err != nil {
		return nil, err
	}

	ref := strings.TrimSpace(nameOrID)
	if id, convErr := strconv.ParseInt(ref, 10, 64); convErr == nil {
		for i := range fields {
			if fields[i].ID == id {
				return &fields[i], nil
			}
		}
		return nil, &NotFoundError{Kind: "field", Query: ref}
	}

	needle := strings.ToLower(ref)
	for i := range fields {
		if strings.ToLower(fields[i].Name) == needle {
			return &fields[i], nil
		}
	}
	for i := range fields {
		if strings.Contains(strings.ToLower(fields[i].Name), needle) {
			return &fields[i], nil
		}
	}
	return nil, &NotFoundError{Kind: "field", Query: ref}
}

// ChangeFieldValue sets one field of one organization's entry on a list,
// via the v1 field-value surface. The field reference is resolved against
// the list's metadata and the raw value is coerced to the field's type
// (dropdown labels become option ids). The organization must already be
// on the list. If a value for (field, entry) exists it is updated in
// place; otherwise a new value is created.
func (r *Resolver) ChangeFieldValue(ctx context.Context, listID, organizationID int64, fieldNameOrID string, raw any) (fv *affinity.FieldValue, updated bool, err error) {
	field, err := r.FieldByNameOrID(ctx, listID, fieldNameOrID)
	if err != nil {
		return nil, false, err
	}

	value, err := coerce.Value(field, raw)
	if err != nil {
		return nil, false, err
	}

	entryID, ok, err := r.ListEntryID(ctx, listID, organizationID)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, &NotFoundError{
			Kind:  "list entry",
			Query: fmt.Sprintf("organization %d on list %d", organizationID, listID),
		}
	}

	existing, err := r.v1.GetFieldValues(ctx, organizationID)
	if err != nil {
		return nil, false, err
	}
	for _, candidate := range existing {
		if candidate.FieldID == field.ID && candidate.ListEntryID == entryID {
			fv, err = r.v1.UpdateFieldValue(ctx, candidate.ID, value)
			if err != nil {
				return nil, false, err
			}
			logging.Resolve("updated field %q (%d) on entry %d", field.Name, field.ID, entryID)
			return fv, true, nil
		}
	}

	fv, err = r.v1.CreateFieldValue(ctx, field.ID, value, organizationID, entryID)
	if err != nil {
		return nil, false, err
	}
	logging.Resolve("created field %q (%d) value on entry %d", field.Name, field.ID, entryID)
	return fv, false, nil
}
