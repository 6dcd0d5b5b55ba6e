package affinity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"affinityops/internal/logging"
)

// DefaultBaseURL is the production Affinity API endpoint.
const DefaultBaseURL = "https://api.affinity.co"

// V1Config holds configuration for the legacy-surface client.
type V1Config struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

// DefaultV1Config returns sensible defaults for the v1 surface.
func DefaultV1Config(apiKey string) V1Config {
	return V1Config{
		APIKey:     apiKey,
		BaseURL:    DefaultBaseURL,
		Timeout:    30 * time.Second,
		MaxRetries: 3,
	}
}

// V1Client talks to the legacy Affinity surface. Auth is HTTP basic with a
// blank username and the API key as password. The v1 surface retries every
// error response, validation errors included, and surfaces the last one.
//
// V1Client is safe for concurrent use.
type V1Client struct {
	apiKey      string
	baseURL     string
	maxRetries  int
	backoffBase time.Duration
	httpClient  *http.Client
}

// NewV1Client creates a legacy-surface client.
func NewV1Client(cfg V1Config) *V1Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	return &V1Client{
		apiKey:      cfg.APIKey,
		baseURL:     cfg.BaseURL,
		maxRetries:  cfg.MaxRetries,
		backoffBase: time.Second,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
	}
}

// Configured reports whether a credential is present.
func (c *V1Client) Configured() bool { return c != nil && c.apiKey != "" }

// Request performs an authenticated v1 call. The credential is checked
// before any network attempt. A success with an empty body decodes to an
// empty JSON object, never to nil.
func (c *V1Client) Request(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	if c == nil || c.apiKey == "" {
		return nil, ErrMissingV1Key
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * c.backoffBase
			if backoff > 8*c.backoffBase {
				backoff = 8 * c.backoffBase
			}
			time.Sleep(backoff)
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.SetBasicAuth("", c.apiKey)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response body: %w", err)
			continue
		}

		if resp.StatusCode >= 400 {
			lastErr = &APIError{
				Surface:    "v1",
				Kind:       classifyStatus(resp.StatusCode),
				StatusCode: resp.StatusCode,
				Path:       path,
				Body:       string(respBody),
			}
			logging.APIDebug("[v1] %s %s -> %d (attempt %d/%d)", method, path, resp.StatusCode, attempt+1, c.maxRetries)
			continue
		}

		logging.APIDebug("[v1] %s %s -> %d, %d bytes", method, path, resp.StatusCode, len(respBody))
		if len(bytes.TrimSpace(respBody)) == 0 {
			return json.RawMessage("{}"), nil
		}
		return json.RawMessage(respBody), nil
	}

	return nil, lastErr
}

// CreateOrganization creates a new organization (company).
func (c *V1Client) CreateOrganization(ctx context.Context, name, domain string, personIDs []int64) (*Organization, error) {
	payload := map[string]any{"name": name}
	if domain != "" {
		payload["domain"] = domain
	}
	if len(personIDs) > 0 {
		payload["person_ids"] = personIDs
	}

	raw, err := c.Request(ctx, http.MethodPost, "/organizations", nil, payload)
	if err != nil {
		return nil, err
	}
	var org Organization
	if err := json.Unmarshal(raw, &org); err != nil {
		return nil, fmt.Errorf("failed to decode organization: %w", err)
	}
	return &org, nil
}

// OrganizationPage is one page of a v1 organization search.
type OrganizationPage struct {
	Organizations []Organization `json:"organizations"`
	NextPageToken string         `json:"next_page_token,omitempty"`
}

// SearchOrganizations searches organizations by name or domain term.
func (c *V1Client) SearchOrganizations(ctx context.Context, term, pageToken string) (*OrganizationPage, error) {
	query := url.Values{"term": {term}}
	if pageToken != "" {
		query.Set("page_token", pageToken)
	}

	raw, err := c.Request(ctx, http.MethodGet, "/organizations", query, nil)
	if err != nil {
		return nil, err
	}
	var page OrganizationPage
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, fmt.Errorf("failed to decode organizations: %w", err)
	}
	return &page, nil
}

// GetOrganization fetches one organization by id.
func (c *V1Client) GetOrganization(ctx context.Context, id int64) (*Organization, error) {
	raw, err := c.Request(ctx, http.MethodGet, "/organizations/"+strconv.FormatInt(id, 10), nil, nil)
	if err != nil {
		return nil, err
	}
	var org Organization
	if err := json.Unmarshal(raw, &org); err != nil {
		return nil, fmt.Errorf("failed to decode organization: %w", err)
	}
	return &org, nil
}

// NoteRequest describes a note to create. Only non-zero fields are sent.
type NoteRequest struct {
	Content         string
	OrganizationIDs []int64
	PersonIDs       []int64
	OpportunityIDs  []int64
	Type            *int
	ParentID        int64
	CreatorID       int64
	CreatedAt       string
}

// CreateNote creates a note attached to one or more entities.
func (c *V1Client) CreateNote(ctx context.Context, note NoteRequest) (*Note, error) {
	payload := map[string]any{"content": note.Content}
	if len(note.OrganizationIDs) > 0 {
		payload["organization_ids"] = note.OrganizationIDs
	}
	if len(note.PersonIDs) > 0 {
		payload["person_ids"] = note.PersonIDs
	}
	if len(note.OpportunityIDs) > 0 {
		payload["opportunity_ids"] = note.OpportunityIDs
	}
	if note.Type != nil {
		payload["type"] = *note.Type
	}
	if note.ParentID != 0 {
		payload["parent_id"] = note.ParentID
	}
	if note.CreatorID != 0 {
		payload["creator_id"] = note.CreatorID
	}
	if note.CreatedAt != "" {
		payload["created_at"] = note.CreatedAt
	}

	raw, err := c.Request(ctx, http.MethodPost, "/notes", nil, payload)
	if err != nil {
		return nil, err
	}
	var created Note
	if err := json.Unmarshal(raw, &created); err != nil {
		return nil, fmt.Errorf("failed to decode note: %w", err)
	}
	return &created, nil
}

// NoteFilter selects which notes to read. Zero fields are omitted.
type NoteFilter struct {
	OrganizationID int64
	PersonID       int64
	OpportunityID  int64
	CreatorID      int64
	PageToken      string
}

// GetNotes reads notes filtered by entity and/or creator.
func (c *V1Client) GetNotes(ctx context.Context, filter NoteFilter) ([]Note, error) {
	query := url.Values{}
	if filter.OrganizationID != 0 {
		query.Set("organization_id", strconv.FormatInt(filter.OrganizationID, 10))
	}
	if filter.PersonID != 0 {
		query.Set("person_id", strconv.FormatInt(filter.PersonID, 10))
	}
	if filter.OpportunityID != 0 {
		query.Set("opportunity_id", strconv.FormatInt(filter.OpportunityID, 10))
	}
	if filter.CreatorID != 0 {
		query.Set("creator_id", strconv.FormatInt(filter.CreatorID, 10))
	}
	if filter.PageToken != "" {
		query.Set("page_token", filter.PageToken)
	}

	raw, err := c.Request(ctx, http.MethodGet, "/notes", query, nil)
	if err != nil {
		return nil, err
	}

	// The API answers either a bare array or {"notes": [...]}.
	var notes []Note
	if err := json.Unmarshal(raw, &notes); err == nil {
		return notes, nil
	}
	var wrapped struct {
		Notes []Note `json:"notes"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to decode notes: %w", err)
	}
	return wrapped.Notes, nil
}

// GetLists returns every list visible to the credential.
func (c *V1Client) GetLists(ctx context.Context) ([]List, error) {
	raw, err := c.Request(ctx, http.MethodGet, "/lists", nil, nil)
	if err != nil {
		return nil, err
	}

	var lists []List
	if err := json.Unmarshal(raw, &lists); err == nil {
		return lists, nil
	}
	var wrapped struct {
		Lists []List `json:"lists"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to decode lists: %w", err)
	}
	return wrapped.Lists, nil
}

// GetListEntries returns all entries of a list, following the page token
// until exhausted.
func (c *V1Client) GetListEntries(ctx context.Context, listID int64) ([]ListEntry, error) {
	var entries []ListEntry
	pageToken := ""
	path := fmt.Sprintf("/lists/%d/list-entries", listID)

	for {
		query := url.Values{}
		if pageToken != "" {
			query.Set("page_token", pageToken)
		}

		raw, err := c.Request(ctx, http.MethodGet, path, query, nil)
		if err != nil {
			return nil, err
		}

		var page struct {
			ListEntries   []ListEntry `json:"list_entries"`
			NextPageToken string      `json:"next_page_token,omitempty"`
		}
		if err := json.Unmarshal(raw, &page); err == nil && page.ListEntries != nil {
			entries = append(entries, page.ListEntries...)
			pageToken = page.NextPageToken
		} else {
			// Some responses are a bare array with no continuation.
			var flat []ListEntry
			if err := json.Unmarshal(raw, &flat); err != nil {
				return nil, fmt.Errorf("failed to decode list entries: %w", err)
			}
			entries = append(entries, flat...)
			pageToken = ""
		}

		if pageToken == "" {
			return entries, nil
		}
	}
}

// CreateListEntry adds an organization to a list.
func (c *V1Client) CreateListEntry(ctx context.Context, listID, organizationID int64) (*ListEntry, error) {
	path := fmt.Sprintf("/lists/%d/list-entries", listID)
	raw, err := c.Request(ctx, http.MethodPost, path, nil, map[string]any{"entity_id": organizationID})
	if err != nil {
		return nil, err
	}
	var entry ListEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode list entry: %w", err)
	}
	return &entry, nil
}

// GetFields returns field metadata, optionally scoped to one list. With
// withModifiedNames set, display names reflect list-specific overrides.
func (c *V1Client) GetFields(ctx context.Context, listID int64, withModifiedNames bool) ([]Field, error) {
	query := url.Values{}
	if listID != 0 {
		query.Set("list_id", strconv.FormatInt(listID, 10))
	}
	if withModifiedNames {
		query.Set("with_modified_names", "true")
	}

	raw, err := c.Request(ctx, http.MethodGet, "/fields", query, nil)
	if err != nil {
		return nil, err
	}

	var fields []Field
	if err := json.Unmarshal(raw, &fields); err == nil {
		return fields, nil
	}
	var wrapped struct {
		Fields []Field `json:"fields"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to decode fields: %w", err)
	}
	return wrapped.Fields, nil
}

// CreateFieldValue creates a new field value for an entity or list entry.
func (c *V1Client) CreateFieldValue(ctx context.Context, fieldID int64, value any, entityID, listEntryID int64) (*FieldValue, error) {
	payload := map[string]any{"field_id": fieldID, "value": value}
	if entityID != 0 {
		payload["entity_id"] = entityID
	}
	if listEntryID != 0 {
		payload["list_entry_id"] = listEntryID
	}

	raw, err := c.Request(ctx, http.MethodPost, "/field-values", nil, payload)
	if err != nil {
		return nil, err
	}
	var fv FieldValue
	if err := json.Unmarshal(raw, &fv); err != nil {
		return nil, fmt.Errorf("failed to decode field value: %w", err)
	}
	return &fv, nil
}

// UpdateFieldValue replaces the value of an existing field value.
func (c *V1Client) UpdateFieldValue(ctx context.Context, fieldValueID int64, value any) (*FieldValue, error) {
	path := "/field-values/" + strconv.FormatInt(fieldValueID, 10)
	raw, err := c.Request(ctx, http.MethodPut, path, nil, map[string]any{"value": value})
	if err != nil {
		return nil, err
	}
	var fv FieldValue
	if err := json.Unmarshal(raw, &fv); err != nil {
		return nil, fmt.Errorf("failed to decode field value: %w", err)
	}
	return &fv, nil
}

// GetFieldValues returns the field values attached to one organization.
func (c *V1Client) GetFieldValues(ctx context.Context, organizationID int64) ([]FieldValue, error) {
	query := url.Values{"organization_id": {strconv.FormatInt(organizationID, 10)}}
	raw, err := c.Request(ctx, http.MethodGet, "/field-values", query, nil)
	if err != nil {
		return nil, err
	}

	var values []FieldValue
	if err := json.Unmarshal(raw, &values); err == nil {
		return values, nil
	}
	var wrapped struct {
		FieldValues []FieldValue `json:"field_values"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to decode field values: %w", err)
	}
	return wrapped.FieldValues, nil
}
