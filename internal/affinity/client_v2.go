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
	"strings"
	"time"

	"affinityops/internal/logging"
)

// companiesPermissionHint explains the most common v2 403: listing companies
// requires the "Export All Organizations directory" permission on the key.
const companiesPermissionHint = "the key likely lacks the 'Export All Organizations directory' permission required by /v2/companies"

// V2Config holds configuration for the current-surface client.
type V2Config struct {
	BearerToken string
	BaseURL     string
	Timeout     time.Duration
	MaxRetries  int
}

// DefaultV2Config returns sensible defaults for the v2 surface.
func DefaultV2Config(token string) V2Config {
	return V2Config{
		BearerToken: token,
		BaseURL:     DefaultBaseURL,
		Timeout:     30 * time.Second,
		MaxRetries:  3,
	}
}

// V2Client talks to the current Affinity surface with bearer auth. Only
// transient failures (429, 500, 502, 503, 504) are retried; everything else
// is classified and surfaced immediately.
//
// V2Client is safe for concurrent use.
type V2Client struct {
	token       string
	baseURL     string
	maxRetries  int
	backoffBase time.Duration
	httpClient  *http.Client
}

// NewV2Client creates a current-surface client.
func NewV2Client(cfg V2Config) *V2Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	return &V2Client{
		token:       cfg.BearerToken,
		baseURL:     cfg.BaseURL,
		maxRetries:  cfg.MaxRetries,
		backoffBase: time.Second,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
	}
}

// Configured reports whether a credential is present.
func (c *V2Client) Configured() bool { return c != nil && c.token != "" }

// Request performs an authenticated v2 call. pathOrURL may be an absolute
// continuation URL from pagination, in which case base-URL prefixing is
// bypassed. The credential is checked before any network attempt. A success
// with an empty body decodes to an empty JSON object, never to nil.
func (c *V2Client) Request(ctx context.Context, method, pathOrURL string, query url.Values, body any) (json.RawMessage, error) {
	if c == nil || c.token == "" {
		return nil, ErrMissingV2Key
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	reqURL := pathOrURL
	if !strings.HasPrefix(pathOrURL, "http://") && !strings.HasPrefix(pathOrURL, "https://") {
		reqURL = c.baseURL + pathOrURL
	}
	if len(query) > 0 {
		sep := "?"
		if strings.Contains(reqURL, "?") {
			sep = "&"
		}
		reqURL += sep + query.Encode()
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
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Content-Type", "application/json")

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
			apiErr := c.classifyError(resp.StatusCode, pathOrURL, string(respBody))
			if apiErr.Retryable() {
				lastErr = apiErr
				logging.APIDebug("[v2] %s %s -> %d, retrying (attempt %d/%d)", method, pathOrURL, resp.StatusCode, attempt+1, c.maxRetries)
				continue
			}
			return nil, apiErr
		}

		logging.APIDebug("[v2] %s %s -> %d, %d bytes", method, pathOrURL, resp.StatusCode, len(respBody))
		if len(bytes.TrimSpace(respBody)) == 0 {
			return json.RawMessage("{}"), nil
		}
		return json.RawMessage(respBody), nil
	}

	return nil, lastErr
}

// classifyError builds an APIError for a v2 failure, annotating known
// permission-gated endpoints.
func (c *V2Client) classifyError(status int, path, body string) *APIError {
	apiErr := &APIError{
		Surface:    "v2",
		Kind:       classifyStatus(status),
		StatusCode: status,
		Path:       path,
		Body:       body,
	}
	if status == 403 && strings.Contains(path, "/v2/companies") {
		apiErr.Hint = companiesPermissionHint
	}
	return apiErr
}

// WhoAmI returns information about the authenticated user and permissions.
func (c *V2Client) WhoAmI(ctx context.Context) (map[string]any, error) {
	raw, err := c.Request(ctx, http.MethodGet, "/v2/auth/whoami", nil, nil)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode whoami: %w", err)
	}
	return out, nil
}

// Lists returns one page of lists. nextURL, when non-empty, is the absolute
// continuation URL of a previous page and takes precedence over limit.
func (c *V2Client) Lists(ctx context.Context, limit int, nextURL string) (*ListPage, error) {
	path := "/v2/lists"
	query := url.Values{}
	if nextURL != "" {
		path = nextURL
	} else if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	raw, err := c.Request(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, err
	}
	var page ListPage
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, fmt.Errorf("failed to decode lists page: %w", err)
	}
	return &page, nil
}

// Companies returns one page of companies, same continuation contract as Lists.
func (c *V2Client) Companies(ctx context.Context, limit int, nextURL string) (*CompanyPage, error) {
	path := "/v2/companies"
	query := url.Values{}
	if nextURL != "" {
		path = nextURL
	} else if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	raw, err := c.Request(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, err
	}
	var page CompanyPage
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, fmt.Errorf("failed to decode companies page: %w", err)
	}
	return &page, nil
}

// CompanyNotes reads the notes attached to one company.
func (c *V2Client) CompanyNotes(ctx context.Context, companyID int64, limit int) (map[string]any, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	path := fmt.Sprintf("/v2/companies/%d/notes", companyID)

	raw, err := c.Request(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode notes: %w", err)
	}
	return out, nil
}

// UpdateListField updates a single field value on a list entry. The v2
// surface answers 204 on success, which decodes to an empty object.
func (c *V2Client) UpdateListField(ctx context.Context, listID, listEntryID int64, fieldID string, value any) (map[string]any, error) {
	path := fmt.Sprintf("/v2/lists/%d/list-entries/%d/fields/%s", listID, listEntryID, fieldID)
	raw, err := c.Request(ctx, http.MethodPost, path, nil, map[string]any{"value": value})
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode field update: %w", err)
	}
	return out, nil
}

// BatchUpdateListFields applies an update-fields operation batch to one
// list entry.
func (c *V2Client) BatchUpdateListFields(ctx context.Context, listID, listEntryID int64, operations []FieldOperation) (map[string]any, error) {
	path := fmt.Sprintf("/v2/lists/%d/list-entries/%d/fields", listID, listEntryID)
	raw, err := c.Request(ctx, http.MethodPatch, path, nil, map[string]any{"operations": operations})
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode batch update: %w", err)
	}
	return out, nil
}
