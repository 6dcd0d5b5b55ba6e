package affinity

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestV1(t *testing.T, handler http.HandlerFunc) *V1Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewV1Client(V1Config{APIKey: "test-key", BaseURL: server.URL})
	client.backoffBase = time.Millisecond
	return client
}

func TestV1MissingKeyFailsBeforeNetwork(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()

	client := NewV1Client(V1Config{APIKey: "", BaseURL: server.URL})
	_, err := client.Request(context.Background(), http.MethodGet, "/lists", nil, nil)
	if !errors.Is(err, ErrMissingV1Key) {
		t.Fatalf("expected ErrMissingV1Key, got %v", err)
	}
	if calls != 0 {
		t.Errorf("expected 0 network calls, got %d", calls)
	}
}

func TestV1BasicAuthBlankUsername(t *testing.T) {
	client := newTestV1(t, func(w http.ResponseWriter, r *http.Request) {
		want := "Basic " + base64.StdEncoding.EncodeToString([]byte(":test-key"))
		if got := r.Header.Get("Authorization"); got != want {
			t.Errorf("Authorization = %q, want %q", got, want)
		}
		w.Write([]byte(`[]`))
	})

	if _, err := client.GetLists(context.Background()); err != nil {
		t.Fatalf("GetLists failed: %v", err)
	}
}

func TestV1RetriesAnyErrorResponse(t *testing.T) {
	// The legacy surface retries even validation errors.
	attempts := 0
	client := newTestV1(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusUnprocessableEntity)
			w.Write([]byte(`{"error":"name required"}`))
			return
		}
		w.Write([]byte(`{"id": 42, "name": "Acme"}`))
	})

	org, err := client.CreateOrganization(context.Background(), "Acme", "", nil)
	if err != nil {
		t.Fatalf("CreateOrganization failed: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
	if org.ID != 42 {
		t.Errorf("org.ID = %d, want 42", org.ID)
	}
}

func TestV1SurfacesLastErrorAfterExhaustion(t *testing.T) {
	attempts := 0
	client := newTestV1(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"bad domain"}`))
	})

	_, err := client.Request(context.Background(), http.MethodPost, "/organizations", nil, map[string]any{"name": "x"})
	if err == nil {
		t.Fatal("expected error after retries exhausted")
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.StatusCode != 400 || apiErr.Surface != "v1" {
		t.Errorf("unexpected error classification: %+v", apiErr)
	}
}

func TestV1EmptyBodyReturnsEmptyObject(t *testing.T) {
	client := newTestV1(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	raw, err := client.Request(context.Background(), http.MethodGet, "/lists", nil, nil)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("empty result should decode as an object: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("expected empty object, got %v", out)
	}
}

func TestV1ListEntriesFollowPageToken(t *testing.T) {
	client := newTestV1(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page_token") {
		case "":
			w.Write([]byte(`{"list_entries":[{"id":1,"list_id":9,"entity_id":100}],"next_page_token":"p2"}`))
		case "p2":
			w.Write([]byte(`{"list_entries":[{"id":2,"list_id":9,"entity_id":200}]}`))
		default:
			t.Errorf("unexpected page token %q", r.URL.Query().Get("page_token"))
		}
	})

	entries, err := client.GetListEntries(context.Background(), 9)
	if err != nil {
		t.Fatalf("GetListEntries failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].EntityID != 100 || entries[1].EntityID != 200 {
		t.Errorf("unexpected entries: %+v", entries)
	}
}

func TestV1GetFieldsDecodesDropdownOptions(t *testing.T) {
	client := newTestV1(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("list_id") != "7" {
			t.Errorf("list_id = %q, want 7", r.URL.Query().Get("list_id"))
		}
		if r.URL.Query().Get("with_modified_names") != "true" {
			t.Error("expected with_modified_names=true")
		}
		w.Write([]byte(`[{"id":31,"name":"Status","value_type":"dropdown","dropdown_options":[{"id":1,"text":"Qualified"},{"id":2,"text":"Turned Down"}]}]`))
	})

	fields, err := client.GetFields(context.Background(), 7, true)
	if err != nil {
		t.Fatalf("GetFields failed: %v", err)
	}
	if len(fields) != 1 || len(fields[0].DropdownOptions) != 2 {
		t.Fatalf("unexpected fields: %+v", fields)
	}
	if fields[0].DropdownOptions[1].Text != "Turned Down" {
		t.Errorf("option text = %q", fields[0].DropdownOptions[1].Text)
	}
}

func TestV1NotesWrappedAndBareArray(t *testing.T) {
	bare := false
	client := newTestV1(t, func(w http.ResponseWriter, r *http.Request) {
		if bare {
			w.Write([]byte(`[{"id":5,"content":"hi"}]`))
			return
		}
		w.Write([]byte(`{"notes":[{"id":4,"content":"hello"}]}`))
	})

	notes, err := client.GetNotes(context.Background(), NoteFilter{OrganizationID: 1})
	if err != nil {
		t.Fatalf("GetNotes failed: %v", err)
	}
	if len(notes) != 1 || notes[0].ID != 4 {
		t.Errorf("unexpected notes: %+v", notes)
	}

	bare = true
	notes, err = client.GetNotes(context.Background(), NoteFilter{OrganizationID: 1})
	if err != nil {
		t.Fatalf("GetNotes (bare) failed: %v", err)
	}
	if len(notes) != 1 || notes[0].ID != 5 {
		t.Errorf("unexpected notes: %+v", notes)
	}
}
