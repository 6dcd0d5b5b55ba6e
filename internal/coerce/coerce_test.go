package coerce

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"affinityops/internal/affinity"
)

func statusField() *affinity.Field {
	return &affinity.Field{
		ID:        31,
		Name:      "Status",
		ValueType: affinity.FieldTypeDropdown,
		DropdownOptions: []affinity.DropdownOption{
			{ID: 1, Text: "Qualified"},
			{ID: 2, Text: "Turned Down"},
		},
	}
}

func TestDropdownExactMatchCaseInsensitive(t *testing.T) {
	got, err := Value(statusField(), "turned down")
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}
	if got != int64(2) {
		t.Errorf("got %v, want 2", got)
	}
}

func TestDropdownRoundTrip(t *testing.T) {
	field := statusField()
	for _, opt := range field.DropdownOptions {
		got, err := Value(field, opt.Text)
		if err != nil {
			t.Fatalf("Value(%q) failed: %v", opt.Text, err)
		}
		id, ok := got.(int64)
		if !ok || id != opt.ID {
			t.Fatalf("Value(%q) = %v, want %d", opt.Text, got, opt.ID)
		}
		// Reverse lookup recovers the original text.
		var text string
		for _, o := range field.DropdownOptions {
			if o.ID == id {
				text = o.Text
			}
		}
		if text != opt.Text {
			t.Errorf("reverse lookup of %d = %q, want %q", id, text, opt.Text)
		}
	}
}

func TestDropdownSubstringMatch(t *testing.T) {
	got, err := Value(statusField(), "Qualif")
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}
	if got != int64(1) {
		t.Errorf("got %v, want 1", got)
	}
}

func TestDropdownDigitsTreatedAsLiteralID(t *testing.T) {
	// "7" matches no option text, so it is taken as a literal id.
	got, err := Value(statusField(), "7")
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}
	if got != int64(7) {
		t.Errorf("got %v, want 7", got)
	}
}

func TestDropdownFuzzyMatchAboveThreshold(t *testing.T) {
	// One edit away from "Qualified": similarity well above 0.6.
	got, err := Value(statusField(), "Qualifeid")
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}
	if got != int64(1) {
		t.Errorf("got %v, want 1", got)
	}
}

func TestDropdownFuzzyMatchBelowThresholdFails(t *testing.T) {
	_, err := Value(statusField(), "zebra")
	var notFound *ValueNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected *ValueNotFoundError, got %v", err)
	}
	want := []string{"Qualified", "Turned Down"}
	if diff := cmp.Diff(want, notFound.Options); diff != "" {
		t.Errorf("error should list all options (-want +got):\n%s", diff)
	}
}

func TestDropdownIntegerPassthrough(t *testing.T) {
	// Bare integers are trusted as option ids, even invalid ones.
	got, err := Value(statusField(), 99)
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}
	if got != int64(99) {
		t.Errorf("got %v, want 99", got)
	}

	// JSON-decoded numbers arrive as float64.
	got, err = Value(statusField(), float64(2))
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}
	if got != int64(2) {
		t.Errorf("got %v, want 2", got)
	}
}

func TestMultiSelectCommaSplitPreservesOrder(t *testing.T) {
	field := &affinity.Field{
		ID:        40,
		Name:      "Sectors",
		ValueType: affinity.FieldTypeMultiDropdown,
		DropdownOptions: []affinity.DropdownOption{
			{ID: 10, Text: "Fintech"},
			{ID: 11, Text: "Healthcare"},
		},
	}

	got, err := Value(field, "Fintech, Healthcare")
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}
	if diff := cmp.Diff([]int64{10, 11}, got); diff != "" {
		t.Errorf("unexpected ids (-want +got):\n%s", diff)
	}

	// Reversed input order is preserved.
	got, err = Value(field, "Healthcare, Fintech")
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}
	if diff := cmp.Diff([]int64{11, 10}, got); diff != "" {
		t.Errorf("unexpected ids (-want +got):\n%s", diff)
	}
}

func TestMultiSelectOneBadElementFailsWholeCall(t *testing.T) {
	_, err := Value(statusField(), "Qualified, zebra")
	var notFound *ValueNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected *ValueNotFoundError, got %v", err)
	}
	if notFound.Value != "zebra" {
		t.Errorf("failing element = %q, want zebra", notFound.Value)
	}
}

func TestMultiSelectListInput(t *testing.T) {
	got, err := Value(statusField(), []any{"Qualified", 2})
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}
	if diff := cmp.Diff([]int64{1, 2}, got); diff != "" {
		t.Errorf("unexpected ids (-want +got):\n%s", diff)
	}
}

func TestNumberFieldCoercion(t *testing.T) {
	field := &affinity.Field{ID: 50, Name: "Headcount", ValueType: affinity.FieldTypeNumber}

	got, err := Value(field, "42")
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}
	if got != int64(42) {
		t.Errorf("got %v (%T), want int64 42", got, got)
	}

	got, err = Value(field, "3.5")
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}
	if got != 3.5 {
		t.Errorf("got %v, want 3.5", got)
	}
}

func TestBooleanFieldCoercion(t *testing.T) {
	field := &affinity.Field{ID: 51, Name: "Active", ValueType: affinity.FieldTypeBoolean}

	for _, word := range []string{"true", "Yes", "y", "1"} {
		got, err := Value(field, word)
		if err != nil {
			t.Fatalf("Value(%q) failed: %v", word, err)
		}
		if got != true {
			t.Errorf("Value(%q) = %v, want true", word, got)
		}
	}
	for _, word := range []string{"false", "NO", "n", "0"} {
		got, err := Value(field, word)
		if err != nil {
			t.Fatalf("Value(%q) failed: %v", word, err)
		}
		if got != false {
			t.Errorf("Value(%q) = %v, want false", word, got)
		}
	}
}

func TestTextAndDatePassThrough(t *testing.T) {
	text := &affinity.Field{ID: 52, Name: "Summary", ValueType: affinity.FieldTypeText}
	got, err := Value(text, "hello world")
	if err != nil || got != "hello world" {
		t.Errorf("text passthrough = %v, %v", got, err)
	}

	date := &affinity.Field{ID: 53, Name: "First Meeting", ValueType: affinity.FieldTypeDate}
	got, err = Value(date, "2024-06-01T00:00:00Z")
	if err != nil || got != "2024-06-01T00:00:00Z" {
		t.Errorf("date passthrough = %v, %v", got, err)
	}
}

func TestCoercionDoesNotMutateField(t *testing.T) {
	field := statusField()
	if _, err := Value(field, "Qualified, Turned Down"); err != nil {
		t.Fatalf("Value failed: %v", err)
	}
	if diff := cmp.Diff(statusField(), field); diff != "" {
		t.Errorf("field metadata was mutated by coercion (-want +got):\n%s", diff)
	}
}

func TestSimilarityRatio(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"abc", "abc", 1},
		{"", "", 1},
		{"abc", "abd", 1 - 1.0/3},
	}
	for _, tt := range tests {
		if got := similarity(tt.a, tt.b); got != tt.want {
			t.Errorf("similarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
