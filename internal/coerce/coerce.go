// Package coerce converts human-entered values into the typed
// representations the Affinity API expects. Dropdown labels resolve to
// option ids by exact, substring, literal-id, then fuzzy match; optionless
// fields get numeric and boolean word coercion. Coercion is pure: it never
// mutates the field snapshot or the raw value.
package coerce

import (
	"fmt"
	"strconv"
	"strings"

	"affinityops/internal/affinity"
	"affinityops/internal/logging"
)

// DefaultThreshold is the minimum similarity for a fuzzy option match.
const DefaultThreshold = 0.6

// ValueNotFoundError means a value could not be resolved against a closed
// option set. It lists every available option text so the caller (or the
// model) can pick a valid one.
type ValueNotFoundError struct {
	Value   string
	Field   string
	Options []string
}

func (e *ValueNotFoundError) Error() string {
	return fmt.Sprintf("value %q not found among options for field %q (available: %s)",
		e.Value, e.Field, strings.Join(e.Options, ", "))
}

// Value coerces raw into the typed value for field.
//
// For fields with dropdown options: a comma-separated string becomes a
// multi-select; a single string resolves to one option id; an integer
// passes through as an option id; a list resolves element-wise, failing
// the whole call if any element is unresolvable.
//
// For fields without options: number-typed fields coerce numeric strings,
// boolean-typed fields coerce the usual true/false words, everything else
// passes through unchanged (dates are expected already ISO-formatted).
func Value(field *affinity.Field, raw any) (any, error) {
	if len(field.DropdownOptions) > 0 {
		return coerceDropdown(field, raw)
	}
	return coercePlain(field, raw)
}

func coerceDropdown(field *affinity.Field, raw any) (any, error) {
	switch v := raw.(type) {
	case string:
		if strings.Contains(v, ",") {
			parts := strings.Split(v, ",")
			items := make([]any, 0, len(parts))
			for _, p := range parts {
				items = append(items, strings.TrimSpace(p))
			}
			return resolveOptionList(field, items)
		}
		id, err := resolveOption(field, v)
		if err != nil {
			return nil, err
		}
		return id, nil
	case int:
		// Bare numeric ids pass through without checking the option set.
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		if v == float64(int64(v)) {
			return int64(v), nil
		}
		return nil, &ValueNotFoundError{Value: fmt.Sprintf("%v", v), Field: field.Name, Options: optionTexts(field)}
	case []any:
		return resolveOptionList(field, v)
	case []string:
		items := make([]any, len(v))
		for i, s := range v {
			items[i] = s
		}
		return resolveOptionList(field, items)
	default:
		return nil, &ValueNotFoundError{Value: fmt.Sprintf("%v", raw), Field: field.Name, Options: optionTexts(field)}
	}
}

// resolveOptionList resolves each element to one option id, preserving
// input order. Any unresolvable element fails the whole call.
func resolveOptionList(field *affinity.Field, items []any) ([]int64, error) {
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			id, err := resolveOption(field, v)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		case int:
			ids = append(ids, int64(v))
		case int64:
			ids = append(ids, v)
		case float64:
			ids = append(ids, int64(v))
		default:
			return nil, &ValueNotFoundError{Value: fmt.Sprintf("%v", item), Field: field.Name, Options: optionTexts(field)}
		}
	}
	return ids, nil
}

// resolveOption maps one string to an option id: exact text match, then
// substring, then all-digits literal id, then fuzzy match above the
// similarity threshold.
func resolveOption(field *affinity.Field, value string) (int64, error) {
	needle := strings.ToLower(strings.TrimSpace(value))

	for _, opt := range field.DropdownOptions {
		if strings.ToLower(strings.TrimSpace(opt.Text)) == needle {
			return opt.ID, nil
		}
	}

	for _, opt := range field.DropdownOptions {
		if strings.Contains(strings.ToLower(opt.Text), needle) && needle != "" {
			return opt.ID, nil
		}
	}

	if isDigits(needle) {
		id, err := strconv.ParseInt(needle, 10, 64)
		if err == nil {
			return id, nil
		}
	}

	bestScore := 0.0
	var bestID int64
	found := false
	for _, opt := range field.DropdownOptions {
		score := similarity(needle, strings.ToLower(strings.TrimSpace(opt.Text)))
		if score >= DefaultThreshold && score > bestScore {
			bestScore = score
			bestID = opt.ID
			found = true
		}
	}
	if found {
		logging.CoerceDebug("fuzzy-matched %q on field %q (score %.2f)", value, field.Name, bestScore)
		return bestID, nil
	}

	return 0, &ValueNotFoundError{Value: value, Field: field.Name, Options: optionTexts(field)}
}

func coercePlain(field *affinity.Field, raw any) (any, error) {
	s, isString := raw.(string)
	if !isString {
		return raw, nil
	}
	trimmed := strings.TrimSpace(s)

	switch field.ValueType {
	case affinity.FieldTypeNumber:
		if !strings.Contains(trimmed, ".") {
			if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
				return n, nil
			}
		}
		if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return f, nil
		}
		return raw, nil
	case affinity.FieldTypeBoolean:
		switch strings.ToLower(trimmed) {
		case "true", "yes", "y", "1":
			return true, nil
		case "false", "no", "n", "0":
			return false, nil
		}
		return raw, nil
	default:
		return raw, nil
	}
}

func optionTexts(field *affinity.Field) []string {
	texts := make([]string, len(field.DropdownOptions))
	for i, opt := range field.DropdownOptions {
		texts[i] = opt.Text
	}
	return texts
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// similarity is a normalized edit-distance ratio in [0, 1].
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := max(len(a), len(b))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshteinDistance(a, b))/float64(longest)
}

// levenshteinDistance calculates the edit distance between two strings
// using two rows instead of a full matrix.
func levenshteinDistance(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[len(b)]
}
