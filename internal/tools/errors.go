package tools

import "errors"

// Tool registry errors.
var (
	// ErrToolNotFound is returned when a tool is not registered.
	ErrToolNotFound = errors.New("tool not found")

	// ErrToolNameEmpty is returned when a tool has no name.
	ErrToolNameEmpty = errors.New("tool name cannot be empty")

	// ErrToolExecuteNil is returned when a tool has no execute function.
	ErrToolExecuteNil = errors.New("tool execute function cannot be nil")

	// ErrToolAlreadyRegistered is returned when registering a duplicate.
	ErrToolAlreadyRegistered = errors.New("tool already registered")

	// ErrMissingRequiredArg is returned when a required argument is missing.
	ErrMissingRequiredArg = errors.New("missing required argument")

	// ErrInvalidArgType is returned when an argument has the wrong type.
	ErrInvalidArgType = errors.New("invalid argument type")

	// ErrV1NotConfigured is returned by tools that need the legacy API
	// key when only the v2 token is present.
	ErrV1NotConfigured = errors.New("the Affinity v1 API key is not configured; create, note and field-value actions are unavailable")

	// ErrV2NotConfigured is returned by tools that need the v2 bearer token.
	ErrV2NotConfigured = errors.New("the Affinity v2 API key is not configured; directory reads and list-field updates are unavailable")
)
