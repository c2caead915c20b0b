package plugin

// State is where a plugin host is in its lifecycle.
type State int

// Plugin states.
const (
	// StateUnloaded - nothing has been built for the plugin.
	StateUnloaded State = iota

	// StateLoaded - the vtable exists but the core has not run its hooks.
	StateLoaded

	// StateActive - the core has run the init hooks and the plugin is live.
	StateActive

	// StateError - loading or activation failed; Err holds the cause.
	StateError
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoaded:
		return "loaded"
	case StateActive:
		return "active"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}
