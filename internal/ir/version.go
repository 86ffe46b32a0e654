package ir

// Version constants for persisted state and the tool itself.
const (
	// FormatVersion is the sync-state record version.
	FormatVersion = "1.0"

	// Version is the beatspine release version.
	Version = "0.1.0"
)
