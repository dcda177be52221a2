package ir

// Version constants for the wire format and the reactor.
const (
	// FormatVersion is the envelope and storage format version.
	FormatVersion = "1"

	// ReactorVersion is the reactor release version.
	ReactorVersion = "0.1.0"
)
