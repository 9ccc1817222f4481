package ir

// Version constants for the portable format and the compiler.
const (
	// FormatVersion is the portable definition format version.
	FormatVersion = "1"

	// CompilerVersion is the cohortql compiler version.
	CompilerVersion = "0.1.0"
)
