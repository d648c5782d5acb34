// Package emoji provides the status symbols used in CLI output.
package emoji

// Status symbols.
const (
	// Success marks a completed operation or a live record.
	Success = "✓"
	// Error marks a failure or a deleted record.
	Error = "✗"
	// Stop marks a shutdown.
	Stop = "■"
	// Warning marks a non-fatal problem such as a count mismatch.
	Warning = "!"
	// Optional marks something skipped or not tracked.
	Optional = "-"
	// Unknown marks a value that could not be determined.
	Unknown = "?"
	// Info marks informational lines.
	Info = "i"
	// Spinner stands in for content that was not loaded.
	Spinner = "..."
)
