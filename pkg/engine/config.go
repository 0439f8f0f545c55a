package engine

// DefaultMaxRetries is the retry ceiling used when Config leaves it unset.
const DefaultMaxRetries = 3

// FailureNotice is appended to the transcript before every retry.
const FailureNotice = "The previous code failed. Please rewrite it to fix the error."

// Config holds configuration for the controller.
type Config struct {
	// MaxRetries bounds the number of failed executions in one turn. An
	// always-failing turn makes exactly MaxRetries oracle calls. Zero or
	// negative means use the default of 3.
	MaxRetries int
}

// maxRetries returns the effective ceiling, defaulting to 3.
func (c Config) maxRetries() int {
	if c.MaxRetries <= 0 {
		return DefaultMaxRetries
	}
	return c.MaxRetries
}
