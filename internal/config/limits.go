package config

const (
	// MaxMessageContentLength bounds a submitted chat message. Long enough
	// for a detailed caregiver question, short enough to keep turns cheap.
	MaxMessageContentLength = 4000

	// DefaultMaxTokens is the assistant output budget when the model's
	// capability file does not say otherwise.
	DefaultMaxTokens = 4096

	// SSEClientBuffer is the per-client event channel size. A client that
	// falls this far behind misses events and re-syncs from the snapshot.
	SSEClientBuffer = 32

	// MaxToolCallsPerTurn caps tool invocations for a single assistant turn.
	MaxToolCallsPerTurn = 8
)
