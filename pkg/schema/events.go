package schema

// Event types emitted when a session's state changes.
const (
	EventSessionOpened  = "session_opened"
	EventSessionClosed  = "session_closed"
	EventSessionExpired = "session_expired"
	EventGraphReplaced  = "graph_replaced"

	EventOutputRecorded = "output_recorded"
	EventOutputFailed   = "output_failed"
	EventOutputPending  = "output_pending"
	EventOutputCleared  = "output_cleared"
	EventStateReset     = "state_reset"
)
