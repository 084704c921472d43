package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID = "session_id"
	FieldPartnerID = "partner_id"
	FieldRequestID = "request_id"
	FieldTenantID  = "tenant_id"

	// Connection fields
	FieldRole = "role"
	FieldMode = "mode"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Wire fields
	FieldMessageType = "message_type"
	FieldCloseReason = "close_reason"
)
