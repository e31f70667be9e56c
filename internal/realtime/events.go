package realtime

// Inbound event names.
const (
	// EventRecordChanged signals that a record in Message.Table was
	// created, updated, or deleted elsewhere. Consumers re-pull the table
	// instead of trusting the payload.
	EventRecordChanged = "record_changed"
)

// Outbound event names. Emitting while disconnected is a logged no-op.
const (
	EventUpdateRecord   = "update_record"
	EventRequestBooking = "request_booking"
)
