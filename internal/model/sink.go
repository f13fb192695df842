package model

// Sink defines a generic interface for exporting finalized decisions to an
// external backend. Delivery is best-effort: implementations return errors
// for observability, but the pipeline never aborts on them.
type Sink interface {
	// Write delivers a single decision payload.
	Write(payload *DecisionPayload) error

	// Name identifies the sink in logs.
	Name() string

	// Close releases any underlying connection.
	Close() error
}

// Notifier defines a generic interface for sending notifications.
type Notifier interface {
	Send(subject, body string) error
}
