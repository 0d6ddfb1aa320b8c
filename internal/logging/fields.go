package logging

// Standardized attribute keys shared across components.
const (
	FieldComponent   = "component"
	FieldJobID       = "job_id"
	FieldFilename    = "filename"
	FieldTitle       = "title"
	FieldMode        = "mode"
	FieldFingerprint = "fingerprint"
	FieldErrorHint   = "error_hint"
)
