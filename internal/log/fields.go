// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID     = "request_id"
	FieldCorrelationID = "correlation_id"
	FieldUploadID      = "upload_id"
	FieldReference     = "reference"
	FieldOwnerID       = "owner_id"
	FieldUserID        = "user_id"

	// Scheduler fields
	FieldTaskName  = "task_name"
	FieldLeaseTTL  = "lease_ttl"
	FieldExpiresAt = "expires_at"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// State fields
	FieldOldStatus = "old_status"
	FieldNewStatus = "new_status"

	// Storage fields
	FieldBucket     = "bucket"
	FieldStorageKey = "storage_key"

	// Network fields
	FieldBaseURL = "base_url"
	FieldStatus  = "status"
)
