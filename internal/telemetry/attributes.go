// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"
	HTTPURLKey        = "http.url"
	HTTPUserAgentKey  = "http.user_agent"

	// Upload attributes
	UploadIDKey          = "upload.id"
	UploadReferenceKey   = "upload.reference"
	UploadStatusKey      = "upload.status"
	UploadContentTypeKey = "upload.content_type"
	UploadSizeKey        = "upload.size_bytes"

	// Scheduled task attributes
	TaskNameKey     = "task.name"
	TaskOwnerKey    = "task.owner"
	TaskStatusKey   = "task.status"
	TaskDurationKey = "task.duration_ms"

	// Scan service attributes
	ScanStatusKey        = "scan.status"
	ScanRejectedCountKey = "scan.rejected_count"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route, url string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.String(HTTPURLKey, url),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// UploadAttributes creates upload-related span attributes.
func UploadAttributes(uploadID, reference, status string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if uploadID != "" {
		attrs = append(attrs, attribute.String(UploadIDKey, uploadID))
	}
	if reference != "" {
		attrs = append(attrs, attribute.String(UploadReferenceKey, reference))
	}
	if status != "" {
		attrs = append(attrs, attribute.String(UploadStatusKey, status))
	}
	return attrs
}

// TaskAttributes creates scheduled-task span attributes.
func TaskAttributes(taskName, owner, status string, durationMS int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(TaskNameKey, taskName),
		attribute.String(TaskOwnerKey, owner),
		attribute.String(TaskStatusKey, status),
		attribute.Int64(TaskDurationKey, durationMS),
	}
}

// ScanAttributes creates scan-service span attributes.
func ScanAttributes(status string, rejectedCount int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(ScanStatusKey, status),
		attribute.Int(ScanRejectedCountKey, rejectedCount),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
