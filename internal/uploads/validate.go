// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package uploads

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"
)

// Validation rule identifiers, used as metric labels.
const (
	ruleEmpty        = "empty"
	ruleSize         = "size"
	ruleMIME         = "mime"
	ruleArchiveEntry = "archive_entry"
)

// archiveTypes are the declared content types whose entry listing must be
// checked against the archive extension allow-list.
var archiveTypes = map[string]bool{
	"application/zip":              true,
	"application/x-zip-compressed": true,
	"application/x-tar":            true,
	"application/gzip":             true,
	"application/x-gzip":           true,
}

// FileMetadata is the slice of the scan status document that validation
// runs on.
type FileMetadata struct {
	Filename            string
	ContentType         string
	DetectedContentType string
	ContentLength       int64
	ArchiveEntries      []string
}

// ValidationConfig carries the operator-tunable limits.
type ValidationConfig struct {
	MaxFileSize       int64
	AllowedMIMETypes  []string
	AllowedExtensions []string
}

type violation struct {
	rule    string
	message string
}

// ValidateFile applies the upload acceptance rules and returns every
// violation, not just the first. Pure function; calling it twice on the
// same input yields the same outcome.
func ValidateFile(meta FileMetadata, cfg ValidationConfig) (bool, []string) {
	violations := validateFile(meta, cfg)
	if len(violations) == 0 {
		return true, nil
	}
	reasons := make([]string, len(violations))
	for i, v := range violations {
		reasons[i] = v.message
	}
	return false, reasons
}

func validateFile(meta FileMetadata, cfg ValidationConfig) []violation {
	var out []violation

	if meta.ContentLength < 1 {
		out = append(out, violation{ruleEmpty, "file is empty"})
	}
	if cfg.MaxFileSize > 0 && meta.ContentLength > cfg.MaxFileSize {
		out = append(out, violation{ruleSize,
			fmt.Sprintf("file size %d exceeds the limit of %d bytes", meta.ContentLength, cfg.MaxFileSize)})
	}

	effective := normalizeMediaType(meta.DetectedContentType)
	if effective == "" {
		effective = normalizeMediaType(meta.ContentType)
	}
	if !typeAllowed(effective, cfg.AllowedMIMETypes) {
		out = append(out, violation{ruleMIME,
			fmt.Sprintf("content type %q is not allowed", effective)})
	}

	if archiveTypes[normalizeMediaType(meta.ContentType)] {
		for _, entry := range meta.ArchiveEntries {
			if strings.HasSuffix(entry, "/") {
				continue // directory entry
			}
			if !extensionAllowed(entry, cfg.AllowedExtensions) {
				out = append(out, violation{ruleArchiveEntry,
					fmt.Sprintf("archive entry %q has a forbidden extension", entry)})
			}
		}
	}

	return out
}

// normalizeMediaType strips parameters and lowercases, so
// "Application/PDF; charset=binary" matches "application/pdf".
func normalizeMediaType(ct string) string {
	ct = strings.TrimSpace(ct)
	if ct == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		return mt
	}
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

func typeAllowed(ct string, allowed []string) bool {
	if ct == "" {
		return false
	}
	for _, a := range allowed {
		if strings.EqualFold(strings.TrimSpace(a), ct) {
			return true
		}
	}
	return false
}

func extensionAllowed(entry string, allowed []string) bool {
	ext := strings.ToLower(filepath.Ext(entry))
	if ext == "" {
		return false
	}
	for _, a := range allowed {
		if strings.EqualFold(strings.TrimSpace(a), ext) {
			return true
		}
	}
	return false
}
