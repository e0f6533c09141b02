package scanner

// InitiateRequest opens an upload session with the scan service. MimeTypes
// and MaxFileSize are forwarded so the service can pre-reject oversized or
// unexpected files before they ever reach storage.
type InitiateRequest struct {
	Redirect      string            `json:"redirect"`
	Callback      string            `json:"callback,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	MimeTypes     []string          `json:"mime_types"`
	MaxFileSize   int64             `json:"max_file_size"`
	StorageBucket string            `json:"storage_bucket"`
	StoragePath   string            `json:"storage_path,omitempty"`

	// DownloadURLs switches the session to server-to-server mode: the scan
	// service fetches the files itself instead of waiting for a browser upload.
	DownloadURLs []string `json:"download_urls,omitempty"`
}

// InitiateResponse is the session handle returned by the scan service.
type InitiateResponse struct {
	UploadID  string `json:"upload_id"`
	UploadURL string `json:"upload_url"`
	StatusURL string `json:"status_url"`
}

// StatusResponse mirrors the scan service's status document for one session.
type StatusResponse struct {
	UploadID      string `json:"upload_id,omitempty"`
	UploadStatus  string `json:"upload_status"`
	RejectedCount int    `json:"rejected_count"`
	Error         string `json:"error,omitempty"`
	Form          Form   `json:"form"`
}

// Form wraps the per-file scan result. The service scans exactly one file
// per session.
type Form struct {
	File File `json:"file"`
}

// File carries the scan verdict and storage coordinates for the uploaded file.
type File struct {
	Filename            string   `json:"filename"`
	ContentLength       int64    `json:"content_length"`
	ContentType         string   `json:"content_type"`
	DetectedContentType string   `json:"detected_content_type"`
	Checksum            string   `json:"checksum"`
	S3Bucket            string   `json:"s3_bucket"`
	S3Key               string   `json:"s3_key"`
	FileStatus          string   `json:"file_status"`
	RejectionReason     string   `json:"rejection_reason"`
	ArchiveEntries      []string `json:"archive_entries,omitempty"`
}
