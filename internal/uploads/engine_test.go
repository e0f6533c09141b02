// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package uploads

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	platformnet "github.com/ManuGH/floodgate/internal/platform/net"
	"github.com/ManuGH/floodgate/internal/projects"
	"github.com/ManuGH/floodgate/internal/scanner"
)

type fakeScan struct {
	initiateResp *scanner.InitiateResponse
	initiateErr  error
	statusFn     func(uploadID string) (*scanner.StatusResponse, error)
	initiates    []scanner.InitiateRequest
	statusCalls  int
}

func (f *fakeScan) Initiate(_ context.Context, req scanner.InitiateRequest) (*scanner.InitiateResponse, error) {
	f.initiates = append(f.initiates, req)
	if f.initiateErr != nil {
		return nil, f.initiateErr
	}
	if f.initiateResp != nil {
		return f.initiateResp, nil
	}
	return &scanner.InitiateResponse{
		UploadID:  "U1",
		UploadURL: "https://scan.example/upload/U1",
		StatusURL: "https://scan.example/status/U1",
	}, nil
}

func (f *fakeScan) Status(_ context.Context, uploadID string) (*scanner.StatusResponse, error) {
	f.statusCalls++
	if f.statusFn != nil {
		return f.statusFn(uploadID)
	}
	return &scanner.StatusResponse{UploadStatus: "pending"}, nil
}

type fakeObjects struct {
	presignErr error
	deleteErr  error
	presigns   int
	deletes    int
}

func (f *fakeObjects) PresignedDownload(_ context.Context, bucket, key string, expiresIn time.Duration, _ string) (string, time.Time, error) {
	f.presigns++
	if f.presignErr != nil {
		return "", time.Time{}, f.presignErr
	}
	url := fmt.Sprintf("https://s3.local/%s/%s?expires=%d", bucket, key, int(expiresIn.Seconds()))
	return url, time.Now().Add(expiresIn), nil
}

func (f *fakeObjects) DeleteObject(_ context.Context, _, _ string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deletes++
	return nil
}

type fakeAttachments struct {
	failFirst int
	calls     int
	attached  []projects.Attachment
}

func (f *fakeAttachments) Attach(_ context.Context, a projects.Attachment) error {
	f.calls++
	if f.calls <= f.failFirst {
		return errors.New("attach failed")
	}
	f.attached = append(f.attached, a)
	return nil
}

type engineFixture struct {
	engine  *Engine
	store   *SqliteRecordStore
	scan    *fakeScan
	objects *fakeObjects
	attach  *fakeAttachments
}

func testEngineConfig() Config {
	return Config{
		MaxFileSize:       100 << 20,
		AllowedMIMETypes:  []string{"application/pdf", "application/zip"},
		AllowedExtensions: []string{".pdf", ".jpg"},
		DownloadURLTTL:    900 * time.Second,
		StorageBucket:     "flood-uploads",
	}
}

func newTestEngine(t *testing.T, cfg Config) *engineFixture {
	t.Helper()
	f := &engineFixture{
		store:   newTestRecordStore(t),
		scan:    &fakeScan{},
		objects: &fakeObjects{},
		attach:  &fakeAttachments{},
	}
	f.engine = NewEngine(f.store, f.scan, f.objects, f.attach, cfg)
	return f
}

func readyDoc() *scanner.StatusResponse {
	return &scanner.StatusResponse{
		UploadStatus: "ready",
		Form: scanner.Form{File: scanner.File{
			Filename:            "plan.pdf",
			ContentLength:       1024,
			ContentType:         "application/pdf",
			DetectedContentType: "application/pdf",
			Checksum:            "sha256:abc",
			S3Bucket:            "b",
			S3Key:               "k",
			FileStatus:          FileStatusScanned,
		}},
	}
}

func seedPending(t *testing.T, store *SqliteRecordStore, uploadID, reference string) {
	t.Helper()
	now := time.Now()
	require.NoError(t, store.Create(context.Background(), &Record{
		UploadID:  uploadID,
		Status:    StatusPending,
		Reference: reference,
		CreatedAt: now,
		UpdatedAt: now,
	}))
}

func seedReady(t *testing.T, store *SqliteRecordStore, uploadID string) {
	t.Helper()
	seedPending(t, store, uploadID, "")
	_, err := store.Update(context.Background(), uploadID, func(r *Record) error {
		r.Status = StatusReady
		r.FileStatus = FileStatusScanned
		r.Filename = "plan.pdf"
		r.StorageBucket = "b"
		r.StorageKey = "k"
		r.CompletedAt = time.Now()
		return nil
	})
	require.NoError(t, err)
}

func TestEngine_InitiateBrowserMode(t *testing.T) {
	f := newTestEngine(t, testEngineConfig())

	res, err := f.engine.Initiate(context.Background(), InitiateInput{
		EntityType: "project",
		EntityID:   "42",
		Reference:  "project-42/plan",
		Redirect:   "https://app.example/done",
		UserID:     "user-9",
	})
	require.NoError(t, err)
	assert.Equal(t, "U1", res.UploadID)
	assert.Equal(t, "https://scan.example/upload/U1", res.UploadURL)
	assert.Equal(t, "project-42/plan", res.Reference)

	rec, err := f.store.Get(context.Background(), "U1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, rec.Status)
	assert.Equal(t, "project-42/plan", rec.Reference)
	assert.Equal(t, "project", rec.EntityType)
	assert.Equal(t, "42", rec.EntityID)
	assert.Equal(t, "user-9", rec.OwnerUserID)

	require.Len(t, f.scan.initiates, 1)
	sent := f.scan.initiates[0]
	assert.Equal(t, "https://app.example/done", sent.Redirect)
	assert.Equal(t, []string{"application/pdf", "application/zip"}, sent.MimeTypes)
	assert.Equal(t, int64(100<<20), sent.MaxFileSize)
	assert.Equal(t, "flood-uploads", sent.StorageBucket)
	assert.Empty(t, sent.Callback, "callback must stay off unless enabled")
	assert.Equal(t, "project-42/plan", sent.Metadata["reference"])
}

func TestEngine_InitiateServerFetchMode(t *testing.T) {
	f := newTestEngine(t, testEngineConfig())

	_, err := f.engine.Initiate(context.Background(), InitiateInput{
		Reference:    "r",
		Redirect:     "https://app.example/done",
		DownloadURLs: []string{"https://files.example/plan.pdf"},
	})
	require.NoError(t, err)

	rec, err := f.store.Get(context.Background(), "U1")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, rec.Status, "server-to-server fetch starts in processing")
	assert.Equal(t, []string{"https://files.example/plan.pdf"}, f.scan.initiates[0].DownloadURLs)
}

func TestEngine_InitiateCallbackURL(t *testing.T) {
	cfg := testEngineConfig()
	cfg.CallbackEnabled = true
	cfg.CallbackBaseURL = "https://flood.example/"
	f := newTestEngine(t, cfg)

	_, err := f.engine.Initiate(context.Background(), InitiateInput{Redirect: "https://app.example/done"})
	require.NoError(t, err)
	assert.Equal(t, "https://flood.example/api/v1/file-uploads/callback", f.scan.initiates[0].Callback)
}

func TestEngine_InitiateGeneratesUploadID(t *testing.T) {
	f := newTestEngine(t, testEngineConfig())
	f.scan.initiateResp = &scanner.InitiateResponse{UploadURL: "https://scan.example/u"}

	res, err := f.engine.Initiate(context.Background(), InitiateInput{Redirect: "https://app.example/done"})
	require.NoError(t, err)
	require.NotEmpty(t, res.UploadID)
	_, err = uuid.Parse(res.UploadID)
	assert.NoError(t, err, "generated id should be a uuid")

	_, err = f.store.Get(context.Background(), res.UploadID)
	assert.NoError(t, err)
}

func TestEngine_InitiateRequiresRedirect(t *testing.T) {
	f := newTestEngine(t, testEngineConfig())

	_, err := f.engine.Initiate(context.Background(), InitiateInput{Reference: "r"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Empty(t, f.scan.initiates, "scan service must not be called for invalid input")
}

func TestEngine_InitiateOutboundPolicy(t *testing.T) {
	cfg := testEngineConfig()
	cfg.Outbound = platformnet.OutboundPolicy{
		Enabled: true,
		Allow: platformnet.OutboundAllowlist{
			Hosts:   []string{"localhost"},
			CIDRs:   []string{"127.0.0.0/8", "::1/128"},
			Ports:   []int{443},
			Schemes: []string{"https"},
		},
	}
	f := newTestEngine(t, cfg)

	_, err := f.engine.Initiate(context.Background(), InitiateInput{Redirect: "https://203.0.113.9/steal"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.engine.Initiate(context.Background(), InitiateInput{
		Redirect:     "https://localhost/done",
		DownloadURLs: []string{"https://203.0.113.9/fetch"},
	})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.engine.Initiate(context.Background(), InitiateInput{Redirect: "https://localhost/done"})
	assert.NoError(t, err)
}

func TestEngine_InitiateScanFailurePersistsNothing(t *testing.T) {
	f := newTestEngine(t, testEngineConfig())
	f.scan.initiateErr = &scanner.ScanError{Sentinel: scanner.ErrUnavailable, Operation: "initiate"}

	_, err := f.engine.Initiate(context.Background(), InitiateInput{Redirect: "https://app.example/done"})
	require.Error(t, err)
	assert.ErrorIs(t, err, scanner.ErrUnavailable)

	_, err = f.store.Get(context.Background(), "U1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEngine_ReconcileToReady(t *testing.T) {
	f := newTestEngine(t, testEngineConfig())
	seedPending(t, f.store, "U1", "project-42/plan")
	f.scan.statusFn = func(string) (*scanner.StatusResponse, error) { return readyDoc(), nil }

	rec, err := f.engine.Reconcile(context.Background(), "U1")
	require.NoError(t, err)

	assert.Equal(t, StatusReady, rec.Status)
	assert.Equal(t, "b", rec.StorageBucket)
	assert.Equal(t, "k", rec.StorageKey)
	assert.Equal(t, "plan.pdf", rec.Filename)
	assert.Equal(t, int64(1024), rec.ContentLength)
	assert.Equal(t, FileStatusScanned, rec.FileStatus)
	assert.False(t, rec.CompletedAt.IsZero())

	// Ready with a reference triggers the project writeback.
	require.Len(t, f.attach.attached, 1)
	att := f.attach.attached[0]
	assert.Equal(t, "project-42/plan", att.Reference)
	assert.Equal(t, "U1", att.UploadID)
	assert.Equal(t, "plan.pdf", att.Filename)
	assert.Contains(t, att.DownloadURL, "b/k")

	grant, err := f.engine.Download(context.Background(), "U1")
	require.NoError(t, err)
	assert.Contains(t, grant.URL, "expires=900")
	assert.Equal(t, 900*time.Second, grant.ExpiresIn)
}

func TestEngine_ReconcileToFailed(t *testing.T) {
	f := newTestEngine(t, testEngineConfig())
	seedPending(t, f.store, "U1", "")
	f.scan.statusFn = func(string) (*scanner.StatusResponse, error) {
		doc := readyDoc()
		doc.RejectedCount = 1
		doc.Form.File.RejectionReason = "Virus detected"
		return doc, nil
	}

	rec, err := f.engine.Reconcile(context.Background(), "U1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Equal(t, "Virus detected", rec.RejectionReason)
	assert.Equal(t, 1, rec.RejectedCount)
	assert.Empty(t, f.attach.attached, "failed uploads are never attached")

	_, err = f.engine.Download(context.Background(), "U1")
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestEngine_ReconcileExternalErrorMessage(t *testing.T) {
	f := newTestEngine(t, testEngineConfig())
	seedPending(t, f.store, "U1", "")
	f.scan.statusFn = func(string) (*scanner.StatusResponse, error) {
		doc := readyDoc()
		doc.Error = "scan aborted"
		return doc, nil
	}

	rec, err := f.engine.Reconcile(context.Background(), "U1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Equal(t, "scan aborted", rec.RejectionReason)
	assert.GreaterOrEqual(t, rec.RejectedCount, 1)
}

func TestEngine_ReconcileArchiveValidation(t *testing.T) {
	f := newTestEngine(t, testEngineConfig())
	seedPending(t, f.store, "U1", "")
	f.scan.statusFn = func(string) (*scanner.StatusResponse, error) {
		doc := readyDoc()
		doc.Form.File.ContentType = "application/zip"
		doc.Form.File.DetectedContentType = "application/zip"
		doc.Form.File.ArchiveEntries = []string{"doc.pdf", "malware.exe"}
		return doc, nil
	}

	rec, err := f.engine.Reconcile(context.Background(), "U1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Contains(t, rec.RejectionReason, "malware.exe")
	assert.GreaterOrEqual(t, rec.RejectedCount, 1)
}

func TestEngine_ReconcileTerminalUntouched(t *testing.T) {
	f := newTestEngine(t, testEngineConfig())
	seedReady(t, f.store, "U1")

	before, err := f.store.Get(context.Background(), "U1")
	require.NoError(t, err)

	rec, err := f.engine.Reconcile(context.Background(), "U1")
	require.NoError(t, err)
	assert.Equal(t, StatusReady, rec.Status)
	assert.Equal(t, before.UpdatedAt.UnixMilli(), rec.UpdatedAt.UnixMilli())
	assert.Zero(t, f.scan.statusCalls, "terminal records never hit the scan service")
}

func TestEngine_ReconcileSameExternalStatus(t *testing.T) {
	f := newTestEngine(t, testEngineConfig())
	seedPending(t, f.store, "U1", "")

	rec, err := f.engine.Reconcile(context.Background(), "U1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, rec.Status)
	assert.Equal(t, 1, f.scan.statusCalls)
}

func TestEngine_ReconcileMirrorsProcessing(t *testing.T) {
	f := newTestEngine(t, testEngineConfig())
	seedPending(t, f.store, "U1", "")
	f.scan.statusFn = func(string) (*scanner.StatusResponse, error) {
		return &scanner.StatusResponse{UploadStatus: "processing"}, nil
	}

	rec, err := f.engine.Reconcile(context.Background(), "U1")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, rec.Status)
}

func TestEngine_ReconcileUnknownExternalStatus(t *testing.T) {
	f := newTestEngine(t, testEngineConfig())
	seedPending(t, f.store, "U1", "")
	f.scan.statusFn = func(string) (*scanner.StatusResponse, error) {
		return &scanner.StatusResponse{UploadStatus: "defrosting"}, nil
	}

	rec, err := f.engine.Reconcile(context.Background(), "U1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, rec.Status, "unknown external states change nothing")
}

func TestEngine_ReconcileScanFailurePropagates(t *testing.T) {
	f := newTestEngine(t, testEngineConfig())
	seedPending(t, f.store, "U1", "")
	f.scan.statusFn = func(string) (*scanner.StatusResponse, error) {
		return nil, &scanner.ScanError{Sentinel: scanner.ErrUnavailable, Operation: "status"}
	}

	_, err := f.engine.Reconcile(context.Background(), "U1")
	require.Error(t, err)
	assert.ErrorIs(t, err, scanner.ErrUnavailable)

	rec, err := f.store.Get(context.Background(), "U1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, rec.Status, "a scan outage must not mark records terminal")
}

func TestEngine_WritebackRetriesOnce(t *testing.T) {
	f := newTestEngine(t, testEngineConfig())
	f.attach.failFirst = 1
	seedPending(t, f.store, "U1", "project-42/plan")
	f.scan.statusFn = func(string) (*scanner.StatusResponse, error) { return readyDoc(), nil }

	rec, err := f.engine.Reconcile(context.Background(), "U1")
	require.NoError(t, err)
	assert.Equal(t, StatusReady, rec.Status)
	assert.Equal(t, 2, f.attach.calls)
	assert.Len(t, f.attach.attached, 1)
}

func TestEngine_WritebackFailureNonFatal(t *testing.T) {
	f := newTestEngine(t, testEngineConfig())
	f.attach.failFirst = 2
	seedPending(t, f.store, "U1", "project-42/plan")
	f.scan.statusFn = func(string) (*scanner.StatusResponse, error) { return readyDoc(), nil }

	rec, err := f.engine.Reconcile(context.Background(), "U1")
	require.NoError(t, err, "writeback failure must not fail the reconcile")
	assert.Equal(t, StatusReady, rec.Status)
	assert.Equal(t, 2, f.attach.calls, "exactly one retry")
	assert.Empty(t, f.attach.attached)
}

func TestEngine_WritebackSkippedWithoutReference(t *testing.T) {
	f := newTestEngine(t, testEngineConfig())
	seedPending(t, f.store, "U1", "")
	f.scan.statusFn = func(string) (*scanner.StatusResponse, error) { return readyDoc(), nil }

	rec, err := f.engine.Reconcile(context.Background(), "U1")
	require.NoError(t, err)
	assert.Equal(t, StatusReady, rec.Status)
	assert.Zero(t, f.attach.calls)
	assert.Zero(t, f.objects.presigns)
}

func TestEngine_DownloadQuarantined(t *testing.T) {
	f := newTestEngine(t, testEngineConfig())
	seedReady(t, f.store, "U1")
	_, err := f.store.Update(context.Background(), "U1", func(r *Record) error {
		r.FileStatus = FileStatusQuarantined
		return nil
	})
	require.NoError(t, err)

	_, err = f.engine.Download(context.Background(), "U1")
	assert.ErrorIs(t, err, ErrQuarantined)
}

func TestEngine_DownloadQuarantinedBeatsNotReady(t *testing.T) {
	// Quarantine refusal applies regardless of the lifecycle state.
	f := newTestEngine(t, testEngineConfig())
	seedPending(t, f.store, "U1", "")
	_, err := f.store.Update(context.Background(), "U1", func(r *Record) error {
		r.Status = StatusFailed
		r.FileStatus = FileStatusQuarantined
		return nil
	})
	require.NoError(t, err)

	_, err = f.engine.Download(context.Background(), "U1")
	assert.ErrorIs(t, err, ErrQuarantined)
	assert.NotErrorIs(t, err, ErrNotReady)
}

func TestEngine_DownloadStorageMissing(t *testing.T) {
	f := newTestEngine(t, testEngineConfig())
	seedPending(t, f.store, "U1", "")
	_, err := f.store.Update(context.Background(), "U1", func(r *Record) error {
		r.Status = StatusReady
		r.FileStatus = FileStatusScanned
		return nil
	})
	require.NoError(t, err)

	_, err = f.engine.Download(context.Background(), "U1")
	assert.ErrorIs(t, err, ErrStorageMissing)
}

func TestEngine_DownloadUnknownID(t *testing.T) {
	f := newTestEngine(t, testEngineConfig())

	_, err := f.engine.Download(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEngine_DeleteIdempotent(t *testing.T) {
	f := newTestEngine(t, testEngineConfig())
	seedReady(t, f.store, "U1")

	rec, err := f.engine.Delete(context.Background(), "U1")
	require.NoError(t, err)
	assert.Equal(t, StatusDeleted, rec.Status)
	assert.Equal(t, 1, f.objects.deletes)

	// Retrying the delete succeeds without touching storage again.
	rec, err = f.engine.Delete(context.Background(), "U1")
	require.NoError(t, err)
	assert.Equal(t, StatusDeleted, rec.Status)
	assert.Equal(t, 1, f.objects.deletes)
}

func TestEngine_DeleteObjectStoreFailureKeepsRecord(t *testing.T) {
	f := newTestEngine(t, testEngineConfig())
	seedReady(t, f.store, "U1")
	f.objects.deleteErr = errors.New("s3 down")

	_, err := f.engine.Delete(context.Background(), "U1")
	require.Error(t, err)

	rec, err := f.store.Get(context.Background(), "U1")
	require.NoError(t, err)
	assert.Equal(t, StatusReady, rec.Status, "record stays ready so the delete can be retried")
}

func TestEngine_DeleteRejectsNonReady(t *testing.T) {
	f := newTestEngine(t, testEngineConfig())
	seedPending(t, f.store, "U1", "")

	_, err := f.engine.Delete(context.Background(), "U1")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Zero(t, f.objects.deletes)
}

func TestEngine_CallbackDisabled(t *testing.T) {
	f := newTestEngine(t, testEngineConfig())
	seedPending(t, f.store, "U1", "")

	_, err := f.engine.HandleCallback(context.Background(), "U1")
	assert.ErrorIs(t, err, ErrCallbackDisabled)
	assert.Zero(t, f.scan.statusCalls)
}

func TestEngine_CallbackReconciles(t *testing.T) {
	cfg := testEngineConfig()
	cfg.CallbackEnabled = true
	cfg.CallbackBaseURL = "https://flood.example"
	f := newTestEngine(t, cfg)
	seedPending(t, f.store, "U1", "")
	f.scan.statusFn = func(string) (*scanner.StatusResponse, error) { return readyDoc(), nil }

	rec, err := f.engine.HandleCallback(context.Background(), "U1")
	require.NoError(t, err)
	assert.Equal(t, StatusReady, rec.Status)
}

func TestEngine_SweepStale(t *testing.T) {
	f := newTestEngine(t, testEngineConfig())
	ctx := context.Background()

	old := pendingRecord("stale")
	old.CreatedAt = time.Now().Add(-48 * time.Hour)
	require.NoError(t, f.store.Create(ctx, old))

	resolvable := pendingRecord("resolvable")
	resolvable.CreatedAt = time.Now().Add(-48 * time.Hour)
	require.NoError(t, f.store.Create(ctx, resolvable))

	require.NoError(t, f.store.Create(ctx, pendingRecord("fresh")))

	f.scan.statusFn = func(uploadID string) (*scanner.StatusResponse, error) {
		if uploadID == "resolvable" {
			return readyDoc(), nil
		}
		return &scanner.StatusResponse{UploadStatus: "pending"}, nil
	}

	closed, err := f.engine.SweepStale(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, closed)

	stale, err := f.store.Get(ctx, "stale")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, stale.Status)
	assert.Contains(t, stale.RejectionReason, "expired")

	resolved, err := f.store.Get(ctx, "resolvable")
	require.NoError(t, err)
	assert.Equal(t, StatusReady, resolved.Status, "the final reconcile wins over expiry")

	fresh, err := f.store.Get(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, fresh.Status)
}

func TestEngine_SweepStaleScannerForgot(t *testing.T) {
	f := newTestEngine(t, testEngineConfig())
	ctx := context.Background()

	old := pendingRecord("forgotten")
	old.CreatedAt = time.Now().Add(-48 * time.Hour)
	require.NoError(t, f.store.Create(ctx, old))

	f.scan.statusFn = func(string) (*scanner.StatusResponse, error) {
		return nil, &scanner.ScanError{Sentinel: scanner.ErrNotFound, Operation: "status", Status: 404}
	}

	closed, err := f.engine.SweepStale(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, closed)

	rec, err := f.store.Get(ctx, "forgotten")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, rec.Status)
}

func TestEngine_SweepStaleSkipsOnOutage(t *testing.T) {
	f := newTestEngine(t, testEngineConfig())
	ctx := context.Background()

	old := pendingRecord("stale")
	old.CreatedAt = time.Now().Add(-48 * time.Hour)
	require.NoError(t, f.store.Create(ctx, old))

	f.scan.statusFn = func(string) (*scanner.StatusResponse, error) {
		return nil, &scanner.ScanError{Sentinel: scanner.ErrUnavailable, Operation: "status"}
	}

	closed, err := f.engine.SweepStale(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, closed)

	rec, err := f.store.Get(ctx, "stale")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, rec.Status, "a scan outage must not expire records")
}
