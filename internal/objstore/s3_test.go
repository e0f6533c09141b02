// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package objstore

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions(endpoint string) Options {
	return Options{
		Region:          "eu-central-1",
		Endpoint:        endpoint,
		AccessKeyID:     "test-access-key",
		SecretAccessKey: "test-secret",
	}
}

func TestPresignedDownload(t *testing.T) {
	store, err := NewS3Store(context.Background(), testOptions(""))
	require.NoError(t, err)

	before := time.Now()
	rawURL, expiresAt, err := store.PresignedDownload(context.Background(), "flood-uploads", "plans/p1.pdf", 900*time.Second, "plan.pdf")
	require.NoError(t, err)

	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	assert.Equal(t, "https", u.Scheme)
	assert.Contains(t, u.Host, "flood-uploads")
	assert.True(t, strings.HasSuffix(u.Path, "/plans/p1.pdf"), "path %q should end in the object key", u.Path)

	q := u.Query()
	assert.Equal(t, "900", q.Get("X-Amz-Expires"))
	assert.NotEmpty(t, q.Get("X-Amz-Signature"))
	assert.Contains(t, q.Get("response-content-disposition"), "plan.pdf")

	assert.WithinDuration(t, before.Add(900*time.Second), expiresAt, 5*time.Second)
}

func TestPresignedDownload_PathStyleEndpoint(t *testing.T) {
	store, err := NewS3Store(context.Background(), testOptions("http://localhost:9000"))
	require.NoError(t, err)

	rawURL, _, err := store.PresignedDownload(context.Background(), "b", "k", time.Minute, "")
	require.NoError(t, err)

	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", u.Host)
	assert.Equal(t, "/b/k", u.Path)
	assert.Empty(t, u.Query().Get("response-content-disposition"))
}

func TestGetObject(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/flood-uploads/plans/p1.pdf", r.URL.Path)
		_, _ = w.Write([]byte("pdf-bytes"))
	}))
	defer ts.Close()

	store, err := NewS3Store(context.Background(), testOptions(ts.URL))
	require.NoError(t, err)

	body, err := store.GetObject(context.Background(), "flood-uploads", "plans/p1.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("pdf-bytes"), body)
}

func TestGetObject_MissingKey(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`))
	}))
	defer ts.Close()

	store, err := NewS3Store(context.Background(), testOptions(ts.URL))
	require.NoError(t, err)

	_, err = store.GetObject(context.Background(), "b", "gone")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrObjectMissing), "got %v", err)
}

func TestDeleteObject(t *testing.T) {
	var deleted bool
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		require.Equal(t, "/flood-uploads/plans/p1.pdf", r.URL.Path)
		deleted = true
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	store, err := NewS3Store(context.Background(), testOptions(ts.URL))
	require.NoError(t, err)

	require.NoError(t, store.DeleteObject(context.Background(), "flood-uploads", "plans/p1.pdf"))
	assert.True(t, deleted)
}

func TestContentDisposition(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		want     string
	}{
		{"plain ascii", "plan.pdf", "attachment; filename=plan.pdf"},
		{"spaces quoted", "flood plan.pdf", `attachment; filename="flood plan.pdf"`},
		{"empty", "  ", "attachment"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, contentDisposition(tt.filename))
		})
	}

	// Non-ASCII names switch to the RFC 2231 extended form.
	v := contentDisposition("überschwemmung.pdf")
	assert.Contains(t, v, "utf-8''")
}
