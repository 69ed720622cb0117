package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/academy/billing/internal/domain/document"
	"github.com/academy/billing/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewS3Archive_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.StorageConfig
		wantErr string
	}{
		{"nil config", nil, "configuration is required"},
		{"missing bucket", &config.StorageConfig{AccessKeyID: "k", SecretAccessKey: "s"}, "bucket is required"},
		{"half credentials", &config.StorageConfig{Bucket: "b", AccessKeyID: "k"}, "must be set together"},
		{"bad endpoint", &config.StorageConfig{Bucket: "b", Endpoint: "localhost:9000"}, "invalid storage endpoint"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewS3Archive(context.Background(), tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("valid config", func(t *testing.T) {
		a, err := NewS3Archive(context.Background(), &config.StorageConfig{
			Bucket: "documents", AccessKeyID: "k", SecretAccessKey: "s", Endpoint: "http://localhost:9000", UsePathStyle: true,
		})
		require.NoError(t, err)
		assert.Equal(t, "documents", a.Bucket())
	})
}

type recordedRequest struct {
	method      string
	path        string
	contentType string
}

func newFakeS3(t *testing.T, status int) (*S3Archive, *[]recordedRequest) {
	t.Helper()
	var mu sync.Mutex
	var reqs []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		reqs = append(reqs, recordedRequest{r.Method, r.URL.Path, r.Header.Get("Content-Type")})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)

	a, err := NewS3Archive(context.Background(), &config.StorageConfig{
		Bucket: "documents", Region: "sa-east-1", AccessKeyID: "k", SecretAccessKey: "s",
		Endpoint: srv.URL, UsePathStyle: true,
	})
	require.NoError(t, err)
	return a, &reqs
}

func TestS3Archive_Upload(t *testing.T) {
	t.Run("puts the object under the key", func(t *testing.T) {
		a, reqs := newFakeS3(t, http.StatusOK)
		err := a.Upload(context.Background(), document.ReceiptKey("FAT-000001"), []byte("%PDF-1.7"), document.ContentTypePDF)
		require.NoError(t, err)
		require.Len(t, *reqs, 1)
		assert.Equal(t, http.MethodPut, (*reqs)[0].method)
		assert.Equal(t, "/documents/receipts/FAT-000001.pdf", (*reqs)[0].path)
		assert.Equal(t, document.ContentTypePDF, (*reqs)[0].contentType)
	})

	t.Run("empty key", func(t *testing.T) {
		a, reqs := newFakeS3(t, http.StatusOK)
		assert.Error(t, a.Upload(context.Background(), "", []byte("x"), document.ContentTypePDF))
		assert.Empty(t, *reqs)
	})

	t.Run("server error", func(t *testing.T) {
		a, _ := newFakeS3(t, http.StatusForbidden)
		err := a.Upload(context.Background(), "contracts/x/1.pdf", []byte("x"), document.ContentTypePDF)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to upload object")
	})
}

func TestS3Archive_EnsureBucket(t *testing.T) {
	a, reqs := newFakeS3(t, http.StatusOK)
	require.NoError(t, a.EnsureBucket(context.Background()))
	require.Len(t, *reqs, 1)
	assert.Equal(t, http.MethodHead, (*reqs)[0].method)
	assert.Contains(t, (*reqs)[0].path, "/documents")
}
