package imagestore

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/glaucoscan/internal/config"
)

const testBucket = "archive"

// fakeS3 is a minimal path-style S3 endpoint.
type fakeS3 struct {
	mu          sync.Mutex
	bucket      bool
	denyPuts    bool
	requests    []string
	contentType string
	body        []byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)

	bucketPath := "/" + testBucket
	switch {
	case r.Method == http.MethodHead && r.URL.Path == bucketPath:
		if !f.bucket {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut && r.URL.Path == bucketPath:
		f.bucket = true
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, bucketPath+"/"):
		if f.denyPuts {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusForbidden)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>AccessDenied</Code><Message>Access Denied</Message></Error>`)
			return
		}
		f.contentType = r.Header.Get("Content-Type")
		f.body, _ = io.ReadAll(r.Body)
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func (f *fakeS3) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

func newTestArchiver(t *testing.T, fake *fakeS3) *S3Archiver {
	t.Helper()
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(t.TempDir(), "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(t.TempDir(), "credentials"))

	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	archiver, err := NewS3Archiver(context.Background(), config.S3{
		Endpoint:        strings.TrimPrefix(srv.URL, "http://"),
		Region:          "us-east-1",
		Bucket:          testBucket,
		AccessKeyID:     "test",
		SecretAccessKey: "test-secret",
	}, zap.NewNop())
	require.NoError(t, err)
	return archiver
}

func storeUpload(t *testing.T, content string) *Stored {
	t.Helper()
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)
	stored, err := store.Save(context.Background(), strings.NewReader(content), "eye.png")
	require.NoError(t, err)
	return stored
}

func TestNewS3ArchiverCreatesMissingBucket(t *testing.T) {
	fake := &fakeS3{}
	newTestArchiver(t, fake)

	requests := fake.seen()
	require.GreaterOrEqual(t, len(requests), 3)
	assert.Equal(t, "HEAD /"+testBucket, requests[0])
	assert.Equal(t, "PUT /"+testBucket, requests[1])
	assert.Equal(t, "HEAD /"+testBucket, requests[2])
}

func TestNewS3ArchiverKeepsExistingBucket(t *testing.T) {
	fake := &fakeS3{bucket: true}
	newTestArchiver(t, fake)

	assert.Equal(t, []string{"HEAD /" + testBucket}, fake.seen())
}

func TestS3ArchiverUploadsUnderRelativePath(t *testing.T) {
	fake := &fakeS3{bucket: true}
	archiver := newTestArchiver(t, fake)
	stored := storeUpload(t, "retina-bytes")

	require.NoError(t, archiver.Archive(context.Background(), stored, "image/png"))

	requests := fake.seen()
	assert.Equal(t, "PUT /"+testBucket+"/"+stored.RelPath, requests[len(requests)-1])
	assert.True(t, strings.HasPrefix(stored.RelPath, UploadsDir+"/"))
	assert.Equal(t, "image/png", fake.contentType)
	assert.Contains(t, string(fake.body), "retina-bytes")
}

func TestS3ArchiverWrapsUploadErrors(t *testing.T) {
	fake := &fakeS3{bucket: true, denyPuts: true}
	archiver := newTestArchiver(t, fake)
	stored := storeUpload(t, "retina-bytes")

	err := archiver.Archive(context.Background(), stored, "image/png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), stored.RelPath)

	var apiErr smithy.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "AccessDenied", apiErr.ErrorCode())
}

func TestS3ArchiverRequiresBucket(t *testing.T) {
	_, err := NewS3Archiver(context.Background(), config.S3{Region: "us-east-1"}, zap.NewNop())
	require.Error(t, err)
}
