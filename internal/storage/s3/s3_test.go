package s3

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	appconfig "github.com/pwd-registry/pwd-registry/internal/config"
)

// ---------------------------------------------------------------------------
// New() constructor validation (no AWS connection required)
// ---------------------------------------------------------------------------

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  appconfig.S3StorageConfig
	}{
		{"missing bucket", appconfig.S3StorageConfig{Region: "ap-southeast-1"}},
		{"missing region", appconfig.S3StorageConfig{Bucket: "archives"}},
		{"static without keys", appconfig.S3StorageConfig{Bucket: "archives", Region: "ap-southeast-1", AuthMethod: "static"}},
		{"assume_role without role", appconfig.S3StorageConfig{Bucket: "archives", Region: "ap-southeast-1", AuthMethod: "assume_role"}},
		{"oidc is not offered", appconfig.S3StorageConfig{Bucket: "archives", Region: "ap-southeast-1", AuthMethod: "oidc"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(&tt.cfg); err == nil {
				t.Error("New() = nil error, want validation error")
			}
		})
	}
}

func TestNew_AssumeRole_IsLazy(t *testing.T) {
	s, err := New(&appconfig.S3StorageConfig{
		Bucket:     "archives",
		Region:     "ap-southeast-1",
		AuthMethod: "assume_role",
		RoleARN:    "arn:aws:iam::123456789012:role/pwd-archive",
		ExternalID: "lgu-pagsanjan",
	})
	if err != nil {
		t.Fatalf("New() error = %v; assume_role should not call STS at construction", err)
	}
	if s.bucket != "archives" {
		t.Errorf("bucket = %q", s.bucket)
	}
}

func TestNew_ImplicitStatic(t *testing.T) {
	if _, err := New(&appconfig.S3StorageConfig{
		Bucket:          "archives",
		Region:          "us-east-1",
		AccessKeyID:     "k",
		SecretAccessKey: "s",
		Endpoint:        "http://localhost:9000",
	}); err != nil {
		t.Fatalf("New() error: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Mock S3-compatible HTTP server (path-style) for object operations
// ---------------------------------------------------------------------------

type s3Object struct {
	data         []byte
	meta         map[string]string
	storageClass string
}

type s3MockStore struct {
	mu      sync.Mutex
	objects map[string]*s3Object
	headErr int
}

func newS3TestStorage(t *testing.T) (*S3Storage, *s3MockStore) {
	t.Helper()
	ms := &s3MockStore{objects: map[string]*s3Object{}}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/"), "archives/")

		ms.mu.Lock()
		defer ms.mu.Unlock()

		switch r.Method {
		case http.MethodPut:
			data, _ := io.ReadAll(r.Body)
			meta := map[string]string{}
			for hk, hv := range r.Header {
				if lk := strings.ToLower(hk); strings.HasPrefix(lk, "x-amz-meta-") && len(hv) > 0 {
					meta[strings.TrimPrefix(lk, "x-amz-meta-")] = hv[0]
				}
			}
			ms.objects[key] = &s3Object{data: data, meta: meta, storageClass: r.Header.Get("X-Amz-Storage-Class")}
			w.Header().Set("ETag", `"test-etag"`)
			w.WriteHeader(http.StatusOK)

		case http.MethodGet:
			obj, ok := ms.objects[key]
			if !ok {
				w.Header().Set("Content-Type", "application/xml")
				w.WriteHeader(http.StatusNotFound)
				fmt.Fprint(w, `<?xml version="1.0"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
				return
			}
			w.Header().Set("Content-Length", fmt.Sprintf("%d", len(obj.data)))
			w.WriteHeader(http.StatusOK)
			w.Write(obj.data)

		case http.MethodHead:
			if ms.headErr != 0 {
				w.WriteHeader(ms.headErr)
				return
			}
			obj, ok := ms.objects[key]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Length", fmt.Sprintf("%d", len(obj.data)))
			w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
			w.WriteHeader(http.StatusOK)

		case http.MethodDelete:
			delete(ms.objects, key)
			w.WriteHeader(http.StatusNoContent)

		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	t.Cleanup(srv.Close)

	s, err := New(&appconfig.S3StorageConfig{
		Bucket:          "archives",
		Region:          "us-east-1",
		AuthMethod:      "static",
		AccessKeyID:     "test-access-key",
		SecretAccessKey: "test-secret-key",
		Endpoint:        srv.URL,
	})
	if err != nil {
		t.Fatalf("New() for mock S3: %v", err)
	}
	return s, ms
}

// ---------------------------------------------------------------------------
// Upload / Download
// ---------------------------------------------------------------------------

func TestS3_Upload(t *testing.T) {
	s, ms := newS3TestStorage(t)

	data := []byte(`{"id":"a-1","action":"updated"}` + "\n")
	result, err := s.Upload(context.Background(), "activity-logs/2026/2026-09.jsonl", bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("Upload() error: %v", err)
	}

	sum := sha256.Sum256(data)
	want := hex.EncodeToString(sum[:])
	if result.Size != int64(len(data)) || result.Checksum != want {
		t.Errorf("Upload() = %+v, want size %d checksum %s", result, len(data), want)
	}

	obj := ms.objects["activity-logs/2026/2026-09.jsonl"]
	if obj == nil {
		t.Fatal("object not stored under the expected key")
	}
	if obj.meta["sha256"] != want {
		t.Errorf("sha256 metadata = %q, want %q", obj.meta["sha256"], want)
	}
	if obj.storageClass != "STANDARD_IA" {
		t.Errorf("storage class = %q, want STANDARD_IA", obj.storageClass)
	}
}

func TestS3_Download(t *testing.T) {
	s, _ := newS3TestStorage(t)
	ctx := context.Background()

	want := []byte("download me from s3")
	if _, err := s.Upload(ctx, "dl.jsonl", bytes.NewReader(want), int64(len(want))); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	rc, err := s.Download(ctx, "dl.jsonl")
	if err != nil {
		t.Fatalf("Download() error: %v", err)
	}
	got, _ := io.ReadAll(rc)
	rc.Close()
	if !bytes.Equal(got, want) {
		t.Errorf("Download content = %q, want %q", got, want)
	}
}

func TestS3_Download_NotFound(t *testing.T) {
	s, _ := newS3TestStorage(t)
	if _, err := s.Download(context.Background(), "nonexistent.jsonl"); err == nil {
		t.Error("Download() expected error for missing key, got nil")
	}
}

// ---------------------------------------------------------------------------
// Delete / Exists
// ---------------------------------------------------------------------------

func TestS3_DeleteAndExists(t *testing.T) {
	s, _ := newS3TestStorage(t)
	ctx := context.Background()

	if _, err := s.Upload(ctx, "todel.jsonl", strings.NewReader("x"), 1); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	ok, err := s.Exists(ctx, "todel.jsonl")
	if err != nil || !ok {
		t.Fatalf("Exists() before delete = %v, %v", ok, err)
	}

	if err := s.Delete(ctx, "todel.jsonl"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	ok, err = s.Exists(ctx, "todel.jsonl")
	if err != nil {
		t.Fatalf("Exists() after delete error: %v", err)
	}
	if ok {
		t.Error("Exists = true after delete, want false")
	}
}

func TestS3_Exists_PropagatesServerErrors(t *testing.T) {
	s, ms := newS3TestStorage(t)
	ms.headErr = http.StatusForbidden

	if _, err := s.Exists(context.Background(), "any.jsonl"); err == nil {
		t.Error("Exists() = nil error on 403, want error")
	}
}
