package gcs

import (
	"testing"

	appconfig "github.com/pwd-registry/pwd-registry/internal/config"
)

// ---------------------------------------------------------------------------
// New() constructor validation (no GCS connection required)
// ---------------------------------------------------------------------------

func TestNew_MissingBucket(t *testing.T) {
	if _, err := New(&appconfig.GCSStorageConfig{}); err == nil {
		t.Error("New() = nil error, want error for missing bucket")
	}
}

func TestNew_EmulatorEndpoint(t *testing.T) {
	s, err := New(&appconfig.GCSStorageConfig{
		Bucket:   "pwd-archives",
		Endpoint: "http://localhost:4443/storage/v1/",
	})
	if err != nil {
		t.Fatalf("New() with emulator endpoint error: %v", err)
	}
	defer s.Close()
	if s.bucket != "pwd-archives" {
		t.Errorf("bucket = %q", s.bucket)
	}
}

// ---------------------------------------------------------------------------
// clientOptions
// ---------------------------------------------------------------------------

func TestClientOptions(t *testing.T) {
	tests := []struct {
		name string
		cfg  appconfig.GCSStorageConfig
		want int
	}{
		{"adc", appconfig.GCSStorageConfig{}, 0},
		{"inline json", appconfig.GCSStorageConfig{CredentialsJSON: `{"type":"service_account"}`}, 1},
		{"key file", appconfig.GCSStorageConfig{CredentialsFile: "/etc/pwd/gcs.json"}, 1},
		{"emulator", appconfig.GCSStorageConfig{Endpoint: "http://localhost:4443/storage/v1/"}, 2},
		{"endpoint with key", appconfig.GCSStorageConfig{Endpoint: "https://storage.example/", CredentialsFile: "/k.json"}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(clientOptions(&tt.cfg)); got != tt.want {
				t.Errorf("clientOptions() returned %d options, want %d", got, tt.want)
			}
		})
	}
}
