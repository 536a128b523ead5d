package store

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type fakeS3 struct {
	failures int
	calls    []*s3.PutObjectInput
	bodies   [][]byte
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.calls = append(f.calls, in)
	f.bodies = append(f.bodies, body)
	if len(f.calls) <= f.failures {
		return nil, errors.New("simulated remote error")
	}
	return &s3.PutObjectOutput{}, nil
}

func newTestUploader(api s3API, cfg Config) (*Uploader, *[]time.Duration) {
	u := newUploader(api, cfg, nil)
	sleeps := &[]time.Duration{}
	u.sleep = func(d time.Duration) { *sleeps = append(*sleeps, d) }
	return u, sleeps
}

func TestUploadFileSetsEncryptionAndContentType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "part.jsonl.gz")
	if err := os.WriteFile(path, []byte("payload"), 0o600); err != nil {
		t.Fatal(err)
	}
	api := &fakeS3{}
	u, _ := newTestUploader(api, Config{Bucket: "raw"})

	if err := u.UploadFile(context.Background(), path, "raw/k"); err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	if len(api.calls) != 1 {
		t.Fatalf("calls = %d", len(api.calls))
	}
	in := api.calls[0]
	if *in.Bucket != "raw" || *in.Key != "raw/k" {
		t.Fatalf("bucket/key = %s/%s", *in.Bucket, *in.Key)
	}
	if *in.ContentType != "application/octet-stream" {
		t.Fatalf("content type = %s", *in.ContentType)
	}
	if in.ServerSideEncryption != types.ServerSideEncryptionAes256 {
		t.Fatalf("sse = %s", in.ServerSideEncryption)
	}
	if string(api.bodies[0]) != "payload" {
		t.Fatalf("body = %q", api.bodies[0])
	}
}

func TestUploadJSONContentType(t *testing.T) {
	api := &fakeS3{}
	u, _ := newTestUploader(api, Config{Bucket: "raw"})

	doc := map[string]any{"version": "1"}
	if err := u.UploadJSON(context.Background(), doc, "raw/manifest.json"); err != nil {
		t.Fatalf("UploadJSON: %v", err)
	}
	if got := *api.calls[0].ContentType; got != "application/json" {
		t.Fatalf("content type = %s", got)
	}
	var decoded map[string]any
	if err := json.Unmarshal(api.bodies[0], &decoded); err != nil {
		t.Fatalf("uploaded body is not JSON: %v", err)
	}
	if decoded["version"] != "1" {
		t.Fatalf("decoded = %+v", decoded)
	}
}

func TestRetryBackoffAndRecovery(t *testing.T) {
	api := &fakeS3{failures: 2}
	u, sleeps := newTestUploader(api, Config{Bucket: "raw"})

	if err := u.put(context.Background(), []byte("x"), "k", "application/octet-stream"); err != nil {
		t.Fatalf("expected recovery on third attempt, got %v", err)
	}
	if len(api.calls) != 3 {
		t.Fatalf("attempts = %d, want 3", len(api.calls))
	}
	// base^attempt seconds: 2s after attempt 1, 4s after attempt 2.
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(*sleeps) != len(want) {
		t.Fatalf("sleeps = %v", *sleeps)
	}
	for i := range want {
		if (*sleeps)[i] != want[i] {
			t.Fatalf("sleep[%d] = %v, want %v", i, (*sleeps)[i], want[i])
		}
	}
	// Each attempt must re-send the full body.
	for i, b := range api.bodies {
		if string(b) != "x" {
			t.Fatalf("attempt %d body = %q", i+1, b)
		}
	}
}

func TestRetryExhaustionReturnsError(t *testing.T) {
	api := &fakeS3{failures: 10}
	u, sleeps := newTestUploader(api, Config{Bucket: "raw", MaxRetries: 3})

	err := u.put(context.Background(), []byte("x"), "k", "application/octet-stream")
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if len(api.calls) != 3 {
		t.Fatalf("attempts = %d, want 3", len(api.calls))
	}
	// No sleep after the final attempt.
	if len(*sleeps) != 2 {
		t.Fatalf("sleeps = %v", *sleeps)
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{Bucket: "b"}
	cfg.withDefaults()
	if cfg.MaxRetries != 3 || cfg.BackoffBase != 2.0 {
		t.Fatalf("defaults = %+v", cfg)
	}
	if cfg.Encryption != types.ServerSideEncryptionAes256 {
		t.Fatalf("encryption default = %s", cfg.Encryption)
	}
}

func TestUploadFileMissing(t *testing.T) {
	api := &fakeS3{}
	u, _ := newTestUploader(api, Config{Bucket: "raw"})
	if err := u.UploadFile(context.Background(), filepath.Join(t.TempDir(), "nope"), "k"); err == nil {
		t.Fatal("expected error for missing local file")
	}
	if len(api.calls) != 0 {
		t.Fatalf("unexpected remote calls: %d", len(api.calls))
	}
}
