package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/loqalabs/quoteplay/internal/inference"
)

func TestDownload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("RIFFdata"))
	}))
	defer server.Close()

	data, err := New(server.Client()).Download(context.Background(), server.URL+"/a.wav")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if string(data) != "RIFFdata" {
		t.Fatalf("unexpected payload %q", data)
	}
}

func TestDownloadFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/empty.wav" {
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	f := New(server.Client())
	for _, path := range []string{"/missing.wav", "/empty.wav"} {
		if _, err := f.Download(context.Background(), server.URL+path); !errors.Is(err, inference.ErrDownloadFailed) {
			t.Fatalf("%s: expected download failure, got %v", path, err)
		}
	}

	closed := httptest.NewServer(http.NotFoundHandler())
	addr := closed.URL
	closed.Close()
	if _, err := New(nil).Download(context.Background(), addr); !errors.Is(err, inference.ErrDownloadFailed) {
		t.Fatalf("expected download failure on refused connection, got %v", err)
	}
}

func TestStageAndRelease(t *testing.T) {
	dir := t.TempDir()
	staged, err := New(nil).WithTempDir(dir).Stage([]byte("RIFF"))
	if err != nil {
		t.Fatalf("stage: %v", err)
	}
	if _, err := os.Stat(staged.Path); err != nil {
		t.Fatalf("staged file missing: %v", err)
	}
	if err := staged.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := os.Stat(staged.Path); !os.IsNotExist(err) {
		t.Fatalf("expected file removed, stat err %v", err)
	}
	if err := staged.Release(); err != nil {
		t.Fatalf("second release: %v", err)
	}
}

func TestReleaseRunsOnPanic(t *testing.T) {
	dir := t.TempDir()
	var path string
	func() {
		defer func() { _ = recover() }()
		staged, err := New(nil).WithTempDir(dir).Stage([]byte("RIFF"))
		if err != nil {
			t.Fatalf("stage: %v", err)
		}
		defer staged.Release()
		path = staged.Path
		panic("player exploded")
	}()
	if path == "" {
		t.Fatal("expected a staged path")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected file removed after panic, stat err %v", err)
	}
}
