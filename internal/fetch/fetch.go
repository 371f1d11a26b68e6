package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/loqalabs/quoteplay/internal/inference"
)

// maxAudioBytes bounds a single download.
const maxAudioBytes = 64 << 20

// Fetcher downloads synthesized audio.
type Fetcher struct {
	httpClient *http.Client
	tempDir    string
}

func New(httpClient *http.Client) *Fetcher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Fetcher{httpClient: httpClient}
}

// WithTempDir stages files under dir instead of os.TempDir.
func (f *Fetcher) WithTempDir(dir string) *Fetcher {
	f.tempDir = dir
	return f
}

// Download reads the whole payload at url into memory.
func (f *Fetcher) Download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &inference.Error{Kind: inference.KindDownloadFailed, Err: err}
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, &inference.Error{Kind: inference.KindDownloadFailed, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &inference.Error{Kind: inference.KindDownloadFailed, Reason: "server returned " + resp.Status}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes+1))
	if err != nil {
		return nil, &inference.Error{Kind: inference.KindDownloadFailed, Err: fmt.Errorf("read body: %w", err)}
	}
	if len(data) > maxAudioBytes {
		return nil, &inference.Error{Kind: inference.KindDownloadFailed, Reason: "audio exceeds size limit"}
	}
	if len(data) == 0 {
		return nil, &inference.Error{Kind: inference.KindDownloadFailed, Reason: "empty audio payload"}
	}
	return data, nil
}

// Staged is a transient audio file owned by one invocation.
type Staged struct {
	Path string
}

// Stage writes data to a fresh .wav file. Callers must defer Release.
func (f *Fetcher) Stage(data []byte) (*Staged, error) {
	file, err := os.CreateTemp(f.tempDir, "quoteplay_*.wav")
	if err != nil {
		return nil, fmt.Errorf("temp file: %w", err)
	}
	staged := &Staged{Path: file.Name()}
	if _, err := file.Write(data); err != nil {
		file.Close()
		staged.Release()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := file.Close(); err != nil {
		staged.Release()
		return nil, fmt.Errorf("close temp file: %w", err)
	}
	return staged, nil
}

// Release removes the file. Safe to call more than once.
func (s *Staged) Release() error {
	if s == nil || s.Path == "" {
		return nil
	}
	err := os.Remove(s.Path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
