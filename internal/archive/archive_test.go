package archive

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/loqalabs/quoteplay/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// wavConverter writes a mono 22050 Hz file instead of shelling out.
type wavConverter struct {
	inputs []string
	err    error
}

func (w *wavConverter) Convert(_ context.Context, input, output string) error {
	w.inputs = append(w.inputs, input)
	if w.err != nil {
		return w.err
	}
	if _, err := os.Stat(input); err != nil {
		return err
	}
	f, err := os.Create(output)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := wav.NewEncoder(f, 22050, 16, 1, 1)
	buf := &audio.IntBuffer{Format: &audio.Format{NumChannels: 1, SampleRate: 22050}, Data: make([]int, 441)}
	if err := enc.Write(buf); err != nil {
		return err
	}
	return enc.Close()
}

func newArchiver(t *testing.T, conv Converter) (*Archiver, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "samples")
	cfg := config.ArchiveConfig{Directory: dir, TranscriptFile: "transcript.txt"}
	return New(cfg, conv, newLogger()), dir
}

func TestStoreNumbersAndTranscribes(t *testing.T) {
	conv := &wavConverter{}
	a, dir := newArchiver(t, conv)

	first, err := a.Store(context.Background(), "Do or do not.", []byte("raw"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	second, err := a.Store(context.Background(), "There is no try.", []byte("raw"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if first.Number != 1 || second.Number != 2 {
		t.Fatalf("expected sequential numbers, got %d and %d", first.Number, second.Number)
	}
	if first.SampleRate != 22050 || first.Channels != 1 || first.BitDepth != 16 {
		t.Fatalf("unexpected header %+v", first)
	}

	data, err := os.ReadFile(filepath.Join(dir, "transcript.txt"))
	if err != nil {
		t.Fatalf("read transcript: %v", err)
	}
	want := "samples/1.wav|Do or do not.\nsamples/2.wav|There is no try.\n"
	if string(data) != want {
		t.Fatalf("unexpected transcript %q", data)
	}

	for _, raw := range conv.inputs {
		if _, err := os.Stat(raw); !os.IsNotExist(err) {
			t.Fatalf("expected raw file %s removed", raw)
		}
	}
}

func TestStoreContinuesAfterHighestNumber(t *testing.T) {
	a, dir := newArchiver(t, &wavConverter{})
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, name := range []string{"3.wav", "11.wav", "notes.wav", "7.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatalf("seed %s: %v", name, err)
		}
	}
	entry, err := a.Store(context.Background(), "Patience.", []byte("raw"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if entry.Number != 12 || filepath.Base(entry.Path) != "12.wav" {
		t.Fatalf("expected 12.wav, got %+v", entry)
	}
}

func TestStoreConversionFailure(t *testing.T) {
	conv := &wavConverter{err: errors.New("ffmpeg: not found")}
	a, dir := newArchiver(t, conv)

	entry, err := a.Store(context.Background(), "Fear leads to anger.", []byte("raw"))
	if err == nil {
		t.Fatal("expected conversion error")
	}
	if !strings.Contains(err.Error(), entry.RawPath) {
		t.Fatalf("expected raw path in %q", err.Error())
	}
	if _, err := os.Stat(entry.RawPath); !os.IsNotExist(err) {
		t.Fatal("expected raw file removed after failure")
	}
	if _, err := os.Stat(filepath.Join(dir, "transcript.txt")); !os.IsNotExist(err) {
		t.Fatal("transcript must not be written on failure")
	}
}

type garbageConverter struct{}

func (garbageConverter) Convert(_ context.Context, _, output string) error {
	return os.WriteFile(output, []byte("not a wav"), 0o644)
}

func TestStoreRejectsInvalidOutput(t *testing.T) {
	a, dir := newArchiver(t, garbageConverter{})
	entry, err := a.Store(context.Background(), "Hmm.", []byte("raw"))
	if err == nil {
		t.Fatal("expected header verification error")
	}
	if _, err := os.Stat(entry.Path); !os.IsNotExist(err) {
		t.Fatal("expected invalid output removed")
	}
	if _, err := os.Stat(filepath.Join(dir, "transcript.txt")); !os.IsNotExist(err) {
		t.Fatal("transcript must not be written on failure")
	}
}

func TestCommandConverter(t *testing.T) {
	if _, err := NewCommandConverter("ffmpeg -i {input}"); err == nil {
		t.Fatal("expected missing output placeholder error")
	}
	if _, err := NewCommandConverter(""); err == nil {
		t.Fatal("expected empty command error")
	}

	conv, err := NewCommandConverter(config.DefaultConvertCommand)
	if err != nil {
		t.Fatalf("new converter: %v", err)
	}
	var gotName string
	var gotArgs []string
	conv.(*commandConverter).run = func(_ context.Context, name string, args ...string) error {
		gotName, gotArgs = name, args
		return nil
	}
	if err := conv.Convert(context.Background(), "/tmp/in.wav", "/tmp/out.wav"); err != nil {
		t.Fatalf("convert: %v", err)
	}
	want := []string{"-y", "-loglevel", "error", "-i", "/tmp/in.wav", "-ac", "1", "-ar", "22050", "-sample_fmt", "s16", "/tmp/out.wav"}
	if gotName != "ffmpeg" || !reflect.DeepEqual(gotArgs, want) {
		t.Fatalf("unexpected invocation %s %v", gotName, gotArgs)
	}
}

func TestNextNumberEmptyDir(t *testing.T) {
	n, err := NextNumber(t.TempDir())
	if err != nil {
		t.Fatalf("next number: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1, got %d", n)
	}
}
