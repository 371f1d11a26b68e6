// Package archive keeps synthesized quotes as numbered, normalized WAV
// samples with a transcript index.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/go-audio/wav"
	"github.com/google/uuid"
	"github.com/mattn/go-shellwords"

	"github.com/loqalabs/quoteplay/internal/config"
)

const (
	InputPlaceholder  = "{input}"
	OutputPlaceholder = "{output}"
)

// Converter normalizes a raw download into the archive format.
type Converter interface {
	Convert(ctx context.Context, input, output string) error
}

type commandConverter struct {
	args []string
	run  func(ctx context.Context, name string, args ...string) error
}

// NewCommandConverter parses a converter command line containing the
// {input} and {output} placeholders.
func NewCommandConverter(command string) (Converter, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse convert command: %w", err)
	}
	if len(args) == 0 {
		return nil, errors.New("convert command is empty")
	}
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, InputPlaceholder) || !strings.Contains(joined, OutputPlaceholder) {
		return nil, fmt.Errorf("convert command must reference %s and %s", InputPlaceholder, OutputPlaceholder)
	}
	return &commandConverter{args: args, run: runCommand}, nil
}

func (c *commandConverter) Convert(ctx context.Context, input, output string) error {
	args := make([]string, len(c.args))
	for i, a := range c.args {
		a = strings.ReplaceAll(a, InputPlaceholder, input)
		args[i] = strings.ReplaceAll(a, OutputPlaceholder, output)
	}
	return c.run(ctx, args[0], args[1:]...)
}

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s failed: %w: %s", name, err, msg)
		}
		return fmt.Errorf("%s failed: %w", name, err)
	}
	return nil
}

// Entry describes one archived sample.
type Entry struct {
	Number     int
	Path       string
	RawPath    string
	Line       string
	SampleRate int
	Channels   int
	BitDepth   int
}

type Archiver struct {
	dir        string
	transcript string
	conv       Converter
	newID      func() string
	mu         sync.Mutex
	logger     *slog.Logger
}

func New(cfg config.ArchiveConfig, conv Converter, log *slog.Logger) *Archiver {
	return &Archiver{
		dir:        cfg.Directory,
		transcript: cfg.TranscriptFile,
		conv:       conv,
		newID:      uuid.NewString,
		logger:     log.With(slog.String("component", "archive")),
	}
}

// Store saves audio under the next sample number, converts it, verifies
// the result and appends the transcript line. The raw download is always
// removed.
func (a *Archiver) Store(ctx context.Context, text string, audio []byte) (Entry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return Entry{}, fmt.Errorf("create archive dir: %w", err)
	}
	raw := filepath.Join(a.dir, "quote_"+a.newID()+".wav")
	if err := os.WriteFile(raw, audio, 0o644); err != nil {
		return Entry{}, fmt.Errorf("write raw audio: %w", err)
	}
	defer os.Remove(raw)

	n, err := NextNumber(a.dir)
	if err != nil {
		return Entry{}, err
	}
	name := strconv.Itoa(n) + ".wav"
	entry := Entry{
		Number:  n,
		Path:    filepath.Join(a.dir, name),
		RawPath: raw,
		Line:    path.Join(filepath.Base(a.dir), name) + "|" + text,
	}

	if err := a.conv.Convert(ctx, raw, entry.Path); err != nil {
		os.Remove(entry.Path)
		return entry, fmt.Errorf("audio saved at %s, but conversion failed: %w", raw, err)
	}
	if err := inspect(&entry); err != nil {
		os.Remove(entry.Path)
		return entry, err
	}
	if err := a.appendTranscript(entry.Line); err != nil {
		return entry, err
	}
	a.logger.Info("archived sample",
		slog.String("path", entry.Path),
		slog.Int("sample_rate", entry.SampleRate),
		slog.Int("channels", entry.Channels))
	return entry, nil
}

func (a *Archiver) appendTranscript(line string) error {
	f, err := os.OpenFile(filepath.Join(a.dir, a.transcript), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("append transcript: %w", err)
	}
	return nil
}

// inspect reads the converted header so a broken converter is caught
// before the transcript references the file.
func inspect(entry *Entry) error {
	f, err := os.Open(entry.Path)
	if err != nil {
		return fmt.Errorf("open converted audio: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	dec.ReadInfo()
	if err := dec.Err(); err != nil {
		return fmt.Errorf("read converted header: %w", err)
	}
	if !dec.IsValidFile() {
		return fmt.Errorf("converted file %s is not a valid wav", entry.Path)
	}
	entry.SampleRate = int(dec.SampleRate)
	entry.Channels = int(dec.NumChans)
	entry.BitDepth = int(dec.BitDepth)
	return nil
}

// NextNumber returns one more than the highest numeric <n>.wav in dir.
func NextNumber(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read archive dir: %w", err)
	}
	highest := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		stem, ok := strings.CutSuffix(e.Name(), ".wav")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(stem)
		if err != nil || n < 0 {
			continue
		}
		if n > highest {
			highest = n
		}
	}
	return highest + 1, nil
}
