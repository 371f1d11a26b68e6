package playback

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/mattn/go-shellwords"
)

// FilePlaceholder is replaced by the audio path in configured commands.
const FilePlaceholder = "{file}"

// runFunc executes a command to completion.
type runFunc func(ctx context.Context, name string, args ...string) error

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// commandBackend runs a user supplied player command line.
type commandBackend struct {
	args []string
	run  runFunc
}

func NewCommandBackend(command string) (Backend, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse playback command: %w", err)
	}
	if len(args) == 0 {
		return nil, errors.New("playback command is empty")
	}
	return &commandBackend{args: args, run: runCommand}, nil
}

func (c *commandBackend) Name() string { return "command" }

func (c *commandBackend) Play(ctx context.Context, path string) error {
	args := expandFile(c.args, path)
	return c.run(ctx, args[0], args[1:]...)
}

// expandFile substitutes the placeholder, appending the path when the
// command line has none.
func expandFile(template []string, path string) []string {
	args := make([]string, 0, len(template)+1)
	found := false
	for _, a := range template {
		if strings.Contains(a, FilePlaceholder) {
			found = true
			a = strings.ReplaceAll(a, FilePlaceholder, path)
		}
		args = append(args, a)
	}
	if !found {
		args = append(args, path)
	}
	return args
}

// Candidate is one platform player invocation.
type Candidate struct {
	Name string
	Args []string
}

// SystemCandidates lists the players tried on goos, in order.
func SystemCandidates(goos string) []Candidate {
	switch goos {
	case "darwin":
		return []Candidate{{Name: "afplay", Args: []string{FilePlaceholder}}}
	case "windows":
		return []Candidate{{
			Name: "powershell",
			Args: []string{"-NoProfile", "-NonInteractive", "-c",
				"(New-Object Media.SoundPlayer '" + FilePlaceholder + "').PlaySync();"},
		}}
	default:
		return []Candidate{
			{Name: "aplay", Args: []string{"-q", FilePlaceholder}},
			{Name: "paplay", Args: []string{FilePlaceholder}},
			{Name: "ffplay", Args: []string{"-nodisp", "-autoexit", "-loglevel", "quiet", FilePlaceholder}},
		}
	}
}

// systemBackend tries the platform players until one runs successfully.
type systemBackend struct {
	candidates []Candidate
	lookPath   func(string) (string, error)
	run        runFunc
}

func NewSystemBackend() Backend {
	return &systemBackend{
		candidates: SystemCandidates(runtime.GOOS),
		lookPath:   exec.LookPath,
		run:        runCommand,
	}
}

func (s *systemBackend) Name() string { return "system" }

func (s *systemBackend) Play(ctx context.Context, path string) error {
	var errs []error
	for _, c := range s.candidates {
		if err := ctx.Err(); err != nil {
			return err
		}
		bin, err := s.lookPath(c.Name)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s not found", c.Name))
			continue
		}
		args := expandFile(c.Args, path)
		if err := s.run(ctx, bin, args...); err != nil {
			errs = append(errs, err)
			continue
		}
		return nil
	}
	if len(errs) == 0 {
		return errors.New("no system player for this platform")
	}
	return errors.Join(errs...)
}
