// Package playback plays a local audio file through an ordered set of
// backends, falling through to the next on failure.
package playback

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/loqalabs/quoteplay/internal/config"
	"github.com/loqalabs/quoteplay/internal/fallback"
)

// Backend plays a file to completion.
type Backend interface {
	Name() string
	Play(ctx context.Context, path string) error
}

// Outcome reports whether any backend played the file.
type Outcome struct {
	OK      bool
	Backend string
	Detail  string
}

type Player struct {
	backends []Backend
	logger   *slog.Logger
}

func NewPlayer(backends []Backend, log *slog.Logger) *Player {
	return &Player{
		backends: backends,
		logger:   log.With(slog.String("component", "playback")),
	}
}

// Build assembles the configured backend order. Speaker backends are
// skipped when the probe found no device; the command backend is skipped
// when no command is configured.
func Build(cfg config.PlaybackConfig, caps Capabilities, log *slog.Logger) (*Player, error) {
	var out Output
	if caps.Speaker {
		out = NewSpeakerOutput(caps)
	}
	var backends []Backend
	for _, name := range cfg.Backends {
		switch name {
		case "mixer":
			if out != nil {
				backends = append(backends, NewMixerBackend(out))
			}
		case "buffer":
			if out != nil {
				backends = append(backends, NewBufferBackend(out))
			}
		case "command":
			if cfg.Command == "" {
				continue
			}
			b, err := NewCommandBackend(cfg.Command)
			if err != nil {
				return nil, err
			}
			backends = append(backends, b)
		case "system":
			backends = append(backends, NewSystemBackend())
		default:
			return nil, fmt.Errorf("unknown playback backend %q", name)
		}
	}
	return NewPlayer(backends, log), nil
}

// Backends returns the active backend names in order.
func (p *Player) Backends() []string {
	names := make([]string, 0, len(p.backends))
	for _, b := range p.backends {
		names = append(names, b.Name())
	}
	return names
}

// Play tries every backend in order. Failures are logged, not returned.
func (p *Player) Play(ctx context.Context, path string) Outcome {
	if len(p.backends) == 0 {
		return Outcome{Detail: "no playback backend available"}
	}
	attempts := make([]fallback.Attempt[struct{}], 0, len(p.backends))
	for _, b := range p.backends {
		b := b
		attempts = append(attempts, fallback.Attempt[struct{}]{
			Name: b.Name(),
			Run: func(ctx context.Context) (_ struct{}, err error) {
				defer func() {
					if r := recover(); r != nil {
						err = fmt.Errorf("backend panicked: %v", r)
					}
				}()
				return struct{}{}, b.Play(ctx, path)
			},
		})
	}
	res, err := fallback.FirstSuccess(ctx, attempts, func(name string, err error) {
		p.logger.Warn("playback backend failed", slog.String("backend", name), slogError(err))
	})
	if err != nil {
		return Outcome{Detail: err.Error()}
	}
	p.logger.Debug("played audio", slog.String("backend", res.Name))
	return Outcome{OK: true, Backend: res.Name}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
