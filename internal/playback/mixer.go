package playback

import (
	"context"
	"fmt"
	"os"

	"github.com/gopxl/beep/v2/wav"
)

// mixerBackend streams the file through the beep wav decoder.
type mixerBackend struct {
	out Output
}

func NewMixerBackend(out Output) Backend {
	return &mixerBackend{out: out}
}

func (m *mixerBackend) Name() string { return "mixer" }

func (m *mixerBackend) Play(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open audio: %w", err)
	}
	streamer, format, err := wav.Decode(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("decode wav: %w", err)
	}
	defer streamer.Close()
	return m.out.Play(ctx, streamer, format)
}
