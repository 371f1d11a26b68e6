package playback

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
)

// Capabilities is the result of the startup audio probe.
type Capabilities struct {
	Speaker    bool
	SampleRate beep.SampleRate
	Reason     string
}

var (
	probeOnce   sync.Once
	probeResult Capabilities
)

// Probe initializes the speaker once per process and reports whether in
// process playback is available. Later calls return the first result.
func Probe(sampleRate, bufferMS int, log *slog.Logger) Capabilities {
	probeOnce.Do(func() {
		rate := beep.SampleRate(sampleRate)
		buffer := rate.N(time.Duration(bufferMS) * time.Millisecond)
		if err := speaker.Init(rate, buffer); err != nil {
			probeResult = Capabilities{Reason: err.Error()}
			log.Info("audio device unavailable, using external players", slog.String("reason", err.Error()))
			return
		}
		probeResult = Capabilities{Speaker: true, SampleRate: rate}
		log.Debug("audio device ready", slog.Int("sample_rate", sampleRate))
	})
	return probeResult
}

// Output plays a decoded stream to completion.
type Output interface {
	Play(ctx context.Context, s beep.Streamer, format beep.Format) error
}

// SpeakerOutput plays through the process-wide beep speaker.
type SpeakerOutput struct {
	rate beep.SampleRate
}

func NewSpeakerOutput(caps Capabilities) *SpeakerOutput {
	return &SpeakerOutput{rate: caps.SampleRate}
}

func (o *SpeakerOutput) Play(ctx context.Context, s beep.Streamer, format beep.Format) error {
	if format.SampleRate != o.rate {
		s = beep.Resample(4, format.SampleRate, o.rate, s)
	}
	done := make(chan struct{})
	speaker.Play(beep.Seq(s, beep.Callback(func() { close(done) })))

	select {
	case <-done:
	case <-ctx.Done():
		speaker.Clear()
		return ctx.Err()
	}
	if err := s.Err(); err != nil {
		return fmt.Errorf("stream: %w", err)
	}
	return nil
}
