package playback

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/gopxl/beep/v2"
)

// bufferBackend decodes the whole file with go-audio before playing it.
// It accepts WAV layouts the streaming decoder rejects.
type bufferBackend struct {
	out Output
}

func NewBufferBackend(out Output) Backend {
	return &bufferBackend{out: out}
}

func (b *bufferBackend) Name() string { return "buffer" }

func (b *bufferBackend) Play(ctx context.Context, path string) error {
	buf, err := decodeFile(path)
	if err != nil {
		return err
	}
	stream := newPCMStreamer(buf)
	format := beep.Format{
		SampleRate:  beep.SampleRate(buf.Format.SampleRate),
		NumChannels: buf.Format.NumChannels,
		Precision:   (buf.SourceBitDepth + 7) / 8,
	}
	return b.out.Play(ctx, stream, format)
}

func decodeFile(path string) (*audio.IntBuffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, errors.New("not a valid wav file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode pcm: %w", err)
	}
	if buf.Format == nil || buf.Format.NumChannels <= 0 || buf.Format.SampleRate <= 0 {
		return nil, errors.New("wav header carries no format")
	}
	if buf.SourceBitDepth == 0 {
		buf.SourceBitDepth = int(dec.BitDepth)
	}
	if len(buf.Data) == 0 {
		return nil, errors.New("wav file holds no samples")
	}
	return buf, nil
}

// pcmStreamer plays interleaved integer samples as a beep stream.
type pcmStreamer struct {
	data     []int
	channels int
	offset   int
	scale    float64
	pos      int
}

func newPCMStreamer(buf *audio.IntBuffer) *pcmStreamer {
	depth := buf.SourceBitDepth
	if depth <= 0 {
		depth = 16
	}
	p := &pcmStreamer{
		data:     buf.Data,
		channels: buf.Format.NumChannels,
		scale:    float64(int64(1) << (depth - 1)),
	}
	// 8-bit WAV samples are unsigned, centred on 128.
	if depth == 8 {
		p.offset = 128
	}
	return p
}

func (p *pcmStreamer) Stream(samples [][2]float64) (int, bool) {
	frames := (len(p.data) - p.pos) / p.channels
	if frames <= 0 {
		return 0, false
	}
	n := min(len(samples), frames)
	for i := 0; i < n; i++ {
		left := float64(p.data[p.pos]-p.offset) / p.scale
		right := left
		if p.channels > 1 {
			right = float64(p.data[p.pos+1]-p.offset) / p.scale
		}
		samples[i] = [2]float64{left, right}
		p.pos += p.channels
	}
	return n, true
}

func (p *pcmStreamer) Err() error { return nil }
