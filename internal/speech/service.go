// Package speech turns a quote into played audio: it walks the configured
// voice models until one yields audio, then hands the file to the player.
package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/loqalabs/quoteplay/internal/archive"
	"github.com/loqalabs/quoteplay/internal/config"
	"github.com/loqalabs/quoteplay/internal/fallback"
	"github.com/loqalabs/quoteplay/internal/fetch"
	"github.com/loqalabs/quoteplay/internal/history"
	"github.com/loqalabs/quoteplay/internal/inference"
	"github.com/loqalabs/quoteplay/internal/playback"
	"github.com/loqalabs/quoteplay/internal/protocol"
)

// Jobs submits and polls inference jobs. *inference.Client satisfies it.
type Jobs interface {
	Submit(ctx context.Context, modelID, text string) (inference.Job, error)
	Status(ctx context.Context, jobToken string) (inference.Status, error)
}

// Fetcher downloads and stages audio. *fetch.Fetcher satisfies it.
type Fetcher interface {
	Download(ctx context.Context, url string) ([]byte, error)
	Stage(data []byte) (*fetch.Staged, error)
}

// Player plays a local file. *playback.Player satisfies it.
type Player interface {
	Play(ctx context.Context, path string) playback.Outcome
}

// Recorder keeps the invocation timeline. *history.Store satisfies it.
type Recorder interface {
	Begin(ctx context.Context, text string) (string, error)
	Append(ctx context.Context, invocationID, eventType, detail string) error
	Finish(ctx context.Context, invocationID string, res history.Result) error
}

// Publisher announces finished invocations. *bus.Client satisfies it.
type Publisher interface {
	Publish(ctx context.Context, evt protocol.QuoteEvent) error
}

// Archiver stores samples for the save variant. *archive.Archiver satisfies it.
type Archiver interface {
	Store(ctx context.Context, text string, audio []byte) (archive.Entry, error)
}

// Deps bundles collaborators. Jobs, Fetcher and Player are required.
type Deps struct {
	Jobs      Jobs
	Fetcher   Fetcher
	Player    Player
	Recorder  Recorder
	Publisher Publisher
	Archiver  Archiver
	// Sleep replaces the poll delay; nil uses a real timer.
	Sleep func(context.Context, time.Duration) error
}

// Response is what a caller shows the user.
type Response struct {
	Message string
	IsError bool
}

// Synthesis is the audio produced by the first model that succeeded.
type Synthesis struct {
	Model    config.Model
	AudioURL string
	Audio    []byte
	Attempts int
}

type Service struct {
	deps   Deps
	policy inference.PollPolicy

	mu     sync.RWMutex
	models []config.Model

	// playMu keeps concurrent calls from talking over each other.
	playMu sync.Mutex

	in     *instruments
	logger *slog.Logger
}

func NewService(cfg config.InferenceConfig, deps Deps, log *slog.Logger) (*Service, error) {
	if deps.Jobs == nil || deps.Fetcher == nil || deps.Player == nil {
		return nil, errors.New("speech service requires jobs, fetcher and player")
	}
	if len(cfg.Models) == 0 {
		return nil, errors.New("no voice models configured")
	}
	in, err := newInstruments()
	if err != nil {
		return nil, fmt.Errorf("create instruments: %w", err)
	}
	s := &Service{
		deps: deps,
		policy: inference.PollPolicy{
			Interval:       cfg.PollInterval,
			MaxAttempts:    cfg.MaxAttempts,
			StuckThreshold: cfg.StuckThreshold,
		},
		in:     in,
		logger: log.With(slog.String("component", "speech")),
	}
	s.SetModels(cfg.Models)
	return s, nil
}

// SetModels replaces the fallback order for subsequent calls.
func (s *Service) SetModels(models []config.Model) {
	cp := append([]config.Model(nil), models...)
	s.mu.Lock()
	s.models = cp
	s.mu.Unlock()
	s.logger.Info("voice models configured", slog.Int("count", len(cp)))
}

// Models returns the current fallback order.
func (s *Service) Models() []config.Model {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]config.Model(nil), s.models...)
}

// Say synthesizes text with the first working model and plays it.
func (s *Service) Say(ctx context.Context, text string) Response {
	text = strings.TrimSpace(text)
	if text == "" {
		s.in.invocation(ctx, "say", "empty")
		return Response{Message: msgEmpty, IsError: true}
	}
	ctx, span := s.in.tracer.Start(ctx, "quoteplay.say", trace.WithAttributes(attribute.Int("text.length", len(text))))
	defer span.End()

	inv := s.begin(ctx, text)
	syn, err := s.Synthesize(ctx, inv.id, text)
	if err != nil {
		return s.fail(ctx, span, inv, "say", syn, err)
	}

	outcome, err := s.playBytes(ctx, inv.id, syn.Audio)
	if err != nil {
		s.logger.Warn("staging audio failed", slogError(err))
		outcome = playback.Outcome{Detail: err.Error()}
	}

	resp := Response{Message: spokenMessage(syn.Model.Name(), syn.AudioURL)}
	if !outcome.OK {
		resp.Message = unplayedMessage(syn.AudioURL)
	}
	s.succeed(ctx, inv, "say", syn, outcome)
	return resp
}

// Save synthesizes text, archives the normalized sample and plays it.
func (s *Service) Save(ctx context.Context, text string) Response {
	if s.deps.Archiver == nil {
		return Response{Message: "Configured, the archive is not.", IsError: true}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		s.in.invocation(ctx, "save", "empty")
		return Response{Message: msgEmpty, IsError: true}
	}
	ctx, span := s.in.tracer.Start(ctx, "quoteplay.save", trace.WithAttributes(attribute.Int("text.length", len(text))))
	defer span.End()

	inv := s.begin(ctx, text)
	syn, err := s.Synthesize(ctx, inv.id, text)
	if err != nil {
		return s.fail(ctx, span, inv, "save", syn, err)
	}

	entry, err := s.deps.Archiver.Store(ctx, text, syn.Audio)
	if err != nil {
		s.logger.Error("archiving sample failed", slogError(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "archive")
		s.record(ctx, inv.id, "archive_failed", err.Error())
		s.finish(ctx, inv, "save", history.Result{Outcome: "failed", Model: syn.Model.Name(), AudioURL: syn.AudioURL, Detail: err.Error()},
			protocol.QuoteEvent{Model: syn.Model.Name(), AudioURL: syn.AudioURL, Error: err.Error(), Attempts: syn.Attempts})
		return Response{
			Message: fmt.Sprintf("Audio URL, you seek: %s\nConvert the audio, I could not: %v", syn.AudioURL, err),
			IsError: true,
		}
	}
	s.record(ctx, inv.id, "archived", entry.Path)

	outcome := s.playPath(ctx, inv.id, entry.Path)
	msg := fmt.Sprintf("%s\nSaved as %s, the sample is.", spokenMessage(syn.Model.Name(), syn.AudioURL), entry.Path)
	if !outcome.OK {
		msg = fmt.Sprintf("Audio URL, you seek: %s\nSaved as %s, the sample is.\nBut play the sound, I could not.", syn.AudioURL, entry.Path)
	}
	s.succeed(ctx, inv, "save", syn, outcome)
	return Response{Message: msg}
}

// Synthesize walks the model list until one yields downloaded audio. On
// exhaustion the error wraps fallback.ErrExhausted and the last failure.
func (s *Service) Synthesize(ctx context.Context, invocationID, text string) (Synthesis, error) {
	models := s.Models()
	attempts := make([]fallback.Attempt[Synthesis], 0, len(models))
	for _, m := range models {
		m := m
		attempts = append(attempts, fallback.Attempt[Synthesis]{
			Name: m.Name(),
			Run: func(ctx context.Context) (Synthesis, error) {
				return s.tryModel(ctx, invocationID, m, text)
			},
		})
	}
	res, err := fallback.FirstSuccess(ctx, attempts, func(name string, err error) {
		s.logger.Warn("voice model failed", slog.String("model", name), slogError(err))
		s.in.modelAttempt(ctx, name, kindOf(err))
		s.record(ctx, invocationID, "model_failed", err.Error())
	})
	if err != nil {
		return Synthesis{Attempts: res.Tried}, err
	}
	syn := res.Value
	syn.Attempts = res.Tried
	s.in.modelAttempt(ctx, syn.Model.Name(), "ok")
	return syn, nil
}

func (s *Service) tryModel(ctx context.Context, invocationID string, m config.Model, text string) (Synthesis, error) {
	ctx, span := s.in.tracer.Start(ctx, "quoteplay.model_attempt", trace.WithAttributes(
		attribute.String("model.id", m.ID),
		attribute.String("model.name", m.Name())))
	defer span.End()

	syn, err := s.runModel(ctx, invocationID, m, text)
	if err != nil {
		if qerr, ok := err.(*inference.Error); ok && qerr.Model == "" {
			named := *qerr
			named.Model = m.Name()
			err = &named
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, kindOf(err))
		return Synthesis{}, err
	}
	return syn, nil
}

func (s *Service) runModel(ctx context.Context, invocationID string, m config.Model, text string) (Synthesis, error) {
	job, err := s.deps.Jobs.Submit(ctx, m.ID, text)
	if err != nil {
		return Synthesis{}, err
	}
	s.record(ctx, invocationID, "submitted", m.Name()+" "+job.Token)

	poller := inference.NewPoller(s.deps.Jobs, s.policy, s.logger)
	if s.deps.Sleep != nil {
		poller.WithSleep(s.deps.Sleep)
	}
	poller.OnPoll = func(st inference.Status) { s.in.poll(ctx, st.Raw) }

	out, err := poller.Wait(ctx, job)
	if err != nil {
		return Synthesis{}, err
	}
	url, ok := out.Result.URL()
	if !ok {
		return Synthesis{}, &inference.Error{Kind: inference.KindMissingResult, Model: m.Name()}
	}
	s.record(ctx, invocationID, "completed", url)

	audio, err := s.deps.Fetcher.Download(ctx, url)
	if err != nil {
		return Synthesis{}, err
	}
	s.logger.Info("audio synthesized",
		slog.String("model", m.Name()),
		slog.Int("polls", out.Polls),
		slog.Int("bytes", len(audio)))
	return Synthesis{Model: m, AudioURL: url, Audio: audio}, nil
}

func (s *Service) playBytes(ctx context.Context, invocationID string, audio []byte) (playback.Outcome, error) {
	staged, err := s.deps.Fetcher.Stage(audio)
	if err != nil {
		return playback.Outcome{}, err
	}
	defer staged.Release()
	return s.playPath(ctx, invocationID, staged.Path), nil
}

func (s *Service) playPath(ctx context.Context, invocationID, path string) playback.Outcome {
	ctx, span := s.in.tracer.Start(ctx, "quoteplay.playback")
	defer span.End()

	outcome := s.playLocked(ctx, path)
	s.in.played(ctx, outcome.Backend, outcome.OK)
	span.SetAttributes(attribute.String("backend", outcome.Backend), attribute.Bool("ok", outcome.OK))
	if outcome.OK {
		s.record(ctx, invocationID, "played", outcome.Backend)
	} else {
		err := &inference.Error{Kind: inference.KindPlaybackFailed, Reason: outcome.Detail}
		span.RecordError(err)
		outcome.Detail = err.Error()
		s.logger.Warn("playback failed on every backend", slogError(err))
		s.record(ctx, invocationID, "playback_failed", outcome.Detail)
	}
	return outcome
}

func (s *Service) playLocked(ctx context.Context, path string) playback.Outcome {
	s.playMu.Lock()
	defer s.playMu.Unlock()
	return s.deps.Player.Play(ctx, path)
}

type invocation struct {
	id   string
	text string
}

func (s *Service) begin(ctx context.Context, text string) invocation {
	inv := invocation{text: text}
	if s.deps.Recorder != nil {
		id, err := s.deps.Recorder.Begin(ctx, text)
		if err != nil {
			s.logger.Warn("history begin failed", slogError(err))
		}
		inv.id = id
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("invocation.id", inv.id))
	return inv
}

func (s *Service) record(ctx context.Context, invocationID, eventType, detail string) {
	if s.deps.Recorder == nil || invocationID == "" {
		return
	}
	if err := s.deps.Recorder.Append(ctx, invocationID, eventType, detail); err != nil {
		s.logger.Warn("history append failed", slog.String("event", eventType), slogError(err))
	}
}

func (s *Service) fail(ctx context.Context, span trace.Span, inv invocation, mode string, syn Synthesis, err error) Response {
	reason := lastReason(err)
	span.RecordError(err)
	span.SetStatus(codes.Error, "synthesis failed")
	s.logger.Error("every voice model failed", slog.String("invocation", inv.id), slogError(err))
	s.finish(ctx, inv, mode, history.Result{Outcome: "failed", Detail: reason},
		protocol.QuoteEvent{Error: reason, Attempts: syn.Attempts})
	return Response{Message: failedMessage(reason), IsError: true}
}

func (s *Service) succeed(ctx context.Context, inv invocation, mode string, syn Synthesis, outcome playback.Outcome) {
	result := "spoken"
	if !outcome.OK {
		result = "unplayed"
	}
	s.finish(ctx, inv, mode, history.Result{Outcome: result, Model: syn.Model.Name(), AudioURL: syn.AudioURL, Detail: outcome.Detail},
		protocol.QuoteEvent{
			Model:    syn.Model.Name(),
			AudioURL: syn.AudioURL,
			Played:   outcome.OK,
			Backend:  outcome.Backend,
			Attempts: syn.Attempts,
		})
}

func (s *Service) finish(ctx context.Context, inv invocation, mode string, res history.Result, evt protocol.QuoteEvent) {
	s.in.invocation(ctx, mode, res.Outcome)
	// Bookkeeping outlives a cancelled call so the timeline stays complete.
	bg := context.WithoutCancel(ctx)
	if s.deps.Recorder != nil && inv.id != "" {
		if err := s.deps.Recorder.Finish(bg, inv.id, res); err != nil {
			s.logger.Warn("history finish failed", slogError(err))
		}
	}
	if s.deps.Publisher != nil {
		evt.InvocationID = inv.id
		evt.Text = inv.text
		evt.Timestamp = time.Now().UTC()
		if err := s.deps.Publisher.Publish(bg, evt); err != nil {
			s.logger.Warn("publish quote event failed", slogError(err))
		}
	}
}

// lastReason extracts the failure of the last model tried.
func lastReason(err error) string {
	var ex *fallback.ExhaustedError
	if errors.As(err, &ex) && ex.Last != nil {
		return ex.Last.Error()
	}
	return err.Error()
}

func kindOf(err error) string {
	var qerr *inference.Error
	if errors.As(err, &qerr) {
		return qerr.Kind.String()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "cancelled"
	}
	return "error"
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
