package inference

import (
	"context"
	"log/slog"
	"time"
)

// StatusSource is the part of Client the Poller needs.
type StatusSource interface {
	Status(ctx context.Context, jobToken string) (Status, error)
}

// PollPolicy bounds a poll loop.
type PollPolicy struct {
	Interval    time.Duration
	MaxAttempts int
	// StuckThreshold is the number of consecutive pending polls reporting an
	// attempt_count of zero after which the job is given up on. Zero
	// disables the check.
	StuckThreshold int
}

// DefaultPollPolicy polls every 2s, 30 times, giving up after 10 polls
// without queue progress.
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{Interval: 2 * time.Second, MaxAttempts: 30, StuckThreshold: 10}
}

// Poller waits for a job to reach a terminal state.
type Poller struct {
	source StatusSource
	policy PollPolicy
	sleep  func(context.Context, time.Duration) error
	log    *slog.Logger
	// OnPoll observes every status read; used for metrics.
	OnPoll func(Status)
}

func NewPoller(source StatusSource, policy PollPolicy, log *slog.Logger) *Poller {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	return &Poller{
		source: source,
		policy: policy,
		sleep:  sleepContext,
		log:    log,
	}
}

// WithSleep swaps the delay function, mainly for tests.
func (p *Poller) WithSleep(fn func(context.Context, time.Duration) error) *Poller {
	p.sleep = fn
	return p
}

// PollOutcome summarizes a finished poll loop.
type PollOutcome struct {
	Result *Result
	Polls  int
}

// Wait polls the job until it completes, fails, looks stuck or the attempt
// budget runs out. The delay is applied between polls only, so a budget of
// N yields exactly N status requests when nothing terminal is seen.
func (p *Poller) Wait(ctx context.Context, job Job) (PollOutcome, error) {
	noProgress := 0
	for attempt := 1; attempt <= p.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := p.sleep(ctx, p.policy.Interval); err != nil {
				return PollOutcome{Polls: attempt - 1}, err
			}
		}

		st, err := p.source.Status(ctx, job.Token)
		if err != nil {
			return PollOutcome{Polls: attempt}, err
		}
		if p.OnPoll != nil {
			p.OnPoll(st)
		}
		p.log.Debug("job status",
			slog.String("job", job.Token),
			slog.String("status", st.Raw),
			slog.Int("poll", attempt))

		switch st.State {
		case StateComplete:
			return PollOutcome{Result: st.Result, Polls: attempt}, nil
		case StateFailed:
			return PollOutcome{Polls: attempt}, &Error{Kind: KindJobFailed, Reason: st.Reason}
		case StateProcessing:
			noProgress = 0
		case StatePending:
			if st.AttemptCount != nil && *st.AttemptCount == 0 {
				noProgress++
			} else {
				noProgress = 0
			}
			if p.policy.StuckThreshold > 0 && noProgress >= p.policy.StuckThreshold {
				return PollOutcome{Polls: attempt}, &Error{Kind: KindStuck}
			}
		}
	}
	return PollOutcome{Polls: p.policy.MaxAttempts}, &Error{Kind: KindTimeout}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
