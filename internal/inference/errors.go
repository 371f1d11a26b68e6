package inference

import "fmt"

// Kind classifies why a model attempt or playback failed.
type Kind int

const (
	KindSubmissionFailed Kind = iota + 1
	KindPollFailed
	KindTimeout
	KindJobFailed
	KindStuck
	KindMissingResult
	KindDownloadFailed
	KindPlaybackFailed
)

func (k Kind) String() string {
	switch k {
	case KindSubmissionFailed:
		return "submission_failed"
	case KindPollFailed:
		return "poll_failed"
	case KindTimeout:
		return "timeout"
	case KindJobFailed:
		return "job_failed"
	case KindStuck:
		return "stuck"
	case KindMissingResult:
		return "missing_result"
	case KindDownloadFailed:
		return "download_failed"
	case KindPlaybackFailed:
		return "playback_failed"
	default:
		return "unknown"
	}
}

// Error is the single error type for the failure taxonomy. Compare against
// the Err* sentinels with errors.Is; only Kind is matched.
type Error struct {
	Kind   Kind
	Model  string
	Reason string
	Err    error
}

var (
	ErrSubmissionFailed = &Error{Kind: KindSubmissionFailed}
	ErrPollFailed       = &Error{Kind: KindPollFailed}
	ErrTimeout          = &Error{Kind: KindTimeout}
	ErrJobFailed        = &Error{Kind: KindJobFailed}
	ErrStuck            = &Error{Kind: KindStuck}
	ErrMissingResult    = &Error{Kind: KindMissingResult}
	ErrDownloadFailed   = &Error{Kind: KindDownloadFailed}
	ErrPlaybackFailed   = &Error{Kind: KindPlaybackFailed}
)

func (e *Error) Error() string {
	var msg string
	switch e.Kind {
	case KindSubmissionFailed:
		msg = "POST failed, it did"
	case KindPollFailed:
		msg = "GET failed, it did"
	case KindTimeout:
		msg = "Waited too long, I have. Cancelled, the job is"
	case KindJobFailed:
		msg = "Failed, the job has"
	case KindStuck:
		msg = "Stuck in the queue, the job is"
	case KindMissingResult:
		if e.Model != "" {
			return "No result from " + e.Model
		}
		return "No result, there is"
	case KindDownloadFailed:
		msg = "Download the audio, I could not"
	case KindPlaybackFailed:
		msg = "Play the sound, I could not"
	default:
		msg = "Error, there is"
	}
	if e.Model != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Model)
	}
	switch {
	case e.Reason != "":
		return msg + ": " + e.Reason
	case e.Err != nil:
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}
