package inference

// Job is one submission to the inference service. A fresh idempotency token
// is generated per submission so no two jobs share one.
type Job struct {
	IdempotencyToken string
	ModelID          string
	Text             string
	Token            string
}

// State is the classified status of a polled job.
type State int

const (
	StateUnknown State = iota
	StatePending
	StateProcessing
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateProcessing:
		return "processing"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can occur.
func (s State) Terminal() bool { return s == StateComplete || s == StateFailed }

// Status is one poll observation.
type Status struct {
	State State
	// Raw is the status string reported by the server.
	Raw string
	// AttemptCount is nil when the server omitted it.
	AttemptCount *int
	Result       *Result
	Reason       string
}

// Result is present only on complete_success.
type Result struct {
	AudioURL string
}

// URL returns the audio url and whether a usable one was reported.
func (r *Result) URL() (string, bool) {
	if r == nil || r.AudioURL == "" {
		return "", false
	}
	return r.AudioURL, true
}

func classify(raw string) State {
	switch raw {
	case "complete_success":
		return StateComplete
	case "failed", "complete_failure", "dead":
		return StateFailed
	case "pending":
		return StatePending
	case "started", "processing", "attempt_failed":
		return StateProcessing
	default:
		return StateUnknown
	}
}

type createRequest struct {
	IdempotencyToken string `json:"uuid_idempotency_token"`
	ModelToken       string `json:"tts_model_token"`
	Text             string `json:"inference_text"`
}

type createResponse struct {
	Success  bool    `json:"success"`
	JobToken string  `json:"inference_job_token"`
	Error    *string `json:"error,omitempty"`
}

type statusResponse struct {
	Success bool       `json:"success"`
	State   *wireState `json:"state,omitempty"`
	Error   *string    `json:"error,omitempty"`
}

type wireState struct {
	JobToken    string      `json:"job_token,omitempty"`
	Status      *wireStatus `json:"status,omitempty"`
	MaybeResult *wireResult `json:"maybe_result,omitempty"`
	Error       *string     `json:"error,omitempty"`
}

type wireStatus struct {
	Status               string  `json:"status"`
	AttemptCount         *int    `json:"attempt_count,omitempty"`
	MaybeFailureCategory *string `json:"maybe_failure_category,omitempty"`
}

type wireResult struct {
	MediaLinks *wireMediaLinks `json:"media_links,omitempty"`
}

type wireMediaLinks struct {
	CDNURL *string `json:"cdn_url,omitempty"`
}

func (r statusResponse) toStatus() Status {
	var st Status
	if r.State == nil {
		return st
	}
	if r.State.Status != nil {
		st.Raw = r.State.Status.Status
		st.AttemptCount = r.State.Status.AttemptCount
		if r.State.Status.MaybeFailureCategory != nil {
			st.Reason = *r.State.Status.MaybeFailureCategory
		}
	}
	st.State = classify(st.Raw)
	if r.State.Error != nil && *r.State.Error != "" {
		st.Reason = *r.State.Error
	}
	if st.State == StateComplete {
		st.Result = &Result{}
		if mr := r.State.MaybeResult; mr != nil && mr.MediaLinks != nil && mr.MediaLinks.CDNURL != nil {
			st.Result.AudioURL = *mr.MediaLinks.CDNURL
		}
	}
	return st
}
