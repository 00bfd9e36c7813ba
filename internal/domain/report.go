package domain

import "time"

// Stage is a state of the per-reference pipeline.
type Stage string

const (
	StageInit          Stage = "init"
	StageTokenAcquired Stage = "token_acquired"
	StageDispatched    Stage = "dispatched"
	StageClassified    Stage = "classified"
	StageHDNegotiating Stage = "hd_negotiating"
	StageHDResolved    Stage = "hd_resolved"
	StageHDFallback    Stage = "hd_fallback"
	StageFetching      Stage = "fetching"
	StageDone          Stage = "done"
	StagePartialDone   Stage = "partial_done"
	StageFailed        Stage = "failed"
)

// IsTerminal reports whether no further transition follows the stage.
func (s Stage) IsTerminal() bool {
	return s == StageDone || s == StagePartialDone || s == StageFailed
}

// StageTransition records when the pipeline entered a stage.
type StageTransition struct {
	Stage  Stage     `json:"stage"`
	At     time.Time `json:"at"`
	Detail string    `json:"detail,omitempty"`
}

// Report is the observable record of one pipeline run.
type Report struct {
	Reference        MediaReference    `json:"reference"`
	Flavor           string            `json:"flavor"`
	Stages           []StageTransition `json:"stages"`
	Result           *ResolutionResult `json:"result,omitempty"`
	Quality          Quality           `json:"quality,omitempty"`
	Outcomes         []DownloadOutcome `json:"outcomes,omitempty"`
	Failures         []FetchFailure    `json:"failures,omitempty"`
	HDFallbackReason string            `json:"hd_fallback_reason,omitempty"`
	Error            string            `json:"error,omitempty"`
	StartedAt        time.Time         `json:"started_at"`
	FinishedAt       time.Time         `json:"finished_at,omitempty"`
}

// NewReport starts a report in the init stage.
func NewReport(ref MediaReference, flavor string) *Report {
	now := time.Now()
	return &Report{
		Reference: ref,
		Flavor:    flavor,
		Stages:    []StageTransition{{Stage: StageInit, At: now}},
		StartedAt: now,
	}
}

// Enter appends a stage transition.
func (r *Report) Enter(stage Stage, detail string) {
	r.Stages = append(r.Stages, StageTransition{Stage: stage, At: time.Now(), Detail: detail})
	if stage.IsTerminal() {
		r.FinishedAt = time.Now()
	}
}

// Stage returns the most recent stage.
func (r *Report) Stage() Stage {
	if len(r.Stages) == 0 {
		return StageInit
	}
	return r.Stages[len(r.Stages)-1].Stage
}

// Fail moves the report into the failed stage and returns the stage error for err.
// The stage named in the error is the last one successfully entered.
func (r *Report) Fail(err error) *StageError {
	stage := r.Stage()
	r.Error = err.Error()
	r.Enter(StageFailed, err.Error())
	return NewStageError(stage, r.Reference, err)
}

// TotalBytes sums the bytes of all written assets.
func (r *Report) TotalBytes() int64 {
	var n int64
	for _, o := range r.Outcomes {
		n += o.Bytes
	}
	return n
}

// AnySuspicious reports whether any written asset was flagged suspicious.
func (r *Report) AnySuspicious() bool {
	for _, o := range r.Outcomes {
		if o.Suspicious {
			return true
		}
	}
	return false
}
