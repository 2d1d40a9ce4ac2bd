package search

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"panofinder/types"
)

// CandidateFailure records why a candidate dropped out of a search.
type CandidateFailure struct {
	CandidateID string      `json:"candidate_id"`
	Stage       types.Stage `json:"stage"`
	Reason      string      `json:"reason"`
	Err         error       `json:"-"`
}

// Session is the outcome of one Search call. It is owned by the caller once
// returned.
type Session struct {
	ID        string             `json:"id"`
	CellID    string             `json:"cell_id"`
	Mode      Mode               `json:"mode"`
	State     types.Stage        `json:"state"`
	Results   []Result           `json:"results"`
	Failures  []CandidateFailure `json:"failures,omitempty"`
	Partial   bool               `json:"partial"`
	Fallback  bool               `json:"fallback"`
	StartedAt time.Time          `json:"started_at"`
	Duration  time.Duration      `json:"duration"`
}

func newSession(cellID string, mode Mode) *Session {
	return &Session{
		ID:        uuid.NewString(),
		CellID:    cellID,
		Mode:      mode,
		State:     types.StageIdle,
		StartedAt: time.Now(),
	}
}

func (s *Session) fail(candidateID string, stage types.Stage, err error) {
	s.Failures = append(s.Failures, CandidateFailure{
		CandidateID: candidateID,
		Stage:       stage,
		Reason:      err.Error(),
		Err:         &types.StageError{Stage: stage, CandidateID: candidateID, Err: err},
	})
}

// FailuresBy returns the failures whose error matches target.
func (s *Session) FailuresBy(target error) []CandidateFailure {
	var out []CandidateFailure
	for _, f := range s.Failures {
		if errors.Is(f.Err, target) {
			out = append(out, f)
		}
	}
	return out
}

// Best returns the top result that passed geometric verification.
func (s *Session) Best() (Result, bool) {
	for _, r := range s.Results {
		if r.Match != nil {
			return r, true
		}
	}
	return Result{}, false
}
