package types

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientFeatures is returned when an image yields too few keypoints.
	ErrInsufficientFeatures = errors.New("insufficient features")

	// ErrInsufficientMatches is returned when fewer matches survive filtering than
	// are needed to attempt a homography.
	ErrInsufficientMatches = errors.New("insufficient matches")

	// ErrInsufficientInliers is returned when a homography was found but too few
	// correspondences agree with it.
	ErrInsufficientInliers = errors.New("insufficient inliers")

	// ErrInsufficientCorrespondences is returned when fewer than four point pairs
	// are given to the homography estimator.
	ErrInsufficientCorrespondences = errors.New("insufficient correspondences")

	// ErrDegenerateHomography is returned for numerically unstable or non-invertible fits.
	ErrDegenerateHomography = errors.New("degenerate homography")

	// ErrCollaboratorUnavailable is returned when the embedding model or feature
	// adapter cannot run at all. It is distinct from a low similarity score.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")

	// ErrInsufficientObservations is returned when triangulation has fewer than two rays.
	ErrInsufficientObservations = errors.New("insufficient observations")

	// ErrCancelled is returned when a caller aborts a search.
	ErrCancelled = errors.New("cancelled")

	// ErrSearchInProgress is returned when a pipeline is asked to run twice at once.
	ErrSearchInProgress = errors.New("search already in progress")

	// ErrUnknownSet is returned for operations on a triangulation set that does not exist.
	ErrUnknownSet = errors.New("unknown triangulation set")
)

// Stage names a step of the candidate search.
type Stage string

const (
	StageIdle      Stage = "idle"
	StageEmbedding Stage = "embedding"
	StageGeometric Stage = "geometric"
	StageRanked    Stage = "ranked"
	StageCancelled Stage = "cancelled"
	StageFailed    Stage = "failed"
	StageComplete  Stage = "complete"
)

// StageError records why a single candidate failed during a search.
type StageError struct {
	Stage       Stage
	CandidateID string
	Err         error
}

func (e *StageError) Error() string {
	if e.CandidateID == "" {
		return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s stage, candidate %s: %v", e.Stage, e.CandidateID, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
