package ratings

import (
	"context"
	"errors"
	"strings"

	"github.com/plated-app/ratings-api/internal/domain"
)

var (
	// ErrNoRating indicates the rater has not rated the target.
	ErrNoRating = errors.New("ratings: no rating for rater")
	// ErrInvalidScore indicates a score outside the integer range 1..5.
	ErrInvalidScore = errors.New("ratings: score must be an integer between 1 and 5")
	// ErrMissingTarget indicates an empty target member id.
	ErrMissingTarget = errors.New("ratings: target id is required")
	// ErrMissingRater indicates an empty rater id.
	ErrMissingRater = errors.New("ratings: rater id is required")
	// ErrCorruptState indicates the persisted table could not be decoded.
	// Reads swallow it and degrade to the empty table; it is kept around
	// only so operators can tell "never written" from "corrupt".
	ErrCorruptState = errors.New("ratings: corrupt persisted table")
)

// RaterRef identifies the submitting member together with the display
// snapshot stored alongside the rating.
type RaterRef struct {
	ID     string
	Name   string
	Avatar string
}

// SubmitParams bundles the payload for a rating submission.
type SubmitParams struct {
	TargetID string
	Rater    RaterRef
	Score    int
	Review   string
}

// Validate applies the write-side contract shared by every backend.
func (p SubmitParams) Validate() error {
	if strings.TrimSpace(p.TargetID) == "" {
		return ErrMissingTarget
	}
	if strings.TrimSpace(p.Rater.ID) == "" {
		return ErrMissingRater
	}
	if !domain.ValidScore(p.Score) {
		return ErrInvalidScore
	}
	return nil
}

// Service is the rating surface consumed by the HTTP layer. Both the
// file-backed ledger and the Postgres repository implement it.
type Service interface {
	// Stats returns the target's collection with ratings ordered newest
	// first. Unknown targets yield the empty default, never an error.
	Stats(ctx context.Context, targetID string) (domain.Collection, error)

	// Percentages returns the per-level share of the target's ratings,
	// each level rounded independently.
	Percentages(ctx context.Context, targetID string) (map[int]int, error)

	// RatingFor returns the rater's own entry for the target, or
	// ErrNoRating.
	RatingFor(ctx context.Context, targetID, raterID string) (domain.Rating, error)

	// Submit inserts or replaces the rater's rating for the target and
	// returns the updated collection plus whether the rating was newly
	// created.
	Submit(ctx context.Context, params SubmitParams) (domain.Collection, bool, error)

	// Delete removes the rater's entry if present. Deleting a missing
	// rating is a no-op, not an error.
	Delete(ctx context.Context, targetID, raterID string) (domain.Collection, error)

	// Reset clears every rating for every target. Irreversible.
	Reset(ctx context.Context) error

	// Health verifies the backing storage is usable.
	Health(ctx context.Context) error
}
