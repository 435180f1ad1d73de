package domain

import "time"

// MaxReviewLength caps the free-text review attached to a rating.
const MaxReviewLength = 500

// Rating represents one member's evaluation of another member.
// RaterName and RaterAvatar are display snapshots taken at submission
// time and are not re-synced when the rater edits their profile.
type Rating struct {
	RaterID     string
	RaterName   string
	RaterAvatar string
	Score       int
	Review      string
	SubmittedAt time.Time
}

// Breakdown counts ratings per score level 1..5.
type Breakdown map[int]int

// Collection holds every rating received by one member alongside the
// derived statistics recomputed on each mutation.
type Collection struct {
	Ratings   []Rating
	Average   float64
	Total     int
	Breakdown Breakdown
}

// ValidScore reports whether s is an allowed score level.
func ValidScore(s int) bool {
	return s >= 1 && s <= 5
}
