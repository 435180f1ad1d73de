package domain

import (
	"math"
	"sort"
)

// EmptyBreakdown returns a zeroed per-level count map.
func EmptyBreakdown() Breakdown {
	return Breakdown{1: 0, 2: 0, 3: 0, 4: 0, 5: 0}
}

// EmptyCollection is the well-formed default returned for members that
// have never been rated.
func EmptyCollection() Collection {
	return Collection{
		Ratings:   []Rating{},
		Average:   0,
		Total:     0,
		Breakdown: EmptyBreakdown(),
	}
}

// Summarize recomputes the derived statistics from the full rating set.
// Ratings outside the 1..5 range are counted toward the total and the
// average but not the breakdown; writers are expected to reject them
// before they ever reach a collection.
func Summarize(ratings []Rating) Collection {
	c := Collection{
		Ratings:   ratings,
		Breakdown: EmptyBreakdown(),
	}
	if c.Ratings == nil {
		c.Ratings = []Rating{}
	}

	c.Total = len(c.Ratings)
	if c.Total == 0 {
		return c
	}

	sum := 0
	for _, r := range c.Ratings {
		sum += r.Score
		if ValidScore(r.Score) {
			c.Breakdown[r.Score]++
		}
	}
	c.Average = RoundToOneDecimal(float64(sum) / float64(c.Total))
	return c
}

// Percentages maps each score level to round(count/total*100). Levels are
// rounded independently, so the five values may not sum to exactly 100.
func Percentages(breakdown Breakdown, total int) map[int]int {
	out := map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0}
	if total <= 0 {
		return out
	}
	for level := 1; level <= 5; level++ {
		out[level] = int(math.Round(float64(breakdown[level]) / float64(total) * 100))
	}
	return out
}

// SortNewestFirst orders ratings by submission time descending. Exact
// timestamp ties fall back to rater id so the order is deterministic.
func SortNewestFirst(ratings []Rating) {
	sort.SliceStable(ratings, func(i, j int) bool {
		if ratings[i].SubmittedAt.Equal(ratings[j].SubmittedAt) {
			return ratings[i].RaterID > ratings[j].RaterID
		}
		return ratings[i].SubmittedAt.After(ratings[j].SubmittedAt)
	})
}

// RoundToOneDecimal rounds a statistic for display, e.g. 3.75 -> 3.8.
func RoundToOneDecimal(value float64) float64 {
	return math.Round(value*10) / 10
}
