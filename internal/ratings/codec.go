package ratings

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/plated-app/ratings-api/internal/domain"
)

// submittedAtLayout matches the millisecond ISO-8601 form the table has
// always been written with, e.g. "2024-01-15T10:30:00.000Z".
const submittedAtLayout = "2006-01-02T15:04:05.000Z"

type wireRating struct {
	RaterID     string `json:"raterId"`
	RaterName   string `json:"raterName"`
	RaterAvatar string `json:"raterAvatar"`
	Rating      int    `json:"rating"`
	Review      string `json:"review"`
	Date        string `json:"date"`
}

type wireCollection struct {
	Ratings       []wireRating `json:"ratings"`
	AverageRating float64      `json:"averageRating"`
	TotalRatings  int          `json:"totalRatings"`
	Breakdown     map[int]int  `json:"breakdown"`
}

// table is the in-memory form of the persisted slot: target id mapped to
// that member's rating collection.
type table map[string]domain.Collection

func encodeTable(t table) ([]byte, error) {
	wire := make(map[string]wireCollection, len(t))
	for targetID, collection := range t {
		wc := wireCollection{
			Ratings:       make([]wireRating, 0, len(collection.Ratings)),
			AverageRating: collection.Average,
			TotalRatings:  collection.Total,
			Breakdown:     collection.Breakdown,
		}
		if wc.Breakdown == nil {
			wc.Breakdown = domain.EmptyBreakdown()
		}
		for _, r := range collection.Ratings {
			wc.Ratings = append(wc.Ratings, wireRating{
				RaterID:     r.RaterID,
				RaterName:   r.RaterName,
				RaterAvatar: r.RaterAvatar,
				Rating:      r.Score,
				Review:      r.Review,
				Date:        r.SubmittedAt.UTC().Format(submittedAtLayout),
			})
		}
		wire[targetID] = wc
	}
	payload, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("encode ratings table: %w", err)
	}
	return payload, nil
}

// decodeTable parses the persisted slot. Any malformed payload yields
// ErrCorruptState; derived statistics are recomputed from the entries
// rather than trusted, so a stale snapshot cannot violate the breakdown
// invariant.
func decodeTable(payload []byte) (table, error) {
	if len(payload) == 0 {
		return table{}, nil
	}

	var wire map[string]wireCollection
	if err := json.Unmarshal(payload, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}

	t := make(table, len(wire))
	for targetID, wc := range wire {
		ratings := make([]domain.Rating, 0, len(wc.Ratings))
		seen := make(map[string]int, len(wc.Ratings))
		for _, wr := range wc.Ratings {
			submittedAt, err := time.Parse(time.RFC3339, wr.Date)
			if err != nil {
				return nil, fmt.Errorf("%w: bad date %q for target %s", ErrCorruptState, wr.Date, targetID)
			}
			rating := domain.Rating{
				RaterID:     wr.RaterID,
				RaterName:   wr.RaterName,
				RaterAvatar: wr.RaterAvatar,
				Score:       wr.Rating,
				Review:      wr.Review,
				SubmittedAt: submittedAt,
			}
			// Last entry wins if a table written by an older build
			// carries duplicate raters.
			if idx, ok := seen[wr.RaterID]; ok {
				ratings[idx] = rating
				continue
			}
			seen[wr.RaterID] = len(ratings)
			ratings = append(ratings, rating)
		}
		t[targetID] = domain.Summarize(ratings)
	}
	return t, nil
}
