package ratings

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/plated-app/ratings-api/internal/domain"
)

// Table layout as written by the original client, kept stable so
// existing slots decode unchanged.
const legacyTable = `{
  "42": {
    "ratings": [
      {"raterId": "7", "raterName": "Sam", "raterAvatar": "https://cdn.plated.app/u/7.png", "rating": 5, "review": "Great!", "date": "2024-01-15T10:30:00.000Z"}
    ],
    "averageRating": 5,
    "totalRatings": 1,
    "breakdown": {"5": 1, "4": 0, "3": 0, "2": 0, "1": 0}
  }
}`

func TestDecodeTableLegacyLayout(t *testing.T) {
	table, err := decodeTable([]byte(legacyTable))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	c, ok := table["42"]
	if !ok {
		t.Fatalf("target 42 missing: %v", table)
	}
	if c.Total != 1 || c.Average != 5 || c.Breakdown[5] != 1 {
		t.Fatalf("unexpected collection: %+v", c)
	}

	r := c.Ratings[0]
	if r.RaterID != "7" || r.RaterName != "Sam" || r.Score != 5 || r.Review != "Great!" {
		t.Fatalf("unexpected rating: %+v", r)
	}
	want := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	if !r.SubmittedAt.Equal(want) {
		t.Fatalf("date = %v, want %v", r.SubmittedAt, want)
	}
}

func TestDecodeTableRecomputesDerivedStats(t *testing.T) {
	// Stored derived fields are stale on purpose; decode must not trust
	// them.
	stale := `{
      "9": {
        "ratings": [
          {"raterId": "a", "rating": 5, "review": "", "date": "2024-01-15T10:30:00.000Z"},
          {"raterId": "b", "rating": 3, "review": "", "date": "2024-01-15T10:31:00.000Z"}
        ],
        "averageRating": 1.2,
        "totalRatings": 99,
        "breakdown": {"5": 7, "4": 0, "3": 0, "2": 0, "1": 0}
      }
    }`

	table, err := decodeTable([]byte(stale))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	c := table["9"]
	if c.Total != 2 || c.Average != 4 || c.Breakdown[5] != 1 || c.Breakdown[3] != 1 {
		t.Fatalf("derived stats not recomputed: %+v", c)
	}
}

func TestDecodeTableDuplicateRaterLastWins(t *testing.T) {
	dup := `{
      "9": {
        "ratings": [
          {"raterId": "a", "rating": 5, "review": "old", "date": "2024-01-15T10:30:00.000Z"},
          {"raterId": "a", "rating": 2, "review": "new", "date": "2024-01-16T10:30:00.000Z"}
        ],
        "averageRating": 0, "totalRatings": 0,
        "breakdown": {"5": 0, "4": 0, "3": 0, "2": 0, "1": 0}
      }
    }`

	table, err := decodeTable([]byte(dup))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	c := table["9"]
	if c.Total != 1 {
		t.Fatalf("duplicate rater kept: %+v", c)
	}
	if c.Ratings[0].Score != 2 || c.Ratings[0].Review != "new" {
		t.Fatalf("last entry should win: %+v", c.Ratings[0])
	}
}

func TestDecodeTableCorrupt(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `{"42": nope`},
		{"wrong shape", `[1,2,3]`},
		{"bad date", `{"42": {"ratings": [{"raterId": "7", "rating": 5, "date": "yesterday"}], "averageRating": 0, "totalRatings": 0, "breakdown": {}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := decodeTable([]byte(tt.payload)); !errors.Is(err, ErrCorruptState) {
				t.Fatalf("err = %v, want ErrCorruptState", err)
			}
		})
	}
}

func TestEncodeTableWireKeys(t *testing.T) {
	table := table{
		"42": domain.Summarize([]domain.Rating{{
			RaterID:     "7",
			RaterName:   "Sam",
			Score:       5,
			Review:      "Great!",
			SubmittedAt: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		}}),
	}

	payload, err := encodeTable(table)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var raw map[string]map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		t.Fatalf("re-parse: %v", err)
	}
	entry := raw["42"]
	for _, key := range []string{"ratings", "averageRating", "totalRatings", "breakdown"} {
		if _, ok := entry[key]; !ok {
			t.Fatalf("wire key %q missing: %s", key, payload)
		}
	}

	var list []map[string]interface{}
	if err := json.Unmarshal(entry["ratings"], &list); err != nil {
		t.Fatalf("parse ratings: %v", err)
	}
	if list[0]["date"] != "2024-01-15T10:30:00.000Z" {
		t.Fatalf("date formatted as %v", list[0]["date"])
	}
	for _, key := range []string{"raterId", "raterName", "raterAvatar", "rating", "review"} {
		if _, ok := list[0][key]; !ok {
			t.Fatalf("rating wire key %q missing: %s", key, payload)
		}
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	original := table{
		"a": domain.Summarize([]domain.Rating{
			{RaterID: "1", Score: 4, Review: "ok", SubmittedAt: time.Date(2023, 6, 1, 8, 0, 0, 0, time.UTC)},
			{RaterID: "2", Score: 2, SubmittedAt: time.Date(2023, 6, 2, 9, 30, 0, 500_000_000, time.UTC)},
		}),
	}

	payload, err := encodeTable(original)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := decodeTable(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	got := decoded["a"]
	want := original["a"]
	if got.Total != want.Total || got.Average != want.Average {
		t.Fatalf("derived mismatch: got %+v want %+v", got, want)
	}
	for i := range want.Ratings {
		if got.Ratings[i].RaterID != want.Ratings[i].RaterID ||
			got.Ratings[i].Score != want.Ratings[i].Score ||
			!got.Ratings[i].SubmittedAt.Equal(want.Ratings[i].SubmittedAt) {
			t.Fatalf("rating %d mismatch: got %+v want %+v", i, got.Ratings[i], want.Ratings[i])
		}
	}
}

func FuzzDecodeTable(f *testing.F) {
	f.Add([]byte(legacyTable))
	f.Add([]byte(`{}`))
	f.Add([]byte(``))
	f.Add([]byte(`{"42": {"ratings": null}}`))
	f.Add([]byte(`{"42": nope`))

	f.Fuzz(func(t *testing.T, payload []byte) {
		table, err := decodeTable(payload)
		if err != nil {
			if !errors.Is(err, ErrCorruptState) {
				t.Fatalf("decode error outside taxonomy: %v", err)
			}
			return
		}
		// Whatever decodes must satisfy the derived-stats invariant.
		for target, c := range table {
			sum := 0
			for level := 1; level <= 5; level++ {
				sum += c.Breakdown[level]
			}
			if sum > c.Total || c.Total != len(c.Ratings) {
				t.Fatalf("invariant violated for %s: sum=%d total=%d ratings=%d", target, sum, c.Total, len(c.Ratings))
			}
		}
	})
}
