package ratings

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/plated-app/ratings-api/internal/domain"
)

// TableStore persists the raw ratings table as a single slot. Load
// returns (nil, nil) when the slot has never been written.
type TableStore interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, payload []byte) error
}

// Ledger implements Service over a whole-table read-modify-write cycle
// against a TableStore. Mutations are serialized by a mutex, so within
// one process the last-writer-wins window of the snapshot pattern never
// opens; across processes sharing a file the race remains and callers
// needing multi-writer correctness should run the Postgres backend.
type Ledger struct {
	store  TableStore
	logger *log.Logger
	now    func() time.Time

	mu      sync.Mutex
	loadErr error
}

// LedgerOption customizes ledger construction.
type LedgerOption func(*Ledger)

// WithClock overrides the submission timestamp source.
func WithClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) { l.now = now }
}

// NewLedger constructs a ledger over the given table store.
func NewLedger(store TableStore, logger *log.Logger, opts ...LedgerOption) *Ledger {
	if logger == nil {
		logger = log.Default()
	}
	l := &Ledger{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// load reads and decodes the table, degrading to empty on absent or
// corrupt data. The failure is remembered for LastLoadError but never
// surfaced to read paths.
func (l *Ledger) load(ctx context.Context) table {
	payload, err := l.store.Load(ctx)
	if err != nil {
		l.logger.Printf("ratings: load failed, serving empty table: %v", err)
		l.loadErr = err
		return table{}
	}

	t, err := decodeTable(payload)
	if err != nil {
		l.logger.Printf("ratings: %v, serving empty table", err)
		l.loadErr = err
		return table{}
	}
	l.loadErr = nil
	return t
}

func (l *Ledger) save(ctx context.Context, t table) error {
	payload, err := encodeTable(t)
	if err != nil {
		return err
	}
	if err := l.store.Save(ctx, payload); err != nil {
		return err
	}
	// The slot now holds a well-formed table again.
	l.loadErr = nil
	return nil
}

// LastLoadError reports the most recent load failure, or nil when the
// last load succeeded. Debug aid only; reads always degrade to empty.
func (l *Ledger) LastLoadError() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadErr
}

// Table returns the full decoded table keyed by target id.
func (l *Ledger) Table(ctx context.Context) map[string]domain.Collection {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load(ctx)
}

// Collection returns the target's ratings in stored order, or the empty
// default for targets never rated. It never fails.
func (l *Ledger) Collection(ctx context.Context, targetID string) domain.Collection {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.collectionLocked(ctx, targetID)
}

func (l *Ledger) collectionLocked(ctx context.Context, targetID string) domain.Collection {
	if c, ok := l.load(ctx)[targetID]; ok {
		return c
	}
	return domain.EmptyCollection()
}

// HasRated reports whether the rater already has an entry for the target.
func (l *Ledger) HasRated(ctx context.Context, targetID, raterID string) bool {
	_, err := l.RatingFor(ctx, targetID, raterID)
	return err == nil
}

// RatingFor implements Service.
func (l *Ledger) RatingFor(ctx context.Context, targetID, raterID string) (domain.Rating, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, r := range l.collectionLocked(ctx, targetID).Ratings {
		if r.RaterID == raterID {
			return r, nil
		}
	}
	return domain.Rating{}, ErrNoRating
}

// Submit implements Service. Re-rating replaces the rater's previous
// entry and overwrites its submission time; prior scores are not kept.
func (l *Ledger) Submit(ctx context.Context, params SubmitParams) (domain.Collection, bool, error) {
	if err := params.Validate(); err != nil {
		return domain.Collection{}, false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	t := l.load(ctx)
	current := t[params.TargetID]

	kept := make([]domain.Rating, 0, len(current.Ratings)+1)
	created := true
	for _, r := range current.Ratings {
		if r.RaterID == params.Rater.ID {
			created = false
			continue
		}
		kept = append(kept, r)
	}
	kept = append(kept, domain.Rating{
		RaterID:     params.Rater.ID,
		RaterName:   params.Rater.Name,
		RaterAvatar: params.Rater.Avatar,
		Score:       params.Score,
		Review:      clipReview(params.Review),
		SubmittedAt: l.now().UTC().Truncate(time.Millisecond),
	})

	updated := domain.Summarize(kept)
	t[params.TargetID] = updated
	if err := l.save(ctx, t); err != nil {
		return domain.Collection{}, false, err
	}
	return updated, created, nil
}

// Delete implements Service.
func (l *Ledger) Delete(ctx context.Context, targetID, raterID string) (domain.Collection, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	t := l.load(ctx)
	current, ok := t[targetID]
	if !ok {
		return domain.EmptyCollection(), nil
	}

	kept := make([]domain.Rating, 0, len(current.Ratings))
	removed := false
	for _, r := range current.Ratings {
		if r.RaterID == raterID {
			removed = true
			continue
		}
		kept = append(kept, r)
	}
	if !removed {
		return current, nil
	}

	updated := domain.Summarize(kept)
	if updated.Total == 0 {
		delete(t, targetID)
	} else {
		t[targetID] = updated
	}
	if err := l.save(ctx, t); err != nil {
		return domain.Collection{}, err
	}
	return updated, nil
}

// Stats implements Service: the collection with ratings newest first.
func (l *Ledger) Stats(ctx context.Context, targetID string) (domain.Collection, error) {
	c := l.Collection(ctx, targetID)
	sorted := make([]domain.Rating, len(c.Ratings))
	copy(sorted, c.Ratings)
	domain.SortNewestFirst(sorted)
	c.Ratings = sorted
	return c, nil
}

// Percentages implements Service.
func (l *Ledger) Percentages(ctx context.Context, targetID string) (map[int]int, error) {
	c := l.Collection(ctx, targetID)
	return domain.Percentages(c.Breakdown, c.Total), nil
}

// Reset implements Service, clearing the entire persisted table.
func (l *Ledger) Reset(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loadErr = nil
	return l.save(ctx, table{})
}

// Health implements Service by verifying the slot is readable and
// decodable.
func (l *Ledger) Health(ctx context.Context) error {
	payload, err := l.store.Load(ctx)
	if err != nil {
		return err
	}
	_, err = decodeTable(payload)
	return err
}

func clipReview(review string) string {
	review = strings.TrimSpace(review)
	if len(review) <= domain.MaxReviewLength {
		return review
	}
	clipped := []rune(review)
	if len(clipped) <= domain.MaxReviewLength {
		return review
	}
	return string(clipped[:domain.MaxReviewLength])
}
