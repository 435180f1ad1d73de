package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/plated-app/ratings-api/internal/domain"
)

// RatingsRepository provides row-level persistence for member ratings.
// Unlike the file-backed ledger it never rewrites the whole table, so
// concurrent writers cannot clobber each other's rows.
type RatingsRepository struct {
	pool *pgxpool.Pool
}

// RatingUpsertParams captures the payload required to upsert a rating.
type RatingUpsertParams struct {
	TargetID    string
	RaterID     string
	RaterName   string
	RaterAvatar string
	Score       int
	Review      string
}

const ratingColumns = `rater_id, rater_name, rater_avatar, score, review, submitted_at`

// Upsert inserts or replaces the rater's rating for the target and
// indicates whether it was newly created. Re-rating overwrites the
// submission time; prior scores are not retained.
func (r *RatingsRepository) Upsert(ctx context.Context, params RatingUpsertParams) (domain.Rating, bool, error) {
	query := fmt.Sprintf(`
        INSERT INTO user_ratings (id, target_id, rater_id, rater_name, rater_avatar, score, review)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        ON CONFLICT (target_id, rater_id)
        DO UPDATE SET rater_name = EXCLUDED.rater_name,
                      rater_avatar = EXCLUDED.rater_avatar,
                      score = EXCLUDED.score,
                      review = EXCLUDED.review,
                      submitted_at = now()
        RETURNING %s, (xmax = 0) AS inserted
    `, ratingColumns)

	var rating domain.Rating
	var inserted bool
	err := r.pool.QueryRow(ctx, query,
		uuid.New(), params.TargetID, params.RaterID, params.RaterName, params.RaterAvatar, params.Score, params.Review,
	).Scan(
		&rating.RaterID,
		&rating.RaterName,
		&rating.RaterAvatar,
		&rating.Score,
		&rating.Review,
		&rating.SubmittedAt,
		&inserted,
	)
	if err != nil {
		return domain.Rating{}, false, fmt.Errorf("upsert rating: %w", err)
	}
	return rating, inserted, nil
}

// Get retrieves the rating a specific rater gave a target.
func (r *RatingsRepository) Get(ctx context.Context, targetID, raterID string) (domain.Rating, error) {
	query := fmt.Sprintf(`
        SELECT %s FROM user_ratings
        WHERE target_id = $1 AND rater_id = $2
    `, ratingColumns)

	var rating domain.Rating
	err := r.pool.QueryRow(ctx, query, targetID, raterID).Scan(
		&rating.RaterID,
		&rating.RaterName,
		&rating.RaterAvatar,
		&rating.Score,
		&rating.Review,
		&rating.SubmittedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Rating{}, ErrNotFound
		}
		return domain.Rating{}, err
	}
	return rating, nil
}

// ListByTarget returns every rating received by the target, newest
// first with rater id breaking exact timestamp ties.
func (r *RatingsRepository) ListByTarget(ctx context.Context, targetID string) ([]domain.Rating, error) {
	query := fmt.Sprintf(`
        SELECT %s FROM user_ratings
        WHERE target_id = $1
        ORDER BY submitted_at DESC, rater_id DESC
    `, ratingColumns)

	rows, err := r.pool.Query(ctx, query, targetID)
	if err != nil {
		return nil, fmt.Errorf("list ratings: %w", err)
	}
	defer rows.Close()

	ratings := make([]domain.Rating, 0)
	for rows.Next() {
		var rating domain.Rating
		if err := rows.Scan(
			&rating.RaterID,
			&rating.RaterName,
			&rating.RaterAvatar,
			&rating.Score,
			&rating.Review,
			&rating.SubmittedAt,
		); err != nil {
			return nil, err
		}
		ratings = append(ratings, rating)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ratings, nil
}

// Delete removes the rater's entry for the target and reports whether a
// row existed. Deleting an absent rating is not an error.
func (r *RatingsRepository) Delete(ctx context.Context, targetID, raterID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
        DELETE FROM user_ratings
        WHERE target_id = $1 AND rater_id = $2
    `, targetID, raterID)
	if err != nil {
		return false, fmt.Errorf("delete rating: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ResetAll removes every rating for every target.
func (r *RatingsRepository) ResetAll(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, `TRUNCATE user_ratings`); err != nil {
		return fmt.Errorf("reset ratings: %w", err)
	}
	return nil
}
