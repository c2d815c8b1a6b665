package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lodestone-ai/lodestone/internal/domain"
)

type ReviewRepository struct {
	db dbtx
}

func NewReviewRepository(pool *pgxpool.Pool) *ReviewRepository {
	return &ReviewRepository{db: pool}
}

func NewReviewRepositoryWithTx(tx pgx.Tx) *ReviewRepository {
	return &ReviewRepository{db: tx}
}

func (r *ReviewRepository) Create(ctx context.Context, instance *domain.ReviewInstance) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO review_instances (id, asset_id, state, created_at, updated_at, decided_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		instance.ID, instance.AssetID, instance.State, instance.CreatedAt, instance.UpdatedAt, instance.DecidedAt,
	)
	return err
}

func (r *ReviewRepository) GetByAsset(ctx context.Context, assetID string) (*domain.ReviewInstance, error) {
	var instance domain.ReviewInstance
	err := r.db.QueryRow(ctx,
		`SELECT id, asset_id, state, created_at, updated_at, decided_at
		 FROM review_instances WHERE asset_id = $1`,
		assetID,
	).Scan(&instance.ID, &instance.AssetID, &instance.State, &instance.CreatedAt, &instance.UpdatedAt, &instance.DecidedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrReviewNotFound
		}
		return nil, err
	}
	return &instance, nil
}

// TransitionState moves the instance between review states as a
// compare-and-swap; false means the instance was not in the expected state.
func (r *ReviewRepository) TransitionState(ctx context.Context, id string, from, to domain.ReviewState, now time.Time) (bool, error) {
	var decidedAt *time.Time
	if to == domain.ReviewStateApproved {
		decidedAt = &now
	}
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE review_instances
		 SET state = $1, updated_at = $2, decided_at = COALESCE($3, decided_at)
		 WHERE id = $4 AND state = $5`,
		to, now, decidedAt, id, from,
	)
	if err != nil {
		return false, err
	}
	return cmdTag.RowsAffected() == 1, nil
}
