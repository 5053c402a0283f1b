package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"docspace/internal/domain"
	apperrors "docspace/pkg/errors"
)

type CollectionRepository struct {
	db *sqlx.DB
}

func NewCollectionRepository(db *sqlx.DB) *CollectionRepository {
	return &CollectionRepository{db: db}
}

func (r *CollectionRepository) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	return r.db.BeginTxx(ctx, nil)
}

func (r *CollectionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Collection, error) {
	query := `
        SELECT id, team_id, name, sharing, created_at, updated_at, deleted_at
        FROM collections
        WHERE id = $1 AND deleted_at IS NULL`

	var collection domain.Collection
	if err := r.db.GetContext(ctx, &collection, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Clone(apperrors.ErrNotFound, "collection not found")
		}
		return nil, fmt.Errorf("failed to get collection: %w", err)
	}

	return &collection, nil
}

// Lock берет строчные блокировки коллекций в возрастающем порядке id.
// Фиксированный глобальный порядок взятия блокировок исключает дедлок
// двух встречных перемещений между одной и той же парой коллекций.
func (r *CollectionRepository) Lock(ctx context.Context, tx *sqlx.Tx, ids ...uuid.UUID) error {
	seen := make(map[uuid.UUID]bool, len(ids))
	ordered := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			ordered = append(ordered, id)
		}
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].String() < ordered[j].String()
	})

	for _, id := range ordered {
		var locked uuid.UUID
		err := tx.QueryRowxContext(ctx,
			`SELECT id FROM collections WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`,
			id,
		).Scan(&locked)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperrors.Clone(apperrors.ErrNotFound, "collection not found")
			}
			return fmt.Errorf("failed to lock collection %s: %w", id, err)
		}
	}

	return nil
}
