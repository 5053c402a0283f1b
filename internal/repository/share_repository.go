package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"docspace/internal/domain"
	apperrors "docspace/pkg/errors"
)

const shareColumns = `
        id, document_id, team_id, user_id, published, include_child_documents,
        revoked_at, last_accessed_at, created_at, updated_at`

type ShareRepository struct {
	db *sqlx.DB
}

func NewShareRepository(db *sqlx.DB) *ShareRepository {
	return &ShareRepository{db: db}
}

// FindOrCreate атомарно возвращает активную ссылку на (документ, команда),
// создавая ее при отсутствии. Гонка двух одновременных созданий разрешается
// частичным уникальным индексом: проигравший INSERT не вставляет строку
// и перечитывает победившую. Возвращает true только на ветке, которая
// действительно вставила строку, — по ней эмитится событие создания.
func (r *ShareRepository) FindOrCreate(ctx context.Context, share *domain.Share) (bool, error) {
	insert := `
        INSERT INTO shares (id, document_id, team_id, user_id, published, include_child_documents)
        VALUES ($1, $2, $3, $4, false, false)
        ON CONFLICT (document_id, team_id) WHERE revoked_at IS NULL DO NOTHING
        RETURNING created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, insert, share.ID, share.DocumentID, share.TeamID, share.UserID).
		Scan(&share.CreatedAt, &share.UpdatedAt)
	if err == nil {
		share.Published = false
		share.IncludeChildDocuments = false
		return true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("failed to create share: %w", err)
	}

	// Вставка не прошла — активная ссылка уже существует
	existing, err := r.GetActiveByDocument(ctx, share.DocumentID, share.TeamID)
	if err != nil {
		return false, fmt.Errorf("failed to load existing share: %w", err)
	}

	*share = *existing
	return false, nil
}

// GetByID загружает ссылку в любом состоянии: отозванность проверяет
// вызывающая сторона, чтобы отличать "ссылка отозвана" от "не существует"
func (r *ShareRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Share, error) {
	query := `SELECT ` + shareColumns + ` FROM shares WHERE id = $1`

	var share domain.Share
	if err := r.db.GetContext(ctx, &share, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Clone(apperrors.ErrNotFound, "share not found")
		}
		return nil, fmt.Errorf("failed to get share: %w", err)
	}

	return &share, nil
}

func (r *ShareRepository) GetActiveByDocument(ctx context.Context, documentID, teamID uuid.UUID) (*domain.Share, error) {
	query := `
        SELECT ` + shareColumns + `
        FROM shares
        WHERE document_id = $1 AND team_id = $2 AND revoked_at IS NULL`

	var share domain.Share
	if err := r.db.GetContext(ctx, &share, query, documentID, teamID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Clone(apperrors.ErrNotFound, "share not found")
		}
		return nil, fmt.Errorf("failed to get share by document: %w", err)
	}

	return &share, nil
}

// Revoke отзывает ссылку. Повторный отзыв — не ошибка
func (r *ShareRepository) Revoke(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
        UPDATE shares
        SET revoked_at = $1, updated_at = CURRENT_TIMESTAMP
        WHERE id = $2 AND revoked_at IS NULL`

	if _, err := r.db.ExecContext(ctx, query, at, id); err != nil {
		return fmt.Errorf("failed to revoke share: %w", err)
	}
	return nil
}

// UpdateFlags переписывает флаги публикации и наследования детей
func (r *ShareRepository) UpdateFlags(ctx context.Context, id uuid.UUID, published, includeChildDocuments bool) (*domain.Share, error) {
	query := `
        UPDATE shares
        SET published = $1,
            include_child_documents = $2,
            updated_at = CURRENT_TIMESTAMP
        WHERE id = $3 AND revoked_at IS NULL
        RETURNING ` + shareColumns

	var share domain.Share
	if err := r.db.GetContext(ctx, &share, query, published, includeChildDocuments, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Clone(apperrors.ErrNotFound, "share not found")
		}
		return nil, fmt.Errorf("failed to update share flags: %w", err)
	}

	return &share, nil
}

// TouchLastAccessed обновляет отметку последнего доступа.
// Побочный эффект успешной резолюции, не часть решения о доступе
func (r *ShareRepository) TouchLastAccessed(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE shares SET last_accessed_at = CURRENT_TIMESTAMP WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to touch share access time: %w", err)
	}
	return nil
}
