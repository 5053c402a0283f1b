package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"docspace/internal/doctree"
	"docspace/internal/domain"
	apperrors "docspace/pkg/errors"
)

// ErrDuplicateOrderKey сигнализирует о коллизии ключа сортировки.
// Вызывающая сторона перечитывает соседей и повторяет попытку —
// это compare-and-retry, а не блокировка.
var ErrDuplicateOrderKey = errors.New("duplicate order key")

const documentColumns = `
        id, team_id, collection_id, parent_document_id, title, url_id,
        order_key, created_by, published_at, archived_at, deleted_at,
        created_at, updated_at`

type DocumentRepository struct {
	db *sqlx.DB
}

func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// GetByID возвращает живой (не удаленный) документ
func (r *DocumentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1 AND deleted_at IS NULL`

	var doc domain.Document
	if err := r.db.GetContext(ctx, &doc, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Clone(apperrors.ErrNotFound, "document not found")
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	return &doc, nil
}

// GetByIDUnscoped возвращает документ в любом состоянии, включая архивные
// и мягко удаленные: они исключены из выдач, но остаются адресуемыми по id
// для проверки прав на восстановление и для валидных ссылок владельца
func (r *DocumentRepository) GetByIDUnscoped(ctx context.Context, id uuid.UUID) (*domain.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`

	var doc domain.Document
	if err := r.db.GetContext(ctx, &doc, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Clone(apperrors.ErrNotFound, "document not found")
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	return &doc, nil
}

// ListTreeRows возвращает плоские строки живого дерева коллекции
// в порядке ключей сортировки
func (r *DocumentRepository) ListTreeRows(ctx context.Context, collectionID uuid.UUID) ([]doctree.Row, error) {
	return listTreeRows(ctx, r.db, collectionID)
}

// ListTreeRowsTx — то же чтение внутри транзакции с блокировкой коллекции
func (r *DocumentRepository) ListTreeRowsTx(ctx context.Context, tx *sqlx.Tx, collectionID uuid.UUID) ([]doctree.Row, error) {
	return listTreeRows(ctx, tx, collectionID)
}

func listTreeRows(ctx context.Context, q sqlx.QueryerContext, collectionID uuid.UUID) ([]doctree.Row, error) {
	query := `
        SELECT id, parent_document_id, url_id, title, order_key
        FROM documents
        WHERE collection_id = $1
        AND archived_at IS NULL
        AND deleted_at IS NULL
        ORDER BY order_key`

	rows := []struct {
		ID       uuid.UUID  `db:"id"`
		ParentID *uuid.UUID `db:"parent_document_id"`
		URL      string     `db:"url_id"`
		Title    string     `db:"title"`
		OrderKey string     `db:"order_key"`
	}{}
	if err := sqlx.SelectContext(ctx, q, &rows, query, collectionID); err != nil {
		return nil, fmt.Errorf("failed to list tree rows: %w", err)
	}

	out := make([]doctree.Row, len(rows))
	for i, row := range rows {
		out[i] = doctree.Row{
			ID:       row.ID,
			ParentID: row.ParentID,
			URL:      row.URL,
			Title:    row.Title,
			OrderKey: row.OrderKey,
		}
	}
	return out, nil
}

// ListByIDs возвращает живые документы по набору идентификаторов
func (r *DocumentRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = ANY($1) AND deleted_at IS NULL`

	var docs []*domain.Document
	if err := r.db.SelectContext(ctx, &docs, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

// Create вставляет документ. Коллизия ключа сортировки возвращается
// как ErrDuplicateOrderKey
func (r *DocumentRepository) Create(ctx context.Context, q sqlx.ExtContext, doc *domain.Document) error {
	query := `
        INSERT INTO documents (
            id, team_id, collection_id, parent_document_id, title, url_id,
            order_key, created_by, published_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING created_at, updated_at`

	err := q.QueryRowxContext(
		ctx,
		query,
		doc.ID,
		doc.TeamID,
		doc.CollectionID,
		doc.ParentDocumentID,
		doc.Title,
		doc.URLID,
		doc.OrderKey,
		doc.CreatedBy,
		doc.PublishedAt,
	).Scan(&doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateOrderKey
		}
		return fmt.Errorf("failed to create document: %w", err)
	}

	return nil
}

// UpdatePlacement перевешивает документ под нового родителя с новым ключом.
// Коллизия ключа возвращается как ErrDuplicateOrderKey
func (r *DocumentRepository) UpdatePlacement(
	ctx context.Context,
	tx *sqlx.Tx,
	id uuid.UUID,
	collectionID uuid.UUID,
	parentID *uuid.UUID,
	orderKey string,
) error {
	query := `
        UPDATE documents
        SET collection_id = $1,
            parent_document_id = $2,
            order_key = $3,
            updated_at = CURRENT_TIMESTAMP
        WHERE id = $4 AND deleted_at IS NULL`

	result, err := tx.ExecContext(ctx, query, collectionID, parentID, orderKey, id)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateOrderKey
		}
		return fmt.Errorf("failed to update document placement: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return apperrors.Clone(apperrors.ErrNotFound, "document not found")
	}

	return nil
}

// SetOrderKey переписывает только ключ сортировки (операция починки индекса)
func (r *DocumentRepository) SetOrderKey(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, orderKey string) error {
	query := `
        UPDATE documents
        SET order_key = $1, updated_at = CURRENT_TIMESTAMP
        WHERE id = $2`

	if _, err := tx.ExecContext(ctx, query, orderKey, id); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateOrderKey
		}
		return fmt.Errorf("failed to set order key: %w", err)
	}
	return nil
}

// ClearOrderKeys обнуляет ключи набора документов. Первая фаза починки
// индекса: новые ключи не должны столкнуться со старыми ключами соседей
func (r *DocumentRepository) ClearOrderKeys(ctx context.Context, tx *sqlx.Tx, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	query := `
        UPDATE documents
        SET order_key = ''
        WHERE id = ANY($1)`

	if _, err := tx.ExecContext(ctx, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("failed to clear order keys: %w", err)
	}
	return nil
}

// UpdateCollection переводит набор документов в другую коллекцию.
// Используется для потомков при межколлекционном перемещении
func (r *DocumentRepository) UpdateCollection(ctx context.Context, tx *sqlx.Tx, ids []uuid.UUID, collectionID uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	query := `
        UPDATE documents
        SET collection_id = $1, updated_at = CURRENT_TIMESTAMP
        WHERE id = ANY($2) AND deleted_at IS NULL`

	if _, err := tx.ExecContext(ctx, query, collectionID, pq.Array(ids)); err != nil {
		return fmt.Errorf("failed to update documents collection: %w", err)
	}
	return nil
}

// ArchiveMany проставляет archived_at всему набору (узел + потомки)
func (r *DocumentRepository) ArchiveMany(ctx context.Context, tx *sqlx.Tx, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	query := `
        UPDATE documents
        SET archived_at = $1, updated_at = CURRENT_TIMESTAMP
        WHERE id = ANY($2) AND archived_at IS NULL AND deleted_at IS NULL`

	if _, err := tx.ExecContext(ctx, query, at, pq.Array(ids)); err != nil {
		return fmt.Errorf("failed to archive documents: %w", err)
	}
	return nil
}

// RestoreMany снимает отметку архива с поддерева корня rootID,
// архивированного одной операцией (совпадающий archived_at).
// Архивные строки отсутствуют в живом дереве, поэтому поддерево
// обходится рекурсивно по parent_document_id прямо в запросе.
// Фильтр по team_id не дает задеть чужой документ, архивированный
// в ту же микросекунду.
func (r *DocumentRepository) RestoreMany(ctx context.Context, tx *sqlx.Tx, rootID, teamID uuid.UUID, archivedAt time.Time) ([]uuid.UUID, error) {
	query := `
        WITH RECURSIVE subtree AS (
            SELECT id FROM documents WHERE id = $1
            UNION ALL
            SELECT d.id FROM documents d
            JOIN subtree s ON d.parent_document_id = s.id
        )
        UPDATE documents
        SET archived_at = NULL, updated_at = CURRENT_TIMESTAMP
        WHERE id IN (SELECT id FROM subtree)
        AND team_id = $2
        AND archived_at = $3
        AND deleted_at IS NULL
        RETURNING id`

	var ids []uuid.UUID
	if err := tx.SelectContext(ctx, &ids, query, rootID, teamID, archivedAt); err != nil {
		return nil, fmt.Errorf("failed to restore documents: %w", err)
	}
	return ids, nil
}

// Unpublish снимает публикацию (документ снова становится черновиком)
func (r *DocumentRepository) Unpublish(ctx context.Context, id uuid.UUID) error {
	query := `
        UPDATE documents
        SET published_at = NULL,
            collection_id = NULL,
            parent_document_id = NULL,
            updated_at = CURRENT_TIMESTAMP
        WHERE id = $1 AND deleted_at IS NULL`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to unpublish document: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return apperrors.Clone(apperrors.ErrNotFound, "document not found")
	}

	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
