package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docspace/internal/domain"
	apperrors "docspace/pkg/errors"
)

func shareRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "document_id", "team_id", "user_id", "published", "include_child_documents",
		"revoked_at", "last_accessed_at", "created_at", "updated_at",
	})
}

func TestShareRepositoryFindOrCreateInserts(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewShareRepository(db)

	share := &domain.Share{
		ID:         uuid.New(),
		DocumentID: uuid.New(),
		TeamID:     uuid.New(),
		UserID:     uuid.New(),
	}
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO shares")).
		WithArgs(share.ID, share.DocumentID, share.TeamID, share.UserID).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	created, err := repo.FindOrCreate(context.Background(), share)
	require.NoError(t, err)
	assert.True(t, created)
	assert.False(t, share.Published)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestShareRepositoryFindOrCreateConflictLoadsExisting(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewShareRepository(db)

	existingID := uuid.New()
	documentID := uuid.New()
	teamID := uuid.New()
	now := time.Now()

	share := &domain.Share{
		ID:         uuid.New(),
		DocumentID: documentID,
		TeamID:     teamID,
		UserID:     uuid.New(),
	}

	// ON CONFLICT DO NOTHING: вставка не возвращает строку
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO shares")).
		WithArgs(share.ID, documentID, teamID, share.UserID).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}))

	mock.ExpectQuery(regexp.QuoteMeta("WHERE document_id = $1 AND team_id = $2 AND revoked_at IS NULL")).
		WithArgs(documentID, teamID).
		WillReturnRows(shareRows().AddRow(
			existingID, documentID, teamID, uuid.New(), true, false,
			nil, nil, now, now,
		))

	created, err := repo.FindOrCreate(context.Background(), share)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, existingID, share.ID)
	assert.True(t, share.Published)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestShareRepositoryGetByIDNotFound(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewShareRepository(db)

	id := uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta("FROM shares WHERE id = $1")).
		WithArgs(id).
		WillReturnRows(shareRows())

	_, err := repo.GetByID(context.Background(), id)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestShareRepositoryUpdateFlagsRevoked(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewShareRepository(db)

	id := uuid.New()
	// Отозванная ссылка не попадает под WHERE revoked_at IS NULL
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE shares")).
		WithArgs(true, true, id).
		WillReturnRows(shareRows())

	_, err := repo.UpdateFlags(context.Background(), id, true, true)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestShareRepositoryRevoke(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewShareRepository(db)

	id := uuid.New()
	at := time.Now()
	mock.ExpectExec(regexp.QuoteMeta("SET revoked_at = $1")).
		WithArgs(at, id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Revoke(context.Background(), id, at))
	require.NoError(t, mock.ExpectationsWereMet())
}
