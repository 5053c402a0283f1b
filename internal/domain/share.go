package domain

import (
	"time"

	"github.com/google/uuid"
)

// Share — публичная или внутренняя ссылка на документ.
// На пару (документ, команда) может существовать не больше одной
// активной (неотозванной) ссылки — это обеспечивает find-or-create
// поверх частичного уникального индекса.
type Share struct {
	ID                    uuid.UUID  `json:"id" db:"id"` // id и есть токен ссылки
	DocumentID            uuid.UUID  `json:"document_id" db:"document_id"`
	TeamID                uuid.UUID  `json:"team_id" db:"team_id"`
	UserID                uuid.UUID  `json:"user_id" db:"user_id"` // создатель
	Published             bool       `json:"published" db:"published"`
	IncludeChildDocuments bool       `json:"include_child_documents" db:"include_child_documents"`
	RevokedAt             *time.Time `json:"revoked_at,omitempty" db:"revoked_at"`
	LastAccessedAt        *time.Time `json:"last_accessed_at,omitempty" db:"last_accessed_at"`
	CreatedAt             time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at" db:"updated_at"`
}

// IsRevoked сообщает, отозвана ли ссылка
func (s *Share) IsRevoked() bool {
	return s.RevokedAt != nil
}
