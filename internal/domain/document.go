package domain

import (
	"time"

	"github.com/google/uuid"
)

type Document struct {
	ID               uuid.UUID  `json:"id" db:"id"`
	TeamID           uuid.UUID  `json:"team_id" db:"team_id"`
	CollectionID     *uuid.UUID `json:"collection_id,omitempty" db:"collection_id"` // NULL у неопубликованного черновика
	ParentDocumentID *uuid.UUID `json:"parent_document_id,omitempty" db:"parent_document_id"`
	Title            string     `json:"title" db:"title"`
	URLID            string     `json:"url_id" db:"url_id"`
	OrderKey         string     `json:"-" db:"order_key"`
	CreatedBy        uuid.UUID  `json:"created_by" db:"created_by"`
	PublishedAt      *time.Time `json:"published_at,omitempty" db:"published_at"`
	ArchivedAt       *time.Time `json:"archived_at,omitempty" db:"archived_at"`
	DeletedAt        *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

// IsPublished сообщает, опубликован ли документ
func (d *Document) IsPublished() bool {
	return d.PublishedAt != nil
}

// IsActive сообщает, находится ли документ в живом дереве:
// архивные и удаленные документы из дерева исключаются, но остаются
// адресуемыми по id для восстановления
func (d *Document) IsActive() bool {
	return d.ArchivedAt == nil && d.DeletedAt == nil
}
