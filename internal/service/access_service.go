package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"docspace/internal/auth"
	"docspace/internal/doctree"
	"docspace/internal/domain"
	apperrors "docspace/pkg/errors"
)

type accessDocumentStore interface {
	GetByIDUnscoped(ctx context.Context, id uuid.UUID) (*domain.Document, error)
	ListTreeRows(ctx context.Context, collectionID uuid.UUID) ([]doctree.Row, error)
}

type accessCollectionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Collection, error)
}

type accessTeamStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Team, error)
}

type accessShareStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Share, error)
	TouchLastAccessed(ctx context.Context, id uuid.UUID) error
}

// AccessService решает, разрешен ли доступ к документу для тройки
// (документ, ссылка, актор), и какое поддерево можно показать.
// Сервис только читает; единственный побочный эффект — отметка
// последнего доступа на ссылке после успешной резолюции.
type AccessService struct {
	docs        accessDocumentStore
	collections accessCollectionStore
	teams       accessTeamStore
	shares      accessShareStore
	policy      Policy
	log         *zap.SugaredLogger
}

func NewAccessService(
	docs accessDocumentStore,
	collections accessCollectionStore,
	teams accessTeamStore,
	shares accessShareStore,
	policy Policy,
	log *zap.SugaredLogger,
) *AccessService {
	return &AccessService{
		docs:        docs,
		collections: collections,
		teams:       teams,
		shares:      shares,
		policy:      policy,
		log:         log,
	}
}

// ResolveInput — хотя бы одно из DocumentID/ShareID обязательно.
// DocumentID при заданном ShareID сужает запрос до узла внутри
// расшаренного поддерева.
type ResolveInput struct {
	DocumentID *uuid.UUID
	ShareID    *uuid.UUID
	Actor      *auth.Actor
}

type ResolveResult struct {
	Document   *domain.Document   `json:"document"`
	Collection *domain.Collection `json:"collection,omitempty"`
	Share      *domain.Share      `json:"share,omitempty"`
}

func (s *AccessService) Resolve(ctx context.Context, in ResolveInput) (*ResolveResult, error) {
	if in.DocumentID == nil && in.ShareID == nil {
		return nil, apperrors.Clone(apperrors.ErrValidation, "either documentId or shareId is required")
	}

	if in.ShareID == nil {
		return s.resolveDirect(ctx, in)
	}
	return s.resolveShare(ctx, in)
}

// resolveDirect — путь без токена: доступ определяют только права актора
func (s *AccessService) resolveDirect(ctx context.Context, in ResolveInput) (*ResolveResult, error) {
	if in.Actor == nil {
		return nil, apperrors.ErrAuthenticationRequired
	}

	// Загружаем включая архивные и мягко удаленные: они не видны в выдачах,
	// но адресуемы по id для проверки прав на восстановление
	doc, err := s.docs.GetByIDUnscoped(ctx, *in.DocumentID)
	if err != nil {
		return nil, err
	}

	action := ActionRead
	if doc.ArchivedAt != nil || doc.DeletedAt != nil {
		action = ActionRestore
	}
	if !s.policy.Can(in.Actor, action, DocumentResource{Document: doc}) {
		return nil, apperrors.ErrAuthorization
	}

	collection, err := s.loadCollection(ctx, doc.CollectionID)
	if err != nil {
		return nil, err
	}

	return &ResolveResult{Document: doc, Collection: collection}, nil
}

// resolveShare — путь через токен ссылки
func (s *AccessService) resolveShare(ctx context.Context, in ResolveInput) (*ResolveResult, error) {
	share, err := s.shares.GetByID(ctx, *in.ShareID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Clone(apperrors.ErrInvalidRequest, "share link is no longer valid")
		}
		return nil, err
	}
	if share.IsRevoked() {
		return nil, apperrors.Clone(apperrors.ErrInvalidRequest, "share link has been revoked")
	}

	// Документ ссылки загружается без фильтров видимости: владелец мог
	// осознанно поделиться неопубликованным или архивным документом
	root, err := s.docs.GetByIDUnscoped(ctx, share.DocumentID)
	if err != nil {
		return nil, err
	}
	if root.DeletedAt != nil {
		return nil, apperrors.ErrNotFound
	}

	target := root
	if in.DocumentID != nil && *in.DocumentID != share.DocumentID {
		// Запрошен потомок расшаренного документа
		target, err = s.docs.GetByIDUnscoped(ctx, *in.DocumentID)
		if err != nil {
			return nil, err
		}
		if target.DeletedAt != nil {
			return nil, apperrors.ErrNotFound
		}
	}

	// Собственные права аутентифицированного актора всегда главнее
	// ограничений ссылки: участника с прямым read нельзя заблокировать
	// неопубликованной или погашенной ссылкой
	if in.Actor != nil && s.policy.Can(in.Actor, ActionRead, DocumentResource{Document: target}) {
		s.touchAccess(ctx, share)
		collection, err := s.loadCollection(ctx, target.CollectionID)
		if err != nil {
			return nil, err
		}
		return &ResolveResult{Document: target, Collection: collection, Share: share}, nil
	}

	// Публичный путь: без published ссылка сама по себе доступ не дает
	if !share.Published {
		return nil, apperrors.ErrAuthorization
	}

	// Командный и коллекционный тумблеры гасят даже валидные публичные
	// ссылки, не трогая сами записи shares
	team, err := s.teams.GetByID(ctx, share.TeamID)
	if err != nil {
		return nil, err
	}
	if !team.Sharing {
		return nil, apperrors.ErrAuthorization
	}

	var collection *domain.Collection
	if root.CollectionID != nil {
		collection, err = s.loadCollection(ctx, root.CollectionID)
		if err != nil {
			return nil, err
		}
		if collection == nil || !collection.Sharing {
			return nil, apperrors.ErrAuthorization
		}
	}

	if target.ID != root.ID {
		if err := s.checkDescendant(ctx, share, root, target, collection); err != nil {
			return nil, err
		}
	}

	s.touchAccess(ctx, share)
	return &ResolveResult{Document: target, Collection: collection, Share: share}, nil
}

// checkDescendant проверяет, что target — живой потомок корня ссылки.
// Множество потомков каждый раз пересчитывается по живому дереву:
// архивные и удаленные потомки через ссылку недостижимы.
func (s *AccessService) checkDescendant(
	ctx context.Context,
	share *domain.Share,
	root, target *domain.Document,
	collection *domain.Collection,
) error {
	if !share.IncludeChildDocuments {
		return apperrors.ErrAuthorization
	}
	if collection == nil {
		return apperrors.ErrAuthorization
	}

	rows, err := s.docs.ListTreeRows(ctx, collection.ID)
	if err != nil {
		return err
	}
	tree, err := doctree.Build(rows)
	if err != nil {
		return err
	}

	ids, err := tree.DescendantIDs(root.ID)
	if err != nil {
		// Корень ссылки выпал из живого дерева (например, архивирован) —
		// поддерево через публичный путь недоступно
		return apperrors.ErrAuthorization
	}

	for _, id := range ids {
		if id == target.ID {
			return nil
		}
	}
	return apperrors.ErrAuthorization
}

func (s *AccessService) loadCollection(ctx context.Context, id *uuid.UUID) (*domain.Collection, error) {
	if id == nil {
		return nil, nil
	}
	collection, err := s.collections.GetByID(ctx, *id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return collection, nil
}

// touchAccess — побочный эффект успешной резолюции; его сбой не должен
// ломать уже принятое решение о доступе
func (s *AccessService) touchAccess(ctx context.Context, share *domain.Share) {
	if err := s.shares.TouchLastAccessed(ctx, share.ID); err != nil {
		s.log.Warnw("[Resolve] failed to touch share access time", "share_id", share.ID, "error", err)
	}
}
