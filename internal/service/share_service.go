package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"docspace/internal/auth"
	"docspace/internal/domain"
	"docspace/internal/events"
	apperrors "docspace/pkg/errors"
)

type shareDocumentStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Document, error)
}

type shareStore interface {
	FindOrCreate(ctx context.Context, share *domain.Share) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Share, error)
	GetActiveByDocument(ctx context.Context, documentID, teamID uuid.UUID) (*domain.Share, error)
	UpdateFlags(ctx context.Context, id uuid.UUID, published, includeChildDocuments bool) (*domain.Share, error)
	Revoke(ctx context.Context, id uuid.UUID, at time.Time) error
}

// ShareService управляет реестром внешних ссылок на документы
type ShareService struct {
	shares  shareStore
	docs    shareDocumentStore
	policy  Policy
	emitter events.Emitter
	log     *zap.SugaredLogger
}

func NewShareService(
	shares shareStore,
	docs shareDocumentStore,
	policy Policy,
	emitter events.Emitter,
	log *zap.SugaredLogger,
) *ShareService {
	return &ShareService{
		shares:  shares,
		docs:    docs,
		policy:  policy,
		emitter: emitter,
		log:     log,
	}
}

// Create находит или создает активную ссылку на документ. На пару
// (документ, команда) существует не больше одной активной ссылки,
// конкурентные вызовы получают одну и ту же запись
func (s *ShareService) Create(ctx context.Context, documentID uuid.UUID, actor *auth.Actor) (*domain.Share, error) {
	if actor == nil {
		return nil, apperrors.ErrAuthenticationRequired
	}

	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if !s.policy.Can(actor, ActionShare, DocumentResource{Document: doc}) {
		return nil, apperrors.ErrAuthorization
	}

	share := &domain.Share{
		ID:         uuid.New(),
		DocumentID: doc.ID,
		TeamID:     doc.TeamID,
		UserID:     actor.ID,
	}

	created, err := s.shares.FindOrCreate(ctx, share)
	if err != nil {
		return nil, err
	}
	if created {
		s.emitter.Emit(events.Event{
			Name:       events.ShareCreated,
			ActorID:    actor.ID,
			TeamID:     doc.TeamID,
			DocumentID: doc.ID,
			ShareID:    &share.ID,
		})
	}

	return share, nil
}

type UpdateShareInput struct {
	ShareID               uuid.UUID
	Published             *bool
	IncludeChildDocuments *bool
	Actor                 *auth.Actor
}

// Update переключает флаги ссылки. Снятие публикации всегда сбрасывает
// и доступ к потомкам: непубличная ссылка не должна тихо открывать поддерево
// при повторной публикации
func (s *ShareService) Update(ctx context.Context, in UpdateShareInput) (*domain.Share, error) {
	if in.Actor == nil {
		return nil, apperrors.ErrAuthenticationRequired
	}

	share, err := s.shares.GetByID(ctx, in.ShareID)
	if err != nil {
		return nil, err
	}
	if share.IsRevoked() {
		return nil, apperrors.Clone(apperrors.ErrInvalidRequest, "share link has been revoked")
	}
	if !s.policy.Can(in.Actor, ActionUpdate, ShareResource{Share: share}) {
		return nil, apperrors.ErrAuthorization
	}

	published := share.Published
	if in.Published != nil {
		published = *in.Published
	}
	includeChildren := share.IncludeChildDocuments
	if in.IncludeChildDocuments != nil {
		includeChildren = *in.IncludeChildDocuments
	}
	if !published {
		includeChildren = false
	}

	updated, err := s.shares.UpdateFlags(ctx, share.ID, published, includeChildren)
	if err != nil {
		return nil, err
	}

	s.emitter.Emit(events.Event{
		Name:       events.ShareUpdated,
		ActorID:    in.Actor.ID,
		TeamID:     share.TeamID,
		DocumentID: share.DocumentID,
		ShareID:    &share.ID,
	})
	return updated, nil
}

// Revoke отзывает ссылку. Повторный отзыв — не ошибка
func (s *ShareService) Revoke(ctx context.Context, shareID uuid.UUID, actor *auth.Actor) error {
	if actor == nil {
		return apperrors.ErrAuthenticationRequired
	}

	share, err := s.shares.GetByID(ctx, shareID)
	if err != nil {
		return err
	}
	if !s.policy.Can(actor, ActionRevoke, ShareResource{Share: share}) {
		return apperrors.ErrAuthorization
	}
	if share.IsRevoked() {
		return nil
	}

	if err := s.shares.Revoke(ctx, share.ID, time.Now()); err != nil {
		return err
	}

	s.emitter.Emit(events.Event{
		Name:       events.ShareRevoked,
		ActorID:    actor.ID,
		TeamID:     share.TeamID,
		DocumentID: share.DocumentID,
		ShareID:    &share.ID,
	})
	return nil
}

// GetByDocument возвращает активную ссылку документа, если она есть
func (s *ShareService) GetByDocument(ctx context.Context, documentID uuid.UUID, actor *auth.Actor) (*domain.Share, error) {
	if actor == nil {
		return nil, apperrors.ErrAuthenticationRequired
	}

	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if !s.policy.Can(actor, ActionRead, DocumentResource{Document: doc}) {
		return nil, apperrors.ErrAuthorization
	}

	return s.shares.GetActiveByDocument(ctx, documentID, doc.TeamID)
}
