package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"docspace/internal/auth"
	"docspace/internal/doctree"
	"docspace/internal/domain"
	apperrors "docspace/pkg/errors"
)

type fakeDocumentStore struct {
	docs     map[uuid.UUID]*domain.Document
	treeRows []doctree.Row
}

func (f *fakeDocumentStore) GetByIDUnscoped(_ context.Context, id uuid.UUID) (*domain.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, apperrors.Clone(apperrors.ErrNotFound, "document not found")
	}
	return doc, nil
}

func (f *fakeDocumentStore) ListTreeRows(_ context.Context, _ uuid.UUID) ([]doctree.Row, error) {
	return f.treeRows, nil
}

type fakeCollectionStore struct {
	collections map[uuid.UUID]*domain.Collection
}

func (f *fakeCollectionStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Collection, error) {
	collection, ok := f.collections[id]
	if !ok {
		return nil, apperrors.Clone(apperrors.ErrNotFound, "collection not found")
	}
	return collection, nil
}

type fakeTeamStore struct {
	teams map[uuid.UUID]*domain.Team
}

func (f *fakeTeamStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Team, error) {
	team, ok := f.teams[id]
	if !ok {
		return nil, apperrors.Clone(apperrors.ErrNotFound, "team not found")
	}
	return team, nil
}

type fakeShareStore struct {
	shares  map[uuid.UUID]*domain.Share
	touched []uuid.UUID
}

func (f *fakeShareStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Share, error) {
	share, ok := f.shares[id]
	if !ok {
		return nil, apperrors.Clone(apperrors.ErrNotFound, "share not found")
	}
	return share, nil
}

func (f *fakeShareStore) TouchLastAccessed(_ context.Context, id uuid.UUID) error {
	f.touched = append(f.touched, id)
	return nil
}

// accessFixture — команда с одной коллекцией и поддеревом
//
//	root
//	└── child
//	    └── grandchild
//	sibling (другой корень коллекции)
type accessFixture struct {
	svc    *AccessService
	docs   *fakeDocumentStore
	teams  *fakeTeamStore
	shares *fakeShareStore
	colls  *fakeCollectionStore

	team       *domain.Team
	collection *domain.Collection
	root       *domain.Document
	child      *domain.Document
	grandchild *domain.Document
	sibling    *domain.Document
	share      *domain.Share

	owner  *auth.Actor
	member *auth.Actor
}

func newAccessFixture() *accessFixture {
	now := time.Now()
	team := &domain.Team{ID: uuid.New(), Name: "acme", Sharing: true}
	collection := &domain.Collection{ID: uuid.New(), TeamID: team.ID, Name: "docs", Sharing: true}

	owner := &auth.Actor{ID: uuid.New(), TeamID: team.ID, Role: auth.RoleMember}
	member := &auth.Actor{ID: uuid.New(), TeamID: team.ID, Role: auth.RoleMember}

	root := &domain.Document{
		ID:           uuid.New(),
		TeamID:       team.ID,
		CollectionID: &collection.ID,
		Title:        "root",
		OrderKey:     "V",
		CreatedBy:    owner.ID,
		PublishedAt:  &now,
	}
	child := &domain.Document{
		ID:               uuid.New(),
		TeamID:           team.ID,
		CollectionID:     &collection.ID,
		ParentDocumentID: &root.ID,
		Title:            "child",
		OrderKey:         "V",
		CreatedBy:        owner.ID,
		PublishedAt:      &now,
	}
	grandchild := &domain.Document{
		ID:               uuid.New(),
		TeamID:           team.ID,
		CollectionID:     &collection.ID,
		ParentDocumentID: &child.ID,
		Title:            "grandchild",
		OrderKey:         "V",
		CreatedBy:        owner.ID,
		PublishedAt:      &now,
	}
	sibling := &domain.Document{
		ID:           uuid.New(),
		TeamID:       team.ID,
		CollectionID: &collection.ID,
		Title:        "sibling",
		OrderKey:     "l",
		CreatedBy:    owner.ID,
		PublishedAt:  &now,
	}

	share := &domain.Share{
		ID:         uuid.New(),
		DocumentID: root.ID,
		TeamID:     team.ID,
		UserID:     owner.ID,
		Published:  true,
	}

	f := &accessFixture{
		docs: &fakeDocumentStore{
			docs: map[uuid.UUID]*domain.Document{
				root.ID: root, child.ID: child, grandchild.ID: grandchild, sibling.ID: sibling,
			},
		},
		colls:      &fakeCollectionStore{collections: map[uuid.UUID]*domain.Collection{collection.ID: collection}},
		teams:      &fakeTeamStore{teams: map[uuid.UUID]*domain.Team{team.ID: team}},
		shares:     &fakeShareStore{shares: map[uuid.UUID]*domain.Share{share.ID: share}},
		team:       team,
		collection: collection,
		root:       root,
		child:      child,
		grandchild: grandchild,
		sibling:    sibling,
		share:      share,
		owner:      owner,
		member:     member,
	}
	f.rebuildTreeRows()
	f.svc = NewAccessService(f.docs, f.colls, f.teams, f.shares, NewPolicyService(), zap.NewNop().Sugar())
	return f
}

// rebuildTreeRows пересобирает живые строки дерева из текущего состояния
// документов, как это делает репозиторий
func (f *accessFixture) rebuildTreeRows() {
	f.docs.treeRows = nil
	for _, doc := range f.docs.docs {
		if doc.ArchivedAt != nil || doc.DeletedAt != nil || doc.CollectionID == nil {
			continue
		}
		f.docs.treeRows = append(f.docs.treeRows, doctree.Row{
			ID:       doc.ID,
			ParentID: doc.ParentDocumentID,
			Title:    doc.Title,
			OrderKey: doc.OrderKey,
		})
	}
}

func TestResolveRequiresAnyID(t *testing.T) {
	f := newAccessFixture()
	_, err := f.svc.Resolve(context.Background(), ResolveInput{Actor: f.member})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestResolveDirectAnonymous(t *testing.T) {
	f := newAccessFixture()
	_, err := f.svc.Resolve(context.Background(), ResolveInput{DocumentID: &f.root.ID})
	assert.ErrorIs(t, err, apperrors.ErrAuthenticationRequired)
}

func TestResolveDirectPublished(t *testing.T) {
	f := newAccessFixture()
	result, err := f.svc.Resolve(context.Background(), ResolveInput{DocumentID: &f.root.ID, Actor: f.member})
	require.NoError(t, err)
	assert.Equal(t, f.root.ID, result.Document.ID)
	require.NotNil(t, result.Collection)
	assert.Equal(t, f.collection.ID, result.Collection.ID)
	assert.Nil(t, result.Share)
}

func TestResolveDirectArchivedNeedsRestoreCapability(t *testing.T) {
	f := newAccessFixture()
	now := time.Now()
	f.root.ArchivedAt = &now

	// Автор может адресовать архивный документ (право restore)
	result, err := f.svc.Resolve(context.Background(), ResolveInput{DocumentID: &f.root.ID, Actor: f.owner})
	require.NoError(t, err)
	assert.Equal(t, f.root.ID, result.Document.ID)

	// Обычный участник — нет
	_, err = f.svc.Resolve(context.Background(), ResolveInput{DocumentID: &f.root.ID, Actor: f.member})
	assert.ErrorIs(t, err, apperrors.ErrAuthorization)
}

func TestResolveDirectDeletedNeedsRestoreCapability(t *testing.T) {
	f := newAccessFixture()
	now := time.Now()
	f.root.DeletedAt = &now

	_, err := f.svc.Resolve(context.Background(), ResolveInput{DocumentID: &f.root.ID, Actor: f.owner})
	require.NoError(t, err)

	_, err = f.svc.Resolve(context.Background(), ResolveInput{DocumentID: &f.root.ID, Actor: f.member})
	assert.ErrorIs(t, err, apperrors.ErrAuthorization)
}

func TestResolveShareAnonymous(t *testing.T) {
	f := newAccessFixture()
	result, err := f.svc.Resolve(context.Background(), ResolveInput{ShareID: &f.share.ID})
	require.NoError(t, err)
	assert.Equal(t, f.root.ID, result.Document.ID)
	require.NotNil(t, result.Share)
	assert.Equal(t, f.share.ID, result.Share.ID)
	assert.Equal(t, []uuid.UUID{f.share.ID}, f.shares.touched)
}

func TestResolveShareMissing(t *testing.T) {
	f := newAccessFixture()
	missing := uuid.New()
	_, err := f.svc.Resolve(context.Background(), ResolveInput{ShareID: &missing})
	assert.ErrorIs(t, err, apperrors.ErrInvalidRequest)
}

func TestResolveShareRevoked(t *testing.T) {
	f := newAccessFixture()
	now := time.Now()
	f.share.RevokedAt = &now

	_, err := f.svc.Resolve(context.Background(), ResolveInput{ShareID: &f.share.ID})
	assert.ErrorIs(t, err, apperrors.ErrInvalidRequest)
	assert.Empty(t, f.shares.touched)
}

func TestResolveShareUnpublishedBlocksAnonymous(t *testing.T) {
	f := newAccessFixture()
	f.share.Published = false

	_, err := f.svc.Resolve(context.Background(), ResolveInput{ShareID: &f.share.ID})
	assert.ErrorIs(t, err, apperrors.ErrAuthorization)
}

func TestResolveShareIndependentRightsDominate(t *testing.T) {
	f := newAccessFixture()
	f.share.Published = false
	f.team.Sharing = false

	// Участник с собственным правом чтения проходит даже через
	// непубличную ссылку при выключенном командном шаринге
	result, err := f.svc.Resolve(context.Background(), ResolveInput{ShareID: &f.share.ID, Actor: f.member})
	require.NoError(t, err)
	assert.Equal(t, f.root.ID, result.Document.ID)
	assert.Equal(t, []uuid.UUID{f.share.ID}, f.shares.touched)
}

func TestResolveShareTeamSharingDisabled(t *testing.T) {
	f := newAccessFixture()
	f.team.Sharing = false

	_, err := f.svc.Resolve(context.Background(), ResolveInput{ShareID: &f.share.ID})
	assert.ErrorIs(t, err, apperrors.ErrAuthorization)
}

func TestResolveShareCollectionSharingDisabled(t *testing.T) {
	f := newAccessFixture()
	f.collection.Sharing = false

	_, err := f.svc.Resolve(context.Background(), ResolveInput{ShareID: &f.share.ID})
	assert.ErrorIs(t, err, apperrors.ErrAuthorization)
}

func TestResolveShareDeletedRoot(t *testing.T) {
	f := newAccessFixture()
	now := time.Now()
	f.root.DeletedAt = &now

	_, err := f.svc.Resolve(context.Background(), ResolveInput{ShareID: &f.share.ID})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestResolveShareDescendant(t *testing.T) {
	f := newAccessFixture()

	// Без includeChildDocuments потомок недостижим
	_, err := f.svc.Resolve(context.Background(), ResolveInput{ShareID: &f.share.ID, DocumentID: &f.grandchild.ID})
	assert.ErrorIs(t, err, apperrors.ErrAuthorization)

	f.share.IncludeChildDocuments = true
	result, err := f.svc.Resolve(context.Background(), ResolveInput{ShareID: &f.share.ID, DocumentID: &f.grandchild.ID})
	require.NoError(t, err)
	assert.Equal(t, f.grandchild.ID, result.Document.ID)
}

func TestResolveShareSiblingIsNotDescendant(t *testing.T) {
	f := newAccessFixture()
	f.share.IncludeChildDocuments = true

	_, err := f.svc.Resolve(context.Background(), ResolveInput{ShareID: &f.share.ID, DocumentID: &f.sibling.ID})
	assert.ErrorIs(t, err, apperrors.ErrAuthorization)
}

func TestResolveShareArchivedDescendantUnreachable(t *testing.T) {
	f := newAccessFixture()
	f.share.IncludeChildDocuments = true
	now := time.Now()
	f.child.ArchivedAt = &now
	f.grandchild.ArchivedAt = &now
	f.rebuildTreeRows()

	// Множество потомков пересчитывается по живому дереву: архивная
	// ветка выпадает немедленно, без изменения записи ссылки
	_, err := f.svc.Resolve(context.Background(), ResolveInput{ShareID: &f.share.ID, DocumentID: &f.grandchild.ID})
	assert.ErrorIs(t, err, apperrors.ErrAuthorization)
}

func TestResolveShareArchivedRootBlocksSubtree(t *testing.T) {
	f := newAccessFixture()
	f.share.IncludeChildDocuments = true
	// Архивация каскадная: корень уходит из живого дерева вместе с веткой
	now := time.Now()
	f.root.ArchivedAt = &now
	f.child.ArchivedAt = &now
	f.grandchild.ArchivedAt = &now
	f.rebuildTreeRows()

	_, err := f.svc.Resolve(context.Background(), ResolveInput{ShareID: &f.share.ID, DocumentID: &f.child.ID})
	assert.ErrorIs(t, err, apperrors.ErrAuthorization)
}
