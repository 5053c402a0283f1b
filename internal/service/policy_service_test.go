package service

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"docspace/internal/auth"
	"docspace/internal/domain"
)

func TestPolicyNilActor(t *testing.T) {
	policy := NewPolicyService()
	assert.False(t, policy.Can(nil, ActionRead, DocumentResource{Document: &domain.Document{}}))
}

func TestPolicyDocument(t *testing.T) {
	policy := NewPolicyService()
	teamID := uuid.New()
	now := time.Now()

	owner := &auth.Actor{ID: uuid.New(), TeamID: teamID, Role: auth.RoleMember}
	admin := &auth.Actor{ID: uuid.New(), TeamID: teamID, Role: auth.RoleAdmin}
	member := &auth.Actor{ID: uuid.New(), TeamID: teamID, Role: auth.RoleMember}
	viewer := &auth.Actor{ID: uuid.New(), TeamID: teamID, Role: auth.RoleViewer}
	outsider := &auth.Actor{ID: uuid.New(), TeamID: uuid.New(), Role: auth.RoleAdmin}

	published := &domain.Document{ID: uuid.New(), TeamID: teamID, CreatedBy: owner.ID, PublishedAt: &now}
	draft := &domain.Document{ID: uuid.New(), TeamID: teamID, CreatedBy: owner.ID}
	deleted := &domain.Document{ID: uuid.New(), TeamID: teamID, CreatedBy: owner.ID, PublishedAt: &now, DeletedAt: &now}

	// Чужая команда не видит ничего, роль не важна
	assert.False(t, policy.Can(outsider, ActionRead, DocumentResource{Document: published}))

	// Опубликованное читает вся команда, включая наблюдателя
	assert.True(t, policy.Can(viewer, ActionRead, DocumentResource{Document: published}))

	// Черновик видят автор и админ
	assert.True(t, policy.Can(owner, ActionRead, DocumentResource{Document: draft}))
	assert.True(t, policy.Can(admin, ActionRead, DocumentResource{Document: draft}))
	assert.False(t, policy.Can(member, ActionRead, DocumentResource{Document: draft}))

	// Удаленное не читается, но восстанавливается автором и админом
	assert.False(t, policy.Can(owner, ActionRead, DocumentResource{Document: deleted}))
	assert.True(t, policy.Can(owner, ActionRestore, DocumentResource{Document: deleted}))
	assert.True(t, policy.Can(admin, ActionRestore, DocumentResource{Document: deleted}))
	assert.False(t, policy.Can(member, ActionRestore, DocumentResource{Document: deleted}))

	// Мутации: наблюдателю нельзя, участнику можно на опубликованном
	assert.True(t, policy.Can(member, ActionMove, DocumentResource{Document: published}))
	assert.False(t, policy.Can(viewer, ActionMove, DocumentResource{Document: published}))
	assert.False(t, policy.Can(member, ActionArchive, DocumentResource{Document: draft}))
	assert.True(t, policy.Can(owner, ActionArchive, DocumentResource{Document: draft}))
	assert.False(t, policy.Can(member, ActionShare, DocumentResource{Document: deleted}))
}

func TestPolicyCollection(t *testing.T) {
	policy := NewPolicyService()
	teamID := uuid.New()
	now := time.Now()

	admin := &auth.Actor{ID: uuid.New(), TeamID: teamID, Role: auth.RoleAdmin}
	member := &auth.Actor{ID: uuid.New(), TeamID: teamID, Role: auth.RoleMember}
	viewer := &auth.Actor{ID: uuid.New(), TeamID: teamID, Role: auth.RoleViewer}

	collection := &domain.Collection{ID: uuid.New(), TeamID: teamID}
	deleted := &domain.Collection{ID: uuid.New(), TeamID: teamID, DeletedAt: &now}

	assert.True(t, policy.Can(viewer, ActionRead, CollectionResource{Collection: collection}))
	assert.True(t, policy.Can(member, ActionUpdate, CollectionResource{Collection: collection}))
	assert.False(t, policy.Can(viewer, ActionUpdate, CollectionResource{Collection: collection}))
	assert.False(t, policy.Can(member, ActionRead, CollectionResource{Collection: deleted}))
	assert.True(t, policy.Can(admin, ActionRepair, CollectionResource{Collection: collection}))
	assert.False(t, policy.Can(member, ActionRepair, CollectionResource{Collection: collection}))
	assert.False(t, policy.Can(admin, ActionRepair, CollectionResource{Collection: deleted}))
}

func TestPolicyShare(t *testing.T) {
	policy := NewPolicyService()
	teamID := uuid.New()

	creator := &auth.Actor{ID: uuid.New(), TeamID: teamID, Role: auth.RoleMember}
	admin := &auth.Actor{ID: uuid.New(), TeamID: teamID, Role: auth.RoleAdmin}
	member := &auth.Actor{ID: uuid.New(), TeamID: teamID, Role: auth.RoleMember}

	share := &domain.Share{ID: uuid.New(), TeamID: teamID, UserID: creator.ID}

	assert.True(t, policy.Can(creator, ActionRevoke, ShareResource{Share: share}))
	assert.True(t, policy.Can(admin, ActionRevoke, ShareResource{Share: share}))
	assert.False(t, policy.Can(member, ActionRevoke, ShareResource{Share: share}))
	assert.True(t, policy.Can(admin, ActionUpdate, ShareResource{Share: share}))
	assert.False(t, policy.Can(member, ActionRead, ShareResource{Share: share}))
}
