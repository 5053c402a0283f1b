package service

import (
	"docspace/internal/auth"
	"docspace/internal/domain"
)

// Action определяет тип операции над ресурсом
type Action string

const (
	ActionRead      Action = "read"
	ActionUpdate    Action = "update"
	ActionMove      Action = "move"
	ActionArchive   Action = "archive"
	ActionRestore   Action = "restore"
	ActionUnpublish Action = "unpublish"
	ActionShare     Action = "share"
	ActionRevoke    Action = "revoke"
	ActionRepair    Action = "repair"
)

// Resource — закрытое множество вариантов ресурсов, по одному набору
// правил на вариант. Добавление нового варианта требует явной ветки
// в Can: компилятор не даст протащить неизвестный тип.
type Resource interface {
	policyResource()
}

type DocumentResource struct {
	Document *domain.Document
}

type CollectionResource struct {
	Collection *domain.Collection
}

type ShareResource struct {
	Share *domain.Share
}

func (DocumentResource) policyResource()   {}
func (CollectionResource) policyResource() {}
func (ShareResource) policyResource()      {}

// Policy — оракул возможностей: чистая функция от (актор, действие, ресурс).
// Решение вычисляется заново на каждый запрос и нигде не кэшируется.
type Policy interface {
	Can(actor *auth.Actor, action Action, resource Resource) bool
}

// PolicyService — стандартная ролевая реализация Policy
type PolicyService struct{}

func NewPolicyService() *PolicyService {
	return &PolicyService{}
}

func (s *PolicyService) Can(actor *auth.Actor, action Action, resource Resource) bool {
	if actor == nil {
		return false
	}

	switch res := resource.(type) {
	case DocumentResource:
		return s.canDocument(actor, action, res.Document)
	case CollectionResource:
		return s.canCollection(actor, action, res.Collection)
	case ShareResource:
		return s.canShare(actor, action, res.Share)
	default:
		return false
	}
}

func (s *PolicyService) canDocument(actor *auth.Actor, action Action, doc *domain.Document) bool {
	if doc == nil || actor.TeamID != doc.TeamID {
		return false
	}

	isOwner := actor.ID == doc.CreatedBy
	isAdmin := actor.Role == auth.RoleAdmin

	switch action {
	case ActionRead:
		if doc.DeletedAt != nil {
			// Мягко удаленный документ читается только через restore
			return false
		}
		if doc.IsPublished() {
			return true
		}
		// Черновики видят автор и администратор
		return isOwner || isAdmin

	case ActionRestore:
		return isOwner || isAdmin

	case ActionMove, ActionUpdate, ActionArchive, ActionUnpublish, ActionShare:
		if doc.DeletedAt != nil {
			return false
		}
		// Наблюдателю мутации запрещены
		if actor.Role == auth.RoleViewer {
			return false
		}
		if doc.IsPublished() {
			return true
		}
		return isOwner || isAdmin

	default:
		return false
	}
}

func (s *PolicyService) canCollection(actor *auth.Actor, action Action, collection *domain.Collection) bool {
	if collection == nil || actor.TeamID != collection.TeamID || collection.DeletedAt != nil {
		return false
	}

	switch action {
	case ActionRead:
		return true
	case ActionUpdate:
		return actor.Role != auth.RoleViewer
	case ActionRepair:
		// Пересборка индекса переписывает ключи всей коллекции разом
		return actor.Role == auth.RoleAdmin
	default:
		return false
	}
}

func (s *PolicyService) canShare(actor *auth.Actor, action Action, share *domain.Share) bool {
	if share == nil || actor.TeamID != share.TeamID {
		return false
	}

	switch action {
	case ActionUpdate, ActionRevoke:
		// Чужую ссылку трогает только администратор
		return actor.ID == share.UserID || actor.Role == auth.RoleAdmin
	default:
		return false
	}
}
