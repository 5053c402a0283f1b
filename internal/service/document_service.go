package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"docspace/internal/auth"
	"docspace/internal/doctree"
	"docspace/internal/domain"
	"docspace/internal/events"
	"docspace/internal/fracindex"
	"docspace/internal/repository"
	apperrors "docspace/pkg/errors"
)

// Бюджет повторов при коллизии ключа сортировки. Коллизия возможна только
// между конкурентными вставками в одну позицию, поэтому повторяем с заново
// прочитанными соседями, а не сериализуем блокировкой.
const orderKeyRetries = 3

type treeDocumentStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Document, error)
	GetByIDUnscoped(ctx context.Context, id uuid.UUID) (*domain.Document, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Document, error)
	ListTreeRowsTx(ctx context.Context, tx *sqlx.Tx, collectionID uuid.UUID) ([]doctree.Row, error)
	Create(ctx context.Context, q sqlx.ExtContext, doc *domain.Document) error
	UpdatePlacement(ctx context.Context, tx *sqlx.Tx, id, collectionID uuid.UUID, parentID *uuid.UUID, orderKey string) error
	SetOrderKey(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, orderKey string) error
	ClearOrderKeys(ctx context.Context, tx *sqlx.Tx, ids []uuid.UUID) error
	UpdateCollection(ctx context.Context, tx *sqlx.Tx, ids []uuid.UUID, collectionID uuid.UUID) error
	ArchiveMany(ctx context.Context, tx *sqlx.Tx, ids []uuid.UUID, at time.Time) error
	RestoreMany(ctx context.Context, tx *sqlx.Tx, rootID, teamID uuid.UUID, archivedAt time.Time) ([]uuid.UUID, error)
	Unpublish(ctx context.Context, id uuid.UUID) error
}

type treeCollectionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Collection, error)
	BeginTx(ctx context.Context) (*sqlx.Tx, error)
	Lock(ctx context.Context, tx *sqlx.Tx, ids ...uuid.UUID) error
}

// DocumentService выполняет структурные мутации дерева коллекции.
// Каждая мутация идет в одной транзакции со строчной блокировкой
// затронутых коллекций: два конкурентных перемещения в одной коллекции
// не могут переплести свои чтения-записи дерева.
type DocumentService struct {
	docs        treeDocumentStore
	collections treeCollectionStore
	policy      Policy
	emitter     events.Emitter
	log         *zap.SugaredLogger
}

func NewDocumentService(
	docs treeDocumentStore,
	collections treeCollectionStore,
	policy Policy,
	emitter events.Emitter,
	log *zap.SugaredLogger,
) *DocumentService {
	return &DocumentService{
		docs:        docs,
		collections: collections,
		policy:      policy,
		emitter:     emitter,
		log:         log,
	}
}

type CreateDocumentInput struct {
	Title            string
	CollectionID     *uuid.UUID
	ParentDocumentID *uuid.UUID
	Publish          bool
	Actor            *auth.Actor
}

// Create создает документ: черновик вне коллекции либо лист живого дерева
func (s *DocumentService) Create(ctx context.Context, in CreateDocumentInput) (*domain.Document, error) {
	if in.Actor == nil {
		return nil, apperrors.ErrAuthenticationRequired
	}
	if in.Title == "" {
		return nil, apperrors.Clone(apperrors.ErrValidation, "title is required")
	}
	if in.CollectionID == nil && in.ParentDocumentID != nil {
		return nil, apperrors.Clone(apperrors.ErrValidation, "parent requires a collection")
	}

	doc := &domain.Document{
		ID:               uuid.New(),
		TeamID:           in.Actor.TeamID,
		CollectionID:     in.CollectionID,
		ParentDocumentID: in.ParentDocumentID,
		Title:            in.Title,
		URLID:            urlID(),
		CreatedBy:        in.Actor.ID,
	}
	if in.Publish {
		now := time.Now()
		doc.PublishedAt = &now
	}

	if in.CollectionID == nil {
		// Черновик: в дереве не участвует, ключ не назначается
		tx, err := s.collections.BeginTx(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback()

		if err := s.docs.Create(ctx, tx, doc); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit transaction: %w", err)
		}
		return doc, nil
	}

	collection, err := s.collections.GetByID(ctx, *in.CollectionID)
	if err != nil {
		return nil, err
	}
	if !s.policy.Can(in.Actor, ActionUpdate, CollectionResource{Collection: collection}) {
		return nil, apperrors.ErrAuthorization
	}

	for attempt := 0; attempt < orderKeyRetries; attempt++ {
		err = s.createInTree(ctx, doc)
		if err == nil {
			return doc, nil
		}
		if !errors.Is(err, repository.ErrDuplicateOrderKey) {
			return nil, err
		}
		s.log.Infow("[Create] order key collision, retrying", "document_id", doc.ID, "attempt", attempt+1)
	}

	return nil, apperrors.Clone(apperrors.ErrConflict, "could not assign a unique order key")
}

// createInTree — одна попытка вставки листа: блокировка коллекции,
// выбор соседей, вставка. При коллизии ключа транзакция откатывается
// целиком и вызывающая сторона повторяет с новыми соседями.
func (s *DocumentService) createInTree(ctx context.Context, doc *domain.Document) error {
	tx, err := s.collections.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.collections.Lock(ctx, tx, *doc.CollectionID); err != nil {
		return err
	}

	rows, err := s.docs.ListTreeRowsTx(ctx, tx, *doc.CollectionID)
	if err != nil {
		return err
	}
	tree, err := doctree.Build(rows)
	if err != nil {
		return err
	}

	before, after, err := tree.SiblingKeys(doc.ParentDocumentID, -1, doc.ID)
	if err != nil {
		return err
	}
	key, err := fracindex.Between(before, after)
	if err != nil {
		return fmt.Errorf("failed to generate order key: %w", err)
	}
	doc.OrderKey = key

	if err := s.docs.Create(ctx, tx, doc); err != nil {
		return err
	}
	return tx.Commit()
}

type MoveInput struct {
	DocumentID      uuid.UUID
	NewCollectionID uuid.UUID
	NewParentID     *uuid.UUID
	Index           *int
	Actor           *auth.Actor
}

type MoveResult struct {
	Documents   []*domain.Document   `json:"documents"`
	Collections []*domain.Collection `json:"collections"`
}

// Move перемещает документ внутри коллекции или между коллекциями.
// Авторизация проверяется до любых мутаций: при отказе ни одно из
// деревьев не меняется.
func (s *DocumentService) Move(ctx context.Context, in MoveInput) (*MoveResult, error) {
	if in.Actor == nil {
		return nil, apperrors.ErrAuthenticationRequired
	}

	doc, err := s.docs.GetByID(ctx, in.DocumentID)
	if err != nil {
		return nil, err
	}
	if !doc.IsActive() {
		return nil, apperrors.Clone(apperrors.ErrInvalidRequest, "archived document cannot be moved")
	}
	if doc.CollectionID == nil {
		return nil, apperrors.Clone(apperrors.ErrInvalidRequest, "draft is not part of a collection")
	}

	if !s.policy.Can(in.Actor, ActionMove, DocumentResource{Document: doc}) {
		return nil, apperrors.ErrAuthorization
	}
	destCollection, err := s.collections.GetByID(ctx, in.NewCollectionID)
	if err != nil {
		return nil, err
	}
	if !s.policy.Can(in.Actor, ActionUpdate, CollectionResource{Collection: destCollection}) {
		return nil, apperrors.ErrAuthorization
	}

	sourceID := *doc.CollectionID

	var descendants []uuid.UUID
	for attempt := 0; attempt < orderKeyRetries; attempt++ {
		descendants, err = s.moveOnce(ctx, doc, sourceID, in)
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrDuplicateOrderKey) {
			return nil, err
		}
		s.log.Infow("[Move] order key collision, retrying", "document_id", doc.ID, "attempt", attempt+1)
	}
	if errors.Is(err, repository.ErrDuplicateOrderKey) {
		return nil, apperrors.Clone(apperrors.ErrConflict, "could not assign a unique order key")
	}

	s.emitter.Emit(events.Event{
		Name:       events.DocumentMoved,
		ActorID:    in.Actor.ID,
		TeamID:     doc.TeamID,
		DocumentID: doc.ID,
	})

	result := &MoveResult{}
	result.Documents, err = s.docs.ListByIDs(ctx, append([]uuid.UUID{doc.ID}, descendants...))
	if err != nil {
		return nil, err
	}
	if sourceID != in.NewCollectionID {
		// Перемещение уже зафиксировано, неудача здесь портит только ответ
		sourceCollection, err := s.collections.GetByID(ctx, sourceID)
		if err != nil {
			s.log.Warnw("[Move] failed to reload source collection", "collection_id", sourceID, "error", err)
		} else {
			result.Collections = append(result.Collections, sourceCollection)
		}
	}
	result.Collections = append(result.Collections, destCollection)

	return result, nil
}

// moveOnce — одна транзакционная попытка перемещения
func (s *DocumentService) moveOnce(
	ctx context.Context,
	doc *domain.Document,
	sourceID uuid.UUID,
	in MoveInput,
) ([]uuid.UUID, error) {
	tx, err := s.collections.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Блокировки берутся в фиксированном глобальном порядке по id,
	// иначе два встречных межколлекционных перемещения могут дедлокнуться
	if err := s.collections.Lock(ctx, tx, sourceID, in.NewCollectionID); err != nil {
		return nil, err
	}

	sourceRows, err := s.docs.ListTreeRowsTx(ctx, tx, sourceID)
	if err != nil {
		return nil, err
	}
	sourceTree, err := doctree.Build(sourceRows)
	if err != nil {
		return nil, err
	}

	descendants, err := sourceTree.DescendantIDs(doc.ID)
	if err != nil {
		return nil, err
	}

	destTree := sourceTree
	crossCollection := sourceID != in.NewCollectionID
	if crossCollection {
		destRows, err := s.docs.ListTreeRowsTx(ctx, tx, in.NewCollectionID)
		if err != nil {
			return nil, err
		}
		destTree, err = doctree.Build(destRows)
		if err != nil {
			return nil, err
		}
	}

	// Узел не может стать собственным предком: идем по цепочке предков
	// назначения и сравниваем с перемещаемым id
	if in.NewParentID != nil {
		if *in.NewParentID == doc.ID {
			return nil, apperrors.Clone(apperrors.ErrConflict, "document cannot be its own parent")
		}
		chain, err := destTree.AncestorChain(*in.NewParentID)
		if err != nil {
			return nil, err
		}
		for _, id := range chain {
			if id == doc.ID {
				return nil, apperrors.Clone(apperrors.ErrConflict, "document cannot be moved under its own descendant")
			}
		}
	}

	idx := -1
	if in.Index != nil {
		idx = *in.Index
	}
	before, after, err := destTree.SiblingKeys(in.NewParentID, idx, doc.ID)
	if err != nil {
		return nil, err
	}
	key, err := fracindex.Between(before, after)
	if err != nil {
		return nil, fmt.Errorf("failed to generate order key: %w", err)
	}

	if err := s.docs.UpdatePlacement(ctx, tx, doc.ID, in.NewCollectionID, in.NewParentID, key); err != nil {
		return nil, err
	}
	if crossCollection {
		// Поддерево переезжает между коллекциями одной логической операцией
		if err := s.docs.UpdateCollection(ctx, tx, descendants, in.NewCollectionID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	doc.CollectionID = &in.NewCollectionID
	doc.ParentDocumentID = in.NewParentID
	doc.OrderKey = key
	return descendants, nil
}

// Archive архивирует документ вместе с потомками одной отметкой времени,
// чтобы restore мог восстановить ровно это поддерево
func (s *DocumentService) Archive(ctx context.Context, id uuid.UUID, actor *auth.Actor) ([]uuid.UUID, error) {
	if actor == nil {
		return nil, apperrors.ErrAuthenticationRequired
	}

	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.ArchivedAt != nil {
		return nil, apperrors.Clone(apperrors.ErrInvalidRequest, "document is already archived")
	}
	if !s.policy.Can(actor, ActionArchive, DocumentResource{Document: doc}) {
		return nil, apperrors.ErrAuthorization
	}

	ids := []uuid.UUID{doc.ID}

	tx, err := s.collections.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if doc.CollectionID != nil {
		if err := s.collections.Lock(ctx, tx, *doc.CollectionID); err != nil {
			return nil, err
		}
		rows, err := s.docs.ListTreeRowsTx(ctx, tx, *doc.CollectionID)
		if err != nil {
			return nil, err
		}
		tree, err := doctree.Build(rows)
		if err != nil {
			return nil, err
		}
		descendants, err := tree.DescendantIDs(doc.ID)
		if err != nil {
			return nil, err
		}
		ids = append(ids, descendants...)
	}

	if err := s.docs.ArchiveMany(ctx, tx, ids, time.Now()); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.emitter.Emit(events.Event{
		Name:       events.DocumentArchived,
		ActorID:    actor.ID,
		TeamID:     doc.TeamID,
		DocumentID: doc.ID,
	})
	return ids, nil
}

// Restore снимает архивную отметку с поддерева. Документ возвращается
// к прежнему родителю, если тот еще жив, иначе — в корень коллекции
func (s *DocumentService) Restore(ctx context.Context, id uuid.UUID, actor *auth.Actor) (*domain.Document, error) {
	if actor == nil {
		return nil, apperrors.ErrAuthenticationRequired
	}

	doc, err := s.docs.GetByIDUnscoped(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.DeletedAt != nil {
		return nil, apperrors.Clone(apperrors.ErrInvalidRequest, "deleted document cannot be restored")
	}
	if doc.ArchivedAt == nil {
		return nil, apperrors.Clone(apperrors.ErrInvalidRequest, "document is not archived")
	}
	if !s.policy.Can(actor, ActionRestore, DocumentResource{Document: doc}) {
		return nil, apperrors.ErrAuthorization
	}

	tx, err := s.collections.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if doc.CollectionID != nil {
		if err := s.collections.Lock(ctx, tx, *doc.CollectionID); err != nil {
			return nil, err
		}
	}

	if _, err := s.docs.RestoreMany(ctx, tx, doc.ID, doc.TeamID, *doc.ArchivedAt); err != nil {
		return nil, err
	}
	doc.ArchivedAt = nil

	if doc.CollectionID != nil {
		rows, err := s.docs.ListTreeRowsTx(ctx, tx, *doc.CollectionID)
		if err != nil {
			return nil, err
		}
		tree, err := doctree.Build(rows)
		if err != nil {
			return nil, err
		}

		// Прежний родитель мог исчезнуть из живого дерева за время архива
		if doc.ParentDocumentID != nil {
			if _, ok := tree.Node(*doc.ParentDocumentID); !ok {
				before, after, err := tree.SiblingKeys(nil, -1, doc.ID)
				if err != nil {
					return nil, err
				}
				key, err := fracindex.Between(before, after)
				if err != nil {
					return nil, fmt.Errorf("failed to generate order key: %w", err)
				}
				if err := s.docs.UpdatePlacement(ctx, tx, doc.ID, *doc.CollectionID, nil, key); err != nil {
					return nil, err
				}
				doc.ParentDocumentID = nil
				doc.OrderKey = key
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.emitter.Emit(events.Event{
		Name:       events.DocumentRestored,
		ActorID:    actor.ID,
		TeamID:     doc.TeamID,
		DocumentID: doc.ID,
	})
	return doc, nil
}

// Unpublish снимает публикацию. Документ с живыми детьми снять с публикации
// нельзя: дети осиротели бы в дереве коллекции
func (s *DocumentService) Unpublish(ctx context.Context, id uuid.UUID, actor *auth.Actor) (*domain.Document, error) {
	if actor == nil {
		return nil, apperrors.ErrAuthenticationRequired
	}

	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !doc.IsPublished() {
		return nil, apperrors.Clone(apperrors.ErrInvalidRequest, "document is not published")
	}
	if !s.policy.Can(actor, ActionUnpublish, DocumentResource{Document: doc}) {
		return nil, apperrors.ErrAuthorization
	}

	if doc.CollectionID != nil {
		tx, err := s.collections.BeginTx(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback()

		if err := s.collections.Lock(ctx, tx, *doc.CollectionID); err != nil {
			return nil, err
		}
		rows, err := s.docs.ListTreeRowsTx(ctx, tx, *doc.CollectionID)
		if err != nil {
			return nil, err
		}
		tree, err := doctree.Build(rows)
		if err != nil {
			return nil, err
		}
		if node, ok := tree.Node(doc.ID); ok && len(node.Children) > 0 {
			return nil, apperrors.Clone(apperrors.ErrInvalidRequest, "document has child documents")
		}
	}

	if err := s.docs.Unpublish(ctx, doc.ID); err != nil {
		return nil, err
	}

	doc.PublishedAt = nil
	doc.CollectionID = nil
	doc.ParentDocumentID = nil
	return doc, nil
}

// RepairIndex заново выдает равномерные ключи всем спискам соседей
// коллекции, где текущие ключи отсутствуют или не согласованы.
// Идемпотентная обслуживающая операция: повторный запуск на починенной
// коллекции не меняет ничего.
func (s *DocumentService) RepairIndex(ctx context.Context, collectionID uuid.UUID, actor *auth.Actor) (map[uuid.UUID]string, error) {
	if actor == nil {
		return nil, apperrors.ErrAuthenticationRequired
	}

	collection, err := s.collections.GetByID(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	if !s.policy.Can(actor, ActionRepair, CollectionResource{Collection: collection}) {
		return nil, apperrors.ErrAuthorization
	}

	tx, err := s.collections.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.collections.Lock(ctx, tx, collectionID); err != nil {
		return nil, err
	}

	rows, err := s.docs.ListTreeRowsTx(ctx, tx, collectionID)
	if err != nil {
		return nil, err
	}
	tree, err := doctree.Build(rows)
	if err != nil {
		return nil, err
	}

	changes := make(map[uuid.UUID]string)
	var walk func(siblings []*doctree.Node)
	walk = func(siblings []*doctree.Node) {
		if len(siblings) > 0 {
			keys := fracindex.Spread(len(siblings))
			for i, node := range siblings {
				if node.OrderKey != keys[i] {
					changes[node.ID] = keys[i]
				}
			}
		}
		for _, node := range siblings {
			walk(node.Children)
		}
	}
	walk(tree.Roots())

	if len(changes) == 0 {
		return changes, nil
	}

	// Сначала освобождаем старые ключи, потом записываем новые: иначе
	// новый ключ одного соседа может совпасть со старым ключом другого
	ids := make([]uuid.UUID, 0, len(changes))
	for id := range changes {
		ids = append(ids, id)
	}
	if err := s.docs.ClearOrderKeys(ctx, tx, ids); err != nil {
		return nil, err
	}
	for id, key := range changes {
		if err := s.docs.SetOrderKey(ctx, tx, id, key); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.log.Infow("[RepairIndex] reassigned order keys", "collection_id", collectionID, "changed", len(changes))
	return changes, nil
}

// Structure возвращает живое дерево коллекции для отображения
func (s *DocumentService) Structure(ctx context.Context, collectionID uuid.UUID, actor *auth.Actor) ([]*doctree.Node, error) {
	if actor == nil {
		return nil, apperrors.ErrAuthenticationRequired
	}

	collection, err := s.collections.GetByID(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	if !s.policy.Can(actor, ActionRead, CollectionResource{Collection: collection}) {
		return nil, apperrors.ErrAuthorization
	}

	tx, err := s.collections.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := s.docs.ListTreeRowsTx(ctx, tx, collectionID)
	if err != nil {
		return nil, err
	}
	tree, err := doctree.Build(rows)
	if err != nil {
		return nil, err
	}
	return tree.Roots(), nil
}
