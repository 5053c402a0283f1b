// Package doctree собирает дерево документов коллекции из плоских строк
// таблицы documents (parent_document_id + order_key) и выполняет над ним
// структурные операции. Дерево живет в памяти в рамках одного запроса;
// источником истины остаются строки БД.
package doctree

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	apperrors "docspace/pkg/errors"
)

// Row — плоская строка дерева, как ее возвращает репозиторий
type Row struct {
	ID       uuid.UUID
	ParentID *uuid.UUID
	URL      string
	Title    string
	OrderKey string
}

// Node — узел собранного дерева. Children упорядочены по OrderKey
type Node struct {
	ID       uuid.UUID `json:"id"`
	URL      string    `json:"url"`
	Title    string    `json:"title"`
	OrderKey string    `json:"-"`
	Children []*Node   `json:"children"`

	parent *Node
}

// Tree — индексированный лес узлов одной коллекции
type Tree struct {
	roots []*Node
	byID  map[uuid.UUID]*Node
}

// Build собирает дерево из строк. Нарушения целостности (дубликат id,
// ссылка на отсутствующего родителя) — это повреждение данных: они
// возвращаются как внутренняя ошибка и никогда не чинятся молча.
func Build(rows []Row) (*Tree, error) {
	t := &Tree{byID: make(map[uuid.UUID]*Node, len(rows))}

	for _, row := range rows {
		if _, ok := t.byID[row.ID]; ok {
			return nil, apperrors.Wrap(
				fmt.Errorf("duplicate node %s in tree", row.ID),
				apperrors.ErrInternal,
			)
		}
		t.byID[row.ID] = &Node{
			ID:       row.ID,
			URL:      row.URL,
			Title:    row.Title,
			OrderKey: row.OrderKey,
			Children: []*Node{},
		}
	}

	for _, row := range rows {
		node := t.byID[row.ID]
		if row.ParentID == nil {
			t.roots = append(t.roots, node)
			continue
		}
		parent, ok := t.byID[*row.ParentID]
		if !ok {
			return nil, apperrors.Wrap(
				fmt.Errorf("node %s references missing parent %s", row.ID, *row.ParentID),
				apperrors.ErrInternal,
			)
		}
		node.parent = parent
		parent.Children = append(parent.Children, node)
	}

	sortSiblings(t.roots)
	for _, node := range t.byID {
		sortSiblings(node.Children)
	}

	return t, nil
}

func sortSiblings(nodes []*Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		return nodes[i].OrderKey < nodes[j].OrderKey
	})
}

// Roots возвращает корневые узлы в порядке сортировки
func (t *Tree) Roots() []*Node {
	return t.roots
}

// Node возвращает узел по id
func (t *Tree) Node(id uuid.UUID) (*Node, bool) {
	node, ok := t.byID[id]
	return node, ok
}

// Len возвращает число узлов дерева
func (t *Tree) Len() int {
	return len(t.byID)
}

// Insert вставляет узел как ребенка parentID (nil — в корень) на позицию idx.
// Отрицательный idx означает вставку в конец. Родитель должен быть живым
// узлом этого дерева.
func (t *Tree) Insert(parentID *uuid.UUID, node *Node, idx int) error {
	if _, ok := t.byID[node.ID]; ok {
		return apperrors.Wrap(
			fmt.Errorf("node %s already present in tree", node.ID),
			apperrors.ErrInternal,
		)
	}

	siblings := &t.roots
	var parent *Node
	if parentID != nil {
		p, ok := t.byID[*parentID]
		if !ok {
			return apperrors.Clone(apperrors.ErrNotFound, "parent document not found in collection")
		}
		parent = p
		siblings = &p.Children
	}

	if idx < 0 || idx > len(*siblings) {
		idx = len(*siblings)
	}

	node.parent = parent
	*siblings = append(*siblings, nil)
	copy((*siblings)[idx+1:], (*siblings)[idx:])
	(*siblings)[idx] = node

	t.index(node)
	return nil
}

func (t *Tree) index(node *Node) {
	t.byID[node.ID] = node
	for _, child := range node.Children {
		child.parent = node
		t.index(child)
	}
}

// Remove отсоединяет узел вместе с поддеревом и возвращает его.
// Используется при перемещении (перед вставкой в другое место) и удалении.
func (t *Tree) Remove(id uuid.UUID) (*Node, error) {
	node, ok := t.byID[id]
	if !ok {
		return nil, apperrors.Clone(apperrors.ErrNotFound, "document not found in collection")
	}

	siblings := &t.roots
	if node.parent != nil {
		siblings = &node.parent.Children
	}
	for i, sibling := range *siblings {
		if sibling.ID == id {
			*siblings = append((*siblings)[:i], (*siblings)[i+1:]...)
			break
		}
	}

	t.unindex(node)
	node.parent = nil
	return node, nil
}

func (t *Tree) unindex(node *Node) {
	delete(t.byID, node.ID)
	for _, child := range node.Children {
		t.unindex(child)
	}
}

// Move перемещает узел под нового родителя внутри этого дерева.
// Узел не может стать собственным предком: проверяется явным проходом
// по цепочке предков назначения, O(глубины).
func (t *Tree) Move(id uuid.UUID, newParentID *uuid.UUID, idx int) error {
	if _, ok := t.byID[id]; !ok {
		return apperrors.Clone(apperrors.ErrNotFound, "document not found in collection")
	}

	if newParentID != nil {
		parent, ok := t.byID[*newParentID]
		if !ok {
			return apperrors.Clone(apperrors.ErrNotFound, "parent document not found in collection")
		}
		for cursor := parent; cursor != nil; cursor = cursor.parent {
			if cursor.ID == id {
				return apperrors.Clone(apperrors.ErrConflict, "document cannot become its own ancestor")
			}
		}
	}

	node, err := t.Remove(id)
	if err != nil {
		return err
	}
	return t.Insert(newParentID, node, idx)
}

// DescendantIDs возвращает id всех потомков узла (без самого узла)
func (t *Tree) DescendantIDs(id uuid.UUID) ([]uuid.UUID, error) {
	node, ok := t.byID[id]
	if !ok {
		return nil, apperrors.Clone(apperrors.ErrNotFound, "document not found in collection")
	}

	var ids []uuid.UUID
	var walk func(n *Node)
	walk = func(n *Node) {
		for _, child := range n.Children {
			ids = append(ids, child.ID)
			walk(child)
		}
	}
	walk(node)
	return ids, nil
}

// AncestorChain возвращает цепочку предков от корня до самого узла включительно
func (t *Tree) AncestorChain(id uuid.UUID) ([]uuid.UUID, error) {
	node, ok := t.byID[id]
	if !ok {
		return nil, apperrors.Clone(apperrors.ErrNotFound, "document not found in collection")
	}

	var chain []uuid.UUID
	for cursor := node; cursor != nil; cursor = cursor.parent {
		chain = append([]uuid.UUID{cursor.ID}, chain...)
	}
	return chain, nil
}

// SiblingKeys возвращает ключи соседей для вставки на позицию idx среди
// детей parentID (nil — корень). Пустая строка — отсутствие соседа.
// Узел skip исключается из списка: при перемещении внутри одного родителя
// старая позиция узла не должна влиять на выбор соседей.
func (t *Tree) SiblingKeys(parentID *uuid.UUID, idx int, skip uuid.UUID) (before, after string, err error) {
	siblings := t.roots
	if parentID != nil {
		parent, ok := t.byID[*parentID]
		if !ok {
			return "", "", apperrors.Clone(apperrors.ErrNotFound, "parent document not found in collection")
		}
		siblings = parent.Children
	}

	filtered := make([]*Node, 0, len(siblings))
	for _, sibling := range siblings {
		if sibling.ID == skip {
			continue
		}
		filtered = append(filtered, sibling)
	}

	if idx < 0 || idx > len(filtered) {
		idx = len(filtered)
	}
	if idx > 0 {
		before = filtered[idx-1].OrderKey
	}
	if idx < len(filtered) {
		after = filtered[idx].OrderKey
	}
	return before, after, nil
}
