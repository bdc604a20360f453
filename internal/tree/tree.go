// Package tree derives the display forest from a flat note collection.
//
// Nodes are only ever produced by Build; the forest is never persisted and is
// rebuilt from the collection after every mutation.
package tree

import "github.com/starford/ansuz/internal/models"

// Node is a note decorated with its ordered children.
type Node struct {
	models.Note
	Children []*Node `json:"children"`
}

// Build turns notes into a forest. Roots are notes without a parent or whose
// parent is not in the collection. Sibling and root order follow the input
// order. Build is pure and runs in time linear in len(notes).
//
// Cycles are cut: a note already on the current descent path is not attached
// again. Notes that are only reachable through a cycle are promoted to roots
// (in input order) so that every distinct id appears exactly once.
func Build(notes []models.Note) []*Node {
	present := make(map[models.NoteID]struct{}, len(notes))
	for _, n := range notes {
		present[n.ID] = struct{}{}
	}

	children := make(map[models.NoteID][]int, len(notes))
	roots := make([]int, 0)
	for i, n := range notes {
		parent := n.Parent()
		if _, ok := present[parent]; parent == "" || !ok {
			roots = append(roots, i)
			continue
		}
		children[parent] = append(children[parent], i)
	}

	b := &builder{
		notes:    notes,
		children: children,
		emitted:  make(map[models.NoteID]struct{}, len(notes)),
		onPath:   make(map[models.NoteID]struct{}),
	}

	forest := make([]*Node, 0, len(roots))
	for _, i := range roots {
		if node := b.assemble(i); node != nil {
			forest = append(forest, node)
		}
	}
	if len(b.emitted) < len(present) {
		for i := range notes {
			if node := b.assemble(i); node != nil {
				forest = append(forest, node)
			}
		}
	}
	return forest
}

type builder struct {
	notes    []models.Note
	children map[models.NoteID][]int
	emitted  map[models.NoteID]struct{}
	onPath   map[models.NoteID]struct{}
}

func (b *builder) assemble(i int) *Node {
	n := b.notes[i]
	if _, done := b.emitted[n.ID]; done {
		return nil
	}
	b.emitted[n.ID] = struct{}{}
	b.onPath[n.ID] = struct{}{}
	defer delete(b.onPath, n.ID)

	node := &Node{Note: n.Clone()}
	for _, c := range b.children[n.ID] {
		if _, cyclic := b.onPath[b.notes[c].ID]; cyclic {
			continue
		}
		if child := b.assemble(c); child != nil {
			node.Children = append(node.Children, child)
		}
	}
	return node
}

// Flatten returns the ids of the forest in pre-order.
func Flatten(forest []*Node) []models.NoteID {
	var out []models.NoteID
	var walk func([]*Node)
	walk = func(nodes []*Node) {
		for _, n := range nodes {
			out = append(out, n.ID)
			walk(n.Children)
		}
	}
	walk(forest)
	return out
}

// Find returns the node with id, or nil.
func Find(forest []*Node, id models.NoteID) *Node {
	for _, n := range forest {
		if n.ID == id {
			return n
		}
		if found := Find(n.Children, id); found != nil {
			return found
		}
	}
	return nil
}

// Count returns the number of nodes in the forest.
func Count(forest []*Node) int {
	total := 0
	for _, n := range forest {
		total += 1 + Count(n.Children)
	}
	return total
}

// Descendants returns id followed by every note below it in notes, breadth
// first. It returns nil when id is not in notes. Cycles are tolerated.
func Descendants(notes []models.Note, id models.NoteID) []models.NoteID {
	children := make(map[models.NoteID][]models.NoteID, len(notes))
	found := false
	for _, n := range notes {
		if n.ID == id {
			found = true
		}
		if n.ParentID != nil {
			children[*n.ParentID] = append(children[*n.ParentID], n.ID)
		}
	}
	if !found {
		return nil
	}

	seen := map[models.NoteID]struct{}{id: {}}
	out := []models.NoteID{id}
	for i := 0; i < len(out); i++ {
		for _, c := range children[out[i]] {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}
