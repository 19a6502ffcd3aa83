package index

import (
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/model"
)

// ParentGroup maps each parent to the children discovered for it. It is fully
// built before augmentation starts and is only read afterwards, so it is safe
// to share between goroutines.
type ParentGroup struct {
	order    []model.ParentID
	children map[model.ParentID][]model.ChildRef
}

// Group groups refs by parent. Children keep their order of first appearance,
// and so do parents. Only parents referenced by at least one ref are present.
func Group(refs []model.ChildRef) *ParentGroup {
	return GroupWithParents(nil, refs)
}

// GroupWithParents behaves like Group but registers parents first, so a parent
// without any child is still part of the group with an empty child list.
func GroupWithParents(parents []model.ParentID, refs []model.ChildRef) *ParentGroup {
	g := &ParentGroup{
		children: make(map[model.ParentID][]model.ChildRef, len(parents)),
	}

	for _, p := range parents {
		g.add(p)
	}

	for _, ref := range refs {
		g.add(ref.Parent)
		g.children[ref.Parent] = append(g.children[ref.Parent], ref)
	}

	return g
}

func (g *ParentGroup) add(p model.ParentID) {
	if _, ok := g.children[p]; ok {
		return
	}
	g.order = append(g.order, p)
	g.children[p] = []model.ChildRef{}
}

// Parents returns the parents in first-seen order.
func (g *ParentGroup) Parents() []model.ParentID {
	out := make([]model.ParentID, len(g.order))
	copy(out, g.order)
	return out
}

func (g *ParentGroup) Has(p model.ParentID) bool {
	_, ok := g.children[p]
	return ok
}

func (g *ParentGroup) Children(p model.ParentID) []model.ChildRef {
	return g.children[p]
}

// ChildIDs returns the identifiers of the children of p, in order.
func (g *ParentGroup) ChildIDs(p model.ParentID) []model.ChildID {
	refs := g.children[p]
	ids := make([]model.ChildID, 0, len(refs))
	for _, ref := range refs {
		ids = append(ids, ref.Child)
	}
	return ids
}

// Len is the number of parents.
func (g *ParentGroup) Len() int {
	return len(g.order)
}

// ChildCount is the number of children across all parents.
func (g *ParentGroup) ChildCount() int {
	total := 0
	for _, refs := range g.children {
		total += len(refs)
	}
	return total
}
