package cohort

import (
	"errors"
	"fmt"
	"slices"
)

// CriterionID references a criterion in a Tree. IDs are 1-based; zero means
// none.
type CriterionID int

// CorrelatedID references a correlated criteria node in a Tree.
type CorrelatedID int

// GroupID references a criteria group in a Tree.
type GroupID int

// NoGroup is the zero GroupID.
const NoGroup GroupID = 0

var (
	// ErrDanglingReference is returned when a node names an ID that has not
	// been added yet.
	ErrDanglingReference = errors.New("dangling reference")
	// ErrNilCriterion is returned when adding a nil criterion.
	ErrNilCriterion = errors.New("nil criterion")
)

type criterionNode struct {
	value      Criterion
	correlated GroupID
}

// Tree is the arena holding criteria, correlated criteria and groups.
//
// Add methods only accept references to nodes that already exist, so every
// edge points from a newer node to an older one and the structure cannot
// contain a cycle. The zero value is an empty tree.
type Tree struct {
	criteria   []criterionNode
	correlated []CorrelatedCriteria
	groups     []CriteriaGroup
}

// AddCriterion adds c with an optional nested group of correlated criteria
// (NoGroup for none).
func (t *Tree) AddCriterion(c Criterion, correlated GroupID) (CriterionID, error) {
	if c == nil {
		return 0, ErrNilCriterion
	}
	if correlated != NoGroup && !t.hasGroup(correlated) {
		return 0, fmt.Errorf("criterion %s: group %d: %w", c.Kind(), correlated, ErrDanglingReference)
	}
	t.criteria = append(t.criteria, criterionNode{value: c, correlated: correlated})
	return CriterionID(len(t.criteria)), nil
}

// AddCorrelated adds a correlated criteria node.
func (t *Tree) AddCorrelated(cc CorrelatedCriteria) (CorrelatedID, error) {
	if !t.hasCriterion(cc.Criteria) {
		return 0, fmt.Errorf("correlated criteria: criterion %d: %w", cc.Criteria, ErrDanglingReference)
	}
	if cc.EndWindow != nil {
		w := *cc.EndWindow
		cc.EndWindow = &w
	}
	if cc.Occurrence != nil {
		o := *cc.Occurrence
		cc.Occurrence = &o
	}
	t.correlated = append(t.correlated, cc)
	return CorrelatedID(len(t.correlated)), nil
}

// AddGroup adds a criteria group. Member slices are copied.
func (t *Tree) AddGroup(g CriteriaGroup) (GroupID, error) {
	for _, id := range g.CriteriaList {
		if id < 1 || int(id) > len(t.correlated) {
			return 0, fmt.Errorf("group: correlated criteria %d: %w", id, ErrDanglingReference)
		}
	}
	for _, id := range g.Groups {
		if !t.hasGroup(id) {
			return 0, fmt.Errorf("group: nested group %d: %w", id, ErrDanglingReference)
		}
	}
	t.groups = append(t.groups, cloneGroup(g))
	return GroupID(len(t.groups)), nil
}

// MustAddCriterion is AddCriterion that panics on error.
func (t *Tree) MustAddCriterion(c Criterion, correlated GroupID) CriterionID {
	id, err := t.AddCriterion(c, correlated)
	if err != nil {
		panic(err)
	}
	return id
}

// MustAddCorrelated is AddCorrelated that panics on error.
func (t *Tree) MustAddCorrelated(cc CorrelatedCriteria) CorrelatedID {
	id, err := t.AddCorrelated(cc)
	if err != nil {
		panic(err)
	}
	return id
}

// MustAddGroup is AddGroup that panics on error.
func (t *Tree) MustAddGroup(g CriteriaGroup) GroupID {
	id, err := t.AddGroup(g)
	if err != nil {
		panic(err)
	}
	return id
}

// Criterion returns the criterion and its nested group.
func (t *Tree) Criterion(id CriterionID) (Criterion, GroupID, bool) {
	if !t.hasCriterion(id) {
		return nil, NoGroup, false
	}
	n := t.criteria[id-1]
	return n.value, n.correlated, true
}

// Correlated returns a copy of a correlated criteria node.
func (t *Tree) Correlated(id CorrelatedID) (CorrelatedCriteria, bool) {
	if id < 1 || int(id) > len(t.correlated) {
		return CorrelatedCriteria{}, false
	}
	return t.correlated[id-1], true
}

// Group returns a copy of a criteria group.
func (t *Tree) Group(id GroupID) (CriteriaGroup, bool) {
	if !t.hasGroup(id) {
		return CriteriaGroup{}, false
	}
	return cloneGroup(t.groups[id-1]), true
}

func (t *Tree) hasCriterion(id CriterionID) bool {
	return id >= 1 && int(id) <= len(t.criteria)
}

func (t *Tree) hasGroup(id GroupID) bool {
	return id >= 1 && int(id) <= len(t.groups)
}

func cloneGroup(g CriteriaGroup) CriteriaGroup {
	g.CriteriaList = slices.Clone(g.CriteriaList)
	g.DemographicCriteriaList = slices.Clone(g.DemographicCriteriaList)
	g.Groups = slices.Clone(g.Groups)
	if g.Count != nil {
		g.Count = Ptr(*g.Count)
	}
	return g
}
