package claims

import "sort"

// GroupTracker is a disjoint-set over region ids. Ids are interned into an
// arena of integer slots; each root slot carries the group's representative
// id and its members in discovery order.
type GroupTracker struct {
	index   map[string]int
	ids     []string
	parent  []int
	rank    []int
	rep     map[int]string
	members map[int][]string
}

// NewGroupTracker returns an empty tracker.
func NewGroupTracker() *GroupTracker {
	return &GroupTracker{
		index:   make(map[string]int),
		rep:     make(map[int]string),
		members: make(map[int][]string),
	}
}

func (t *GroupTracker) slot(id string) int {
	if i, ok := t.index[id]; ok {
		return i
	}
	i := len(t.ids)
	t.index[id] = i
	t.ids = append(t.ids, id)
	t.parent = append(t.parent, i)
	t.rank = append(t.rank, 0)
	return i
}

func (t *GroupTracker) find(x int) int {
	for t.parent[x] != x {
		t.parent[x] = t.parent[t.parent[x]]
		x = t.parent[x]
	}
	return x
}

// IsGrouped reports whether id belongs to any group.
func (t *GroupTracker) IsGrouped(id string) bool {
	_, ok := t.index[id]
	return ok
}

// Find returns the representative of the group holding id.
func (t *GroupTracker) Find(id string) (string, bool) {
	i, ok := t.index[id]
	if !ok {
		return "", false
	}
	return t.rep[t.find(i)], true
}

// StartGroup creates a group from two ungrouped ids, represented by a.
// It is a no-op if either id is already grouped.
func (t *GroupTracker) StartGroup(a, b string) {
	if a == b || t.IsGrouped(a) || t.IsGrouped(b) {
		return
	}
	ia, ib := t.slot(a), t.slot(b)
	t.parent[ib] = ia
	t.rank[ia] = 1
	t.rep[ia] = a
	t.members[ia] = []string{a, b}
}

// JoinExisting adds an ungrouped id to the group that holds existing.
func (t *GroupTracker) JoinExisting(newMember, existing string) {
	if t.IsGrouped(newMember) {
		return
	}
	ie, ok := t.index[existing]
	if !ok {
		return
	}
	root := t.find(ie)
	in := t.slot(newMember)
	t.parent[in] = root
	t.members[root] = append(t.members[root], newMember)
}

// Merge unites the groups holding a and b. The representative of a's group
// survives and b's members are appended after a's. Merging ids that already
// share a group does nothing.
func (t *GroupTracker) Merge(a, b string) {
	ia, okA := t.index[a]
	ib, okB := t.index[b]
	if !okA || !okB {
		return
	}
	ra, rb := t.find(ia), t.find(ib)
	if ra == rb {
		return
	}

	rep := t.rep[ra]
	members := append(t.members[ra], t.members[rb]...)
	delete(t.rep, ra)
	delete(t.rep, rb)
	delete(t.members, ra)
	delete(t.members, rb)

	root := ra
	switch {
	case t.rank[ra] < t.rank[rb]:
		t.parent[ra] = rb
		root = rb
	case t.rank[ra] > t.rank[rb]:
		t.parent[rb] = ra
	default:
		t.parent[rb] = ra
		t.rank[ra]++
	}
	t.rep[root] = rep
	t.members[root] = members
}

// Groups returns every group sorted by representative id.
func (t *GroupTracker) Groups() []Group {
	groups := make([]Group, 0, len(t.rep))
	for root, rep := range t.rep {
		members := make([]string, len(t.members[root]))
		copy(members, t.members[root])
		groups = append(groups, Group{Representative: rep, Members: members})
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].Representative < groups[j].Representative
	})
	return groups
}

// Len returns the number of grouped ids.
func (t *GroupTracker) Len() int {
	return len(t.ids)
}
