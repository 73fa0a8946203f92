package claims

import (
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupOverlaps_TransitiveChain(t *testing.T) {
	// a overlaps b, b overlaps c, a and c are apart.
	w := newWorld(t,
		claim("a", 0, 0, 4, 4, alice),
		claim("b", 4, 0, 8, 4, alice),
		claim("c", 8, 0, 12, 4, alice),
	)

	groups := GroupOverlaps(w)

	require.Len(t, groups, 1)
	assert.Equal(t, "a", groups[0].Representative)
	assert.Equal(t, []string{"a", "b", "c"}, groups[0].Members)
}

func TestGroupOverlaps_JoinsTwoGroups(t *testing.T) {
	// a-c and b-d form separate groups until c and d are found to overlap.
	w := newWorld(t,
		claim("a", 0, 0, 2, 0, alice),
		claim("c", 2, 0, 5, 0, alice),
		claim("d", 5, 0, 8, 0, alice),
		claim("b", 8, 0, 10, 0, alice),
	)

	groups := GroupOverlaps(w)

	require.Len(t, groups, 1)
	assert.Equal(t, "a", groups[0].Representative)
	assert.Equal(t, []string{"a", "c", "b", "d"}, groups[0].Members)
}

func TestGroupOverlaps_Exclusions(t *testing.T) {
	foreign := claim("foreign", 3, 3, 6, 6, bob)

	unmanaged := claim("spawn", 0, 0, 10, 10, alice)
	delete(unmanaged.Flags, FlagBlockMaterial)

	child := claim("child", 1, 1, 2, 2, alice)
	child.Parent = "a"

	w := newWorld(t,
		claim("a", 0, 0, 4, 4, alice),
		foreign,
		unmanaged,
		child,
		claim("lonely", 20, 20, 22, 22, alice),
	)

	assert.Empty(t, GroupOverlaps(w))
}

func TestGroupOverlaps_Partition(t *testing.T) {
	w := newWorld(t,
		claim("a1", 0, 0, 4, 4, alice),
		claim("a2", 3, 3, 7, 7, alice),
		claim("b1", 5, 5, 9, 9, bob),
		claim("b2", 8, 8, 12, 12, bob),
		claim("a3", 9, 5, 11, 6, alice),
	)

	groups := GroupOverlaps(w)

	require.Len(t, groups, 2)
	seen := map[string]string{}
	for _, g := range groups {
		assert.GreaterOrEqual(t, len(g.Members), 2)
		assert.Contains(t, g.Members, g.Representative)
		for _, id := range g.Members {
			_, dup := seen[id]
			assert.False(t, dup, "%s appears in two groups", id)
			seen[id] = g.Representative
		}
	}
	assert.Equal(t, "a1", seen["a2"])
	assert.Equal(t, "b1", seen["b2"])
	assert.NotContains(t, seen, "a3", "a3 only overlaps b1, which is not equivalent")
}

// memberSets reduces groups to their sorted member lists, sorted, so two
// partitions compare equal regardless of representative or discovery order.
func memberSets(groups []Group) [][]string {
	out := make([][]string, 0, len(groups))
	for _, g := range groups {
		m := append([]string(nil), g.Members...)
		sort.Strings(m)
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return strings.Join(out[i], ",") < strings.Join(out[j], ",") })
	return out
}

func permutations(n int) [][]int {
	if n == 0 {
		return [][]int{{}}
	}
	var out [][]int
	for _, p := range permutations(n - 1) {
		for i := 0; i <= len(p); i++ {
			q := make([]int, 0, n)
			q = append(q, p[:i]...)
			q = append(q, n-1)
			q = append(q, p[i:]...)
			out = append(out, q)
		}
	}
	return out
}

func TestLink_PartitionIndependentOfOrder(t *testing.T) {
	// a-b and c-d start separate groups that b-c must merge; e-f stays apart.
	edges := [][2]string{{"a", "b"}, {"c", "d"}, {"b", "c"}, {"e", "f"}, {"d", "a"}}
	want := [][]string{{"a", "b", "c", "d"}, {"e", "f"}}

	for _, order := range permutations(len(edges)) {
		for flip := 0; flip < 1<<len(edges); flip++ {
			tracker := NewGroupTracker()
			for i, idx := range order {
				r, o := edges[idx][0], edges[idx][1]
				if flip&(1<<i) != 0 {
					r, o = o, r
				}
				link(tracker, r, o)
			}
			require.Equal(t, want, memberSets(tracker.Groups()), "order %v flip %b", order, flip)
			assert.Equal(t, 6, tracker.Len())
		}
	}
}

// reversedIndex lists regions in descending id order.
type reversedIndex struct {
	*MemoryWorld
}

func (r reversedIndex) Regions() []*Region {
	regions := r.MemoryWorld.Regions()
	for i, j := 0, len(regions)-1; i < j; i, j = i+1, j-1 {
		regions[i], regions[j] = regions[j], regions[i]
	}
	return regions
}

func TestGroupOverlaps_ScanOrderDoesNotChangePartition(t *testing.T) {
	w := newWorld(t,
		claim("z", 0, 0, 4, 4, alice),
		claim("m", 4, 4, 8, 8, alice),
		claim("b", 8, 0, 12, 4, alice),
		claim("q", 6, 2, 9, 5, alice),
		claim("x", 40, 40, 44, 44, bob),
		claim("y", 43, 43, 47, 47, bob),
	)

	forward := GroupOverlaps(w)
	backward := GroupOverlaps(reversedIndex{w})
	require.Len(t, forward, 2)
	assert.Equal(t, memberSets(forward), memberSets(backward))
	assert.Equal(t, [][]string{{"b", "m", "q", "z"}, {"x", "y"}}, memberSets(forward))
}
