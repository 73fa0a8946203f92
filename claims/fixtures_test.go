package claims

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var (
	alice = uuid.MustParse("0b9f6a4e-5c1d-4d0e-9b51-1f1a2f3c4d01")
	bob   = uuid.MustParse("0b9f6a4e-5c1d-4d0e-9b51-1f1a2f3c4d02")
	carol = uuid.MustParse("0b9f6a4e-5c1d-4d0e-9b51-1f1a2f3c4d03")
)

// claim builds a managed cuboid claim owned by owner.
func claim(id string, minX, minZ, maxX, maxZ int, owner uuid.UUID) *Region {
	return &Region{
		ID:       id,
		Geometry: RectPolygon(minX, minZ, maxX, maxZ),
		Owners:   NewPrincipalSet(owner),
		Members:  NewPrincipalSet(),
		Flags: Flags{
			FlagBlockMaterial: StringFlag("DIAMOND_BLOCK"),
			"pvp":             StringFlag("deny"),
		},
	}
}

func newWorld(t *testing.T, regions ...*Region) *MemoryWorld {
	t.Helper()
	w := NewMemoryWorld("world")
	for _, r := range regions {
		require.NoError(t, w.PutRegion(r))
	}
	return w
}

func newHost(t *testing.T, regions ...*Region) (*MemoryHost, *MemoryWorld) {
	t.Helper()
	h := NewMemoryHost()
	w := h.AddWorld("world")
	for _, r := range regions {
		require.NoError(t, w.PutRegion(r))
	}
	return h, w
}

func regionIDs(rs []*Region) []string {
	ids := make([]string, len(rs))
	for i, r := range rs {
		ids[i] = r.ID
	}
	return ids
}

// frame returns four equivalent claims enclosing the 3x3 block 1..3 x 1..3.
func frame(owner uuid.UUID) []*Region {
	return []*Region{
		claim("bottom", 0, 4, 4, 4, owner),
		claim("left", 0, 0, 0, 4, owner),
		claim("right", 4, 0, 4, 4, owner),
		claim("top", 0, 0, 4, 0, owner),
	}
}
