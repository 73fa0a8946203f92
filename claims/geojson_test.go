package claims

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegionFeature(t *testing.T) {
	r := claim("a", 0, 0, 2, 1, alice)
	r.Members = NewPrincipalSet(carol, bob)
	r.Parent = "outer"
	r.Priority = 5
	r.Flags[FlagMergedRegions] = ListFlag("x")
	r.Flags["deny-entry"] = PrincipalsFlag(carol)

	f := RegionFeature(r)

	assert.Equal(t, "a", f.ID)
	assert.IsType(t, orb.Polygon{}, f.Geometry)
	assert.Equal(t, 6, f.Properties["cells"])
	assert.Equal(t, "outer", f.Properties["parent"])
	assert.Equal(t, 5, f.Properties["priority"])
	assert.Equal(t, []string{alice.String()}, f.Properties["owners"])
	assert.Equal(t, []string{bob.String(), carol.String()}, f.Properties["members"])

	flags, ok := f.Properties["flags"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "DIAMOND_BLOCK", flags[FlagBlockMaterial])
	assert.Equal(t, []string{"x"}, flags[FlagMergedRegions])
	assert.Equal(t, []string{carol.String()}, flags["deny-entry"])
}

func TestRegionFeature_OmitsDefaults(t *testing.T) {
	f := RegionFeature(claim("a", 0, 0, 1, 1, alice))
	assert.NotContains(t, f.Properties, "parent")
	assert.NotContains(t, f.Properties, "priority")
}

func TestSaveFeatureCollection(t *testing.T) {
	w := newWorld(t,
		claim("a", 0, 0, 4, 4, alice),
		claim("b", 10, 10, 12, 12, bob),
	)
	path := filepath.Join(t.TempDir(), "regions.geojson")

	require.NoError(t, SaveFeatureCollection(WorldFeatureCollection(w), path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	fc, err := geojson.UnmarshalFeatureCollection(data)
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)
	assert.Equal(t, "a", fc.Features[0].Properties.MustString("id"))
	assert.Equal(t, "b", fc.Features[1].Properties.MustString("id"))
	assert.Equal(t, float64(25), fc.Features[0].Properties.MustFloat64("cells"))
}
