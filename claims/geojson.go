package claims

import (
	"fmt"
	"os"

	"github.com/paulmach/orb/geojson"
)

// RegionFeature converts a region into a GeoJSON feature. Owners and members
// are listed as uuid strings; flags are flattened to their plain values.
func RegionFeature(r *Region) *geojson.Feature {
	f := geojson.NewFeature(r.Geometry)
	f.ID = r.ID
	f.Properties["id"] = r.ID
	f.Properties["owners"] = principalStrings(r.Owners)
	f.Properties["members"] = principalStrings(r.Members)
	f.Properties["cells"] = len(Rasterize(r.Geometry))
	if r.Parent != "" {
		f.Properties["parent"] = r.Parent
	}
	if r.Priority != 0 {
		f.Properties["priority"] = r.Priority
	}

	flags := make(map[string]interface{}, len(r.Flags))
	for k, v := range r.Flags {
		switch v.Kind {
		case FlagString:
			flags[k] = v.String
		case FlagList:
			flags[k] = v.List
		case FlagPrincipals:
			flags[k] = principalStrings(v.Principals)
		}
	}
	f.Properties["flags"] = flags
	return f
}

func principalStrings(s PrincipalSet) []string {
	ids := s.Sorted()
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// WorldFeatureCollection returns every region of idx as a feature collection.
func WorldFeatureCollection(idx RegionIndex) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, r := range idx.Regions() {
		fc.Append(RegionFeature(r))
	}
	return fc
}

// SaveFeatureCollection writes a feature collection to disk as GeoJSON.
func SaveFeatureCollection(fc *geojson.FeatureCollection, path string) error {
	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal feature collection: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write geojson: %w", err)
	}
	return nil
}
