package claims

import (
	"fmt"
	"log"
	"sort"
)

// MergeResult describes a committed merge.
type MergeResult struct {
	Region   *Region
	Absorbed []string
	Cells    int
}

// MergeGroup consolidates the regions of g into the representative region.
//
// The union of the member geometries must be one connected area without
// enclosed pockets. On any error the store is left untouched. On success the
// representative keeps its id and identity flags, gains the union of owners
// and members, and records the absorbed ids in its merge history; the other
// members are removed only after the representative is written.
func MergeGroup(w WorldStore, g Group) (*MergeResult, error) {
	if len(g.Members) < 2 {
		return nil, fmt.Errorf("group %s: %w", g.Representative, ErrGroupTooSmall)
	}

	members, err := resolveMembers(w, g)
	if err != nil {
		return nil, err
	}
	rep := members[0]

	union := make(CellSet)
	for _, m := range members {
		union.Add(Rasterize(m.Geometry))
	}

	// Holes allocates the union's bounding grid, which stays bounded only
	// for a connected union.
	if !Connected(union) {
		return nil, fmt.Errorf("group %s: %w", g.Representative, ErrDisjointGeometry)
	}

	if holes := Holes(union); len(holes) > 0 {
		return nil, &HoleError{
			Representative: g.Representative,
			HoleCells:      len(holes),
			Sample:         holes[0],
			Enclosed:       enclosedRegions(w, g, holes),
		}
	}

	outline, err := Outline(union)
	if err != nil {
		return nil, fmt.Errorf("group %s: %w", g.Representative, err)
	}

	merged := rep.Clone()
	merged.Geometry = outline
	var absorbed []string
	for _, m := range members[1:] {
		merged.Owners = merged.Owners.Union(m.Owners)
		merged.Members = merged.Members.Union(m.Members)
		absorbed = append(absorbed, m.ID)
	}
	recordHistory(merged, members[1:])

	if err := w.CommitMerge(merged, absorbed); err != nil {
		return nil, fmt.Errorf("committing merge into %s: %w", g.Representative, err)
	}

	log.Printf("[MERGE] %s absorbed %v (%d cells)", merged.ID, absorbed, len(union))
	return &MergeResult{Region: merged, Absorbed: absorbed, Cells: len(union)}, nil
}

// resolveMembers loads every member from the live index, representative first.
func resolveMembers(w RegionIndex, g Group) ([]*Region, error) {
	var (
		rep     *Region
		others  []*Region
		missing []string
		seen    = make(map[string]struct{}, len(g.Members))
	)
	for _, id := range g.Members {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		r, ok := w.Region(id)
		if !ok {
			missing = append(missing, id)
			continue
		}
		if r.Parent != "" {
			return nil, &InconsistentGroupError{
				Representative: g.Representative,
				Reason:         fmt.Sprintf("%s has parent %s", id, r.Parent),
			}
		}
		if id == g.Representative {
			rep = r
		} else {
			others = append(others, r)
		}
	}

	if len(missing) > 0 {
		return nil, &InconsistentGroupError{Representative: g.Representative, Missing: missing}
	}
	if rep == nil {
		return nil, &InconsistentGroupError{
			Representative: g.Representative,
			Reason:         "representative is not a member",
		}
	}
	if len(others) == 0 {
		return nil, fmt.Errorf("group %s: %w", g.Representative, ErrGroupTooSmall)
	}
	return append([]*Region{rep}, others...), nil
}

// recordHistory appends the absorbed regions (and whatever they had absorbed
// before) to the merged region's history flags.
func recordHistory(merged *Region, absorbed []*Region) {
	ids := merged.Flags.GetList(FlagMergedRegions)
	types := merged.Flags.GetList(FlagMergedRegionsTypes)
	for _, a := range absorbed {
		ids = append(ids, a.ID)
		ids = append(ids, a.MergedFrom()...)
		types = append(types, a.ID+" "+a.BlockMaterial())
		types = append(types, a.Flags.GetList(FlagMergedRegionsTypes)...)
	}
	if merged.Flags == nil {
		merged.Flags = make(Flags)
	}
	merged.Flags[FlagMergedRegions] = ListFlag(uniqueSorted(ids)...)
	merged.Flags[FlagMergedRegionsTypes] = ListFlag(uniqueSorted(types)...)
}

func uniqueSorted(in []string) []string {
	set := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := set[s]; ok {
			continue
		}
		set[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// enclosedRegions lists non-member regions that claim any of the hole cells.
func enclosedRegions(w RegionIndex, g Group, holes []Cell) []string {
	holeSet := make(CellSet, len(holes))
	for _, c := range holes {
		holeSet[c] = struct{}{}
	}
	inGroup := make(map[string]struct{}, len(g.Members))
	for _, id := range g.Members {
		inGroup[id] = struct{}{}
	}

	var out []string
	for _, r := range w.Regions() {
		if _, ok := inGroup[r.ID]; ok {
			continue
		}
		if Rasterize(r.Geometry).Intersects(holeSet) {
			out = append(out, r.ID)
		}
	}
	return out
}
