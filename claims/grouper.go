package claims

import (
	"log"
)

// GroupOverlaps scans every top-level managed claim of the world and returns
// the groups of equivalent regions connected through overlaps. Regions with
// no equivalent overlapping neighbour are left out.
//
// The scan touches every region and each of its overlaps, so it belongs on
// administrative paths only.
func GroupOverlaps(idx RegionIndex) []Group {
	tracker := NewGroupTracker()

	for _, r := range idx.Regions() {
		if !idx.IsManagedClaim(r) || r.Parent != "" {
			continue
		}
		key := Fingerprint(r)

		for _, o := range idx.Overlapping(r) {
			if o.ID == r.ID || !idx.IsManagedClaim(o) || o.Parent != "" {
				continue
			}
			if !key.Equal(Fingerprint(o)) {
				continue
			}
			link(tracker, r.ID, o.ID)
		}
	}

	groups := tracker.Groups()
	for _, g := range groups {
		log.Printf("[GROUP] %s: %d region(s) %v", g.Representative, len(g.Members), g.Members)
	}
	return groups
}

// link records that r and o are equivalent and overlapping.
func link(t *GroupTracker, r, o string) {
	rGrouped, oGrouped := t.IsGrouped(r), t.IsGrouped(o)
	switch {
	case !rGrouped && !oGrouped:
		t.StartGroup(r, o)
	case rGrouped && !oGrouped:
		t.JoinExisting(o, r)
	case !rGrouped && oGrouped:
		t.JoinExisting(r, o)
	default:
		// Same group already is a no-op inside Merge.
		t.Merge(r, o)
	}
}
