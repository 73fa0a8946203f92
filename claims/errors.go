package claims

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrGroupTooSmall is returned when a merge is requested for fewer than two regions.
	ErrGroupTooSmall = errors.New("merge group needs at least two regions")
	// ErrDisjointGeometry is returned when member geometries do not form one connected area.
	ErrDisjointGeometry = errors.New("merged geometry is not contiguous")
	// ErrCircularInheritance is returned when a parent assignment would create a cycle.
	ErrCircularInheritance = errors.New("circular parent inheritance")
	// ErrRegionNotFound is returned by stores for unknown region ids.
	ErrRegionNotFound = errors.New("region not found")
)

// HoleError reports that the union of a group would enclose cells that no
// member claims.
type HoleError struct {
	Representative string
	HoleCells      int
	Sample         Cell
	// Enclosed lists regions (outside the group) that sit inside the pocket.
	Enclosed []string
}

func (e *HoleError) Error() string {
	msg := fmt.Sprintf("merging into %s would enclose %d unclaimed cell(s) near (%d, %d)",
		e.Representative, e.HoleCells, e.Sample.X, e.Sample.Z)
	if len(e.Enclosed) > 0 {
		msg += " surrounding " + strings.Join(e.Enclosed, ", ")
	}
	return msg
}

// InvalidWorldError reports a world the host does not know about.
type InvalidWorldError struct {
	World string
}

func (e *InvalidWorldError) Error() string {
	return fmt.Sprintf("unknown world %q", e.World)
}

// InconsistentGroupError reports a group whose membership no longer matches
// the live region index.
type InconsistentGroupError struct {
	Representative string
	Missing        []string
	Reason         string
}

func (e *InconsistentGroupError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("group %s references missing regions: %s",
			e.Representative, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("group %s is inconsistent: %s", e.Representative, e.Reason)
}
