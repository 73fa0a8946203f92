package claims

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
)

// Flag keys that identify a claim rather than describe its protection.
// They are ignored when comparing two regions for merge compatibility.
const (
	FlagBlockMaterial      = "ps-block-material"
	FlagMergedRegions      = "ps-merged-regions"
	FlagMergedRegionsTypes = "ps-merged-regions-types"
	FlagName               = "ps-name"
	FlagHome               = "ps-home"
)

// identityFlags lists every flag excluded from the comparison key.
var identityFlags = map[string]struct{}{
	FlagBlockMaterial:      {},
	FlagMergedRegions:      {},
	FlagMergedRegionsTypes: {},
	FlagName:               {},
	FlagHome:               {},
}

// IsIdentityFlag reports whether key names an identity-bearing flag.
func IsIdentityFlag(key string) bool {
	_, ok := identityFlags[key]
	return ok
}

// PrincipalSet is an unordered set of player/principal ids.
type PrincipalSet map[uuid.UUID]struct{}

// NewPrincipalSet builds a set from the given ids.
func NewPrincipalSet(ids ...uuid.UUID) PrincipalSet {
	s := make(PrincipalSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Contains reports whether id is in the set.
func (s PrincipalSet) Contains(id uuid.UUID) bool {
	_, ok := s[id]
	return ok
}

// Equal reports set equality. A nil set equals an empty one.
func (s PrincipalSet) Equal(o PrincipalSet) bool {
	if len(s) != len(o) {
		return false
	}
	for id := range s {
		if _, ok := o[id]; !ok {
			return false
		}
	}
	return true
}

// Union returns a new set holding the ids of both sets.
func (s PrincipalSet) Union(o PrincipalSet) PrincipalSet {
	out := make(PrincipalSet, len(s)+len(o))
	for id := range s {
		out[id] = struct{}{}
	}
	for id := range o {
		out[id] = struct{}{}
	}
	return out
}

// Clone returns a copy of the set.
func (s PrincipalSet) Clone() PrincipalSet {
	return s.Union(nil)
}

// Sorted returns the ids in lexical order of their string form.
func (s PrincipalSet) Sorted() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

// MarshalJSON encodes the set as a sorted array of uuid strings.
func (s PrincipalSet) MarshalJSON() ([]byte, error) {
	ids := s.Sorted()
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}
	return json.Marshal(strs)
}

// UnmarshalJSON decodes an array of uuid strings.
func (s *PrincipalSet) UnmarshalJSON(data []byte) error {
	var strs []string
	if err := json.Unmarshal(data, &strs); err != nil {
		return err
	}
	out := make(PrincipalSet, len(strs))
	for _, str := range strs {
		id, err := uuid.Parse(str)
		if err != nil {
			return fmt.Errorf("parsing principal %q: %w", str, err)
		}
		out[id] = struct{}{}
	}
	*s = out
	return nil
}

// FlagKind is the value kind stored under a flag key.
type FlagKind string

const (
	FlagString     FlagKind = "string"
	FlagList       FlagKind = "list"
	FlagPrincipals FlagKind = "principals"
)

// FlagValue is a typed flag value. Only the field matching Kind is meaningful.
type FlagValue struct {
	Kind       FlagKind     `json:"kind"`
	String     string       `json:"string,omitempty"`
	List       []string     `json:"list,omitempty"`
	Principals PrincipalSet `json:"principals,omitempty"`
}

// StringFlag returns a string-valued flag.
func StringFlag(v string) FlagValue {
	return FlagValue{Kind: FlagString, String: v}
}

// ListFlag returns an ordered list-of-string flag.
func ListFlag(v ...string) FlagValue {
	list := make([]string, len(v))
	copy(list, v)
	return FlagValue{Kind: FlagList, List: list}
}

// PrincipalsFlag returns a set-of-principal flag.
func PrincipalsFlag(ids ...uuid.UUID) FlagValue {
	return FlagValue{Kind: FlagPrincipals, Principals: NewPrincipalSet(ids...)}
}

// Equal compares two values of the same kind. Lists compare in order,
// principal sets as sets.
func (v FlagValue) Equal(o FlagValue) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case FlagString:
		return v.String == o.String
	case FlagList:
		if len(v.List) != len(o.List) {
			return false
		}
		for i := range v.List {
			if v.List[i] != o.List[i] {
				return false
			}
		}
		return true
	case FlagPrincipals:
		return v.Principals.Equal(o.Principals)
	}
	return false
}

func (v FlagValue) clone() FlagValue {
	out := FlagValue{Kind: v.Kind, String: v.String}
	if v.List != nil {
		out.List = append([]string(nil), v.List...)
	}
	if v.Principals != nil {
		out.Principals = v.Principals.Clone()
	}
	return out
}

// Flags is the per-region typed key/value store.
type Flags map[string]FlagValue

// Equal reports map equality using FlagValue.Equal.
func (f Flags) Equal(o Flags) bool {
	if len(f) != len(o) {
		return false
	}
	for k, v := range f {
		ov, ok := o[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Clone deep-copies the flag map.
func (f Flags) Clone() Flags {
	out := make(Flags, len(f))
	for k, v := range f {
		out[k] = v.clone()
	}
	return out
}

// GetString returns a string flag value, or "" when unset or of another kind.
func (f Flags) GetString(key string) string {
	v, ok := f[key]
	if !ok || v.Kind != FlagString {
		return ""
	}
	return v.String
}

// GetList returns a list flag value, or nil when unset or of another kind.
func (f Flags) GetList(key string) []string {
	v, ok := f[key]
	if !ok || v.Kind != FlagList {
		return nil
	}
	return v.List
}

// Region is a claim region as held by the host store.
//
// Geometry is a polygon in block coordinates with vertices on integer
// corners. A cell (x, z) covers [x, x+1) x [z, z+1) and belongs to the region
// when its centre lies inside the polygon. The polygon's Y axis carries Z.
type Region struct {
	ID       string       `json:"id"`
	Geometry orb.Polygon  `json:"geometry"`
	Owners   PrincipalSet `json:"owners"`
	Members  PrincipalSet `json:"members"`
	Flags    Flags        `json:"flags"`
	Parent   string       `json:"parent,omitempty"`
	Priority int          `json:"priority,omitempty"`
}

// Clone deep-copies the region so callers never alias host state.
func (r *Region) Clone() *Region {
	if r == nil {
		return nil
	}
	return &Region{
		ID:       r.ID,
		Geometry: r.Geometry.Clone(),
		Owners:   r.Owners.Clone(),
		Members:  r.Members.Clone(),
		Flags:    r.Flags.Clone(),
		Parent:   r.Parent,
		Priority: r.Priority,
	}
}

// Name returns the display name flag.
func (r *Region) Name() string {
	return r.Flags.GetString(FlagName)
}

// BlockMaterial returns the claim block type flag.
func (r *Region) BlockMaterial() string {
	return r.Flags.GetString(FlagBlockMaterial)
}

// MergedFrom returns the ids recorded as absorbed by earlier merges.
func (r *Region) MergedFrom() []string {
	return r.Flags.GetList(FlagMergedRegions)
}

// Bound returns the region's bounding box.
func (r *Region) Bound() orb.Bound {
	return r.Geometry.Bound()
}

// RectPolygon returns the outline covering the inclusive block range
// [minX..maxX] x [minZ..maxZ], the shape of a cuboid claim.
func RectPolygon(minX, minZ, maxX, maxZ int) orb.Polygon {
	x0, z0 := float64(minX), float64(minZ)
	x1, z1 := float64(maxX+1), float64(maxZ+1)
	return orb.Polygon{orb.Ring{
		{x0, z0}, {x1, z0}, {x1, z1}, {x0, z1}, {x0, z0},
	}}
}

// Group is a set of equivalent regions connected by overlaps. Members are in
// discovery order and include the representative.
type Group struct {
	Representative string   `json:"representative"`
	Members        []string `json:"members"`
}

// Absorbed returns the member ids other than the representative.
func (g Group) Absorbed() []string {
	out := make([]string, 0, len(g.Members))
	for _, id := range g.Members {
		if id != g.Representative {
			out = append(out, id)
		}
	}
	return out
}
