package claims

import (
	"fmt"
	"sort"
	"sync"
)

// RegionIndex is the read side of a world's region store.
type RegionIndex interface {
	// Regions returns copies of every region, sorted by id.
	Regions() []*Region
	Region(id string) (*Region, bool)
	// Overlapping returns copies of the regions sharing at least one cell
	// with r, excluding r itself.
	Overlapping(r *Region) []*Region
	IsManagedClaim(r *Region) bool
}

// RegionWriter is the mutation side of a world's region store.
type RegionWriter interface {
	PutRegion(r *Region) error
	RemoveRegion(id string) error
	// CommitMerge writes merged, then removes the absorbed ids and re-points
	// their children at merged. Either all of it happens or none of it.
	CommitMerge(merged *Region, absorbed []string) error
}

// WorldStore is one world's region store.
type WorldStore interface {
	Name() string
	RegionIndex
	RegionWriter
}

// Host resolves worlds by name.
type Host interface {
	World(name string) (WorldStore, error)
	Worlds() []string
}

// IsManagedClaim reports whether r is a claim region created by this plugin
// rather than a hand-made host region. Claims carry a block material flag.
func IsManagedClaim(r *Region) bool {
	return r != nil && r.BlockMaterial() != ""
}

// CheckParent verifies that giving child the parent id would not create a
// cycle, walking the chain through idx.
func CheckParent(idx RegionIndex, child, parent string) error {
	seen := map[string]struct{}{child: {}}
	for cur := parent; cur != ""; {
		if _, ok := seen[cur]; ok {
			return fmt.Errorf("%s -> %s: %w", child, parent, ErrCircularInheritance)
		}
		seen[cur] = struct{}{}
		r, ok := idx.Region(cur)
		if !ok {
			return nil
		}
		cur = r.Parent
	}
	return nil
}

// MemoryHost is an in-memory Host, used by tests and by the service when no
// database is configured.
type MemoryHost struct {
	mu     sync.RWMutex
	worlds map[string]*MemoryWorld
}

// NewMemoryHost creates a host with the given (empty) worlds.
func NewMemoryHost(worlds ...string) *MemoryHost {
	h := &MemoryHost{worlds: make(map[string]*MemoryWorld)}
	for _, w := range worlds {
		h.worlds[w] = NewMemoryWorld(w)
	}
	return h
}

// World returns the named world or an InvalidWorldError.
func (h *MemoryHost) World(name string) (WorldStore, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	w, ok := h.worlds[name]
	if !ok {
		return nil, &InvalidWorldError{World: name}
	}
	return w, nil
}

// Worlds returns the world names in sorted order.
func (h *MemoryHost) Worlds() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.worlds))
	for n := range h.worlds {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// AddWorld registers a world, returning the existing one if present.
func (h *MemoryHost) AddWorld(name string) *MemoryWorld {
	h.mu.Lock()
	defer h.mu.Unlock()
	if w, ok := h.worlds[name]; ok {
		return w
	}
	w := NewMemoryWorld(name)
	h.worlds[name] = w
	return w
}

type memoryEntry struct {
	region *Region
	cells  CellSet
}

// MemoryWorld keeps regions and their rasterized cells in memory.
type MemoryWorld struct {
	name    string
	mu      sync.RWMutex
	regions map[string]*memoryEntry
}

// NewMemoryWorld creates an empty world.
func NewMemoryWorld(name string) *MemoryWorld {
	return &MemoryWorld{
		name:    name,
		regions: make(map[string]*memoryEntry),
	}
}

func (w *MemoryWorld) Name() string { return w.name }

func (w *MemoryWorld) Regions() []*Region {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]*Region, 0, len(w.regions))
	for _, e := range w.regions {
		out = append(out, e.region.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (w *MemoryWorld) Region(id string) (*Region, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	e, ok := w.regions[id]
	if !ok {
		return nil, false
	}
	return e.region.Clone(), true
}

func (w *MemoryWorld) Overlapping(r *Region) []*Region {
	if r == nil {
		return nil
	}
	w.mu.RLock()
	defer w.mu.RUnlock()

	var cells CellSet
	if e, ok := w.regions[r.ID]; ok {
		cells = e.cells
	} else {
		cells = Rasterize(r.Geometry)
	}
	bound := r.Bound()

	var out []*Region
	for id, e := range w.regions {
		if id == r.ID {
			continue
		}
		if !bound.Intersects(e.region.Bound()) {
			continue
		}
		if cells.Intersects(e.cells) {
			out = append(out, e.region.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (w *MemoryWorld) IsManagedClaim(r *Region) bool {
	return IsManagedClaim(r)
}

// PutRegion creates or replaces a region after checking its parent chain.
func (w *MemoryWorld) PutRegion(r *Region) error {
	if r == nil || r.ID == "" {
		return fmt.Errorf("region id is required")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.checkParentLocked(r.ID, r.Parent); err != nil {
		return err
	}
	w.putLocked(r)
	return nil
}

func (w *MemoryWorld) putLocked(r *Region) {
	c := r.Clone()
	w.regions[c.ID] = &memoryEntry{region: c, cells: Rasterize(c.Geometry)}
}

func (w *MemoryWorld) checkParentLocked(child, parent string) error {
	seen := map[string]struct{}{child: {}}
	for cur := parent; cur != ""; {
		if _, ok := seen[cur]; ok {
			return fmt.Errorf("%s -> %s: %w", child, parent, ErrCircularInheritance)
		}
		seen[cur] = struct{}{}
		e, ok := w.regions[cur]
		if !ok {
			return nil
		}
		cur = e.region.Parent
	}
	return nil
}

// RemoveRegion deletes a region by id.
func (w *MemoryWorld) RemoveRegion(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.regions[id]; !ok {
		return fmt.Errorf("removing %s: %w", id, ErrRegionNotFound)
	}
	delete(w.regions, id)
	return nil
}

// CommitMerge applies a merge under a single lock.
func (w *MemoryWorld) CommitMerge(merged *Region, absorbed []string) error {
	if merged == nil || merged.ID == "" {
		return fmt.Errorf("merged region id is required")
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, id := range absorbed {
		if _, ok := w.regions[id]; !ok {
			return fmt.Errorf("absorbing %s: %w", id, ErrRegionNotFound)
		}
	}

	w.putLocked(merged)

	gone := make(map[string]struct{}, len(absorbed))
	for _, id := range absorbed {
		if id == merged.ID {
			continue
		}
		gone[id] = struct{}{}
		delete(w.regions, id)
	}
	for _, e := range w.regions {
		if _, ok := gone[e.region.Parent]; ok {
			e.region.Parent = merged.ID
		}
	}
	return nil
}
