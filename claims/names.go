package claims

import (
	"sort"
	"sync"
)

// NameIndex maps region display names to ids, per world. It is built once
// from the host and kept current by removal notifications; lookups also drop
// ids that have disappeared from the host.
type NameIndex struct {
	mu    sync.Mutex
	host  Host
	names map[string]map[string][]string // world -> name -> ids
}

// NewNameIndex creates an empty index over host.
func NewNameIndex(host Host) *NameIndex {
	return &NameIndex{host: host, names: make(map[string]map[string][]string)}
}

// Load rebuilds the index from every world of the host.
func (n *NameIndex) Load() {
	names := make(map[string]map[string][]string)
	for _, world := range n.host.Worlds() {
		w, err := n.host.World(world)
		if err != nil {
			continue
		}
		byName := make(map[string][]string)
		for _, r := range w.Regions() {
			if name := r.Name(); name != "" {
				byName[name] = append(byName[name], r.ID)
			}
		}
		names[world] = byName
	}

	n.mu.Lock()
	n.names = names
	n.mu.Unlock()
}

// Set records that region id in world now carries name, replacing any
// previous name for that id.
func (n *NameIndex) Set(world, id, name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.removeLocked(world, id)
	if name == "" {
		return
	}
	byName, ok := n.names[world]
	if !ok {
		byName = make(map[string][]string)
		n.names[world] = byName
	}
	byName[name] = append(byName[name], id)
}

// Lookup returns the ids carrying name in world, pruning stale ids.
func (n *NameIndex) Lookup(world, name string) []string {
	n.mu.Lock()
	ids := append([]string(nil), n.names[world][name]...)
	n.mu.Unlock()
	if len(ids) == 0 {
		return nil
	}

	w, err := n.host.World(world)
	if err != nil {
		return nil
	}
	live := ids[:0]
	for _, id := range ids {
		if _, ok := w.Region(id); ok {
			live = append(live, id)
		} else {
			n.RegionRemoved(world, id)
		}
	}
	sort.Strings(live)
	return live
}

// RegionRemoved drops id from the index. It satisfies RemovalListener.
func (n *NameIndex) RegionRemoved(world, id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.removeLocked(world, id)
}

func (n *NameIndex) removeLocked(world, id string) {
	byName := n.names[world]
	for name, ids := range byName {
		kept := ids[:0]
		for _, x := range ids {
			if x != id {
				kept = append(kept, x)
			}
		}
		if len(kept) == 0 {
			delete(byName, name)
		} else {
			byName[name] = kept
		}
	}
}
