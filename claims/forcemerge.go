package claims

import (
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"
)

// GroupStatus is the outcome of merging one group.
type GroupStatus string

const (
	StatusMerged       GroupStatus = "merged"
	StatusHole         GroupStatus = "hole"
	StatusInconsistent GroupStatus = "inconsistent"
	StatusFailed       GroupStatus = "failed"
)

// GroupReport is the per-group line of a force-merge report.
type GroupReport struct {
	Representative string      `json:"representative"`
	Absorbed       []string    `json:"absorbed"`
	Status         GroupStatus `json:"status"`
	Error          string      `json:"error,omitempty"`
}

// Report summarizes one force-merge run over a world.
type Report struct {
	World     string        `json:"world"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
	Snapshot  string        `json:"snapshot,omitempty"`
	Groups    []GroupReport `json:"groups"`
}

// Merged returns the number of groups that merged successfully.
func (r *Report) Merged() int {
	n := 0
	for _, g := range r.Groups {
		if g.Status == StatusMerged {
			n++
		}
	}
	return n
}

// Failed returns the number of groups that did not merge.
func (r *Report) Failed() int {
	return len(r.Groups) - r.Merged()
}

// RemovalListener is told about every region a merge removed.
type RemovalListener interface {
	RegionRemoved(world, id string)
}

// ReportPublisher receives finished reports.
type ReportPublisher interface {
	PublishReport(r *Report) error
}

// ForceMerger runs the administrative force-merge over a host's worlds.
// Runs are serialized; each run scans fully before merging anything.
type ForceMerger struct {
	host        Host
	snapshotDir string
	listeners   []RemovalListener
	publisher   ReportPublisher
	now         func() time.Time

	mu sync.Mutex
}

// ForceMergerOption configures a ForceMerger.
type ForceMergerOption func(*ForceMerger)

// WithSnapshotDir writes a world snapshot into dir before merging.
func WithSnapshotDir(dir string) ForceMergerOption {
	return func(f *ForceMerger) { f.snapshotDir = dir }
}

// WithRemovalListener registers a listener for removed region ids.
func WithRemovalListener(l RemovalListener) ForceMergerOption {
	return func(f *ForceMerger) { f.listeners = append(f.listeners, l) }
}

// WithReportPublisher hands every finished report to p.
func WithReportPublisher(p ReportPublisher) ForceMergerOption {
	return func(f *ForceMerger) { f.publisher = p }
}

// NewForceMerger creates a runner over host.
func NewForceMerger(host Host, opts ...ForceMergerOption) *ForceMerger {
	f := &ForceMerger{host: host, now: time.Now}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Preview returns the groups a run would try to merge, without merging.
func (f *ForceMerger) Preview(world string) ([]Group, error) {
	w, err := f.host.World(world)
	if err != nil {
		return nil, err
	}
	return GroupOverlaps(w), nil
}

// Run groups and merges every eligible claim in world. Per-group failures are
// recorded in the report; only an unknown world or a failed pre-merge
// snapshot return an error.
func (f *ForceMerger) Run(world string) (*Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w, err := f.host.World(world)
	if err != nil {
		return nil, err
	}

	report := &Report{World: w.Name(), StartedAt: f.now(), Groups: []GroupReport{}}

	if f.snapshotDir != "" {
		name := fmt.Sprintf("%s-%s.snap.zst", w.Name(), report.StartedAt.UTC().Format("20060102T150405"))
		path := filepath.Join(f.snapshotDir, name)
		if err := WriteSnapshot(path, w); err != nil {
			return nil, fmt.Errorf("pre-merge snapshot: %w", err)
		}
		report.Snapshot = path
	}

	groups := GroupOverlaps(w)
	log.Printf("[MERGE] world %s: %d group(s) to merge", w.Name(), len(groups))

	for _, g := range groups {
		gr := GroupReport{Representative: g.Representative, Absorbed: g.Absorbed()}

		res, err := MergeGroup(w, g)
		if err != nil {
			gr.Status = statusFor(err)
			gr.Error = err.Error()
			log.Printf("[MERGE] %s not merged: %v", g.Representative, err)
			report.Groups = append(report.Groups, gr)
			continue
		}

		gr.Status = StatusMerged
		gr.Absorbed = res.Absorbed
		report.Groups = append(report.Groups, gr)
		for _, id := range res.Absorbed {
			for _, l := range f.listeners {
				l.RegionRemoved(w.Name(), id)
			}
		}
	}

	report.Duration = f.now().Sub(report.StartedAt)
	log.Printf("[MERGE] world %s done: %d merged, %d failed", w.Name(), report.Merged(), report.Failed())

	if f.publisher != nil {
		if err := f.publisher.PublishReport(report); err != nil {
			log.Printf("[MERGE] publishing report: %v", err)
		}
	}
	return report, nil
}

func statusFor(err error) GroupStatus {
	var holeErr *HoleError
	var incErr *InconsistentGroupError
	switch {
	case errors.As(err, &holeErr):
		return StatusHole
	case errors.As(err, &incErr):
		return StatusInconsistent
	default:
		return StatusFailed
	}
}
