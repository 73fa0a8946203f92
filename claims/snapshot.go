package claims

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
)

// SnapshotVersion is the current on-disk snapshot format.
const SnapshotVersion = 1

// SnapshotHeader is the first line of a snapshot stream.
type SnapshotHeader struct {
	Version   int       `json:"version"`
	World     string    `json:"world"`
	Regions   int       `json:"regions"`
	CreatedAt time.Time `json:"createdAt"`
}

// Snapshot is a full copy of one world's regions.
type Snapshot struct {
	Header  SnapshotHeader `json:"header"`
	Regions []*Region      `json:"regions"`
}

// WriteSnapshot stores every region of w in a zstd-compressed file: a JSON
// header line followed by the JSON region list.
func WriteSnapshot(path string, w WorldStore) error {
	regions := w.Regions()
	header := SnapshotHeader{
		Version:   SnapshotVersion,
		World:     w.Name(),
		Regions:   len(regions),
		CreatedAt: time.Now().UTC(),
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("zstd writer: %w", err)
	}
	bw := bufio.NewWriterSize(enc, 64*1024)

	hb, err := json.Marshal(header)
	if err != nil {
		_ = enc.Close()
		return fmt.Errorf("marshal snapshot header: %w", err)
	}
	if _, err := bw.Write(append(hb, '\n')); err != nil {
		_ = enc.Close()
		return fmt.Errorf("write snapshot header: %w", err)
	}
	if err := json.NewEncoder(bw).Encode(regions); err != nil {
		_ = enc.Close()
		return fmt.Errorf("write snapshot regions: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return fmt.Errorf("flush snapshot: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close zstd stream: %w", err)
	}
	return f.Sync()
}

// ReadSnapshot loads a snapshot written by WriteSnapshot.
func ReadSnapshot(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("read snapshot header: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(line, &snap.Header); err != nil {
		return nil, fmt.Errorf("parse snapshot header: %w", err)
	}
	if snap.Header.Version != SnapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	if err := json.NewDecoder(br).Decode(&snap.Regions); err != nil {
		return nil, fmt.Errorf("decode snapshot regions: %w", err)
	}
	if len(snap.Regions) != snap.Header.Regions {
		return nil, fmt.Errorf("snapshot header lists %d regions, body has %d",
			snap.Header.Regions, len(snap.Regions))
	}
	return &snap, nil
}

// RestoreSnapshot replaces the contents of w with the snapshot's regions.
// Regions are written parents first so inheritance checks see their parents.
func RestoreSnapshot(w WorldStore, snap *Snapshot) error {
	for _, r := range w.Regions() {
		if err := w.RemoveRegion(r.ID); err != nil {
			return fmt.Errorf("clearing %s: %w", r.ID, err)
		}
	}
	for _, r := range parentsFirst(snap.Regions) {
		if err := w.PutRegion(r); err != nil {
			return fmt.Errorf("restoring %s: %w", r.ID, err)
		}
	}
	return nil
}

// parentsFirst orders regions so every parent precedes its children.
// Regions in a cycle or with unknown parents keep their relative order at the end.
func parentsFirst(regions []*Region) []*Region {
	byID := make(map[string]*Region, len(regions))
	for _, r := range regions {
		byID[r.ID] = r
	}
	placed := make(map[string]bool, len(regions))
	out := make([]*Region, 0, len(regions))

	var visit func(r *Region, depth int)
	visit = func(r *Region, depth int) {
		if placed[r.ID] || depth > len(regions) {
			return
		}
		if p, ok := byID[r.Parent]; ok {
			visit(p, depth+1)
		}
		if !placed[r.ID] {
			placed[r.ID] = true
			out = append(out, r)
		}
	}
	for _, r := range regions {
		visit(r, 0)
	}
	return out
}
