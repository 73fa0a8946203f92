package claims

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_RoundTrip(t *testing.T) {
	child := claim("child", 1, 1, 2, 2, bob)
	child.Parent = "a"
	w := newWorld(t,
		claim("a", 0, 0, 4, 4, alice),
		child,
		claim("b", 10, 10, 12, 12, carol),
	)
	path := filepath.Join(t.TempDir(), "snaps", "world.snap.zst")

	require.NoError(t, WriteSnapshot(path, w))

	snap, err := ReadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, SnapshotVersion, snap.Header.Version)
	assert.Equal(t, "world", snap.Header.World)
	assert.Equal(t, 3, snap.Header.Regions)
	assert.Equal(t, []string{"a", "b", "child"}, regionIDs(snap.Regions))

	// Restore into a world that has drifted since the snapshot.
	require.NoError(t, w.RemoveRegion("b"))
	require.NoError(t, w.PutRegion(claim("new", 30, 30, 31, 31, alice)))

	require.NoError(t, RestoreSnapshot(w, snap))
	assert.Equal(t, []string{"a", "b", "child"}, regionIDs(w.Regions()))
	got, _ := w.Region("child")
	assert.Equal(t, "a", got.Parent)
	assert.True(t, got.Owners.Contains(bob))
}

func TestReadSnapshot_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadSnapshot(filepath.Join(dir, "missing.snap.zst"))
	assert.Error(t, err)

	plain := filepath.Join(dir, "plain.snap.zst")
	require.NoError(t, os.WriteFile(plain, []byte("not compressed"), 0o644))
	_, err = ReadSnapshot(plain)
	assert.Error(t, err)

	future := filepath.Join(dir, "future.snap.zst")
	writeZstd(t, future, `{"version":99,"world":"world","regions":0}`+"\n[]\n")
	_, err = ReadSnapshot(future)
	assert.ErrorContains(t, err, "unsupported snapshot version")

	short := filepath.Join(dir, "short.snap.zst")
	writeZstd(t, short, `{"version":1,"world":"world","regions":2}`+"\n[]\n")
	_, err = ReadSnapshot(short)
	assert.ErrorContains(t, err, "lists 2 regions")
}

func TestParentsFirst(t *testing.T) {
	a := &Region{ID: "a", Parent: "b"}
	b := &Region{ID: "b", Parent: "c"}
	c := &Region{ID: "c"}
	orphan := &Region{ID: "orphan", Parent: "gone"}

	assert.Equal(t, []string{"c", "b", "a", "orphan"}, regionIDs(parentsFirst([]*Region{a, b, orphan, c})))
}

func writeZstd(t *testing.T, path, body string) {
	t.Helper()
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	data := enc.EncodeAll([]byte(body), nil)
	require.NoError(t, enc.Close())
	require.NoError(t, os.WriteFile(path, data, 0o644))
}
