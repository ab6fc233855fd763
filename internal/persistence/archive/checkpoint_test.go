package archive

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"voxelgrowth.ai/internal/persistence/snapshot"
)

func writeDummy(t *testing.T, dir string, tick uint64) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	p := SnapshotPath(dir, tick)
	if err := os.WriteFile(p, []byte("dummy"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestArchiveCheckpoint_CopiesOnCadence(t *testing.T) {
	worldDir := filepath.Join(t.TempDir(), "worlds", "w1")
	snaps := filepath.Join(worldDir, "snapshots")

	src := writeDummy(t, snaps, 200)
	snap := snapshot.SnapshotV1{
		Header:     snapshot.Header{Tick: 200, StateDigest: "abc"},
		Seed:       9,
		Automatons: make([]snapshot.AutomatonV1, 3),
	}
	n, dst, ok, err := ArchiveCheckpoint(worldDir, src, snap, 100)
	if err != nil || !ok || n != 2 {
		t.Fatalf("archive = %d %v %v", n, ok, err)
	}
	if got, err := os.ReadFile(dst); err != nil || string(got) != "dummy" {
		t.Fatalf("archived copy = %q, %v", got, err)
	}

	raw, err := os.ReadFile(filepath.Join(filepath.Dir(dst), "meta.json"))
	if err != nil {
		t.Fatalf("meta: %v", err)
	}
	var meta CheckpointMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		t.Fatalf("meta json: %v", err)
	}
	if meta.Checkpoint != 2 || meta.Tick != 200 || meta.Seed != 9 || meta.Automatons != 3 || meta.StateDigest != "abc" {
		t.Fatalf("meta = %+v", meta)
	}
	if filepath.Base(filepath.Dir(dst)) != "checkpoint_002" {
		t.Fatalf("archive dir = %s", filepath.Dir(dst))
	}
}

func TestArchiveCheckpoint_SkipsOffCadence(t *testing.T) {
	worldDir := t.TempDir()
	src := writeDummy(t, filepath.Join(worldDir, "snapshots"), 150)
	for _, every := range []uint64{0, 100} {
		_, _, ok, err := ArchiveCheckpoint(worldDir, src, snapshot.SnapshotV1{Header: snapshot.Header{Tick: 150}}, every)
		if ok || err != nil {
			t.Fatalf("every=%d: archived=%v err=%v", every, ok, err)
		}
	}
	if _, err := os.Stat(filepath.Join(worldDir, "archives")); !os.IsNotExist(err) {
		t.Fatalf("archives dir should not exist: %v", err)
	}
}

func TestPruneSnapshots_KeepsNewest(t *testing.T) {
	dir := t.TempDir()
	for _, tick := range []uint64{30, 10, 200, 20} {
		writeDummy(t, dir, tick)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	removed, err := PruneSnapshots(dir, 2)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if len(removed) != 2 || filepath.Base(removed[0]) != "10.snap.zst" || filepath.Base(removed[1]) != "20.snap.zst" {
		t.Fatalf("removed = %v", removed)
	}
	ticks, _ := SnapshotTicks(dir)
	if len(ticks) != 2 || ticks[0] != 30 || ticks[1] != 200 {
		t.Fatalf("remaining = %v", ticks)
	}
	if LatestSnapshot(dir) != SnapshotPath(dir, 200) {
		t.Fatalf("latest = %s", LatestSnapshot(dir))
	}
	if removed, _ := PruneSnapshots(dir, 0); removed != nil {
		t.Fatalf("keep=0 should not prune")
	}
}

func TestLatestSnapshot_MissingDir(t *testing.T) {
	if got := LatestSnapshot(filepath.Join(t.TempDir(), "none")); got != "" {
		t.Fatalf("latest = %q", got)
	}
}
