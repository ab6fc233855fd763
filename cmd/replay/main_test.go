package main

import (
	"path/filepath"
	"strings"
	"testing"

	persistlog "voxelgrowth.ai/internal/persistence/log"
	"voxelgrowth.ai/internal/sim/catalogs"
	"voxelgrowth.ai/internal/sim/tuning"
	"voxelgrowth.ai/internal/sim/world"
)

func newTestWorld(t *testing.T) *world.World {
	t.Helper()
	cats, err := catalogs.Load("../../configs")
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	tune, err := tuning.Defaults()
	if err != nil {
		t.Fatalf("tuning: %v", err)
	}
	cfg := world.ConfigFrom(tune.World)
	cfg.Height = 32
	cfg.SeaLevel = 12
	cfg.Seed = 11
	cfg.BoundaryR = 24
	cfg.EntityCount = 2
	cfg.SnapshotEveryTicks = 0
	w, err := world.New(cfg, cats, tune)
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	return w
}

type badDigest struct {
	inner *persistlog.TickLogger
	at    uint64
}

func (b badDigest) WriteTick(e world.TickLogEntry) error {
	if e.Tick == b.at {
		e.Digest = "tampered"
	}
	return b.inner.WriteTick(e)
}

// record runs a fresh world for n ticks with a few reactions and returns
// the written event files.
func record(t *testing.T, n int, tamperAt uint64) []string {
	t.Helper()
	dir := t.TempDir()
	w := newTestWorld(t)
	tl := persistlog.NewTickLogger(dir)
	if tamperAt > 0 {
		w.SetTickLogger(badDigest{inner: tl, at: tamperAt})
	} else {
		w.SetTickLogger(tl)
	}

	for i := 0; i < n; i++ {
		var reqs []world.ReactionRequest
		switch i {
		case 0:
			reqs = []world.ReactionRequest{
				{Species: "vine", Pos: w.SurfaceCell(2, 3), Spores: 30, Water: 30, Initial: true},
				{Species: "nope", Pos: w.SurfaceCell(0, 0), Spores: 5},
			}
		case 4:
			reqs = []world.ReactionRequest{{Species: "crystal", Pos: w.SurfaceCell(-5, 1), Spores: 20, Water: 10}}
		}
		w.StepOnce(reqs)
	}
	if err := tl.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	files, err := persistlog.ListFiles(filepath.Join(dir, "events"), "events")
	if err != nil || len(files) == 0 {
		t.Fatalf("files = %v, %v", files, err)
	}
	return files
}

func TestReplay_MatchesRecordedDigests(t *testing.T) {
	files := record(t, 40, 0)

	w := newTestWorld(t)
	checked, err := replay(w, files, 0, 0)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if checked != 40 || w.CurrentTick() != 40 {
		t.Fatalf("checked=%d tick=%d", checked, w.CurrentTick())
	}
}

func TestReplay_StopsAtToTick(t *testing.T) {
	files := record(t, 20, 0)

	w := newTestWorld(t)
	checked, err := replay(w, files, 5, 9)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if checked != 5 || w.CurrentTick() != 10 {
		t.Fatalf("checked=%d tick=%d", checked, w.CurrentTick())
	}
}

func TestReplay_DetectsDigestMismatch(t *testing.T) {
	files := record(t, 20, 12)

	w := newTestWorld(t)
	checked, err := replay(w, files, 0, 0)
	if err == nil || !strings.Contains(err.Error(), "digest mismatch at tick 12") {
		t.Fatalf("expected mismatch at 12, got %v", err)
	}
	if checked != 13 {
		t.Fatalf("checked = %d", checked)
	}
}

func TestReplay_SkipsEntriesBeforeWorldTick(t *testing.T) {
	files := record(t, 10, 0)

	w := newTestWorld(t)
	// Advance past the first recorded ticks using the same inputs.
	if _, err := replay(w, files, 0, 3); err != nil {
		t.Fatalf("first replay: %v", err)
	}
	checked, err := replay(w, files, 0, 0)
	if err != nil {
		t.Fatalf("second replay: %v", err)
	}
	if checked != 6 || w.CurrentTick() != 10 {
		t.Fatalf("checked=%d tick=%d", checked, w.CurrentTick())
	}
}
