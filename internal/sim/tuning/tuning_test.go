package tuning

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultsValidate(t *testing.T) {
	tu, err := Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if tu.World.TickRateHz != 5 || tu.Growth.MergeRadius != 3 || tu.Growth.ForceRadius != 5 {
		t.Fatalf("unexpected defaults: %+v", tu.Growth)
	}
	for name, sp := range tu.Species.ByName() {
		if len(sp.StageBlocks) < sp.MaxStage+1 {
			t.Fatalf("%s: %d stage blocks for max_stage %d", name, len(sp.StageBlocks), sp.MaxStage)
		}
	}
	if tu.Species.Essence.GrowthDelay >= 0 {
		t.Fatalf("essence should step several times per tick")
	}
}

func TestLoad_OverridesSingleField(t *testing.T) {
	p := filepath.Join(t.TempDir(), "species.yaml")
	raw := "species:\n  vine:\n    max_age: 42\ngrowth:\n  absorb_cap: 9\n"
	if err := os.WriteFile(p, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tu, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tu.Species.Vine.MaxAge != 42 {
		t.Fatalf("override not applied: %d", tu.Species.Vine.MaxAge)
	}
	if tu.Species.Vine.Base != 10 || len(tu.Species.Vine.StageBlocks) != 3 {
		t.Fatalf("untouched vine fields lost: %+v", tu.Species.Vine)
	}
	if tu.Growth.AbsorbCap != 9 || tu.Growth.HazardPenalty != 5 {
		t.Fatalf("growth merge wrong: %+v", tu.Growth)
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	p := filepath.Join(t.TempDir(), "species.yaml")
	raw := "species:\n  spine:\n    split_min: 0.8\n    split_max: 0.2\n"
	if err := os.WriteFile(p, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := Load(p)
	if err == nil || !strings.Contains(err.Error(), "species.spine") {
		t.Fatalf("expected spine validation error, got %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error")
	}
}

func TestValidate_ArchiveCadence(t *testing.T) {
	tu, err := Defaults()
	if err != nil {
		t.Fatalf("defaults: %v", err)
	}
	tu.World.SnapshotEveryTicks = 100
	tu.World.ArchiveEveryTicks = 250
	if err := tu.Validate(); err == nil || !strings.Contains(err.Error(), "archive_every_ticks") {
		t.Fatalf("expected archive cadence error, got %v", err)
	}
	tu.World.ArchiveEveryTicks = 1000
	if err := tu.Validate(); err != nil {
		t.Fatalf("valid cadence rejected: %v", err)
	}
}

func TestLoad_ShippedOverrides(t *testing.T) {
	tu, err := Load(filepath.Join("..", "..", "..", "configs", "species.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tu.World.ID != "growth_main" || tu.Growth.ForceRadius != 6 || tu.Species.Crystal.ClusterRadius != 4 {
		t.Fatalf("overrides not applied: world=%+v growth=%+v", tu.World, tu.Growth)
	}
	if tu.World.TickRateHz != 5 || tu.Species.Vine.MaxAge != 600 {
		t.Fatalf("defaults lost: %+v", tu.World)
	}
}
