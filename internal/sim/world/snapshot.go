package world

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"voxelgrowth.ai/internal/persistence/snapshot"
	"voxelgrowth.ai/internal/sim/catalogs"
	"voxelgrowth.ai/internal/sim/growth"
	"voxelgrowth.ai/internal/sim/terrain"
	"voxelgrowth.ai/internal/sim/tuning"
)

// ExportSnapshot captures the world at nowTick.
// Snapshot must be called from the world loop goroutine.
func (w *World) ExportSnapshot(nowTick uint64) snapshot.SnapshotV1 {
	members := w.pop.Members()
	autos := make([]snapshot.AutomatonV1, 0, len(members))
	for _, a := range members {
		raw, err := growth.EncodeState(a.State())
		if err != nil {
			w.logger.Printf("snapshot: automaton %s: %v", a.ID(), err)
			continue
		}
		rt, err := a.Runtime()
		if err != nil {
			w.logger.Printf("snapshot: automaton %s: %v", a.ID(), err)
			continue
		}
		p := a.Pos()
		autos = append(autos, snapshot.AutomatonV1{
			ID:      a.ID(),
			Serial:  a.Serial(),
			Species: a.Species().Name(),
			Pos:     [3]float64{p.X, p.Y, p.Z},
			State:   raw,
			Runtime: runtimeV1(rt),
		})
	}

	water := make([]snapshot.WaterV1, 0, len(w.grid.water))
	for _, c := range sortedCells(w.grid.water) {
		water = append(water, snapshot.WaterV1{Pos: [3]int{c.X, c.Y, c.Z}, Units: w.grid.water[c]})
	}
	catalyzed := make([][3]int, 0, len(w.grid.catalyzed))
	for _, c := range sortedCells(w.grid.catalyzed) {
		catalyzed = append(catalyzed, [3]int{c.X, c.Y, c.Z})
	}

	return snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version:       snapshot.Version,
			WorldID:       w.cfg.ID,
			Tick:          nowTick,
			CatalogDigest: w.catalogs.Digest(),
			StateDigest:   w.stateDigest(nowTick),
		},
		Seed:       w.cfg.Seed,
		TickRate:   w.cfg.TickRateHz,
		Height:     w.cfg.Height,
		SeaLevel:   w.cfg.SeaLevel,
		BoundaryR:  w.cfg.BoundaryR,
		Chunks:     w.terrain.ExportChunks(),
		Automatons: autos,
		Entities:   w.ents.export(),
		Water:      water,
		Catalyzed:  catalyzed,
		Counters: snapshot.CountersV1{
			NextSerial: w.coord.NextSerial(),
			NextEntity: w.ents.nextID + 1,
		},
	}
}

// ImportSnapshot builds a world from a snapshot. The returned world's tick
// is the snapshot tick + 1 (the next tick to simulate). Operational
// settings (snapshot cadence) come from tune; the world shape comes from
// the snapshot.
func ImportSnapshot(cats *catalogs.Catalogs, tune tuning.Tuning, s snapshot.SnapshotV1) (*World, error) {
	if s.Header.Version != snapshot.Version {
		return nil, fmt.Errorf("unsupported snapshot version: %d", s.Header.Version)
	}
	if d := cats.Digest(); s.Header.CatalogDigest != "" && s.Header.CatalogDigest != d {
		return nil, fmt.Errorf("snapshot catalog digest mismatch: snap=%s catalogs=%s", s.Header.CatalogDigest, d)
	}

	cfg := ConfigFrom(tune.World)
	cfg.ID = s.Header.WorldID
	cfg.Seed = s.Seed
	cfg.TickRateHz = s.TickRate
	cfg.Height = s.Height
	cfg.SeaLevel = s.SeaLevel
	cfg.BoundaryR = s.BoundaryR
	cfg.EntityCount = 0

	w, err := New(cfg, cats, tune)
	if err != nil {
		return nil, err
	}
	store, err := terrain.ImportChunks(w.terrain.Gen, s.Chunks)
	if err != nil {
		return nil, err
	}
	w.terrain = store

	for _, rec := range s.Automatons {
		sp, ok := w.species[rec.Species]
		if !ok {
			return nil, fmt.Errorf("snapshot automaton %s: unknown species %q", rec.ID, rec.Species)
		}
		st, err := growth.DecodeState(rec.State)
		if err != nil {
			return nil, fmt.Errorf("snapshot automaton %s: %w", rec.ID, err)
		}
		pos := r3.Vec{X: rec.Pos[0], Y: rec.Pos[1], Z: rec.Pos[2]}
		a := growth.Restore(sp, rec.ID, rec.Serial, s.Seed, pos, st)
		if rec.Runtime != nil {
			if err := a.SetRuntime(runtimeFrom(rec.Runtime)); err != nil {
				return nil, fmt.Errorf("snapshot automaton %s: %w", rec.ID, err)
			}
		}
		w.pop.Add(a)
	}
	w.coord.SetNextSerial(s.Counters.NextSerial)

	var next uint64
	if s.Counters.NextEntity > 0 {
		next = s.Counters.NextEntity - 1
	}
	w.ents.restore(s.Entities, next)

	for _, wv := range s.Water {
		w.grid.water[growth.Cell{X: wv.Pos[0], Y: wv.Pos[1], Z: wv.Pos[2]}] = wv.Units
	}
	for _, c := range s.Catalyzed {
		w.grid.catalyzed[growth.Cell{X: c[0], Y: c[1], Z: c[2]}] = true
	}

	if s.Header.StateDigest != "" {
		if got := w.stateDigest(s.Header.Tick); got != s.Header.StateDigest {
			return nil, fmt.Errorf("snapshot state digest mismatch: got %s want %s", got, s.Header.StateDigest)
		}
	}
	w.tick.Store(s.Header.Tick + 1)
	return w, nil
}

func runtimeV1(rt growth.Runtime) *snapshot.RuntimeV1 {
	out := &snapshot.RuntimeV1{
		Age:      rt.Age,
		Failures: rt.Failures,
		LastDir:  [3]int{rt.LastDir.X, rt.LastDir.Y, rt.LastDir.Z},
		RNG:      rt.RNG,
	}
	if rt.HasForce {
		out.Force = &snapshot.ForceV1{
			Dir:  [3]float64{rt.ForceDir.X, rt.ForceDir.Y, rt.ForceDir.Z},
			Mag:  rt.ForceMag,
			Cell: [3]int{rt.ForceCell.X, rt.ForceCell.Y, rt.ForceCell.Z},
		}
	}
	return out
}

func runtimeFrom(r *snapshot.RuntimeV1) growth.Runtime {
	rt := growth.Runtime{
		Age:      r.Age,
		Failures: r.Failures,
		LastDir:  growth.Dir{X: r.LastDir[0], Y: r.LastDir[1], Z: r.LastDir[2]},
		RNG:      r.RNG,
	}
	if r.Force != nil {
		rt.HasForce = true
		rt.ForceDir = r3.Vec{X: r.Force.Dir[0], Y: r.Force.Dir[1], Z: r.Force.Dir[2]}
		rt.ForceMag = r.Force.Mag
		rt.ForceCell = growth.Cell{X: r.Force.Cell[0], Y: r.Force.Cell[1], Z: r.Force.Cell[2]}
	}
	return rt
}
