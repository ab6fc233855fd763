package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	persistlog "voxelgrowth.ai/internal/persistence/log"
	"voxelgrowth.ai/internal/persistence/snapshot"
	"voxelgrowth.ai/internal/sim/catalogs"
	"voxelgrowth.ai/internal/sim/tuning"
	"voxelgrowth.ai/internal/sim/world"
)

func main() {
	var (
		snapPath   = flag.String("snapshot", "", "path to .snap.zst (empty: start from a fresh world)")
		eventsDir  = flag.String("events", "", "events dir containing events-*.jsonl.zst (optional)")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to species.yaml (default: <configs>/species.yaml if present)")
		worldID    = flag.String("world", "", "world id for a fresh world (default: tuning world.id)")
		seed       = flag.Int64("seed", 0, "seed for a fresh world (default: tuning world.seed)")
		fromTick   = flag.Uint64("from_tick", 0, "start verifying from tick (inclusive, optional)")
		toTick     = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
		simulate   = flag.Int("simulate", 0, "after replay, step N more ticks without reactions and print the summary")
	)
	flag.Parse()

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		fail("load catalogs", err)
	}
	tp := *tuningPath
	if tp == "" {
		if p := filepath.Join(*configDir, "species.yaml"); fileExists(p) {
			tp = p
		}
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		fail("load tuning", err)
	}

	var w *world.World
	if *snapPath != "" {
		snap, err := snapshot.ReadSnapshot(*snapPath)
		if err != nil {
			fail("read snapshot", err)
		}
		fmt.Printf("snapshot v%d world=%s tick=%d seed=%d height=%d chunks=%d automatons=%d entities=%d water=%d\n",
			snap.Header.Version, snap.Header.WorldID, snap.Header.Tick, snap.Seed, snap.Height,
			len(snap.Chunks), len(snap.Automatons), len(snap.Entities), len(snap.Water))
		if w, err = world.ImportSnapshot(cats, tune, snap); err != nil {
			fail("import snapshot", err)
		}
	} else {
		cfg := world.ConfigFrom(tune.World)
		if *worldID != "" {
			cfg.ID = *worldID
		}
		if *seed != 0 {
			cfg.Seed = *seed
		}
		if w, err = world.New(cfg, cats, tune); err != nil {
			fail("world", err)
		}
		fmt.Printf("fresh world=%s seed=%d\n", cfg.ID, cfg.Seed)
	}

	if *eventsDir != "" {
		files, err := persistlog.ListFiles(*eventsDir, "events")
		if err != nil {
			fail("list events", err)
		}
		if len(files) == 0 {
			fail("replay", fmt.Errorf("no events files found in %s", *eventsDir))
		}
		startTick := w.CurrentTick()
		checked, err := replay(w, files, *fromTick, *toTick)
		if err != nil {
			fail("replay", err)
		}
		fmt.Printf("replay ok: checked=%d ticks (from tick=%d)\n", checked, startTick)
	}

	for i := 0; i < *simulate; i++ {
		w.StepOnce(nil)
	}
	printSummary(w)
}

// replay steps w through the tick log entries in files, feeding each tick's
// applied reactions, and compares the resulting digests from verifyFrom on.
// Entries before the world's current tick are skipped.
func replay(w *world.World, files []string, verifyFrom, toTick uint64) (checked uint64, err error) {
	startTick := w.CurrentTick()
	if verifyFrom == 0 {
		verifyFrom = startTick
	}
	errStop := errors.New("stop")

	for _, path := range files {
		var stepErr error
		err := persistlog.ReadFile(path, func(entry world.TickLogEntry) bool {
			if entry.Tick < startTick {
				return true
			}
			if toTick != 0 && entry.Tick > toTick {
				stepErr = errStop
				return false
			}
			if entry.Tick != w.CurrentTick() {
				stepErr = fmt.Errorf("tick mismatch: want=%d got=%d (file=%s)", w.CurrentTick(), entry.Tick, filepath.Base(path))
				return false
			}

			tick, gotDigest := w.StepOnce(entry.Reactions)

			// Sanity check: StepOnce should have stepped the same tick.
			if tick != entry.Tick {
				stepErr = fmt.Errorf("internal tick mismatch: stepped=%d entry=%d (file=%s)", tick, entry.Tick, filepath.Base(path))
				return false
			}
			if tick >= verifyFrom {
				checked++
				if gotDigest != entry.Digest {
					stepErr = fmt.Errorf("digest mismatch at tick %d: got=%s want=%s", tick, gotDigest, entry.Digest)
					return false
				}
			}
			return true
		})
		if err != nil {
			return checked, err
		}
		if stepErr == errStop {
			return checked, nil
		}
		if stepErr != nil {
			return checked, stepErr
		}
	}
	return checked, nil
}

func printSummary(w *world.World) {
	bySpecies := map[string]int{}
	spores, water := 0, 0
	members := w.Population().Members()
	for _, a := range members {
		bySpecies[a.Species().Name()]++
		spores += a.Spores()
		water += a.Water()
	}
	fmt.Printf("tick=%d population=%d spores=%d water=%d digest=%s\n", w.CurrentTick(), len(members), spores, water, w.StateDigest())

	names := make([]string, 0, len(bySpecies))
	for name := range bySpecies {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %-8s %d\n", name, bySpecies[name])
	}

	loot := w.Loot()
	items := make([]string, 0, len(loot))
	for item := range loot {
		items = append(items, item)
	}
	sort.Strings(items)
	for _, item := range items {
		fmt.Printf("  drop %-12s %d\n", item, loot[item])
	}
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

func fail(what string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", what, err)
	os.Exit(1)
}
