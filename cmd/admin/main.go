package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"voxelgrowth.ai/internal/persistence/archive"
	persistlog "voxelgrowth.ai/internal/persistence/log"
	"voxelgrowth.ai/internal/persistence/snapshot"
	"voxelgrowth.ai/internal/sim/catalogs"
	"voxelgrowth.ai/internal/sim/encoding"
	"voxelgrowth.ai/internal/sim/mathx"
	"voxelgrowth.ai/internal/sim/tuning"
	"voxelgrowth.ai/internal/sim/world"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "rollback":
			rollbackCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "metrics":
			metricsCmd(os.Args[2:])
			return
		case "react":
			reactCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (optional; lists its snapshots)")
	_ = fs.Parse(args)

	if *worldID != "" {
		dir := filepath.Join(*dataDir, "worlds", *worldID, "snapshots")
		ticks, err := archive.SnapshotTicks(dir)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read:", err)
			os.Exit(1)
		}
		for _, t := range ticks {
			fmt.Println(archive.SnapshotPath(dir, t))
		}
		return
	}

	entries, err := os.ReadDir(filepath.Join(*dataDir, "worlds"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		fmt.Println(e.Name())
	}
}

// rollbackCmd reverts the audited block changes inside an AABB and writes a
// new snapshot with a recomputed state digest.
func rollbackCmd(args []string) {
	fs := flag.NewFlagSet("rollback", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	configDir := fs.String("configs", "./configs", "config directory")
	worldID := fs.String("world", "", "world id")
	snapPath := fs.String("snapshot", "", "snapshot path to rollback from (optional; defaults to latest)")
	aabb := fs.String("aabb", "", "AABB filter: x1,y1,z1:x2,y2,z2 (required)")
	sinceTick := fs.Uint64("since_tick", 0, "rollback changes since tick (inclusive)")
	toTick := fs.Uint64("to_tick", 0, "rollback changes up to tick (inclusive, optional; defaults to snapshot tick)")
	outPath := fs.String("out", "", "output snapshot path (optional)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*worldID) == "" {
		fmt.Fprintln(os.Stderr, "missing -world")
		os.Exit(2)
	}
	if strings.TrimSpace(*aabb) == "" {
		fmt.Fprintln(os.Stderr, "missing -aabb")
		os.Exit(2)
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" {
		snapshotToLoad = archive.LatestSnapshot(filepath.Join(worldDir, "snapshots"))
	}
	if snapshotToLoad == "" {
		fmt.Fprintln(os.Stderr, "no snapshot found; provide -snapshot or run server until it writes one")
		os.Exit(2)
	}

	snap, err := snapshot.ReadSnapshot(snapshotToLoad)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}

	min, max, err := parseAABB(*aabb)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad -aabb:", err)
		os.Exit(2)
	}

	endTick := *toTick
	if endTick == 0 || endTick > snap.Header.Tick {
		endTick = snap.Header.Tick
	}

	recs, err := readAudit(filepath.Join(worldDir, "audit"), *sinceTick, endTick, min, max)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read audit:", err)
		os.Exit(1)
	}
	if len(recs) == 0 {
		fmt.Println("no matching audit entries; nothing to rollback")
		return
	}

	applied, skipped, err := applyRollback(&snap, recs)
	if err != nil {
		fmt.Fprintln(os.Stderr, "rollback:", err)
		os.Exit(1)
	}

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalogs:", err)
		os.Exit(1)
	}
	tune, err := tuning.Load(speciesPath(*configDir))
	if err != nil {
		fmt.Fprintln(os.Stderr, "load tuning:", err)
		os.Exit(1)
	}
	out, err := reseal(cats, tune, snap)
	if err != nil {
		fmt.Fprintln(os.Stderr, "reseal:", err)
		os.Exit(1)
	}

	if strings.TrimSpace(*outPath) == "" {
		*outPath = filepath.Join(worldDir, "snapshots", fmt.Sprintf("%d.rollback.snap.zst", snap.Header.Tick))
	}
	if err := snapshot.WriteSnapshot(*outPath, out); err != nil {
		fmt.Fprintln(os.Stderr, "write snapshot:", err)
		os.Exit(1)
	}

	fmt.Printf("rollback ok: snapshot=%s tick=%d aabb=%s since=%d to=%d entries=%d applied=%d skipped=%d out=%s\n",
		filepath.Base(snapshotToLoad), snap.Header.Tick, *aabb, *sinceTick, endTick, len(recs), applied, skipped, *outPath)
}

func speciesPath(configDir string) string {
	p := filepath.Join(configDir, "species.yaml")
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}

// reseal rebuilds the world from an edited snapshot and exports it again so
// the header carries a digest of the edited state.
func reseal(cats *catalogs.Catalogs, tune tuning.Tuning, snap snapshot.SnapshotV1) (snapshot.SnapshotV1, error) {
	snap.Header.StateDigest = ""
	w, err := world.ImportSnapshot(cats, tune, snap)
	if err != nil {
		return snapshot.SnapshotV1{}, err
	}
	return w.ExportSnapshot(snap.Header.Tick), nil
}

type auditRec struct {
	Seq   uint64
	Entry world.AuditEntry
}

func readAudit(dir string, sinceTick, toTick uint64, min, max [3]int) ([]auditRec, error) {
	files, err := persistlog.ListFiles(dir, "audit")
	if err != nil {
		return nil, err
	}

	out := make([]auditRec, 0, 1024)
	var seq uint64
	for _, path := range files {
		err := persistlog.ReadFile(path, func(e world.AuditEntry) bool {
			seq++
			if e.Tick < sinceTick || e.Tick > toTick {
				return true
			}
			if !withinAABB(e.Pos, min, max) {
				return true
			}
			out = append(out, auditRec{Seq: seq, Entry: e})
			return true
		})
		if err != nil {
			return nil, err
		}
	}

	// Reverse chronological apply: highest tick first; for same tick use reverse read order.
	sort.Slice(out, func(i, j int) bool {
		if out[i].Entry.Tick != out[j].Entry.Tick {
			return out[i].Entry.Tick > out[j].Entry.Tick
		}
		return out[i].Seq > out[j].Seq
	})
	return out, nil
}

func applyRollback(snap *snapshot.SnapshotV1, recs []auditRec) (applied, skipped int, err error) {
	if snap == nil || len(recs) == 0 {
		return 0, 0, nil
	}

	type decoded struct {
		ch     *snapshot.ChunkV1
		blocks []uint16
	}
	chunks := map[[2]int]*decoded{}
	for i := range snap.Chunks {
		ch := &snap.Chunks[i]
		chunks[[2]int{ch.CX, ch.CZ}] = &decoded{ch: ch}
	}

	for _, r := range recs {
		p := r.Entry.Pos
		d := chunks[[2]int{mathx.FloorDiv(p[0], 16), mathx.FloorDiv(p[2], 16)}]
		if d == nil || p[1] < 0 || p[1] >= d.ch.Height {
			skipped++
			continue
		}
		if d.blocks == nil {
			d.blocks, err = encoding.DecodeRLE(d.ch.RLE, 16*16*d.ch.Height)
			if err != nil {
				return applied, skipped, fmt.Errorf("chunk %d,%d: %w", d.ch.CX, d.ch.CZ, err)
			}
		}
		d.blocks[mathx.Mod(p[0], 16)+mathx.Mod(p[2], 16)*16+p[1]*16*16] = r.Entry.From
		applied++
	}

	for _, d := range chunks {
		if d.blocks != nil {
			d.ch.RLE = encoding.EncodeRLE(d.blocks)
		}
	}
	return applied, skipped, nil
}

func withinAABB(pos [3]int, min, max [3]int) bool {
	return pos[0] >= min[0] && pos[0] <= max[0] &&
		pos[1] >= min[1] && pos[1] <= max[1] &&
		pos[2] >= min[2] && pos[2] <= max[2]
}

func parseAABB(s string) (min, max [3]int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return min, max, fmt.Errorf("expected x1,y1,z1:x2,y2,z2")
	}
	a, err := parseVec3(parts[0])
	if err != nil {
		return min, max, err
	}
	b, err := parseVec3(parts[1])
	if err != nil {
		return min, max, err
	}
	for i := 0; i < 3; i++ {
		if a[i] <= b[i] {
			min[i], max[i] = a[i], b[i]
		} else {
			min[i], max[i] = b[i], a[i]
		}
	}
	return min, max, nil
}

func parseVec3(s string) ([3]int, error) {
	var v [3]int
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 3 {
		return v, fmt.Errorf("expected x,y,z")
	}
	for i := 0; i < 3; i++ {
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil {
			return v, err
		}
		v[i] = n
	}
	return v, nil
}
