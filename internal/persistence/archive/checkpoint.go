package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"voxelgrowth.ai/internal/persistence/snapshot"
)

type CheckpointMeta struct {
	Checkpoint  int    `json:"checkpoint"`
	Tick        uint64 `json:"tick"`
	Seed        int64  `json:"seed"`
	Snapshot    string `json:"snapshot"`
	StateDigest string `json:"state_digest"`
	Automatons  int    `json:"automatons"`
	CreatedAt   string `json:"created_at"`
}

// ArchiveCheckpoint copies a snapshot taken at a multiple of everyTicks into
// `worldDir/archives/checkpoint_<NNN>/` next to a meta.json. Other snapshots
// are left alone (archived=false).
func ArchiveCheckpoint(worldDir, snapshotPath string, snap snapshot.SnapshotV1, everyTicks uint64) (n int, archivedPath string, archived bool, err error) {
	if everyTicks == 0 || snap.Header.Tick == 0 || snap.Header.Tick%everyTicks != 0 {
		return 0, "", false, nil
	}
	n = int(snap.Header.Tick / everyTicks)

	dir := filepath.Join(worldDir, "archives", fmt.Sprintf("checkpoint_%03d", n))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, "", false, err
	}
	dst := filepath.Join(dir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return 0, "", false, err
	}

	meta := CheckpointMeta{
		Checkpoint:  n,
		Tick:        snap.Header.Tick,
		Seed:        snap.Seed,
		Snapshot:    filepath.Base(dst),
		StateDigest: snap.Header.StateDigest,
		Automatons:  len(snap.Automatons),
		CreatedAt:   time.Now().UTC().Format(time.RFC3339Nano),
	}
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return 0, "", false, err
	}
	if err := os.WriteFile(filepath.Join(dir, "meta.json"), b, 0o644); err != nil {
		return 0, "", false, err
	}
	return n, dst, true, nil
}

// SnapshotTicks lists the <tick>.snap.zst files of dir by ascending tick.
func SnapshotTicks(dir string) ([]uint64, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var ticks []uint64
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		ticks = append(ticks, tick)
	}
	sort.Slice(ticks, func(i, j int) bool { return ticks[i] < ticks[j] })
	return ticks, nil
}

// LatestSnapshot returns the newest snapshot path in dir, or "" if none.
func LatestSnapshot(dir string) string {
	ticks, err := SnapshotTicks(dir)
	if err != nil || len(ticks) == 0 {
		return ""
	}
	return SnapshotPath(dir, ticks[len(ticks)-1])
}

func SnapshotPath(dir string, tick uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%d.snap.zst", tick))
}

// PruneSnapshots removes all but the newest keep snapshots from dir.
// keep <= 0 disables pruning. Archived copies are never touched.
func PruneSnapshots(dir string, keep int) (removed []string, err error) {
	if keep <= 0 {
		return nil, nil
	}
	ticks, err := SnapshotTicks(dir)
	if err != nil {
		return nil, err
	}
	if len(ticks) <= keep {
		return nil, nil
	}
	for _, tick := range ticks[:len(ticks)-keep] {
		p := SnapshotPath(dir, tick)
		if err := os.Remove(p); err != nil {
			return removed, err
		}
		removed = append(removed, p)
	}
	return removed, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
