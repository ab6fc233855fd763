package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite"

	"voxelgrowth.ai/internal/persistence/indexdb"
	"voxelgrowth.ai/internal/sim/growth"
)

type snapshotRow struct {
	Tick       int64  `json:"tick"`
	Path       string `json:"path"`
	Seed       int64  `json:"seed"`
	Height     int    `json:"height"`
	Chunks     int    `json:"chunks"`
	Automatons int    `json:"automatons"`
	Entities   int    `json:"entities"`
	Digest     string `json:"state_digest"`
}

type growthRow struct {
	Tick     int64  `json:"tick"`
	Kind     string `json:"kind"`
	ID       string `json:"automaton_id"`
	ParentID string `json:"parent_id,omitempty"`
	Species  string `json:"species"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
	Z        int    `json:"z"`
	Spores   int    `json:"spores"`
	Water    int    `json:"water"`
	Stage    int    `json:"stage"`
}

type auditRow struct {
	Tick   int64  `json:"tick"`
	Actor  string `json:"actor"`
	Action string `json:"action"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Z      int    `json:"z"`
	From   int    `json:"from"`
	To     int    `json:"to"`
	Reason string `json:"reason,omitempty"`
}

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	id := fs.String("id", "", "automaton id filter (growth, lineage)")
	kind := fs.String("kind", "", "event kind filter (growth)")
	aabb := fs.String("aabb", "", "AABB filter for audits: x1,y1,z1:x2,y2,z2")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "worlds", *worldID, "index", "world.sqlite")
	}
	if *limit <= 0 {
		*limit = 20
	}
	ctx := context.Background()

	switch q {
	case "events", "lineage":
		idx, err := indexdb.OpenSQLite(path)
		if err != nil {
			fmt.Fprintln(os.Stderr, "open:", err)
			os.Exit(1)
		}
		defer idx.Close()
		if q == "events" {
			counts, err := idx.EventCounts(ctx)
			if err != nil {
				fmt.Fprintln(os.Stderr, "query:", err)
				os.Exit(1)
			}
			kinds := make([]growth.EventKind, 0, len(counts))
			for k := range counts {
				kinds = append(kinds, k)
			}
			sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
			for _, k := range kinds {
				fmt.Printf("%-8s %d\n", k, counts[k])
			}
			return
		}
		if strings.TrimSpace(*id) == "" {
			fmt.Fprintln(os.Stderr, "missing -id")
			os.Exit(2)
		}
		chain, err := idx.Lineage(ctx, *id)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		printJSON(map[string]any{"id": *id, "ancestors": chain})
		return
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	var rows []any
	switch q {
	case "snapshots":
		rs, err := querySnapshots(ctx, db, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		for _, r := range rs {
			rows = append(rows, r)
		}
	case "growth":
		rs, err := queryGrowth(ctx, db, *id, *kind, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		for _, r := range rs {
			rows = append(rows, r)
		}
	case "audits":
		min, max := [3]int{-1 << 30, -1 << 30, -1 << 30}, [3]int{1 << 30, 1 << 30, 1 << 30}
		if strings.TrimSpace(*aabb) != "" {
			if min, max, err = parseAABB(*aabb); err != nil {
				fmt.Fprintln(os.Stderr, "bad -aabb:", err)
				os.Exit(2)
			}
		}
		rs, err := queryAudits(ctx, db, min, max, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		for _, r := range rs {
			rows = append(rows, r)
		}
	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data] [-world WORLD|-db PATH] snapshots|events|lineage|growth|audits")
		os.Exit(2)
	}
	for _, r := range rows {
		printJSON(r)
	}
}

func querySnapshots(ctx context.Context, db *sql.DB, limit int) ([]snapshotRow, error) {
	rows, err := db.QueryContext(ctx, `SELECT tick,path,seed,height,chunks,automatons,entities,state_digest FROM snapshots ORDER BY tick DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []snapshotRow
	for rows.Next() {
		var r snapshotRow
		if err := rows.Scan(&r.Tick, &r.Path, &r.Seed, &r.Height, &r.Chunks, &r.Automatons, &r.Entities, &r.Digest); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// queryGrowth lists the newest growth events, optionally for one automaton
// or one event kind.
func queryGrowth(ctx context.Context, db *sql.DB, id, kind string, limit int) ([]growthRow, error) {
	q := `SELECT tick,kind,automaton_id,COALESCE(parent_id,''),species,x,y,z,spores,water,stage FROM growth_events WHERE 1=1`
	var args []any
	if id = strings.TrimSpace(id); id != "" {
		q += ` AND automaton_id = ?`
		args = append(args, id)
	}
	if kind = strings.TrimSpace(kind); kind != "" {
		q += ` AND kind = ?`
		args = append(args, kind)
	}
	q += ` ORDER BY tick DESC, seq DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []growthRow
	for rows.Next() {
		var r growthRow
		if err := rows.Scan(&r.Tick, &r.Kind, &r.ID, &r.ParentID, &r.Species, &r.X, &r.Y, &r.Z, &r.Spores, &r.Water, &r.Stage); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func queryAudits(ctx context.Context, db *sql.DB, min, max [3]int, limit int) ([]auditRow, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT tick,actor,action,x,y,z,from_block,to_block,COALESCE(reason,'') FROM audits
		 WHERE x BETWEEN ? AND ? AND z BETWEEN ? AND ? AND y BETWEEN ? AND ?
		 ORDER BY tick DESC, seq DESC LIMIT ?`,
		min[0], max[0], min[2], max[2], min[1], max[1], limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []auditRow
	for rows.Next() {
		var r auditRow
		if err := rows.Scan(&r.Tick, &r.Actor, &r.Action, &r.X, &r.Y, &r.Z, &r.From, &r.To, &r.Reason); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
