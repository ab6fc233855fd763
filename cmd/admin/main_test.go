package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"voxelgrowth.ai/internal/persistence/indexdb"
	persistlog "voxelgrowth.ai/internal/persistence/log"
	"voxelgrowth.ai/internal/persistence/snapshot"
	"voxelgrowth.ai/internal/sim/catalogs"
	"voxelgrowth.ai/internal/sim/encoding"
	"voxelgrowth.ai/internal/sim/growth"
	"voxelgrowth.ai/internal/sim/tuning"
	"voxelgrowth.ai/internal/sim/world"
)

func TestParseAABB(t *testing.T) {
	min, max, err := parseAABB("5,2,-3:-1, 9 ,4")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if min != [3]int{-1, 2, -3} || max != [3]int{5, 9, 4} {
		t.Fatalf("min=%v max=%v", min, max)
	}
	for _, bad := range []string{"", "1,2,3", "1,2:3,4,5", "a,b,c:1,2,3"} {
		if _, _, err := parseAABB(bad); err == nil {
			t.Fatalf("parseAABB(%q) should fail", bad)
		}
	}
}

func TestReadAudit_FiltersAndOrdersNewestFirst(t *testing.T) {
	dir := t.TempDir()
	al := persistlog.NewAuditLogger(dir)
	entries := []world.AuditEntry{
		{Tick: 3, Action: "SET_BLOCK", Pos: [3]int{1, 1, 1}, From: 0, To: 7},
		{Tick: 5, Action: "SET_BLOCK", Pos: [3]int{1, 1, 1}, From: 7, To: 8},
		{Tick: 5, Action: "BREAK_BLOCK", Pos: [3]int{2, 1, 1}, From: 4, To: 0},
		{Tick: 6, Action: "SET_BLOCK", Pos: [3]int{50, 1, 1}, From: 0, To: 9},
		{Tick: 9, Action: "SET_BLOCK", Pos: [3]int{1, 1, 1}, From: 8, To: 2},
	}
	for _, e := range entries {
		if err := al.WriteAudit(e); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := al.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	recs, err := readAudit(filepath.Join(dir, "audit"), 0, 8, [3]int{0, 0, 0}, [3]int{4, 4, 4})
	if err != nil {
		t.Fatalf("readAudit: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("recs = %d", len(recs))
	}
	if recs[0].Entry.Pos != [3]int{2, 1, 1} || recs[1].Entry.To != 8 || recs[2].Entry.Tick != 3 {
		t.Fatalf("order = %+v", recs)
	}
}

func TestApplyRollback(t *testing.T) {
	const height = 4
	blocks := make([]uint16, 16*16*height)
	blocks[1+3*16+2*256] = 9
	snap := snapshot.SnapshotV1{Chunks: []snapshot.ChunkV1{{CX: 0, CZ: 0, Height: height, RLE: encoding.EncodeRLE(blocks)}}}

	recs := []auditRec{
		{Seq: 3, Entry: world.AuditEntry{Tick: 9, Pos: [3]int{1, 2, 3}, From: 6, To: 9}},
		{Seq: 2, Entry: world.AuditEntry{Tick: 4, Pos: [3]int{1, 2, 3}, From: 5, To: 6}},
		{Seq: 1, Entry: world.AuditEntry{Tick: 2, Pos: [3]int{-1, 0, 0}, From: 1, To: 2}},
		{Seq: 0, Entry: world.AuditEntry{Tick: 1, Pos: [3]int{0, height, 0}, From: 1, To: 2}},
	}
	applied, skipped, err := applyRollback(&snap, recs)
	if err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if applied != 2 || skipped != 2 {
		t.Fatalf("applied=%d skipped=%d", applied, skipped)
	}
	got, err := encoding.DecodeRLE(snap.Chunks[0].RLE, len(blocks))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got[1+3*16+2*256] != 5 {
		t.Fatalf("cell = %d, want the oldest from value", got[1+3*16+2*256])
	}
}

func TestReseal_RecomputesDigest(t *testing.T) {
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
	cfg.Seed = 5
	cfg.BoundaryR = 24
	cfg.EntityCount = 1
	w, err := world.New(cfg, cats, tune)
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	w.StepOnce([]world.ReactionRequest{{Species: "vine", Pos: w.SurfaceCell(0, 0), Spores: 20, Water: 20, Initial: true}})
	for i := 0; i < 5; i++ {
		w.StepOnce(nil)
	}
	snap := w.ExportSnapshot(w.CurrentTick() - 1)
	if len(snap.Chunks) == 0 {
		t.Fatalf("no chunks loaded")
	}

	ch := snap.Chunks[0]
	blocks, err := encoding.DecodeRLE(ch.RLE, 16*16*ch.Height)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	pos := [3]int{ch.CX * 16, 0, ch.CZ * 16}
	rec := auditRec{Entry: world.AuditEntry{Tick: 1, Pos: pos, From: blocks[0] + 1, To: blocks[0]}}
	if _, _, err := applyRollback(&snap, []auditRec{rec}); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	before := snap.Header.StateDigest
	out, err := reseal(cats, tune, snap)
	if err != nil {
		t.Fatalf("reseal: %v", err)
	}
	if out.Header.StateDigest == "" || out.Header.StateDigest == before {
		t.Fatalf("digest not recomputed: %q", out.Header.StateDigest)
	}
	if out.Header.Tick != snap.Header.Tick {
		t.Fatalf("tick = %d, want %d", out.Header.Tick, snap.Header.Tick)
	}
	if _, err := world.ImportSnapshot(cats, tune, out); err != nil {
		t.Fatalf("resealed snapshot should import: %v", err)
	}
}

func TestQueries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "world.sqlite")
	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	idx.GrowthEvent(growth.Event{Tick: 1, Kind: growth.EventSpawn, ID: "a", Species: "vine", Spores: 10})
	idx.GrowthEvent(growth.Event{Tick: 4, Kind: growth.EventSplit, ID: "b", Parent: "a", Species: "vine", Spores: 5})
	idx.GrowthEvent(growth.Event{Tick: 6, Kind: growth.EventPlace, ID: "b", Species: "vine", Cell: [3]int{1, 2, 3}})
	_ = idx.WriteAudit(world.AuditEntry{Tick: 6, Actor: "b", Action: "SET_BLOCK", Pos: [3]int{1, 2, 3}, From: 0, To: 4})
	_ = idx.WriteAudit(world.AuditEntry{Tick: 7, Actor: "c", Action: "SET_BLOCK", Pos: [3]int{90, 2, 3}, From: 0, To: 4})
	idx.RecordSnapshot("/tmp/6.snap.zst", snapshot.SnapshotV1{Header: snapshot.Header{Tick: 6, StateDigest: "d"}, Seed: 3, Height: 32})
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql open: %v", err)
	}
	defer db.Close()
	ctx := context.Background()

	snaps, err := querySnapshots(ctx, db, 10)
	if err != nil || len(snaps) != 1 || snaps[0].Tick != 6 || snaps[0].Digest != "d" {
		t.Fatalf("snapshots = %+v, %v", snaps, err)
	}

	ev, err := queryGrowth(ctx, db, "b", "", 10)
	if err != nil || len(ev) != 2 || ev[0].Kind != string(growth.EventPlace) || ev[1].ParentID != "a" {
		t.Fatalf("growth = %+v, %v", ev, err)
	}
	ev, err = queryGrowth(ctx, db, "", string(growth.EventSpawn), 10)
	if err != nil || len(ev) != 1 || ev[0].ID != "a" {
		t.Fatalf("growth by kind = %+v, %v", ev, err)
	}

	audits, err := queryAudits(ctx, db, [3]int{0, 0, 0}, [3]int{10, 10, 10}, 10)
	if err != nil || len(audits) != 1 || audits[0].Actor != "b" {
		t.Fatalf("audits = %+v, %v", audits, err)
	}
}

func TestPostReaction(t *testing.T) {
	var got world.ReactionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/react" || r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		rw.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	want := world.ReactionRequest{Species: "crystal", Pos: [3]int{4, 5, 6}, Spores: 12, Water: 3, Initial: true}
	status, _, err := postReaction(srv.Client(), srv.URL+"/", want)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if status != http.StatusAccepted || got != want {
		t.Fatalf("status=%d got=%+v", status, got)
	}
}
