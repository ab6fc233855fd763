package main

import (
	"fmt"
	"net/http"
	"sort"
	"sync/atomic"

	"voxelgrowth.ai/internal/persistence/indexdb"
	"voxelgrowth.ai/internal/sim/mathx"
	"voxelgrowth.ai/internal/sim/world"
	"voxelgrowth.ai/internal/transport/observer"
)

type multiTickLogger struct {
	a world.TickLogger
	b world.TickLogger
}

func (m multiTickLogger) WriteTick(entry world.TickLogEntry) error {
	if m.a != nil {
		_ = m.a.WriteTick(entry)
	}
	if m.b != nil {
		_ = m.b.WriteTick(entry)
	}
	return nil
}

type multiAuditLogger struct {
	a world.AuditLogger
	b world.AuditLogger
}

func (m multiAuditLogger) WriteAudit(entry world.AuditEntry) error {
	if m.a != nil {
		_ = m.a.WriteAudit(entry)
	}
	if m.b != nil {
		_ = m.b.WriteAudit(entry)
	}
	return nil
}

// statusSink keeps the latest tick summary for /metrics.
type statusSink struct {
	last atomic.Pointer[world.TickSummary]
}

func (s *statusSink) WorldTick(sum world.TickSummary) {
	sum.Changes = nil
	sum.Automatons = nil
	s.last.Store(&sum)
}

func (s *statusSink) Last() (world.TickSummary, bool) {
	p := s.last.Load()
	if p == nil {
		return world.TickSummary{}, false
	}
	return *p, true
}

func metricsHandler(worldID string, status *statusSink, idx *indexdb.SQLiteIndex, hub *observer.Hub) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		sum, _ := status.Last()

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP voxelgrowth_world_tick Last completed world tick.\n")
		fmt.Fprintf(rw, "# TYPE voxelgrowth_world_tick gauge\n")
		fmt.Fprintf(rw, "voxelgrowth_world_tick{world=%q} %d\n", worldID, sum.Tick)

		fmt.Fprintf(rw, "# HELP voxelgrowth_population Live automatons by species.\n")
		fmt.Fprintf(rw, "# TYPE voxelgrowth_population gauge\n")
		names := make([]string, 0, len(sum.BySpecies))
		for name := range sum.BySpecies {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(rw, "voxelgrowth_population{world=%q,species=%q} %d\n", worldID, name, sum.BySpecies[name])
		}

		fmt.Fprintf(rw, "# HELP voxelgrowth_budget Total budgets held by live automatons.\n")
		fmt.Fprintf(rw, "# TYPE voxelgrowth_budget gauge\n")
		fmt.Fprintf(rw, "voxelgrowth_budget{world=%q,kind=%q} %d\n", worldID, "spores", sum.Spores)
		fmt.Fprintf(rw, "voxelgrowth_budget{world=%q,kind=%q} %d\n", worldID, "water", sum.Water)

		fmt.Fprintf(rw, "# HELP voxelgrowth_entities Mobile metal entities.\n")
		fmt.Fprintf(rw, "# TYPE voxelgrowth_entities gauge\n")
		fmt.Fprintf(rw, "voxelgrowth_entities{world=%q} %d\n", worldID, sum.Entities)

		fmt.Fprintf(rw, "# HELP voxelgrowth_observers Connected observer sessions.\n")
		fmt.Fprintf(rw, "# TYPE voxelgrowth_observers gauge\n")
		fmt.Fprintf(rw, "voxelgrowth_observers{world=%q} %d\n", worldID, hub.SessionCount())

		if idx == nil {
			return
		}
		st := idx.Stats()
		fmt.Fprintf(rw, "# HELP voxelgrowth_index_queue_depth Index writer backlog.\n")
		fmt.Fprintf(rw, "# TYPE voxelgrowth_index_queue_depth gauge\n")
		fmt.Fprintf(rw, "voxelgrowth_index_queue_depth{world=%q} %d\n", worldID, st.QueueDepth)
		fmt.Fprintf(rw, "# HELP voxelgrowth_index_dropped_total Index rows dropped because the queue was full.\n")
		fmt.Fprintf(rw, "# TYPE voxelgrowth_index_dropped_total counter\n")
		fmt.Fprintf(rw, "voxelgrowth_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "tick", st.DropTickTotal)
		fmt.Fprintf(rw, "voxelgrowth_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "audit", st.DropAuditTotal)
		fmt.Fprintf(rw, "voxelgrowth_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "growth", st.DropGrowthTotal)
		fmt.Fprintf(rw, "voxelgrowth_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "snapshot", st.DropSnapshotTotal)
	}
}

// spawnWorld is the part of the world initialReactions reads.
type spawnWorld interface {
	Config() world.WorldConfig
	SpeciesNames() []string
	SurfaceCell(x, z int) [3]int
}

// initialReactions picks n reaction sites on the surface, cycling through
// the species. Sites depend only on the world seed.
func initialReactions(w spawnWorld, n int) []world.ReactionRequest {
	n = mathx.ClampInt(n, 0, 64)
	names := w.SpeciesNames()
	if n == 0 || len(names) == 0 {
		return nil
	}
	cfg := w.Config()
	span := max(cfg.BoundaryR/2, 1)

	out := make([]world.ReactionRequest, 0, n)
	for i := 0; i < n; i++ {
		h := mathx.Hash3(cfg.Seed, i, 0x7265, 0)
		x := int(h%uint64(2*span+1)) - span
		z := int((h>>32)%uint64(2*span+1)) - span
		out = append(out, world.ReactionRequest{
			Species: names[i%len(names)],
			Pos:     w.SurfaceCell(x, z),
			Spores:  48,
			Water:   48,
			Initial: true,
		})
	}
	return out
}
