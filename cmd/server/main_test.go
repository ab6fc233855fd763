package main

import (
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"voxelgrowth.ai/internal/sim/world"
	"voxelgrowth.ai/internal/transport/observer"
)

func TestReactHandler(t *testing.T) {
	inbox := make(chan world.ReactionRequest, 1)
	h := reactHandler(inbox)

	cases := []struct {
		name   string
		method string
		body   string
		want   int
	}{
		{"get", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"bad json", http.MethodPost, "{", http.StatusBadRequest},
		{"no species", http.MethodPost, `{"pos":[1,2,3],"spores":4}`, http.StatusBadRequest},
		{"negative water", http.MethodPost, `{"species":"vine","water":-1}`, http.StatusBadRequest},
		{"accepted", http.MethodPost, `{"species":"vine","pos":[1,2,3],"spores":4,"water":5,"initial":true}`, http.StatusAccepted},
		{"full", http.MethodPost, `{"species":"vine"}`, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(tc.method, "/v1/react", strings.NewReader(tc.body)))
		if rec.Code != tc.want {
			t.Fatalf("%s: status %d, want %d", tc.name, rec.Code, tc.want)
		}
	}

	got := <-inbox
	if got.Species != "vine" || got.Pos != [3]int{1, 2, 3} || got.Spores != 4 || got.Water != 5 || !got.Initial {
		t.Fatalf("queued = %+v", got)
	}
}

type fakeSpawnWorld struct{ seed int64 }

func (f fakeSpawnWorld) Config() world.WorldConfig {
	return world.WorldConfig{Seed: f.seed, BoundaryR: 20}
}
func (fakeSpawnWorld) SpeciesNames() []string      { return []string{"crystal", "vine"} }
func (fakeSpawnWorld) SurfaceCell(x, z int) [3]int { return [3]int{x, 7, z} }

func TestInitialReactions(t *testing.T) {
	a := initialReactions(fakeSpawnWorld{seed: 3}, 5)
	b := initialReactions(fakeSpawnWorld{seed: 3}, 5)
	if len(a) != 5 {
		t.Fatalf("reactions = %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("reaction %d differs: %+v vs %+v", i, a[i], b[i])
		}
		r := a[i]
		if r.Pos[0] < -10 || r.Pos[0] > 10 || r.Pos[2] < -10 || r.Pos[2] > 10 || r.Pos[1] != 7 {
			t.Fatalf("reaction %d outside spawn area: %v", i, r.Pos)
		}
		if !r.Initial || r.Spores <= 0 {
			t.Fatalf("reaction %d = %+v", i, r)
		}
	}
	if a[0].Species != "crystal" || a[1].Species != "vine" || a[2].Species != "crystal" {
		t.Fatalf("species should cycle: %v %v %v", a[0].Species, a[1].Species, a[2].Species)
	}
	if got := initialReactions(fakeSpawnWorld{}, 0); got != nil {
		t.Fatalf("n=0 gave %v", got)
	}
	if got := initialReactions(fakeSpawnWorld{}, 1000); len(got) != 64 {
		t.Fatalf("n should clamp to 64, got %d", len(got))
	}
}

func TestMetricsHandler(t *testing.T) {
	status := &statusSink{}
	status.WorldTick(world.TickSummary{
		Tick:       12,
		BySpecies:  map[string]int{"vine": 2, "crystal": 1},
		Spores:     30,
		Entities:   4,
		Automatons: []world.AutomatonView{{ID: "a"}},
	})
	if last, ok := status.Last(); !ok || last.Automatons != nil {
		t.Fatalf("status should drop per-automaton detail: %+v", last)
	}

	hub := observer.NewHub(nil, 16, log.New(io.Discard, "", 0))
	rec := httptest.NewRecorder()
	metricsHandler("w1", status, nil, hub)(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		`voxelgrowth_world_tick{world="w1"} 12`,
		`voxelgrowth_population{world="w1",species="crystal"} 1`,
		`voxelgrowth_population{world="w1",species="vine"} 2`,
		`voxelgrowth_budget{world="w1",kind="spores"} 30`,
		`voxelgrowth_entities{world="w1"} 4`,
		`voxelgrowth_observers{world="w1"} 0`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
	if strings.Contains(body, "index_queue") {
		t.Fatalf("index metrics without an index")
	}
}
