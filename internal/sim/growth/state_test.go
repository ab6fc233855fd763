package growth

import (
	"testing"

	"github.com/sandertv/gophertunnel/minecraft/nbt"
)

func TestState_RoundTrip(t *testing.T) {
	env, _ := newTestEnv(newFakeGrid(bAir))
	sp := newTestSpecies()
	a := New(sp, Spawn{ID: "x", Serial: 3, Pos: Cell{X: 4, Y: 2, Z: -1}.Center(), Spores: 30, Water: 12, Stage: 1, Initial: true})
	a.Tick(env)

	b, err := EncodeState(a.State())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	st, err := DecodeState(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st != a.State() {
		t.Fatalf("round trip mismatch: %+v vs %+v", st, a.State())
	}

	r := Restore(sp, "x", 3, 42, a.Pos(), st)
	if r.Spores() != a.Spores() || r.Water() != a.Water() || r.Stage() != 1 || !r.InitialGrowth() {
		t.Fatalf("restored budgets differ")
	}
	if r.Origin() != (Cell{X: 4, Y: 2, Z: -1}) {
		t.Fatalf("origin not restored: %v", r.Origin())
	}
	if r.Age() != 0 || r.Failures() != 0 || r.hasForce {
		t.Fatalf("transient state must start fresh")
	}
}

func TestDecodeState_MissingTagsDefaultToZero(t *testing.T) {
	partial := struct {
		Spores int32 `nbt:"spores"`
	}{Spores: 9}
	b, err := nbt.MarshalEncoding(partial, nbt.LittleEndian)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	st, err := DecodeState(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Spores != 9 || st.Water != 0 || st.Stage != 0 || st.HasOrigin != 0 {
		t.Fatalf("unexpected state %+v", st)
	}
	// No water means the restored automaton is discarded on its first tick.
	a := Restore(newTestSpecies(), "p", 1, 1, Cell{}.Center(), st)
	if a.IsAlive() {
		t.Fatalf("expected partial record to restore dead")
	}
}

func TestDecodeState_Empty(t *testing.T) {
	st, err := DecodeState(nil)
	if err != nil || st != (State{}) {
		t.Fatalf("expected zero state, got %+v %v", st, err)
	}
}

func TestRuntime_ResumesRandomStream(t *testing.T) {
	env, _ := newTestEnv(newFakeGrid(bAir))
	sp := newTestSpecies()
	a := New(sp, Spawn{ID: "x", Serial: 5, Seed: 99, Pos: Cell{}.Center(), Spores: 30, Water: 30})
	for i := 0; i < 4; i++ {
		a.Tick(env)
	}
	rt, err := a.Runtime()
	if err != nil {
		t.Fatalf("runtime: %v", err)
	}

	r := Restore(sp, "x", 5, 1, a.Pos(), a.State())
	if err := r.SetRuntime(rt); err != nil {
		t.Fatalf("set runtime: %v", err)
	}
	if r.Age() != a.Age() || r.LastDir() != a.LastDir() || r.Failures() != a.Failures() {
		t.Fatalf("transient state differs")
	}
	for i := 0; i < 3; i++ {
		if x, y := a.Rand().Uint64(), r.Rand().Uint64(); x != y {
			t.Fatalf("random streams diverged: %d vs %d", x, y)
		}
	}
	if err := r.SetRuntime(Runtime{RNG: []byte("bad")}); err == nil {
		t.Fatalf("expected rng decode error")
	}
}
