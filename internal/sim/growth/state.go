package growth

import (
	"fmt"

	"github.com/sandertv/gophertunnel/minecraft/nbt"
	"gonum.org/v1/gonum/spatial/r3"

	"voxelgrowth.ai/internal/sim/mathx"
)

// State is the persisted part of an automaton. Absent tags decode as zero,
// so an old or partial record loads as an empty, immediately dead automaton.
// Force cache, failure streak and age live in Runtime.
type State struct {
	Spores        int32 `nbt:"spores"`
	Water         int32 `nbt:"water"`
	Stage         int32 `nbt:"stage"`
	InitialGrowth uint8 `nbt:"initial_growth"`
	HasOrigin     uint8 `nbt:"has_origin"`
	OriginX       int32 `nbt:"origin_x"`
	OriginY       int32 `nbt:"origin_y"`
	OriginZ       int32 `nbt:"origin_z"`
}

func (a *Automaton) State() State {
	st := State{
		Spores: int32(a.spores),
		Water:  int32(a.water),
		Stage:  int32(a.stage),
	}
	if a.initial {
		st.InitialGrowth = 1
	}
	if a.hasOrigin {
		st.HasOrigin = 1
		st.OriginX = int32(a.origin.X)
		st.OriginY = int32(a.origin.Y)
		st.OriginZ = int32(a.origin.Z)
	}
	return st
}

// Restore rebuilds an automaton from its persisted state. Serial and id
// come from the host record.
func Restore(sp Species, id string, serial uint64, seed int64, pos r3.Vec, st State) *Automaton {
	a := New(sp, Spawn{
		ID:      id,
		Serial:  serial,
		Seed:    mathx.StreamSeed(seed, serial),
		Pos:     pos,
		Spores:  int(st.Spores),
		Water:   int(st.Water),
		Stage:   int(st.Stage),
		Initial: st.InitialGrowth != 0,
	})
	if st.HasOrigin != 0 {
		a.hasOrigin = true
		a.origin = Cell{X: int(st.OriginX), Y: int(st.OriginY), Z: int(st.OriginZ)}
	}
	return a
}

// Runtime is the transient state that State leaves out. Hosts that need
// bit-exact resumption persist it next to State.
type Runtime struct {
	Age      int
	Failures int
	LastDir  Dir
	RNG      []byte

	HasForce  bool
	ForceDir  r3.Vec
	ForceMag  float64
	ForceCell Cell
}

func (a *Automaton) Runtime() (Runtime, error) {
	rng, err := a.src.MarshalBinary()
	if err != nil {
		return Runtime{}, fmt.Errorf("encode growth rng: %w", err)
	}
	return Runtime{
		Age:       a.age,
		Failures:  a.failures,
		LastDir:   a.lastDir,
		RNG:       rng,
		HasForce:  a.hasForce,
		ForceDir:  a.forceDir,
		ForceMag:  a.forceMag,
		ForceCell: a.forceCell,
	}, nil
}

// SetRuntime overwrites the transient state of a restored automaton.
func (a *Automaton) SetRuntime(rt Runtime) error {
	if len(rt.RNG) > 0 {
		if err := a.src.UnmarshalBinary(rt.RNG); err != nil {
			return fmt.Errorf("decode growth rng: %w", err)
		}
	}
	a.age = max(rt.Age, 0)
	a.failures = max(rt.Failures, 0)
	a.lastDir = rt.LastDir
	a.hasForce = rt.HasForce
	a.forceDir = rt.ForceDir
	a.forceMag = rt.ForceMag
	a.forceCell = rt.ForceCell
	return nil
}

func EncodeState(st State) ([]byte, error) {
	b, err := nbt.MarshalEncoding(st, nbt.LittleEndian)
	if err != nil {
		return nil, fmt.Errorf("encode growth state: %w", err)
	}
	return b, nil
}

func DecodeState(b []byte) (State, error) {
	var st State
	if len(b) == 0 {
		return st, nil
	}
	if err := nbt.UnmarshalEncoding(b, &st, nbt.LittleEndian); err != nil {
		return st, fmt.Errorf("decode growth state: %w", err)
	}
	return st, nil
}
