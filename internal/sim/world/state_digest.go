package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"math"
	"sort"

	"voxelgrowth.ai/internal/sim/growth"
)

// StateDigest hashes everything a snapshot persists at the current tick.
func (w *World) StateDigest() string {
	return w.stateDigest(w.tick.Load())
}

func (w *World) stateDigest(nowTick uint64) string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteU64(h, &tmp, nowTick)
	digestWriteI64(h, &tmp, w.cfg.Seed)

	for _, k := range w.terrain.LoadedChunkKeys() {
		ch := w.terrain.Chunks[k]
		digestWriteI64(h, &tmp, int64(k.CX))
		digestWriteI64(h, &tmp, int64(k.CZ))
		d := ch.Digest()
		h.Write(d[:])
	}

	for _, a := range w.pop.Members() {
		h.Write([]byte(a.ID()))
		digestWriteU64(h, &tmp, a.Serial())
		h.Write([]byte(a.Species().Name()))
		p := a.Pos()
		digestWriteF64(h, &tmp, p.X)
		digestWriteF64(h, &tmp, p.Y)
		digestWriteF64(h, &tmp, p.Z)
		st := a.State()
		digestWriteI64(h, &tmp, int64(st.Spores))
		digestWriteI64(h, &tmp, int64(st.Water))
		digestWriteI64(h, &tmp, int64(st.Stage))
		digestWriteU64(h, &tmp, uint64(st.InitialGrowth)<<8|uint64(st.HasOrigin))
		digestWriteI64(h, &tmp, int64(st.OriginX))
		digestWriteI64(h, &tmp, int64(st.OriginY))
		digestWriteI64(h, &tmp, int64(st.OriginZ))
		if rt, err := a.Runtime(); err == nil {
			digestWriteI64(h, &tmp, int64(rt.Age))
			digestWriteI64(h, &tmp, int64(rt.Failures))
			digestWriteCell(h, &tmp, growth.Cell{X: rt.LastDir.X, Y: rt.LastDir.Y, Z: rt.LastDir.Z})
			h.Write(rt.RNG)
		}
	}

	for _, e := range w.ents.export() {
		digestWriteU64(h, &tmp, e.ID)
		h.Write([]byte(e.Category))
		for _, v := range e.Pos {
			digestWriteF64(h, &tmp, v)
		}
		for _, v := range e.Vel {
			digestWriteF64(h, &tmp, v)
		}
	}

	for _, c := range sortedCells(w.grid.water) {
		digestWriteCell(h, &tmp, c)
		digestWriteI64(h, &tmp, int64(w.grid.water[c]))
	}
	for _, c := range sortedCells(w.grid.catalyzed) {
		digestWriteCell(h, &tmp, c)
	}

	digestWriteU64(h, &tmp, w.coord.NextSerial())
	digestWriteU64(h, &tmp, w.ents.nextID)

	return hex.EncodeToString(h.Sum(nil))
}

func digestWriteU64(h hash.Hash, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteI64(h hash.Hash, tmp *[8]byte, v int64) {
	digestWriteU64(h, tmp, uint64(v))
}

func digestWriteF64(h hash.Hash, tmp *[8]byte, v float64) {
	digestWriteU64(h, tmp, math.Float64bits(v))
}

func digestWriteCell(h hash.Hash, tmp *[8]byte, c growth.Cell) {
	digestWriteI64(h, tmp, int64(c.X))
	digestWriteI64(h, tmp, int64(c.Y))
	digestWriteI64(h, tmp, int64(c.Z))
}

func sortedCells[V any](m map[growth.Cell]V) []growth.Cell {
	out := make([]growth.Cell, 0, len(m))
	for c := range m {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.X != b.X {
			return a.X < b.X
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.Z < b.Z
	})
	return out
}
