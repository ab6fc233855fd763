package growth

import (
	"log"

	"gonum.org/v1/gonum/spatial/r3"

	"voxelgrowth.ai/internal/sim/mathx"
)

// ForceSampler accumulates the pull of metal-bearing blocks and entities
// around a cell. Sources point from themselves towards the sampled cell;
// repelling material flips the sign.
type ForceSampler struct {
	Radius           int
	BlockMultiplier  float64
	EntityMultiplier float64
	Log              *log.Logger

	warned map[Block]bool
}

func NewForceSampler(radius int, blockMul, entityMul float64, logger *log.Logger) *ForceSampler {
	return &ForceSampler{
		Radius:           radius,
		BlockMultiplier:  blockMul,
		EntityMultiplier: entityMul,
		Log:              logger,
	}
}

// Falloff is (content - distance + 1) * multiplier while content reaches
// the distance, else 0.
func Falloff(content, dist int, multiplier float64) float64 {
	if content < dist {
		return 0
	}
	return float64(content-dist+1) * multiplier
}

func (s *ForceSampler) Sample(env *Env, cell Cell) r3.Vec {
	sum := s.sampleBlocks(env, cell)
	return r3.Add(sum, s.sampleEntities(env, cell))
}

func (s *ForceSampler) sampleBlocks(env *Env, cell Cell) r3.Vec {
	var sum r3.Vec
	if env.Content == nil {
		return sum
	}
	r := s.Radius
	target := cell.Center()
	for dx := -r; dx <= r; dx++ {
		for dy := -r; dy <= r; dy++ {
			for dz := -r; dz <= r; dz++ {
				if dx == 0 && dy == 0 && dz == 0 {
					continue
				}
				src := Cell{X: cell.X + dx, Y: cell.Y + dy, Z: cell.Z + dz}
				b := env.Grid.Cell(src)
				if !env.HasTag(b, TagMetal) {
					continue
				}
				content, ok := env.Content.Content(b)
				if !ok {
					s.warnMissing(env, b)
					continue
				}
				sign := 1.0
				if content < 0 || env.HasTag(b, TagRepel) {
					sign = -1
				}
				mag := Falloff(mathx.AbsInt(content), src.Manhattan(cell), s.BlockMultiplier)
				if mag == 0 || s.shielded(env, src, cell) {
					continue
				}
				dir := r3.Unit(r3.Sub(target, src.Center()))
				sum = r3.Add(sum, r3.Scale(sign*mag, dir))
			}
		}
	}
	return sum
}

func (s *ForceSampler) sampleEntities(env *Env, cell Cell) r3.Vec {
	var sum r3.Vec
	if env.Entities == nil {
		return sum
	}
	ents := env.Entities.MetalEntities(cell.Center(), float64(s.Radius))
	net := 0
	for _, e := range ents {
		net += e.Content
	}
	if net == 0 {
		return sum
	}
	target := cell.Center()
	for _, e := range ents {
		src := CellOf(e.Pos)
		if src == cell || e.Content == 0 {
			continue
		}
		if mathx.AbsInt(src.X-cell.X) > s.Radius || mathx.AbsInt(src.Y-cell.Y) > s.Radius || mathx.AbsInt(src.Z-cell.Z) > s.Radius {
			continue
		}
		mag := Falloff(mathx.AbsInt(e.Content), src.Manhattan(cell), s.EntityMultiplier)
		if mag == 0 || s.shielded(env, src, cell) {
			continue
		}
		sign := 1.0
		if e.Content < 0 {
			sign = -1
		}
		d := r3.Sub(target, e.Pos)
		if r3.Norm(d) == 0 {
			continue
		}
		sum = r3.Add(sum, r3.Scale(sign*mag, r3.Unit(d)))
	}
	return sum
}

// shielded walks the integer line strictly between from and to looking for
// a shielding block.
func (s *ForceSampler) shielded(env *Env, from, to Cell) bool {
	dx, dy, dz := to.X-from.X, to.Y-from.Y, to.Z-from.Z
	n := max(mathx.AbsInt(dx), mathx.AbsInt(dy), mathx.AbsInt(dz))
	for i := 1; i < n; i++ {
		p := Cell{
			X: from.X + roundDiv(dx*i, n),
			Y: from.Y + roundDiv(dy*i, n),
			Z: from.Z + roundDiv(dz*i, n),
		}
		if p == from || p == to {
			continue
		}
		if env.HasTag(env.Grid.Cell(p), TagShielding) {
			return true
		}
	}
	return false
}

func roundDiv(a, b int) int {
	if a >= 0 {
		return (a + b/2) / b
	}
	return -((-a + b/2) / b)
}

func (s *ForceSampler) warnMissing(env *Env, b Block) {
	if s.warned[b] {
		return
	}
	if s.warned == nil {
		s.warned = map[Block]bool{}
	}
	s.warned[b] = true
	l := s.Log
	if l == nil {
		l = env.logger()
	}
	l.Printf("growth: block %d is tagged %q but has no content entry; treating as 0", b, TagMetal)
}
