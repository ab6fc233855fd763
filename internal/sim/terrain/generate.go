package terrain

import (
	"math"

	"voxelgrowth.ai/internal/sim/mathx"
)

func (s *Store) surfaceHeight(wx, wz int) int {
	x, z := float64(wx), float64(wz)
	h := float64(s.Gen.SeaLevel) +
		s.surface.Eval2(x/48, z/48)*8 +
		s.detail.Eval2(x/12, z/12)*2
	return mathx.ClampInt(int(math.Round(h)), 2, s.Gen.Height-1)
}

func (s *Store) GenerateChunk(ch *Chunk) {
	p := s.Gen.Palette
	for z := 0; z < ChunkSize; z++ {
		for x := 0; x < ChunkSize; x++ {
			wx := ch.CX*ChunkSize + x
			wz := ch.CZ*ChunkSize + z
			top := s.surfaceHeight(wx, wz)
			sea := s.seas.Eval2(float64(wx)/64, float64(wz)/64) > 0.72

			for y := 0; y < ch.Height; y++ {
				b := p.Air
				switch {
				case y == 0:
					b = p.Bedrock
				case y < top-3:
					b = s.rock(wx, y, wz)
				case y < top-1:
					b = p.Dirt
				case y == top-1:
					switch {
					case top <= s.Gen.SeaLevel:
						b = p.Sand
					case mathx.Hash3(s.Gen.Seed+11, wx, y, wz)%100 < 2:
						b = p.Salt
					default:
						b = p.Grass
					}
				case y < s.Gen.SeaLevel:
					b = p.Water
					if sea {
						b = p.SporeSea
					}
				}
				if b != p.Bedrock && y < top-4 && s.caves.Eval3(float64(wx)/16, float64(y)/10, float64(wz)/16) > 0.55 {
					b = p.Air
				}
				ch.Blocks[ch.index(x, y, z)] = b
			}
		}
	}
}

// rock picks the underground block: stone with ore, lodestone and lead veins.
func (s *Store) rock(wx, y, wz int) uint16 {
	p := s.Gen.Palette
	roll := mathx.Hash3(s.Gen.Seed+7, wx, y, wz) % 1000
	switch {
	case roll < 12:
		return p.IronOre
	case roll < 15:
		return p.Lodestone
	case roll < 20:
		return p.Lead
	case roll < 60:
		return p.Gravel
	}
	return p.Stone
}
