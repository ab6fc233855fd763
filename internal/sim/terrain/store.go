package terrain

import (
	"crypto/sha256"
	"encoding/binary"
	"sort"

	"github.com/ojrac/opensimplex-go"

	"voxelgrowth.ai/internal/sim/mathx"
)

const ChunkSize = 16

type ChunkKey struct {
	CX int
	CZ int
}

// Chunk is a 16x16 column of Height blocks, indexed x + z*16 + y*256.
type Chunk struct {
	CX, CZ int
	Height int
	Blocks []uint16

	dirty bool
	hash  [32]byte
}

func newChunk(cx, cz, height int) *Chunk {
	return &Chunk{CX: cx, CZ: cz, Height: height, Blocks: make([]uint16, ChunkSize*ChunkSize*height)}
}

func (c *Chunk) index(x, y, z int) int {
	return x + z*ChunkSize + y*ChunkSize*ChunkSize
}

func (c *Chunk) Get(x, y, z int) uint16 {
	return c.Blocks[c.index(x, y, z)]
}

func (c *Chunk) Set(x, y, z int, b uint16) {
	i := c.index(x, y, z)
	if c.Blocks[i] == b {
		return
	}
	c.Blocks[i] = b
	c.dirty = true
}

func (c *Chunk) Digest() [32]byte {
	if c.dirty || c.hash == ([32]byte{}) {
		h := sha256.New()
		var tmp [2]byte
		for _, v := range c.Blocks {
			binary.LittleEndian.PutUint16(tmp[:], v)
			h.Write(tmp[:])
		}
		copy(c.hash[:], h.Sum(nil))
		c.dirty = false
	}
	return c.hash
}

// Palette names the blocks the generator lays down.
type Palette struct {
	Air       uint16
	Bedrock   uint16
	Stone     uint16
	Dirt      uint16
	Grass     uint16
	Sand      uint16
	Gravel    uint16
	Water     uint16
	SporeSea  uint16
	Salt      uint16
	IronOre   uint16
	Lodestone uint16
	Lead      uint16
}

type Gen struct {
	Seed      int64
	Height    int
	SeaLevel  int
	BoundaryR int
	Palette   Palette
}

type Store struct {
	Gen    Gen
	Chunks map[ChunkKey]*Chunk

	surface opensimplex.Noise
	detail  opensimplex.Noise
	caves   opensimplex.Noise
	seas    opensimplex.Noise
}

func NewStore(gen Gen) *Store {
	return &Store{
		Gen:     gen,
		Chunks:  map[ChunkKey]*Chunk{},
		surface: opensimplex.New(gen.Seed),
		detail:  opensimplex.New(gen.Seed + 1),
		caves:   opensimplex.New(gen.Seed + 2),
		seas:    opensimplex.NewNormalized(gen.Seed + 3),
	}
}

func (s *Store) InBounds(x, y, z int) bool {
	if y < 0 || y >= s.Gen.Height {
		return false
	}
	if s.Gen.BoundaryR > 0 {
		if x < -s.Gen.BoundaryR || x > s.Gen.BoundaryR || z < -s.Gen.BoundaryR || z > s.Gen.BoundaryR {
			return false
		}
	}
	return true
}

func (s *Store) LoadedChunkKeys() []ChunkKey {
	keys := make([]ChunkKey, 0, len(s.Chunks))
	for k := range s.Chunks {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CX != keys[j].CX {
			return keys[i].CX < keys[j].CX
		}
		return keys[i].CZ < keys[j].CZ
	})
	return keys
}

// GetBlock reads a block; cells outside the world read as air.
func (s *Store) GetBlock(x, y, z int) uint16 {
	if !s.InBounds(x, y, z) {
		return s.Gen.Palette.Air
	}
	ch := s.GetOrGenChunk(mathx.FloorDiv(x, ChunkSize), mathx.FloorDiv(z, ChunkSize))
	return ch.Get(mathx.Mod(x, ChunkSize), y, mathx.Mod(z, ChunkSize))
}

// SetBlock reports false when the cell lies outside the world.
func (s *Store) SetBlock(x, y, z int, b uint16) bool {
	if !s.InBounds(x, y, z) {
		return false
	}
	ch := s.GetOrGenChunk(mathx.FloorDiv(x, ChunkSize), mathx.FloorDiv(z, ChunkSize))
	ch.Set(mathx.Mod(x, ChunkSize), y, mathx.Mod(z, ChunkSize), b)
	return true
}

func (s *Store) GetOrGenChunk(cx, cz int) *Chunk {
	k := ChunkKey{CX: cx, CZ: cz}
	if ch, ok := s.Chunks[k]; ok {
		return ch
	}
	ch := newChunk(cx, cz, s.Gen.Height)
	s.GenerateChunk(ch)
	ch.dirty = true
	_ = ch.Digest()
	s.Chunks[k] = ch
	return ch
}

// SurfaceY is the first air cell above generated ground at x,z, ignoring caves.
func (s *Store) SurfaceY(x, z int) int {
	return s.surfaceHeight(x, z)
}
