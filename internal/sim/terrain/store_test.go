package terrain

import (
	"testing"

	snapv1 "voxelgrowth.ai/internal/persistence/snapshot"
)

func testGen() Gen {
	return Gen{
		Seed:      42,
		Height:    32,
		SeaLevel:  12,
		BoundaryR: 40,
		Palette: Palette{
			Air: 0, Bedrock: 1, Stone: 2, Dirt: 3, Grass: 4, Sand: 5, Gravel: 6,
			Water: 7, SporeSea: 8, Salt: 9, IronOre: 10, Lodestone: 11, Lead: 12,
		},
	}
}

func TestStore_Bounds(t *testing.T) {
	s := NewStore(testGen())
	if s.SetBlock(0, 32, 0, 2) || s.SetBlock(41, 5, 0, 2) || s.SetBlock(0, -1, 0, 2) {
		t.Fatalf("out-of-bounds writes must fail")
	}
	if s.GetBlock(0, 40, 0) != 0 {
		t.Fatalf("out-of-bounds reads are air")
	}
	if !s.SetBlock(-17, 5, 3, 9) || s.GetBlock(-17, 5, 3) != 9 {
		t.Fatalf("in-bounds write lost")
	}
	if _, ok := s.Chunks[ChunkKey{CX: -2, CZ: 0}]; !ok {
		t.Fatalf("negative coordinates must floor into chunk -2")
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	a := NewStore(testGen())
	b := NewStore(testGen())
	for _, k := range []ChunkKey{{0, 0}, {-1, 2}, {1, -1}} {
		if a.GetOrGenChunk(k.CX, k.CZ).Digest() != b.GetOrGenChunk(k.CX, k.CZ).Digest() {
			t.Fatalf("chunk %v differs between identical seeds", k)
		}
	}
	g := testGen()
	g.Seed = 43
	c := NewStore(g)
	if a.GetOrGenChunk(0, 0).Digest() == c.GetOrGenChunk(0, 0).Digest() {
		t.Fatalf("different seeds produced the same chunk")
	}
}

func TestGenerate_Layers(t *testing.T) {
	s := NewStore(testGen())
	p := s.Gen.Palette
	for x := -8; x < 8; x++ {
		for z := -8; z < 8; z++ {
			if s.GetBlock(x, 0, z) != p.Bedrock {
				t.Fatalf("missing bedrock at %d,%d", x, z)
			}
			top := s.SurfaceY(x, z)
			if top < 2 || top >= s.Gen.Height {
				t.Fatalf("surface %d out of range", top)
			}
			above := s.GetBlock(x, s.Gen.Height-1, z)
			if above != p.Air {
				t.Fatalf("sky not air at %d,%d: %d", x, z, above)
			}
			surf := s.GetBlock(x, top-1, z)
			if surf != p.Grass && surf != p.Sand && surf != p.Salt && surf != p.Air {
				t.Fatalf("unexpected surface block %d at %d,%d", surf, x, z)
			}
		}
	}
}

func TestExportImportChunks(t *testing.T) {
	s := NewStore(testGen())
	s.SetBlock(3, 20, 4, 12)
	s.GetOrGenChunk(-1, -1)
	exported := s.ExportChunks()
	if len(exported) != 2 || exported[0].CX != -1 {
		t.Fatalf("expected two sorted chunks, got %+v", len(exported))
	}

	r, err := ImportChunks(testGen(), exported)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	for _, k := range s.LoadedChunkKeys() {
		if r.Chunks[k] == nil || r.Chunks[k].Digest() != s.Chunks[k].Digest() {
			t.Fatalf("chunk %v differs after import", k)
		}
	}
	if r.GetBlock(3, 20, 4) != 12 {
		t.Fatalf("edited block lost")
	}
}

func TestImportChunks_RejectsBadShape(t *testing.T) {
	if _, err := ImportChunks(testGen(), []snapv1.ChunkV1{{Height: 31}}); err == nil {
		t.Fatalf("expected height mismatch")
	}
	if _, err := ImportChunks(testGen(), []snapv1.ChunkV1{{Height: 32, RLE: []byte{1, 5}}}); err == nil {
		t.Fatalf("expected length mismatch")
	}
}
