package terrain

import (
	"fmt"

	snapv1 "voxelgrowth.ai/internal/persistence/snapshot"
	"voxelgrowth.ai/internal/sim/encoding"
)

// ExportChunks converts the loaded chunks into RLE snapshot chunks in key order.
func (s *Store) ExportChunks() []snapv1.ChunkV1 {
	keys := s.LoadedChunkKeys()
	out := make([]snapv1.ChunkV1, 0, len(keys))
	for _, k := range keys {
		ch := s.Chunks[k]
		out = append(out, snapv1.ChunkV1{
			CX:     k.CX,
			CZ:     k.CZ,
			Height: ch.Height,
			RLE:    encoding.EncodeRLE(ch.Blocks),
		})
	}
	return out
}

// ImportChunks rebuilds a store from snapshot chunks. Chunks not in the
// snapshot are regenerated on demand from the seed.
func ImportChunks(gen Gen, chunks []snapv1.ChunkV1) (*Store, error) {
	s := NewStore(gen)
	for _, ch := range chunks {
		if ch.Height != gen.Height {
			return nil, fmt.Errorf("snapshot chunk %d,%d height mismatch: got %d want %d", ch.CX, ch.CZ, ch.Height, gen.Height)
		}
		blocks, err := encoding.DecodeRLE(ch.RLE, ChunkSize*ChunkSize*gen.Height)
		if err != nil {
			return nil, fmt.Errorf("snapshot chunk %d,%d: %w", ch.CX, ch.CZ, err)
		}
		c := &Chunk{CX: ch.CX, CZ: ch.CZ, Height: gen.Height, Blocks: blocks}
		_ = c.Digest()
		s.Chunks[ChunkKey{CX: ch.CX, CZ: ch.CZ}] = c
	}
	return s, nil
}
