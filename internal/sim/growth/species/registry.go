package species

import (
	"voxelgrowth.ai/internal/sim/growth"
	"voxelgrowth.ai/internal/sim/tuning"
)

// Registry builds every species from the tuning, keyed by name.
func Registry(blocks BlockResolver, t tuning.Tuning) (map[string]growth.Species, error) {
	out := map[string]growth.Species{}

	vine, err := NewVine(t.Species.Vine, blocks)
	if err != nil {
		return nil, err
	}
	out[vine.Name()] = vine

	spine, err := NewSpine(t.Species.Spine, blocks)
	if err != nil {
		return nil, err
	}
	out[spine.Name()] = spine

	crystal, err := NewCrystal(t.Species.Crystal, blocks)
	if err != nil {
		return nil, err
	}
	out[crystal.Name()] = crystal

	essence, err := NewEssence(t.Species.Essence, blocks)
	if err != nil {
		return nil, err
	}
	out[essence.Name()] = essence

	return out, nil
}
