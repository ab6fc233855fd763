package tuning

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Tuning struct {
	World   World      `yaml:"world"`
	Growth  Growth     `yaml:"growth"`
	Species SpeciesSet `yaml:"species"`
}

type World struct {
	ID                 string  `yaml:"id"`
	TickRateHz         int     `yaml:"tick_rate_hz"`
	Height             int     `yaml:"height"`
	SeaLevel           int     `yaml:"sea_level"`
	Seed               int64   `yaml:"seed"`
	BoundaryR          int     `yaml:"boundary_r"`
	SnapshotEveryTicks int     `yaml:"snapshot_every_ticks"`
	ArchiveEveryTicks  int     `yaml:"archive_every_ticks"`
	KeepSnapshots      int     `yaml:"keep_snapshots"`
	EntityCount        int     `yaml:"entity_count"`
	EntitySpeed        float64 `yaml:"entity_speed"`
}

// Growth holds the rules shared by every species.
type Growth struct {
	HazardRadius          int     `yaml:"hazard_radius"`
	HazardPenalty         int     `yaml:"hazard_penalty"`
	AbsorbCap             int     `yaml:"absorb_cap"`
	MergeRadius           float64 `yaml:"merge_radius"`
	ForceRadius           int     `yaml:"force_radius"`
	BlockForceMultiplier  float64 `yaml:"block_force_multiplier"`
	EntityForceMultiplier float64 `yaml:"entity_force_multiplier"`
}

// Species is the tuning of one growth type. Fields a species does not use
// stay zero.
type Species struct {
	GrowthDelay        int `yaml:"growth_delay"`
	InitialGrowthDelay int `yaml:"initial_growth_delay"`
	MaxStage           int `yaml:"max_stage"`
	SmallStage         int `yaml:"small_stage"`
	MaxAge             int `yaml:"max_age"`
	SporeCost          int `yaml:"spore_cost"`
	WaterCost          int `yaml:"water_cost"`

	StageBlocks     []string `yaml:"stage_blocks"`
	DecoratorBlock  string   `yaml:"decorator_block"`
	DecoratorDepth  int      `yaml:"decorator_depth"`
	DecoratorChance float64  `yaml:"decorator_chance"`

	WaterStageThreshold int     `yaml:"water_stage_threshold"`
	SporeBandMin        int     `yaml:"spore_band_min"`
	SporeBandMax        int     `yaml:"spore_band_max"`
	SplitChance         float64 `yaml:"split_chance"`
	SplitMin            float64 `yaml:"split_min"`
	SplitMax            float64 `yaml:"split_max"`

	// ForceAlignment < 0 pulls growth towards metal, > 0 pushes it away.
	ForceAlignment float64 `yaml:"force_alignment"`

	Base          int `yaml:"base"`
	PassBase      int `yaml:"pass_base"`
	RepeatPenalty int `yaml:"repeat_penalty"`
	StraightBonus int `yaml:"straight_bonus"`
	VerticalBias  int `yaml:"vertical_bias"`
	OriginBias    int `yaml:"origin_bias"`
	ClusterRadius int `yaml:"cluster_radius"`
	ClumpLimit    int `yaml:"clump_limit"`
	ClumpPenalty  int `yaml:"clump_penalty"`
	HugBonus      int `yaml:"hug_bonus"`

	Particle string `yaml:"particle"`
	Sound    string `yaml:"sound"`
}

// SpeciesSet uses named fields so a user file can override a single value
// of one species without restating the rest.
type SpeciesSet struct {
	Vine    Species `yaml:"vine"`
	Spine   Species `yaml:"spine"`
	Crystal Species `yaml:"crystal"`
	Essence Species `yaml:"essence"`
}

func (s SpeciesSet) ByName() map[string]Species {
	return map[string]Species{
		"vine":    s.Vine,
		"spine":   s.Spine,
		"crystal": s.Crystal,
		"essence": s.Essence,
	}
}

func Defaults() (Tuning, error) {
	var t Tuning
	if err := yaml.Unmarshal(defaultsYAML, &t); err != nil {
		return t, fmt.Errorf("embedded defaults: %w", err)
	}
	return t, nil
}

// Load reads path over the embedded defaults. An empty path yields the defaults.
func Load(path string) (Tuning, error) {
	t, err := Defaults()
	if err != nil {
		return t, err
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return t, err
		}
		if err := yaml.Unmarshal(raw, &t); err != nil {
			return t, fmt.Errorf("species.yaml: %w", err)
		}
	}
	if err := t.Validate(); err != nil {
		return t, err
	}
	return t, nil
}

func (t Tuning) Validate() error {
	var errs []error
	if t.World.TickRateHz <= 0 {
		errs = append(errs, fmt.Errorf("world.tick_rate_hz must be > 0"))
	}
	if t.World.Height <= 0 {
		errs = append(errs, fmt.Errorf("world.height must be > 0"))
	}
	if t.World.BoundaryR <= 0 {
		errs = append(errs, fmt.Errorf("world.boundary_r must be > 0"))
	}
	if a, s := t.World.ArchiveEveryTicks, t.World.SnapshotEveryTicks; a > 0 && (s <= 0 || a%s != 0) {
		errs = append(errs, fmt.Errorf("world.archive_every_ticks %d must be a multiple of snapshot_every_ticks %d", a, s))
	}
	if t.Growth.MergeRadius < 0 || t.Growth.ForceRadius < 0 || t.Growth.AbsorbCap < 0 {
		errs = append(errs, fmt.Errorf("growth: radii and absorb_cap must be >= 0"))
	}

	byName := t.Species.ByName()
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := byName[name].validate(); err != nil {
			errs = append(errs, fmt.Errorf("species.%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func (s Species) validate() error {
	switch {
	case s.MaxStage < 0 || s.MaxAge < 0:
		return fmt.Errorf("max_stage and max_age must be >= 0")
	case s.SmallStage < 0 || s.SmallStage > s.MaxStage:
		return fmt.Errorf("small_stage %d outside [0,%d]", s.SmallStage, s.MaxStage)
	case len(s.StageBlocks) == 0:
		return fmt.Errorf("stage_blocks is empty")
	case s.SporeCost < 0 || s.WaterCost < 0:
		return fmt.Errorf("costs must be >= 0")
	case s.Base <= 0:
		return fmt.Errorf("base must be > 0")
	case s.SplitMin < 0 || s.SplitMax > 1 || s.SplitMin > s.SplitMax:
		return fmt.Errorf("split range [%v,%v] invalid", s.SplitMin, s.SplitMax)
	case s.SporeBandMin > s.SporeBandMax:
		return fmt.Errorf("spore band [%d,%d] invalid", s.SporeBandMin, s.SporeBandMax)
	case s.DecoratorDepth > 0 && s.DecoratorBlock == "":
		return fmt.Errorf("decorator_depth set without decorator_block")
	}
	return nil
}
