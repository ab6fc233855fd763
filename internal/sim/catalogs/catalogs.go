package catalogs

import (
	"bytes"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

type Catalogs struct {
	Blocks BlockCatalog
	Metal  ContentCatalog
}

type BlockCatalog struct {
	Palette       []string
	Index         map[string]uint16
	Defs          map[string]BlockDef
	PaletteDigest string
	DefsDigest    string

	// tags is indexed by palette id.
	tags []map[string]bool
}

type BlockDef struct {
	ID         string   `json:"id"`
	Solid      bool     `json:"solid"`
	Tags       []string `json:"tags,omitempty"`
	DropsItem  string   `json:"drops_item,omitempty"`
	WaterUnits int      `json:"water_units,omitempty"`
}

// ContentCatalog is the signed metal content of blocks and entity categories.
type ContentCatalog struct {
	Blocks   map[string]int `json:"blocks"`
	Entities map[string]int `json:"entities"`
	Digest   string         `json:"-"`

	byID map[uint16]int
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs

	if err := loadBlocks(filepath.Join(configDir, "blocks.json"), &c.Blocks); err != nil {
		return nil, err
	}
	if err := loadContent(filepath.Join(configDir, "content.json"), &c.Metal, &c.Blocks); err != nil {
		return nil, err
	}
	return &c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func compileSchema(name string) (*jsonschema.Schema, error) {
	raw, err := schemaFS.ReadFile("schemas/" + name)
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return c.Compile(name)
}

// validate checks raw against the embedded schema before it is decoded.
func validate(file, schema string, raw []byte) error {
	s, err := compileSchema(schema)
	if err != nil {
		return fmt.Errorf("%s: schema: %w", file, err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("%s: %w", file, err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("%s: %w", file, err)
	}
	return nil
}

func loadBlocks(path string, out *BlockCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := validate("blocks.json", "blocks.schema.json", raw); err != nil {
		return err
	}
	out.DefsDigest = sha256Hex(raw)

	var defs []BlockDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("blocks.json: %w", err)
	}
	out.Defs = map[string]BlockDef{}
	for _, d := range defs {
		if _, dup := out.Defs[d.ID]; dup {
			return fmt.Errorf("blocks.json: duplicate id %s", d.ID)
		}
		out.Defs[d.ID] = d
	}

	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	// AIR is always palette id 0.
	if _, ok := out.Defs["AIR"]; !ok {
		return fmt.Errorf("blocks.json: missing AIR")
	}
	ids = append([]string{"AIR"}, filterOut(ids, "AIR")...)
	if len(ids) > 1<<16 {
		return fmt.Errorf("blocks.json: %d blocks exceed the palette", len(ids))
	}

	out.Palette = ids
	out.Index = make(map[string]uint16, len(ids))
	out.tags = make([]map[string]bool, len(ids))
	for i, id := range ids {
		out.Index[id] = uint16(i)
		tags := map[string]bool{}
		for _, t := range out.Defs[id].Tags {
			tags[t] = true
		}
		if out.Defs[id].Solid {
			tags["solid"] = true
		}
		out.tags[i] = tags
	}
	palJSON, _ := json.Marshal(ids)
	out.PaletteDigest = sha256Hex(palJSON)
	return nil
}

func loadContent(path string, out *ContentCatalog, blocks *BlockCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := validate("content.json", "content.schema.json", raw); err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("content.json: %w", err)
	}
	out.byID = make(map[uint16]int, len(out.Blocks))
	for name, v := range out.Blocks {
		id, ok := blocks.Index[name]
		if !ok {
			return fmt.Errorf("content.json: unknown block %s", name)
		}
		out.byID[id] = v
	}
	if out.Entities == nil {
		out.Entities = map[string]int{}
	}
	return nil
}

func (c *Catalogs) BlockID(name string) (uint16, bool) {
	id, ok := c.Blocks.Index[name]
	return id, ok
}

// BlockName returns the palette name of id, or "" when id is out of range.
func (c *Catalogs) BlockName(id uint16) string {
	if int(id) >= len(c.Blocks.Palette) {
		return ""
	}
	return c.Blocks.Palette[id]
}

func (c *Catalogs) Def(id uint16) (BlockDef, bool) {
	name := c.BlockName(id)
	if name == "" {
		return BlockDef{}, false
	}
	d, ok := c.Blocks.Defs[name]
	return d, ok
}

func (c *Catalogs) HasTag(id uint16, tag string) bool {
	if int(id) >= len(c.Blocks.tags) {
		return false
	}
	return c.Blocks.tags[id][tag]
}

// Content reports the metal content of a block; ok is false for blocks
// without an entry.
func (c *Catalogs) Content(id uint16) (int, bool) {
	v, ok := c.Metal.byID[id]
	return v, ok
}

func (c *Catalogs) EntityContent(category string) int {
	return c.Metal.Entities[category]
}

// Digest combines every catalog digest for snapshot headers.
func (c *Catalogs) Digest() string {
	return sha256Hex([]byte(c.Blocks.PaletteDigest + c.Blocks.DefsDigest + c.Metal.Digest))
}

func filterOut(in []string, remove string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == remove {
			continue
		}
		out = append(out, s)
	}
	return out
}
