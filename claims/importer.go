package claims

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/paulmach/orb"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed region_import.schema.json
var importSchemaJSON []byte

var (
	importSchema     *jsonschema.Schema
	importSchemaErr  error
	importSchemaOnce sync.Once
)

func compiledImportSchema() (*jsonschema.Schema, error) {
	importSchemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource("region_import.schema.json", bytes.NewReader(importSchemaJSON)); err != nil {
			importSchemaErr = fmt.Errorf("loading import schema: %w", err)
			return
		}
		importSchema, importSchemaErr = c.Compile("region_import.schema.json")
	})
	return importSchema, importSchemaErr
}

// Cuboid is an inclusive block range, the shape of a cuboid claim.
type Cuboid struct {
	MinX int `json:"minX"`
	MinZ int `json:"minZ"`
	MaxX int `json:"maxX"`
	MaxZ int `json:"maxZ"`
}

// ImportRegion is one region in an import file. Exactly one of Geometry and
// Cuboid is set.
type ImportRegion struct {
	ID       string       `json:"id"`
	Geometry orb.Polygon  `json:"geometry,omitempty"`
	Cuboid   *Cuboid      `json:"cuboid,omitempty"`
	Owners   PrincipalSet `json:"owners,omitempty"`
	Members  PrincipalSet `json:"members,omitempty"`
	Flags    Flags        `json:"flags,omitempty"`
	Parent   string       `json:"parent,omitempty"`
	Priority int          `json:"priority,omitempty"`
}

// ImportFile is the on-disk import format.
type ImportFile struct {
	World   string         `json:"world"`
	Regions []ImportRegion `json:"regions"`
}

// Region converts the import entry to a Region.
func (ir ImportRegion) Region() *Region {
	geom := ir.Geometry
	if ir.Cuboid != nil {
		geom = RectPolygon(ir.Cuboid.MinX, ir.Cuboid.MinZ, ir.Cuboid.MaxX, ir.Cuboid.MaxZ)
	}
	flags := ir.Flags
	if flags == nil {
		flags = Flags{}
	}
	return &Region{
		ID:       ir.ID,
		Geometry: geom,
		Owners:   ir.Owners,
		Members:  ir.Members,
		Flags:    flags,
		Parent:   ir.Parent,
		Priority: ir.Priority,
	}
}

// ParseImport validates data against the import schema and decodes it.
func ParseImport(data []byte) (*ImportFile, error) {
	schema, err := compiledImportSchema()
	if err != nil {
		return nil, err
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing import JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("invalid import file: %w", err)
	}

	var f ImportFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decoding import file: %w", err)
	}

	seen := make(map[string]struct{}, len(f.Regions))
	for _, r := range f.Regions {
		if _, dup := seen[r.ID]; dup {
			return nil, fmt.Errorf("duplicate region id %q", r.ID)
		}
		seen[r.ID] = struct{}{}
	}
	return &f, nil
}

// LoadImportFile reads and validates an import file from disk.
func LoadImportFile(path string) (*ImportFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading import file: %w", err)
	}
	return ParseImport(data)
}

// ImportRegions writes every region of f into the world it names. Parents are
// written before their children; a parent cycle stops the import.
func ImportRegions(host Host, f *ImportFile) (int, error) {
	w, err := host.World(f.World)
	if err != nil {
		return 0, err
	}

	regions := make([]*Region, len(f.Regions))
	for i, ir := range f.Regions {
		regions[i] = ir.Region()
	}

	n := 0
	for _, r := range parentsFirst(regions) {
		if err := w.PutRegion(r); err != nil {
			return n, fmt.Errorf("importing %s: %w", r.ID, err)
		}
		n++
	}
	return n, nil
}
