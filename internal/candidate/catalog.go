package candidate

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Example is a rewrite measured on an earlier query.
type Example struct {
	// ID uniquely identifies the example within a catalog.
	ID string `yaml:"id"`

	// Family groups examples by the kind of transformation, for example
	// "predicate_pushdown" or "decorrelation".
	Family string `yaml:"family"`

	Description string `yaml:"description,omitempty"`

	// Speedup is the previously measured original/rewrite time ratio.
	Speedup float64 `yaml:"speedup"`

	// Before and After show the rewrite on the query it was measured on.
	Before string `yaml:"before,omitempty"`
	After  string `yaml:"after,omitempty"`

	Transforms []string `yaml:"transforms,omitempty"`
}

// Catalog is a set of examples.
type Catalog struct {
	Examples []Example `yaml:"examples"`
}

// LoadCatalog reads and validates a catalog YAML file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog parses catalog YAML. Unknown fields are rejected.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	seen := make(map[string]bool, len(c.Examples))
	for i, e := range c.Examples {
		switch {
		case e.ID == "":
			return fmt.Errorf("example %d: id is required", i)
		case seen[e.ID]:
			return fmt.Errorf("example %d: duplicate id %q", i, e.ID)
		case e.Family == "":
			return fmt.Errorf("example %q: family is required", e.ID)
		case e.Speedup < 0:
			return fmt.Errorf("example %q: speedup must not be negative", e.ID)
		}
		seen[e.ID] = true
	}
	return nil
}
