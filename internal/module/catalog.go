package module

import (
	_ "embed"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/tradeflow/internal/errors"
)

//go:embed catalog.yaml
var builtinCatalog []byte

// Catalog is the immutable set of known modules, in declaration order.
type Catalog struct {
	modules []Module
	index   map[string]int
}

type catalogDocument struct {
	Modules []Module `yaml:"modules"`
}

// ParseCatalog decodes and validates a YAML catalog document.
func ParseCatalog(data []byte) (*Catalog, error) {
	var doc catalogDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(errors.ErrCodeCatalogInvalid, "unmarshal module catalog", err)
	}
	return NewCatalog(doc.Modules)
}

// NewCatalog builds a catalog from modules, rejecting duplicates and unknown categories.
func NewCatalog(modules []Module) (*Catalog, error) {
	c := &Catalog{
		modules: make([]Module, 0, len(modules)),
		index:   make(map[string]int, len(modules)),
	}
	for i, m := range modules {
		if m.ID == "" {
			return nil, errors.New(errors.ErrCodeCatalogInvalid, fmt.Sprintf("module at index %d has no id", i))
		}
		if _, dup := c.index[m.ID]; dup {
			return nil, errors.New(errors.ErrCodeCatalogInvalid, fmt.Sprintf("duplicate module id %q", m.ID))
		}
		if !m.Category.Valid() {
			return nil, errors.New(errors.ErrCodeCatalogInvalid,
				fmt.Sprintf("module %q has unknown type %q", m.ID, m.Category))
		}
		if m.Name == "" {
			m.Name = m.ID
		}
		c.index[m.ID] = len(c.modules)
		c.modules = append(c.modules, cloneModule(m))
	}
	return c, nil
}

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(builtinCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded module catalog is invalid: %v", err))
	}
	return c
}

// LoadCatalog reads a catalog file, or returns the embedded one for an empty path.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeCatalogInvalid, "read module catalog", err)
	}
	return ParseCatalog(data)
}

// List returns copies of the modules matching f in catalog order.
func (c *Catalog) List(f Filter) []Module {
	out := make([]Module, 0, len(c.modules))
	for i := range c.modules {
		if f.match(&c.modules[i]) {
			out = append(out, cloneModule(c.modules[i]))
		}
	}
	return out
}

// Get returns a copy of one module.
func (c *Catalog) Get(id string) (Module, error) {
	i, ok := c.index[id]
	if !ok {
		return Module{}, errors.NewModuleNotFoundError(id)
	}
	return cloneModule(c.modules[i]), nil
}

// Len returns the number of modules.
func (c *Catalog) Len() int { return len(c.modules) }

// ActiveCount returns the number of active modules.
func (c *Catalog) ActiveCount() int {
	n := 0
	for i := range c.modules {
		if c.modules[i].Active {
			n++
		}
	}
	return n
}

func cloneModule(m Module) Module {
	m.Capabilities = slices.Clone(m.Capabilities)
	if m.Config != nil {
		cfg := make(map[string]any, len(m.Config))
		for k, v := range m.Config {
			cfg[k] = v
		}
		m.Config = cfg
	}
	return m
}
