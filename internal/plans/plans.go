// Package plans is the catalog of registration plans offered by the issuing
// service.
package plans

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Plan is one registration plan.
type Plan struct {
	ID       string `yaml:"id" json:"id"`
	Name     string `yaml:"name" json:"name"`
	Days     int    `yaml:"days" json:"days"`
	Disabled bool   `yaml:"disabled,omitempty" json:"-"`
}

var builtin = []Plan{
	{ID: "super0", Name: "Super Plan - 0 Days", Days: 0},
	{ID: "super40", Name: "Super Plan - 40 Days", Days: 40},
	{ID: "super90", Name: "Super Plan - 90 Days", Days: 90},
	{ID: "super180", Name: "Super Plan - 180 Days", Days: 180},
	{ID: "super360", Name: "Super Plan - 360 Days", Days: 360},
	{ID: "super_ipad360", Name: "Super iPad - 360 Days", Days: 360},
	{ID: "ordinary0", Name: "Ordinary Plan - 0 Days", Days: 0},
	{ID: "ordinary40", Name: "Ordinary Plan - 40 Days", Days: 40},
}

// Catalog is an immutable set of plans.
type Catalog struct {
	order []string
	plans map[string]Plan
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c := &Catalog{plans: make(map[string]Plan, len(builtin))}
	for _, p := range builtin {
		c.set(p)
	}
	return c
}

type overlayFile struct {
	Plans []Plan `yaml:"plans"`
}

// Load returns the built-in catalog overlaid with the plans in a YAML file.
// An entry with an existing id replaces that plan; disabled: true removes it.
// An empty path returns the built-in catalog.
func Load(path string) (*Catalog, error) {
	c := Default()
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}

	if err := c.Overlay(data); err != nil {
		return nil, fmt.Errorf("failed to load plan file %s: %w", path, err)
	}
	return c, nil
}

// Overlay applies YAML plan entries to the catalog.
func (c *Catalog) Overlay(data []byte) error {
	var f overlayFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	for i, p := range f.Plans {
		if p.ID == "" {
			return fmt.Errorf("plan %d: id is required", i)
		}
		if p.Disabled {
			c.remove(p.ID)
			continue
		}
		if p.Name == "" {
			p.Name = p.ID
		}
		c.set(p)
	}
	return nil
}

// Get returns a plan by id.
func (c *Catalog) Get(id string) (Plan, bool) {
	p, ok := c.plans[id]
	return p, ok
}

// Has reports whether id is a known plan.
func (c *Catalog) Has(id string) bool {
	_, ok := c.plans[id]
	return ok
}

// Name returns the display name, or the id itself for unknown plans.
func (c *Catalog) Name(id string) string {
	if p, ok := c.plans[id]; ok {
		return p.Name
	}
	return id
}

// All returns every plan in catalog order.
func (c *Catalog) All() []Plan {
	out := make([]Plan, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.plans[id])
	}
	return out
}

// IDs returns the sorted plan ids.
func (c *Catalog) IDs() []string {
	ids := make([]string, len(c.order))
	copy(ids, c.order)
	sort.Strings(ids)
	return ids
}

func (c *Catalog) set(p Plan) {
	if _, ok := c.plans[p.ID]; !ok {
		c.order = append(c.order, p.ID)
	}
	c.plans[p.ID] = p
}

func (c *Catalog) remove(id string) {
	if _, ok := c.plans[id]; !ok {
		return
	}
	delete(c.plans, id)
	for i, o := range c.order {
		if o == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
