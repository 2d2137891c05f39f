// Package atlas loads atlas-space parcellations and answers region
// membership queries. A Registry is immutable once built and safe to share
// across concurrent subject analyses without locking.
package atlas

import (
	"fmt"

	"lesionmap/internal/models"
	"lesionmap/pkg/nii"
)

// UnknownRegionError reports a request for a region name the atlas does
// not define. It is fatal to the analysis call that made the request.
type UnknownRegionError struct {
	Region string
}

func (e *UnknownRegionError) Error() string {
	return fmt.Sprintf("unknown atlas region %q", e.Region)
}

// region is one named anatomical structure resolved against the label
// volume.
type region struct {
	entry LabelEntry
	size  int
}

// Registry maps region names to their voxel membership over a single
// atlas grid. The grid it carries is the canonical reference grid every
// subject mask must match.
type Registry struct {
	grid    models.Grid
	labels  []int32
	sizes   map[int32]int
	regions map[string]*region
	order   []string
	childOf map[string][]string
}

// NewRegistry builds a registry from a label volume and a label table.
// Region sizes are resolved eagerly so later queries are cheap. Hierarchy
// links in the table are validated: a parent must name another entry and
// the parent relation must be acyclic.
func NewRegistry(labels *nii.Labels, table []LabelEntry) (*Registry, error) {
	if len(table) == 0 {
		return nil, fmt.Errorf("atlas: empty label table")
	}

	r := &Registry{
		grid:    labels.Grid,
		labels:  labels.Data,
		sizes:   make(map[int32]int),
		regions: make(map[string]*region, len(table)),
		childOf: make(map[string][]string),
	}

	for _, v := range labels.Data {
		r.sizes[v]++
	}

	for _, e := range table {
		if _, dup := r.regions[e.Name]; dup {
			return nil, fmt.Errorf("atlas: duplicate region name %q", e.Name)
		}
		r.regions[e.Name] = &region{entry: e, size: r.sizes[e.Label]}
		r.order = append(r.order, e.Name)
	}

	for _, e := range table {
		if e.Parent == "" {
			continue
		}
		if _, ok := r.regions[e.Parent]; !ok {
			return nil, fmt.Errorf("atlas: region %q names unknown parent %q", e.Name, e.Parent)
		}
		r.childOf[e.Parent] = append(r.childOf[e.Parent], e.Name)
	}
	if err := r.checkAcyclic(); err != nil {
		return nil, err
	}

	return r, nil
}

// LoadRegistry loads the label volume at path and builds a registry over it.
func LoadRegistry(path string, table []LabelEntry) (*Registry, error) {
	labels, err := nii.LoadLabels(path)
	if err != nil {
		return nil, fmt.Errorf("loading atlas labels: %w", err)
	}
	return NewRegistry(labels, table)
}

// checkAcyclic rejects parent chains that loop back on themselves.
func (r *Registry) checkAcyclic() error {
	for name := range r.regions {
		seen := map[string]bool{name: true}
		cur := r.regions[name].entry.Parent
		for cur != "" {
			if seen[cur] {
				return fmt.Errorf("atlas: cyclic hierarchy through region %q", cur)
			}
			seen[cur] = true
			cur = r.regions[cur].entry.Parent
		}
	}
	return nil
}

// Grid returns the canonical atlas grid.
func (r *Registry) Grid() models.Grid {
	return r.grid
}

// RegionNames returns all region names in label-table order.
func (r *Registry) RegionNames() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Has reports whether the registry defines the named region.
func (r *Registry) Has(name string) bool {
	_, ok := r.regions[name]
	return ok
}

// Parent returns the parent region name, or "" for a root region.
func (r *Registry) Parent(name string) (string, error) {
	reg, ok := r.regions[name]
	if !ok {
		return "", &UnknownRegionError{Region: name}
	}
	return reg.entry.Parent, nil
}

// Children returns the direct sub-structures of the named region.
func (r *Registry) Children(name string) ([]string, error) {
	if _, ok := r.regions[name]; !ok {
		return nil, &UnknownRegionError{Region: name}
	}
	out := make([]string, len(r.childOf[name]))
	copy(out, r.childOf[name])
	return out, nil
}

// memberLabels collects the label values of a region and all its
// descendants, so a parent structure covers its sub-structures' voxels.
func (r *Registry) memberLabels(name string) map[int32]bool {
	out := make(map[int32]bool)
	stack := []string{name}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out[r.regions[cur].entry.Label] = true
		stack = append(stack, r.childOf[cur]...)
	}
	return out
}

// Membership returns the boolean membership volume of the named region
// over the atlas grid, including any sub-structure voxels.
func (r *Registry) Membership(name string) ([]bool, error) {
	if _, ok := r.regions[name]; !ok {
		return nil, &UnknownRegionError{Region: name}
	}
	want := r.memberLabels(name)
	out := make([]bool, len(r.labels))
	for i, v := range r.labels {
		if want[v] {
			out[i] = true
		}
	}
	return out, nil
}

// RegionSize returns the voxel count of the named region including its
// sub-structures. A size of zero is legal: the region is defined in the
// label table but absent from this particular label volume.
func (r *Registry) RegionSize(name string) (int, error) {
	if _, ok := r.regions[name]; !ok {
		return 0, &UnknownRegionError{Region: name}
	}
	n := 0
	for label := range r.memberLabels(name) {
		n += r.sizes[label]
	}
	return n, nil
}
