// Package resources holds the registry of resources known to a pantry
// application: the built-in catalog, order and user resources plus any
// resource files found in the configured resources directory.
package resources

import (
	"errors"
	"fmt"

	"github.com/mesh-intelligence/pantry/pkg/types"
)

// Registry errors.
var (
	ErrDuplicate    = errors.New("resource already registered")
	ErrIncompatible = errors.New("resource override drops a built-in field")
	ErrUnknownRef   = errors.New("reference to unknown resource")
)

// Registry is an ordered set of normalized, validated resources.
// It is not safe for concurrent mutation; build it at startup.
type Registry struct {
	order   []string
	byName  map[string]types.Resource
	builtin map[string]types.Resource
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		byName:  make(map[string]types.Resource),
		builtin: make(map[string]types.Resource),
	}
}

// NewWithBuiltins returns a registry holding the built-in resources.
func NewWithBuiltins() *Registry {
	r := New()
	for _, res := range Builtin() {
		if err := r.Register(res); err != nil {
			panic(fmt.Sprintf("built-in resource %s: %v", res.Name, err))
		}
		r.builtin[res.Name] = r.byName[res.Name]
	}
	return r
}

// Register normalizes, validates and adds res. Registering a name twice
// returns ErrDuplicate unless the existing entry is a built-in, in which
// case res replaces it provided it keeps every built-in field with the
// same type and hides nothing the built-in hid.
func (r *Registry) Register(res types.Resource) error {
	res = res.Normalized()
	if err := res.Validate(); err != nil {
		return err
	}
	if _, exists := r.byName[res.Name]; exists {
		base, isBuiltin := r.builtin[res.Name]
		if !isBuiltin {
			return fmt.Errorf("%w: %s", ErrDuplicate, res.Name)
		}
		if err := compatible(base, res); err != nil {
			return err
		}
		r.byName[res.Name] = res
		return nil
	}
	r.order = append(r.order, res.Name)
	r.byName[res.Name] = res
	return nil
}

// compatible checks that override keeps every field of base along with
// its hidden fields and internal flag.
func compatible(base, override types.Resource) error {
	for _, bf := range base.Fields {
		of, ok := override.Field(bf.Name)
		if !ok {
			return fmt.Errorf("%w: %s.%s", ErrIncompatible, base.Name, bf.Name)
		}
		if of.Type != bf.Type {
			return fmt.Errorf("%w: %s.%s changes type %s to %s", ErrIncompatible, base.Name, bf.Name, bf.Type, of.Type)
		}
		if bf.Hidden && !of.Hidden {
			return fmt.Errorf("%w: %s.%s must stay hidden", ErrIncompatible, base.Name, bf.Name)
		}
	}
	if base.Internal && !override.Internal {
		return fmt.Errorf("%w: %s must stay internal", ErrIncompatible, base.Name)
	}
	if override.Table != base.Table {
		return fmt.Errorf("%w: %s changes table %s to %s", ErrIncompatible, base.Name, base.Table, override.Table)
	}
	return nil
}

// Check verifies cross-resource constraints: every reference field points
// at a registered resource.
func (r *Registry) Check() error {
	for _, name := range r.order {
		res := r.byName[name]
		for _, f := range res.Fields {
			if f.Type != types.FieldReference {
				continue
			}
			if _, ok := r.byName[f.References]; !ok {
				return fmt.Errorf("%w: %s.%s -> %s", ErrUnknownRef, res.Name, f.Name, f.References)
			}
		}
	}
	return nil
}

// Get returns the resource with the given name.
func (r *Registry) Get(name string) (types.Resource, bool) {
	res, ok := r.byName[name]
	return res, ok
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// All returns the registered resources in registration order.
func (r *Registry) All() []types.Resource {
	out := make([]types.Resource, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// Exposed returns the resources that the admin UI and REST API serve,
// that is every non-internal resource.
func (r *Registry) Exposed() []types.Resource {
	var out []types.Resource
	for _, res := range r.All() {
		if !res.Internal {
			out = append(out, res)
		}
	}
	return out
}
