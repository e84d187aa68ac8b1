// Package pantry is the public entry point of the kit. Generated projects
// call Main from their main package; programs that only need storage use
// NewStore.
package pantry

import (
	"github.com/mesh-intelligence/pantry/internal/cli"
	"github.com/mesh-intelligence/pantry/internal/resources"
	"github.com/mesh-intelligence/pantry/internal/sqlstore"
	"github.com/mesh-intelligence/pantry/pkg/types"
)

// Main runs the pantry command line and exits the process.
func Main() {
	cli.Main(cli.Build{Version: Version})
}

// NewStore creates a store serving the built-in resources followed by
// extra. The store is not attached; call Attach with a Config to
// initialize.
//
// Example:
//
//	store, err := pantry.NewStore()
//	err = store.Attach(types.Config{
//	    Backend: types.BackendSQLite,
//	    DataDir: "./data",
//	})
//	defer store.Detach()
func NewStore(extra ...types.Resource) (types.Store, error) {
	reg := resources.NewWithBuiltins()
	for _, res := range extra {
		if err := reg.Register(res); err != nil {
			return nil, err
		}
	}
	if err := reg.Check(); err != nil {
		return nil, err
	}
	return sqlstore.NewBackend(reg.All()), nil
}
