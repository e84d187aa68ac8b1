// Command pantry serves a storefront, an admin UI and a REST API generated
// from resource definitions.
package main

import "github.com/mesh-intelligence/pantry/pkg/pantry"

func main() {
	pantry.Main()
}
