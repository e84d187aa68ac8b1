package sqlstore

// Demo catalog seeding for new stores.

import (
	"context"
	"fmt"

	"github.com/mesh-intelligence/pantry/internal/resources"
	"github.com/mesh-intelligence/pantry/pkg/types"
)

// seedCategory describes a category to seed with its products.
type seedCategory struct {
	name     string
	slug     string
	position int64
	products []seedProduct
}

// seedProduct describes a product to seed.
type seedProduct struct {
	name        string
	slug        string
	description string
	price       int64
	stock       int64
}

// demoCatalog is seeded by Seed when the catalog is empty.
var demoCatalog = []seedCategory{
	{
		name: "Pantry staples", slug: "staples", position: 0,
		products: []seedProduct{
			{"Stone-ground flour", "stone-ground-flour", "Two kilograms of wholemeal flour.", 650, 40},
			{"Arborio rice", "arborio-rice", "Short-grain rice for risotto.", 420, 25},
			{"Cold-pressed olive oil", "olive-oil", "Half a litre, first pressing.", 1290, 12},
		},
	},
	{
		name: "Preserves", slug: "preserves", position: 1,
		products: []seedProduct{
			{"Seville orange marmalade", "orange-marmalade", "Thick cut, small batch.", 550, 30},
			{"Pickled walnuts", "pickled-walnuts", "A winter favourite.", 780, 8},
		},
	},
	{
		name: "Tea & coffee", slug: "tea-coffee", position: 2,
		products: []seedProduct{
			{"Breakfast tea", "breakfast-tea", "Eighty bags of strong black tea.", 495, 50},
			{"Single origin beans", "coffee-beans", "Medium roast, 250 g.", 995, 0},
		},
	},
}

// SeedResult reports what Seed created.
type SeedResult struct {
	Categories int `json:"categories"`
	Products   int `json:"products"`
}

// Seed fills an empty catalog with demo categories and products in one
// transaction. It does nothing when either table already has records.
func Seed(ctx context.Context, store types.Store) (SeedResult, error) {
	var result SeedResult
	err := store.WithTx(ctx, func(tx types.Tables) error {
		cats, err := tx.Table(resources.Categories)
		if err != nil {
			return err
		}
		prods, err := tx.Table(resources.Products)
		if err != nil {
			return err
		}
		nc, err := cats.Count(ctx, nil)
		if err != nil {
			return err
		}
		np, err := prods.Count(ctx, nil)
		if err != nil {
			return err
		}
		if nc > 0 || np > 0 {
			return nil
		}

		for _, c := range demoCatalog {
			catID, err := cats.Set(ctx, "", types.Record{
				"name":     c.name,
				"slug":     c.slug,
				"position": c.position,
			})
			if err != nil {
				return fmt.Errorf("seed category %s: %w", c.slug, err)
			}
			result.Categories++
			for _, p := range c.products {
				_, err := prods.Set(ctx, "", types.Record{
					"name":        p.name,
					"slug":        p.slug,
					"description": p.description,
					"price":       p.price,
					"stock":       p.stock,
					"active":      true,
					"category_id": catID,
				})
				if err != nil {
					return fmt.Errorf("seed product %s: %w", p.slug, err)
				}
				result.Products++
			}
		}
		return nil
	})
	if err != nil {
		return SeedResult{}, err
	}
	return result, nil
}
