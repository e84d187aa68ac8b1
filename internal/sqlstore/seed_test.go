package sqlstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/pantry/internal/resources"
	"github.com/mesh-intelligence/pantry/pkg/types"
)

func TestSeed(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	result, err := Seed(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, len(demoCatalog), result.Categories)
	assert.Equal(t, 7, result.Products)

	prods := mustTable(t, b, resources.Products)
	page, err := prods.Fetch(ctx, types.Query{Filter: map[string]any{"slug": "olive-oil"}})
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.Equal(t, int64(1290), page.Records[0]["price"])
	assert.NotEmpty(t, page.Records[0]["category_id"])

	again, err := Seed(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, SeedResult{}, again, "seeding is idempotent")
}
