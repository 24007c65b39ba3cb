package joinplan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"queryorch/internal/catalog"
	"queryorch/internal/config"
)

func sampleEdges() []catalog.FKEdge {
	return []catalog.FKEdge{
		{ConstraintID: "fk_orders_customer", FromTable: "orders", FromColumn: "customer_id", ToTable: "customers", ToColumn: "id"},
		{ConstraintID: "fk_order_items_order", FromTable: "order_items", FromColumn: "order_id", ToTable: "orders", ToColumn: "id"},
		{ConstraintID: "fk_order_items_product", FromTable: "order_items", FromColumn: "product_id", ToTable: "products", ToColumn: "id"},
	}
}

func defaultCfg() config.JoinPlanConfig {
	return config.JoinPlanConfig{
		KShortestPaths:      3,
		MaxSkeletons:        3,
		ChildParentBonus:    -0.1,
		HubTraversalPenalty: 0.5,
	}
}

func TestPlan_fewerThanTwoTablesYieldsNoSkeletons(t *testing.T) {
	sk := Plan([]string{"orders"}, sampleEdges(), nil, 8, defaultCfg())
	assert.Empty(t, sk)
}

func TestPlan_directPairProducesSingleJoin(t *testing.T) {
	sk := Plan([]string{"orders", "customers"}, sampleEdges(), []string{"orders", "customers"}, 8, defaultCfg())
	require.NotEmpty(t, sk)
	assert.Contains(t, sk[0].Tables, "orders")
	assert.Contains(t, sk[0].Tables, "customers")
	require.Len(t, sk[0].Joins, 1)
}

func TestPlan_threeTableChainCoversAll(t *testing.T) {
	sk := Plan([]string{"customers", "orders", "order_items"}, sampleEdges(), []string{"orders", "customers", "order_items"}, 8, defaultCfg())
	require.NotEmpty(t, sk)
	assert.ElementsMatch(t, []string{"customers", "orders", "order_items"}, sk[0].Tables)
	assert.Len(t, sk[0].Joins, 2)
}

func TestPlan_rootPrefersRetrievalOrder(t *testing.T) {
	sk := Plan([]string{"orders", "customers"}, sampleEdges(), []string{"customers", "orders"}, 8, defaultCfg())
	require.NotEmpty(t, sk)
	assert.Equal(t, "customers", sk[0].Root)
}

func TestPlan_deterministicAcrossRepeatedCalls(t *testing.T) {
	required := []string{"customers", "orders", "order_items", "products"}
	order := []string{"orders", "customers", "order_items", "products"}

	first := Plan(required, sampleEdges(), order, 8, defaultCfg())
	second := Plan(required, sampleEdges(), order, 8, defaultCfg())
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Root, second[i].Root)
		assert.Equal(t, first[i].Tables, second[i].Tables)
	}
}

func TestDynamicHubThreshold_decreasesWithMoreRequiredTables(t *testing.T) {
	assert.Equal(t, 8, dynamicHubThreshold(8, 1))
	assert.Less(t, dynamicHubThreshold(8, 9), 8)
	assert.GreaterOrEqual(t, dynamicHubThreshold(8, 100), 2)
}
