package repair

import (
	"strings"
	"testing"

	"queryorch/internal/catalog"
)

func hintTestPacket() (*catalog.SchemaContextPacket, []catalog.FKEdge) {
	packet := &catalog.SchemaContextPacket{
		Tables: []catalog.SelectedTable{
			{Descriptor: catalog.TableDescriptor{Name: "orders", Columns: []catalog.ColumnDescriptor{
				{Name: "id"}, {Name: "customer_id"},
			}}},
			{Descriptor: catalog.TableDescriptor{Name: "customers", Columns: []catalog.ColumnDescriptor{
				{Name: "id"}, {Name: "email"},
			}}},
		},
	}
	edges := []catalog.FKEdge{
		{ConstraintID: "fk_orders_customer", FromTable: "orders", FromColumn: "customer_id", ToTable: "customers", ToColumn: "id"},
	}
	return packet, edges
}

func TestBuildHint_crossTableWhenColumnOnAdjacentTable(t *testing.T) {
	packet, edges := hintTestPacket()
	hint := BuildHint("orders", "email", edges, packet, 0.5)
	if hint.Kind != HintCrossTable {
		t.Fatalf("expected cross_table hint, got %v: %s", hint.Kind, hint.Message)
	}
	if !strings.Contains(hint.Message, "customers") {
		t.Fatalf("expected hint to mention the adjacent table, got %q", hint.Message)
	}
}

func TestBuildHint_phantomWhenColumnNowhere(t *testing.T) {
	packet, edges := hintTestPacket()
	hint := BuildHint("orders", "nonexistent_thing", edges, packet, 0.5)
	if hint.Kind != HintPhantomColumn {
		t.Fatalf("expected phantom_column hint, got %v", hint.Kind)
	}
}

func TestBuildHint_surgicalWhitelistWhenColumnExistsElsewhereOnly(t *testing.T) {
	packet := &catalog.SchemaContextPacket{
		Tables: []catalog.SelectedTable{
			{Descriptor: catalog.TableDescriptor{Name: "orders", Columns: []catalog.ColumnDescriptor{{Name: "id"}}}},
			{Descriptor: catalog.TableDescriptor{Name: "products", Columns: []catalog.ColumnDescriptor{{Name: "sku"}}}},
		},
	}
	hint := BuildHint("orders", "sku", nil, packet, 0.9)
	if hint.Kind != HintSurgicalAllow {
		t.Fatalf("expected surgical_whitelist hint, got %v: %s", hint.Kind, hint.Message)
	}
	if !strings.Contains(hint.Message, "orders") {
		t.Fatalf("expected whitelist to mention the resolved table, got %q", hint.Message)
	}
}
