package repair

import (
	"testing"

	"queryorch/internal/catalog"
)

func TestParseUndefinedColumnError_withAlias(t *testing.T) {
	undef, ok := ParseUndefinedColumnError(`column o.statuz does not exist`)
	if !ok {
		t.Fatalf("expected a match")
	}
	if undef.Alias != "o" || undef.Column != "statuz" {
		t.Fatalf("unexpected parse: %+v", undef)
	}
}

func TestParseUndefinedColumnError_withoutAlias(t *testing.T) {
	undef, ok := ParseUndefinedColumnError(`column "statuz" does not exist`)
	if !ok {
		t.Fatalf("expected a match")
	}
	if undef.Alias != "" || undef.Column != "statuz" {
		t.Fatalf("unexpected parse: %+v", undef)
	}
}

func TestResolveAlias_findsTableBehindAlias(t *testing.T) {
	table, ok := ResolveAlias("SELECT o.id FROM orders o JOIN customers c ON o.customer_id = c.id", "o")
	if !ok || table != "orders" {
		t.Fatalf("expected orders, got %q ok=%v", table, ok)
	}
}

func TestFindColumnCandidate_exactMatch(t *testing.T) {
	table := catalog.TableDescriptor{Name: "orders", Columns: []catalog.ColumnDescriptor{{Name: "order_status"}}}
	cand, ok := FindColumnCandidate(table, "order_status", 0.5)
	if !ok || cand.Confidence != 1.0 {
		t.Fatalf("expected exact match confidence 1.0, got %+v ok=%v", cand, ok)
	}
}

func TestFindColumnCandidate_levenshteinTypo(t *testing.T) {
	table := catalog.TableDescriptor{Name: "orders", Columns: []catalog.ColumnDescriptor{{Name: "order_status"}}}
	cand, ok := FindColumnCandidate(table, "order_statuz", 0.7)
	if !ok || cand.Column != "order_status" {
		t.Fatalf("expected a near-match on order_status, got %+v ok=%v", cand, ok)
	}
}

func TestFindColumnCandidate_belowThresholdRejected(t *testing.T) {
	table := catalog.TableDescriptor{Name: "orders", Columns: []catalog.ColumnDescriptor{{Name: "order_status"}}}
	_, ok := FindColumnCandidate(table, "zzz", 0.5)
	if ok {
		t.Fatalf("expected no candidate above threshold for an unrelated name")
	}
}

func TestInlineReplace_qualifiedReference(t *testing.T) {
	got := InlineReplace("SELECT o.statuz FROM orders o", "o", "statuz", "order_status")
	want := "SELECT o.order_status FROM orders o"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
