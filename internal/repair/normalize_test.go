package repair

import "testing"

func TestNormalize_yearToExtract(t *testing.T) {
	got := Normalize("SELECT YEAR(order_date) FROM orders")
	want := "SELECT EXTRACT(YEAR FROM order_date) FROM orders"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestNormalize_ifnullToCoalesce(t *testing.T) {
	got := Normalize("SELECT IFNULL(total, 0) FROM orders")
	want := "SELECT COALESCE(total, 0) FROM orders"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestNormalize_mysqlLimitOffsetForm(t *testing.T) {
	got := Normalize("SELECT id FROM orders LIMIT 20, 10")
	want := "SELECT id FROM orders LIMIT 10 OFFSET 20"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestNormalize_backtickRemoval(t *testing.T) {
	got := Normalize("SELECT `order_status` FROM `orders`")
	want := `SELECT "order_status" FROM "orders"`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestNormalize_isIdempotent(t *testing.T) {
	sql := "SELECT YEAR(order_date), IFNULL(total, 0) FROM `orders` LIMIT 20, 10"
	once := Normalize(sql)
	twice := Normalize(once)
	if once != twice {
		t.Fatalf("expected idempotent normalization, got %q then %q", once, twice)
	}
}

func TestNormalize_dateDiffToSubtraction(t *testing.T) {
	got := Normalize("SELECT DATEDIFF(ship_date, order_date) FROM orders")
	want := "SELECT (ship_date - order_date) FROM orders"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
