package catalog

import "testing"

func TestDefaultPackages(t *testing.T) {
	c := Default()
	for _, id := range []string{"free", "pro", "enterprise"} {
		if !c.Known(id) {
			t.Fatalf("expected %q in default catalog", id)
		}
	}
	if c.Known("platinum") {
		t.Fatal("unknown package reported as known")
	}
}

func TestLookupPrice(t *testing.T) {
	c := Default()
	p, ok := c.Lookup("pro")
	if !ok {
		t.Fatal("pro not found")
	}
	if p.Price.AmountMinor != 2900 || p.Price.Currency != "USD" {
		t.Fatalf("unexpected pro price: %+v", p.Price)
	}
	if p.Tokens != 10_000 {
		t.Fatalf("unexpected pro token grant: %d", p.Tokens)
	}
}

func TestMoneyString(t *testing.T) {
	m := Money{Currency: "USD", AmountMinor: 2905}
	if got := m.String(); got != "USD 29.05" {
		t.Fatalf("got %q", got)
	}
}
