// Package catalog is the authority on purchasable token packages. The
// Proposer's "package identifier known" check and the Executor's charge
// amount both resolve against it.
package catalog

import "fmt"

// Money is an amount in minor units (cents) with its currency code.
// Integer minor units avoid float drift in charge amounts.
type Money struct {
	Currency    string `json:"currency"`
	AmountMinor int64  `json:"amount_minor"`
}

func (m Money) String() string {
	return fmt.Sprintf("%s %d.%02d", m.Currency, m.AmountMinor/100, m.AmountMinor%100)
}

// Package is one purchasable token package.
type Package struct {
	ID     string `json:"id"`
	Tokens int64  `json:"tokens"`
	Price  Money  `json:"price"`
}

// Catalog maps package identifiers to their definitions.
type Catalog struct {
	packages map[string]Package
}

// New builds a catalog from the given packages.
func New(packages ...Package) *Catalog {
	c := &Catalog{packages: make(map[string]Package, len(packages))}
	for _, p := range packages {
		c.packages[p.ID] = p
	}
	return c
}

// Default returns the standard package tiers.
func Default() *Catalog {
	return New(
		Package{ID: "free", Tokens: 100, Price: Money{Currency: "USD", AmountMinor: 0}},
		Package{ID: "pro", Tokens: 10_000, Price: Money{Currency: "USD", AmountMinor: 2900}},
		Package{ID: "enterprise", Tokens: 250_000, Price: Money{Currency: "USD", AmountMinor: 49900}},
	)
}

// Lookup returns the package for id, if known.
func (c *Catalog) Lookup(id string) (Package, bool) {
	p, ok := c.packages[id]
	return p, ok
}

// Known reports whether id names a package in the catalog.
func (c *Catalog) Known(id string) bool {
	_, ok := c.packages[id]
	return ok
}
