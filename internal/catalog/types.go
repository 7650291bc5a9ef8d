package catalog

import (
	"fmt"
	"strings"
	"time"
)

// StoreType selects the retailer probe for a product.
type StoreType string

const (
	StoreCroma    StoreType = "croma"
	StoreFlipkart StoreType = "flipkart"
)

// Product is one tracked catalog row.
type Product struct {
	Name          string
	URL           string
	ProductID     string
	StoreType     StoreType
	AffiliateLink string
}

// Link returns the link to put in alerts: the affiliate link when set,
// otherwise the canonical product URL.
func (p Product) Link() string {
	if strings.TrimSpace(p.AffiliateLink) != "" {
		return p.AffiliateLink
	}
	return p.URL
}

// Config configures the catalog reader.
//
// Driver values:
//   - "postgres": PostgreSQL via pgx (default)
//   - "pq": PostgreSQL via database/sql + lib/pq
//   - "sqlite": SQLite database file
type Config struct {
	Driver string
	DSN    string

	// StoreType restricts the query to one retailer when set.
	StoreType StoreType
	// WithAffiliateLink selects the affiliate_link column.
	// Disable for schemas that don't carry it.
	WithAffiliateLink bool

	Timeout time.Duration
	// Migrate creates the products table if missing (sqlite only).
	Migrate bool
}

// DataSourceError reports a failure to connect to or query the catalog.
type DataSourceError struct {
	Op  string // "connect" | "query" | "scan" | "config"
	Err error
}

func (e *DataSourceError) Error() string {
	return fmt.Sprintf("catalog %s: %v", e.Op, e.Err)
}

func (e *DataSourceError) Unwrap() error { return e.Err }

func dsErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &DataSourceError{Op: op, Err: err}
}
