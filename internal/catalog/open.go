package catalog

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "stockbot/pkg/logx"
)

// DefaultTimeout bounds one catalog read (connect + query + scan).
const DefaultTimeout = 10 * time.Second

// Reader loads the tracked products. Each call opens its own connection and
// closes it before returning.
type Reader interface {
	Products(ctx context.Context) ([]Product, error)
}

// Open returns the reader for the configured driver.
// A missing DSN is not an error here; it surfaces as a DataSourceError on read
// so the run can report it like any other connection failure.
func Open(cfg Config, log logx.Logger) (Reader, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "postgres", "postgresql", "pgx":
		return &pgxReader{cfg: cfg, log: log}, nil
	case "pq":
		return &sqlReader{cfg: cfg, log: log, driverName: "postgres", placeholder: "$1"}, nil
	case "sqlite", "sqlite3":
		return &sqlReader{cfg: cfg, log: log, driverName: "sqlite", placeholder: "?", migrate: cfg.Migrate}, nil
	default:
		return nil, errors.New("unknown catalog driver: " + driver)
	}
}

// buildQuery returns the product query and its arguments. placeholder is the
// driver's first positional parameter ("$1" or "?").
func buildQuery(cfg Config, placeholder string) (string, []any) {
	cols := "name, url, product_id, store_type"
	if cfg.WithAffiliateLink {
		cols += ", affiliate_link"
	}
	q := "SELECT " + cols + " FROM products"
	st := strings.TrimSpace(string(cfg.StoreType))
	if st == "" {
		return q, nil
	}
	return q + " WHERE store_type = " + placeholder, []any{st}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(s rowScanner, withAffiliate bool) (Product, error) {
	var name, url, productID, storeType, affiliate *string
	dest := []any{&name, &url, &productID, &storeType}
	if withAffiliate {
		dest = append(dest, &affiliate)
	}
	if err := s.Scan(dest...); err != nil {
		return Product{}, err
	}
	return Product{
		Name:          deref(name),
		URL:           deref(url),
		ProductID:     deref(productID),
		StoreType:     StoreType(deref(storeType)),
		AffiliateLink: deref(affiliate),
	}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

var errNoDSN = errors.New("database connection string is not configured")
