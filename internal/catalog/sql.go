package catalog

import (
	"context"
	"database/sql"
	_ "embed"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	logx "stockbot/pkg/logx"
)

//go:embed schema.sql
var sqliteSchema string

// sqlReader reads the catalog through database/sql. It backs the "pq" and
// "sqlite" drivers; each call opens and closes its own handle.
type sqlReader struct {
	cfg Config
	log logx.Logger

	driverName  string
	placeholder string
	migrate     bool
}

func (r *sqlReader) Products(ctx context.Context) ([]Product, error) {
	if strings.TrimSpace(r.cfg.DSN) == "" {
		return nil, dsErr("config", errNoDSN)
	}
	ctx, cancel := withTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	start := time.Now()
	db, err := r.open(ctx)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	q, args := buildQuery(r.cfg, r.placeholder)
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, dsErr("query", err)
	}
	defer rows.Close()

	out := make([]Product, 0, 16)
	for rows.Next() {
		p, err := scanProduct(rows, r.cfg.WithAffiliateLink)
		if err != nil {
			return nil, dsErr("scan", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, dsErr("query", err)
	}

	r.log.Info("catalog loaded",
		logx.Int("products", len(out)),
		logx.String("driver", r.driverName),
		logx.String("store_type", string(r.cfg.StoreType)),
		logx.Duration("took", time.Since(start)),
	)
	return out, nil
}

func (r *sqlReader) open(ctx context.Context) (*sql.DB, error) {
	if r.driverName == "sqlite" && r.migrate {
		if err := os.MkdirAll(filepath.Dir(r.cfg.DSN), 0o755); err != nil {
			return nil, dsErr("connect", err)
		}
	}

	db, err := sql.Open(r.driverName, r.cfg.DSN)
	if err != nil {
		return nil, dsErr("connect", err)
	}
	// One connection, scoped to this read.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, dsErr("connect", err)
	}
	if r.driverName == "sqlite" && r.migrate {
		if err := migrateSQLite(ctx, db); err != nil {
			_ = db.Close()
			return nil, dsErr("query", err)
		}
	}
	return db, nil
}

func migrateSQLite(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, sqliteSchema)
	return err
}
