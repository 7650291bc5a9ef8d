package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	logx "stockbot/pkg/logx"
)

// pgxReader reads the catalog over a single pgx connection per call.
type pgxReader struct {
	cfg Config
	log logx.Logger
}

func (r *pgxReader) Products(ctx context.Context) ([]Product, error) {
	if strings.TrimSpace(r.cfg.DSN) == "" {
		return nil, dsErr("config", errNoDSN)
	}
	ctx, cancel := withTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	start := time.Now()
	r.log.Debug("connecting to database", logx.String("driver", "pgx"))
	conn, err := pgx.Connect(ctx, r.cfg.DSN)
	if err != nil {
		return nil, dsErr("connect", err)
	}
	defer func() {
		cctx, ccancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = conn.Close(cctx)
		ccancel()
	}()

	q, args := buildQuery(r.cfg, "$1")
	rows, err := conn.Query(ctx, q, args...)
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
		logx.String("store_type", string(r.cfg.StoreType)),
		logx.Duration("took", time.Since(start)),
	)
	return out, nil
}
