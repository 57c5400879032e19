package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/caraka15/taiko-bot/internal/storage"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Postgres struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Postgres { return &Postgres{pool: pool} }

func (r *Postgres) EnsureSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS farm_runs (
  id TEXT PRIMARY KEY,
  mode TEXT NOT NULL, -- weth|vote

  started_at  TIMESTAMPTZ NOT NULL,
  finished_at TIMESTAMPTZ NOT NULL,

  iterations           INT NOT NULL,
  completed_iterations INT NOT NULL,
  wallets              INT NOT NULL,

  total_fee_wei NUMERIC(78,0) NOT NULL,
  status TEXT NOT NULL, -- ok|partial|failed
  error  TEXT NULL
);

CREATE INDEX IF NOT EXISTS farm_runs_started_idx ON farm_runs(started_at DESC);

CREATE TABLE IF NOT EXISTS farm_txs (
  hash TEXT PRIMARY KEY,
  run_id TEXT NOT NULL,
  kind TEXT NOT NULL, -- deposit|withdraw|vote
  iteration INT NOT NULL,
  wallet_index INT NOT NULL,
  from_addr TEXT NOT NULL,

  block_number BIGINT NULL,
  gas_used     BIGINT NULL,
  effective_gas_price_wei NUMERIC(78,0) NULL,
  fee_wei      NUMERIC(78,0) NULL,

  status SMALLINT NULL, -- 1 success, 0 failed

  first_seen_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS farm_txs_run_idx ON farm_txs(run_id, iteration);
`
	_, err := r.pool.Exec(ctx, ddl)
	return err
}

func (r *Postgres) UpsertTx(ctx context.Context, tx storage.TxRecord) error {
	cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var (
		blockNum any = nil
		gasUsed  any = nil
		gasPrice any = nil
		fee      any = nil
		status   any = nil
	)

	if tx.BlockNum != nil {
		blockNum = int64(*tx.BlockNum)
	}
	if tx.GasUsed != nil {
		gasUsed = int64(*tx.GasUsed)
	}
	if tx.EffectiveGasPriceWei != nil {
		gasPrice = *tx.EffectiveGasPriceWei // будет каститься в numeric
	}
	if tx.FeeWei != nil {
		fee = *tx.FeeWei
	}
	if tx.Status != nil {
		status = int16(*tx.Status)
	}

	q := `
INSERT INTO farm_txs(
  hash, run_id, kind, iteration, wallet_index, from_addr,
  block_number, gas_used, effective_gas_price_wei, fee_wei, status
) VALUES (
  $1, $2, $3, $4, $5, $6,
  $7, $8, $9::numeric, $10::numeric, $11
)
ON CONFLICT(hash) DO UPDATE SET
  block_number = COALESCE(EXCLUDED.block_number, farm_txs.block_number),
  gas_used     = COALESCE(EXCLUDED.gas_used, farm_txs.gas_used),
  effective_gas_price_wei = COALESCE(EXCLUDED.effective_gas_price_wei, farm_txs.effective_gas_price_wei),
  fee_wei      = COALESCE(EXCLUDED.fee_wei, farm_txs.fee_wei),
  status       = COALESCE(EXCLUDED.status, farm_txs.status),
  updated_at   = now()
`
	_, err := r.pool.Exec(cctx, q,
		tx.Hash, tx.RunID, string(tx.Kind), tx.Iteration, tx.WalletIndex, tx.FromAddr,
		blockNum, gasUsed, gasPrice, fee, status,
	)
	return err
}

func (r *Postgres) SaveRun(ctx context.Context, run storage.RunRecord) error {
	cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var runErr any = nil
	if run.Error != nil {
		runErr = *run.Error
	}
	total := run.TotalFeeWei
	if total == "" {
		total = "0"
	}

	q := `
INSERT INTO farm_runs(
  id, mode, started_at, finished_at,
  iterations, completed_iterations, wallets,
  total_fee_wei, status, error
) VALUES (
  $1, $2, $3, $4,
  $5, $6, $7,
  $8::numeric, $9, $10
)
ON CONFLICT(id) DO UPDATE SET
  finished_at          = EXCLUDED.finished_at,
  completed_iterations = EXCLUDED.completed_iterations,
  total_fee_wei        = EXCLUDED.total_fee_wei,
  status               = EXCLUDED.status,
  error                = EXCLUDED.error
`
	_, err := r.pool.Exec(cctx, q,
		run.ID, run.Mode, run.StartedAt, run.FinishedAt,
		run.Iterations, run.CompletedIterations, run.Wallets,
		total, string(run.Status), runErr,
	)
	return err
}

func (r *Postgres) ListRuns(ctx context.Context, limit int) ([]storage.RunRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	q := `
SELECT
  id, mode, started_at, finished_at,
  iterations, completed_iterations, wallets,
  total_fee_wei::text, status, error
FROM farm_runs
ORDER BY started_at DESC
LIMIT $1
`
	rows, err := r.pool.Query(cctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.RunRecord
	for rows.Next() {
		var (
			rec    storage.RunRecord
			status string
		)
		if err := rows.Scan(
			&rec.ID, &rec.Mode, &rec.StartedAt, &rec.FinishedAt,
			&rec.Iterations, &rec.CompletedIterations, &rec.Wallets,
			&rec.TotalFeeWei, &status, &rec.Error,
		); err != nil {
			return nil, err
		}
		rec.Status = storage.RunStatus(status)
		out = append(out, rec)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return out, nil
}

func (r *Postgres) String() string { return fmt.Sprintf("pgrepo(%p)", r.pool) }
