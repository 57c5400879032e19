package storage

import "context"

type Repository interface {
	EnsureSchema(ctx context.Context) error

	UpsertTx(ctx context.Context, tx TxRecord) error
	SaveRun(ctx context.Context, run RunRecord) error

	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
}

// Nop is used when no database is configured.
type Nop struct{}

func (Nop) EnsureSchema(context.Context) error { return nil }
func (Nop) UpsertTx(context.Context, TxRecord) error { return nil }
func (Nop) SaveRun(context.Context, RunRecord) error { return nil }
func (Nop) ListRuns(context.Context, int) ([]RunRecord, error) { return nil, nil }
