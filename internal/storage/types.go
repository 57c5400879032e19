package storage

import "time"

type TxKind string

const (
	KindDeposit  TxKind = "deposit"
	KindWithdraw TxKind = "withdraw"
	KindVote     TxKind = "vote"
)

type TxRecord struct {
	Hash        string
	RunID       string
	Kind        TxKind
	Iteration   int
	WalletIndex int
	FromAddr    string

	BlockNum             *uint64 // nil пока не подтверждена
	GasUsed              *uint64
	EffectiveGasPriceWei *string // big.Int как строка
	FeeWei               *string
	Status               *uint8 // 1 success, 0 failed, nil pending
}

type RunStatus string

const (
	RunOK      RunStatus = "ok"
	RunFailed  RunStatus = "failed"
	RunPartial RunStatus = "partial"
)

type RunRecord struct {
	ID         string
	Mode       string
	StartedAt  time.Time
	FinishedAt time.Time

	Iterations          int
	CompletedIterations int
	Wallets             int

	TotalFeeWei string
	Status      RunStatus
	Error       *string
}
