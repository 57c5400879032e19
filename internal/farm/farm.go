package farm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"log"
	"math/big"

	"github.com/caraka15/taiko-bot/internal/ledger"
	"github.com/caraka15/taiko-bot/internal/offchain"
	"github.com/caraka15/taiko-bot/internal/storage"
	"github.com/caraka15/taiko-bot/internal/txexec"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/sync/errgroup"
)

// Controller runs one iteration of a farming mode over every wallet.
type Controller interface {
	Mode() Mode
	Iterate(ctx context.Context, run *Run, wallets []Wallet, iteration int) error
}

// BatchRunner is satisfied by *txexec.Executor.
type BatchRunner interface {
	Execute(ctx context.Context, ops []txexec.Operation, description string, fees *ledger.Fees) (txexec.BatchResult, error)
}

type ScoreSource interface {
	Fetch(ctx context.Context, addr common.Address) (offchain.Score, error)
}

// BalanceReader is satisfied by *ethclient.Client.
type BalanceReader interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

type WethContract interface {
	Deposit(ctx context.Context, key *ecdsa.PrivateKey, amount *big.Int) (*types.Transaction, error)
	Withdraw(ctx context.Context, key *ecdsa.PrivateKey, amount *big.Int) (*types.Transaction, error)
	BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error)
}

type VoteContract interface {
	Vote(ctx context.Context, key *ecdsa.PrivateKey) (*types.Transaction, error)
}

// snapshotScores fetches every wallet's score concurrently. A failed fetch
// leaves a nil entry and is only logged.
func snapshotScores(ctx context.Context, src ScoreSource, wallets []Wallet) []*offchain.Score {
	out := make([]*offchain.Score, len(wallets))
	if src == nil {
		return out
	}

	var g errgroup.Group
	for i, w := range wallets {
		g.Go(func() error {
			s, err := src.Fetch(ctx, w.Address)
			if err != nil {
				log.Printf("[farm] %s: score fetch failed: %v", w.Label(), err)
				return nil
			}
			out[i] = &s
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// recordPoints appends a points entry only for wallets with both snapshots.
func recordPoints(run *Run, wallets []Wallet, before, after []*offchain.Score, iteration int) {
	for i, w := range wallets {
		if before[i] == nil || after[i] == nil {
			log.Printf("[farm] %s: no score delta for iteration %d", w.Label(), iteration)
			continue
		}
		earned := after[i].TotalPoints - before[i].TotalPoints
		change := before[i].Rank - after[i].Rank

		run.Points.Append(w.Address, ledger.PointsEntry{
			Iteration:    iteration,
			PointsEarned: earned,
			TotalPoints:  after[i].TotalPoints,
			Rank:         after[i].Rank,
			RankChange:   change,
		})
		log.Printf("[farm] %s: points +%.2f, total %.2f, rank %d (%+d)",
			w.Label(), earned, after[i].TotalPoints, after[i].Rank, change)
	}
}

// persistBatch stores broadcast and confirmed transactions. Best effort.
func persistBatch(ctx context.Context, repo storage.Repository, run *Run, kind storage.TxKind, iteration int, wallets []Wallet, res txexec.BatchResult) {
	if repo == nil {
		return
	}
	from := make(map[int]string, len(wallets))
	for _, w := range wallets {
		from[w.Index] = w.Address.Hex()
	}

	base := func(hash common.Hash, walletIndex int) storage.TxRecord {
		return storage.TxRecord{
			Hash:        hash.Hex(),
			RunID:       run.ID.String(),
			Kind:        kind,
			Iteration:   iteration,
			WalletIndex: walletIndex,
			FromAddr:    from[walletIndex],
		}
	}

	for _, s := range res.Submitted {
		if err := repo.UpsertTx(ctx, base(s.Hash, s.WalletIndex)); err != nil {
			log.Printf("[farm] db upsert tx error: %v", err)
		}
	}
	for _, r := range res.Receipts {
		rec := base(r.Hash, r.WalletIndex)
		bn, gas, st := r.BlockNumber, r.GasUsed, uint8(r.Status)
		price, fee := r.EffectiveGasPrice.String(), r.Fee().ToBig().String()
		rec.BlockNum, rec.GasUsed, rec.Status = &bn, &gas, &st
		rec.EffectiveGasPriceWei, rec.FeeWei = &price, &fee

		if err := repo.UpsertTx(ctx, rec); err != nil {
			log.Printf("[farm] db upsert tx error: %v", err)
		}
	}
}

// fatalBatch reports whether a batch error must end the iteration at once.
// Isolated failures are collected and returned after the iteration finishes.
func fatalBatch(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if ctx.Err() != nil {
		return true
	}
	var be *txexec.BatchError
	return errors.As(err, &be) && be.Aborted
}
