package farm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/big"
	"time"

	"github.com/caraka15/taiko-bot/internal/clock"
	"github.com/caraka15/taiko-bot/internal/storage"
	"github.com/caraka15/taiko-bot/internal/txexec"
	"github.com/caraka15/taiko-bot/internal/units"

	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/sync/errgroup"
)

const DefaultScoreDelay = 5 * time.Second

// WethController runs deposit/withdraw cycles on the WETH contract.
type WethController struct {
	Contract WethContract
	Balances BalanceReader
	Scores   ScoreSource
	Batch    BatchRunner
	Repo     storage.Repository
	Clock    clock.Clock
	Rand     io.Reader

	// SettleInterval is waited between the deposit and withdraw batches.
	SettleInterval time.Duration
	ScoreDelay     time.Duration
}

func (c *WethController) Mode() Mode { return ModeWeth }

func (c *WethController) Iterate(ctx context.Context, run *Run, wallets []Wallet, iteration int) error {
	clk := c.clock()
	log.Printf("[farm] weth iteration %d: %d wallet(s)", iteration, len(wallets))

	before := snapshotScores(ctx, c.Scores, wallets)
	balances := c.nativeBalances(ctx, wallets)

	var failures []error

	deposits := make([]txexec.Operation, 0, len(wallets))
	for i, w := range wallets {
		if balances[i] == nil {
			continue
		}
		amount, err := RandomAmount(w.Range.Min, w.Range.Max, c.Rand)
		if err != nil {
			log.Printf("[farm] %s: random amount: %v", w.Label(), err)
			continue
		}
		log.Printf("[farm] %s: balance %s ETH, deposit %s ETH",
			w.Label(), units.FormatEther(balances[i], 6), units.FormatEther(amount, 6))

		if balances[i].Cmp(amount) < 0 {
			log.Printf("[farm] %s: insufficient balance for deposit, skipped", w.Label())
			continue
		}
		deposits = append(deposits, txexec.Operation{
			WalletIndex: w.Index,
			Send: func(ctx context.Context) (*types.Transaction, error) {
				return c.Contract.Deposit(ctx, w.Key, amount)
			},
		})
	}

	if len(deposits) > 0 {
		res, err := c.Batch.Execute(ctx, deposits, "Deposit", run.Fees)
		persistBatch(ctx, c.Repo, run, storage.KindDeposit, iteration, wallets, res)
		if fatalBatch(ctx, err) {
			return err
		}
		if err != nil {
			failures = append(failures, err)
		}
	}

	if err := clk.Sleep(ctx, c.SettleInterval); err != nil {
		return err
	}

	withdrawals := make([]txexec.Operation, 0, len(wallets))
	for _, w := range wallets {
		bal, err := c.Contract.BalanceOf(ctx, w.Address)
		if err != nil {
			log.Printf("[farm] %s: weth balance: %v", w.Label(), err)
			continue
		}
		if bal.Sign() == 0 {
			log.Printf("[farm] %s: no WETH balance to withdraw", w.Label())
			continue
		}
		log.Printf("[farm] %s: withdraw %s WETH", w.Label(), units.FormatEther(bal, 6))
		withdrawals = append(withdrawals, txexec.Operation{
			WalletIndex: w.Index,
			Send: func(ctx context.Context) (*types.Transaction, error) {
				return c.Contract.Withdraw(ctx, w.Key, bal)
			},
		})
	}

	if len(withdrawals) > 0 {
		res, err := c.Batch.Execute(ctx, withdrawals, "Withdraw", run.Fees)
		persistBatch(ctx, c.Repo, run, storage.KindWithdraw, iteration, wallets, res)
		if fatalBatch(ctx, err) {
			return err
		}
		if err != nil {
			failures = append(failures, err)
		}
	}

	if err := clk.Sleep(ctx, c.scoreDelay()); err != nil {
		return err
	}
	after := snapshotScores(ctx, c.Scores, wallets)
	recordPoints(run, wallets, before, after, iteration)

	if len(failures) > 0 {
		return fmt.Errorf("weth iteration %d: %w", iteration, errors.Join(failures...))
	}
	return nil
}

// nativeBalances returns nil for wallets whose balance query failed.
func (c *WethController) nativeBalances(ctx context.Context, wallets []Wallet) []*big.Int {
	out := make([]*big.Int, len(wallets))

	var g errgroup.Group
	for i, w := range wallets {
		g.Go(func() error {
			bal, err := c.Balances.BalanceAt(ctx, w.Address, nil)
			if err != nil {
				log.Printf("[farm] %s: balance query failed, deposit skipped: %v", w.Label(), err)
				return nil
			}
			out[i] = bal
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (c *WethController) clock() clock.Clock {
	if c.Clock == nil {
		return clock.Real()
	}
	return c.Clock
}

func (c *WethController) scoreDelay() time.Duration {
	if c.ScoreDelay <= 0 {
		return DefaultScoreDelay
	}
	return c.ScoreDelay
}
