package farm

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/caraka15/taiko-bot/internal/clock"
	"github.com/caraka15/taiko-bot/internal/storage"
	"github.com/caraka15/taiko-bot/internal/txexec"
	"github.com/caraka15/taiko-bot/internal/units"

	"github.com/ethereum/go-ethereum/core/types"
)

// VoteController sends one vote() per wallet per iteration.
type VoteController struct {
	Contract VoteContract
	Balances BalanceReader
	Scores   ScoreSource
	Batch    BatchRunner
	Repo     storage.Repository
	Clock    clock.Clock

	ScoreDelay time.Duration
}

func (c *VoteController) Mode() Mode { return ModeVote }

func (c *VoteController) Iterate(ctx context.Context, run *Run, wallets []Wallet, iteration int) error {
	clk := c.Clock
	if clk == nil {
		clk = clock.Real()
	}
	log.Printf("[farm] vote iteration %d: %d wallet(s)", iteration, len(wallets))

	before := snapshotScores(ctx, c.Scores, wallets)

	ops := make([]txexec.Operation, 0, len(wallets))
	for _, w := range wallets {
		if c.Balances != nil {
			// только для лога, на отправку не влияет
			if bal, err := c.Balances.BalanceAt(ctx, w.Address, nil); err == nil {
				log.Printf("[farm] %s: balance %s ETH", w.Label(), units.FormatEther(bal, 6))
			} else {
				log.Printf("[farm] %s: balance query failed: %v", w.Label(), err)
			}
		}
		ops = append(ops, txexec.Operation{
			WalletIndex: w.Index,
			Send: func(ctx context.Context) (*types.Transaction, error) {
				return c.Contract.Vote(ctx, w.Key)
			},
		})
	}

	var batchErr error
	if len(ops) > 0 {
		res, err := c.Batch.Execute(ctx, ops, "Vote", run.Fees)
		persistBatch(ctx, c.Repo, run, storage.KindVote, iteration, wallets, res)
		if fatalBatch(ctx, err) {
			return err
		}
		batchErr = err
	}

	delay := c.ScoreDelay
	if delay <= 0 {
		delay = DefaultScoreDelay
	}
	if err := clk.Sleep(ctx, delay); err != nil {
		return err
	}
	after := snapshotScores(ctx, c.Scores, wallets)
	recordPoints(run, wallets, before, after, iteration)

	if batchErr != nil {
		return fmt.Errorf("vote iteration %d: %w", iteration, batchErr)
	}
	return nil
}
