package ethwatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/caraka15/taiko-bot/internal/clock"
	"github.com/caraka15/taiko-bot/internal/metrics"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"golang.org/x/sync/errgroup"
)

const DefaultPollInterval = 5 * time.Second

var ErrConfirmationTimeout = errors.New("confirmation timeout")

// Submitted is a broadcast transaction waiting for confirmations.
type Submitted struct {
	Hash        common.Hash
	WalletIndex int
}

type ConfirmedReceipt struct {
	Hash              common.Hash
	WalletIndex       int
	BlockNumber       uint64
	GasUsed           uint64
	EffectiveGasPrice *big.Int
	Status            uint64
}

// Fee returns gasUsed * effectiveGasPrice, saturating at 2^256-1.
func (r ConfirmedReceipt) Fee() *uint256.Int {
	price := new(uint256.Int)
	if r.EffectiveGasPrice != nil {
		if overflow := price.SetFromBig(r.EffectiveGasPrice); overflow {
			return new(uint256.Int).SetAllOne()
		}
	}
	fee, overflow := new(uint256.Int).MulOverflow(price, uint256.NewInt(r.GasUsed))
	if overflow {
		return new(uint256.Int).SetAllOne()
	}
	return fee
}

// Confirmations counts the blocks from block up to head inclusive.
// A head behind the receipt block (lagging endpoint) gives 0.
func Confirmations(head, block uint64) uint64 {
	if block > head {
		return 0
	}
	return head - block + 1
}

type TimeoutError struct {
	Pending []Submitted
	Polls   int
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	hashes := make([]string, 0, len(e.Pending))
	for _, s := range e.Pending {
		hashes = append(hashes, s.Hash.Hex())
	}
	return fmt.Sprintf("%v after %d polls (%s): %d pending [%s]",
		ErrConfirmationTimeout, e.Polls, e.Elapsed.Round(time.Second), len(e.Pending), strings.Join(hashes, ", "))
}

func (e *TimeoutError) Unwrap() error { return ErrConfirmationTimeout }

type PollerConfig struct {
	Required uint64
	Interval time.Duration

	// Zero disables the bound.
	MaxWait  time.Duration
	MaxPolls int
}

// Poller waits for a set of transactions to reach Required confirmations.
// Depth is checked through the fallback pool; the receipt used for
// accounting always comes from the primary endpoint.
type Poller struct {
	primary Reader
	pool    *Pool
	clock   clock.Clock
	cfg     PollerConfig
}

func NewPoller(primary Reader, pool *Pool, clk clock.Clock, cfg PollerConfig) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.Required == 0 {
		cfg.Required = 1
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Poller{
		primary: primary,
		pool:    pool,
		clock:   clk,
		cfg:     cfg,
	}
}

func (p *Poller) Config() PollerConfig { return p.cfg }

type tracked struct {
	tx            Submitted
	confirmations uint64
	mined         bool
}

type observation struct {
	pending       bool
	confirmations uint64
	receipt       *types.Receipt
	err           error
}

// AwaitAll polls until every transaction is confirmed, the configured bound
// is hit or ctx is done. The receipts confirmed so far are returned in every
// case.
func (p *Poller) AwaitAll(ctx context.Context, txs []Submitted) ([]ConfirmedReceipt, error) {
	if len(txs) == 0 {
		return nil, nil
	}

	seen := make(map[common.Hash]struct{}, len(txs))
	pending := make([]*tracked, 0, len(txs))
	for _, tx := range txs {
		if _, dup := seen[tx.Hash]; dup {
			continue
		}
		seen[tx.Hash] = struct{}{}
		pending = append(pending, &tracked{tx: tx})
	}

	start := p.clock.Now()
	defer func() {
		metrics.ConfirmationWait.Observe(p.clock.Now().Sub(start).Seconds())
	}()

	confirmed := make([]ConfirmedReceipt, 0, len(pending))
	polls := 0

	for {
		polls++
		metrics.PollPasses.Inc()

		obs := p.pass(ctx, pending)

		still := pending[:0]
		for i, t := range pending {
			o := obs[i]
			if o.err != nil {
				// ошибка касается только этого хеша, остальные учитываем
				metrics.PollErrors.Inc()
				log.Printf("[ethwatch] poll %d: %v", polls, o.err)
				still = append(still, t)
				continue
			}
			if o.pending {
				still = append(still, t)
				continue
			}
			t.mined = true
			t.confirmations = o.confirmations
			if o.receipt == nil {
				still = append(still, t)
				continue
			}
			confirmed = append(confirmed, toConfirmed(t.tx, o.receipt))
			metrics.TxConfirmed.Inc()
		}
		pending = still
		log.Printf("[ethwatch] %s", p.statusLine(pending, len(confirmed)))

		if len(pending) == 0 {
			return confirmed, nil
		}
		if err := ctx.Err(); err != nil {
			return confirmed, err
		}

		elapsed := p.clock.Now().Sub(start)
		if (p.cfg.MaxPolls > 0 && polls >= p.cfg.MaxPolls) || (p.cfg.MaxWait > 0 && elapsed >= p.cfg.MaxWait) {
			metrics.ConfirmationTimeouts.Inc()
			left := make([]Submitted, 0, len(pending))
			for _, t := range pending {
				left = append(left, t.tx)
			}
			return confirmed, &TimeoutError{Pending: left, Polls: polls, Elapsed: elapsed}
		}

		if err := p.clock.Sleep(ctx, p.cfg.Interval); err != nil {
			return confirmed, err
		}
	}
}

// pass queries every tracked hash concurrently. Readers are picked before the
// fan-out so the rotation order is deterministic. A failed query only marks
// its own hash; a fallback failure is retried once on the primary.
func (p *Poller) pass(ctx context.Context, pending []*tracked) []observation {
	readers := make([]Reader, len(pending))
	for i := range pending {
		readers[i] = p.next()
	}

	out := make([]observation, len(pending))
	var g errgroup.Group

	for i, t := range pending {
		g.Go(func() error {
			o, err := p.observe(ctx, readers[i], t.tx.Hash)
			if err != nil && readers[i] != p.primary && ctx.Err() == nil {
				metrics.PollErrors.Inc()
				log.Printf("[ethwatch] wallet %d tx %s: fallback query failed, asking primary: %v",
					t.tx.WalletIndex+1, t.tx.Hash.Hex(), err)
				o, err = p.observe(ctx, p.primary, t.tx.Hash)
			}
			if err != nil {
				o = observation{err: fmt.Errorf("wallet %d tx %s: %w", t.tx.WalletIndex+1, t.tx.Hash.Hex(), err)}
			}
			out[i] = o
			return nil
		})
	}

	_ = g.Wait()
	return out
}

func (p *Poller) observe(ctx context.Context, r Reader, hash common.Hash) (observation, error) {
	rcpt, err := r.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return observation{pending: true}, nil
	}
	if err != nil {
		return observation{}, fmt.Errorf("receipt: %w", err)
	}
	if rcpt == nil || rcpt.BlockNumber == nil {
		return observation{pending: true}, nil
	}

	head, err := r.BlockNumber(ctx)
	if err != nil {
		return observation{}, fmt.Errorf("block number: %w", err)
	}

	conf := Confirmations(head, rcpt.BlockNumber.Uint64())
	if conf < p.cfg.Required {
		return observation{confirmations: conf}, nil
	}

	canonical, err := p.primary.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		// primary отстаёт от fallback-ноды
		return observation{confirmations: conf}, nil
	}
	if err != nil {
		return observation{}, fmt.Errorf("primary receipt: %w", err)
	}
	if canonical == nil || canonical.BlockNumber == nil {
		return observation{confirmations: conf}, nil
	}
	return observation{confirmations: conf, receipt: canonical}, nil
}

func (p *Poller) next() Reader {
	if r := p.pool.Next(); r != nil {
		return r
	}
	return p.primary
}

func (p *Poller) statusLine(pending []*tracked, done int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "confirmed %d, waiting %d:", done, len(pending))
	for _, t := range pending {
		if !t.mined {
			fmt.Fprintf(&b, " [Wallet-%d: Pending]", t.tx.WalletIndex+1)
			continue
		}
		fmt.Fprintf(&b, " [Wallet-%d: %d/%d blocks]", t.tx.WalletIndex+1, t.confirmations, p.cfg.Required)
	}
	return b.String()
}

func toConfirmed(tx Submitted, r *types.Receipt) ConfirmedReceipt {
	price := r.EffectiveGasPrice
	if price == nil {
		price = new(big.Int)
	}
	return ConfirmedReceipt{
		Hash:              tx.Hash,
		WalletIndex:       tx.WalletIndex,
		BlockNumber:       r.BlockNumber.Uint64(),
		GasUsed:           r.GasUsed,
		EffectiveGasPrice: new(big.Int).Set(price),
		Status:            r.Status,
	}
}
