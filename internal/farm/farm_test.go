package farm

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/caraka15/taiko-bot/internal/clock"
	"github.com/caraka15/taiko-bot/internal/ethwatch"
	"github.com/caraka15/taiko-bot/internal/ledger"
	"github.com/caraka15/taiko-bot/internal/offchain"
	"github.com/caraka15/taiko-bot/internal/report"
	"github.com/caraka15/taiko-bot/internal/storage"
	"github.com/caraka15/taiko-bot/internal/txexec"
	"github.com/caraka15/taiko-bot/internal/units"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eth(t *testing.T, s string) *big.Int {
	t.Helper()
	v, err := units.ParseEther(s)
	require.NoError(t, err)
	return v
}

func newWallet(t *testing.T, idx int, lo, hi string) Wallet {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return Wallet{
		Index:   idx,
		Address: crypto.PubkeyToAddress(key.PublicKey),
		Key:     key,
		Range:   AmountRange{Min: eth(t, lo), Max: eth(t, hi)},
	}
}

func dummyTx(nonce uint64) *types.Transaction {
	to := common.HexToAddress("0x01")
	return types.NewTx(&types.LegacyTx{Nonce: nonce, To: &to, Gas: 21000, GasPrice: big.NewInt(1)})
}

type fakeBalances struct {
	bal map[common.Address]*big.Int
	err map[common.Address]error
}

func (f *fakeBalances) BalanceAt(_ context.Context, a common.Address, _ *big.Int) (*big.Int, error) {
	if err := f.err[a]; err != nil {
		return nil, err
	}
	if b := f.bal[a]; b != nil {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

type fakeWeth struct {
	mu       sync.Mutex
	deposits map[*ecdsa.PrivateKey]*big.Int
	withdraw map[*ecdsa.PrivateKey]*big.Int
	wrapped  map[common.Address]*big.Int
	nonce    uint64
}

func newFakeWeth() *fakeWeth {
	return &fakeWeth{
		deposits: map[*ecdsa.PrivateKey]*big.Int{},
		withdraw: map[*ecdsa.PrivateKey]*big.Int{},
		wrapped:  map[common.Address]*big.Int{},
	}
}

func (f *fakeWeth) Deposit(_ context.Context, key *ecdsa.PrivateKey, amount *big.Int) (*types.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deposits[key] = amount
	f.wrapped[crypto.PubkeyToAddress(key.PublicKey)] = amount
	f.nonce++
	return dummyTx(f.nonce), nil
}

func (f *fakeWeth) Withdraw(_ context.Context, key *ecdsa.PrivateKey, amount *big.Int) (*types.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.withdraw[key] = amount
	f.nonce++
	return dummyTx(f.nonce), nil
}

func (f *fakeWeth) BalanceOf(_ context.Context, owner common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b := f.wrapped[owner]; b != nil {
		return b, nil
	}
	return new(big.Int), nil
}

type batchCall struct {
	description string
	wallets     []int
}

// fakeBatch sends every operation once and books a fixed fee per wallet.
type fakeBatch struct {
	mu    sync.Mutex
	calls []batchCall
	errs  map[string]error
	fee   uint64
}

func (f *fakeBatch) Execute(ctx context.Context, ops []txexec.Operation, desc string, fees *ledger.Fees) (txexec.BatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	call := batchCall{description: desc}
	res := txexec.BatchResult{Description: desc}
	for _, op := range ops {
		call.wallets = append(call.wallets, op.WalletIndex)
		tx, err := op.Send(ctx)
		if err != nil {
			return res, err
		}
		res.Submitted = append(res.Submitted, ethwatch.Submitted{Hash: tx.Hash(), WalletIndex: op.WalletIndex})
		res.Receipts = append(res.Receipts, ethwatch.ConfirmedReceipt{
			Hash: tx.Hash(), WalletIndex: op.WalletIndex, BlockNumber: 1,
			GasUsed: f.fee, EffectiveGasPrice: big.NewInt(1), Status: 1,
		})
		if fees != nil {
			fees.Add(op.WalletIndex, uint256.NewInt(f.fee))
		}
	}
	f.calls = append(f.calls, call)
	return res, f.errs[desc]
}

// fakeScores returns queued results per address; an empty queue is an error.
type fakeScores struct {
	mu    sync.Mutex
	queue map[common.Address][]*offchain.Score
}

func (f *fakeScores) push(a common.Address, scores ...*offchain.Score) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queue == nil {
		f.queue = map[common.Address][]*offchain.Score{}
	}
	f.queue[a] = append(f.queue[a], scores...)
}

func (f *fakeScores) Fetch(_ context.Context, a common.Address) (offchain.Score, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q := f.queue[a]
	if len(q) == 0 {
		return offchain.Score{}, errors.New("timeout")
	}
	f.queue[a] = q[1:]
	if q[0] == nil {
		return offchain.Score{}, errors.New("network timeout")
	}
	return *q[0], nil
}

type memRepo struct {
	storage.Nop
	mu   sync.Mutex
	txs  []storage.TxRecord
	runs []storage.RunRecord
}

func (m *memRepo) UpsertTx(_ context.Context, tx storage.TxRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs = append(m.txs, tx)
	return nil
}

func (m *memRepo) SaveRun(_ context.Context, r storage.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, r)
	return nil
}

func TestRandomAmount_InRange(t *testing.T) {
	lo := eth(t, "0.001")
	hi := eth(t, "0.003")

	for i := 0; i < 10000; i++ {
		v, err := RandomAmount(lo, hi, rand.Reader)
		require.NoError(t, err)
		if v.Cmp(lo) < 0 || v.Cmp(hi) >= 0 {
			t.Fatalf("sample %d out of range: %s", i, v)
		}
	}
}

func TestRandomAmount_DegenerateRange(t *testing.T) {
	lo := eth(t, "0.002")

	v, err := RandomAmount(lo, lo, rand.Reader)
	require.NoError(t, err)
	assert.Equal(t, 0, v.Cmp(lo))

	v, err = RandomAmount(lo, eth(t, "0.001"), rand.Reader)
	require.NoError(t, err)
	assert.Equal(t, 0, v.Cmp(lo))
	assert.NotSame(t, lo, v)
}

func newWethController(w *fakeWeth, bal *fakeBalances, scores *fakeScores, batch *fakeBatch, clk clock.Clock, repo storage.Repository) *WethController {
	return &WethController{
		Contract:       w,
		Balances:       bal,
		Scores:         scores,
		Batch:          batch,
		Repo:           repo,
		Clock:          clk,
		Rand:           rand.Reader,
		SettleInterval: 30 * time.Second,
		ScoreDelay:     5 * time.Second,
	}
}

func TestWethIterate_DepositBuilt(t *testing.T) {
	w := newWallet(t, 0, "0.001", "0.003")
	weth := newFakeWeth()
	bal := &fakeBalances{bal: map[common.Address]*big.Int{w.Address: eth(t, "1.0")}}
	scores := &fakeScores{}
	scores.push(w.Address, &offchain.Score{TotalPoints: 100, Rank: 50}, &offchain.Score{TotalPoints: 112.5, Rank: 47})
	batch := &fakeBatch{fee: 21000}
	clk := clock.NewFake(time.Unix(0, 0))
	repo := &memRepo{}

	run := NewRun(ModeWeth, clk.Now())
	err := newWethController(weth, bal, scores, batch, clk, repo).Iterate(context.Background(), run, []Wallet{w}, 1)
	require.NoError(t, err)

	amount := weth.deposits[w.Key]
	require.NotNil(t, amount, "deposit must be built")
	assert.True(t, amount.Cmp(eth(t, "0.001")) >= 0 && amount.Cmp(eth(t, "0.003")) < 0)
	assert.Equal(t, 0, weth.withdraw[w.Key].Cmp(amount), "withdraws the entire wrapped balance")

	require.Len(t, batch.calls, 2)
	assert.Equal(t, "Deposit", batch.calls[0].description)
	assert.Equal(t, "Withdraw", batch.calls[1].description)
	assert.Equal(t, []time.Duration{30 * time.Second, 5 * time.Second}, clk.Sleeps())

	fee, ok := run.Fees.Get(0)
	require.True(t, ok)
	assert.True(t, fee.Eq(uint256.NewInt(42000)))

	entries := run.Points.Entries(w.Address)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.PointsEntry{Iteration: 1, PointsEarned: 12.5, TotalPoints: 112.5, Rank: 47, RankChange: 3}, entries[0])

	// two broadcasts plus two confirmations
	assert.Len(t, repo.txs, 4)
}

func TestWethIterate_InsufficientBalanceSkipsBatch(t *testing.T) {
	w := newWallet(t, 0, "0.001", "0.003")
	weth := newFakeWeth()
	bal := &fakeBalances{bal: map[common.Address]*big.Int{w.Address: eth(t, "0.0001")}}
	batch := &fakeBatch{}
	clk := clock.NewFake(time.Unix(0, 0))

	run := NewRun(ModeWeth, clk.Now())
	err := newWethController(weth, bal, &fakeScores{}, batch, clk, nil).Iterate(context.Background(), run, []Wallet{w}, 1)
	require.NoError(t, err)

	assert.Empty(t, weth.deposits)
	assert.Empty(t, batch.calls, "no submission for zero operations")
	assert.Equal(t, 0, run.Fees.Len())
}

func TestWethIterate_BalanceErrorSkipsWallet(t *testing.T) {
	a := newWallet(t, 0, "0.001", "0.002")
	b := newWallet(t, 1, "0.001", "0.002")
	weth := newFakeWeth()
	bal := &fakeBalances{
		bal: map[common.Address]*big.Int{b.Address: eth(t, "1")},
		err: map[common.Address]error{a.Address: errors.New("rpc down")},
	}
	batch := &fakeBatch{}
	clk := clock.NewFake(time.Unix(0, 0))

	err := newWethController(weth, bal, &fakeScores{}, batch, clk, nil).
		Iterate(context.Background(), NewRun(ModeWeth, clk.Now()), []Wallet{a, b}, 1)
	require.NoError(t, err)

	require.NotEmpty(t, batch.calls)
	assert.Equal(t, []int{1}, batch.calls[0].wallets)
}

func TestWethIterate_ScoreFailureSkipsPoints(t *testing.T) {
	a := newWallet(t, 0, "0.001", "0.002")
	b := newWallet(t, 1, "0.001", "0.002")
	scores := &fakeScores{}
	// a: the snapshot before the batch times out
	scores.push(a.Address, nil, &offchain.Score{TotalPoints: 10, Rank: 5})
	scores.push(b.Address, &offchain.Score{TotalPoints: 1, Rank: 9}, &offchain.Score{TotalPoints: 4, Rank: 8})
	bal := &fakeBalances{bal: map[common.Address]*big.Int{a.Address: eth(t, "1"), b.Address: eth(t, "1")}}
	clk := clock.NewFake(time.Unix(0, 0))

	run := NewRun(ModeWeth, clk.Now())
	err := newWethController(newFakeWeth(), bal, scores, &fakeBatch{}, clk, nil).
		Iterate(context.Background(), run, []Wallet{a, b}, 2)
	require.NoError(t, err)

	assert.Empty(t, run.Points.Entries(a.Address), "not recorded as zero")
	require.Len(t, run.Points.Entries(b.Address), 1)
	assert.Equal(t, 3.0, run.Points.Entries(b.Address)[0].PointsEarned)
}

func TestWethIterate_AbortedBatchStopsIteration(t *testing.T) {
	w := newWallet(t, 0, "0.001", "0.002")
	bal := &fakeBalances{bal: map[common.Address]*big.Int{w.Address: eth(t, "1")}}
	batch := &fakeBatch{errs: map[string]error{
		"Deposit": &txexec.BatchError{Description: "Deposit", Aborted: true, Failures: []txexec.Failure{{WalletIndex: 0, Err: txexec.ErrExhaustedRetries}}},
	}}
	clk := clock.NewFake(time.Unix(0, 0))

	err := newWethController(newFakeWeth(), bal, &fakeScores{}, batch, clk, nil).
		Iterate(context.Background(), NewRun(ModeWeth, clk.Now()), []Wallet{w}, 1)
	require.ErrorIs(t, err, txexec.ErrExhaustedRetries)
	assert.Len(t, batch.calls, 1, "no withdraw after an aborted deposit batch")
	assert.Empty(t, clk.Sleeps())
}

func TestWethIterate_IsolatedFailureFinishesIteration(t *testing.T) {
	w := newWallet(t, 0, "0.001", "0.002")
	bal := &fakeBalances{bal: map[common.Address]*big.Int{w.Address: eth(t, "1")}}
	scores := &fakeScores{}
	scores.push(w.Address, &offchain.Score{TotalPoints: 1}, &offchain.Score{TotalPoints: 2})
	batch := &fakeBatch{errs: map[string]error{
		"Deposit": &txexec.BatchError{Description: "Deposit", Failures: []txexec.Failure{{WalletIndex: 3, Err: txexec.ErrExhaustedRetries}}},
	}}
	clk := clock.NewFake(time.Unix(0, 0))

	run := NewRun(ModeWeth, clk.Now())
	err := newWethController(newFakeWeth(), bal, scores, batch, clk, nil).Iterate(context.Background(), run, []Wallet{w}, 1)

	var be *txexec.BatchError
	require.ErrorAs(t, err, &be)
	assert.Len(t, batch.calls, 2)
	assert.Len(t, run.Points.Entries(w.Address), 1, "points are recorded before the error is returned")
}

type fakeVote struct {
	mu    sync.Mutex
	votes int
}

func (f *fakeVote) Vote(context.Context, *ecdsa.PrivateKey) (*types.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.votes++
	return dummyTx(uint64(f.votes)), nil
}

func TestVoteIterate_OneBatch(t *testing.T) {
	a := newWallet(t, 0, "0", "0")
	b := newWallet(t, 1, "0", "0")
	v := &fakeVote{}
	batch := &fakeBatch{fee: 22000}
	clk := clock.NewFake(time.Unix(0, 0))

	run := NewRun(ModeVote, clk.Now())
	c := &VoteController{Contract: v, Scores: &fakeScores{}, Batch: batch, Clock: clk}
	require.NoError(t, c.Iterate(context.Background(), run, []Wallet{a, b}, 1))

	assert.Equal(t, 2, v.votes)
	require.Len(t, batch.calls, 1)
	assert.Equal(t, "Vote", batch.calls[0].description)
	assert.ElementsMatch(t, []int{0, 1}, batch.calls[0].wallets)
	assert.True(t, run.Fees.Total().Eq(uint256.NewInt(44000)))
	assert.Equal(t, []time.Duration{DefaultScoreDelay}, clk.Sleeps())
}

type fakeController struct {
	calls  int
	failAt int
	onCall func(i int)
}

func (f *fakeController) Mode() Mode { return ModeVote }

func (f *fakeController) Iterate(ctx context.Context, run *Run, _ []Wallet, i int) error {
	f.calls++
	if f.onCall != nil {
		f.onCall(i)
	}
	if i == f.failAt {
		return errors.New("vote batch failed")
	}
	run.Fees.Add(0, uint256.NewInt(uint64(i)))
	return ctx.Err()
}

type fakeNotifier struct {
	texts  []string
	ctxErr error
}

func (f *fakeNotifier) Notify(ctx context.Context, text string) error {
	f.texts = append(f.texts, text)
	f.ctxErr = ctx.Err()
	return nil
}

type fakeRates struct{ usd float64 }

func (f fakeRates) NativeUSD(context.Context) (float64, error) {
	if f.usd <= 0 {
		return 0, errors.New("no rate")
	}
	return f.usd, nil
}

func TestRunner_AllIterations(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	ctrl := &fakeController{}
	n := &fakeNotifier{}
	repo := &memRepo{}

	r := &Runner{Controller: ctrl, Iterations: 3, Interval: time.Minute, Clock: clk, Repo: repo, Rates: fakeRates{usd: 2500}, Notifier: n}
	s := r.Run(context.Background(), []Wallet{{Index: 0}})

	assert.Equal(t, 3, ctrl.calls)
	assert.Equal(t, 3, s.CompletedIterations)
	assert.NoError(t, s.Err)
	assert.Equal(t, []time.Duration{time.Minute, time.Minute}, clk.Sleeps(), "no sleep after the last iteration")
	require.NotNil(t, s.USDRate)
	assert.Equal(t, 2500.0, *s.USDRate)
	require.Len(t, n.texts, 1)
	assert.Contains(t, n.texts[0], "Completed iterations: 3/3")

	require.Len(t, repo.runs, 1)
	assert.Equal(t, storage.RunOK, repo.runs[0].Status)
	assert.Equal(t, "6", repo.runs[0].TotalFeeWei)
}

func TestRunner_StopsOnErrorAndStillReports(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	ctrl := &fakeController{failAt: 2}
	n := &fakeNotifier{}
	repo := &memRepo{}

	r := &Runner{Controller: ctrl, Iterations: 4, Interval: time.Minute, Clock: clk, Repo: repo, Rates: fakeRates{}, Notifier: n}
	s := r.Run(context.Background(), nil)

	assert.Equal(t, 2, ctrl.calls)
	assert.Equal(t, 1, s.CompletedIterations)
	require.Error(t, s.Err)
	assert.Nil(t, s.USDRate)
	require.Len(t, n.texts, 1)
	assert.Contains(t, n.texts[0], "vote batch failed")
	assert.Equal(t, storage.RunPartial, repo.runs[0].Status)
}

func TestRunner_ReportsAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	clk := clock.NewFake(time.Unix(0, 0))
	ctrl := &fakeController{onCall: func(int) { cancel() }}
	n := &fakeNotifier{}

	r := &Runner{Controller: ctrl, Iterations: 2, Clock: clk, Notifier: n}
	s := r.Run(ctx, nil)

	require.ErrorIs(t, s.Err, context.Canceled)
	require.Len(t, n.texts, 1)
	assert.NoError(t, n.ctxErr, "report is sent with a fresh context")
	assert.Len(t, s.Fees, 1, "partial ledger data is kept")
}

var _ report.Notifier = (*fakeNotifier)(nil)
