package ledger

import (
	"sort"
	"sync"

	"github.com/holiman/uint256"
)

// Fees accumulates realized gas fees per wallet index. Entries only grow.
type Fees struct {
	mu   sync.RWMutex
	data map[int]*uint256.Int
}

type WalletFee struct {
	WalletIndex int
	Wei         *uint256.Int
}

func NewFees() *Fees {
	return &Fees{data: make(map[int]*uint256.Int)}
}

// Add saturates at 2^256-1 instead of wrapping.
func (f *Fees) Add(walletIndex int, fee *uint256.Int) {
	if fee == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	cur := f.data[walletIndex]
	if cur == nil {
		cur = new(uint256.Int)
		f.data[walletIndex] = cur
	}
	if _, overflow := cur.AddOverflow(cur, fee); overflow {
		cur.SetAllOne()
	}
}

func (f *Fees) Get(walletIndex int) (*uint256.Int, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	v := f.data[walletIndex]
	if v == nil {
		return new(uint256.Int), false
	}
	return v.Clone(), true
}

func (f *Fees) Total() *uint256.Int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := new(uint256.Int)
	for _, v := range f.data {
		if _, overflow := out.AddOverflow(out, v); overflow {
			return out.SetAllOne()
		}
	}
	return out
}

func (f *Fees) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.data)
}

// Snapshot returns copies sorted by wallet index.
func (f *Fees) Snapshot() []WalletFee {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]WalletFee, 0, len(f.data))
	for idx, v := range f.data {
		out = append(out, WalletFee{WalletIndex: idx, Wei: v.Clone()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WalletIndex < out[j].WalletIndex })
	return out
}
