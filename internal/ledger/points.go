package ledger

import (
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

type PointsEntry struct {
	Iteration    int
	PointsEarned float64
	TotalPoints  float64
	Rank         int
	// RankChange is positive when the wallet moved up.
	RankChange int
}

type WalletPoints struct {
	Address common.Address
	Entries []PointsEntry
}

// Points keeps per-iteration snapshots per wallet address, append-only.
type Points struct {
	mu   sync.RWMutex
	data map[common.Address][]PointsEntry
}

func NewPoints() *Points {
	return &Points{data: make(map[common.Address][]PointsEntry)}
}

func (p *Points) Append(addr common.Address, e PointsEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data[addr] = append(p.data[addr], e)
}

func (p *Points) Entries(addr common.Address) []PointsEntry {
	p.mu.RLock()
	defer p.mu.RUnlock()

	src := p.data[addr]
	out := make([]PointsEntry, len(src))
	copy(out, src)
	return out
}

func (p *Points) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.data)
}

// Snapshot returns copies sorted by address.
func (p *Points) Snapshot() []WalletPoints {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]WalletPoints, 0, len(p.data))
	for addr, entries := range p.data {
		cp := make([]PointsEntry, len(entries))
		copy(cp, entries)
		out = append(out, WalletPoints{Address: addr, Entries: cp})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Address.Cmp(out[j].Address) < 0
	})
	return out
}

// Summary folds a wallet's entries into the totals shown in reports.
func (w WalletPoints) Summary() (earned float64, last PointsEntry, rankChange int) {
	if len(w.Entries) == 0 {
		return 0, PointsEntry{}, 0
	}
	for _, e := range w.Entries {
		earned += e.PointsEarned
	}
	first := w.Entries[0]
	last = w.Entries[len(w.Entries)-1]
	// first.Rank+first.RankChange is the rank before the first iteration.
	return earned, last, (first.Rank + first.RankChange) - last.Rank
}
