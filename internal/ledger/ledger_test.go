package ledger

import (
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFees_AddAccumulates(t *testing.T) {
	f := NewFees()
	f.Add(0, uint256.NewInt(100))
	f.Add(0, uint256.NewInt(50))
	f.Add(2, uint256.NewInt(7))

	v, ok := f.Get(0)
	require.True(t, ok)
	assert.Equal(t, uint64(150), v.Uint64())

	_, ok = f.Get(1)
	assert.False(t, ok)

	assert.Equal(t, uint64(157), f.Total().Uint64())
	assert.Equal(t, 2, f.Len())

	snap := f.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, 0, snap[0].WalletIndex)
	assert.Equal(t, 2, snap[1].WalletIndex)
}

func TestFees_GetIsCopy(t *testing.T) {
	f := NewFees()
	f.Add(1, uint256.NewInt(10))

	v, _ := f.Get(1)
	v.SetUint64(0)

	again, _ := f.Get(1)
	assert.Equal(t, uint64(10), again.Uint64())
}

func TestFees_Saturates(t *testing.T) {
	f := NewFees()
	max := new(uint256.Int).SetAllOne()
	f.Add(0, max)
	f.Add(0, uint256.NewInt(1))

	v, _ := f.Get(0)
	assert.True(t, v.Eq(max))
}

func TestFees_ConcurrentAdd(t *testing.T) {
	f := NewFees()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.Add(i%4, uint256.NewInt(1))
		}()
	}
	wg.Wait()
	assert.Equal(t, uint64(100), f.Total().Uint64())
}

func TestPoints_AppendAndSummary(t *testing.T) {
	p := NewPoints()
	addr := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")

	p.Append(addr, PointsEntry{Iteration: 1, PointsEarned: 10, TotalPoints: 110, Rank: 95, RankChange: 5})
	p.Append(addr, PointsEntry{Iteration: 2, PointsEarned: 12.5, TotalPoints: 122.5, Rank: 90, RankChange: 5})

	entries := p.Entries(addr)
	require.Len(t, entries, 2)
	assert.Equal(t, 1, entries[0].Iteration)

	snap := p.Snapshot()
	require.Len(t, snap, 1)
	earned, last, change := snap[0].Summary()
	assert.InDelta(t, 22.5, earned, 1e-9)
	assert.Equal(t, 90, last.Rank)
	assert.Equal(t, 10, change)
}

func TestPoints_SnapshotSorted(t *testing.T) {
	p := NewPoints()
	b := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	a := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	p.Append(b, PointsEntry{Iteration: 1})
	p.Append(a, PointsEntry{Iteration: 1})

	snap := p.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, a, snap[0].Address)
	assert.Equal(t, b, snap[1].Address)

	earned, _, change := WalletPoints{}.Summary()
	assert.Zero(t, earned)
	assert.Zero(t, change)
}
