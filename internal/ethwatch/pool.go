package ethwatch

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Reader is the read-only slice of *ethclient.Client the poller needs.
type Reader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Pool hands out fallback readers in round-robin order.
type Pool struct {
	mu      sync.Mutex
	readers []Reader
	next    int
}

func NewPool(readers ...Reader) *Pool {
	out := make([]Reader, 0, len(readers))
	for _, r := range readers {
		if r != nil {
			out = append(out, r)
		}
	}
	return &Pool{readers: out}
}

func (p *Pool) Len() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.readers)
}

// Next returns nil for an empty pool.
func (p *Pool) Next() Reader {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.readers) == 0 {
		return nil
	}
	r := p.readers[p.next]
	p.next = (p.next + 1) % len(p.readers)
	return r
}
