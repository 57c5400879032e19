package farm

import (
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type AmountRange struct {
	Min *big.Int
	Max *big.Int
}

type Wallet struct {
	// Index is zero-based; logs and reports show Index+1.
	Index   int
	Address common.Address
	Key     *ecdsa.PrivateKey
	Range   AmountRange
}

func (w Wallet) Label() string { return fmt.Sprintf("Wallet-%d", w.Index+1) }

var errRangeTooWide = errors.New("amount range exceeds 256 bits")

// RandomAmount returns lo + (r mod (hi-lo)) for a 256-bit random r, so the
// result is in [lo, hi). When hi <= lo it returns lo.
func RandomAmount(lo, hi *big.Int, rnd io.Reader) (*big.Int, error) {
	if lo == nil {
		lo = new(big.Int)
	}
	if hi == nil || hi.Cmp(lo) <= 0 {
		return new(big.Int).Set(lo), nil
	}
	if rnd == nil {
		rnd = rand.Reader
	}

	span, overflow := uint256.FromBig(new(big.Int).Sub(hi, lo))
	if overflow {
		return nil, errRangeTooWide
	}

	var buf [32]byte
	if _, err := io.ReadFull(rnd, buf[:]); err != nil {
		return nil, fmt.Errorf("random bytes: %w", err)
	}
	r := new(uint256.Int).SetBytes32(buf[:])
	r.Mod(r, span)

	return new(big.Int).Add(lo, r.ToBig()), nil
}
