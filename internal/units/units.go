package units

import (
	"errors"
	"math/big"
	"strings"
)

var (
	weiPerEth  = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	weiPerGwei = big.NewInt(1_000_000_000)

	ErrInvalidAmount = errors.New("invalid amount")
)

// ParseEther parses an ETH string ("1.5", "0,5") into wei, rounding down. Zero is allowed.
func ParseEther(amount string) (*big.Int, error) {
	return parseScaled(amount, weiPerEth)
}

// ParseGwei parses a gwei string ("0.1", "25") into wei, rounding down.
func ParseGwei(amount string) (*big.Int, error) {
	return parseScaled(amount, weiPerGwei)
}

func parseScaled(amount string, unit *big.Int) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	amount = strings.ReplaceAll(amount, ",", ".")

	r, ok := new(big.Rat).SetString(amount)
	if !ok || r.Sign() < 0 {
		return nil, ErrInvalidAmount
	}

	r.Mul(r, new(big.Rat).SetInt(unit))

	out := new(big.Int)
	out.Div(r.Num(), r.Denom())
	return out, nil
}

// FormatEther renders wei as ETH with the given number of decimals.
func FormatEther(wei *big.Int, decimals int) string {
	if wei == nil {
		wei = new(big.Int)
	}
	r := new(big.Rat).SetFrac(wei, weiPerEth)
	return r.FloatString(decimals)
}

// EtherFloat is lossy and only meant for fiat conversion in reports.
func EtherFloat(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	r := new(big.Rat).SetFrac(wei, weiPerEth)
	f, _ := r.Float64()
	return f
}

func GweiToWei(g int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(g), weiPerGwei)
}
