package contract

import (
	"context"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultABIs(t *testing.T) {
	weth, err := WETHABI()
	require.NoError(t, err)
	for sig, name := range map[string]string{
		"deposit()":          "deposit",
		"withdraw(uint256)":  "withdraw",
		"balanceOf(address)": "balanceOf",
	} {
		m, ok := weth.Methods[name]
		require.True(t, ok, name)
		assert.Equal(t, crypto.Keccak256([]byte(sig))[:4], m.ID, sig)
	}
	assert.True(t, weth.Methods["deposit"].IsPayable())

	vote, err := VoteABI()
	require.NoError(t, err)
	assert.Equal(t, crypto.Keccak256([]byte("vote()"))[:4], vote.Methods["vote"].ID)
}

func TestLoadABI(t *testing.T) {
	parsed, err := LoadABI("", WETHABI, "deposit", "withdraw", "balanceOf")
	require.NoError(t, err)
	assert.Len(t, parsed.Methods, 3)

	path := filepath.Join(t.TempDir(), "abi.json")
	require.NoError(t, os.WriteFile(path, []byte(voteABIJSON), 0o600))

	_, err = LoadABI(path, WETHABI, "deposit")
	require.Error(t, err, "vote abi has no deposit")

	parsed, err = LoadABI(path, WETHABI, "vote")
	require.NoError(t, err)
	assert.Contains(t, parsed.Methods, "vote")

	_, err = LoadABI(filepath.Join(t.TempDir(), "missing.json"), WETHABI)
	require.Error(t, err)
}

func TestTransactOpts(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	wethABI, err := WETHABI()
	require.NoError(t, err)
	w := NewWETH(DefaultWETHAddress, wethABI, nil, big.NewInt(167000), LegacyGas{GasPrice: big.NewInt(100_000_000)})

	opts, err := w.opts(context.Background(), key, w.gas.DepositGasLimit)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), opts.From)
	assert.Equal(t, DepositGasLimit, opts.GasLimit)
	assert.Equal(t, int64(100_000_000), opts.GasPrice.Int64())
	assert.Nil(t, opts.GasFeeCap)
	assert.Equal(t, WithdrawGasLimit, w.gas.WithdrawGasLimit)

	voteABI, err := VoteABI()
	require.NoError(t, err)
	v := NewVote(DefaultWETHAddress, voteABI, nil, big.NewInt(167000), DynamicGas{
		MaxFee:         big.NewInt(250_000_000),
		MaxPriorityFee: big.NewInt(10_000_000),
	})

	opts, err = v.opts(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, VoteGasLimit, opts.GasLimit)
	assert.Nil(t, opts.GasPrice)
	assert.Equal(t, int64(250_000_000), opts.GasFeeCap.Int64())
	assert.Equal(t, int64(10_000_000), opts.GasTipCap.Int64())
}
