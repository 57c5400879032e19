package contract

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// LegacyGas prices deposit/withdraw with a fixed legacy gas price.
type LegacyGas struct {
	GasPrice         *big.Int
	DepositGasLimit  uint64
	WithdrawGasLimit uint64
}

type WETH struct {
	address common.Address
	bound   *bind.BoundContract
	chainID *big.Int
	gas     LegacyGas
}

func NewWETH(address common.Address, parsed abi.ABI, backend bind.ContractBackend, chainID *big.Int, gas LegacyGas) *WETH {
	if gas.DepositGasLimit == 0 {
		gas.DepositGasLimit = DepositGasLimit
	}
	if gas.WithdrawGasLimit == 0 {
		gas.WithdrawGasLimit = WithdrawGasLimit
	}
	return &WETH{
		address: address,
		bound:   bind.NewBoundContract(address, parsed, backend, backend, backend),
		chainID: chainID,
		gas:     gas,
	}
}

func (w *WETH) Address() common.Address { return w.address }

func (w *WETH) Deposit(ctx context.Context, key *ecdsa.PrivateKey, amount *big.Int) (*types.Transaction, error) {
	opts, err := w.opts(ctx, key, w.gas.DepositGasLimit)
	if err != nil {
		return nil, err
	}
	opts.Value = new(big.Int).Set(amount)
	return w.bound.Transact(opts, "deposit")
}

func (w *WETH) Withdraw(ctx context.Context, key *ecdsa.PrivateKey, amount *big.Int) (*types.Transaction, error) {
	opts, err := w.opts(ctx, key, w.gas.WithdrawGasLimit)
	if err != nil {
		return nil, err
	}
	return w.bound.Transact(opts, "withdraw", amount)
}

func (w *WETH) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	var out []interface{}
	if err := w.bound.Call(&bind.CallOpts{Context: ctx}, &out, "balanceOf", owner); err != nil {
		return nil, fmt.Errorf("weth balanceOf: %w", err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("weth balanceOf: unexpected result len %d", len(out))
	}
	bal, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("weth balanceOf: unexpected type %T", out[0])
	}
	return bal, nil
}

func (w *WETH) opts(ctx context.Context, key *ecdsa.PrivateKey, gasLimit uint64) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(key, w.chainID)
	if err != nil {
		return nil, err
	}
	opts.Context = ctx
	opts.GasLimit = gasLimit
	if w.gas.GasPrice != nil {
		opts.GasPrice = new(big.Int).Set(w.gas.GasPrice)
	}
	return opts, nil
}
