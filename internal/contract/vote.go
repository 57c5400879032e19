package contract

import (
	"context"
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// DynamicGas prices vote() as an EIP-1559 transaction.
type DynamicGas struct {
	MaxFee         *big.Int
	MaxPriorityFee *big.Int
	GasLimit       uint64
}

type Vote struct {
	address common.Address
	bound   *bind.BoundContract
	chainID *big.Int
	gas     DynamicGas
}

func NewVote(address common.Address, parsed abi.ABI, backend bind.ContractBackend, chainID *big.Int, gas DynamicGas) *Vote {
	if gas.GasLimit == 0 {
		gas.GasLimit = VoteGasLimit
	}
	return &Vote{
		address: address,
		bound:   bind.NewBoundContract(address, parsed, backend, backend, backend),
		chainID: chainID,
		gas:     gas,
	}
}

func (v *Vote) Address() common.Address { return v.address }

func (v *Vote) Vote(ctx context.Context, key *ecdsa.PrivateKey) (*types.Transaction, error) {
	opts, err := v.opts(ctx, key)
	if err != nil {
		return nil, err
	}
	return v.bound.Transact(opts, "vote")
}

func (v *Vote) opts(ctx context.Context, key *ecdsa.PrivateKey) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(key, v.chainID)
	if err != nil {
		return nil, err
	}
	opts.Context = ctx
	opts.GasLimit = v.gas.GasLimit
	if v.gas.MaxFee != nil {
		opts.GasFeeCap = new(big.Int).Set(v.gas.MaxFee)
	}
	if v.gas.MaxPriorityFee != nil {
		opts.GasTipCap = new(big.Int).Set(v.gas.MaxPriorityFee)
	}
	return opts, nil
}
