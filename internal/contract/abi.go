package contract

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// DefaultWETHAddress is WETH on Taiko mainnet.
var DefaultWETHAddress = common.HexToAddress("0xA51894664A773981C6C112C43ce576f315d5b1B6")

const (
	DepositGasLimit  uint64 = 104817
	WithdrawGasLimit uint64 = 100000
	VoteGasLimit     uint64 = 22000
)

const wethABIJSON = `[
{"inputs":[],"name":"deposit","outputs":[],"stateMutability":"payable","type":"function"},
{"inputs":[{"internalType":"uint256","name":"wad","type":"uint256"}],"name":"withdraw","outputs":[],"stateMutability":"nonpayable","type":"function"},
{"inputs":[{"internalType":"address","name":"","type":"address"}],"name":"balanceOf","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

const voteABIJSON = `[
{"inputs":[],"name":"vote","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

func WETHABI() (abi.ABI, error) { return abi.JSON(strings.NewReader(wethABIJSON)) }

func VoteABI() (abi.ABI, error) { return abi.JSON(strings.NewReader(voteABIJSON)) }

// LoadABI reads an ABI JSON file, or returns fallback() when path is empty.
// The parsed ABI must expose every method in required.
func LoadABI(path string, fallback func() (abi.ABI, error), required ...string) (abi.ABI, error) {
	var (
		parsed abi.ABI
		err    error
	)
	if strings.TrimSpace(path) == "" {
		parsed, err = fallback()
	} else {
		var f *os.File
		f, err = os.Open(path)
		if err != nil {
			return abi.ABI{}, fmt.Errorf("open abi %s: %w", path, err)
		}
		defer f.Close()
		parsed, err = abi.JSON(f)
	}
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parse abi: %w", err)
	}

	for _, m := range required {
		if _, ok := parsed.Methods[m]; !ok {
			return abi.ABI{}, fmt.Errorf("abi has no method %q", m)
		}
	}
	return parsed, nil
}
