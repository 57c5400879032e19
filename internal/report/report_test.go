package report

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/caraka15/taiko-bot/internal/ledger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
)

func TestFormat_FeesAndPoints(t *testing.T) {
	rate := 2000.0
	addr := common.HexToAddress("0x1234567890abcdef1234567890abcdef12345678")

	s := Summary{
		RunID:               "abc",
		Mode:                "weth",
		Iterations:          3,
		CompletedIterations: 3,
		Wallets:             2,
		FinishedAt:          time.Date(2026, 10, 18, 7, 30, 0, 0, time.UTC),
		Fees: []ledger.WalletFee{
			{WalletIndex: 0, Wei: uint256.NewInt(1_000_000_000_000_000)}, // 0.001 ETH
			{WalletIndex: 1, Wei: uint256.NewInt(500_000_000_000_000)},
		},
		Points: []ledger.WalletPoints{{
			Address: addr,
			Entries: []ledger.PointsEntry{
				{Iteration: 1, PointsEarned: 10, TotalPoints: 110, Rank: 95, RankChange: 5},
				{Iteration: 2, PointsEarned: 12.5, TotalPoints: 122.5, Rank: 90, RankChange: 5},
			},
		}},
		USDRate: &rate,
	}

	txt := Format(s)

	assert.Contains(t, txt, "Run completed")
	assert.Contains(t, txt, "Completed iterations: 3/3")
	assert.Contains(t, txt, "Wallet-1: 0.00100000 ETH ($2.00)")
	assert.Contains(t, txt, "Wallet-2: 0.00050000 ETH ($1.00)")
	assert.Contains(t, txt, "Total: $3.00")
	assert.Contains(t, txt, "<code>0x1234...5678</code>")
	assert.Contains(t, txt, "Total Points Earned: 22.50")
	assert.Contains(t, txt, "Final Total Points: 122.50")
	assert.Contains(t, txt, "Rank Change: ↑10")
	assert.Contains(t, txt, "Current Rank: 90")
	assert.NotContains(t, txt, "Error")
}

func TestFormat_EmptyRunWithError(t *testing.T) {
	txt := Format(Summary{
		Mode:       "vote",
		Iterations: 2,
		Err:        errors.New("deposit batch <aborted>"),
	})

	assert.Contains(t, txt, "finished with errors")
	assert.Contains(t, txt, "No fees recorded")
	assert.Contains(t, txt, "No points recorded")
	assert.Contains(t, txt, "deposit batch &lt;aborted&gt;")
	assert.False(t, strings.Contains(txt, "$"), "no fiat without a rate")
}

func TestFormat_NoRateIsEthOnly(t *testing.T) {
	txt := Format(Summary{
		Fees: []ledger.WalletFee{{WalletIndex: 4, Wei: uint256.NewInt(21_000_000_000_000)}},
	})
	assert.Contains(t, txt, "Wallet-5: 0.00002100 ETH")
	assert.NotContains(t, txt, "Total: $")
}

func TestRankChange(t *testing.T) {
	assert.Equal(t, "↑3", RankChange(3))
	assert.Equal(t, "↓2", RankChange(-2))
	assert.Equal(t, "No change", RankChange(0))
}
