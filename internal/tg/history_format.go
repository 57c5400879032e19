package tg

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/caraka15/taiko-bot/internal/storage"
	"github.com/caraka15/taiko-bot/internal/units"
)

func FormatHistory(runs []storage.RunRecord, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🕘 History (last %d)\n\n", len(runs)))

	for _, r := range runs {
		feeWei := new(big.Int)
		_, _ = feeWei.SetString(r.TotalFeeWei, 10)

		status := ""
		switch r.Status {
		case storage.RunOK:
			status = " ✅"
		case storage.RunPartial:
			status = " ⚠️"
		case storage.RunFailed:
			status = " ❌"
		}

		sb.WriteString(fmt.Sprintf(
			"• %s %s %d/%d it, %d wallets%s\n  fees %s ETH\n",
			r.StartedAt.In(loc).Format("2006-01-02 15:04"),
			r.Mode, r.CompletedIterations, r.Iterations, r.Wallets, status,
			units.FormatEther(feeWei, 6),
		))
		if r.Error != nil {
			sb.WriteString(fmt.Sprintf("  %s\n", shorten(*r.Error, 80)))
		}
	}

	return sb.String()
}

func FormatStatus(mode string, running bool, next time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	state := "idle"
	if running {
		state = "running"
	}
	nextStr := "not scheduled"
	if !next.IsZero() {
		nextStr = next.In(loc).Format("2006-01-02 15:04 MST")
	}
	return fmt.Sprintf("Mode: %s\nState: %s\nNext run: %s", mode, state, nextStr)
}

func shorten(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
