package farm

import (
	"fmt"
	"strings"
	"time"

	"github.com/caraka15/taiko-bot/internal/ledger"

	"github.com/google/uuid"
)

type Mode string

const (
	ModeWeth Mode = "weth"
	ModeVote Mode = "vote"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeWeth, ModeVote:
		return m, nil
	default:
		return "", fmt.Errorf("unknown mode %q (want weth or vote)", s)
	}
}

// Run owns the ledgers of one scheduled run. A new Run is created for every
// run so nothing leaks between days.
type Run struct {
	ID        uuid.UUID
	Mode      Mode
	StartedAt time.Time

	Fees   *ledger.Fees
	Points *ledger.Points

	CompletedIterations int
}

func NewRun(mode Mode, now time.Time) *Run {
	return &Run{
		ID:        uuid.New(),
		Mode:      mode,
		StartedAt: now,
		Fees:      ledger.NewFees(),
		Points:    ledger.NewPoints(),
	}
}
