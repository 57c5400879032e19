package report

import (
	"context"
	"fmt"
	"html"
	"log"
	"strings"
	"time"

	"github.com/caraka15/taiko-bot/internal/ledger"
	"github.com/caraka15/taiko-bot/internal/units"
)

type Summary struct {
	RunID               string
	Mode                string
	Iterations          int
	CompletedIterations int
	Wallets             int
	StartedAt           time.Time
	FinishedAt          time.Time

	Fees   []ledger.WalletFee
	Points []ledger.WalletPoints

	// nil when the price service was unavailable
	USDRate *float64
	Err     error
}

type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// LogNotifier prints reports when no Telegram chat is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, text string) error {
	log.Printf("[report]\n%s", text)
	return nil
}

// Format renders the end-of-run message as Telegram HTML.
func Format(s Summary) string {
	var b strings.Builder

	if s.Err != nil {
		b.WriteString("<b>⚠️ Run finished with errors</b>\n")
	} else {
		b.WriteString("<b>🎉 Run completed</b>\n")
	}

	b.WriteString("\n<b>📊 Summary:</b>")
	fmt.Fprintf(&b, "\n• Mode: %s", html.EscapeString(strings.ToUpper(s.Mode)))
	fmt.Fprintf(&b, "\n• Completed iterations: %d/%d", s.CompletedIterations, s.Iterations)
	fmt.Fprintf(&b, "\n• Wallets: %d", s.Wallets)
	if !s.FinishedAt.IsZero() {
		fmt.Fprintf(&b, "\n• Finished at: %s", s.FinishedAt.Format("2006-01-02 15:04:05 MST"))
	}
	if s.RunID != "" {
		fmt.Fprintf(&b, "\n• Run: <code>%s</code>", html.EscapeString(s.RunID))
	}

	writeFees(&b, s)
	writePoints(&b, s.Points)

	if s.Err != nil {
		fmt.Fprintf(&b, "\n\n<b>❌ Error:</b> %s", html.EscapeString(s.Err.Error()))
	}
	return b.String()
}

func writeFees(b *strings.Builder, s Summary) {
	b.WriteString("\n\n<b>💰 Fee Summary per Wallet:</b>")
	if len(s.Fees) == 0 {
		b.WriteString("\n• No fees recorded")
		return
	}

	totalUSD := 0.0
	for _, f := range s.Fees {
		wei := f.Wei.ToBig()
		fmt.Fprintf(b, "\n• Wallet-%d: %s ETH", f.WalletIndex+1, units.FormatEther(wei, 8))
		if s.USDRate != nil {
			usd := units.EtherFloat(wei) * *s.USDRate
			totalUSD += usd
			fmt.Fprintf(b, " ($%.2f)", usd)
		}
	}
	if s.USDRate != nil {
		fmt.Fprintf(b, "\n• Total: $%.2f", totalUSD)
	}
}

func writePoints(b *strings.Builder, points []ledger.WalletPoints) {
	if len(points) == 0 {
		b.WriteString("\n\n<b>🎯 Points Summary:</b>\n• No points recorded")
		return
	}

	b.WriteString("\n\n<b>🎯 Points Summary per Wallet:</b>")
	for _, wp := range points {
		if len(wp.Entries) == 0 {
			continue
		}
		earned, last, change := wp.Summary()
		fmt.Fprintf(b, "\n\n<code>%s</code>:", ShortAddress(wp.Address.Hex()))
		fmt.Fprintf(b, "\n• Total Points Earned: %.2f", earned)
		fmt.Fprintf(b, "\n• Final Total Points: %.2f", last.TotalPoints)
		fmt.Fprintf(b, "\n• Rank Change: %s", RankChange(change))
		fmt.Fprintf(b, "\n• Current Rank: %d", last.Rank)
	}
}

// RankChange renders a positive change (moved up) as ↑n.
func RankChange(n int) string {
	switch {
	case n > 0:
		return fmt.Sprintf("↑%d", n)
	case n < 0:
		return fmt.Sprintf("↓%d", -n)
	default:
		return "No change"
	}
}

func ShortAddress(a string) string {
	if len(a) <= 10 {
		return a
	}
	return a[:6] + "..." + a[len(a)-4:]
}
