package txexec

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/caraka15/taiko-bot/internal/clock"
	"github.com/caraka15/taiko-bot/internal/ethwatch"
	"github.com/caraka15/taiko-bot/internal/metrics"

	"github.com/ethereum/go-ethereum/core/types"
)

const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 5 * time.Second
)

var (
	ErrExhaustedRetries = errors.New("exhausted retries")

	errNoTransaction = errors.New("operation returned no transaction")
)

// Operation builds and broadcasts one transaction for a wallet. Send is
// called again on every attempt, so it must re-read nonce and fees.
type Operation struct {
	WalletIndex int
	Send        func(ctx context.Context) (*types.Transaction, error)
}

type ExhaustedRetriesError struct {
	WalletIndex int
	Description string
	Attempts    int
	Err         error
}

func (e *ExhaustedRetriesError) Error() string {
	return fmt.Sprintf("wallet %d: %s failed after %d attempts: %v", e.WalletIndex+1, e.Description, e.Attempts, e.Err)
}

func (e *ExhaustedRetriesError) Unwrap() []error { return []error{ErrExhaustedRetries, e.Err} }

// AttemptFailure is passed to Submitter.OnAttemptFailed for every failed attempt.
type AttemptFailure struct {
	WalletIndex int
	Description string
	Attempt     int
	MaxAttempts int
	Err         error
}

type Submitter struct {
	MaxAttempts int
	RetryDelay  time.Duration
	Clock       clock.Clock

	OnAttemptFailed func(AttemptFailure)
}

func (s *Submitter) Submit(ctx context.Context, op Operation, description string) (ethwatch.Submitted, error) {
	maxAttempts := s.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	clk := s.Clock
	if clk == nil {
		clk = clock.Real()
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return ethwatch.Submitted{}, err
		}

		tx, err := op.Send(ctx)
		if err == nil && tx == nil {
			err = errNoTransaction
		}
		if err == nil {
			metrics.SubmitAttempts.WithLabelValues(description, "ok").Inc()
			log.Printf("[txexec] wallet %d: %s sent %s (attempt %d/%d)",
				op.WalletIndex+1, description, tx.Hash().Hex(), attempt, maxAttempts)
			return ethwatch.Submitted{Hash: tx.Hash(), WalletIndex: op.WalletIndex}, nil
		}

		lastErr = err
		metrics.SubmitAttempts.WithLabelValues(description, "error").Inc()
		log.Printf("[txexec] wallet %d: %s attempt %d/%d failed: %v",
			op.WalletIndex+1, description, attempt, maxAttempts, err)

		if s.OnAttemptFailed != nil {
			s.OnAttemptFailed(AttemptFailure{
				WalletIndex: op.WalletIndex,
				Description: description,
				Attempt:     attempt,
				MaxAttempts: maxAttempts,
				Err:         err,
			})
		}

		if attempt == maxAttempts {
			break
		}
		if err := clk.Sleep(ctx, s.RetryDelay); err != nil {
			return ethwatch.Submitted{}, err
		}
	}

	metrics.SubmitExhausted.WithLabelValues(description).Inc()
	return ethwatch.Submitted{}, &ExhaustedRetriesError{
		WalletIndex: op.WalletIndex,
		Description: description,
		Attempts:    maxAttempts,
		Err:         lastErr,
	}
}
