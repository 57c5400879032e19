package txexec

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"sync"

	"github.com/caraka15/taiko-bot/internal/ethwatch"
	"github.com/caraka15/taiko-bot/internal/ledger"
	"github.com/caraka15/taiko-bot/internal/metrics"
)

type FailurePolicy string

const (
	// PolicyIsolate keeps confirming and accounting the wallets that did
	// broadcast when other wallets in the batch exhaust their retries.
	PolicyIsolate FailurePolicy = "isolate"
	// PolicyAbort drops the whole batch on the first exhausted wallet.
	// Already broadcast transactions are left unconfirmed and unaccounted.
	PolicyAbort FailurePolicy = "abort"
)

func ParsePolicy(s string) (FailurePolicy, error) {
	switch p := FailurePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyIsolate, nil
	case PolicyIsolate, PolicyAbort:
		return p, nil
	default:
		return "", fmt.Errorf("unknown batch failure policy %q", s)
	}
}

// Awaiter is satisfied by *ethwatch.Poller.
type Awaiter interface {
	AwaitAll(ctx context.Context, txs []ethwatch.Submitted) ([]ethwatch.ConfirmedReceipt, error)
}

type Failure struct {
	WalletIndex int
	Err         error
}

type BatchResult struct {
	Description string
	Submitted   []ethwatch.Submitted
	Receipts    []ethwatch.ConfirmedReceipt
	Failures    []Failure
}

type BatchError struct {
	Description string
	Aborted     bool
	Failures    []Failure
}

func (e *BatchError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.Err.Error())
	}
	verb := "failed for"
	if e.Aborted {
		verb = "aborted by"
	}
	return fmt.Sprintf("%s batch %s %d wallet(s): %s", e.Description, verb, len(e.Failures), strings.Join(parts, "; "))
}

func (e *BatchError) Unwrap() []error {
	out := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		out = append(out, f.Err)
	}
	return out
}

// Executor submits one operation per wallet concurrently, waits for every
// broadcast transaction in a single poller call and books the fees.
type Executor struct {
	Submitter *Submitter
	Poller    Awaiter
	Policy    FailurePolicy
}

type outcome struct {
	sub ethwatch.Submitted
	err error
}

func (e *Executor) Execute(ctx context.Context, ops []Operation, description string, fees *ledger.Fees) (BatchResult, error) {
	res := BatchResult{Description: description}
	if len(ops) == 0 {
		return res, nil
	}

	outcomes := make([]outcome, len(ops))
	var wg sync.WaitGroup
	for i, op := range ops {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub, err := e.Submitter.Submit(ctx, op, description)
			outcomes[i] = outcome{sub: sub, err: err}
		}()
	}
	wg.Wait()

	for i, o := range outcomes {
		if o.err != nil {
			res.Failures = append(res.Failures, Failure{WalletIndex: ops[i].WalletIndex, Err: o.err})
			continue
		}
		res.Submitted = append(res.Submitted, o.sub)
	}

	if err := ctx.Err(); err != nil {
		return res, err
	}

	var batchErr *BatchError
	if len(res.Failures) > 0 {
		batchErr = &BatchError{Description: description, Failures: res.Failures}
		if e.Policy == PolicyAbort {
			batchErr.Aborted = true
			log.Printf("[batch] %s: %d wallet(s) failed, abandoning %d broadcast tx(s)",
				description, len(res.Failures), len(res.Submitted))
			return res, batchErr
		}
		log.Printf("[batch] %s: %d wallet(s) failed, tracking the other %d",
			description, len(res.Failures), len(res.Submitted))
	}

	if len(res.Submitted) == 0 {
		// every op failed, so batchErr is set
		return res, batchErr
	}

	log.Printf("[batch] %s: waiting for %d tx(s)", description, len(res.Submitted))
	receipts, pollErr := e.Poller.AwaitAll(ctx, res.Submitted)
	res.Receipts = receipts

	for _, r := range receipts {
		fee := r.Fee()
		if fees != nil {
			fees.Add(r.WalletIndex, fee)
		}
		f, _ := new(big.Float).SetInt(fee.ToBig()).Float64()
		metrics.FeesWei.WithLabelValues(description).Add(f)
	}
	log.Printf("[batch] %s: %d/%d confirmed", description, len(receipts), len(res.Submitted))

	if pollErr != nil {
		pollErr = fmt.Errorf("%s: await confirmations: %w", description, pollErr)
		if batchErr != nil {
			return res, errors.Join(batchErr, pollErr)
		}
		return res, pollErr
	}
	if batchErr != nil {
		return res, batchErr
	}
	return res, nil
}
