package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/caraka15/taiko-bot/internal/storage"
	"github.com/caraka15/taiko-bot/internal/storage/pg"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Replays synthetic farm runs against Postgres: every run writes each wallet's
// tx twice (broadcast, then confirmed) and the run row, while /history style
// reads hit ListRuns in between.
func main() {
	var (
		dsn        = flag.String("dsn", "", "Postgres DSN")
		dur        = flag.Duration("dur", 30*time.Second, "test duration")
		rps        = flag.Int("rps", 200, "run writes per second")
		wallets    = flag.Int("wallets", 10, "wallets per run")
		iterations = flag.Int("iterations", 3, "iterations per run")
		reads      = flag.Int("reads", 5, "ListRuns calls per run write")
		workers    = flag.Int("workers", 32, "concurrent workers")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("dsn required")
	}

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, *dsn)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	repo := pg.New(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(ctx, *dur)
	defer cancel()

	lim := rate.NewLimiter(rate.Limit(*rps), *rps)
	st := &stats{startedAt: time.Now()}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(*workers)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for lim.Wait(gctx) == nil {
		seed := rng.Int63()
		g.Go(func() error {
			r := rand.New(rand.NewSource(seed))
			st.track(func() error { return writeRun(gctx, repo, r, *wallets, *iterations) }, true)
			for i := 0; i < *reads; i++ {
				st.track(func() error {
					_, err := repo.ListRuns(gctx, 10)
					return err
				}, false)
			}
			return nil
		})
	}
	_ = g.Wait()
	st.finishedAt = time.Now()

	st.print()
}

func writeRun(ctx context.Context, repo storage.Repository, r *rand.Rand, wallets, iterations int) error {
	runID := uuid.NewString()
	started := time.Now().UTC()
	total := uint64(0)

	kinds := []storage.TxKind{storage.KindDeposit, storage.KindWithdraw}
	for it := 1; it <= iterations; it++ {
		for w := 0; w < wallets; w++ {
			for _, kind := range kinds {
				rec := storage.TxRecord{
					Hash:        fmt.Sprintf("0x%016x%016x%032x", r.Uint64(), r.Uint64(), it),
					RunID:       runID,
					Kind:        kind,
					Iteration:   it,
					WalletIndex: w,
					FromAddr:    fmt.Sprintf("0x%040x", w+1),
				}
				if err := repo.UpsertTx(ctx, rec); err != nil {
					return err
				}

				bn := uint64(1_000_000 + r.Intn(1_000_000))
				gas := uint64(50_000 + r.Intn(50_000))
				price := uint64(10_000_000 + r.Intn(10_000_000))
				fee := gas * price
				total += fee

				gp, fw, ok := fmt.Sprint(price), fmt.Sprint(fee), uint8(1)
				rec.BlockNum, rec.GasUsed = &bn, &gas
				rec.EffectiveGasPriceWei, rec.FeeWei, rec.Status = &gp, &fw, &ok
				if err := repo.UpsertTx(ctx, rec); err != nil {
					return err
				}
			}
		}
	}

	return repo.SaveRun(ctx, storage.RunRecord{
		ID:                  runID,
		Mode:                "weth",
		StartedAt:           started,
		FinishedAt:          time.Now().UTC(),
		Iterations:          iterations,
		CompletedIterations: iterations,
		Wallets:             wallets,
		TotalFeeWei:         fmt.Sprint(total),
		Status:              storage.RunOK,
	})
}

type stats struct {
	writes, reads, errs atomic.Uint64

	mu        sync.Mutex
	writeLat  []time.Duration
	readLat   []time.Duration
	startedAt time.Time

	finishedAt time.Time
}

func (s *stats) track(fn func() error, write bool) {
	t0 := time.Now()
	err := fn()
	dt := time.Since(t0)

	if write {
		s.writes.Add(1)
	} else {
		s.reads.Add(1)
	}
	if err != nil {
		s.errs.Add(1)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if write {
		s.writeLat = append(s.writeLat, dt)
	} else {
		s.readLat = append(s.readLat, dt)
	}
}

func (s *stats) print() {
	d := s.finishedAt.Sub(s.startedAt)
	fmt.Printf("\n== REPORT ==\n")
	fmt.Printf("duration: %s\n", d)
	fmt.Printf("runs=%d list_runs=%d errors=%d\n", s.writes.Load(), s.reads.Load(), s.errs.Load())
	if d > 0 {
		fmt.Printf("throughput: %.2f runs/s\n", float64(s.writes.Load())/d.Seconds())
	}
	printLatency("run write", s.writeLat)
	printLatency("list runs", s.readLat)
}

func printLatency(name string, lat []time.Duration) {
	if len(lat) == 0 {
		fmt.Printf("%s: no samples\n", name)
		return
	}
	sort.Slice(lat, func(i, j int) bool { return lat[i] < lat[j] })
	p := func(q float64) time.Duration { return lat[int(q*float64(len(lat)-1))] }
	fmt.Printf("%s latency p50=%s p95=%s p99=%s max=%s\n", name, p(0.50), p(0.95), p(0.99), lat[len(lat)-1])
}
