package app

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"os"
	"time"

	"github.com/caraka15/taiko-bot/internal/clock"
	"github.com/caraka15/taiko-bot/internal/contract"
	"github.com/caraka15/taiko-bot/internal/ethwatch"
	"github.com/caraka15/taiko-bot/internal/farm"
	"github.com/caraka15/taiko-bot/internal/offchain"
	"github.com/caraka15/taiko-bot/internal/report"
	"github.com/caraka15/taiko-bot/internal/schedule"
	"github.com/caraka15/taiko-bot/internal/storage"
	"github.com/caraka15/taiko-bot/internal/storage/pg"
	"github.com/caraka15/taiko-bot/internal/tg"
	"github.com/caraka15/taiko-bot/internal/txexec"
	"github.com/caraka15/taiko-bot/internal/units"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	tgbot "github.com/go-telegram/bot"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func Run(ctx context.Context) error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}

	// Validate already checked these.
	mode, _ := farm.ParseMode(cfg.Mode)
	policy, _ := txexec.ParsePolicy(cfg.BatchFailurePolicy)
	hour, minute, _ := schedule.ParseClock(cfg.ScheduledTime)
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("load timezone: %w", err)
	}

	wallets, err := loadWallets(cfg, mode)
	if err != nil {
		return err
	}

	ethCl, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("dial rpc: %w", err)
	}
	defer ethCl.Close()

	chainID, err := ethCl.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("chain id: %w", err)
	}

	checkers := dialCheckers(ctx, cfg.CheckerRPCURLs)
	defer func() {
		for _, c := range checkers {
			c.Close()
		}
	}()
	readers := make([]ethwatch.Reader, 0, len(checkers))
	for _, c := range checkers {
		readers = append(readers, c)
	}

	repo, closeRepo, err := openRepository(ctx, cfg.PostgresURL)
	if err != nil {
		return err
	}
	defer closeRepo()

	clk := clock.Real()

	poller := ethwatch.NewPoller(ethCl, ethwatch.NewPool(readers...), clk, ethwatch.PollerConfig{
		Required: cfg.RequiredConfirmations,
		Interval: cfg.PollInterval,
		MaxWait:  cfg.ConfirmMaxWait,
		MaxPolls: cfg.ConfirmMaxPolls,
	})
	executor := &txexec.Executor{
		Submitter: &txexec.Submitter{
			MaxAttempts: cfg.MaxRetries,
			RetryDelay:  cfg.RetryDelay,
			Clock:       clk,
		},
		Poller: poller,
		Policy: policy,
	}

	scores, err := offchain.NewScoreClient(cfg.PointsAPIURL, cfg.PointsRPS)
	if err != nil {
		return fmt.Errorf("score client: %w", err)
	}

	controller, iterations, interval, err := newController(cfg, mode, ethCl, chainID, scores, executor, repo, clk)
	if err != nil {
		return err
	}

	sched := schedule.New(schedule.Config{
		Hour:     hour,
		Minute:   minute,
		Location: loc,
		RunNow:   cfg.RunNow,
	})

	var notifier report.Notifier = report.LogNotifier{}
	if cfg.TelegramToken != "" {
		b, err := tgbot.New(cfg.TelegramToken,
			tgbot.WithWorkers(2),
			tgbot.WithNotAsyncHandlers(),
		)
		if err != nil {
			return fmt.Errorf("telegram bot init: %w", err)
		}
		notifier = tg.NewService(b, cfg.TelegramChatID, repo, sched, string(mode), loc)
		go b.Start(ctx)
	}

	if cfg.MetricsAddr != "" {
		go func() {
			if err := serveMetrics(ctx, cfg.MetricsAddr); err != nil {
				log.Printf("[app] metrics server stopped: %v", err)
			}
		}()
	}

	runner := &farm.Runner{
		Controller: controller,
		Iterations: iterations,
		Interval:   interval,
		Clock:      clk,
		Repo:       repo,
		Rates:      offchain.NewRateClient(cfg.PriceAPIURL),
		Notifier:   notifier,
		Location:   loc,
	}

	log.Printf("[app] started. mode=%s chain_id=%s wallets=%d checkers=%d policy=%s schedule=%s %s",
		mode, chainID.String(), len(wallets), len(checkers), policy, cfg.ScheduledTime, loc)

	return sched.Start(ctx, func(ctx context.Context) {
		runner.Run(ctx, wallets)
	})
}

func loadWallets(cfg Config, mode farm.Mode) ([]farm.Wallet, error) {
	var (
		def    farm.AmountRange
		ranges map[int]farm.AmountRange
		err    error
	)
	if mode == farm.ModeWeth {
		def, err = ParseAmountRange(cfg.Weth.AmountMin, cfg.Weth.AmountMax)
		if err != nil {
			return nil, err
		}
		ranges, err = ParseWalletRanges(cfg.Weth.WalletRanges)
		if err != nil {
			return nil, err
		}
	}

	wallets, err := LoadWallets(os.Environ(), def, ranges)
	if err != nil {
		return nil, fmt.Errorf("load wallets: %w", err)
	}
	for _, w := range wallets {
		log.Printf("[app] %s: %s", w.Label(), w.Address.Hex())
	}
	return wallets, nil
}

// dialCheckers connects the read-only confirmation endpoints. Endpoints that
// fail to dial are skipped; the poller then leans on the primary.
func dialCheckers(ctx context.Context, urls []string) []*ethclient.Client {
	out := make([]*ethclient.Client, 0, len(urls))
	for _, u := range urls {
		if u == "" {
			continue
		}
		c, err := ethclient.DialContext(ctx, u)
		if err != nil {
			log.Printf("[app] checker %s skipped: %v", u, err)
			continue
		}
		out = append(out, c)
	}
	return out
}

func openRepository(ctx context.Context, url string) (storage.Repository, func(), error) {
	if url == "" {
		log.Printf("[app] POSTGRES_URL not set, run history is not persisted")
		return storage.Nop{}, func() {}, nil
	}

	pgPool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("pgxpool new: %w", err)
	}

	repo := pg.New(pgPool)
	if err := repo.EnsureSchema(ctx); err != nil {
		pgPool.Close()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}
	return repo, pgPool.Close, nil
}

func newController(
	cfg Config,
	mode farm.Mode,
	ethCl *ethclient.Client,
	chainID *big.Int,
	scores farm.ScoreSource,
	batch farm.BatchRunner,
	repo storage.Repository,
	clk clock.Clock,
) (farm.Controller, int, time.Duration, error) {
	switch mode {
	case farm.ModeVote:
		parsed, err := contract.LoadABI(cfg.Vote.ABIPath, contract.VoteABI, "vote")
		if err != nil {
			return nil, 0, 0, fmt.Errorf("vote abi: %w", err)
		}
		maxFee, _ := units.ParseGwei(cfg.Vote.MaxFeeGwei)
		tip, _ := units.ParseGwei(cfg.Vote.MaxPriorityFeeGwei)

		vote := contract.NewVote(common.HexToAddress(cfg.Vote.ContractAddress), parsed, ethCl, chainID, contract.DynamicGas{
			MaxFee:         maxFee,
			MaxPriorityFee: tip,
			GasLimit:       cfg.Vote.GasLimit,
		})
		log.Printf("[app] vote contract %s", vote.Address().Hex())

		return &farm.VoteController{
			Contract: vote,
			Balances: ethCl,
			Scores:   scores,
			Batch:    batch,
			Repo:     repo,
			Clock:    clk,
		}, cfg.Vote.Iterations, cfg.Vote.Interval, nil

	default:
		parsed, err := contract.LoadABI(cfg.Weth.ABIPath, contract.WETHABI, "deposit", "withdraw", "balanceOf")
		if err != nil {
			return nil, 0, 0, fmt.Errorf("weth abi: %w", err)
		}
		gasPrice, _ := units.ParseGwei(cfg.Weth.GasPriceGwei)

		weth := contract.NewWETH(cfg.Weth.contractAddress(), parsed, ethCl, chainID, contract.LegacyGas{
			GasPrice:         gasPrice,
			DepositGasLimit:  cfg.Weth.DepositGasLimit,
			WithdrawGasLimit: cfg.Weth.WithdrawGasLimit,
		})
		log.Printf("[app] weth contract %s", weth.Address().Hex())

		return &farm.WethController{
			Contract:       weth,
			Balances:       ethCl,
			Scores:         scores,
			Batch:          batch,
			Repo:           repo,
			Clock:          clk,
			SettleInterval: cfg.Weth.settleInterval(),
		}, cfg.Weth.Iterations, cfg.Weth.Interval, nil
	}
}

func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			log.Printf("[app] metrics shutdown: %v", err)
		}
	}()

	log.Printf("[app] metrics on %s/metrics", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
