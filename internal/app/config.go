package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/caraka15/taiko-bot/internal/contract"
	"github.com/caraka15/taiko-bot/internal/farm"
	"github.com/caraka15/taiko-bot/internal/offchain"
	"github.com/caraka15/taiko-bot/internal/schedule"
	"github.com/caraka15/taiko-bot/internal/txexec"
	"github.com/caraka15/taiko-bot/internal/units"

	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

type Config struct {
	Mode   string `env:"MODE"`
	RunNow bool   `env:"RUN_NOW"`

	RPCURL         string   `env:"RPC_URL"`
	CheckerRPCURLs []string `env:"CHECKER_RPC_URLS" envSeparator:","`

	Timezone      string `env:"TIMEZONE"`
	ScheduledTime string `env:"SCHEDULED_TIME"`

	RequiredConfirmations uint64        `env:"REQUIRED_CONFIRMATIONS"`
	MaxRetries            int           `env:"MAX_RETRIES"`
	RetryDelay            time.Duration `env:"RETRY_DELAY"`
	PollInterval          time.Duration `env:"POLL_INTERVAL"`
	// 0 waits for confirmations without a bound.
	ConfirmMaxWait     time.Duration `env:"CONFIRM_MAX_WAIT"`
	ConfirmMaxPolls    int           `env:"CONFIRM_MAX_POLLS"`
	BatchFailurePolicy string        `env:"BATCH_FAILURE_POLICY"`

	Weth WethConfig `envPrefix:"WETH_"`
	Vote VoteConfig `envPrefix:"VOTE_"`

	TelegramToken  string `env:"TELEGRAM_TOKEN"`
	TelegramChatID int64  `env:"TELEGRAM_CHAT_ID"`

	PostgresURL string `env:"POSTGRES_URL"`

	PointsAPIURL string  `env:"POINTS_API_URL"`
	PriceAPIURL  string  `env:"PRICE_API_URL"`
	PointsRPS    float64 `env:"POINTS_RPS"`

	MetricsAddr string `env:"METRICS_ADDR"`
}

type WethConfig struct {
	Iterations int           `env:"ITERATIONS"`
	Interval   time.Duration `env:"INTERVAL"`
	// 0 reuses Interval.
	SettleInterval time.Duration `env:"SETTLE_INTERVAL"`

	GasPriceGwei     string `env:"GAS_PRICE_GWEI"`
	DepositGasLimit  uint64 `env:"DEPOSIT_GAS_LIMIT"`
	WithdrawGasLimit uint64 `env:"WITHDRAW_GAS_LIMIT"`

	ContractAddress string `env:"CONTRACT_ADDRESS"`
	ABIPath         string `env:"ABI_PATH"`

	AmountMin string `env:"AMOUNT_MIN"`
	AmountMax string `env:"AMOUNT_MAX"`
	// "1:0.001-0.003,2:0.002-0.004"
	WalletRanges string `env:"WALLET_RANGES"`
}

type VoteConfig struct {
	Iterations int           `env:"ITERATIONS"`
	Interval   time.Duration `env:"INTERVAL"`

	MaxFeeGwei         string `env:"MAX_FEE_GWEI"`
	MaxPriorityFeeGwei string `env:"MAX_PRIORITY_FEE_GWEI"`
	GasLimit           uint64 `env:"GAS_LIMIT"`

	ContractAddress string `env:"CONTRACT_ADDRESS"`
	ABIPath         string `env:"ABI_PATH"`
}

func defaultConfig() Config {
	return Config{
		Mode:                  string(farm.ModeWeth),
		RPCURL:                "https://rpc.taiko.tools/",
		Timezone:              "Asia/Jakarta",
		ScheduledTime:         "07:00",
		RequiredConfirmations: 9,
		MaxRetries:            txexec.DefaultMaxAttempts,
		RetryDelay:            txexec.DefaultRetryDelay,
		PollInterval:          5 * time.Second,
		ConfirmMaxWait:        30 * time.Minute,
		BatchFailurePolicy:    string(txexec.PolicyIsolate),
		Weth: WethConfig{
			Iterations:   70,
			Interval:     30 * time.Second,
			GasPriceGwei: "0.2",
			AmountMin:    "0.001",
			AmountMax:    "0.003",
		},
		Vote: VoteConfig{
			Iterations:         70,
			Interval:           30 * time.Second,
			MaxFeeGwei:         "0.25",
			MaxPriorityFeeGwei: "0.12",
		},
		PointsAPIURL: offchain.DefaultScoreURL,
		PriceAPIURL:  offchain.DefaultPriceURL,
		PointsRPS:    2,
	}
}

func LoadConfig() (Config, error) {
	err := godotenv.Load()
	if err != nil {
		fmt.Println("Warning: .env file not found, relying on environment variables")
	}

	config := defaultConfig()

	if err := env.Parse(&config); err != nil {
		return Config{}, err
	}
	if err := config.Validate(); err != nil {
		return Config{}, err
	}

	return config, nil
}

func (c Config) Validate() error {
	var errs []error

	mode, err := farm.ParseMode(c.Mode)
	if err != nil {
		errs = append(errs, err)
	}
	if c.RPCURL == "" {
		errs = append(errs, errors.New("RPC_URL is empty"))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("TIMEZONE: %w", err))
	}
	if _, _, err := schedule.ParseClock(c.ScheduledTime); err != nil {
		errs = append(errs, fmt.Errorf("SCHEDULED_TIME: %w", err))
	}
	if c.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("MAX_RETRIES must be >= 1, got %d", c.MaxRetries))
	}
	if c.ConfirmMaxWait < 0 || c.ConfirmMaxPolls < 0 {
		errs = append(errs, errors.New("CONFIRM_MAX_WAIT and CONFIRM_MAX_POLLS must not be negative"))
	}
	if _, err := txexec.ParsePolicy(c.BatchFailurePolicy); err != nil {
		errs = append(errs, err)
	}
	if c.TelegramToken != "" && c.TelegramChatID == 0 {
		errs = append(errs, errors.New("TELEGRAM_CHAT_ID is required with TELEGRAM_TOKEN"))
	}

	switch mode {
	case farm.ModeWeth:
		errs = append(errs, c.Weth.validate()...)
	case farm.ModeVote:
		errs = append(errs, c.Vote.validate()...)
	}

	return errors.Join(errs...)
}

func (w WethConfig) validate() []error {
	var errs []error
	if w.Iterations < 1 {
		errs = append(errs, fmt.Errorf("WETH_ITERATIONS must be >= 1, got %d", w.Iterations))
	}
	if _, err := units.ParseGwei(w.GasPriceGwei); err != nil {
		errs = append(errs, fmt.Errorf("WETH_GAS_PRICE_GWEI: %w", err))
	}
	if w.ContractAddress != "" && !common.IsHexAddress(w.ContractAddress) {
		errs = append(errs, fmt.Errorf("WETH_CONTRACT_ADDRESS: invalid address %q", w.ContractAddress))
	}
	if _, err := ParseAmountRange(w.AmountMin, w.AmountMax); err != nil {
		errs = append(errs, fmt.Errorf("WETH_AMOUNT_MIN/MAX: %w", err))
	}
	if _, err := ParseWalletRanges(w.WalletRanges); err != nil {
		errs = append(errs, fmt.Errorf("WETH_WALLET_RANGES: %w", err))
	}
	return errs
}

func (v VoteConfig) validate() []error {
	var errs []error
	if v.Iterations < 1 {
		errs = append(errs, fmt.Errorf("VOTE_ITERATIONS must be >= 1, got %d", v.Iterations))
	}
	if !common.IsHexAddress(v.ContractAddress) {
		errs = append(errs, fmt.Errorf("VOTE_CONTRACT_ADDRESS: invalid address %q", v.ContractAddress))
	}
	if _, err := units.ParseGwei(v.MaxFeeGwei); err != nil {
		errs = append(errs, fmt.Errorf("VOTE_MAX_FEE_GWEI: %w", err))
	}
	if _, err := units.ParseGwei(v.MaxPriorityFeeGwei); err != nil {
		errs = append(errs, fmt.Errorf("VOTE_MAX_PRIORITY_FEE_GWEI: %w", err))
	}
	return errs
}

func (w WethConfig) settleInterval() time.Duration {
	if w.SettleInterval > 0 {
		return w.SettleInterval
	}
	return w.Interval
}

func (w WethConfig) contractAddress() common.Address {
	if w.ContractAddress == "" {
		return contract.DefaultWETHAddress
	}
	return common.HexToAddress(w.ContractAddress)
}
