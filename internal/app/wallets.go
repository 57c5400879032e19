package app

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/caraka15/taiko-bot/internal/farm"
	"github.com/caraka15/taiko-bot/internal/units"

	"github.com/ethereum/go-ethereum/crypto"
)

const privateKeyPrefix = "PRIVATE_KEY_"

var ErrNoWallets = errors.New("no PRIVATE_KEY_<n> variables set")

func ParseAmountRange(minStr, maxStr string) (farm.AmountRange, error) {
	lo, err := units.ParseEther(minStr)
	if err != nil {
		return farm.AmountRange{}, fmt.Errorf("min %q: %w", minStr, err)
	}
	hi, err := units.ParseEther(maxStr)
	if err != nil {
		return farm.AmountRange{}, fmt.Errorf("max %q: %w", maxStr, err)
	}
	if hi.Cmp(lo) < 0 {
		return farm.AmountRange{}, fmt.Errorf("max %s is below min %s", maxStr, minStr)
	}
	return farm.AmountRange{Min: lo, Max: hi}, nil
}

// ParseWalletRanges parses "n:min-max" entries separated by commas, keyed by
// the wallet number n (1-based, as in PRIVATE_KEY_<n>).
func ParseWalletRanges(s string) (map[int]farm.AmountRange, error) {
	out := make(map[int]farm.AmountRange)
	s = strings.TrimSpace(s)
	if s == "" {
		return out, nil
	}

	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		numStr, rng, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("entry %q: want n:min-max", part)
		}
		n, err := strconv.Atoi(strings.TrimSpace(numStr))
		if err != nil || n < 1 {
			return nil, fmt.Errorf("entry %q: bad wallet number", part)
		}
		minStr, maxStr, ok := strings.Cut(rng, "-")
		if !ok {
			return nil, fmt.Errorf("entry %q: want n:min-max", part)
		}
		r, err := ParseAmountRange(minStr, maxStr)
		if err != nil {
			return nil, fmt.Errorf("entry %q: %w", part, err)
		}
		if _, dup := out[n]; dup {
			return nil, fmt.Errorf("wallet %d listed twice", n)
		}
		out[n] = r
	}
	return out, nil
}

// LoadWallets builds wallets from PRIVATE_KEY_<n> entries in environ
// ("KEY=value" form, as returned by os.Environ). Wallets are ordered by n and
// get Index n-1. Wallets without an entry in ranges use def.
func LoadWallets(environ []string, def farm.AmountRange, ranges map[int]farm.AmountRange) ([]farm.Wallet, error) {
	type entry struct {
		n   int
		key string
	}
	var entries []entry
	seen := make(map[int]string)

	for _, kv := range environ {
		name, val, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, privateKeyPrefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(name, privateKeyPrefix))
		if err != nil || n < 1 {
			return nil, fmt.Errorf("%s: suffix must be a positive number", name)
		}
		val = strings.TrimSpace(val)
		if val == "" {
			continue
		}
		if prev, dup := seen[n]; dup {
			return nil, fmt.Errorf("%s and %s both map to wallet %d", prev, name, n)
		}
		seen[n] = name
		entries = append(entries, entry{n: n, key: val})
	}
	if len(entries) == 0 {
		return nil, ErrNoWallets
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].n < entries[j].n })

	wallets := make([]farm.Wallet, 0, len(entries))
	for _, e := range entries {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(e.key, "0x"))
		if err != nil {
			// значение ключа в ошибку не попадает
			return nil, fmt.Errorf("%s%d: invalid private key", privateKeyPrefix, e.n)
		}
		rng := def
		if r, ok := ranges[e.n]; ok {
			rng = r
		}
		wallets = append(wallets, farm.Wallet{
			Index:   e.n - 1,
			Address: crypto.PubkeyToAddress(key.PublicKey),
			Key:     key,
			Range:   rng,
		})
	}
	return wallets, nil
}
