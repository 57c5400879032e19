package offchain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/caraka15/taiko-bot/internal/metrics"
)

const DefaultPriceURL = "https://api.coingecko.com/api/v3"

type RateClient struct {
	host       string
	httpClient *http.Client
}

func NewRateClient(host string) *RateClient {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if host == "" {
		host = DefaultPriceURL
	}
	return &RateClient{
		host:       host,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// NativeUSD returns the ETH/USD rate. Callers fall back to ETH-only output on error.
func (c *RateClient) NativeUSD(ctx context.Context) (float64, error) {
	endpoint := c.host + "/simple/price?ids=ethereum&vs_currencies=usd"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.OffchainRequests.WithLabelValues("price", "network_error").Inc()
		return 0, fmt.Errorf("price request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		metrics.OffchainRequests.WithLabelValues("price", "network_error").Inc()
		return 0, fmt.Errorf("price read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		metrics.OffchainRequests.WithLabelValues("price", "http_error").Inc()
		return 0, fmt.Errorf("price api status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out map[string]map[string]float64
	if err := json.Unmarshal(body, &out); err != nil {
		metrics.OffchainRequests.WithLabelValues("price", "invalid").Inc()
		return 0, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	usd := out["ethereum"]["usd"]
	if usd <= 0 {
		metrics.OffchainRequests.WithLabelValues("price", "invalid").Inc()
		return 0, fmt.Errorf("%w: no ethereum/usd rate", ErrInvalidResponse)
	}
	metrics.OffchainRequests.WithLabelValues("price", "ok").Inc()
	return usd, nil
}
