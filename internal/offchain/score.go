package offchain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/caraka15/taiko-bot/internal/metrics"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/time/rate"
)

const (
	DefaultScoreURL = "https://trailblazer.mainnet.taiko.xyz"

	// DefaultUserAgent mimics a browser UA, the API rejects bare clients.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36"
)

var ErrInvalidResponse = errors.New("invalid API response format")

type BreakdownItem struct {
	Event       string  `json:"event"`
	TotalPoints float64 `json:"total_points"`
}

type Score struct {
	TotalPoints       float64
	TransactionPoints float64
	ValuePoints       float64
	Rank              int
	Total             int
	Multiplier        float64
}

type rankResponse struct {
	TotalScore *float64        `json:"totalScore"`
	Score      *float64        `json:"score"`
	Rank       int             `json:"rank"`
	Total      int             `json:"total"`
	Multiplier float64         `json:"multiplier"`
	Breakdown  []BreakdownItem `json:"breakdown"`
}

type ScoreClient struct {
	host       string
	httpClient *http.Client
	limiter    *rate.Limiter
	userAgent  string
}

// NewScoreClient builds a client for the rank API. rps <= 0 disables rate limiting.
func NewScoreClient(host string, rps float64) (*ScoreClient, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		host = DefaultScoreURL
	}
	host = strings.TrimRight(host, "/")

	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("score api url parse %q: %w", host, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, fmt.Errorf("score api url must be http(s), got %q", host)
	}

	lim := rate.NewLimiter(rate.Inf, 1)
	if rps > 0 {
		lim = rate.NewLimiter(rate.Limit(rps), 1)
	}

	return &ScoreClient{
		host:       host,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    lim,
		userAgent:  DefaultUserAgent,
	}, nil
}

func (c *ScoreClient) Fetch(ctx context.Context, addr common.Address) (Score, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Score{}, err
	}

	q := url.Values{}
	q.Set("address", addr.Hex())
	endpoint := c.host + "/s3/user/rank?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Score{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Origin", DefaultScoreURL)
	req.Header.Set("Referer", DefaultScoreURL+"/")
	req.Header.Set("Sec-Fetch-Dest", "empty")
	req.Header.Set("Sec-Fetch-Mode", "cors")
	req.Header.Set("Sec-Fetch-Site", "same-origin")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.OffchainRequests.WithLabelValues("score", "network_error").Inc()
		return Score{}, fmt.Errorf("score request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		metrics.OffchainRequests.WithLabelValues("score", "network_error").Inc()
		return Score{}, fmt.Errorf("score read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		metrics.OffchainRequests.WithLabelValues("score", "http_error").Inc()
		return Score{}, fmt.Errorf("score api status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out rankResponse
	if err := json.Unmarshal(body, &out); err != nil {
		metrics.OffchainRequests.WithLabelValues("score", "invalid").Inc()
		return Score{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if out.Breakdown == nil {
		metrics.OffchainRequests.WithLabelValues("score", "invalid").Inc()
		return Score{}, ErrInvalidResponse
	}
	metrics.OffchainRequests.WithLabelValues("score", "ok").Inc()

	s := Score{
		Rank:       out.Rank,
		Total:      out.Total,
		Multiplier: out.Multiplier,
	}
	switch {
	case out.TotalScore != nil && *out.TotalScore != 0:
		s.TotalPoints = *out.TotalScore
	case out.Score != nil:
		s.TotalPoints = *out.Score
	}
	for _, b := range out.Breakdown {
		switch b.Event {
		case "Transaction":
			s.TransactionPoints = b.TotalPoints
		case "TransactionValue":
			s.ValuePoints = b.TotalPoints
		}
	}
	return s, nil
}
