package risk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"swap-guard/internal/domain"
)

// Default configuration values.
const (
	DefaultTimeout     = 5 * time.Second
	DefaultMaxRetries  = 1
	DefaultRetryDelay  = 200 * time.Millisecond
	DefaultMaxDelay    = 2 * time.Second
	DefaultBackoffMult = 2.0
)

// ErrInvalidResponse is returned when the model answers with an out-of-contract payload.
var ErrInvalidResponse = errors.New("invalid risk model response")

// HTTPScorer calls a remote risk model over HTTP JSON.
type HTTPScorer struct {
	endpoint    string
	apiKey      string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
}

// ScorerOption configures HTTPScorer.
type ScorerOption func(*HTTPScorer)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ScorerOption {
	return func(s *HTTPScorer) {
		s.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ScorerOption {
	return func(s *HTTPScorer) {
		s.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ScorerOption {
	return func(s *HTTPScorer) {
		s.retryDelay = d
	}
}

// WithAPIKey sets the bearer token sent with each request.
func WithAPIKey(key string) ScorerOption {
	return func(s *HTTPScorer) {
		s.apiKey = key
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ScorerOption {
	return func(s *HTTPScorer) {
		s.client = client
	}
}

// NewHTTPScorer creates a scorer for the model at endpoint.
func NewHTTPScorer(endpoint string, opts ...ScorerOption) *HTTPScorer {
	s := &HTTPScorer{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// scoreRequest is the model request body.
type scoreRequest struct {
	InputAsset  string         `json:"input_asset"`
	OutputAsset string         `json:"output_asset"`
	InputAmount uint64         `json:"input_amount"`
	Routes      []domain.Route `json:"routes"`
}

// scoreResponse is the model response body.
type scoreResponse struct {
	Score             *int                 `json:"score"`
	Factors           []string             `json:"factors"`
	Subscores         domain.RiskSubscores `json:"subscores"`
	RecommendedAction string               `json:"recommended_action"`
	Reasoning         string               `json:"reasoning"`
}

// Score posts the assessment to the model with retries and exponential backoff.
func (s *HTTPScorer) Score(ctx context.Context, a Assessment) (*domain.RiskResult, error) {
	body, err := json.Marshal(scoreRequest{
		InputAsset:  a.InputAsset,
		OutputAsset: a.OutputAsset,
		InputAmount: a.InputAmount,
		Routes:      a.Routes,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	delay := s.retryDelay
	var lastErr error

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * s.backoffMult)
			if delay > s.maxDelay {
				delay = s.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if s.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+s.apiKey)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		// Malformed payloads are not retried
		return parseScoreResponse(respBody)
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func parseScoreResponse(body []byte) (*domain.RiskResult, error) {
	var sr scoreResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if sr.Score == nil {
		return nil, fmt.Errorf("%w: missing score", ErrInvalidResponse)
	}
	if *sr.Score < 0 || *sr.Score > 100 {
		return nil, fmt.Errorf("%w: score %d out of range", ErrInvalidResponse, *sr.Score)
	}
	action := domain.RecommendedAction(sr.RecommendedAction)
	if !action.IsValid() {
		return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidResponse, sr.RecommendedAction)
	}

	return &domain.RiskResult{
		Score:   *sr.Score,
		Level:   domain.RiskLevelFor(*sr.Score),
		Factors: sr.Factors,
		Subscores: domain.RiskSubscores{
			Sandwich:   clampScore(sr.Subscores.Sandwich),
			Frontrun:   clampScore(sr.Subscores.Frontrun),
			Volatility: clampScore(sr.Subscores.Volatility),
		},
		RecommendedAction: action,
		Reasoning:         sr.Reasoning,
		Source:            domain.RiskSourceModel,
	}, nil
}

var _ Scorer = (*HTTPScorer)(nil)
