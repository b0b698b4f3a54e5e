package risk

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"swap-guard/internal/domain"
)

func testAssessment(risks ...int) Assessment {
	venues := []domain.Venue{domain.VenueJupiter, domain.VenueRaydium, domain.VenueOrca}
	a := Assessment{InputAsset: "SOL", OutputAsset: "USDC", InputAmount: 1_000_000}
	for i, r := range risks {
		a.Routes = append(a.Routes, domain.Route{
			Venue:           venues[i%len(venues)],
			EstimatedOutput: 990_000,
			RiskScore:       r,
		})
	}
	return a
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestLocalRule_MeanAndThresholds(t *testing.T) {
	tests := []struct {
		name   string
		risks  []int
		score  int
		level  domain.RiskLevel
		action domain.RecommendedAction
		mev    bool
	}{
		{"low", []int{10, 20, 30}, 20, domain.RiskLevelLow, domain.ActionDirect, false},
		{"boundary 30", []int{30, 30}, 30, domain.RiskLevelLow, domain.ActionDirect, false},
		{"medium direct", []int{40, 60}, 50, domain.RiskLevelMedium, domain.ActionDirect, true},
		{"medium protect", []int{50, 53}, 52, domain.RiskLevelMedium, domain.ActionProtect, true},
		{"high", []int{80, 90}, 85, domain.RiskLevelHigh, domain.ActionProtect, true},
		{"critical", []int{95, 100}, 98, domain.RiskLevelCritical, domain.ActionProtect, true},
		{"no routes", nil, 0, domain.RiskLevelLow, domain.ActionDirect, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := LocalRule(testAssessment(tc.risks...), "test")
			if res.Score != tc.score {
				t.Errorf("score = %d, want %d", res.Score, tc.score)
			}
			if res.Level != tc.level {
				t.Errorf("level = %s, want %s", res.Level, tc.level)
			}
			if res.RecommendedAction != tc.action {
				t.Errorf("action = %s, want %s", res.RecommendedAction, tc.action)
			}
			if domain.IsMevDetected(res.Score) != tc.mev {
				t.Errorf("mev = %v, want %v", domain.IsMevDetected(res.Score), tc.mev)
			}
			if res.Source != domain.RiskSourceFallback {
				t.Errorf("source = %s, want fallback", res.Source)
			}
		})
	}
}

func TestLocalRule_HighRouteFactors(t *testing.T) {
	res := LocalRule(testAssessment(10, 75, 20), "")
	if len(res.Factors) != 1 {
		t.Fatalf("expected 1 factor, got %v", res.Factors)
	}
	if res.Subscores.Sandwich != 75 {
		t.Errorf("sandwich subscore = %d, want 75", res.Subscores.Sandwich)
	}
}

func modelServer(t *testing.T, status int, body interface{}) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		var req scoreRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		switch b := body.(type) {
		case string:
			io.WriteString(w, b)
		default:
			json.NewEncoder(w).Encode(b)
		}
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func TestHTTPScorer_Success(t *testing.T) {
	server, _ := modelServer(t, http.StatusOK, map[string]interface{}{
		"score":              72,
		"factors":            []string{"thin pool"},
		"subscores":          map[string]int{"sandwich": 80, "frontrun": 40, "volatility": 10},
		"recommended_action": "protect",
		"reasoning":          "pool is thin",
	})

	scorer := NewHTTPScorer(server.URL, WithMaxRetries(0))
	res, err := scorer.Score(context.Background(), testAssessment(10, 20))
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if res.Score != 72 || res.Level != domain.RiskLevelHigh {
		t.Errorf("got score %d level %s, want 72 HIGH", res.Score, res.Level)
	}
	if res.Source != domain.RiskSourceModel {
		t.Errorf("source = %s, want model", res.Source)
	}
	if res.Subscores.Sandwich != 80 {
		t.Errorf("sandwich = %d, want 80", res.Subscores.Sandwich)
	}
}

func TestHTTPScorer_RetriesServerError(t *testing.T) {
	server, calls := modelServer(t, http.StatusInternalServerError, "boom")

	scorer := NewHTTPScorer(server.URL, WithMaxRetries(2), WithRetryDelay(time.Millisecond))
	if _, err := scorer.Score(context.Background(), testAssessment(10)); err == nil {
		t.Fatal("expected error")
	}
	if got := atomic.LoadInt32(calls); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestHTTPScorer_InvalidPayloadNotRetried(t *testing.T) {
	tests := []struct {
		name string
		body interface{}
	}{
		{"bad json", "{not json"},
		{"missing score", map[string]interface{}{"recommended_action": "direct"}},
		{"score out of range", map[string]interface{}{"score": 140, "recommended_action": "direct"}},
		{"unknown action", map[string]interface{}{"score": 40, "recommended_action": "panic"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server, calls := modelServer(t, http.StatusOK, tc.body)
			scorer := NewHTTPScorer(server.URL, WithMaxRetries(3), WithRetryDelay(time.Millisecond))
			_, err := scorer.Score(context.Background(), testAssessment(10))
			if err == nil {
				t.Fatal("expected error")
			}
			if got := atomic.LoadInt32(calls); got != 1 {
				t.Errorf("expected 1 attempt, got %d", got)
			}
		})
	}
}

func TestFallbackScorer_ModelResult(t *testing.T) {
	server, _ := modelServer(t, http.StatusOK, map[string]interface{}{
		"score":              12,
		"recommended_action": "direct",
	})

	scorer := WithFallback(NewHTTPScorer(server.URL), time.Second, quietLogger())
	res, err := scorer.Score(context.Background(), testAssessment(90, 90))
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if res.Source != domain.RiskSourceModel || res.Score != 12 {
		t.Errorf("got %s/%d, want model/12", res.Source, res.Score)
	}
}

func TestFallbackScorer_ServerErrorFallsBack(t *testing.T) {
	server, _ := modelServer(t, http.StatusInternalServerError, "down")

	scorer := WithFallback(NewHTTPScorer(server.URL, WithMaxRetries(0)), time.Second, quietLogger())
	res, err := scorer.Score(context.Background(), testAssessment(40, 60))
	if err != nil {
		t.Fatalf("fallback scorer must not fail: %v", err)
	}
	if res.Source != domain.RiskSourceFallback || res.Score != 50 {
		t.Errorf("got %s/%d, want fallback/50", res.Source, res.Score)
	}
}

func TestFallbackScorer_MalformedFallsBack(t *testing.T) {
	server, _ := modelServer(t, http.StatusOK, map[string]interface{}{"score": -5, "recommended_action": "direct"})

	scorer := WithFallback(NewHTTPScorer(server.URL), time.Second, quietLogger())
	res, _ := scorer.Score(context.Background(), testAssessment(20))
	if res.Source != domain.RiskSourceFallback {
		t.Errorf("source = %s, want fallback", res.Source)
	}
}

// blockingScorer ignores ctx and never returns until released.
type blockingScorer struct {
	release chan struct{}
}

func (b *blockingScorer) Score(ctx context.Context, a Assessment) (*domain.RiskResult, error) {
	<-b.release
	return &domain.RiskResult{Score: 1, Source: domain.RiskSourceModel}, nil
}

func TestFallbackScorer_TimeoutEnforced(t *testing.T) {
	inner := &blockingScorer{release: make(chan struct{})}
	defer close(inner.release)

	scorer := WithFallback(inner, 50*time.Millisecond, quietLogger())

	start := time.Now()
	res, err := scorer.Score(context.Background(), testAssessment(35, 35))
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if elapsed > time.Second {
		t.Errorf("timeout not enforced, took %v", elapsed)
	}
	if res.Source != domain.RiskSourceFallback || res.Score != 35 {
		t.Errorf("got %s/%d, want fallback/35", res.Source, res.Score)
	}
	if !domain.IsMevDetected(res.Score) {
		t.Error("expected MEV detected for score 35")
	}
}

func TestFallbackScorer_SlowServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	scorer := WithFallback(NewHTTPScorer(server.URL, WithMaxRetries(0)), 50*time.Millisecond, quietLogger())
	res, _ := scorer.Score(context.Background(), testAssessment(10, 20))
	if res.Source != domain.RiskSourceFallback {
		t.Errorf("source = %s, want fallback", res.Source)
	}
	if domain.IsMevDetected(res.Score) {
		t.Errorf("score %d should not be flagged", res.Score)
	}
}

func TestFallbackScorer_NilInner(t *testing.T) {
	scorer := WithFallback(nil, 0, quietLogger())
	res, err := scorer.Score(context.Background(), testAssessment(80))
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if res.Source != domain.RiskSourceFallback || res.RecommendedAction != domain.ActionProtect {
		t.Errorf("got %s/%s, want fallback/protect", res.Source, res.RecommendedAction)
	}
}
