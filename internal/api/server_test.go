package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swap-guard/internal/batch"
	"swap-guard/internal/domain"
	"swap-guard/internal/notify"
	"swap-guard/internal/pipeline"
	"swap-guard/internal/risk"
	"swap-guard/internal/routing"
	"swap-guard/internal/settlement"
	"swap-guard/internal/storage/memory"
)

type staticScorer struct {
	score int
}

func (s staticScorer) Score(ctx context.Context, a risk.Assessment) (*domain.RiskResult, error) {
	return &domain.RiskResult{
		Score:             s.score,
		Level:             domain.RiskLevelFor(s.score),
		Factors:           []string{"sandwich bots observed"},
		Subscores:         domain.RiskSubscores{Sandwich: s.score},
		RecommendedAction: domain.ActionProtect,
		Reasoning:         "static",
		Source:            domain.RiskSourceModel,
	}, nil
}

type testEnv struct {
	server *httptest.Server
	hub    *notify.Hub
}

func newTestEnv(t *testing.T, score int) *testEnv {
	t.Helper()
	logger := log.New(io.Discard, "", 0)
	hub := notify.NewHub(logger)
	batches := memory.NewBatchStore()

	coord, err := batch.NewCoordinator(batch.Options{
		Config:    batch.Config{SizeThreshold: 5, TimeThreshold: time.Hour, CommitTimeout: time.Second},
		Store:     batches,
		Committer: settlement.NewStubCommitter(0),
		Publisher: hub,
		Logger:    logger,
	})
	require.NoError(t, err)

	sim, err := routing.NewSimulator(7, nil)
	require.NoError(t, err)

	svc, err := pipeline.New(pipeline.Options{
		TransactionStore:  memory.NewTransactionStore(),
		BatchStore:        batches,
		ProofStore:        memory.NewProofStore(),
		StatsStore:        memory.NewStatsStore(),
		SettingsStore:     memory.NewSettingsStore(),
		ExecutionLogStore: memory.NewExecutionLogStore(),
		Quoter:            sim,
		Scorer:            staticScorer{score: score},
		Coordinator:       coord,
		Publisher:         hub,
		Logger:            logger,
	})
	require.NoError(t, err)

	srv := New(Options{Service: svc, Hub: hub, Logger: logger})
	server := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		server.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		coord.Close(ctx)
	})
	return &testEnv{server: server, hub: hub}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func (e *testEnv) simulate(t *testing.T, identity string) *domain.Transaction {
	t.Helper()
	status, body := e.do(t, http.MethodPost, "/api/protect/simulate", domain.ProtectionRequest{
		Identity:    identity,
		InputAsset:  "SOL",
		OutputAsset: "USDC",
		InputAmount: 2_000_000_000,
	})
	require.Equal(t, http.StatusOK, status, string(body))
	var tx domain.Transaction
	require.NoError(t, json.Unmarshal(body, &tx))
	return &tx
}

func errorMessage(t *testing.T, body []byte) string {
	t.Helper()
	var payload map[string]string
	require.NoError(t, json.Unmarshal(body, &payload), string(body))
	return payload["error"]
}

func TestSimulateExecuteFlow(t *testing.T) {
	env := newTestEnv(t, 20)

	tx := env.simulate(t, "alice")
	assert.Equal(t, domain.TxStatusSimulating, tx.Status)
	assert.Equal(t, 20, tx.RiskScore)
	require.NotNil(t, tx.BatchID)

	status, body := env.do(t, http.MethodPost, "/api/protect/execute", pipeline.ExecuteRequest{
		TransactionID:     tx.ID,
		UseProtectedRoute: true,
	})
	require.Equal(t, http.StatusOK, status, string(body))
	var done domain.Transaction
	require.NoError(t, json.Unmarshal(body, &done))
	assert.Equal(t, domain.TxStatusCompleted, done.Status)
	require.NotNil(t, done.ExecutedRoute)
	assert.Equal(t, tx.SelectedRoute, *done.ExecutedRoute)

	status, body = env.do(t, http.MethodGet, "/api/transaction/"+tx.ID, nil)
	require.Equal(t, http.StatusOK, status)
	var got domain.Transaction
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, domain.TxStatusCompleted, got.Status)

	status, body = env.do(t, http.MethodGet, "/api/transactions/alice", nil)
	require.Equal(t, http.StatusOK, status)
	var list []domain.Transaction
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Len(t, list, 1)

	status, body = env.do(t, http.MethodGet, "/api/stats/alice", nil)
	require.Equal(t, http.StatusOK, status)
	var st domain.IdentityStats
	require.NoError(t, json.Unmarshal(body, &st))
	assert.Equal(t, int64(1), st.TotalTransactions)
	assert.Equal(t, int64(1), st.ProtectedRouteCount)

	status, body = env.do(t, http.MethodGet, "/api/proof/"+tx.ID, nil)
	require.Equal(t, http.StatusOK, status)
	var p domain.ProofOfRoute
	require.NoError(t, json.Unmarshal(body, &p))
	assert.Equal(t, tx.ProofHash, p.ProofHash)

	status, body = env.do(t, http.MethodGet, "/api/proof/"+tx.ID+"/verify?hash="+tx.ProofHash, nil)
	require.Equal(t, http.StatusOK, status)
	var vr verifyResponse
	require.NoError(t, json.Unmarshal(body, &vr))
	assert.True(t, vr.Valid)

	status, body = env.do(t, http.MethodGet, "/api/proof/"+tx.ID+"/verify?hash=deadbeef", nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &vr))
	assert.False(t, vr.Valid)

	status, _ = env.do(t, http.MethodGet, "/api/proof/"+tx.ID+"/verify", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = env.do(t, http.MethodGet, "/api/executions/alice?limit=10", nil)
	require.Equal(t, http.StatusOK, status)
	var records []domain.ExecutionRecord
	require.NoError(t, json.Unmarshal(body, &records))
	require.Len(t, records, 1)
	assert.Equal(t, tx.ID, records[0].TransactionID)

	status, _ = env.do(t, http.MethodGet, "/api/executions/alice?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	// Second execution loses
	status, body = env.do(t, http.MethodPost, "/api/protect/execute", pipeline.ExecuteRequest{TransactionID: tx.ID})
	assert.Equal(t, http.StatusConflict, status)
	assert.Contains(t, errorMessage(t, body), "immutable")
}

func TestSimulate_BadRequests(t *testing.T) {
	env := newTestEnv(t, 20)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"identity":`},
		{"unknown field", `{"identity":"alice","input_asset":"SOL","output_asset":"USDC","input_amount":1,"extra":1}`},
		{"missing identity", `{"input_asset":"SOL","output_asset":"USDC","input_amount":1}`},
		{"same asset", `{"identity":"alice","input_asset":"SOL","output_asset":"SOL","input_amount":1}`},
		{"zero amount", `{"identity":"alice","input_asset":"SOL","output_asset":"USDC","input_amount":0}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			status, body := env.do(t, http.MethodPost, "/api/protect/simulate", tc.body)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.NotEmpty(t, errorMessage(t, body))
		})
	}
}

func TestNotFound(t *testing.T) {
	env := newTestEnv(t, 20)

	paths := []string{
		"/api/transaction/missing",
		"/api/proof/missing",
		"/api/proof/missing/verify?hash=abc",
		"/api/batch/missing",
		"/api/batch/current",
	}
	for _, path := range paths {
		status, body := env.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, status, path)
		assert.NotEmpty(t, errorMessage(t, body), path)
	}

	status, _ := env.do(t, http.MethodPost, "/api/protect/execute", pipeline.ExecuteRequest{TransactionID: "missing"})
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = env.do(t, http.MethodPost, "/api/batch/missing/cancel", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestExecute_ProtectionRequired(t *testing.T) {
	env := newTestEnv(t, 80)
	tx := env.simulate(t, "alice")

	status, body := env.do(t, http.MethodPost, "/api/protect/execute", pipeline.ExecuteRequest{TransactionID: tx.ID})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Contains(t, errorMessage(t, body), "protected route required")

	status, _ = env.do(t, http.MethodPost, "/api/protect/execute", pipeline.ExecuteRequest{
		TransactionID:     tx.ID,
		UseProtectedRoute: true,
	})
	assert.Equal(t, http.StatusOK, status)
}

func TestSettings(t *testing.T) {
	env := newTestEnv(t, 20)

	status, body := env.do(t, http.MethodGet, "/api/settings/alice", nil)
	require.Equal(t, http.StatusOK, status)
	var st domain.ProtectionSettings
	require.NoError(t, json.Unmarshal(body, &st))
	assert.Equal(t, *domain.DefaultProtectionSettings("alice"), st)

	status, _ = env.do(t, http.MethodPut, "/api/settings/alice", `{"max_slippage_bps":50,"max_risk_score":101,"batch_enabled":true}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = env.do(t, http.MethodPut, "/api/settings/alice", `{"identity":"bob","max_slippage_bps":50,"max_risk_score":10}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = env.do(t, http.MethodPut, "/api/settings/alice", `{"max_slippage_bps":50,"max_risk_score":10,"batch_enabled":false}`)
	require.Equal(t, http.StatusOK, status, string(body))

	status, body = env.do(t, http.MethodGet, "/api/settings/alice", nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &st))
	assert.Equal(t, 50, st.MaxSlippageBps)
	assert.Equal(t, 10, st.MaxRiskScore)
	assert.False(t, st.BatchEnabled)
	assert.NotZero(t, st.UpdatedAt)

	// Batching disabled: no batch assignment
	tx := env.simulate(t, "alice")
	assert.Nil(t, tx.BatchID)
}

func TestBatchEndpoints(t *testing.T) {
	env := newTestEnv(t, 20)
	tx := env.simulate(t, "alice")
	require.NotNil(t, tx.BatchID)
	batchID := *tx.BatchID

	status, body := env.do(t, http.MethodGet, "/api/batch/current", nil)
	require.Equal(t, http.StatusOK, status)
	var current domain.Batch
	require.NoError(t, json.Unmarshal(body, &current))
	assert.Equal(t, batchID, current.ID)
	assert.Equal(t, 1, current.Count())

	status, body = env.do(t, http.MethodGet, "/api/batch/"+batchID, nil)
	require.Equal(t, http.StatusOK, status)

	status, body = env.do(t, http.MethodGet, "/api/batches/alice", nil)
	require.Equal(t, http.StatusOK, status)
	var list []domain.Batch
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list, 1)
	assert.Equal(t, batchID, list[0].ID)

	status, body = env.do(t, http.MethodGet, "/api/batches/nobody", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[]`, string(body))

	status, body = env.do(t, http.MethodPost, "/api/batch/"+batchID+"/cancel", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	var cancelled domain.Batch
	require.NoError(t, json.Unmarshal(body, &cancelled))
	assert.Equal(t, domain.BatchStatusFailed, cancelled.Status)
	assert.Equal(t, "cancelled", cancelled.FailureReason)

	status, _ = env.do(t, http.MethodPost, "/api/batch/"+batchID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, status)
}

func TestHealthAndStatus(t *testing.T) {
	env := newTestEnv(t, 20)

	status, body := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", string(body))

	env.simulate(t, "alice")

	status, body = env.do(t, http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, status)
	var resp StatusResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Equal(t, "running", resp.Status)
	assert.Equal(t, 1, resp.PendingCount)
	assert.NotEmpty(t, resp.PendingBatch)

	status, body = env.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "swap_guard")
}

func TestHealth_Draining(t *testing.T) {
	srv := New(Options{Logger: log.New(io.Discard, "", 0)})
	srv.SetReady(false)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestWebsocketFeed(t *testing.T) {
	env := newTestEnv(t, 20)

	status, _ := env.do(t, http.MethodGet, "/ws", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws?identity=alice"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return env.hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	tx := env.simulate(t, "alice")
	env.simulate(t, "bob")

	var types []domain.EventType
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var ev domain.Event
		require.NoError(t, conn.ReadJSON(&ev))
		types = append(types, ev.Type)
		if ev.Type == domain.EventSimulationComplete {
			require.NotNil(t, ev.Transaction)
			assert.Equal(t, tx.ID, ev.Transaction.ID)
			break
		}
	}
	assert.Equal(t, []domain.EventType{domain.EventStatus, domain.EventStatus, domain.EventSimulationComplete}, types)

	conn.Close()
	require.Eventually(t, func() bool { return env.hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}
