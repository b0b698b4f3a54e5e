package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"swap-guard/internal/domain"
	"swap-guard/internal/pipeline"
	"swap-guard/internal/storage"
)

// defaultExecutionLimit caps /executions when no limit is given.
const defaultExecutionLimit = 50

func pathParam(r *http.Request, name string) (string, error) {
	v := strings.TrimSpace(chi.URLParam(r, name))
	if v == "" {
		return "", fmt.Errorf("%w: %s is required", storage.ErrInvalidInput, name)
	}
	return v, nil
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req domain.ProtectionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	tx, err := s.svc.Simulate(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req pipeline.ExecuteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	tx, err := s.svc.Execute(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	identity, err := pathParam(r, "identity")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	txs, err := s.svc.Transactions(r.Context(), identity)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if txs == nil {
		txs = []*domain.Transaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}

func (s *Server) handleTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathParam(r, "id")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	tx, err := s.svc.Transaction(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	identity, err := pathParam(r, "identity")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	st, err := s.svc.Stats(r.Context(), identity)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleProof(w http.ResponseWriter, r *http.Request) {
	txID, err := pathParam(r, "transactionId")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	p, err := s.svc.Proof(r.Context(), txID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// verifyResponse is the body of the proof verification endpoint.
type verifyResponse struct {
	TransactionID string `json:"transaction_id"`
	ProofHash     string `json:"proof_hash"`
	Valid         bool   `json:"valid"`
}

func (s *Server) handleVerifyProof(w http.ResponseWriter, r *http.Request) {
	txID, err := pathParam(r, "transactionId")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	hash := strings.TrimSpace(r.URL.Query().Get("hash"))
	if hash == "" {
		writeBadRequest(w, errors.New("hash query parameter is required"))
		return
	}
	valid, err := s.svc.VerifyProof(r.Context(), txID, hash)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, verifyResponse{TransactionID: txID, ProofHash: hash, Valid: valid})
}

func (s *Server) handleBatches(w http.ResponseWriter, r *http.Request) {
	identity, err := pathParam(r, "identity")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	batches, err := s.svc.Batches(r.Context(), identity)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if batches == nil {
		batches = []*domain.Batch{}
	}
	writeJSON(w, http.StatusOK, batches)
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	id, err := pathParam(r, "batchId")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	b, err := s.svc.Batch(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleCurrentBatch(w http.ResponseWriter, r *http.Request) {
	b := s.svc.CurrentBatch()
	if b == nil {
		writeJSONError(w, http.StatusNotFound, errors.New("no pending batch"))
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleCancelBatch(w http.ResponseWriter, r *http.Request) {
	id, err := pathParam(r, "batchId")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	b, err := s.svc.CancelBatch(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	identity, err := pathParam(r, "identity")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	st, err := s.svc.Settings(r.Context(), identity)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	identity, err := pathParam(r, "identity")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var st domain.ProtectionSettings
	if err := decodeJSON(w, r, &st); err != nil {
		writeBadRequest(w, err)
		return
	}
	if st.Identity != "" && st.Identity != identity {
		writeBadRequest(w, fmt.Errorf("%w: identity in body does not match path", storage.ErrInvalidInput))
		return
	}
	st.Identity = identity
	saved, err := s.svc.UpdateSettings(r.Context(), &st)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleExecutions(w http.ResponseWriter, r *http.Request) {
	identity, err := pathParam(r, "identity")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	limit := defaultExecutionLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeBadRequest(w, fmt.Errorf("%w: limit must be a positive integer", storage.ErrInvalidInput))
			return
		}
		limit = n
	}
	records, err := s.svc.Executions(r.Context(), identity, limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status       string    `json:"status"`
	Uptime       string    `json:"uptime"`
	StartedAt    time.Time `json:"started_at"`
	Observers    int       `json:"observers"`
	PendingBatch string    `json:"pending_batch,omitempty"`
	PendingCount int       `json:"pending_count"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Status:    "running",
		Uptime:    time.Since(s.startedAt).Round(time.Second).String(),
		StartedAt: s.startedAt,
	}
	if !s.ready.Load() {
		resp.Status = "draining"
	}
	if s.hub != nil {
		resp.Observers = s.hub.Count()
	}
	if b := s.svc.CurrentBatch(); b != nil {
		resp.PendingBatch = b.ID
		resp.PendingCount = b.Count()
	}
	writeJSON(w, http.StatusOK, resp)
}
