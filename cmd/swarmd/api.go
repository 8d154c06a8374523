package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/localswarm/localswarm/orchestrator"
	"github.com/localswarm/localswarm/trust"
	"github.com/localswarm/localswarm/types"
)

// apiServer is the thin registration and handoff surface over the core. It
// owns the agent registry; trust state lives in the ledger.
type apiServer struct {
	orch   *orchestrator.Orchestrator
	ledger *trust.Ledger
	logger *zap.Logger

	mu     sync.RWMutex
	agents map[string]*types.Agent
}

func newAPIServer(orch *orchestrator.Orchestrator, ledger *trust.Ledger, logger *zap.Logger) *apiServer {
	return &apiServer{
		orch:   orch,
		ledger: ledger,
		logger: logger.With(zap.String("component", "api")),
		agents: make(map[string]*types.Agent),
	}
}

func (s *apiServer) routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/agents", s.handleRegisterAgent)
	mux.HandleFunc("DELETE /v1/agents/{id}", s.handleUnregisterAgent)
	mux.HandleFunc("GET /v1/agents/{id}/trust", s.handleGetTrust)
	mux.HandleFunc("POST /v1/handoff", s.handleHandoff)
}

// registerAgent adds the agent to the registry and the trust ledger.
// Idempotent: re-registration never resets trust.
func (s *apiServer) registerAgent(agent *types.Agent) error {
	if agent.ID == "" {
		return errors.New("agent id required")
	}
	if !agent.ProviderType.Valid() {
		return errors.New("unknown provider type")
	}
	s.mu.Lock()
	s.agents[agent.ID] = agent
	s.mu.Unlock()
	s.ledger.Register(agent.ID)
	return nil
}

func (s *apiServer) unregisterAgent(agentID string) {
	s.mu.Lock()
	delete(s.agents, agentID)
	s.mu.Unlock()
	s.ledger.Unregister(agentID)
}

func (s *apiServer) candidates() []*types.Agent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		out = append(out, a)
	}
	return out
}

func (s *apiServer) handleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	var agent types.Agent
	if err := json.NewDecoder(r.Body).Decode(&agent); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.registerAgent(&agent); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, agent)
}

func (s *apiServer) handleUnregisterAgent(w http.ResponseWriter, r *http.Request) {
	s.unregisterAgent(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleGetTrust(w http.ResponseWriter, r *http.Request) {
	record, err := s.ledger.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

type handoffRequest struct {
	Task    types.Task            `json:"task"`
	Context *types.HandoffContext `json:"context,omitempty"`
}

func (s *apiServer) handleHandoff(w http.ResponseWriter, r *http.Request) {
	var req handoffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	record, err := s.orch.Handoff(r.Context(), &req.Task, req.Context, s.candidates())
	if err != nil {
		var permanent *orchestrator.PermanentFailureError
		if errors.As(err, &permanent) {
			writeJSON(w, http.StatusBadGateway, record)
			return
		}
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
