package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/portfolio-tracker/internal/adapter"
	"github.com/portfolio-tracker/internal/circuitbreaker"
	"github.com/portfolio-tracker/internal/service"
)

// handleGetPortfolio handles GET /api/portfolio - latest cycle result.
// The first request runs a cycle when none has completed yet.
func (s *Server) handleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	result := s.portfolioService.Portfolio(context.WithoutCancel(r.Context()))
	respondJSON(w, http.StatusOK, result)
}

// handleRefresh handles POST /api/refresh - clear the cache and run a cycle.
// The cycle is detached from the request so a dropped client cannot abort it.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	result := s.portfolioService.Refresh(context.WithoutCancel(r.Context()))
	respondJSON(w, http.StatusOK, result)
}

// handleListPositions handles GET /api/positions
func (s *Server) handleListPositions(w http.ResponseWriter, r *http.Request) {
	positions := s.portfolioService.Positions()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"positions": positions,
		"count":     len(positions),
	})
}

// handleGetPosition handles GET /api/positions/{symbol} - latest record
func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(strings.TrimSpace(mux.Vars(r)["symbol"]))
	if symbol == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Symbol required", nil)
		return
	}

	record, err := s.portfolioService.Record(symbol)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, record)
}

// StatusResponse is the body of GET /api/status
type StatusResponse struct {
	Service   service.ServiceStatus     `json:"service"`
	Endpoints []*adapter.EndpointHealth `json:"endpoints,omitempty"`
	Breakers  []*circuitbreaker.Stats   `json:"breakers,omitempty"`
}

// handleStatus handles GET /api/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{Service: s.portfolioService.Status()}
	if s.endpoints != nil {
		resp.Endpoints = s.endpoints.GetAllHealth()
	}
	if s.breakers != nil {
		resp.Breakers = s.breakers.GetAllStats()
	}
	respondJSON(w, http.StatusOK, resp)
}
