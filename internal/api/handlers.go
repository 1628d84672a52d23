package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	includeClosed := r.URL.Query().Get("include_closed") == "true"
	positions, err := s.posRepo.GetAll(r.Context(), includeClosed)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, map[string]interface{}{"positions": positions, "count": len(positions)})
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	portfolio := r.URL.Query().Get("portfolio")
	pos, err := s.posRepo.GetBySymbol(r.Context(), symbol, portfolio)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if pos == nil {
		http.Error(w, "position not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, pos)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			hours = parsed
		}
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	alertsList, err := s.alertRepo.GetRecent(r.Context(), symbol, hours, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, map[string]interface{}{"alerts": alertsList, "count": len(alertsList)})
}

func (s *Server) handleRegime(w http.ResponseWriter, r *http.Request) {
	snap, err := s.regimeRepo.GetLatest(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if snap == nil {
		http.Error(w, "no regime snapshot computed yet", http.StatusNotFound)
		return
	}
	s.writeJSON(w, snap)
}
