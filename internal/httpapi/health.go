package httpapi

import (
	"encoding/json"
	"net/http"
)

type healthResponse struct {
	Status          string `json:"status"`
	RegisteredCount int    `json:"registered_clients"`
	ActiveTunnels   int    `json:"active_tunnels"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:          "ok",
		RegisteredCount: s.state.ClientCount(),
		ActiveTunnels:   s.state.ConnectionCount(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
