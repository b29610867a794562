package api

import (
	"net/http"

	"github.com/seenimoa/fidcsim/internal/config"
)

// ConfigResponse is the JSON envelope returned by GET /api/v1/config.
type ConfigResponse struct {
	Config     *config.Config `json:"config"`
	ConfigFile string         `json:"config_file"`
}

// handleGetConfig returns the running configuration with credentials masked.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: ConfigResponse{
			Config:     config.Redacted(s.cfg),
			ConfigFile: config.ConfigFilePath(),
		},
	})
}

// handleGetConfigSecrets reports where each credential comes from.
func (s *Server) handleGetConfigSecrets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    config.CheckSecrets(s.cfg),
	})
}
