package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/bbernstein/wifi-connect/internal/services/orchestrator"
)

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   s.version,
	})
}

func (s *Server) handleNetworks(w http.ResponseWriter, r *http.Request) {
	resp, err := s.bridge.Request(r.Context(), func(id string) orchestrator.Command {
		return orchestrator.Activate{RequestID: id}
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	networks, ok := resp.(orchestrator.NetworksResponse)
	if !ok {
		s.fail(w, r, unexpected(resp))
		return
	}
	s.writeJSON(w, networks.Networks)
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	ssid := r.PostForm.Get("ssid")
	if ssid == "" {
		http.Error(w, "ssid is required", http.StatusBadRequest)
		return
	}

	s.log.Info().Str("ssid", ssid).Msg("Incoming connect request")
	s.send(w, r, orchestrator.Connect{
		SSID:       ssid,
		Identity:   r.PostForm.Get("identity"),
		Passphrase: r.PostForm.Get("passphrase"),
	})
}

func (s *Server) handleEnableAP(w http.ResponseWriter, r *http.Request) {
	s.send(w, r, orchestrator.EnableAP{})
}

func (s *Server) handleDisableAP(w http.ResponseWriter, r *http.Request) {
	s.send(w, r, orchestrator.DisableAP{})
}

func (s *Server) handleRestartAP(w http.ResponseWriter, r *http.Request) {
	s.send(w, r, orchestrator.DisableAP{}, orchestrator.EnableAP{})
}

func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	resp, err := s.bridge.Request(r.Context(), func(id string) orchestrator.Command {
		return orchestrator.Current{RequestID: id}
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	current, ok := resp.(orchestrator.CurrentResponse)
	if !ok {
		s.fail(w, r, unexpected(resp))
		return
	}
	s.writeJSON(w, current.Status)
}

func (s *Server) handleHasConnection(w http.ResponseWriter, r *http.Request) {
	resp, err := s.bridge.Request(r.Context(), func(id string) orchestrator.Command {
		return orchestrator.HasConnection{RequestID: id}
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	has, ok := resp.(orchestrator.HasConnectionResponse)
	if !ok {
		s.fail(w, r, unexpected(resp))
		return
	}
	s.writeJSON(w, has.Status)
}

// send queues commands in order and replies with an empty 200.
func (s *Server) send(w http.ResponseWriter, r *http.Request, cmds ...orchestrator.Command) {
	for _, cmd := range cmds {
		if err := s.bridge.Send(r.Context(), cmd); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	s.log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("Encoding response failed")
	}
}

func unexpected(resp orchestrator.Response) error {
	return fmt.Errorf("unexpected reply %T", resp)
}
