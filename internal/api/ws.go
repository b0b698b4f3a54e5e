package api

import (
	"errors"
	"net/http"
	"strings"

	"swap-guard/internal/notify"
)

// handleWS upgrades the connection and streams the events of one identity
// until the client disconnects.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	identity := strings.TrimSpace(r.URL.Query().Get("identity"))
	if identity == "" {
		writeBadRequest(w, errors.New("identity query parameter is required"))
		return
	}
	if s.hub == nil {
		writeJSONError(w, http.StatusServiceUnavailable, errors.New("event feed disabled"))
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response
		s.logger.Printf("websocket upgrade for %s: %v", identity, err)
		return
	}

	obs := notify.NewWSObserver(conn, s.wsConfig)
	s.hub.Subscribe(identity, obs)
	s.logger.Printf("observer connected for %s", identity)

	select {
	case <-obs.Done():
	case <-r.Context().Done():
		obs.Close()
	}
	s.hub.Unsubscribe(obs)
	obs.Wait()
	s.logger.Printf("observer disconnected for %s", identity)
}
