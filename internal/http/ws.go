package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/roshanrateria/EcoRoute/internal/models"
	"github.com/roshanrateria/EcoRoute/internal/orders"
)

var upgrader = websocket.Upgrader{}

// wsPollInterval is how often the stream polls tracking on the client's
// behalf. Each tick is an ordinary tracking read, so the pull-based state
// machine still only advances while someone is watching.
const wsPollInterval = 3 * time.Second

// handleTrackingWS streams tracking snapshots over a websocket. The socket
// is also registered for dispatch notices covering the user's other orders.
func (s *Server) handleTrackingWS(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.verifyRequest(r)
	if !ok {
		respondJSON(w, http.StatusUnauthorized, map[string]string{"detail": "invalid token"})
		return
	}
	orderID := mux.Vars(r)["id"]

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	session := s.wsreg.Add(userID, conn)
	defer func() {
		s.wsreg.Remove(userID, session)
		conn.Close()
	}()

	// drain client frames so pings and close frames are processed
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPollInterval)
	defer ticker.Stop()

	for {
		snap, err := s.svc.GetTracking(r.Context(), orderID, userID)
		if err != nil {
			if errors.Is(err, orders.ErrNotFound) {
				_ = conn.WriteJSON(map[string]string{"detail": "not found"})
				return
			}
			s.logger.Warn("ws tracking poll failed", "order_id", orderID, "error", err)
			return
		}
		if err := conn.WriteJSON(snap); err != nil {
			return
		}
		if snap.Status == models.StatusDelivered {
			return
		}
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}
