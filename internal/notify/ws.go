package notify

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/roshanrateria/EcoRoute/internal/models"
)

// DispatchNotice tells a connected client their waiting order left the batch
// window and entered preparation.
type DispatchNotice struct {
	OrderID      string  `json:"order_id"`
	BatchID      string  `json:"batch_id,omitempty"`
	Status       string  `json:"status"`
	CO2Saved     float64 `json:"co2_saved"`
	DispatchedAt string  `json:"dispatched_at"`
}

// WSSession is one connected client socket.
type WSSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *WSSession) send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

// WSRegistry holds client sessions keyed by user id. Delivery is
// best-effort: a user with no open socket simply misses the nudge and
// learns about the dispatch on their next tracking poll.
type WSRegistry struct {
	mu       sync.RWMutex
	log      *slog.Logger
	sessions map[string][]*WSSession
}

func NewWSRegistry(log *slog.Logger) *WSRegistry {
	return &WSRegistry{log: log, sessions: make(map[string][]*WSSession)}
}

func (r *WSRegistry) Add(userID string, conn *websocket.Conn) *WSSession {
	s := &WSSession{conn: conn}
	r.mu.Lock()
	r.sessions[userID] = append(r.sessions[userID], s)
	r.mu.Unlock()
	return s
}

func (r *WSRegistry) Remove(userID string, s *WSSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.sessions[userID]
	for i, have := range list {
		if have == s {
			r.sessions[userID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(r.sessions[userID]) == 0 {
		delete(r.sessions, userID)
	}
}

// OrderDispatched pushes a notice to every open session of the order's user.
func (r *WSRegistry) OrderDispatched(userID string, o models.Order) {
	r.mu.RLock()
	list := append([]*WSSession(nil), r.sessions[userID]...)
	r.mu.RUnlock()
	if len(list) == 0 {
		return
	}
	notice := DispatchNotice{
		OrderID:  o.ID,
		Status:   string(o.Status),
		CO2Saved: o.CO2Saved,
	}
	if o.BatchID != nil {
		notice.BatchID = *o.BatchID
	}
	if o.DispatchedAt != nil {
		notice.DispatchedAt = o.DispatchedAt.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	for _, s := range list {
		if err := s.send(notice); err != nil && r.log != nil {
			r.log.Warn("ws dispatch notice failed", "user_id", userID, "order_id", o.ID, "error", err)
		}
	}
}
