package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roshanrateria/EcoRoute/internal/leaderboard"
	"github.com/roshanrateria/EcoRoute/internal/models"
	"github.com/roshanrateria/EcoRoute/internal/notify"
	"github.com/roshanrateria/EcoRoute/internal/orders"
)

// Server is the HTTP surface over the batching core. It owns no business
// rules; every decision lives in orders.Service.
type Server struct {
	svc       *orders.Service
	board     *leaderboard.Board // nil when Redis is not configured
	wsreg     *notify.WSRegistry
	logger    *slog.Logger
	jwtSecret []byte
	mux       *mux.Router
}

func NewServer(svc *orders.Service, board *leaderboard.Board, wsreg *notify.WSRegistry, logger *slog.Logger, jwtSecret string) *Server {
	s := &Server{
		svc:       svc,
		board:     board,
		wsreg:     wsreg,
		logger:    logger,
		jwtSecret: []byte(jwtSecret),
		mux:       mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.mux.PathPrefix("/api").Subrouter()

	api.HandleFunc("/restaurants", s.handleListRestaurants).Methods("GET")
	api.HandleFunc("/restaurants/batch-counts", s.handleBatchCounts).Methods("GET")
	api.HandleFunc("/restaurants/{id}", s.handleGetRestaurant).Methods("GET")
	api.HandleFunc("/carbon/leaderboard", s.handleLeaderboard).Methods("GET")

	authed := api.NewRoute().Subrouter()
	authed.Use(s.authMiddleware)
	authed.HandleFunc("/orders/preview-batch", s.handlePreviewBatch).Methods("POST")
	authed.HandleFunc("/orders", s.handleCreateOrder).Methods("POST")
	authed.HandleFunc("/orders", s.handleListOrders).Methods("GET")
	authed.HandleFunc("/orders/{id}", s.handleGetOrder).Methods("GET")
	authed.HandleFunc("/orders/{id}/rush", s.handleRush).Methods("POST")
	authed.HandleFunc("/orders/{id}/extend-batch", s.handleExtendBatch).Methods("POST")
	authed.HandleFunc("/orders/{id}/tracking", s.handleTracking).Methods("GET")

	s.mux.HandleFunc("/ws/orders/{id}/tracking", s.handleTrackingWS)
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func respondJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orders.ErrNotFound):
		respondJSON(w, http.StatusNotFound, map[string]string{"detail": "not found"})
	case errors.Is(err, orders.ErrInvalidState):
		respondJSON(w, http.StatusBadRequest, map[string]string{"detail": "order is not in batch waiting mode"})
	case orders.IsStorageUnavailable(err):
		s.logger.Error("storage unavailable", "error", err)
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"detail": "storage unavailable"})
	default:
		s.logger.Error("request failed", "error", err)
		respondJSON(w, http.StatusInternalServerError, map[string]string{"detail": "internal error"})
	}
}

type previewBatchRequest struct {
	RestaurantID string  `json:"restaurant_id"`
	DeliveryLat  float64 `json:"delivery_lat"`
	DeliveryLng  float64 `json:"delivery_lng"`
}

func (s *Server) handlePreviewBatch(w http.ResponseWriter, r *http.Request) {
	var req previewBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
		return
	}
	preview, err := s.svc.PreviewBatch(r.Context(), req.RestaurantID, req.DeliveryLat, req.DeliveryLng, userIDFrom(r.Context()))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, preview)
}

type createOrderRequest struct {
	RestaurantID    string             `json:"restaurant_id"`
	Items           []models.OrderItem `json:"items"`
	DeliveryAddress string             `json:"delivery_address"`
	DeliveryLat     float64            `json:"delivery_lat"`
	DeliveryLng     float64            `json:"delivery_lng"`
	IsBatched       bool               `json:"is_batched"`
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
		return
	}
	if req.RestaurantID == "" || len(req.Items) == 0 {
		respondJSON(w, http.StatusBadRequest, map[string]string{"detail": "restaurant_id and items are required"})
		return
	}
	o, err := s.svc.CreateOrder(r.Context(), userIDFrom(r.Context()), req.RestaurantID, req.Items,
		req.DeliveryAddress, req.DeliveryLat, req.DeliveryLng, req.IsBatched)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	out, err := s.svc.ListOrders(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if out == nil {
		out = []models.Order{}
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.svc.GetOrder(r.Context(), mux.Vars(r)["id"], userIDFrom(r.Context()))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (s *Server) handleRush(w http.ResponseWriter, r *http.Request) {
	o, err := s.svc.Rush(r.Context(), mux.Vars(r)["id"], userIDFrom(r.Context()))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"message": "Order converted to rush delivery",
		"status":  o.Status,
		"order":   o,
	})
}

func (s *Server) handleExtendBatch(w http.ResponseWriter, r *http.Request) {
	newEnd, err := s.svc.ExtendBatch(r.Context(), mux.Vars(r)["id"], userIDFrom(r.Context()))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"message": "Batch window extended by 3 minutes",
		"new_end": newEnd,
	})
}

func (s *Server) handleTracking(w http.ResponseWriter, r *http.Request) {
	snap, err := s.svc.GetTracking(r.Context(), mux.Vars(r)["id"], userIDFrom(r.Context()))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handleListRestaurants(w http.ResponseWriter, r *http.Request) {
	out, err := s.svc.Restaurants(r.Context())
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetRestaurant(w http.ResponseWriter, r *http.Request) {
	out, err := s.svc.Restaurant(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleBatchCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := s.svc.BatchCounts(r.Context())
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, counts)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if s.board == nil {
		respondJSON(w, http.StatusOK, []leaderboard.Entry{})
		return
	}
	top, err := s.board.Top(r.Context(), 20)
	if err != nil {
		s.logger.Error("leaderboard read failed", "error", err)
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"detail": "leaderboard unavailable"})
		return
	}
	respondJSON(w, http.StatusOK, top)
}
