package notify

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/roshanrateria/EcoRoute/internal/models"
)

// Webhook posts dispatch notices to an external endpoint (a push-notification
// relay, typically). Fire-and-forget: the dispatch trigger never waits on it.
type Webhook struct {
	Endpoint string
	Client   *http.Client
	Log      *slog.Logger
}

func NewWebhook(endpoint string, log *slog.Logger) *Webhook {
	return &Webhook{Endpoint: endpoint, Client: &http.Client{Timeout: 3 * time.Second}, Log: log}
}

func (w *Webhook) OrderDispatched(userID string, o models.Order) {
	body := map[string]any{"user_id": userID, "event": models.EventBatchDispatched, "order": o}
	b, err := json.Marshal(body)
	if err != nil {
		return
	}
	resp, err := w.Client.Post(w.Endpoint, "application/json", bytes.NewReader(b))
	if err != nil {
		if w.Log != nil {
			w.Log.Warn("webhook dispatch notice failed", "user_id", userID, "order_id", o.ID, "error", err)
		}
		return
	}
	resp.Body.Close()
}

// Fanout delivers to several sinks.
type Fanout []interface {
	OrderDispatched(userID string, o models.Order)
}

func (f Fanout) OrderDispatched(userID string, o models.Order) {
	for _, n := range f {
		n.OrderDispatched(userID, o)
	}
}
