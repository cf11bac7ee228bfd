// The consumer projects order lifecycle events into the Redis CO2
// leaderboard, keeping that write entirely off the API request path.
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/roshanrateria/EcoRoute/internal/config"
	"github.com/roshanrateria/EcoRoute/internal/leaderboard"
	"github.com/roshanrateria/EcoRoute/internal/logging"
	"github.com/roshanrateria/EcoRoute/internal/models"
)

var (
	eventsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_events_consumed_total",
		Help: "Total order events consumed",
	})
	eventsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_events_invalid_total",
		Help: "Total undecodable events received",
	})
	boardUpdates = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_leaderboard_updates_total",
		Help: "Total successful leaderboard credits",
	})
	boardErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_leaderboard_errors_total",
		Help: "Total leaderboard write failures",
	})
)

func init() {
	prometheus.MustRegister(eventsConsumed, eventsInvalid, boardUpdates, boardErrors)
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConsumerConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	board := leaderboard.New(rc, cfg.LeaderboardKey)

	// metrics and health server
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			if err := rc.Ping(r.Context()).Err(); err != nil {
				http.Error(w, "redis not ready", 503)
				return
			}
			w.WriteHeader(200)
			w.Write([]byte("ready"))
		})
		logger.Info("metrics/health listening", "addr", cfg.MetricsAddr)
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := kafka.NewReader(kafka.ReaderConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic, GroupID: cfg.KafkaGroup, MinBytes: 10e3, MaxBytes: 10e6})
	defer func() {
		_ = r.Close()
		_ = rc.Close()
	}()

	logger.Info("consumer listening", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers, "group", cfg.KafkaGroup)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("shutting down consumer")
				return
			}
			logger.Warn("kafka read error", "error", err, "backoff", backoff)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		// reset backoff on success
		backoff = time.Second

		eventsConsumed.Inc()

		var ev models.OrderEvent
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			eventsInvalid.Inc()
			logger.Warn("invalid event", "error", err)
			continue
		}
		if !shouldCredit(ev) {
			continue
		}

		if err := creditWithRetry(ctx, board, ev, 3, 200*time.Millisecond); err != nil {
			boardErrors.Inc()
			logger.Warn("leaderboard credit failed", "user_id", ev.UserID, "order_id", ev.OrderID, "error", err)
			continue
		}
		boardUpdates.Inc()
	}
}

// shouldCredit keeps only events that carry a real savings credit.
func shouldCredit(ev models.OrderEvent) bool {
	return ev.Kind == models.EventBatchDispatched && ev.UserID != "" && ev.CO2Saved > 0
}

// ScoreAdder is the small subset of leaderboard operations we need for
// tests and production.
type ScoreAdder interface {
	AddSavings(ctx context.Context, userID string, grams float64) error
}

var _ ScoreAdder = (*leaderboard.Board)(nil)

// creditWithRetry applies one event's savings with retry/backoff.
func creditWithRetry(ctx context.Context, board ScoreAdder, ev models.OrderEvent, attempts int, delay time.Duration) error {
	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := board.AddSavings(ctx, ev.UserID, ev.CO2Saved); err != nil {
			lastErr = err
			if i == attempts-1 {
				return err
			}
			time.Sleep(delay)
			delay *= 2
			continue
		}
		return nil
	}
	return lastErr
}
