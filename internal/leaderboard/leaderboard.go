// Package leaderboard keeps the "top CO2 savers" ranking in a Redis sorted
// set. The Kafka consumer writes it; the API only reads.
package leaderboard

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const defaultKey = "co2_leaderboard"

type Entry struct {
	Rank          int     `json:"rank"`
	UserID        string  `json:"user_id"`
	Name          string  `json:"name,omitempty"`
	TotalCO2Saved float64 `json:"total_co2_saved"`
}

type Board struct {
	client *redis.Client
	key    string
}

func New(client *redis.Client, key string) *Board {
	if key == "" {
		key = defaultKey
	}
	return &Board{client: client, key: key}
}

// AddSavings credits grams to a user's running total.
func (b *Board) AddSavings(ctx context.Context, userID string, grams float64) error {
	return b.client.ZIncrBy(ctx, b.key, grams, userID).Err()
}

// SetName stores a display name next to the score so the board can render
// without a user-store round trip.
func (b *Board) SetName(ctx context.Context, userID, name string) error {
	return b.client.HSet(ctx, metaKey(userID), "name", name).Err()
}

// Top returns the highest savers, best first.
func (b *Board) Top(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		n = 20
	}
	zs, err := b.client.ZRevRangeWithScores(ctx, b.key, 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(zs))
	for i, z := range zs {
		userID := fmt.Sprint(z.Member)
		e := Entry{Rank: i + 1, UserID: userID, TotalCO2Saved: z.Score}
		if m, err := b.client.HGetAll(ctx, metaKey(userID)).Result(); err == nil {
			e.Name = m["name"]
		}
		out = append(out, e)
	}
	return out, nil
}

func metaKey(userID string) string { return "user:meta:" + userID }
