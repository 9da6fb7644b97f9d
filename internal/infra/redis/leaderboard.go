package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"osce-prep-service/internal/domain"
)

const leaderboardKey = "ranking:global"

// Leaderboard mirrors the recomputed global ranking into a Redis sorted set
// so ranking reads stay off the scoring hot path. Scores are stored negated:
// ZRANGE then walks from best to worst while Redis's ascending member order
// on ties matches the engine's user-ID tie-break.
type Leaderboard struct {
	client *redis.Client
}

func NewLeaderboard(client *redis.Client) *Leaderboard {
	return &Leaderboard{client: client}
}

// Publish replaces the mirrored leaderboard with the given entries.
func (l *Leaderboard) Publish(ctx context.Context, entries []domain.RankedUser) error {
	members := make([]redis.Z, 0, len(entries))
	for _, e := range entries {
		members = append(members, redis.Z{Score: -e.Score, Member: e.UserID})
	}

	pipe := l.client.TxPipeline()
	pipe.Del(ctx, leaderboardKey)
	if len(members) > 0 {
		pipe.ZAdd(ctx, leaderboardKey, members...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish leaderboard: %w", err)
	}
	return nil
}

// TopN reads the best n entries with their 1-based ranks.
func (l *Leaderboard) TopN(ctx context.Context, n int) ([]domain.RankedUser, error) {
	if n <= 0 {
		return nil, nil
	}
	members, err := l.client.ZRangeWithScores(ctx, leaderboardKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read leaderboard: %w", err)
	}
	entries := make([]domain.RankedUser, 0, len(members))
	for i, m := range members {
		userID, _ := m.Member.(string)
		entries = append(entries, domain.RankedUser{
			UserID: userID,
			Score:  -m.Score,
			Rank:   i + 1,
		})
	}
	return entries, nil
}
