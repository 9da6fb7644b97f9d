package app

import (
	"sync"
	"time"

	"osce-prep-service/internal/domain"
)

// rankingFeed fans leaderboard snapshots out to subscribers. Slow consumers
// have their stale snapshot dropped rather than blocking the broadcast.
type rankingFeed struct {
	mu          sync.Mutex
	subscribers map[chan domain.Leaderboard]struct{}
	last        domain.Leaderboard
	clock       func() time.Time
}

func newRankingFeed(clock func() time.Time) *rankingFeed {
	return &rankingFeed{
		subscribers: make(map[chan domain.Leaderboard]struct{}),
		clock:       clock,
	}
}

// subscribe registers a consumer and immediately delivers the latest snapshot.
func (f *rankingFeed) subscribe() (<-chan domain.Leaderboard, func()) {
	ch := make(chan domain.Leaderboard, 8)

	f.mu.Lock()
	f.subscribers[ch] = struct{}{}
	initial := f.last
	f.mu.Unlock()

	ch <- initial

	cancel := func() {
		f.mu.Lock()
		if _, ok := f.subscribers[ch]; ok {
			delete(f.subscribers, ch)
			close(ch)
		}
		f.mu.Unlock()
	}
	return ch, cancel
}

func (f *rankingFeed) broadcast(entries []domain.RankedUser) {
	snapshot := domain.Leaderboard{
		Entries:   append([]domain.RankedUser(nil), entries...),
		UpdatedAt: f.clock(),
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = snapshot
	for ch := range f.subscribers {
		select {
		case ch <- snapshot:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snapshot
		}
	}
}
