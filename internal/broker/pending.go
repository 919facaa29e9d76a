package broker

import (
	"context"
	"sync"
	"time"

	"github.com/hitoshi/catalyst/internal/model"
)

// PendingStateStore はログイン開始からcallbackまでの使い捨てstateを保持する。
// プロセスメモリのみに保持するため、再起動時には全て失われる。
type PendingStateStore struct {
	mu     sync.Mutex
	states map[string]model.PendingState
}

// NewPendingStateStore はPendingStateStoreを生成する。
func NewPendingStateStore() *PendingStateStore {
	return &PendingStateStore{
		states: make(map[string]model.PendingState),
	}
}

// Put はstateを登録する。
func (s *PendingStateStore) Put(p model.PendingState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[p.State] = p
}

// Consume はstateを取り出して削除する。存在しない・期限切れの場合はfalseを返す。
// 期限切れのstateも同時に削除される。
func (s *PendingStateStore) Consume(state string, now time.Time) (model.PendingState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.states[state]
	if !ok {
		return model.PendingState{}, false
	}
	delete(s.states, state)
	if !now.Before(p.ExpiresAt) {
		return model.PendingState{}, false
	}
	return p, true
}

// Sweep は期限切れのstateを削除し、削除件数を返す。
func (s *PendingStateStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key, p := range s.states {
		if !now.Before(p.ExpiresAt) {
			delete(s.states, key)
			n++
		}
	}
	return n
}

// Len は保持しているstate数を返す。
func (s *PendingStateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}

// Run はctxがキャンセルされるまでinterval毎に期限切れstateを削除する。
func (s *PendingStateStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Sweep(now)
		}
	}
}
