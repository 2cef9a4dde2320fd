package match

import (
	"sort"
	"sync"
)

// Registry はプロセス内の進行中の試合を保持する
// プレイヤーから試合への索引も合わせて持つ
type Registry struct {
	mu      sync.RWMutex
	matches map[string]*Match
	players map[uint]string
}

func NewRegistry() *Registry {
	return &Registry{
		matches: make(map[string]*Match),
		players: make(map[uint]string),
	}
}

func (r *Registry) Add(m *Match) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.matches[m.ID()] = m
	for _, id := range m.Players() {
		r.players[id] = m.ID()
	}
}

func (r *Registry) Get(id string) (*Match, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.matches[id]
	return m, ok
}

// Remove は試合を取り除く。保存済みのレコードには影響しない
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.matches[id]
	if !ok {
		return
	}
	delete(r.matches, id)
	for _, pid := range m.Players() {
		if r.players[pid] == id {
			delete(r.players, pid)
		}
	}
}

// PlayerMatch はプレイヤーとして参加中の試合を返す
func (r *Registry) PlayerMatch(userID uint) (*Match, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.players[userID]
	if !ok {
		return nil, false
	}
	m, ok := r.matches[id]
	return m, ok
}

// Active は進行中の試合をID順で返す
func (r *Registry) Active() []*Match {
	r.mu.RLock()
	out := make([]*Match, 0, len(r.matches))
	for _, m := range r.matches {
		out = append(out, m)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}
