package matchmaking

import (
	"sync"
	"time"

	"debateserver/arena/errs"
)

// Participant はキューで待機中の参加者。マッチ成立、キャンセル、切断で破棄される
type Participant struct {
	UserID     uint
	Username   string
	Tier       string
	Reputation int
	Anonymous  bool
	MatchType  string
	Category   string
	JoinedAt   time.Time
}

// Queue は対戦形式とカテゴリごとの待機列
// 空き状況だけで組み合わせる単純なマッチングで、ティアや評判は考慮しない
type Queue struct {
	mu    sync.Mutex
	lists map[string][]Participant
}

func NewQueue() *Queue {
	return &Queue{lists: make(map[string][]Participant)}
}

// Key は待機列のキー。カテゴリ未指定は any
func Key(matchType, category string) string {
	if category == "" {
		category = AnyCategory
	}
	return matchType + "-" + category
}

// Enqueue は参加者を列の末尾に追加し、1始まりの順番を返す
// どこかの列ですでに待機中なら ErrAlreadyQueued
func (q *Queue) Enqueue(p Participant) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.waitingLocked(p.UserID) {
		return 0, errs.ErrAlreadyQueued
	}
	key := Key(p.MatchType, p.Category)
	q.lists[key] = append(q.lists[key], p)
	return len(q.lists[key]), nil
}

// Dequeue は指定の列から参加者を取り除く。いなければ何もしない
func (q *Queue) Dequeue(userID uint, matchType, category string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.removeLocked(Key(matchType, category), userID)
}

// TryForm は列に size 人以上いれば先頭から size 人を取り出して返す
func (q *Queue) TryForm(matchType, category string, size int) []Participant {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := Key(matchType, category)
	list := q.lists[key]
	if size <= 0 || len(list) < size {
		return nil
	}

	group := make([]Participant, size)
	copy(group, list[:size])
	rest := list[size:]
	if len(rest) == 0 {
		delete(q.lists, key)
	} else {
		q.lists[key] = append([]Participant(nil), rest...)
	}
	return group
}

// RemoveEverywhere は切断時に全ての列から参加者を取り除く
func (q *Queue) RemoveEverywhere(userID uint) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	removed := 0
	for key := range q.lists {
		if q.removeLocked(key, userID) {
			removed++
		}
	}
	return removed
}

func (q *Queue) waitingLocked(userID uint) bool {
	for _, list := range q.lists {
		for _, p := range list {
			if p.UserID == userID {
				return true
			}
		}
	}
	return false
}

func (q *Queue) removeLocked(key string, userID uint) bool {
	list := q.lists[key]
	for i, p := range list {
		if p.UserID != userID {
			continue
		}
		list = append(list[:i:i], list[i+1:]...)
		if len(list) == 0 {
			delete(q.lists, key)
		} else {
			q.lists[key] = list
		}
		return true
	}
	return false
}
