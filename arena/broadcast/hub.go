package broadcast

import (
	"encoding/json"
	"sort"
	"sync"

	"debateserver/models"

	"go.uber.org/zap"
)

// Peer は配信先の接続
type Peer interface {
	UserID() uint
	// Enqueue は送信キューに積む。キューが詰まっていれば false
	Enqueue(msg []byte) bool
	Close()
}

// Hub はユーザーごとの接続と試合の部屋を管理する
// 1ユーザーにつき接続は1つで、新しい接続が古い接続を置き換える
type Hub struct {
	mu     sync.RWMutex
	peers  map[uint]Peer
	rooms  map[string]map[uint]struct{}
	member map[uint]map[string]struct{}
	logger *zap.Logger

	// OnRoomsChanged は参加中の部屋が変わったときに呼ばれる
	OnRoomsChanged func(userID uint, rooms []string)
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		peers:  make(map[uint]Peer),
		rooms:  make(map[string]map[uint]struct{}),
		member: make(map[uint]map[string]struct{}),
		logger: logger,
	}
}

// Register は接続を登録する。同じユーザーの古い接続は閉じる
func (h *Hub) Register(p Peer) {
	h.mu.Lock()
	old := h.peers[p.UserID()]
	h.peers[p.UserID()] = p
	h.mu.Unlock()

	if old != nil && old != p {
		h.logger.Info("Replacing existing connection", zap.Uint("userID", p.UserID()))
		old.Close()
	}
}

// Unregister は現在の接続である場合だけ登録を外す
// 置き換え済みの古い接続の切断では何もしない
func (h *Hub) Unregister(p Peer) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.peers[p.UserID()] != p {
		return false
	}
	delete(h.peers, p.UserID())
	return true
}

// Rooms はユーザーが参加中の部屋を返す
func (h *Hub) Rooms(userID uint) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.roomsLocked(userID)
}

// LeaveAll は切断時に全ての部屋から外し、外した部屋を返す
func (h *Hub) LeaveAll(userID uint) []string {
	h.mu.Lock()
	rooms := h.roomsLocked(userID)
	for _, room := range rooms {
		h.leaveLocked(room, userID)
	}
	h.mu.Unlock()
	return rooms
}

// Deliver は配信指示を順に実行する
func (h *Hub) Deliver(origin uint, intents []Intent) {
	for _, in := range intents {
		switch in.Op {
		case OpJoinRoom:
			h.join(in.MatchID, in.UserID)
		case OpLeaveRoom:
			h.leave(in.MatchID, in.UserID)
		case OpCloseRoom:
			h.closeRoom(in.MatchID)
		case OpSend:
			h.send(origin, in)
		}
	}
}

func (h *Hub) send(origin uint, in Intent) {
	msg, err := json.Marshal(models.OutboundEnvelope{Type: in.Event, Data: in.Payload})
	if err != nil {
		h.logger.Error("Failed to marshal outbound event", zap.String("event", in.Event), zap.Error(err))
		return
	}

	var targets []Peer
	h.mu.RLock()
	switch in.Target {
	case TargetRoom:
		for id := range h.rooms[in.MatchID] {
			if p, ok := h.peers[id]; ok {
				targets = append(targets, p)
			}
		}
	case TargetOrigin:
		if p, ok := h.peers[origin]; ok {
			targets = append(targets, p)
		}
	case TargetUser:
		if p, ok := h.peers[in.UserID]; ok {
			targets = append(targets, p)
		}
	}
	h.mu.RUnlock()

	for _, p := range targets {
		if !p.Enqueue(msg) {
			h.logger.Warn("Send buffer full, dropping connection", zap.Uint("userID", p.UserID()), zap.String("event", in.Event))
			p.Close()
		}
	}
}

func (h *Hub) join(matchID string, userID uint) {
	h.mu.Lock()
	if h.rooms[matchID] == nil {
		h.rooms[matchID] = make(map[uint]struct{})
	}
	h.rooms[matchID][userID] = struct{}{}
	if h.member[userID] == nil {
		h.member[userID] = make(map[string]struct{})
	}
	h.member[userID][matchID] = struct{}{}
	rooms := h.roomsLocked(userID)
	h.mu.Unlock()

	h.notify(userID, rooms)
}

func (h *Hub) leave(matchID string, userID uint) {
	h.mu.Lock()
	h.leaveLocked(matchID, userID)
	rooms := h.roomsLocked(userID)
	h.mu.Unlock()

	h.notify(userID, rooms)
}

// closeRoom は終了した試合の部屋から全員を外す
func (h *Hub) closeRoom(matchID string) {
	h.mu.Lock()
	remaining := make(map[uint][]string, len(h.rooms[matchID]))
	for id := range h.rooms[matchID] {
		h.leaveLocked(matchID, id)
		remaining[id] = h.roomsLocked(id)
	}
	h.mu.Unlock()

	for id, rooms := range remaining {
		h.notify(id, rooms)
	}
}

func (h *Hub) leaveLocked(matchID string, userID uint) {
	delete(h.rooms[matchID], userID)
	if len(h.rooms[matchID]) == 0 {
		delete(h.rooms, matchID)
	}
	delete(h.member[userID], matchID)
	if len(h.member[userID]) == 0 {
		delete(h.member, userID)
	}
}

func (h *Hub) roomsLocked(userID uint) []string {
	rooms := make([]string, 0, len(h.member[userID]))
	for room := range h.member[userID] {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}

func (h *Hub) notify(userID uint, rooms []string) {
	if h.OnRoomsChanged != nil {
		h.OnRoomsChanged(userID, rooms)
	}
}
