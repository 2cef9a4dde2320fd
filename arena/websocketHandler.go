package arena

import (
	"context"
	"net/http"

	"debateserver/arena/actions"
	"debateserver/arena/broadcast"
	"debateserver/arena/connection"
	"debateserver/arena/database"
	"debateserver/store"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Server はWebSocket接続を受け付け、受信イベントを Engine に渡す
type Server struct {
	Engine   *actions.Engine
	Hub      *broadcast.Hub
	Store    store.Store
	Sessions *database.SessionStore
	Upgrader websocket.Upgrader
	Logger   *zap.Logger
	// BaseCtx は精算などの後続処理に使う。接続が切れても止めない
	BaseCtx context.Context
}

// WebSocket接続へのアップグレードを行う関数
func (s *Server) HandleConnections(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// ユーザーコンテキストの取得
	cc, err := connection.FetchClientContext(ctx, r, s.Store, s.Logger)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	// 再接続の場合は以前の部屋を取り出しておく
	var restore []string
	if cc.SessionID != "" && s.Sessions != nil {
		session, err := s.Sessions.Validate(ctx, cc.SessionID, cc.UserID)
		if err != nil {
			s.Logger.Warn("Invalid session on reconnect", zap.Uint("userID", cc.UserID), zap.Error(err))
			http.Error(w, "Invalid or expired session ID", http.StatusUnauthorized)
			return
		}
		restore = session.Rooms
	}

	// WebSocket接続へのアップグレードと確立
	conn, err := s.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade がエラーレスポンスを書き込み済み
		s.Logger.Error("Error upgrading WebSocket", zap.Error(err))
		return
	}

	client := connection.NewClient(conn, cc.UserID, s.Logger)
	s.Hub.Register(client)
	s.Logger.Info("New client added", zap.Uint("userID", cc.UserID), zap.Bool("restored", len(restore) > 0))

	go client.WritePump()

	if s.Sessions != nil {
		sessionID, err := s.Sessions.GenerateAndStore(s.BaseCtx, cc.UserID, restore)
		if err != nil {
			s.Logger.Error("Failed to generate or store session ID", zap.Error(err))
		} else {
			s.Hub.Deliver(cc.UserID, []broadcast.Intent{broadcast.ToOrigin("session", map[string]interface{}{"sessionID": sessionID})})
		}
	}
	if len(restore) > 0 {
		s.Hub.Deliver(cc.UserID, s.Engine.Rejoin(cc.UserID, restore))
	}

	caller := actions.Caller{UserID: cc.UserID, Username: cc.Username, Tier: cc.Tier, Reputation: cc.Reputation}
	client.ReadPump(s.BaseCtx, func(ctx context.Context, msg []byte) {
		res := s.Engine.Handle(ctx, caller, msg)
		s.Hub.Deliver(caller.UserID, res.Intents)
		if res.Followup != nil {
			go func() {
				s.Hub.Deliver(caller.UserID, res.Followup(s.BaseCtx))
			}()
		}
	})

	// 置き換えられた古い接続の切断では何もしない
	if !s.Hub.Unregister(client) {
		s.Logger.Info("Replaced connection closed", zap.Uint("userID", cc.UserID))
		return
	}
	rooms := s.Hub.LeaveAll(cc.UserID)
	s.Hub.Deliver(cc.UserID, s.Engine.Disconnect(cc.UserID, rooms))
	s.Logger.Info("Client removed", zap.Uint("userID", cc.UserID), zap.Strings("rooms", rooms))
}
