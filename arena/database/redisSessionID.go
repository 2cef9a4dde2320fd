package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionTTL はセッションの有効期限
const SessionTTL = 24 * time.Hour

var ErrInvalidSession = errors.New("invalid or expired session")

// Session は再接続時に復元する情報
type Session struct {
	UserID uint     `json:"userID"`
	Rooms  []string `json:"rooms"`
}

// SessionStore はRedisに再接続用のセッションを保存する
// session:<id> に内容を、user_session:<userID> に最新のセッションIDを置く
type SessionStore struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewSessionStore(rdb *redis.Client, logger *zap.Logger) *SessionStore {
	return &SessionStore{rdb: rdb, ttl: SessionTTL, logger: logger}
}

func sessionKey(sessionID string) string {
	return "session:" + sessionID
}

func userKey(userID uint) string {
	return "user_session:" + strconv.FormatUint(uint64(userID), 10)
}

func encodeSession(s Session) ([]byte, error) {
	if s.Rooms == nil {
		s.Rooms = []string{}
	}
	return json.Marshal(s)
}

func decodeSession(raw string) (Session, error) {
	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return Session{}, fmt.Errorf("decode session: %w", err)
	}
	if s.UserID == 0 {
		return Session{}, ErrInvalidSession
	}
	return s, nil
}

// GenerateAndStore は新しいセッションIDを発行して保存する
func (s *SessionStore) GenerateAndStore(ctx context.Context, userID uint, rooms []string) (string, error) {
	sessionID := uuid.New().String()

	body, err := encodeSession(Session{UserID: userID, Rooms: rooms})
	if err != nil {
		s.logger.Error("Error encoding session info", zap.Error(err))
		return "", err
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey(sessionID), body, s.ttl)
		pipe.Set(ctx, userKey(userID), sessionID, s.ttl)
		return nil
	})
	if err != nil {
		s.logger.Error("Error storing session info in Redis", zap.Error(err))
		return "", err
	}
	return sessionID, nil
}

// Validate はセッションを読み出す。別のユーザーのセッションなら無効とする
// 使用済みのセッションは削除する
func (s *SessionStore) Validate(ctx context.Context, sessionID string, userID uint) (Session, error) {
	if sessionID == "" {
		return Session{}, ErrInvalidSession
	}
	raw, err := s.rdb.Get(ctx, sessionKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return Session{}, ErrInvalidSession
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	session, err := decodeSession(raw)
	if err != nil {
		return Session{}, err
	}
	if session.UserID != userID {
		return Session{}, ErrInvalidSession
	}
	if err := s.Delete(ctx, sessionID); err != nil {
		s.logger.Warn("Failed to delete used session", zap.String("sessionID", sessionID), zap.Error(err))
	}
	return session, nil
}

// UpdateRooms はユーザーの最新のセッションに参加中の部屋を書き込む。有効期限は変えない
func (s *SessionStore) UpdateRooms(ctx context.Context, userID uint, rooms []string) error {
	sessionID, err := s.rdb.Get(ctx, userKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("get user session: %w", err)
	}
	body, err := encodeSession(Session{UserID: userID, Rooms: rooms})
	if err != nil {
		return err
	}
	if err := s.rdb.SetArgs(ctx, sessionKey(sessionID), body, redis.SetArgs{KeepTTL: true, Mode: "XX"}).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("update session rooms: %w", err)
	}
	return nil
}

// Delete はセッションを削除する
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	return s.rdb.Del(ctx, sessionKey(sessionID)).Err()
}
