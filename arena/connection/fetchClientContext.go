package connection

import (
	"context"
	"fmt"
	"net/http"

	"debateserver/auth"
	"debateserver/store"

	"go.uber.org/zap"
)

// ClientContext は接続時に確定する送信者の情報
type ClientContext struct {
	UserID     uint
	Username   string
	Tier       string
	Reputation int
	SessionID  string
}

// TokenFromRequest は Authorization ヘッダー、なければ token クエリからトークンを取り出す
// ブラウザのWebSocketはヘッダーを付けられないためクエリも受け付ける
func TokenFromRequest(r *http.Request) string {
	if token := auth.BearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	return r.URL.Query().Get("token")
}

// SessionIDFromRequest は再接続用のセッションIDを取り出す
func SessionIDFromRequest(r *http.Request) string {
	if id := r.Header.Get("SessionID"); id != "" {
		return id
	}
	return r.URL.Query().Get("sessionId")
}

func FetchClientContext(ctx context.Context, r *http.Request, s store.Store, logger *zap.Logger) (*ClientContext, error) {
	claims, err := auth.ParseToken(TokenFromRequest(r))
	if err != nil {
		logger.Warn("Failed to validate token", zap.Error(err))
		return nil, fmt.Errorf("unauthorized: %w", err)
	}

	user, err := s.GetUser(ctx, claims.UserID)
	if err != nil {
		logger.Error("Failed to fetch user", zap.Uint("userID", claims.UserID), zap.Error(err))
		return nil, fmt.Errorf("user fetch failed: %w", err)
	}

	username := user.Username
	if username == "" {
		username = claims.Username
	}
	return &ClientContext{
		UserID:     claims.UserID,
		Username:   username,
		Tier:       user.Tier,
		Reputation: user.Reputation,
		SessionID:  SessionIDFromRequest(r),
	}, nil
}
