package connection

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"debateserver/auth"
	"debateserver/models"
	"debateserver/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestFetchClientContext(t *testing.T) {
	auth.SetKey("connection-secret")
	s := store.NewMemoryStore()
	s.PutUser(models.User{Model: gorm.Model{ID: 9}, Username: "dana", Tier: "gold", Reputation: 30})

	token, err := auth.GenerateToken(9, "dana", time.Hour)
	require.NoError(t, err)

	r := httptest.NewRequest("GET", "/ws?token="+token+"&sessionId=s-1", nil)
	cc, err := FetchClientContext(context.Background(), r, s, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, &ClientContext{UserID: 9, Username: "dana", Tier: "gold", Reputation: 30, SessionID: "s-1"}, cc)

	r = httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	r.Header.Set("SessionID", "s-2")
	cc, err = FetchClientContext(context.Background(), r, s, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "s-2", cc.SessionID)

	_, err = FetchClientContext(context.Background(), httptest.NewRequest("GET", "/ws", nil), s, zap.NewNop())
	assert.Error(t, err)

	stranger, err := auth.GenerateToken(10, "eve", time.Hour)
	require.NoError(t, err)
	_, err = FetchClientContext(context.Background(), httptest.NewRequest("GET", "/ws?token="+stranger, nil), s, zap.NewNop())
	assert.Error(t, err)
}
