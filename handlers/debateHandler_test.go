package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"debateserver/arena/match"
	"debateserver/arena/matchmaking"
	"debateserver/auth"
	"debateserver/middlewares"
	"debateserver/models"
	"debateserver/store"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeHistory struct {
	entries []store.ChatEntry
	limit   int64
	err     error
}

func (f *fakeHistory) Recent(ctx context.Context, matchID string, limit int64) ([]store.ChatEntry, error) {
	f.limit = limit
	return f.entries, f.err
}

type env struct {
	router   *gin.Engine
	registry *match.Registry
	store    *store.MemoryStore
	history  *fakeHistory
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()
	e := &env{registry: match.NewRegistry(), store: store.NewMemoryStore(), history: &fakeHistory{}}

	r := gin.New()
	r.GET("/health", HealthHandler)
	r.GET("/debates/live", func(c *gin.Context) { LiveDebatesHandler(c, e.registry, logger) })
	r.GET("/debates/:id", func(c *gin.Context) { DebateHandler(c, e.registry, e.store, logger) })
	r.GET("/debates/:id/replay", func(c *gin.Context) { ReplayHandler(c, e.registry, e.store, logger) })
	r.GET("/debates/:id/odds", func(c *gin.Context) { OddsHandler(c, e.registry, e.store, logger) })
	r.GET("/debates/:id/chat", func(c *gin.Context) { ChatHandler(c, e.history, logger) })
	r.GET("/users/me/bets", middlewares.AuthRequired(logger), func(c *gin.Context) { MyBetsHandler(c, e.store, logger) })
	e.router = r
	return e
}

func (e *env) get(t *testing.T, path string, header ...string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if len(header) == 2 {
		req.Header.Set(header[0], header[1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func (e *env) addMatch(category string, spectators int, ids ...uint) *match.Match {
	f := match.NewFactory(rand.New(rand.NewSource(int64(ids[0]))), time.Now, 0)
	group := make([]matchmaking.Participant, len(ids))
	for i, id := range ids {
		group[i] = matchmaking.Participant{UserID: id, Username: "p", Anonymous: i == 0}
	}
	m := f.Create(models.Type1v1, category, group)
	for i := 0; i < spectators; i++ {
		m.JoinSpectator(uint(1000 + int(ids[0])*10 + i))
	}
	e.registry.Add(m)
	return m
}

func TestHealth(t *testing.T) {
	code, body := newEnv(t).get(t, "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestLiveDebatesSortedBySpectators(t *testing.T) {
	e := newEnv(t)
	quiet := e.addMatch("Politics", 0, 1, 2)
	busy := e.addMatch("Technology", 3, 3, 4)

	code, body := e.get(t, "/debates/live")
	require.Equal(t, http.StatusOK, code)
	debates := body["debates"].([]interface{})
	require.Len(t, debates, 2)
	assert.Equal(t, busy.ID(), debates[0].(map[string]interface{})["id"])
	assert.Equal(t, quiet.ID(), debates[1].(map[string]interface{})["id"])

	_, body = e.get(t, "/debates/live?category=tech")
	debates = body["debates"].([]interface{})
	require.Len(t, debates, 1)
	assert.Equal(t, busy.ID(), debates[0].(map[string]interface{})["id"])

	code, _ = e.get(t, "/debates/live?category=zzzz")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestLiveDebatesFilterOnQueueCategory(t *testing.T) {
	e := newEnv(t)
	sports := e.addMatch("Sports", 0, 1, 2)
	open := e.addMatch(matchmaking.AnyCategory, 0, 3, 4)
	require.NotEqual(t, "Sports", sports.View().Topic.Category)

	_, body := e.get(t, "/debates/live?category=sports")
	debates := body["debates"].([]interface{})
	require.Len(t, debates, 1)
	assert.Equal(t, sports.ID(), debates[0].(map[string]interface{})["id"])
	assert.Equal(t, "Sports", debates[0].(map[string]interface{})["category"])

	_, body = e.get(t, "/debates/live?category="+open.View().Topic.Category)
	var ids []string
	for _, d := range body["debates"].([]interface{}) {
		ids = append(ids, d.(map[string]interface{})["id"].(string))
	}
	assert.Contains(t, ids, open.ID())
	assert.NotContains(t, ids, sports.ID())
}

func TestDebateViewHidesAnonymousIdentity(t *testing.T) {
	e := newEnv(t)
	m := e.addMatch("", 0, 11, 12)

	code, body := e.get(t, "/debates/"+m.ID())
	require.Equal(t, http.StatusOK, code)
	pro := body["match"].(map[string]interface{})["proTeam"].([]interface{})[0].(map[string]interface{})
	assert.NotContains(t, pro, "userId")
	assert.Equal(t, true, pro["isAnonymous"])

	code, _ = e.get(t, "/debates/"+m.ID()+"/replay")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = e.get(t, "/debates/missing")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestReplayAndOddsFromStore(t *testing.T) {
	e := newEnv(t)
	ended := time.Now()
	require.NoError(t, e.store.SaveDebate(context.Background(), &models.Debate{
		ID:             "done-1",
		Type:           models.Type1v1,
		ProTeam:        []models.TeamMember{{UserID: 1, Username: "alice"}},
		ConTeam:        []models.TeamMember{{UserID: 2, Username: "bob"}},
		Status:         models.StatusFinished,
		Winner:         models.Winner{Side: models.SideCon, Team: []uint{2}, Score: 60, Margin: 20},
		Scores:         models.Scores{Pro: 40, Con: 60},
		BettingPool:    models.Pool{Total: 300, Pro: 100, Con: 200},
		ResultRecorded: true,
		EndedAt:        &ended,
	}))

	code, body := e.get(t, "/debates/done-1/replay")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, models.SideCon, body["result"].(map[string]interface{})["winner"])

	code, body = e.get(t, "/debates/done-1/odds")
	require.Equal(t, http.StatusOK, code)
	odds := body["odds"].(map[string]interface{})
	assert.Equal(t, 3.0, odds["pro"])
	assert.Equal(t, 1.5, odds["con"])
	assert.Equal(t, false, body["bettingOpen"])
}

func TestChatHistory(t *testing.T) {
	e := newEnv(t)
	e.history.entries = []store.ChatEntry{{MatchID: "m", Username: "u", Message: "hi"}}

	code, body := e.get(t, "/debates/m/chat?limit=500")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["messages"], 1)
	assert.Equal(t, int64(maxChatLimit), e.history.limit)

	code, _ = e.get(t, "/debates/m/chat?limit=-1")
	assert.Equal(t, http.StatusBadRequest, code)

	e.history.err = errors.New("mongo down")
	code, _ = e.get(t, "/debates/m/chat")
	assert.Equal(t, http.StatusInternalServerError, code)
}

func TestMyBets(t *testing.T) {
	e := newEnv(t)
	auth.SetKey("handler-secret")
	require.NoError(t, e.store.CreateBet(context.Background(), &models.Bet{ID: "b1", DebateID: "m", BettorID: 5, PredictedSide: "pro", Amount: 100, OddsAtBet: 2, Result: models.BetPending}))

	code, _ := e.get(t, "/users/me/bets")
	assert.Equal(t, http.StatusUnauthorized, code)

	token, err := auth.GenerateToken(5, "frank", time.Hour)
	require.NoError(t, err)
	code, body := e.get(t, "/users/me/bets", "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, code)
	bets := body["bets"].([]interface{})
	require.Len(t, bets, 1)
	assert.Equal(t, "b1", bets[0].(map[string]interface{})["id"])
}
