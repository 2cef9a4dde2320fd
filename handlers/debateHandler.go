package handlers

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"debateserver/arena/match"
	"debateserver/arena/matchmaking"
	"debateserver/middlewares"
	"debateserver/models"
	"debateserver/store"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	maxLiveDebates   = 20
	defaultChatLimit = 50
	maxChatLimit     = 200
	maxBetHistory    = 50
)

// ChatHistory は観戦チャットの履歴の取得元
type ChatHistory interface {
	Recent(ctx context.Context, matchID string, limit int64) ([]store.ChatEntry, error)
}

func HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// LiveDebatesHandler は進行中の試合を観戦者数の多い順に返す
func LiveDebatesHandler(c *gin.Context, registry *match.Registry, logger *zap.Logger) {
	category := ""
	if q := c.Query("category"); q != "" {
		resolved, err := matchmaking.ResolveCategory(q)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown category"})
			return
		}
		if resolved != matchmaking.AnyCategory {
			category = resolved
		}
	}

	views := make([]match.View, 0)
	for _, m := range registry.Active() {
		v := m.View()
		if v.Status != models.StatusActive {
			continue
		}
		if category != "" && !inCategory(v, category) {
			continue
		}
		views = append(views, v)
	}
	sort.SliceStable(views, func(i, j int) bool { return views[i].SpectatorCount > views[j].SpectatorCount })
	if len(views) > maxLiveDebates {
		views = views[:maxLiveDebates]
	}
	c.JSON(http.StatusOK, gin.H{"debates": views})
}

// inCategory はカテゴリ指定で待機した試合か、指定なしで待機して話題がそのカテゴリの試合かどうか
func inCategory(v match.View, category string) bool {
	if strings.EqualFold(v.Category, category) {
		return true
	}
	return v.Category == matchmaking.AnyCategory && strings.EqualFold(v.Topic.Category, category)
}

// loadDebate は進行中ならメモリから、なければストアから試合を読む
func loadDebate(c *gin.Context, registry *match.Registry, s store.Store, logger *zap.Logger) (models.Debate, bool) {
	id := c.Param("id")
	if m, ok := registry.Get(id); ok {
		return m.Snapshot(), true
	}
	rec, err := s.GetDebate(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Debate not found"})
		return models.Debate{}, false
	}
	if err != nil {
		logger.Error("Failed to load debate", zap.String("matchID", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load debate"})
		return models.Debate{}, false
	}
	return rec, true
}

func DebateHandler(c *gin.Context, registry *match.Registry, s store.Store, logger *zap.Logger) {
	rec, ok := loadDebate(c, registry, s, logger)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"match": match.ViewOf(rec)})
}

// ReplayHandler は終了済みの試合の全発言と結果を返す
func ReplayHandler(c *gin.Context, registry *match.Registry, s store.Store, logger *zap.Logger) {
	rec, ok := loadDebate(c, registry, s, logger)
	if !ok {
		return
	}
	if rec.Status != models.StatusFinished || !rec.ResultRecorded {
		c.JSON(http.StatusNotFound, gin.H{"error": "Replay is available after the debate ends"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"match": match.ViewOf(rec), "result": match.EndedPayload(rec)})
}

func OddsHandler(c *gin.Context, registry *match.Registry, s store.Store, logger *zap.Logger) {
	if m, ok := registry.Get(c.Param("id")); ok {
		pool, pro, con := m.CurrentOdds()
		c.JSON(http.StatusOK, gin.H{
			"pool":        pool,
			"odds":        match.OddsView{Pro: pro, Con: con},
			"bettingOpen": m.BettingOpen(),
		})
		return
	}
	rec, ok := loadDebate(c, registry, s, logger)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"pool":        rec.BettingPool,
		"odds":        match.OddsView{Pro: match.Odds(rec.BettingPool, models.SidePro), Con: match.Odds(rec.BettingPool, models.SideCon)},
		"bettingOpen": false,
	})
}

// ChatHandler は保存済みの観戦チャットを古い順に返す
func ChatHandler(c *gin.Context, history ChatHistory, logger *zap.Logger) {
	if history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Chat history is not available"})
		return
	}
	limit := defaultChatLimit
	if q := c.Query("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = min(n, maxChatLimit)
	}

	entries, err := history.Recent(c.Request.Context(), c.Param("id"), int64(limit))
	if err != nil {
		logger.Error("Failed to load chat history", zap.String("matchID", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load chat history"})
		return
	}
	if entries == nil {
		entries = []store.ChatEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": entries})
}

// MyBetsHandler はログイン中のユーザーの賭けを新しい順に返す
func MyBetsHandler(c *gin.Context, s store.Store, logger *zap.Logger) {
	userID, ok := middlewares.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	bets, err := s.BetsByUser(c.Request.Context(), userID, maxBetHistory)
	if err != nil {
		logger.Error("Failed to load bets", zap.Uint("userID", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load bets"})
		return
	}
	if bets == nil {
		bets = []models.Bet{}
	}
	c.JSON(http.StatusOK, gin.H{"bets": bets})
}
