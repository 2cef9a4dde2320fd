package match

import (
	"errors"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"debateserver/arena/errs"
	"debateserver/arena/matchmaking"
	"debateserver/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func newFactory(clock *fakeClock, threshold int) *Factory {
	f := NewFactory(rand.New(rand.NewSource(1)), clock.Now, threshold)
	f.newID = func() string { return "match-1" }
	return f
}

func group(ids ...uint) []matchmaking.Participant {
	out := make([]matchmaking.Participant, len(ids))
	for i, id := range ids {
		out[i] = matchmaking.Participant{UserID: id, Username: "user" + string(rune('a'+i)), Tier: "bronze"}
	}
	return out
}

func new1v1(t *testing.T, threshold int) (*Match, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: base}
	m := newFactory(clock, threshold).Create(models.Type1v1, matchmaking.AnyCategory, group(1, 2))
	return m, clock
}

func TestFactoryCreates1v1(t *testing.T) {
	m, _ := new1v1(t, 0)
	rec := m.Snapshot()

	assert.Equal(t, "match-1", rec.ID)
	assert.Equal(t, models.StatusActive, rec.Status)
	assert.Equal(t, models.SidePro, rec.CurrentSide)
	assert.Equal(t, 0, rec.CurrentRound)
	assert.Equal(t, base.Add(120*time.Second), rec.TurnEndsAt)
	assert.True(t, rec.BettingOpen)
	require.Len(t, rec.ProTeam, 1)
	require.Len(t, rec.ConTeam, 1)
	assert.Equal(t, uint(1), rec.ProTeam[0].UserID)
	assert.Equal(t, uint(2), rec.ConTeam[0].UserID)
	assert.Equal(t, RoleLead, rec.ProTeam[0].Role)

	require.Len(t, rec.Rounds, 4)
	durations := []int{120, 90, 60, 60}
	for i, r := range rec.Rounds {
		assert.Equal(t, i+1, r.Number)
		assert.Equal(t, durations[i], r.Duration)
	}
	assert.Equal(t, DefaultThreshold, m.threshold)
}

func TestFactorySplitsTeams(t *testing.T) {
	clock := &fakeClock{t: base}
	m := newFactory(clock, 0).Create(models.Type3v3, matchmaking.AnyCategory, group(1, 2, 3, 4, 5, 6))
	rec := m.Snapshot()

	assert.Equal(t, []uint{1, 2, 3}, teamIDs(rec.ProTeam))
	assert.Equal(t, []uint{4, 5, 6}, teamIDs(rec.ConTeam))
	role, ok := m.Role(5)
	assert.True(t, ok)
	assert.Equal(t, models.SideCon, role)
}

func TestFactoryPrefersCategoryTopic(t *testing.T) {
	clock := &fakeClock{t: base}
	m := newFactory(clock, 0).Create(models.Type1v1, "Politics", group(1, 2))
	assert.Equal(t, "Should voting be mandatory?", m.Snapshot().Topic.Title)

	assert.Equal(t, "Politics", m.Snapshot().Category)

	// 話題がないカテゴリでも待機列のカテゴリは残す
	m = newFactory(clock, 0).Create(models.Type1v1, "Sports", group(1, 2))
	assert.NotEmpty(t, m.Snapshot().Topic.Title)
	assert.NotEqual(t, "Sports", m.Snapshot().Topic.Category)
	assert.Equal(t, "Sports", m.Snapshot().Category)
	assert.Equal(t, "Sports", m.View().Category)

	m = newFactory(clock, 0).Create(models.Type1v1, "", group(1, 2))
	assert.Equal(t, matchmaking.AnyCategory, m.Snapshot().Category)
}

func TestAnonymousPlayersAreMasked(t *testing.T) {
	clock := &fakeClock{t: base}
	g := group(1, 2)
	g[0].Anonymous = true
	m := newFactory(clock, 0).Create(models.Type1v1, matchmaking.AnyCategory, g)

	alias := m.Snapshot().ProTeam[0].Alias
	assert.True(t, strings.HasPrefix(alias, "Anonymous_"))
	assert.Len(t, alias, len("Anonymous_")+5)
	assert.Equal(t, alias, m.DisplayName(1, "usera"))

	sub, err := m.Submit(1, "An opening statement.")
	require.NoError(t, err)
	assert.Zero(t, sub.Message.SenderID)
	assert.Equal(t, alias, sub.Message.SenderName)

	v := m.View()
	assert.Zero(t, v.ProTeam[0].UserID)
	assert.Equal(t, alias, v.ProTeam[0].Name)
	assert.Equal(t, uint(2), v.ConTeam[0].UserID)
	assert.Zero(t, v.Rounds[0].Messages[0].SenderID)
}

func TestFullMatchEndsAfterBothSidesReachThreshold(t *testing.T) {
	m, clock := new1v1(t, 0)

	var closings int
	for i := 0; i < 5; i++ {
		clock.t = clock.t.Add(10 * time.Second)
		sub, err := m.Submit(1, "Pro argument number one.")
		require.NoError(t, err)
		if sub.Closing != nil {
			closings++
		}

		clock.t = clock.t.Add(10 * time.Second)
		sub, err = m.Submit(2, "Con argument number one.")
		require.NoError(t, err)
		if sub.Closing != nil {
			closings++
			assert.Equal(t, 5, sub.Counts.Pro)
			assert.Equal(t, 5, sub.Counts.Con)
			assert.Equal(t, 5, strings.Count(sub.Closing.ProText, "Pro argument"))
			assert.Equal(t, 4, strings.Count(sub.Closing.ProText, ArgumentSeparator))
		}
	}

	assert.Equal(t, 1, closings)
	rec := m.Snapshot()
	assert.Equal(t, models.StatusFinished, rec.Status)
	assert.False(t, rec.BettingOpen)
	assert.NotNil(t, rec.EndedAt)

	_, ok := m.BeginSettlement()
	assert.False(t, ok)
	_, err := m.Submit(1, "One more argument.")
	assert.ErrorIs(t, err, errs.ErrAlreadyEnded)
}

func TestNotFinishedBeforeBothSidesReachThreshold(t *testing.T) {
	m, _ := new1v1(t, 0)
	for i := 0; i < 4; i++ {
		_, err := m.Submit(1, "pro says hello")
		require.NoError(t, err)
		_, err = m.Submit(2, "con says hello")
		require.NoError(t, err)
	}
	sub, err := m.Submit(1, "pro says hello")
	require.NoError(t, err)
	assert.Nil(t, sub.Closing)

	rec := m.Snapshot()
	assert.Equal(t, models.MessageCounts{Pro: 5, Con: 4}, rec.MessageCounts)
	assert.Equal(t, models.StatusActive, rec.Status)
	assert.Equal(t, models.SideCon, rec.CurrentSide)
}

func TestSubmitRejections(t *testing.T) {
	m, _ := new1v1(t, 0)

	_, err := m.Submit(2, "not my turn yet")
	assert.ErrorIs(t, err, errs.ErrWrongTurn)

	_, err = m.Submit(99, "who am I")
	assert.ErrorIs(t, err, errs.ErrNotParticipant)

	_, err = m.Submit(1, "abc")
	require.ErrorIs(t, err, errs.ErrInvalidContent)
	assert.Equal(t, "Argument too short. Please write at least 5 characters.", err.Error())

	_, err = m.Submit(1, strings.Repeat("x", 2001))
	assert.ErrorIs(t, err, errs.ErrInvalidContent)

	rec := m.Snapshot()
	assert.Equal(t, models.MessageCounts{}, rec.MessageCounts)
	assert.Equal(t, models.SidePro, rec.CurrentSide)
	assert.Empty(t, rec.Rounds[0].Messages)
}

func TestValidateArgumentCountsRunes(t *testing.T) {
	text, err := ValidateArgument("  日本語です  ")
	require.NoError(t, err)
	assert.Equal(t, "日本語です", text)

	_, err = ValidateArgument(strings.Repeat("語", 2000))
	assert.NoError(t, err)
	_, err = ValidateArgument("    ab     ")
	assert.ErrorIs(t, err, errs.ErrInvalidContent)
}

func TestRoundAdvancesAfterBothSidesSpeak(t *testing.T) {
	m, clock := new1v1(t, 0)

	sub, err := m.Submit(1, "opening from pro")
	require.NoError(t, err)
	assert.Nil(t, sub.RoundChanged)
	assert.Equal(t, models.SideCon, sub.NextTurn)
	assert.Equal(t, base.Add(120*time.Second), sub.TurnEndsAt)

	clock.t = base.Add(30 * time.Second)
	sub, err = m.Submit(2, "opening from con")
	require.NoError(t, err)
	require.NotNil(t, sub.RoundChanged)
	assert.Equal(t, 2, sub.RoundChanged.Number)
	assert.Equal(t, models.RoundRebuttal, sub.RoundChanged.Type)
	assert.Equal(t, 90, sub.RoundChanged.Duration)
	assert.Equal(t, models.SidePro, sub.RoundChanged.Side)
	assert.Equal(t, clock.t.Add(90*time.Second), sub.TurnEndsAt)

	rec := m.Snapshot()
	assert.Equal(t, 1, rec.CurrentRound)
	assert.NotNil(t, rec.Rounds[0].EndedAt)
	assert.NotNil(t, rec.Rounds[1].StartedAt)
}

func TestRoundsStopAtClosing(t *testing.T) {
	m, _ := new1v1(t, 10)
	for i := 0; i < 6; i++ {
		_, err := m.Submit(1, "pro speaks again")
		require.NoError(t, err)
		_, err = m.Submit(2, "con speaks again")
		require.NoError(t, err)
	}
	rec := m.Snapshot()
	assert.Equal(t, 3, rec.CurrentRound)
	assert.Equal(t, models.StatusActive, rec.Status)
	assert.Len(t, rec.Rounds[3].Messages, 6)
}

func TestSkipExpiredTurn(t *testing.T) {
	m, clock := new1v1(t, 0)

	_, ok := m.SkipExpiredTurn(base.Add(119 * time.Second))
	assert.False(t, ok)

	clock.t = base.Add(121 * time.Second)
	skip, ok := m.SkipExpiredTurn(clock.t)
	require.True(t, ok)
	assert.Equal(t, models.SidePro, skip.Side)
	assert.Equal(t, models.SideCon, skip.NextTurn)
	assert.Equal(t, clock.t.Add(120*time.Second), skip.TurnEndsAt)

	rec := m.Snapshot()
	assert.Equal(t, models.MessageCounts{}, rec.MessageCounts)
	assert.Empty(t, rec.Rounds[0].Messages)
}

func TestSkipNeverHandsTurnToExhaustedSide(t *testing.T) {
	m, clock := new1v1(t, 1)

	_, err := m.Submit(1, "the only pro argument")
	require.NoError(t, err)

	clock.t = base.Add(10 * time.Minute)
	skip, ok := m.SkipExpiredTurn(clock.t)
	require.True(t, ok)
	assert.Equal(t, models.SideCon, skip.Side)
	assert.Equal(t, models.SideCon, skip.NextTurn)

	_, err = m.Submit(1, "pro tries again")
	assert.ErrorIs(t, err, errs.ErrWrongTurn)

	sub, err := m.Submit(2, "the only con argument")
	require.NoError(t, err)
	assert.NotNil(t, sub.Closing)
}

func TestBattleRoyaleRoundRobin(t *testing.T) {
	clock := &fakeClock{t: base}
	m := newFactory(clock, 2).Create(models.TypeBattleRoyale, matchmaking.AnyCategory, group(1, 2, 3, 4))
	rec := m.Snapshot()

	assert.Empty(t, rec.CurrentSide)
	assert.Equal(t, uint(1), rec.CurrentSpeaker)
	assert.False(t, rec.BettingOpen)
	assert.Len(t, rec.Competitors, 4)

	_, err := m.Submit(2, "jumping the queue")
	assert.ErrorIs(t, err, errs.ErrWrongTurn)

	var closing *Closing
	for cycle := 0; cycle < 2; cycle++ {
		for id := uint(1); id <= 4; id++ {
			sub, err := m.Submit(id, "competitor argument here")
			require.NoError(t, err)
			if cycle == 0 && id == 4 {
				require.NotNil(t, sub.RoundChanged)
				assert.Equal(t, "usera", sub.RoundChanged.Speaker)
			}
			closing = sub.Closing
		}
	}

	require.NotNil(t, closing)
	require.Len(t, closing.Entries, 4)
	assert.Equal(t, 2, closing.Entries[0].Count)
	assert.Equal(t, "competitor argument here"+ArgumentSeparator+"competitor argument here", closing.Entries[0].Text)
	assert.Empty(t, closing.ProText)
}

func TestSpectators(t *testing.T) {
	m, _ := new1v1(t, 0)

	count, added := m.JoinSpectator(10)
	assert.True(t, added)
	assert.Equal(t, 1, count)

	count, added = m.JoinSpectator(10)
	assert.False(t, added)
	assert.Equal(t, 1, count)

	_, added = m.JoinSpectator(1)
	assert.False(t, added, "players are not spectators")

	count, _ = m.JoinSpectator(11)
	assert.Equal(t, 2, count)
	assert.True(t, m.IsSpectator(11))

	count, removed := m.LeaveSpectator(10)
	assert.True(t, removed)
	assert.Equal(t, 1, count)
	_, removed = m.LeaveSpectator(10)
	assert.False(t, removed)
	assert.Equal(t, 1, m.SpectatorCount())
}

func TestReactions(t *testing.T) {
	m, _ := new1v1(t, 0)

	glyph, count, err := m.React("fire")
	require.NoError(t, err)
	assert.Equal(t, "🔥", glyph)
	assert.Equal(t, 1, count)

	glyph, count, err = m.React("🔥")
	require.NoError(t, err)
	assert.Equal(t, "🔥", glyph)
	assert.Equal(t, 2, count)

	_, _, err = m.React("banana")
	assert.ErrorIs(t, err, errs.ErrInvalidReaction)
	assert.Equal(t, map[string]int{"fire": 2}, m.Snapshot().Reactions)
}

func TestOdds(t *testing.T) {
	tests := []struct {
		pool models.Pool
		side string
		want float64
	}{
		{models.Pool{}, models.SidePro, 2.0},
		{models.Pool{Total: 100, Pro: 100}, models.SideCon, 2.0},
		{models.Pool{Total: 300, Pro: 100, Con: 200}, models.SidePro, 3.0},
		{models.Pool{Total: 300, Pro: 100, Con: 200}, models.SideCon, 1.5},
		{models.Pool{Total: 700, Pro: 300, Con: 400}, models.SidePro, 2.33},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Odds(tt.pool, tt.side))
	}
}

func TestWager(t *testing.T) {
	m, _ := new1v1(t, 0)

	var seen float64
	pool, odds, err := m.Wager(models.SidePro, 100, func(o float64) error {
		seen = o
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2.0, seen)
	assert.Equal(t, 2.0, odds)
	assert.Equal(t, models.Pool{Total: 100, Pro: 100}, pool)

	_, _, err = m.Wager(models.SideCon, 50, func(float64) error { return errors.New("debit failed") })
	assert.Error(t, err)
	assert.Equal(t, models.Pool{Total: 100, Pro: 100}, m.Snapshot().BettingPool)

	_, _, err = m.Wager("draw", 50, func(float64) error { return nil })
	assert.ErrorIs(t, err, errs.ErrInvalidSide)

	m.BeginSettlement()
	assert.False(t, m.BettingOpen())
	_, _, err = m.Wager(models.SidePro, 50, func(float64) error {
		t.Fatal("commit must not run after betting closes")
		return nil
	})
	assert.ErrorIs(t, err, errs.ErrBettingClosed)
}

func TestSettlementBeginsOnceUnderRace(t *testing.T) {
	m, _ := new1v1(t, 0)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := m.BeginSettlement(); ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestRecordResultOnce(t *testing.T) {
	m, _ := new1v1(t, 0)

	_, ok := m.RecordResult(Result{Winner: models.SidePro})
	assert.False(t, ok, "result needs settlement to have begun")

	m.BeginSettlement()
	rec, ok := m.RecordResult(Result{Winner: models.SideCon, ProScore: 40, ConScore: 60, Reasoning: "CON was clearer."})
	require.True(t, ok)
	assert.Equal(t, models.Winner{Side: models.SideCon, Team: []uint{2}, Score: 60, Margin: 20}, rec.Winner)
	assert.Equal(t, 40, rec.LoserScore)
	assert.True(t, rec.ResultRecorded)

	rec, ok = m.RecordResult(Result{Winner: models.SidePro, ProScore: 90, ConScore: 10})
	assert.False(t, ok)
	assert.Equal(t, models.SideCon, rec.Winner.Side)
}

func TestRecordDrawResult(t *testing.T) {
	m, _ := new1v1(t, 0)
	m.BeginSettlement()

	rec, ok := m.RecordResult(Result{Winner: models.SideDraw, ProScore: 52, ConScore: 48, Reasoning: "close"})
	require.True(t, ok)
	assert.Equal(t, models.SideDraw, rec.Winner.Side)
	assert.Empty(t, rec.Winner.Team)
	assert.Equal(t, 4, rec.Winner.Margin)
}

func TestEndedPayloadIsReconstructible(t *testing.T) {
	clock := &fakeClock{t: base}
	g := group(1, 2)
	g[1].Anonymous = true
	m := newFactory(clock, 0).Create(models.Type1v1, matchmaking.AnyCategory, g)
	m.BeginSettlement()
	rec, _ := m.RecordResult(Result{Winner: models.SideCon, ProScore: 30, ConScore: 70, Reasoning: "r"})

	ended := EndedPayload(rec)
	assert.Equal(t, "match-1", ended.MatchID)
	assert.Equal(t, models.SideCon, ended.Winner)
	assert.Equal(t, 40, ended.Margin)
	assert.Equal(t, Rewards{Winner: 100, Loser: 25, Draw: 50, Reputation: 10}, ended.XPRewards)
	require.Len(t, ended.ConTeam, 1)
	assert.Zero(t, ended.ConTeam[0].UserID)
	assert.Equal(t, []string{rec.ConTeam[0].Alias}, ended.WinnerTeam)

	assert.Equal(t, ended, EndedPayload(m.Snapshot()))
}

func TestRegistry(t *testing.T) {
	m, _ := new1v1(t, 0)
	r := NewRegistry()
	r.Add(m)

	got, ok := r.Get("match-1")
	require.True(t, ok)
	assert.Same(t, m, got)

	got, ok = r.PlayerMatch(2)
	require.True(t, ok)
	assert.Same(t, m, got)
	assert.Len(t, r.Active(), 1)

	r.Remove("match-1")
	_, ok = r.Get("match-1")
	assert.False(t, ok)
	_, ok = r.PlayerMatch(2)
	assert.False(t, ok)
	r.Remove("match-1")
}
