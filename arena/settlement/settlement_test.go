package settlement

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"debateserver/arena/betting"
	"debateserver/arena/match"
	"debateserver/arena/matchmaking"
	"debateserver/judge"
	"debateserver/models"
	"debateserver/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	detailed = "Public funding for universities pays for itself through higher tax revenue. Graduates earn more and contribute more over their lifetimes. Free tuition also widens access for families who could never afford it."
	terse    = "Too expensive."
)

type fakeJudge struct {
	mu      sync.Mutex
	verdict judge.Verdict
	err     error
	calls   int
}

func (f *fakeJudge) Rank(ctx context.Context, topic, proText, conText string) (judge.Verdict, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.verdict, f.err
}

type recordingArchiver struct {
	keys []string
	err  error
}

func (a *recordingArchiver) Archive(ctx context.Context, d models.Debate) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	a.keys = append(a.keys, d.ID)
	return "transcripts/" + d.ID + ".json", nil
}

type recordingAnnouncer struct{ ids []string }

func (a *recordingAnnouncer) Announce(ctx context.Context, d models.Debate) error {
	a.ids = append(a.ids, d.ID)
	return nil
}

func TestRawScoreIsDeterministic(t *testing.T) {
	assert.InDelta(t, 39.0, RawScore(detailed), 1e-9)
	assert.InDelta(t, 10.6, RawScore(terse), 1e-9)
	assert.InDelta(t, 10.0, RawScore(""), 1e-9)
	assert.InDelta(t, 22.4, RawScore("one two three four five six seven eight."), 1e-9)
	assert.Equal(t, RawScore(detailed), RawScore(detailed))
}

func TestFallback(t *testing.T) {
	v := Fallback(detailed, terse)
	assert.Equal(t, judge.Verdict{Winner: models.SidePro, ProScore: 79, ConScore: 21, Reasoning: "PRO presented more detailed and diverse arguments."}, v)

	v = Fallback(terse, detailed)
	assert.Equal(t, models.SideCon, v.Winner)
	assert.Equal(t, 21, v.ProScore)
	assert.Equal(t, "CON presented more detailed and diverse arguments.", v.Reasoning)

	v = Fallback("a b c d e f g h.", "a b c d e f g h i.")
	assert.Equal(t, judge.Verdict{Winner: models.SideDraw, ProScore: 50, ConScore: 50, Reasoning: "Both sides presented equally strong arguments."}, v)
}

func TestNormalize(t *testing.T) {
	pro, con := Normalize(0, 0)
	assert.Equal(t, 50, pro)
	assert.Equal(t, 50, con)

	pro, con = Normalize(1, 3)
	assert.Equal(t, 25, pro)
	assert.Equal(t, 75, con)
}

func TestRankCompetitors(t *testing.T) {
	res := RankCompetitors([]match.Entry{
		{UserID: 3, Name: "c", Text: ""},
		{UserID: 1, Name: "a", Text: detailed},
		{UserID: 2, Name: "b", Text: terse},
		{UserID: 4, Name: "d", Text: ""},
	})
	assert.Equal(t, models.SideCompetitor, res.Winner)
	assert.Equal(t, uint(1), res.WinnerID)
	require.Len(t, res.Standings, 4)
	assert.Equal(t, 56, res.Standings[0].Score)
	assert.Equal(t, 15, res.Standings[1].Score)
	assert.Equal(t, "a presented the most detailed and diverse arguments.", res.Reasoning)

	res = RankCompetitors([]match.Entry{
		{UserID: 1, Text: terse},
		{UserID: 2, Text: terse},
	})
	assert.Equal(t, models.SideDraw, res.Winner)
	assert.Zero(t, res.WinnerID)
}

type fixture struct {
	store    *store.MemoryStore
	registry *match.Registry
	ledger   *betting.Ledger
	match    *match.Match
}

func newFixture(t *testing.T, matchType string, ids ...uint) fixture {
	t.Helper()
	s := store.NewMemoryStore()
	group := make([]matchmaking.Participant, 0, len(ids))
	for _, id := range ids {
		s.PutUser(models.User{Model: gorm.Model{ID: id}, Username: "player", XP: 1000})
		group = append(group, matchmaking.Participant{UserID: id, Username: "player"})
	}
	for _, id := range []uint{100, 101} {
		s.PutUser(models.User{Model: gorm.Model{ID: id}, Username: "bettor", XP: 1000})
	}

	f := match.NewFactory(rand.New(rand.NewSource(7)), func() time.Time { return time.Unix(1700000000, 0) }, 0)
	m := f.Create(matchType, matchmaking.AnyCategory, group)
	reg := match.NewRegistry()
	reg.Add(m)
	return fixture{store: s, registry: reg, ledger: betting.NewLedger(s, zap.NewNop()), match: m}
}

func (fx fixture) user(t *testing.T, id uint) models.User {
	t.Helper()
	u, err := fx.store.GetUser(context.Background(), id)
	require.NoError(t, err)
	return u
}

func TestTriggerSettlesOnceWithJudgeVerdict(t *testing.T) {
	fx := newFixture(t, models.Type2v2, 1, 2, 3, 4)
	ctx := context.Background()
	_, err := fx.ledger.Place(ctx, fx.match, 100, models.SidePro, 100)
	require.NoError(t, err)
	_, err = fx.ledger.Place(ctx, fx.match, 101, models.SideCon, 100)
	require.NoError(t, err)

	j := &fakeJudge{verdict: judge.Verdict{Winner: models.SidePro, ProScore: 72, ConScore: 58, Reasoning: "PRO cited evidence."}}
	archiver := &recordingArchiver{}
	announcer := &recordingAnnouncer{}
	p := New(fx.store, j, fx.ledger, fx.registry, zap.NewNop(), WithArchiver(archiver), WithAnnouncer(announcer))

	var wg sync.WaitGroup
	var mu sync.Mutex
	var outcomes []Outcome
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if out, ok := p.Trigger(ctx, fx.match); ok {
				mu.Lock()
				outcomes = append(outcomes, out)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, outcomes, 1)
	out := outcomes[0]
	assert.False(t, out.Fallback)
	assert.Equal(t, 1, j.calls)
	assert.Equal(t, models.SidePro, out.Ended.Winner)
	assert.Equal(t, 14, out.Ended.Margin)
	assert.Equal(t, "PRO cited evidence.", out.Ended.Reasoning)

	for _, id := range []uint{1, 2} {
		u := fx.user(t, id)
		assert.Equal(t, 1100, u.XP)
		assert.Equal(t, 10, u.Reputation)
		assert.Equal(t, 1, u.Wins)
		assert.Equal(t, 1, u.WinStreak)
	}
	for _, id := range []uint{3, 4} {
		u := fx.user(t, id)
		assert.Equal(t, 1025, u.XP)
		assert.Equal(t, 1, u.Losses)
		assert.Equal(t, 0, u.WinStreak)
	}

	assert.Equal(t, 1000-100+200, fx.user(t, 100).XP)
	assert.Equal(t, 900, fx.user(t, 101).XP)
	assert.Equal(t, 1, out.Bets.Won)
	assert.Equal(t, 1, out.Bets.Lost)

	saved, err := fx.store.GetDebate(ctx, fx.match.ID())
	require.NoError(t, err)
	assert.Equal(t, models.StatusFinished, saved.Status)
	assert.True(t, saved.ResultRecorded)
	assert.Equal(t, out.Ended, match.EndedPayload(saved))

	_, ok := fx.registry.Get(fx.match.ID())
	assert.False(t, ok)
	assert.Equal(t, []string{fx.match.ID()}, archiver.keys)
	assert.Equal(t, []string{fx.match.ID()}, announcer.ids)
}

func TestJudgeFailureFallsBack(t *testing.T) {
	fx := newFixture(t, models.Type1v1, 1, 2)
	for i := 0; i < 5; i++ {
		_, err := fx.match.Submit(1, detailed)
		require.NoError(t, err)
		sub, err := fx.match.Submit(2, terse)
		require.NoError(t, err)
		if i == 4 {
			require.NotNil(t, sub.Closing)
			p := New(fx.store, &fakeJudge{err: judge.ErrUnavailable}, fx.ledger, fx.registry, zap.NewNop())
			out := p.Complete(context.Background(), fx.match, sub.Closing)
			assert.True(t, out.Fallback)
			assert.Equal(t, models.SidePro, out.Record.Winner.Side)
			assert.Equal(t, "PRO presented more detailed and diverse arguments.", out.Record.Reasoning)
		}
	}
}

func TestNilJudgeUsesFallbackDraw(t *testing.T) {
	fx := newFixture(t, models.Type1v1, 1, 2)
	p := New(fx.store, nil, fx.ledger, fx.registry, zap.NewNop())

	out, ok := p.Trigger(context.Background(), fx.match)
	require.True(t, ok)
	assert.True(t, out.Fallback)
	assert.Equal(t, models.SideDraw, out.Record.Winner.Side)
	assert.Equal(t, 50, out.Record.Scores.Pro)

	for _, id := range []uint{1, 2} {
		u := fx.user(t, id)
		assert.Equal(t, 1050, u.XP)
		assert.Equal(t, 1, u.Draws)
		assert.Equal(t, 1, u.TotalDebates)
	}
}

func TestRewardFailureIsIsolated(t *testing.T) {
	fx := newFixture(t, models.Type2v2, 1, 2, 3, 4)
	fx.store.FailReward[1] = errors.New("row locked")
	archiver := &recordingArchiver{err: errors.New("bucket missing")}

	p := New(fx.store, &fakeJudge{verdict: judge.Verdict{Winner: models.SideCon, ProScore: 40, ConScore: 60}}, fx.ledger, fx.registry, zap.NewNop(), WithArchiver(archiver))
	out, ok := p.Trigger(context.Background(), fx.match)
	require.True(t, ok)
	assert.Equal(t, models.SideCon, out.Record.Winner.Side)
	assert.Equal(t, judge.DefaultReasoning, out.Record.Reasoning)

	assert.Equal(t, 1000, fx.user(t, 1).XP)
	assert.Equal(t, 1025, fx.user(t, 2).XP)
	assert.Equal(t, 1100, fx.user(t, 3).XP)
	assert.Equal(t, 1100, fx.user(t, 4).XP)
}

func TestBattleRoyaleRewards(t *testing.T) {
	fx := newFixture(t, models.TypeBattleRoyale, 1, 2, 3, 4)
	j := &fakeJudge{}
	p := New(fx.store, j, fx.ledger, fx.registry, zap.NewNop())

	_, err := fx.match.Submit(1, detailed)
	require.NoError(t, err)
	out, ok := p.Trigger(context.Background(), fx.match)
	require.True(t, ok)

	assert.Zero(t, j.calls)
	assert.Equal(t, models.SideCompetitor, out.Record.Winner.Side)
	assert.Equal(t, []uint{1}, out.Record.Winner.Team)
	assert.Equal(t, 1100, fx.user(t, 1).XP)
	assert.Equal(t, 1025, fx.user(t, 2).XP)
}

func TestRewardLines(t *testing.T) {
	rec := models.Debate{
		ProTeam: []models.TeamMember{{UserID: 1}},
		ConTeam: []models.TeamMember{{UserID: 2}},
		Winner:  models.Winner{Side: models.SideCon, Team: []uint{2}},
	}
	lines := RewardLines(rec)
	require.Len(t, lines, 2)
	assert.Equal(t, store.Reward{XP: 25, Losses: 1, TotalDebates: 1, StreakReset: true}, lines[0].Reward)
	assert.Equal(t, store.Reward{XP: 100, Reputation: 10, Wins: 1, TotalDebates: 1, StreakIncrement: true}, lines[1].Reward)
}

func TestReconcileBets(t *testing.T) {
	fx := newFixture(t, models.Type1v1, 1, 2)
	ctx := context.Background()
	_, err := fx.ledger.Place(ctx, fx.match, 100, models.SideCon, 200)
	require.NoError(t, err)

	// 結果の保存直後に停止した状況を再現する
	fx.match.BeginSettlement()
	rec, ok := fx.match.RecordResult(match.Result{Winner: models.SideCon, ProScore: 30, ConScore: 70})
	require.True(t, ok)
	require.NoError(t, fx.store.SaveDebate(ctx, &rec))

	p := New(fx.store, nil, fx.ledger, fx.registry, zap.NewNop())
	settled, err := p.ReconcileBets(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, settled)
	assert.Equal(t, 1000-200+400, fx.user(t, 100).XP)

	settled, err = p.ReconcileBets(ctx)
	require.NoError(t, err)
	assert.Zero(t, settled)
}

func TestReconcilePaysRefundAfterCreditFailure(t *testing.T) {
	fx := newFixture(t, models.Type1v1, 1, 2)
	ctx := context.Background()
	_, err := fx.ledger.Place(ctx, fx.match, 100, models.SidePro, 100)
	require.NoError(t, err)

	fx.store.FailCredit[100] = errors.New("connection reset")
	p := New(fx.store, nil, fx.ledger, fx.registry, zap.NewNop())
	out, ok := p.Trigger(ctx, fx.match)
	require.True(t, ok)
	assert.Equal(t, models.SideDraw, out.Ended.Winner)
	assert.Len(t, out.Bets.Failed, 1)
	assert.Equal(t, 900, fx.user(t, 100).XP)
	require.Len(t, fx.store.Bets(), 1)
	assert.Equal(t, models.BetPending, fx.store.Bets()[0].Result)

	delete(fx.store.FailCredit, 100)
	settled, err := p.ReconcileBets(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, settled)
	assert.Equal(t, 1000, fx.user(t, 100).XP)
	bet := fx.store.Bets()[0]
	assert.Equal(t, models.BetRefunded, bet.Result)
	assert.Equal(t, 100, bet.Payout)
}
