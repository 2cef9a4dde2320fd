package match

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"debateserver/arena/matchmaking"
	"debateserver/models"

	"github.com/google/uuid"
)

// Topics はお題の一覧
var Topics = []models.Topic{
	{Title: "Should social media be regulated by governments?", Description: "Debate the role of government in controlling social media platforms.", Category: "Technology"},
	{Title: "Is remote work better than office work?", Description: "Compare productivity and work-life balance in remote vs office settings.", Category: "Social"},
	{Title: "Should college education be free?", Description: "Discuss the pros and cons of free higher education.", Category: "Economy"},
	{Title: "Is AI a threat to human jobs?", Description: "Debate whether artificial intelligence will replace human workers.", Category: "Technology"},
	{Title: "Should voting be mandatory?", Description: "Discuss whether all citizens should be required to vote.", Category: "Politics"},
	{Title: "Is climate change the biggest threat to humanity?", Description: "Debate the urgency and severity of climate change.", Category: "Science"},
	{Title: "Should smartphones be banned in schools?", Description: "Discuss the impact of phones on student learning.", Category: "Social"},
	{Title: "Is space exploration worth the cost?", Description: "Debate funding priorities between space and Earth problems.", Category: "Science"},
}

const aliasChars = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewRand は試合作成用の乱数生成器を返す
func NewRand() *rand.Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// Factory はキューで成立したグループから試合を作る
type Factory struct {
	mu        sync.Mutex // rand.Rand は並行利用できない
	rng       *rand.Rand
	now       func() time.Time
	threshold int
	newID     func() string
}

func NewFactory(rng *rand.Rand, now func() time.Time, threshold int) *Factory {
	if rng == nil {
		rng = NewRand()
	}
	if now == nil {
		now = time.Now
	}
	return &Factory{rng: rng, now: now, threshold: threshold, newID: uuid.NewString}
}

// Create は試合を作成する。前半が賛成側、残りが反対側になる
// category は待機列のカテゴリで、話題のカテゴリとは一致しないことがある
// バトルロイヤルは陣営に分けず、結成順に発言する
func (f *Factory) Create(matchType, category string, group []matchmaking.Participant) *Match {
	f.mu.Lock()
	topic := f.pickTopicLocked(category)
	members := make([]models.TeamMember, len(group))
	for i, p := range group {
		members[i] = models.TeamMember{
			UserID:    p.UserID,
			Username:  p.Username,
			Tier:      p.Tier,
			Anonymous: p.Anonymous,
			Role:      RoleLead,
		}
		if p.Anonymous {
			members[i].Alias = f.aliasLocked()
		}
	}
	id := f.newID()
	f.mu.Unlock()

	if category == "" {
		category = matchmaking.AnyCategory
	}
	now := f.now()
	rec := models.Debate{
		ID:            id,
		Type:          matchType,
		Category:      category,
		Topic:         topic,
		Rounds:        newRounds(now),
		Status:        models.StatusActive,
		SpeakerCounts: make(map[uint]int),
		Reactions:     make(map[string]int),
		StartedAt:     now,
		TurnEndsAt:    now.Add(time.Duration(roundTemplate[0].seconds) * time.Second),
	}

	if matchType == models.TypeBattleRoyale {
		for i := range members {
			members[i].Role = RoleCompetitor
		}
		rec.Competitors = members
		if len(members) > 0 {
			rec.CurrentSpeaker = members[0].UserID
		}
	} else {
		half := len(members) / 2
		rec.ProTeam = members[:half:half]
		rec.ConTeam = members[half:]
		rec.CurrentSide = models.SidePro
		rec.BettingOpen = true
	}
	return New(rec, f.threshold, f.now)
}

func newRounds(now time.Time) []models.Round {
	rounds := make([]models.Round, len(roundTemplate))
	for i, spec := range roundTemplate {
		rounds[i] = models.Round{Number: i + 1, Type: spec.kind, Duration: spec.seconds, Messages: []models.Message{}}
	}
	started := now
	rounds[0].StartedAt = &started
	return rounds
}

// カテゴリが一致するお題を優先し、なければ全体から選ぶ
func (f *Factory) pickTopicLocked(category string) models.Topic {
	var candidates []models.Topic
	if category != "" && category != matchmaking.AnyCategory {
		for _, t := range Topics {
			if strings.EqualFold(t.Category, category) {
				candidates = append(candidates, t)
			}
		}
	}
	if len(candidates) == 0 {
		candidates = Topics
	}
	return candidates[f.rng.Intn(len(candidates))]
}

func (f *Factory) aliasLocked() string {
	b := make([]byte, 5)
	for i := range b {
		b[i] = aliasChars[f.rng.Intn(len(aliasChars))]
	}
	return "Anonymous_" + string(b)
}
