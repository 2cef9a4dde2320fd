package models

import (
	"time"
)

// 対戦形式
const (
	Type1v1          = "1v1"
	Type2v2          = "2v2"
	Type3v3          = "3v3"
	TypeBattleRoyale = "battleRoyale"
)

// ディベートの状態。waiting, starting, paused は予約値で、現在の進行では使われない
const (
	StatusWaiting   = "waiting"
	StatusStarting  = "starting"
	StatusActive    = "active"
	StatusPaused    = "paused"
	StatusFinished  = "finished"
	StatusCancelled = "cancelled"
)

// 陣営と判定結果
const (
	SidePro  = "pro"
	SideCon  = "con"
	SideDraw = "draw"
)

// SideCompetitor はバトルロイヤルで個人が勝った場合の判定
const SideCompetitor = "competitor"

// ラウンドの種類
const (
	RoundOpening  = "opening"
	RoundRebuttal = "rebuttal"
	RoundCounter  = "counter"
	RoundClosing  = "closing"
)

// Topic はディベートのお題。作成後は変更しない
type Topic struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// TeamMember はチームの一員。匿名の場合は外部にAliasのみを見せる
type TeamMember struct {
	UserID    uint   `json:"userId"`
	Username  string `json:"username"`
	Tier      string `json:"tier,omitempty"`
	Anonymous bool   `json:"isAnonymous"`
	Alias     string `json:"alias,omitempty"`
	Role      string `json:"role"`
}

// DisplayName は他の参加者に見せる名前を返す
func (m TeamMember) DisplayName() string {
	if m.Anonymous {
		if m.Alias != "" {
			return m.Alias
		}
		return "Anonymous"
	}
	return m.Username
}

// Message は提出された主張
type Message struct {
	SenderID   uint      `json:"senderId,omitempty"`
	SenderName string    `json:"senderName"`
	Side       string    `json:"side,omitempty"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
}

// Round は4つの固定ラウンドの1つ。Durationは秒
type Round struct {
	Number    int        `json:"roundNumber"`
	Type      string     `json:"type"`
	Duration  int        `json:"duration"`
	Messages  []Message  `json:"messages"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
}

// MessageCounts は陣営ごとの提出数
type MessageCounts struct {
	Pro int `json:"pro"`
	Con int `json:"con"`
}

// Standing はバトルロイヤルの個人成績
type Standing struct {
	UserID uint   `json:"userId"`
	Name   string `json:"name"`
	Count  int    `json:"messageCount"`
	Score  int    `json:"score"`
}

// Scores は精算時にのみ設定される
type Scores struct {
	Pro       int        `json:"pro"`
	Con       int        `json:"con"`
	Standings []Standing `json:"standings,omitempty"`
}

// Winner は精算時に一度だけ設定される
type Winner struct {
	Side   string `json:"side"`
	Team   []uint `json:"team"`
	Score  int    `json:"score"`
	Margin int    `json:"margin"`
}

// Pool は賭けのプール。Total == Pro + Con を常に保つ
type Pool struct {
	Total int `json:"total"`
	Pro   int `json:"pro"`
	Con   int `json:"con"`
}

// Spectator は観戦者
type Spectator struct {
	UserID   uint      `json:"userId"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Debate はディベート1試合の永続化レコード
// 試合中はメモリ上の状態が正であり、作成時と精算時に保存される
type Debate struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Type        string       `gorm:"not null" json:"type"`
	Category    string       `gorm:"index;not null;default:'any'" json:"category"`
	Topic       Topic        `gorm:"embedded;embeddedPrefix:topic_" json:"topic"`
	ProTeam     []TeamMember `gorm:"serializer:json" json:"proTeam"`
	ConTeam     []TeamMember `gorm:"serializer:json" json:"conTeam"`
	Competitors []TeamMember `gorm:"serializer:json" json:"competitors,omitempty"`

	Rounds         []Round       `gorm:"serializer:json" json:"rounds"`
	CurrentRound   int           `json:"currentRound"`
	CurrentSide    string        `json:"currentSide,omitempty"`
	CurrentSpeaker uint          `json:"currentSpeaker,omitempty"`
	TurnEndsAt     time.Time     `json:"turnEndsAt"`
	MessageCounts  MessageCounts `gorm:"embedded;embeddedPrefix:count_" json:"messageCount"`
	SpeakerCounts  map[uint]int  `gorm:"serializer:json" json:"speakerCounts,omitempty"`

	Status         string         `gorm:"index;not null;default:'active'" json:"status"`
	Scores         Scores         `gorm:"serializer:json" json:"scores"`
	Winner         Winner         `gorm:"serializer:json" json:"winner"`
	LoserScore     int            `json:"loserScore"`
	Reasoning      string         `json:"reasoning"`
	ResultRecorded bool           `gorm:"index" json:"-"`
	Spectators     []Spectator    `gorm:"serializer:json" json:"spectators"`
	SpectatorCount int            `json:"spectatorCount"`
	Reactions      map[string]int `gorm:"serializer:json" json:"reactions"`
	BettingPool    Pool           `gorm:"embedded;embeddedPrefix:pool_" json:"bettingPool"`
	BettingOpen    bool           `json:"bettingOpen"`

	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
}
