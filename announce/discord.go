package announce

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"debateserver/arena/match"
	"debateserver/models"

	"github.com/bwmarrin/discordgo"
)

// DiscordSession は告知に使う discordgo.Session のメソッド
type DiscordSession interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	Close() error
}

// Announcer は試合結果をDiscordのチャンネルに投稿する
type Announcer struct {
	session   DiscordSession
	channelID string
}

// NewDiscordAnnouncer はボットトークンでセッションを作る
func NewDiscordAnnouncer(token, channelID string) (*Announcer, error) {
	if token == "" || channelID == "" {
		return nil, errors.New("discord token and channel id are required")
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	return NewAnnouncer(session, channelID), nil
}

func NewAnnouncer(session DiscordSession, channelID string) *Announcer {
	return &Announcer{session: session, channelID: channelID}
}

// Summary は1行の結果告知。匿名の参加者は別名で表示する
func Summary(d models.Debate) string {
	ended := match.EndedPayload(d)
	switch ended.Winner {
	case models.SideDraw:
		return fmt.Sprintf("🤝 \"%s\" (%s) ended in a draw, %d-%d.", d.Topic.Title, d.Type, d.Scores.Pro, d.Scores.Con)
	case models.SideCompetitor:
		return fmt.Sprintf("🏆 %s won \"%s\" (%s) by %d points.", strings.Join(ended.WinnerTeam, ", "), d.Topic.Title, d.Type, ended.Margin)
	default:
		return fmt.Sprintf("🏆 %s (%s) won \"%s\" (%s), %d-%d.",
			strings.ToUpper(ended.Winner), strings.Join(ended.WinnerTeam, ", "), d.Topic.Title, d.Type, d.Scores.Pro, d.Scores.Con)
	}
}

func (a *Announcer) Announce(ctx context.Context, d models.Debate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := a.session.ChannelMessageSend(a.channelID, Summary(d), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("post result for %s: %w", d.ID, err)
	}
	return nil
}

func (a *Announcer) Close() error {
	return a.session.Close()
}
