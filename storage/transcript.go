package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"debateserver/arena/match"
	"debateserver/models"

	"github.com/gosimple/slug"
)

// Transcript は保存する試合記録。匿名の参加者は公開用の表示に置き換える
type Transcript struct {
	Match    match.View  `json:"match"`
	Result   match.Ended `json:"result"`
	Archived string      `json:"archivedAt"`
}

// TranscriptArchiver は終了した試合の記録をオブジェクトストレージに保存する
type TranscriptArchiver struct {
	uploader FileUploader
}

func NewTranscriptArchiver(u FileUploader) *TranscriptArchiver {
	return &TranscriptArchiver{uploader: u}
}

// TranscriptKey は transcripts/<終了日>/<お題のslug>-<試合ID>.json を返す
func TranscriptKey(d models.Debate) string {
	day := d.StartedAt
	if d.EndedAt != nil {
		day = *d.EndedAt
	}
	name := slug.Make(d.Topic.Title)
	if name == "" {
		name = "debate"
	}
	return fmt.Sprintf("transcripts/%s/%s-%s.json", day.UTC().Format("2006-01-02"), name, d.ID)
}

func (a *TranscriptArchiver) Archive(ctx context.Context, d models.Debate) (string, error) {
	t := Transcript{Match: match.ViewOf(d), Result: match.EndedPayload(d)}
	if d.EndedAt != nil {
		t.Archived = d.EndedAt.UTC().Format(time.RFC3339)
	}
	body, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("encode transcript: %w", err)
	}

	key := TranscriptKey(d)
	res, err := a.uploader.Upload(ctx, key, "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	return res.Key, nil
}
