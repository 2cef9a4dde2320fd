package models

import (
	"encoding/json"
)

// Envelope はWebSocketでやり取りする全メッセージの共通形式
// type にイベント名、data にイベントごとのペイロードが入る
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// OutboundEnvelope はサーバーから送信するメッセージ
type OutboundEnvelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}
