package errs

import (
	"errors"
	"fmt"
)

// Kind はエラーの分類。クライアントへの返し方を決める
type Kind string

const (
	Validation      Kind = "validation"
	StateConflict   Kind = "state_conflict"
	NotFound        Kind = "not_found"
	ExternalService Kind = "external_service"
	Resource        Kind = "resource"
)

// Error はコマンド処理で発生するエラー
// errors.Is は Code で比較するため、メッセージを差し替えた値も同じエラーとして扱える
type Error struct {
	Kind      Kind
	Code      string
	Message   string
	Required  int
	Available int
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// With はメッセージだけを差し替えたコピーを返す
func (e *Error) With(message string) *Error {
	c := *e
	c.Message = message
	return &c
}

var (
	ErrMalformed    = &Error{Kind: Validation, Code: "malformed", Message: "Malformed message"}
	ErrUnknownEvent = &Error{Kind: Validation, Code: "unknown_event", Message: "Unknown event"}

	// マッチング
	ErrInvalidMatchType = &Error{Kind: Validation, Code: "invalid_match_type", Message: "Unknown debate type"}
	ErrInvalidCategory  = &Error{Kind: Validation, Code: "invalid_category", Message: "Unknown category"}
	ErrAlreadyQueued    = &Error{Kind: StateConflict, Code: "already_queued", Message: "Already waiting in a queue"}
	ErrAlreadyInMatch   = &Error{Kind: StateConflict, Code: "already_in_match", Message: "Already playing in an active debate"}

	// ディベート進行
	ErrNotFound       = &Error{Kind: NotFound, Code: "not_found", Message: "Debate not found"}
	ErrAlreadyEnded   = &Error{Kind: StateConflict, Code: "already_ended", Message: "Debate has already ended"}
	ErrNotActive      = &Error{Kind: StateConflict, Code: "not_active", Message: "Debate not active"}
	ErrNotParticipant = &Error{Kind: StateConflict, Code: "not_participant", Message: "You are not a participant"}
	ErrWrongTurn      = &Error{Kind: StateConflict, Code: "wrong_turn", Message: "Not your turn"}
	ErrInvalidContent = &Error{Kind: Validation, Code: "invalid_content", Message: "Argument must be 5-2000 characters"}

	// 観戦
	ErrNotInRoom       = &Error{Kind: StateConflict, Code: "not_in_room", Message: "Join the debate first"}
	ErrInvalidChat     = &Error{Kind: Validation, Code: "invalid_chat", Message: "Message must be 1-500 characters"}
	ErrChatFlagged     = &Error{Kind: Validation, Code: "chat_flagged", Message: "Message was flagged by moderation"}
	ErrInvalidReaction = &Error{Kind: Validation, Code: "invalid_reaction", Message: "Unknown reaction"}

	// 賭け
	ErrBettingClosed       = &Error{Kind: StateConflict, Code: "betting_closed", Message: "Betting is closed"}
	ErrInvalidSide         = &Error{Kind: Validation, Code: "invalid_side", Message: "Invalid prediction"}
	ErrInvalidAmount       = &Error{Kind: Validation, Code: "invalid_amount", Message: "Bet amount must be 10-10000 XP"}
	ErrInsufficientBalance = &Error{Kind: Resource, Code: "insufficient_balance", Message: "Insufficient XP"}

	ErrInternal = &Error{Kind: ExternalService, Code: "internal", Message: "Request failed"}
)

// Insufficient は必要額と残高を含む残高不足エラーを返す
func Insufficient(required, available int) *Error {
	e := ErrInsufficientBalance.With(fmt.Sprintf("Insufficient XP: need %d, have %d", required, available))
	e.Required = required
	e.Available = available
	return e
}

// As は err を *Error として取り出す。該当しなければ ErrInternal を返す
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return ErrInternal
}
