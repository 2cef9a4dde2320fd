package broadcast

// Op は配信指示の種類
type Op int

const (
	OpSend Op = iota
	OpJoinRoom
	OpLeaveRoom
	OpCloseRoom
)

// Target は送信先
type Target int

const (
	TargetRoom Target = iota
	TargetOrigin
	TargetUser
)

// Intent はコマンド処理が返す配信指示。実際の送信は Hub が行う
type Intent struct {
	Op      Op
	Target  Target
	MatchID string
	UserID  uint
	Event   string
	Payload interface{}
}

// ToRoom は試合の部屋にいる全員へ送る
func ToRoom(matchID, event string, payload interface{}) Intent {
	return Intent{Op: OpSend, Target: TargetRoom, MatchID: matchID, Event: event, Payload: payload}
}

// ToOrigin はコマンドを送った接続にだけ返す
func ToOrigin(event string, payload interface{}) Intent {
	return Intent{Op: OpSend, Target: TargetOrigin, Event: event, Payload: payload}
}

// ToUser は特定のユーザーの接続に送る
func ToUser(userID uint, event string, payload interface{}) Intent {
	return Intent{Op: OpSend, Target: TargetUser, UserID: userID, Event: event, Payload: payload}
}

// JoinRoom はユーザーを試合の部屋に入れる
func JoinRoom(matchID string, userID uint) Intent {
	return Intent{Op: OpJoinRoom, MatchID: matchID, UserID: userID}
}

// LeaveRoom はユーザーを試合の部屋から出す
func LeaveRoom(matchID string, userID uint) Intent {
	return Intent{Op: OpLeaveRoom, MatchID: matchID, UserID: userID}
}

// CloseRoom は部屋を閉じ、全員を外す
func CloseRoom(matchID string) Intent {
	return Intent{Op: OpCloseRoom, MatchID: matchID}
}
