package room

import (
	"context"
	"encoding/json"
	"time"

	"github.com/park285/gnu-battle/internal/ledger"
	"github.com/park285/gnu-battle/pkg/battledto"
)

// TotalTurns: 플레이어당 my 5문 + for_opponent 5문을 번갈아 소비한다.
const TotalTurns = 2 * battledto.BatchSize

// Peer is the transport attachment for one seat. The gateway backs it with a
// WebSocket; tests back it with channels.
type Peer interface {
	Send(ctx context.Context, env battledto.OutEnvelope) error
}

// Timings bounds every blocking phase of a room. 무한 대기는 없다.
type Timings struct {
	TurnTimeLimit time.Duration // per-turn betting+answering window
	QuestionWait  time.Duration // join + question submission, from room creation
}

// Rules are the scoring knobs.
type Rules struct {
	MinBet            int
	BaseGnuPerCorrect int
	TkoBonus          int
}

// RoomStatus is the externally visible lifecycle state.
type RoomStatus string

const (
	StatusAwaitingQuestions RoomStatus = "awaiting_questions"
	StatusInProgress        RoomStatus = "in_progress"
	StatusFinished          RoomStatus = "finished"
)

// Terminal methods recorded into match history.
const (
	MethodComplete        = "complete"
	MethodTKO             = "tko"
	MethodDisconnect      = "disconnect"
	MethodQuestionTimeout = "question_timeout"
	MethodInvalidBatch    = "invalid_questions"
)

// MatchPlayer is one side of a finished match record.
type MatchPlayer struct {
	Login        string `json:"login"`
	Result       string `json:"result"` // win | lose | draw | aborted
	CorrectCount int    `json:"correct_count"`
	GnuEarned    int    `json:"gnu_earned"`
	FinalGnu     int    `json:"final_gnu"`
}

// MatchRecord is persisted once per terminal room.
type MatchRecord struct {
	RoomID    string         `json:"room_id"`
	Method    string         `json:"method"`
	StartedAt time.Time      `json:"started_at"`
	EndedAt   time.Time      `json:"ended_at"`
	Players   [2]MatchPlayer `json:"players"`
}

// MatchRecorder persists terminal match records. nil 허용 (기록 생략).
type MatchRecorder interface {
	SaveMatch(ctx context.Context, rec *MatchRecord) error
}

// playerMsg는 접속 리더 루프가 룸 인박스로 넘기는 메시지.
type playerMsg struct {
	idx     int
	msgType string
	payload json.RawMessage
}

// seat is the per-player state owned by the room goroutine.
type seat struct {
	player     ledger.Profile
	peer       Peer
	questions  *battledto.SubmitQuestionsPayload
	gnuBalance int
	startGnu   int // balance at room start, for gnu_earned_this_game
}

// turnState tracks one turn until it resolves exactly once.
type turnState struct {
	questions [2]battledto.Question // per seat
	bets      [2]int
	betPlaced [2]bool
	answers   [2]int // -1 = no choice recorded
	answered  [2]bool
	timesMs   [2]int
	correct   [2]bool // filled at resolution
	deltas    [2]int
}

// Errors
var (
	ErrNotInvited    = errf("player does not belong to this room")
	ErrSeatTaken     = errf("player already joined this room")
	ErrUnknownRoom   = errf("room not found")
	ErrRoomNotActive = errf("room is no longer active")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }
