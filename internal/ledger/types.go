package ledger

import (
	"time"

	"github.com/google/uuid"
)

// Player is the persisted wallet state. 잔고/레이트는 Ledger만 변경한다.
type Player struct {
	ID          uuid.UUID `json:"id"`
	GitHubLogin string    `json:"github_login"`
	GitHubID    int64     `json:"github_id"`
	GnuBalance  int       `json:"gnu_balance"`
	Rate        int       `json:"rate"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Profile is the public slice of a player shown to the opponent.
type Profile struct {
	ID          uuid.UUID
	GitHubLogin string
	Rate        int
	GnuBalance  int
}

func (p *Player) Profile() Profile {
	return Profile{ID: p.ID, GitHubLogin: p.GitHubLogin, Rate: p.Rate, GnuBalance: p.GnuBalance}
}

// PlayerOutcome은 한 플레이어의 경기 결과 요약.
type PlayerOutcome struct {
	Login        string
	Result       string // win | lose | draw
	CorrectCount int
	GnuEarned    int
	FinalGnu     int
}

// GameResult is handed to ApplyGameResult once per finished room.
type GameResult struct {
	RoomID string
	A      PlayerOutcome
	B      PlayerOutcome
}

// Errors
var (
	ErrInvalidArgs     = errf("invalid arguments")
	ErrUnknownPlayer   = errf("player not found")
	ErrInsufficientGnu = errf("balance would go negative")
	ErrConcurrent      = errf("concurrent wallet update")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }
