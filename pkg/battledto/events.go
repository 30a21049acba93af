package battledto

// OpponentProfile은 상대 플레이어의 공개 정보.
type OpponentProfile struct {
	ID          string `json:"id"`
	GitHubLogin string `json:"github_login"`
	Rate        int    `json:"rate"`
	GnuBalance  int    `json:"gnu_balance,omitempty"`
}

type QueueJoinedPayload struct {
	Message string `json:"message"`
}

type MatchFoundPayload struct {
	RoomID   string          `json:"room_id"`
	Opponent OpponentProfile `json:"opponent"`
}

type RoomReadyPayload struct {
	YourGnuBalance int             `json:"your_gnu_balance"`
	Opponent       OpponentProfile `json:"opponent"`
}

type TurnStartPayload struct {
	Turn           int      `json:"turn"`
	TotalTurns     int      `json:"total_turns"`
	Difficulty     string   `json:"difficulty"`
	QuestionText   string   `json:"question_text"`
	Choices        []string `json:"choices"`
	TimeLimitSec   int      `json:"time_limit_sec"`
	YourGnuBalance int      `json:"your_gnu_balance"`
	MinBet         int      `json:"min_bet"`
	MaxBet         int      `json:"max_bet"`
}

type BetConfirmedPayload struct {
	Amount int `json:"amount"`
	MinBet int `json:"min_bet"`
	MaxBet int `json:"max_bet"`
}

type TurnResultPayload struct {
	Turn              int    `json:"turn"`
	CorrectAnswer     string `json:"correct_answer"`
	CorrectIndex      int    `json:"correct_index"`
	YourAnswer        int    `json:"your_answer"`
	IsCorrect         bool   `json:"is_correct"`
	Tips              string `json:"tips"`
	GnuDelta          int    `json:"gnu_delta"`
	YourGnuBalance    int    `json:"your_gnu_balance"`
	OpponentIsCorrect bool   `json:"opponent_is_correct"`
	OpponentGnuDelta  int    `json:"opponent_gnu_delta"`
}

type GameEndPayload struct {
	Result               string `json:"result"` // win | lose | draw
	YourCorrectCount     int    `json:"your_correct_count"`
	OpponentCorrectCount int    `json:"opponent_correct_count"`
	YourFinalGnu         int    `json:"your_final_gnu"`
	OpponentFinalGnu     int    `json:"opponent_final_gnu"`
	GnuEarnedThisGame    int    `json:"gnu_earned_this_game"`
	TotalTurns           int    `json:"total_turns"`
}

type TkoPayload struct {
	Message      string `json:"message"`
	TkoBonus     int    `json:"tko_bonus"`
	YourFinalGnu int    `json:"your_final_gnu"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	MinBet  *int   `json:"min_bet,omitempty"`
	MaxBet  *int   `json:"max_bet,omitempty"`
}
