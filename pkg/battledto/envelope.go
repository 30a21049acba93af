package battledto

import "encoding/json"

// 클라이언트/서버 공용 태그드 유니온 프레임.
// 수신 시 Payload는 타입 확정 전까지 raw로 유지한다.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// OutEnvelope is the outbound frame; payload is marshaled in place.
type OutEnvelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Client → server action types.
const (
	ActCancelMatchmaking = "act_cancel_matchmaking"
	ActSubmitQuestions   = "act_submit_questions"
	ActBetGnu            = "act_bet_gnu"
	ActSubmitAnswer      = "act_submit_answer"
)

// Server → client event types.
const (
	EvQueueJoined  = "ev_queue_joined"
	EvMatchFound   = "ev_match_found"
	EvRoomReady    = "ev_room_ready"
	EvTurnStart    = "ev_turn_start"
	EvBetConfirmed = "ev_bet_confirmed"
	EvTurnResult   = "ev_turn_result"
	EvGameEnd      = "ev_game_end"
	EvTko          = "ev_tko"
	EvError        = "ev_error"
)
