package battledto

// SubmitQuestionsPayload는 act_submit_questions의 페이로드.
// MyQuestions는 제출자 본인이 풀고, ForOpponent는 상대가 푼다.
type SubmitQuestionsPayload struct {
	MyQuestions []Question `json:"my_questions"`
	ForOpponent []Question `json:"for_opponent"`
}

// BetPayload는 act_bet_gnu의 페이로드.
type BetPayload struct {
	Amount int `json:"amount"`
}

// SubmitAnswerPayload는 act_submit_answer의 페이로드.
type SubmitAnswerPayload struct {
	ChoiceIndex int `json:"choice_index"`
	TimeMs      int `json:"time_ms"`
}
