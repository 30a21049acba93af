package battledto

// Wire error codes carried in ev_error payloads.
const (
	ErrCodeOpponentDisconnected = "opponent_disconnected"
	ErrCodeQuestionTimeout      = "question_timeout"
	ErrCodeInvalidQuestions     = "invalid_questions"
	ErrCodeInvalidBet           = "invalid_bet"
	ErrCodeAlreadyInQueue       = "already_in_queue"
	ErrCodeQueueError           = "queue_error"
	ErrCodeJoinFailed           = "join_failed"
	ErrCodeServerBusy           = "server_busy"
)

type DomainError struct {
	Code    string
	Message string
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "battle engine error"
}
