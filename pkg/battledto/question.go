package battledto

import "slices"

// Difficulty levels accepted from the question source.
const (
	DifficultyEasy   = "easy"
	DifficultyNormal = "normal"
	DifficultyHard   = "hard"
)

// BatchSize는 플레이어 1인이 제출하는 문제 수 (my/for_opponent 각각).
const BatchSize = 5

// Question은 외부 생성기가 만든 4지선다 문제. 엔진은 내용을 해석하지 않고
// 정답 문자열 일치만 본다.
type Question struct {
	Difficulty    string   `json:"difficulty"`
	QuestionText  string   `json:"question_text"`
	CorrectAnswer string   `json:"correct_answer"`
	Tips          string   `json:"tips"`
	Choices       []string `json:"choices"`
}

// CorrectIndex returns the index of the correct choice, -1 when absent.
func (q Question) CorrectIndex() int {
	return slices.Index(q.Choices, q.CorrectAnswer)
}

// Validate checks the structural contract of a single question.
func (q Question) Validate() error {
	switch q.Difficulty {
	case DifficultyEasy, DifficultyNormal, DifficultyHard:
	default:
		return DomainError{Code: ErrCodeInvalidQuestions, Message: "unknown difficulty: " + q.Difficulty}
	}
	if q.QuestionText == "" {
		return DomainError{Code: ErrCodeInvalidQuestions, Message: "empty question text"}
	}
	if len(q.Choices) != 4 {
		return DomainError{Code: ErrCodeInvalidQuestions, Message: "question needs exactly 4 choices"}
	}
	if q.CorrectIndex() < 0 {
		return DomainError{Code: ErrCodeInvalidQuestions, Message: "correct answer not among choices"}
	}
	return nil
}

// ValidateBatch checks one submitted list (my_questions or for_opponent).
func ValidateBatch(qs []Question) error {
	if len(qs) != BatchSize {
		return DomainError{Code: ErrCodeInvalidQuestions, Message: "batch must contain exactly 5 questions"}
	}
	for _, q := range qs {
		if err := q.Validate(); err != nil {
			return err
		}
	}
	return nil
}
