package room

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/park285/gnu-battle/internal/obslog"
	"github.com/park285/gnu-battle/pkg/battledto"
)

// collectQuestions waits for both seats to submit their 5+5 batches before the
// shared deadline. 한 쪽의 깨진 배치는 양쪽 모두를 종료시킨다: 문제 없이는
// 경기가 성립하지 않는다.
func (rm *Room) collectQuestions(ctx context.Context, deadline *time.Timer, log *zap.Logger) ([TotalTurns]turnState, bool) {
	var turns [TotalTurns]turnState

	for rm.seats[0].questions == nil || rm.seats[1].questions == nil {
		select {
		case msg := <-rm.inbox:
			if msg.msgType != battledto.ActSubmitQuestions {
				continue // 턴 시작 전의 베팅/답안은 무시
			}
			if !rm.handleQuestionBatch(ctx, msg, log) {
				return turns, false
			}
		case <-deadline.C:
			log.Warn("question_submit_timeout",
				zap.Bool("a_submitted", rm.seats[0].questions != nil),
				zap.Bool("b_submitted", rm.seats[1].questions != nil))
			rm.abortWithError(ctx, battledto.ErrCodeQuestionTimeout, rm.cat.Text("room.question_timeout"), MethodQuestionTimeout)
			return turns, false
		case idx := <-rm.disconn:
			log.Info("question_phase_disconnect", zap.Int("seat", idx))
			rm.handleDisconnect(ctx, idx)
			return turns, false
		case <-ctx.Done():
			return turns, false
		}
	}

	buildTurns(&turns, rm.seats[0].questions, rm.seats[1].questions)
	return turns, true
}

// handleQuestionBatch accepts or rejects one submission. Returns false when the
// room must abort. 구조적으로 깨진 배치는 재시도 없이 종료한다: 클라이언트는
// 배치를 한 번에 생성한다.
func (rm *Room) handleQuestionBatch(ctx context.Context, msg playerMsg, log *zap.Logger) bool {
	if rm.seats[msg.idx].questions != nil {
		rm.sendError(ctx, msg.idx, battledto.ErrCodeInvalidQuestions, rm.cat.Text("room.duplicate_questions"), nil, nil)
		return true // 최초 제출 유지
	}

	var p battledto.SubmitQuestionsPayload
	if err := json.Unmarshal(msg.payload, &p); err != nil {
		log.Warn("question_batch_malformed", zap.Int("seat", msg.idx), zap.Error(err))
		rm.abortWithError(ctx, battledto.ErrCodeInvalidQuestions, rm.cat.Text("room.invalid_questions"), MethodInvalidBatch)
		return false
	}
	if err := errors.Join(battledto.ValidateBatch(p.MyQuestions), battledto.ValidateBatch(p.ForOpponent)); err != nil {
		log.Warn("question_batch_invalid", zap.Int("seat", msg.idx), zap.Error(err))
		rm.abortWithError(ctx, battledto.ErrCodeInvalidQuestions, rm.cat.Text("room.invalid_questions"), MethodInvalidBatch)
		return false
	}

	rm.seats[msg.idx].questions = &p
	log.Info("question_batch_accepted", zap.Int("seat", msg.idx))
	return true
}

// buildTurns interleaves the two decks into the 10-turn schedule.
// 짝수 턴: 상대가 나를 위해 낸 문제(for_opponent). 홀수 턴: 내가 직접 낸
// 문제(my_questions). 같은 턴에 양쪽은 서로 다른 문제를 받는다.
func buildTurns(turns *[TotalTurns]turnState, a, b *battledto.SubmitQuestionsPayload) {
	decks := [2]*battledto.SubmitQuestionsPayload{a, b}
	for i := 0; i < battledto.BatchSize; i++ {
		even := &turns[2*i]
		odd := &turns[2*i+1]
		for seatIdx := 0; seatIdx < 2; seatIdx++ {
			even.questions[seatIdx] = decks[1-seatIdx].ForOpponent[i]
			odd.questions[seatIdx] = decks[seatIdx].MyQuestions[i]
		}
		even.answers = [2]int{-1, -1}
		odd.answers = [2]int{-1, -1}
	}
}

// drainInbox discards everything that arrived before the upcoming turn
// announcement. 이전 턴에 속한 늦은 입력이 다음 턴으로 번지는 것을 막는다.
func (rm *Room) drainInbox() {
	for {
		select {
		case msg := <-rm.inbox:
			obslog.L().Debug("room_drop_stale_msg", zap.String("room_id", rm.ID.String()),
				zap.Int("seat", msg.idx), zap.String("type", msg.msgType))
		default:
			return
		}
	}
}
