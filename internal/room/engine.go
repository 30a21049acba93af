package room

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/park285/gnu-battle/internal/ledger"
	"github.com/park285/gnu-battle/pkg/battledto"
)

// runTurns plays the 10 turns to the end, or stops early on TKO/disconnect.
func (rm *Room) runTurns(ctx context.Context, turns [TotalTurns]turnState, log *zap.Logger) {
	for turnNo := 1; turnNo <= TotalTurns; turnNo++ {
		ts := &turns[turnNo-1]

		rm.drainInbox()
		rm.announceTurn(ctx, turnNo, ts)

		timer := time.NewTimer(rm.timings.TurnTimeLimit)
		open := true
		for open && !(ts.answered[0] && ts.answered[1]) {
			select {
			case msg := <-rm.inbox:
				rm.handleTurnMsg(ctx, ts, msg, log)
			case <-timer.C:
				open = false // 미응답은 오답 처리
			case idx := <-rm.disconn:
				timer.Stop()
				log.Info("turn_disconnect", zap.Int("turn", turnNo), zap.Int("seat", idx))
				rm.handleDisconnect(ctx, idx)
				return
			case <-ctx.Done():
				timer.Stop()
				return
			}
		}
		timer.Stop()

		rm.resolveTurn(ctx, turnNo, ts, log)

		bankrupt := [2]bool{rm.seats[0].gnuBalance <= 0, rm.seats[1].gnuBalance <= 0}
		switch {
		case bankrupt[0] && bankrupt[1]:
			// 동시 파산: 보너스 없이 정답 수로 즉시 마감
			log.Info("room_double_bankruptcy", zap.Int("turn", turnNo))
			rm.finishGame(ctx, turns[:turnNo], log)
			return
		case bankrupt[0]:
			rm.finishTKO(ctx, 1, turns[:turnNo], log)
			return
		case bankrupt[1]:
			rm.finishTKO(ctx, 0, turns[:turnNo], log)
			return
		}
	}
	rm.finishGame(ctx, turns[:], log)
}

func (rm *Room) announceTurn(ctx context.Context, turnNo int, ts *turnState) {
	for i, st := range rm.seats {
		q := ts.questions[i]
		rm.send(ctx, i, battledto.OutEnvelope{Type: battledto.EvTurnStart, Payload: battledto.TurnStartPayload{
			Turn:           turnNo,
			TotalTurns:     TotalTurns,
			Difficulty:     q.Difficulty,
			QuestionText:   q.QuestionText,
			Choices:        q.Choices,
			TimeLimitSec:   int(rm.timings.TurnTimeLimit / time.Second),
			YourGnuBalance: st.gnuBalance,
			MinBet:         rm.rules.MinBet,
			MaxBet:         st.gnuBalance,
		}})
	}
}

func (rm *Room) handleTurnMsg(ctx context.Context, ts *turnState, msg playerMsg, log *zap.Logger) {
	switch msg.msgType {
	case battledto.ActBetGnu:
		rm.handleBet(ctx, ts, msg, log)
	case battledto.ActSubmitAnswer:
		rm.handleAnswer(ts, msg, log)
	case battledto.ActSubmitQuestions:
		rm.sendError(ctx, msg.idx, battledto.ErrCodeInvalidQuestions, rm.cat.Text("room.duplicate_questions"), nil, nil)
	default:
		log.Debug("turn_msg_ignored", zap.Int("seat", msg.idx), zap.String("type", msg.msgType))
	}
}

// handleBet validates against the current balance. 베팅을 생략하면 0으로
// 간주하므로 무위험 플레이가 기본값이다.
func (rm *Room) handleBet(ctx context.Context, ts *turnState, msg playerMsg, log *zap.Logger) {
	idx := msg.idx
	maxBet := rm.seats[idx].gnuBalance

	if ts.answered[idx] {
		// 답 제출 이후의 베팅은 무효. 결과를 보고 거는 것을 막는다.
		log.Debug("bet_after_answer_dropped", zap.Int("seat", idx))
		return
	}
	if ts.betPlaced[idx] {
		rm.sendError(ctx, idx, battledto.ErrCodeInvalidBet, rm.cat.Text("room.duplicate_bet"), nil, nil)
		return
	}

	var p battledto.BetPayload
	if err := json.Unmarshal(msg.payload, &p); err != nil || p.Amount < rm.rules.MinBet || p.Amount > maxBet {
		minB, maxB := rm.rules.MinBet, maxBet
		text, rerr := rm.cat.Render("room.invalid_bet", map[string]any{"MinBet": minB, "MaxBet": maxB})
		if rerr != nil {
			text = "invalid bet"
		}
		rm.sendError(ctx, idx, battledto.ErrCodeInvalidBet, text, &minB, &maxB)
		return
	}

	ts.bets[idx] = p.Amount
	ts.betPlaced[idx] = true
	rm.send(ctx, idx, battledto.OutEnvelope{Type: battledto.EvBetConfirmed, Payload: battledto.BetConfirmedPayload{
		Amount: p.Amount, MinBet: rm.rules.MinBet, MaxBet: maxBet,
	}})
	log.Debug("bet_placed", zap.Int("seat", idx), zap.Int("amount", p.Amount))
}

// handleAnswer records the first answer per seat; duplicates are dropped so a
// turn can never be scored twice for the same player.
func (rm *Room) handleAnswer(ts *turnState, msg playerMsg, log *zap.Logger) {
	idx := msg.idx
	if ts.answered[idx] {
		log.Debug("answer_duplicate_dropped", zap.Int("seat", idx))
		return
	}
	var p battledto.SubmitAnswerPayload
	if err := json.Unmarshal(msg.payload, &p); err != nil {
		log.Warn("answer_malformed", zap.Int("seat", idx), zap.Error(err))
		return
	}
	choice := p.ChoiceIndex
	if choice < 0 || choice > 3 {
		choice = -1 // 범위 밖 선택은 오답 확정
	}
	ts.answered[idx] = true
	ts.answers[idx] = choice
	ts.timesMs[idx] = p.TimeMs
}

// resolveTurn settles both wallets and broadcasts ev_turn_result. 정답이면
// +베팅+기본 보상, 오답/무응답이면 -베팅.
func (rm *Room) resolveTurn(ctx context.Context, turnNo int, ts *turnState, log *zap.Logger) {
	for i, st := range rm.seats {
		correctIdx := ts.questions[i].CorrectIndex()
		isCorrect := ts.answered[i] && ts.answers[i] == correctIdx

		delta := -ts.bets[i]
		if isCorrect {
			delta = ts.bets[i] + rm.rules.BaseGnuPerCorrect
		}
		ts.correct[i] = isCorrect
		ts.deltas[i] = delta

		newBal, err := rm.lg.ApplyDelta(ctx, st.player.GitHubLogin, delta)
		if err != nil {
			// 지갑 반영 실패 시 룸 로컬 잔고로 계속 진행한다
			log.Error("ledger_apply_failed", zap.Int("turn", turnNo), zap.Int("seat", i), zap.Int("delta", delta), zap.Error(err))
			newBal = st.gnuBalance + delta
			if newBal < 0 {
				newBal = 0
			}
		}
		st.gnuBalance = newBal
	}

	for i := range rm.seats {
		q := ts.questions[i]
		rm.send(ctx, i, battledto.OutEnvelope{Type: battledto.EvTurnResult, Payload: battledto.TurnResultPayload{
			Turn:              turnNo,
			CorrectAnswer:     q.CorrectAnswer,
			CorrectIndex:      q.CorrectIndex(),
			YourAnswer:        ts.answers[i],
			IsCorrect:         ts.correct[i],
			Tips:              q.Tips,
			GnuDelta:          ts.deltas[i],
			YourGnuBalance:    rm.seats[i].gnuBalance,
			OpponentIsCorrect: ts.correct[1-i],
			OpponentGnuDelta:  ts.deltas[1-i],
		}})
	}
	log.Info("turn_resolved", zap.Int("turn", turnNo),
		zap.Bool("a_correct", ts.correct[0]), zap.Bool("b_correct", ts.correct[1]),
		zap.Int("a_gnu", rm.seats[0].gnuBalance), zap.Int("b_gnu", rm.seats[1].gnuBalance))
}

// finishTKO ends the game when one side runs out of GNU. 생존자는 보너스를
// 받고 정답 수와 무관하게 승리한다.
func (rm *Room) finishTKO(ctx context.Context, winner int, played []turnState, log *zap.Logger) {
	loser := 1 - winner
	bonus := rm.rules.TkoBonus

	newBal, err := rm.lg.ApplyDelta(ctx, rm.seats[winner].player.GitHubLogin, bonus)
	if err != nil {
		log.Error("tko_bonus_failed", zap.Error(err))
		newBal = rm.seats[winner].gnuBalance + bonus
	}
	rm.seats[winner].gnuBalance = newBal

	rm.send(ctx, winner, battledto.OutEnvelope{Type: battledto.EvTko, Payload: battledto.TkoPayload{
		Message: rm.cat.Text("tko.winner"), TkoBonus: bonus, YourFinalGnu: rm.seats[winner].gnuBalance,
	}})
	rm.send(ctx, loser, battledto.OutEnvelope{Type: battledto.EvTko, Payload: battledto.TkoPayload{
		Message: rm.cat.Text("tko.loser"), TkoBonus: 0, YourFinalGnu: rm.seats[loser].gnuBalance,
	}})

	counts := correctCounts(played)
	var results [2]string
	results[winner], results[loser] = "win", "lose"
	log.Info("game_end_tko", zap.Int("winner_seat", winner), zap.Int("played_turns", len(played)))
	rm.applyOutcome(ctx, MethodTKO, results, counts, log)
}

// finishGame ends a full (or double-bankruptcy) game by correct-answer count.
// GNU 잔고는 승패에 영향을 주지 않는다.
func (rm *Room) finishGame(ctx context.Context, played []turnState, log *zap.Logger) {
	counts := correctCounts(played)

	var results [2]string
	switch {
	case counts[0] > counts[1]:
		results = [2]string{"win", "lose"}
	case counts[0] < counts[1]:
		results = [2]string{"lose", "win"}
	default:
		results = [2]string{"draw", "draw"}
	}

	for i, st := range rm.seats {
		rm.send(ctx, i, battledto.OutEnvelope{Type: battledto.EvGameEnd, Payload: battledto.GameEndPayload{
			Result:               results[i],
			YourCorrectCount:     counts[i],
			OpponentCorrectCount: counts[1-i],
			YourFinalGnu:         st.gnuBalance,
			OpponentFinalGnu:     rm.seats[1-i].gnuBalance,
			GnuEarnedThisGame:    st.gnuBalance - st.startGnu,
			TotalTurns:           len(played),
		}})
	}
	log.Info("game_end", zap.String("result_a", results[0]), zap.String("result_b", results[1]),
		zap.Int("correct_a", counts[0]), zap.Int("correct_b", counts[1]))
	rm.applyOutcome(ctx, MethodComplete, results, counts, log)
}

// applyOutcome updates ratings and persists the match record once per room.
func (rm *Room) applyOutcome(ctx context.Context, method string, results [2]string, counts [2]int, log *zap.Logger) {
	outcomes := [2]ledger.PlayerOutcome{}
	for i, st := range rm.seats {
		outcomes[i] = ledger.PlayerOutcome{
			Login:        st.player.GitHubLogin,
			Result:       results[i],
			CorrectCount: counts[i],
			GnuEarned:    st.gnuBalance - st.startGnu,
			FinalGnu:     st.gnuBalance,
		}
	}

	if err := rm.lg.ApplyGameResult(ctx, &ledger.GameResult{RoomID: rm.ID.String(), A: outcomes[0], B: outcomes[1]}); err != nil {
		log.Warn("rating_update_failed", zap.Error(err))
	}

	if rm.recorder == nil {
		return
	}
	rec := &MatchRecord{RoomID: rm.ID.String(), Method: method, StartedAt: rm.CreatedAt, EndedAt: time.Now()}
	for i, o := range outcomes {
		rec.Players[i] = MatchPlayer{Login: o.Login, Result: o.Result, CorrectCount: o.CorrectCount, GnuEarned: o.GnuEarned, FinalGnu: o.FinalGnu}
	}
	if err := rm.recorder.SaveMatch(ctx, rec); err != nil {
		log.Warn("match_record_failed", zap.Error(err))
	}
}

func correctCounts(played []turnState) [2]int {
	var counts [2]int
	for i := range played {
		for s := 0; s < 2; s++ {
			if played[i].correct[s] {
				counts[s]++
			}
		}
	}
	return counts
}
