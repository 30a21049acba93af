package devapi

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/gnu-battle/internal/obslog"
	"github.com/park285/gnu-battle/pkg/battledto"
)

// Bot is a scripted opponent for development matches. 덱이 고정이라 행동이
// 결정적이다: 자기가 아는 문제는 맞히고 모르는 문제는 1번 보기를 찍는다.
type Bot struct {
	Login      string
	GitHubID   int64
	ServerAddr string // host:port of the battle server
	BetAmount  int
}

func (b *Bot) deck(prefix string) []battledto.Question {
	qs := make([]battledto.Question, battledto.BatchSize)
	for i := range qs {
		answer := fmt.Sprintf("%s-%d-answer", prefix, i)
		qs[i] = battledto.Question{
			Difficulty:    battledto.DifficultyEasy,
			QuestionText:  fmt.Sprintf("[bot:%s] %s question %d", b.Login, prefix, i),
			CorrectAnswer: answer,
			Tips:          "bot deck",
			Choices:       []string{answer, "decoy-1", "decoy-2", "decoy-3"},
		}
	}
	return qs
}

// Run plays one full game and returns when the match ends.
func (b *Bot) Run(ctx context.Context) error {
	log := obslog.L().With(zap.String("bot", b.Login))

	mmURL := fmt.Sprintf("ws://%s/ws/matchmake?github_login=%s&github_id=%d", b.ServerAddr, b.Login, b.GitHubID)
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	mm, _, err := websocket.Dial(dialCtx, mmURL, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("bot dial matchmake: %w", err)
	}
	defer mm.Close(websocket.StatusNormalClosure, "")

	var roomID string
	for roomID == "" {
		var env battledto.Envelope
		if err := wsjson.Read(ctx, mm, &env); err != nil {
			return fmt.Errorf("bot matchmake read: %w", err)
		}
		switch env.Type {
		case battledto.EvMatchFound:
			var mf battledto.MatchFoundPayload
			if err := json.Unmarshal(env.Payload, &mf); err != nil {
				return err
			}
			roomID = mf.RoomID
			log.Info("bot_matched", zap.String("room_id", roomID), zap.String("opponent", mf.Opponent.GitHubLogin))
		case battledto.EvError:
			return fmt.Errorf("bot queue error: %s", env.Payload)
		}
	}
	mm.Close(websocket.StatusNormalClosure, "matched")

	return b.playRoom(ctx, roomID, log)
}

func (b *Bot) playRoom(ctx context.Context, roomID string, log *zap.Logger) error {
	roomURL := fmt.Sprintf("ws://%s/ws/room/%s?github_login=%s", b.ServerAddr, roomID, b.Login)
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	conn, _, err := websocket.Dial(dialCtx, roomURL, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("bot dial room: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	my := b.deck("my")
	forOpp := b.deck("opp")
	known := append(append([]battledto.Question{}, my...), forOpp...)

	for {
		var env battledto.Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			return fmt.Errorf("bot room read: %w", err)
		}
		switch env.Type {
		case battledto.EvRoomReady:
			out := battledto.OutEnvelope{Type: battledto.ActSubmitQuestions,
				Payload: battledto.SubmitQuestionsPayload{MyQuestions: my, ForOpponent: forOpp}}
			if err := wsjson.Write(ctx, conn, out); err != nil {
				return err
			}
		case battledto.EvTurnStart:
			var ts battledto.TurnStartPayload
			if err := json.Unmarshal(env.Payload, &ts); err != nil {
				return err
			}
			if err := b.playTurn(ctx, conn, known, &ts); err != nil {
				return err
			}
		case battledto.EvGameEnd, battledto.EvTko:
			log.Info("bot_game_over", zap.String("event", env.Type))
			return nil
		case battledto.EvError:
			var ep battledto.ErrorPayload
			_ = json.Unmarshal(env.Payload, &ep)
			// 터미널 에러에서만 종료
			switch ep.Code {
			case battledto.ErrCodeOpponentDisconnected, battledto.ErrCodeQuestionTimeout, battledto.ErrCodeInvalidQuestions:
				return fmt.Errorf("bot game aborted: %s", ep.Code)
			}
		}
	}
}

func (b *Bot) playTurn(ctx context.Context, conn *websocket.Conn, known []battledto.Question, ts *battledto.TurnStartPayload) error {
	if b.BetAmount > 0 && b.BetAmount <= ts.MaxBet {
		bet := battledto.OutEnvelope{Type: battledto.ActBetGnu, Payload: battledto.BetPayload{Amount: b.BetAmount}}
		if err := wsjson.Write(ctx, conn, bet); err != nil {
			return err
		}
	}

	choice := 0
	for _, q := range known {
		if q.QuestionText == ts.QuestionText {
			for i, c := range ts.Choices {
				if c == q.CorrectAnswer {
					choice = i
				}
			}
			break
		}
	}

	ans := battledto.OutEnvelope{Type: battledto.ActSubmitAnswer,
		Payload: battledto.SubmitAnswerPayload{ChoiceIndex: choice, TimeMs: 700}}
	return wsjson.Write(ctx, conn, ans)
}
