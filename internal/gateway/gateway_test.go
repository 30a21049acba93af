package gateway

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/gnu-battle/internal/ledger"
	"github.com/park285/gnu-battle/internal/msgcat"
	"github.com/park285/gnu-battle/internal/queue"
	"github.com/park285/gnu-battle/internal/room"
	"github.com/park285/gnu-battle/pkg/battledto"
)

func newTestServer(t *testing.T) (*httptest.Server, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil { t.Fatalf("miniredis: %v", err) }
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	lg := ledger.NewWithClient(rdb, 1000, 1500)

	cat, err := msgcat.New("")
	if err != nil { t.Fatalf("msgcat: %v", err) }

	reg := room.NewRegistry(context.Background(), room.Deps{
		Ledger:  lg,
		Catalog: cat,
		Timings: room.Timings{TurnTimeLimit: 500 * time.Millisecond, QuestionWait: 3 * time.Second},
		Rules:   room.Rules{MinBet: 0, BaseGnuPerCorrect: 100, TkoBonus: 300},
	})
	q := queue.New(reg, cat)

	srv := httptest.NewServer(NewServer(q, reg, lg, cat, nil).Handler())
	return srv, func() { srv.Close(); mr.Close() }
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func dial(t *testing.T, ctx context.Context, rawURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, rawURL, nil)
	if err != nil { t.Fatalf("dial %s: %v", rawURL, err) }
	return conn
}

func readEvent(t *testing.T, ctx context.Context, conn *websocket.Conn, evType string) json.RawMessage {
	t.Helper()
	for {
		var env battledto.Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			t.Fatalf("read while waiting for %s: %v", evType, err)
		}
		if env.Type == evType {
			return env.Payload
		}
		if env.Type == battledto.EvError {
			t.Fatalf("unexpected ev_error while waiting for %s: %s", evType, env.Payload)
		}
	}
}

func testDeck(prefix string) []battledto.Question {
	qs := make([]battledto.Question, battledto.BatchSize)
	for i := range qs {
		qs[i] = battledto.Question{
			Difficulty:    battledto.DifficultyEasy,
			QuestionText:  prefix + " q",
			CorrectAnswer: "a",
			Choices:       []string{"a", "b", "c", "d"},
		}
	}
	return qs
}

func TestMatchmakePairsTwoPlayers(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a := dial(t, ctx, wsURL(srv, "/ws/matchmake?github_login=alice&github_id=1"))
	defer a.Close(websocket.StatusNormalClosure, "")
	readEvent(t, ctx, a, battledto.EvQueueJoined)

	b := dial(t, ctx, wsURL(srv, "/ws/matchmake?github_login=bob&github_id=2"))
	defer b.Close(websocket.StatusNormalClosure, "")
	readEvent(t, ctx, b, battledto.EvQueueJoined)

	var mfA, mfB battledto.MatchFoundPayload
	if err := json.Unmarshal(readEvent(t, ctx, a, battledto.EvMatchFound), &mfA); err != nil { t.Fatal(err) }
	if err := json.Unmarshal(readEvent(t, ctx, b, battledto.EvMatchFound), &mfB); err != nil { t.Fatal(err) }

	if mfA.RoomID == "" || mfA.RoomID != mfB.RoomID {
		t.Fatalf("room ids differ: %q vs %q", mfA.RoomID, mfB.RoomID)
	}
	if mfA.Opponent.GitHubLogin != "bob" || mfB.Opponent.GitHubLogin != "alice" {
		t.Fatalf("wrong opponents: %+v / %+v", mfA.Opponent, mfB.Opponent)
	}
}

func TestDuplicateLoginRejectedInQueue(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a := dial(t, ctx, wsURL(srv, "/ws/matchmake?github_login=alice&github_id=1"))
	defer a.Close(websocket.StatusNormalClosure, "")
	readEvent(t, ctx, a, battledto.EvQueueJoined)

	dup := dial(t, ctx, wsURL(srv, "/ws/matchmake?github_login=alice&github_id=1"))
	defer dup.Close(websocket.StatusNormalClosure, "")

	var env battledto.Envelope
	if err := wsjson.Read(ctx, dup, &env); err != nil { t.Fatalf("read: %v", err) }
	if env.Type != battledto.EvError { t.Fatalf("expected ev_error, got %s", env.Type) }
	var ep battledto.ErrorPayload
	if err := json.Unmarshal(env.Payload, &ep); err != nil { t.Fatal(err) }
	if ep.Code != battledto.ErrCodeAlreadyInQueue { t.Fatalf("code %s", ep.Code) }
}

func TestRoomFlowOverWebSocket(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	a := dial(t, ctx, wsURL(srv, "/ws/matchmake?github_login=alice&github_id=1"))
	b := dial(t, ctx, wsURL(srv, "/ws/matchmake?github_login=bob&github_id=2"))
	var mf battledto.MatchFoundPayload
	if err := json.Unmarshal(readEvent(t, ctx, a, battledto.EvMatchFound), &mf); err != nil { t.Fatal(err) }
	readEvent(t, ctx, b, battledto.EvMatchFound)
	a.Close(websocket.StatusNormalClosure, "")
	b.Close(websocket.StatusNormalClosure, "")

	ra := dial(t, ctx, wsURL(srv, "/ws/room/"+mf.RoomID+"?github_login=alice"))
	defer ra.Close(websocket.StatusNormalClosure, "")
	rb := dial(t, ctx, wsURL(srv, "/ws/room/"+mf.RoomID+"?github_login=bob"))
	defer rb.Close(websocket.StatusNormalClosure, "")

	readEvent(t, ctx, ra, battledto.EvRoomReady)
	readEvent(t, ctx, rb, battledto.EvRoomReady)

	decks := battledto.SubmitQuestionsPayload{MyQuestions: testDeck("my"), ForOpponent: testDeck("opp")}
	for _, conn := range []*websocket.Conn{ra, rb} {
		if err := wsjson.Write(ctx, conn, battledto.OutEnvelope{Type: battledto.ActSubmitQuestions, Payload: decks}); err != nil {
			t.Fatalf("submit questions: %v", err)
		}
	}

	var ts battledto.TurnStartPayload
	if err := json.Unmarshal(readEvent(t, ctx, ra, battledto.EvTurnStart), &ts); err != nil { t.Fatal(err) }
	if ts.Turn != 1 || ts.TotalTurns != room.TotalTurns {
		t.Fatalf("turn start %d/%d", ts.Turn, ts.TotalTurns)
	}
	readEvent(t, ctx, rb, battledto.EvTurnStart)

	ans := battledto.SubmitAnswerPayload{ChoiceIndex: 0, TimeMs: 500}
	if err := wsjson.Write(ctx, ra, battledto.OutEnvelope{Type: battledto.ActSubmitAnswer, Payload: ans}); err != nil { t.Fatal(err) }
	if err := wsjson.Write(ctx, rb, battledto.OutEnvelope{Type: battledto.ActSubmitAnswer, Payload: ans}); err != nil { t.Fatal(err) }

	var res battledto.TurnResultPayload
	if err := json.Unmarshal(readEvent(t, ctx, ra, battledto.EvTurnResult), &res); err != nil { t.Fatal(err) }
	if !res.IsCorrect || !res.OpponentIsCorrect {
		t.Fatalf("both answered choice 0 (correct): %+v", res)
	}
	if res.GnuDelta != 100 { t.Fatalf("delta %d", res.GnuDelta) }
}

func TestRoomPeerDropReleasesBothSockets(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a := dial(t, ctx, wsURL(srv, "/ws/matchmake?github_login=alice&github_id=1"))
	b := dial(t, ctx, wsURL(srv, "/ws/matchmake?github_login=bob&github_id=2"))
	var mf battledto.MatchFoundPayload
	if err := json.Unmarshal(readEvent(t, ctx, a, battledto.EvMatchFound), &mf); err != nil { t.Fatal(err) }
	readEvent(t, ctx, b, battledto.EvMatchFound)
	a.Close(websocket.StatusNormalClosure, "")
	b.Close(websocket.StatusNormalClosure, "")

	ra := dial(t, ctx, wsURL(srv, "/ws/room/"+mf.RoomID+"?github_login=alice"))
	defer ra.Close(websocket.StatusNormalClosure, "")
	rb := dial(t, ctx, wsURL(srv, "/ws/room/"+mf.RoomID+"?github_login=bob"))

	readEvent(t, ctx, ra, battledto.EvRoomReady)
	readEvent(t, ctx, rb, battledto.EvRoomReady)

	// bob이 중도 이탈하면 alice는 통지를 받고 서버가 소켓을 닫는다
	rb.CloseNow()

	var env battledto.Envelope
	if err := wsjson.Read(ctx, ra, &env); err != nil { t.Fatalf("read: %v", err) }
	if env.Type != battledto.EvError { t.Fatalf("expected ev_error, got %s", env.Type) }
	var ep battledto.ErrorPayload
	if err := json.Unmarshal(env.Payload, &ep); err != nil { t.Fatal(err) }
	if ep.Code != battledto.ErrCodeOpponentDisconnected { t.Fatalf("code %s", ep.Code) }

	for {
		if err := wsjson.Read(ctx, ra, &env); err != nil {
			break // 룸 종료 후 서버가 닫는다
		}
	}
}

func TestRoomJoinRejectsStranger(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a := dial(t, ctx, wsURL(srv, "/ws/matchmake?github_login=alice&github_id=1"))
	defer a.Close(websocket.StatusNormalClosure, "")
	b := dial(t, ctx, wsURL(srv, "/ws/matchmake?github_login=bob&github_id=2"))
	defer b.Close(websocket.StatusNormalClosure, "")
	var mf battledto.MatchFoundPayload
	if err := json.Unmarshal(readEvent(t, ctx, a, battledto.EvMatchFound), &mf); err != nil { t.Fatal(err) }

	stranger := dial(t, ctx, wsURL(srv, "/ws/room/"+mf.RoomID+"?github_login=mallory"))
	defer stranger.Close(websocket.StatusNormalClosure, "")

	var env battledto.Envelope
	if err := wsjson.Read(ctx, stranger, &env); err != nil { t.Fatalf("read: %v", err) }
	if env.Type != battledto.EvError { t.Fatalf("expected ev_error, got %s", env.Type) }
	var ep battledto.ErrorPayload
	if err := json.Unmarshal(env.Payload, &ep); err != nil { t.Fatal(err) }
	if ep.Code != battledto.ErrCodeJoinFailed { t.Fatalf("code %s", ep.Code) }
}
