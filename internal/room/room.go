package room

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/gnu-battle/internal/ledger"
	"github.com/park285/gnu-battle/internal/msgcat"
	"github.com/park285/gnu-battle/internal/obslog"
	"github.com/park285/gnu-battle/pkg/battledto"
)

const inboxCap = 32

// Room is a single match between two players. All game state is owned by the
// run goroutine; external callers only attach peers and push messages.
type Room struct {
	ID        uuid.UUID
	CreatedAt time.Time

	lg       *ledger.Ledger
	recorder MatchRecorder
	cat      *msgcat.Catalog
	timings  Timings
	rules    Rules
	onClose  func(uuid.UUID)

	expected [2]ledger.Profile

	mu     sync.Mutex
	seats  [2]*seat
	joined int
	status RoomStatus

	inbox    chan playerMsg
	joinCh   chan struct{} // closed once both seats are attached
	disconn  chan int
	finished chan struct{} // closed when the run goroutine exits
	joinOnce sync.Once
	doneOnce sync.Once
}

func newRoom(id uuid.UUID, a, b ledger.Profile, lg *ledger.Ledger, rec MatchRecorder, cat *msgcat.Catalog, t Timings, r Rules, onClose func(uuid.UUID)) *Room {
	return &Room{
		ID:        id,
		CreatedAt: time.Now(),
		lg:        lg,
		recorder:  rec,
		cat:       cat,
		timings:   t,
		rules:     r,
		onClose:   onClose,
		expected:  [2]ledger.Profile{a, b},
		status:    StatusAwaitingQuestions,
		inbox:     make(chan playerMsg, inboxCap),
		joinCh:    make(chan struct{}),
		disconn:   make(chan int, 2),
		finished:  make(chan struct{}),
	}
}

// Join attaches a peer to the seat reserved for login. Returns the seat index
// the caller must use for Deliver/NotifyDisconnect.
func (rm *Room) Join(login string, p Peer) (int, error) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.status == StatusFinished {
		return 0, ErrRoomNotActive
	}
	idx := -1
	for i, pr := range rm.expected {
		if pr.GitHubLogin == login {
			idx = i
			break
		}
	}
	if idx < 0 {
		return 0, ErrNotInvited
	}
	if rm.seats[idx] != nil {
		return 0, ErrSeatTaken
	}

	rm.seats[idx] = &seat{player: rm.expected[idx], peer: p, gnuBalance: rm.expected[idx].GnuBalance}
	rm.joined++
	if rm.joined == 2 {
		rm.joinOnce.Do(func() { close(rm.joinCh) })
	}
	return idx, nil
}

// Deliver pushes a client message into the room inbox. A full inbox means the
// room goroutine is wedged or flooded; the sender gets server_busy instead of
// blocking the reader loop.
func (rm *Room) Deliver(ctx context.Context, idx int, msgType string, payload json.RawMessage) {
	select {
	case rm.inbox <- playerMsg{idx: idx, msgType: msgType, payload: payload}:
	default:
		obslog.L().Warn("room_inbox_full", zap.String("room_id", rm.ID.String()), zap.Int("seat", idx), zap.String("type", msgType))
		rm.sendError(ctx, idx, battledto.ErrCodeServerBusy, rm.cat.Text("room.server_busy"), nil, nil)
	}
}

// NotifyDisconnect reports that the peer at idx went away.
func (rm *Room) NotifyDisconnect(idx int) {
	select {
	case rm.disconn <- idx:
	default:
	}
}

// Finished unblocks when the room goroutine has exited; gateways wait on it to
// close connections after ev_game_end.
func (rm *Room) Finished() <-chan struct{} { return rm.finished }

// Status is read by the dev API.
func (rm *Room) Status() RoomStatus {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.status
}

func (rm *Room) setStatus(s RoomStatus) {
	rm.mu.Lock()
	rm.status = s
	rm.mu.Unlock()
}

// Run drives the room to a terminal state. Exactly one goroutine per room.
func (rm *Room) Run(ctx context.Context) {
	defer rm.close()

	log := obslog.L().With(zap.String("room_id", rm.ID.String()),
		zap.String("player_a", rm.expected[0].GitHubLogin), zap.String("player_b", rm.expected[1].GitHubLogin))
	log.Info("room_start")

	// 입장 + 문제 제출은 생성 시점부터 하나의 마감을 공유한다.
	deadline := time.NewTimer(rm.timings.QuestionWait)
	defer deadline.Stop()

	if !rm.awaitJoins(ctx, deadline, log) {
		return
	}
	rm.refreshBalances(ctx, log)
	rm.sendRoomReady(ctx)

	turns, ok := rm.collectQuestions(ctx, deadline, log)
	if !ok {
		return
	}

	rm.setStatus(StatusInProgress)
	rm.runTurns(ctx, turns, log)
}

// awaitJoins blocks until both expected players attach, the shared deadline
// fires, or a joined player drops.
func (rm *Room) awaitJoins(ctx context.Context, deadline *time.Timer, log *zap.Logger) bool {
	for {
		select {
		case <-rm.joinCh:
			return true
		case <-deadline.C:
			log.Warn("room_join_timeout")
			rm.abortWithError(ctx, battledto.ErrCodeQuestionTimeout, rm.cat.Text("room.question_timeout"), MethodQuestionTimeout)
			return false
		case idx := <-rm.disconn:
			log.Info("room_join_disconnect", zap.Int("seat", idx))
			rm.handleDisconnect(ctx, idx)
			return false
		case <-ctx.Done():
			return false
		}
	}
}

// refreshBalances re-reads wallets at room start; the profiles captured at
// pairing time may be stale.
func (rm *Room) refreshBalances(ctx context.Context, log *zap.Logger) {
	for i, st := range rm.seats {
		pl, err := rm.lg.Get(ctx, st.player.GitHubLogin)
		if err != nil || pl == nil {
			log.Warn("room_balance_refresh_failed", zap.Int("seat", i), zap.Error(err))
			continue
		}
		st.gnuBalance = pl.GnuBalance
		st.player = pl.Profile()
	}
	rm.seats[0].startGnu = rm.seats[0].gnuBalance
	rm.seats[1].startGnu = rm.seats[1].gnuBalance
}

func (rm *Room) sendRoomReady(ctx context.Context) {
	for i, st := range rm.seats {
		opp := rm.seats[1-i].player
		rm.send(ctx, i, battledto.OutEnvelope{Type: battledto.EvRoomReady, Payload: battledto.RoomReadyPayload{
			YourGnuBalance: st.gnuBalance,
			Opponent: battledto.OpponentProfile{
				ID: opp.ID.String(), GitHubLogin: opp.GitHubLogin, Rate: opp.Rate, GnuBalance: opp.GnuBalance,
			},
		}})
	}
}

// send delivers an event to one seat; failures are logged, never fatal to the
// room (disconnects arrive separately through NotifyDisconnect). 좌석 포인터는
// 입장 단계에서 Join과 경합할 수 있어 락으로 읽는다.
func (rm *Room) send(ctx context.Context, idx int, env battledto.OutEnvelope) {
	rm.mu.Lock()
	st := rm.seats[idx]
	rm.mu.Unlock()
	if st == nil || st.peer == nil {
		return
	}
	if err := st.peer.Send(ctx, env); err != nil {
		obslog.L().Debug("room_send_failed", zap.String("room_id", rm.ID.String()), zap.Int("seat", idx), zap.String("type", env.Type), zap.Error(err))
	}
}

func (rm *Room) sendBoth(ctx context.Context, env battledto.OutEnvelope) {
	rm.send(ctx, 0, env)
	rm.send(ctx, 1, env)
}

func (rm *Room) sendError(ctx context.Context, idx int, code, msg string, minBet, maxBet *int) {
	rm.send(ctx, idx, battledto.OutEnvelope{Type: battledto.EvError, Payload: battledto.ErrorPayload{
		Code: code, Message: msg, MinBet: minBet, MaxBet: maxBet,
	}})
}

// abortWithError ends the room before any turn resolved: both sides get the
// same terminal error and the match is recorded as aborted without a rating
// change.
func (rm *Room) abortWithError(ctx context.Context, code, msg, method string) {
	rm.sendBoth(ctx, battledto.OutEnvelope{Type: battledto.EvError, Payload: battledto.ErrorPayload{Code: code, Message: msg}})
	rm.recordAborted(ctx, method)
}

// handleDisconnect notifies the surviving side and ends the room. 탈주는
// TKO가 아니다: 보너스 없음, 레이팅 변동 없음.
func (rm *Room) handleDisconnect(ctx context.Context, gone int) {
	rm.sendError(ctx, 1-gone, battledto.ErrCodeOpponentDisconnected, rm.cat.Text("room.opponent_disconnected"), nil, nil)
	rm.recordAborted(ctx, MethodDisconnect)
}

func (rm *Room) recordAborted(ctx context.Context, method string) {
	if rm.recorder == nil {
		return
	}
	rec := &MatchRecord{RoomID: rm.ID.String(), Method: method, StartedAt: rm.CreatedAt, EndedAt: time.Now()}
	for i := range rec.Players {
		login := rm.expected[i].GitHubLogin
		final := rm.expected[i].GnuBalance
		rm.mu.Lock()
		st := rm.seats[i]
		rm.mu.Unlock()
		if st != nil {
			final = st.gnuBalance
		}
		rec.Players[i] = MatchPlayer{Login: login, Result: "aborted", FinalGnu: final}
	}
	if err := rm.recorder.SaveMatch(ctx, rec); err != nil {
		obslog.L().Warn("match_record_failed", zap.String("room_id", rm.ID.String()), zap.Error(err))
	}
}

func (rm *Room) close() {
	rm.doneOnce.Do(func() {
		rm.setStatus(StatusFinished)
		close(rm.finished)
		if rm.onClose != nil {
			rm.onClose(rm.ID)
		}
		obslog.L().Info("room_closed", zap.String("room_id", rm.ID.String()))
	})
}
