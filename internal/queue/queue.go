package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/gnu-battle/internal/ledger"
	"github.com/park285/gnu-battle/internal/msgcat"
	"github.com/park285/gnu-battle/internal/obslog"
	"github.com/park285/gnu-battle/pkg/battledto"
)

// EventSink delivers matchmaking events to one waiting client.
type EventSink interface {
	Send(ctx context.Context, env battledto.OutEnvelope) error
}

// RoomSpawner creates the room for a fresh pairing before either side is told.
type RoomSpawner interface {
	Spawn(roomID uuid.UUID, a, b ledger.Profile) error
}

// Ticket is one waiting player. 큐 내부에서만 살고, 페어링이나 취소로 소멸한다.
type Ticket struct {
	Player     ledger.Profile
	Sink       EventSink
	EnqueuedAt time.Time

	paired bool // guarded by the queue mutex
}

// Queue is a FIFO of waiting tickets guarded by a single mutex so that
// pairing is linearizable: the two oldest tickets always pair together.
type Queue struct {
	mu      sync.Mutex
	waiting []*Ticket
	byLogin map[string]*Ticket
	spawner RoomSpawner
	cat     *msgcat.Catalog
}

func New(spawner RoomSpawner, cat *msgcat.Catalog) *Queue {
	return &Queue{
		byLogin: make(map[string]*Ticket),
		spawner: spawner,
		cat:     cat,
	}
}

// Enqueue adds a ticket and pairs immediately when a partner is waiting.
// ev_queue_joined은 등록 직후, ev_match_found는 두 티켓에 대해 같은 락 구간에서
// 전송된다 — 한쪽만 매칭됐다고 믿는 창이 없다.
func (q *Queue) Enqueue(ctx context.Context, t *Ticket) error {
	if t == nil || t.Sink == nil || t.Player.GitHubLogin == "" {
		return ErrInvalidTicket
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.byLogin[t.Player.GitHubLogin]; ok {
		return ErrAlreadyQueued
	}

	joined := battledto.OutEnvelope{
		Type:    battledto.EvQueueJoined,
		Payload: battledto.QueueJoinedPayload{Message: q.cat.Text("queue.waiting")},
	}
	if err := t.Sink.Send(ctx, joined); err != nil {
		// 깨진 연결은 애초에 등록하지 않는다
		return ErrSinkClosed
	}

	t.EnqueuedAt = time.Now()
	q.waiting = append(q.waiting, t)
	q.byLogin[t.Player.GitHubLogin] = t
	obslog.L().Info("queue_join", zap.String("login", t.Player.GitHubLogin), zap.Int("waiting", len(q.waiting)))

	q.tryPairLocked(ctx)
	return nil
}

// Cancel removes a still-waiting ticket; a no-op once paired.
func (q *Queue) Cancel(t *Ticket) {
	if t == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if t.paired {
		return
	}
	for i, w := range q.waiting {
		if w == t {
			q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
			delete(q.byLogin, t.Player.GitHubLogin)
			obslog.L().Info("queue_cancel", zap.String("login", t.Player.GitHubLogin))
			return
		}
	}
}

// Waiting returns the number of unpaired tickets.
func (q *Queue) Waiting() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiting)
}

// tryPairLocked pairs the two oldest tickets while at least two are waiting.
// Caller holds q.mu.
func (q *Queue) tryPairLocked(ctx context.Context) {
	for len(q.waiting) >= 2 {
		a, b := q.waiting[0], q.waiting[1]
		q.waiting = q.waiting[2:]
		delete(q.byLogin, a.Player.GitHubLogin)
		delete(q.byLogin, b.Player.GitHubLogin)

		roomID := uuid.New()
		if err := q.spawner.Spawn(roomID, a.Player, b.Player); err != nil {
			obslog.L().Error("queue_spawn_error", zap.String("room_id", roomID.String()), zap.Error(err))
			q.sendError(ctx, a, battledto.ErrCodeQueueError)
			q.sendError(ctx, b, battledto.ErrCodeQueueError)
			continue
		}
		a.paired = true
		b.paired = true

		// 페어링은 돌아올 수 없는 지점: 전송 실패 티켓은 그대로 탈락시키고
		// 룸의 참가 타임아웃이 생존자를 정리한다.
		q.notifyMatch(ctx, a, b, roomID)
		q.notifyMatch(ctx, b, a, roomID)

		obslog.L().Info("queue_pair",
			zap.String("room_id", roomID.String()),
			zap.String("a", a.Player.GitHubLogin),
			zap.String("b", b.Player.GitHubLogin),
		)
	}
}

func (q *Queue) notifyMatch(ctx context.Context, to, opponent *Ticket, roomID uuid.UUID) {
	env := battledto.OutEnvelope{
		Type: battledto.EvMatchFound,
		Payload: battledto.MatchFoundPayload{
			RoomID: roomID.String(),
			Opponent: battledto.OpponentProfile{
				ID:          opponent.Player.ID.String(),
				GitHubLogin: opponent.Player.GitHubLogin,
				Rate:        opponent.Player.Rate,
			},
		},
	}
	if err := to.Sink.Send(ctx, env); err != nil {
		obslog.L().Warn("queue_evict_stale", zap.String("login", to.Player.GitHubLogin), zap.Error(err))
	}
}

func (q *Queue) sendError(ctx context.Context, t *Ticket, code string) {
	env := battledto.OutEnvelope{
		Type:    battledto.EvError,
		Payload: battledto.ErrorPayload{Code: code, Message: q.cat.Text("queue.join_error")},
	}
	if err := t.Sink.Send(ctx, env); err != nil {
		obslog.L().Warn("queue_send_error", zap.String("login", t.Player.GitHubLogin), zap.Error(err))
	}
	delete(q.byLogin, t.Player.GitHubLogin)
}

// Errors
var (
	ErrInvalidTicket = errf("invalid ticket")
	ErrAlreadyQueued = errf("player already in queue")
	ErrSinkClosed    = errf("ticket connection is not writable")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }
