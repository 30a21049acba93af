package room

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/gnu-battle/internal/ledger"
	"github.com/park285/gnu-battle/internal/msgcat"
	"github.com/park285/gnu-battle/internal/obslog"
)

// Deps bundles what every room needs.
type Deps struct {
	Ledger   *ledger.Ledger
	Recorder MatchRecorder // nil이면 기록 생략
	Catalog  *msgcat.Catalog
	Timings  Timings
	Rules    Rules
}

// Registry owns all live rooms. It satisfies the matchmaking queue's spawner
// contract and hands rooms to the gateway by ID.
type Registry struct {
	deps    Deps
	baseCtx context.Context

	mu    sync.RWMutex
	rooms map[uuid.UUID]*Room
}

func NewRegistry(ctx context.Context, deps Deps) *Registry {
	return &Registry{deps: deps, baseCtx: ctx, rooms: make(map[uuid.UUID]*Room)}
}

// Spawn creates the room and starts its goroutine before the queue notifies
// either player, so /ws/room joins can never race an absent room.
func (r *Registry) Spawn(roomID uuid.UUID, a, b ledger.Profile) error {
	rm := newRoom(roomID, a, b, r.deps.Ledger, r.deps.Recorder, r.deps.Catalog, r.deps.Timings, r.deps.Rules, r.remove)

	r.mu.Lock()
	if _, exists := r.rooms[roomID]; exists {
		r.mu.Unlock()
		return ErrSeatTaken
	}
	r.rooms[roomID] = rm
	r.mu.Unlock()

	go rm.Run(r.baseCtx)
	obslog.L().Info("room_spawned", zap.String("room_id", roomID.String()),
		zap.String("player_a", a.GitHubLogin), zap.String("player_b", b.GitHubLogin))
	return nil
}

// Get returns a live room or ErrUnknownRoom.
func (r *Registry) Get(roomID uuid.UUID) (*Room, error) {
	r.mu.RLock()
	rm, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownRoom
	}
	return rm, nil
}

// Count is read by the dev API and shutdown logging.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

func (r *Registry) remove(roomID uuid.UUID) {
	r.mu.Lock()
	delete(r.rooms, roomID)
	r.mu.Unlock()
}
