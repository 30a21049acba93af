package queue

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/park285/gnu-battle/internal/ledger"
	"github.com/park285/gnu-battle/internal/msgcat"
	"github.com/park285/gnu-battle/pkg/battledto"
)

type fakeSink struct {
	mu     sync.Mutex
	events []battledto.OutEnvelope
	broken bool
}

func (s *fakeSink) Send(_ context.Context, env battledto.OutEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broken {
		return errors.New("broken pipe")
	}
	s.events = append(s.events, env)
	return nil
}

func (s *fakeSink) typed(t string) []battledto.OutEnvelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []battledto.OutEnvelope
	for _, e := range s.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type fakeSpawner struct {
	mu    sync.Mutex
	rooms []uuid.UUID
	fail  bool
}

func (s *fakeSpawner) Spawn(roomID uuid.UUID, _, _ ledger.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("spawn refused")
	}
	s.rooms = append(s.rooms, roomID)
	return nil
}

func newTestQueue(t *testing.T) (*Queue, *fakeSpawner) {
	t.Helper()
	cat, err := msgcat.New("")
	if err != nil { t.Fatalf("msgcat: %v", err) }
	sp := &fakeSpawner{}
	return New(sp, cat), sp
}

func ticketFor(login string) (*Ticket, *fakeSink) {
	sink := &fakeSink{}
	return &Ticket{
		Player: ledger.Profile{ID: uuid.New(), GitHubLogin: login, Rate: 1500},
		Sink:   sink,
	}, sink
}

func TestPairingDeliversSameRoomID(t *testing.T) {
	q, sp := newTestQueue(t)
	ctx := context.Background()

	t1, s1 := ticketFor("alice")
	t2, s2 := ticketFor("bob")
	if err := q.Enqueue(ctx, t1); err != nil { t.Fatalf("Enqueue#1: %v", err) }
	if len(s1.typed(battledto.EvQueueJoined)) != 1 { t.Fatalf("alice missing ev_queue_joined") }
	if err := q.Enqueue(ctx, t2); err != nil { t.Fatalf("Enqueue#2: %v", err) }

	m1 := s1.typed(battledto.EvMatchFound)
	m2 := s2.typed(battledto.EvMatchFound)
	if len(m1) != 1 || len(m2) != 1 { t.Fatalf("expected one ev_match_found each, got %d/%d", len(m1), len(m2)) }

	p1 := m1[0].Payload.(battledto.MatchFoundPayload)
	p2 := m2[0].Payload.(battledto.MatchFoundPayload)
	if p1.RoomID != p2.RoomID { t.Fatalf("room id mismatch: %s vs %s", p1.RoomID, p2.RoomID) }
	if p1.Opponent.GitHubLogin != "bob" || p2.Opponent.GitHubLogin != "alice" {
		t.Fatalf("wrong opponents: %s / %s", p1.Opponent.GitHubLogin, p2.Opponent.GitHubLogin)
	}
	if len(sp.rooms) != 1 || sp.rooms[0].String() != p1.RoomID {
		t.Fatalf("spawned room does not match delivered id")
	}
	if q.Waiting() != 0 { t.Fatalf("queue should be drained, %d left", q.Waiting()) }
}

func TestThirdTicketWaits(t *testing.T) {
	q, sp := newTestQueue(t)
	ctx := context.Background()

	t1, _ := ticketFor("alice")
	t2, _ := ticketFor("bob")
	t3, s3 := ticketFor("carol")
	_ = q.Enqueue(ctx, t1)
	_ = q.Enqueue(ctx, t2)
	if err := q.Enqueue(ctx, t3); err != nil { t.Fatalf("Enqueue#3: %v", err) }

	if len(sp.rooms) != 1 { t.Fatalf("expected exactly one room, got %d", len(sp.rooms)) }
	if len(s3.typed(battledto.EvMatchFound)) != 0 { t.Fatalf("third ticket must not be paired") }
	if q.Waiting() != 1 { t.Fatalf("expected one waiting ticket, got %d", q.Waiting()) }
}

func TestDuplicateLoginRejected(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	t1, _ := ticketFor("alice")
	t2, _ := ticketFor("alice")
	if err := q.Enqueue(ctx, t1); err != nil { t.Fatalf("Enqueue: %v", err) }
	if err := q.Enqueue(ctx, t2); !errors.Is(err, ErrAlreadyQueued) {
		t.Fatalf("expected ErrAlreadyQueued, got %v", err)
	}
}

func TestCancelBeforePairing(t *testing.T) {
	q, sp := newTestQueue(t)
	ctx := context.Background()

	t1, _ := ticketFor("alice")
	_ = q.Enqueue(ctx, t1)
	q.Cancel(t1)
	if q.Waiting() != 0 { t.Fatalf("cancel did not remove ticket") }

	// 취소 후 같은 로그인으로 재등록 가능해야 한다
	t2, _ := ticketFor("alice")
	if err := q.Enqueue(ctx, t2); err != nil { t.Fatalf("re-enqueue after cancel: %v", err) }

	t3, _ := ticketFor("bob")
	_ = q.Enqueue(ctx, t3)
	if len(sp.rooms) != 1 { t.Fatalf("expected pairing after re-enqueue") }
}

func TestCancelAfterPairingIsNoop(t *testing.T) {
	q, sp := newTestQueue(t)
	ctx := context.Background()

	t1, _ := ticketFor("alice")
	t2, _ := ticketFor("bob")
	_ = q.Enqueue(ctx, t1)
	_ = q.Enqueue(ctx, t2)
	if len(sp.rooms) != 1 { t.Fatalf("expected pairing") }

	q.Cancel(t1) // 페어링은 돌아올 수 없는 지점
	if q.Waiting() != 0 { t.Fatalf("cancel after pairing must not touch the queue") }
}

func TestBrokenSinkNotEnqueued(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	t1, s1 := ticketFor("alice")
	s1.broken = true
	if err := q.Enqueue(ctx, t1); !errors.Is(err, ErrSinkClosed) {
		t.Fatalf("expected ErrSinkClosed, got %v", err)
	}
	if q.Waiting() != 0 { t.Fatalf("broken ticket must not be enqueued") }
}

func TestSpawnFailureReportsBothSides(t *testing.T) {
	q, sp := newTestQueue(t)
	sp.fail = true
	ctx := context.Background()

	t1, s1 := ticketFor("alice")
	t2, s2 := ticketFor("bob")
	_ = q.Enqueue(ctx, t1)
	_ = q.Enqueue(ctx, t2)

	if len(s1.typed(battledto.EvError)) != 1 || len(s2.typed(battledto.EvError)) != 1 {
		t.Fatalf("both sides must receive ev_error on spawn failure")
	}
	if len(s1.typed(battledto.EvMatchFound)) != 0 { t.Fatalf("no ev_match_found expected on spawn failure") }
}
