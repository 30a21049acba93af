// Package gateway terminates player WebSockets and bridges them to the
// matchmaking queue and room engine.
package gateway

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/gnu-battle/internal/ledger"
	"github.com/park285/gnu-battle/internal/msgcat"
	"github.com/park285/gnu-battle/internal/obslog"
	"github.com/park285/gnu-battle/internal/queue"
	"github.com/park285/gnu-battle/internal/room"
	"github.com/park285/gnu-battle/pkg/battledto"
)

// Server wires the two WebSocket endpoints.
type Server struct {
	queue   *queue.Queue
	rooms   *room.Registry
	lg      *ledger.Ledger
	cat     *msgcat.Catalog
	origins []string
}

func NewServer(q *queue.Queue, rooms *room.Registry, lg *ledger.Ledger, cat *msgcat.Catalog, allowedOrigins []string) *Server {
	return &Server{queue: q, rooms: rooms, lg: lg, cat: cat, origins: originPatterns(allowedOrigins)}
}

// originPatterns converts configured origin URLs into the host patterns the
// websocket handshake checks.
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
			continue
		}
		out = append(out, o)
	}
	return out
}

// Handler returns the HTTP mux for the battle server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/matchmake", s.handleMatchmake)
	mux.HandleFunc("GET /ws/room/{room_id}", s.handleRoom)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func (s *Server) accept(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  s.origins,
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
}

// handleMatchmake holds the socket while the player waits in the queue.
// ev_match_found 이후 클라이언트는 이 소켓을 닫고 /ws/room으로 간다.
func (s *Server) handleMatchmake(w http.ResponseWriter, r *http.Request) {
	login := strings.TrimSpace(r.URL.Query().Get("github_login"))
	githubID, _ := strconv.ParseInt(r.URL.Query().Get("github_id"), 10, 64)
	if login == "" {
		http.Error(w, "github_login required", http.StatusBadRequest)
		return
	}
	log := obslog.L().With(zap.String("login", login))

	conn, err := s.accept(w, r)
	if err != nil {
		log.Warn("ws_accept_failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx := r.Context()
	sink := newWSSink(conn)

	player, err := s.lg.Ensure(ctx, login, githubID)
	if err != nil {
		log.Warn("player_ensure_failed", zap.Error(err))
		_ = sink.Send(ctx, errEnvelope(battledto.ErrCodeQueueError, s.cat.Text("queue.join_error")))
		return
	}

	ticket := &queue.Ticket{Player: player.Profile(), Sink: sink, EnqueuedAt: time.Now()}
	if err := s.queue.Enqueue(ctx, ticket); err != nil {
		code := battledto.ErrCodeQueueError
		msg := s.cat.Text("queue.join_error")
		if errors.Is(err, queue.ErrAlreadyQueued) {
			code = battledto.ErrCodeAlreadyInQueue
			msg = s.cat.Text("queue.already_in_queue")
		}
		_ = sink.Send(ctx, errEnvelope(code, msg))
		return
	}
	defer s.queue.Cancel(ticket) // 페어링 후에는 no-op

	for {
		var env battledto.Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			log.Debug("matchmake_ws_closed", zap.Error(err))
			return
		}
		if env.Type == battledto.ActCancelMatchmaking {
			s.queue.Cancel(ticket)
			log.Info("matchmake_cancelled")
			return
		}
	}
}

// handleRoom attaches the socket to its seat and pumps frames into the room
// inbox until either side goes away.
func (s *Server) handleRoom(w http.ResponseWriter, r *http.Request) {
	login := strings.TrimSpace(r.URL.Query().Get("github_login"))
	roomID, err := uuid.Parse(r.PathValue("room_id"))
	if login == "" || err != nil {
		http.Error(w, "github_login and room_id required", http.StatusBadRequest)
		return
	}
	log := obslog.L().With(zap.String("login", login), zap.String("room_id", roomID.String()))

	rm, err := s.rooms.Get(roomID)
	if err != nil {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}

	conn, err := s.accept(w, r)
	if err != nil {
		log.Warn("ws_accept_failed", zap.Error(err))
		return
	}

	ctx := r.Context()
	sink := newWSSink(conn)

	idx, err := rm.Join(login, sink)
	if err != nil {
		log.Warn("room_join_rejected", zap.Error(err))
		_ = sink.Send(ctx, errEnvelope(battledto.ErrCodeJoinFailed, s.cat.Text("room.join_failed")))
		conn.Close(websocket.StatusPolicyViolation, "join rejected")
		return
	}
	log.Info("room_ws_attached", zap.Int("seat", idx))
	defer conn.Close(websocket.StatusNormalClosure, "")

	// 룸이 끝나면 소켓을 닫아 아래 read 루프를 깨운다
	readDone := make(chan struct{})
	go func() {
		select {
		case <-rm.Finished():
			conn.Close(websocket.StatusNormalClosure, "game over")
		case <-readDone:
		}
	}()

	for {
		var env battledto.Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			close(readDone)
			if rm.Status() != room.StatusFinished {
				log.Info("room_ws_disconnected", zap.Int("seat", idx), zap.Error(err))
				rm.NotifyDisconnect(idx)
			}
			return
		}
		rm.Deliver(ctx, idx, env.Type, env.Payload)
	}
}

func errEnvelope(code, msg string) battledto.OutEnvelope {
	return battledto.OutEnvelope{Type: battledto.EvError, Payload: battledto.ErrorPayload{Code: code, Message: msg}}
}
