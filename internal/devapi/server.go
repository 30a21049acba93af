// Package devapi exposes local development endpoints: scripted bot matches
// and simple runtime stats. 운영 배포에서는 DEV_API_ADDR를 비워 끈다.
package devapi

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/gnu-battle/internal/history"
	"github.com/park285/gnu-battle/internal/obslog"
	"github.com/park285/gnu-battle/internal/queue"
	"github.com/park285/gnu-battle/internal/room"
)

type Server struct {
	addr       string
	botAddr    string // battle server the bots dial into
	queue      *queue.Queue
	rooms      *room.Registry
	matches    *history.Repository // nil이면 기록 조회 비활성
	httpServer *fasthttp.Server
	botSeq     atomic.Int64
}

func NewServer(addr, botServerAddr string, q *queue.Queue, rooms *room.Registry, matches *history.Repository) *Server {
	s := &Server{addr: addr, botAddr: botServerAddr, queue: q, rooms: rooms, matches: matches}
	s.httpServer = &fasthttp.Server{
		Handler:            s.route,
		Name:               "gnu-battle-devapi",
		MaxRequestBodySize: 1 << 20,
	}
	return s
}

func (s *Server) ListenAndServe() error {
	obslog.L().Info("devapi_listen", zap.String("addr", s.addr))
	return s.httpServer.ListenAndServe(s.addr)
}

func (s *Server) Shutdown() error {
	return s.httpServer.Shutdown()
}

func (s *Server) route(ctx *fasthttp.RequestCtx) {
	path := string(ctx.Path())
	method := string(ctx.Method())

	switch {
	case method == fasthttp.MethodPost && path == "/api/dev/enqueue-test-user":
		s.handleEnqueueTestUser(ctx)
	case method == fasthttp.MethodPost && path == "/api/dev/start-bot-match":
		s.handleStartBotMatch(ctx)
	case method == fasthttp.MethodGet && path == "/api/dev/stats":
		s.handleStats(ctx)
	case method == fasthttp.MethodGet && path == "/api/dev/match-history":
		s.handleMatchHistory(ctx)
	default:
		writeJSON(ctx, fasthttp.StatusNotFound, map[string]string{"error": "not found"})
	}
}

type enqueueTestUserReq struct {
	Login    string `json:"login"`
	GitHubID int64  `json:"github_id"`
	Bet      int    `json:"bet"`
}

// handleEnqueueTestUser puts one scripted bot into the matchmaking queue so a
// waiting human gets an opponent.
func (s *Server) handleEnqueueTestUser(ctx *fasthttp.RequestCtx) {
	var req enqueueTestUserReq
	if len(ctx.PostBody()) > 0 {
		if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
			writeJSON(ctx, fasthttp.StatusBadRequest, map[string]string{"error": "invalid json body"})
			return
		}
	}
	bot := s.newBot(req.Login, req.GitHubID, req.Bet)
	s.launch(bot)
	writeJSON(ctx, fasthttp.StatusAccepted, map[string]string{"bot": bot.Login})
}

// handleStartBotMatch launches two bots that play each other end to end.
// 서버 전체 흐름의 스모크 테스트 용도.
func (s *Server) handleStartBotMatch(ctx *fasthttp.RequestCtx) {
	a := s.newBot("", 0, 0)
	b := s.newBot("", 0, 50)
	s.launch(a)
	s.launch(b)
	writeJSON(ctx, fasthttp.StatusAccepted, map[string]string{"bot_a": a.Login, "bot_b": b.Login})
}

func (s *Server) handleStats(ctx *fasthttp.RequestCtx) {
	writeJSON(ctx, fasthttp.StatusOK, map[string]int{
		"queue_waiting": s.queue.Waiting(),
		"rooms_live":    s.rooms.Count(),
	})
}

// handleMatchHistory returns the latest finished matches for one login.
// DATABASE_URL 없이 기동한 서버에서는 503을 돌려준다.
func (s *Server) handleMatchHistory(ctx *fasthttp.RequestCtx) {
	if s.matches == nil {
		writeJSON(ctx, fasthttp.StatusServiceUnavailable, map[string]string{"error": "match history disabled"})
		return
	}
	login := string(ctx.QueryArgs().Peek("login"))
	if login == "" {
		writeJSON(ctx, fasthttp.StatusBadRequest, map[string]string{"error": "login required"})
		return
	}
	limit := ctx.QueryArgs().GetUintOrZero("limit")

	recs, err := s.matches.Recent(ctx, login, limit)
	if err != nil {
		obslog.L().Warn("dev_match_history_failed", zap.String("login", login), zap.Error(err))
		writeJSON(ctx, fasthttp.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}
	if recs == nil {
		recs = []room.MatchRecord{}
	}
	writeJSON(ctx, fasthttp.StatusOK, map[string]any{"login": login, "matches": recs})
}

func (s *Server) newBot(login string, githubID int64, bet int) *Bot {
	seq := s.botSeq.Add(1)
	if login == "" {
		login = fmt.Sprintf("dev-bot-%d", seq)
	}
	if githubID == 0 {
		githubID = -seq // 실계정과 충돌하지 않는 음수 대역
	}
	return &Bot{Login: login, GitHubID: githubID, ServerAddr: s.botAddr, BetAmount: bet}
}

func (s *Server) launch(b *Bot) {
	go func() {
		if err := b.Run(context.Background()); err != nil {
			obslog.L().Warn("dev_bot_failed", zap.String("bot", b.Login), zap.Error(err))
		}
	}()
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json; charset=utf-8")
	raw, err := json.Marshal(v)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetBody(raw)
}
