package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	appcfg "github.com/park285/gnu-battle/internal/config"
	"github.com/park285/gnu-battle/internal/devapi"
	"github.com/park285/gnu-battle/internal/gateway"
	"github.com/park285/gnu-battle/internal/history"
	"github.com/park285/gnu-battle/internal/ledger"
	"github.com/park285/gnu-battle/internal/msgcat"
	"github.com/park285/gnu-battle/internal/obslog"
	"github.com/park285/gnu-battle/internal/queue"
	"github.com/park285/gnu-battle/internal/room"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()

	cat, err := msgcat.New(cfg.MsgTemplateDir)
	if err != nil {
		log.Fatalf("message catalog error: %v", err)
	}

	lg, err := ledger.New(cfg.RedisURL, cfg.InitialGnu, cfg.InitialRate)
	if err != nil {
		log.Fatalf("ledger init error: %v", err)
	}

	// 매치 기록은 DATABASE_URL이 있을 때만 붙인다
	var recorder room.MatchRecorder
	var repo *history.Repository
	if cfg.DatabaseURL != "" {
		repo, err = history.NewRepository(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("history repo init error: %v", err)
		}
		recorder = repo
	} else {
		logger.Warn("history_disabled", zap.String("reason", "DATABASE_URL not set"))
	}

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	rooms := room.NewRegistry(rootCtx, room.Deps{
		Ledger:   lg,
		Recorder: recorder,
		Catalog:  cat,
		Timings: room.Timings{
			TurnTimeLimit: time.Duration(cfg.TurnTimeLimitSec) * time.Second,
			QuestionWait:  time.Duration(cfg.QuestionWaitSec) * time.Second,
		},
		Rules: room.Rules{
			MinBet:            cfg.MinBet,
			BaseGnuPerCorrect: cfg.BaseGnuPerCorrect,
			TkoBonus:          cfg.TkoBonus,
		},
	})
	q := queue.New(rooms, cat)
	gw := gateway.NewServer(q, rooms, lg, cat, cfg.AllowedOrigins)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           gw.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("server_listen", zap.String("addr", cfg.ListenAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server_failed", zap.Error(err))
		}
	}()

	var devSrv *devapi.Server
	if cfg.DevAPIAddr != "" {
		devSrv = devapi.NewServer(cfg.DevAPIAddr, cfg.BotServerAddr, q, rooms, repo)
		go func() {
			if err := devSrv.ListenAndServe(); err != nil {
				logger.Error("devapi_failed", zap.Error(err))
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown_begin", zap.Int("rooms_live", rooms.Count()), zap.Int("queue_waiting", q.Waiting()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	if devSrv != nil {
		_ = devSrv.Shutdown()
	}
	rootCancel()
	_ = lg.Close()
	if repo != nil {
		_ = repo.Close()
	}
	logger.Info("shutdown_complete")
}
