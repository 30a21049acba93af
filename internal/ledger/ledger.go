package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/park285/gnu-battle/internal/obslog"
	"go.uber.org/zap"
)

const walletRetries = 5

// Ledger is the sole writer of player balances and rates. 많은 룸이 동시에
// 서로 다른 플레이어를 건드려도 WATCH 트랜잭션으로 직렬화된다.
type Ledger struct {
	rdb         *redis.Client
	initialGnu  int
	initialRate int
	hook        RatingHook
}

func New(redisURL string, initialGnu, initialRate int) (*Ledger, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for ledger")
	}
	opts, err := parseRedisURL(redisURL)
	if err != nil { return nil, err }
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewWithClient(rdb, initialGnu, initialRate), nil
}

// NewWithClient wires an existing client (tests use miniredis through this).
func NewWithClient(rdb *redis.Client, initialGnu, initialRate int) *Ledger {
	return &Ledger{rdb: rdb, initialGnu: initialGnu, initialRate: initialRate, hook: EloHook{K: 32}}
}

func (l *Ledger) Close() error {
	if l == nil || l.rdb == nil { return nil }
	return l.rdb.Close()
}

// SetRatingHook replaces the post-game rating rule. nil은 레이트 갱신 없음.
func (l *Ledger) SetRatingHook(h RatingHook) {
	if l != nil {
		l.hook = h
	}
}

// Ensure loads the wallet for a login, creating it with defaults if absent.
func (l *Ledger) Ensure(ctx context.Context, login string, githubID int64) (*Player, error) {
	login = strings.TrimSpace(login)
	if login == "" { return nil, ErrInvalidArgs }
	if p, err := l.Get(ctx, login); err != nil {
		return nil, err
	} else if p != nil {
		return p, nil
	}

	p := &Player{
		ID:          uuid.New(),
		GitHubLogin: login,
		GitHubID:    githubID,
		GnuBalance:  l.initialGnu,
		Rate:        l.initialRate,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	raw, err := json.Marshal(p)
	if err != nil { return nil, err }
	ok, err := l.rdb.SetNX(ctx, walletKey(login), raw, 0).Result()
	if err != nil { return nil, err }
	if !ok {
		// 동시 생성 경합: 먼저 만든 쪽을 읽어 반환
		existing, gerr := l.Get(ctx, login)
		if gerr != nil { return nil, gerr }
		if existing == nil { return nil, fmt.Errorf("wallet vanished after setnx race") }
		return existing, nil
	}
	obslog.L().Info("ledger_wallet_create", zap.String("login", login), zap.Int("gnu", p.GnuBalance), zap.Int("rate", p.Rate))
	return p, nil
}

// Get returns the wallet, nil when none exists.
func (l *Ledger) Get(ctx context.Context, login string) (*Player, error) {
	raw, err := l.rdb.Get(ctx, walletKey(login)).Bytes()
	if err == redis.Nil { return nil, nil }
	if err != nil { return nil, err }
	var p Player
	if err := json.Unmarshal(raw, &p); err != nil { return nil, err }
	return &p, nil
}

// Balance returns the current gnu balance.
func (l *Ledger) Balance(ctx context.Context, login string) (int, error) {
	p, err := l.Get(ctx, login)
	if err != nil { return 0, err }
	if p == nil { return 0, ErrUnknownPlayer }
	return p.GnuBalance, nil
}

// ApplyDelta debits or credits one player's balance and returns the new value.
// A result below zero is rejected, not clamped.
func (l *Ledger) ApplyDelta(ctx context.Context, login string, delta int) (int, error) {
	var newBalance int
	err := l.updateWallet(ctx, login, func(p *Player) error {
		next := p.GnuBalance + delta
		if next < 0 {
			return ErrInsufficientGnu
		}
		p.GnuBalance = next
		newBalance = next
		return nil
	})
	if err != nil { return 0, err }
	obslog.L().Debug("ledger_delta", zap.String("login", login), zap.Int("delta", delta), zap.Int("balance", newBalance))
	return newBalance, nil
}

// ApplyGameResult commits the end-of-game rating updates through the hook.
// 턴별 잔고 변동은 이미 ApplyDelta로 반영되어 있다.
func (l *Ledger) ApplyGameResult(ctx context.Context, res *GameResult) error {
	if l == nil || res == nil { return ErrInvalidArgs }
	if l.hook == nil { return nil }

	pa, err := l.Get(ctx, res.A.Login)
	if err != nil { return err }
	pb, err := l.Get(ctx, res.B.Login)
	if err != nil { return err }
	if pa == nil || pb == nil { return ErrUnknownPlayer }

	scoreA := 0.5
	switch res.A.Result {
	case "win":
		scoreA = 1
	case "lose":
		scoreA = 0
	}
	newA, newB := l.hook.NewRates(pa.Rate, pb.Rate, scoreA)

	if err := l.updateWallet(ctx, res.A.Login, func(p *Player) error { p.Rate = newA; return nil }); err != nil {
		return err
	}
	if err := l.updateWallet(ctx, res.B.Login, func(p *Player) error { p.Rate = newB; return nil }); err != nil {
		return err
	}
	obslog.L().Info("ledger_game_result",
		zap.String("room_id", res.RoomID),
		zap.String("a", res.A.Login), zap.String("a_result", res.A.Result), zap.Int("a_rate", newA),
		zap.String("b", res.B.Login), zap.String("b_result", res.B.Result), zap.Int("b_rate", newB),
	)
	return nil
}

// updateWallet applies mutate under a WATCH transaction, retrying on conflict.
func (l *Ledger) updateWallet(ctx context.Context, login string, mutate func(*Player) error) error {
	key := walletKey(login)
	for attempt := 0; attempt < walletRetries; attempt++ {
		err := l.rdb.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Bytes()
			if err == redis.Nil { return ErrUnknownPlayer }
			if err != nil { return err }
			var p Player
			if jerr := json.Unmarshal(raw, &p); jerr != nil { return jerr }
			if merr := mutate(&p); merr != nil { return merr }
			p.UpdatedAt = time.Now()
			pipe := tx.TxPipeline()
			newRaw, _ := json.Marshal(&p)
			pipe.Set(ctx, key, newRaw, 0)
			_, perr := pipe.Exec(ctx)
			return perr
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrConcurrent
}

func walletKey(login string) string { return "ledger:player:" + strings.TrimSpace(login) }

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil { return nil, err }
	if u.Scheme != "redis" && u.Scheme != "rediss" { return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme) }
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil { db = n }
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
