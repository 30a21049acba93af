package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
)

type AppConfig struct {
	ListenAddr string
	DevAPIAddr string

	RedisURL    string
	DatabaseURL string

	AllowedOrigins []string

	TurnTimeLimitSec int
	QuestionWaitSec  int

	MinBet            int
	BaseGnuPerCorrect int
	TkoBonus          int
	InitialGnu        int
	InitialRate       int

	BotServerAddr  string
	MsgTemplateDir string
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:        ":8080",
		TurnTimeLimitSec:  15,
		QuestionWaitSec:   60,
		MinBet:            0,
		BaseGnuPerCorrect: 100,
		TkoBonus:          300,
		InitialGnu:        1000,
		InitialRate:       1500,
		BotServerAddr:     "localhost:8080",
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	cfg.DevAPIAddr = strings.TrimSpace(os.Getenv("DEV_API_ADDR"))

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	if v := strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")); v != "" {
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, s)
			}
		}
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"http://localhost:3000"}
	}

	if v := strings.TrimSpace(os.Getenv("TURN_TIME_LIMIT_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.TurnTimeLimitSec = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("QUESTION_WAIT_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.QuestionWaitSec = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("MIN_BET")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.MinBet = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("BASE_GNU_PER_CORRECT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.BaseGnuPerCorrect = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("TKO_BONUS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.TkoBonus = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("INITIAL_GNU")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.InitialGnu = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("INITIAL_RATE")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.InitialRate = n
		}
	}

	if v := strings.TrimSpace(os.Getenv("BOT_SERVER_ADDR")); v != "" {
		cfg.BotServerAddr = v
	}
	cfg.MsgTemplateDir = strings.TrimSpace(os.Getenv("MSG_TEMPLATE_DIR"))

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}

	return cfg, nil
}
