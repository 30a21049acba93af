// Package history persists finished matches to Postgres. 기록 실패는 경기
// 진행을 막지 않는다; 호출 측에서 로그만 남긴다.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/park285/gnu-battle/internal/room"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil { return nil }
	return r.db.Close()
}

// SaveMatch upserts one terminal match record.
func (r *Repository) SaveMatch(ctx context.Context, rec *room.MatchRecord) error {
	if r == nil || r.db == nil || rec == nil {
		return nil
	}

	duration := rec.EndedAt.Sub(rec.StartedAt).Milliseconds()
	if duration < 0 { duration = 0 }

	q := `INSERT INTO battle_matches (
	    room_id, method,
	    player_a, result_a, correct_a, gnu_earned_a, final_gnu_a,
	    player_b, result_b, correct_b, gnu_earned_b, final_gnu_b,
	    started_at, ended_at, duration_ms
	  ) VALUES (
	    $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
	  ) ON CONFLICT (room_id) DO UPDATE SET
	    method=EXCLUDED.method,
	    player_a=EXCLUDED.player_a,
	    result_a=EXCLUDED.result_a,
	    correct_a=EXCLUDED.correct_a,
	    gnu_earned_a=EXCLUDED.gnu_earned_a,
	    final_gnu_a=EXCLUDED.final_gnu_a,
	    player_b=EXCLUDED.player_b,
	    result_b=EXCLUDED.result_b,
	    correct_b=EXCLUDED.correct_b,
	    gnu_earned_b=EXCLUDED.gnu_earned_b,
	    final_gnu_b=EXCLUDED.final_gnu_b,
	    started_at=EXCLUDED.started_at,
	    ended_at=EXCLUDED.ended_at,
	    duration_ms=EXCLUDED.duration_ms`

	a, b := rec.Players[0], rec.Players[1]
	_, err := r.db.ExecContext(ctx, q,
		rec.RoomID, strings.TrimSpace(rec.Method),
		a.Login, a.Result, a.CorrectCount, a.GnuEarned, a.FinalGnu,
		b.Login, b.Result, b.CorrectCount, b.GnuEarned, b.FinalGnu,
		rec.StartedAt, rec.EndedAt, duration,
	)
	return err
}

// Recent returns the latest finished matches for a login, newest first.
func (r *Repository) Recent(ctx context.Context, login string, limit int) ([]room.MatchRecord, error) {
	if r == nil || r.db == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	q := `SELECT room_id, method,
	    player_a, result_a, correct_a, gnu_earned_a, final_gnu_a,
	    player_b, result_b, correct_b, gnu_earned_b, final_gnu_b,
	    started_at, ended_at
	  FROM battle_matches
	  WHERE player_a = $1 OR player_b = $1
	  ORDER BY ended_at DESC
	  LIMIT $2`

	rows, err := r.db.QueryContext(ctx, q, login, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []room.MatchRecord
	for rows.Next() {
		var rec room.MatchRecord
		a, b := &rec.Players[0], &rec.Players[1]
		if err := rows.Scan(&rec.RoomID, &rec.Method,
			&a.Login, &a.Result, &a.CorrectCount, &a.GnuEarned, &a.FinalGnu,
			&b.Login, &b.Result, &b.CorrectCount, &b.GnuEarned, &b.FinalGnu,
			&rec.StartedAt, &rec.EndedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
