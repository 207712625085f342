package pool

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/park285/Squares-KakaoTalk-bot/internal/grid"

	_ "github.com/lib/pq"
)

// Schema for the archive tables. Applied by Migrate.
const schema = `
CREATE TABLE IF NOT EXISTS squares_pools (
  pool_id      TEXT PRIMARY KEY,
  code         TEXT NOT NULL,
  name         TEXT NOT NULL,
  room         TEXT NOT NULL,
  organizer_id TEXT NOT NULL,
  home_team    TEXT NOT NULL DEFAULT '',
  away_team    TEXT NOT NULL DEFAULT '',
  size         INT  NOT NULL,
  axis_mode    TEXT NOT NULL,
  row_labels   JSONB NOT NULL,
  col_labels   JSONB NOT NULL,
  claims       JSONB NOT NULL,
  scores       JSONB NOT NULL,
  sweeper      TEXT NOT NULL DEFAULT '', -- display name
  created_at   TIMESTAMPTZ NOT NULL,
  finalized_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS squares_pools_room_idx ON squares_pools (room, finalized_at DESC);
CREATE TABLE IF NOT EXISTS squares_period_winners (
  pool_id     TEXT NOT NULL REFERENCES squares_pools(pool_id) ON DELETE CASCADE,
  period      INT  NOT NULL,
  status      TEXT NOT NULL,
  home_digit  INT  NOT NULL,
  away_digit  INT  NOT NULL,
  cell_row    INT  NOT NULL,
  cell_col    INT  NOT NULL,
  owner_id    TEXT NOT NULL DEFAULT '',
  owner_name  TEXT NOT NULL DEFAULT '',
  PRIMARY KEY (pool_id, period)
);`

// Repository archives finalized pools in Postgres.
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
		_ = db.Close()
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *Repository) Migrate(ctx context.Context) error {
	if r == nil || r.db == nil {
		return nil
	}
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

// SaveResult upserts the pool row and replaces its per-period winners in one
// transaction.
func (r *Repository) SaveResult(ctx context.Context, b *Board) error {
	if r == nil || r.db == nil || b == nil || b.Pool == nil {
		return nil
	}
	p := b.Pool
	rowsRaw, _ := json.Marshal(p.RowLabels)
	colsRaw, _ := json.Marshal(p.ColumnLabels)
	claimsRaw, err := json.Marshal(b.Snapshot.Claims())
	if err != nil {
		return fmt.Errorf("marshal claims: %w", err)
	}
	scoresRaw, err := json.Marshal(b.Scores)
	if err != nil {
		return fmt.Errorf("marshal scores: %w", err)
	}
	sweeper, _ := b.Results.Sweep()
	for _, pc := range b.Snapshot.Claims() {
		if sweeper != "" && pc.Claim.Owner == sweeper {
			sweeper = pc.Claim.Label()
			break
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	q := `INSERT INTO squares_pools (
        pool_id, code, name, room, organizer_id, home_team, away_team,
        size, axis_mode, row_labels, col_labels, claims, scores, sweeper,
        created_at, finalized_at
      ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16
      ) ON CONFLICT (pool_id) DO UPDATE SET
        code=EXCLUDED.code,
        name=EXCLUDED.name,
        room=EXCLUDED.room,
        organizer_id=EXCLUDED.organizer_id,
        home_team=EXCLUDED.home_team,
        away_team=EXCLUDED.away_team,
        size=EXCLUDED.size,
        axis_mode=EXCLUDED.axis_mode,
        row_labels=EXCLUDED.row_labels,
        col_labels=EXCLUDED.col_labels,
        claims=EXCLUDED.claims,
        scores=EXCLUDED.scores,
        sweeper=EXCLUDED.sweeper,
        created_at=EXCLUDED.created_at,
        finalized_at=EXCLUDED.finalized_at`
	if _, err := tx.ExecContext(ctx, q,
		p.ID, p.Code, p.Name, p.Room, p.OrganizerID, p.HomeTeam, p.AwayTeam,
		p.Size, string(p.AxisMode), string(rowsRaw), string(colsRaw), string(claimsRaw), string(scoresRaw), sweeper,
		p.CreatedAt, p.UpdatedAt,
	); err != nil {
		return fmt.Errorf("upsert pool: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM squares_period_winners WHERE pool_id=$1`, p.ID); err != nil {
		return err
	}
	for _, res := range b.Results {
		if res.Status == grid.StatusUnresolved {
			continue
		}
		var ownerName string
		if res.Claim != nil {
			ownerName = res.Claim.Label()
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO squares_period_winners (
            pool_id, period, status, home_digit, away_digit, cell_row, cell_col, owner_id, owner_name
          ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			p.ID, res.Period, string(res.Status), res.HomeDigit, res.AwayDigit,
			res.Cell.Row, res.Cell.Column, res.Owner(), ownerName,
		); err != nil {
			return fmt.Errorf("insert winner p%d: %w", res.Period, err)
		}
	}
	return tx.Commit()
}

// ArchivedPool is one row of RecentByRoom.
type ArchivedPool struct {
	PoolID      string
	Code        string
	Name        string
	HomeTeam    string
	AwayTeam    string
	Sweeper     string
	FinalizedAt time.Time
	Winners     map[int]string
}

// RecentByRoom lists the latest finalized pools of a room with their winners.
func (r *Repository) RecentByRoom(ctx context.Context, room string, limit int) ([]ArchivedPool, error) {
	if r == nil || r.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}
	rows, err := r.db.QueryContext(ctx, `SELECT pool_id, code, name, home_team, away_team, sweeper, finalized_at
        FROM squares_pools WHERE room=$1 ORDER BY finalized_at DESC LIMIT $2`, strings.TrimSpace(room), limit)
	if err != nil {
		return nil, err
	}
	var out []ArchivedPool
	for rows.Next() {
		var a ArchivedPool
		if err := rows.Scan(&a.PoolID, &a.Code, &a.Name, &a.HomeTeam, &a.AwayTeam, &a.Sweeper, &a.FinalizedAt); err != nil {
			rows.Close()
			return nil, err
		}
		a.Winners = make(map[int]string)
		out = append(out, a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		wr, err := r.db.QueryContext(ctx, `SELECT period, owner_name FROM squares_period_winners
            WHERE pool_id=$1 AND status='won' ORDER BY period`, out[i].PoolID)
		if err != nil {
			return nil, err
		}
		for wr.Next() {
			var period int
			var name string
			if err := wr.Scan(&period, &name); err != nil {
				wr.Close()
				return nil, err
			}
			out[i].Winners[period] = name
		}
		wr.Close()
	}
	return out, nil
}
