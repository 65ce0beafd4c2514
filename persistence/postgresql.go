// persistence/postgresql.go
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/wfunc/tugofwar/models"
)

// PostgreSQL is the database/sql match archive on lib/pq. It shares the
// schema GORM migrates.
type PostgreSQL struct {
	db *sql.DB
}

func NewPostgreSQL(dsn string) (*PostgreSQL, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := initTables(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgreSQL{db: db}, nil
}

func initTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS matches (
            id BIGSERIAL PRIMARY KEY,
            room_id VARCHAR(16) NOT NULL,
            winner VARCHAR(16) NOT NULL,
            wins_a BIGINT NOT NULL,
            wins_b BIGINT NOT NULL,
            rounds BIGINT NOT NULL,
            target_wins BIGINT NOT NULL,
            ended_at TIMESTAMPTZ NOT NULL,
            created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
        )
    `)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS match_players (
            id BIGSERIAL PRIMARY KEY,
            match_id BIGINT NOT NULL REFERENCES matches(id) ON DELETE CASCADE,
            player_id VARCHAR(64) NOT NULL,
            username VARCHAR(64) NOT NULL,
            team VARCHAR(16) NOT NULL,
            score BIGINT NOT NULL,
            rank BIGINT NOT NULL
        )
    `)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
        CREATE INDEX IF NOT EXISTS idx_matches_room_id ON matches(room_id);
        CREATE INDEX IF NOT EXISTS idx_matches_ended_at ON matches(ended_at);
        CREATE INDEX IF NOT EXISTS idx_match_players_match_id ON match_players(match_id);
        CREATE INDEX IF NOT EXISTS idx_match_players_username ON match_players(username);
    `)
	return err
}

func (p *PostgreSQL) SaveMatch(ctx context.Context, record *models.MatchRecord) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowContext(ctx, `
        INSERT INTO matches (room_id, winner, wins_a, wins_b, rounds, target_wins, ended_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id`,
		record.RoomID, record.Winner, record.WinsA, record.WinsB,
		record.Rounds, record.TargetWins, record.EndedAt,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("insert match: %w", err)
	}

	for _, pl := range record.Players {
		_, err = tx.ExecContext(ctx, `
            INSERT INTO match_players (match_id, player_id, username, team, score, rank)
            VALUES ($1, $2, $3, $4, $5, $6)`,
			id, pl.PlayerID, pl.Username, pl.Team, pl.Score, pl.Rank)
		if err != nil {
			return fmt.Errorf("insert match player: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	record.ID = id
	return nil
}

const matchColumns = `id, room_id, winner, wins_a, wins_b, rounds, target_wins, ended_at`

func scanMatch(row interface{ Scan(...any) error }) (models.MatchRecord, error) {
	var r models.MatchRecord
	err := row.Scan(&r.ID, &r.RoomID, &r.Winner, &r.WinsA, &r.WinsB, &r.Rounds, &r.TargetWins, &r.EndedAt)
	r.EndedAt = r.EndedAt.UTC()
	r.Players = []models.MatchPlayer{}
	return r, err
}

func (p *PostgreSQL) LoadMatch(ctx context.Context, id int64) (*models.MatchRecord, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+matchColumns+` FROM matches WHERE id = $1`, id)
	record, err := scanMatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}

	records := []models.MatchRecord{record}
	if err := p.attachPlayers(ctx, records); err != nil {
		return nil, err
	}
	return &records[0], nil
}

func (p *PostgreSQL) RecentMatches(ctx context.Context, limit int) ([]models.MatchRecord, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+matchColumns+` FROM matches ORDER BY ended_at DESC, id DESC LIMIT $1`,
		clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []models.MatchRecord{}
	for rows.Next() {
		record, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := p.attachPlayers(ctx, records); err != nil {
		return nil, err
	}
	return records, nil
}

// attachPlayers loads the players of every record with a single query.
func (p *PostgreSQL) attachPlayers(ctx context.Context, records []models.MatchRecord) error {
	if len(records) == 0 {
		return nil
	}
	ids := make([]int64, len(records))
	index := make(map[int64]int, len(records))
	for i, r := range records {
		ids[i] = r.ID
		index[r.ID] = i
	}

	rows, err := p.db.QueryContext(ctx, `
        SELECT match_id, player_id, username, team, score, rank
        FROM match_players
        WHERE match_id = ANY($1)
        ORDER BY match_id, rank`, pq.Array(ids))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var matchID int64
		var pl models.MatchPlayer
		if err := rows.Scan(&matchID, &pl.PlayerID, &pl.Username, &pl.Team, &pl.Score, &pl.Rank); err != nil {
			return err
		}
		i := index[matchID]
		records[i].Players = append(records[i].Players, pl)
	}
	return rows.Err()
}

func (p *PostgreSQL) PlayerStats(ctx context.Context, username string) (*models.PlayerStats, error) {
	var stats models.PlayerStats
	err := p.db.QueryRowContext(ctx, playerStatsQuery("$1"), username).
		Scan(&stats.Username, &stats.Matches, &stats.Wins, &stats.TotalScore, &stats.BestScore)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func (p *PostgreSQL) Close() error {
	return p.db.Close()
}

// playerStatsQuery aggregates one username across matches. placeholder is
// the driver's bind marker.
func playerStatsQuery(placeholder string) string {
	return `
        SELECT p.username AS username,
               COUNT(*) AS matches,
               SUM(CASE WHEN p.team = m.winner THEN 1 ELSE 0 END) AS wins,
               COALESCE(SUM(p.score), 0) AS total_score,
               COALESCE(MAX(p.score), 0) AS best_score
        FROM match_players p
        JOIN matches m ON m.id = p.match_id
        WHERE p.username = ` + placeholder + `
        GROUP BY p.username`
}
