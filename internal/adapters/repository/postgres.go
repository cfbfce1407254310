package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/tally/internal/domain/model"
)

// PostgresStore is a Repository backed by PostgreSQL through a pgx pool.
type PostgresStore struct {
	pool         *pgxpool.Pool
	queryTimeout time.Duration
}

// PostgresOptions tunes the pool.
type PostgresOptions struct {
	MaxConns       int32
	QueryTimeout   time.Duration
	ConnectTimeout time.Duration
}

// NewPostgresStore connects and pings the database.
func NewPostgresStore(ctx context.Context, dsn string, opts PostgresOptions) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	if opts.MaxConns > 0 {
		config.MaxConns = opts.MaxConns
	}
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = time.Minute
	if opts.ConnectTimeout > 0 {
		config.ConnConfig.ConnectTimeout = opts.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	timeout := opts.QueryTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PostgresStore{pool: pool, queryTimeout: timeout}, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, key model.Key) (model.Rating, bool, error) {
	defer observe("get", time.Now())
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	var r model.Rating
	err := s.pool.QueryRow(ctx, `
		SELECT player_id, team_id, average_score, total_of_scores, last_updated
		FROM player_ratings
		WHERE player_id = $1 AND team_id = $2
	`, key.PlayerID, key.TeamID).Scan(&r.PlayerID, &r.TeamID, &r.AverageScore, &r.TotalOfScores, &r.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Rating{}, false, nil
	}
	if err != nil {
		return model.Rating{}, false, fmt.Errorf("failed to get rating %s: %w", key, err)
	}
	r.LastUpdated = r.LastUpdated.UTC()
	return r, true, nil
}

// Create implements Store.
func (s *PostgresStore) Create(ctx context.Context, r model.Rating) error {
	defer observe("create", time.Now())
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO player_ratings (player_id, team_id, average_score, total_of_scores, last_updated)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (player_id, team_id) DO NOTHING
	`, r.PlayerID, r.TeamID, r.AverageScore, r.TotalOfScores, r.LastUpdated)
	if err != nil {
		return fmt.Errorf("failed to create rating %s: %w", r.Key(), err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, r.Key())
	}
	return nil
}

// Update implements Store. The write only lands if total_of_scores still
// matches prev, so two writers folding the same key cannot both succeed.
func (s *PostgresStore) Update(ctx context.Context, prev, next model.Rating) error {
	defer observe("update", time.Now())
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `
		UPDATE player_ratings
		SET average_score = $3, total_of_scores = $4, last_updated = $5
		WHERE player_id = $1 AND team_id = $2 AND total_of_scores = $6
	`, prev.PlayerID, prev.TeamID, next.AverageScore, next.TotalOfScores, next.LastUpdated, prev.TotalOfScores)
	if err != nil {
		return fmt.Errorf("failed to update rating %s: %w", prev.Key(), err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	_, found, err := s.Get(ctx, prev.Key())
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrNotFound, prev.Key())
	}
	return fmt.Errorf("%w: %s", ErrConflict, prev.Key())
}

// ListByTeam implements Store.
func (s *PostgresStore) ListByTeam(ctx context.Context, teamID int64) ([]model.Rating, error) {
	defer observe("list", time.Now())
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT player_id, team_id, average_score, total_of_scores, last_updated
		FROM player_ratings
		WHERE team_id = $1
		ORDER BY player_id
	`, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list team %d: %w", teamID, err)
	}
	defer rows.Close()

	out := make([]model.Rating, 0)
	for rows.Next() {
		var r model.Rating
		if err := rows.Scan(&r.PlayerID, &r.TeamID, &r.AverageScore, &r.TotalOfScores, &r.LastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan rating: %w", err)
		}
		r.LastUpdated = r.LastUpdated.UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list team %d: %w", teamID, err)
	}
	return out, nil
}

// Count implements Store.
func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM player_ratings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count ratings: %w", err)
	}
	return n, nil
}

// AppendScore implements ScoreLog.
func (s *PostgresStore) AppendScore(ctx context.Context, sc model.Score) (model.Score, error) {
	defer observe("append_score", time.Now())
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	if sc.ScoreID == "" {
		id, _ := uuid.NewV7()
		sc.ScoreID = id.String()
	}
	if sc.CreatedAt.IsZero() {
		sc.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO scores (score_id, player_id, team_id, score, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, sc.ScoreID, sc.PlayerID, sc.TeamID, sc.Score, sc.CreatedAt)
	if err != nil {
		return model.Score{}, fmt.Errorf("failed to append score: %w", err)
	}
	return sc, nil
}
