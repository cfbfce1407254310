package repository

import "context"

// Truncate empties both tables between test cases.
func Truncate(ctx context.Context, s *PostgresStore) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE player_ratings, scores`)
	return err
}
