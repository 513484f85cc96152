package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PlayerName returns the cached display name for identity, or "" when the
// player has never been seen.
func (s *Store) PlayerName(ctx context.Context, identity string) (string, error) {
	var name string

	err := s.db.QueryRowContext(ctx, `
		SELECT name
		FROM player_names
		WHERE identity = $1
	`, identity).Scan(&name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}

		return "", fmt.Errorf("get player name: %w", err)
	}

	return name, nil
}

// UpdatePlayerName records the name last seen for identity. Called on every
// player join so leaderboards can display offline players.
func (s *Store) UpdatePlayerName(ctx context.Context, identity, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO player_names (identity, name, seen_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (identity) DO UPDATE
		SET name = EXCLUDED.name, seen_at = EXCLUDED.seen_at
	`, identity, name, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update player name: %w", err)
	}

	return nil
}
