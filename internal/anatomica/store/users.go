package store

import (
	"context"
	"fmt"
	"time"

	"github.com/aelkhatib/anatomica/internal/anatomica/registry"
)

// Has reports whether a user with the given id exists.
func (s *Store) Has(ctx context.Context, userID int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM users WHERE user_id = ?", userID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to look up user %d: %w", userID, err)
	}
	return n > 0, nil
}

// Insert stores a user unless one with the same user_id already exists.
// INSERT OR IGNORE on the primary key makes this the atomic first-insert the
// registry relies on: of any number of concurrent inserts for one user_id,
// exactly one reports a new row.
func (s *Store) Insert(ctx context.Context, u registry.User) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO users (user_id, chat_id, full_name, username, language, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, u.UserID, u.ChatID, u.FullName, u.Username, u.Language, time.Now())
	if err != nil {
		return false, fmt.Errorf("failed to insert user %d: %w", u.UserID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result for user %d: %w", u.UserID, err)
	}
	return affected > 0, nil
}

// All returns every registered user in registration order.
func (s *Store) All(ctx context.Context) ([]registry.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, chat_id, full_name, username, language
		FROM users
		ORDER BY created_at, user_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []registry.User
	for rows.Next() {
		var u registry.User
		if err := rows.Scan(&u.UserID, &u.ChatID, &u.FullName, &u.Username, &u.Language); err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user rows: %w", err)
	}
	return users, nil
}
