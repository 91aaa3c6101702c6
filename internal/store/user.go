package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"notulis.app/bot/core/db"
	"notulis.app/bot/internal/model"
)

type userStore struct {
	conn db.DBTX
}

func newUserStore(conn db.DBTX) UserStore {
	return &userStore{conn: conn}
}

// Upsert registers or renames a sender. Last registration wins.
func (s *userStore) Upsert(ctx context.Context, user *model.ChatUser) error {
	err := s.conn.QueryRow(ctx, `
		INSERT INTO chat_users (sender_id, display_name)
		VALUES ($1, $2)
		ON CONFLICT (sender_id) DO UPDATE SET display_name = EXCLUDED.display_name, registered_at = now()
		RETURNING registered_at`,
		user.SenderID, user.DisplayName,
	).Scan(&user.RegisteredAt)
	if err != nil {
		return fmt.Errorf("upserting chat user: %w", err)
	}
	return nil
}

func (s *userStore) List(ctx context.Context) ([]model.ChatUser, error) {
	rows, err := s.conn.Query(ctx, `SELECT sender_id, display_name, registered_at FROM chat_users`)
	if err != nil {
		return nil, fmt.Errorf("listing chat users: %w", err)
	}
	users, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.ChatUser, error) {
		var u model.ChatUser
		err := row.Scan(&u.SenderID, &u.DisplayName, &u.RegisteredAt)
		return u, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning chat users: %w", err)
	}
	return users, nil
}
