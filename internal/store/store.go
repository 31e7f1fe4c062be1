package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coinville/questd/internal/quest"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// messagesJSON marshals a transcript for a jsonb column. A nil slice is
// stored as an empty array, not SQL null.
func messagesJSON(msgs []quest.Message) ([]byte, error) {
	if msgs == nil {
		msgs = []quest.Message{}
	}
	b, err := json.Marshal(msgs)
	if err != nil {
		return nil, fmt.Errorf("marshal messages: %w", err)
	}
	return b, nil
}

func scanMessages(raw []byte) ([]quest.Message, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var msgs []quest.Message
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return nil, fmt.Errorf("unmarshal messages: %w", err)
	}
	return msgs, nil
}
