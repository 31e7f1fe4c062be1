package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/coinville/questd/internal/quest"
)

// AppendCollectionEntry writes the permanent trophy record. Keyed by
// (user, quest date) so a reconciliation re-run after a partial commit is
// a no-op rather than a duplicate.
func (s *Store) AppendCollectionEntry(ctx context.Context, entry quest.CollectionEntry) error {
	chatLog, err := messagesJSON(entry.ChatLog)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO collection (id, user_id, persona_id, quest_date, chat_log, exposed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, quest_date) DO NOTHING`,
		uuid.New(), entry.UserID, entry.PersonaID, entry.Date, chatLog, entry.ExposedAt,
	)
	if err != nil {
		return fmt.Errorf("insert collection entry: %w", err)
	}
	return nil
}

// GetCollectionEntry returns one trophy record, or (nil, nil) when the
// user has not exposed the day's persona.
func (s *Store) GetCollectionEntry(ctx context.Context, userID uuid.UUID, date quest.Date) (*quest.CollectionEntry, error) {
	var e quest.CollectionEntry
	var rawLog, rawQA []byte
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, persona_id, quest_date::text, chat_log, post_chat_qa, exposed_at
		FROM collection WHERE user_id = $1 AND quest_date = $2`,
		userID, date,
	).Scan(&e.UserID, &e.PersonaID, &e.Date, &rawLog, &rawQA, &e.ExposedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get collection entry: %w", err)
	}
	if e.ChatLog, err = scanMessages(rawLog); err != nil {
		return nil, err
	}
	if e.PostChatQA, err = scanMessages(rawQA); err != nil {
		return nil, err
	}
	return &e, nil
}

// AppendInterviewQA appends post-exposure Q&A turns to the trophy record.
// Uses jsonb concatenation so the append is atomic.
func (s *Store) AppendInterviewQA(ctx context.Context, userID uuid.UUID, date quest.Date, turns []quest.Message) error {
	raw, err := messagesJSON(turns)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE collection SET post_chat_qa = post_chat_qa || $1::jsonb
		WHERE user_id = $2 AND quest_date = $3`,
		raw, userID, date,
	)
	if err != nil {
		return fmt.Errorf("append interview qa: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("append interview qa: no collection entry for user %s on %s", userID, date)
	}
	return nil
}

// ListCollection returns all of a user's trophies, newest first.
func (s *Store) ListCollection(ctx context.Context, userID uuid.UUID) ([]quest.CollectionEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, persona_id, quest_date::text, chat_log, post_chat_qa, exposed_at
		FROM collection WHERE user_id = $1 ORDER BY exposed_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list collection: %w", err)
	}
	defer rows.Close()

	var entries []quest.CollectionEntry
	for rows.Next() {
		var e quest.CollectionEntry
		var rawLog, rawQA []byte
		if err := rows.Scan(&e.UserID, &e.PersonaID, &e.Date, &rawLog, &rawQA, &e.ExposedAt); err != nil {
			return nil, fmt.Errorf("scan collection entry: %w", err)
		}
		if e.ChatLog, err = scanMessages(rawLog); err != nil {
			return nil, err
		}
		if e.PostChatQA, err = scanMessages(rawQA); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
