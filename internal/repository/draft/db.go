package draft

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kalmarr/matrixcbs/internal/autosave"
	"github.com/kalmarr/matrixcbs/internal/db"
	"github.com/kalmarr/matrixcbs/internal/model"
	"github.com/kalmarr/matrixcbs/internal/util/compression"
)

// DBStore persists drafts in the drafts table, overwriting in place.
// Bodies are compressed the same way post bodies are.
type DBStore struct {
	db         db.DB
	compressor compression.Compressor
}

func NewDBStore(database db.DB) *DBStore {
	return &DBStore{
		db:         database,
		compressor: compression.ZstdCompressor{},
	}
}

func (s *DBStore) SaveDraft(ctx context.Context, key model.DraftKey, snap autosave.Snapshot) (time.Time, error) {
	compressed, err := s.compressor.Compress([]byte(snap.Body))
	if err != nil {
		return time.Time{}, fmt.Errorf("error compressing draft body: %w", err)
	}

	now := time.Now().UTC()
	var postID interface{}
	if snap.PostID != nil {
		postID = int64(*snap.PostID)
	}

	_, err = s.db.Get().ExecContext(ctx, `
		INSERT INTO drafts (key, post_id, title, body, excerpt, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			post_id = excluded.post_id,
			title = excluded.title,
			body = excluded.body,
			excerpt = excluded.excerpt,
			updated_at = excluded.updated_at`,
		key, postID, snap.Title, compressed, snap.Excerpt, now,
	)
	if err != nil {
		return time.Time{}, fmt.Errorf("error saving draft: %w", err)
	}

	draftLogger.Debug().Str("draft_key", string(key)).Msg("Draft saved")

	return now, nil
}

func (s *DBStore) GetDraft(ctx context.Context, key model.DraftKey) (*model.Draft, error) {
	row := s.db.Get().QueryRowContext(ctx,
		`SELECT key, post_id, title, body, excerpt, updated_at FROM drafts WHERE key = ?`, key)

	var d model.Draft
	var postID sql.NullInt64
	var compressed []byte
	var title, excerpt sql.NullString

	err := row.Scan(&d.Key, &postID, &title, &compressed, &excerpt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("error reading draft: %w", err)
	}

	if postID.Valid {
		id := model.PostID(postID.Int64)
		d.PostID = &id
	}
	d.Title = title.String
	d.Excerpt = excerpt.String

	if len(compressed) > 0 {
		body, err := s.compressor.Decompress(compressed)
		if err != nil {
			return nil, fmt.Errorf("error decompressing draft body: %w", err)
		}
		d.Body = string(body)
	}

	return &d, nil
}

func (s *DBStore) DeleteDraft(ctx context.Context, key model.DraftKey) error {
	res, err := s.db.Get().ExecContext(ctx, `DELETE FROM drafts WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("error deleting draft: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
