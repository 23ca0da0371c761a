package draft

import (
	"context"
	"sync"
	"time"

	"github.com/kalmarr/matrixcbs/internal/autosave"
	"github.com/kalmarr/matrixcbs/internal/model"
)

// MemoryStore keeps drafts in process memory. It does not survive restarts;
// use the DB store for anything beyond tests.
type MemoryStore struct {
	drafts sync.Map
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) SaveDraft(ctx context.Context, key model.DraftKey, snap autosave.Snapshot) (time.Time, error) {
	now := time.Now().UTC()
	m.drafts.Store(key, &model.Draft{
		Key:       key,
		PostID:    snap.PostID,
		Title:     snap.Title,
		Body:      snap.Body,
		Excerpt:   snap.Excerpt,
		UpdatedAt: now,
	})
	return now, nil
}

func (m *MemoryStore) GetDraft(ctx context.Context, key model.DraftKey) (*model.Draft, error) {
	if d, ok := m.drafts.Load(key); ok {
		return d.(*model.Draft), nil
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) DeleteDraft(ctx context.Context, key model.DraftKey) error {
	if _, ok := m.drafts.LoadAndDelete(key); !ok {
		return ErrNotFound
	}
	return nil
}
