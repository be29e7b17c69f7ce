package checkpoint

import (
	"context"
	"errors"
	"fmt"

	"github.com/wwwzy/PaperAgent/internal/storage"
)

// SQLStore 基于 storage 包的 checkpoints 表
type SQLStore struct {
	store *storage.Storage
}

func NewSQLStore(store *storage.Storage) (*SQLStore, error) {
	if store == nil {
		return nil, errors.New("storage is required")
	}
	return &SQLStore{store: store}, nil
}

func (s *SQLStore) Save(ctx context.Context, snap Snapshot) error {
	return s.store.SaveCheckpoint(ctx, &storage.Checkpoint{
		SessionID: snap.SessionID,
		Node:      snap.Node,
		Step:      snap.Step,
		StateJSON: string(snap.State),
		UpdatedAt: snap.UpdatedAt,
	})
}

func (s *SQLStore) Load(ctx context.Context, sessionID string) (*Snapshot, error) {
	cp, err := s.store.GetCheckpoint(ctx, sessionID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		SessionID: cp.SessionID,
		Node:      cp.Node,
		Step:      cp.Step,
		State:     []byte(cp.StateJSON),
		UpdatedAt: cp.UpdatedAt,
	}, nil
}

func (s *SQLStore) Delete(ctx context.Context, sessionID string) error {
	err := s.store.DeleteCheckpoint(ctx, sessionID)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	return err
}

func (s *SQLStore) List(ctx context.Context, limit int) ([]Snapshot, error) {
	rows, err := s.store.ListCheckpoints(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Snapshot, 0, len(rows))
	for _, r := range rows {
		out = append(out, Snapshot{SessionID: r.SessionID, Node: r.Node, Step: r.Step, UpdatedAt: r.UpdatedAt})
	}
	return out, nil
}
