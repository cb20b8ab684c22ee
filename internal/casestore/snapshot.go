package casestore

import (
	"context"
	"encoding/json"
	"fmt"

	"rentcase/internal/domain"
)

// Load reads and validates a snapshot. It fails with domain.ErrStoreNotFound
// when nothing exists and domain.ErrStoreCorrupt when the data is not a valid
// snapshot.
func Load(ctx context.Context, b Backend) (*domain.Snapshot, error) {
	data, err := b.Read(ctx)
	if err != nil {
		return nil, err
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrStoreCorrupt, b, err)
	}
	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrStoreCorrupt, b, err)
	}
	return &snap, nil
}

// Save encodes snap and atomically replaces the backend's snapshot.
func Save(ctx context.Context, b Backend, snap *domain.Snapshot) error {
	if err := snap.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid snapshot: %w", err)
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	return b.Write(ctx, data)
}
