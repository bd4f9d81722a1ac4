package hoard

import (
	"context"
	"fmt"

	"hoard-go/internal/model"
)

// GetHistory returns the most recent catalog operations, ordered newest first.
func (s *Service) GetHistory(ctx context.Context, limit int) ([]*model.CatalogOperation, error) {
	ops, err := s.catalog.ListOperations(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing catalog operations: %w", err)
	}
	return ops, nil
}
