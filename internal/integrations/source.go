// Package integrations imports problem instances from external sources.
package integrations

import (
	"context"
	"fmt"

	"toproute/internal/model"
	"toproute/internal/store"
)

// InstanceSource supplies instances from somewhere outside the API, such as
// a benchmark directory mounted into the container.
type InstanceSource interface {
	Name() string
	Fetch(ctx context.Context) ([]model.Instance, error)
}

// Import pulls every instance from src into the store, skipping names that
// are already present. It returns the number of instances created.
func Import(ctx context.Context, s store.Store, src InstanceSource) (int, error) {
	existing := map[string]bool{}
	cursor := ""
	for {
		items, next, err := s.ListInstances(ctx, cursor, 500)
		if err != nil {
			return 0, fmt.Errorf("import %s: list instances: %w", src.Name(), err)
		}
		for _, it := range items {
			existing[it.Name] = true
		}
		if next == "" {
			break
		}
		cursor = next
	}

	fetched, err := src.Fetch(ctx)
	if err != nil {
		return 0, fmt.Errorf("import %s: %w", src.Name(), err)
	}
	created := 0
	for _, in := range fetched {
		if existing[in.Name] {
			continue
		}
		if _, err := s.CreateInstance(ctx, in); err != nil {
			return created, fmt.Errorf("import %s: create %s: %w", src.Name(), in.Name, err)
		}
		created++
	}
	return created, nil
}
