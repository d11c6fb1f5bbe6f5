package interfaces

import (
	"context"

	"github.com/nik45114/kbcore/pkg/domain/model"
	"github.com/nik45114/kbcore/pkg/domain/types"
)

// DraftRepository defines the interface for Draft data persistence
type DraftRepository interface {
	// Create inserts a new draft. ID and CreatedAt are assigned if empty.
	Create(ctx context.Context, draft *model.Draft) (*model.Draft, error)

	// Get retrieves a draft by ID
	Get(ctx context.Context, id model.DraftID) (*model.Draft, error)

	// List returns drafts with the given status (all statuses when empty), ordered by
	// Confidence descending then CreatedAt ascending. Returns drafts, total count, and error.
	List(ctx context.Context, status types.DraftStatus, limit, offset int) ([]*model.Draft, int, error)

	// Resolve replaces the stored draft with resolved only if the stored status still
	// equals expected. Returns model.ErrInvalidState otherwise.
	Resolve(ctx context.Context, expected types.DraftStatus, resolved *model.Draft) (*model.Draft, error)
}
