package interfaces

import (
	"context"

	"github.com/nik45114/kbcore/pkg/domain/model"
)

// GapRepository stores questions the corpus could not answer
type GapRepository interface {
	Create(ctx context.Context, gap *model.CoverageGap) (*model.CoverageGap, error)

	// List returns gaps newest first
	List(ctx context.Context, limit int) ([]*model.CoverageGap, error)
}
