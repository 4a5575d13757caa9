package repos

import (
	"context"

	"github.com/formbridge/benefits-backend/internal/domain"
)

// VersionCache caches the question and program sets of settled versions.
// Draft versions are never cached because their contents change under
// the editor's feet.
type VersionCache interface {
	GetQuestions(ctx context.Context, versionID int64) ([]*domain.Question, bool)
	SetQuestions(ctx context.Context, versionID int64, questions []*domain.Question)
	GetPrograms(ctx context.Context, versionID int64) ([]*domain.Program, bool)
	SetPrograms(ctx context.Context, versionID int64, programs []*domain.Program)
	Invalidate(ctx context.Context, versionID int64)
}
