package testutil

import (
	"context"
	"testing"

	"gorm.io/gorm"

	"github.com/formbridge/benefits-backend/internal/domain"
)

func SeedVersion(tb testing.TB, ctx context.Context, tx *gorm.DB, stage domain.LifecycleStage) *domain.Version {
	tb.Helper()
	v := &domain.Version{LifecycleStage: stage}
	if err := tx.WithContext(ctx).Create(v).Error; err != nil {
		tb.Fatalf("seed version: %v", err)
	}
	return v
}

// SeedQuestion inserts a question row and associates it with the given
// versions. The definition payload is stamped with the row id.
func SeedQuestion(tb testing.TB, ctx context.Context, tx *gorm.DB, name string, versions ...*domain.Version) *domain.Question {
	tb.Helper()
	def := domain.QuestionDefinition{
		Name:         name,
		QuestionText: name + "?",
		QuestionType: "text",
	}
	q, err := domain.NewQuestion(def)
	if err != nil {
		tb.Fatalf("seed question %q: %v", name, err)
	}
	if err := tx.WithContext(ctx).Create(q).Error; err != nil {
		tb.Fatalf("seed question %q: %v", name, err)
	}
	if err := q.SetDefinition(def); err != nil {
		tb.Fatalf("seed question %q: %v", name, err)
	}
	if err := tx.WithContext(ctx).Model(q).Updates(map[string]any{
		"definition":        q.Definition,
		"concurrency_token": q.ConcurrencyToken,
	}).Error; err != nil {
		tb.Fatalf("seed question %q: %v", name, err)
	}
	for _, v := range versions {
		Associate(tb, ctx, tx, v, q, nil)
	}
	return q
}

// SeedProgram inserts a program row with the given definition and
// associates it with the given versions.
func SeedProgram(tb testing.TB, ctx context.Context, tx *gorm.DB, def domain.ProgramDefinition, versions ...*domain.Version) *domain.Program {
	tb.Helper()
	p, err := domain.NewProgram(def)
	if err != nil {
		tb.Fatalf("seed program %q: %v", def.AdminName, err)
	}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed program %q: %v", def.AdminName, err)
	}
	if err := p.SetDefinition(def); err != nil {
		tb.Fatalf("seed program %q: %v", def.AdminName, err)
	}
	if err := tx.WithContext(ctx).Model(p).Updates(map[string]any{
		"definition":        p.Definition,
		"concurrency_token": p.ConcurrencyToken,
	}).Error; err != nil {
		tb.Fatalf("seed program %q: %v", def.AdminName, err)
	}
	for _, v := range versions {
		Associate(tb, ctx, tx, v, nil, p)
	}
	return p
}

// Associate links a question and/or program row into a version.
func Associate(tb testing.TB, ctx context.Context, tx *gorm.DB, v *domain.Version, q *domain.Question, p *domain.Program) {
	tb.Helper()
	if q != nil {
		if err := tx.WithContext(ctx).Create(&domain.VersionQuestion{VersionID: v.ID, QuestionID: q.ID}).Error; err != nil {
			tb.Fatalf("associate question %d with version %d: %v", q.ID, v.ID, err)
		}
	}
	if p != nil {
		if err := tx.WithContext(ctx).Create(&domain.VersionProgram{VersionID: v.ID, ProgramID: p.ID}).Error; err != nil {
			tb.Fatalf("associate program %d with version %d: %v", p.ID, v.ID, err)
		}
	}
}

// OneBlockProgram builds a definition with a single block referencing
// the given question ids.
func OneBlockProgram(name string, questionIDs ...int64) domain.ProgramDefinition {
	return domain.ProgramDefinition{
		AdminName: name,
		Blocks: []domain.BlockDefinition{{
			ID:          1,
			Name:        "Screen 1",
			QuestionIDs: questionIDs,
		}},
	}
}
