package services

import (
	"context"
	"errors"

	"github.com/formbridge/benefits-backend/internal/domain"
	"github.com/formbridge/benefits-backend/internal/pkg/dbctx"
)

// errPreviewRollback aborts a preview transaction after the result has
// been computed, so nothing is committed.
var errPreviewRollback = errors.New("publish preview rollback")

// Publish promotes the draft version to active. The old active content
// is carried forward minus tombstoned names, program references are
// re-resolved and validated, the old active version becomes obsolete,
// and a fresh empty draft is created. Either everything commits or
// nothing does. Losing a serialization race against a concurrent
// publish triggers one full retry; a second conflict is surfaced.
func (s *VersionService) Publish(ctx context.Context) (*domain.Version, error) {
	published, err := s.publish(ctx, false)
	if err != nil {
		return nil, err
	}
	s.log.Info("published version", "version_id", published.ID)
	s.warmCache(ctx, published)
	return published, nil
}

// PreviewPublish computes exactly what Publish would produce, then
// rolls the transaction back. The returned version reflects the
// would-be active state (stage and full contents); the ledger is
// untouched.
func (s *VersionService) PreviewPublish(ctx context.Context) (*domain.Version, error) {
	return s.publish(ctx, true)
}

func (s *VersionService) publish(ctx context.Context, dryRun bool) (*domain.Version, error) {
	var published *domain.Version
	work := func(dbc dbctx.Context) error {
		draft, err := s.versions.GetDraftVersionOrCreate(dbc)
		if err != nil {
			return err
		}
		active, err := s.activeOrNil(dbc)
		if err != nil {
			return err
		}

		if err := s.carryForward(dbc, draft, active, true); err != nil {
			return err
		}
		if err := s.dropTombstonedRows(dbc, draft); err != nil {
			return err
		}

		draftQuestions, err := s.versions.GetQuestionsForVersionWithoutCache(dbc, draft)
		if err != nil {
			return err
		}
		if _, err := questionSetByName(draftQuestions); err != nil {
			return err
		}
		draftPrograms, err := s.versions.GetProgramsForVersionWithoutCache(dbc, draft)
		if err != nil {
			return err
		}
		if _, err := programSetByName(draftPrograms); err != nil {
			return err
		}

		// Re-resolve references for rows new to this cycle. Rows
		// carried forward from active are shared with history and are
		// only validated, never rewritten.
		carried := make(map[int64]bool)
		if active != nil {
			activePrograms, err := s.versions.GetProgramsForVersionWithoutCache(dbc, active)
			if err != nil {
				return err
			}
			for _, p := range activePrograms {
				carried[p.ID] = true
			}
		}
		for _, p := range draftPrograms {
			if carried[p.ID] {
				continue
			}
			if err := s.UpdateQuestionVersions(dbc, p); err != nil {
				return err
			}
		}
		if err := validateProgramReferences(draftPrograms, questionIDSet(draftQuestions)); err != nil {
			return err
		}

		if dryRun {
			// Hand back the would-be active state before rolling the
			// associations back: stage flipped, contents attached.
			preview := *draft
			preview.LifecycleStage = domain.StageActive
			preview.Questions = draftQuestions
			preview.Programs = draftPrograms
			published = &preview
			return errPreviewRollback
		}

		if active != nil {
			if err := s.versions.SetLifecycleStage(dbc, active, domain.StageObsolete); err != nil {
				return err
			}
		}
		if err := s.versions.SetLifecycleStage(dbc, draft, domain.StageActive); err != nil {
			return err
		}
		// Future edits start from a clean slate.
		if _, err := s.versions.CreateDraftVersion(dbc); err != nil {
			return err
		}
		published = draft
		return nil
	}
	// One retry when a concurrent publish wins the serialization race.
	err := s.tx.ExecuteWithFallback(ctx, work, func() error {
		return s.tx.ExecuteNew(ctx, work)
	})
	if dryRun && errors.Is(err, errPreviewRollback) {
		return published, nil
	}
	if err != nil {
		return nil, err
	}
	return published, nil
}

// PublishProgram releases one program's draft without shipping the rest
// of the draft. Unrelated draft content, including pending tombstones,
// moves to a fresh draft version and stays editable. Serialization
// conflicts are retried once, like Publish.
func (s *VersionService) PublishProgram(ctx context.Context, name string) (*domain.Version, error) {
	var published *domain.Version
	work := func(dbc dbctx.Context) error {
		draft, err := s.versions.GetDraftVersion(dbc)
		if err != nil {
			return err
		}
		if draft == nil {
			return &domain.ProgramDraftNotFoundError{Name: name}
		}
		program, err := s.versions.GetProgramByNameForVersion(dbc, name, draft)
		if err != nil {
			return err
		}
		if program == nil {
			return &domain.ProgramDraftNotFoundError{Name: name}
		}
		def, err := program.ProgramDefinition()
		if err != nil {
			return err
		}

		// Names of draft question revisions this program pulls in.
		publishedQuestionNames, err := s.versions.GetProgramQuestionNamesInVersion(dbc, def, draft)
		if err != nil {
			return err
		}
		// Publishing alone is refused when any of those revisions is
		// also referenced by another pending draft program: it would
		// silently upgrade that program's dependency.
		referencing, err := s.versions.BuildReferencingProgramsMap(dbc, draft)
		if err != nil {
			return err
		}
		for questionName := range publishedQuestionNames {
			for _, other := range referencing[questionName] {
				if other.AdminName != program.Name {
					return &domain.SharedQuestionsError{Program: name}
				}
			}
		}

		// Split the draft: the program and its questions stay, the
		// rest moves to the next draft.
		draftPrograms, err := s.versions.GetProgramsForVersionWithoutCache(dbc, draft)
		if err != nil {
			return err
		}
		draftQuestions, err := s.versions.GetQuestionsForVersionWithoutCache(dbc, draft)
		if err != nil {
			return err
		}
		var leftoverPrograms []*domain.Program
		for _, p := range draftPrograms {
			if p.ID != program.ID {
				leftoverPrograms = append(leftoverPrograms, p)
			}
		}
		var leftoverQuestions []*domain.Question
		for _, q := range draftQuestions {
			if !publishedQuestionNames[q.Name] {
				leftoverQuestions = append(leftoverQuestions, q)
			}
		}
		for _, p := range leftoverPrograms {
			if err := s.versions.RemoveProgram(dbc, draft, p); err != nil {
				return err
			}
		}
		for _, q := range leftoverQuestions {
			if err := s.versions.RemoveQuestion(dbc, draft, q); err != nil {
				return err
			}
		}

		// Pending tombstones are deletions not being shipped now.
		pendingQuestionTombstones := append([]string(nil), draft.TombstonedQuestionNames...)
		pendingProgramTombstones := append([]string(nil), draft.TombstonedProgramNames...)
		draft.TombstonedQuestionNames = nil
		draft.TombstonedProgramNames = nil
		if err := s.versions.SaveTombstones(dbc, draft); err != nil {
			return err
		}

		active, err := s.activeOrNil(dbc)
		if err != nil {
			return err
		}
		if err := s.carryForward(dbc, draft, active, false); err != nil {
			return err
		}

		finalQuestions, err := s.versions.GetQuestionsForVersionWithoutCache(dbc, draft)
		if err != nil {
			return err
		}
		if _, err := questionSetByName(finalQuestions); err != nil {
			return err
		}
		finalPrograms, err := s.versions.GetProgramsForVersionWithoutCache(dbc, draft)
		if err != nil {
			return err
		}
		if _, err := programSetByName(finalPrograms); err != nil {
			return err
		}
		if err := validateProgramReferences(finalPrograms, questionIDSet(finalQuestions)); err != nil {
			return err
		}

		if active != nil {
			if err := s.versions.SetLifecycleStage(dbc, active, domain.StageObsolete); err != nil {
				return err
			}
		}
		if err := s.versions.SetLifecycleStage(dbc, draft, domain.StageActive); err != nil {
			return err
		}

		if len(leftoverPrograms)+len(leftoverQuestions) > 0 ||
			len(pendingQuestionTombstones)+len(pendingProgramTombstones) > 0 {
			newDraft, err := s.versions.CreateDraftVersion(dbc)
			if err != nil {
				return err
			}
			for _, q := range leftoverQuestions {
				if err := s.versions.AddQuestion(dbc, newDraft, q); err != nil {
					return err
				}
			}
			for _, p := range leftoverPrograms {
				if err := s.versions.AddProgram(dbc, newDraft, p); err != nil {
					return err
				}
			}
			newDraft.TombstonedQuestionNames = pendingQuestionTombstones
			newDraft.TombstonedProgramNames = pendingProgramTombstones
			if err := s.versions.SaveTombstones(dbc, newDraft); err != nil {
				return err
			}
		}
		published = draft
		return nil
	}
	err := s.tx.ExecuteWithFallback(ctx, work, func() error {
		return s.tx.ExecuteNew(ctx, work)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("published single program", "program", name, "version_id", published.ID)
	s.warmCache(ctx, published)
	return published, nil
}

func (s *VersionService) activeOrNil(dbc dbctx.Context) (*domain.Version, error) {
	active, err := s.versions.GetActiveVersion(dbc)
	if errors.Is(err, domain.ErrNoActiveVersion) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return active, nil
}

// carryForward associates everything from the old active version into
// the draft, skipping names the draft already has its own revision of
// and, when applyTombstones is set, names marked for deletion. Additive
// only: the old active version keeps its full association set.
func (s *VersionService) carryForward(dbc dbctx.Context, draft, active *domain.Version, applyTombstones bool) error {
	if active == nil {
		return nil
	}
	draftQuestionNames, err := s.versions.GetQuestionNamesForVersion(dbc, draft)
	if err != nil {
		return err
	}
	activeQuestions, err := s.versions.GetQuestionsForVersionWithoutCache(dbc, active)
	if err != nil {
		return err
	}
	for _, q := range activeQuestions {
		if draftQuestionNames[q.Name] {
			continue
		}
		if applyTombstones && draft.QuestionIsTombstoned(q.Name) {
			continue
		}
		if err := s.versions.AddQuestion(dbc, draft, q); err != nil {
			return err
		}
	}

	draftProgramNames, err := s.versions.GetProgramNamesForVersion(dbc, draft)
	if err != nil {
		return err
	}
	activePrograms, err := s.versions.GetProgramsForVersionWithoutCache(dbc, active)
	if err != nil {
		return err
	}
	for _, p := range activePrograms {
		if draftProgramNames[p.Name] {
			continue
		}
		if applyTombstones && draft.ProgramIsTombstoned(p.Name) {
			continue
		}
		if err := s.versions.AddProgram(dbc, draft, p); err != nil {
			return err
		}
	}
	return nil
}

// dropTombstonedRows removes draft rows whose name is tombstoned and
// clears those tombstones: once the deletion ships, the published
// version neither carries the row nor keeps the marker.
func (s *VersionService) dropTombstonedRows(dbc dbctx.Context, draft *domain.Version) error {
	changed := false
	questions, err := s.versions.GetQuestionsForVersionWithoutCache(dbc, draft)
	if err != nil {
		return err
	}
	for _, q := range questions {
		if !draft.QuestionIsTombstoned(q.Name) {
			continue
		}
		if err := s.versions.RemoveQuestion(dbc, draft, q); err != nil {
			return err
		}
		if draft.RemoveTombstoneForQuestion(q.Name) {
			changed = true
		}
	}
	programs, err := s.versions.GetProgramsForVersionWithoutCache(dbc, draft)
	if err != nil {
		return err
	}
	for _, p := range programs {
		if !draft.ProgramIsTombstoned(p.Name) {
			continue
		}
		if err := s.versions.RemoveProgram(dbc, draft, p); err != nil {
			return err
		}
		if draft.RemoveTombstoneForProgram(p.Name) {
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.versions.SaveTombstones(dbc, draft)
}
