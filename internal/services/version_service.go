// Package services holds the version engine: draft editing, update
// propagation, and the two publish paths over the version ledger.
package services

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/formbridge/benefits-backend/internal/data/repos"
	"github.com/formbridge/benefits-backend/internal/domain"
	"github.com/formbridge/benefits-backend/internal/pkg/dbctx"
	"github.com/formbridge/benefits-backend/internal/platform/logger"
	"github.com/formbridge/benefits-backend/internal/platform/txmgr"
	"github.com/formbridge/benefits-backend/internal/predicate"
)

// VersionService orchestrates all mutation of the version ledger.
// Callers never touch association rows directly; every lookup-then-write
// sequence here runs inside one serializable transaction.
type VersionService struct {
	versions  repos.VersionRepo
	questions repos.QuestionRepo
	programs  repos.ProgramRepo
	cache     repos.VersionCache
	tx        *txmgr.Manager
	log       *logger.Logger
}

func NewVersionService(
	versions repos.VersionRepo,
	questions repos.QuestionRepo,
	programs repos.ProgramRepo,
	cache repos.VersionCache,
	tx *txmgr.Manager,
	baseLog *logger.Logger,
) *VersionService {
	return &VersionService{
		versions:  versions,
		questions: questions,
		programs:  programs,
		cache:     cache,
		tx:        tx,
		log:       baseLog.With("service", "VersionService"),
	}
}

func (s *VersionService) GetActiveVersion(dbc dbctx.Context) (*domain.Version, error) {
	return s.versions.GetActiveVersion(dbc)
}

func (s *VersionService) GetDraftVersionOrCreate(dbc dbctx.Context) (*domain.Version, error) {
	var draft *domain.Version
	err := s.tx.Execute(dbc.Ctx, dbc, func(dbc dbctx.Context) error {
		var err error
		draft, err = s.versions.GetDraftVersionOrCreate(dbc)
		return err
	})
	return draft, err
}

func (s *VersionService) GetQuestionByNameForVersion(dbc dbctx.Context, name string, version *domain.Version) (*domain.Question, error) {
	return s.versions.GetQuestionByNameForVersion(dbc, name, version)
}

func (s *VersionService) GetProgramByNameForVersion(dbc dbctx.Context, name string, version *domain.Version) (*domain.Program, error) {
	return s.versions.GetProgramByNameForVersion(dbc, name, version)
}

// CreateOrUpdateQuestionDraft makes def the draft revision of its
// question. If the draft already holds a revision of the name, that row
// is reused (same id, new payload). Otherwise a new row is inserted,
// attached to the draft, and every program referencing the prior
// revision is migrated to the new id.
func (s *VersionService) CreateOrUpdateQuestionDraft(dbc dbctx.Context, def domain.QuestionDefinition) (*domain.Question, error) {
	var result *domain.Question
	err := s.tx.Execute(dbc.Ctx, dbc, func(dbc dbctx.Context) error {
		draft, err := s.versions.GetDraftVersionOrCreate(dbc)
		if err != nil {
			return err
		}
		existing, err := s.versions.GetQuestionByNameForVersion(dbc, def.Name, draft)
		if err != nil {
			return err
		}
		if existing != nil {
			if err := existing.SetDefinition(def); err != nil {
				return err
			}
			if err := s.questions.Update(dbc, existing); err != nil {
				return err
			}
			result = existing
			return nil
		}

		// The id the rest of the ledger still references, if any.
		oldID, err := s.priorQuestionID(dbc, def.Name)
		if err != nil {
			return err
		}

		row, err := domain.NewQuestion(def)
		if err != nil {
			return err
		}
		if row, err = s.questions.Insert(dbc, row); err != nil {
			return err
		}
		if err := s.versions.AddQuestion(dbc, draft, row); err != nil {
			return err
		}
		result = row
		if oldID != 0 {
			return s.UpdateProgramsThatReferenceQuestion(dbc, oldID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *VersionService) priorQuestionID(dbc dbctx.Context, name string) (int64, error) {
	active, err := s.versions.GetActiveVersion(dbc)
	if errors.Is(err, domain.ErrNoActiveVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	prior, err := s.versions.GetQuestionByNameForVersion(dbc, name, active)
	if err != nil || prior == nil {
		return 0, err
	}
	return prior.ID, nil
}

// CreateOrUpdateProgramDraft makes def the draft revision of its
// program, then re-points its question references at the latest
// draft-or-active revision of each question.
func (s *VersionService) CreateOrUpdateProgramDraft(dbc dbctx.Context, def domain.ProgramDefinition) (*domain.Program, error) {
	var result *domain.Program
	err := s.tx.Execute(dbc.Ctx, dbc, func(dbc dbctx.Context) error {
		draft, err := s.versions.GetDraftVersionOrCreate(dbc)
		if err != nil {
			return err
		}
		existing, err := s.versions.GetProgramByNameForVersion(dbc, def.AdminName, draft)
		if err != nil {
			return err
		}
		if existing != nil {
			if err := existing.SetDefinition(def); err != nil {
				return err
			}
			if err := s.programs.Update(dbc, existing); err != nil {
				return err
			}
			result = existing
		} else {
			row, err := domain.NewProgram(def)
			if err != nil {
				return err
			}
			if row, err = s.programs.Insert(dbc, row); err != nil {
				return err
			}
			if err := s.versions.AddProgram(dbc, draft, row); err != nil {
				return err
			}
			result = row
		}
		return s.UpdateQuestionVersions(dbc, result)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateQuestionVersions rebuilds every block of a draft program,
// re-pointing question id lists and predicate leaves at the latest
// revision of each question. The row is updated in place; only draft
// rows may be passed here.
func (s *VersionService) UpdateQuestionVersions(dbc dbctx.Context, program *domain.Program) error {
	return s.tx.Execute(dbc.Ctx, dbc, func(dbc dbctx.Context) error {
		def, err := program.ProgramDefinition()
		if err != nil {
			return err
		}
		resolve := s.latestQuestionIDResolver(dbc, program.Name)
		for i := range def.Blocks {
			if err := rewriteBlock(&def.Blocks[i], resolve); err != nil {
				return err
			}
		}
		if err := program.SetDefinition(def); err != nil {
			return err
		}
		return s.programs.Update(dbc, program)
	})
}

// UpdatePredicateNodeVersions re-points every question id a predicate
// references at the question's latest revision.
func (s *VersionService) UpdatePredicateNodeVersions(dbc dbctx.Context, pred predicate.Predicate) (predicate.Predicate, error) {
	return predicate.RewritePredicate(pred, s.latestQuestionIDResolver(dbc, ""))
}

func (s *VersionService) latestQuestionIDResolver(dbc dbctx.Context, programName string) predicate.ResolveFunc {
	return func(questionID int64) (int64, error) {
		latest, err := s.versions.GetLatestVersionOfQuestion(dbc, questionID)
		if err != nil {
			return 0, err
		}
		if latest == nil {
			return 0, &domain.BrokenReferenceError{QuestionID: questionID, Program: programName}
		}
		return latest.ID, nil
	}
}

func rewriteBlock(block *domain.BlockDefinition, resolve predicate.ResolveFunc) error {
	ids := make([]int64, len(block.QuestionIDs))
	for i, id := range block.QuestionIDs {
		newID, err := resolve(id)
		if err != nil {
			return err
		}
		ids[i] = newID
	}
	block.QuestionIDs = ids
	if block.Visibility != nil {
		rewritten, err := predicate.RewritePredicate(*block.Visibility, resolve)
		if err != nil {
			return err
		}
		block.Visibility = &rewritten
	}
	if block.Eligibility != nil {
		rewritten, err := predicate.RewritePredicate(*block.Eligibility, resolve)
		if err != nil {
			return err
		}
		block.Eligibility = &rewritten
	}
	return nil
}

// UpdateProgramsThatReferenceQuestion migrates every program that
// references oldQuestionID onto that question's new draft revision.
// Programs live only in the active version are promoted into the draft
// (copy-on-write) before rewriting; existing draft rows are rewritten
// in place.
func (s *VersionService) UpdateProgramsThatReferenceQuestion(dbc dbctx.Context, oldQuestionID int64) error {
	return s.tx.Execute(dbc.Ctx, dbc, func(dbc dbctx.Context) error {
		draft, err := s.versions.GetDraftVersionOrCreate(dbc)
		if err != nil {
			return err
		}
		draftPrograms, err := s.versions.GetProgramsForVersionWithoutCache(dbc, draft)
		if err != nil {
			return err
		}
		draftNames := make(map[string]bool, len(draftPrograms))
		for _, p := range draftPrograms {
			draftNames[p.Name] = true
		}

		var affected []*domain.Program
		for _, p := range draftPrograms {
			def, err := p.ProgramDefinition()
			if err != nil {
				return err
			}
			if def.HasQuestion(oldQuestionID) {
				affected = append(affected, p)
			}
		}

		active, err := s.versions.GetActiveVersion(dbc)
		if err != nil && !errors.Is(err, domain.ErrNoActiveVersion) {
			return err
		}
		if active != nil {
			activePrograms, err := s.versions.GetProgramsForVersionWithoutCache(dbc, active)
			if err != nil {
				return err
			}
			for _, p := range activePrograms {
				if draftNames[p.Name] {
					continue
				}
				def, err := p.ProgramDefinition()
				if err != nil {
					return err
				}
				if !def.HasQuestion(oldQuestionID) {
					continue
				}
				promoted, err := domain.NewProgram(def)
				if err != nil {
					return err
				}
				if promoted, err = s.programs.Insert(dbc, promoted); err != nil {
					return err
				}
				if err := s.versions.AddProgram(dbc, draft, promoted); err != nil {
					return err
				}
				affected = append(affected, promoted)
			}
		}

		for _, p := range affected {
			if err := s.UpdateQuestionVersions(dbc, p); err != nil {
				return err
			}
		}
		return nil
	})
}

// IsDraftProgram reports whether the row is part of the draft version.
func (s *VersionService) IsDraftProgram(dbc dbctx.Context, programID int64) (bool, error) {
	draft, err := s.versions.GetDraftVersion(dbc)
	if err != nil || draft == nil {
		return false, err
	}
	return s.versionHasProgram(dbc, draft, programID)
}

// IsActiveProgram reports whether the row is part of the active version.
func (s *VersionService) IsActiveProgram(dbc dbctx.Context, programID int64) (bool, error) {
	active, err := s.versions.GetActiveVersion(dbc)
	if errors.Is(err, domain.ErrNoActiveVersion) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return s.versionHasProgram(dbc, active, programID)
}

func (s *VersionService) versionHasProgram(dbc dbctx.Context, version *domain.Version, programID int64) (bool, error) {
	programs, err := s.versions.GetProgramsForVersion(dbc, version)
	if err != nil {
		return false, err
	}
	for _, p := range programs {
		if p.ID == programID {
			return true, nil
		}
	}
	return false, nil
}

// ProgramPair holds the live and pending revision of one program name.
type ProgramPair struct {
	Active *domain.ProgramDefinition
	Draft  *domain.ProgramDefinition
}

// ActiveAndDraftPrograms lists every known program name with its active
// and draft definitions, either of which may be absent.
func (s *VersionService) ActiveAndDraftPrograms(ctx context.Context) (map[string]ProgramPair, error) {
	dbc := dbctx.New(ctx)
	result := make(map[string]ProgramPair)

	collect := func(version *domain.Version, pick func(*ProgramPair, *domain.ProgramDefinition)) error {
		if version == nil {
			return nil
		}
		programs, err := s.versions.GetProgramsForVersion(dbc, version)
		if err != nil {
			return err
		}
		for _, p := range programs {
			def, err := p.ProgramDefinition()
			if err != nil {
				return err
			}
			pair := result[p.Name]
			pick(&pair, &def)
			result[p.Name] = pair
		}
		return nil
	}

	active, err := s.versions.GetActiveVersion(dbc)
	if err != nil && !errors.Is(err, domain.ErrNoActiveVersion) {
		return nil, err
	}
	if err := collect(active, func(pair *ProgramPair, def *domain.ProgramDefinition) { pair.Active = def }); err != nil {
		return nil, err
	}
	draft, err := s.versions.GetDraftVersion(dbc)
	if err != nil {
		return nil, err
	}
	if err := collect(draft, func(pair *ProgramPair, def *domain.ProgramDefinition) { pair.Draft = def }); err != nil {
		return nil, err
	}
	return result, nil
}

// warmCache loads the freshly published version's contents so the first
// applicant read after publish does not pay the database round trip.
// Failures are logged, never surfaced; the cache is best effort.
func (s *VersionService) warmCache(ctx context.Context, version *domain.Version) {
	if s.cache == nil {
		return
	}
	dbc := dbctx.New(ctx)
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := s.versions.GetQuestionsForVersion(dbc, version)
		return err
	})
	g.Go(func() error {
		_, err := s.versions.GetProgramsForVersion(dbc, version)
		return err
	})
	if err := g.Wait(); err != nil {
		s.log.Warn("cache warm after publish failed", "version_id", version.ID, "error", err)
	}
}

func questionSetByName(questions []*domain.Question) (map[string]*domain.Question, error) {
	byName := make(map[string]*domain.Question, len(questions))
	for _, q := range questions {
		if _, dup := byName[q.Name]; dup {
			return nil, &domain.DuplicateDraftError{Kind: "question", Name: q.Name}
		}
		byName[q.Name] = q
	}
	return byName, nil
}

func programSetByName(programs []*domain.Program) (map[string]*domain.Program, error) {
	byName := make(map[string]*domain.Program, len(programs))
	for _, p := range programs {
		if _, dup := byName[p.Name]; dup {
			return nil, &domain.DuplicateDraftError{Kind: "program", Name: p.Name}
		}
		byName[p.Name] = p
	}
	return byName, nil
}

func questionIDSet(questions []*domain.Question) map[int64]bool {
	ids := make(map[int64]bool, len(questions))
	for _, q := range questions {
		ids[q.ID] = true
	}
	return ids
}

// validateProgramReferences fails if any program in the version
// references a question row the version does not carry. Hitting this
// means update propagation was skipped for an edited question.
func validateProgramReferences(programs []*domain.Program, questionIDs map[int64]bool) error {
	for _, p := range programs {
		def, err := p.ProgramDefinition()
		if err != nil {
			return err
		}
		for _, qid := range def.AllQuestionIDs() {
			if !questionIDs[qid] {
				return &domain.BrokenReferenceError{QuestionID: qid, Program: p.Name}
			}
		}
	}
	return nil
}
