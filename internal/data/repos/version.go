package repos

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/formbridge/benefits-backend/internal/domain"
	"github.com/formbridge/benefits-backend/internal/pkg/dbctx"
	"github.com/formbridge/benefits-backend/internal/platform/logger"
)

// VersionRepo is the ledger over versions and their question/program
// membership. Rows themselves are immutable; all mutation here is
// membership (join rows), tombstone lists, and lifecycle stage.
type VersionRepo interface {
	GetDraftVersion(dbc dbctx.Context) (*domain.Version, error)
	GetDraftVersionOrCreate(dbc dbctx.Context) (*domain.Version, error)
	GetActiveVersion(dbc dbctx.Context) (*domain.Version, error)
	GetVersionByID(dbc dbctx.Context, id int64) (*domain.Version, error)
	GetPreviousVersion(dbc dbctx.Context, version *domain.Version) (*domain.Version, error)
	CreateDraftVersion(dbc dbctx.Context) (*domain.Version, error)
	SetLifecycleStage(dbc dbctx.Context, version *domain.Version, stage domain.LifecycleStage) error

	AddQuestion(dbc dbctx.Context, version *domain.Version, question *domain.Question) error
	RemoveQuestion(dbc dbctx.Context, version *domain.Version, question *domain.Question) error
	AddProgram(dbc dbctx.Context, version *domain.Version, program *domain.Program) error
	RemoveProgram(dbc dbctx.Context, version *domain.Version, program *domain.Program) error

	AddTombstoneForQuestion(dbc dbctx.Context, version *domain.Version, question *domain.Question) (bool, error)
	RemoveTombstoneForQuestion(dbc dbctx.Context, version *domain.Version, question *domain.Question) (bool, error)
	AddTombstoneForProgram(dbc dbctx.Context, version *domain.Version, program *domain.Program) (bool, error)
	RemoveTombstoneForProgram(dbc dbctx.Context, version *domain.Version, program *domain.Program) (bool, error)
	SaveTombstones(dbc dbctx.Context, version *domain.Version) error

	GetQuestionsForVersion(dbc dbctx.Context, version *domain.Version) ([]*domain.Question, error)
	GetQuestionsForVersionWithoutCache(dbc dbctx.Context, version *domain.Version) ([]*domain.Question, error)
	GetProgramsForVersion(dbc dbctx.Context, version *domain.Version) ([]*domain.Program, error)
	GetProgramsForVersionWithoutCache(dbc dbctx.Context, version *domain.Version) ([]*domain.Program, error)
	GetQuestionByNameForVersion(dbc dbctx.Context, name string, version *domain.Version) (*domain.Question, error)
	GetProgramByNameForVersion(dbc dbctx.Context, name string, version *domain.Version) (*domain.Program, error)
	GetQuestionNamesForVersion(dbc dbctx.Context, version *domain.Version) (map[string]bool, error)
	GetProgramNamesForVersion(dbc dbctx.Context, version *domain.Version) (map[string]bool, error)
	GetQuestionCountForVersion(dbc dbctx.Context, version *domain.Version) (int64, error)
	GetProgramCountForVersion(dbc dbctx.Context, version *domain.Version) (int64, error)

	GetLatestVersionOfQuestion(dbc dbctx.Context, questionID int64) (*domain.Question, error)
	QuestionIDToNameMap(dbc dbctx.Context, version *domain.Version) (map[int64]string, error)
	BuildReferencingProgramsMap(dbc dbctx.Context, version *domain.Version) (map[string][]domain.ProgramDefinition, error)
	GetProgramQuestionNamesInVersion(dbc dbctx.Context, def domain.ProgramDefinition, version *domain.Version) (map[string]bool, error)
}

type versionRepo struct {
	db    *gorm.DB
	cache VersionCache
	log   *logger.Logger
}

// NewVersionRepo builds the ledger. cache may be nil, in which case
// every read goes to the database.
func NewVersionRepo(db *gorm.DB, cache VersionCache, baseLog *logger.Logger) VersionRepo {
	return &versionRepo{db: db, cache: cache, log: baseLog.With("repo", "VersionRepo")}
}

func (r *versionRepo) handle(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *versionRepo) GetDraftVersion(dbc dbctx.Context) (*domain.Version, error) {
	var version domain.Version
	err := r.handle(dbc).Where("lifecycle_stage = ?", domain.StageDraft).First(&version).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &version, nil
}

// GetDraftVersionOrCreate is idempotent under races: if a concurrent
// writer creates the draft first, the partial unique index rejects our
// insert and we re-read theirs.
func (r *versionRepo) GetDraftVersionOrCreate(dbc dbctx.Context) (*domain.Version, error) {
	draft, err := r.GetDraftVersion(dbc)
	if err != nil || draft != nil {
		return draft, err
	}
	version := &domain.Version{LifecycleStage: domain.StageDraft}
	if err := r.handle(dbc).Create(version).Error; err != nil {
		if isUniqueViolation(err) {
			draft, readErr := r.GetDraftVersion(dbc)
			if readErr == nil && draft != nil {
				return draft, nil
			}
		}
		return nil, err
	}
	r.log.Debug("created draft version", "version_id", version.ID)
	return version, nil
}

func (r *versionRepo) GetActiveVersion(dbc dbctx.Context) (*domain.Version, error) {
	var version domain.Version
	err := r.handle(dbc).Where("lifecycle_stage = ?", domain.StageActive).First(&version).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNoActiveVersion
	}
	if err != nil {
		return nil, err
	}
	return &version, nil
}

func (r *versionRepo) GetVersionByID(dbc dbctx.Context, id int64) (*domain.Version, error) {
	var version domain.Version
	err := r.handle(dbc).Where("id = ?", id).First(&version).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &version, nil
}

// GetPreviousVersion returns the obsolete version that directly
// preceded the given one, or nil when the given version is the oldest.
func (r *versionRepo) GetPreviousVersion(dbc dbctx.Context, version *domain.Version) (*domain.Version, error) {
	var previous domain.Version
	err := r.handle(dbc).
		Where("id < ?", version.ID).
		Where("lifecycle_stage = ?", domain.StageObsolete).
		Order("id DESC").
		First(&previous).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &previous, nil
}

// CreateDraftVersion unconditionally inserts a fresh draft. Callers
// must have flipped the existing draft out of the way first or the
// one-draft index rejects the insert.
func (r *versionRepo) CreateDraftVersion(dbc dbctx.Context) (*domain.Version, error) {
	version := &domain.Version{LifecycleStage: domain.StageDraft}
	if err := r.handle(dbc).Create(version).Error; err != nil {
		return nil, err
	}
	return version, nil
}

func (r *versionRepo) SetLifecycleStage(dbc dbctx.Context, version *domain.Version, stage domain.LifecycleStage) error {
	if !version.LifecycleStage.CanTransitionTo(stage) {
		return fmt.Errorf("illegal lifecycle transition %s -> %s for version %d", version.LifecycleStage, stage, version.ID)
	}
	if err := r.handle(dbc).Model(version).Update("lifecycle_stage", stage).Error; err != nil {
		return err
	}
	version.LifecycleStage = stage
	if r.cache != nil {
		r.cache.Invalidate(dbc.Ctx, version.ID)
	}
	return nil
}

func (r *versionRepo) AddQuestion(dbc dbctx.Context, version *domain.Version, question *domain.Question) error {
	join := domain.VersionQuestion{VersionID: version.ID, QuestionID: question.ID}
	return r.handle(dbc).Create(&join).Error
}

func (r *versionRepo) RemoveQuestion(dbc dbctx.Context, version *domain.Version, question *domain.Question) error {
	return r.handle(dbc).
		Where("version_id = ? AND question_id = ?", version.ID, question.ID).
		Delete(&domain.VersionQuestion{}).Error
}

func (r *versionRepo) AddProgram(dbc dbctx.Context, version *domain.Version, program *domain.Program) error {
	join := domain.VersionProgram{VersionID: version.ID, ProgramID: program.ID}
	return r.handle(dbc).Create(&join).Error
}

func (r *versionRepo) RemoveProgram(dbc dbctx.Context, version *domain.Version, program *domain.Program) error {
	return r.handle(dbc).
		Where("version_id = ? AND program_id = ?", version.ID, program.ID).
		Delete(&domain.VersionProgram{}).Error
}

// AddTombstoneForQuestion marks the question's name for deletion at
// the next publish. The question must be a member of the version.
func (r *versionRepo) AddTombstoneForQuestion(dbc dbctx.Context, version *domain.Version, question *domain.Question) (bool, error) {
	names, err := r.GetQuestionNamesForVersion(dbc, version)
	if err != nil {
		return false, err
	}
	if !names[question.Name] {
		return false, &domain.QuestionNotFoundError{Name: question.Name, ID: question.ID}
	}
	if !version.AddTombstoneForQuestion(question.Name) {
		return false, nil
	}
	return true, r.SaveTombstones(dbc, version)
}

func (r *versionRepo) RemoveTombstoneForQuestion(dbc dbctx.Context, version *domain.Version, question *domain.Question) (bool, error) {
	if !version.RemoveTombstoneForQuestion(question.Name) {
		return false, nil
	}
	return true, r.SaveTombstones(dbc, version)
}

func (r *versionRepo) AddTombstoneForProgram(dbc dbctx.Context, version *domain.Version, program *domain.Program) (bool, error) {
	if !version.AddTombstoneForProgram(program.Name) {
		return false, nil
	}
	return true, r.SaveTombstones(dbc, version)
}

func (r *versionRepo) RemoveTombstoneForProgram(dbc dbctx.Context, version *domain.Version, program *domain.Program) (bool, error) {
	if !version.RemoveTombstoneForProgram(program.Name) {
		return false, nil
	}
	return true, r.SaveTombstones(dbc, version)
}

func (r *versionRepo) SaveTombstones(dbc dbctx.Context, version *domain.Version) error {
	return r.handle(dbc).Model(version).Updates(map[string]any{
		"tombstoned_question_names": version.TombstonedQuestionNames,
		"tombstoned_program_names":  version.TombstonedProgramNames,
	}).Error
}

func (r *versionRepo) GetQuestionsForVersion(dbc dbctx.Context, version *domain.Version) ([]*domain.Question, error) {
	if r.cache != nil && version.LifecycleStage != domain.StageDraft {
		if questions, ok := r.cache.GetQuestions(dbc.Ctx, version.ID); ok {
			return questions, nil
		}
	}
	questions, err := r.GetQuestionsForVersionWithoutCache(dbc, version)
	if err != nil {
		return nil, err
	}
	if r.cache != nil && version.LifecycleStage != domain.StageDraft {
		r.cache.SetQuestions(dbc.Ctx, version.ID, questions)
	}
	return questions, nil
}

func (r *versionRepo) GetQuestionsForVersionWithoutCache(dbc dbctx.Context, version *domain.Version) ([]*domain.Question, error) {
	var questions []*domain.Question
	err := r.handle(dbc).
		Joins("JOIN versions_questions vq ON vq.question_id = questions.id").
		Where("vq.version_id = ?", version.ID).
		Order("questions.id").
		Find(&questions).Error
	if err != nil {
		return nil, err
	}
	return questions, nil
}

func (r *versionRepo) GetProgramsForVersion(dbc dbctx.Context, version *domain.Version) ([]*domain.Program, error) {
	if r.cache != nil && version.LifecycleStage != domain.StageDraft {
		if programs, ok := r.cache.GetPrograms(dbc.Ctx, version.ID); ok {
			return programs, nil
		}
	}
	programs, err := r.GetProgramsForVersionWithoutCache(dbc, version)
	if err != nil {
		return nil, err
	}
	if r.cache != nil && version.LifecycleStage != domain.StageDraft {
		r.cache.SetPrograms(dbc.Ctx, version.ID, programs)
	}
	return programs, nil
}

func (r *versionRepo) GetProgramsForVersionWithoutCache(dbc dbctx.Context, version *domain.Version) ([]*domain.Program, error) {
	var programs []*domain.Program
	err := r.handle(dbc).
		Joins("JOIN versions_programs vp ON vp.program_id = programs.id").
		Where("vp.version_id = ?", version.ID).
		Order("programs.id").
		Find(&programs).Error
	if err != nil {
		return nil, err
	}
	return programs, nil
}

func (r *versionRepo) GetQuestionByNameForVersion(dbc dbctx.Context, name string, version *domain.Version) (*domain.Question, error) {
	var questions []*domain.Question
	err := r.handle(dbc).
		Joins("JOIN versions_questions vq ON vq.question_id = questions.id").
		Where("vq.version_id = ?", version.ID).
		Where("questions.name = ?", name).
		Find(&questions).Error
	if err != nil {
		return nil, err
	}
	switch len(questions) {
	case 0:
		return nil, nil
	case 1:
		return questions[0], nil
	default:
		return nil, &domain.DuplicateDraftError{Kind: "question", Name: name}
	}
}

func (r *versionRepo) GetProgramByNameForVersion(dbc dbctx.Context, name string, version *domain.Version) (*domain.Program, error) {
	var programs []*domain.Program
	err := r.handle(dbc).
		Joins("JOIN versions_programs vp ON vp.program_id = programs.id").
		Where("vp.version_id = ?", version.ID).
		Where("programs.name = ?", name).
		Find(&programs).Error
	if err != nil {
		return nil, err
	}
	switch len(programs) {
	case 0:
		return nil, nil
	case 1:
		return programs[0], nil
	default:
		return nil, &domain.DuplicateDraftError{Kind: "program", Name: name}
	}
}

func (r *versionRepo) GetQuestionNamesForVersion(dbc dbctx.Context, version *domain.Version) (map[string]bool, error) {
	var names []string
	err := r.handle(dbc).
		Model(&domain.Question{}).
		Joins("JOIN versions_questions vq ON vq.question_id = questions.id").
		Where("vq.version_id = ?", version.ID).
		Pluck("questions.name", &names).Error
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set, nil
}

func (r *versionRepo) GetProgramNamesForVersion(dbc dbctx.Context, version *domain.Version) (map[string]bool, error) {
	var names []string
	err := r.handle(dbc).
		Model(&domain.Program{}).
		Joins("JOIN versions_programs vp ON vp.program_id = programs.id").
		Where("vp.version_id = ?", version.ID).
		Pluck("programs.name", &names).Error
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set, nil
}

func (r *versionRepo) GetQuestionCountForVersion(dbc dbctx.Context, version *domain.Version) (int64, error) {
	var count int64
	err := r.handle(dbc).
		Model(&domain.VersionQuestion{}).
		Where("version_id = ?", version.ID).
		Count(&count).Error
	return count, err
}

func (r *versionRepo) GetProgramCountForVersion(dbc dbctx.Context, version *domain.Version) (int64, error) {
	var count int64
	err := r.handle(dbc).
		Model(&domain.VersionProgram{}).
		Where("version_id = ?", version.ID).
		Count(&count).Error
	return count, err
}

// GetLatestVersionOfQuestion follows the question's logical name from
// any historical row id to the most current row: the draft's row when
// the draft has one, otherwise the active version's row, otherwise nil.
func (r *versionRepo) GetLatestVersionOfQuestion(dbc dbctx.Context, questionID int64) (*domain.Question, error) {
	var question domain.Question
	err := r.handle(dbc).Where("id = ?", questionID).First(&question).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &domain.QuestionNotFoundError{ID: questionID}
	}
	if err != nil {
		return nil, err
	}
	draft, err := r.GetDraftVersion(dbc)
	if err != nil {
		return nil, err
	}
	if draft != nil {
		latest, err := r.GetQuestionByNameForVersion(dbc, question.Name, draft)
		if err != nil {
			return nil, err
		}
		if latest != nil {
			return latest, nil
		}
	}
	active, err := r.GetActiveVersion(dbc)
	if errors.Is(err, domain.ErrNoActiveVersion) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r.GetQuestionByNameForVersion(dbc, question.Name, active)
}

func (r *versionRepo) QuestionIDToNameMap(dbc dbctx.Context, version *domain.Version) (map[int64]string, error) {
	questions, err := r.GetQuestionsForVersion(dbc, version)
	if err != nil {
		return nil, err
	}
	idToName := make(map[int64]string, len(questions))
	for _, q := range questions {
		idToName[q.ID] = q.Name
	}
	return idToName, nil
}

// BuildReferencingProgramsMap maps each question name in the version
// to the definitions of the version's programs that reference it.
func (r *versionRepo) BuildReferencingProgramsMap(dbc dbctx.Context, version *domain.Version) (map[string][]domain.ProgramDefinition, error) {
	idToName, err := r.QuestionIDToNameMap(dbc, version)
	if err != nil {
		return nil, err
	}
	programs, err := r.GetProgramsForVersion(dbc, version)
	if err != nil {
		return nil, err
	}
	result := make(map[string][]domain.ProgramDefinition)
	for _, p := range programs {
		def, err := p.ProgramDefinition()
		if err != nil {
			return nil, err
		}
		for _, qid := range def.AllQuestionIDs() {
			name, ok := idToName[qid]
			if !ok {
				continue
			}
			result[name] = append(result[name], def)
		}
	}
	return result, nil
}

// GetProgramQuestionNamesInVersion resolves the question ids a program
// references to names, keeping only those present in the version.
func (r *versionRepo) GetProgramQuestionNamesInVersion(dbc dbctx.Context, def domain.ProgramDefinition, version *domain.Version) (map[string]bool, error) {
	idToName, err := r.QuestionIDToNameMap(dbc, version)
	if err != nil {
		return nil, err
	}
	names := make(map[string]bool)
	for _, qid := range def.AllQuestionIDs() {
		if name, ok := idToName[qid]; ok {
			names[name] = true
		}
	}
	return names, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
