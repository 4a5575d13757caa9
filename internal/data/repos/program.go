package repos

import (
	"errors"

	"gorm.io/gorm"

	"github.com/formbridge/benefits-backend/internal/domain"
	"github.com/formbridge/benefits-backend/internal/pkg/dbctx"
	"github.com/formbridge/benefits-backend/internal/platform/logger"
)

type ProgramRepo interface {
	Insert(dbc dbctx.Context, program *domain.Program) (*domain.Program, error)
	Update(dbc dbctx.Context, program *domain.Program) error
	GetByID(dbc dbctx.Context, id int64) (*domain.Program, error)
	GetByIDs(dbc dbctx.Context, ids []int64) ([]*domain.Program, error)
	GetActiveProgramFromName(dbc dbctx.Context, name string) (*domain.Program, error)
}

type programRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProgramRepo(db *gorm.DB, baseLog *logger.Logger) ProgramRepo {
	return &programRepo{db: db, log: baseLog.With("repo", "ProgramRepo")}
}

func (r *programRepo) handle(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *programRepo) Insert(dbc dbctx.Context, program *domain.Program) (*domain.Program, error) {
	tx := r.handle(dbc)
	if err := tx.Create(program).Error; err != nil {
		return nil, err
	}
	def, err := program.ProgramDefinition()
	if err != nil {
		return nil, err
	}
	if err := program.SetDefinition(def); err != nil {
		return nil, err
	}
	if err := tx.Model(program).Updates(map[string]any{
		"definition":        program.Definition,
		"concurrency_token": program.ConcurrencyToken,
	}).Error; err != nil {
		return nil, err
	}
	return program, nil
}

func (r *programRepo) Update(dbc dbctx.Context, program *domain.Program) error {
	return r.handle(dbc).Model(program).Updates(map[string]any{
		"definition":        program.Definition,
		"concurrency_token": program.ConcurrencyToken,
	}).Error
}

func (r *programRepo) GetByID(dbc dbctx.Context, id int64) (*domain.Program, error) {
	var program domain.Program
	err := r.handle(dbc).Where("id = ?", id).First(&program).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &program, nil
}

// GetActiveProgramFromName returns the revision of the named program
// that the active version carries, or nil when the program is not live.
func (r *programRepo) GetActiveProgramFromName(dbc dbctx.Context, name string) (*domain.Program, error) {
	var programs []*domain.Program
	err := r.handle(dbc).
		Joins("JOIN versions_programs vp ON vp.program_id = programs.id").
		Joins("JOIN versions v ON v.id = vp.version_id").
		Where("v.lifecycle_stage = ?", domain.StageActive).
		Where("programs.name = ?", name).
		Find(&programs).Error
	if err != nil {
		return nil, err
	}
	if len(programs) == 0 {
		return nil, nil
	}
	return programs[0], nil
}

func (r *programRepo) GetByIDs(dbc dbctx.Context, ids []int64) ([]*domain.Program, error) {
	var results []*domain.Program
	if len(ids) == 0 {
		return results, nil
	}
	if err := r.handle(dbc).Where("id IN ?", ids).Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
