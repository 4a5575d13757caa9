package repos

import (
	"errors"

	"gorm.io/gorm"

	"github.com/formbridge/benefits-backend/internal/domain"
	"github.com/formbridge/benefits-backend/internal/pkg/dbctx"
	"github.com/formbridge/benefits-backend/internal/platform/logger"
)

type QuestionRepo interface {
	Insert(dbc dbctx.Context, question *domain.Question) (*domain.Question, error)
	Update(dbc dbctx.Context, question *domain.Question) error
	GetByID(dbc dbctx.Context, id int64) (*domain.Question, error)
	GetByIDs(dbc dbctx.Context, ids []int64) ([]*domain.Question, error)
}

type questionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewQuestionRepo(db *gorm.DB, baseLog *logger.Logger) QuestionRepo {
	return &questionRepo{db: db, log: baseLog.With("repo", "QuestionRepo")}
}

func (r *questionRepo) handle(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

// Insert creates the row, then re-stamps the definition payload with
// the assigned row id so payload and row never disagree.
func (r *questionRepo) Insert(dbc dbctx.Context, question *domain.Question) (*domain.Question, error) {
	tx := r.handle(dbc)
	if err := tx.Create(question).Error; err != nil {
		return nil, err
	}
	def, err := question.QuestionDefinition()
	if err != nil {
		return nil, err
	}
	if err := question.SetDefinition(def); err != nil {
		return nil, err
	}
	if err := tx.Model(question).Updates(map[string]any{
		"definition":        question.Definition,
		"concurrency_token": question.ConcurrencyToken,
	}).Error; err != nil {
		return nil, err
	}
	return question, nil
}

func (r *questionRepo) Update(dbc dbctx.Context, question *domain.Question) error {
	return r.handle(dbc).Model(question).Updates(map[string]any{
		"definition":        question.Definition,
		"concurrency_token": question.ConcurrencyToken,
	}).Error
}

func (r *questionRepo) GetByID(dbc dbctx.Context, id int64) (*domain.Question, error) {
	var question domain.Question
	err := r.handle(dbc).Where("id = ?", id).First(&question).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &question, nil
}

func (r *questionRepo) GetByIDs(dbc dbctx.Context, ids []int64) ([]*domain.Question, error) {
	var results []*domain.Question
	if len(ids) == 0 {
		return results, nil
	}
	if err := r.handle(dbc).Where("id IN ?", ids).Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
