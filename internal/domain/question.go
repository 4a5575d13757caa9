package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Question is one immutable revision of a question. The name is the
// stable logical identifier; the id is unique per revision and changes
// on every edit. Rows are shared across versions through
// versions_questions, never mutated after publish.
type Question struct {
	ID               int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Name             string         `gorm:"column:name;not null;index" json:"name"`
	Definition       datatypes.JSON `gorm:"column:definition;type:jsonb;not null" json:"definition"`
	ConcurrencyToken uuid.UUID      `gorm:"type:uuid;column:concurrency_token;not null" json:"concurrency_token"`

	Versions []*Version `gorm:"many2many:versions_questions;joinForeignKey:QuestionID;joinReferences:VersionID" json:"versions,omitempty"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (Question) TableName() string { return "questions" }

// QuestionDefinition returns the decoded definition payload.
func (q *Question) QuestionDefinition() (QuestionDefinition, error) {
	var def QuestionDefinition
	if err := json.Unmarshal(q.Definition, &def); err != nil {
		return QuestionDefinition{}, fmt.Errorf("decode question %d definition: %w", q.ID, err)
	}
	return def, nil
}

// NewQuestion builds an unsaved row from a definition. The definition's
// id is cleared; it is set to the row id once the row is inserted.
func NewQuestion(def QuestionDefinition) (*Question, error) {
	def.ID = 0
	payload, err := json.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("encode question definition: %w", err)
	}
	return &Question{
		Name:             def.Name,
		Definition:       payload,
		ConcurrencyToken: uuid.New(),
	}, nil
}

// SetDefinition replaces the payload, stamping it with the row id and
// rotating the concurrency token.
func (q *Question) SetDefinition(def QuestionDefinition) error {
	def.ID = q.ID
	def.Name = q.Name
	payload, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("encode question definition: %w", err)
	}
	q.Definition = payload
	q.ConcurrencyToken = uuid.New()
	return nil
}
