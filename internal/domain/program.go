package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Program is one immutable revision of a program. Edits are
// copy-on-write: a new row with the same name, a fresh id and a fresh
// definition payload. The definition exclusively owns its block list
// and embedded predicate trees.
type Program struct {
	ID               int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Name             string         `gorm:"column:name;not null;index" json:"name"`
	Definition       datatypes.JSON `gorm:"column:definition;type:jsonb;not null" json:"definition"`
	ConcurrencyToken uuid.UUID      `gorm:"type:uuid;column:concurrency_token;not null" json:"concurrency_token"`

	Versions []*Version `gorm:"many2many:versions_programs;joinForeignKey:ProgramID;joinReferences:VersionID" json:"versions,omitempty"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (Program) TableName() string { return "programs" }

// ProgramDefinition returns the decoded definition payload.
func (p *Program) ProgramDefinition() (ProgramDefinition, error) {
	var def ProgramDefinition
	if err := json.Unmarshal(p.Definition, &def); err != nil {
		return ProgramDefinition{}, fmt.Errorf("decode program %d definition: %w", p.ID, err)
	}
	return def, nil
}

// NewProgram builds an unsaved row from a definition.
func NewProgram(def ProgramDefinition) (*Program, error) {
	def.ID = 0
	payload, err := json.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("encode program definition: %w", err)
	}
	return &Program{
		Name:             def.AdminName,
		Definition:       payload,
		ConcurrencyToken: uuid.New(),
	}, nil
}

// SetDefinition replaces the payload, stamping it with the row id and
// rotating the concurrency token.
func (p *Program) SetDefinition(def ProgramDefinition) error {
	def.ID = p.ID
	def.AdminName = p.Name
	payload, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("encode program definition: %w", err)
	}
	p.Definition = payload
	p.ConcurrencyToken = uuid.New()
	return nil
}
