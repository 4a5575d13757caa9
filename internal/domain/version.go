package domain

import (
	"slices"
	"time"

	"gorm.io/datatypes"
)

// LifecycleStage is where a version sits in its life. Transitions only
// move forward: draft -> active -> obsolete.
type LifecycleStage string

const (
	StageDraft    LifecycleStage = "draft"
	StageActive   LifecycleStage = "active"
	StageObsolete LifecycleStage = "obsolete"
)

// CanTransitionTo reports whether moving from s to next is a legal
// forward transition.
func (s LifecycleStage) CanTransitionTo(next LifecycleStage) bool {
	switch s {
	case StageDraft:
		return next == StageActive
	case StageActive:
		return next == StageObsolete
	}
	return false
}

// Version is a snapshot boundary: a set of question and program rows
// plus the names deliberately excluded from the next publish. Versions
// are never deleted; obsolete ones stay readable for history.
type Version struct {
	ID             int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	LifecycleStage LifecycleStage `gorm:"column:lifecycle_stage;not null;index" json:"lifecycle_stage"`

	TombstonedQuestionNames datatypes.JSONSlice[string] `gorm:"column:tombstoned_question_names" json:"tombstoned_question_names"`
	TombstonedProgramNames  datatypes.JSONSlice[string] `gorm:"column:tombstoned_program_names" json:"tombstoned_program_names"`

	Questions []*Question `gorm:"many2many:versions_questions;joinForeignKey:VersionID;joinReferences:QuestionID" json:"questions,omitempty"`
	Programs  []*Program  `gorm:"many2many:versions_programs;joinForeignKey:VersionID;joinReferences:ProgramID" json:"programs,omitempty"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (Version) TableName() string { return "versions" }

// QuestionIsTombstoned reports whether the named question is excluded
// from this version's publish.
func (v *Version) QuestionIsTombstoned(name string) bool {
	return slices.Contains(v.TombstonedQuestionNames, name)
}

// ProgramIsTombstoned reports whether the named program is excluded
// from this version's publish.
func (v *Version) ProgramIsTombstoned(name string) bool {
	return slices.Contains(v.TombstonedProgramNames, name)
}

// AddTombstoneForQuestion marks name as excluded. Returns false if it
// was already tombstoned.
func (v *Version) AddTombstoneForQuestion(name string) bool {
	if v.QuestionIsTombstoned(name) {
		return false
	}
	v.TombstonedQuestionNames = append(v.TombstonedQuestionNames, name)
	return true
}

// AddTombstoneForProgram marks name as excluded. Returns false if it
// was already tombstoned.
func (v *Version) AddTombstoneForProgram(name string) bool {
	if v.ProgramIsTombstoned(name) {
		return false
	}
	v.TombstonedProgramNames = append(v.TombstonedProgramNames, name)
	return true
}

// RemoveTombstoneForQuestion clears the marker. Returns false if the
// name was not tombstoned.
func (v *Version) RemoveTombstoneForQuestion(name string) bool {
	idx := slices.Index(v.TombstonedQuestionNames, name)
	if idx < 0 {
		return false
	}
	v.TombstonedQuestionNames = slices.Delete(v.TombstonedQuestionNames, idx, idx+1)
	return true
}

// RemoveTombstoneForProgram clears the marker. Returns false if the
// name was not tombstoned.
func (v *Version) RemoveTombstoneForProgram(name string) bool {
	idx := slices.Index(v.TombstonedProgramNames, name)
	if idx < 0 {
		return false
	}
	v.TombstonedProgramNames = slices.Delete(v.TombstonedProgramNames, idx, idx+1)
	return true
}

// VersionQuestion is the association row tying a question row into a
// version. The version side owns these rows.
type VersionQuestion struct {
	VersionID  int64 `gorm:"primaryKey" json:"version_id"`
	QuestionID int64 `gorm:"primaryKey" json:"question_id"`
}

func (VersionQuestion) TableName() string { return "versions_questions" }

// VersionProgram is the association row tying a program row into a
// version.
type VersionProgram struct {
	VersionID int64 `gorm:"primaryKey" json:"version_id"`
	ProgramID int64 `gorm:"primaryKey" json:"program_id"`
}

func (VersionProgram) TableName() string { return "versions_programs" }
