package domain

import (
	"github.com/formbridge/benefits-backend/internal/predicate"
)

// QuestionDefinition is the immutable payload of one question revision.
// ID mirrors the row id of the revision it was loaded from; 0 means the
// definition has not been persisted yet.
type QuestionDefinition struct {
	ID           int64  `json:"id,omitempty"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	QuestionText string `json:"question_text"`
	QuestionType string `json:"question_type"`
}

// BlockDefinition is one screen of a program: an ordered list of
// question references by row id, plus optional visibility and
// eligibility predicates.
type BlockDefinition struct {
	ID          int64                `json:"id"`
	Name        string               `json:"name"`
	Description string               `json:"description,omitempty"`
	QuestionIDs []int64              `json:"question_ids"`
	Visibility  *predicate.Predicate `json:"visibility,omitempty"`
	Eligibility *predicate.Predicate `json:"eligibility,omitempty"`
}

// QuestionIDsInBlock returns every question id the block references,
// from its question list and from both predicate slots.
func (b BlockDefinition) QuestionIDsInBlock() []int64 {
	ids := append([]int64(nil), b.QuestionIDs...)
	if b.Visibility != nil {
		ids = append(ids, predicate.QuestionIDs(b.Visibility.Root)...)
	}
	if b.Eligibility != nil {
		ids = append(ids, predicate.QuestionIDs(b.Eligibility.Root)...)
	}
	return ids
}

// ProgramDefinition is the immutable payload of one program revision.
type ProgramDefinition struct {
	ID               int64             `json:"id,omitempty"`
	AdminName        string            `json:"admin_name"`
	AdminDescription string            `json:"admin_description,omitempty"`
	Blocks           []BlockDefinition `json:"blocks"`
}

// AllQuestionIDs returns every question id referenced anywhere in the
// program, deduplicated, in first-seen order.
func (d ProgramDefinition) AllQuestionIDs() []int64 {
	seen := make(map[int64]bool)
	var ids []int64
	for _, block := range d.Blocks {
		for _, id := range block.QuestionIDsInBlock() {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// HasQuestion reports whether the program references the question row.
func (d ProgramDefinition) HasQuestion(questionID int64) bool {
	for _, block := range d.Blocks {
		for _, id := range block.QuestionIDsInBlock() {
			if id == questionID {
				return true
			}
		}
	}
	return false
}
