package domain

import (
	"errors"
	"fmt"
)

// ErrNoActiveVersion is returned when the ledger holds no active
// version. Outside of first bootstrap this indicates corrupted state.
var ErrNoActiveVersion = errors.New("no active version exists")

// ProgramNotFoundError is returned by lookups that require the program
// to exist.
type ProgramNotFoundError struct {
	Name string
	ID   int64
}

func (e *ProgramNotFoundError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("program %q not found", e.Name)
	}
	return fmt.Sprintf("program %d not found", e.ID)
}

// ProgramDraftNotFoundError is returned when an operation needs a draft
// revision of a program and none exists, e.g. publishing a program that
// has no pending changes.
type ProgramDraftNotFoundError struct {
	Name string
}

func (e *ProgramDraftNotFoundError) Error() string {
	return fmt.Sprintf("no draft revision of program %q", e.Name)
}

// QuestionNotFoundError is returned by lookups that require the
// question to exist.
type QuestionNotFoundError struct {
	Name string
	ID   int64
}

func (e *QuestionNotFoundError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("question %q not found", e.Name)
	}
	return fmt.Sprintf("question %d not found", e.ID)
}

// SharedQuestionsError means a single-program publish was refused
// because one of the program's modified questions is also referenced by
// another draft program. Publishing would silently upgrade that other
// program's dependency.
type SharedQuestionsError struct {
	Program string
}

func (e *SharedQuestionsError) Error() string {
	return fmt.Sprintf("program %q references draft questions shared with other draft programs and cannot be published alone", e.Program)
}

// DuplicateDraftError means two rows with the same logical name ended
// up in one version. The per-version uniqueness invariant was violated;
// this is fatal and never retried.
type DuplicateDraftError struct {
	Kind string // "question" or "program"
	Name string
}

func (e *DuplicateDraftError) Error() string {
	return fmt.Sprintf("more than one %s named %q in the same version", e.Kind, e.Name)
}

// BrokenReferenceError means a program references a question id that
// has no representation in the target version. It indicates the
// update-propagation step was skipped, not a user error.
type BrokenReferenceError struct {
	QuestionID int64
	Program    string
}

func (e *BrokenReferenceError) Error() string {
	if e.Program != "" {
		return fmt.Sprintf("program %q references question %d which is not included in the version", e.Program, e.QuestionID)
	}
	return fmt.Sprintf("question %d has no revision in the version", e.QuestionID)
}
