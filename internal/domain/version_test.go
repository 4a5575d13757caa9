package domain

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/formbridge/benefits-backend/internal/predicate"
)

func TestLifecycleStageTransitions(t *testing.T) {
	cases := []struct {
		from, to LifecycleStage
		want     bool
	}{
		{StageDraft, StageActive, true},
		{StageActive, StageObsolete, true},
		{StageDraft, StageObsolete, false},
		{StageActive, StageDraft, false},
		{StageObsolete, StageActive, false},
		{StageObsolete, StageDraft, false},
	}
	for _, c := range cases {
		if got := c.from.CanTransitionTo(c.to); got != c.want {
			t.Errorf("%s -> %s: got %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestTombstones(t *testing.T) {
	v := &Version{LifecycleStage: StageDraft}

	if !v.AddTombstoneForQuestion("age") {
		t.Fatal("first tombstone should report newly added")
	}
	if v.AddTombstoneForQuestion("age") {
		t.Fatal("second tombstone of same name should report false")
	}
	if !v.QuestionIsTombstoned("age") {
		t.Fatal("age should be tombstoned")
	}
	if v.ProgramIsTombstoned("age") {
		t.Fatal("program tombstones must be independent of question tombstones")
	}

	if !v.RemoveTombstoneForQuestion("age") {
		t.Fatal("remove should report true for existing tombstone")
	}
	if v.RemoveTombstoneForQuestion("age") {
		t.Fatal("remove should report false once cleared")
	}
	if v.QuestionIsTombstoned("age") {
		t.Fatal("age should no longer be tombstoned")
	}
}

func TestProgramDefinitionQuestionIDs(t *testing.T) {
	def := ProgramDefinition{
		AdminName: "food-assistance",
		Blocks: []BlockDefinition{
			{
				ID:          1,
				Name:        "Personal info",
				QuestionIDs: []int64{1, 2},
			},
			{
				ID:          2,
				Name:        "Household",
				QuestionIDs: []int64{3},
				Visibility: &predicate.Predicate{
					Root:   predicate.LeafOperation{QuestionID: 2, Scalar: predicate.ScalarNumber, Operator: predicate.OpGreaterThan, Value: "1"},
					Action: predicate.ActionShowBlock,
				},
				Eligibility: &predicate.Predicate{
					Root:   predicate.LeafOperation{QuestionID: 4, Scalar: predicate.ScalarNumber, Operator: predicate.OpLessThan, Value: "30000"},
					Action: predicate.ActionEligibleBlock,
				},
			},
		},
	}

	if got := def.AllQuestionIDs(); !reflect.DeepEqual(got, []int64{1, 2, 3, 4}) {
		t.Fatalf("AllQuestionIDs: got %v", got)
	}
	if !def.HasQuestion(4) {
		t.Fatal("HasQuestion should see predicate-only references")
	}
	if def.HasQuestion(99) {
		t.Fatal("HasQuestion(99) should be false")
	}
}

func TestProgramDefinitionRoundTrip(t *testing.T) {
	def := ProgramDefinition{
		AdminName: "utility-discount",
		Blocks: []BlockDefinition{{
			ID:          1,
			Name:        "Address",
			QuestionIDs: []int64{7},
			Eligibility: &predicate.Predicate{
				Root:   predicate.LeafAddressServiceArea{QuestionID: 7, ServiceAreaID: "city", Operator: predicate.OpInServiceArea},
				Action: predicate.ActionEligibleBlock,
			},
		}},
	}

	p, err := NewProgram(def)
	if err != nil {
		t.Fatalf("NewProgram: %v", err)
	}
	decoded, err := p.ProgramDefinition()
	if err != nil {
		t.Fatalf("ProgramDefinition: %v", err)
	}
	if decoded.AdminName != def.AdminName || !reflect.DeepEqual(decoded.Blocks, def.Blocks) {
		t.Fatalf("round trip mismatch: %#v", decoded)
	}
}

func TestSetDefinitionStampsRowIdentity(t *testing.T) {
	q, err := NewQuestion(QuestionDefinition{Name: "age", QuestionText: "How old are you?", QuestionType: "number"})
	if err != nil {
		t.Fatalf("NewQuestion: %v", err)
	}
	q.ID = 42
	oldToken := q.ConcurrencyToken

	if err := q.SetDefinition(QuestionDefinition{Name: "ignored", QuestionText: "Age?", QuestionType: "number"}); err != nil {
		t.Fatalf("SetDefinition: %v", err)
	}
	def, err := q.QuestionDefinition()
	if err != nil {
		t.Fatalf("QuestionDefinition: %v", err)
	}
	if def.ID != 42 {
		t.Fatalf("definition id should be stamped with row id, got %d", def.ID)
	}
	if def.Name != "age" {
		t.Fatalf("definition name must stay the row name, got %q", def.Name)
	}
	if q.ConcurrencyToken == oldToken {
		t.Fatal("concurrency token should rotate on write")
	}

	// The payload itself stays plain JSON.
	var raw map[string]any
	if err := json.Unmarshal(q.Definition, &raw); err != nil {
		t.Fatalf("payload not valid JSON: %v", err)
	}
}
