package predicate

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"testing"
)

func sampleTree() Node {
	return And{Children: []Node{
		Or{Children: []Node{
			LeafOperation{QuestionID: 1, Scalar: ScalarNumber, Operator: OpGreaterThan, Value: "18"},
			LeafOperation{QuestionID: 2, Scalar: ScalarText, Operator: OpEqualTo, Value: "WA"},
		}},
		LeafAddressServiceArea{QuestionID: 3, ServiceAreaID: "seattle", Operator: OpInServiceArea},
	}}
}

func TestRewriteReplacesLeafIDs(t *testing.T) {
	mapping := map[int64]int64{1: 11, 2: 22, 3: 33}
	resolve := func(id int64) (int64, error) {
		newID, ok := mapping[id]
		if !ok {
			return 0, fmt.Errorf("no mapping for %d", id)
		}
		return newID, nil
	}

	rewritten, err := Rewrite(sampleTree(), resolve)
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}

	want := And{Children: []Node{
		Or{Children: []Node{
			LeafOperation{QuestionID: 11, Scalar: ScalarNumber, Operator: OpGreaterThan, Value: "18"},
			LeafOperation{QuestionID: 22, Scalar: ScalarText, Operator: OpEqualTo, Value: "WA"},
		}},
		LeafAddressServiceArea{QuestionID: 33, ServiceAreaID: "seattle", Operator: OpInServiceArea},
	}}
	if !reflect.DeepEqual(rewritten, want) {
		t.Fatalf("Rewrite: got %#v, want %#v", rewritten, want)
	}
}

func TestRewritePreservesStructureOnIdentity(t *testing.T) {
	identity := func(id int64) (int64, error) { return id, nil }
	rewritten, err := Rewrite(sampleTree(), identity)
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if !reflect.DeepEqual(rewritten, sampleTree()) {
		t.Fatalf("identity rewrite changed the tree: %#v", rewritten)
	}
}

func TestRewriteFailsOnUnresolvableLeaf(t *testing.T) {
	wantErr := errors.New("question 2 not in target version")
	resolve := func(id int64) (int64, error) {
		if id == 2 {
			return 0, wantErr
		}
		return id, nil
	}
	if _, err := Rewrite(sampleTree(), resolve); !errors.Is(err, wantErr) {
		t.Fatalf("Rewrite: got err %v, want %v", err, wantErr)
	}
}

func TestRewritePredicateKeepsAction(t *testing.T) {
	p := Predicate{Root: sampleTree(), Action: ActionEligibleBlock}
	got, err := RewritePredicate(p, func(id int64) (int64, error) { return id + 100, nil })
	if err != nil {
		t.Fatalf("RewritePredicate: %v", err)
	}
	if got.Action != ActionEligibleBlock {
		t.Fatalf("action changed: %q", got.Action)
	}
	if ids := QuestionIDs(got.Root); !reflect.DeepEqual(ids, []int64{101, 102, 103}) {
		t.Fatalf("QuestionIDs after rewrite: %v", ids)
	}
}

func TestQuestionIDs(t *testing.T) {
	ids := QuestionIDs(sampleTree())
	if !reflect.DeepEqual(ids, []int64{1, 2, 3}) {
		t.Fatalf("QuestionIDs: got %v", ids)
	}
	if got := QuestionIDs(And{}); got != nil {
		t.Fatalf("QuestionIDs of empty and: got %v", got)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	original := Predicate{Root: sampleTree(), Action: ActionShowBlock}

	raw, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded Predicate
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !reflect.DeepEqual(decoded, original) {
		t.Fatalf("round trip mismatch:\n got %#v\nwant %#v", decoded, original)
	}
}

func TestDecodeNodeRejectsUnknownType(t *testing.T) {
	if _, err := DecodeNode([]byte(`{"type":"xor"}`)); err == nil {
		t.Fatal("expected error for unknown node type")
	}
}
