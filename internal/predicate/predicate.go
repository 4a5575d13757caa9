// Package predicate models the visibility/eligibility rule tree attached to
// program blocks. Nodes form a closed sum type so the rewriter can match
// exhaustively; leaves reference questions by row id only.
package predicate

// Action is what happens to a block when its predicate evaluates true.
type Action string

const (
	ActionShowBlock     Action = "show_block"
	ActionHideBlock     Action = "hide_block"
	ActionEligibleBlock Action = "eligible_block"
)

// Operator compares an answer scalar against a predicate value.
type Operator string

const (
	OpEqualTo              Operator = "equal_to"
	OpNotEqualTo           Operator = "not_equal_to"
	OpGreaterThan          Operator = "greater_than"
	OpGreaterThanOrEqualTo Operator = "greater_than_or_equal_to"
	OpLessThan             Operator = "less_than"
	OpLessThanOrEqualTo    Operator = "less_than_or_equal_to"
	OpAnyOf                Operator = "any_of"
	OpNoneOf               Operator = "none_of"
	OpInServiceArea        Operator = "in_service_area"
	OpNotInServiceArea     Operator = "not_in_service_area"
)

// Scalar names the part of an answer the operator applies to.
type Scalar string

const (
	ScalarText      Scalar = "text"
	ScalarNumber    Scalar = "number"
	ScalarDate      Scalar = "date"
	ScalarSelection Scalar = "selection"
	ScalarCurrency  Scalar = "currency"
)

// Node is one node of the predicate expression tree.
type Node interface {
	isNode()
}

// And is true when every child is true.
type And struct {
	Children []Node
}

// Or is true when at least one child is true.
type Or struct {
	Children []Node
}

// LeafOperation compares one scalar of one question's answer to a value.
type LeafOperation struct {
	QuestionID int64
	Scalar     Scalar
	Operator   Operator
	Value      string
}

// LeafAddressServiceArea checks an address answer against a service area.
type LeafAddressServiceArea struct {
	QuestionID    int64
	ServiceAreaID string
	Operator      Operator
}

func (And) isNode()                    {}
func (Or) isNode()                     {}
func (LeafOperation) isNode()          {}
func (LeafAddressServiceArea) isNode() {}

// Predicate is a rule tree plus the action it drives.
type Predicate struct {
	Root   Node
	Action Action
}

// QuestionIDs returns every question id referenced by leaves under n,
// in depth-first order. Duplicates are preserved.
func QuestionIDs(n Node) []int64 {
	switch node := n.(type) {
	case And:
		var ids []int64
		for _, child := range node.Children {
			ids = append(ids, QuestionIDs(child)...)
		}
		return ids
	case Or:
		var ids []int64
		for _, child := range node.Children {
			ids = append(ids, QuestionIDs(child)...)
		}
		return ids
	case LeafOperation:
		return []int64{node.QuestionID}
	case LeafAddressServiceArea:
		return []int64{node.QuestionID}
	}
	return nil
}
