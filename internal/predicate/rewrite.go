package predicate

import "fmt"

// ResolveFunc maps a question row id to its replacement id in the target
// version. Returning an error means the question has no representation
// there, which indicates a broken reference rather than user error.
type ResolveFunc func(questionID int64) (int64, error)

// Rewrite returns a copy of n with every leaf question id passed through
// resolve. Node kinds, child order, operators and values are preserved
// exactly; only leaf question ids may differ.
func Rewrite(n Node, resolve ResolveFunc) (Node, error) {
	switch node := n.(type) {
	case And:
		children, err := rewriteChildren(node.Children, resolve)
		if err != nil {
			return nil, err
		}
		return And{Children: children}, nil
	case Or:
		children, err := rewriteChildren(node.Children, resolve)
		if err != nil {
			return nil, err
		}
		return Or{Children: children}, nil
	case LeafOperation:
		newID, err := resolve(node.QuestionID)
		if err != nil {
			return nil, err
		}
		node.QuestionID = newID
		return node, nil
	case LeafAddressServiceArea:
		newID, err := resolve(node.QuestionID)
		if err != nil {
			return nil, err
		}
		node.QuestionID = newID
		return node, nil
	}
	return nil, fmt.Errorf("predicate: unhandled node type %T", n)
}

func rewriteChildren(children []Node, resolve ResolveFunc) ([]Node, error) {
	rewritten := make([]Node, 0, len(children))
	for _, child := range children {
		updated, err := Rewrite(child, resolve)
		if err != nil {
			return nil, err
		}
		rewritten = append(rewritten, updated)
	}
	return rewritten, nil
}

// RewritePredicate applies Rewrite to p's root, keeping the action.
func RewritePredicate(p Predicate, resolve ResolveFunc) (Predicate, error) {
	root, err := Rewrite(p.Root, resolve)
	if err != nil {
		return Predicate{}, err
	}
	return Predicate{Root: root, Action: p.Action}, nil
}
