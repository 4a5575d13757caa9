package predicate

import (
	"encoding/json"
	"fmt"
)

// Wire form uses a "type" discriminator so trees survive the jsonb
// round trip inside program definitions.
const (
	typeAnd                    = "and"
	typeOr                     = "or"
	typeLeafOperation          = "leaf_operation"
	typeLeafAddressServiceArea = "leaf_address_service_area"
)

type nodeEnvelope struct {
	Type     string            `json:"type"`
	Children []json.RawMessage `json:"children,omitempty"`

	QuestionID    int64    `json:"question_id,omitempty"`
	Scalar        Scalar   `json:"scalar,omitempty"`
	Operator      Operator `json:"operator,omitempty"`
	Value         string   `json:"value,omitempty"`
	ServiceAreaID string   `json:"service_area_id,omitempty"`
}

func (n And) MarshalJSON() ([]byte, error) {
	children, err := marshalChildren(n.Children)
	if err != nil {
		return nil, err
	}
	return json.Marshal(nodeEnvelope{Type: typeAnd, Children: children})
}

func (n Or) MarshalJSON() ([]byte, error) {
	children, err := marshalChildren(n.Children)
	if err != nil {
		return nil, err
	}
	return json.Marshal(nodeEnvelope{Type: typeOr, Children: children})
}

func (n LeafOperation) MarshalJSON() ([]byte, error) {
	return json.Marshal(nodeEnvelope{
		Type:       typeLeafOperation,
		QuestionID: n.QuestionID,
		Scalar:     n.Scalar,
		Operator:   n.Operator,
		Value:      n.Value,
	})
}

func (n LeafAddressServiceArea) MarshalJSON() ([]byte, error) {
	return json.Marshal(nodeEnvelope{
		Type:          typeLeafAddressServiceArea,
		QuestionID:    n.QuestionID,
		ServiceAreaID: n.ServiceAreaID,
		Operator:      n.Operator,
	})
}

func marshalChildren(children []Node) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(children))
	for _, child := range children {
		raw, err := json.Marshal(child)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}

// DecodeNode parses one wire-form node, recursively decoding children.
func DecodeNode(raw []byte) (Node, error) {
	var env nodeEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	switch env.Type {
	case typeAnd:
		children, err := decodeChildren(env.Children)
		if err != nil {
			return nil, err
		}
		return And{Children: children}, nil
	case typeOr:
		children, err := decodeChildren(env.Children)
		if err != nil {
			return nil, err
		}
		return Or{Children: children}, nil
	case typeLeafOperation:
		return LeafOperation{
			QuestionID: env.QuestionID,
			Scalar:     env.Scalar,
			Operator:   env.Operator,
			Value:      env.Value,
		}, nil
	case typeLeafAddressServiceArea:
		return LeafAddressServiceArea{
			QuestionID:    env.QuestionID,
			ServiceAreaID: env.ServiceAreaID,
			Operator:      env.Operator,
		}, nil
	}
	return nil, fmt.Errorf("predicate: unknown node type %q", env.Type)
}

func decodeChildren(raws []json.RawMessage) ([]Node, error) {
	children := make([]Node, 0, len(raws))
	for _, raw := range raws {
		child, err := DecodeNode(raw)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return children, nil
}

type predicateEnvelope struct {
	Root   json.RawMessage `json:"root"`
	Action Action          `json:"action"`
}

func (p Predicate) MarshalJSON() ([]byte, error) {
	root, err := json.Marshal(p.Root)
	if err != nil {
		return nil, err
	}
	return json.Marshal(predicateEnvelope{Root: root, Action: p.Action})
}

func (p *Predicate) UnmarshalJSON(data []byte) error {
	var env predicateEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	root, err := DecodeNode(env.Root)
	if err != nil {
		return err
	}
	p.Root = root
	p.Action = env.Action
	return nil
}
