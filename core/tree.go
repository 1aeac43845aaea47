package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// maxTreeDepth bounds object and array nesting in a payload.
const maxTreeDepth = 10000

type NodeKind int

const (
	KindNull NodeKind = iota
	KindScalar
	KindObject
	KindArray
)

// Node is a decoded JSON value that keeps object keys in document order, so
// depth-first searches are deterministic.
type Node struct {
	Kind   NodeKind
	Fields []Field
	Items  []*Node
	// Scalar holds a string, json.Number or bool.
	Scalar any
}

type Field struct {
	Key   string
	Value *Node
}

// DecodeTree reads exactly one JSON document from r.
func DecodeTree(r io.Reader) (*Node, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	n, err := decodeNode(dec, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after document", ErrMalformedPayload)
	}
	return n, nil
}

func decodeNode(dec *json.Decoder, depth int) (*Node, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch v := tok.(type) {
	case json.Delim:
		if depth >= maxTreeDepth {
			return nil, fmt.Errorf("nesting deeper than %d levels", maxTreeDepth)
		}
		switch v {
		case '{':
			n := &Node{Kind: KindObject}
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := kt.(string)
				if !ok {
					return nil, fmt.Errorf("unexpected object key %v", kt)
				}
				child, err := decodeNode(dec, depth+1)
				if err != nil {
					return nil, err
				}
				n.Fields = append(n.Fields, Field{Key: key, Value: child})
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return n, nil
		case '[':
			n := &Node{Kind: KindArray}
			for dec.More() {
				child, err := decodeNode(dec, depth+1)
				if err != nil {
					return nil, err
				}
				n.Items = append(n.Items, child)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return n, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %v", v)
	case nil:
		return &Node{Kind: KindNull}, nil
	default:
		return &Node{Kind: KindScalar, Scalar: v}, nil
	}
}

// Get returns the first field named key of an object node.
func (n *Node) Get(key string) *Node {
	if n == nil || n.Kind != KindObject {
		return nil
	}
	for _, f := range n.Fields {
		if f.Key == key {
			return f.Value
		}
	}
	return nil
}

// Text renders a scalar the way it appeared in the document.
func (n *Node) Text() (string, bool) {
	if n == nil || n.Kind != KindScalar {
		return "", false
	}
	switch v := n.Scalar.(type) {
	case string:
		return v, true
	case json.Number:
		return v.String(), true
	case bool:
		return strconv.FormatBool(v), true
	}
	return "", false
}
