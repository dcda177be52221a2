package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/reactor/internal/ir"
)

// marshalAction converts an action to JSON TEXT for storage. Input objects
// marshal with sorted keys so identical actions store identical text.
func marshalAction(a ir.Action) (string, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("marshal action: %w", err)
	}
	return string(data), nil
}

// unmarshalAction parses stored JSON TEXT. Input uses ir.Object's decoder so
// large integers keep full int64 precision.
func unmarshalAction(data string) (ir.Action, error) {
	var a ir.Action
	if err := json.Unmarshal([]byte(data), &a); err != nil {
		return ir.Action{}, fmt.Errorf("unmarshal action: %w", err)
	}
	if a.Input == nil {
		a.Input = ir.Object{}
	}
	return a, nil
}

func marshalDocument(doc ir.Document) (string, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshal document: %w", err)
	}
	return string(data), nil
}

func unmarshalDocument(data string) (ir.Document, error) {
	var doc ir.Document
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return ir.Document{}, fmt.Errorf("unmarshal document: %w", err)
	}
	if doc.Header.Revision == nil {
		doc.Header.Revision = map[string]int64{}
	}
	if doc.State == nil {
		doc.State = map[string]ir.Object{}
	}
	if doc.InitialState == nil {
		doc.InitialState = map[string]ir.Object{}
	}
	return doc, nil
}
