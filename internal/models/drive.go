package models

import (
	"fmt"

	"github.com/roach88/reactor/internal/ir"
)

// DriveReducer applies drive actions. Files point at other documents; the
// executor links them through ADD_RELATIONSHIP, not here.
func DriveReducer(state ir.Object, action ir.Action) (ir.Object, error) {
	nodes, _ := state.GetArray("nodes")

	switch action.Type {
	case "SET_NAME":
		name, _ := action.Input.GetString("name")
		state["name"] = ir.String(name)
		return state, nil

	case "ADD_FOLDER", "ADD_FILE":
		id, _ := action.Input.GetString("id")
		if findItem(nodes, id) >= 0 {
			return nil, fmt.Errorf("node %s already exists", id)
		}
		parent, hasParent := action.Input.GetString("parent_id")
		if hasParent && !isFolder(nodes, parent) {
			return nil, fmt.Errorf("parent %s is not a folder", parent)
		}
		name, _ := action.Input.GetString("name")
		node := ir.Object{
			"id":   ir.String(id),
			"name": ir.String(name),
			"kind": ir.String("folder"),
		}
		if hasParent {
			node["parent_id"] = ir.String(parent)
		}
		if action.Type == "ADD_FILE" {
			docID, _ := action.Input.GetString("document_id")
			node["kind"] = ir.String("file")
			node["document_id"] = ir.String(docID)
		}
		state["nodes"] = append(nodes, node)
		return state, nil

	case "DELETE_NODE":
		id, _ := action.Input.GetString("id")
		i := findItem(nodes, id)
		if i < 0 {
			return nil, fmt.Errorf("delete %s: unknown node", id)
		}
		kept := make(ir.Array, 0, len(nodes))
		for j, n := range nodes {
			if j == i {
				continue
			}
			if p, _ := n.(ir.Object).GetString("parent_id"); p == id {
				continue
			}
			kept = append(kept, n)
		}
		state["nodes"] = kept
		return state, nil
	}
	return nil, fmt.Errorf("reactor/drive@1: unsupported action %s", action.Type)
}

func isFolder(nodes ir.Array, id string) bool {
	i := findItem(nodes, id)
	if i < 0 {
		return false
	}
	kind, _ := nodes[i].(ir.Object).GetString("kind")
	return kind == "folder"
}
