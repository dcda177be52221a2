package models

import (
	"errors"
	"fmt"

	"github.com/roach88/reactor/internal/ir"
)

// ErrUnknownItem rejects an action naming an item that is not in the list.
var ErrUnknownItem = errors.New("unknown item")

// ListReducerV1 applies checklist actions.
func ListReducerV1(state ir.Object, action ir.Action) (ir.Object, error) {
	switch action.Type {
	case "ADD_ITEM":
		return addItem(state, action)
	case "CHECK_ITEM":
		return checkItem(state, action)
	case "REMOVE_ITEM":
		return removeItem(state, action)
	case "SET_FILTER":
		filter, _ := action.Input.GetString("filter")
		state["filter"] = ir.String(filter)
		return state, nil
	}
	return nil, fmt.Errorf("reactor/list@1: unsupported action %s", action.Type)
}

// ListReducerV2 adds RENAME to the v1 vocabulary.
func ListReducerV2(state ir.Object, action ir.Action) (ir.Object, error) {
	if action.Type == "RENAME" {
		title, _ := action.Input.GetString("title")
		state["title"] = ir.String(title)
		return state, nil
	}
	return ListReducerV1(state, action)
}

// UpgradeListV1ToV2 gives the global scope a title.
func UpgradeListV1ToV2(doc ir.Document, _ ir.Action) (ir.Document, error) {
	global := doc.ScopeState(ir.ScopeGlobal).Clone()
	if _, ok := global["title"]; !ok {
		global["title"] = ir.String("")
	}
	doc.State[ir.ScopeGlobal] = global
	return doc, nil
}

func addItem(state ir.Object, action ir.Action) (ir.Object, error) {
	id, _ := action.Input.GetString("id")
	text, _ := action.Input.GetString("text")

	items, _ := state.GetArray("items")
	if findItem(items, id) >= 0 {
		return nil, fmt.Errorf("item %s already exists", id)
	}
	state["items"] = append(items, ir.Object{
		"id":   ir.String(id),
		"text": ir.String(text),
		"done": ir.Bool(false),
	})
	return state, nil
}

func checkItem(state ir.Object, action ir.Action) (ir.Object, error) {
	id, _ := action.Input.GetString("id")
	done, _ := action.Input["done"].(ir.Bool)

	items, _ := state.GetArray("items")
	i := findItem(items, id)
	if i < 0 {
		return nil, fmt.Errorf("check %s: %w", id, ErrUnknownItem)
	}
	item := items[i].(ir.Object)
	item["done"] = done
	return state, nil
}

func removeItem(state ir.Object, action ir.Action) (ir.Object, error) {
	id, _ := action.Input.GetString("id")

	items, _ := state.GetArray("items")
	i := findItem(items, id)
	if i < 0 {
		return nil, fmt.Errorf("remove %s: %w", id, ErrUnknownItem)
	}
	state["items"] = append(items[:i:i], items[i+1:]...)
	return state, nil
}

func findItem(items ir.Array, id string) int {
	for i, v := range items {
		if obj, ok := v.(ir.Object); ok {
			if got, _ := obj.GetString("id"); got == id {
				return i
			}
		}
	}
	return -1
}
