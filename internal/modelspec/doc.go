// Package modelspec compiles CUE document-model definitions.
//
// A model file declares, per document type and version, the scopes the
// model keeps state for, their initial state and the action vocabulary with
// an input schema for each action:
//
//	model: list_v1: {
//		document_type: "reactor/list"
//		version:       1
//		scopes: ["global", "local"]
//		initial_state: global: items: []
//		action: ADD_ITEM: {
//			scope: "global"
//			input: close({id: string & != "", text: string})
//		}
//	}
//
// The compiled Set produces registry validators that unify an action's input
// with its schema.
package modelspec
