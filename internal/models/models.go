// Package models holds the built-in document models: a checklist
// (reactor/list, two versions) and a drive that groups documents
// (reactor/drive).
package models

import (
	_ "embed"
	"fmt"

	"github.com/roach88/reactor/internal/modelspec"
	"github.com/roach88/reactor/internal/registry"
)

// Document types.
const (
	ListType  = "reactor/list"
	DriveType = "reactor/drive"
)

//go:embed models.cue
var modelsCUE []byte

// Spec compiles the embedded model definitions.
func Spec() (*modelspec.Set, error) {
	return modelspec.Compile("models.cue", modelsCUE)
}

// Modules returns the built-in modules with their CUE validators attached.
func Modules() ([]registry.Module, error) {
	set, err := Spec()
	if err != nil {
		return nil, fmt.Errorf("compile built-in models: %w", err)
	}
	return set.Attach([]registry.Module{
		{DocumentType: ListType, Version: 1, Reducer: ListReducerV1},
		{
			DocumentType: ListType,
			Version:      2,
			Reducer:      ListReducerV2,
			UpgradeManifest: &registry.UpgradeManifest{
				DocumentType: ListType,
				Transitions: map[string]registry.UpgradeTransition{
					registry.TransitionKey(2): {From: 1, To: 2, Upgrade: UpgradeListV1ToV2},
				},
			},
		},
		{DocumentType: DriveType, Version: 1, Reducer: DriveReducer},
	}), nil
}

// Register adds the built-in modules to reg.
func Register(reg *registry.Registry) error {
	mods, err := Modules()
	if err != nil {
		return err
	}
	return reg.RegisterModules(mods...)
}
