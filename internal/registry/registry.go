package registry

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Registry is a lookup table from (document type, version) to Module.
// Reads are lock-free; writes are serialized and publish a new snapshot.
type Registry struct {
	mu   sync.Mutex // serializes writers only
	snap atomic.Pointer[snapshot]
}

type snapshot struct {
	modules     map[string]map[int]*Module
	latest      map[string]int
	transitions map[string]map[string]UpgradeTransition
}

func emptySnapshot() *snapshot {
	return &snapshot{
		modules:     map[string]map[int]*Module{},
		latest:      map[string]int{},
		transitions: map[string]map[string]UpgradeTransition{},
	}
}

// New returns an empty registry.
func New() *Registry {
	r := &Registry{}
	r.snap.Store(emptySnapshot())
	return r
}

// RegisterModules adds modules atomically: either all are registered or,
// on a duplicate or invalid module, none are.
func (r *Registry) RegisterModules(mods ...Module) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snap.Load()
	next := &snapshot{
		modules:     make(map[string]map[int]*Module, len(cur.modules)),
		latest:      make(map[string]int, len(cur.latest)),
		transitions: make(map[string]map[string]UpgradeTransition, len(cur.transitions)),
	}
	for t, versions := range cur.modules {
		next.modules[t] = make(map[int]*Module, len(versions))
		for v, m := range versions {
			next.modules[t][v] = m
		}
	}
	for t, v := range cur.latest {
		next.latest[t] = v
	}
	for t, trs := range cur.transitions {
		next.transitions[t] = make(map[string]UpgradeTransition, len(trs))
		for k, tr := range trs {
			next.transitions[t][k] = tr
		}
	}

	for i := range mods {
		m := mods[i]
		if err := m.validate(); err != nil {
			return err
		}
		if _, ok := next.modules[m.DocumentType][m.Version]; ok {
			return &DuplicateModuleError{DocumentType: m.DocumentType, Version: m.Version}
		}
		if next.modules[m.DocumentType] == nil {
			next.modules[m.DocumentType] = map[int]*Module{}
		}
		next.modules[m.DocumentType][m.Version] = &m
		if m.Version > next.latest[m.DocumentType] {
			next.latest[m.DocumentType] = m.Version
		}
		if m.UpgradeManifest != nil {
			if next.transitions[m.DocumentType] == nil {
				next.transitions[m.DocumentType] = map[string]UpgradeTransition{}
			}
			for k, tr := range m.UpgradeManifest.Transitions {
				next.transitions[m.DocumentType][k] = tr
			}
		}
	}

	r.snap.Store(next)
	return nil
}

// GetModule returns the module for documentType at version. A version of 0
// returns the latest registered version.
func (r *Registry) GetModule(documentType string, version int) (Module, error) {
	s := r.snap.Load()
	versions, ok := s.modules[documentType]
	if !ok {
		return Module{}, &ModuleNotFoundError{DocumentType: documentType, Version: version}
	}
	if version == 0 {
		version = s.latest[documentType]
	}
	m, ok := versions[version]
	if !ok {
		return Module{}, &ModuleNotFoundError{DocumentType: documentType, Version: version}
	}
	return *m, nil
}

// Reducer returns the reducer for documentType at version.
func (r *Registry) Reducer(documentType string, version int) (Reducer, error) {
	m, err := r.GetModule(documentType, version)
	if err != nil {
		return nil, &ReducerNotFoundError{DocumentType: documentType, Version: version}
	}
	return m.Reducer, nil
}

// LatestVersion returns the highest registered version of documentType.
func (r *Registry) LatestVersion(documentType string) (int, error) {
	s := r.snap.Load()
	v, ok := s.latest[documentType]
	if !ok {
		return 0, &ModuleNotFoundError{DocumentType: documentType}
	}
	return v, nil
}

// Modules lists every registered module ordered by type, then version.
func (r *Registry) Modules() []Module {
	s := r.snap.Load()
	var out []Module
	for _, versions := range s.modules {
		for _, m := range versions {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DocumentType != out[j].DocumentType {
			return out[i].DocumentType < out[j].DocumentType
		}
		return out[i].Version < out[j].Version
	})
	return out
}

// ComputeUpgradePath returns the single-step transitions taking a document
// of documentType from version from to version to, in order. An equal from
// and to yields an empty path.
func (r *Registry) ComputeUpgradePath(documentType string, from, to int) ([]UpgradeTransition, error) {
	if to < from {
		return nil, &DowngradeNotSupportedError{DocumentType: documentType, From: from, To: to}
	}
	if to == from {
		return []UpgradeTransition{}, nil
	}

	trs, ok := r.snap.Load().transitions[documentType]
	if !ok {
		return nil, &UpgradeManifestNotFoundError{DocumentType: documentType}
	}

	path := make([]UpgradeTransition, 0, to-from)
	for v := from + 1; v <= to; v++ {
		tr, ok := trs[TransitionKey(v)]
		if !ok || tr.From != v-1 {
			return nil, &MissingUpgradeTransitionError{DocumentType: documentType, From: v - 1, To: v}
		}
		path = append(path, tr)
	}
	return path, nil
}

// GetUpgradeReducer returns the upgrade reducer of a single-step transition.
// Multi-step upgrades walk ComputeUpgradePath instead.
func (r *Registry) GetUpgradeReducer(documentType string, from, to int) (UpgradeReducer, error) {
	if to < from {
		return nil, &DowngradeNotSupportedError{DocumentType: documentType, From: from, To: to}
	}
	if to != from+1 {
		return nil, &InvalidUpgradeStepError{DocumentType: documentType, From: from, To: to}
	}

	trs, ok := r.snap.Load().transitions[documentType]
	if !ok {
		return nil, &UpgradeManifestNotFoundError{DocumentType: documentType}
	}
	tr, ok := trs[TransitionKey(to)]
	if !ok || tr.From != from {
		return nil, &MissingUpgradeTransitionError{DocumentType: documentType, From: from, To: to}
	}
	return tr.Upgrade, nil
}
