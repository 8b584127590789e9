package session

import "sync"

// Manager hands out one Workspace per trainee key. Workspaces share nothing
// but their dependencies.
type Manager struct {
	mu         sync.Mutex
	deps       *Deps
	workspaces map[string]*Workspace
}

func NewManager(deps Deps) *Manager {
	deps.withDefaults()
	return &Manager{deps: &deps, workspaces: make(map[string]*Workspace)}
}

// Workspace returns the trainee's workspace, creating it on first use.
func (m *Manager) Workspace(key string) *Workspace {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ws, ok := m.workspaces[key]; ok {
		return ws
	}
	ws := NewWorkspace(key, m.deps)
	m.workspaces[key] = ws
	return ws
}

// MaxConsultations is the per-attempt consultation allowance.
func (m *Manager) MaxConsultations() int {
	return m.deps.MaxConsultations
}
