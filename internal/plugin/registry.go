// Package plugin holds the analysis strategy registry. Strategies implement
// models.AnalysisPlugin and are looked up by name at dispatch time; new
// strategies only need to register themselves at startup.
package plugin

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/nekazari/intelligence/pkg/models"
)

// DefaultName is the plugin used when a job does not select one.
const DefaultName = "simple_predictor"

var errEmptyName = errors.New("plugin name must not be empty")

// Info describes a registered plugin for API listings.
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Registry is a thread-safe name-keyed table of analysis plugins.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]models.AnalysisPlugin
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{plugins: make(map[string]models.AnalysisPlugin)}
}

// Register adds a plugin under its own name. Registering the same name twice
// is an error; plugins are wired once at startup.
func (r *Registry) Register(p models.AnalysisPlugin) error {
	if p == nil || p.Name() == "" {
		return errEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.plugins[p.Name()]; exists {
		return fmt.Errorf("plugin %q already registered", p.Name())
	}
	r.plugins[p.Name()] = p
	return nil
}

// Get retrieves a plugin by name.
func (r *Registry) Get(name string) (models.AnalysisPlugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.plugins[name]
	return p, ok
}

// List returns all registered plugins sorted by name.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.plugins))
	for _, p := range r.plugins {
		infos = append(infos, Info{Name: p.Name(), Description: p.Description()})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}
