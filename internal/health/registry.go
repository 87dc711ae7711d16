package health

import (
	"context"
	"fmt"
	"sync"
)

// Registry holds the checks a health run executes, in registration order.
type Registry struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	order    []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{checkers: make(map[string]Checker)}
}

// DefaultRegistry returns a registry with every built-in check.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, c := range []Checker{
		configCheck{},
		documentsCheck{},
		locksCheck{},
		historyCheck{},
		confidenceCheck{},
	} {
		// Built-in names are unique.
		_ = r.Register(c)
	}
	return r
}

// Register adds a check to the registry.
func (r *Registry) Register(c Checker) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := c.Name()
	if _, exists := r.checkers[name]; exists {
		return fmt.Errorf("check %q already registered", name)
	}
	r.checkers[name] = c
	r.order = append(r.order, name)
	return nil
}

// Get returns a registered check by name.
func (r *Registry) Get(name string) (Checker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, exists := r.checkers[name]
	return c, exists
}

// Names returns the registered check names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.order...)
}

// Run executes every check in order. The report status is the worst check
// status. A cancelled context stops the run and is returned.
func (r *Registry) Run(ctx context.Context, target *Target) (*Report, error) {
	report := &Report{
		Root:      target.Root,
		Status:    StatusHealthy,
		CheckedAt: target.Now,
		Checks:    []CheckResult{},
	}
	for _, name := range r.Names() {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		c, _ := r.Get(name)
		result := c.Check(ctx, target)
		result.Name = name
		report.Checks = append(report.Checks, result)
		report.Status = Worse(report.Status, result.Status)
	}
	return report, nil
}
