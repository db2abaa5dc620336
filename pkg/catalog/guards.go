package catalog

import (
	"fmt"
	"sync"

	"github.com/caseflow/caseflow/pkg/models"
)

// Guard is a named predicate evaluated against the execution context when a
// transition carries a guard condition. Guards are registered by the
// business-rule owner; the catalog only sequences the check.
type Guard func(ctx models.ExecutionContext) (bool, error)

// GuardRegistry holds the closed set of named guard predicates.
type GuardRegistry struct {
	mu     sync.RWMutex
	guards map[string]Guard
}

func NewGuardRegistry() *GuardRegistry {
	return &GuardRegistry{
		guards: make(map[string]Guard),
	}
}

func (r *GuardRegistry) Register(name string, guard Guard) error {
	if name == "" {
		return fmt.Errorf("guard name must not be empty")
	}

	if guard == nil {
		return fmt.Errorf("guard %q must not be nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.guards[name]; exists {
		return fmt.Errorf("guard %q already registered", name)
	}

	r.guards[name] = guard

	return nil
}

func (r *GuardRegistry) Lookup(name string) (Guard, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	guard, ok := r.guards[name]

	return guard, ok
}

// Names returns the registered guard names, for diagnostics.
func (r *GuardRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.guards))
	for name := range r.guards {
		names = append(names, name)
	}

	return names
}
