package rules

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// RuleStore manages rule persistence and retrieval
type RuleStore interface {
	// List returns every rule ordered by id
	List(ctx context.Context) ([]*Rule, error)

	// Get a rule by id
	Get(ctx context.Context, id int64) (*Rule, error)

	// Create stores a new rule. A zero ID is replaced by a generated one.
	Create(ctx context.Context, rule *Rule) error

	// Update replaces the fields of an existing rule
	Update(ctx context.Context, rule *Rule) error

	// Delete a rule
	Delete(ctx context.Context, id int64) error
}

// VariableStore manages the variable registry
type VariableStore interface {
	// List returns every variable ordered by id
	List(ctx context.Context) ([]*Variable, error)

	// Get a variable by id
	Get(ctx context.Context, id int64) (*Variable, error)

	// GetByName looks a variable up by its unique name
	GetByName(ctx context.Context, name string) (*Variable, error)

	// Create stores a new variable. A zero ID is replaced by a generated one.
	Create(ctx context.Context, variable *Variable) error

	// Update replaces the fields of an existing variable
	Update(ctx context.Context, variable *Variable) error

	// Delete a variable
	Delete(ctx context.Context, id int64) error
}

// InMemoryRuleStore implements RuleStore using an in-memory map.
// Thread-safe with RWMutex.
type InMemoryRuleStore struct {
	rules  map[int64]*Rule
	nextID int64
	mu     sync.RWMutex
}

// NewInMemoryRuleStore creates a new in-memory rule store
func NewInMemoryRuleStore() *InMemoryRuleStore {
	return &InMemoryRuleStore{
		rules:  make(map[int64]*Rule),
		nextID: 1,
	}
}

// List returns copies of all rules ordered by id
func (s *InMemoryRuleStore) List(ctx context.Context) ([]*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*Rule, 0, len(s.rules))
	for _, rule := range s.rules {
		cp := *rule
		list = append(list, &cp)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

// Get retrieves a rule by id
func (s *InMemoryRuleStore) Get(ctx context.Context, id int64) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, exists := s.rules[id]
	if !exists {
		return nil, notFound("rule", id)
	}
	cp := *rule
	return &cp, nil
}

// Create adds a new rule, setting its id and timestamps
func (s *InMemoryRuleStore) Create(ctx context.Context, rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rule.ID == 0 {
		rule.ID = s.nextID
	}
	if _, exists := s.rules[rule.ID]; exists {
		return fmt.Errorf("rule %d: %w", rule.ID, ErrConflict)
	}
	if rule.ID >= s.nextID {
		s.nextID = rule.ID + 1
	}

	now := time.Now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	cp := *rule
	s.rules[rule.ID] = &cp
	return nil
}

// Update replaces an existing rule, preserving CreatedAt
func (s *InMemoryRuleStore) Update(ctx context.Context, rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.rules[rule.ID]
	if !exists {
		return notFound("rule", rule.ID)
	}

	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = time.Now().UTC()
	cp := *rule
	s.rules[rule.ID] = &cp
	return nil
}

// Delete removes a rule from the store
func (s *InMemoryRuleStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[id]; !exists {
		return notFound("rule", id)
	}

	delete(s.rules, id)
	return nil
}

// InMemoryVariableStore implements VariableStore with an id map and a name
// index, so lookups by name are O(1)
type InMemoryVariableStore struct {
	byID   map[int64]*Variable
	byName map[string]int64
	nextID int64
	mu     sync.RWMutex
}

// NewInMemoryVariableStore creates a new in-memory variable registry
func NewInMemoryVariableStore() *InMemoryVariableStore {
	return &InMemoryVariableStore{
		byID:   make(map[int64]*Variable),
		byName: make(map[string]int64),
		nextID: 1,
	}
}

func (s *InMemoryVariableStore) List(ctx context.Context) ([]*Variable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*Variable, 0, len(s.byID))
	for _, v := range s.byID {
		cp := *v
		list = append(list, &cp)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (s *InMemoryVariableStore) Get(ctx context.Context, id int64) (*Variable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, exists := s.byID[id]
	if !exists {
		return nil, notFound("variable", id)
	}
	cp := *v
	return &cp, nil
}

func (s *InMemoryVariableStore) GetByName(ctx context.Context, name string) (*Variable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.byName[name]
	if !exists {
		return nil, fmt.Errorf("variable %q: %w", name, ErrNotFound)
	}
	cp := *s.byID[id]
	return &cp, nil
}

func (s *InMemoryVariableStore) Create(ctx context.Context, variable *Variable) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if variable.ID == 0 {
		variable.ID = s.nextID
	}
	if _, exists := s.byID[variable.ID]; exists {
		return fmt.Errorf("variable %d: %w", variable.ID, ErrConflict)
	}
	if _, exists := s.byName[variable.Name]; exists {
		return fmt.Errorf("variable name %q: %w", variable.Name, ErrConflict)
	}
	if variable.ID >= s.nextID {
		s.nextID = variable.ID + 1
	}

	now := time.Now().UTC()
	variable.CreatedAt = now
	variable.UpdatedAt = now
	cp := *variable
	s.byID[variable.ID] = &cp
	s.byName[variable.Name] = variable.ID
	return nil
}

func (s *InMemoryVariableStore) Update(ctx context.Context, variable *Variable) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.byID[variable.ID]
	if !exists {
		return notFound("variable", variable.ID)
	}
	if owner, taken := s.byName[variable.Name]; taken && owner != variable.ID {
		return fmt.Errorf("variable name %q: %w", variable.Name, ErrConflict)
	}

	delete(s.byName, existing.Name)
	variable.CreatedAt = existing.CreatedAt
	variable.UpdatedAt = time.Now().UTC()
	cp := *variable
	s.byID[variable.ID] = &cp
	s.byName[variable.Name] = variable.ID
	return nil
}

func (s *InMemoryVariableStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.byID[id]
	if !exists {
		return notFound("variable", id)
	}

	delete(s.byName, existing.Name)
	delete(s.byID, id)
	return nil
}
