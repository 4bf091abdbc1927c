package storage

import "sync"

// MemoryStore is a thread-safe in-memory Store implementation.
//
// Use cases:
//   - Unit testing (no disk I/O, fast cleanup)
//   - Demo seeding and prototyping
//   - Small trees that fit entirely in RAM
//
// All operations take a RWMutex and return deep copies, so callers can
// never mutate stored state behind the store's back.
//
// Performance characteristics:
//   - Record lookup by ID: O(1)
//   - PersonsInTree: O(tree size) via a per-tree index
//   - Memory usage: a few hundred bytes per person plus name data
//
// Example:
//
//	store := storage.NewMemoryStore()
//	defer store.Close()
//
//	store.CreateTree(&storage.Tree{ID: "t1", Name: "García"})
//	store.CreatePerson(&storage.Person{ID: "p1", TreeID: "t1"})
//
//	people, _ := store.PersonsInTree("t1")
//	fmt.Printf("tree has %d members\n", len(people))
type MemoryStore struct {
	mu            sync.RWMutex
	trees         map[TreeID]*Tree
	persons       map[PersonID]*Person
	relationships map[RelationshipID]*Relationship

	// Indexes for efficient tree-scoped lookups
	personsByTree map[TreeID]map[PersonID]struct{}
	relsByTree    map[TreeID]map[RelationshipID]struct{}

	closed bool
}

// NewMemoryStore creates an empty in-memory store ready for concurrent use.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		trees:         make(map[TreeID]*Tree),
		persons:       make(map[PersonID]*Person),
		relationships: make(map[RelationshipID]*Relationship),
		personsByTree: make(map[TreeID]map[PersonID]struct{}),
		relsByTree:    make(map[TreeID]map[RelationshipID]struct{}),
	}
}

// CreateTree stores a new tree. The ID must be unique.
func (m *MemoryStore) CreateTree(tree *Tree) error {
	if tree == nil {
		return ErrInvalidData
	}
	if tree.ID == "" {
		return ErrInvalidID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	if _, exists := m.trees[tree.ID]; exists {
		return ErrAlreadyExists
	}

	m.trees[tree.ID] = copyTree(tree)
	return nil
}

// GetTree retrieves a tree by ID.
func (m *MemoryStore) GetTree(id TreeID) (*Tree, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	tree, exists := m.trees[id]
	if !exists {
		return nil, ErrNotFound
	}
	return copyTree(tree), nil
}

// UpdateTree replaces an existing tree record.
func (m *MemoryStore) UpdateTree(tree *Tree) error {
	if tree == nil {
		return ErrInvalidData
	}
	if tree.ID == "" {
		return ErrInvalidID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	if _, exists := m.trees[tree.ID]; !exists {
		return ErrNotFound
	}

	m.trees[tree.ID] = copyTree(tree)
	return nil
}

// DeleteTree removes a tree record. Member persons are left in place;
// callers soft-delete them first (the facade does this).
func (m *MemoryStore) DeleteTree(id TreeID) error {
	if id == "" {
		return ErrInvalidID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	if _, exists := m.trees[id]; !exists {
		return ErrNotFound
	}

	delete(m.trees, id)
	return nil
}

// TreesForUser lists trees the user owns or collaborates on.
func (m *MemoryStore) TreesForUser(userID UserID) ([]*Tree, error) {
	if userID == "" {
		return nil, ErrInvalidID
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	var out []*Tree
	for _, tree := range m.trees {
		if tree.RoleFor(userID) != "" {
			out = append(out, copyTree(tree))
		}
	}
	return out, nil
}

// CreatePerson stores a new person. The ID must be unique and the owning
// tree must exist.
func (m *MemoryStore) CreatePerson(p *Person) error {
	if p == nil {
		return ErrInvalidData
	}
	if p.ID == "" || p.TreeID == "" {
		return ErrInvalidID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	if _, exists := m.persons[p.ID]; exists {
		return ErrAlreadyExists
	}
	if _, exists := m.trees[p.TreeID]; !exists {
		return ErrNotFound
	}

	m.persons[p.ID] = copyPerson(p)
	if m.personsByTree[p.TreeID] == nil {
		m.personsByTree[p.TreeID] = make(map[PersonID]struct{})
	}
	m.personsByTree[p.TreeID][p.ID] = struct{}{}
	return nil
}

// GetPerson retrieves a person by ID, including soft-deleted records.
// Graph-level soft-delete filtering is the accessor's job.
func (m *MemoryStore) GetPerson(id PersonID) (*Person, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	p, exists := m.persons[id]
	if !exists {
		return nil, ErrNotFound
	}
	return copyPerson(p), nil
}

// UpdatePerson writes a person under optimistic concurrency: the caller's
// Version must match the stored record. On success the stored and caller
// Version are incremented, so a stale writer gets ErrConflict instead of
// silently clobbering a concurrent parent-slot assignment.
func (m *MemoryStore) UpdatePerson(p *Person) error {
	if p == nil {
		return ErrInvalidData
	}
	if p.ID == "" {
		return ErrInvalidID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	existing, exists := m.persons[p.ID]
	if !exists {
		return ErrNotFound
	}
	if existing.Version != p.Version {
		return ErrConflict
	}

	stored := copyPerson(p)
	stored.Version = p.Version + 1
	m.persons[p.ID] = stored
	p.Version = stored.Version
	return nil
}

// PersonsInTree lists the live (non-soft-deleted) persons of a tree.
func (m *MemoryStore) PersonsInTree(treeID TreeID) ([]*Person, error) {
	if treeID == "" {
		return nil, ErrInvalidID
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	var out []*Person
	for id := range m.personsByTree[treeID] {
		p := m.persons[id]
		if p == nil || p.SoftDeleted {
			continue
		}
		out = append(out, copyPerson(p))
	}
	return out, nil
}

// CreateRelationship stores a relationship record.
func (m *MemoryStore) CreateRelationship(r *Relationship) error {
	if r == nil {
		return ErrInvalidData
	}
	if r.ID == "" || r.TreeID == "" {
		return ErrInvalidID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	if _, exists := m.relationships[r.ID]; exists {
		return ErrAlreadyExists
	}

	m.relationships[r.ID] = copyRelationship(r)
	if m.relsByTree[r.TreeID] == nil {
		m.relsByTree[r.TreeID] = make(map[RelationshipID]struct{})
	}
	m.relsByTree[r.TreeID][r.ID] = struct{}{}
	return nil
}

// GetRelationship retrieves a relationship record by ID.
func (m *MemoryStore) GetRelationship(id RelationshipID) (*Relationship, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	r, exists := m.relationships[id]
	if !exists {
		return nil, ErrNotFound
	}
	return copyRelationship(r), nil
}

// DeleteRelationship removes a relationship record. Person parent/partner
// fields are untouched: relationship rows are not authoritative.
func (m *MemoryStore) DeleteRelationship(id RelationshipID) error {
	if id == "" {
		return ErrInvalidID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	r, exists := m.relationships[id]
	if !exists {
		return ErrNotFound
	}

	delete(m.relationships, id)
	if idx := m.relsByTree[r.TreeID]; idx != nil {
		delete(idx, id)
	}
	return nil
}

// RelationshipsInTree lists all relationship records of a tree.
func (m *MemoryStore) RelationshipsInTree(treeID TreeID) ([]*Relationship, error) {
	if treeID == "" {
		return nil, ErrInvalidID
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	var out []*Relationship
	for id := range m.relsByTree[treeID] {
		if r := m.relationships[id]; r != nil {
			out = append(out, copyRelationship(r))
		}
	}
	return out, nil
}

// PersonCount returns the total number of person records, soft-deleted
// included.
func (m *MemoryStore) PersonCount() (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrStoreClosed
	}
	return int64(len(m.persons)), nil
}

// Close marks the store closed. Subsequent operations fail with
// ErrStoreClosed.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
